package harvest

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/twpayne/go-geom"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/sells-group/pharmacy-harvester/internal/dedupe"
	"github.com/sells-group/pharmacy-harvester/internal/geo"
	"github.com/sells-group/pharmacy-harvester/internal/model"
	"github.com/sells-group/pharmacy-harvester/internal/normalize"
	"github.com/sells-group/pharmacy-harvester/internal/provider"
)

// task is one independent unit of provider work.
type task func(ctx context.Context) []model.Candidate

func search(p provider.Provider, q geo.Query) task {
	return func(ctx context.Context) []model.Candidate {
		return p.Search(ctx, q)
	}
}

func (h *Harvester) fetch(ctx context.Context, r *run) *Fetched {
	start := r.now()
	primary := provider.Enabled(h.src.Primary)
	secondary := provider.Enabled(h.src.Secondary)
	if len(primary)+len(secondary) == 0 {
		r.log.Warn("harvest: no providers enabled; check API credentials")
	}

	var osm, city, expansion, optional, textHits []model.Candidate

	r.stage(ctx, StateFetchingBaseline, true, func() int {
		osm, city = h.baseline(ctx, r, primary)
		return len(osm) + len(city)
	})
	r.stage(ctx, StateExpandingSeeds, true, func() int {
		expansion = h.expand(ctx, r, primary, concat(osm, city))
		return len(expansion)
	})
	r.stage(ctx, StateFetchingOptional, true, func() int {
		optional = h.optional(ctx, r, secondary)
		return len(optional)
	})
	r.stage(ctx, StateParsingRegistries, true, func() int {
		textHits = h.registries(ctx, r, concat(primary, secondary))
		return len(textHits)
	})

	out := &Fetched{City: r.city}
	r.stage(ctx, StateDeduping, false, func() int {
		all := concat(osm, city, expansion, optional, textHits)
		if n := normalize.ClipToBox(all, r.box); n > 0 {
			r.log.Debug("harvest: cleared out-of-country coordinates", zap.Int("count", n))
		}
		ents, st := dedupe.Run(all)
		out.Dedupe = st
		out.Entities = h.clip(r, ents)
		return len(out.Entities)
	})

	out.Stages = r.stages
	out.TimedOut = r.timedOut.Load()
	out.Stats = searchStats(out.Entities, r.now().Sub(start))
	return out
}

// baseline runs the country scan and the city-first queries together, then
// sweeps the national grid when the city results look incomplete.
func (h *Harvester) baseline(ctx context.Context, r *run, primary []provider.Provider) (osm, city []model.Candidate) {
	var countryTasks, cityTasks []task
	for _, p := range provider.Supporting(primary, geo.Country) {
		countryTasks = append(countryTasks, search(p, geo.Query{Mode: geo.Country}))
	}
	for _, q := range h.planner.Baseline(r.area) {
		for _, p := range provider.Supporting(primary, q.Mode) {
			cityTasks = append(cityTasks, search(p, q))
		}
	}

	slots := h.pool(ctx, r, concat(countryTasks, cityTasks))
	osm = flatten(slots[:len(countryTasks)])
	city = dedupe.Exact(flatten(slots[len(countryTasks):]))
	r.log.Info("harvest: baseline complete", zap.Int("country", len(osm)), zap.Int("city", len(city)))

	nearby := provider.Supporting(primary, geo.Nearby)
	if len(nearby) == 0 || !h.planner.NeedsCountrySweep(len(city)) || r.expired(ctx) {
		return osm, city
	}

	var sweep []task
	for _, q := range h.planner.Country(h.countryPolygon(ctx, r)) {
		for _, p := range nearby {
			sweep = append(sweep, search(p, q))
		}
	}
	r.log.Info("harvest: city results below threshold, sweeping country grid",
		zap.Int("found", len(city)), zap.Int("queries", len(sweep)))
	city = dedupe.Exact(concat(city, flatten(h.pool(ctx, r, sweep))))
	return osm, city
}

// countryPolygon prefers a configured boundary, then the live relation bounds,
// then the fixed fallback box.
func (h *Harvester) countryPolygon(ctx context.Context, r *run) *geom.Polygon {
	if h.opts.Boundary != nil {
		return h.opts.Boundary
	}
	if h.src.Bounds != nil {
		if box, ok := h.src.Bounds.CountryBounds(ctx); ok && box.Valid() {
			r.box = box
			return box.Polygon()
		}
	}
	return r.box.Polygon()
}

func (h *Harvester) expand(ctx context.Context, r *run, primary []provider.Provider, found []model.Candidate) []model.Candidate {
	nearby := provider.Supporting(primary, geo.Nearby)
	seeds := seedPoints(dedupe.Exact(found))
	if len(nearby) == 0 || len(seeds) == 0 {
		return nil
	}

	groups := h.planner.Expansion(seeds)
	var tasks []task
	for _, g := range groups {
		for _, q := range g.Queries {
			for _, p := range nearby {
				tasks = append(tasks, search(p, q))
			}
		}
	}
	r.log.Info("harvest: expanding seeds",
		zap.Int("seeds", len(seeds)),
		zap.Int("expanded", len(groups)),
		zap.Int("queries", len(tasks)))
	return flatten(h.pool(ctx, r, tasks))
}

func (h *Harvester) optional(ctx context.Context, r *run, secondary []provider.Provider) []model.Candidate {
	q := h.planner.Optional(r.area)
	var tasks []task
	for _, p := range provider.Supporting(secondary, q.Mode) {
		tasks = append(tasks, search(p, q))
	}
	return flatten(h.pool(ctx, r, tasks))
}

// registries fetches every document in parallel, then geocodes the rows one
// at a time with a free-text query against every text-capable provider.
func (h *Harvester) registries(ctx context.Context, r *run, enabled []provider.Provider) []model.Candidate {
	docs := h.src.Documents
	if len(docs) == 0 {
		return nil
	}

	slots := make([][]model.RegistryRow, len(docs))
	var g errgroup.Group
	g.SetLimit(h.opts.Concurrency)
	for i, d := range docs {
		if r.expired(ctx) {
			break
		}
		g.Go(func() error {
			slots[i] = d.Rows(ctx)
			return nil
		})
	}
	_ = g.Wait()

	rows := flatten(slots)
	text := provider.Supporting(enabled, geo.Text)
	if len(text) == 0 {
		if len(rows) > 0 {
			r.log.Warn("harvest: no text search provider enabled, registry rows dropped", zap.Int("rows", len(rows)))
		}
		return nil
	}

	var hits []model.Candidate
	for i, row := range rows {
		if r.expired(ctx) {
			r.log.Info("harvest: geocoding stopped at deadline", zap.Int("remaining", len(rows)-i))
			break
		}
		if c, ok := h.geocode(ctx, r, text, row); ok {
			hits = append(hits, c)
		}
	}
	r.log.Info("harvest: registry rows geocoded", zap.Int("rows", len(rows)), zap.Int("hits", len(hits)))
	return hits
}

// geocode returns the first provider hit with coordinates, with the row's own
// fields laid over it.
func (h *Harvester) geocode(ctx context.Context, r *run, text []provider.Provider, row model.RegistryRow) (model.Candidate, bool) {
	for _, qt := range h.rowQueries(row) {
		q := geo.Query{Mode: geo.Text, Center: r.area.Center, RadiusM: r.area.RadiusM, Text: qt, Lang: h.opts.GeocodeLang}
		for _, p := range text {
			for _, hit := range p.Search(ctx, q) {
				if hit.HasCoords() {
					return fromRow(row, hit), true
				}
			}
		}
		if err := pause(ctx, h.opts.GeocodePacing); err != nil {
			return model.Candidate{}, false
		}
	}
	return model.Candidate{}, false
}

// rowQueries builds the name-in-city query and the city-wide query. Rows
// without a city fall back to their own text; rows with neither are dropped.
func (h *Harvester) rowQueries(row model.RegistryRow) []string {
	name, city := strings.TrimSpace(row.Name), strings.TrimSpace(row.City)
	var qs []string
	if name != "" && city != "" {
		qs = append(qs, fmt.Sprintf("Apoteka %s %s, %s", name, city, h.opts.CountryName))
	}
	if city != "" {
		qs = append(qs, fmt.Sprintf("apoteka %s %s", city, h.opts.CountryNameLocal))
	}
	if len(qs) == 0 && name != "" {
		qs = append(qs, provider.RowQuery(row))
	}
	return qs
}

func fromRow(row model.RegistryRow, hit model.Candidate) model.Candidate {
	in := normalize.Input{
		Name:         firstNonEmpty(row.Name, hit.NameLocal),
		Address:      firstNonEmpty(row.Address, hit.Address),
		City:         firstNonEmpty(row.City, hit.CityHint),
		Lat:          hit.Lat,
		Lng:          hit.Lng,
		Phones:       row.Phones,
		Emails:       row.Emails,
		Website:      hit.Website,
		OpeningHours: hit.OpeningHours,
		Source:       row.Source,
		PlaceID:      hit.PlaceID,
		NativeType:   hit.NativeType,
		NativeID:     hit.NativeID,
		CoordSource:  hit.Source,
		Rating:       hit.Rating,
		ReviewCount:  hit.ReviewCount,
	}
	if row.Name == "" {
		in.NameEN = hit.NameSecondary
	}
	if len(in.Phones) == 0 && hit.Phone != "" {
		in.Phones = []string{hit.Phone}
	}
	if len(in.Emails) == 0 && hit.Email != "" {
		in.Emails = []string{hit.Email}
	}
	return normalize.Candidate(in)
}

// clip keeps entities with coordinates inside CityClipFactor x radius of the
// city center.
func (h *Harvester) clip(r *run, ents []model.Entity) []model.Entity {
	limit := float64(r.area.RadiusM) * h.opts.CityClipFactor
	out := make([]model.Entity, 0, len(ents))
	for _, e := range ents {
		if !e.HasCoords() {
			continue
		}
		if geo.DistanceMeters(geo.Point{Lat: *e.Lat, Lng: *e.Lng}, r.area.Center) > limit {
			continue
		}
		out = append(out, e)
	}
	return out
}

// pool runs tasks with bounded concurrency. Each task writes only its own
// slot. The deadline is checked before each task starts; running tasks finish.
func (h *Harvester) pool(ctx context.Context, r *run, tasks []task) [][]model.Candidate {
	slots := make([][]model.Candidate, len(tasks))
	var g errgroup.Group
	g.SetLimit(h.opts.Concurrency)
	for i, t := range tasks {
		if r.expired(ctx) {
			r.log.Info("harvest: not scheduling remaining tasks", zap.Int("skipped", len(tasks)-i))
			break
		}
		g.Go(func() error {
			if r.expired(ctx) {
				return nil
			}
			slots[i] = t(ctx)
			return nil
		})
	}
	_ = g.Wait()
	return slots
}

func seedPoints(cands []model.Candidate) []geo.Point {
	out := make([]geo.Point, 0, len(cands))
	for _, c := range cands {
		if c.HasCoords() {
			out = append(out, geo.Point{Lat: *c.Lat, Lng: *c.Lng})
		}
	}
	return out
}

func pause(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return nil
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

func concat[T any](parts ...[]T) []T {
	n := 0
	for _, p := range parts {
		n += len(p)
	}
	out := make([]T, 0, n)
	for _, p := range parts {
		out = append(out, p...)
	}
	return out
}

func flatten[T any](slots [][]T) []T {
	return concat(slots...)
}

func firstNonEmpty(vals ...string) string {
	for _, v := range vals {
		if strings.TrimSpace(v) != "" {
			return v
		}
	}
	return ""
}
