// Package harvest drives one city run end to end: provider fan-out around the
// city, registry geocoding, deduplication and reconciliation into the store.
package harvest

import (
	"context"
	"sync/atomic"
	"time"

	"github.com/rotisserie/eris"
	"github.com/twpayne/go-geom"
	"go.uber.org/zap"

	"github.com/sells-group/pharmacy-harvester/internal/dedupe"
	"github.com/sells-group/pharmacy-harvester/internal/geo"
	"github.com/sells-group/pharmacy-harvester/internal/model"
	"github.com/sells-group/pharmacy-harvester/internal/provider"
	"github.com/sells-group/pharmacy-harvester/internal/reconcile"
	"github.com/sells-group/pharmacy-harvester/internal/registry"
)

// ErrMissingCity is returned when the requested city has no configured
// coordinates. It is the only error that fails a run.
var ErrMissingCity = eris.New("harvest: city coordinates not found")

// ErrStoreUnavailable is returned when the store cannot be reached before any
// fetching starts. The run never leaves IDLE; its result reports FAILED.
var ErrStoreUnavailable = eris.New("harvest: store unavailable")

// Store is the persistence a run needs.
type Store interface {
	reconcile.Store
	EnsureCity(ctx context.Context, c model.City) (*model.City, error)
	CountActive(ctx context.Context, cityID int64) (int, error)
	CreateRun(ctx context.Context, citySlug string) (*model.Run, error)
	CompleteRun(ctx context.Context, runID string, status model.RunStatus, result any) error
}

// Bounder supplies the national bounding box for the country sweep.
type Bounder interface {
	CountryBounds(ctx context.Context) (geo.Box, bool)
}

// Sources groups the adapters a run queries.
type Sources struct {
	// Primary providers run the country scan, the city baseline and the seed
	// expansion (the map database and the commercial places API).
	Primary []provider.Provider
	// Secondary providers are queried once at the city center and take part
	// in registry geocoding.
	Secondary []provider.Provider
	Documents []provider.DocumentSource
	Bounds    Bounder
}

// Options tunes a run.
type Options struct {
	// Deadline is the wall-clock budget for the fetch stages. Default: 6m.
	Deadline time.Duration
	// Concurrency bounds in-flight provider calls. Default: 8.
	Concurrency int
	// CityClipFactor multiplies the city radius for the final clip. Default: 3.
	CityClipFactor float64
	// GeocodePacing is the pause after each registry query that found nothing.
	// Default: 120ms. Negative disables it.
	GeocodePacing    time.Duration
	GeocodeLang      string
	CountryName      string
	CountryNameLocal string
	// CountryBox clips every fetched coordinate. Default: provider.FallbackBounds.
	CountryBox geo.Box
	// Boundary replaces the bbox polygon for the country sweep when set.
	Boundary  *geom.Polygon
	Reconcile reconcile.Options
	Now       func() time.Time
}

func (o Options) withDefaults() Options {
	if o.Deadline <= 0 {
		o.Deadline = 6 * time.Minute
	}
	if o.Concurrency <= 0 {
		o.Concurrency = 8
	}
	if o.CityClipFactor <= 0 {
		o.CityClipFactor = 3
	}
	if o.GeocodePacing < 0 {
		o.GeocodePacing = 0
	} else if o.GeocodePacing == 0 {
		o.GeocodePacing = 120 * time.Millisecond
	}
	if o.GeocodeLang == "" {
		o.GeocodeLang = "sr"
	}
	if o.CountryName == "" {
		o.CountryName = "Montenegro"
	}
	if o.CountryNameLocal == "" {
		o.CountryNameLocal = "Crna Gora"
	}
	if !o.CountryBox.Valid() {
		o.CountryBox = provider.FallbackBounds
	}
	if o.Boundary != nil {
		o.CountryBox = geo.BoxOf(o.Boundary)
	}
	if o.Now == nil {
		o.Now = time.Now
	}
	if o.Reconcile.Now == nil {
		o.Reconcile.Now = o.Now
	}
	return o
}

// Harvester runs cities through the pipeline.
type Harvester struct {
	cities  *registry.Cities
	planner *geo.Planner
	src     Sources
	store   Store
	opts    Options
	log     *zap.Logger
}

// New creates a Harvester. The configuration is fixed for its lifetime.
func New(cities *registry.Cities, planner *geo.Planner, src Sources, st Store, opts Options) *Harvester {
	return &Harvester{
		cities:  cities,
		planner: planner,
		src:     src,
		store:   st,
		opts:    opts.withDefaults(),
		log:     zap.L().With(zap.String("component", "harvest")),
	}
}

// Fetched is the deduplicated, clipped output of the fetch stages.
type Fetched struct {
	City     registry.City  `json:"city"`
	Entities []model.Entity `json:"entities"`
	Dedupe   dedupe.Stats   `json:"dedupe"`
	Stats    SearchStats    `json:"searchStats"`
	Stages   []StageStat    `json:"stages"`
	States   []State        `json:"states"`
	TimedOut bool           `json:"timedOut"`
}

// Fetch runs every stage up to deduplication without touching the store.
func (h *Harvester) Fetch(ctx context.Context, slug string) (*Fetched, error) {
	city, err := h.resolve(slug)
	if err != nil {
		return nil, err
	}
	r := h.newRun(city)
	out := h.fetch(ctx, r)
	r.transition(StateDone)
	out.States = r.states
	return out, nil
}

// Sync harvests the city and reconciles the result into the store. It always
// returns a result. The error is non-nil only for an unknown city
// (ErrMissingCity) or a store that cannot be reached at the start of the run
// (ErrStoreUnavailable); both leave the result FAILED without fetching.
func (h *Harvester) Sync(ctx context.Context, slug string) (*Result, error) {
	start := h.opts.Now()
	city, err := h.resolve(slug)
	if err != nil {
		return failed(slug, start, h.opts.Now(), err), err
	}

	dbCity, err := h.store.EnsureCity(ctx, model.City{Slug: city.Slug, NameME: city.NameME, NameEN: city.NameEN})
	if err != nil {
		err = eris.Wrapf(storeUnavailable(err), "harvest: ensure city %s", city.Slug)
		return failed(slug, start, h.opts.Now(), err), err
	}
	before, err := h.store.CountActive(ctx, dbCity.ID)
	if err != nil {
		err = eris.Wrapf(storeUnavailable(err), "harvest: count pharmacies for %s", city.Slug)
		return failed(slug, start, h.opts.Now(), err), err
	}

	runID := h.startRun(ctx, city.Slug)
	r := h.newRun(city)
	fetched := h.fetch(ctx, r)

	res := &Result{
		RunID:         runID,
		CitySlug:      slug,
		CityName:      city.NameEN,
		Success:       true,
		ExistingCount: before,
		OnlineCount:   len(fetched.Entities),
		SearchStats:   fetched.Stats,
		Dedupe:        fetched.Dedupe,
		TimedOut:      fetched.TimedOut,
		Pharmacies:    []reconcile.Action{},
	}

	if len(fetched.Entities) == 0 {
		res.noResults()
	} else {
		r.transition(StateReconciling)
		t0 := h.opts.Now()
		engine := reconcile.New(h.store, h.opts.Reconcile)
		rep := engine.Reconcile(ctx, dbCity.ID, fetched.Entities)
		r.record(StateReconciling, t0, rep.Processed(), false)

		after, err := h.store.CountActive(ctx, dbCity.ID)
		if err != nil {
			h.log.Warn("harvest: count after reconcile failed", zap.String("city", city.Slug), zap.Error(err))
			after = before + rep.Created
		}
		res.applyReport(rep, after)
	}

	r.transition(StateDone)
	res.State = StateDone
	res.States = r.states
	res.Stages = r.stages
	res.finish(start, h.opts.Now())

	h.finishRun(ctx, runID, model.RunStatusDone, res)
	h.log.Info("harvest: sync complete",
		zap.String("city", city.Slug),
		zap.Int("online", res.OnlineCount),
		zap.Int("created", res.Created),
		zap.Int("updated", res.Updated),
		zap.Int("errors", res.Errors),
		zap.Bool("timed_out", res.TimedOut),
	)
	return res, nil
}

// storeUnavailable tags err with ErrStoreUnavailable, keeping the cause text.
func storeUnavailable(err error) error {
	return eris.Wrapf(ErrStoreUnavailable, "%v", err)
}

func (h *Harvester) resolve(slug string) (registry.City, error) {
	city, ok := h.cities.Lookup(slug)
	if !ok || !city.HasCoords() {
		return registry.City{}, eris.Wrapf(ErrMissingCity, "harvest: %q", slug)
	}
	return city, nil
}

// startRun records the run. Bookkeeping failures never block a harvest.
func (h *Harvester) startRun(ctx context.Context, slug string) string {
	run, err := h.store.CreateRun(ctx, slug)
	if err != nil {
		h.log.Warn("harvest: record run start failed", zap.String("city", slug), zap.Error(err))
		return ""
	}
	return run.ID
}

func (h *Harvester) finishRun(ctx context.Context, runID string, status model.RunStatus, res *Result) {
	if runID == "" {
		return
	}
	if err := h.store.CompleteRun(context.WithoutCancel(ctx), runID, status, res); err != nil {
		h.log.Warn("harvest: record run completion failed", zap.String("run_id", runID), zap.Error(err))
	}
}

// run is the mutable state of one invocation.
type run struct {
	city     registry.City
	area     geo.Area
	box      geo.Box
	deadline time.Time
	now      func() time.Time
	state    State
	states   []State
	stages   []StageStat
	timedOut atomic.Bool
	log      *zap.Logger
}

func (h *Harvester) newRun(city registry.City) *run {
	now := h.opts.Now()
	return &run{
		city:     city,
		area:     city.Area(),
		box:      h.opts.CountryBox,
		deadline: now.Add(h.opts.Deadline),
		now:      h.opts.Now,
		state:    StateIdle,
		states:   []State{StateIdle},
		log:      h.log.With(zap.String("city", city.Slug)),
	}
}

func (r *run) transition(to State) {
	if !CanTransition(r.state, to) {
		r.log.Error("harvest: illegal state transition", zap.String("from", string(r.state)), zap.String("to", string(to)))
		return
	}
	r.log.Debug("harvest: state", zap.String("from", string(r.state)), zap.String("to", string(to)))
	r.state = to
	r.states = append(r.states, to)
}

// expired reports whether new work may no longer start. Safe for concurrent use.
func (r *run) expired(ctx context.Context) bool {
	if ctx.Err() == nil && r.now().Before(r.deadline) {
		return false
	}
	if !r.timedOut.Swap(true) {
		r.log.Warn("harvest: deadline reached, returning partial results")
	}
	return true
}

func (r *run) record(s State, start time.Time, n int, skipped bool) {
	r.stages = append(r.stages, StageStat{
		State:      s,
		Candidates: n,
		Duration:   r.now().Sub(start),
		Skipped:    skipped,
	})
}

// stage enters s and runs fn unless the deadline has passed and the stage
// fetches new data.
func (r *run) stage(ctx context.Context, s State, fetches bool, fn func() int) {
	r.transition(s)
	start := r.now()
	if fetches && r.expired(ctx) {
		r.record(s, start, 0, true)
		return
	}
	r.record(s, start, fn(), false)
}
