// Package reconcile matches deduplicated entities against persisted pharmacy
// records and decides create or update for each one.
package reconcile

import (
	"context"
	"fmt"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/pharmacy-harvester/internal/geo"
	"github.com/sells-group/pharmacy-harvester/internal/model"
	"github.com/sells-group/pharmacy-harvester/internal/normalize"
)

// Store is the persisted pharmacy collection. Find methods return (nil, nil)
// when nothing matches.
type Store interface {
	FindByExternalID(ctx context.Context, externalID string) (*model.Pharmacy, error)
	FindByCityAndName(ctx context.Context, cityID int64, nameKey string) (*model.Pharmacy, error)
	FindByBoundingBox(ctx context.Context, cityID int64, box geo.Box) ([]model.Pharmacy, error)
	Create(ctx context.Context, p *model.Pharmacy) error
	Update(ctx context.Context, p *model.Pharmacy) error
}

// Actions and match methods recorded in the action log.
const (
	ActionCreated = "created"
	ActionUpdated = "updated"
	ActionError   = "error"

	MatchExternalID  = "external_id"
	MatchName        = "name"
	MatchCoordinates = "coordinates"
)

// Options tunes matching.
type Options struct {
	// BoxDelta is the half-size of the proximity box in degrees. Default: 0.001.
	BoxDelta float64
	// ReviewThreshold flags entities scoring below it. Default: 70.
	ReviewThreshold int
	Now             func() time.Time
}

// Action is one entry of the per-entity log.
type Action struct {
	ID             int64               `json:"id,omitempty"`
	Name           string              `json:"name"`
	Action         string              `json:"action"`
	MatchMethod    string              `json:"matchMethod,omitempty"`
	ExternalID     string              `json:"google_place_id,omitempty"`
	Address        string              `json:"address,omitempty"`
	Phone          string              `json:"phone,omitempty"`
	Website        string              `json:"website,omitempty"`
	Lat            float64             `json:"lat"`
	Lng            float64             `json:"lng"`
	Reliability    int                 `json:"reliability"`
	RequiresReview bool                `json:"requiresReview"`
	Changes        []model.FieldChange `json:"changes"`
	Error          string              `json:"error,omitempty"`
}

// Report is the outcome of one reconciliation pass.
type Report struct {
	Created int      `json:"created"`
	Updated int      `json:"updated"`
	Errors  int      `json:"errors"`
	Actions []Action `json:"pharmacies"`
}

// Processed is the number of persisted entities.
func (r Report) Processed() int { return r.Created + r.Updated }

// Engine reconciles entities sequentially against a Store.
type Engine struct {
	store Store
	opts  Options
	log   *zap.Logger
}

// New creates an Engine.
func New(store Store, opts Options) *Engine {
	if opts.BoxDelta <= 0 {
		opts.BoxDelta = 0.001
	}
	if opts.ReviewThreshold <= 0 {
		opts.ReviewThreshold = 70
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	return &Engine{
		store: store,
		opts:  opts,
		log:   zap.L().With(zap.String("component", "reconcile")),
	}
}

// Reconcile processes ents in order. One failing entity is logged and counted
// without aborting the batch. Writes are strictly sequential so match-then-insert
// never races against itself.
func (e *Engine) Reconcile(ctx context.Context, cityID int64, ents []model.Entity) Report {
	rep := Report{Actions: make([]Action, 0, len(ents))}
	for i := range ents {
		if err := ctx.Err(); err != nil {
			e.log.Warn("reconcile: cancelled", zap.Int("remaining", len(ents)-i), zap.Error(err))
			rep.Errors += len(ents) - i
			break
		}

		act, err := e.one(ctx, cityID, ents[i])
		if err != nil {
			rep.Errors++
			act.Action = ActionError
			act.Error = err.Error()
			e.log.Warn("reconcile: entity failed",
				zap.String("name", act.Name),
				zap.String("external_id", act.ExternalID),
				zap.Error(err))
		}
		switch act.Action {
		case ActionCreated:
			rep.Created++
		case ActionUpdated:
			rep.Updated++
		}
		rep.Actions = append(rep.Actions, act)
	}
	return rep
}

func (e *Engine) one(ctx context.Context, cityID int64, ent model.Entity) (Action, error) {
	next := Pharmacy(ent, cityID, e.opts.Now())
	act := Action{
		Name:           next.NameLocal,
		ExternalID:     ent.PlaceID,
		Address:        next.Address,
		Phone:          ent.Phone,
		Website:        ent.Website,
		Reliability:    ent.Reliability,
		RequiresReview: ent.Reliability < e.opts.ReviewThreshold,
		Changes:        []model.FieldChange{},
	}
	if !ent.HasCoords() {
		return act, eris.New("reconcile: entity has no coordinates")
	}
	act.Lat, act.Lng = next.Lat, next.Lng

	existing, method, err := e.match(ctx, cityID, next)
	if err != nil {
		return act, err
	}

	if existing == nil {
		if err := e.store.Create(ctx, next); err != nil {
			return act, eris.Wrapf(err, "reconcile: create %q", next.NameLocal)
		}
		act.ID = next.ID
		act.Action = ActionCreated
		return act, nil
	}

	before := *existing
	act.Changes = model.Diff(&before, next)
	if act.Changes == nil {
		act.Changes = []model.FieldChange{}
	}
	next.ApplyTo(existing)
	if err := e.store.Update(ctx, existing); err != nil {
		return act, eris.Wrapf(err, "reconcile: update %d", existing.ID)
	}
	act.ID = existing.ID
	act.Action = ActionUpdated
	act.MatchMethod = method
	return act, nil
}

// match tries external id, then (city, normalized name), then the proximity box.
func (e *Engine) match(ctx context.Context, cityID int64, p *model.Pharmacy) (*model.Pharmacy, string, error) {
	if p.ExternalID != nil {
		found, err := e.store.FindByExternalID(ctx, *p.ExternalID)
		if err != nil {
			return nil, "", eris.Wrap(err, "reconcile: find by external id")
		}
		if found != nil {
			return found, MatchExternalID, nil
		}
	}

	found, err := e.store.FindByCityAndName(ctx, cityID, p.NameKey)
	if err != nil {
		return nil, "", eris.Wrap(err, "reconcile: find by name")
	}
	if found != nil {
		return found, MatchName, nil
	}

	d := e.opts.BoxDelta
	near, err := e.store.FindByBoundingBox(ctx, cityID, geo.Box{
		MinLat: p.Lat - d, MinLng: p.Lng - d,
		MaxLat: p.Lat + d, MaxLng: p.Lng + d,
	})
	if err != nil {
		return nil, "", eris.Wrap(err, "reconcile: find by bounding box")
	}
	if len(near) > 0 {
		return &near[0], MatchCoordinates, nil
	}
	return nil, "", nil
}

// Pharmacy maps an entity to the persisted shape for cityID, stamped with now.
func Pharmacy(ent model.Entity, cityID int64, now time.Time) *model.Pharmacy {
	name := orDefault(ent.NameLocal, model.UnknownName)
	p := &model.Pharmacy{
		CityID:        cityID,
		NameLocal:     name,
		NameSecondary: orDefault(ent.NameSecondary, name),
		NameKey:       normalize.Name(name),
		Address:       orDefault(ent.Address, model.UnknownAddress),
		Phone:         optional(ent.Phone),
		Email:         optional(ent.Email),
		Website:       optional(ent.Website),
		Is24h:         ent.Hours.Is24h,
		OpenSunday:    ent.Hours.OpenSunday,
		HoursMonFri:   orDefault(ent.Hours.MonFri, model.HoursUnknown),
		HoursSat:      orDefault(ent.Hours.Sat, model.HoursUnknown),
		HoursSun:      orDefault(ent.Hours.Sun, model.HoursUnknown),
		OpeningHours:  optional(ent.OpeningHours),
		ExternalID:    optional(ent.PlaceID),
		Rating:        ent.Rating,
		ReviewCount:   ent.ReviewCount,
		SourceType:    string(ent.Source),
		Reliability:   ent.Reliability,
		Active:        true,
	}
	if ent.HasCoords() {
		p.Lat, p.Lng = *ent.Lat, *ent.Lng
	}
	t := now.UTC()
	p.LastOnlineSync = &t
	return p
}

// Recommendations turns reconcile counts into operator hints.
func Recommendations(created, updated, errors, online int) []string {
	var rec []string
	if created > 0 {
		rec = append(rec, fmt.Sprintf("Successfully added %d new pharmacies to your database", created))
	}
	if updated > 0 {
		rec = append(rec, fmt.Sprintf("Updated %d existing pharmacies with fresh data", updated))
	}
	if errors > 0 {
		rate := 0
		if online > 0 {
			rate = roundPct(errors, online)
		}
		if rate > 20 {
			rec = append(rec, fmt.Sprintf("High error rate (%d%%) - check API quotas and DB schema", rate))
		} else {
			rec = append(rec, fmt.Sprintf("Minor processing errors (%d) - review error log", errors))
		}
	}
	switch {
	case online == 0:
		rec = append(rec, NoResultsRecommendations()...)
	case created == 0 && updated == 0:
		rec = append(rec, "No changes made - database may already be up to date")
	}
	if created+updated > 10 {
		rec = append(rec, "Large dataset processed - consider quality review")
	}
	if len(rec) == 0 {
		return []string{"Sync completed successfully"}
	}
	return rec
}

// NoResultsRecommendations are the hints for a run that found nothing.
func NoResultsRecommendations() []string {
	return []string{
		"Add/verify provider API keys (Google/HERE/TomTom/FSQ)",
		"Increase sweep radius or H3 resolution",
		"Re-run with higher MAX_EXPANSION_SEEDS",
	}
}

func roundPct(n, total int) int {
	return int(float64(n)/float64(total)*100 + 0.5)
}

func orDefault(s, def string) string {
	if s == "" {
		return def
	}
	return s
}

func optional(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}
