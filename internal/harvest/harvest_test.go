package harvest

import (
	"context"
	"errors"
	"path/filepath"
	"strconv"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/twpayne/go-geom"

	"github.com/sells-group/pharmacy-harvester/internal/geo"
	"github.com/sells-group/pharmacy-harvester/internal/model"
	"github.com/sells-group/pharmacy-harvester/internal/normalize"
	"github.com/sells-group/pharmacy-harvester/internal/provider"
	"github.com/sells-group/pharmacy-harvester/internal/registry"
	"github.com/sells-group/pharmacy-harvester/internal/store"
)

const testCities = `
cities:
  - { slug: podgorica, name_me: Podgorica, name_en: Podgorica, lat: 42.4304, lng: 19.2594, radius_m: 5000 }
  - { slug: ghost, name_me: Ghost, name_en: Ghost, lat: 0, lng: 0, radius_m: 0 }
aliases:
  pg: podgorica
`

type fakeProvider struct {
	name    string
	source  model.Source
	modes   []geo.Mode
	enabled bool
	fn      func(q geo.Query) []model.Candidate

	mu      sync.Mutex
	queries []geo.Query
}

func (f *fakeProvider) Name() string         { return f.name }
func (f *fakeProvider) Source() model.Source { return f.source }
func (f *fakeProvider) Enabled() bool        { return f.enabled }

func (f *fakeProvider) Supports(mode geo.Mode) bool {
	for _, m := range f.modes {
		if m == mode {
			return true
		}
	}
	return false
}

func (f *fakeProvider) Search(_ context.Context, q geo.Query) []model.Candidate {
	f.mu.Lock()
	f.queries = append(f.queries, q)
	f.mu.Unlock()
	if f.fn == nil {
		return nil
	}
	return f.fn(q)
}

func (f *fakeProvider) seen() []geo.Query {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]geo.Query(nil), f.queries...)
}

type fakeDocument struct {
	rows []model.RegistryRow
}

func (d fakeDocument) Name() string                               { return "fake" }
func (d fakeDocument) Rows(_ context.Context) []model.RegistryRow { return d.rows }

type fakeBounds struct {
	box   geo.Box
	calls int
}

func (b *fakeBounds) CountryBounds(_ context.Context) (geo.Box, bool) {
	b.calls++
	return b.box, true
}

type fixedTess []geo.Point

func (f fixedTess) Centroids(_ *geom.Polygon) []geo.Point { return f }

func cand(name string, lat, lng float64, src model.Source, placeID string) model.Candidate {
	return normalize.Candidate(normalize.Input{
		Name:    name,
		Address: "Bulevar Svetog Petra Cetinjskog 1",
		Lat:     &lat,
		Lng:     &lng,
		Source:  src,
		PlaceID: placeID,
	})
}

func smallPlan() geo.PlanConfig {
	return geo.PlanConfig{
		Vocabulary:            geo.Vocabulary{Languages: []string{"sr"}, Core: []string{"apoteka"}},
		BaselineLangs:         1,
		BaselineKeywords:      1,
		GridRadiusM:           2000,
		ExpansionRadiusM:      800,
		ExpansionKeywords:     0,
		MaxExpansionSeeds:     250,
		CompletenessThreshold: 0,
		OptionalQuery:         "pharmacy",
	}
}

func newTestStore(t *testing.T) *store.SQLiteStore {
	t.Helper()
	st, err := store.NewSQLite(filepath.Join(t.TempDir(), "harvest.db"))
	require.NoError(t, err)
	t.Cleanup(func() { st.Close() }) //nolint:errcheck
	require.NoError(t, st.Migrate(context.Background()))
	return st
}

func newHarvester(t *testing.T, plan geo.PlanConfig, tess geo.Tessellator, src Sources, st Store) *Harvester {
	t.Helper()
	cities, err := registry.Parse([]byte(testCities))
	require.NoError(t, err)
	return New(cities, geo.NewPlanner(plan, tess), src, st, Options{
		Concurrency:   4,
		GeocodePacing: -1,
	})
}

func TestSync_NoProvidersDegradesGracefully(t *testing.T) {
	st := newTestStore(t)
	h := newHarvester(t, geo.DefaultPlanConfig(), nil, Sources{
		Primary: []provider.Provider{
			provider.NewGoogle(nil, nil, provider.GoogleOptions{}),
			provider.NewOSM(nil, nil, "ME"),
		},
		Secondary: []provider.Provider{
			provider.NewFoursquare(nil, nil),
			provider.NewHERE(nil, nil),
			provider.NewTomTom(nil, nil, "MNE"),
		},
	}, st)

	res, err := h.Sync(context.Background(), "podgorica")
	require.NoError(t, err)

	assert.True(t, res.Success)
	assert.Equal(t, 0, res.OnlineCount)
	assert.Equal(t, NoResultsWarning, res.Warning)
	assert.NotEmpty(t, res.Recommendations)
	assert.Equal(t, StateDone, res.State)
	assert.Equal(t, []State{
		StateIdle, StateFetchingBaseline, StateExpandingSeeds, StateFetchingOptional,
		StateParsingRegistries, StateDeduping, StateDone,
	}, res.States)
	assert.NotEmpty(t, res.RunID)

	run, err := st.GetRun(context.Background(), res.RunID)
	require.NoError(t, err)
	assert.Equal(t, model.RunStatusDone, run.Status)
}

func TestSync_MissingCity(t *testing.T) {
	h := newHarvester(t, smallPlan(), nil, Sources{}, newTestStore(t))

	for _, slug := range []string{"atlantis", "ghost"} {
		res, err := h.Sync(context.Background(), slug)
		require.Error(t, err)
		assert.True(t, errors.Is(err, ErrMissingCity))
		require.NotNil(t, res)
		assert.Equal(t, StateFailed, res.State)
		assert.False(t, res.Success)
	}
}

func TestSync_StoreUnavailable(t *testing.T) {
	st := newTestStore(t)
	h := newHarvester(t, smallPlan(), nil, Sources{}, st)
	require.NoError(t, st.Close())

	res, err := h.Sync(context.Background(), "podgorica")
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrStoreUnavailable))
	assert.False(t, errors.Is(err, ErrMissingCity))
	require.NotNil(t, res)
	assert.Equal(t, StateFailed, res.State)
	assert.False(t, res.Success)
	assert.Zero(t, res.OnlineCount)
}

func TestSync_DedupesAndReconcilesIdempotently(t *testing.T) {
	st := newTestStore(t)

	osm := &fakeProvider{
		name: "osm", source: model.SourceOSM, enabled: true,
		modes: []geo.Mode{geo.Country},
		fn: func(geo.Query) []model.Candidate {
			c := cand("Apoteka Sloboda", 42.4410, 19.2630, model.SourceOSM, "")
			c.NativeType, c.NativeID = "node", "11"
			return []model.Candidate{c}
		},
	}
	google := &fakeProvider{
		name: "google", source: model.SourceGoogle, enabled: true,
		modes: []geo.Mode{geo.Nearby, geo.Text},
		fn: func(q geo.Query) []model.Candidate {
			a := cand("Apoteka Centar", 42.4300, 19.2600, model.SourceGoogle, "place-1")
			b := cand("Apoteka Centar", 42.4300, 19.2600, model.SourceGoogle, "place-1")
			b.Address = strings.ToUpper(a.Address)
			far := cand("Apoteka Daleko", 42.0900, 19.0900, model.SourceGoogle, "place-far")
			return []model.Candidate{a, b, far}
		},
	}

	h := newHarvester(t, smallPlan(), nil, Sources{Primary: []provider.Provider{osm, google}}, st)

	first, err := h.Sync(context.Background(), "pg")
	require.NoError(t, err)
	assert.Equal(t, 2, first.OnlineCount, "duplicate place id collapses and the far entity is clipped")
	assert.Equal(t, 2, first.Created)
	assert.Equal(t, 0, first.Updated)
	assert.Equal(t, 0, first.Errors)
	require.NotNil(t, first.Coverage)
	assert.Equal(t, "New data", first.Coverage.Improvement)
	assert.Equal(t, 2, first.Coverage.After)

	second, err := h.Sync(context.Background(), "podgorica")
	require.NoError(t, err)
	assert.Equal(t, 0, second.Created)
	assert.Equal(t, 2, second.Updated)
	assert.Equal(t, "0%", second.Coverage.Improvement)

	var centar string
	for _, a := range first.Pharmacies {
		if a.ExternalID == "place-1" {
			centar = a.Address
		}
	}
	assert.Equal(t, "Bulevar Svetog Petra Cetinjskog 1", centar, "first-seen candidate wins")
}

func TestFetch_ExpansionCapped(t *testing.T) {
	plan := smallPlan()
	plan.MaxExpansionSeeds = 5

	osm := &fakeProvider{
		name: "osm", source: model.SourceOSM, enabled: true,
		modes: []geo.Mode{geo.Country},
		fn: func(geo.Query) []model.Candidate {
			out := make([]model.Candidate, 0, 50)
			for i := range 50 {
				c := cand("Apoteka", 42.40+float64(i)*0.001, 19.25, model.SourceOSM, "")
				c.NativeType, c.NativeID = "node", strconv.Itoa(i)
				out = append(out, c)
			}
			return out
		},
	}
	nearby := &fakeProvider{
		name: "google", source: model.SourceGoogle, enabled: true,
		modes: []geo.Mode{geo.Nearby},
	}

	h := newHarvester(t, plan, nil, Sources{Primary: []provider.Provider{osm, nearby}}, nil)
	_, err := h.Fetch(context.Background(), "podgorica")
	require.NoError(t, err)

	centers := map[string]bool{}
	for _, q := range nearby.seen() {
		if q.RadiusM == plan.ExpansionRadiusM {
			centers[q.Center.Key()] = true
		}
	}
	assert.Len(t, centers, 5)
}

func TestFetch_CountrySweepWhenBaselineThin(t *testing.T) {
	plan := smallPlan()
	plan.CompletenessThreshold = 15
	plan.MaxExpansionSeeds = 0

	nearby := &fakeProvider{
		name: "google", source: model.SourceGoogle, enabled: true,
		modes: []geo.Mode{geo.Nearby},
	}
	bounds := &fakeBounds{box: geo.Box{MinLat: 41.8, MinLng: 18.4, MaxLat: 43.6, MaxLng: 20.4}}
	tess := fixedTess{{Lat: 42.1, Lng: 19.1}, {Lat: 42.8, Lng: 19.5}}

	h := newHarvester(t, plan, tess, Sources{Primary: []provider.Provider{nearby}, Bounds: bounds}, nil)
	_, err := h.Fetch(context.Background(), "podgorica")
	require.NoError(t, err)

	grid := 0
	for _, q := range nearby.seen() {
		if q.RadiusM == plan.GridRadiusM {
			grid++
		}
	}
	assert.Equal(t, 2, grid)
	assert.Equal(t, 1, bounds.calls)
}

func TestFetch_RegistryRowsGeocoded(t *testing.T) {
	text := &fakeProvider{
		name: "google", source: model.SourceGoogle, enabled: true,
		modes: []geo.Mode{geo.Text},
		fn: func(q geo.Query) []model.Candidate {
			if !strings.Contains(q.Text, "Kruna") {
				return nil
			}
			c := cand("Kruna Pharmacy", 42.4350, 19.2650, model.SourceGoogle, "place-kruna")
			c.Website = "https://kruna.me"
			return []model.Candidate{c}
		},
	}
	docs := []provider.DocumentSource{fakeDocument{rows: []model.RegistryRow{
		{Source: model.SourceRegistry, Name: "Kruna", City: "Podgorica", Phones: []string{"020 123 456"}},
		{Source: model.SourceRegistry, Raw: "unparseable line"},
	}}}

	h := newHarvester(t, smallPlan(), nil, Sources{Primary: []provider.Provider{text}, Documents: docs}, nil)
	out, err := h.Fetch(context.Background(), "podgorica")
	require.NoError(t, err)

	require.Len(t, out.Entities, 1)
	e := out.Entities[0]
	assert.Equal(t, "Kruna", e.NameLocal)
	assert.Equal(t, model.SourceRegistry, e.Source)
	assert.Equal(t, model.SourceGoogle, e.CoordSource)
	assert.Equal(t, "020 123 456", e.Phone)
	assert.Equal(t, "https://kruna.me", e.Website)
	assert.Equal(t, "place-kruna", e.PlaceID)

	var texts []string
	for _, q := range text.seen() {
		texts = append(texts, q.Text)
	}
	assert.Contains(t, texts, "Apoteka Kruna Podgorica, Montenegro")
}

func TestFetch_DeadlineStopsNewWork(t *testing.T) {
	google := &fakeProvider{
		name: "google", source: model.SourceGoogle, enabled: true,
		modes: []geo.Mode{geo.Nearby, geo.Text},
	}
	h := newHarvester(t, smallPlan(), nil, Sources{Primary: []provider.Provider{google}}, nil)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	out, err := h.Fetch(ctx, "podgorica")
	require.NoError(t, err)
	assert.True(t, out.TimedOut)
	assert.Empty(t, google.seen())
	assert.Empty(t, out.Entities)
	for _, s := range out.Stages {
		if s.State != StateDeduping {
			assert.True(t, s.Skipped, s.State)
		}
	}
}

func TestCanTransition(t *testing.T) {
	assert.True(t, CanTransition(StateIdle, StateFetchingBaseline))
	assert.True(t, CanTransition(StateDeduping, StateDone))
	assert.True(t, CanTransition(StateIdle, StateFailed))
	assert.False(t, CanTransition(StateReconciling, StateFailed))
	assert.False(t, CanTransition(StateDeduping, StateFetchingBaseline))
	assert.False(t, CanTransition(StateDone, StateDone))
}

func TestSearchStats(t *testing.T) {
	mk := func(score int) model.Entity {
		return model.Entity{Candidate: model.Candidate{Reliability: score}}
	}
	st := searchStats([]model.Entity{mk(90), mk(80), mk(65), mk(50)}, 0)
	assert.Equal(t, 4, st.TotalFound)
	assert.Equal(t, 2, st.HighQuality)
	assert.Equal(t, 1, st.MediumQuality)
	assert.Equal(t, 1, st.LowQuality)
	assert.Equal(t, 2, st.RequiresReview)
	assert.Equal(t, 71, st.AvgReliability)
}
