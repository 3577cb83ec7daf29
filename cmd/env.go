package main

import (
	"context"
	"net/http"
	"time"

	"github.com/rotisserie/eris"
	"github.com/twpayne/go-geom"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/sells-group/pharmacy-harvester/internal/config"
	"github.com/sells-group/pharmacy-harvester/internal/fetcher"
	"github.com/sells-group/pharmacy-harvester/internal/geo"
	"github.com/sells-group/pharmacy-harvester/internal/harvest"
	"github.com/sells-group/pharmacy-harvester/internal/model"
	"github.com/sells-group/pharmacy-harvester/internal/provider"
	"github.com/sells-group/pharmacy-harvester/internal/registry"
	"github.com/sells-group/pharmacy-harvester/internal/resilience"
	"github.com/sells-group/pharmacy-harvester/internal/store"
	"github.com/sells-group/pharmacy-harvester/internal/textract"
	"github.com/sells-group/pharmacy-harvester/pkg/foursquare"
	"github.com/sells-group/pharmacy-harvester/pkg/google"
	"github.com/sells-group/pharmacy-harvester/pkg/here"
	"github.com/sells-group/pharmacy-harvester/pkg/overpass"
	"github.com/sells-group/pharmacy-harvester/pkg/tomtom"
)

// harvestEnv holds the store, the city registry and the harvester needed by
// the harvest/bootstrap/serve commands.
type harvestEnv struct {
	Store     store.Store
	Cities    *registry.Cities
	Harvester *harvest.Harvester
	Breakers  *resilience.ServiceBreakers
}

// Close releases resources held by the environment.
func (e *harvestEnv) Close() {
	if e.Store != nil {
		_ = e.Store.Close()
	}
}

// initEnv validates cfg for scope, opens and migrates the store, and builds
// the harvester. Callers should defer env.Close().
func initEnv(ctx context.Context, c *config.Config, scope string) (*harvestEnv, error) {
	if err := c.Validate(scope); err != nil {
		return nil, err
	}

	cities, err := registry.Load(c.Harvest.CitiesFile)
	if err != nil {
		return nil, err
	}

	st, err := initStore(ctx, c)
	if err != nil {
		return nil, err
	}
	if err := st.Migrate(ctx); err != nil {
		_ = st.Close()
		return nil, eris.Wrap(err, "migrate store")
	}

	env := &harvestEnv{
		Store:    st,
		Cities:   cities,
		Breakers: resilience.NewServiceBreakers(resilience.FromCircuitConfig(c.Circuit.FailureThreshold, c.Circuit.ResetTimeoutSecs)),
	}

	var boundary *geom.Polygon
	if c.Harvest.BoundaryShapefile != "" {
		poly, err := geo.LoadBoundary(c.Harvest.BoundaryShapefile)
		if err != nil {
			zap.L().Warn("boundary shapefile unusable, falling back to bounding box",
				zap.String("path", c.Harvest.BoundaryShapefile), zap.Error(err))
		} else {
			boundary = poly
		}
	}

	src := buildSources(c, env.Breakers)
	planner := buildPlanner(c, cities)
	env.Harvester = harvest.New(cities, planner, src, st, harvest.Options{
		Deadline:         c.Harvest.Deadline,
		Concurrency:      c.Harvest.Concurrency,
		CityClipFactor:   c.Harvest.CityClipFactor,
		GeocodePacing:    c.Harvest.GeocodePacing,
		GeocodeLang:      firstLang(c.Harvest.Languages),
		CountryName:      c.Harvest.CountryName,
		CountryNameLocal: c.Harvest.CountryNameLocal,
		Boundary:         boundary,
	})

	zap.L().Info("harvest environment ready",
		zap.String("store", c.Store.Driver),
		zap.Int("cities", len(cities.All())),
		zap.Int("primary_providers", len(provider.Enabled(src.Primary))),
		zap.Int("secondary_providers", len(provider.Enabled(src.Secondary))),
		zap.Int("documents", len(src.Documents)),
	)
	return env, nil
}

// initStore opens the configured store backend.
func initStore(ctx context.Context, c *config.Config) (store.Store, error) {
	switch c.Store.Driver {
	case "", "sqlite":
		dsn := c.Store.DatabaseURL
		if dsn == "" {
			dsn = "pharmacies.db"
		}
		return store.NewSQLite(dsn)
	case "postgres":
		return store.NewPostgres(ctx, c.Store.DatabaseURL, &store.PoolConfig{
			MaxConns: c.Store.MaxConns,
			MinConns: c.Store.MinConns,
		})
	default:
		return nil, eris.Errorf("unsupported store driver: %s", c.Store.Driver)
	}
}

// newCaller builds the per-provider call policy: rate limit, breaker, timeout
// and linear retry.
func newCaller(c *config.Config, breakers *resilience.ServiceBreakers, name string, perSecond float64, timeout time.Duration) *provider.Caller {
	opts := provider.CallerOptions{
		Timeout:  c.Harvest.CallTimeout,
		Retry:    resilience.FromRetryConfig(c.Harvest.Retries, c.Harvest.RetryBackoff),
		Breaker:  breakers.Get(name),
		Breakers: breakers,
	}
	if timeout > 0 {
		opts.Timeout = timeout
	}
	if perSecond > 0 {
		opts.Limiter = rate.NewLimiter(rate.Limit(perSecond), 1)
	}
	return provider.NewCaller(name, opts)
}

// buildSources wires every adapter. A provider without credentials gets a nil
// client and reports itself disabled.
func buildSources(c *config.Config, breakers *resilience.ServiceBreakers) harvest.Sources {
	var gc google.Client
	if c.Google.Key != "" {
		gc = google.NewClient(c.Google.Key, google.WithUserAgent(c.UserAgent))
	}
	var fc foursquare.Client
	if c.Foursquare.Key != "" {
		fc = foursquare.NewClient(c.Foursquare.Key)
	}
	var hc here.Client
	if c.HERE.Key != "" {
		hc = here.NewClient(c.HERE.Key)
	}
	var tc tomtom.Client
	if c.TomTom.Key != "" {
		tc = tomtom.NewClient(c.TomTom.Key)
	}

	overpassHTTP := &http.Client{Timeout: c.Harvest.OverpassTimeout}
	mirrors := make([]overpass.Client, 0, len(c.Overpass.Endpoints))
	for _, ep := range c.Overpass.Endpoints {
		mirrors = append(mirrors, overpass.NewClient(ep,
			overpass.WithHTTPClient(overpassHTTP),
			overpass.WithUserAgent(c.UserAgent),
		))
	}
	osm := provider.NewOSM(mirrors, newCaller(c, breakers, "osm", 0, c.Harvest.OverpassTimeout), c.Harvest.CountryISO)

	places := provider.NewGoogle(gc, newCaller(c, breakers, "google", c.Google.RateLimit, 0), provider.GoogleOptions{
		PageDelay:    c.Google.PageDelay,
		QuotaBackoff: c.Google.QuotaBackoff,
		QuotaRetries: c.Google.QuotaRetries,
		FetchDetails: c.Google.FetchDetails,
		Region:       c.Google.Region,
	})

	docFetcher := fetcher.NewHTTPFetcher(fetcher.HTTPOptions{
		UserAgent: c.UserAgent,
		Timeout:   c.Harvest.CallTimeout,
		Retry:     resilience.FromRetryConfig(c.Harvest.Retries, c.Harvest.RetryBackoff),
	})
	pdf := textract.NewPdfToText(c.Registry.PdfToTextPath)

	return harvest.Sources{
		Primary: []provider.Provider{osm, places},
		Secondary: []provider.Provider{
			provider.NewFoursquare(fc, newCaller(c, breakers, "foursquare", c.Foursquare.RateLimit, 0)),
			provider.NewHERE(hc, newCaller(c, breakers, "here", c.HERE.RateLimit, 0)),
			provider.NewTomTom(tc, newCaller(c, breakers, "tomtom", c.TomTom.RateLimit, 0), c.Harvest.CountryISO),
		},
		Documents: []provider.DocumentSource{
			provider.NewRegistryDocument(c.Registry.FZOURL, docFetcher, pdf),
			provider.NewMontefarmDocument(c.Registry.MontefarmURL, docFetcher),
			provider.NewBenuDocument(c.Registry.BenuURL, docFetcher),
		},
		Bounds: osm,
	}
}

// buildPlanner sizes the coverage planner from config. Municipality text
// queries cover every registered city.
func buildPlanner(c *config.Config, cities *registry.Cities) *geo.Planner {
	pc := geo.DefaultPlanConfig()
	if len(c.Harvest.Languages) > 0 {
		pc.Vocabulary.Languages = c.Harvest.Languages
	}
	if names := cities.Municipalities(); len(names) > 0 {
		pc.Vocabulary.Municipalities = names
	}
	if c.Harvest.GoogleRadiusM > 0 {
		pc.GridRadiusM = c.Harvest.GoogleRadiusM
	}
	if c.Harvest.ExpansionRadiusM > 0 {
		pc.ExpansionRadiusM = c.Harvest.ExpansionRadiusM
	}
	if c.Harvest.MaxExpansionSeeds > 0 {
		pc.MaxExpansionSeeds = c.Harvest.MaxExpansionSeeds
	}
	if c.Harvest.CompletenessThreshold > 0 {
		pc.CompletenessThreshold = c.Harvest.CompletenessThreshold
	}
	return geo.NewPlanner(pc, geo.NewHexGrid(c.Harvest.HexResolution))
}

func firstLang(langs []string) string {
	if len(langs) == 0 {
		return ""
	}
	return langs[0]
}

// storeCities converts registry entries to store rows.
func storeCities(cities *registry.Cities) []model.City {
	all := cities.All()
	out := make([]model.City, 0, len(all))
	for _, c := range all {
		out = append(out, model.City{Slug: c.Slug, NameME: c.NameME, NameEN: c.NameEN})
	}
	return out
}
