package main

import (
	"bytes"
	"context"
	"testing"
	"time"

	"github.com/spf13/cobra"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/pharmacy-harvester/internal/config"
	"github.com/sells-group/pharmacy-harvester/internal/model"
	"github.com/sells-group/pharmacy-harvester/internal/registry"
	"github.com/sells-group/pharmacy-harvester/internal/resilience"
)

func TestRootCommand_HasSubcommands(t *testing.T) {
	names := make(map[string]bool)
	for _, c := range rootCmd.Commands() {
		names[c.Name()] = true
	}

	for _, name := range []string{"harvest", "bootstrap", "cities", "status", "run", "migrate", "serve"} {
		assert.True(t, names[name], "expected subcommand %q not found", name)
	}
}

func TestRootCommand_Metadata(t *testing.T) {
	assert.Equal(t, "pharmacy-harvester", rootCmd.Use)
	assert.NotEmpty(t, rootCmd.Short)
	assert.NotEmpty(t, rootCmd.Long)
}

func TestApplyFlagOverrides(t *testing.T) {
	cmd := &cobra.Command{Use: "harvest"}
	parent := &cobra.Command{Use: "root"}
	addConfigFlags(parent)
	parent.AddCommand(cmd)
	require.NoError(t, parent.PersistentFlags().Parse([]string{"--cities", "me.yaml", "--store", "postgres"}))

	c := &config.Config{
		Store:   config.StoreConfig{Driver: "sqlite", DatabaseURL: "pharmacies.db"},
		Harvest: config.HarvestConfig{CitiesFile: "cities.yaml"},
		Export:  config.ExportConfig{Dir: "exports"},
	}
	applyFlagOverrides(cmd, c)

	assert.Equal(t, "me.yaml", c.Harvest.CitiesFile)
	assert.Equal(t, "postgres", c.Store.Driver)
	assert.Equal(t, "pharmacies.db", c.Store.DatabaseURL)
	assert.Equal(t, "exports", c.Export.Dir)
}

func TestHarvestCommand_Flags(t *testing.T) {
	flag := harvestCmd.Flags().Lookup("city")
	require.NotNil(t, flag)
	assert.Equal(t, []string{"true"}, flag.Annotations["cobra_annotation_bash_completion_one_required_flag"])

	dry := harvestCmd.Flags().Lookup("dry-run")
	require.NotNil(t, dry)
	assert.Equal(t, "false", dry.DefValue)
}

func TestBootstrapCommand_Flags(t *testing.T) {
	flag := bootstrapCmd.Flags().Lookup("delay")
	require.NotNil(t, flag)
	assert.Equal(t, "1.5s", flag.DefValue)

	require.NotNil(t, bootstrapCmd.Flags().Lookup("xlsx"))
}

func TestServeCommand_Flags(t *testing.T) {
	flag := serveCmd.Flags().Lookup("port")
	require.NotNil(t, flag)
	assert.Equal(t, "0", flag.DefValue)
}

func TestInitStore_UnknownDriver(t *testing.T) {
	_, err := initStore(context.Background(), &config.Config{Store: config.StoreConfig{Driver: "mysql"}})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unsupported store driver")
}

func TestInitEnv_SQLite(t *testing.T) {
	c := &config.Config{
		Store:    config.StoreConfig{Driver: "sqlite", DatabaseURL: t.TempDir() + "/env.db"},
		Server:   config.ServerConfig{Port: 8080},
		Harvest:  config.HarvestConfig{Concurrency: 2, Deadline: time.Minute, CityClipFactor: 3, HexResolution: 6, CountryISO: "ME"},
		Overpass: config.OverpassConfig{Endpoints: []string{"http://127.0.0.1:1/api/interpreter"}},
	}

	env, err := initEnv(context.Background(), c, "harvest")
	require.NoError(t, err)
	defer env.Close()

	assert.NotNil(t, env.Harvester)
	assert.NotEmpty(t, env.Cities.All())
}

func TestInitEnv_InvalidConfig(t *testing.T) {
	c := &config.Config{Store: config.StoreConfig{Driver: "postgres"}}
	_, err := initEnv(context.Background(), c, "store")
	require.Error(t, err)
}

func TestBuildSources_DisabledWithoutKeys(t *testing.T) {
	c := &config.Config{Harvest: config.HarvestConfig{CountryISO: "ME"}}
	src := buildSources(c, resilience.NewServiceBreakers(resilience.DefaultCircuitBreakerConfig()))

	require.Len(t, src.Primary, 2)
	for _, p := range src.Primary {
		assert.False(t, p.Enabled(), p.Name())
	}
	for _, p := range src.Secondary {
		assert.False(t, p.Enabled(), p.Name())
	}
	assert.Len(t, src.Documents, 3)
	assert.NotNil(t, src.Bounds)
}

func TestBuildSources_EnabledWithKeys(t *testing.T) {
	c := &config.Config{
		Harvest:    config.HarvestConfig{CountryISO: "ME"},
		Google:     config.GoogleConfig{Key: "g", RateLimit: 5},
		Foursquare: config.KeyConfig{Key: "f"},
		Overpass:   config.OverpassConfig{Endpoints: []string{"http://a", "http://b"}},
	}
	src := buildSources(c, resilience.NewServiceBreakers(resilience.DefaultCircuitBreakerConfig()))

	enabled := map[string]bool{}
	for _, p := range append(src.Primary, src.Secondary...) {
		enabled[p.Name()] = p.Enabled()
	}
	assert.True(t, enabled["osm"])
	assert.True(t, enabled["google"])
	assert.True(t, enabled["foursquare"])
	assert.False(t, enabled["here"])
	assert.False(t, enabled["tomtom"])
}

func TestStoreCities(t *testing.T) {
	cities, err := registry.Parse([]byte(`
cities:
  - {slug: bar, name_me: Bar, name_en: Bar, lat: 42.09, lng: 19.09, radius_m: 6000}
  - {slug: budva, name_me: Budva, name_en: Budva, lat: 42.28, lng: 18.84, radius_m: 5000}
`))
	require.NoError(t, err)

	got := storeCities(cities)
	assert.Equal(t, []model.City{
		{Slug: "bar", NameME: "Bar", NameEN: "Bar"},
		{Slug: "budva", NameME: "Budva", NameEN: "Budva"},
	}, got)
}

func TestFormatStatuses(t *testing.T) {
	last := time.Date(2026, 2, 3, 4, 5, 0, 0, time.UTC)
	var buf bytes.Buffer
	formatStatuses(&buf, []model.CityStatus{
		{Slug: "bar", Name: "Bar", PharmacyCount: 12, LastSync: &last},
		{Slug: "budva", Name: "Budva"},
	})

	out := buf.String()
	assert.Contains(t, out, "PHARMACIES")
	assert.Contains(t, out, "2026-02-03 04:05")
	assert.Contains(t, out, "never")
}

func TestFormatCities(t *testing.T) {
	var buf bytes.Buffer
	formatCities(&buf, []registry.City{
		{Slug: "bar", NameME: "Bar", NameEN: "Bar", Lat: 42.09, Lng: 19.09, RadiusM: 6000},
		{Slug: "ghost", NameME: "Ghost"},
	})

	out := buf.String()
	assert.Contains(t, out, "42.0900,19.0900")
	assert.Contains(t, out, "true")
	assert.Contains(t, out, "false")
}
