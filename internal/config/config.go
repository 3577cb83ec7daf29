package config

import (
	"strings"
	"time"

	"github.com/rotisserie/eris"
	"github.com/spf13/viper"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Config holds the full application configuration.
type Config struct {
	Store      StoreConfig    `yaml:"store" mapstructure:"store"`
	Log        LogConfig      `yaml:"log" mapstructure:"log"`
	Server     ServerConfig   `yaml:"server" mapstructure:"server"`
	Harvest    HarvestConfig  `yaml:"harvest" mapstructure:"harvest"`
	Google     GoogleConfig   `yaml:"google" mapstructure:"google"`
	Foursquare KeyConfig      `yaml:"foursquare" mapstructure:"foursquare"`
	HERE       KeyConfig      `yaml:"here" mapstructure:"here"`
	TomTom     KeyConfig      `yaml:"tomtom" mapstructure:"tomtom"`
	Overpass   OverpassConfig `yaml:"overpass" mapstructure:"overpass"`
	Registry   RegistryConfig `yaml:"registry" mapstructure:"registry"`
	Circuit    CircuitConfig  `yaml:"circuit" mapstructure:"circuit"`
	Export     ExportConfig   `yaml:"export" mapstructure:"export"`
	UserAgent  string         `yaml:"user_agent" mapstructure:"user_agent"`
}

// StoreConfig configures the database backend.
type StoreConfig struct {
	Driver      string `yaml:"driver" mapstructure:"driver"`
	DatabaseURL string `yaml:"database_url" mapstructure:"database_url"`
	MaxConns    int32  `yaml:"max_conns" mapstructure:"max_conns"`
	MinConns    int32  `yaml:"min_conns" mapstructure:"min_conns"`
}

// LogConfig configures logging.
type LogConfig struct {
	Level  string `yaml:"level" mapstructure:"level"`
	Format string `yaml:"format" mapstructure:"format"`
}

// ServerConfig configures the HTTP server.
type ServerConfig struct {
	Port        int      `yaml:"port" mapstructure:"port"`
	CORSOrigins []string `yaml:"cors_origins" mapstructure:"cors_origins"`
}

// HarvestConfig tunes one city run.
type HarvestConfig struct {
	Deadline              time.Duration `yaml:"deadline" mapstructure:"deadline"`
	Concurrency           int           `yaml:"concurrency" mapstructure:"concurrency"`
	Retries               int           `yaml:"retries" mapstructure:"retries"`
	RetryBackoff          time.Duration `yaml:"retry_backoff" mapstructure:"retry_backoff"`
	CallTimeout           time.Duration `yaml:"call_timeout" mapstructure:"call_timeout"`
	OverpassTimeout       time.Duration `yaml:"overpass_timeout" mapstructure:"overpass_timeout"`
	HexResolution         int           `yaml:"hex_resolution" mapstructure:"hex_resolution"`
	GoogleRadiusM         int           `yaml:"google_radius_m" mapstructure:"google_radius_m"`
	ExpansionRadiusM      int           `yaml:"expansion_radius_m" mapstructure:"expansion_radius_m"`
	MaxExpansionSeeds     int           `yaml:"max_expansion_seeds" mapstructure:"max_expansion_seeds"`
	CompletenessThreshold int           `yaml:"completeness_threshold" mapstructure:"completeness_threshold"`
	CityClipFactor        float64       `yaml:"city_clip_factor" mapstructure:"city_clip_factor"`
	GeocodePacing         time.Duration `yaml:"geocode_pacing" mapstructure:"geocode_pacing"`
	CountryISO            string        `yaml:"country_iso" mapstructure:"country_iso"`
	CountryName           string        `yaml:"country_name" mapstructure:"country_name"`
	CountryNameLocal      string        `yaml:"country_name_local" mapstructure:"country_name_local"`
	BoundaryShapefile     string        `yaml:"boundary_shapefile" mapstructure:"boundary_shapefile"`
	CitiesFile            string        `yaml:"cities_file" mapstructure:"cities_file"`
	Languages             []string      `yaml:"languages" mapstructure:"languages"`
}

// GoogleConfig holds Places API settings.
type GoogleConfig struct {
	Key          string        `yaml:"key" mapstructure:"key"`
	FetchDetails bool          `yaml:"fetch_details" mapstructure:"fetch_details"`
	PageDelay    time.Duration `yaml:"page_delay" mapstructure:"page_delay"`
	QuotaBackoff time.Duration `yaml:"quota_backoff" mapstructure:"quota_backoff"`
	QuotaRetries int           `yaml:"quota_retries" mapstructure:"quota_retries"`
	RateLimit    float64       `yaml:"rate_limit" mapstructure:"rate_limit"`
	Region       string        `yaml:"region" mapstructure:"region"`
}

// KeyConfig holds a single API credential.
type KeyConfig struct {
	Key       string  `yaml:"key" mapstructure:"key"`
	RateLimit float64 `yaml:"rate_limit" mapstructure:"rate_limit"`
}

// OverpassConfig lists Overpass mirrors tried in order.
type OverpassConfig struct {
	Endpoints []string `yaml:"endpoints" mapstructure:"endpoints"`
}

// RegistryConfig locates the registry and chain documents.
type RegistryConfig struct {
	FZOURL        string `yaml:"fzo_url" mapstructure:"fzo_url"`
	MontefarmURL  string `yaml:"montefarm_url" mapstructure:"montefarm_url"`
	BenuURL       string `yaml:"benu_url" mapstructure:"benu_url"`
	PdfToTextPath string `yaml:"pdftotext_path" mapstructure:"pdftotext_path"`
}

// CircuitConfig configures per-provider circuit breakers.
type CircuitConfig struct {
	FailureThreshold int `yaml:"failure_threshold" mapstructure:"failure_threshold"`
	ResetTimeoutSecs int `yaml:"reset_timeout_secs" mapstructure:"reset_timeout_secs"`
}

// ExportConfig configures bootstrap artifacts.
type ExportConfig struct {
	Dir string `yaml:"dir" mapstructure:"dir"`
}

// Load reads configuration from file and environment.
func Load() (*Config, error) {
	v := viper.New()

	// Config file
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")

	// Environment
	v.SetEnvPrefix("PHARMACY")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// Defaults
	v.SetDefault("store.driver", "sqlite")
	v.SetDefault("store.database_url", "pharmacies.db")
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "json")
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.cors_origins", []string{"*"})
	v.SetDefault("harvest.deadline", 6*time.Minute)
	v.SetDefault("harvest.concurrency", 8)
	v.SetDefault("harvest.retries", 2)
	v.SetDefault("harvest.retry_backoff", 500*time.Millisecond)
	v.SetDefault("harvest.call_timeout", 12*time.Second)
	v.SetDefault("harvest.overpass_timeout", 60*time.Second)
	v.SetDefault("harvest.hex_resolution", 6)
	v.SetDefault("harvest.google_radius_m", 2000)
	v.SetDefault("harvest.expansion_radius_m", 800)
	v.SetDefault("harvest.max_expansion_seeds", 250)
	v.SetDefault("harvest.completeness_threshold", 15)
	v.SetDefault("harvest.city_clip_factor", 3.0)
	v.SetDefault("harvest.geocode_pacing", 120*time.Millisecond)
	v.SetDefault("harvest.country_iso", "ME")
	v.SetDefault("harvest.country_name", "Montenegro")
	v.SetDefault("harvest.country_name_local", "Crna Gora")
	v.SetDefault("harvest.languages", []string{"sr", "en"})
	v.SetDefault("google.fetch_details", true)
	v.SetDefault("google.page_delay", 2300*time.Millisecond)
	v.SetDefault("google.quota_backoff", 6*time.Second)
	v.SetDefault("google.quota_retries", 3)
	v.SetDefault("google.rate_limit", 10.0)
	v.SetDefault("google.region", "me")
	v.SetDefault("foursquare.rate_limit", 5.0)
	v.SetDefault("here.rate_limit", 5.0)
	v.SetDefault("tomtom.rate_limit", 5.0)
	v.SetDefault("overpass.endpoints", []string{
		"https://overpass-api.de/api/interpreter",
		"https://overpass.kumi.systems/api/interpreter",
	})
	v.SetDefault("registry.pdftotext_path", "pdftotext")
	v.SetDefault("circuit.failure_threshold", 5)
	v.SetDefault("circuit.reset_timeout_secs", 60)
	v.SetDefault("export.dir", "exports")
	v.SetDefault("user_agent", "pharmacy-harvester/1.0")

	// Read config file (optional)
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, eris.Wrap(err, "config: read file")
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, eris.Wrap(err, "config: unmarshal")
	}

	return &cfg, nil
}

// Validate checks the settings a command needs. Scopes: "store", "harvest",
// "serve".
func (c *Config) Validate(scope string) error {
	var missing []string

	switch scope {
	case "store":
	case "harvest":
		if c.Harvest.Concurrency < 1 || c.Harvest.Concurrency > 64 {
			return eris.Errorf("config: harvest.concurrency must be between 1 and 64, got %d", c.Harvest.Concurrency)
		}
		if c.Harvest.Deadline <= 0 {
			return eris.New("config: harvest.deadline must be positive")
		}
		if c.Harvest.CityClipFactor <= 0 {
			return eris.New("config: harvest.city_clip_factor must be positive")
		}
	case "serve":
		if c.Server.Port <= 0 || c.Server.Port > 65535 {
			return eris.Errorf("config: server.port must be between 1 and 65535, got %d", c.Server.Port)
		}
		if err := c.Validate("harvest"); err != nil {
			return err
		}
	default:
		return eris.Errorf("config: unknown validation scope %q", scope)
	}

	switch c.Store.Driver {
	case "sqlite", "":
	case "postgres":
		if c.Store.DatabaseURL == "" {
			missing = append(missing, "store.database_url")
		}
	default:
		return eris.Errorf("config: unknown store driver %q", c.Store.Driver)
	}

	if len(missing) > 0 {
		return eris.Errorf("config: missing required fields for %s: %s", scope, strings.Join(missing, ", "))
	}
	return nil
}

// InitLogger initializes the global zap logger.
func InitLogger(cfg LogConfig) error {
	var zapCfg zap.Config
	if cfg.Format == "console" {
		zapCfg = zap.NewDevelopmentConfig()
	} else {
		zapCfg = zap.NewProductionConfig()
	}

	level, err := zapcore.ParseLevel(cfg.Level)
	if err != nil {
		return eris.Wrap(err, "config: parse log level")
	}
	zapCfg.Level.SetLevel(level)

	logger, err := zapCfg.Build()
	if err != nil {
		return eris.Wrap(err, "config: build logger")
	}
	zap.ReplaceGlobals(logger)

	return nil
}
