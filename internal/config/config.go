package config

import (
	"fmt"
	"strings"

	"github.com/rotisserie/eris"
	"github.com/spf13/viper"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Default remote sources. Boundaries come from the folium world-countries
// layer, falling back to the Natural Earth 1:110m admin-0 shapefile.
const (
	DefaultWorldGeoJSON   = "https://raw.githubusercontent.com/python-visualization/folium/main/examples/data/world-countries.json"
	DefaultNatEarthZip    = "https://naciscdn.org/naturalearth/110m/cultural/ne_110m_admin_0_countries.zip"
	DefaultObservations   = "data/life_expectancy.csv"
	DefaultGHOBaseURL     = "https://ghoapi.azureedge.net/api/"
	DefaultGHOIndicator   = "WHOSIS_000001"
	BoundaryTypeGeoJSON   = "geojson"
	BoundaryTypeShapefile = "shapefile"
)

// Config holds the full application configuration.
type Config struct {
	Log          LogConfig          `yaml:"log" mapstructure:"log"`
	Store        StoreConfig        `yaml:"store" mapstructure:"store"`
	Fetch        FetchConfig        `yaml:"fetch" mapstructure:"fetch"`
	Observations ObservationsConfig `yaml:"observations" mapstructure:"observations"`
	Boundary     BoundaryConfig     `yaml:"boundary" mapstructure:"boundary"`
	Classify     ClassifyConfig     `yaml:"classify" mapstructure:"classify"`
	Tables       TablesConfig       `yaml:"tables" mapstructure:"tables"`
	Precompute   PrecomputeConfig   `yaml:"precompute" mapstructure:"precompute"`
	Server       ServerConfig       `yaml:"server" mapstructure:"server"`
}

// LogConfig configures logging.
type LogConfig struct {
	Level  string `yaml:"level" mapstructure:"level"`
	Format string `yaml:"format" mapstructure:"format"`
}

// StoreConfig configures the rendered-map cache backend.
type StoreConfig struct {
	Driver      string `yaml:"driver" mapstructure:"driver"`
	DatabaseURL string `yaml:"database_url" mapstructure:"database_url"`
	MaxConns    int32  `yaml:"max_conns" mapstructure:"max_conns"`
	MinConns    int32  `yaml:"min_conns" mapstructure:"min_conns"`
	TTLHours    int    `yaml:"ttl_hours" mapstructure:"ttl_hours"`
}

// FetchConfig configures remote downloads.
type FetchConfig struct {
	TimeoutSecs      int    `yaml:"timeout_secs" mapstructure:"timeout_secs"`
	UserAgent        string `yaml:"user_agent" mapstructure:"user_agent"`
	MaxAttempts      int    `yaml:"max_attempts" mapstructure:"max_attempts"`
	InitialBackoffMs int    `yaml:"initial_backoff_ms" mapstructure:"initial_backoff_ms"`
	MaxBackoffMs     int    `yaml:"max_backoff_ms" mapstructure:"max_backoff_ms"`
	GHOBaseURL       string `yaml:"gho_base_url" mapstructure:"gho_base_url"`
	Indicator        string `yaml:"indicator" mapstructure:"indicator"`
}

// ObservationsConfig locates the indicator table and maps its columns.
type ObservationsConfig struct {
	Location string        `yaml:"location" mapstructure:"location"`
	Format   string        `yaml:"format" mapstructure:"format"`
	Sheet    string        `yaml:"sheet" mapstructure:"sheet"`
	Columns  ColumnsConfig `yaml:"columns" mapstructure:"columns"`
}

// ColumnsConfig names the source columns. Empty fields keep the GHO names.
type ColumnsConfig struct {
	DimensionType string `yaml:"dimension_type" mapstructure:"dimension_type"`
	CountryCode   string `yaml:"country_code" mapstructure:"country_code"`
	Period        string `yaml:"period" mapstructure:"period"`
	Category      string `yaml:"category" mapstructure:"category"`
	Value         string `yaml:"value" mapstructure:"value"`
}

// BoundaryConfig lists boundary layers in fallback order.
type BoundaryConfig struct {
	Sources  []BoundarySource `yaml:"sources" mapstructure:"sources"`
	IDKeys   []string         `yaml:"id_keys" mapstructure:"id_keys"`
	NameKeys []string         `yaml:"name_keys" mapstructure:"name_keys"`
	Exclude  []string         `yaml:"exclude" mapstructure:"exclude"`
}

// BoundarySource is one boundary layer.
type BoundarySource struct {
	Type     string `yaml:"type" mapstructure:"type"`
	Location string `yaml:"location" mapstructure:"location"`
}

// ClassifyConfig configures binning and labels.
type ClassifyConfig struct {
	Reference      []float64 `yaml:"reference" mapstructure:"reference"`
	HistogramBands []float64 `yaml:"histogram_bands" mapstructure:"histogram_bands"`
	Precision      int       `yaml:"precision" mapstructure:"precision"`
	NoDataLabel    string    `yaml:"no_data_label" mapstructure:"no_data_label"`
}

// TablesConfig points at a synonym/patch table file. Empty uses the embedded one.
type TablesConfig struct {
	Path string `yaml:"path" mapstructure:"path"`
}

// PrecomputeConfig configures the precompute command.
type PrecomputeConfig struct {
	Concurrency int `yaml:"concurrency" mapstructure:"concurrency"`
}

// ServerConfig configures the read API.
type ServerConfig struct {
	Port        int      `yaml:"port" mapstructure:"port"`
	CORSOrigins []string `yaml:"cors_origins" mapstructure:"cors_origins"`
}

// Load reads configuration from file and environment.
func Load() (*Config, error) {
	v := viper.New()

	// Config file
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")

	// Environment
	v.SetEnvPrefix("CHOROPLETH")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// Defaults
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "json")
	v.SetDefault("store.driver", "sqlite")
	v.SetDefault("store.database_url", "choropleth.db")
	v.SetDefault("store.max_conns", 4)
	v.SetDefault("store.min_conns", 1)
	v.SetDefault("store.ttl_hours", 24)
	v.SetDefault("fetch.timeout_secs", 60)
	v.SetDefault("fetch.user_agent", "choropleth-cli/1.0")
	v.SetDefault("fetch.max_attempts", 3)
	v.SetDefault("fetch.initial_backoff_ms", 500)
	v.SetDefault("fetch.max_backoff_ms", 30000)
	v.SetDefault("fetch.gho_base_url", DefaultGHOBaseURL)
	v.SetDefault("fetch.indicator", DefaultGHOIndicator)
	v.SetDefault("observations.location", DefaultObservations)
	v.SetDefault("boundary.sources", []map[string]any{
		{"type": BoundaryTypeGeoJSON, "location": DefaultWorldGeoJSON},
		{"type": BoundaryTypeShapefile, "location": DefaultNatEarthZip},
	})
	v.SetDefault("boundary.exclude", []string{"Antarctica"})
	v.SetDefault("classify.reference", []float64{50, 60, 70, 80, 87})
	v.SetDefault("classify.histogram_bands", []float64{40, 50, 60, 70, 80, 90})
	v.SetDefault("classify.precision", 1)
	v.SetDefault("classify.no_data_label", "No data")
	v.SetDefault("precompute.concurrency", 4)
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.cors_origins", []string{"*"})

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

// Validate checks the settings a command mode depends on. All problems are
// reported at once.
func (c *Config) Validate(mode string) error {
	var errs []string

	needsEngine := false
	needsStore := false
	switch mode {
	case "fetch":
		if c.Fetch.GHOBaseURL == "" {
			errs = append(errs, "fetch.gho_base_url is required")
		}
		if c.Fetch.Indicator == "" {
			errs = append(errs, "fetch.indicator is required")
		}
	case "build", "missing", "histogram":
		needsEngine = true
	case "precompute":
		needsEngine, needsStore = true, true
	case "serve":
		needsEngine, needsStore = true, true
		if c.Server.Port <= 0 {
			errs = append(errs, "server.port must be > 0")
		}
	default:
		return eris.Errorf("config: unknown mode %q", mode)
	}

	if needsEngine {
		errs = append(errs, c.validateEngine()...)
	}
	if needsStore {
		switch c.Store.Driver {
		case "sqlite", "postgres":
		default:
			errs = append(errs, fmt.Sprintf("store.driver %q must be sqlite or postgres", c.Store.Driver))
		}
		if c.Store.Driver == "postgres" && c.Store.DatabaseURL == "" {
			errs = append(errs, "store.database_url is required for postgres")
		}
		if c.Store.TTLHours < 0 {
			errs = append(errs, "store.ttl_hours must be >= 0")
		}
	}
	if mode == "precompute" && (c.Precompute.Concurrency < 1 || c.Precompute.Concurrency > 64) {
		errs = append(errs, "precompute.concurrency must be between 1 and 64")
	}

	if len(errs) > 0 {
		return eris.Errorf("config: %s", strings.Join(errs, "; "))
	}
	return nil
}

func (c *Config) validateEngine() []string {
	var errs []string
	if c.Observations.Location == "" {
		errs = append(errs, "observations.location is required")
	}
	if len(c.Boundary.Sources) == 0 {
		errs = append(errs, "boundary.sources must list at least one layer")
	}
	for i, s := range c.Boundary.Sources {
		if s.Type != BoundaryTypeGeoJSON && s.Type != BoundaryTypeShapefile {
			errs = append(errs, fmt.Sprintf("boundary.sources[%d].type %q must be geojson or shapefile", i, s.Type))
		}
		if s.Location == "" {
			errs = append(errs, fmt.Sprintf("boundary.sources[%d].location is required", i))
		}
	}
	if n := len(c.Classify.Reference); n > 0 && n < 3 {
		errs = append(errs, "classify.reference needs at least 3 edges")
	}
	if c.Classify.Precision < 0 || c.Classify.Precision > 6 {
		errs = append(errs, "classify.precision must be between 0 and 6")
	}
	return errs
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
