package config

import (
	"fmt"
	"strings"

	"github.com/rotisserie/eris"
	"github.com/spf13/viper"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Config holds the full application configuration.
type Config struct {
	Store    StoreConfig    `yaml:"store" mapstructure:"store"`
	Data     DataConfig     `yaml:"data" mapstructure:"data"`
	Denue    DenueConfig    `yaml:"denue" mapstructure:"denue"`
	Interp   InterpConfig   `yaml:"interp" mapstructure:"interp"`
	Pipeline PipelineConfig `yaml:"pipeline" mapstructure:"pipeline"`
	Report   ReportConfig   `yaml:"report" mapstructure:"report"`
	Server   ServerConfig   `yaml:"server" mapstructure:"server"`
	Log      LogConfig      `yaml:"log" mapstructure:"log"`
}

// StoreConfig configures the database backend.
type StoreConfig struct {
	Driver      string `yaml:"driver" mapstructure:"driver"`
	Path        string `yaml:"path" mapstructure:"path"`
	DatabaseURL string `yaml:"database_url" mapstructure:"database_url"`
	MaxConns    int32  `yaml:"max_conns" mapstructure:"max_conns"`
	MinConns    int32  `yaml:"min_conns" mapstructure:"min_conns"`
}

// DataConfig locates the pre-placed input layers. All geometry inputs must
// already be in the projected CRS named here; the engine validates labels
// and never reprojects.
type DataConfig struct {
	AGEBs        string `yaml:"agebs" mapstructure:"agebs"`
	Units        string `yaml:"units" mapstructure:"units"`
	Census       string `yaml:"census" mapstructure:"census"`
	Crime        string `yaml:"crime" mapstructure:"crime"`
	CRS          string `yaml:"crs" mapstructure:"crs"`
	ProcessedDir string `yaml:"processed_dir" mapstructure:"processed_dir"`
}

// DenueConfig configures the historical DENUE consolidation.
type DenueConfig struct {
	ZipDir       string `yaml:"zip_dir" mapstructure:"zip_dir"`
	Consolidated string `yaml:"consolidated" mapstructure:"consolidated"`
	Cleaned      string `yaml:"cleaned" mapstructure:"cleaned"`
	Workers      int    `yaml:"workers" mapstructure:"workers"`
	Bounds       Bounds `yaml:"bounds" mapstructure:"bounds"`
}

// Bounds is a latitude/longitude box applied when cleaning point records.
// A zero-valued box disables the filter.
type Bounds struct {
	MinLat float64 `yaml:"min_lat" mapstructure:"min_lat"`
	MaxLat float64 `yaml:"max_lat" mapstructure:"max_lat"`
	MinLon float64 `yaml:"min_lon" mapstructure:"min_lon"`
	MaxLon float64 `yaml:"max_lon" mapstructure:"max_lon"`
}

// Empty reports whether the box is unset.
func (b Bounds) Empty() bool {
	return b.MinLat == 0 && b.MaxLat == 0 && b.MinLon == 0 && b.MaxLon == 0
}

// Contains reports whether the point lies inside the box, inclusive.
func (b Bounds) Contains(lat, lon float64) bool {
	return lat >= b.MinLat && lat <= b.MaxLat && lon >= b.MinLon && lon <= b.MaxLon
}

// InterpConfig configures the areal interpolation core.
type InterpConfig struct {
	// Epsilon is kept as a string so an unusable value can fall back to
	// the documented default instead of failing configuration load.
	Epsilon    string `yaml:"epsilon" mapstructure:"epsilon"`
	Workers    int    `yaml:"workers" mapstructure:"workers"`
	SchemaFile string `yaml:"schema_file" mapstructure:"schema_file"`
}

// PipelineConfig configures the batch run outputs.
type PipelineConfig struct {
	Artifact string `yaml:"artifact" mapstructure:"artifact"`
}

// ReportConfig configures validation report outputs.
type ReportConfig struct {
	HeatmapFile string `yaml:"heatmap_file" mapstructure:"heatmap_file"`
}

// ServerConfig configures the dataset API server.
type ServerConfig struct {
	Port           int     `yaml:"port" mapstructure:"port"`
	RequestsPerSec float64 `yaml:"requests_per_sec" mapstructure:"requests_per_sec"`
	Burst          int     `yaml:"burst" mapstructure:"burst"`
}

// LogConfig configures logging.
type LogConfig struct {
	Level  string `yaml:"level" mapstructure:"level"`
	Format string `yaml:"format" mapstructure:"format"`
}

// Load reads configuration from file and environment.
func Load() (*Config, error) {
	v := viper.New()

	// Config file
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")

	// Environment
	v.SetEnvPrefix("PIC")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// Defaults
	v.SetDefault("store.driver", "sqlite")
	v.SetDefault("store.path", "data/processed/potencial.db")
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "json")
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.requests_per_sec", 20)
	v.SetDefault("server.burst", 40)
	v.SetDefault("data.agebs", "data/raw/geo/agebs_cdmx.shp")
	v.SetDefault("data.units", "data/raw/geo/unidades_territoriales.geojson")
	v.SetDefault("data.census", "data/raw/censo/RESAGEBURB_09CSV20.csv")
	v.SetDefault("data.crime", "data/raw/fgj/carpetas_fgj.csv")
	v.SetDefault("data.crs", "EPSG:6372")
	v.SetDefault("data.processed_dir", "data/processed")
	v.SetDefault("denue.zip_dir", "data/raw/denue_historico")
	v.SetDefault("denue.consolidated", "data/interim/denue_historico.csv.gz")
	v.SetDefault("denue.cleaned", "data/interim/denue_limpio.csv.gz")
	v.SetDefault("denue.workers", 0)
	v.SetDefault("denue.bounds.min_lat", 19.0)
	v.SetDefault("denue.bounds.max_lat", 19.8)
	v.SetDefault("denue.bounds.min_lon", -99.4)
	v.SetDefault("denue.bounds.max_lon", -98.8)
	v.SetDefault("interp.epsilon", "1e-9")
	v.SetDefault("interp.workers", 0)
	v.SetDefault("interp.schema_file", "schema.yaml")
	v.SetDefault("pipeline.artifact", "data/processed/unidades_potencial.geojson")
	v.SetDefault("report.heatmap_file", "data/processed/matriz_correlacion.html")

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

// Validate checks that the configuration can support the given command
// mode before any work starts.
func (c *Config) Validate(mode string) error {
	var problems []string

	switch mode {
	case "build":
		if c.Data.AGEBs == "" {
			problems = append(problems, "data.agebs is required")
		}
		if c.Data.Units == "" {
			problems = append(problems, "data.units is required")
		}
		if c.Data.Census == "" {
			problems = append(problems, "data.census is required")
		}
		if c.Data.CRS == "" {
			problems = append(problems, "data.crs is required")
		}
		if c.Pipeline.Artifact == "" {
			problems = append(problems, "pipeline.artifact is required")
		}
	case "denue":
		if c.Denue.ZipDir == "" {
			problems = append(problems, "denue.zip_dir is required")
		}
		if c.Denue.Consolidated == "" {
			problems = append(problems, "denue.consolidated is required")
		}
		if c.Denue.Cleaned == "" {
			problems = append(problems, "denue.cleaned is required")
		}
	case "serve":
		if c.Server.Port <= 0 {
			problems = append(problems, "server.port must be > 0")
		}
		if c.Server.RequestsPerSec <= 0 {
			problems = append(problems, "server.requests_per_sec must be > 0")
		}
		if c.Server.Burst <= 0 {
			problems = append(problems, "server.burst must be > 0")
		}
	case "validate", "stats", "runs":
		// Store checks below are all these need.
	default:
		return eris.Errorf("config: unknown mode %q", mode)
	}

	switch c.Store.Driver {
	case "sqlite":
		if c.Store.Path == "" {
			problems = append(problems, "store.path is required for the sqlite driver")
		}
	case "postgres":
		if c.Store.DatabaseURL == "" {
			problems = append(problems, "store.database_url is required for the postgres driver")
		}
	default:
		problems = append(problems, fmt.Sprintf("store.driver must be sqlite or postgres, got %q", c.Store.Driver))
	}

	if len(problems) > 0 {
		return eris.Errorf("config: %s", strings.Join(problems, "; "))
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
