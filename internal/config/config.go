package config

import (
	"fmt"
	"os"
	"strings"

	"github.com/joho/godotenv"
	"github.com/rotisserie/eris"
	"github.com/spf13/viper"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Config holds the full application configuration.
type Config struct {
	Store     StoreConfig     `yaml:"store" mapstructure:"store"`
	Warehouse WarehouseConfig `yaml:"warehouse" mapstructure:"warehouse"`
	ETL       ETLConfig       `yaml:"etl" mapstructure:"etl"`
	Retry     RetryConfig     `yaml:"retry" mapstructure:"retry"`
	Server    ServerConfig    `yaml:"server" mapstructure:"server"`
	Log       LogConfig       `yaml:"log" mapstructure:"log"`

	// File is the config file that was read, empty when only defaults and
	// the environment applied.
	File string `yaml:"-" mapstructure:"-"`
}

// StoreConfig configures the run history backend.
type StoreConfig struct {
	Driver      string `yaml:"driver" mapstructure:"driver"` // "postgres" or "sqlite"
	DatabaseURL string `yaml:"database_url" mapstructure:"database_url"`
}

// WarehouseConfig configures the star schema destination.
type WarehouseConfig struct {
	DatabaseURL string `yaml:"database_url" mapstructure:"database_url"`
}

// SourceConfig binds a directory of spreadsheets to one transaction category.
type SourceConfig struct {
	Category string `yaml:"category" mapstructure:"category"`
	Dir      string `yaml:"dir" mapstructure:"dir"`
	Pattern  string `yaml:"pattern" mapstructure:"pattern"`
}

// QualityWeights are the composite score weights. They must sum to 1.
type QualityWeights struct {
	Completeness float64 `yaml:"completeness" mapstructure:"completeness"`
	Consistency  float64 `yaml:"consistency" mapstructure:"consistency"`
	Validity     float64 `yaml:"validity" mapstructure:"validity"`
}

// ETLConfig configures the extraction through scoring stages.
type ETLConfig struct {
	Sources          []SourceConfig `yaml:"sources" mapstructure:"sources"`
	MappingPath      string         `yaml:"mapping_path" mapstructure:"mapping_path"`
	AliasesPath      string         `yaml:"aliases_path" mapstructure:"aliases_path"`
	ProductRulesPath string         `yaml:"product_rules_path" mapstructure:"product_rules_path"`
	ReportDir        string         `yaml:"report_dir" mapstructure:"report_dir"`
	StrictMapping    bool           `yaml:"strict_mapping" mapstructure:"strict_mapping"`
	LitersPerKg      float64        `yaml:"liters_per_kg" mapstructure:"liters_per_kg"`
	MinCohort        int            `yaml:"min_cohort" mapstructure:"min_cohort"`
	Weights          QualityWeights `yaml:"weights" mapstructure:"weights"`
}

// RetryConfig configures retries of transient I/O (file locks, DB connects).
type RetryConfig struct {
	MaxAttempts      int     `yaml:"max_attempts" mapstructure:"max_attempts"`
	InitialBackoffMs int     `yaml:"initial_backoff_ms" mapstructure:"initial_backoff_ms"`
	MaxBackoffMs     int     `yaml:"max_backoff_ms" mapstructure:"max_backoff_ms"`
	Multiplier       float64 `yaml:"multiplier" mapstructure:"multiplier"`
	JitterFraction   float64 `yaml:"jitter_fraction" mapstructure:"jitter_fraction"`
}

// ServerConfig configures the run status server.
type ServerConfig struct {
	Port           int      `yaml:"port" mapstructure:"port"`
	AllowedOrigins []string `yaml:"allowed_origins" mapstructure:"allowed_origins"`
}

// LogConfig configures logging.
type LogConfig struct {
	Level  string `yaml:"level" mapstructure:"level"`
	Format string `yaml:"format" mapstructure:"format"`
}

// DefaultEnvFile is read when present; a missing one is not an error.
const DefaultEnvFile = ".env"

// Load reads configuration from .env, ./config.yaml and the environment.
func Load() (*Config, error) {
	return LoadFrom("", "")
}

// LoadFrom is Load with an explicit config file and env file. Empty paths
// fall back to ./config.yaml and ./.env, both optional. Explicit paths must
// exist.
func LoadFrom(configFile, envFile string) (*Config, error) {
	// Real environment variables win over the env file.
	if envFile != "" {
		if err := godotenv.Load(envFile); err != nil {
			return nil, eris.Wrapf(err, "config: read env file %s", envFile)
		}
	} else if err := godotenv.Load(DefaultEnvFile); err != nil && !os.IsNotExist(err) {
		return nil, eris.Wrap(err, "config: read .env")
	}

	v := viper.New()

	// Config file
	if configFile != "" {
		v.SetConfigFile(configFile)
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
	}

	// Environment
	v.SetEnvPrefix("PETRO")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// Defaults
	v.SetDefault("store.driver", "sqlite")
	v.SetDefault("store.database_url", "petro-runs.db")
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "json")
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.allowed_origins", []string{"*"})
	v.SetDefault("etl.sources", []map[string]any{
		{"category": "BDC", "dir": "data/bdc", "pattern": "*.xlsx"},
		{"category": "OMC", "dir": "data/omc", "pattern": "*.xlsx"},
	})
	v.SetDefault("etl.mapping_path", "mappings/approved.xlsx")
	v.SetDefault("etl.report_dir", "reports")
	v.SetDefault("etl.strict_mapping", false)
	v.SetDefault("etl.liters_per_kg", 1.8)
	v.SetDefault("etl.min_cohort", 4)
	v.SetDefault("etl.weights.completeness", 0.4)
	v.SetDefault("etl.weights.consistency", 0.3)
	v.SetDefault("etl.weights.validity", 0.3)
	v.SetDefault("retry.max_attempts", 3)
	v.SetDefault("retry.initial_backoff_ms", 500)
	v.SetDefault("retry.max_backoff_ms", 10000)
	v.SetDefault("retry.multiplier", 2.0)
	v.SetDefault("retry.jitter_fraction", 0.25)

	// Read config file (optional unless named explicitly)
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok || configFile != "" {
			return nil, eris.Wrap(err, "config: read file")
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, eris.Wrap(err, "config: unmarshal")
	}
	cfg.File = v.ConfigFileUsed()

	return &cfg, nil
}

// WarehouseURL returns the warehouse DSN, falling back to the store DSN when
// the run history also lives in Postgres.
func (c *Config) WarehouseURL() string {
	if c.Warehouse.DatabaseURL != "" {
		return c.Warehouse.DatabaseURL
	}
	if c.Store.Driver == "postgres" {
		return c.Store.DatabaseURL
	}
	return ""
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

// Validate checks the settings a command mode depends on.
// Modes: "run", "mappings", "migrate", "serve".
func (c *Config) Validate(mode string) error {
	var errs []string

	switch mode {
	case "run":
		errs = append(errs, c.validateSources()...)
		if c.ETL.MappingPath == "" {
			errs = append(errs, "etl.mapping_path is required")
		}
		if c.WarehouseURL() == "" {
			errs = append(errs, "warehouse.database_url is required")
		}
		if c.ETL.LitersPerKg <= 0 {
			errs = append(errs, "etl.liters_per_kg must be > 0")
		}
		if c.ETL.MinCohort < 2 {
			errs = append(errs, "etl.min_cohort must be >= 2")
		}
		w := c.ETL.Weights
		if w.Completeness < 0 || w.Consistency < 0 || w.Validity < 0 {
			errs = append(errs, "etl.weights values must be >= 0")
		}
		if sum := w.Completeness + w.Consistency + w.Validity; sum < 1-1e-6 || sum > 1+1e-6 {
			errs = append(errs, fmt.Sprintf("etl.weights must sum to 1, got %.3f", sum))
		}
	case "mappings":
		errs = append(errs, c.validateSources()...)
	case "migrate":
		if c.WarehouseURL() == "" {
			errs = append(errs, "warehouse.database_url is required")
		}
	case "serve":
		if c.Server.Port <= 0 {
			errs = append(errs, "server.port must be > 0")
		}
	default:
		return eris.Errorf("config: unknown mode %q", mode)
	}

	switch c.Store.Driver {
	case "postgres", "sqlite":
	default:
		errs = append(errs, fmt.Sprintf("store.driver must be postgres or sqlite, got %q", c.Store.Driver))
	}

	if len(errs) > 0 {
		return eris.Errorf("config: validation failed: %s", strings.Join(errs, "; "))
	}
	return nil
}

func (c *Config) validateSources() []string {
	if len(c.ETL.Sources) == 0 {
		return []string{"etl.sources must list at least one source"}
	}
	var errs []string
	for i, s := range c.ETL.Sources {
		switch strings.ToUpper(strings.TrimSpace(s.Category)) {
		case "BDC", "OMC":
		default:
			errs = append(errs, fmt.Sprintf("etl.sources[%d].category must be BDC or OMC", i))
		}
		if s.Dir == "" {
			errs = append(errs, fmt.Sprintf("etl.sources[%d].dir is required", i))
		}
	}
	return errs
}
