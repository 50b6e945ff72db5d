package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/rotisserie/eris"
	"github.com/spf13/viper"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/sells-group/ecm-cli/internal/dataset"
	"github.com/sells-group/ecm-cli/internal/model"
)

// Data sources for the lookup tables.
const (
	SourceFiles = "files"
	SourceStore = "store"
)

// Config holds the full application configuration.
type Config struct {
	Store    StoreConfig      `yaml:"store" mapstructure:"store"`
	Data     DataConfig       `yaml:"data" mapstructure:"data"`
	Catalog  model.Dimensions `yaml:"catalog" mapstructure:"catalog"`
	Solver   SolverConfig     `yaml:"solver" mapstructure:"solver"`
	Optimize OptimizeConfig   `yaml:"optimize" mapstructure:"optimize"`
	Batch    BatchConfig      `yaml:"batch" mapstructure:"batch"`
	Server   ServerConfig     `yaml:"server" mapstructure:"server"`
	Log      LogConfig        `yaml:"log" mapstructure:"log"`
}

// StoreConfig configures the database backend.
type StoreConfig struct {
	Driver      string `yaml:"driver" mapstructure:"driver"`
	DatabaseURL string `yaml:"database_url" mapstructure:"database_url"`
	// ConnectAttempts bounds retries of transient failures while opening
	// and migrating the store.
	ConnectAttempts int `yaml:"connect_attempts" mapstructure:"connect_attempts"`
}

// DataConfig locates the measure, savings and baseline datasets.
type DataConfig struct {
	Source       string `yaml:"source" mapstructure:"source"`
	MeasuresPath string `yaml:"measures_path" mapstructure:"measures_path"`
	SavingsPath  string `yaml:"savings_path" mapstructure:"savings_path"`
	BaselinePath string `yaml:"baseline_path" mapstructure:"baseline_path"`
	// FetchTimeoutSecs bounds each download when a path is an http(s) URL.
	FetchTimeoutSecs int `yaml:"fetch_timeout_secs" mapstructure:"fetch_timeout_secs"`
	FetchRetries     int `yaml:"fetch_retries" mapstructure:"fetch_retries"`
}

// Paths returns the dataset file locations.
func (d DataConfig) Paths() dataset.Paths {
	return dataset.Paths{Measures: d.MeasuresPath, Savings: d.SavingsPath, Baseline: d.BaselinePath}
}

// SolverConfig bounds each solve.
type SolverConfig struct {
	TimeoutSecs       int  `yaml:"timeout_secs" mapstructure:"timeout_secs"`
	NodeLimit         int  `yaml:"node_limit" mapstructure:"node_limit"`
	CollapseConflicts bool `yaml:"collapse_conflicts" mapstructure:"collapse_conflicts"`
}

// Timeout returns the per-solve timeout; zero disables it.
func (s SolverConfig) Timeout() time.Duration {
	return time.Duration(s.TimeoutSecs) * time.Second
}

// OptimizeConfig holds query defaults.
type OptimizeConfig struct {
	// UnboundedBudget stands in for budget and payback limits a caller
	// leaves unset.
	UnboundedBudget float64 `yaml:"unbounded_budget" mapstructure:"unbounded_budget"`
	RequireCoverage bool    `yaml:"require_coverage" mapstructure:"require_coverage"`
}

// BatchConfig configures batch processing.
type BatchConfig struct {
	MaxConcurrentQueries int `yaml:"max_concurrent_queries" mapstructure:"max_concurrent_queries"`
}

// ServerConfig configures the HTTP API.
type ServerConfig struct {
	Port           int      `yaml:"port" mapstructure:"port"`
	RateLimit      float64  `yaml:"rate_limit" mapstructure:"rate_limit"`
	Burst          int      `yaml:"burst" mapstructure:"burst"`
	AllowedOrigins []string `yaml:"allowed_origins" mapstructure:"allowed_origins"`
}

// LogConfig configures logging.
type LogConfig struct {
	Level  string `yaml:"level" mapstructure:"level"`
	Format string `yaml:"format" mapstructure:"format"`
}

// Load reads configuration from ./config.yaml, if present, and environment.
func Load() (*Config, error) {
	return LoadFile("")
}

// LoadFile is Load with an explicit config file. Unlike the default
// ./config.yaml, a named file must exist.
func LoadFile(path string) (*Config, error) {
	v := viper.New()

	// Config file
	if path != "" {
		v.SetConfigFile(path)
	} else {
		v.SetConfigName("config")
		v.AddConfigPath(".")
	}
	v.SetConfigType("yaml")

	// Environment
	v.SetEnvPrefix("ECM")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// Defaults
	v.SetDefault("store.driver", "sqlite")
	v.SetDefault("store.database_url", "ecm.db")
	v.SetDefault("store.connect_attempts", 3)
	v.SetDefault("data.source", SourceFiles)
	v.SetDefault("data.measures_path", "./Measures.json")
	v.SetDefault("data.savings_path", "./measure_savings.json")
	v.SetDefault("data.baseline_path", "./baseline.json")
	v.SetDefault("data.fetch_timeout_secs", 60)
	v.SetDefault("data.fetch_retries", 3)
	v.SetDefault("catalog.num_ecm", model.DefaultNumECM)
	v.SetDefault("catalog.num_building_types", model.DefaultNumBuildingTypes)
	v.SetDefault("catalog.num_vintages", model.DefaultNumVintages)
	v.SetDefault("catalog.num_climate_zones", model.DefaultNumClimateZones)
	v.SetDefault("solver.timeout_secs", 60)
	v.SetDefault("solver.node_limit", 0)
	v.SetDefault("solver.collapse_conflicts", false)
	v.SetDefault("optimize.unbounded_budget", 1e12)
	v.SetDefault("optimize.require_coverage", false)
	v.SetDefault("batch.max_concurrent_queries", 4)
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.rate_limit", 5.0)
	v.SetDefault("server.burst", 10)
	v.SetDefault("server.allowed_origins", []string{"*"})
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "json")

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

// Validate checks the settings a command mode depends on. Every problem
// found is reported in one error.
func (c *Config) Validate(mode string) error {
	var errs []string
	add := func(format string, args ...any) {
		errs = append(errs, fmt.Sprintf(format, args...))
	}

	if err := c.Catalog.Validate(); err != nil {
		add("catalog: %v", err)
	}
	if c.Solver.TimeoutSecs < 0 {
		add("solver.timeout_secs must be >= 0")
	}
	if c.Solver.NodeLimit < 0 {
		add("solver.node_limit must be >= 0")
	}
	if c.Optimize.UnboundedBudget <= 0 {
		add("optimize.unbounded_budget must be > 0")
	}

	switch mode {
	case "recommend", "batch", "serve":
		c.validateData(add)
		if mode == "batch" || mode == "serve" {
			if c.Batch.MaxConcurrentQueries < 1 || c.Batch.MaxConcurrentQueries > 64 {
				add("batch.max_concurrent_queries must be between 1 and 64")
			}
		}
		if mode == "serve" {
			if c.Server.Port <= 0 || c.Server.Port > 65535 {
				add("server.port must be > 0 and <= 65535")
			}
			if c.Server.RateLimit <= 0 {
				add("server.rate_limit must be > 0")
			}
			if c.Server.Burst < 1 {
				add("server.burst must be >= 1")
			}
		}
	case "import":
		if c.Data.MeasuresPath == "" || c.Data.SavingsPath == "" || c.Data.BaselinePath == "" {
			add("data.measures_path, data.savings_path and data.baseline_path are required")
		}
		c.validateStore(add)
	case "runs":
		c.validateStore(add)
	default:
		return eris.Errorf("config: unknown mode %q", mode)
	}

	if len(errs) > 0 {
		return eris.Errorf("config: %s", strings.Join(errs, "; "))
	}
	return nil
}

func (c *Config) validateData(add func(string, ...any)) {
	switch c.Data.Source {
	case SourceFiles:
		if c.Data.MeasuresPath == "" || c.Data.SavingsPath == "" || c.Data.BaselinePath == "" {
			add("data.measures_path, data.savings_path and data.baseline_path are required")
		}
	case SourceStore:
		c.validateStore(add)
	default:
		add("data.source must be %q or %q", SourceFiles, SourceStore)
	}
}

func (c *Config) validateStore(add func(string, ...any)) {
	switch c.Store.Driver {
	case "sqlite", "postgres":
	default:
		add("store.driver must be sqlite or postgres")
	}
	if c.Store.DatabaseURL == "" {
		add("store.database_url is required")
	}
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
