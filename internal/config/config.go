package config

import (
	"strings"

	"github.com/rotisserie/eris"
	"github.com/spf13/viper"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// DefaultSheetURL is the CSV export of the hosted case-count spreadsheet.
const DefaultSheetURL = "https://docs.google.com/spreadsheets/d/18zRQXwQA9avuIXWaZ7p_jd9dDbTSe-soTMLpmH3_8w4/export?format=csv"

// Config holds the full application configuration.
type Config struct {
	Store    StoreConfig    `yaml:"store" mapstructure:"store"`
	Redis    RedisConfig    `yaml:"redis" mapstructure:"redis"`
	Source   SourceConfig   `yaml:"source" mapstructure:"source"`
	Forecast ForecastConfig `yaml:"forecast" mapstructure:"forecast"`
	Sample   SampleConfig   `yaml:"sample" mapstructure:"sample"`
	Batch    BatchConfig    `yaml:"batch" mapstructure:"batch"`
	Server   ServerConfig   `yaml:"server" mapstructure:"server"`
	Log      LogConfig      `yaml:"log" mapstructure:"log"`
}

// StoreConfig configures the run history backend.
type StoreConfig struct {
	Driver      string `yaml:"driver" mapstructure:"driver"`
	DatabaseURL string `yaml:"database_url" mapstructure:"database_url"`
}

// RedisConfig configures the Redis session backend.
type RedisConfig struct {
	Addr     string `yaml:"addr" mapstructure:"addr"`
	Password string `yaml:"password" mapstructure:"password"`
	DB       int    `yaml:"db" mapstructure:"db"`
}

// SourceConfig configures the hosted spreadsheet source and the HTTP fetcher.
type SourceConfig struct {
	SheetURL    string `yaml:"sheet_url" mapstructure:"sheet_url"`
	Format      string `yaml:"format" mapstructure:"format"`
	TimeoutSecs int    `yaml:"timeout_secs" mapstructure:"timeout_secs"`
	MaxRetries  int    `yaml:"max_retries" mapstructure:"max_retries"`
	LoadRetries int    `yaml:"load_retries" mapstructure:"load_retries"`
	UserAgent   string `yaml:"user_agent" mapstructure:"user_agent"`
}

// ForecastConfig configures the model and the request bounds.
type ForecastConfig struct {
	Horizon               int     `yaml:"horizon" mapstructure:"horizon"`
	HorizonCap            int     `yaml:"horizon_cap" mapstructure:"horizon_cap"`
	FitTimeoutSecs        int     `yaml:"fit_timeout_secs" mapstructure:"fit_timeout_secs"`
	TrainFraction         float64 `yaml:"train_fraction" mapstructure:"train_fraction"`
	IntervalWidth         float64 `yaml:"interval_width" mapstructure:"interval_width"`
	ChangepointPriorScale float64 `yaml:"changepoint_prior_scale" mapstructure:"changepoint_prior_scale"`
	SeasonalityPriorScale float64 `yaml:"seasonality_prior_scale" mapstructure:"seasonality_prior_scale"`
}

// SampleConfig configures the synthetic series generator.
type SampleConfig struct {
	Weeks       int    `yaml:"weeks" mapstructure:"weeks"`
	Seed        uint64 `yaml:"seed" mapstructure:"seed"`
	WithFactors bool   `yaml:"with_factors" mapstructure:"with_factors"`
}

// BatchConfig configures batch processing.
type BatchConfig struct {
	MaxConcurrent int `yaml:"max_concurrent" mapstructure:"max_concurrent"`
}

// ServerConfig configures the HTTP server and its session store.
type ServerConfig struct {
	Port              int      `yaml:"port" mapstructure:"port"`
	SessionBackend    string   `yaml:"session_backend" mapstructure:"session_backend"`
	SessionTTLMinutes int      `yaml:"session_ttl_minutes" mapstructure:"session_ttl_minutes"`
	SessionMax        int      `yaml:"session_max" mapstructure:"session_max"`
	CORSOrigins       []string `yaml:"cors_origins" mapstructure:"cors_origins"`
	MaxUploadMB       int      `yaml:"max_upload_mb" mapstructure:"max_upload_mb"`
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
	v.SetEnvPrefix("FORECAST")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// Defaults
	v.SetDefault("store.driver", "sqlite")
	v.SetDefault("store.database_url", "forecast.db")
	v.SetDefault("redis.addr", "localhost:6379")
	v.SetDefault("redis.db", 0)
	v.SetDefault("source.sheet_url", DefaultSheetURL)
	v.SetDefault("source.format", "csv")
	v.SetDefault("source.timeout_secs", 30)
	v.SetDefault("source.max_retries", 3)
	v.SetDefault("source.load_retries", 1)
	v.SetDefault("source.user_agent", "case-forecast/1.0")
	v.SetDefault("forecast.horizon", 4)
	v.SetDefault("forecast.horizon_cap", 12)
	v.SetDefault("forecast.fit_timeout_secs", 30)
	v.SetDefault("forecast.train_fraction", 0.8)
	v.SetDefault("forecast.interval_width", 0.95)
	v.SetDefault("forecast.changepoint_prior_scale", 0.05)
	v.SetDefault("forecast.seasonality_prior_scale", 10.0)
	v.SetDefault("sample.weeks", 52)
	v.SetDefault("sample.seed", 42)
	v.SetDefault("sample.with_factors", false)
	v.SetDefault("batch.max_concurrent", 4)
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.session_backend", "memory")
	v.SetDefault("server.session_ttl_minutes", 120)
	v.SetDefault("server.session_max", 1024)
	v.SetDefault("server.cors_origins", []string{"*"})
	v.SetDefault("server.max_upload_mb", 10)
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

// Validate checks the settings a command mode depends on. Modes are
// "forecast", "batch" and "serve".
func (c *Config) Validate(mode string) error {
	var errs []string

	switch mode {
	case "forecast":
	case "batch":
		if c.Batch.MaxConcurrent < 1 || c.Batch.MaxConcurrent > 32 {
			errs = append(errs, "batch.max_concurrent must be between 1 and 32")
		}
	case "serve":
		if c.Server.Port <= 0 {
			errs = append(errs, "server.port must be > 0")
		}
		switch c.Server.SessionBackend {
		case "memory":
			if c.Server.SessionMax <= 0 {
				errs = append(errs, "server.session_max must be > 0")
			}
		case "redis":
			if c.Redis.Addr == "" {
				errs = append(errs, "redis.addr is required for the redis session backend")
			}
		default:
			errs = append(errs, "server.session_backend must be memory or redis")
		}
	default:
		return eris.Errorf("config: unknown mode %q", mode)
	}

	switch c.Store.Driver {
	case "sqlite", "postgres":
	default:
		errs = append(errs, "store.driver must be sqlite or postgres")
	}
	if c.Store.Driver == "postgres" && c.Store.DatabaseURL == "" {
		errs = append(errs, "store.database_url is required for postgres")
	}
	if c.Forecast.HorizonCap < 1 {
		errs = append(errs, "forecast.horizon_cap must be >= 1")
	}
	if c.Forecast.Horizon < 1 || c.Forecast.Horizon > c.Forecast.HorizonCap {
		errs = append(errs, "forecast.horizon must be between 1 and forecast.horizon_cap")
	}
	if c.Forecast.TrainFraction <= 0 || c.Forecast.TrainFraction > 1 {
		errs = append(errs, "forecast.train_fraction must be in (0, 1]")
	}
	if c.Forecast.IntervalWidth <= 0 || c.Forecast.IntervalWidth >= 1 {
		errs = append(errs, "forecast.interval_width must be in (0, 1)")
	}

	if len(errs) > 0 {
		return eris.Errorf("config: validation failed: %s", strings.Join(errs, "; "))
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
