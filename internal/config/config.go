package config

import (
	"strings"
	"time"

	"github.com/rotisserie/eris"
	"github.com/spf13/viper"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/sells-group/registry-link/internal/resolve"
)

// Config holds the full application configuration.
type Config struct {
	Resolve    ResolveConfig    `yaml:"resolve" mapstructure:"resolve"`
	SAM        SAMConfig        `yaml:"sam" mapstructure:"sam"`
	Store      StoreConfig      `yaml:"store" mapstructure:"store"`
	Redis      RedisConfig      `yaml:"redis" mapstructure:"redis"`
	Salesforce SalesforceConfig `yaml:"salesforce" mapstructure:"salesforce"`
	Server     ServerConfig     `yaml:"server" mapstructure:"server"`
	Log        LogConfig        `yaml:"log" mapstructure:"log"`
}

// ResolveConfig tunes matching, caching and deduplication.
type ResolveConfig struct {
	resolve.Thresholds      `yaml:",inline" mapstructure:",squash"`
	resolve.RetrieverConfig `yaml:",inline" mapstructure:",squash"`

	CacheTTL    time.Duration `yaml:"cache_ttl" mapstructure:"cache_ttl"`
	DedupWindow time.Duration `yaml:"dedup_window" mapstructure:"dedup_window"`
}

// SAMConfig holds entity registry API settings.
type SAMConfig struct {
	Key         string  `yaml:"key" mapstructure:"key"`
	BaseURL     string  `yaml:"base_url" mapstructure:"base_url"`
	RateLimit   float64 `yaml:"rate_limit" mapstructure:"rate_limit"`
	PageSize    int     `yaml:"page_size" mapstructure:"page_size"`
	TimeoutSecs int     `yaml:"timeout_secs" mapstructure:"timeout_secs"`
}

// StoreConfig selects the outcome store.
type StoreConfig struct {
	Driver      string `yaml:"driver" mapstructure:"driver"`
	DatabaseURL string `yaml:"database_url" mapstructure:"database_url"`
	MaxConns    int32  `yaml:"max_conns" mapstructure:"max_conns"`
	MinConns    int32  `yaml:"min_conns" mapstructure:"min_conns"`
}

// RedisConfig enables the shared deduplicator when URL is set.
type RedisConfig struct {
	URL string `yaml:"url" mapstructure:"url"`
}

// SalesforceConfig holds Salesforce JWT credentials. Projection is off when
// ClientID is empty.
type SalesforceConfig struct {
	ClientID  string  `yaml:"client_id" mapstructure:"client_id"`
	Username  string  `yaml:"username" mapstructure:"username"`
	KeyPath   string  `yaml:"key_path" mapstructure:"key_path"`
	LoginURL  string  `yaml:"login_url" mapstructure:"login_url"`
	RateLimit float64 `yaml:"rate_limit" mapstructure:"rate_limit"`
}

// Enabled reports whether Salesforce credentials are configured.
func (c SalesforceConfig) Enabled() bool {
	return c.ClientID != ""
}

// ServerConfig configures the webhook server.
type ServerConfig struct {
	Port             int `yaml:"port" mapstructure:"port"`
	BatchConcurrency int `yaml:"batch_concurrency" mapstructure:"batch_concurrency"`
	MaxBatchSize     int `yaml:"max_batch_size" mapstructure:"max_batch_size"`
	// AllowedOrigins lists CORS origins; env takes a comma-separated list.
	AllowedOrigins []string `yaml:"allowed_origins" mapstructure:"allowed_origins"`
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
	v.SetEnvPrefix("REGLINK")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// Defaults
	th := resolve.DefaultThresholds()
	rc := resolve.DefaultRetrieverConfig()
	v.SetDefault("resolve.auto_link_threshold", th.AutoLink)
	v.SetDefault("resolve.relevance_floor", th.Floor)
	v.SetDefault("resolve.location_bonus", th.LocationBonus)
	v.SetDefault("resolve.max_candidates", th.MaxCandidates)
	v.SetDefault("resolve.strategy_delay", rc.StrategyDelay)
	v.SetDefault("resolve.rate_limit_delay", rc.RateLimitDelay)
	v.SetDefault("resolve.cache_ttl", resolve.DefaultCacheTTL)
	v.SetDefault("resolve.dedup_window", resolve.DefaultDedupWindow)
	v.SetDefault("sam.key", "")
	v.SetDefault("sam.base_url", "https://api.sam.gov/entity-information/v3")
	v.SetDefault("sam.rate_limit", 4)
	v.SetDefault("sam.page_size", 10)
	v.SetDefault("sam.timeout_secs", 30)
	v.SetDefault("store.driver", "postgres")
	v.SetDefault("store.database_url", "")
	v.SetDefault("redis.url", "")
	v.SetDefault("salesforce.client_id", "")
	v.SetDefault("salesforce.username", "")
	v.SetDefault("salesforce.key_path", "")
	v.SetDefault("salesforce.login_url", "https://login.salesforce.com")
	v.SetDefault("salesforce.rate_limit", 5)
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.batch_concurrency", 5)
	v.SetDefault("server.max_batch_size", 500)
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

// Validate checks the settings a command mode depends on. Modes are serve,
// resolve, dry-run (resolve without a store) and migrate.
func (c *Config) Validate(mode string) error {
	var problems []string

	switch mode {
	case "serve", "resolve", "dry-run":
		if c.SAM.Key == "" {
			problems = append(problems, "sam.key is required")
		}
		problems = append(problems, c.validateResolve()...)
		if mode != "dry-run" {
			problems = append(problems, c.validateStore()...)
		}
		if mode == "serve" {
			if c.Server.Port < 1 || c.Server.Port > 65535 {
				problems = append(problems, "server.port must be between 1 and 65535")
			}
			if c.Server.BatchConcurrency < 1 || c.Server.BatchConcurrency > 50 {
				problems = append(problems, "server.batch_concurrency must be between 1 and 50")
			}
			if c.Server.MaxBatchSize < 1 {
				problems = append(problems, "server.max_batch_size must be positive")
			}
			for _, o := range c.Server.AllowedOrigins {
				if strings.TrimSpace(o) == "" {
					problems = append(problems, "server.allowed_origins must not contain empty entries")
					break
				}
			}
		}
	case "migrate":
		problems = append(problems, c.validateStore()...)
	default:
		return eris.Errorf("config: unknown mode %q", mode)
	}

	if c.Salesforce.Enabled() && (c.Salesforce.Username == "" || c.Salesforce.KeyPath == "") {
		problems = append(problems, "salesforce.username and salesforce.key_path are required with salesforce.client_id")
	}

	if len(problems) > 0 {
		return eris.Errorf("config: invalid for %s: %s", mode, strings.Join(problems, "; "))
	}
	return nil
}

func (c *Config) validateResolve() []string {
	var problems []string
	r := c.Resolve
	if r.AutoLink < 0 || r.AutoLink > 1 {
		problems = append(problems, "resolve.auto_link_threshold must be within [0, 1]")
	}
	if r.Floor < 0 || r.Floor > 1 {
		problems = append(problems, "resolve.relevance_floor must be within [0, 1]")
	}
	if r.Floor > r.AutoLink {
		problems = append(problems, "resolve.relevance_floor must not exceed resolve.auto_link_threshold")
	}
	if r.LocationBonus < 0 || r.LocationBonus > 1 {
		problems = append(problems, "resolve.location_bonus must be within [0, 1]")
	}
	if r.MaxCandidates < 1 {
		problems = append(problems, "resolve.max_candidates must be positive")
	}
	if r.CacheTTL < 0 || r.DedupWindow < 0 || r.StrategyDelay < 0 || r.RateLimitDelay < 0 {
		problems = append(problems, "resolve durations must not be negative")
	}
	return problems
}

func (c *Config) validateStore() []string {
	switch c.Store.Driver {
	case "postgres":
		if c.Store.DatabaseURL == "" {
			return []string{"store.database_url is required for postgres"}
		}
	case "sqlite":
		if c.Store.DatabaseURL == "" {
			return []string{"store.database_url must name the sqlite file"}
		}
	default:
		return []string{"store.driver must be postgres or sqlite"}
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
