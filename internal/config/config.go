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
	Store      StoreConfig      `yaml:"store" mapstructure:"store"`
	Google     GoogleConfig     `yaml:"google" mapstructure:"google"`
	Yelp       YelpConfig       `yaml:"yelp" mapstructure:"yelp"`
	Foursquare FoursquareConfig `yaml:"foursquare" mapstructure:"foursquare"`
	Matcher    MatcherConfig    `yaml:"matcher" mapstructure:"matcher"`
	Indexer    IndexerConfig    `yaml:"indexer" mapstructure:"indexer"`
	Worker     WorkerConfig     `yaml:"worker" mapstructure:"worker"`
	Server     ServerConfig     `yaml:"server" mapstructure:"server"`
	Log        LogConfig        `yaml:"log" mapstructure:"log"`
}

// StoreConfig configures the database backend.
type StoreConfig struct {
	Driver      string `yaml:"driver" mapstructure:"driver"`
	DatabaseURL string `yaml:"database_url" mapstructure:"database_url"`
}

// GoogleConfig holds Google Places API settings.
type GoogleConfig struct {
	Key         string `yaml:"key" mapstructure:"key"`
	BaseURL     string `yaml:"base_url" mapstructure:"base_url"`
	DailyLimit  int    `yaml:"daily_limit" mapstructure:"daily_limit"`
	RateLimit   int    `yaml:"rate_limit" mapstructure:"rate_limit"`
	MaxPages    int    `yaml:"max_pages" mapstructure:"max_pages"`
	PageDelayMS int    `yaml:"page_delay_ms" mapstructure:"page_delay_ms"`
}

// YelpConfig holds Yelp Fusion API settings.
type YelpConfig struct {
	Key        string `yaml:"key" mapstructure:"key"`
	BaseURL    string `yaml:"base_url" mapstructure:"base_url"`
	DailyLimit int    `yaml:"daily_limit" mapstructure:"daily_limit"`
	RateLimit  int    `yaml:"rate_limit" mapstructure:"rate_limit"`
	MaxResults int    `yaml:"max_results" mapstructure:"max_results"`
}

// FoursquareConfig holds Foursquare Places API settings.
type FoursquareConfig struct {
	Key        string `yaml:"key" mapstructure:"key"`
	BaseURL    string `yaml:"base_url" mapstructure:"base_url"`
	DailyLimit int    `yaml:"daily_limit" mapstructure:"daily_limit"`
	RateLimit  int    `yaml:"rate_limit" mapstructure:"rate_limit"`
}

// MatcherConfig holds the heuristic weights and thresholds for the
// record/candidate scorer. The defaults are tuning values carried over from
// long-running production behavior; change with care.
type MatcherConfig struct {
	NameWeight    float64 `yaml:"name_weight" mapstructure:"name_weight"`
	AddressWeight float64 `yaml:"address_weight" mapstructure:"address_weight"`
	GPSWeight     float64 `yaml:"gps_weight" mapstructure:"gps_weight"`
	PhoneWeight   float64 `yaml:"phone_weight" mapstructure:"phone_weight"`

	// GPSMaxMeters is the distance at which GPS credit falls to zero.
	GPSMaxMeters float64 `yaml:"gps_max_meters" mapstructure:"gps_max_meters"`

	// ForwardThreshold gates merges during forward indexing.
	ForwardThreshold float64 `yaml:"forward_threshold" mapstructure:"forward_threshold"`

	// ReverseThreshold gates merges during reverse lookup, together with
	// ReverseNameFloor (minimum name similarity, 0..1).
	ReverseThreshold float64 `yaml:"reverse_threshold" mapstructure:"reverse_threshold"`
	ReverseNameFloor float64 `yaml:"reverse_name_floor" mapstructure:"reverse_name_floor"`
}

// IndexerConfig configures the orchestrator.
type IndexerConfig struct {
	// CandidateRadiusDegrees is the half-width of the locator bounding box.
	CandidateRadiusDegrees float64 `yaml:"candidate_radius_degrees" mapstructure:"candidate_radius_degrees"`

	// CacheTTLHours is the freshness window for skipping repeat runs.
	CacheTTLHours int `yaml:"cache_ttl_hours" mapstructure:"cache_ttl_hours"`

	// RecordRetries bounds per-record provider call retries.
	RecordRetries int `yaml:"record_retries" mapstructure:"record_retries"`
}

// WorkerConfig configures the background job worker.
type WorkerConfig struct {
	PollIntervalSecs int `yaml:"poll_interval_secs" mapstructure:"poll_interval_secs"`
	ShutdownWaitSecs int `yaml:"shutdown_wait_secs" mapstructure:"shutdown_wait_secs"`
}

// ServerConfig configures the HTTP server.
type ServerConfig struct {
	Port int `yaml:"port" mapstructure:"port"`
}

// LogConfig configures logging.
type LogConfig struct {
	Level  string `yaml:"level" mapstructure:"level"`
	Format string `yaml:"format" mapstructure:"format"`
}

// CacheTTL returns the freshness window as a duration.
func (c IndexerConfig) CacheTTL() time.Duration {
	return time.Duration(c.CacheTTLHours) * time.Hour
}

// PollInterval returns the worker poll interval as a duration.
func (c WorkerConfig) PollInterval() time.Duration {
	return time.Duration(c.PollIntervalSecs) * time.Second
}

// ShutdownWait returns the worker shutdown join bound as a duration.
func (c WorkerConfig) ShutdownWait() time.Duration {
	return time.Duration(c.ShutdownWaitSecs) * time.Second
}

// Load reads configuration from file and environment.
func Load() (*Config, error) {
	v := viper.New()

	// Config file
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")

	// Environment
	v.SetEnvPrefix("PLACEMATCH")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// Defaults
	v.SetDefault("store.driver", "sqlite")
	v.SetDefault("store.database_url", "placematch.db")
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "json")
	v.SetDefault("server.port", 8080)
	// Credential keys need explicit defaults so AutomaticEnv picks them up
	// during Unmarshal when they are set through the environment alone.
	v.SetDefault("google.key", "")
	v.SetDefault("yelp.key", "")
	v.SetDefault("foursquare.key", "")
	v.SetDefault("google.base_url", "https://places.googleapis.com/v1")
	v.SetDefault("google.daily_limit", 1000)
	v.SetDefault("google.rate_limit", 10)
	v.SetDefault("google.max_pages", 3)
	v.SetDefault("google.page_delay_ms", 2000)
	v.SetDefault("yelp.base_url", "https://api.yelp.com/v3")
	v.SetDefault("yelp.daily_limit", 5000)
	v.SetDefault("yelp.rate_limit", 10)
	v.SetDefault("yelp.max_results", 1000)
	v.SetDefault("foursquare.base_url", "https://api.foursquare.com/v3")
	v.SetDefault("foursquare.daily_limit", 950)
	v.SetDefault("foursquare.rate_limit", 5)
	v.SetDefault("matcher.name_weight", 35)
	v.SetDefault("matcher.address_weight", 20)
	v.SetDefault("matcher.gps_weight", 25)
	v.SetDefault("matcher.phone_weight", 20)
	v.SetDefault("matcher.gps_max_meters", 200)
	v.SetDefault("matcher.forward_threshold", 50)
	v.SetDefault("matcher.reverse_threshold", 80)
	v.SetDefault("matcher.reverse_name_floor", 0.9)
	v.SetDefault("indexer.candidate_radius_degrees", 0.01)
	v.SetDefault("indexer.cache_ttl_hours", 24)
	v.SetDefault("indexer.record_retries", 3)
	v.SetDefault("worker.poll_interval_secs", 2)
	v.SetDefault("worker.shutdown_wait_secs", 30)

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
