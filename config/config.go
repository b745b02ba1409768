package config

import (
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/spf13/viper"
)

// EnvPrefix scopes environment overrides, e.g. QUAKE_REDIS_ADDR overrides redis.addr.
const EnvPrefix = "QUAKE"

type Config struct {
	Log     LogConfig     `mapstructure:"log"`
	Tracing TracingConfig `mapstructure:"tracing"`
	HTTP    HTTPConfig    `mapstructure:"http"`
	Auth    AuthConfig    `mapstructure:"auth"`
	Redis   RedisConfig   `mapstructure:"redis"`
	Store   StoreConfig   `mapstructure:"store"`
	Hub     HubConfig     `mapstructure:"hub"`
	Stream  StreamConfig  `mapstructure:"stream"`
	Geo     GeoConfig     `mapstructure:"geo"`
	Notify  NotifyConfig  `mapstructure:"notify"`
	Push    PushConfig    `mapstructure:"push"`

	v  *viper.Viper
	mu sync.Mutex
}

type LogConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"` // json | text
	OTel   bool   `mapstructure:"otel"`
}

type TracingConfig struct {
	Enabled     bool    `mapstructure:"enabled"`
	SampleRatio float64 `mapstructure:"sample_ratio"`
}

type HTTPConfig struct {
	Addr              string        `mapstructure:"addr"`
	ReadHeaderTimeout time.Duration `mapstructure:"read_header_timeout"`
	ShutdownTimeout   time.Duration `mapstructure:"shutdown_timeout"`
	AllowedOrigins    []string      `mapstructure:"allowed_origins"`
	RateLimit         int           `mapstructure:"rate_limit"`        // requests per minute per client ip
	InjectRateLimit   int           `mapstructure:"inject_rate_limit"` // injection requests per minute per client ip
}

// AuthConfig guards the restricted injection endpoints.
type AuthConfig struct {
	JWTSecret string `mapstructure:"jwt_secret"`
	Issuer    string `mapstructure:"issuer"`
	Role      string `mapstructure:"role"`
}

type RedisConfig struct {
	Addr          string `mapstructure:"addr"`
	Password      string `mapstructure:"password"`
	DB            int    `mapstructure:"db"`
	Pattern       string `mapstructure:"pattern"`
	PoisonChannel string `mapstructure:"poison_channel"`
}

type StoreConfig struct {
	Driver     string `mapstructure:"driver"` // mongo | memory
	MongoURI   string `mapstructure:"mongo_uri"`
	Database   string `mapstructure:"database"`
	Collection string `mapstructure:"collection"`
}

type HubConfig struct {
	CacheCapacity int           `mapstructure:"cache_capacity"`
	EnrichTimeout time.Duration `mapstructure:"enrich_timeout"`
}

type StreamConfig struct {
	MailboxSize       int           `mapstructure:"mailbox_size"`
	SendTimeout       time.Duration `mapstructure:"send_timeout"`
	HeartbeatInterval time.Duration `mapstructure:"heartbeat_interval"`
	PollTimeout       time.Duration `mapstructure:"poll_timeout"`
	PollBatch         int           `mapstructure:"poll_batch"`
}

type GeoConfig struct {
	Enabled   bool          `mapstructure:"enabled"`
	BaseURL   string        `mapstructure:"base_url"`
	Username  string        `mapstructure:"username"`
	Timeout   time.Duration `mapstructure:"timeout"`
	CacheSize int           `mapstructure:"cache_size"`
}

type NotifyConfig struct {
	Threshold       float64       `mapstructure:"threshold"`
	Concurrency     int           `mapstructure:"concurrency"`
	DispatchTimeout time.Duration `mapstructure:"dispatch_timeout"`
}

type PushConfig struct {
	VAPIDPublicKey  string        `mapstructure:"vapid_public_key"`
	VAPIDPrivateKey string        `mapstructure:"vapid_private_key"`
	Subscriber      string        `mapstructure:"subscriber"`
	TTL             int           `mapstructure:"ttl"`
	Urgency         string        `mapstructure:"urgency"`
	Timeout         time.Duration `mapstructure:"timeout"`
	RatePerSecond   float64       `mapstructure:"rate_per_second"`
	Burst           int           `mapstructure:"burst"`
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "json")
	v.SetDefault("log.otel", false)

	v.SetDefault("tracing.enabled", false)
	v.SetDefault("tracing.sample_ratio", 1.0)

	v.SetDefault("http.addr", ":8080")
	v.SetDefault("http.read_header_timeout", 10*time.Second)
	v.SetDefault("http.shutdown_timeout", 15*time.Second)
	v.SetDefault("http.allowed_origins", []string{"*"})
	v.SetDefault("http.rate_limit", 60)
	v.SetDefault("http.inject_rate_limit", 6000)

	v.SetDefault("auth.jwt_secret", "")
	v.SetDefault("auth.issuer", "quake-producer")
	v.SetDefault("auth.role", "producer")

	v.SetDefault("redis.addr", "localhost:6379")
	v.SetDefault("redis.password", "")
	v.SetDefault("redis.db", 0)
	v.SetDefault("redis.pattern", "*")
	v.SetDefault("redis.poison_channel", "quake-delivery.poison")

	v.SetDefault("store.driver", "memory")
	v.SetDefault("store.mongo_uri", "mongodb://localhost:27017")
	v.SetDefault("store.database", "quake")
	v.SetDefault("store.collection", "push_subscriptions")

	v.SetDefault("hub.cache_capacity", 30)
	v.SetDefault("hub.enrich_timeout", 5*time.Second)

	v.SetDefault("stream.mailbox_size", 256)
	v.SetDefault("stream.send_timeout", 100*time.Millisecond)
	v.SetDefault("stream.heartbeat_interval", 15*time.Second)
	v.SetDefault("stream.poll_timeout", 30*time.Second)
	v.SetDefault("stream.poll_batch", 16)

	v.SetDefault("geo.enabled", true)
	v.SetDefault("geo.base_url", "http://api.geonames.org")
	v.SetDefault("geo.username", "demo")
	v.SetDefault("geo.timeout", 3*time.Second)
	v.SetDefault("geo.cache_size", 1024)

	v.SetDefault("notify.threshold", 5.5)
	v.SetDefault("notify.concurrency", 16)
	v.SetDefault("notify.dispatch_timeout", 30*time.Second)

	v.SetDefault("push.vapid_public_key", "")
	v.SetDefault("push.vapid_private_key", "")
	v.SetDefault("push.subscriber", "mailto:alerts@example.com")
	v.SetDefault("push.ttl", 3600)
	v.SetDefault("push.urgency", "high")
	v.SetDefault("push.timeout", 10*time.Second)
	v.SetDefault("push.rate_per_second", 50.0)
	v.SetDefault("push.burst", 10)
}

// LoadConfig layers defaults, the optional YAML file at path and QUAKE_* environment variables.
func LoadConfig(path string) (*Config, error) {
	v := viper.New()
	setDefaults(v)

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("CONFIG_READ_FAILED: %w", err)
		}
	}

	cfg, err := decode(v)
	if err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func decode(v *viper.Viper) (*Config, error) {
	cfg := &Config{v: v}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("CONFIG_DECODE_FAILED: %w", err)
	}
	return cfg, nil
}

// Watch re-reads the config file on change and hands the decoded result to onChange.
// Only settings read through onChange take effect at runtime; the rest need a restart.
// Does nothing when no config file was loaded.
func (c *Config) Watch(logger *slog.Logger, onChange func(next *Config)) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.v == nil || c.v.ConfigFileUsed() == "" {
		return
	}

	c.v.OnConfigChange(func(e fsnotify.Event) {
		next, err := decode(c.v)
		if err == nil {
			err = next.Validate()
		}
		if err != nil {
			logger.Warn("CONFIG_RELOAD_REJECTED", slog.String("file", e.Name), slog.Any("err", err))
			return
		}
		logger.Info("CONFIG_RELOADED", slog.String("file", e.Name), slog.String("op", e.Op.String()))
		onChange(next)
	})
	c.v.WatchConfig()
}

// Validate checks the combinations a running service depends on.
func (c *Config) Validate() error {
	var errs []error

	switch strings.ToLower(c.Log.Format) {
	case "json", "text":
	default:
		errs = append(errs, fmt.Errorf("log.format must be json or text, got %q", c.Log.Format))
	}
	if c.Redis.Addr == "" {
		errs = append(errs, errors.New("redis.addr is required"))
	}
	if c.Redis.Pattern == "" {
		errs = append(errs, errors.New("redis.pattern is required"))
	}

	switch c.Store.Driver {
	case "memory":
	case "mongo":
		if c.Store.MongoURI == "" || c.Store.Database == "" || c.Store.Collection == "" {
			errs = append(errs, errors.New("store.mongo_uri, store.database and store.collection are required for the mongo driver"))
		}
	default:
		errs = append(errs, fmt.Errorf("store.driver must be mongo or memory, got %q", c.Store.Driver))
	}

	if c.Hub.CacheCapacity <= 0 {
		errs = append(errs, errors.New("hub.cache_capacity must be positive"))
	}
	if c.Stream.MailboxSize <= 0 {
		errs = append(errs, errors.New("stream.mailbox_size must be positive"))
	}
	if c.Stream.HeartbeatInterval <= 0 {
		errs = append(errs, errors.New("stream.heartbeat_interval must be positive"))
	}
	if c.Geo.Enabled && c.Geo.BaseURL == "" {
		errs = append(errs, errors.New("geo.base_url is required when geo.enabled=true"))
	}
	if c.Notify.Threshold < 0 {
		errs = append(errs, errors.New("notify.threshold must not be negative"))
	}
	if c.Notify.Concurrency <= 0 {
		errs = append(errs, errors.New("notify.concurrency must be positive"))
	}
	if (c.Push.VAPIDPublicKey == "") != (c.Push.VAPIDPrivateKey == "") {
		errs = append(errs, errors.New("push.vapid_public_key and push.vapid_private_key must be set together"))
	}
	if c.Tracing.SampleRatio < 0 || c.Tracing.SampleRatio > 1 {
		errs = append(errs, errors.New("tracing.sample_ratio must be within [0, 1]"))
	}

	return errors.Join(errs...)
}

// ParseLevel maps log.level to a slog level; unknown values fall back to info.
func ParseLevel(s string) slog.Level {
	var lvl slog.Level
	if err := lvl.UnmarshalText([]byte(s)); err != nil {
		return slog.LevelInfo
	}
	return lvl
}
