package config

import (
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// Config holds all configuration for the dispatch and tracking daemons.
type Config struct {
	Server      ServerConfig     `yaml:"server"`
	Database    DatabaseConfig   `yaml:"database"`
	Redis       RedisConfig      `yaml:"redis"`
	DKIM        DKIMConfig       `yaml:"dkim"`
	Dispatch    DispatchConfig   `yaml:"dispatch"`
	Tracking    TrackingConfig   `yaml:"tracking"`
	Conversions ConversionConfig `yaml:"conversions"`
	Log         LogConfig        `yaml:"log"`
}

// ServerConfig holds listen addresses and HTTP timeouts.
type ServerConfig struct {
	APIPort                int      `yaml:"api_port"`
	TrackingPort           int      `yaml:"tracking_port"`
	AllowedOrigins         []string `yaml:"allowed_origins"`
	ReadTimeoutSeconds     int      `yaml:"read_timeout_seconds"`
	WriteTimeoutSeconds    int      `yaml:"write_timeout_seconds"`
	ShutdownTimeoutSeconds int      `yaml:"shutdown_timeout_seconds"`
}

func (s ServerConfig) ReadTimeout() time.Duration {
	return time.Duration(s.ReadTimeoutSeconds) * time.Second
}

func (s ServerConfig) WriteTimeout() time.Duration {
	return time.Duration(s.WriteTimeoutSeconds) * time.Second
}

func (s ServerConfig) ShutdownTimeout() time.Duration {
	return time.Duration(s.ShutdownTimeoutSeconds) * time.Second
}

// DatabaseConfig holds PostgreSQL connection settings.
type DatabaseConfig struct {
	URL                    string `yaml:"url"`
	MaxOpenConns           int    `yaml:"max_open_conns"`
	MaxIdleConns           int    `yaml:"max_idle_conns"`
	ConnMaxLifetimeMinutes int    `yaml:"conn_max_lifetime_minutes"`
}

func (d DatabaseConfig) ConnMaxLifetime() time.Duration {
	return time.Duration(d.ConnMaxLifetimeMinutes) * time.Minute
}

// RedisConfig holds the connection for throttling and worker coordination.
type RedisConfig struct {
	Addr     string `yaml:"addr"`
	Password string `yaml:"password"`
	DB       int    `yaml:"db"`
}

// DKIMConfig identifies the signing domain, selector, and private key.
// Canonicalization is "relaxed" or "simple" per side.
type DKIMConfig struct {
	Domain      string `yaml:"domain"`
	Selector    string `yaml:"selector"`
	KeyPath     string `yaml:"key_path"`
	HeaderCanon string `yaml:"header_canon"`
	BodyCanon   string `yaml:"body_canon"`
}

// DispatchConfig shapes the send loop: worker count, retry ceiling, per-attempt
// timeout, and the inter-send pacing delays.
type DispatchConfig struct {
	Workers            int `yaml:"workers"`
	BatchSize          int `yaml:"batch_size"`
	MaxAttempts        int `yaml:"max_attempts"`
	SendTimeoutSeconds int `yaml:"send_timeout_seconds"`
	QueuePollSeconds   int `yaml:"queue_poll_seconds"`

	// BaseDelayMs applies between successive recipients; DomainDelaysMs
	// overrides it per recipient domain (big webmail providers get more).
	// JitterMs of randomized extra delay is added on top of either.
	BaseDelayMs    int            `yaml:"base_delay_ms"`
	DomainDelaysMs map[string]int `yaml:"domain_delays_ms"`
	JitterMs       int            `yaml:"jitter_ms"`

	// DomainPerMinute caps sends per recipient domain across all workers.
	DomainPerMinute int `yaml:"domain_per_minute"`
}

func (d DispatchConfig) SendTimeout() time.Duration {
	return time.Duration(d.SendTimeoutSeconds) * time.Second
}

func (d DispatchConfig) QueuePoll() time.Duration {
	return time.Duration(d.QueuePollSeconds) * time.Second
}

// DelayFor returns the inter-send base delay for a recipient domain.
func (d DispatchConfig) DelayFor(domain string) time.Duration {
	if ms, ok := d.DomainDelaysMs[domain]; ok {
		return time.Duration(ms) * time.Millisecond
	}
	return time.Duration(d.BaseDelayMs) * time.Millisecond
}

// TrackingConfig holds the public URLs baked into outgoing mail.
type TrackingConfig struct {
	// BaseURL is the externally visible root of the tracking daemon,
	// e.g. "https://t.arkmail.io".
	BaseURL string `yaml:"base_url"`
	// FallbackURL receives click redirects that fail to resolve.
	FallbackURL string `yaml:"fallback_url"`
}

// ConversionConfig maps destination-URL keywords to conversion buckets.
// Buckets are checked in the fixed order purchase, signup, download, contact;
// the first matching keyword wins.
type ConversionConfig struct {
	Purchase []string `yaml:"purchase"`
	Signup   []string `yaml:"signup"`
	Download []string `yaml:"download"`
	Contact  []string `yaml:"contact"`
}

// LogConfig controls the structured logger.
type LogConfig struct {
	Level string `yaml:"level"`
}

// Default returns the configuration used when no file is given.
func Default() *Config {
	cfg := &Config{}
	cfg.applyDefaults()
	return cfg
}

// Load reads and parses the configuration file, then fills defaults.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, err
	}
	cfg.applyDefaults()
	return &cfg, nil
}

// LoadFromEnv loads configuration with environment variable overrides.
// It loads a .env file first (if present) so secrets can live in .env locally
// and in real env vars in production. A missing config file is not an error;
// defaults plus env vars are enough to boot either daemon.
func LoadFromEnv(path string) (*Config, error) {
	_ = godotenv.Load()

	var cfg *Config
	if path != "" {
		loaded, err := Load(path)
		if err != nil {
			if !os.IsNotExist(err) {
				return nil, err
			}
			cfg = Default()
		} else {
			cfg = loaded
		}
	} else {
		cfg = Default()
	}

	if v := os.Getenv("DATABASE_URL"); v != "" {
		cfg.Database.URL = v
	}
	if v := os.Getenv("REDIS_ADDR"); v != "" {
		cfg.Redis.Addr = v
	}
	if v := os.Getenv("REDIS_PASSWORD"); v != "" {
		cfg.Redis.Password = v
	}
	if v := os.Getenv("DKIM_DOMAIN"); v != "" {
		cfg.DKIM.Domain = v
	}
	if v := os.Getenv("DKIM_SELECTOR"); v != "" {
		cfg.DKIM.Selector = v
	}
	if v := os.Getenv("DKIM_KEY_PATH"); v != "" {
		cfg.DKIM.KeyPath = v
	}
	if v := os.Getenv("TRACKING_BASE_URL"); v != "" {
		cfg.Tracking.BaseURL = v
	}
	if v := os.Getenv("TRACKING_FALLBACK_URL"); v != "" {
		cfg.Tracking.FallbackURL = v
	}
	if v := os.Getenv("API_PORT"); v != "" {
		if p, err := strconv.Atoi(v); err == nil {
			cfg.Server.APIPort = p
		}
	}
	if v := os.Getenv("TRACKING_PORT"); v != "" {
		if p, err := strconv.Atoi(v); err == nil {
			cfg.Server.TrackingPort = p
		}
	}
	if v := os.Getenv("LOG_LEVEL"); v != "" {
		cfg.Log.Level = v
	}

	return cfg, nil
}

func (cfg *Config) applyDefaults() {
	if cfg.Server.APIPort == 0 {
		cfg.Server.APIPort = 8080
	}
	if cfg.Server.TrackingPort == 0 {
		cfg.Server.TrackingPort = 8081
	}
	if cfg.Server.ReadTimeoutSeconds == 0 {
		cfg.Server.ReadTimeoutSeconds = 15
	}
	if cfg.Server.WriteTimeoutSeconds == 0 {
		cfg.Server.WriteTimeoutSeconds = 30
	}
	if cfg.Server.ShutdownTimeoutSeconds == 0 {
		cfg.Server.ShutdownTimeoutSeconds = 10
	}
	if cfg.Database.MaxOpenConns == 0 {
		cfg.Database.MaxOpenConns = 25
	}
	if cfg.Database.MaxIdleConns == 0 {
		cfg.Database.MaxIdleConns = 5
	}
	if cfg.Database.ConnMaxLifetimeMinutes == 0 {
		cfg.Database.ConnMaxLifetimeMinutes = 30
	}
	if cfg.Redis.Addr == "" {
		cfg.Redis.Addr = "localhost:6379"
	}
	if cfg.DKIM.Selector == "" {
		cfg.DKIM.Selector = "mail"
	}
	if cfg.DKIM.HeaderCanon == "" {
		cfg.DKIM.HeaderCanon = "relaxed"
	}
	if cfg.DKIM.BodyCanon == "" {
		cfg.DKIM.BodyCanon = "simple"
	}
	if cfg.Dispatch.Workers == 0 {
		cfg.Dispatch.Workers = 2
	}
	if cfg.Dispatch.BatchSize == 0 {
		cfg.Dispatch.BatchSize = 100
	}
	if cfg.Dispatch.MaxAttempts == 0 {
		cfg.Dispatch.MaxAttempts = 3
	}
	if cfg.Dispatch.SendTimeoutSeconds == 0 {
		cfg.Dispatch.SendTimeoutSeconds = 30
	}
	if cfg.Dispatch.QueuePollSeconds == 0 {
		cfg.Dispatch.QueuePollSeconds = 5
	}
	if cfg.Dispatch.BaseDelayMs == 0 {
		cfg.Dispatch.BaseDelayMs = 250
	}
	if cfg.Dispatch.JitterMs == 0 {
		cfg.Dispatch.JitterMs = 2000
	}
	if cfg.Dispatch.DomainPerMinute == 0 {
		cfg.Dispatch.DomainPerMinute = 600
	}
	if cfg.Dispatch.DomainDelaysMs == nil {
		cfg.Dispatch.DomainDelaysMs = map[string]int{
			"gmail.com":   1000,
			"yahoo.com":   1500,
			"aol.com":     1500,
			"hotmail.com": 1000,
			"outlook.com": 1000,
			"icloud.com":  2000,
		}
	}
	if cfg.Tracking.BaseURL == "" {
		cfg.Tracking.BaseURL = "http://localhost:8081"
	}
	if cfg.Tracking.FallbackURL == "" {
		cfg.Tracking.FallbackURL = "/"
	}
	if len(cfg.Conversions.Purchase) == 0 {
		cfg.Conversions.Purchase = []string{"checkout", "buy", "purchase", "order", "payment", "cart"}
	}
	if len(cfg.Conversions.Signup) == 0 {
		cfg.Conversions.Signup = []string{"signup", "sign-up", "register", "subscribe", "join"}
	}
	if len(cfg.Conversions.Download) == 0 {
		cfg.Conversions.Download = []string{"download", "install", "get-app"}
	}
	if len(cfg.Conversions.Contact) == 0 {
		cfg.Conversions.Contact = []string{"contact", "demo", "quote", "talk-to-sales"}
	}
	if cfg.Log.Level == "" {
		cfg.Log.Level = "info"
	}
}
