// File: internal/config/config.go
package config

import (
	"errors"
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

type RuntimeConfig struct {
	Dev bool
}

type LogConfig struct {
	Level    string `yaml:"level"`    // trace|debug|info|warn|error
	Format   string `yaml:"format"`   // json|console
	Sampling bool   `yaml:"sampling"` // enable sampling in prod
}

type HTTPConfig struct {
	Port           int           `yaml:"port"`
	RequestTimeout time.Duration `yaml:"request_timeout"`
	AuthSecret     string        `yaml:"auth_secret"` // empty leaves the API open
	TokenTTL       time.Duration `yaml:"token_ttl"`   // 0 = tokens never expire
}

const (
	DriverMemory   = "memory"
	DriverRedis    = "redis"
	DriverPostgres = "postgres"
)

type StorageConfig struct {
	Driver string `yaml:"driver"` // memory|redis|postgres
}

type DatabaseConfig struct {
	URL      string `yaml:"url"`
	MaxConns int32  `yaml:"max_conns"`
}

type RedisConfig struct {
	URL      string        `yaml:"url"`
	Password string        `yaml:"password"`
	DB       int           `yaml:"db"`
	TTL      time.Duration `yaml:"ttl"` // chat bindings and cached profiles; sessions never expire
}

type ChatConfig struct {
	MinDelay      time.Duration `yaml:"min_delay"`
	MaxDelay      time.Duration `yaml:"max_delay"`
	SeedGreeting  *bool         `yaml:"seed_greeting"`
	TemplatesLang string        `yaml:"templates_lang"`
	TemplatesDir  string        `yaml:"templates_dir"` // optional, overrides the embedded bank
	RandomSeed    uint64        `yaml:"random_seed"`   // 0 = seed from entropy
	SubmitLimit   int           `yaml:"submit_limit"`  // per session per window, 0 = unlimited
	SubmitWindow  time.Duration `yaml:"submit_window"`
}

// GreetingEnabled reports whether new sessions start with the greeting.
func (c ChatConfig) GreetingEnabled() bool {
	return c.SeedGreeting == nil || *c.SeedGreeting
}

// LexiconConfig adds keywords on top of the built-in lexicon.
type LexiconConfig struct {
	Database  []string `yaml:"database"`
	WebServer []string `yaml:"webserver"`
	OS        []string `yaml:"os"`
}

// ProfileConfig seeds the shared profile when storage has none.
type ProfileConfig struct {
	OperatingSystem   string   `yaml:"operating_system"`
	Database          string   `yaml:"database"`
	WebServers        []string `yaml:"web_servers"`
	IncludeOS         *bool    `yaml:"include_os"`
	IncludeDatabase   *bool    `yaml:"include_database"`
	IncludeWebServers *bool    `yaml:"include_web_servers"`
}

// IsSet reports whether any profile value was configured.
func (p ProfileConfig) IsSet() bool {
	return p.OperatingSystem != "" || p.Database != "" || len(p.WebServers) > 0
}

// TelegramConfig enables the Telegram front end when Token is set.
type TelegramConfig struct {
	Token    string  `yaml:"token"`
	AdminIDs []int64 `yaml:"admin_ids"`
	Workers  int     `yaml:"workers"`
}

type StatsConfig struct {
	Interval time.Duration `yaml:"interval"`
}

type SecurityConfig struct {
	EncryptionKey string `yaml:"encryption_key"`
}

type Config struct {
	Log      LogConfig      `yaml:"log"`
	HTTP     HTTPConfig     `yaml:"http"`
	Storage  StorageConfig  `yaml:"storage"`
	Database DatabaseConfig `yaml:"database"`
	Redis    RedisConfig    `yaml:"redis"`
	Chat     ChatConfig     `yaml:"chat"`
	Lexicon  LexiconConfig  `yaml:"lexicon"`
	Profile  ProfileConfig  `yaml:"profile"`
	Stats    StatsConfig    `yaml:"stats"`
	Telegram TelegramConfig `yaml:"telegram"`
	Security SecurityConfig `yaml:"security"`

	Runtime RuntimeConfig `yaml:"-"`
}

// LoadConfig reads path. An empty path yields the defaults, which run the
// engine in memory.
func LoadConfig(path string, dev bool) (*Config, error) {
	var cfg Config
	if path != "" {
		b, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("read config: %w", err)
		}
		if err := yaml.Unmarshal(b, &cfg); err != nil {
			return nil, fmt.Errorf("parse config: %w", err)
		}
	}
	cfg.applyDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	cfg.Runtime.Dev = dev
	return &cfg, nil
}

func (cfg *Config) applyDefaults() {
	if cfg.Log.Level == "" {
		cfg.Log.Level = "info"
	}
	if cfg.Log.Format == "" {
		cfg.Log.Format = "json"
	}
	if cfg.HTTP.Port <= 0 {
		cfg.HTTP.Port = 8080
	}
	if cfg.HTTP.RequestTimeout <= 0 {
		cfg.HTTP.RequestTimeout = 15 * time.Second
	}
	if cfg.Storage.Driver == "" {
		cfg.Storage.Driver = DriverMemory
	}
	if cfg.Database.MaxConns <= 0 {
		cfg.Database.MaxConns = 10
	}
	cfg.Redis.TTL = normalizeTTL(cfg.Redis.TTL)

	if cfg.Chat.MinDelay == 0 && cfg.Chat.MaxDelay == 0 {
		cfg.Chat.MinDelay = time.Second
		cfg.Chat.MaxDelay = 2 * time.Second
	}
	if cfg.Chat.TemplatesLang == "" {
		cfg.Chat.TemplatesLang = "en"
	}
	if cfg.Chat.SubmitWindow <= 0 {
		cfg.Chat.SubmitWindow = time.Minute
	}
	if cfg.Stats.Interval <= 0 {
		cfg.Stats.Interval = 30 * time.Second
	}
}

// Validate rejects settings the engine cannot run with.
func (cfg *Config) Validate() error {
	if cfg.Chat.MinDelay < 0 || cfg.Chat.MaxDelay < 0 {
		return errors.New("chat delays must not be negative")
	}
	if cfg.Chat.MinDelay > cfg.Chat.MaxDelay {
		return fmt.Errorf("chat.min_delay (%s) is greater than chat.max_delay (%s)", cfg.Chat.MinDelay, cfg.Chat.MaxDelay)
	}
	if cfg.Chat.SubmitLimit < 0 {
		return errors.New("chat.submit_limit must not be negative")
	}

	switch cfg.Storage.Driver {
	case DriverMemory:
	case DriverRedis:
		if cfg.Redis.URL == "" {
			return errors.New("redis.url is required for the redis storage driver")
		}
	case DriverPostgres:
		if cfg.Database.URL == "" {
			return errors.New("database.url is required for the postgres storage driver")
		}
	default:
		return fmt.Errorf("unknown storage.driver %q", cfg.Storage.Driver)
	}
	if cfg.Chat.SubmitLimit > 0 && cfg.Redis.URL == "" {
		return errors.New("redis.url is required when chat.submit_limit is set")
	}

	if s := cfg.HTTP.AuthSecret; s != "" && len(s) < 32 {
		return errors.New("http.auth_secret must be at least 32 bytes")
	}
	if k := cfg.Security.EncryptionKey; k != "" {
		switch len(k) {
		case 16, 24, 32:
		default:
			return fmt.Errorf("security.encryption_key must be 16, 24 or 32 bytes, got %d", len(k))
		}
	}
	return nil
}

func normalizeTTL(d time.Duration) time.Duration {
	if d <= 0 {
		return 24 * time.Hour
	}
	return d
}
