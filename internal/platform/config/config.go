package config

import (
	"fmt"
	"slices"
	"strings"
	"time"

	"github.com/spf13/viper"

	"github.com/changeuikim/vercel-kayce/internal/query"
	pstrings "github.com/changeuikim/vercel-kayce/pkg/platform/strings"
	"github.com/changeuikim/vercel-kayce/pkg/platform/tx"
)

// Config is the process configuration shared by the server and the CLI.
type Config struct {
	Server   Server
	Database Database
	Identity Identity
	Query    Query
	Redis    RedisConfig
	Kafka    Kafka
	Log      Log
}

// Server captures HTTP server level configuration.
type Server struct {
	Addr string
	// Production strips diagnostic metadata from UnknownError responses.
	Production bool
}

type Database struct {
	Driver    string
	URL       string
	TxTimeout time.Duration
}

// Identity configures identity hashing and ID token parsing. An empty
// TokenKey disables token-based creation.
type Identity struct {
	Pepper      string
	TokenKey    string
	TokenIssuer string
}

type Query struct {
	MaxTake        int
	MaxFilterDepth int
}

// RedisConfig enables the count cache when URL is set. URL accepts a
// redis:// URL or a bare host:port.
type RedisConfig struct {
	URL          string
	CountTTL     time.Duration
	PoolSize     int
	MinIdleConns int
	DialTimeout  time.Duration
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
}

// Kafka enables lifecycle event publishing when Brokers is non-empty.
type Kafka struct {
	Brokers []string
	Topic   string
}

type Log struct {
	Format string
	Level  string
}

var drivers = []string{"pgx", "postgres", "sqlite"}

func setDefaults(v *viper.Viper) {
	v.SetDefault("APP_ADDR", ":8080")
	v.SetDefault("APP_ENV", "development")
	v.SetDefault("DATABASE_DRIVER", "sqlite")
	v.SetDefault("DATABASE_URL", "file:users.db?_pragma=busy_timeout(5000)&_pragma=foreign_keys(1)")
	v.SetDefault("TX_TIMEOUT", tx.DefaultTimeout)
	v.SetDefault("IDENTITY_TOKEN_ISSUER", "")
	v.SetDefault("QUERY_MAX_TAKE", query.DefaultMaxTake)
	v.SetDefault("QUERY_MAX_FILTER_DEPTH", query.DefaultMaxFilterDepth)
	v.SetDefault("COUNT_CACHE_TTL", 30*time.Second)
	v.SetDefault("REDIS_POOL_SIZE", 10)
	v.SetDefault("REDIS_MIN_IDLE_CONNS", 2)
	v.SetDefault("REDIS_DIAL_TIMEOUT", 5*time.Second)
	v.SetDefault("REDIS_READ_TIMEOUT", 3*time.Second)
	v.SetDefault("REDIS_WRITE_TIMEOUT", 3*time.Second)
	v.SetDefault("KAFKA_TOPIC", "users.lifecycle")
	v.SetDefault("LOG_FORMAT", "text")
	v.SetDefault("LOG_LEVEL", "info")
}

// FromEnv builds a Config from environment variables so main stays lean.
func FromEnv() (Config, error) {
	return Load("")
}

// Load reads environment variables and, when path is set, a config file.
// Environment variables win over the file. File keys use the variable names
// (database_url, kafka_brokers, ...).
func Load(path string) (Config, error) {
	v := viper.New()
	setDefaults(v)
	v.AutomaticEnv()
	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return Config{}, fmt.Errorf("read config %s: %w", path, err)
		}
	}

	cfg := Config{
		Server: Server{
			Addr:       v.GetString("APP_ADDR"),
			Production: strings.EqualFold(v.GetString("APP_ENV"), "production"),
		},
		Database: Database{
			Driver:    strings.ToLower(v.GetString("DATABASE_DRIVER")),
			URL:       v.GetString("DATABASE_URL"),
			TxTimeout: v.GetDuration("TX_TIMEOUT"),
		},
		Identity: Identity{
			Pepper:      v.GetString("IDENTITY_PEPPER"),
			TokenKey:    v.GetString("IDENTITY_TOKEN_KEY"),
			TokenIssuer: v.GetString("IDENTITY_TOKEN_ISSUER"),
		},
		Query: Query{
			MaxTake:        v.GetInt("QUERY_MAX_TAKE"),
			MaxFilterDepth: v.GetInt("QUERY_MAX_FILTER_DEPTH"),
		},
		Redis: RedisConfig{
			URL:          firstNonEmpty(v.GetString("REDIS_URL"), v.GetString("REDIS_ADDR")),
			CountTTL:     v.GetDuration("COUNT_CACHE_TTL"),
			PoolSize:     v.GetInt("REDIS_POOL_SIZE"),
			MinIdleConns: v.GetInt("REDIS_MIN_IDLE_CONNS"),
			DialTimeout:  v.GetDuration("REDIS_DIAL_TIMEOUT"),
			ReadTimeout:  v.GetDuration("REDIS_READ_TIMEOUT"),
			WriteTimeout: v.GetDuration("REDIS_WRITE_TIMEOUT"),
		},
		Kafka: Kafka{
			Brokers: pstrings.SplitList(v.GetString("KAFKA_BROKERS")),
			Topic:   v.GetString("KAFKA_TOPIC"),
		},
		Log: Log{
			Format: strings.ToLower(v.GetString("LOG_FORMAT")),
			Level:  strings.ToLower(v.GetString("LOG_LEVEL")),
		},
	}
	return cfg, cfg.validate()
}

func (c Config) validate() error {
	if !slices.Contains(drivers, c.Database.Driver) {
		return fmt.Errorf("DATABASE_DRIVER must be one of %s, got %q", strings.Join(drivers, ", "), c.Database.Driver)
	}
	if c.Database.URL == "" {
		return fmt.Errorf("DATABASE_URL is required")
	}
	if c.Query.MaxTake <= 0 {
		return fmt.Errorf("QUERY_MAX_TAKE must be positive, got %d", c.Query.MaxTake)
	}
	if c.Query.MaxFilterDepth <= 0 {
		return fmt.Errorf("QUERY_MAX_FILTER_DEPTH must be positive, got %d", c.Query.MaxFilterDepth)
	}
	if len(c.Kafka.Brokers) > 0 && c.Kafka.Topic == "" {
		return fmt.Errorf("KAFKA_TOPIC is required when KAFKA_BROKERS is set")
	}
	return nil
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}
