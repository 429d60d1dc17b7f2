// Package config loads server configuration from a YAML file, the
// environment and command-line flags, in that order of precedence.
package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"go.uber.org/zap"
	"gopkg.in/yaml.v3"
)

// EnvPrefix prefixes every environment override.
const EnvPrefix = "CONOTE_"

// Database drivers.
const (
	DriverPostgres = "postgres"
	DriverMemory   = "memory"
)

// Realtime buses.
const (
	BusLocal = "local"
	BusRedis = "redis"
	BusNATS  = "nats"
)

// Config is the complete server configuration.
type Config struct {
	HTTP     HTTPConfig     `yaml:"http"`
	GRPC     GRPCConfig     `yaml:"grpc"`
	Database DatabaseConfig `yaml:"database"`
	Auth     AuthConfig     `yaml:"auth"`
	Realtime RealtimeConfig `yaml:"realtime"`
	Events   EventsConfig   `yaml:"events"`
	Log      LogConfig      `yaml:"log"`
	// Dev exposes internal error detail in API responses.
	Dev bool `yaml:"dev"`
}

type HTTPConfig struct {
	Addr            string        `yaml:"addr"`
	AllowedOrigins  []string      `yaml:"allowed_origins"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout"`
}

// GRPCConfig configures the health endpoint. An empty address disables it.
type GRPCConfig struct {
	HealthAddr string `yaml:"health_addr"`
}

type DatabaseConfig struct {
	Driver string `yaml:"driver"`
	DSN    string `yaml:"dsn"`
}

type AuthConfig struct {
	JWTKey      string        `yaml:"jwt_key"`
	AccessTTL   time.Duration `yaml:"access_ttl"`
	ExternalKey string        `yaml:"external_key"`
	Limiter     LimiterConfig `yaml:"limiter"`
}

// LimiterConfig is the login throttling policy.
type LimiterConfig struct {
	Window      time.Duration `yaml:"window"`
	MaxFailures int           `yaml:"max_failures"`
	BlockFor    time.Duration `yaml:"block_for"`
}

type RealtimeConfig struct {
	Bus           string `yaml:"bus"`
	RedisAddr     string `yaml:"redis_addr"`
	RedisPassword string `yaml:"redis_password"`
	RedisDB       int    `yaml:"redis_db"`
	NATSURL       string `yaml:"nats_url"`
	Channel       string `yaml:"channel"`
	SendBuffer    int    `yaml:"send_buffer"`
}

// EventsConfig configures the share activity stream. No brokers disables it.
type EventsConfig struct {
	Brokers []string `yaml:"brokers"`
	Topic   string   `yaml:"topic"`
}

type LogConfig struct {
	Level       string `yaml:"level"`
	Development bool   `yaml:"development"`
}

// Default returns a Config with defaults for every optional field.
func Default() *Config {
	return &Config{
		HTTP: HTTPConfig{
			Addr:            ":8080",
			ShutdownTimeout: 10 * time.Second,
		},
		Database: DatabaseConfig{Driver: DriverPostgres},
		Auth: AuthConfig{
			AccessTTL: 24 * time.Hour,
			Limiter: LimiterConfig{
				Window:      15 * time.Minute,
				MaxFailures: 5,
				BlockFor:    15 * time.Minute,
			},
		},
		Realtime: RealtimeConfig{
			Bus:        BusLocal,
			Channel:    "conote.realtime",
			SendBuffer: 64,
		},
		Events: EventsConfig{Topic: "conote.share.activity"},
		Log:    LogConfig{Level: "info"},
	}
}

// Load reads path (when set) over the defaults, loads a .env file from the
// working directory when present and applies CONOTE_* overrides.
func Load(path string) (*Config, error) {
	cfg := Default()
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("read config: %w", err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parse config: %w", err)
		}
	}
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("load .env: %w", err)
	}
	if err := cfg.applyEnv(os.LookupEnv); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) applyEnv(lookup func(string) (string, bool)) error {
	str := func(name string, dst *string) {
		if v, ok := lookup(EnvPrefix + name); ok {
			*dst = v
		}
	}
	list := func(name string, dst *[]string) {
		if v, ok := lookup(EnvPrefix + name); ok {
			*dst = splitList(v)
		}
	}
	var errs []error
	dur := func(name string, dst *time.Duration) {
		if v, ok := lookup(EnvPrefix + name); ok {
			d, err := time.ParseDuration(v)
			if err != nil {
				errs = append(errs, fmt.Errorf("%s%s: %w", EnvPrefix, name, err))
				return
			}
			*dst = d
		}
	}
	integer := func(name string, dst *int) {
		if v, ok := lookup(EnvPrefix + name); ok {
			n, err := strconv.Atoi(v)
			if err != nil {
				errs = append(errs, fmt.Errorf("%s%s: %w", EnvPrefix, name, err))
				return
			}
			*dst = n
		}
	}
	boolean := func(name string, dst *bool) {
		if v, ok := lookup(EnvPrefix + name); ok {
			b, err := strconv.ParseBool(v)
			if err != nil {
				errs = append(errs, fmt.Errorf("%s%s: %w", EnvPrefix, name, err))
				return
			}
			*dst = b
		}
	}

	str("HTTP_ADDR", &c.HTTP.Addr)
	list("HTTP_ALLOWED_ORIGINS", &c.HTTP.AllowedOrigins)
	dur("HTTP_SHUTDOWN_TIMEOUT", &c.HTTP.ShutdownTimeout)
	str("GRPC_HEALTH_ADDR", &c.GRPC.HealthAddr)
	str("DATABASE_DRIVER", &c.Database.Driver)
	str("DATABASE_DSN", &c.Database.DSN)
	str("JWT_KEY", &c.Auth.JWTKey)
	dur("ACCESS_TTL", &c.Auth.AccessTTL)
	str("EXTERNAL_KEY", &c.Auth.ExternalKey)
	str("REALTIME_BUS", &c.Realtime.Bus)
	str("REDIS_ADDR", &c.Realtime.RedisAddr)
	str("REDIS_PASSWORD", &c.Realtime.RedisPassword)
	integer("REDIS_DB", &c.Realtime.RedisDB)
	str("NATS_URL", &c.Realtime.NATSURL)
	list("KAFKA_BROKERS", &c.Events.Brokers)
	str("KAFKA_TOPIC", &c.Events.Topic)
	str("LOG_LEVEL", &c.Log.Level)
	boolean("DEV", &c.Dev)
	return errors.Join(errs...)
}

func splitList(v string) []string {
	var out []string
	for _, p := range strings.Split(v, ",") {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}

// Validate checks that the configuration can start a server.
func (c *Config) Validate() error {
	if c.Auth.JWTKey == "" {
		return fmt.Errorf("auth.jwt_key is required")
	}
	if c.Auth.AccessTTL <= 0 {
		return fmt.Errorf("auth.access_ttl must be positive")
	}
	switch c.Database.Driver {
	case DriverPostgres:
		if c.Database.DSN == "" {
			return fmt.Errorf("database.dsn is required for the postgres driver")
		}
	case DriverMemory:
	default:
		return fmt.Errorf("unknown database.driver %q", c.Database.Driver)
	}
	switch c.Realtime.Bus {
	case BusLocal:
	case BusRedis:
		if c.Realtime.RedisAddr == "" {
			return fmt.Errorf("realtime.redis_addr is required for the redis bus")
		}
	case BusNATS:
		if c.Realtime.NATSURL == "" {
			return fmt.Errorf("realtime.nats_url is required for the nats bus")
		}
	default:
		return fmt.Errorf("unknown realtime.bus %q", c.Realtime.Bus)
	}
	if len(c.Events.Brokers) > 0 && c.Events.Topic == "" {
		return fmt.Errorf("events.topic is required when brokers are set")
	}
	return nil
}

// NewLogger builds the process logger.
func (l LogConfig) NewLogger() (*zap.Logger, error) {
	zc := zap.NewProductionConfig()
	if l.Development {
		zc = zap.NewDevelopmentConfig()
	}
	if l.Level != "" {
		lvl, err := zap.ParseAtomicLevel(l.Level)
		if err != nil {
			return nil, fmt.Errorf("log.level: %w", err)
		}
		zc.Level = lvl
	}
	return zc.Build()
}
