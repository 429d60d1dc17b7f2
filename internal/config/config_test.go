package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func envMap(m map[string]string) func(string) (string, bool) {
	return func(k string) (string, bool) {
		v, ok := m[k]
		return v, ok
	}
}

func TestLoad_FileOverDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "conote.yaml")
	const doc = `
http:
  addr: ":9000"
  allowed_origins: ["https://app.example"]
  shutdown_timeout: 3s
database:
  driver: memory
auth:
  jwt_key: k
  access_ttl: 1h
  limiter:
    max_failures: 3
realtime:
  bus: nats
  nats_url: nats://localhost:4222
`
	require.NoError(t, os.WriteFile(path, []byte(doc), 0o600))

	cfg, err := Load(path)
	require.NoError(t, err)
	require.Equal(t, ":9000", cfg.HTTP.Addr)
	require.Equal(t, []string{"https://app.example"}, cfg.HTTP.AllowedOrigins)
	require.Equal(t, 3*time.Second, cfg.HTTP.ShutdownTimeout)
	require.Equal(t, DriverMemory, cfg.Database.Driver)
	require.Equal(t, time.Hour, cfg.Auth.AccessTTL)
	require.Equal(t, 3, cfg.Auth.Limiter.MaxFailures)
	require.Equal(t, 15*time.Minute, cfg.Auth.Limiter.Window, "unset fields keep defaults")
	require.Equal(t, BusNATS, cfg.Realtime.Bus)
	require.NoError(t, cfg.Validate())
}

func TestLoad_MissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	require.ErrorContains(t, err, "read config")
}

func TestApplyEnv(t *testing.T) {
	cfg := Default()
	err := cfg.applyEnv(envMap(map[string]string{
		"CONOTE_HTTP_ADDR":     ":1",
		"CONOTE_DATABASE_DSN":  "postgres://x",
		"CONOTE_JWT_KEY":       "secret",
		"CONOTE_KAFKA_BROKERS": "a:9092, b:9092,",
		"CONOTE_REDIS_DB":      "2",
		"CONOTE_ACCESS_TTL":    "30m",
		"CONOTE_DEV":           "true",
	}))
	require.NoError(t, err)
	require.Equal(t, ":1", cfg.HTTP.Addr)
	require.Equal(t, "postgres://x", cfg.Database.DSN)
	require.Equal(t, "secret", cfg.Auth.JWTKey)
	require.Equal(t, []string{"a:9092", "b:9092"}, cfg.Events.Brokers)
	require.Equal(t, 2, cfg.Realtime.RedisDB)
	require.Equal(t, 30*time.Minute, cfg.Auth.AccessTTL)
	require.True(t, cfg.Dev)

	err = cfg.applyEnv(envMap(map[string]string{
		"CONOTE_REDIS_DB":   "two",
		"CONOTE_ACCESS_TTL": "soon",
	}))
	require.ErrorContains(t, err, "CONOTE_REDIS_DB")
	require.ErrorContains(t, err, "CONOTE_ACCESS_TTL")
}

func TestValidate(t *testing.T) {
	valid := func() *Config {
		c := Default()
		c.Auth.JWTKey = "k"
		c.Database.DSN = "postgres://x"
		return c
	}
	require.NoError(t, valid().Validate())

	cases := map[string]func(*Config){
		"auth.jwt_key":          func(c *Config) { c.Auth.JWTKey = "" },
		"database.dsn":          func(c *Config) { c.Database.DSN = "" },
		"unknown database":      func(c *Config) { c.Database.Driver = "sqlite" },
		"realtime.redis_addr":   func(c *Config) { c.Realtime.Bus = BusRedis },
		"realtime.nats_url":     func(c *Config) { c.Realtime.Bus = BusNATS },
		"unknown realtime.bus":  func(c *Config) { c.Realtime.Bus = "carrier-pigeon" },
		"events.topic":          func(c *Config) { c.Events.Brokers = []string{"b"}; c.Events.Topic = "" },
		"auth.access_ttl":       func(c *Config) { c.Auth.AccessTTL = 0 },
	}
	for want, mutate := range cases {
		t.Run(want, func(t *testing.T) {
			c := valid()
			mutate(c)
			require.ErrorContains(t, c.Validate(), want)
		})
	}

	mem := valid()
	mem.Database = DatabaseConfig{Driver: DriverMemory}
	require.NoError(t, mem.Validate())
}

func TestNewLogger(t *testing.T) {
	l, err := LogConfig{Level: "debug", Development: true}.NewLogger()
	require.NoError(t, err)
	require.NotNil(t, l)

	_, err = LogConfig{Level: "loud"}.NewLogger()
	require.Error(t, err)
}
