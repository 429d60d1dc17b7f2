package main

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/and161185/conote/internal/config"
)

func TestLoadConfig_FlagsOverrideFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "conote.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
http:
  addr: ":9000"
database:
  driver: memory
auth:
  jwt_key: from-file
`), 0o600))

	cmd := rootCmd()
	f := flags{configPath: path, jwtKey: "from-flag"}
	require.NoError(t, cmd.ParseFlags([]string{"--jwt-key", "from-flag"}))
	cfg, err := loadConfig(cmd, f)
	require.NoError(t, err)
	assert.Equal(t, ":9000", cfg.HTTP.Addr, "unset flag keeps the file value")
	assert.Equal(t, "from-flag", cfg.Auth.JWTKey)
	assert.Equal(t, config.DriverMemory, cfg.Database.Driver)
	assert.False(t, cfg.Dev)
}

func TestRun_RejectsInvalidConfig(t *testing.T) {
	cfg := config.Default()
	cfg.Database.Driver = config.DriverMemory
	err := run(context.Background(), cfg)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "jwt_key")
}

func TestRun_MemoryDriverStopsOnCancel(t *testing.T) {
	cfg := config.Default()
	cfg.Database.Driver = config.DriverMemory
	cfg.Auth.JWTKey = "k"
	cfg.HTTP.Addr = "127.0.0.1:0"

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	require.NoError(t, run(ctx, cfg))
}

func TestVersionCommand(t *testing.T) {
	cmd := rootCmd()
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetArgs([]string{"version"})
	require.NoError(t, cmd.Execute())
	assert.True(t, strings.HasPrefix(out.String(), "conote-server dev"), out.String())
}

func TestMigrate_RequiresDSN(t *testing.T) {
	t.Setenv("CONOTE_DATABASE_DSN", "")
	cmd := rootCmd()
	cmd.SetArgs([]string{"migrate", "up"})
	err := cmd.Execute()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "dsn is not set")
}
