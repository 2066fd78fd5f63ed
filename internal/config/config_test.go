package config

import (
	"log/slog"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const sample = `
application:
  name: Order Classes
  version: 1.2.0
server:
  port: "9090"
  simulated_latency: 300ms
storage:
  type: sqlite
  dsn: ${GRID_TEST_DIR}/grid.db
database:
  - name: reporting
    host: reporting.local
  - name: main
    host: localhost
    port: "5432"
    user: grid
    password: ${GRID_TEST_PASSWORD}
    database: erp
    schema: sales
    default: true
    max_conns: 4
    max_idle_time: 1m
sessions:
  idle_timeout: 10m
logging:
  level: DEBUG
`

func TestParse(t *testing.T) {
	t.Setenv("GRID_TEST_DIR", "/var/lib/grid")
	t.Setenv("GRID_TEST_PASSWORD", "s3cret")

	cfg, err := Parse([]byte(sample))
	require.NoError(t, err)

	assert.Equal(t, "Order Classes", cfg.Application.Name)
	assert.Equal(t, "en", cfg.Application.Language)
	assert.Equal(t, "9090", cfg.Server.Port)
	assert.Equal(t, 300*time.Millisecond, cfg.Server.SimulatedLatency)
	assert.Equal(t, "sqlite", cfg.Storage.Type)
	assert.Equal(t, "/var/lib/grid/grid.db", cfg.Storage.DSN)
	assert.Equal(t, 10*time.Minute, cfg.Sessions.IdleTimeout)
	assert.Equal(t, 8*time.Hour, cfg.Sessions.AbsTimeout)
	assert.Equal(t, 1000, cfg.Sessions.Max)
	assert.Equal(t, slog.LevelDebug, cfg.LogLevel())

	db, ok := cfg.DefaultDatabase()
	require.True(t, ok)
	assert.Equal(t, "main", db.Name)
	assert.Equal(t, 4, db.MaxConns)
	assert.Equal(t, time.Minute, db.MaxIdleTime)
	assert.Equal(t,
		"host=localhost port=5432 user=grid password=s3cret dbname=erp sslmode=disable search_path=sales,public",
		db.ConnString())
}

func TestParseDefaults(t *testing.T) {
	cfg, err := Parse([]byte("application:\n  name: x\n"))
	require.NoError(t, err)

	assert.Equal(t, "8080", cfg.Server.Port)
	assert.Equal(t, "memory", cfg.Storage.Type)
	assert.Equal(t, slog.LevelInfo, cfg.LogLevel())
	_, ok := cfg.DefaultDatabase()
	assert.False(t, ok)
}

func TestParseRejectsBadYAML(t *testing.T) {
	_, err := Parse([]byte("server: [unclosed"))
	assert.Error(t, err)

	_, err = Parse([]byte("server:\n  simulated_latency: soon\n"))
	assert.Error(t, err)
}

func TestLoad(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte("server:\n  port: \"7000\"\n"), 0o644))

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "7000", cfg.Server.Port)

	_, err = Load(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)
}
