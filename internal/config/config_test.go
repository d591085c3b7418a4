package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/gmkornilov/chess-analysis-backend/pkg/engine"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeFile(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestDefaults(t *testing.T) {
	cfg, err := Load("", "")
	require.NoError(t, err)
	require.NoError(t, cfg.Validate())

	assert.Equal(t, "8080", cfg.Server.Port)
	assert.Equal(t, "stockfish", cfg.Stockfish.Path)
	assert.Equal(t, 15, cfg.Analysis.Depth)
	assert.Equal(t, 1, cfg.Analysis.Lines)
	assert.Equal(t, 60*time.Second, cfg.Analysis.Timeout)
	assert.Equal(t, DriverUCI, cfg.Report.Driver)
	assert.Equal(t, "info", cfg.Log.Level)

	hash, err := cfg.HashMB()
	require.NoError(t, err)
	assert.Equal(t, 128, hash)
}

func TestFileThenEnvironment(t *testing.T) {
	path := writeFile(t, "analysis.yaml", `
server:
  port: "9000"
stockfish:
  path: /opt/stockfish
  hash: 1GB
  threads: 4
  handshake_timeout: 5s
analysis:
  depth: 22
  lines: 3
report:
  driver: session
log:
  pretty: true
`)
	t.Setenv("ANALYSIS_DEPTH", "18")
	t.Setenv("STOCKFISH_ARGS", "--bench,--quiet")

	cfg, err := Load(path, "")
	require.NoError(t, err)
	require.NoError(t, cfg.Validate())

	assert.Equal(t, "9000", cfg.Server.Port)
	assert.Equal(t, ":9000", cfg.Server.Addr())
	assert.Equal(t, "/opt/stockfish", cfg.Stockfish.Path)
	assert.Equal(t, []string{"--bench", "--quiet"}, cfg.Stockfish.Args)
	assert.Equal(t, 4, cfg.Stockfish.Threads)
	assert.Equal(t, 5*time.Second, cfg.Stockfish.HandshakeTimeout)
	assert.Equal(t, 18, cfg.Analysis.Depth)
	assert.Equal(t, 3, cfg.Analysis.Lines)
	assert.Equal(t, DriverSession, cfg.Report.Driver)
	assert.True(t, cfg.Log.Pretty)

	engineCfg, err := cfg.EngineConfig()
	require.NoError(t, err)
	assert.Equal(t, []engine.Option{engine.IntOption("Hash", 1024), engine.IntOption("Threads", 4)}, engineCfg.Options)
	assert.Equal(t, 5*time.Second, engineCfg.HandshakeTimeout)

	client, err := cfg.ClientConfig()
	require.NoError(t, err)
	assert.Equal(t, "/opt/stockfish", client.EnginePath)
	assert.Equal(t, 18, client.Defaults.Depth)
}

func TestDotEnv(t *testing.T) {
	envFile := writeFile(t, ".env", "REPORT_DEPTH=9\nFEED_URL=http://localhost/feed\n")
	t.Cleanup(func() {
		os.Unsetenv("REPORT_DEPTH")
		os.Unsetenv("FEED_URL")
	})
	t.Setenv("SERVER_HOST", "127.0.0.1")

	cfg, err := Load("", envFile)
	require.NoError(t, err)
	assert.Equal(t, 9, cfg.Report.Depth)
	assert.Equal(t, "http://localhost/feed", cfg.Feed.URL)
	assert.Equal(t, "127.0.0.1:8080", cfg.Server.Addr())
}

func TestMissingFiles(t *testing.T) {
	_, err := Load("", filepath.Join(t.TempDir(), "missing.env"))
	assert.NoError(t, err)

	_, err = Load(filepath.Join(t.TempDir(), "missing.yaml"), "")
	assert.Error(t, err)
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Configuration)
	}{
		{"empty path", func(c *Configuration) { c.Stockfish.Path = "" }},
		{"no threads", func(c *Configuration) { c.Stockfish.Threads = 0 }},
		{"zero depth", func(c *Configuration) { c.Analysis.Depth = 0 }},
		{"negative timeout", func(c *Configuration) { c.Analysis.Timeout = -time.Second }},
		{"report lines", func(c *Configuration) { c.Report.Lines = 0 }},
		{"driver", func(c *Configuration) { c.Report.Driver = "pool" }},
		{"hash garbage", func(c *Configuration) { c.Stockfish.Hash = "lots" }},
		{"hash too small", func(c *Configuration) { c.Stockfish.Hash = "512KB" }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			tt.mutate(cfg)
			assert.ErrorIs(t, cfg.Validate(), ErrInvalid)
		})
	}
}

func TestEmptyHashKeepsEngineDefault(t *testing.T) {
	cfg := Default()
	cfg.Stockfish.Hash = ""
	engineCfg, err := cfg.EngineConfig()
	require.NoError(t, err)
	assert.Equal(t, []engine.Option{engine.IntOption("Threads", 1)}, engineCfg.Options)

	opts, err := cfg.UCIEngineOptions()
	require.NoError(t, err)
	assert.Zero(t, opts.Hash)
	assert.Equal(t, 1, opts.Threads)
}
