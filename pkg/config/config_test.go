package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()

	assert.Equal(t, 60, cfg.Crawl.Workers)
	assert.Equal(t, 3, cfg.Fetch.Retries)
	assert.Equal(t, 2, cfg.Proxy.RetryCeiling)
	assert.Equal(t, 800, cfg.Proxy.MaxValidators)
	assert.Equal(t, 10, cfg.Proxy.CheckedWatermark)
	assert.Equal(t, 10*time.Second, cfg.Proxy.Timeout)
	assert.Equal(t, "https://m.weibo.cn/", cfg.Proxy.CheckURL)
	assert.Equal(t, time.Duration(0), cfg.Proxy.AcquireTimeout)
	assert.NoError(t, cfg.Validate())
}

func TestLoadFromEnv(t *testing.T) {
	t.Setenv("WEIBOCRAWL_WORKERS", "8")
	t.Setenv("WEIBOCRAWL_FETCH_RETRIES", "5")
	t.Setenv("WEIBOCRAWL_PROXY_TIMEOUT", "3s")
	t.Setenv("WEIBOCRAWL_OUTPUT", "/tmp/out.xlsx")
	t.Setenv("WEIBOCRAWL_OUTPUT_FORMAT", "xlsx")
	t.Setenv("WEIBOCRAWL_LOG_LEVEL", "debug")

	cfg := DefaultConfig()
	require.NoError(t, cfg.LoadFromEnv())

	assert.Equal(t, 8, cfg.Crawl.Workers)
	assert.Equal(t, 5, cfg.Fetch.Retries)
	assert.Equal(t, 3*time.Second, cfg.Proxy.Timeout)
	assert.Equal(t, "/tmp/out.xlsx", cfg.Output.Path)
	assert.Equal(t, "xlsx", cfg.Output.Format)
	assert.Equal(t, "debug", cfg.Logging.Level)
}

func TestLoadFromEnvInvalidValues(t *testing.T) {
	t.Setenv("WEIBOCRAWL_WORKERS", "many")
	t.Setenv("WEIBOCRAWL_PROXY_TIMEOUT", "soon")

	cfg := DefaultConfig()
	err := cfg.LoadFromEnv()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "WEIBOCRAWL_WORKERS")
	assert.Contains(t, err.Error(), "WEIBOCRAWL_PROXY_TIMEOUT")
	assert.Equal(t, 60, cfg.Crawl.Workers)
}

func TestLoadFromFile(t *testing.T) {
	t.Run("valid yaml file", func(t *testing.T) {
		configPath := filepath.Join(t.TempDir(), "weibocrawl.yaml")
		content := `
crawl:
  workers: 4
  page_delay: 50ms
  max_pages: 3
proxy:
  retry_ceiling: 4
  force_release_after: 2
  idle_backoff: 30s
  acquire_timeout: 2m
fetch:
  retries: 1
  requests_per_second: 2.5
suppliers:
  static_file: proxies.txt
  html_tables:
    - https://example.com/free
targets:
  range_start: 100
  range_end: 200
output:
  path: out.ndjson
  format: ndjson
logging:
  level: warn
`
		require.NoError(t, os.WriteFile(configPath, []byte(content), 0644))

		cfg := DefaultConfig()
		require.NoError(t, cfg.LoadFromFile(configPath))

		assert.Equal(t, 4, cfg.Crawl.Workers)
		assert.Equal(t, 50*time.Millisecond, cfg.Crawl.PageDelay)
		assert.Equal(t, 3, cfg.Crawl.MaxPages)
		assert.Equal(t, 4, cfg.Proxy.RetryCeiling)
		assert.Equal(t, 2, cfg.Proxy.ForceReleaseAfter)
		assert.Equal(t, 30*time.Second, cfg.Proxy.IdleBackoff)
		assert.Equal(t, 2*time.Minute, cfg.Proxy.AcquireTimeout)
		assert.Equal(t, 1, cfg.Fetch.Retries)
		assert.Equal(t, 2.5, cfg.Fetch.RequestsPerSecond)
		assert.Equal(t, "proxies.txt", cfg.Suppliers.StaticFile)
		assert.Equal(t, []string{"https://example.com/free"}, cfg.Suppliers.HTMLTables)
		assert.Equal(t, int64(100), cfg.Targets.RangeStart)
		assert.Equal(t, "ndjson", cfg.Output.Format)
		assert.Equal(t, "warn", cfg.Logging.Level)

		// untouched sections keep their defaults
		assert.Equal(t, 800, cfg.Proxy.MaxValidators)
	})

	t.Run("missing file", func(t *testing.T) {
		cfg := DefaultConfig()
		err := cfg.LoadFromFile(filepath.Join(t.TempDir(), "nope.yaml"))
		assert.Error(t, err)
	})

	t.Run("invalid yaml", func(t *testing.T) {
		configPath := filepath.Join(t.TempDir(), "bad.yaml")
		require.NoError(t, os.WriteFile(configPath, []byte("crawl: [workers"), 0644))

		cfg := DefaultConfig()
		assert.Error(t, cfg.LoadFromFile(configPath))
	})
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		modify  func(*Config)
		wantErr string
	}{
		{
			name:   "defaults are valid",
			modify: func(c *Config) {},
		},
		{
			name:    "zero workers",
			modify:  func(c *Config) { c.Crawl.Workers = 0 },
			wantErr: "workers must be positive",
		},
		{
			name:    "negative fetch retries",
			modify:  func(c *Config) { c.Fetch.Retries = -1 },
			wantErr: "fetch retries cannot be negative",
		},
		{
			name:    "zero retry ceiling",
			modify:  func(c *Config) { c.Proxy.RetryCeiling = 0 },
			wantErr: "proxy retry ceiling must be positive",
		},
		{
			name:    "zero validators",
			modify:  func(c *Config) { c.Proxy.MaxValidators = 0 },
			wantErr: "max validators must be positive",
		},
		{
			name:    "inverted range",
			modify:  func(c *Config) { c.Targets.RangeStart, c.Targets.RangeEnd = 10, 5 },
			wantErr: "target range end precedes start",
		},
		{
			name:    "unknown format",
			modify:  func(c *Config) { c.Output.Format = "parquet" },
			wantErr: "invalid output format",
		},
		{
			name:    "bad log level",
			modify:  func(c *Config) { c.Logging.Level = "loud" },
			wantErr: "invalid log level",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultConfig()
			tt.modify(cfg)
			err := cfg.Validate()
			if tt.wantErr == "" {
				assert.NoError(t, err)
				return
			}
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

func TestMergeCommandLineFlags(t *testing.T) {
	cfg := DefaultConfig()
	cfg.MergeCommandLineFlags(map[string]interface{}{
		"workers":         12,
		"retries":         0,
		"acquire-timeout": 30 * time.Second,
		"targets":         "uids.txt",
		"range-start":     int64(1),
		"range-end":       int64(50),
		"output":          "rows.xlsx",
		"format":          "xlsx",
		"kuaidaili":       true,
		"log-level":       "",
	})

	assert.Equal(t, 12, cfg.Crawl.Workers)
	assert.Equal(t, 0, cfg.Fetch.Retries)
	assert.Equal(t, 30*time.Second, cfg.Proxy.AcquireTimeout)
	assert.Equal(t, "uids.txt", cfg.Targets.File)
	assert.Equal(t, int64(50), cfg.Targets.RangeEnd)
	assert.Equal(t, "rows.xlsx", cfg.Output.Path)
	assert.True(t, cfg.Suppliers.Kuaidaili)
	assert.Equal(t, "info", cfg.Logging.Level, "empty flag must not override")
}

func TestSaveAndLoad(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "config.yaml")

	cfg := DefaultConfig()
	cfg.Crawl.Workers = 9
	cfg.Proxy.BusySleep = 7 * time.Second
	require.NoError(t, cfg.Save(path))

	loaded, err := Load(path, nil)
	require.NoError(t, err)
	assert.Equal(t, 9, loaded.Crawl.Workers)
	assert.Equal(t, 7*time.Second, loaded.Proxy.BusySleep)
}

func TestLoadRejectsInvalidFinalConfig(t *testing.T) {
	_, err := Load("", map[string]interface{}{"format": "pdf"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "configuration validation failed")
}
