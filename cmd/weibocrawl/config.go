package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"weibocrawl/pkg/config"
	"weibocrawl/pkg/ui"
)

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Manage configuration files",
	Long: `Manage weibocrawl configuration files.

Configuration is merged from, highest priority first:
  - command line flags
  - WEIBOCRAWL_* environment variables (also read from .env)
  - the configuration file
  - built-in defaults`,
}

var configInitCmd = &cobra.Command{
	Use:   "init",
	Short: "Create an example configuration file",
	RunE:  runConfigInit,
}

var configShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Show the effective configuration",
	RunE:  runConfigShow,
}

var configValidateCmd = &cobra.Command{
	Use:   "validate",
	Short: "Validate the configuration",
	RunE:  runConfigValidate,
}

func init() {
	rootCmd.AddCommand(configCmd)
	configCmd.AddCommand(configInitCmd)
	configCmd.AddCommand(configShowCmd)
	configCmd.AddCommand(configValidateCmd)
}

const exampleConfig = `# weibocrawl configuration
#
# Durations use Go syntax (200ms, 10s, 5m). Most settings can also be set
# with WEIBOCRAWL_* environment variables, e.g. WEIBOCRAWL_WORKERS.

crawl:
  # Concurrent pagination workers; the target queue holds twice as many
  workers: 60
  base_url: "https://m.weibo.cn"
  # Pause before every page request: page_delay plus up to page_jitter
  page_delay: 200ms
  page_jitter: 1s
  # Random pause of up to this long after each target
  target_pause: 1s
  # Retries of the container lookup while the site answers with errmsg
  resolve_retries: 3
  errmsg_backoff: 10s
  # Stop each target after this many pages (0 for no limit)
  max_pages: 0
  # Fetch the status page of truncated posts for the full text
  detail_fetch: true

proxy:
  check_url: "https://m.weibo.cn/"
  timeout: 10s
  # A proxy is retired once it has failed this many times
  retry_ceiling: 2
  max_validators: 800
  # Skip supply cycles while more than this many proxies are ready
  checked_watermark: 10
  watermark_sleep: 10s
  busy_sleep: 5s
  idle_backoff: 60s
  idle_backoff_max: 5m
  # Re-queue retired proxies after this many cycles with nothing new
  force_release_after: 5
  # How long a worker waits for a proxy (0 waits forever)
  acquire_timeout: 0s

fetch:
  # Proxy replacements per request
  retries: 3
  timeout: 10s
  # Global request rate across workers (0 for unlimited)
  requests_per_second: 0
  burst: 1

suppliers:
  proxy_pool_api: "http://127.0.0.1:5010/all/?type=https"
  # Paid API; store keys with 'weibocrawl auth login kuaidaili'
  kuaidaili: false
  static_file: ""
  html_tables: []
  script_lists: []

targets:
  file: ""
  range_start: 0
  range_end: 0
  limit: 0
  postgres_dsn: ""
  table: "weibo_phone"

output:
  path: "weibo.csv"
  # csv, xlsx or ndjson
  format: "csv"
  report: ""

logging:
  level: "info"
  file: ""
  proxy_log: "weibo_proxy_log.txt"
  error_log: "weibo_error_log.txt"
`

func runConfigInit(cmd *cobra.Command, args []string) error {
	path := configFile
	if path == "" {
		path = ".weibocrawl.yaml"
	}
	if _, err := os.Stat(path); err == nil {
		return fmt.Errorf("configuration file already exists: %s", path)
	}
	if err := os.WriteFile(path, []byte(exampleConfig), 0600); err != nil {
		return fmt.Errorf("failed to write configuration: %w", err)
	}
	ui.PrintSuccess("Created " + path)
	return nil
}

func runConfigShow(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load(configFile, baseFlags())
	if err != nil {
		return err
	}
	if cfg.Targets.PostgresDSN != "" {
		cfg.Targets.PostgresDSN = "********"
	}
	out, err := yaml.Marshal(displayConfig(cfg))
	if err != nil {
		return fmt.Errorf("failed to render configuration: %w", err)
	}
	fmt.Print(string(out))
	return nil
}

func runConfigValidate(cmd *cobra.Command, args []string) error {
	if _, err := config.Load(configFile, baseFlags()); err != nil {
		ui.PrintError("Configuration is invalid")
		return err
	}
	ui.PrintSuccess("Configuration is valid")
	return nil
}

// displayConfig renders durations as strings instead of nanoseconds
func displayConfig(cfg *config.Config) map[string]interface{} {
	return map[string]interface{}{
		"crawl": map[string]interface{}{
			"workers":         cfg.Crawl.Workers,
			"base_url":        cfg.Crawl.BaseURL,
			"page_delay":      cfg.Crawl.PageDelay.String(),
			"page_jitter":     cfg.Crawl.PageJitter.String(),
			"target_pause":    cfg.Crawl.TargetPause.String(),
			"resolve_retries": cfg.Crawl.ResolveRetries,
			"errmsg_backoff":  cfg.Crawl.ErrmsgBackoff.String(),
			"max_pages":       cfg.Crawl.MaxPages,
			"detail_fetch":    cfg.Crawl.DetailFetch,
		},
		"proxy": map[string]interface{}{
			"check_url":           cfg.Proxy.CheckURL,
			"timeout":             cfg.Proxy.Timeout.String(),
			"retry_ceiling":       cfg.Proxy.RetryCeiling,
			"max_validators":      cfg.Proxy.MaxValidators,
			"checked_watermark":   cfg.Proxy.CheckedWatermark,
			"watermark_sleep":     cfg.Proxy.WatermarkSleep.String(),
			"busy_sleep":          cfg.Proxy.BusySleep.String(),
			"idle_backoff":        cfg.Proxy.IdleBackoff.String(),
			"idle_backoff_max":    cfg.Proxy.IdleBackoffMax.String(),
			"force_release_after": cfg.Proxy.ForceReleaseAfter,
			"acquire_timeout":     cfg.Proxy.AcquireTimeout.String(),
		},
		"fetch": map[string]interface{}{
			"retries":             cfg.Fetch.Retries,
			"timeout":             cfg.Fetch.Timeout.String(),
			"requests_per_second": cfg.Fetch.RequestsPerSecond,
			"burst":               cfg.Fetch.Burst,
			"user_agent":          cfg.Fetch.UserAgent,
		},
		"suppliers": cfg.Suppliers,
		"targets":   cfg.Targets,
		"output":    cfg.Output,
		"logging":   cfg.Logging,
	}
}
