package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// Config holds all configuration options for the crawler
type Config struct {
	// Crawl loop settings
	Crawl CrawlConfig `yaml:"crawl" json:"crawl"`

	// Proxy pool and validator settings
	Proxy ProxyConfig `yaml:"proxy" json:"proxy"`

	// Fetch executor settings
	Fetch FetchConfig `yaml:"fetch" json:"fetch"`

	// Proxy supply sources
	Suppliers SuppliersConfig `yaml:"suppliers" json:"suppliers"`

	// Target id source
	Targets TargetsConfig `yaml:"targets" json:"targets"`

	// Output sink
	Output OutputConfig `yaml:"output" json:"output"`

	// Logging configuration
	Logging LoggingConfig `yaml:"logging" json:"logging"`
}

// CrawlConfig holds pagination worker and orchestrator settings
type CrawlConfig struct {
	Workers        int           `yaml:"workers" json:"workers"`
	BaseURL        string        `yaml:"base_url" json:"base_url"`
	PageDelay      time.Duration `yaml:"page_delay" json:"page_delay"`
	PageJitter     time.Duration `yaml:"page_jitter" json:"page_jitter"`
	TargetPause    time.Duration `yaml:"target_pause" json:"target_pause"`
	ResolveRetries int           `yaml:"resolve_retries" json:"resolve_retries"`
	ErrmsgBackoff  time.Duration `yaml:"errmsg_backoff" json:"errmsg_backoff"`
	MaxPages       int           `yaml:"max_pages" json:"max_pages"`
	DetailFetch    bool          `yaml:"detail_fetch" json:"detail_fetch"`
}

// ProxyConfig holds proxy pool settings. The thresholds are tunables, not
// values with a correctness argument behind them.
type ProxyConfig struct {
	CheckURL          string        `yaml:"check_url" json:"check_url"`
	Timeout           time.Duration `yaml:"timeout" json:"timeout"`
	RetryCeiling      int           `yaml:"retry_ceiling" json:"retry_ceiling"`
	MaxValidators     int           `yaml:"max_validators" json:"max_validators"`
	CheckedWatermark  int           `yaml:"checked_watermark" json:"checked_watermark"`
	WatermarkSleep    time.Duration `yaml:"watermark_sleep" json:"watermark_sleep"`
	BusySleep         time.Duration `yaml:"busy_sleep" json:"busy_sleep"`
	IdleBackoff       time.Duration `yaml:"idle_backoff" json:"idle_backoff"`
	IdleBackoffMax    time.Duration `yaml:"idle_backoff_max" json:"idle_backoff_max"`
	ForceReleaseAfter int           `yaml:"force_release_after" json:"force_release_after"`
	AcquireTimeout    time.Duration `yaml:"acquire_timeout" json:"acquire_timeout"`
}

// FetchConfig holds fetch executor settings
type FetchConfig struct {
	Retries           int           `yaml:"retries" json:"retries"`
	Timeout           time.Duration `yaml:"timeout" json:"timeout"`
	RequestsPerSecond float64       `yaml:"requests_per_second" json:"requests_per_second"`
	Burst             int           `yaml:"burst" json:"burst"`
	UserAgent         string        `yaml:"user_agent" json:"user_agent"`
}

// SuppliersConfig selects and configures proxy suppliers
type SuppliersConfig struct {
	ProxyPoolAPI string   `yaml:"proxy_pool_api" json:"proxy_pool_api"`
	Kuaidaili    bool     `yaml:"kuaidaili" json:"kuaidaili"`
	KuaidailiURL string   `yaml:"kuaidaili_url" json:"kuaidaili_url"`
	StaticFile   string   `yaml:"static_file" json:"static_file"`
	HTMLTables   []string `yaml:"html_tables" json:"html_tables"`
	ScriptLists  []string `yaml:"script_lists" json:"script_lists"`
}

// TargetsConfig selects the target id source
type TargetsConfig struct {
	File        string `yaml:"file" json:"file"`
	RangeStart  int64  `yaml:"range_start" json:"range_start"`
	RangeEnd    int64  `yaml:"range_end" json:"range_end"`
	Limit       int    `yaml:"limit" json:"limit"`
	PostgresDSN string `yaml:"postgres_dsn" json:"postgres_dsn"`
	Table       string `yaml:"table" json:"table"`
}

// OutputConfig holds result sink configuration
type OutputConfig struct {
	Path   string `yaml:"path" json:"path"`
	Format string `yaml:"format" json:"format"`
	Report string `yaml:"report" json:"report"`
}

// LoggingConfig holds logging configuration
type LoggingConfig struct {
	Level    string `yaml:"level" json:"level"`
	File     string `yaml:"file" json:"file"`
	ProxyLog string `yaml:"proxy_log" json:"proxy_log"`
	ErrorLog string `yaml:"error_log" json:"error_log"`

	// DisableConsole drops the stderr writer, e.g. while a full-screen UI
	// owns the terminal
	DisableConsole bool `yaml:"-" json:"-"`
}

// DefaultUserAgent is the mobile Safari UA the mobile site expects
const DefaultUserAgent = "Mozilla/5.0 (iPhone; CPU iPhone OS 11_0 like Mac OS X) AppleWebKit/604.1.38 (KHTML, like Gecko) Version/11.0 Mobile/15A372 Safari/604.1"

// DefaultConfig returns a Config instance with the crawler's defaults
func DefaultConfig() *Config {
	return &Config{
		Crawl: CrawlConfig{
			Workers:        60,
			BaseURL:        "https://m.weibo.cn",
			PageDelay:      200 * time.Millisecond,
			PageJitter:     time.Second,
			TargetPause:    time.Second,
			ResolveRetries: 3,
			ErrmsgBackoff:  10 * time.Second,
			MaxPages:       0,
			DetailFetch:    true,
		},
		Proxy: ProxyConfig{
			CheckURL:          "https://m.weibo.cn/",
			Timeout:           10 * time.Second,
			RetryCeiling:      2,
			MaxValidators:     800,
			CheckedWatermark:  10,
			WatermarkSleep:    10 * time.Second,
			BusySleep:         5 * time.Second,
			IdleBackoff:       60 * time.Second,
			IdleBackoffMax:    5 * time.Minute,
			ForceReleaseAfter: 5,
			AcquireTimeout:    0,
		},
		Fetch: FetchConfig{
			Retries:           3,
			Timeout:           10 * time.Second,
			RequestsPerSecond: 0,
			Burst:             1,
			UserAgent:         DefaultUserAgent,
		},
		Suppliers: SuppliersConfig{
			ProxyPoolAPI: "http://127.0.0.1:5010/all/?type=https",
			KuaidailiURL: "https://dps.kdlapi.com/api/getdps/",
		},
		Targets: TargetsConfig{
			Table: "weibo_phone",
			Limit: 0,
		},
		Output: OutputConfig{
			Path:   "weibo.csv",
			Format: "csv",
		},
		Logging: LoggingConfig{
			Level:    "info",
			File:     "",
			ProxyLog: "weibo_proxy_log.txt",
			ErrorLog: "weibo_error_log.txt",
		},
	}
}

// LoadFromEnv loads configuration from WEIBOCRAWL_* environment variables
func (c *Config) LoadFromEnv() error {
	var errs []error

	if v := os.Getenv("WEIBOCRAWL_WORKERS"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			errs = append(errs, fmt.Errorf("WEIBOCRAWL_WORKERS: %w", err))
		} else if n > 0 {
			c.Crawl.Workers = n
		}
	}
	if v := os.Getenv("WEIBOCRAWL_BASE_URL"); v != "" {
		c.Crawl.BaseURL = v
	}
	if v := os.Getenv("WEIBOCRAWL_FETCH_RETRIES"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			errs = append(errs, fmt.Errorf("WEIBOCRAWL_FETCH_RETRIES: %w", err))
		} else {
			c.Fetch.Retries = n
		}
	}
	if v := os.Getenv("WEIBOCRAWL_PROXY_TIMEOUT"); v != "" {
		d, err := time.ParseDuration(v)
		if err != nil {
			errs = append(errs, fmt.Errorf("WEIBOCRAWL_PROXY_TIMEOUT: %w", err))
		} else {
			c.Proxy.Timeout = d
		}
	}
	if v := os.Getenv("WEIBOCRAWL_MAX_VALIDATORS"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			errs = append(errs, fmt.Errorf("WEIBOCRAWL_MAX_VALIDATORS: %w", err))
		} else {
			c.Proxy.MaxValidators = n
		}
	}
	if v := os.Getenv("WEIBOCRAWL_PROXY_POOL_API"); v != "" {
		c.Suppliers.ProxyPoolAPI = v
	}
	if v := os.Getenv("WEIBOCRAWL_POSTGRES_DSN"); v != "" {
		c.Targets.PostgresDSN = v
	}
	if v := os.Getenv("WEIBOCRAWL_OUTPUT"); v != "" {
		c.Output.Path = v
	}
	if v := os.Getenv("WEIBOCRAWL_OUTPUT_FORMAT"); v != "" {
		c.Output.Format = v
	}
	if v := os.Getenv("WEIBOCRAWL_LOG_LEVEL"); v != "" {
		c.Logging.Level = v
	}

	return errors.Join(errs...)
}

// LoadFromFile loads configuration from a YAML file
func (c *Config) LoadFromFile(path string) error {
	// If path is empty, try default locations
	if path == "" {
		path = c.findConfigFile()
		if path == "" {
			return nil
		}
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("failed to read config file: %w", err)
	}

	if err := yaml.Unmarshal(data, c); err != nil {
		return fmt.Errorf("failed to parse config file: %w", err)
	}

	return nil
}

// findConfigFile searches for config file in standard locations
func (c *Config) findConfigFile() string {
	home := os.Getenv("HOME")
	locations := []string{
		".weibocrawl.yaml",
		".weibocrawl.yml",
		filepath.Join(home, ".config", "weibocrawl", "config.yaml"),
		filepath.Join(home, ".config", "weibocrawl", "config.yml"),
	}

	for _, loc := range locations {
		if _, err := os.Stat(loc); err == nil {
			return loc
		}
	}

	return ""
}

// Validate checks if the configuration is valid
func (c *Config) Validate() error {
	var errs []error

	if c.Crawl.Workers <= 0 {
		errs = append(errs, errors.New("workers must be positive"))
	}
	if c.Crawl.BaseURL == "" {
		errs = append(errs, errors.New("base url is required"))
	}
	if c.Crawl.PageDelay < 0 || c.Crawl.PageJitter < 0 || c.Crawl.TargetPause < 0 {
		errs = append(errs, errors.New("crawl delays cannot be negative"))
	}
	if c.Crawl.ResolveRetries < 0 {
		errs = append(errs, errors.New("resolve retries cannot be negative"))
	}

	if c.Proxy.CheckURL == "" {
		errs = append(errs, errors.New("proxy check url is required"))
	}
	if c.Proxy.Timeout <= 0 {
		errs = append(errs, errors.New("proxy timeout must be positive"))
	}
	if c.Proxy.RetryCeiling <= 0 {
		errs = append(errs, errors.New("proxy retry ceiling must be positive"))
	}
	if c.Proxy.MaxValidators <= 0 {
		errs = append(errs, errors.New("max validators must be positive"))
	}
	if c.Proxy.CheckedWatermark < 0 {
		errs = append(errs, errors.New("checked watermark cannot be negative"))
	}
	if c.Proxy.ForceReleaseAfter < 0 {
		errs = append(errs, errors.New("force release threshold cannot be negative"))
	}
	if c.Proxy.AcquireTimeout < 0 {
		errs = append(errs, errors.New("acquire timeout cannot be negative"))
	}

	if c.Fetch.Retries < 0 {
		errs = append(errs, errors.New("fetch retries cannot be negative"))
	}
	if c.Fetch.Timeout <= 0 {
		errs = append(errs, errors.New("fetch timeout must be positive"))
	}
	if c.Fetch.RequestsPerSecond < 0 {
		errs = append(errs, errors.New("requests per second cannot be negative"))
	}

	if c.Targets.RangeEnd < c.Targets.RangeStart {
		errs = append(errs, errors.New("target range end precedes start"))
	}

	if c.Output.Path == "" {
		errs = append(errs, errors.New("output path is required"))
	}
	validFormats := map[string]bool{"csv": true, "xlsx": true, "ndjson": true}
	if !validFormats[strings.ToLower(c.Output.Format)] {
		errs = append(errs, fmt.Errorf("invalid output format %q", c.Output.Format))
	}

	validLogLevels := map[string]bool{
		"debug": true, "info": true, "warn": true, "error": true,
	}
	if !validLogLevels[strings.ToLower(c.Logging.Level)] {
		errs = append(errs, errors.New("invalid log level"))
	}

	if len(errs) > 0 {
		return errors.Join(errs...)
	}

	return nil
}

// Save saves the configuration to a file
func (c *Config) Save(path string) error {
	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	if err := os.WriteFile(path, data, 0600); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}

	return nil
}

// MergeCommandLineFlags merges command line flags into the configuration
func (c *Config) MergeCommandLineFlags(flags map[string]interface{}) {
	if v, ok := flags["workers"].(int); ok && v > 0 {
		c.Crawl.Workers = v
	}
	if v, ok := flags["base-url"].(string); ok && v != "" {
		c.Crawl.BaseURL = v
	}
	if v, ok := flags["max-pages"].(int); ok && v > 0 {
		c.Crawl.MaxPages = v
	}
	if v, ok := flags["retries"].(int); ok && v >= 0 {
		c.Fetch.Retries = v
	}
	if v, ok := flags["rps"].(float64); ok && v > 0 {
		c.Fetch.RequestsPerSecond = v
	}
	if v, ok := flags["acquire-timeout"].(time.Duration); ok && v > 0 {
		c.Proxy.AcquireTimeout = v
	}
	if v, ok := flags["proxy-file"].(string); ok && v != "" {
		c.Suppliers.StaticFile = v
	}
	if v, ok := flags["proxy-api"].(string); ok && v != "" {
		c.Suppliers.ProxyPoolAPI = v
	}
	if v, ok := flags["kuaidaili"].(bool); ok && v {
		c.Suppliers.Kuaidaili = true
	}
	if v, ok := flags["targets"].(string); ok && v != "" {
		c.Targets.File = v
	}
	if v, ok := flags["range-start"].(int64); ok && v > 0 {
		c.Targets.RangeStart = v
	}
	if v, ok := flags["range-end"].(int64); ok && v > 0 {
		c.Targets.RangeEnd = v
	}
	if v, ok := flags["limit"].(int); ok && v > 0 {
		c.Targets.Limit = v
	}
	if v, ok := flags["postgres"].(string); ok && v != "" {
		c.Targets.PostgresDSN = v
	}
	if v, ok := flags["output"].(string); ok && v != "" {
		c.Output.Path = v
	}
	if v, ok := flags["format"].(string); ok && v != "" {
		c.Output.Format = v
	}
	if v, ok := flags["report"].(string); ok && v != "" {
		c.Output.Report = v
	}
	if v, ok := flags["log-level"].(string); ok && v != "" {
		c.Logging.Level = v
	}
	if v, ok := flags["log-file"].(string); ok && v != "" {
		c.Logging.File = v
	}
}

// Load loads configuration from all sources with proper precedence
// Precedence order: Command line flags > Environment variables > .env file > Config file > Defaults
func Load(configPath string, flags map[string]interface{}) (*Config, error) {
	// Missing .env files are fine
	_ = godotenv.Load(".env")
	_ = godotenv.Load(filepath.Join(os.Getenv("HOME"), ".weibocrawl.env"))

	config := DefaultConfig()

	if err := config.LoadFromFile(configPath); err != nil {
		return nil, fmt.Errorf("failed to load config file: %w", err)
	}

	if err := config.LoadFromEnv(); err != nil {
		return nil, fmt.Errorf("failed to load environment variables: %w", err)
	}

	config.MergeCommandLineFlags(flags)

	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}

	return config, nil
}
