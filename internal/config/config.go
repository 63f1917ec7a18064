package config

import (
	"fmt"
	"os"
	"time"

	"github.com/kelseyhightower/envconfig"
	"gopkg.in/yaml.v2"
)

// Config represents the complete application configuration.
type Config struct {
	Server     ServerConfig     `yaml:"server" envconfig:"SERVER"`
	Logging    LoggingConfig    `yaml:"logging" envconfig:"LOGGING"`
	EDGAR      EDGARConfig      `yaml:"edgar" envconfig:"EDGAR"`
	MarketData MarketDataConfig `yaml:"market_data" envconfig:"MARKET_DATA"`
	Cache      CacheConfig      `yaml:"cache" envconfig:"CACHE"`
	Pipeline   PipelineConfig   `yaml:"pipeline" envconfig:"PIPELINE"`
}

// ServerConfig contains HTTP server configuration.
type ServerConfig struct {
	Port            int           `yaml:"port" envconfig:"PORT" default:"8080"`
	ReadTimeout     time.Duration `yaml:"read_timeout" envconfig:"READ_TIMEOUT" default:"15s"`
	WriteTimeout    time.Duration `yaml:"write_timeout" envconfig:"WRITE_TIMEOUT" default:"120s"`
	IdleTimeout     time.Duration `yaml:"idle_timeout" envconfig:"IDLE_TIMEOUT" default:"60s"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout" envconfig:"SHUTDOWN_TIMEOUT" default:"30s"`
}

// LoggingConfig contains logging configuration.
type LoggingConfig struct {
	Level    string `yaml:"level" envconfig:"LEVEL" default:"info"`
	Output   string `yaml:"output" envconfig:"OUTPUT" default:"stdout"`
	FilePath string `yaml:"file_path" envconfig:"FILE_PATH" default:"logs/app.log"`
}

// EDGARConfig configures the filing source client. The SEC fair-use policy
// requires a contact identity on every request, so UserAgent is mandatory.
type EDGARConfig struct {
	BaseURL           string        `yaml:"base_url" envconfig:"BASE_URL" default:"https://efts.sec.gov/LATEST/search-index"`
	DocumentBaseURL   string        `yaml:"document_base_url" envconfig:"DOCUMENT_BASE_URL" default:"https://www.sec.gov/Archives/edgar/data"`
	TickersURL        string        `yaml:"tickers_url" envconfig:"TICKERS_URL" default:"https://www.sec.gov/files/company_tickers.json"`
	TickersFile       string        `yaml:"tickers_file" envconfig:"TICKERS_FILE" default:"data/company_tickers.json"`
	UserAgent         string        `yaml:"user_agent" envconfig:"USER_AGENT" default:"SDEA ownership research (zackariahgrogan@gmail.com)"`
	RequestsPerWindow int           `yaml:"requests_per_window" envconfig:"REQUESTS_PER_WINDOW" default:"10"`
	Window            time.Duration `yaml:"window" envconfig:"WINDOW" default:"1s"`
	MaxRetries        int           `yaml:"max_retries" envconfig:"MAX_RETRIES" default:"5"`
	BaseBackoff       time.Duration `yaml:"base_backoff" envconfig:"BASE_BACKOFF" default:"500ms"`
	MaxBackoff        time.Duration `yaml:"max_backoff" envconfig:"MAX_BACKOFF" default:"30s"`
	MaxPages          int           `yaml:"max_pages" envconfig:"MAX_PAGES" default:"50"`
	PageSize          int           `yaml:"page_size" envconfig:"PAGE_SIZE" default:"100"`
	RequestTimeout    time.Duration `yaml:"request_timeout" envconfig:"REQUEST_TIMEOUT" default:"30s"`
}

// MarketDataConfig configures the daily price-series source.
type MarketDataConfig struct {
	BaseURL           string        `yaml:"base_url" envconfig:"BASE_URL" default:"https://query1.finance.example.com/v8/chart"`
	RequestsPerWindow int           `yaml:"requests_per_window" envconfig:"REQUESTS_PER_WINDOW" default:"5"`
	Window            time.Duration `yaml:"window" envconfig:"WINDOW" default:"1s"`
	MaxRetries        int           `yaml:"max_retries" envconfig:"MAX_RETRIES" default:"5"`
	BaseBackoff       time.Duration `yaml:"base_backoff" envconfig:"BASE_BACKOFF" default:"500ms"`
	MaxBackoff        time.Duration `yaml:"max_backoff" envconfig:"MAX_BACKOFF" default:"30s"`
	RequestTimeout    time.Duration `yaml:"request_timeout" envconfig:"REQUEST_TIMEOUT" default:"30s"`
}

// CacheConfig configures the cache store. When DSN is empty the in-memory
// store is used alone; otherwise entries are persisted through Postgres.
type CacheConfig struct {
	DSN        string        `yaml:"dsn" envconfig:"DSN"`
	FilingTTL  time.Duration `yaml:"filing_ttl" envconfig:"FILING_TTL" default:"1h"`
	MarketTTL  time.Duration `yaml:"market_ttl" envconfig:"MARKET_TTL" default:"1h"`
	MaxEntries int           `yaml:"max_entries" envconfig:"MAX_ENTRIES" default:"10000"`
	MinConns   int           `yaml:"min_conns" envconfig:"MIN_CONNS" default:"1"`
	MaxConns   int           `yaml:"max_conns" envconfig:"MAX_CONNS" default:"4"`
}

// PipelineConfig tunes batch execution.
type PipelineConfig struct {
	FetchWorkers  int           `yaml:"fetch_workers" envconfig:"FETCH_WORKERS" default:"4"`
	EnrichWorkers int           `yaml:"enrich_workers" envconfig:"ENRICH_WORKERS" default:"4"`
	SilenceYears  int           `yaml:"silence_years" envconfig:"SILENCE_YEARS" default:"2"`
	ThresholdPct  float64       `yaml:"threshold_pct" envconfig:"THRESHOLD_PCT" default:"5.0"`
	JobRetention  time.Duration `yaml:"job_retention" envconfig:"JOB_RETENTION" default:"1h"`
	RunTimeout    time.Duration `yaml:"run_timeout" envconfig:"RUN_TIMEOUT" default:"2h"`
}

// Load loads configuration from environment variables and an optional
// config file. Environment variables take precedence.
func Load() (*Config, error) {
	var cfg Config

	if err := envconfig.Process("SDEA", &cfg); err != nil {
		return nil, fmt.Errorf("failed to load config from env: %w", err)
	}

	if path := configFilePath(); path != "" {
		fileCfg, err := loadFromFile(path)
		if err != nil {
			return nil, fmt.Errorf("failed to load config from file: %w", err)
		}
		cfg = merge(*fileCfg, cfg)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	return &cfg, nil
}

func loadFromFile(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// merge fills zero-valued env fields from the file config. Env wins.
func merge(file, env Config) Config {
	if env.Server.Port == 0 {
		env.Server.Port = file.Server.Port
	}
	if env.Cache.DSN == "" {
		env.Cache.DSN = file.Cache.DSN
	}
	if env.EDGAR.BaseURL == "" {
		env.EDGAR.BaseURL = file.EDGAR.BaseURL
	}
	if env.EDGAR.UserAgent == "" {
		env.EDGAR.UserAgent = file.EDGAR.UserAgent
	}
	if env.MarketData.BaseURL == "" {
		env.MarketData.BaseURL = file.MarketData.BaseURL
	}
	if env.Pipeline.SilenceYears == 0 {
		env.Pipeline.SilenceYears = file.Pipeline.SilenceYears
	}
	return env
}

// Validate checks the configuration for fatal misconfiguration.
func (c *Config) Validate() error {
	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		return fmt.Errorf("invalid server port: %d", c.Server.Port)
	}
	if c.EDGAR.UserAgent == "" {
		return fmt.Errorf("edgar user agent must identify a contact per SEC fair-use policy")
	}
	if c.EDGAR.RequestsPerWindow <= 0 || c.EDGAR.Window <= 0 {
		return fmt.Errorf("edgar rate limit must be positive")
	}
	if c.MarketData.RequestsPerWindow <= 0 || c.MarketData.Window <= 0 {
		return fmt.Errorf("market data rate limit must be positive")
	}
	if c.EDGAR.MaxRetries < 1 {
		return fmt.Errorf("edgar max retries must be at least 1")
	}
	if c.EDGAR.MaxPages < 1 {
		return fmt.Errorf("edgar page cap must be at least 1")
	}
	if c.Pipeline.FetchWorkers < 1 || c.Pipeline.EnrichWorkers < 1 {
		return fmt.Errorf("worker pool sizes must be at least 1")
	}
	if c.Pipeline.SilenceYears <= 0 {
		return fmt.Errorf("silence window must be a positive number of years")
	}
	if c.Pipeline.ThresholdPct <= 0 || c.Pipeline.ThresholdPct >= 100 {
		return fmt.Errorf("invalid ownership threshold: %f", c.Pipeline.ThresholdPct)
	}
	return nil
}

func configFilePath() string {
	locations := []string{
		"config.yaml",
		"configs/config.yaml",
	}
	for _, loc := range locations {
		if _, err := os.Stat(loc); err == nil {
			return loc
		}
	}
	return ""
}

// Default returns the default configuration used when no environment or
// file overrides are present.
func Default() *Config {
	return &Config{
		Server: ServerConfig{
			Port:            8080,
			ReadTimeout:     15 * time.Second,
			WriteTimeout:    120 * time.Second,
			IdleTimeout:     60 * time.Second,
			ShutdownTimeout: 30 * time.Second,
		},
		Logging: LoggingConfig{
			Level:    "info",
			Output:   "stdout",
			FilePath: "logs/app.log",
		},
		EDGAR: EDGARConfig{
			BaseURL:           "https://efts.sec.gov/LATEST/search-index",
			DocumentBaseURL:   "https://www.sec.gov/Archives/edgar/data",
			TickersURL:        "https://www.sec.gov/files/company_tickers.json",
			TickersFile:       "data/company_tickers.json",
			UserAgent:         "SDEA ownership research (zackariahgrogan@gmail.com)",
			RequestsPerWindow: 10,
			Window:            time.Second,
			MaxRetries:        5,
			BaseBackoff:       500 * time.Millisecond,
			MaxBackoff:        30 * time.Second,
			MaxPages:          50,
			PageSize:          100,
			RequestTimeout:    30 * time.Second,
		},
		MarketData: MarketDataConfig{
			BaseURL:           "https://query1.finance.example.com/v8/chart",
			RequestsPerWindow: 5,
			Window:            time.Second,
			MaxRetries:        5,
			BaseBackoff:       500 * time.Millisecond,
			MaxBackoff:        30 * time.Second,
			RequestTimeout:    30 * time.Second,
		},
		Cache: CacheConfig{
			FilingTTL:  time.Hour,
			MarketTTL:  time.Hour,
			MaxEntries: 10000,
			MinConns:   1,
			MaxConns:   4,
		},
		Pipeline: PipelineConfig{
			FetchWorkers:  4,
			EnrichWorkers: 4,
			SilenceYears:  2,
			ThresholdPct:  5.0,
			JobRetention:  time.Hour,
			RunTimeout:    2 * time.Hour,
		},
	}
}
