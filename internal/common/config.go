package common

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/pelletier/go-toml/v2"
)

// Config represents the application configuration
type Config struct {
	Environment string          `toml:"environment"`                     // "development" or "production"
	OutputDir   string          `toml:"output_dir" validate:"required"`  // Where archives are written
	StagingDir  string          `toml:"staging_dir" validate:"required"` // Parent of per-run staging directories
	Server      ServerConfig    `toml:"server"`
	Logging     LoggingConfig   `toml:"logging"`
	Directory   DirectoryConfig `toml:"directory"`
	Search      SearchConfig    `toml:"search"`
	Registry    RegistryConfig  `toml:"registry"`
	Download    DownloadConfig  `toml:"download"`
	Recent      RecentConfig    `toml:"recent"`
	Packager    PackagerConfig  `toml:"packager"`
	Uploader    UploaderConfig  `toml:"uploader"`
	Storage     StorageConfig   `toml:"storage"`
}

type ServerConfig struct {
	Port              int    `toml:"port" validate:"min=1,max=65535"`
	Host              string `toml:"host" validate:"required"`
	MaxConcurrentRuns int    `toml:"max_concurrent_runs" validate:"min=1"` // Concurrent /api/analyze streams
}

type LoggingConfig struct {
	Level  string   `toml:"level" validate:"oneof=trace debug info warn error"`
	Output []string `toml:"output"` // "stdout", "file"
}

type DirectoryConfig struct {
	Path string `toml:"path"` // Stock dataset JSON. Empty uses the embedded dataset
}

type SearchConfig struct {
	Limit            int `toml:"limit" validate:"min=1,max=100"`
	ResolveThreshold int `toml:"resolve_threshold" validate:"min=0"` // Minimum score for a non-exact top match
}

type RegistryConfig struct {
	BaseURL      string  `toml:"base_url" validate:"required,url"`   // Listing API host
	StaticURL    string  `toml:"static_url" validate:"required,url"` // PDF host
	PageSize     int     `toml:"page_size" validate:"min=1,max=50"`
	MaxPages     int     `toml:"max_pages" validate:"min=1"`
	Timeout      string  `toml:"timeout"`                           // e.g. "60s"
	RetryMax     int     `toml:"retry_max" validate:"min=0,max=10"` // Retries after the first attempt
	RetryWaitMin string  `toml:"retry_wait_min"`                    // e.g. "2s"
	RetryWaitMax string  `toml:"retry_wait_max"`                    // e.g. "10s"
	RateLimit    float64 `toml:"rate_limit" validate:"gt=0"`        // Requests per second across listing and downloads
	UserAgent    string  `toml:"user_agent"`
}

type DownloadConfig struct {
	Workers       int  `toml:"workers" validate:"min=1,max=16"`
	VerifyPDF     bool `toml:"verify_pdf"` // Reject files pdfcpu cannot parse
	LookbackYears int  `toml:"lookback_years" validate:"min=1,max=20"`
	AnnualYears   int  `toml:"annual_years" validate:"min=1,max=20"` // Most recent annual reports kept
}

type RecentConfig struct {
	Enabled       bool `toml:"enabled"`
	LookbackDays  int  `toml:"lookback_days" validate:"min=1"`
	ListLimit     int  `toml:"list_limit" validate:"min=0"`
	DownloadLimit int  `toml:"download_limit" validate:"min=0"`
}

type PackagerConfig struct {
	Mode       string `toml:"mode" validate:"oneof=archive upload"`
	PromptFile string `toml:"prompt_file"` // Empty uses the embedded analyst prompt
	PromptName string `toml:"prompt_name" validate:"required"`
}

type UploaderConfig struct {
	Command        string `toml:"command" validate:"required"`
	Timeout        string `toml:"timeout"` // Per command, e.g. "120s"
	ResponseLength string `toml:"response_length"`
}

type StorageConfig struct {
	Badger BadgerConfig `toml:"badger"`
}

// BadgerConfig represents BadgerDB-specific configuration
type BadgerConfig struct {
	Enabled        bool   `toml:"enabled"`
	Path           string `toml:"path"`             // Database directory path
	ResetOnStartup bool   `toml:"reset_on_startup"` // Delete database on startup
}

// NewDefaultConfig returns a configuration with production defaults
func NewDefaultConfig() *Config {
	return &Config{
		Environment: "production",
		OutputDir:   "./output",
		StagingDir:  os.TempDir(),
		Server: ServerConfig{
			Port:              8086,
			Host:              "127.0.0.1",
			MaxConcurrentRuns: 2,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Output: []string{"stdout"},
		},
		Search: SearchConfig{
			Limit:            10,
			ResolveThreshold: 300,
		},
		Registry: RegistryConfig{
			BaseURL:      "http://www.cninfo.com.cn",
			StaticURL:    "http://static.cninfo.com.cn",
			PageSize:     30,
			MaxPages:     20,
			Timeout:      "60s",
			RetryMax:     2,
			RetryWaitMin: "2s",
			RetryWaitMax: "10s",
			RateLimit:    4,
			UserAgent:    "Mozilla/5.0 (Windows NT 10.0; Win64; x64; rv:110.0) Gecko/20100101 Firefox/110.0",
		},
		Download: DownloadConfig{
			Workers:       5,
			VerifyPDF:     true,
			LookbackYears: 6,
			AnnualYears:   5,
		},
		Recent: RecentConfig{
			Enabled:       true,
			LookbackDays:  180,
			ListLimit:     15,
			DownloadLimit: 5,
		},
		Packager: PackagerConfig{
			Mode:       "archive",
			PromptName: "00_AI分析指令.txt",
		},
		Uploader: UploaderConfig{
			Command:        "notebooklm",
			Timeout:        "120s",
			ResponseLength: "longer",
		},
		Storage: StorageConfig{
			Badger: BadgerConfig{
				Enabled: true,
				Path:    "./data/runs",
			},
		},
	}
}

// LoadFromFile loads configuration from a single file
func LoadFromFile(path string) (*Config, error) {
	if path == "" {
		return LoadFromFiles()
	}
	return LoadFromFiles(path)
}

// LoadFromFiles loads defaults, merges each file in order, then applies env overrides.
// Later files override earlier ones.
func LoadFromFiles(paths ...string) (*Config, error) {
	config := NewDefaultConfig()

	for i, path := range paths {
		if path == "" {
			continue
		}

		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("failed to read config file %s: %w", path, err)
		}

		if err := toml.Unmarshal(data, config); err != nil {
			return nil, fmt.Errorf("failed to parse config file %s (file %d of %d): %w", path, i+1, len(paths), err)
		}
	}

	applyEnvOverrides(config)

	return config, nil
}

func applyEnvOverrides(config *Config) {
	if env := os.Getenv("CNINFO2NB_ENV"); env != "" {
		config.Environment = env
	}
	if dir := os.Getenv("CNINFO2NB_OUTPUT_DIR"); dir != "" {
		config.OutputDir = dir
	}
	if dir := os.Getenv("CNINFO2NB_STAGING_DIR"); dir != "" {
		config.StagingDir = dir
	}

	// Server
	if port := os.Getenv("CNINFO2NB_SERVER_PORT"); port != "" {
		if p, err := strconv.Atoi(port); err == nil {
			config.Server.Port = p
		}
	}
	if host := os.Getenv("CNINFO2NB_SERVER_HOST"); host != "" {
		config.Server.Host = host
	}

	// Logging
	if level := os.Getenv("CNINFO2NB_LOG_LEVEL"); level != "" {
		config.Logging.Level = level
	}
	if output := os.Getenv("CNINFO2NB_LOG_OUTPUT"); output != "" {
		outputs := []string{}
		for _, o := range strings.Split(output, ",") {
			if trimmed := strings.TrimSpace(o); trimmed != "" {
				outputs = append(outputs, trimmed)
			}
		}
		if len(outputs) > 0 {
			config.Logging.Output = outputs
		}
	}

	// Directory
	if path := os.Getenv("CNINFO2NB_DIRECTORY_PATH"); path != "" {
		config.Directory.Path = path
	}

	// Registry
	if baseURL := os.Getenv("CNINFO2NB_REGISTRY_BASE_URL"); baseURL != "" {
		config.Registry.BaseURL = baseURL
	}
	if staticURL := os.Getenv("CNINFO2NB_REGISTRY_STATIC_URL"); staticURL != "" {
		config.Registry.StaticURL = staticURL
	}
	if rate := os.Getenv("CNINFO2NB_REGISTRY_RATE_LIMIT"); rate != "" {
		if r, err := strconv.ParseFloat(rate, 64); err == nil {
			config.Registry.RateLimit = r
		}
	}

	// Download
	if workers := os.Getenv("CNINFO2NB_DOWNLOAD_WORKERS"); workers != "" {
		if w, err := strconv.Atoi(workers); err == nil {
			config.Download.Workers = w
		}
	}
	if verify := os.Getenv("CNINFO2NB_DOWNLOAD_VERIFY_PDF"); verify != "" {
		if v, err := strconv.ParseBool(verify); err == nil {
			config.Download.VerifyPDF = v
		}
	}

	// Recent announcements
	if enabled := os.Getenv("CNINFO2NB_RECENT_ENABLED"); enabled != "" {
		if v, err := strconv.ParseBool(enabled); err == nil {
			config.Recent.Enabled = v
		}
	}

	// Packager and uploader
	if mode := os.Getenv("CNINFO2NB_PACKAGER_MODE"); mode != "" {
		config.Packager.Mode = mode
	}
	if prompt := os.Getenv("CNINFO2NB_PACKAGER_PROMPT_FILE"); prompt != "" {
		config.Packager.PromptFile = prompt
	}
	if command := os.Getenv("CNINFO2NB_UPLOADER_COMMAND"); command != "" {
		config.Uploader.Command = command
	}

	// Storage
	if badgerPath := os.Getenv("CNINFO2NB_BADGER_PATH"); badgerPath != "" {
		config.Storage.Badger.Path = badgerPath
	}
	if enabled := os.Getenv("CNINFO2NB_BADGER_ENABLED"); enabled != "" {
		if v, err := strconv.ParseBool(enabled); err == nil {
			config.Storage.Badger.Enabled = v
		}
	}
}

// ApplyFlagOverrides applies command-line flags (highest priority)
func ApplyFlagOverrides(config *Config, port int, host string) {
	if port > 0 {
		config.Server.Port = port
	}
	if host != "" {
		config.Server.Host = host
	}
}

// Validate checks struct constraints and duration fields
func (c *Config) Validate() error {
	if err := validator.New().Struct(c); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}
	durations := map[string]string{
		"registry.timeout":        c.Registry.Timeout,
		"registry.retry_wait_min": c.Registry.RetryWaitMin,
		"registry.retry_wait_max": c.Registry.RetryWaitMax,
		"uploader.timeout":        c.Uploader.Timeout,
	}
	for name, value := range durations {
		if value == "" {
			continue
		}
		if _, err := time.ParseDuration(value); err != nil {
			return fmt.Errorf("invalid configuration: %s: %w", name, err)
		}
	}
	return nil
}

// IsProduction returns true when running in production
func (c *Config) IsProduction() bool {
	return strings.EqualFold(c.Environment, "production")
}

// ParseDuration parses value, returning fallback when empty or invalid
func ParseDuration(value string, fallback time.Duration) time.Duration {
	if value == "" {
		return fallback
	}
	d, err := time.ParseDuration(value)
	if err != nil {
		return fallback
	}
	return d
}
