package config

import (
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"runtime"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/kailas-cloud/failrag/internal/domain"
)

// Config holds the failrag configuration.
type Config struct {
	HTTP      HTTPConfig                `yaml:"http"`
	Auth      AuthConfig                `yaml:"auth"`
	Logging   LoggingConfig             `yaml:"logging"`
	Providers map[string]ProviderConfig `yaml:"providers"`
	Store     StoreConfig               `yaml:"store"`
	Cache     CacheConfig               `yaml:"cache"`
	Retrieval RetrievalConfig           `yaml:"retrieval"`
	Indexer   IndexerConfig             `yaml:"indexer"`
}

// LoggingConfig holds logging settings.
type LoggingConfig struct {
	Level string        `yaml:"level"` // debug, info, warn, error (default: determined by env)
	File  LogFileConfig `yaml:"file"`
}

// LogFileConfig enables a rotated log file next to stdout when Path is set.
type LogFileConfig struct {
	Path       string `yaml:"path"`
	MaxSizeMB  int    `yaml:"max_size_mb"`
	MaxBackups int    `yaml:"max_backups"`
	MaxAgeDays int    `yaml:"max_age_days"`
	Compress   bool   `yaml:"compress"`
}

// AuthConfig holds API authentication settings.
type AuthConfig struct {
	APIKeys []string `yaml:"api_keys"`
}

// HTTPConfig holds HTTP server settings.
type HTTPConfig struct {
	Port            int `yaml:"port"`
	ReadTimeoutSec  int `yaml:"read_timeout_sec"`
	WriteTimeoutSec int `yaml:"write_timeout_sec"`
	ShutdownSec     int `yaml:"shutdown_timeout_sec"`
}

// RetryConfig holds provider retry settings.
type RetryConfig struct {
	MaxAttempts int `yaml:"max_attempts"`
	BaseDelayMs int `yaml:"base_delay_ms"`
	MaxDelayMs  int `yaml:"max_delay_ms"`
}

// ProviderConfig holds embedding provider settings. A provider without an API key is not registered.
type ProviderConfig struct {
	APIKey        string      `yaml:"api_key"`
	BaseURL       string      `yaml:"base_url"`
	Model         string      `yaml:"model"`
	Dimensions    int         `yaml:"dimensions"`
	TimeoutSec    int         `yaml:"timeout_sec"`
	ModelPrefixes []string    `yaml:"model_prefixes"`
	Retry         RetryConfig `yaml:"retry"`
}

// StoreConfig holds document store settings.
type StoreConfig struct {
	SnapshotPath string `yaml:"snapshot_path"`
	Watch        bool   `yaml:"watch"`
}

// CacheConfig holds the query embedding cache settings. An empty Addrs disables the cache.
type CacheConfig struct {
	Addrs            []string `yaml:"addrs"`
	Password         string   `yaml:"password"`
	TTLSec           int      `yaml:"ttl_sec"`
	ReadinessTimeout int      `yaml:"readiness_timeout_sec"`
}

// RetrievalConfig holds orchestrator settings.
type RetrievalConfig struct {
	DefaultModel string   `yaml:"default_model"`
	Threshold    *float64 `yaml:"threshold"`
	MaxResults   int      `yaml:"max_results"`
	TimeoutSec   int      `yaml:"timeout_sec"`
}

// IndexerConfig holds corpus indexer settings.
type IndexerConfig struct {
	Concurrency int `yaml:"concurrency"`
}

// Load reads configuration from a YAML file by environment name (local, dev, prod).
func Load(env string) (Config, error) {
	return LoadFile(findConfigPath(env))
}

// LoadFile reads configuration from an explicit path.
func LoadFile(configPath string) (Config, error) {
	data, err := os.ReadFile(filepath.Clean(configPath))
	if err != nil {
		return Config{}, fmt.Errorf("failed to read config %s: %w", configPath, err)
	}

	// Substitute env variables of the form ${VAR}
	data = expandEnvVars(data)

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return Config{}, fmt.Errorf("failed to parse config: %w", err)
	}

	cfg.ApplyDefaults()

	if err := cfg.Validate(); err != nil {
		return Config{}, fmt.Errorf("invalid config: %w", err)
	}

	return cfg, nil
}

// MustLoad loads configuration or panics.
func MustLoad(env string) Config {
	cfg, err := Load(env)
	if err != nil {
		panic(err)
	}
	return cfg
}

// GetEnv returns the current environment from the ENV variable, defaulting to "local".
func GetEnv() string {
	if env := os.Getenv("ENV"); env != "" {
		return env
	}
	return "local"
}

// ApplyDefaults fills empty fields with default values.
func (c *Config) ApplyDefaults() {
	if c.HTTP.ReadTimeoutSec <= 0 {
		c.HTTP.ReadTimeoutSec = 10
	}
	if c.HTTP.WriteTimeoutSec <= 0 {
		c.HTTP.WriteTimeoutSec = 60
	}
	if c.HTTP.ShutdownSec <= 0 {
		c.HTTP.ShutdownSec = 10
	}
	if c.Logging.File.Path != "" {
		if c.Logging.File.MaxSizeMB <= 0 {
			c.Logging.File.MaxSizeMB = 100
		}
		if c.Logging.File.MaxBackups <= 0 {
			c.Logging.File.MaxBackups = 3
		}
		if c.Logging.File.MaxAgeDays <= 0 {
			c.Logging.File.MaxAgeDays = 28
		}
	}
	for name, p := range c.Providers {
		if p.Dimensions <= 0 {
			p.Dimensions = domain.DefaultDimension(domain.ProviderID(name))
		}
		if p.TimeoutSec <= 0 {
			p.TimeoutSec = 30
		}
		if p.Retry.MaxAttempts <= 0 {
			p.Retry.MaxAttempts = 3
		}
		if p.Retry.BaseDelayMs <= 0 {
			p.Retry.BaseDelayMs = 1000
		}
		if p.Retry.MaxDelayMs <= 0 {
			p.Retry.MaxDelayMs = 10000
		}
		c.Providers[name] = p
	}
	if c.Store.SnapshotPath == "" {
		c.Store.SnapshotPath = "data/knowledge.db"
	}
	if c.Cache.TTLSec <= 0 {
		c.Cache.TTLSec = 300
	}
	if c.Cache.ReadinessTimeout <= 0 {
		c.Cache.ReadinessTimeout = 10
	}
	if c.Retrieval.Threshold == nil {
		t := 0.7
		c.Retrieval.Threshold = &t
	}
	if c.Retrieval.MaxResults <= 0 {
		c.Retrieval.MaxResults = 3
	}
	if c.Retrieval.TimeoutSec <= 0 {
		c.Retrieval.TimeoutSec = 30
	}
	if c.Indexer.Concurrency <= 0 {
		c.Indexer.Concurrency = 4
	}
}

// Validate checks the configuration for correctness.
func (c *Config) Validate() error {
	if c.HTTP.Port <= 0 || c.HTTP.Port > 65535 {
		return fmt.Errorf("http.port must be between 1 and 65535, got %d", c.HTTP.Port)
	}
	for name, p := range c.Providers {
		if !domain.ProviderID(name).IsKnown() {
			return fmt.Errorf("providers.%s: unknown provider, expected one of %v", name, domain.ProviderOrder)
		}
		if p.Dimensions <= 0 {
			return fmt.Errorf("providers.%s.dimensions must be positive, got %d", name, p.Dimensions)
		}
		if p.Retry.BaseDelayMs > p.Retry.MaxDelayMs {
			return fmt.Errorf("providers.%s.retry.base_delay_ms must not exceed max_delay_ms", name)
		}
	}
	if t := c.Retrieval.Threshold; t != nil && (*t < -1 || *t > 1) {
		return fmt.Errorf("retrieval.threshold must be between -1 and 1, got %v", *t)
	}
	if c.Retrieval.MaxResults < 1 {
		return fmt.Errorf("retrieval.max_results must be at least 1, got %d", c.Retrieval.MaxResults)
	}
	return nil
}

// ProviderIDs returns the configured providers that have credentials, in provider order.
func (c *Config) ProviderIDs() []domain.ProviderID {
	var ids []domain.ProviderID
	for _, id := range domain.ProviderOrder {
		if p, ok := c.Providers[string(id)]; ok && p.APIKey != "" {
			ids = append(ids, id)
		}
	}
	return ids
}

// findConfigPath locates the config file.
func findConfigPath(env string) string {
	filename := fmt.Sprintf("%s.yaml", env)

	// 1. Check ./config/
	if path := filepath.Join("config", filename); fileExists(path) {
		return path
	}

	// 2. Check relative to the source file
	_, b, _, _ := runtime.Caller(0)
	projectRoot := filepath.Dir(filepath.Dir(filepath.Dir(b))) // internal/config -> project root
	if path := filepath.Join(projectRoot, "config", filename); fileExists(path) {
		return path
	}

	// 3. Fallback to ./config/
	return filepath.Join("config", filename)
}

func fileExists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}

// expandEnvVars replaces ${VAR} and ${VAR:-default} with environment variable values.
var envVarRegex = regexp.MustCompile(`\$\{([^}]+)\}`)

func expandEnvVars(data []byte) []byte {
	return envVarRegex.ReplaceAllFunc(data, func(match []byte) []byte {
		expr := string(match[2 : len(match)-1]) // strip ${ and }
		varName, defaultVal, hasDefault := strings.Cut(expr, ":-")
		val := os.Getenv(varName)
		if val == "" && hasDefault {
			val = defaultVal
		}
		return []byte(val)
	})
}
