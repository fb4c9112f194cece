// Package config loads the stashd configuration from environment-named YAML
// files with ${VAR} expansion.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"runtime"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Config holds the stashd search engine configuration.
type Config struct {
	HTTP        HTTPConfig        `yaml:"http"`
	Auth        AuthConfig        `yaml:"auth"`
	Storage     StorageConfig     `yaml:"storage"`
	Sessions    SessionConfig     `yaml:"sessions"`
	Embedding   EmbeddingConfig   `yaml:"embedding"`
	Enhancement EnhancementConfig `yaml:"enhancement"`
	Search      SearchConfig      `yaml:"search"`
	Logging     LoggingConfig     `yaml:"logging"`
}

// HTTPConfig holds HTTP server settings.
type HTTPConfig struct {
	Port            int `yaml:"port"`
	ReadTimeoutSec  int `yaml:"read_timeout_sec"`
	WriteTimeoutSec int `yaml:"write_timeout_sec"`
	ShutdownSec     int `yaml:"shutdown_timeout_sec"`
}

// AuthConfig holds API authentication settings.
type AuthConfig struct {
	APIKeys []string `yaml:"api_keys"`
}

// StorageConfig holds item store settings.
type StorageConfig struct {
	Path     string `yaml:"path"`
	InMemory bool   `yaml:"in_memory"`
}

// SessionConfig holds pagination session store settings.
type SessionConfig struct {
	// Backend is "memory" (default) or "redis".
	Backend       string   `yaml:"backend"`
	TTLMin        int      `yaml:"ttl_min"`
	RedisAddrs    []string `yaml:"redis_addrs"`
	RedisPassword string   `yaml:"redis_password"`
	KeyPrefix     string   `yaml:"key_prefix"`
}

// TTL returns the session inactivity window.
func (s SessionConfig) TTL() time.Duration { return time.Duration(s.TTLMin) * time.Minute }

// EmbeddingConfig holds embedding provider settings.
type EmbeddingConfig struct {
	APIKey     string `yaml:"api_key"`
	BaseURL    string `yaml:"base_url"`
	Model      string `yaml:"model"`
	Dimensions int    `yaml:"dimensions"`
}

// EnhancementConfig holds query enhancement settings. Enhancement is
// best-effort; disabling it only removes the rewrite step.
type EnhancementConfig struct {
	Enabled    bool   `yaml:"enabled"`
	Model      string `yaml:"model"`
	TimeoutMS  int    `yaml:"timeout_ms"`
	MaxRewrite int    `yaml:"max_rewrite_chars"`
}

// Timeout returns the enhancement call budget.
func (e EnhancementConfig) Timeout() time.Duration {
	return time.Duration(e.TimeoutMS) * time.Millisecond
}

// SearchConfig holds ranking and pagination settings.
type SearchConfig struct {
	EngineTimeoutMS int     `yaml:"engine_timeout_ms"`
	TopK            int     `yaml:"top_k"`
	DefaultPageSize int     `yaml:"default_page_size"`
	QuickLimit      int     `yaml:"quick_limit"`
	FuzzyMinScore   float64 `yaml:"fuzzy_min_score"`
	ReindexWorkers  int     `yaml:"reindex_workers"`
}

// EngineTimeout returns the per-strategy execution budget.
func (s SearchConfig) EngineTimeout() time.Duration {
	return time.Duration(s.EngineTimeoutMS) * time.Millisecond
}

// LoggingConfig holds logging settings.
type LoggingConfig struct {
	Level string `yaml:"level"` // debug, info, warn, error
}

// Load reads configuration from a YAML file by environment name (local, prod).
func Load(env string) (Config, error) {
	configPath := findConfigPath(env)

	data, err := os.ReadFile(filepath.Clean(configPath))
	if err != nil {
		return Config{}, fmt.Errorf("failed to read config %s: %w", configPath, err)
	}

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

// GetEnv returns the current environment from ENV, defaulting to "local".
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
		c.HTTP.WriteTimeoutSec = 10
	}
	if c.HTTP.ShutdownSec <= 0 {
		c.HTTP.ShutdownSec = 10
	}
	if c.Storage.Path == "" {
		c.Storage.Path = "data/items"
	}
	if c.Sessions.Backend == "" {
		c.Sessions.Backend = "memory"
	}
	if c.Sessions.TTLMin <= 0 {
		c.Sessions.TTLMin = 10
	}
	if c.Sessions.KeyPrefix == "" {
		c.Sessions.KeyPrefix = "stashbox:session:"
	}
	if c.Embedding.Model == "" {
		c.Embedding.Model = "text-embedding-3-small"
	}
	if c.Embedding.Dimensions <= 0 {
		c.Embedding.Dimensions = 1536
	}
	if c.Enhancement.Model == "" {
		c.Enhancement.Model = "gpt-4o-mini"
	}
	if c.Enhancement.TimeoutMS <= 0 {
		c.Enhancement.TimeoutMS = 2000
	}
	if c.Enhancement.MaxRewrite <= 0 {
		c.Enhancement.MaxRewrite = 256
	}
	if c.Search.EngineTimeoutMS <= 0 {
		c.Search.EngineTimeoutMS = 3000
	}
	if c.Search.TopK <= 0 {
		c.Search.TopK = 50
	}
	if c.Search.DefaultPageSize <= 0 {
		c.Search.DefaultPageSize = 10
	}
	if c.Search.QuickLimit <= 0 {
		c.Search.QuickLimit = 5
	}
	if c.Search.FuzzyMinScore <= 0 {
		c.Search.FuzzyMinScore = 0.55
	}
	if c.Search.ReindexWorkers <= 0 {
		c.Search.ReindexWorkers = 4
	}
}

// Validate checks the configuration for correctness.
func (c *Config) Validate() error {
	if c.HTTP.Port <= 0 || c.HTTP.Port > 65535 {
		return fmt.Errorf("http.port must be between 1 and 65535, got %d", c.HTTP.Port)
	}
	switch c.Sessions.Backend {
	case "memory":
	case "redis":
		if len(c.Sessions.RedisAddrs) == 0 {
			return fmt.Errorf("sessions.redis_addrs is required for the redis backend")
		}
	default:
		return fmt.Errorf("sessions.backend must be \"memory\" or \"redis\", got %q", c.Sessions.Backend)
	}
	if c.Search.FuzzyMinScore < 0 || c.Search.FuzzyMinScore > 1 {
		return fmt.Errorf("search.fuzzy_min_score must be between 0 and 1")
	}
	return nil
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

// expandEnvVars replaces ${VAR} and ${VAR:-default} with environment values.
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
