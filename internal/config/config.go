package config

import (
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"runtime"
	"strings"

	"gopkg.in/yaml.v3"
)

// Config holds the kvecd adapter configuration.
type Config struct {
	HTTP      HTTPConfig      `yaml:"http"`
	Device    DeviceConfig    `yaml:"device"`
	Store     StoreConfig     `yaml:"store"`
	Session   SessionConfig   `yaml:"session"`
	Limits    LimitsConfig    `yaml:"limits"`
	Recommend RecommendConfig `yaml:"recommend"`
	Logging   LoggingConfig   `yaml:"logging"`
}

// LoggingConfig holds logging settings.
type LoggingConfig struct {
	Level string `yaml:"level"` // debug, info, warn, error (default: determined by env)
}

// HTTPConfig holds HTTP server settings.
type HTTPConfig struct {
	Port            int `yaml:"port"`
	ReadTimeoutSec  int `yaml:"read_timeout_sec"`
	WriteTimeoutSec int `yaml:"write_timeout_sec"`
	ShutdownSec     int `yaml:"shutdown_timeout_sec"`
}

// DeviceConfig holds kernel device settings.
type DeviceConfig struct {
	Driver         string `yaml:"driver"` // memory, ioctl (default: memory)
	Path           string `yaml:"path"`   // character device path for the ioctl driver
	PoolSize       int    `yaml:"pool_size"`
	CallTimeoutSec int    `yaml:"call_timeout_sec"`
}

// StoreConfig holds payload and session storage settings.
type StoreConfig struct {
	Driver           string   `yaml:"driver"` // memory, redis (default: memory)
	Addrs            []string `yaml:"addrs"`
	Password         string   `yaml:"password"`
	KeyPrefix        string   `yaml:"key_prefix"`
	ReadinessTimeout int      `yaml:"readiness_timeout_sec"`
}

// SessionConfig holds scroll session settings.
type SessionConfig struct {
	TTLSec int `yaml:"ttl_sec"`
}

// LimitsConfig holds pagination and batching limits.
type LimitsConfig struct {
	DefaultPageSize int `yaml:"default_page_size"`
	MaxPageSize     int `yaml:"max_page_size"`
	MaxBatchSize    int `yaml:"max_batch_size"`
	SearchOverfetch int `yaml:"search_overfetch"`
	MaxConcurrency  int `yaml:"max_concurrency"`
}

// RecommendConfig holds recommendation strategy settings.
type RecommendConfig struct {
	DiversityLambda float64 `yaml:"diversity_lambda"`
}

// Load reads configuration from a YAML file by environment name (local, dev, prod).
func Load(env string) (Config, error) {
	configPath := findConfigPath(env)

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
		c.HTTP.WriteTimeoutSec = 10
	}
	if c.HTTP.ShutdownSec <= 0 {
		c.HTTP.ShutdownSec = 10
	}
	if c.Device.Driver == "" {
		c.Device.Driver = "memory"
	}
	if c.Device.Path == "" {
		c.Device.Path = "/dev/kvec0"
	}
	if c.Device.PoolSize <= 0 {
		c.Device.PoolSize = 8
	}
	if c.Device.CallTimeoutSec <= 0 {
		c.Device.CallTimeoutSec = 2
	}
	if c.Store.Driver == "" {
		c.Store.Driver = "memory"
	}
	if c.Store.KeyPrefix == "" {
		c.Store.KeyPrefix = "kvecd:"
	}
	if c.Store.ReadinessTimeout <= 0 {
		c.Store.ReadinessTimeout = 10
	}
	if c.Session.TTLSec <= 0 {
		c.Session.TTLSec = 300
	}
	if c.Limits.DefaultPageSize <= 0 {
		c.Limits.DefaultPageSize = 20
	}
	if c.Limits.MaxPageSize <= 0 {
		c.Limits.MaxPageSize = 1000
	}
	if c.Limits.MaxBatchSize <= 0 {
		c.Limits.MaxBatchSize = 1024
	}
	if c.Limits.SearchOverfetch <= 0 {
		c.Limits.SearchOverfetch = 4
	}
	if c.Limits.MaxConcurrency <= 0 {
		c.Limits.MaxConcurrency = 8
	}
	if c.Recommend.DiversityLambda <= 0 || c.Recommend.DiversityLambda > 1 {
		c.Recommend.DiversityLambda = 0.5
	}
}

// Validate checks the configuration for correctness.
func (c *Config) Validate() error {
	if c.HTTP.Port <= 0 || c.HTTP.Port > 65535 {
		return fmt.Errorf("http.port must be between 1 and 65535, got %d", c.HTTP.Port)
	}
	switch c.Device.Driver {
	case "memory":
	case "ioctl":
		if c.Device.Path == "" {
			return fmt.Errorf("device.path is required for the ioctl driver")
		}
	default:
		return fmt.Errorf("device.driver must be \"memory\" or \"ioctl\", got %q", c.Device.Driver)
	}
	switch c.Store.Driver {
	case "memory":
	case "redis":
		if len(c.Store.Addrs) == 0 {
			return fmt.Errorf("store.addrs is required for the redis driver")
		}
	default:
		return fmt.Errorf("store.driver must be \"memory\" or \"redis\", got %q", c.Store.Driver)
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
