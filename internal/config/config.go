package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Environment variables read by Load.
const (
	EnvConfig        = "TICKETSCOUT_CONFIG"
	EnvLogLevel      = "TICKETSCOUT_LOG_LEVEL"
	EnvRateLimitDSN  = "TICKETSCOUT_RATE_LIMIT_DSN"
	EnvProxyUsername = "TICKETSCOUT_PROXY_USERNAME"
	EnvProxyPassword = "TICKETSCOUT_PROXY_PASSWORD"
)

// Rate-limit store kinds.
const (
	StoreMemory   = "memory"
	StorePostgres = "postgres"
)

// Config holds the complete application configuration
type Config struct {
	LogLevel  string          `yaml:"log_level"`
	HTTP      HTTPConfig      `yaml:"http"`
	Proxies   ProxyConfig     `yaml:"proxies"`
	RateLimit RateLimitConfig `yaml:"rate_limit"`
	Adapters  AdaptersConfig  `yaml:"adapters"`
	Metrics   MetricsConfig   `yaml:"metrics"`
}

// HTTPConfig holds the fetcher and retry settings
type HTTPConfig struct {
	Timeout      time.Duration `yaml:"timeout"`
	MaxRetries   int           `yaml:"max_retries"`
	RetryDelay   time.Duration `yaml:"retry_delay"`
	MaxBodyBytes int64         `yaml:"max_body_bytes"`
	UserAgents   []string      `yaml:"user_agents,omitempty"`
}

// ProxyConfig holds the proxy configuration
type ProxyConfig struct {
	Enabled  bool          `yaml:"enabled"`
	List     []string      `yaml:"list"`
	Cooldown time.Duration `yaml:"cooldown"`
	Auth     struct {
		Username string `yaml:"username"`
		Password string `yaml:"password"`
	} `yaml:"auth"`
}

// RateLimitConfig selects where request timestamps are kept
type RateLimitConfig struct {
	Store string `yaml:"store"`
	DSN   string `yaml:"dsn"`
}

// AdaptersConfig extends or trims the builtin adapter table
type AdaptersConfig struct {
	File     string   `yaml:"file"`
	Disabled []string `yaml:"disabled"`
}

// MetricsConfig holds the Prometheus textfile export settings
type MetricsConfig struct {
	Textfile string `yaml:"textfile"`
}

// Default returns the configuration used when no file is given.
func Default() *Config {
	return &Config{
		LogLevel: "info",
		HTTP: HTTPConfig{
			Timeout:      30 * time.Second,
			MaxRetries:   2,
			RetryDelay:   time.Second,
			MaxBodyBytes: 10 << 20,
			UserAgents:   DefaultUserAgents,
		},
		Proxies: ProxyConfig{
			Cooldown: 5 * time.Minute,
		},
		RateLimit: RateLimitConfig{
			Store: StoreMemory,
		},
	}
}

// Load reads the configuration. An empty path falls back to $TICKETSCOUT_CONFIG;
// with neither set the defaults are used. Environment overrides are applied
// last and the result is validated.
func Load(path string) (*Config, error) {
	if path == "" {
		path = os.Getenv(EnvConfig)
	}

	cfg := Default()
	if path != "" {
		data, err := os.ReadFile(expandHome(path))
		if err != nil {
			return nil, fmt.Errorf("reading config: %w", err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parsing config %s: %w", path, err)
		}
	}

	cfg.applyEnv()
	cfg.fillDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) applyEnv() {
	if v := os.Getenv(EnvLogLevel); v != "" {
		c.LogLevel = v
	}
	if v := os.Getenv(EnvRateLimitDSN); v != "" {
		c.RateLimit.DSN = v
		c.RateLimit.Store = StorePostgres
	}
	if v := os.Getenv(EnvProxyUsername); v != "" {
		c.Proxies.Auth.Username = v
	}
	if v := os.Getenv(EnvProxyPassword); v != "" {
		c.Proxies.Auth.Password = v
	}
}

// fillDefaults restores defaults for keys a file set to their zero value.
func (c *Config) fillDefaults() {
	def := Default()
	if c.LogLevel == "" {
		c.LogLevel = def.LogLevel
	}
	if c.HTTP.Timeout == 0 {
		c.HTTP.Timeout = def.HTTP.Timeout
	}
	if c.HTTP.RetryDelay == 0 {
		c.HTTP.RetryDelay = def.HTTP.RetryDelay
	}
	if c.HTTP.MaxBodyBytes == 0 {
		c.HTTP.MaxBodyBytes = def.HTTP.MaxBodyBytes
	}
	if len(c.HTTP.UserAgents) == 0 {
		c.HTTP.UserAgents = DefaultUserAgents
	}
	if c.Proxies.Cooldown == 0 {
		c.Proxies.Cooldown = def.Proxies.Cooldown
	}
	if c.RateLimit.Store == "" {
		c.RateLimit.Store = def.RateLimit.Store
	}
	c.Adapters.File = expandHome(c.Adapters.File)
	c.Metrics.Textfile = expandHome(c.Metrics.Textfile)
}

// Validate checks the configuration for values no component can run with.
func (c *Config) Validate() error {
	switch strings.ToLower(c.LogLevel) {
	case "debug", "info", "warn", "warning", "error":
	default:
		return fmt.Errorf("config: unknown log_level %q", c.LogLevel)
	}
	if c.HTTP.Timeout < 0 || c.HTTP.RetryDelay < 0 {
		return fmt.Errorf("config: http durations must not be negative")
	}
	if c.HTTP.MaxRetries < 0 {
		return fmt.Errorf("config: http.max_retries must not be negative")
	}
	if c.HTTP.MaxBodyBytes < 0 {
		return fmt.Errorf("config: http.max_body_bytes must not be negative")
	}
	if c.Proxies.Enabled && len(c.Proxies.List) == 0 {
		return fmt.Errorf("config: proxies are enabled but proxies.list is empty")
	}
	if c.Proxies.Cooldown < 0 {
		return fmt.Errorf("config: proxies.cooldown must not be negative")
	}
	switch c.RateLimit.Store {
	case StoreMemory:
	case StorePostgres:
		if c.RateLimit.DSN == "" {
			return fmt.Errorf("config: rate_limit.store is postgres but no dsn is set")
		}
	default:
		return fmt.Errorf("config: unknown rate_limit.store %q", c.RateLimit.Store)
	}
	return nil
}

// expandHome expands a leading ~ to the user's home directory.
func expandHome(path string) string {
	if !strings.HasPrefix(path, "~") {
		return path
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return path
	}
	return filepath.Join(home, path[1:])
}
