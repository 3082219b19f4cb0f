package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "ticketscout.yaml")
	if err := os.WriteFile(path, []byte(body), 0o600); err != nil {
		t.Fatalf("writing config: %v", err)
	}
	return path
}

func TestLoad_Defaults(t *testing.T) {
	t.Setenv(EnvConfig, "")
	t.Setenv(EnvLogLevel, "")
	t.Setenv(EnvRateLimitDSN, "")

	cfg, err := Load("")
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.LogLevel != "info" || cfg.HTTP.Timeout != 30*time.Second || cfg.HTTP.MaxRetries != 2 {
		t.Errorf("defaults = %+v", cfg)
	}
	if cfg.RateLimit.Store != StoreMemory || len(cfg.HTTP.UserAgents) != len(DefaultUserAgents) {
		t.Errorf("RateLimit = %+v, %d user agents", cfg.RateLimit, len(cfg.HTTP.UserAgents))
	}
}

func TestLoad_File(t *testing.T) {
	t.Setenv(EnvLogLevel, "")
	t.Setenv(EnvRateLimitDSN, "")
	t.Setenv(EnvProxyUsername, "")
	t.Setenv(EnvProxyPassword, "")

	path := writeConfig(t, `
log_level: debug
http:
  timeout: 10s
  max_retries: 0
  retry_delay: 250ms
proxies:
  enabled: true
  list:
    - http://10.0.0.1:3128
    - http://10.0.0.2:3128
  cooldown: 2m
  auth:
    username: scout
adapters:
  file: /etc/ticketscout/adapters.yaml
  disabled: [stubhub]
metrics:
  textfile: /var/lib/node_exporter/ticketscout.prom
`)

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	if cfg.LogLevel != "debug" || cfg.HTTP.Timeout != 10*time.Second || cfg.HTTP.RetryDelay != 250*time.Millisecond {
		t.Errorf("http = %+v", cfg.HTTP)
	}
	if cfg.HTTP.MaxRetries != 0 {
		t.Errorf("explicit max_retries 0 should be kept, got %d", cfg.HTTP.MaxRetries)
	}
	if cfg.HTTP.MaxBodyBytes != 10<<20 {
		t.Errorf("unset max_body_bytes = %d, want the default", cfg.HTTP.MaxBodyBytes)
	}
	if len(cfg.Proxies.List) != 2 || cfg.Proxies.Cooldown != 2*time.Minute || cfg.Proxies.Auth.Username != "scout" {
		t.Errorf("proxies = %+v", cfg.Proxies)
	}
	if strings.Join(cfg.Adapters.Disabled, ",") != "stubhub" || cfg.Adapters.File != "/etc/ticketscout/adapters.yaml" {
		t.Errorf("adapters = %+v", cfg.Adapters)
	}
	if cfg.Metrics.Textfile == "" {
		t.Error("metrics textfile lost")
	}
}

func TestLoad_EnvOverrides(t *testing.T) {
	path := writeConfig(t, "log_level: info\n")
	t.Setenv(EnvLogLevel, "warn")
	t.Setenv(EnvRateLimitDSN, "postgres://scout@localhost/ticketscout")
	t.Setenv(EnvProxyUsername, "user")
	t.Setenv(EnvProxyPassword, "secret")

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.LogLevel != "warn" {
		t.Errorf("LogLevel = %q", cfg.LogLevel)
	}
	if cfg.RateLimit.Store != StorePostgres || cfg.RateLimit.DSN != "postgres://scout@localhost/ticketscout" {
		t.Errorf("RateLimit = %+v", cfg.RateLimit)
	}
	if cfg.Proxies.Auth.Username != "user" || cfg.Proxies.Auth.Password != "secret" {
		t.Errorf("proxy auth = %+v", cfg.Proxies.Auth)
	}
}

func TestLoad_PathFromEnv(t *testing.T) {
	t.Setenv(EnvLogLevel, "")
	t.Setenv(EnvRateLimitDSN, "")
	t.Setenv(EnvConfig, writeConfig(t, "log_level: error\n"))

	cfg, err := Load("")
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.LogLevel != "error" {
		t.Errorf("LogLevel = %q, want the level from $%s", cfg.LogLevel, EnvConfig)
	}
}

func TestLoad_Errors(t *testing.T) {
	t.Setenv(EnvLogLevel, "")
	t.Setenv(EnvRateLimitDSN, "")

	tests := []struct {
		name string
		body string
		want string
	}{
		{"bad yaml", "http: [", "parsing config"},
		{"bad duration", "http:\n  timeout: soon\n", "parsing config"},
		{"unknown level", "log_level: loud\n", "log_level"},
		{"negative retries", "http:\n  max_retries: -1\n", "max_retries"},
		{"proxies without list", "proxies:\n  enabled: true\n", "proxies.list"},
		{"postgres without dsn", "rate_limit:\n  store: postgres\n", "dsn"},
		{"unknown store", "rate_limit:\n  store: redis\n", "rate_limit.store"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Load(writeConfig(t, tt.body))
			if err == nil || !strings.Contains(err.Error(), tt.want) {
				t.Errorf("Load() error = %v, want it to mention %q", err, tt.want)
			}
		})
	}

	if _, err := Load(filepath.Join(t.TempDir(), "missing.yaml")); err == nil {
		t.Error("Load() of a missing file should fail")
	}
}

func TestExpandHome(t *testing.T) {
	home, err := os.UserHomeDir()
	if err != nil {
		t.Skip("no home directory")
	}
	if got := expandHome("~/data"); got != filepath.Join(home, "data") {
		t.Errorf("expandHome() = %q", got)
	}
	if got := expandHome("/abs/path"); got != "/abs/path" {
		t.Errorf("expandHome() changed an absolute path: %q", got)
	}
}
