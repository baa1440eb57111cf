package ecoauth

import (
	"errors"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/ecochallenge/ecoauth/credstore"
	"github.com/ilyakaznacheev/cleanenv"
)

// Config controls a [Manager]. Start from [DefaultConfig] and override fields, or
// load one with [LoadConfig].
type Config struct {
	BaseURL   string           `yaml:"base_url" env:"ECOAUTH_BASE_URL"`
	HTTP      HTTPConfig       `yaml:"http"`
	Endpoints EndpointsConfig  `yaml:"endpoints"`
	Keys      KeysConfig       `yaml:"keys"`
	Store     credstore.Config `yaml:"store"`
	Audit     AuditConfig      `yaml:"audit"`
	Metrics   MetricsConfig    `yaml:"metrics"`
	Log       LogConfig        `yaml:"log"`
}

/*
====================================
HTTP CONFIG
====================================
*/

// HTTPConfig bounds outbound calls. Timeout applies to every request made through
// the Manager. RefreshTimeout bounds the shared refresh exchange, which runs
// detached from the cancellation of whichever caller started it.
type HTTPConfig struct {
	Timeout        time.Duration `yaml:"timeout" env:"ECOAUTH_HTTP_TIMEOUT"`
	RefreshTimeout time.Duration `yaml:"refresh_timeout" env:"ECOAUTH_HTTP_REFRESH_TIMEOUT"`
	MaxBodyBytes   int64         `yaml:"max_body_bytes" env:"ECOAUTH_HTTP_MAX_BODY_BYTES"`
	UserAgent      string        `yaml:"user_agent" env:"ECOAUTH_HTTP_USER_AGENT"`
}

// EndpointsConfig holds backend paths relative to BaseURL.
type EndpointsConfig struct {
	Login         string `yaml:"login" env:"ECOAUTH_ENDPOINT_LOGIN"`
	Register      string `yaml:"register" env:"ECOAUTH_ENDPOINT_REGISTER"`
	PasswordReset string `yaml:"password_reset" env:"ECOAUTH_ENDPOINT_PASSWORD_RESET"`
	Refresh       string `yaml:"refresh" env:"ECOAUTH_ENDPOINT_REFRESH"`
	Verify        string `yaml:"verify" env:"ECOAUTH_ENDPOINT_VERIFY"`
}

// KeysConfig names the two credential store entries. No other keys are touched.
type KeysConfig struct {
	Access  string `yaml:"access" env:"ECOAUTH_KEY_ACCESS"`
	Refresh string `yaml:"refresh" env:"ECOAUTH_KEY_REFRESH"`
}

type AuditConfig struct {
	Enabled    bool `yaml:"enabled" env:"ECOAUTH_AUDIT_ENABLED"`
	BufferSize int  `yaml:"buffer_size" env:"ECOAUTH_AUDIT_BUFFER_SIZE"`
	DropIfFull bool `yaml:"drop_if_full" env:"ECOAUTH_AUDIT_DROP_IF_FULL"`
}

type MetricsConfig struct {
	Enabled                 bool `yaml:"enabled" env:"ECOAUTH_METRICS_ENABLED"`
	EnableLatencyHistograms bool `yaml:"latency_histograms" env:"ECOAUTH_METRICS_LATENCY"`
}

// LogConfig is consumed by the command-line tools when they build the slog handler.
type LogConfig struct {
	Level  string `yaml:"level" env:"ECOAUTH_LOG_LEVEL"`
	Format string `yaml:"format" env:"ECOAUTH_LOG_FORMAT"`
}

// DefaultConfig returns the configuration used by [New].
func DefaultConfig() Config {
	return defaultConfig()
}

func defaultConfig() Config {
	return Config{
		BaseURL: "http://localhost:8000",
		HTTP: HTTPConfig{
			Timeout:        30 * time.Second,
			RefreshTimeout: 10 * time.Second,
			MaxBodyBytes:   8 << 20,
			UserAgent:      "ecoauth/1",
		},
		Endpoints: EndpointsConfig{
			Login:         "/api/auth/login/",
			Register:      "/api/auth/register/",
			PasswordReset: "/api/auth/password/reset/",
			Refresh:       "/api/token/refresh/",
			Verify:        "/api/auth/test-protected/",
		},
		Keys: KeysConfig{
			Access:  "accessToken",
			Refresh: "refreshToken",
		},
		Store: credstore.Config{
			Backend:     credstore.BackendFile,
			RedisPrefix: "ecoauth",
		},
		Audit: AuditConfig{
			Enabled:    false,
			BufferSize: 1024,
			DropIfFull: true,
		},
		Metrics: MetricsConfig{
			Enabled:                 false,
			EnableLatencyHistograms: false,
		},
		Log: LogConfig{
			Level:  "info",
			Format: "text",
		},
	}
}

func cloneConfig(cfg Config) Config {
	// Config holds only value fields today; the copy is already deep.
	out := cfg
	return out
}

// LoadConfig reads a YAML file (when path is non-empty) over the defaults and then
// applies ECOAUTH_* environment overrides. The result is validated.
func LoadConfig(path string) (Config, error) {
	cfg := defaultConfig()

	var err error
	if path != "" {
		err = cleanenv.ReadConfig(path, &cfg)
	} else {
		err = cleanenv.ReadEnv(&cfg)
	}
	if err != nil {
		return Config{}, fmt.Errorf("ecoauth: load config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

/*
====================================
VALIDATION
====================================
*/

// Validate reports the first invalid field.
func (c *Config) Validate() error {
	// Base URL
	u, err := url.Parse(c.BaseURL)
	if err != nil || u.Scheme == "" || u.Host == "" {
		return errors.New("BaseURL must be an absolute http(s) URL")
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return errors.New("BaseURL scheme must be http or https")
	}
	if u.RawQuery != "" || u.Fragment != "" {
		return errors.New("BaseURL must not carry a query or fragment")
	}

	// HTTP
	if c.HTTP.Timeout <= 0 {
		return errors.New("HTTP Timeout must be > 0")
	}
	if c.HTTP.RefreshTimeout <= 0 {
		return errors.New("HTTP RefreshTimeout must be > 0")
	}
	if c.HTTP.MaxBodyBytes <= 0 {
		return errors.New("HTTP MaxBodyBytes must be > 0")
	}

	// Endpoints
	for name, path := range map[string]string{
		"Login":         c.Endpoints.Login,
		"Register":      c.Endpoints.Register,
		"PasswordReset": c.Endpoints.PasswordReset,
		"Refresh":       c.Endpoints.Refresh,
		"Verify":        c.Endpoints.Verify,
	} {
		if strings.TrimSpace(path) == "" {
			return fmt.Errorf("Endpoints %s must not be empty", name)
		}
	}

	// Keys
	if strings.TrimSpace(c.Keys.Access) == "" || strings.TrimSpace(c.Keys.Refresh) == "" {
		return errors.New("Keys Access and Refresh must not be empty")
	}
	if c.Keys.Access == c.Keys.Refresh {
		return errors.New("Keys Access and Refresh must differ")
	}

	// Store
	switch strings.ToLower(c.Store.Backend) {
	case credstore.BackendMemory, credstore.BackendFile, "":
	case credstore.BackendRedis:
		if c.Store.RedisAddr == "" {
			return errors.New("Store RedisAddr is required for the redis backend")
		}
		if c.Store.RedisTTL < 0 {
			return errors.New("Store RedisTTL must be >= 0")
		}
	default:
		return fmt.Errorf("unsupported Store Backend %q", c.Store.Backend)
	}

	// Audit
	if c.Audit.Enabled && c.Audit.BufferSize <= 0 {
		return errors.New("Audit BufferSize must be > 0 when audit is enabled")
	}

	// Log
	switch strings.ToLower(c.Log.Level) {
	case "", "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("unsupported Log Level %q", c.Log.Level)
	}
	switch strings.ToLower(c.Log.Format) {
	case "", "text", "json":
	default:
		return fmt.Errorf("unsupported Log Format %q", c.Log.Format)
	}

	return nil
}

/*
====================================
LINT
====================================
*/

// LintWarning is a configuration that is valid but probably unintended.
type LintWarning struct {
	Code    string
	Message string
}

type LintWarnings []LintWarning

// Codes lists the warning codes in order.
func (ws LintWarnings) Codes() []string {
	out := make([]string, 0, len(ws))
	for _, w := range ws {
		out = append(out, w.Code)
	}
	return out
}

// Lint returns advisory warnings. It never fails; run Validate first.
func (c *Config) Lint() LintWarnings {
	var ws LintWarnings

	if u, err := url.Parse(c.BaseURL); err == nil && u.Scheme == "http" && !isLoopbackHost(u.Hostname()) {
		ws = append(ws, LintWarning{
			Code:    "plaintext_base_url",
			Message: "bearer tokens will be sent over plain http to a non-loopback host",
		})
	}
	if c.HTTP.RefreshTimeout > c.HTTP.Timeout {
		ws = append(ws, LintWarning{
			Code:    "refresh_timeout_exceeds_timeout",
			Message: "the refresh exchange is also bounded by HTTP Timeout, so RefreshTimeout has no effect beyond it",
		})
	}
	if strings.EqualFold(c.Store.Backend, credstore.BackendMemory) {
		ws = append(ws, LintWarning{
			Code:    "memory_store",
			Message: "credentials are lost when the process exits",
		})
	}
	if strings.EqualFold(c.Store.Backend, credstore.BackendRedis) && c.Store.RedisTTL == 0 {
		ws = append(ws, LintWarning{
			Code:    "redis_store_no_ttl",
			Message: "stored credentials never expire from redis",
		})
	}
	if c.Audit.Enabled && !c.Audit.DropIfFull {
		ws = append(ws, LintWarning{
			Code:    "audit_blocking",
			Message: "a slow audit sink will stall credential operations",
		})
	}
	return ws
}

func isLoopbackHost(host string) bool {
	return host == "localhost" || host == "127.0.0.1" || host == "::1"
}
