package backend

import (
	"fmt"
	"net/url"
	"strings"
	"time"
)

const (
	defaultAPIPrefix  = "/api/v1"
	defaultAuthHeader = "Authorization"
	defaultAuthScheme = "Bearer"
	defaultTimeout    = 30 * time.Second
	defaultRetries    = 2
	defaultBackoff    = 500 * time.Millisecond
)

// Config describes how to reach the survey backend. Header name and path
// prefix vary between deployments and are configured, not hard-coded.
type Config struct {
	BaseURL    string `yaml:"base_url" envconfig:"BACKEND_BASE_URL"`
	APIPrefix  string `yaml:"api_prefix" envconfig:"BACKEND_API_PREFIX"`
	Token      string `yaml:"token" envconfig:"BACKEND_TOKEN"`
	AuthHeader string `yaml:"auth_header" envconfig:"BACKEND_AUTH_HEADER"`
	// AuthScheme prefixes the token; "none" sends the bare token.
	AuthScheme         string `yaml:"auth_scheme" envconfig:"BACKEND_AUTH_SCHEME"`
	InsecureSkipVerify bool   `yaml:"insecure_skip_verify" envconfig:"BACKEND_INSECURE_SKIP_VERIFY"`
	TimeoutSeconds     int    `yaml:"timeout_seconds" envconfig:"BACKEND_TIMEOUT_SECONDS"`
	Retries            int    `yaml:"retries" envconfig:"BACKEND_RETRIES"`
	RetryBackoffMS     int    `yaml:"retry_backoff_ms" envconfig:"BACKEND_RETRY_BACKOFF_MS"`
	// CategoryPaths overrides upload/export paths keyed by category name.
	CategoryPaths map[string]string `yaml:"category_paths"`
}

// Normalize validates required fields and fills defaults.
func (c *Config) Normalize() error {
	c.BaseURL = strings.TrimRight(strings.TrimSpace(c.BaseURL), "/")
	if c.BaseURL == "" {
		return fmt.Errorf("backend.base_url is required")
	}
	u, err := url.Parse(c.BaseURL)
	if err != nil || u.Scheme == "" || u.Host == "" {
		return fmt.Errorf("backend.base_url %q is not an absolute URL", c.BaseURL)
	}
	prefix := strings.TrimSpace(c.APIPrefix)
	switch {
	case prefix == "":
		prefix = defaultAPIPrefix
	case prefix == "/":
		prefix = ""
	}
	if prefix != "" && !strings.HasPrefix(prefix, "/") {
		prefix = "/" + prefix
	}
	c.APIPrefix = strings.TrimRight(prefix, "/")
	if strings.TrimSpace(c.AuthHeader) == "" {
		c.AuthHeader = defaultAuthHeader
	}
	if strings.TrimSpace(c.AuthScheme) == "" {
		c.AuthScheme = defaultAuthScheme
	}
	if c.TimeoutSeconds < 0 || c.Retries < 0 || c.RetryBackoffMS < 0 {
		return fmt.Errorf("backend timeout/retry settings must be >= 0")
	}
	for name := range c.CategoryPaths {
		if _, ok := ParseCategory(name); !ok {
			return fmt.Errorf("backend.category_paths: unknown category %q", name)
		}
	}
	return nil
}

// Timeout returns the per-request client timeout.
func (c Config) Timeout() time.Duration {
	if c.TimeoutSeconds <= 0 {
		return defaultTimeout
	}
	return time.Duration(c.TimeoutSeconds) * time.Second
}

func (c Config) retries() int {
	if c.Retries <= 0 {
		return defaultRetries
	}
	return c.Retries
}

func (c Config) backoff() time.Duration {
	if c.RetryBackoffMS <= 0 {
		return defaultBackoff
	}
	return time.Duration(c.RetryBackoffMS) * time.Millisecond
}

func (c Config) authValue() string {
	if strings.EqualFold(c.AuthScheme, "none") {
		return c.Token
	}
	return c.AuthScheme + " " + c.Token
}

func (c Config) categoryPath(cat Category) string {
	if p, ok := c.CategoryPaths[string(cat)]; ok && strings.TrimSpace(p) != "" {
		return p
	}
	return cat.defaultPath()
}
