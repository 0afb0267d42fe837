package config

import (
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"regexp"
	"runtime"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Config holds the CRD gateway configuration.
type Config struct {
	HTTP     HTTPConfig     `yaml:"http"`
	Upstream UpstreamConfig `yaml:"upstream"`
	Search   SearchConfig   `yaml:"search"`
	Auth     AuthConfig     `yaml:"auth"`
	Logging  LoggingConfig  `yaml:"logging"`
}

// AuthConfig holds gateway authentication settings.
type AuthConfig struct {
	APIKeys []string `yaml:"api_keys"`
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

// UpstreamConfig holds the CRD search API connection settings.
type UpstreamConfig struct {
	Endpoint   string `yaml:"endpoint"`
	UserAgent  string `yaml:"user_agent"`
	TimeoutSec int    `yaml:"timeout_sec"`
	// Concurrency bounds parallel upstream requests for multi-page searches.
	Concurrency int `yaml:"concurrency"`
}

// SearchConfig holds request defaults and limits applied by the gateway.
type SearchConfig struct {
	DefaultLimit int `yaml:"default_limit"`
	MaxPages     int `yaml:"max_pages"`
	// LenientItems resolves result slots with several records by priority
	// instead of rejecting the page.
	LenientItems bool `yaml:"lenient_items"`
}

// Load reads config/{env}.yaml. CRD_CONFIG, when set, names the file
// directly and env only selects defaults elsewhere.
func Load(env string) (Config, error) {
	path, err := locate(env)
	if err != nil {
		return Config{}, err
	}
	data, err := os.ReadFile(filepath.Clean(path))
	if err != nil {
		return Config{}, fmt.Errorf("read config %s: %w", path, err)
	}
	cfg, err := Parse(data)
	if err != nil {
		return Config{}, fmt.Errorf("%s: %w", path, err)
	}
	return cfg, nil
}

// Parse decodes YAML config data, expanding ${VAR} and ${VAR:-default}.
func Parse(data []byte) (Config, error) {
	var cfg Config
	if err := yaml.Unmarshal(expand(data), &cfg); err != nil {
		return Config{}, fmt.Errorf("parse config: %w", err)
	}
	cfg.ApplyDefaults()
	if err := cfg.Validate(); err != nil {
		return Config{}, fmt.Errorf("invalid config: %w", err)
	}
	return cfg, nil
}

// GetEnv returns the ENV variable, "local" when unset.
func GetEnv() string {
	if env := os.Getenv("ENV"); env != "" {
		return env
	}
	return "local"
}

// ReadTimeout returns the server read timeout.
func (h HTTPConfig) ReadTimeout() time.Duration { return seconds(h.ReadTimeoutSec) }

// WriteTimeout returns the server write timeout.
func (h HTTPConfig) WriteTimeout() time.Duration { return seconds(h.WriteTimeoutSec) }

// ShutdownTimeout returns the graceful shutdown budget.
func (h HTTPConfig) ShutdownTimeout() time.Duration { return seconds(h.ShutdownSec) }

// Addr returns the listen address.
func (h HTTPConfig) Addr() string { return ":" + strconv.Itoa(h.Port) }

// Timeout returns the per-request upstream timeout.
func (u UpstreamConfig) Timeout() time.Duration { return seconds(u.TimeoutSec) }

func seconds(n int) time.Duration { return time.Duration(n) * time.Second }

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
	if c.Upstream.Endpoint == "" {
		c.Upstream.Endpoint = "https://crd.ndl.go.jp/api/refsearch"
	}
	if c.Upstream.UserAgent == "" {
		c.Upstream.UserAgent = "crd-go"
	}
	if c.Upstream.TimeoutSec <= 0 {
		c.Upstream.TimeoutSec = 30
	}
	if c.Upstream.Concurrency <= 0 {
		c.Upstream.Concurrency = 4
	}
	if c.Search.DefaultLimit <= 0 {
		c.Search.DefaultLimit = 20
	}
	if c.Search.MaxPages <= 0 {
		c.Search.MaxPages = 5
	}
}

// Validate checks the configuration for correctness.
func (c *Config) Validate() error {
	if c.HTTP.Port <= 0 || c.HTTP.Port > 65535 {
		return fmt.Errorf("http.port must be between 1 and 65535, got %d", c.HTTP.Port)
	}
	u, err := url.Parse(c.Upstream.Endpoint)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return fmt.Errorf("upstream.endpoint must be an absolute http(s) URL, got %q", c.Upstream.Endpoint)
	}
	if c.Search.DefaultLimit > 200 {
		return fmt.Errorf("search.default_limit must be at most 200, got %d", c.Search.DefaultLimit)
	}
	switch strings.ToLower(c.Logging.Level) {
	case "", "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("logging.level must be debug, info, warn or error, got %q", c.Logging.Level)
	}
	return nil
}

// locate finds the config file: $CRD_CONFIG, then ./config, then the
// module root relative to this source file (tests run from package dirs).
func locate(env string) (string, error) {
	if p := os.Getenv("CRD_CONFIG"); p != "" {
		return p, nil
	}
	name := env + ".yaml"

	_, self, _, _ := runtime.Caller(0)
	root := filepath.Join(filepath.Dir(self), "..", "..")
	candidates := []string{
		filepath.Join("config", name),
		filepath.Join(root, "config", name),
	}
	for _, c := range candidates {
		if _, err := os.Stat(c); err == nil {
			return c, nil
		}
	}
	return "", fmt.Errorf("config %s not found in %s", name, strings.Join(candidates, ", "))
}

// envRef matches ${VAR} and ${VAR:-default}.
var envRef = regexp.MustCompile(`\$\{([A-Za-z_][A-Za-z0-9_]*)(?::-([^}]*))?\}`)

// expand substitutes environment references. An unset or empty variable
// takes its default, or the empty string.
func expand(data []byte) []byte {
	return envRef.ReplaceAllFunc(data, func(ref []byte) []byte {
		m := envRef.FindSubmatch(ref)
		if v := os.Getenv(string(m[1])); v != "" {
			return []byte(v)
		}
		return m[2]
	})
}
