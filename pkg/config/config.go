// Package config loads the proxy configuration once at startup.
//
// Values come from an optional YAML file (CONFIG_FILE) and are then
// overridden by environment variables. The resulting Config is passed
// explicitly to the components that need it.
package config

import (
	"errors"
	"fmt"
	"net/url"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Defaults.
const (
	DefaultBaseURL         = "https://api.customer.io/v1"
	DefaultPort            = "8080"
	DefaultUserAgent       = "cio-segment-proxy/0.1.0"
	DefaultUpstreamRPS     = 10.0
	DefaultUpstreamTimeout = 30 * time.Second
	DefaultLogLevel        = "info"
)

// Environment variable names.
const (
	EnvConfigFile      = "CONFIG_FILE"
	EnvCustomerIOKey   = "CUSTOMER_IO_API_KEY"
	EnvAPIKey          = "API_KEY"
	EnvBaseURL         = "CUSTOMER_IO_BASE_URL"
	EnvPort            = "PORT"
	EnvRedisURL        = "REDIS_URL"
	EnvRedisPassword   = "REDIS_PASSWORD"
	EnvUpstreamRPS     = "UPSTREAM_RPS"
	EnvUpstreamTimeout = "UPSTREAM_TIMEOUT"
	EnvUserAgent       = "USER_AGENT"
	EnvLogLevel        = "LOG_LEVEL"
	EnvLogPretty       = "LOG_PRETTY"
)

// Config holds the process configuration.
type Config struct {
	// CustomerIOAPIKey is the bearer token for outbound App API calls.
	CustomerIOAPIKey string `yaml:"customer_io_api_key"`

	// APIKey is the shared secret inbound callers send in X-API-KEY.
	APIKey string `yaml:"api_key"`

	// BaseURL is the Customer.io App API root.
	BaseURL string `yaml:"base_url"`

	Port      string `yaml:"port"`
	UserAgent string `yaml:"user_agent"`

	// Redis is optional. Empty RedisURL disables the shared throttle tracker.
	RedisURL      string `yaml:"redis_url"`
	RedisPassword string `yaml:"redis_password"`

	// UpstreamRPS paces outbound calls across the whole process.
	UpstreamRPS     float64       `yaml:"upstream_rps"`
	UpstreamTimeout time.Duration `yaml:"upstream_timeout"`

	LogLevel  string `yaml:"log_level"`
	LogPretty bool   `yaml:"log_pretty"`
}

// Default returns a configuration with every optional field populated.
func Default() Config {
	return Config{
		BaseURL:         DefaultBaseURL,
		Port:            DefaultPort,
		UserAgent:       DefaultUserAgent,
		UpstreamRPS:     DefaultUpstreamRPS,
		UpstreamTimeout: DefaultUpstreamTimeout,
		LogLevel:        DefaultLogLevel,
	}
}

// Load builds the configuration from CONFIG_FILE (if set) and the environment.
func Load() (Config, error) {
	return load(os.Getenv)
}

func load(getenv func(string) string) (Config, error) {
	cfg := Default()

	if path := getenv(EnvConfigFile); path != "" {
		if err := cfg.mergeFile(path); err != nil {
			return Config{}, err
		}
	}

	if err := cfg.mergeEnv(getenv); err != nil {
		return Config{}, err
	}

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func (c *Config) mergeFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read config file: %w", err)
	}
	if err := yaml.Unmarshal(data, c); err != nil {
		return fmt.Errorf("parse config file %s: %w", path, err)
	}
	return nil
}

func (c *Config) mergeEnv(getenv func(string) string) error {
	setSecret(&c.CustomerIOAPIKey, getenv(EnvCustomerIOKey))
	setSecret(&c.APIKey, getenv(EnvAPIKey))
	setString(&c.BaseURL, getenv(EnvBaseURL))
	setString(&c.Port, getenv(EnvPort))
	setString(&c.RedisURL, getenv(EnvRedisURL))
	setSecret(&c.RedisPassword, getenv(EnvRedisPassword))
	setString(&c.UserAgent, getenv(EnvUserAgent))
	setString(&c.LogLevel, getenv(EnvLogLevel))

	if v := getenv(EnvUpstreamRPS); v != "" {
		rps, err := strconv.ParseFloat(v, 64)
		if err != nil {
			return fmt.Errorf("parse %s: %w", EnvUpstreamRPS, err)
		}
		c.UpstreamRPS = rps
	}

	if v := getenv(EnvUpstreamTimeout); v != "" {
		d, err := time.ParseDuration(v)
		if err != nil {
			return fmt.Errorf("parse %s: %w", EnvUpstreamTimeout, err)
		}
		c.UpstreamTimeout = d
	}

	if v := getenv(EnvLogPretty); v != "" {
		pretty, err := strconv.ParseBool(v)
		if err != nil {
			return fmt.Errorf("parse %s: %w", EnvLogPretty, err)
		}
		c.LogPretty = pretty
	}

	return nil
}

// setSecret keeps v byte for byte; secrets are compared exactly.
func setSecret(dst *string, v string) {
	if v != "" {
		*dst = v
	}
}

func setString(dst *string, v string) {
	if v = strings.TrimSpace(v); v != "" {
		*dst = v
	}
}

// Validate checks structural settings. Missing API keys are reported by
// Warnings, not here: the proxy can start and will reject or fail requests.
func (c Config) Validate() error {
	u, err := url.Parse(c.BaseURL)
	if err != nil {
		return fmt.Errorf("invalid base url: %w", err)
	}
	if u.Scheme == "" || u.Host == "" {
		return fmt.Errorf("invalid base url %q: scheme and host are required", c.BaseURL)
	}
	if c.Port == "" {
		return errors.New("port is required")
	}
	if c.UpstreamRPS <= 0 {
		return fmt.Errorf("upstream_rps must be > 0 (got %v)", c.UpstreamRPS)
	}
	if c.UpstreamTimeout <= 0 {
		return fmt.Errorf("upstream_timeout must be > 0 (got %s)", c.UpstreamTimeout)
	}
	return nil
}

// Warnings lists settings that leave the proxy unable to serve requests.
func (c Config) Warnings() []string {
	var out []string
	if c.APIKey == "" {
		out = append(out, EnvAPIKey+" is not set; every request will be rejected with 401")
	}
	if c.CustomerIOAPIKey == "" {
		out = append(out, EnvCustomerIOKey+" is not set; upstream calls will be unauthenticated")
	}
	return out
}

// Addr returns the listen address.
func (c Config) Addr() string {
	return ":" + c.Port
}
