package config

import (
	"errors"
	"fmt"
	"net/url"
	"os"
	"strconv"
	"time"

	"github.com/dyluth/xray/internal/instance"
	"gopkg.in/yaml.v3"
)

// DefaultPath is where the CLI looks for configuration when --config is not given.
const DefaultPath = "xray.yml"

// Store backends
const (
	BackendRedis  = "redis"
	BackendSQLite = "sqlite"
)

// XrayConfig represents the top-level xray.yml configuration
type XrayConfig struct {
	Version  string        `yaml:"version"`
	Instance string        `yaml:"instance"`
	Store    StoreConfig   `yaml:"store"`
	GraphQL  GraphQLConfig `yaml:"graphql"`
	Auth     AuthConfig    `yaml:"auth"`
	Fetch    FetchConfig   `yaml:"fetch"`
	Source   SourceConfig  `yaml:"source"`
	Health   HealthConfig  `yaml:"health"`
}

// StoreConfig selects and locates the persistent store
type StoreConfig struct {
	Backend    string `yaml:"backend"`     // "redis" (default) or "sqlite"
	RedisURL   string `yaml:"redis_url"`   // Default: redis://localhost:6379
	SQLitePath string `yaml:"sqlite_path"` // Default: xray.db
}

// GraphQLConfig locates the GraphQL gateway
type GraphQLConfig struct {
	Endpoint      string   `yaml:"endpoint"`       // Required for watch and scan
	Origin        string   `yaml:"origin"`         // Defaults to the endpoint's scheme and host
	ClientName    string   `yaml:"client_name"`    // Default: atlas-xray
	ClientVersion string   `yaml:"client_version"` // Default: the binary version
	Timeout       Duration `yaml:"timeout"`        // Default: 30s
}

// AuthConfig supplies the session cookie. At most one of the two may be set.
type AuthConfig struct {
	Cookie     string `yaml:"cookie,omitempty"`
	CookieFile string `yaml:"cookie_file,omitempty"`
}

// FetchConfig bounds outbound work
type FetchConfig struct {
	Workers           int     `yaml:"workers"`             // Default: 2
	QueueCapacity     int     `yaml:"queue_capacity"`      // Default: 64
	RequestsPerSecond float64 `yaml:"requests_per_second"` // Default: 2
	Burst             int     `yaml:"burst"`               // Default: 1
}

// SourceConfig tunes document observation
type SourceConfig struct {
	PollInterval Duration `yaml:"poll_interval"` // HTTP sources only. Default: 5s
}

// HealthConfig enables the HTTP health server when Addr is set
type HealthConfig struct {
	Addr string `yaml:"addr,omitempty"`
}

// Duration is a time.Duration that unmarshals from strings like "30s".
type Duration time.Duration

// UnmarshalYAML parses a Go duration string.
func (d *Duration) UnmarshalYAML(value *yaml.Node) error {
	var s string
	if err := value.Decode(&s); err != nil {
		return err
	}
	parsed, err := time.ParseDuration(s)
	if err != nil {
		return fmt.Errorf("invalid duration %q: %w", s, err)
	}
	*d = Duration(parsed)
	return nil
}

// Std returns the value as a time.Duration.
func (d Duration) Std() time.Duration {
	return time.Duration(d)
}

// Default returns a configuration with every default applied.
func Default() *XrayConfig {
	cfg := &XrayConfig{Version: "1.0"}
	// A zero config at version 1.0 only takes defaults, so it always validates
	_ = cfg.Validate()
	return cfg
}

// Validate applies defaults and performs strict validation on the configuration
func (c *XrayConfig) Validate() error {
	// Required: version
	if c.Version != "1.0" {
		return fmt.Errorf("unsupported version: %s (expected: 1.0)", c.Version)
	}

	if c.Instance == "" {
		c.Instance = instance.DefaultName
	}
	if err := instance.ValidateName(c.Instance); err != nil {
		return err
	}

	switch c.Store.Backend {
	case "":
		c.Store.Backend = BackendRedis
	case BackendRedis, BackendSQLite:
	default:
		return fmt.Errorf("invalid store.backend: %s (must be 'redis' or 'sqlite')", c.Store.Backend)
	}
	if c.Store.RedisURL == "" {
		c.Store.RedisURL = "redis://localhost:6379"
	}
	if c.Store.SQLitePath == "" {
		c.Store.SQLitePath = "xray.db"
	}

	if c.GraphQL.Endpoint != "" {
		u, err := url.Parse(c.GraphQL.Endpoint)
		if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
			return fmt.Errorf("invalid graphql.endpoint: %s (must be an http or https URL)", c.GraphQL.Endpoint)
		}
		if c.GraphQL.Origin == "" {
			c.GraphQL.Origin = u.Scheme + "://" + u.Host
		}
	}
	if c.GraphQL.ClientName == "" {
		c.GraphQL.ClientName = "atlas-xray"
	}
	if c.GraphQL.Timeout == 0 {
		c.GraphQL.Timeout = Duration(30 * time.Second)
	}
	if c.GraphQL.Timeout < 0 {
		return fmt.Errorf("graphql.timeout must be positive")
	}

	if c.Auth.Cookie != "" && c.Auth.CookieFile != "" {
		return fmt.Errorf("auth.cookie and auth.cookie_file are mutually exclusive")
	}

	if c.Fetch.Workers == 0 {
		c.Fetch.Workers = 2
	}
	if c.Fetch.Workers < 1 {
		return fmt.Errorf("fetch.workers must be >= 1, got %d", c.Fetch.Workers)
	}
	if c.Fetch.QueueCapacity == 0 {
		c.Fetch.QueueCapacity = 64
	}
	if c.Fetch.QueueCapacity < 1 {
		return fmt.Errorf("fetch.queue_capacity must be >= 1, got %d", c.Fetch.QueueCapacity)
	}
	if c.Fetch.RequestsPerSecond == 0 {
		c.Fetch.RequestsPerSecond = 2
	}
	if c.Fetch.RequestsPerSecond < 0 {
		return fmt.Errorf("fetch.requests_per_second must be positive, got %g", c.Fetch.RequestsPerSecond)
	}
	if c.Fetch.Burst == 0 {
		c.Fetch.Burst = 1
	}
	if c.Fetch.Burst < 1 {
		return fmt.Errorf("fetch.burst must be >= 1, got %d", c.Fetch.Burst)
	}

	if c.Source.PollInterval == 0 {
		c.Source.PollInterval = Duration(5 * time.Second)
	}
	if c.Source.PollInterval < 0 {
		return fmt.Errorf("source.poll_interval must be positive")
	}

	return nil
}

// RequireGraphQL reports an error when no gateway endpoint is configured.
func (c *XrayConfig) RequireGraphQL() error {
	if c.GraphQL.Endpoint == "" {
		return fmt.Errorf("graphql.endpoint is required (set it in %s or XRAY_GRAPHQL_ENDPOINT)", DefaultPath)
	}
	return nil
}

// ApplyEnv overlays environment variables onto the configuration.
func (c *XrayConfig) ApplyEnv(getenv func(string) string) {
	if v := getenv("XRAY_INSTANCE_NAME"); v != "" {
		c.Instance = v
	}
	if v := getenv("REDIS_URL"); v != "" {
		c.Store.RedisURL = v
	}
	if v := getenv("XRAY_STORE_BACKEND"); v != "" {
		c.Store.Backend = v
	}
	if v := getenv("XRAY_SQLITE_PATH"); v != "" {
		c.Store.SQLitePath = v
	}
	if v := getenv("XRAY_GRAPHQL_ENDPOINT"); v != "" {
		c.GraphQL.Endpoint = v
		c.GraphQL.Origin = ""
	}
	if v := getenv("XRAY_COOKIE"); v != "" {
		c.Auth.Cookie = v
		c.Auth.CookieFile = ""
	}
	if v := getenv("XRAY_COOKIE_FILE"); v != "" {
		c.Auth.CookieFile = v
		c.Auth.Cookie = ""
	}
	if v := getenv("XRAY_FETCH_WORKERS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			c.Fetch.Workers = n
		}
	}
}

// Load reads xray.yml from the specified path, applies environment overrides,
// and validates the result. A missing file at DefaultPath yields defaults.
func Load(path string) (*XrayConfig, error) {
	var config XrayConfig

	data, err := os.ReadFile(path)
	switch {
	case err == nil:
		if err := yaml.Unmarshal(data, &config); err != nil {
			return nil, fmt.Errorf("failed to parse YAML: %w", err)
		}
	case errors.Is(err, os.ErrNotExist) && path == DefaultPath:
		config.Version = "1.0"
	default:
		return nil, fmt.Errorf("failed to read config: %w", err)
	}

	config.ApplyEnv(os.Getenv)

	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return &config, nil
}
