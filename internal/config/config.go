// Package config loads runtime settings from defaults, an optional YAML file and the environment.
// Precedence, lowest to highest: defaults, YAML file, environment (including .env).
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

const (
	DefaultAuthURL     = "https://cloud.ouraring.com/oauth/authorize"
	DefaultTokenURL    = "https://api.ouraring.com/oauth/token"
	DefaultAPIBase     = "https://api.ouraring.com/v2"
	DefaultRedirectURI = "http://localhost:8501"
	DefaultScopes      = "email personal daily heartrate spo2"

	// Upstream budget: 5000 requests per 5 minutes.
	DefaultRateLimitCapacity = 5000
	DefaultRateLimitWindow   = 300 * time.Second
)

// Config holds all configuration for the application.
type Config struct {
	Server    ServerConfig    `yaml:"server"`
	Storage   StorageConfig   `yaml:"storage"`
	OAuth     OAuthConfig     `yaml:"oauth"`
	RateLimit RateLimitConfig `yaml:"rate_limit"`
	Redis     RedisConfig     `yaml:"redis"`
	Fetch     FetchConfig     `yaml:"fetch"`
	Log       LogConfig       `yaml:"log"`
	Refresh   RefreshConfig   `yaml:"refresh"`
}

type ServerConfig struct {
	Host string `yaml:"host"`
	Port string `yaml:"port"`

	// AdminPassword, when set, guards /api with HTTP basic auth.
	AdminPassword string `yaml:"admin_password"`
}

// Addr returns host:port for the HTTP listener.
func (s ServerConfig) Addr() string {
	return s.Host + ":" + s.Port
}

type StorageConfig struct {
	Backend string `yaml:"backend"` // file, sqlite, memory
	DataDir string `yaml:"data_dir"`
	DBPath  string `yaml:"db_path"`
}

type OAuthConfig struct {
	AuthURL            string `yaml:"auth_url"`
	TokenURL           string `yaml:"token_url"`
	APIBase            string `yaml:"api_base"`
	Scopes             string `yaml:"scopes"`
	DefaultRedirectURI string `yaml:"default_redirect_uri"`
	StateMode          string `yaml:"state_mode"` // deterministic, nonce
	StateStore         string `yaml:"state_store"` // memory, redis (nonce mode only)

	// Deployment-level credentials. When set they take precedence over the saved ones.
	ClientID     string `yaml:"client_id"`
	ClientSecret string `yaml:"client_secret"`
	RedirectURI  string `yaml:"redirect_uri"`
}

type RateLimitConfig struct {
	Backend  string        `yaml:"backend"` // memory, redis
	Capacity int           `yaml:"capacity"`
	Window   time.Duration `yaml:"window"`
}

type RedisConfig struct {
	Addr     string `yaml:"addr"`
	Password string `yaml:"password"`
	DB       int    `yaml:"db"`
}

type FetchConfig struct {
	Timeout          time.Duration `yaml:"timeout"`
	DefaultRangeDays int           `yaml:"default_range_days"`
	IntradayHours    int           `yaml:"intraday_hours"`
}

type LogConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

type RefreshConfig struct {
	Enabled  bool   `yaml:"enabled"`
	Schedule string `yaml:"schedule"`
}

// Default returns the built-in configuration.
func Default() *Config {
	dataDir := ".twinsync"
	if home, err := os.UserHomeDir(); err == nil {
		dataDir = filepath.Join(home, ".oura_twin_sync")
	}

	return &Config{
		Server: ServerConfig{Host: "127.0.0.1", Port: "8080"},
		Storage: StorageConfig{
			Backend: "file",
			DataDir: dataDir,
			DBPath:  filepath.Join(dataDir, "twinsync.db"),
		},
		OAuth: OAuthConfig{
			AuthURL:            DefaultAuthURL,
			TokenURL:           DefaultTokenURL,
			APIBase:            DefaultAPIBase,
			Scopes:             DefaultScopes,
			DefaultRedirectURI: DefaultRedirectURI,
			StateMode:          "deterministic",
			StateStore:         "memory",
		},
		RateLimit: RateLimitConfig{
			Backend:  "memory",
			Capacity: DefaultRateLimitCapacity,
			Window:   DefaultRateLimitWindow,
		},
		Redis: RedisConfig{Addr: "localhost:6379"},
		Fetch: FetchConfig{
			Timeout:          30 * time.Second,
			DefaultRangeDays: 14,
			IntradayHours:    4,
		},
		Log:     LogConfig{Level: "info", Format: "console"},
		Refresh: RefreshConfig{Enabled: true, Schedule: "@every 15m"},
	}
}

// Load builds the configuration. path may be empty, in which case TWINSYNC_CONFIG is consulted.
func Load(path string) (*Config, error) {
	loadEnvFile()

	cfg := Default()

	if path == "" {
		path = os.Getenv("TWINSYNC_CONFIG")
	}
	if path != "" {
		if err := cfg.loadFile(path); err != nil {
			return nil, err
		}
	}

	cfg.applyEnv()

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}
	return cfg, nil
}

func (c *Config) loadFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read config %s: %w", path, err)
	}
	if err := yaml.Unmarshal(data, c); err != nil {
		return fmt.Errorf("parse config %s: %w", path, err)
	}
	return nil
}

func (c *Config) applyEnv() {
	c.Server.Host = getEnv("HOST", c.Server.Host)
	c.Server.Port = getEnv("PORT", c.Server.Port)
	c.Server.AdminPassword = getEnv("TWINSYNC_ADMIN_PASSWORD", c.Server.AdminPassword)

	c.Storage.Backend = getEnv("TWINSYNC_STORAGE", c.Storage.Backend)
	c.Storage.DataDir = getEnv("TWINSYNC_DATA_DIR", c.Storage.DataDir)
	c.Storage.DBPath = getEnv("TWINSYNC_DB_PATH", c.Storage.DBPath)

	c.OAuth.AuthURL = getEnv("OURA_AUTH_URL", c.OAuth.AuthURL)
	c.OAuth.TokenURL = getEnv("OURA_TOKEN_URL", c.OAuth.TokenURL)
	c.OAuth.APIBase = getEnv("OURA_API_BASE", c.OAuth.APIBase)
	c.OAuth.ClientID = getEnv("OURA_CLIENT_ID", c.OAuth.ClientID)
	c.OAuth.ClientSecret = getEnv("OURA_CLIENT_SECRET", c.OAuth.ClientSecret)
	c.OAuth.RedirectURI = getEnv("OURA_REDIRECT_URI", c.OAuth.RedirectURI)
	c.OAuth.StateMode = getEnv("TWINSYNC_STATE_MODE", c.OAuth.StateMode)
	c.OAuth.StateStore = getEnv("TWINSYNC_STATE_STORE", c.OAuth.StateStore)

	c.RateLimit.Backend = getEnv("TWINSYNC_RATE_LIMIT_BACKEND", c.RateLimit.Backend)
	c.RateLimit.Capacity = getEnvAsInt("TWINSYNC_RATE_LIMIT_CAPACITY", c.RateLimit.Capacity)
	c.RateLimit.Window = getEnvAsDuration("TWINSYNC_RATE_LIMIT_WINDOW", c.RateLimit.Window)

	c.Redis.Addr = getEnv("REDIS_ADDR", c.Redis.Addr)
	c.Redis.Password = getEnv("REDIS_PASSWORD", c.Redis.Password)
	c.Redis.DB = getEnvAsInt("REDIS_DB", c.Redis.DB)

	c.Fetch.Timeout = getEnvAsDuration("TWINSYNC_FETCH_TIMEOUT", c.Fetch.Timeout)
	c.Fetch.DefaultRangeDays = getEnvAsInt("TWINSYNC_RANGE_DAYS", c.Fetch.DefaultRangeDays)
	c.Fetch.IntradayHours = getEnvAsInt("TWINSYNC_INTRADAY_HOURS", c.Fetch.IntradayHours)

	c.Log.Level = getEnv("LOG_LEVEL", c.Log.Level)
	c.Log.Format = getEnv("LOG_FORMAT", c.Log.Format)

	c.Refresh.Enabled = getEnvAsBool("TWINSYNC_REFRESH_ENABLED", c.Refresh.Enabled)
	c.Refresh.Schedule = getEnv("TWINSYNC_REFRESH_SCHEDULE", c.Refresh.Schedule)
}

// Validate checks that enumerated settings hold known values.
func (c *Config) Validate() error {
	switch c.Storage.Backend {
	case "file", "sqlite", "memory":
	default:
		return fmt.Errorf("storage backend must be one of: file, sqlite, memory (got %q)", c.Storage.Backend)
	}

	switch c.RateLimit.Backend {
	case "memory", "redis":
	default:
		return fmt.Errorf("rate limit backend must be one of: memory, redis (got %q)", c.RateLimit.Backend)
	}
	if c.RateLimit.Capacity <= 0 {
		return fmt.Errorf("rate limit capacity must be positive")
	}
	if c.RateLimit.Window <= 0 {
		return fmt.Errorf("rate limit window must be positive")
	}

	switch c.OAuth.StateMode {
	case "deterministic", "nonce":
	default:
		return fmt.Errorf("oauth state mode must be one of: deterministic, nonce (got %q)", c.OAuth.StateMode)
	}
	switch c.OAuth.StateStore {
	case "memory", "redis":
	default:
		return fmt.Errorf("oauth state store must be one of: memory, redis (got %q)", c.OAuth.StateStore)
	}

	if c.Fetch.Timeout <= 0 {
		return fmt.Errorf("fetch timeout must be positive")
	}
	return nil
}

// ScopeList splits the space-separated scope string.
func (o OAuthConfig) ScopeList() []string {
	return strings.Fields(o.Scopes)
}

// UsesRedis reports whether any component needs a Redis connection.
func (c *Config) UsesRedis() bool {
	return c.RateLimit.Backend == "redis" || (c.OAuth.StateMode == "nonce" && c.OAuth.StateStore == "redis")
}

// StateOutlivesProcess reports whether a state issued by one twinsync process
// can be redeemed by another. Nonces kept in the memory store cannot.
func (c *Config) StateOutlivesProcess() bool {
	return c.OAuth.StateMode != "nonce" || c.OAuth.StateStore == "redis"
}

// loadEnvFile loads the first .env found in the working directory or next to the executable.
func loadEnvFile() {
	paths := []string{".env"}
	if exe, err := os.Executable(); err == nil {
		paths = append(paths, filepath.Join(filepath.Dir(exe), ".env"))
	}

	for _, path := range paths {
		if _, err := os.Stat(path); err == nil {
			_ = godotenv.Load(path)
			return
		}
	}
}

func getEnv(key, defaultValue string) string {
	if value := strings.TrimSpace(os.Getenv(key)); value != "" {
		return value
	}
	return defaultValue
}

func getEnvAsInt(key string, defaultValue int) int {
	value, err := strconv.Atoi(os.Getenv(key))
	if err != nil {
		return defaultValue
	}
	return value
}

func getEnvAsBool(key string, defaultValue bool) bool {
	value, err := strconv.ParseBool(os.Getenv(key))
	if err != nil {
		return defaultValue
	}
	return value
}

func getEnvAsDuration(key string, defaultValue time.Duration) time.Duration {
	value, err := time.ParseDuration(os.Getenv(key))
	if err != nil {
		return defaultValue
	}
	return value
}
