package config

import (
	"errors"
	"fmt"
	"io/fs"
	"net/url"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
	"github.com/rs/zerolog"
	"gopkg.in/yaml.v3"

	"github.com/smallwat3r/secretlink/internal/domain"
)

// Store backends.
const (
	StoreMemory = "memory"
	StoreRedis  = "redis"
	StoreMySQL  = "mysql"
)

// Config holds all application configuration.
type Config struct {
	// Server settings
	Port              string        `yaml:"port"`
	BaseURL           string        `yaml:"base_url"`
	ReadTimeout       time.Duration `yaml:"read_timeout"`
	ReadHeaderTimeout time.Duration `yaml:"read_header_timeout"`
	WriteTimeout      time.Duration `yaml:"write_timeout"`
	IdleTimeout       time.Duration `yaml:"idle_timeout"`
	MaxHeaderBytes    int           `yaml:"max_header_bytes"`

	// Store settings
	StoreType       string        `yaml:"store_type"`
	CleanupInterval time.Duration `yaml:"cleanup_interval"`

	// Redis settings
	RedisURL          string        `yaml:"redis_url"`
	RedisPoolSize     int           `yaml:"redis_pool_size"`
	RedisMinIdle      int           `yaml:"redis_min_idle"`
	RedisDialTimeout  time.Duration `yaml:"redis_dial_timeout"`
	RedisReadTimeout  time.Duration `yaml:"redis_read_timeout"`
	RedisWriteTimeout time.Duration `yaml:"redis_write_timeout"`
	RedisPoolTimeout  time.Duration `yaml:"redis_pool_timeout"`

	// MySQL settings
	MySQLDSN string `yaml:"mysql_dsn"`

	// Secret settings
	SecretTTL   time.Duration `yaml:"secret_ttl"`
	MaxAttempts int           `yaml:"max_attempts"`
	GateMode    string        `yaml:"gate_mode"`

	// Rate limits, per client IP per window
	RateLimitPost   int           `yaml:"rate_limit_post"`
	RateLimitGet    int           `yaml:"rate_limit_get"`
	RateLimitWindow time.Duration `yaml:"rate_limit_window"`

	// Logging
	LogLevel  string `yaml:"log_level"`
	LogFormat string `yaml:"log_format"`

	// Shutdown settings
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout"`

	// Security settings
	RequireHTTPS bool `yaml:"require_https"` // enforce HTTPS with HSTS header (disable with NO_HTTPS=1)
	// TrustProxy takes the client address from X-Forwarded-For / X-Real-IP.
	// Only enable it behind a proxy that overwrites those headers.
	TrustProxy bool `yaml:"trust_proxy"`
}

// DefaultConfig returns a Config with sensible defaults.
func DefaultConfig() Config {
	return Config{
		Port:              "8080",
		BaseURL:           "http://localhost:8080",
		ReadTimeout:       15 * time.Second,
		ReadHeaderTimeout: 5 * time.Second,
		WriteTimeout:      60 * time.Second,
		IdleTimeout:       120 * time.Second,
		MaxHeaderBytes:    1 << 20, // 1 MB

		StoreType:       StoreRedis,
		CleanupInterval: time.Minute,

		RedisURL:          "redis://localhost:6379/0",
		RedisPoolSize:     10,
		RedisMinIdle:      2,
		RedisDialTimeout:  5 * time.Second,
		RedisReadTimeout:  3 * time.Second,
		RedisWriteTimeout: 3 * time.Second,
		RedisPoolTimeout:  4 * time.Second,

		SecretTTL:   domain.DefaultTTL,
		MaxAttempts: domain.MaxPasswordAttempts,
		GateMode:    domain.GateServer,

		RateLimitPost:   30,
		RateLimitGet:    120,
		RateLimitWindow: time.Minute,

		LogLevel:  "info",
		LogFormat: "json",

		ShutdownTimeout: 5 * time.Second,

		RequireHTTPS: true, // secure default: enforce HTTPS
	}
}

// Load builds the configuration from, in increasing precedence, the
// defaults, the YAML file at path (if path is set and the file exists),
// a .env file in the working directory, and environment variables.
func Load(path string) (Config, error) {
	cfg := DefaultConfig()

	if path != "" {
		if err := cfg.loadFile(path); err != nil {
			return Config{}, err
		}
	}
	if err := loadDotenv(".env"); err != nil {
		return Config{}, err
	}
	if err := cfg.loadEnv(); err != nil {
		return Config{}, err
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func (c *Config) loadFile(path string) error {
	data, err := os.ReadFile(path)
	if errors.Is(err, fs.ErrNotExist) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("reading config file: %w", err)
	}
	if err := yaml.Unmarshal(data, c); err != nil {
		return fmt.Errorf("parsing config file: %w", err)
	}
	return nil
}

// loadDotenv sets variables from a .env file without overriding ones
// already present in the environment.
func loadDotenv(path string) error {
	err := godotenv.Load(path)
	if err == nil || errors.Is(err, fs.ErrNotExist) {
		return nil
	}
	return fmt.Errorf("loading %s: %w", path, err)
}

func (c *Config) loadEnv() error {
	// Server settings
	if port := os.Getenv("PORT"); port != "" {
		if _, err := strconv.Atoi(port); err != nil {
			return fmt.Errorf("PORT must be a valid number: %w", err)
		}
		c.Port = port
	}
	if baseURL := os.Getenv("BASE_URL"); baseURL != "" {
		c.BaseURL = baseURL
	}

	// Store settings
	if storeType := os.Getenv("STORE_TYPE"); storeType != "" {
		c.StoreType = storeType
	}
	if err := envDuration("CLEANUP_INTERVAL", &c.CleanupInterval); err != nil {
		return err
	}

	// Redis settings
	if redisURL := os.Getenv("REDIS_URL"); redisURL != "" {
		c.RedisURL = redisURL
	}

	if poolSize := os.Getenv("REDIS_POOL_SIZE"); poolSize != "" {
		size, err := strconv.Atoi(poolSize)
		if err != nil || size < 1 {
			return errors.New("REDIS_POOL_SIZE must be a positive integer")
		}
		c.RedisPoolSize = size
	}

	if minIdle := os.Getenv("REDIS_MIN_IDLE"); minIdle != "" {
		idle, err := strconv.Atoi(minIdle)
		if err != nil || idle < 0 {
			return errors.New("REDIS_MIN_IDLE must be a non-negative integer")
		}
		c.RedisMinIdle = idle
	}

	// MySQL settings
	if dsn := os.Getenv("MYSQL_DSN"); dsn != "" {
		c.MySQLDSN = dsn
	}

	// Secret settings
	if err := envDuration("SECRET_TTL", &c.SecretTTL); err != nil {
		return err
	}
	if err := envPositiveInt("MAX_ATTEMPTS", &c.MaxAttempts); err != nil {
		return err
	}
	if mode := os.Getenv("GATE_MODE"); mode != "" {
		c.GateMode = mode
	}

	// Rate limits
	if err := envPositiveInt("RATE_LIMIT_POST", &c.RateLimitPost); err != nil {
		return err
	}
	if err := envPositiveInt("RATE_LIMIT_GET", &c.RateLimitGet); err != nil {
		return err
	}

	// Logging
	if level := os.Getenv("LOG_LEVEL"); level != "" {
		c.LogLevel = level
	}
	if format := os.Getenv("LOG_FORMAT"); format != "" {
		c.LogFormat = format
	}

	// Shutdown settings
	if err := envDuration("SHUTDOWN_TIMEOUT", &c.ShutdownTimeout); err != nil {
		return err
	}

	// Security settings
	if noHTTPS := os.Getenv("NO_HTTPS"); noHTTPS == "1" || noHTTPS == "true" {
		c.RequireHTTPS = false
	}
	if trust := os.Getenv("TRUST_PROXY"); trust != "" {
		v, err := strconv.ParseBool(trust)
		if err != nil {
			return fmt.Errorf("invalid TRUST_PROXY value %q: %w", trust, err)
		}
		c.TrustProxy = v
	}

	return nil
}

// Validate reports the first invalid setting.
func (c Config) Validate() error {
	if _, err := strconv.Atoi(c.Port); err != nil {
		return fmt.Errorf("port must be a valid number: %q", c.Port)
	}
	if u, err := url.Parse(c.BaseURL); err != nil || u.Scheme == "" || u.Host == "" {
		return fmt.Errorf("base_url must be an absolute URL: %q", c.BaseURL)
	}

	switch c.StoreType {
	case StoreMemory:
	case StoreRedis:
		if c.RedisURL == "" {
			return errors.New("redis_url is required when store type is 'redis'")
		}
	case StoreMySQL:
		if c.MySQLDSN == "" {
			return errors.New("mysql_dsn is required when store type is 'mysql'")
		}
	default:
		return fmt.Errorf("invalid store type: %s (must be 'memory', 'redis' or 'mysql')", c.StoreType)
	}

	if c.SecretTTL <= 0 {
		return errors.New("secret_ttl must be positive")
	}
	if c.MaxAttempts < 1 {
		return errors.New("max_attempts must be at least 1")
	}
	if c.GateMode != domain.GateServer && c.GateMode != domain.GateClient {
		return fmt.Errorf("invalid gate mode: %s (must be 'server' or 'client')", c.GateMode)
	}
	if c.RateLimitPost < 1 || c.RateLimitGet < 1 || c.RateLimitWindow <= 0 {
		return errors.New("rate limits must be positive")
	}

	if _, err := zerolog.ParseLevel(c.LogLevel); err != nil {
		return fmt.Errorf("invalid log level: %w", err)
	}
	if c.LogFormat != "json" && c.LogFormat != "console" {
		return fmt.Errorf("invalid log format: %s (must be 'json' or 'console')", c.LogFormat)
	}
	return nil
}

// ListenAddr returns the address string for the HTTP server.
func (c Config) ListenAddr() string {
	return ":" + c.Port
}

func envDuration(key string, dst *time.Duration) error {
	v := os.Getenv(key)
	if v == "" {
		return nil
	}
	dur, err := time.ParseDuration(v)
	if err != nil {
		return fmt.Errorf("%s must be a valid duration: %w", key, err)
	}
	*dst = dur
	return nil
}

func envPositiveInt(key string, dst *int) error {
	v := os.Getenv(key)
	if v == "" {
		return nil
	}
	n, err := strconv.Atoi(v)
	if err != nil || n < 1 {
		return fmt.Errorf("%s must be a positive integer", key)
	}
	*dst = n
	return nil
}
