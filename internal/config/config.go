// Package config loads the gateway configuration from the environment and
// an optional .env file.
package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/Sternrassler/price-getter/pkg/logging"
	"github.com/Sternrassler/price-getter/pkg/product"
	"github.com/joho/godotenv"
	"github.com/redis/go-redis/v9"
)

// DefaultEnvFile is read when present.
const DefaultEnvFile = ".env"

// Config is the full gateway configuration.
type Config struct {
	ClientID     string
	ClientSecret string
	Scope        string

	BaseURL      string
	UserAgent    string
	RetailerName string

	Port string

	UpstreamTimeout     time.Duration
	// UpstreamMaxAttempts applies to store and product searches. The token
	// request is always sent once.
	UpstreamMaxAttempts int
	SearchFilter        product.SearchFilter

	// RedisURL selects Redis-backed caches when set.
	RedisURL string

	LocationCacheTTL      time.Duration
	TokenSafetyMargin     time.Duration
	MemoryCacheMaxEntries int
	BatchMaxConcurrency   int

	LogLevel  string
	LogPretty bool
}

// Load reads envFile into the process environment, then builds the
// configuration. A missing DefaultEnvFile is ignored; any other envFile
// must exist. Variables already set in the environment win over the file.
func Load(envFile string) (Config, error) {
	if err := loadEnvFile(envFile); err != nil {
		return Config{}, err
	}
	return FromEnv()
}

func loadEnvFile(path string) error {
	if path == "" {
		path = DefaultEnvFile
	}
	if err := godotenv.Load(path); err != nil {
		if errors.Is(err, os.ErrNotExist) && path == DefaultEnvFile {
			return nil
		}
		return fmt.Errorf("load env file %s: %w", path, err)
	}
	return nil
}

// FromEnv builds the configuration from environment variables only.
func FromEnv() (Config, error) {
	cfg := Config{
		ClientID:     os.Getenv("KROGER_CLIENT_ID"),
		ClientSecret: os.Getenv("KROGER_CLIENT_SECRET"),
		Scope:        getEnv("KROGER_DEFAULT_SCOPE", "product.compact"),
		BaseURL:      getEnv("KROGER_API_BASE_URL", "https://api.kroger.com/v1"),
		UserAgent:    getEnv("USER_AGENT", "priceGetter/1.0"),
		RetailerName: getEnv("RETAILER_NAME", "Kroger"),
		Port:         getEnv("PORT", "4000"),
		RedisURL:     os.Getenv("REDIS_URL"),
		LogLevel:     getEnv("LOG_LEVEL", "info"),
	}

	var errs []error
	collect := func(err error) {
		if err != nil {
			errs = append(errs, err)
		}
	}

	var err error
	cfg.UpstreamTimeout, err = getDuration("UPSTREAM_TIMEOUT", 10*time.Second)
	collect(err)
	cfg.LocationCacheTTL, err = getDuration("LOCATION_CACHE_TTL", 24*time.Hour)
	collect(err)
	cfg.TokenSafetyMargin, err = getDuration("TOKEN_SAFETY_MARGIN", 60*time.Second)
	collect(err)
	cfg.UpstreamMaxAttempts, err = getInt("UPSTREAM_MAX_ATTEMPTS", 1)
	collect(err)
	cfg.MemoryCacheMaxEntries, err = getInt("MEMORY_CACHE_MAX_ENTRIES", 10000)
	collect(err)
	cfg.BatchMaxConcurrency, err = getInt("BATCH_MAX_CONCURRENCY", 4)
	collect(err)
	cfg.LogPretty, err = getBool("LOG_PRETTY", false)
	collect(err)
	cfg.SearchFilter, err = product.ParseSearchFilter(os.Getenv("PRODUCT_SEARCH_FILTER"))
	collect(err)

	if len(errs) > 0 {
		return Config{}, errors.Join(errs...)
	}
	return cfg, nil
}

// Validate checks the values that have no usable default.
func (c Config) Validate() error {
	var errs []error

	if c.ClientID == "" {
		errs = append(errs, errors.New("KROGER_CLIENT_ID is required"))
	}
	if c.ClientSecret == "" {
		errs = append(errs, errors.New("KROGER_CLIENT_SECRET is required"))
	}
	if port, err := strconv.Atoi(c.Port); err != nil || port < 1 || port > 65535 {
		errs = append(errs, fmt.Errorf("PORT must be 1-65535 (got %q)", c.Port))
	}
	if c.UpstreamTimeout <= 0 {
		errs = append(errs, fmt.Errorf("UPSTREAM_TIMEOUT must be positive (got %s)", c.UpstreamTimeout))
	}
	if c.UpstreamMaxAttempts < 1 {
		errs = append(errs, fmt.Errorf("UPSTREAM_MAX_ATTEMPTS must be >= 1 (got %d)", c.UpstreamMaxAttempts))
	}
	if c.LocationCacheTTL <= 0 {
		errs = append(errs, fmt.Errorf("LOCATION_CACHE_TTL must be positive (got %s)", c.LocationCacheTTL))
	}
	if c.TokenSafetyMargin < 0 {
		errs = append(errs, fmt.Errorf("TOKEN_SAFETY_MARGIN must not be negative (got %s)", c.TokenSafetyMargin))
	}
	if c.MemoryCacheMaxEntries < 0 {
		errs = append(errs, fmt.Errorf("MEMORY_CACHE_MAX_ENTRIES must not be negative (got %d)", c.MemoryCacheMaxEntries))
	}
	if c.BatchMaxConcurrency < 1 {
		errs = append(errs, fmt.Errorf("BATCH_MAX_CONCURRENCY must be >= 1 (got %d)", c.BatchMaxConcurrency))
	}
	if _, err := logging.ParseLevel(c.LogLevel); err != nil {
		errs = append(errs, fmt.Errorf("LOG_LEVEL: %w", err))
	}
	if c.RedisURL != "" {
		if _, err := redis.ParseURL(c.RedisURL); err != nil {
			errs = append(errs, fmt.Errorf("REDIS_URL: %w", err))
		}
	}

	return errors.Join(errs...)
}

// Addr returns the listen address.
func (c Config) Addr() string {
	return ":" + c.Port
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getDuration(key string, defaultValue time.Duration) (time.Duration, error) {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue, nil
	}
	d, err := time.ParseDuration(value)
	if err != nil {
		return 0, fmt.Errorf("%s: invalid duration %q", key, value)
	}
	return d, nil
}

func getInt(key string, defaultValue int) (int, error) {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue, nil
	}
	n, err := strconv.Atoi(value)
	if err != nil {
		return 0, fmt.Errorf("%s: invalid integer %q", key, value)
	}
	return n, nil
}

func getBool(key string, defaultValue bool) (bool, error) {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue, nil
	}
	b, err := strconv.ParseBool(value)
	if err != nil {
		return false, fmt.Errorf("%s: invalid boolean %q", key, value)
	}
	return b, nil
}
