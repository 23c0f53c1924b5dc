// Package config provides configuration loading and validation for the
// marketplace ranking binaries. It uses koanf to merge environment variables
// with optional file overrides.
package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"

	"github.com/onnwee/marketplace/internal/tracing"
)

// Config holds all configuration values for the ranking binaries.
type Config struct {
	Env string `koanf:"env"`

	// Redis ranking cache
	CacheEnabled  bool          `koanf:"cache_enabled"`
	RedisAddr     string        `koanf:"redis_addr"`
	RedisPassword string        `koanf:"redis_password"`
	RedisDB       int           `koanf:"redis_db"`
	CachePrefix   string        `koanf:"cache_prefix"`
	CacheTTL      time.Duration `koanf:"cache_ttl"`

	// Ranking
	CalibrationPath string `koanf:"ranking_calibration_path"`
	FeaturedPool    int    `koanf:"featured_pool"`
	FeaturedLimit   int    `koanf:"featured_limit"`
	PageSize        int    `koanf:"page_size"`

	// Featured expiry sweep
	SweepInterval time.Duration `koanf:"sweep_interval"`
	SweepTimeout  time.Duration `koanf:"sweep_timeout"`

	// Observability
	MetricsAddr       string  `koanf:"metrics_addr"`
	TracingEnabled    bool    `koanf:"tracing_enabled"`
	TracingExporter   string  `koanf:"tracing_exporter"`
	TracingEndpoint   string  `koanf:"tracing_endpoint"`
	TracingSampleRate float64 `koanf:"tracing_sample_rate"`
	TracingInsecure   bool    `koanf:"tracing_insecure"`
}

// Configuration errors.
var (
	ErrMissingRedisAddr    = errors.New("REDIS_ADDR is required when the cache is enabled")
	ErrInvalidFeaturedPool = errors.New("FEATURED_POOL must be at least FEATURED_LIMIT")
	ErrInvalidLimit        = errors.New("FEATURED_LIMIT and PAGE_SIZE must be positive")
	ErrInvalidSweep        = errors.New("SWEEP_INTERVAL and SWEEP_TIMEOUT must be positive")
	ErrInvalidSampleRate   = errors.New("TRACING_SAMPLE_RATE must be between 0 and 1")
	ErrInvalidInteger      = errors.New("must be a valid integer")
	ErrInvalidDuration     = errors.New("must be a valid duration")
	ErrInvalidFloat        = errors.New("must be a valid float")
)

// Default values for non-secret configuration.
const (
	DefaultEnv               = "development"
	DefaultRedisAddr         = "localhost:6379"
	DefaultCachePrefix       = "marketplace"
	DefaultCacheTTL          = 5 * time.Minute
	DefaultFeaturedPool      = 20
	DefaultFeaturedLimit     = 5
	DefaultPageSize          = 10
	DefaultSweepInterval     = time.Minute
	DefaultSweepTimeout      = 30 * time.Second
	DefaultMetricsAddr       = ":9090"
	DefaultTracingExporter   = tracing.ExporterOTLPHTTP
	DefaultTracingSampleRate = 0.1
)

// Load reads configuration from environment variables and an optional config file.
// Environment variables take precedence over file values.
// Returns the loaded config and a slice of validation errors (empty if valid).
// If a config file path is provided and the file cannot be loaded, an error is returned.
func Load(configFilePath string) (*Config, []error) {
	k := koanf.New(".")
	var loadErrs []error

	if configFilePath != "" {
		if err := k.Load(file.Provider(configFilePath), yaml.Parser()); err != nil {
			return nil, []error{fmt.Errorf("failed to load config file %s: %w", configFilePath, err)}
		}
	}

	collect := func(err error) {
		if err != nil {
			loadErrs = append(loadErrs, err)
		}
	}

	redisDB, err := getEnvIntOrDefault("REDIS_DB", k.Int("redis_db"), 0)
	collect(err)
	featuredPool, err := getEnvIntOrDefault("FEATURED_POOL", k.Int("featured_pool"), DefaultFeaturedPool)
	collect(err)
	featuredLimit, err := getEnvIntOrDefault("FEATURED_LIMIT", k.Int("featured_limit"), DefaultFeaturedLimit)
	collect(err)
	pageSize, err := getEnvIntOrDefault("PAGE_SIZE", k.Int("page_size"), DefaultPageSize)
	collect(err)

	cacheTTL, err := getEnvDurationOrDefault("CACHE_TTL", k, "cache_ttl", DefaultCacheTTL)
	collect(err)
	sweepInterval, err := getEnvDurationOrDefault("SWEEP_INTERVAL", k, "sweep_interval", DefaultSweepInterval)
	collect(err)
	sweepTimeout, err := getEnvDurationOrDefault("SWEEP_TIMEOUT", k, "sweep_timeout", DefaultSweepTimeout)
	collect(err)

	sampleRate, err := getEnvFloatOrDefault("TRACING_SAMPLE_RATE", k, "tracing_sample_rate", DefaultTracingSampleRate)
	collect(err)

	cfg := &Config{
		Env:               getEnvOrDefaultMulti([]string{"MARKETPLACE_ENV", "ENV", "GO_ENV"}, k.String("env"), DefaultEnv),
		CacheEnabled:      getEnvBoolOrDefault("CACHE_ENABLED", k, "cache_enabled", false),
		RedisAddr:         getEnvOrDefault("REDIS_ADDR", k.String("redis_addr"), DefaultRedisAddr),
		RedisPassword:     getEnvOrKoanf("REDIS_PASSWORD", k, "redis_password"),
		RedisDB:           redisDB,
		CachePrefix:       getEnvOrDefault("CACHE_PREFIX", k.String("cache_prefix"), DefaultCachePrefix),
		CacheTTL:          cacheTTL,
		CalibrationPath:   getEnvOrKoanf("RANKING_CALIBRATION_PATH", k, "ranking_calibration_path"),
		FeaturedPool:      featuredPool,
		FeaturedLimit:     featuredLimit,
		PageSize:          pageSize,
		SweepInterval:     sweepInterval,
		SweepTimeout:      sweepTimeout,
		MetricsAddr:       getEnvOrDefault("METRICS_ADDR", k.String("metrics_addr"), DefaultMetricsAddr),
		TracingEnabled:    getEnvBoolOrDefault("TRACING_ENABLED", k, "tracing_enabled", false),
		TracingExporter:   getEnvOrDefault("TRACING_EXPORTER", k.String("tracing_exporter"), DefaultTracingExporter),
		TracingEndpoint:   getEnvOrKoanf("TRACING_ENDPOINT", k, "tracing_endpoint"),
		TracingSampleRate: sampleRate,
		TracingInsecure:   getEnvBoolOrDefault("TRACING_INSECURE", k, "tracing_insecure", false),
	}

	errs := cfg.Validate()
	errs = append(loadErrs, errs...)

	return cfg, errs
}

// getEnvOrKoanf returns the environment variable value if set, otherwise the koanf value.
func getEnvOrKoanf(envKey string, k *koanf.Koanf, koanfKey string) string {
	if val := os.Getenv(envKey); val != "" {
		return val
	}
	return k.String(koanfKey)
}

// getEnvOrDefault returns the environment variable value if set, otherwise the koanf value, or default.
func getEnvOrDefault(envKey string, koanfVal string, defaultVal string) string {
	return getEnvOrDefaultMulti([]string{envKey}, koanfVal, defaultVal)
}

// getEnvOrDefaultMulti tries multiple environment variable keys in order.
// Returns the first non-empty value found, otherwise the koanf value, or default.
func getEnvOrDefaultMulti(envKeys []string, koanfVal string, defaultVal string) string {
	for _, key := range envKeys {
		if val := os.Getenv(key); val != "" {
			return val
		}
	}
	if koanfVal != "" {
		return koanfVal
	}
	return defaultVal
}

// getEnvIntOrDefault returns the environment variable as int if set, otherwise the koanf value, or default.
// A zero value in the file falls back to the default.
func getEnvIntOrDefault(envKey string, koanfVal int, defaultVal int) (int, error) {
	if val := os.Getenv(envKey); val != "" {
		i, err := strconv.Atoi(strings.TrimSpace(val))
		if err != nil {
			return defaultVal, fmt.Errorf("%s %w", envKey, ErrInvalidInteger)
		}
		return i, nil
	}
	if koanfVal != 0 {
		return koanfVal, nil
	}
	return defaultVal, nil
}

// getEnvDurationOrDefault accepts Go duration strings ("90s", "5m") from env or file.
func getEnvDurationOrDefault(envKey string, k *koanf.Koanf, koanfKey string, defaultVal time.Duration) (time.Duration, error) {
	if val := os.Getenv(envKey); val != "" {
		d, err := time.ParseDuration(strings.TrimSpace(val))
		if err != nil {
			return defaultVal, fmt.Errorf("%s %w", envKey, ErrInvalidDuration)
		}
		return d, nil
	}
	if !k.Exists(koanfKey) {
		return defaultVal, nil
	}
	d, err := time.ParseDuration(k.String(koanfKey))
	if err != nil {
		return defaultVal, fmt.Errorf("%s %w", koanfKey, ErrInvalidDuration)
	}
	return d, nil
}

// getEnvFloatOrDefault returns the environment variable as float64 if set, otherwise the koanf value, or default.
// Unlike the integer helper, an explicit 0 in the file is honored.
func getEnvFloatOrDefault(envKey string, k *koanf.Koanf, koanfKey string, defaultVal float64) (float64, error) {
	if val := os.Getenv(envKey); val != "" {
		f, err := strconv.ParseFloat(strings.TrimSpace(val), 64)
		if err != nil {
			return defaultVal, fmt.Errorf("%s %w", envKey, ErrInvalidFloat)
		}
		return f, nil
	}
	if k.Exists(koanfKey) {
		return k.Float64(koanfKey), nil
	}
	return defaultVal, nil
}

// getEnvBoolOrDefault reads true/false, 1/0, yes/no or on/off from env, then the file.
// Unrecognized env values are ignored.
func getEnvBoolOrDefault(envKey string, k *koanf.Koanf, koanfKey string, defaultVal bool) bool {
	result := defaultVal
	if k.Exists(koanfKey) {
		result = k.Bool(koanfKey)
	}
	switch strings.ToLower(strings.TrimSpace(os.Getenv(envKey))) {
	case "true", "1", "yes", "on":
		result = true
	case "false", "0", "no", "off":
		result = false
	}
	return result
}

// Validate checks value ranges and cross-field constraints.
// Returns a slice of validation errors (empty if valid).
func (c *Config) Validate() []error {
	var errs []error

	if c.CacheEnabled && c.RedisAddr == "" {
		errs = append(errs, ErrMissingRedisAddr)
	}
	if c.FeaturedLimit < 1 || c.PageSize < 1 {
		errs = append(errs, ErrInvalidLimit)
	} else if c.FeaturedPool < c.FeaturedLimit {
		errs = append(errs, ErrInvalidFeaturedPool)
	}
	if c.SweepInterval <= 0 || c.SweepTimeout <= 0 {
		errs = append(errs, ErrInvalidSweep)
	}
	if c.TracingSampleRate < 0 || c.TracingSampleRate > 1 {
		errs = append(errs, ErrInvalidSampleRate)
	}

	return errs
}

// Tracing converts the tracing settings for tracing.NewProvider.
func (c *Config) Tracing(serviceName string) tracing.Config {
	return tracing.Config{
		ServiceName:  serviceName,
		Enabled:      c.TracingEnabled,
		Environment:  c.Env,
		ExporterType: c.TracingExporter,
		OTLPEndpoint: c.TracingEndpoint,
		SamplingRate: c.TracingSampleRate,
		InsecureMode: c.TracingInsecure,
	}
}

// IsProduction reports whether the binaries run in production.
func (c *Config) IsProduction() bool {
	return strings.EqualFold(c.Env, "production")
}

// LogSummary returns a summary of the configuration suitable for logging.
// Secrets are masked.
func (c *Config) LogSummary() map[string]string {
	return map[string]string{
		"env":                      c.Env,
		"cache_enabled":            strconv.FormatBool(c.CacheEnabled),
		"redis_addr":               c.RedisAddr,
		"redis_password":           maskSecret(c.RedisPassword),
		"redis_db":                 strconv.Itoa(c.RedisDB),
		"cache_prefix":             c.CachePrefix,
		"cache_ttl":                c.CacheTTL.String(),
		"ranking_calibration_path": c.CalibrationPath,
		"featured_pool":            strconv.Itoa(c.FeaturedPool),
		"featured_limit":           strconv.Itoa(c.FeaturedLimit),
		"page_size":                strconv.Itoa(c.PageSize),
		"sweep_interval":           c.SweepInterval.String(),
		"sweep_timeout":            c.SweepTimeout.String(),
		"metrics_addr":             c.MetricsAddr,
		"tracing_enabled":          strconv.FormatBool(c.TracingEnabled),
		"tracing_exporter":         c.TracingExporter,
		"tracing_endpoint":         c.TracingEndpoint,
	}
}

// maskSecret masks a secret value, showing only the first 4 characters followed by ****
// If the secret is shorter than 8 characters, it's fully masked.
func maskSecret(s string) string {
	if s == "" {
		return "<not set>"
	}
	if len(s) < 8 {
		return "****"
	}
	return s[:4] + "****"
}
