package config

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/onnwee/marketplace/internal/tracing"
)

var configEnvKeys = []string{
	"MARKETPLACE_ENV", "ENV", "GO_ENV",
	"CACHE_ENABLED", "REDIS_ADDR", "REDIS_PASSWORD", "REDIS_DB",
	"CACHE_PREFIX", "CACHE_TTL",
	"RANKING_CALIBRATION_PATH", "FEATURED_POOL", "FEATURED_LIMIT", "PAGE_SIZE",
	"SWEEP_INTERVAL", "SWEEP_TIMEOUT",
	"METRICS_ADDR",
	"TRACING_ENABLED", "TRACING_EXPORTER", "TRACING_ENDPOINT", "TRACING_SAMPLE_RATE", "TRACING_INSECURE",
}

// clearEnv blanks every variable Load reads. Empty values count as unset.
func clearEnv(t *testing.T) {
	t.Helper()
	for _, key := range configEnvKeys {
		t.Setenv(key, "")
	}
}

func writeConfigFile(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "marketplace.yaml")
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatalf("failed to write config file: %v", err)
	}
	return path
}

func TestLoad_Defaults(t *testing.T) {
	clearEnv(t)

	cfg, errs := Load("")
	if len(errs) != 0 {
		t.Fatalf("Load() errors = %v, want none", errs)
	}

	if cfg.Env != DefaultEnv {
		t.Errorf("Env = %q, want %q", cfg.Env, DefaultEnv)
	}
	if cfg.CacheEnabled {
		t.Error("CacheEnabled should default to false")
	}
	if cfg.RedisAddr != DefaultRedisAddr {
		t.Errorf("RedisAddr = %q, want %q", cfg.RedisAddr, DefaultRedisAddr)
	}
	if cfg.CachePrefix != DefaultCachePrefix {
		t.Errorf("CachePrefix = %q, want %q", cfg.CachePrefix, DefaultCachePrefix)
	}
	if cfg.CacheTTL != DefaultCacheTTL {
		t.Errorf("CacheTTL = %v, want %v", cfg.CacheTTL, DefaultCacheTTL)
	}
	if cfg.FeaturedPool != DefaultFeaturedPool || cfg.FeaturedLimit != DefaultFeaturedLimit {
		t.Errorf("featured = %d/%d, want %d/%d", cfg.FeaturedPool, cfg.FeaturedLimit, DefaultFeaturedPool, DefaultFeaturedLimit)
	}
	if cfg.PageSize != DefaultPageSize {
		t.Errorf("PageSize = %d, want %d", cfg.PageSize, DefaultPageSize)
	}
	if cfg.SweepInterval != DefaultSweepInterval || cfg.SweepTimeout != DefaultSweepTimeout {
		t.Errorf("sweep = %v/%v, want %v/%v", cfg.SweepInterval, cfg.SweepTimeout, DefaultSweepInterval, DefaultSweepTimeout)
	}
	if cfg.MetricsAddr != DefaultMetricsAddr {
		t.Errorf("MetricsAddr = %q, want %q", cfg.MetricsAddr, DefaultMetricsAddr)
	}
	if cfg.TracingExporter != tracing.ExporterOTLPHTTP {
		t.Errorf("TracingExporter = %q, want %q", cfg.TracingExporter, tracing.ExporterOTLPHTTP)
	}
	if cfg.TracingSampleRate != DefaultTracingSampleRate {
		t.Errorf("TracingSampleRate = %v, want %v", cfg.TracingSampleRate, DefaultTracingSampleRate)
	}
}

func TestLoad_EnvOverrides(t *testing.T) {
	clearEnv(t)
	t.Setenv("ENV", "production")
	t.Setenv("CACHE_ENABLED", "yes")
	t.Setenv("REDIS_ADDR", "redis:6380")
	t.Setenv("REDIS_DB", "3")
	t.Setenv("CACHE_TTL", "90s")
	t.Setenv("FEATURED_POOL", "40")
	t.Setenv("FEATURED_LIMIT", "8")
	t.Setenv("PAGE_SIZE", "25")
	t.Setenv("SWEEP_INTERVAL", "15s")
	t.Setenv("TRACING_ENABLED", "1")
	t.Setenv("TRACING_SAMPLE_RATE", "0.5")

	cfg, errs := Load("")
	if len(errs) != 0 {
		t.Fatalf("Load() errors = %v, want none", errs)
	}

	if !cfg.IsProduction() {
		t.Errorf("IsProduction() = false for Env %q", cfg.Env)
	}
	if !cfg.CacheEnabled || cfg.RedisAddr != "redis:6380" || cfg.RedisDB != 3 {
		t.Errorf("redis = %v %q %d, want enabled redis:6380 db 3", cfg.CacheEnabled, cfg.RedisAddr, cfg.RedisDB)
	}
	if cfg.CacheTTL != 90*time.Second {
		t.Errorf("CacheTTL = %v, want 90s", cfg.CacheTTL)
	}
	if cfg.FeaturedPool != 40 || cfg.FeaturedLimit != 8 || cfg.PageSize != 25 {
		t.Errorf("sizes = %d/%d/%d, want 40/8/25", cfg.FeaturedPool, cfg.FeaturedLimit, cfg.PageSize)
	}
	if cfg.SweepInterval != 15*time.Second {
		t.Errorf("SweepInterval = %v, want 15s", cfg.SweepInterval)
	}
	if !cfg.TracingEnabled || cfg.TracingSampleRate != 0.5 {
		t.Errorf("tracing = %v %v, want enabled at 0.5", cfg.TracingEnabled, cfg.TracingSampleRate)
	}
}

func TestLoad_EnvPrecedence(t *testing.T) {
	tests := []struct {
		name    string
		envVars map[string]string
		want    string
	}{
		{"MARKETPLACE_ENV wins", map[string]string{"MARKETPLACE_ENV": "staging", "ENV": "production", "GO_ENV": "test"}, "staging"},
		{"ENV before GO_ENV", map[string]string{"ENV": "production", "GO_ENV": "test"}, "production"},
		{"GO_ENV last", map[string]string{"GO_ENV": "test"}, "test"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			clearEnv(t)
			for k, v := range tt.envVars {
				t.Setenv(k, v)
			}
			cfg, errs := Load("")
			if len(errs) != 0 {
				t.Fatalf("Load() errors = %v", errs)
			}
			if cfg.Env != tt.want {
				t.Errorf("Env = %q, want %q", cfg.Env, tt.want)
			}
		})
	}
}

func TestLoad_InvalidValues(t *testing.T) {
	tests := []struct {
		name    string
		envVars map[string]string
		wantErr error
	}{
		{"non-numeric redis db", map[string]string{"REDIS_DB": "zero"}, ErrInvalidInteger},
		{"non-numeric page size", map[string]string{"PAGE_SIZE": "ten"}, ErrInvalidInteger},
		{"bad cache ttl", map[string]string{"CACHE_TTL": "5 minutes"}, ErrInvalidDuration},
		{"bad sweep timeout", map[string]string{"SWEEP_TIMEOUT": "soon"}, ErrInvalidDuration},
		{"bad sample rate", map[string]string{"TRACING_SAMPLE_RATE": "half"}, ErrInvalidFloat},
		{"sample rate out of range", map[string]string{"TRACING_SAMPLE_RATE": "1.5"}, ErrInvalidSampleRate},
		{"pool smaller than limit", map[string]string{"FEATURED_POOL": "3", "FEATURED_LIMIT": "5"}, ErrInvalidFeaturedPool},
		{"negative page size", map[string]string{"PAGE_SIZE": "-1"}, ErrInvalidLimit},
		{"negative sweep interval", map[string]string{"SWEEP_INTERVAL": "-1m"}, ErrInvalidSweep},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			clearEnv(t)
			for k, v := range tt.envVars {
				t.Setenv(k, v)
			}

			_, errs := Load("")
			found := false
			for _, err := range errs {
				if errors.Is(err, tt.wantErr) {
					found = true
				}
			}
			if !found {
				t.Errorf("Load() errors = %v, want %v", errs, tt.wantErr)
			}
		})
	}
}

func TestLoad_ConfigFile(t *testing.T) {
	clearEnv(t)
	path := writeConfigFile(t, `
env: staging
cache_enabled: true
redis_addr: cache.internal:6379
redis_password: filepassword123
cache_prefix: shop
cache_ttl: 2m
ranking_calibration_path: configs/ranking.calibration.json
featured_limit: 6
sweep_interval: 30s
tracing_sample_rate: 0
`)
	t.Setenv("REDIS_ADDR", "env-redis:6379")

	cfg, errs := Load(path)
	if len(errs) != 0 {
		t.Fatalf("Load() errors = %v, want none", errs)
	}

	if cfg.Env != "staging" {
		t.Errorf("Env = %q, want staging", cfg.Env)
	}
	if cfg.RedisAddr != "env-redis:6379" {
		t.Errorf("RedisAddr = %q, env should override file", cfg.RedisAddr)
	}
	if cfg.RedisPassword != "filepassword123" || cfg.CachePrefix != "shop" {
		t.Errorf("file values not applied: password %q prefix %q", cfg.RedisPassword, cfg.CachePrefix)
	}
	if !cfg.CacheEnabled {
		t.Error("CacheEnabled should come from the file")
	}
	if cfg.CacheTTL != 2*time.Minute || cfg.SweepInterval != 30*time.Second {
		t.Errorf("durations = %v/%v, want 2m/30s", cfg.CacheTTL, cfg.SweepInterval)
	}
	if cfg.CalibrationPath != "configs/ranking.calibration.json" {
		t.Errorf("CalibrationPath = %q", cfg.CalibrationPath)
	}
	if cfg.FeaturedLimit != 6 || cfg.FeaturedPool != DefaultFeaturedPool {
		t.Errorf("featured = %d/%d, want %d/6", cfg.FeaturedPool, cfg.FeaturedLimit, DefaultFeaturedPool)
	}
	if cfg.TracingSampleRate != 0 {
		t.Errorf("TracingSampleRate = %v, an explicit 0 should be kept", cfg.TracingSampleRate)
	}
}

func TestLoad_MissingConfigFile(t *testing.T) {
	clearEnv(t)
	cfg, errs := Load(filepath.Join(t.TempDir(), "absent.yaml"))
	if cfg != nil {
		t.Error("expected nil config for a missing file")
	}
	if len(errs) != 1 {
		t.Errorf("expected 1 error, got %d: %v", len(errs), errs)
	}
}

func TestValidate_CacheRequiresRedisAddr(t *testing.T) {
	cfg := &Config{
		CacheEnabled:  true,
		FeaturedPool:  20,
		FeaturedLimit: 5,
		PageSize:      10,
		SweepInterval: time.Minute,
		SweepTimeout:  time.Second,
	}
	errs := cfg.Validate()
	if len(errs) != 1 || !errors.Is(errs[0], ErrMissingRedisAddr) {
		t.Errorf("Validate() = %v, want [%v]", errs, ErrMissingRedisAddr)
	}

	cfg.CacheEnabled = false
	if errs := cfg.Validate(); len(errs) != 0 {
		t.Errorf("Validate() = %v, want none with the cache disabled", errs)
	}
}

func TestConfig_Tracing(t *testing.T) {
	cfg := &Config{
		Env:               "production",
		TracingEnabled:    true,
		TracingExporter:   tracing.ExporterOTLPGRPC,
		TracingEndpoint:   "collector:4317",
		TracingSampleRate: 0.25,
		TracingInsecure:   true,
	}

	got := cfg.Tracing("marketplace-sweeper")
	want := tracing.Config{
		ServiceName:  "marketplace-sweeper",
		Enabled:      true,
		Environment:  "production",
		ExporterType: tracing.ExporterOTLPGRPC,
		OTLPEndpoint: "collector:4317",
		SamplingRate: 0.25,
		InsecureMode: true,
	}
	if got != want {
		t.Errorf("Tracing() = %+v, want %+v", got, want)
	}
}

func TestMaskSecret(t *testing.T) {
	tests := []struct {
		input string
		want  string
	}{
		{"", "<not set>"},
		{"short", "****"},
		{"1234567", "****"},
		{"12345678", "1234****"},
		{"supersecretpassword", "supe****"},
	}

	for _, tt := range tests {
		if got := maskSecret(tt.input); got != tt.want {
			t.Errorf("maskSecret(%q) = %q, want %q", tt.input, got, tt.want)
		}
	}
}

func TestLogSummary(t *testing.T) {
	cfg := &Config{
		Env:           "development",
		RedisAddr:     "localhost:6379",
		RedisPassword: "verysecretpassword",
		CacheTTL:      time.Minute,
		PageSize:      10,
	}

	summary := cfg.LogSummary()
	if summary["redis_password"] != "very****" {
		t.Errorf("redis_password = %q, want masked", summary["redis_password"])
	}
	if summary["redis_addr"] != "localhost:6379" {
		t.Errorf("redis_addr = %q", summary["redis_addr"])
	}
	if summary["cache_ttl"] != "1m0s" {
		t.Errorf("cache_ttl = %q, want 1m0s", summary["cache_ttl"])
	}
	if summary["page_size"] != "10" {
		t.Errorf("page_size = %q, want 10", summary["page_size"])
	}
}

func TestLoad_SampleConfig(t *testing.T) {
	clearEnv(t)

	cfg, errs := Load(filepath.Join("..", "..", "configs", "marketplace.yaml"))
	if len(errs) != 0 {
		t.Fatalf("sample config errors = %v", errs)
	}
	if !cfg.CacheEnabled || cfg.CacheTTL != 5*time.Minute || cfg.SweepTimeout != 30*time.Second {
		t.Errorf("unexpected sample config %+v", cfg)
	}
	if cfg.MetricsAddr != ":9090" || cfg.TracingExporter != tracing.ExporterOTLPHTTP {
		t.Errorf("unexpected observability settings %+v", cfg)
	}
}
