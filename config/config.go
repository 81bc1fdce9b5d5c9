package config

import (
	"errors"
	"fmt"
	"os"
	"slices"
	"strings"
	"time"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"

	"github.com/jonwraymond/telemetrykit/auth"
	"github.com/jonwraymond/telemetrykit/health"
	"github.com/jonwraymond/telemetrykit/observe"
)

// EnvPrefix is the prefix of environment variables read by Load.
const EnvPrefix = "TELEMETRY_"

// ErrInvalidConfig wraps every load and validation failure.
var ErrInvalidConfig = errors.New("config: invalid configuration")

// Config is the full telemetrykit configuration.
type Config struct {
	Log       LogConfig         `koanf:"log"`
	Metrics   MetricsConfig     `koanf:"metrics"`
	Growth    GrowthConfig      `koanf:"growth"`
	Retention RetentionConfig   `koanf:"retention"`
	Health    health.Thresholds `koanf:"health"`
	Observe   ObserveConfig     `koanf:"observe"`
	Server    ServerConfig      `koanf:"server"`
	Auth      auth.Config       `koanf:"auth"`
}

// LogConfig locates the event log files and sets the console log level.
type LogConfig struct {
	Dir   string `koanf:"dir"`
	Level string `koanf:"level"`
}

// MetricsConfig configures the aggregator.
type MetricsConfig struct {
	SlowThreshold time.Duration `koanf:"slow_threshold"`
	SampleEvery   int           `koanf:"sample_every"`
}

// GrowthConfig configures the bounded-growth controller.
type GrowthConfig struct {
	MemoryTrigger float64 `koanf:"memory_trigger"`
	HighWater     int     `koanf:"high_water"`
	LowWater      int     `koanf:"low_water"`
	MaxEndpoints  int     `koanf:"max_endpoints"`
	MaxHeapBytes  uint64  `koanf:"max_heap_bytes"`
	ReclaimMemory bool    `koanf:"reclaim_memory"`
}

// RetentionConfig configures the periodic reset and rotation loops.
type RetentionConfig struct {
	ResetInterval  time.Duration `koanf:"reset_interval"`
	ResetCeiling   uint64        `koanf:"reset_ceiling"`
	RotateInterval time.Duration `koanf:"rotate_interval"`
	MaxAge         time.Duration `koanf:"max_age"`
	MaxSizeBytes   int64         `koanf:"max_size_bytes"`
}

// ObserveConfig selects OpenTelemetry exporters.
type ObserveConfig struct {
	ServiceName     string  `koanf:"service_name"`
	Version         string  `koanf:"version"`
	MetricsExporter string  `koanf:"metrics_exporter"`
	TracingExporter string  `koanf:"tracing_exporter"`
	SamplePct       float64 `koanf:"sample_pct"`
}

// ServerConfig is used by the telemetryd host process.
type ServerConfig struct {
	Addr            string        `koanf:"addr"`
	ShutdownTimeout time.Duration `koanf:"shutdown_timeout"`
}

// Default returns the built-in configuration.
func Default() Config {
	return Config{
		Log: LogConfig{Dir: "logs", Level: "info"},
		Metrics: MetricsConfig{
			SlowThreshold: 3 * time.Second,
			SampleEvery:   10,
		},
		Growth: GrowthConfig{
			MemoryTrigger: 0.8,
			HighWater:     100,
			LowWater:      50,
			MaxEndpoints:  1000,
		},
		Retention: RetentionConfig{
			ResetInterval:  time.Hour,
			ResetCeiling:   100_000,
			RotateInterval: 24 * time.Hour,
			MaxAge:         7 * 24 * time.Hour,
			MaxSizeBytes:   100 * 1024 * 1024,
		},
		Health: health.DefaultThresholds(),
		Observe: ObserveConfig{
			ServiceName:     "telemetrykit",
			MetricsExporter: "none",
			TracingExporter: "none",
			SamplePct:       1.0,
		},
		Server: ServerConfig{
			Addr:            ":8080",
			ShutdownTimeout: 10 * time.Second,
		},
		Auth: auth.Config{APIKeyHeader: auth.DefaultAPIKeyHeader},
	}
}

// Load builds a Config from defaults, the YAML file at path (skipped when
// path is empty) and TELEMETRY_ environment variables, then validates it.
func Load(path string) (Config, error) {
	k := koanf.New(".")
	setDefaults(k, Default())

	if path != "" {
		if err := k.Load(file.Provider(path), yaml.Parser()); err != nil {
			return Config{}, fmt.Errorf("%w: load %s: %v", ErrInvalidConfig, path, err)
		}
	}

	if err := k.Load(env.Provider(EnvPrefix, ".", envKey), nil); err != nil {
		return Config{}, fmt.Errorf("%w: load environment: %v", ErrInvalidConfig, err)
	}

	var cfg Config
	if err := k.Unmarshal("", &cfg); err != nil {
		return Config{}, fmt.Errorf("%w: %v", ErrInvalidConfig, err)
	}

	dir, err := ExpandEnvStrict(cfg.Log.Dir)
	if err != nil {
		return Config{}, fmt.Errorf("%w: log.dir: %v", ErrInvalidConfig, err)
	}
	cfg.Log.Dir = dir

	secret, err := ExpandEnvStrict(cfg.Auth.JWTSecret)
	if err != nil {
		return Config{}, fmt.Errorf("%w: auth.jwt_secret: %v", ErrInvalidConfig, err)
	}
	cfg.Auth.JWTSecret = secret
	cfg.Auth.APIKeys = splitList(cfg.Auth.APIKeys)

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// envKey maps TELEMETRY_GROWTH__HIGH_WATER to growth.high_water.
func envKey(s string) string {
	s = strings.ToLower(strings.TrimPrefix(s, EnvPrefix))
	return strings.ReplaceAll(s, "__", ".")
}

// splitList flattens comma-separated entries, as set through a single
// environment variable, and drops blanks.
func splitList(in []string) []string {
	var out []string
	for _, item := range in {
		for _, part := range strings.Split(item, ",") {
			if part = strings.TrimSpace(part); part != "" {
				out = append(out, part)
			}
		}
	}
	return out
}

func setDefaults(k *koanf.Koanf, d Config) {
	defaults := map[string]any{
		"log.dir":                   d.Log.Dir,
		"log.level":                 d.Log.Level,
		"metrics.slow_threshold":    d.Metrics.SlowThreshold,
		"metrics.sample_every":      d.Metrics.SampleEvery,
		"growth.memory_trigger":     d.Growth.MemoryTrigger,
		"growth.high_water":         d.Growth.HighWater,
		"growth.low_water":          d.Growth.LowWater,
		"growth.max_endpoints":      d.Growth.MaxEndpoints,
		"growth.max_heap_bytes":     d.Growth.MaxHeapBytes,
		"growth.reclaim_memory":     d.Growth.ReclaimMemory,
		"retention.reset_interval":  d.Retention.ResetInterval,
		"retention.reset_ceiling":   d.Retention.ResetCeiling,
		"retention.rotate_interval": d.Retention.RotateInterval,
		"retention.max_age":         d.Retention.MaxAge,
		"retention.max_size_bytes":  d.Retention.MaxSizeBytes,
		"health.error_rate.warn":    d.Health.ErrorRate.Warn,
		"health.error_rate.fail":    d.Health.ErrorRate.Fail,
		"health.memory.warn":        d.Health.Memory.Warn,
		"health.memory.fail":        d.Health.Memory.Fail,
		"health.slow_requests.warn": d.Health.SlowRequests.Warn,
		"health.slow_requests.fail": d.Health.SlowRequests.Fail,
		"observe.service_name":      d.Observe.ServiceName,
		"observe.version":           d.Observe.Version,
		"observe.metrics_exporter":  d.Observe.MetricsExporter,
		"observe.tracing_exporter":  d.Observe.TracingExporter,
		"observe.sample_pct":        d.Observe.SamplePct,
		"server.addr":               d.Server.Addr,
		"server.shutdown_timeout":   d.Server.ShutdownTimeout,
		"auth.api_key_header":       d.Auth.APIKeyHeader,
	}
	for key, value := range defaults {
		_ = k.Set(key, value)
	}
}

// Validate reports every setting that cannot be used, wrapped in
// ErrInvalidConfig.
func (c Config) Validate() error {
	var problems []string
	add := func(format string, args ...any) {
		problems = append(problems, fmt.Sprintf(format, args...))
	}

	if strings.TrimSpace(c.Log.Dir) == "" {
		add("log.dir is required")
	} else if info, err := os.Stat(c.Log.Dir); err == nil && !info.IsDir() {
		add("log.dir %q is not a directory", c.Log.Dir)
	}
	if !slices.Contains(observe.ValidLogLevels, c.Log.Level) {
		add("log.level %q is not one of %v", c.Log.Level, observe.ValidLogLevels)
	}
	if c.Metrics.SlowThreshold <= 0 {
		add("metrics.slow_threshold must be positive")
	}
	if c.Metrics.SampleEvery <= 0 {
		add("metrics.sample_every must be positive")
	}
	if c.Growth.MemoryTrigger <= 0 || c.Growth.MemoryTrigger >= 1 {
		add("growth.memory_trigger must be between 0 and 1")
	}
	if c.Growth.LowWater <= 0 || c.Growth.LowWater > c.Growth.HighWater {
		add("growth.low_water must be positive and at most growth.high_water")
	}
	if c.Growth.MaxEndpoints < c.Growth.HighWater {
		add("growth.max_endpoints must be at least growth.high_water")
	}
	if c.Retention.ResetInterval <= 0 || c.Retention.RotateInterval <= 0 {
		add("retention intervals must be positive")
	}
	if c.Retention.ResetCeiling == 0 {
		add("retention.reset_ceiling must be positive")
	}
	if c.Retention.MaxAge <= 0 || c.Retention.MaxSizeBytes <= 0 {
		add("retention.max_age and retention.max_size_bytes must be positive")
	}
	if err := c.Health.Validate(); err != nil {
		add("%v", err)
	}
	if err := c.Auth.Validate(); err != nil {
		add("%v", err)
	}
	oc := c.ObserveConfig()
	if err := oc.Validate(); err != nil {
		add("%v", err)
	}

	if len(problems) > 0 {
		return fmt.Errorf("%w: %s", ErrInvalidConfig, strings.Join(problems, "; "))
	}
	return nil
}

// ObserveConfig converts the observe section into an observe.Config.
// Exporters set to "none" or "" disable the corresponding signal.
func (c Config) ObserveConfig() observe.Config {
	enabled := func(exporter string) bool { return exporter != "" && exporter != "none" }
	return observe.Config{
		ServiceName: c.Observe.ServiceName,
		Version:     c.Observe.Version,
		Tracing: observe.TracingConfig{
			Enabled:   enabled(c.Observe.TracingExporter),
			Exporter:  c.Observe.TracingExporter,
			SamplePct: c.Observe.SamplePct,
		},
		Metrics: observe.MetricsConfig{
			Enabled:  enabled(c.Observe.MetricsExporter),
			Exporter: c.Observe.MetricsExporter,
		},
		Logging: observe.LoggingConfig{
			Enabled: true,
			Level:   c.Log.Level,
		},
	}
}
