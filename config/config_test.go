package config

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func writeYAML(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "telemetry.yaml")
	if err := os.WriteFile(path, []byte(body), 0o644); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestLoad_Defaults(t *testing.T) {
	cfg, err := Load("")
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	want := Default()
	if cfg.Log != want.Log || cfg.Metrics != want.Metrics || cfg.Growth != want.Growth ||
		cfg.Retention != want.Retention || cfg.Health != want.Health {
		t.Errorf("Load(\"\") = %+v, want defaults %+v", cfg, want)
	}
	if cfg.Retention.ResetCeiling != 100_000 || cfg.Metrics.SlowThreshold != 3*time.Second {
		t.Errorf("unexpected defaults: %+v", cfg)
	}
}

func TestLoad_FileThenEnv(t *testing.T) {
	path := writeYAML(t, `
log:
  dir: /tmp/telemetry-test
  level: debug
metrics:
  slow_threshold: 1500ms
  sample_every: 5
growth:
  high_water: 200
  low_water: 80
health:
  error_rate:
    warn: 2
    fail: 4
`)
	t.Setenv("TELEMETRY_GROWTH__HIGH_WATER", "300")
	t.Setenv("TELEMETRY_RETENTION__MAX_AGE", "48h")

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	if cfg.Log.Dir != "/tmp/telemetry-test" || cfg.Log.Level != "debug" {
		t.Errorf("Log = %+v", cfg.Log)
	}
	if cfg.Metrics.SlowThreshold != 1500*time.Millisecond || cfg.Metrics.SampleEvery != 5 {
		t.Errorf("Metrics = %+v", cfg.Metrics)
	}
	if cfg.Growth.HighWater != 300 {
		t.Errorf("HighWater = %d, want 300 (env wins over file)", cfg.Growth.HighWater)
	}
	if cfg.Growth.LowWater != 80 || cfg.Growth.MaxEndpoints != 1000 {
		t.Errorf("Growth = %+v", cfg.Growth)
	}
	if cfg.Retention.MaxAge != 48*time.Hour {
		t.Errorf("MaxAge = %v, want 48h", cfg.Retention.MaxAge)
	}
	if cfg.Health.ErrorRate.Warn != 2 || cfg.Health.ErrorRate.Fail != 4 || cfg.Health.Memory.Warn != 80 {
		t.Errorf("Health = %+v", cfg.Health)
	}
}

func TestLoad_Auth(t *testing.T) {
	path := writeYAML(t, `
auth:
  api_keys:
    - from-file
  jwt_secret: ${TK_TEST_JWT_SECRET}
  jwt_issuer: ops
`)
	t.Setenv("TK_TEST_JWT_SECRET", strings.Repeat("k", 32))

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if len(cfg.Auth.APIKeys) != 1 || cfg.Auth.APIKeys[0] != "from-file" {
		t.Errorf("APIKeys = %v", cfg.Auth.APIKeys)
	}
	if cfg.Auth.JWTSecret != strings.Repeat("k", 32) || cfg.Auth.JWTIssuer != "ops" {
		t.Errorf("Auth = %+v", cfg.Auth)
	}
	if cfg.Auth.APIKeyHeader != "X-API-Key" {
		t.Errorf("APIKeyHeader = %q", cfg.Auth.APIKeyHeader)
	}

	t.Setenv("TELEMETRY_AUTH__API_KEYS", "one, two,,three")
	cfg, err = Load(path)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if got := strings.Join(cfg.Auth.APIKeys, "|"); got != "one|two|three" {
		t.Errorf("APIKeys from env = %q", got)
	}
}

func TestLoad_AuthSecretMustBeSet(t *testing.T) {
	path := writeYAML(t, "auth:\n  jwt_secret: ${TK_TEST_UNSET_SECRET}\n")
	if _, err := Load(path); !errors.Is(err, ErrInvalidConfig) || !strings.Contains(err.Error(), "jwt_secret") {
		t.Errorf("Load() = %v, want ErrInvalidConfig naming jwt_secret", err)
	}
}

func TestLoad_ExpandsLogDir(t *testing.T) {
	t.Setenv("TK_TEST_ROOT", "/srv/app")
	t.Setenv("TELEMETRY_LOG__DIR", "${TK_TEST_ROOT}/logs")

	cfg, err := Load("")
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.Log.Dir != "/srv/app/logs" {
		t.Errorf("Log.Dir = %q, want /srv/app/logs", cfg.Log.Dir)
	}

	t.Setenv("TELEMETRY_LOG__DIR", "${TK_TEST_UNSET_ROOT}/logs")
	if _, err := Load(""); !errors.Is(err, ErrInvalidConfig) {
		t.Errorf("Load() with unset variable = %v, want ErrInvalidConfig", err)
	}
}

func TestLoad_Errors(t *testing.T) {
	t.Run("missing file", func(t *testing.T) {
		_, err := Load(filepath.Join(t.TempDir(), "absent.yaml"))
		if !errors.Is(err, ErrInvalidConfig) {
			t.Errorf("Load() error = %v, want ErrInvalidConfig", err)
		}
	})
	t.Run("malformed yaml", func(t *testing.T) {
		_, err := Load(writeYAML(t, "log: [unterminated"))
		if !errors.Is(err, ErrInvalidConfig) {
			t.Errorf("Load() error = %v, want ErrInvalidConfig", err)
		}
	})
	t.Run("invalid value", func(t *testing.T) {
		t.Setenv("TELEMETRY_GROWTH__MEMORY_TRIGGER", "1.5")
		_, err := Load("")
		if !errors.Is(err, ErrInvalidConfig) || !strings.Contains(err.Error(), "memory_trigger") {
			t.Errorf("Load() error = %v", err)
		}
	})
}

func TestConfig_Validate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
		want   string
	}{
		{"empty log dir", func(c *Config) { c.Log.Dir = " " }, "log.dir"},
		{"bad level", func(c *Config) { c.Log.Level = "verbose" }, "log.level"},
		{"zero slow threshold", func(c *Config) { c.Metrics.SlowThreshold = 0 }, "slow_threshold"},
		{"zero sample", func(c *Config) { c.Metrics.SampleEvery = 0 }, "sample_every"},
		{"low above high", func(c *Config) { c.Growth.LowWater = 500 }, "low_water"},
		{"cap below high", func(c *Config) { c.Growth.MaxEndpoints = 10 }, "max_endpoints"},
		{"zero ceiling", func(c *Config) { c.Retention.ResetCeiling = 0 }, "reset_ceiling"},
		{"zero interval", func(c *Config) { c.Retention.RotateInterval = 0 }, "intervals"},
		{"inverted health", func(c *Config) { c.Health.ErrorRate.Warn = 50 }, "error_rate"},
		{"unknown exporter", func(c *Config) { c.Observe.MetricsExporter = "jaeger" }, "metrics exporter"},
		{"missing service", func(c *Config) { c.Observe.ServiceName = "" }, "service name"},
		{"bad sample pct", func(c *Config) {
			c.Observe.TracingExporter = "stdout"
			c.Observe.SamplePct = 2
		}, "sample percentage"},
		{"short jwt secret", func(c *Config) { c.Auth.JWTSecret = "short" }, "jwt_secret"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			tt.mutate(&cfg)
			err := cfg.Validate()
			if !errors.Is(err, ErrInvalidConfig) {
				t.Fatalf("Validate() = %v, want ErrInvalidConfig", err)
			}
			if !strings.Contains(err.Error(), tt.want) {
				t.Errorf("Validate() = %v, want mention of %q", err, tt.want)
			}
		})
	}

	if err := Default().Validate(); err != nil {
		t.Errorf("Default().Validate() = %v", err)
	}
}

func TestConfig_LogDirMustBeDirectory(t *testing.T) {
	file := filepath.Join(t.TempDir(), "file")
	if err := os.WriteFile(file, nil, 0o644); err != nil {
		t.Fatal(err)
	}
	cfg := Default()
	cfg.Log.Dir = file
	if err := cfg.Validate(); err == nil || !strings.Contains(err.Error(), "not a directory") {
		t.Errorf("Validate() = %v", err)
	}
}

func TestConfig_ObserveConfig(t *testing.T) {
	cfg := Default()
	oc := cfg.ObserveConfig()
	if oc.Metrics.Enabled || oc.Tracing.Enabled {
		t.Errorf("\"none\" exporters should disable signals: %+v", oc)
	}

	cfg.Observe.MetricsExporter = "prometheus"
	cfg.Observe.TracingExporter = "stdout"
	oc = cfg.ObserveConfig()
	if !oc.Metrics.Enabled || oc.Metrics.Exporter != "prometheus" || !oc.Tracing.Enabled {
		t.Errorf("ObserveConfig() = %+v", oc)
	}
	if oc.ServiceName != "telemetrykit" || oc.Logging.Level != "info" {
		t.Errorf("ObserveConfig() = %+v", oc)
	}
}
