package config

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"
)

func TestGetEnv(t *testing.T) {
	tests := []struct {
		name       string
		key        string
		defaultVal string
		envValue   string
		want       string
	}{
		{
			name:       "Environment variable exists",
			key:        "CRASH_TEST_KEY_EXISTS",
			defaultVal: "default",
			envValue:   "custom_value",
			want:       "custom_value",
		},
		{
			name:       "Environment variable does not exist",
			key:        "CRASH_TEST_KEY_NOT_EXISTS",
			defaultVal: "default_value",
			want:       "default_value",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if tt.envValue != "" {
				t.Setenv(tt.key, tt.envValue)
			}

			if got := getEnv(tt.key, tt.defaultVal); got != tt.want {
				t.Errorf("getEnv() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestGetEnvAsDuration(t *testing.T) {
	tests := []struct {
		name     string
		envValue string
		want     time.Duration
	}{
		{name: "valid duration", envValue: "250ms", want: 250 * time.Millisecond},
		{name: "invalid duration", envValue: "soon", want: time.Second},
		{name: "negative duration", envValue: "-1s", want: time.Second},
		{name: "empty value", envValue: "", want: time.Second},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Setenv("CRASH_TEST_DURATION", tt.envValue)
			if got := getEnvAsDuration("CRASH_TEST_DURATION", time.Second); got != tt.want {
				t.Errorf("getEnvAsDuration() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestGetEnvAsDecimal(t *testing.T) {
	t.Setenv("CRASH_TEST_DECIMAL", "12.50")
	got := getEnvAsDecimal("CRASH_TEST_DECIMAL", decimal.Zero)
	if !got.Equal(decimal.RequireFromString("12.5")) {
		t.Errorf("getEnvAsDecimal() = %v, want 12.5", got)
	}

	t.Setenv("CRASH_TEST_DECIMAL", "twelve")
	got = getEnvAsDecimal("CRASH_TEST_DECIMAL", decimal.NewFromInt(3))
	if !got.Equal(decimal.NewFromInt(3)) {
		t.Errorf("getEnvAsDecimal() = %v, want fallback 3", got)
	}
}

func TestLoad(t *testing.T) {
	t.Setenv("TICK_INTERVAL", "20ms")
	t.Setenv("CRASH_STRATEGY", "Tiered")
	t.Setenv("HISTORY_CAPACITY", "10")
	t.Setenv("DATABASE_ENABLED", "true")

	cfg := Load()

	if cfg.Game.TickInterval != 20*time.Millisecond {
		t.Errorf("TickInterval = %v, want 20ms", cfg.Game.TickInterval)
	}
	if cfg.Game.CrashStrategy != "tiered" {
		t.Errorf("CrashStrategy = %q, want tiered", cfg.Game.CrashStrategy)
	}
	if cfg.Game.HistoryCapacity != 10 {
		t.Errorf("HistoryCapacity = %d, want 10", cfg.Game.HistoryCapacity)
	}
	if !cfg.Database.Enabled {
		t.Error("Database.Enabled should be true")
	}
	if cfg.Port == "" {
		t.Error("Port should have a default")
	}
}

func TestDatabaseConfig_DSN(t *testing.T) {
	d := DatabaseConfig{
		Host:     "db",
		Port:     "5432",
		Database: "crashdb",
		Username: "user",
		Password: "pw",
		Schema:   "public",
	}
	want := "postgres://user:pw@db:5432/crashdb?sslmode=disable&search_path=public"
	if got := d.DSN(); got != want {
		t.Errorf("DSN() = %q, want %q", got, want)
	}
}
