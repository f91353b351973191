package config

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"
)

func TestLoad_Defaults(t *testing.T) {
	cfg := Load()

	if cfg.ChainID != MONAD_TESTNET_CHAIN_ID {
		t.Errorf("ChainID = %v, want %v", cfg.ChainID, MONAD_TESTNET_CHAIN_ID)
	}
	if cfg.MaxRounds != 15 {
		t.Errorf("MaxRounds = %v, want 15", cfg.MaxRounds)
	}
	if cfg.RecoveryAttempts != 3 || cfg.RecoveryBackoff != 2*time.Second {
		t.Errorf("recovery policy = %d x %v, want 3 x 2s", cfg.RecoveryAttempts, cfg.RecoveryBackoff)
	}
	if !cfg.BaseRate.Equal(decimal.RequireFromString("1.2")) {
		t.Errorf("BaseRate = %v, want 1.2", cfg.BaseRate)
	}
	if !cfg.MaxMultiplier.Equal(decimal.NewFromInt(4)) {
		t.Errorf("MaxMultiplier = %v, want 4", cfg.MaxMultiplier)
	}
}

func TestGetEnvAsInt(t *testing.T) {
	tests := []struct {
		name       string
		key        string
		defaultVal int
		envValue   string
		want       int
	}{
		{name: "Valid integer", key: "TEST_INT_VALID", defaultVal: 0, envValue: "42", want: 42},
		{name: "Invalid integer", key: "TEST_INT_INVALID", defaultVal: 10, envValue: "not_a_number", want: 10},
		{name: "Empty value", key: "TEST_INT_EMPTY", defaultVal: 5, envValue: "", want: 5},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if tt.envValue != "" {
				t.Setenv(tt.key, tt.envValue)
			}
			if got := getEnvAsInt(tt.key, tt.defaultVal); got != tt.want {
				t.Errorf("getEnvAsInt() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestGetEnvAsDuration(t *testing.T) {
	t.Setenv("TEST_DURATION", "250ms")
	if got := getEnvAsDuration("TEST_DURATION", time.Second); got != 250*time.Millisecond {
		t.Errorf("getEnvAsDuration() = %v, want 250ms", got)
	}

	t.Setenv("TEST_DURATION_BAD", "soon")
	if got := getEnvAsDuration("TEST_DURATION_BAD", time.Second); got != time.Second {
		t.Errorf("getEnvAsDuration() = %v, want fallback 1s", got)
	}
}

func TestGetEnvAsDecimal(t *testing.T) {
	t.Setenv("TEST_DECIMAL", "1.35")
	got := getEnvAsDecimal("TEST_DECIMAL", decimal.Zero)
	if !got.Equal(decimal.RequireFromString("1.35")) {
		t.Errorf("getEnvAsDecimal() = %v, want 1.35", got)
	}
}

func TestGetEnvAsBool(t *testing.T) {
	t.Setenv("TEST_BOOL", "false")
	if got := getEnvAsBool("TEST_BOOL", true); got {
		t.Errorf("getEnvAsBool() = %v, want false", got)
	}

	t.Setenv("TEST_BOOL_BAD", "maybe")
	if got := getEnvAsBool("TEST_BOOL_BAD", true); !got {
		t.Errorf("getEnvAsBool() = %v, want fallback true", got)
	}
}
