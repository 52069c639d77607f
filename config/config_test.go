package config

import (
	"path/filepath"
	"testing"
)

func TestMaxUploadsPerDay(t *testing.T) {
	cfg := Config{MaxSubmissionsPerDay: 2}
	if got := cfg.MaxUploadsPerDay(); got != 10 {
		t.Fatalf("MaxUploadsPerDay() = %d, want 10", got)
	}
}

func TestCounterFile(t *testing.T) {
	cfg := Config{DataDir: "data"}
	if got := cfg.CounterFile(); got != filepath.Join("data", "rate_limit.json") {
		t.Fatalf("CounterFile() = %q", got)
	}
}

func TestValidate(t *testing.T) {
	valid := Config{
		TokenSecret:          "s",
		MaxSubmissionsPerDay: 2,
		MinSubmitSeconds:     10,
		CleanupIntervalDays:  1,
		CleanupRunHour:       4,
		OrphanFileHours:      24,
	}
	if err := valid.validate(); err != nil {
		t.Fatalf("valid config rejected: %s", err)
	}

	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{"missing token secret", func(c *Config) { c.TokenSecret = "" }},
		{"zero submission limit", func(c *Config) { c.MaxSubmissionsPerDay = 0 }},
		{"negative min submit time", func(c *Config) { c.MinSubmitSeconds = -1 }},
		{"turnstile without secret", func(c *Config) { c.TurnstileEnabled = true }},
		{"zero cleanup interval", func(c *Config) { c.CleanupIntervalDays = 0 }},
		{"run hour out of range", func(c *Config) { c.CleanupRunHour = 24 }},
		{"admin user without password", func(c *Config) { c.AdminUser = "admin" }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := valid
			tt.mutate(&cfg)
			if err := cfg.validate(); err == nil {
				t.Fatal("expected a validation error")
			}
		})
	}
}
