package config

import (
	"testing"
	"time"
)

func validBase() Config {
	return Config{
		App:   AppConfig{Env: "local", Port: 8080},
		DB:    DBConfig{Host: "localhost", Port: 5432, User: "postgres", Password: "x", Name: "voicebot"},
		Redis: RedisConfig{Host: "localhost", Port: 6379},
		Auth:  AuthConfig{JWTSecret: "secret"},
		LLM:   LLMConfig{APIKey: "k", Model: "gpt-4o-mini"},
		Restaurant: RestaurantConfig{
			Timezone: "Europe/Bratislava",
		},
	}
}

func TestLoad_ReportsMissingRequired(t *testing.T) {
	c := Config{}
	if err := c.Validate(); err == nil {
		t.Fatalf("expected validation error")
	}
}

func TestValidate_ProductionRequiresSSLMode(t *testing.T) {
	c := validBase()
	c.App.Env = "production"
	c.Auth.JWTIssuer = "voicebot"
	c.Auth.JWTAudience = "staff"
	if err := c.Validate(); err == nil {
		t.Fatalf("expected error for production without DB_SSLMODE")
	}
}

func TestValidate_LocalDefaults(t *testing.T) {
	c := validBase()
	if err := c.Validate(); err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	if c.DB.SSLMode != "disable" {
		t.Fatalf("expected sslmode disable default, got %q", c.DB.SSLMode)
	}
	if c.Engine.MaxConsecutiveErrors != 3 {
		t.Fatalf("expected error threshold default 3, got %d", c.Engine.MaxConsecutiveErrors)
	}
	if c.Engine.LockLease != 30*time.Second {
		t.Fatalf("expected lock lease default 30s, got %v", c.Engine.LockLease)
	}
	if c.Restaurant.SlotGranularityMinutes != 30 {
		t.Fatalf("expected slot granularity default 30, got %d", c.Restaurant.SlotGranularityMinutes)
	}
}

func TestValidate_RejectsBadTimezone(t *testing.T) {
	c := validBase()
	c.Restaurant.Timezone = "Mars/Olympus"
	if err := c.Validate(); err == nil {
		t.Fatalf("expected error for invalid timezone")
	}
}

func TestValidate_LeaseMustCoverTurnLatency(t *testing.T) {
	c := validBase()
	c.Engine.LockLease = 2 * time.Second
	c.Engine.GenerationTimeout = 10 * time.Second
	c.Engine.ToolTimeout = 5 * time.Second
	if err := c.Validate(); err == nil {
		t.Fatalf("expected error when lease does not cover generation + tool timeouts")
	}
}
