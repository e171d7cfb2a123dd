package config

import "testing"

func TestLoadDefaults(t *testing.T) {
	v := NewViper()
	v.Set("jwt.secret", "test-secret")

	cfg, err := Load(v)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}

	if cfg.Port != "8080" {
		t.Errorf("Expected default port 8080, got %s", cfg.Port)
	}
	if cfg.DatabasePath != "./data/pigeon.db" {
		t.Errorf("Unexpected default database path: %s", cfg.DatabasePath)
	}
	if cfg.LogLevel != "info" {
		t.Errorf("Expected default log level info, got %s", cfg.LogLevel)
	}
	if cfg.CORSOrigins != "*" {
		t.Errorf("Expected default CORS origins *, got %s", cfg.CORSOrigins)
	}
}

func TestLoadRequiresJWTSecret(t *testing.T) {
	v := NewViper()

	if _, err := Load(v); err == nil {
		t.Fatal("Expected error when jwt.secret is missing")
	}
}

func TestLoadEnvOverride(t *testing.T) {
	t.Setenv("PIGEON_PORT", "9090")
	t.Setenv("PIGEON_JWT_SECRET", "env-secret")

	v := NewViper()
	cfg, err := Load(v)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}

	if cfg.Port != "9090" {
		t.Errorf("Expected env override port 9090, got %s", cfg.Port)
	}
	if cfg.JWTSecret != "env-secret" {
		t.Errorf("Expected env override secret, got %s", cfg.JWTSecret)
	}
}
