package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestLoad_Defaults(t *testing.T) {
	t.Setenv("PORT", "")
	t.Chdir(t.TempDir())

	v, err := New("")
	if err != nil {
		t.Fatalf("New() failed: %v", err)
	}
	cfg, err := Load(v)
	if err != nil {
		t.Fatalf("Load() failed: %v", err)
	}

	if cfg.Port != 3001 {
		t.Errorf("Port = %d, want 3001", cfg.Port)
	}
	if cfg.RateLimit.APIPerWindow != 100 || cfg.RateLimit.AIPerWindow != 20 {
		t.Errorf("rate limits = %d/%d, want 100/20", cfg.RateLimit.APIPerWindow, cfg.RateLimit.AIPerWindow)
	}
	if cfg.RateLimit.Window != 15*time.Minute {
		t.Errorf("Window = %v, want 15m", cfg.RateLimit.Window)
	}
	if cfg.Client.Timeout != 30*time.Second {
		t.Errorf("Client.Timeout = %v, want 30s", cfg.Client.Timeout)
	}
	if len(cfg.CORS.Origins) != 2 || cfg.CORS.Origins[0] != "http://localhost:3000" {
		t.Errorf("CORS.Origins = %v, want development origins", cfg.CORS.Origins)
	}
}

func TestLoad_EnvironmentOverrides(t *testing.T) {
	t.Chdir(t.TempDir())
	t.Setenv("PORT", "8081")
	t.Setenv("MOUSSADAR_ENVIRONMENT", "production")
	t.Setenv("MOUSSADAR_DATABASE_PATH", "/tmp/x.db")

	v, err := New("")
	if err != nil {
		t.Fatalf("New() failed: %v", err)
	}
	cfg, err := Load(v)
	if err != nil {
		t.Fatalf("Load() failed: %v", err)
	}

	if cfg.Port != 8081 {
		t.Errorf("Port = %d, want 8081", cfg.Port)
	}
	if !cfg.IsProduction() {
		t.Error("IsProduction() = false, want true")
	}
	if cfg.Database.Path != "/tmp/x.db" {
		t.Errorf("Database.Path = %q, want /tmp/x.db", cfg.Database.Path)
	}
	if cfg.CORS.Origins[0] != "https://moussadar.com" {
		t.Errorf("CORS.Origins = %v, want production origins", cfg.CORS.Origins)
	}
}

func TestLoad_ConfigFile(t *testing.T) {
	dir := t.TempDir()
	t.Chdir(dir)
	t.Setenv("PORT", "")

	path := filepath.Join(dir, "custom.yaml")
	content := "port: 9000\nchat:\n  delay: 0s\nratelimit:\n  ai_per_window: 5\n"
	if err := os.WriteFile(path, []byte(content), 0600); err != nil {
		t.Fatalf("failed to write config: %v", err)
	}

	v, err := New(path)
	if err != nil {
		t.Fatalf("New() failed: %v", err)
	}
	cfg, err := Load(v)
	if err != nil {
		t.Fatalf("Load() failed: %v", err)
	}

	if cfg.Port != 9000 {
		t.Errorf("Port = %d, want 9000", cfg.Port)
	}
	if cfg.Chat.Delay != 0 {
		t.Errorf("Chat.Delay = %v, want 0", cfg.Chat.Delay)
	}
	if cfg.RateLimit.AIPerWindow != 5 {
		t.Errorf("AIPerWindow = %d, want 5", cfg.RateLimit.AIPerWindow)
	}
}

func TestNew_MissingExplicitFile(t *testing.T) {
	if _, err := New(filepath.Join(t.TempDir(), "nope.yaml")); err == nil {
		t.Error("New() with missing explicit file should fail")
	}
}

func TestLoadDotEnv(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, ".env")
	if err := os.WriteFile(path, []byte("MOUSSADAR_TEST_DOTENV=loaded\n"), 0600); err != nil {
		t.Fatalf("failed to write .env: %v", err)
	}
	t.Cleanup(func() { os.Unsetenv("MOUSSADAR_TEST_DOTENV") })

	if err := LoadDotEnv(path, filepath.Join(dir, "missing.env")); err != nil {
		t.Fatalf("LoadDotEnv() failed: %v", err)
	}
	if got := os.Getenv("MOUSSADAR_TEST_DOTENV"); got != "loaded" {
		t.Errorf("MOUSSADAR_TEST_DOTENV = %q, want loaded", got)
	}
}

func TestValidate(t *testing.T) {
	cfg := &Config{
		Port:      3001,
		Database:  DatabaseConfig{Path: "x.db"},
		RateLimit: RateLimitConfig{APIPerWindow: 1, AIPerWindow: 1, Window: time.Minute},
	}
	if err := cfg.Validate(); err != nil {
		t.Fatalf("Validate() failed: %v", err)
	}

	cfg.Port = 70000
	if err := cfg.Validate(); err == nil {
		t.Error("Validate() should reject port 70000")
	}
}
