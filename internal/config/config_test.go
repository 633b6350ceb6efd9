package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestLoadMissingFileUsesDefaults(t *testing.T) {
	t.Setenv("GEMINI_API_KEY", "")
	_ = os.Unsetenv("GEMINI_API_KEY")

	cfg, err := Load(filepath.Join(t.TempDir(), "missing.yaml"))
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Model != "gemini-live-2.5-flash" {
		t.Errorf("model = %q", cfg.Model)
	}
	if cfg.Voice != "Puck" {
		t.Errorf("voice = %q", cfg.Voice)
	}
	if err := cfg.Validate(); err == nil {
		t.Error("expected validation failure without an api key")
	}
}

func TestLoadFileAndEnvOverride(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	content := `
api_key: file-key
model: gemini-live-2.5-flash
voice: Aoede
video:
  cadence_ms: 1500
  reactive: true
threat:
  keywords: [bear]
  dwell_ms: 2000
`
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatalf("write config: %v", err)
	}
	t.Setenv("GEMINI_API_KEY", "env-key")

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.APIKey != "env-key" {
		t.Errorf("api key = %q, want env override", cfg.APIKey)
	}
	if cfg.Voice != "Aoede" {
		t.Errorf("voice = %q", cfg.Voice)
	}
	if err := cfg.Validate(); err != nil {
		t.Errorf("Validate: %v", err)
	}

	engine := cfg.EngineConfig()
	if engine.Video.Cadence != 1500*time.Millisecond {
		t.Errorf("cadence = %v", engine.Video.Cadence)
	}
	if !engine.Video.Reactive {
		t.Error("reactive not carried over")
	}
	if len(engine.Threat.Keywords) != 1 || engine.Threat.Keywords[0] != "bear" {
		t.Errorf("keywords = %v", engine.Threat.Keywords)
	}
	if engine.Threat.Dwell != 2*time.Second {
		t.Errorf("dwell = %v", engine.Threat.Dwell)
	}
}

func TestLoadMalformedFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte("model: [unterminated"), 0o600); err != nil {
		t.Fatalf("write config: %v", err)
	}
	if _, err := Load(path); err == nil {
		t.Fatal("expected parse error")
	}
}

func TestEngineConfigDefaultsWhenUnset(t *testing.T) {
	t.Setenv("GEMINI_API_KEY", "k")

	cfg, err := Load(filepath.Join(t.TempDir(), "missing.yaml"))
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	engine := cfg.EngineConfig()
	if engine.Video.Cadence != time.Second {
		t.Errorf("cadence = %v, want 1s default", engine.Video.Cadence)
	}
	if engine.Threat.Dwell != 5*time.Second {
		t.Errorf("dwell = %v, want 5s default", engine.Threat.Dwell)
	}
}
