package config

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestDefaultIsValid(t *testing.T) {
	cfg := Default()
	if err := cfg.Validate(); err != nil {
		t.Fatalf("Default().Validate: %v", err)
	}
	e := cfg.Engine
	if e.WindowSize != 100 || e.MinPatternLength != 3 || e.DecayRate != 0.95 {
		t.Errorf("unexpected engine defaults: %+v", e)
	}
	if e.ScanInterval() != 30*time.Second {
		t.Errorf("ScanInterval = %v, want 30s", e.ScanInterval())
	}
	if e.HistoryLimit != 50 {
		t.Errorf("HistoryLimit = %d, want 50", e.HistoryLimit)
	}
}

func TestEngineValidateRejects(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*EngineConfig)
	}{
		{"decay one", func(e *EngineConfig) { e.DecayRate = 1 }},
		{"decay zero", func(e *EngineConfig) { e.DecayRate = 0 }},
		{"decay above", func(e *EngineConfig) { e.DecayRate = 1.5 }},
		{"window zero", func(e *EngineConfig) { e.WindowSize = 0 }},
		{"min length zero", func(e *EngineConfig) { e.MinPatternLength = 0 }},
		{"min length above window", func(e *EngineConfig) { e.WindowSize = 2; e.MinPatternLength = 3 }},
		{"negative interval", func(e *EngineConfig) { e.ScanIntervalSeconds = -1 }},
		{"emergence above one", func(e *EngineConfig) { e.PatternEmergenceThreshold = 1.2 }},
		{"negative quiet", func(e *EngineConfig) { e.QuietDensityThreshold = -0.1 }},
		{"anomaly above one", func(e *EngineConfig) { e.AnomalyScoreThreshold = 2 }},
		{"history zero", func(e *EngineConfig) { e.HistoryLimit = 0 }},
		{"empty keyword tag", func(e *EngineConfig) { e.KeywordTags = map[string]string{"calm": ""} }},
		{"quiet keyword outside allow list", func(e *EngineConfig) {
			e.TagAllowList = []string{"alpha"}
			e.QuietKeywords = []string{"hush"}
		}},
		{"keyword tag outside allow list", func(e *EngineConfig) {
			e.TagAllowList = []string{"alpha"}
			e.KeywordTags = map[string]string{"storm": "beta"}
		}},
	}

	for _, tt := range tests {
		e := DefaultEngine()
		tt.mutate(&e)
		err := e.Validate()
		if err == nil {
			t.Errorf("%s: expected error, got nil", tt.name)
			continue
		}
		if !errors.Is(err, ErrInvalid) {
			t.Errorf("%s: error %v does not wrap ErrInvalid", tt.name, err)
		}
	}
}

func TestLoadFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "horizon.toml")
	body := `
[server]
port = 4000

[engine]
window_size = 50
decay_rate = 0.9
quiet_keyword_set = ["hush", "still"]
source_allow_list = ["sensor-a"]

[engine.keyword_tags]
storm = "turbulent"
`
	if err := os.WriteFile(path, []byte(body), 0644); err != nil {
		t.Fatalf("write config: %v", err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Server.Port != 4000 {
		t.Errorf("port = %d, want 4000", cfg.Server.Port)
	}
	if cfg.Engine.WindowSize != 50 {
		t.Errorf("window_size = %d, want 50", cfg.Engine.WindowSize)
	}
	if cfg.Engine.DecayRate != 0.9 {
		t.Errorf("decay_rate = %v, want 0.9", cfg.Engine.DecayRate)
	}
	// Unset keys keep their defaults.
	if cfg.Engine.MinPatternLength != 3 {
		t.Errorf("min_pattern_length = %d, want default 3", cfg.Engine.MinPatternLength)
	}
	if len(cfg.Engine.QuietKeywords) != 2 {
		t.Errorf("quiet keywords = %v, want 2 entries", cfg.Engine.QuietKeywords)
	}
	if cfg.Engine.KeywordTags["storm"] != "turbulent" {
		t.Errorf("keyword_tags = %v", cfg.Engine.KeywordTags)
	}
}

func TestLoadRejectsInvalidFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "horizon.toml")
	if err := os.WriteFile(path, []byte("[engine]\ndecay_rate = 1.5\n"), 0644); err != nil {
		t.Fatalf("write config: %v", err)
	}

	_, err := Load(path)
	if !errors.Is(err, ErrInvalid) {
		t.Fatalf("Load error = %v, want ErrInvalid", err)
	}
}

func TestLoadEnvOverride(t *testing.T) {
	t.Setenv("HORIZON_ENGINE_WINDOW_SIZE", "64")

	cfg, err := Load("")
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Engine.WindowSize != 64 {
		t.Errorf("window_size = %d, want 64 from env", cfg.Engine.WindowSize)
	}
}

func TestListenAddr(t *testing.T) {
	cfg := Default()
	if got := cfg.ListenAddr(); got != "127.0.0.1:37778" {
		t.Errorf("ListenAddr = %q", got)
	}
}

func TestRetention(t *testing.T) {
	cfg := Default()
	if got := cfg.Retention(); got != 168*time.Hour {
		t.Errorf("Retention = %v, want 168h", got)
	}

	cfg.Database.RetentionHours = -1
	if err := cfg.Validate(); !errors.Is(err, ErrInvalid) {
		t.Errorf("Validate = %v, want ErrInvalid", err)
	}
}
