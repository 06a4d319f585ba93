package config

import (
	"errors"
	"fmt"
	"math"
	"time"
)

// ErrInvalid marks a configuration the engine refuses to start with.
var ErrInvalid = errors.New("invalid configuration")

// Config holds all horizon configuration.
type Config struct {
	Server   ServerConfig   `toml:"server" mapstructure:"server"`
	Database DatabaseConfig `toml:"database" mapstructure:"database"`
	Engine   EngineConfig   `toml:"engine" mapstructure:"engine"`
	Alerts   AlertsConfig   `toml:"alerts" mapstructure:"alerts"`
}

type ServerConfig struct {
	Bind        string  `toml:"bind" mapstructure:"bind"`
	Port        int     `toml:"port" mapstructure:"port"`
	IngestRate  float64 `toml:"ingest_rate" mapstructure:"ingest_rate"`   // events/sec, 0 = unlimited
	IngestBurst int     `toml:"ingest_burst" mapstructure:"ingest_burst"`
}

type DatabaseConfig struct {
	Path           string `toml:"path" mapstructure:"path"`
	RetentionHours int    `toml:"retention_hours" mapstructure:"retention_hours"` // consumed events kept, 0 = forever
}

// EngineConfig holds the recognized options of the horizon scanner.
type EngineConfig struct {
	WindowSize                int               `toml:"window_size" mapstructure:"window_size"`
	MinPatternLength          int               `toml:"min_pattern_length" mapstructure:"min_pattern_length"`
	ScanIntervalSeconds       float64           `toml:"scan_interval_seconds" mapstructure:"scan_interval_seconds"`
	DecayRate                 float64           `toml:"decay_rate" mapstructure:"decay_rate"`
	PatternEmergenceThreshold float64           `toml:"pattern_emergence_threshold" mapstructure:"pattern_emergence_threshold"`
	QuietDensityThreshold     float64           `toml:"quiet_density_threshold" mapstructure:"quiet_density_threshold"`
	AnomalyScoreThreshold     float64           `toml:"anomaly_score_threshold" mapstructure:"anomaly_score_threshold"`
	QuietKeywords             []string          `toml:"quiet_keyword_set" mapstructure:"quiet_keyword_set"`
	SourceAllowList           []string          `toml:"source_allow_list" mapstructure:"source_allow_list"`
	StillMarker               string            `toml:"still_marker" mapstructure:"still_marker"`
	HistoryLimit              int               `toml:"history_limit" mapstructure:"history_limit"`
	KeywordTags               map[string]string `toml:"keyword_tags" mapstructure:"keyword_tags"`
	TagAllowList              []string          `toml:"tag_allow_list" mapstructure:"tag_allow_list"`
}

type AlertsConfig struct {
	Log       bool `toml:"log" mapstructure:"log"`
	WebSocket bool `toml:"websocket" mapstructure:"websocket"`
}

// Default returns a Config with sensible defaults.
func Default() Config {
	return Config{
		Server: ServerConfig{
			Bind:        "127.0.0.1",
			Port:        37778,
			IngestRate:  200,
			IngestBurst: 400,
		},
		Database: DatabaseConfig{
			Path:           "", // resolved at runtime via store.DefaultDBPath()
			RetentionHours: 168,
		},
		Engine: DefaultEngine(),
		Alerts: AlertsConfig{
			Log:       true,
			WebSocket: true,
		},
	}
}

// DefaultEngine returns the engine defaults.
func DefaultEngine() EngineConfig {
	return EngineConfig{
		WindowSize:                100,
		MinPatternLength:          3,
		ScanIntervalSeconds:       30,
		DecayRate:                 0.95,
		PatternEmergenceThreshold: 0.6,
		QuietDensityThreshold:     0.3,
		AnomalyScoreThreshold:     0.7,
		StillMarker:               "still",
		HistoryLimit:              50,
	}
}

// ListenAddr returns the bind:port address string.
func (c *Config) ListenAddr() string {
	return fmt.Sprintf("%s:%d", c.Server.Bind, c.Server.Port)
}

// Validate checks every section that has constraints.
func (c *Config) Validate() error {
	if c.Server.Port < 0 || c.Server.Port > 65535 {
		return fmt.Errorf("%w: server.port out of range: %d", ErrInvalid, c.Server.Port)
	}
	if c.Database.RetentionHours < 0 {
		return fmt.Errorf("%w: database.retention_hours must be >= 0, got %d", ErrInvalid, c.Database.RetentionHours)
	}
	if c.Server.IngestRate < 0 {
		return fmt.Errorf("%w: server.ingest_rate must be >= 0, got %v", ErrInvalid, c.Server.IngestRate)
	}
	return c.Engine.Validate()
}

// Retention returns how long consumed events are kept. Zero keeps them forever.
func (c *Config) Retention() time.Duration {
	return time.Duration(c.Database.RetentionHours) * time.Hour
}

// ScanInterval returns the minimum spacing between two completed scans.
func (e EngineConfig) ScanInterval() time.Duration {
	return time.Duration(e.ScanIntervalSeconds * float64(time.Second))
}

// Validate rejects values the engine cannot run with. Nothing is clamped.
func (e EngineConfig) Validate() error {
	if e.WindowSize <= 0 {
		return fmt.Errorf("%w: engine.window_size must be > 0, got %d", ErrInvalid, e.WindowSize)
	}
	if e.MinPatternLength < 1 || e.MinPatternLength > e.WindowSize {
		return fmt.Errorf("%w: engine.min_pattern_length must be in [1, window_size=%d], got %d",
			ErrInvalid, e.WindowSize, e.MinPatternLength)
	}
	if math.IsNaN(e.ScanIntervalSeconds) || e.ScanIntervalSeconds < 0 {
		return fmt.Errorf("%w: engine.scan_interval_seconds must be >= 0, got %v", ErrInvalid, e.ScanIntervalSeconds)
	}
	if !(e.DecayRate > 0 && e.DecayRate < 1) {
		return fmt.Errorf("%w: engine.decay_rate must be in (0,1), got %v", ErrInvalid, e.DecayRate)
	}
	if !unit(e.PatternEmergenceThreshold) {
		return fmt.Errorf("%w: engine.pattern_emergence_threshold must be in [0,1], got %v", ErrInvalid, e.PatternEmergenceThreshold)
	}
	if math.IsNaN(e.QuietDensityThreshold) || e.QuietDensityThreshold < 0 {
		return fmt.Errorf("%w: engine.quiet_density_threshold must be >= 0, got %v", ErrInvalid, e.QuietDensityThreshold)
	}
	if !unit(e.AnomalyScoreThreshold) {
		return fmt.Errorf("%w: engine.anomaly_score_threshold must be in [0,1], got %v", ErrInvalid, e.AnomalyScoreThreshold)
	}
	if e.HistoryLimit < 1 {
		return fmt.Errorf("%w: engine.history_limit must be >= 1, got %d", ErrInvalid, e.HistoryLimit)
	}
	for kw, tag := range e.KeywordTags {
		if kw == "" || tag == "" {
			return fmt.Errorf("%w: engine.keyword_tags has an empty entry (%q -> %q)", ErrInvalid, kw, tag)
		}
	}

	if len(e.TagAllowList) > 0 {
		allowed := make(map[string]bool, len(e.TagAllowList))
		for _, t := range e.TagAllowList {
			allowed[t] = true
		}
		for _, t := range e.QuietKeywords {
			if !allowed[t] {
				return fmt.Errorf("%w: engine.quiet_keyword_set entry %q is not in tag_allow_list", ErrInvalid, t)
			}
		}
		for kw, t := range e.KeywordTags {
			if !allowed[t] {
				return fmt.Errorf("%w: engine.keyword_tags[%q] = %q is not in tag_allow_list", ErrInvalid, kw, t)
			}
		}
	}
	return nil
}

func unit(v float64) bool {
	return !math.IsNaN(v) && v >= 0 && v <= 1
}
