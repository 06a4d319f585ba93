package config

import (
	"fmt"
	"strings"

	"github.com/spf13/viper"
)

// EnvPrefix is prepended to every environment override, e.g. HORIZON_ENGINE_WINDOW_SIZE.
const EnvPrefix = "HORIZON"

// Load reads configuration from path (TOML, YAML or JSON by extension) layered
// over Default() and HORIZON_* environment variables. An empty path skips the
// file. The result is validated before it is returned.
func Load(path string) (Config, error) {
	v := viper.New()
	setDefaults(v, Default())

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return Config{}, fmt.Errorf("read config %s: %w", path, err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, fmt.Errorf("decode config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func setDefaults(v *viper.Viper, d Config) {
	v.SetDefault("server.bind", d.Server.Bind)
	v.SetDefault("server.port", d.Server.Port)
	v.SetDefault("server.ingest_rate", d.Server.IngestRate)
	v.SetDefault("server.ingest_burst", d.Server.IngestBurst)

	v.SetDefault("database.path", d.Database.Path)
	v.SetDefault("database.retention_hours", d.Database.RetentionHours)

	e := d.Engine
	v.SetDefault("engine.window_size", e.WindowSize)
	v.SetDefault("engine.min_pattern_length", e.MinPatternLength)
	v.SetDefault("engine.scan_interval_seconds", e.ScanIntervalSeconds)
	v.SetDefault("engine.decay_rate", e.DecayRate)
	v.SetDefault("engine.pattern_emergence_threshold", e.PatternEmergenceThreshold)
	v.SetDefault("engine.quiet_density_threshold", e.QuietDensityThreshold)
	v.SetDefault("engine.anomaly_score_threshold", e.AnomalyScoreThreshold)
	v.SetDefault("engine.quiet_keyword_set", []string{})
	v.SetDefault("engine.source_allow_list", []string{})
	v.SetDefault("engine.still_marker", e.StillMarker)
	v.SetDefault("engine.history_limit", e.HistoryLimit)
	v.SetDefault("engine.tag_allow_list", []string{})

	v.SetDefault("alerts.log", d.Alerts.Log)
	v.SetDefault("alerts.websocket", d.Alerts.WebSocket)
}
