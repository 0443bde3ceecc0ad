package settings

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// Settings is the server runtime configuration. Missing or zero values
// fall back to defaults, so a partial file is fine.
type Settings struct {
	Addr       string  `yaml:"addr"`
	GridMeters float64 `yaml:"grid_meters"`

	SnapshotPath string `yaml:"snapshot_path"`
	JournalDir   string `yaml:"journal_dir"`
	IndexPath    string `yaml:"index_path"`

	OutBuffer          int   `yaml:"out_buffer"`
	ReadLimitBytes     int64 `yaml:"read_limit_bytes"`
	IdleTimeoutSeconds int   `yaml:"idle_timeout_seconds"`
	StrictInbound      bool  `yaml:"strict_inbound"`
}

// Defaults returns the settings used when no file is present.
func Defaults() Settings {
	var s Settings
	s.applyDefaults()
	return s
}

func Load(path string) (Settings, error) {
	var s Settings
	raw, err := os.ReadFile(path)
	if err != nil {
		return s, err
	}
	if err := yaml.Unmarshal(raw, &s); err != nil {
		return s, fmt.Errorf("settings.yaml: %w", err)
	}
	s.applyDefaults()
	return s, nil
}

func (s *Settings) applyDefaults() {
	if s.Addr == "" {
		s.Addr = ":8090"
	}
	if s.GridMeters <= 0 {
		s.GridMeters = 25
	}
	if s.SnapshotPath == "" {
		s.SnapshotPath = "data/board.json"
	}
	if s.OutBuffer <= 0 {
		s.OutBuffer = 256
	}
	if s.ReadLimitBytes <= 0 {
		s.ReadLimitBytes = 1 << 20
	}
	if s.IdleTimeoutSeconds <= 0 {
		s.IdleTimeoutSeconds = 300
	}
}

func (s Settings) IdleTimeout() time.Duration {
	return time.Duration(s.IdleTimeoutSeconds) * time.Second
}
