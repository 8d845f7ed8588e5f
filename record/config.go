package record

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// Config tunes the recorder. Zero values fall back to defaults that produce
// a natural-looking ~1 minute tour of a generated marketing site.
type Config struct {
	// ResourcesRoot holds one subdirectory per business.
	ResourcesRoot string `yaml:"resources_root"`

	// Viewport and encoding.
	ViewportWidth  int `yaml:"viewport_width"`  // default 1280
	ViewportHeight int `yaml:"viewport_height"` // default 800
	FPS            int `yaml:"fps"`             // default 24
	BitrateKbps    int `yaml:"bitrate_kbps"`    // default 3500

	// Motion timing.
	MotionTick      time.Duration `yaml:"motion_tick"`       // default 16ms
	MoveDurationMin time.Duration `yaml:"move_duration_min"` // default 280ms
	MoveDurationMax time.Duration `yaml:"move_duration_max"` // default 1200ms
	ScrollDuration  time.Duration `yaml:"scroll_duration"`   // default 900ms
	SettlePause     time.Duration `yaml:"settle_pause"`      // default 650ms
	HoverPause      time.Duration `yaml:"hover_pause"`       // default 350ms
	ActionTimeout   time.Duration `yaml:"action_timeout"`    // default 30s

	// Planner thresholds.
	MinTargetSize   float64 `yaml:"min_target_size"`   // default 12
	RowThreshold    float64 `yaml:"row_threshold"`     // default 40
	RegionTargetCap int     `yaml:"region_target_cap"` // default 5
	HeaderOffset    float64 `yaml:"header_offset"`     // default 80

	// Browser.
	Headful bool   `yaml:"headful"`
	Display string `yaml:"display"` // Xvfb display to manage, e.g. ":99"

	// Capture.
	FFmpegPath string `yaml:"ffmpeg_path"` // default "ffmpeg"

	// PageURL, when set, is a base URL (the preview server) used instead of
	// file:// navigation; the folder name is appended as /sites/<folder>/.
	PageURL string `yaml:"page_url"`

	// Batch reporting.
	LedgerPath string `yaml:"ledger_path"`
	WebhookURL string `yaml:"webhook_url"`
}

func (c *Config) applyDefaults() {
	if c.ViewportWidth <= 0 {
		c.ViewportWidth = 1280
	}
	if c.ViewportHeight <= 0 {
		c.ViewportHeight = 800
	}
	if c.FPS <= 0 {
		c.FPS = 24
	}
	if c.BitrateKbps <= 0 {
		c.BitrateKbps = 3500
	}
	if c.MotionTick <= 0 {
		c.MotionTick = 16 * time.Millisecond
	}
	if c.MoveDurationMin <= 0 {
		c.MoveDurationMin = 280 * time.Millisecond
	}
	if c.MoveDurationMax <= 0 {
		c.MoveDurationMax = 1200 * time.Millisecond
	}
	if c.ScrollDuration <= 0 {
		c.ScrollDuration = 900 * time.Millisecond
	}
	if c.SettlePause <= 0 {
		c.SettlePause = 650 * time.Millisecond
	}
	if c.HoverPause <= 0 {
		c.HoverPause = 350 * time.Millisecond
	}
	if c.ActionTimeout <= 0 {
		c.ActionTimeout = 30 * time.Second
	}
	if c.MinTargetSize <= 0 {
		c.MinTargetSize = 12
	}
	if c.RowThreshold <= 0 {
		c.RowThreshold = 40
	}
	if c.RegionTargetCap <= 0 {
		c.RegionTargetCap = 5
	}
	if c.HeaderOffset <= 0 {
		c.HeaderOffset = 80
	}
	if c.FFmpegPath == "" {
		c.FFmpegPath = "ffmpeg"
	}
}

// LoadConfig reads a YAML config file and applies defaults.
func LoadConfig(path string) (Config, error) {
	var cfg Config
	data, err := os.ReadFile(path)
	if err != nil {
		return cfg, fmt.Errorf("record: read config: %w", err)
	}
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return cfg, fmt.Errorf("record: parse config: %w", err)
	}
	cfg.applyDefaults()
	return cfg, nil
}

// moveDuration scales cursor travel time with distance: roughly 1.5ms per
// pixel, clamped so short hops and cross-screen moves both look deliberate.
func (c *Config) moveDuration(dist float64) time.Duration {
	d := time.Duration(dist*1.5) * time.Millisecond
	if d < c.MoveDurationMin {
		return c.MoveDurationMin
	}
	if d > c.MoveDurationMax {
		return c.MoveDurationMax
	}
	return d
}
