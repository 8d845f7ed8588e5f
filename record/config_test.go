package record

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestConfig_ApplyDefaults(t *testing.T) {
	cfg := Config{}
	cfg.applyDefaults()

	if cfg.ViewportWidth != 1280 || cfg.ViewportHeight != 800 {
		t.Errorf("viewport = %dx%d, want 1280x800", cfg.ViewportWidth, cfg.ViewportHeight)
	}
	if cfg.FPS != 24 {
		t.Errorf("FPS = %d, want 24", cfg.FPS)
	}
	if cfg.BitrateKbps != 3500 {
		t.Errorf("BitrateKbps = %d, want 3500", cfg.BitrateKbps)
	}
	if cfg.MotionTick != 16*time.Millisecond {
		t.Errorf("MotionTick = %v, want 16ms", cfg.MotionTick)
	}
	if cfg.ActionTimeout != 30*time.Second {
		t.Errorf("ActionTimeout = %v, want 30s", cfg.ActionTimeout)
	}
	if cfg.RegionTargetCap != 5 {
		t.Errorf("RegionTargetCap = %d, want 5", cfg.RegionTargetCap)
	}
	if cfg.FFmpegPath != "ffmpeg" {
		t.Errorf("FFmpegPath = %q, want ffmpeg", cfg.FFmpegPath)
	}
}

func TestConfig_ApplyDefaults_KeepsExplicit(t *testing.T) {
	cfg := Config{ViewportWidth: 1920, ViewportHeight: 1080, FPS: 30}
	cfg.applyDefaults()
	if cfg.ViewportWidth != 1920 || cfg.ViewportHeight != 1080 || cfg.FPS != 30 {
		t.Errorf("explicit values overwritten: %dx%d @%d", cfg.ViewportWidth, cfg.ViewportHeight, cfg.FPS)
	}
}

func TestLoadConfig(t *testing.T) {
	path := filepath.Join(t.TempDir(), "record.yaml")
	data := []byte("resources_root: /srv/vitrine/resources\nviewport_width: 1440\nfps: 30\nheadful: true\n")
	if err := os.WriteFile(path, data, 0o644); err != nil {
		t.Fatal(err)
	}

	cfg, err := LoadConfig(path)
	if err != nil {
		t.Fatalf("LoadConfig: %v", err)
	}
	if cfg.ResourcesRoot != "/srv/vitrine/resources" {
		t.Errorf("ResourcesRoot = %q", cfg.ResourcesRoot)
	}
	if cfg.ViewportWidth != 1440 {
		t.Errorf("ViewportWidth = %d, want 1440", cfg.ViewportWidth)
	}
	if cfg.FPS != 30 {
		t.Errorf("FPS = %d, want 30", cfg.FPS)
	}
	if !cfg.Headful {
		t.Error("Headful = false, want true")
	}
	// Unset fields still get defaults.
	if cfg.ViewportHeight != 800 {
		t.Errorf("ViewportHeight = %d, want 800", cfg.ViewportHeight)
	}
	if cfg.BitrateKbps != 3500 {
		t.Errorf("BitrateKbps = %d, want 3500", cfg.BitrateKbps)
	}
}

func TestLoadConfig_Missing(t *testing.T) {
	if _, err := LoadConfig(filepath.Join(t.TempDir(), "nope.yaml")); err == nil {
		t.Fatal("expected error for missing config file")
	}
}

func TestLoadConfig_Invalid(t *testing.T) {
	path := filepath.Join(t.TempDir(), "bad.yaml")
	if err := os.WriteFile(path, []byte("viewport_width: [not a number"), 0o644); err != nil {
		t.Fatal(err)
	}
	if _, err := LoadConfig(path); err == nil {
		t.Fatal("expected error for invalid YAML")
	}
}
