package config

import (
	"os"
	"path/filepath"
	"testing"
)

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()
	if cfg.Estimation.KMin != 20.0 {
		t.Errorf("default kmin = %v, want 20", cfg.Estimation.KMin)
	}
	if cfg.Estimation.AberrMaxN != 0 {
		t.Errorf("default aberrMaxN = %d, want 0", cfg.Estimation.AberrMaxN)
	}
	if cfg.Estimation.XRing0 != -1 || cfg.Estimation.XRing1 != -1 {
		t.Error("exclusion ring should default to disabled")
	}
	if cfg.Estimation.Threads < 1 {
		t.Errorf("default threads = %d, want >= 1", cfg.Estimation.Threads)
	}
	if cfg.Output.Path != "AberrationFit" {
		t.Errorf("default output path = %q", cfg.Output.Path)
	}
}

func TestLoadConfigMissingFileReturnsDefaults(t *testing.T) {
	cfg, err := LoadConfig(filepath.Join(t.TempDir(), "nope.yaml"))
	if err != nil {
		t.Fatal(err)
	}
	if cfg.Estimation.KMin != DefaultConfig().Estimation.KMin {
		t.Error("missing file did not fall back to defaults")
	}
}

func TestSaveLoadRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "sub", "config.yaml")
	cfg := DefaultConfig()
	cfg.Estimation.KMin = 25
	cfg.Estimation.AberrMaxN = 3
	cfg.Output.Diagnostics = true

	if err := SaveConfig(cfg, path); err != nil {
		t.Fatal(err)
	}
	got, err := LoadConfig(path)
	if err != nil {
		t.Fatal(err)
	}
	if got.Estimation.KMin != 25 || got.Estimation.AberrMaxN != 3 || !got.Output.Diagnostics {
		t.Errorf("round trip lost values: %+v", got)
	}
}

func TestLoadConfigPartialOverride(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte("estimation:\n  kmin: 15\n"), 0644); err != nil {
		t.Fatal(err)
	}
	cfg, err := LoadConfig(path)
	if err != nil {
		t.Fatal(err)
	}
	if cfg.Estimation.KMin != 15 {
		t.Errorf("kmin = %v, want 15", cfg.Estimation.KMin)
	}
	// Unmentioned fields keep their defaults.
	if cfg.Output.Path != "AberrationFit" {
		t.Errorf("output path = %q, want default", cfg.Output.Path)
	}
}

func TestLoadConfigRejectsGarbage(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte("{{{"), 0644); err != nil {
		t.Fatal(err)
	}
	if _, err := LoadConfig(path); err == nil {
		t.Error("malformed YAML accepted")
	}
}
