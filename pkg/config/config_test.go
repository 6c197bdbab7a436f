package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"spindlefit/pkg/threshold"
)

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()
	if err := cfg.Validate(); err != nil {
		t.Fatalf("Default config is invalid: %v", err)
	}

	tp, err := cfg.ThresholdParams()
	if err != nil {
		t.Fatalf("ThresholdParams failed: %v", err)
	}
	if tp != threshold.DefaultParams() {
		t.Errorf("Expected default threshold params, got %+v", tp)
	}

	fp, _ := cfg.FitParams()
	if fp.MinQuality != 0.6 || !fp.SelectRegion {
		t.Errorf("Unexpected default fit params %+v", fp)
	}
}

func TestLoadMissingFileReturnsDefaults(t *testing.T) {
	cfg, err := LoadConfig(filepath.Join(t.TempDir(), "missing.yaml"))
	if err != nil {
		t.Fatalf("LoadConfig failed: %v", err)
	}
	if cfg.Threshold.Cutoff != DefaultConfig().Threshold.Cutoff {
		t.Errorf("Expected default cutoff, got %g", cfg.Threshold.Cutoff)
	}
}

func TestLoadConfig(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	data := `
processing:
  numCores: 2
threshold:
  method: percentile
  cutoff: 99.5
fitting:
  minQuality: 0.8
manual:
  poles:
    - frame: 3
      poleA: [10, 12]
      poleB: [30, 14.5]
  excluded: [5, 7]
`
	if err := os.WriteFile(path, []byte(data), 0644); err != nil {
		t.Fatalf("Failed to write config: %v", err)
	}

	cfg, err := LoadConfig(path)
	if err != nil {
		t.Fatalf("LoadConfig failed: %v", err)
	}

	tp, _ := cfg.ThresholdParams()
	if tp.Method != threshold.Percentile || tp.Cutoff != 99.5 {
		t.Errorf("Unexpected threshold params %+v", tp)
	}
	// unset keys keep their defaults
	if tp.MinRegionSize != threshold.DefaultParams().MinRegionSize {
		t.Errorf("Expected default minRegionSize, got %d", tp.MinRegionSize)
	}
	if cfg.Processing.NumCores != 2 || cfg.Fitting.MinQuality != 0.8 {
		t.Errorf("Unexpected values %+v", cfg.Processing)
	}

	if len(cfg.Manual.Poles) != 1 {
		t.Fatalf("Expected one manual entry, got %d", len(cfg.Manual.Poles))
	}
	m := cfg.Manual.Poles[0]
	if m.Frame != 3 || m.PoleA != [2]float64{10, 12} || m.PoleB != [2]float64{30, 14.5} {
		t.Errorf("Unexpected manual entry %+v", m)
	}
	if len(cfg.Manual.Excluded) != 2 {
		t.Errorf("Expected two excluded frames, got %v", cfg.Manual.Excluded)
	}
}

func TestLoadInvalidConfig(t *testing.T) {
	tests := []struct {
		name string
		data string
		want string
	}{
		{"bad yaml", "threshold: [", "error parsing"},
		{"bad method", "threshold:\n  method: otsu\n", "threshold"},
		{"bad percentile", "threshold:\n  method: percentile\n  cutoff: 120\n", "cutoff"},
		{"bad quality", "fitting:\n  minQuality: 1.5\n", "fitting"},
		{"bad manual frame", "manual:\n  poles:\n    - frame: -1\n", "manual.poles"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			path := filepath.Join(t.TempDir(), "config.yaml")
			if err := os.WriteFile(path, []byte(tt.data), 0644); err != nil {
				t.Fatalf("Failed to write config: %v", err)
			}
			_, err := LoadConfig(path)
			if err == nil || !strings.Contains(err.Error(), tt.want) {
				t.Errorf("Expected error containing %q, got %v", tt.want, err)
			}
		})
	}
}

func TestSaveAndReload(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "config.yaml")
	if err := CreateDefaultConfigFile(path); err != nil {
		t.Fatalf("CreateDefaultConfigFile failed: %v", err)
	}

	cfg, err := LoadConfig(path)
	if err != nil {
		t.Fatalf("LoadConfig failed: %v", err)
	}
	cfg.Threshold.Cutoff = 1234
	cfg.Manual.Excluded = []int{1}
	if err := SaveConfig(cfg, path); err != nil {
		t.Fatalf("SaveConfig failed: %v", err)
	}

	reloaded, err := LoadConfig(path)
	if err != nil {
		t.Fatalf("LoadConfig failed: %v", err)
	}
	if reloaded.Threshold.Cutoff != 1234 || len(reloaded.Manual.Excluded) != 1 {
		t.Errorf("Saved values were not reloaded: %+v", reloaded.Threshold)
	}
}
