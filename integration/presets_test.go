package integration_test

import (
	"testing"

	"github.com/concordia-cash/go-concordia/integration"
	"github.com/concordia-cash/go-concordia/rewards/rewardsdb"
)

// TestDefaultPreset_hasReasonableDefaults guards the baseline profile: if
// defaults change, we want to know immediately.
func TestDefaultPreset_hasReasonableDefaults(t *testing.T) {
	cfg := integration.DefaultPreset()

	if cfg.Name != "default" {
		t.Fatalf("Name = %q, want 'default'", cfg.Name)
	}
	if cfg.CacheMB <= 0 || cfg.CacheMB > 10000 {
		t.Fatalf("CacheMB = %d, want value between 1 and 10000", cfg.CacheMB)
	}
	if cfg.Handles < 16 {
		t.Fatalf("Handles = %d, want at least 16", cfg.Handles)
	}
	if cfg.RewardsDB != rewardsdb.LevelDB {
		t.Fatalf("RewardsDB = %s, want leveldb", cfg.RewardsDB)
	}
	if cfg.EnableMetrics {
		t.Fatal("EnableMetrics should be false by default")
	}
}

func TestLitePreset_overridesDefaults(t *testing.T) {
	defaultCfg := integration.DefaultPreset()
	liteCfg := integration.LitePreset()

	if liteCfg.Name != "lite" {
		t.Fatalf("Name = %q, want 'lite'", liteCfg.Name)
	}
	if liteCfg.CacheMB >= defaultCfg.CacheMB {
		t.Fatalf("Lite CacheMB (%d) should be smaller than default (%d)", liteCfg.CacheMB, defaultCfg.CacheMB)
	}
	// The reward table of a lite node is a single bbolt file.
	if liteCfg.RewardsDB != rewardsdb.Bolt {
		t.Fatalf("RewardsDB = %s, want bolt for lite preset", liteCfg.RewardsDB)
	}
	if !liteCfg.EnableMetrics {
		t.Fatal("EnableMetrics should be true for lite preset")
	}
}

func TestFullPreset_overridesDefaults(t *testing.T) {
	defaultCfg := integration.DefaultPreset()
	fullCfg := integration.FullPreset()

	if fullCfg.Name != "full" {
		t.Fatalf("Name = %q, want 'full'", fullCfg.Name)
	}
	if fullCfg.CacheMB <= defaultCfg.CacheMB {
		t.Fatalf("Full CacheMB (%d) should be larger than default (%d)", fullCfg.CacheMB, defaultCfg.CacheMB)
	}
	if fullCfg.Handles <= defaultCfg.Handles {
		t.Fatalf("Full Handles (%d) should be larger than default (%d)", fullCfg.Handles, defaultCfg.Handles)
	}
	if fullCfg.RewardsDB != rewardsdb.LevelDB {
		t.Fatalf("RewardsDB = %s, want leveldb for full preset", fullCfg.RewardsDB)
	}
	if !fullCfg.EnableMetrics {
		t.Fatal("EnableMetrics should be true for full preset")
	}
}

func TestGetPresetByName_validPresets(t *testing.T) {
	tests := []struct {
		name     string
		wantName string
	}{
		{"lite", "lite"},
		{"full", "full"},
		{"default", "default"},
		{"", "default"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg, err := integration.GetPresetByName(tt.name)
			if err != nil {
				t.Fatalf("GetPresetByName(%q) returned error: %v", tt.name, err)
			}
			if cfg.Name != tt.wantName {
				t.Fatalf("Preset name = %q, want %q", cfg.Name, tt.wantName)
			}
			if cfg.CacheMB <= 0 {
				t.Fatalf("Preset %q has invalid CacheMB: %d", tt.name, cfg.CacheMB)
			}
		})
	}
}

func TestGetPresetByName_invalidPreset(t *testing.T) {
	for _, name := range []string{"unknown", "archive", "LITE", "Full"} {
		t.Run(name, func(t *testing.T) {
			cfg, err := integration.GetPresetByName(name)
			if err == nil {
				t.Fatalf("GetPresetByName(%q) should return error, got config: %+v", name, cfg)
			}
		})
	}
}

func TestApplyPreset_overridesTarget(t *testing.T) {
	target := integration.PresetConfig{
		Name:          "custom",
		CacheMB:       100,
		Handles:       32,
		RewardsDB:     rewardsdb.Bolt,
		EnableMetrics: false,
	}

	preset := integration.FullPreset()
	integration.ApplyPreset(&target, preset)

	if target != preset {
		t.Fatalf("ApplyPreset = %+v, want %+v", target, preset)
	}
}

// TestApplyPreset_partialOverride checks that zero sizes and an empty name in
// the preset leave the target alone.
func TestApplyPreset_partialOverride(t *testing.T) {
	target := integration.DefaultPreset()
	originalName := target.Name
	originalHandles := target.Handles

	integration.ApplyPreset(&target, integration.PresetConfig{CacheMB: 2048, RewardsDB: rewardsdb.LevelDB})

	if target.CacheMB != 2048 {
		t.Fatalf("CacheMB should be overridden to 2048, got %d", target.CacheMB)
	}
	if target.Handles != originalHandles {
		t.Fatalf("Handles should remain %d, got %d", originalHandles, target.Handles)
	}
	if target.Name != originalName {
		t.Fatalf("Name should remain %q when preset has empty name, got %q", originalName, target.Name)
	}
}
