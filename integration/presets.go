// Package integration assembles a node from its parts and provides named
// resource presets for it.
//
// Presets bundle the settings that trade memory and durability against each
// other (database cache, reward store backend, metrics) so operators pick a
// profile instead of tuning every flag:
//
//	preset := integration.LitePreset()    // development, CI
//	preset := integration.FullPreset()    // production nodes
//
// MakeNode (node.go) consumes the preset when it opens the databases.
package integration

import (
	"fmt"

	"github.com/concordia-cash/go-concordia/rewards/rewardsdb"
)

// PresetConfig captures the parameters that vary across profiles. Network
// and data directory are chosen separately.
type PresetConfig struct {
	Name string
	// CacheMB is split between the coins and block index databases.
	CacheMB int
	// Handles is the open file budget of the leveldb databases.
	Handles int
	// RewardsDB selects the durable epoch store backend.
	RewardsDB     rewardsdb.Kind
	EnableMetrics bool
}

func DefaultPreset() PresetConfig {
	return PresetConfig{
		Name:          "default",
		CacheMB:       512,
		Handles:       256,
		RewardsDB:     rewardsdb.LevelDB,
		EnableMetrics: false,
	}
}

// LitePreset keeps memory low for laptops and CI. The reward table lives in
// a single bbolt file.
func LitePreset() PresetConfig {
	cfg := DefaultPreset()
	cfg.Name = "lite"
	cfg.CacheMB = 64
	cfg.Handles = 64
	cfg.RewardsDB = rewardsdb.Bolt
	cfg.EnableMetrics = true
	return cfg
}

// FullPreset gives production nodes large caches and metrics.
func FullPreset() PresetConfig {
	cfg := DefaultPreset()
	cfg.Name = "full"
	cfg.CacheMB = 2048
	cfg.Handles = 1024
	cfg.EnableMetrics = true
	return cfg
}

// GetPresetByName looks up a preset by the name used on the command line.
func GetPresetByName(name string) (PresetConfig, error) {
	switch name {
	case "lite":
		return LitePreset(), nil
	case "full":
		return FullPreset(), nil
	case "default", "":
		return DefaultPreset(), nil
	default:
		return PresetConfig{}, fmt.Errorf("unknown preset: %q (valid: lite, full, default)", name)
	}
}

// ApplyPreset copies the non-zero fields of preset onto target. Booleans are
// always copied.
func ApplyPreset(target *PresetConfig, preset PresetConfig) {
	if preset.CacheMB > 0 {
		target.CacheMB = preset.CacheMB
	}
	if preset.Handles > 0 {
		target.Handles = preset.Handles
	}
	target.RewardsDB = preset.RewardsDB
	target.EnableMetrics = preset.EnableMetrics
	if preset.Name != "" {
		target.Name = preset.Name
	}
}
