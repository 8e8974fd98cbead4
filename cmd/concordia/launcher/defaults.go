package launcher

import (
	"path/filepath"

	"github.com/concordia-cash/go-concordia/integration"
)

const (
	DefaultNodeName    = "go-concordia"
	DefaultNetwork     = "main"
	DefaultMetricsAddr = "127.0.0.1"
	DefaultMetricsPort = 6060
)

// DefaultDataDir is the data directory used when none is configured.
func DefaultDataDir() string {
	return filepath.Join(GuessHomeDir(), ".concordia")
}

// defaultConfig starts from the default preset. Every later source
// (config file, --preset, individual flags) overrides it.
func defaultConfig() Config {
	preset := integration.DefaultPreset()
	return Config{
		Node: NodeConfig{
			DataDir: DefaultDataDir(),
			Name:    DefaultNodeName,
		},
		Chain: ChainConfig{
			Network: DefaultNetwork,
		},
		Store: StoreConfig{
			Preset:    preset.Name,
			CacheMB:   preset.CacheMB,
			Handles:   preset.Handles,
			RewardsDB: preset.RewardsDB.String(),
		},
		Metrics: MetricsConfig{
			Enabled:  preset.EnableMetrics,
			HTTPAddr: DefaultMetricsAddr,
			HTTPPort: DefaultMetricsPort,
		},
		Logging: LoggingConfig{
			Verbosity: 3,
			Format:    "text",
		},
	}
}
