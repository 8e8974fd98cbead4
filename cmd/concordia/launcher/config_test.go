package launcher

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/urfave/cli.v1"

	"github.com/concordia-cash/go-concordia/params"
	"github.com/concordia-cash/go-concordia/rewards/rewardsdb"
)

// runConfigFromArgs runs MakeAllConfigs inside a synthetic CLI context.
func runConfigFromArgs(t *testing.T, args []string) (Config, error) {
	t.Helper()

	app := cli.NewApp()
	app.HideHelp = true
	app.HideVersion = true
	app.Flags = nodeFlags

	var (
		got    Config
		cfgErr error
	)
	app.Action = func(c *cli.Context) error {
		got, cfgErr = MakeAllConfigs(c)
		return nil
	}
	require.NoError(t, app.Run(append([]string{"concordia"}, args...)))
	return got, cfgErr
}

// TestMakeAllConfigs_flagOverrides feeds representative flag combinations
// into a synthetic app and checks the fields of the resulting Config that
// should have changed.
func TestMakeAllConfigs_flagOverrides(t *testing.T) {
	dataDir := t.TempDir()

	tests := []struct {
		name string
		args []string
		want func(t *testing.T, cfg Config)
	}{
		{
			name: "defaults",
			args: nil,
			want: func(t *testing.T, cfg Config) {
				if cfg.Node.DataDir != DefaultDataDir() {
					t.Errorf("DataDir = %q, want %q", cfg.Node.DataDir, DefaultDataDir())
				}
				if cfg.Chain.Network != "main" {
					t.Errorf("Network = %q, want main", cfg.Chain.Network)
				}
				if cfg.Store.Preset != "default" || cfg.Store.RewardsDB != "leveldb" {
					t.Errorf("Store = %+v, want default preset", cfg.Store)
				}
				if cfg.Metrics.Enabled {
					t.Error("metrics enabled by default")
				}
			},
		},
		{
			name: "datadir and identity",
			args: []string{"--datadir", dataDir, "--identity", "ugo-node"},
			want: func(t *testing.T, cfg Config) {
				if cfg.Node.DataDir != dataDir {
					t.Errorf("DataDir = %q, want %q", cfg.Node.DataDir, dataDir)
				}
				if cfg.Node.Name != "ugo-node" {
					t.Errorf("Identity = %q, want ugo-node", cfg.Node.Name)
				}
			},
		},
		{
			name: "relative datadir",
			args: []string{"--datadir", "node-data"},
			want: func(t *testing.T, cfg Config) {
				if want := filepath.Join(GuessWorkDir(), "node-data"); cfg.Node.DataDir != want {
					t.Errorf("DataDir = %q, want %q", cfg.Node.DataDir, want)
				}
			},
		},
		{
			name: "network and upgrade overrides",
			args: []string{"--network", "regtest", "--nuparams", "PoS:300"},
			want: func(t *testing.T, cfg Config) {
				p, err := cfg.Chain.Params()
				require.NoError(t, err)
				assert.Equal(t, params.RegTest, p.Net)
				assert.Equal(t, int32(300), p.Upgrades[params.UpgradePoS].ActivationHeight)
			},
		},
		{
			name: "lite preset then cache flag",
			args: []string{"--preset", "lite", "--cache", "96"},
			want: func(t *testing.T, cfg Config) {
				preset, err := cfg.PresetConfig()
				require.NoError(t, err)
				assert.Equal(t, "lite", preset.Name)
				assert.Equal(t, 96, preset.CacheMB)
				assert.Equal(t, rewardsdb.Bolt, preset.RewardsDB)
				assert.True(t, cfg.Metrics.Enabled)
			},
		},
		{
			name: "metrics and logging",
			args: []string{"--metrics", "--metrics.addr", "0.0.0.0", "--metrics.port", "7070",
				"--log.format", "json", "--log.verbosity", "5", "--log.color"},
			want: func(t *testing.T, cfg Config) {
				assert.Equal(t, MetricsConfig{Enabled: true, HTTPAddr: "0.0.0.0", HTTPPort: 7070}, cfg.Metrics)
				assert.Equal(t, "json", cfg.Logging.Format)
				assert.Equal(t, 5, cfg.Logging.Verbosity)
				assert.True(t, cfg.Logging.Color)
			},
		},
	}

	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			cfg, err := runConfigFromArgs(t, test.args)
			require.NoError(t, err)
			test.want(t, cfg)
		})
	}
}

func TestMakeAllConfigs_invalid(t *testing.T) {
	for _, args := range [][]string{
		{"--network", "moon"},
		{"--preset", "archive"},
		{"--rewards.db", "sqlite"},
	} {
		_, err := runConfigFromArgs(t, args)
		if err == nil {
			t.Errorf("args %v: expected error", args)
		}
	}

	cfg, err := runConfigFromArgs(t, []string{"--network", "main", "--nuparams", "PoS:5"})
	require.NoError(t, err)
	_, err = cfg.Chain.Params()
	assert.Error(t, err, "upgrade overrides are regtest only")
}

func TestConfigFileRoundTrip(t *testing.T) {
	want := defaultConfig()
	want.Node.Name = "from-file"
	want.Chain.Network = "test"
	want.Store.CacheMB = 128
	want.Logging.SentryDSN = "https://key@sentry.example.com/1"

	var buf bytes.Buffer
	require.NoError(t, writeConfig(&buf, &want))
	assert.Contains(t, buf.String(), "[Node]")

	file := filepath.Join(t.TempDir(), "config.toml")
	require.NoError(t, os.WriteFile(file, buf.Bytes(), 0o600))

	cfg, err := runConfigFromArgs(t, []string{"--config", file, "--identity", "from-flag"})
	require.NoError(t, err)
	assert.Equal(t, "from-flag", cfg.Node.Name)
	assert.Equal(t, "test", cfg.Chain.Network)
	assert.Equal(t, 128, cfg.Store.CacheMB)
	assert.Equal(t, want.Logging.SentryDSN, cfg.Logging.SentryDSN)
}

func TestConfigFileUnknownField(t *testing.T) {
	file := filepath.Join(t.TempDir(), "config.toml")
	require.NoError(t, os.WriteFile(file, []byte("[Node]\nBogus = 1\n"), 0o600))

	_, err := runConfigFromArgs(t, []string{"--config", file})
	require.Error(t, err)
	assert.True(t, strings.Contains(err.Error(), "Bogus"), err.Error())
}
