package launcher

import (
	"bufio"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"reflect"
	"strings"

	"github.com/naoina/toml"
	"gopkg.in/urfave/cli.v1"

	"github.com/concordia-cash/go-concordia/integration"
	"github.com/concordia-cash/go-concordia/params"
	"github.com/concordia-cash/go-concordia/rewards/rewardsdb"
)

// Config aggregates everything the launcher needs to start a node. It maps
// one to one onto the TOML config file.
type Config struct {
	Node    NodeConfig
	Chain   ChainConfig
	Store   StoreConfig
	Metrics MetricsConfig
	Logging LoggingConfig
}

type NodeConfig struct {
	DataDir string
	Name    string
}

type ChainConfig struct {
	Network string
	// NUParams overrides upgrade activation heights on regtest, as
	// comma-separated name:height pairs.
	NUParams string
}

type StoreConfig struct {
	Preset    string
	CacheMB   int
	Handles   int
	RewardsDB string
}

type MetricsConfig struct {
	Enabled  bool
	HTTPAddr string
	HTTPPort int
}

type LoggingConfig struct {
	Verbosity int
	Format    string
	Color     bool
	SentryDSN string
}

// These settings keep the TOML keys identical to the Go field names.
var tomlSettings = toml.Config{
	NormFieldName: func(rt reflect.Type, key string) string {
		return key
	},
	FieldToKey: func(rt reflect.Type, field string) string {
		return field
	},
	MissingField: func(rt reflect.Type, field string) error {
		return fmt.Errorf("field '%s' is not defined in %s", field, rt.String())
	},
}

// MakeAllConfigs merges defaults, the optional config file, the resource
// preset and finally individual CLI flags into a single Config.
func MakeAllConfigs(ctx *cli.Context) (Config, error) {
	cfg := defaultConfig()

	if file := ctx.String("config"); file != "" {
		if err := loadConfigFile(file, &cfg); err != nil {
			return cfg, err
		}
	}

	if ctx.IsSet("preset") {
		if err := applyPresetName(&cfg, ctx.String("preset")); err != nil {
			return cfg, err
		}
	}
	applyCLIOverrides(ctx, &cfg)

	cfg.Node.DataDir = resolvePath(cfg.Node.DataDir)
	if _, err := params.ParseNetwork(cfg.Chain.Network); err != nil {
		return cfg, err
	}
	if _, err := rewardsdb.ParseKind(cfg.Store.RewardsDB); err != nil {
		return cfg, err
	}
	return cfg, nil
}

func loadConfigFile(path string, cfg *Config) error {
	f, err := os.Open(path)
	if err != nil {
		return err
	}
	defer f.Close()

	err = tomlSettings.NewDecoder(bufio.NewReader(f)).Decode(cfg)
	// Add file name to errors that have a line number.
	var lineErr *toml.LineError
	if errors.As(err, &lineErr) {
		err = errors.New(path + ", " + err.Error())
	}
	if err != nil {
		return fmt.Errorf("failed to load config file %s: %w", path, err)
	}
	return nil
}

func applyPresetName(cfg *Config, name string) error {
	preset, err := integration.GetPresetByName(name)
	if err != nil {
		return err
	}
	cfg.Store.Preset = preset.Name
	cfg.Store.CacheMB = preset.CacheMB
	cfg.Store.Handles = preset.Handles
	cfg.Store.RewardsDB = preset.RewardsDB.String()
	cfg.Metrics.Enabled = preset.EnableMetrics
	return nil
}

func applyCLIOverrides(ctx *cli.Context, cfg *Config) {
	if ctx.IsSet("datadir") {
		cfg.Node.DataDir = ctx.String("datadir")
	}
	if ctx.IsSet("identity") {
		cfg.Node.Name = ctx.String("identity")
	}

	if ctx.IsSet("network") {
		cfg.Chain.Network = ctx.String("network")
	}
	if ctx.IsSet("nuparams") {
		cfg.Chain.NUParams = ctx.String("nuparams")
	}

	if ctx.IsSet("cache") {
		cfg.Store.CacheMB = ctx.Int("cache")
	}
	if ctx.IsSet("rewards.db") {
		cfg.Store.RewardsDB = ctx.String("rewards.db")
	}

	if ctx.IsSet("metrics") {
		cfg.Metrics.Enabled = ctx.Bool("metrics")
	}
	if ctx.IsSet("metrics.addr") {
		cfg.Metrics.HTTPAddr = ctx.String("metrics.addr")
	}
	if ctx.IsSet("metrics.port") {
		cfg.Metrics.HTTPPort = ctx.Int("metrics.port")
	}

	if ctx.IsSet("log.format") {
		cfg.Logging.Format = ctx.String("log.format")
	}
	if ctx.IsSet("log.verbosity") {
		cfg.Logging.Verbosity = ctx.Int("log.verbosity")
	}
	if ctx.IsSet("log.color") {
		cfg.Logging.Color = ctx.Bool("log.color")
	}
	if ctx.IsSet("log.sentry") {
		cfg.Logging.SentryDSN = ctx.String("log.sentry")
	}
}

// Params returns the consensus parameters selected by the chain section.
func (c ChainConfig) Params() (*params.Params, error) {
	n, err := params.ParseNetwork(c.Network)
	if err != nil {
		return nil, err
	}
	p := params.ForNetwork(n)
	if c.NUParams != "" {
		if err := p.ApplyNetworkUpgradeOverrides(c.NUParams); err != nil {
			return nil, err
		}
	}
	return p, nil
}

// PresetConfig converts the store section for integration.MakeNode.
func (c Config) PresetConfig() (integration.PresetConfig, error) {
	kind, err := rewardsdb.ParseKind(c.Store.RewardsDB)
	if err != nil {
		return integration.PresetConfig{}, err
	}
	return integration.PresetConfig{
		Name:          c.Store.Preset,
		CacheMB:       c.Store.CacheMB,
		Handles:       c.Store.Handles,
		RewardsDB:     kind,
		EnableMetrics: c.Metrics.Enabled,
	}, nil
}

func resolvePath(p string) string {
	if strings.HasPrefix(p, "~") {
		return filepath.Join(GuessHomeDir(), strings.TrimPrefix(p, "~"))
	}
	if filepath.IsAbs(p) {
		return p
	}
	return filepath.Join(GuessWorkDir(), p)
}

func ensureDir(dir string) error {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("create datadir %s: %w", dir, err)
	}
	return nil
}

func GuessWorkDir() string {
	if wd, err := os.Getwd(); err == nil {
		return wd
	}
	return "."
}

func GuessHomeDir() string {
	if dir, err := os.UserHomeDir(); err == nil {
		return dir
	}
	return "."
}
