package launcher

import (
	"fmt"
	"net"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"gopkg.in/urfave/cli.v1"

	"github.com/concordia-cash/go-concordia/flags"
	"github.com/concordia-cash/go-concordia/integration"
	"github.com/concordia-cash/go-concordia/log"
	"github.com/concordia-cash/go-concordia/metrics"
	"github.com/concordia-cash/go-concordia/rewards"
)

// statusInterval is how often a running node reports its tip.
const statusInterval = time.Minute

var (
	// Git SHA1 commit hash of the release (set via linker flags).
	gitCommit = ""

	app = flags.NewApp(gitCommit, "the Concordia Cash node")

	nodeFlags = flags.Merge(
		flags.CommonFlags(),
		flags.MetricsFlags(),
		flags.NetworkFlags(),
		flags.NodeFlags(),
	)
)

func init() {
	app.Action = concordiaMain
	app.HideVersion = true
	app.Flags = nodeFlags
	app.Commands = []cli.Command{
		dumpConfigCommand,
		upgradesCommand,
		rewardsCommand,
		statusCommand,
	}
}

// Launch parses args and runs the node or the selected command.
func Launch(args []string) error {
	return app.Run(args)
}

// concordiaMain is the main entry point when no subcommand is given. It
// opens the node and blocks until interrupted.
func concordiaMain(ctx *cli.Context) error {
	if args := ctx.Args(); len(args) > 0 {
		return fmt.Errorf("invalid command: %q", args[0])
	}

	cfg, err := MakeAllConfigs(ctx)
	if err != nil {
		return err
	}
	logger, err := setupLogging(cfg.Logging)
	if err != nil {
		return err
	}
	logger = logger.WithField("node", cfg.Node.Name)

	m := metrics.New()
	var srv *http.Server
	if cfg.Metrics.Enabled {
		if srv, err = startMetrics(cfg.Metrics, m, logger); err != nil {
			return err
		}
		defer srv.Close()
	}

	node, err := makeNode(ctx, cfg, logger, m)
	if err != nil {
		return err
	}

	sigc := make(chan os.Signal, 1)
	signal.Notify(sigc, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(sigc)

	ticker := time.NewTicker(statusInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			reportStatus(node, logger)
		case sig := <-sigc:
			logger.Info("Got interrupt, shutting down...", "signal", sig)
			return node.Close()
		}
	}
}

func setupLogging(cfg LoggingConfig) (log.Logger, error) {
	logger, err := log.New(log.Config{
		Verbosity: cfg.Verbosity,
		Format:    cfg.Format,
		Color:     cfg.Color,
		SentryDSN: cfg.SentryDSN,
	})
	if err != nil {
		return nil, err
	}
	log.SetRoot(logger)
	return logger, nil
}

func startMetrics(cfg MetricsConfig, m *metrics.Metrics, logger log.Logger) (*http.Server, error) {
	reg := prometheus.NewRegistry()
	if err := m.Register(reg); err != nil {
		return nil, fmt.Errorf("register metrics: %w", err)
	}
	addr := net.JoinHostPort(cfg.HTTPAddr, strconv.Itoa(cfg.HTTPPort))
	logger.Info("Starting metrics server", "addr", "http://"+addr+"/metrics")
	return metrics.Serve(addr, reg), nil
}

func makeNode(ctx *cli.Context, cfg Config, logger log.Logger, m *metrics.Metrics) (*integration.Node, error) {
	p, err := cfg.Chain.Params()
	if err != nil {
		return nil, err
	}
	preset, err := cfg.PresetConfig()
	if err != nil {
		return nil, err
	}
	if err := ensureDir(cfg.Node.DataDir); err != nil {
		return nil, err
	}
	return integration.MakeNode(integration.NodeConfig{
		DataDir: cfg.Node.DataDir,
		Params:  p,
		Preset:  preset,
		Reindex: ctx.Bool("reindex"),
		Log:     logger,
		Metrics: m,
	})
}

func reportStatus(node *integration.Node, logger log.Logger) {
	height, ok := node.Chain.TrySyncStatus()
	if !ok {
		logger.Debug("Chain busy, skipping status report")
		return
	}
	st, err := node.Chain.Status()
	if err != nil {
		logger.Warn("Status unavailable", "height", height, "err", err)
		return
	}
	logger.Info("Chain status", "height", height, "supply", rewards.FormatMoney(st.MoneySupply),
		"blockvalue", rewards.FormatMoney(st.BlockValue), "blocks/day", st.BlocksPerDay)
}
