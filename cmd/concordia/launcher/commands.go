package launcher

import (
	"fmt"
	"io"
	"sort"
	"text/tabwriter"

	"gopkg.in/urfave/cli.v1"

	"github.com/concordia-cash/go-concordia/flags"
	"github.com/concordia-cash/go-concordia/integration"
	"github.com/concordia-cash/go-concordia/log"
	"github.com/concordia-cash/go-concordia/metrics"
	"github.com/concordia-cash/go-concordia/params"
	"github.com/concordia-cash/go-concordia/rewards"
	"github.com/concordia-cash/go-concordia/rewards/rewardsdb"
)

var (
	dumpConfigCommand = cli.Command{
		Action:      dumpConfig,
		Name:        "dumpconfig",
		Usage:       "Show configuration values",
		ArgsUsage:   "",
		Flags:       nodeFlags,
		Description: `The dumpconfig command shows configuration values in TOML format.`,
	}
	upgradesCommand = cli.Command{
		Action: listUpgrades,
		Name:   "upgrades",
		Usage:  "Print the network upgrade table",
		Flags:  append(flags.Merge(flags.CommonFlags(), flags.NetworkFlags()), flags.HeightFlag),
		Description: `
The upgrades command lists every network upgrade of the selected network with
its activation height and its state at --height.`,
	}
	rewardsCommand = cli.Command{
		Action: listRewards,
		Name:   "rewards",
		Usage:  "Print the stored dynamic reward of every epoch",
		Flags:  nodeFlags,
	}
	statusCommand = cli.Command{
		Action: printStatus,
		Name:   "status",
		Usage:  "Load the chain and print the reward economics at its tip",
		Flags:  nodeFlags,
	}
)

func dumpConfig(ctx *cli.Context) error {
	cfg, err := MakeAllConfigs(ctx)
	if err != nil {
		return err
	}
	return writeConfig(ctx.App.Writer, &cfg)
}

func writeConfig(w io.Writer, cfg *Config) error {
	out, err := tomlSettings.Marshal(cfg)
	if err != nil {
		return err
	}
	_, err = w.Write(out)
	return err
}

func listUpgrades(ctx *cli.Context) error {
	cfg, err := MakeAllConfigs(ctx)
	if err != nil {
		return err
	}
	p, err := cfg.Chain.Params()
	if err != nil {
		return err
	}
	height := int32(ctx.Int(flags.HeightFlag.Name))
	if height < 0 {
		return fmt.Errorf("invalid height %d", height)
	}

	tw := tabwriter.NewWriter(ctx.App.Writer, 0, 4, 2, ' ', 0)
	fmt.Fprintf(tw, "NAME\tPROTOCOL\tACTIVATION\tSTATE\tINFO\n")
	for idx := params.BaseNetwork; idx < params.MaxNetworkUpgrades; idx++ {
		nu := p.Upgrades[idx]
		activation := fmt.Sprint(nu.ActivationHeight)
		if nu.ActivationHeight == params.NoActivationHeight {
			activation = "never"
		}
		fmt.Fprintf(tw, "%s\t%d\t%s\t%s\t%s\n", idx, nu.ProtocolVersion, activation,
			p.NetworkUpgradeState(height, idx), params.NetworkUpgradeInfo[idx].Info)
	}
	if err := tw.Flush(); err != nil {
		return err
	}
	if next, ok := p.NextActivationHeight(height); ok {
		fmt.Fprintf(ctx.App.Writer, "\nCurrent epoch at %d: %s, next activation at %d\n",
			height, p.CurrentEpoch(height), next)
	} else {
		fmt.Fprintf(ctx.App.Writer, "\nCurrent epoch at %d: %s\n", height, p.CurrentEpoch(height))
	}
	return nil
}

func listRewards(ctx *cli.Context) error {
	cfg, err := MakeAllConfigs(ctx)
	if err != nil {
		return err
	}
	p, err := cfg.Chain.Params()
	if err != nil {
		return err
	}
	kind, err := rewardsdb.ParseKind(cfg.Store.RewardsDB)
	if err != nil {
		return err
	}
	store, err := rewardsdb.Open(kind, integration.ChainDir(cfg.Node.DataDir, p))
	if err != nil {
		return err
	}
	defer store.Close()

	table, err := store.Load()
	if err != nil {
		return err
	}
	heights := make([]int32, 0, len(table))
	for h := range table {
		heights = append(heights, h)
	}
	sort.Slice(heights, func(i, j int) bool { return heights[i] < heights[j] })

	tw := tabwriter.NewWriter(ctx.App.Writer, 0, 4, 2, ' ', 0)
	fmt.Fprintf(tw, "HEIGHT\tREWARD\n")
	for _, h := range heights {
		fmt.Fprintf(tw, "%d\t%s\n", h, rewards.FormatMoney(table[h]))
	}
	return tw.Flush()
}

func printStatus(ctx *cli.Context) error {
	cfg, err := MakeAllConfigs(ctx)
	if err != nil {
		return err
	}
	node, err := makeNode(ctx, cfg, log.Discard(), metrics.New())
	if err != nil {
		return err
	}
	defer node.Close()

	st, err := node.Chain.Status()
	if err != nil {
		return err
	}
	tw := tabwriter.NewWriter(ctx.App.Writer, 0, 4, 2, ' ', 0)
	rows := []struct {
		name  string
		value interface{}
	}{
		{"height", st.Height},
		{"moneysupply", rewards.FormatMoney(st.MoneySupply)},
		{"blockvalue", rewards.FormatMoney(st.BlockValue)},
		{"masternodereward", rewards.FormatMoney(st.MasternodeReward)},
		{"stakereward", rewards.FormatMoney(st.StakeReward)},
		{"blocksperday", st.BlocksPerDay},
		{"networkhashps", st.NetworkHashPS},
		{"smoothnetworkhashps", st.SmoothNetworkHashPS},
		{"stakedcoins", rewards.FormatMoney(st.StakedCoins)},
		{"smoothstakedcoins", rewards.FormatMoney(st.SmoothStakedCoins)},
		{"stakingroi", fmt.Sprintf("%.2f%%", st.StakingROI)},
		{"smoothstakingroi", fmt.Sprintf("%.2f%%", st.SmoothStakingROI)},
		{"masternodecollateral", rewards.FormatMoney(st.MasternodeCollateral)},
		{"masternodenextweekcollateral", rewards.FormatMoney(st.MasternodeNextWeekCollateral)},
	}
	for _, row := range rows {
		fmt.Fprintf(tw, "%s\t%v\n", row.name, row.value)
	}
	return tw.Flush()
}
