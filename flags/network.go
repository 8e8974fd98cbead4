package flags

import (
	"gopkg.in/urfave/cli.v1"
)

// NetworkFlags select the chain and its consensus parameters.
func NetworkFlags() []cli.Flag {
	return []cli.Flag{
		cli.StringFlag{
			Name:  "network",
			Usage: "Network to run on (main|test|regtest)",
			Value: "main",
		},
		cli.StringFlag{
			Name:  "nuparams",
			Usage: "Regtest only: comma-separated name:height network upgrade activation overrides (e.g. PoS:300)",
		},
	}
}

// HeightFlag is the chain height inspected by the upgrades command.
var HeightFlag = cli.IntFlag{
	Name:  "height",
	Usage: "Height at which to report network upgrade states",
}
