package flags

import (
	"gopkg.in/urfave/cli.v1"
)

// NodeFlags holds knobs specific to the local node instance: storage
// layout, caches and startup behaviour.
func NodeFlags() []cli.Flag {
	return []cli.Flag{
		cli.StringFlag{
			Name:  "identity",
			Usage: "Custom node name used in logs",
		},
		cli.StringFlag{
			Name:  "preset",
			Usage: "Resource preset (default|lite|full)",
			Value: "default",
		},
		cli.IntFlag{
			Name:  "cache",
			Usage: "Megabytes of memory allocated to database caching",
			Value: 512,
		},
		cli.StringFlag{
			Name:  "rewards.db",
			Usage: "Backend of the dynamic rewards store (leveldb|bolt)",
			Value: "leveldb",
		},
		cli.BoolFlag{
			Name:  "reindex",
			Usage: "Rebuild the block index, chain state and rewards store from the block files",
		},
	}
}
