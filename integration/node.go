package integration

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/ethereum/go-ethereum/ethdb"
	"github.com/ethereum/go-ethereum/ethdb/leveldb"

	"github.com/concordia-cash/go-concordia/blockstore"
	"github.com/concordia-cash/go-concordia/chain"
	"github.com/concordia-cash/go-concordia/coins"
	"github.com/concordia-cash/go-concordia/log"
	"github.com/concordia-cash/go-concordia/metrics"
	"github.com/concordia-cash/go-concordia/params"
	"github.com/concordia-cash/go-concordia/rewards"
	"github.com/concordia-cash/go-concordia/rewards/rewardsdb"
	"github.com/concordia-cash/go-concordia/validation"
)

// NodeConfig describes a node to assemble.
type NodeConfig struct {
	DataDir string
	Params  *params.Params
	Preset  PresetConfig
	// Reindex wipes the UTXO set, the block index and the reward store, then
	// rebuilds them from the block files.
	Reindex bool

	Log     log.Logger
	Metrics *metrics.Metrics
	Now     func() time.Time
}

// Node owns the databases of a running node.
type Node struct {
	Params  *params.Params
	Chain   *validation.ChainState
	Rewards *rewards.Engine
	Blocks  *blockstore.Store
	Coins   *coins.View

	log     log.Logger
	coinsDB ethdb.KeyValueStore
	indexDB ethdb.KeyValueStore
}

// ChainDir returns the directory holding the data of network p under datadir.
func ChainDir(datadir string, p *params.Params) string {
	if p.Net == params.MainNet {
		return datadir
	}
	return filepath.Join(datadir, p.Name)
}

// MakeNode opens the databases under cfg.DataDir, wires the components
// together and loads the chain.
func MakeNode(cfg NodeConfig) (*Node, error) {
	if cfg.Params == nil {
		return nil, errors.New("integration: missing params")
	}
	if err := cfg.Params.Validate(); err != nil {
		return nil, err
	}
	if cfg.Log == nil {
		cfg.Log = log.Root()
	}
	if cfg.Metrics == nil {
		cfg.Metrics = metrics.New()
	}
	if cfg.Preset.CacheMB <= 0 || cfg.Preset.Handles <= 0 {
		ApplyPreset(&cfg.Preset, DefaultPreset())
	}

	dir := ChainDir(cfg.DataDir, cfg.Params)
	blocksDir := filepath.Join(dir, "blocks")
	indexPath := filepath.Join(blocksDir, "index")
	coinsPath := filepath.Join(dir, "chainstate")

	if cfg.Reindex {
		for _, path := range []string{indexPath, coinsPath} {
			if err := os.RemoveAll(path); err != nil {
				return nil, fmt.Errorf("wipe %s: %w", path, err)
			}
		}
		cfg.Log.Info("Deleted block index and chain state for reindex", "dir", dir)
	}

	cache, handles := cfg.Preset.CacheMB, cfg.Preset.Handles
	n := &Node{Params: cfg.Params, log: cfg.Log.WithField("module", "node")}

	indexDB, err := leveldb.New(indexPath, cache/4, handles/2, "concordia/index/", false)
	if err != nil {
		return nil, fmt.Errorf("open block index: %w", err)
	}
	n.indexDB = indexDB
	coinsDB, err := leveldb.New(coinsPath, cache-cache/4, handles/2, "concordia/coins/", false)
	if err != nil {
		n.Close()
		return nil, fmt.Errorf("open chain state: %w", err)
	}
	n.coinsDB = coinsDB
	if n.Blocks, err = blockstore.Open(blocksDir, cfg.Params.Magic, n.indexDB, cfg.Log.WithField("module", "blockstore")); err != nil {
		n.Close()
		return nil, err
	}
	n.Coins = coins.NewView(n.coinsDB)

	active := chain.NewChain()
	kind := cfg.Preset.RewardsDB
	n.Rewards, err = rewards.NewEngine(rewards.Config{
		Params:  cfg.Params,
		Chain:   active,
		Coins:   n.Coins,
		Blocks:  n.Blocks,
		Txs:     n.Blocks,
		Open:    func() (rewardsdb.Store, error) { return rewardsdb.Open(kind, dir) },
		Wipe:    func() error { return rewardsdb.Wipe(kind, dir) },
		Reindex: cfg.Reindex,
		Log:     cfg.Log,
		Metrics: cfg.Metrics,
	})
	if err != nil {
		n.Close()
		return nil, err
	}

	n.Chain, err = validation.New(validation.Config{
		Params:  cfg.Params,
		Index:   chain.NewIndex(cfg.Params),
		Chain:   active,
		Coins:   n.Coins,
		Blocks:  n.Blocks,
		Rewards: n.Rewards,
		Log:     cfg.Log,
		Metrics: cfg.Metrics,
		Now:     cfg.Now,
	})
	if err != nil {
		n.Close()
		return nil, err
	}

	if err := n.Chain.LoadFromDisk(cfg.Reindex); err != nil {
		n.Close()
		return nil, fmt.Errorf("load chain: %w", err)
	}
	n.log.Info("Node ready", "network", cfg.Params.Name, "height", n.Chain.Height(), "datadir", dir,
		"rewards", kind)
	return n, nil
}

// Close flushes the chain state and releases every database.
func (n *Node) Close() error {
	var errs []error
	if n.Chain != nil {
		if err := n.Chain.Flush(); err != nil {
			errs = append(errs, fmt.Errorf("flush coins: %w", err))
		}
	}
	if n.Rewards != nil {
		if err := n.Rewards.Shutdown(); err != nil {
			errs = append(errs, fmt.Errorf("close rewards store: %w", err))
		}
	}
	if n.Blocks != nil {
		if err := n.Blocks.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	for _, db := range []ethdb.KeyValueStore{n.coinsDB, n.indexDB} {
		if db == nil {
			continue
		}
		if err := db.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
