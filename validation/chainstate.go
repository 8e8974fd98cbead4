// Package validation ties the block index, the UTXO set, the block files and
// the rewards engine together.
//
// ChainState is the single owner of consensus state. Every mutating
// operation takes its lock, which is the outermost lock of the node: the
// active chain and the rewards engine have their own, inner locks.
package validation

import (
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/btcsuite/btcd/chaincfg/chainhash"
	"github.com/btcsuite/btcd/wire"

	"github.com/concordia-cash/go-concordia/blockstore"
	"github.com/concordia-cash/go-concordia/chain"
	"github.com/concordia-cash/go-concordia/coins"
	"github.com/concordia-cash/go-concordia/inter"
	"github.com/concordia-cash/go-concordia/log"
	"github.com/concordia-cash/go-concordia/metrics"
	"github.com/concordia-cash/go-concordia/params"
	"github.com/concordia-cash/go-concordia/rewards"
)

// Config holds the collaborators of a ChainState.
type Config struct {
	Params  *params.Params
	Index   *chain.Index
	Chain   *chain.Chain
	Coins   *coins.View
	Blocks  *blockstore.Store
	Rewards *rewards.Engine
	Log     log.Logger
	Metrics *metrics.Metrics
	// Now is the adjusted network time.
	Now func() time.Time
}

// ChainState validates blocks and keeps the active chain on the valid branch
// with the most work.
type ChainState struct {
	mu sync.RWMutex

	p       *params.Params
	index   *chain.Index
	active  *chain.Chain
	coins   *coins.View
	blocks  *blockstore.Store
	rewards *rewards.Engine
	log     log.Logger
	metrics *metrics.Metrics
	now     func() time.Time

	// candidates are stored blocks that may become the tip.
	candidates map[*chain.BlockIndex]struct{}
}

func New(cfg Config) (*ChainState, error) {
	if cfg.Params == nil || cfg.Index == nil || cfg.Chain == nil || cfg.Coins == nil ||
		cfg.Blocks == nil || cfg.Rewards == nil {
		return nil, errors.New("validation: incomplete config")
	}
	if cfg.Log == nil {
		cfg.Log = log.Root()
	}
	if cfg.Metrics == nil {
		cfg.Metrics = metrics.New()
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	return &ChainState{
		p:          cfg.Params,
		index:      cfg.Index,
		active:     cfg.Chain,
		coins:      cfg.Coins,
		blocks:     cfg.Blocks,
		rewards:    cfg.Rewards,
		log:        cfg.Log.WithField("module", "validation"),
		metrics:    cfg.Metrics,
		now:        cfg.Now,
		candidates: make(map[*chain.BlockIndex]struct{}),
	}, nil
}

// Tip returns the active chain tip.
func (s *ChainState) Tip() *chain.BlockIndex { return s.active.Tip() }

// Height returns the active chain height, -1 before LoadFromDisk.
func (s *ChainState) Height() int32 { return s.active.Height() }

// Locator returns a block locator for the active tip.
func (s *ChainState) Locator() []chainhash.Hash { return s.active.GetLocator(nil) }

// TrySyncStatus reports the tip height without blocking. ok is false when a
// block is being processed.
func (s *ChainState) TrySyncStatus() (height int32, ok bool) {
	if !s.mu.TryRLock() {
		return -1, false
	}
	defer s.mu.RUnlock()
	return s.active.Height(), true
}

// AcceptHeader validates header against its parent and adds it to the index.
func (s *ChainState) AcceptHeader(header *wire.BlockHeader) (*chain.BlockIndex, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	node, err := s.acceptHeader(header)
	s.countRejected(err)
	return node, err
}

// AcceptBlock validates and stores block, then moves the active chain to the
// best valid branch.
func (s *ChainState) AcceptBlock(block *wire.MsgBlock) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, err := s.acceptBlock(block, nil); err != nil {
		s.countRejected(err)
		return err
	}
	err := s.activateBestChain()
	s.countRejected(err)
	return err
}

func (s *ChainState) countRejected(err error) {
	var rerr RuleError
	if errors.As(err, &rerr) {
		s.metrics.RejectedBlocks.WithLabelValues(rerr.ErrorCode.String()).Inc()
	}
}

// PaidPayee returns the script that received the masternode payment of the
// block at node. Missing block data yields nil.
func (s *ChainState) PaidPayee(node *chain.BlockIndex) []byte {
	block, err := s.blocks.ReadBlock(node)
	if err != nil {
		s.log.Debug("Payee lookup without block data", "height", node.Height(), "err", err)
		return nil
	}
	amount := s.p.MasternodePayment(s.rewards.GetBlockValue(node.Height()))
	return inter.PaidPayee(block, amount)
}

// Status reports the reward economics at the tip.
func (s *ChainState) Status() (*rewards.Status, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.rewards.Status()
}

// Flush writes the cached UTXO changes.
func (s *ChainState) Flush() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.coins.Flush()
}

// LoadFromDisk restores the block index and tip from storage and starts the
// rewards engine. With reindex it starts from genesis and replays every
// stored block; the caller must hand it empty coins and index databases.
func (s *ChainState) LoadFromDisk(reindex bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !reindex {
		loaded, err := s.loadIndex()
		if err != nil {
			return err
		}
		if loaded {
			if err := s.rewards.Init(); err != nil {
				s.log.Warn("Rewards engine running without durable store", "err", err)
			}
			if err := s.activateBestChain(); err != nil && !isRuleError(err) {
				return err
			}
			s.log.Info("Loaded block index", "headers", s.index.Len(), "height", s.active.Height(),
				"tip", s.active.Tip().Hash())
			return nil
		}
	}

	// A reindex finds the genesis body in the block files.
	if err := s.initGenesis(!reindex); err != nil {
		return err
	}
	if err := s.rewards.Init(); err != nil {
		s.log.Warn("Rewards engine running without durable store", "err", err)
	}
	if !reindex {
		// Stored blocks survive a lost UTXO set and are connected again.
		if err := s.activateBestChain(); err != nil && !isRuleError(err) {
			return err
		}
		return nil
	}

	start := time.Now()
	genesis := s.active.Genesis()
	var replayed int
	err := s.blocks.Replay(func(block *wire.MsgBlock, file int32, dataPos uint32) error {
		if block.BlockHash() == s.p.GenesisHash {
			if !genesis.HaveData() {
				genesis.SetDiskPos(file, dataPos)
				return s.blocks.PutIndex(genesis)
			}
			return nil
		}
		replayed++
		if _, err := s.acceptBlock(block, &diskPos{file: file, dataPos: dataPos}); err != nil {
			s.log.Debug("Skipping stored block", "hash", block.BlockHash(), "err", err)
			return nil
		}
		if err := s.activateBestChain(); err != nil && !isRuleError(err) {
			return err
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("reindex: %w", err)
	}
	if !genesis.HaveData() {
		if err := s.storeGenesis(genesis); err != nil {
			return err
		}
	}
	s.log.Info("Reindexed block files", "blocks", replayed, "height", s.active.Height(),
		"elapsed", time.Since(start))
	return nil
}

func (s *ChainState) loadIndex() (bool, error) {
	records, err := s.blocks.LoadIndex()
	if err != nil {
		return false, err
	}
	if len(records) == 0 {
		return false, nil
	}
	for _, rec := range records {
		header, err := rec.BlockHeader()
		if err != nil {
			return false, err
		}
		node, err := s.index.AddHeader(header)
		if err != nil {
			s.log.Warn("Dropping stored header", "height", rec.Height, "err", err)
			continue
		}
		rec.Apply(node)
		if node.IsValid(chain.StatusValidTransactions) && node.HaveData() {
			s.candidates[node] = struct{}{}
		}
	}

	best, ok, err := s.coins.BestBlock()
	if err != nil {
		return false, err
	}
	if !ok {
		return false, nil
	}
	tip := s.index.Lookup(best)
	if tip == nil {
		return false, fmt.Errorf("coins best block %s missing from index", best)
	}
	s.active.SetTip(tip)
	s.metrics.ChainHeight.Set(float64(tip.Height()))
	return true, nil
}

func (s *ChainState) initGenesis(store bool) error {
	node, err := s.index.AddHeader(&s.p.GenesisBlock.Header)
	if err != nil {
		return err
	}
	node.RaiseValidity(chain.StatusValidScripts)
	node.SetMoneySupply(0)
	if store && !node.HaveData() {
		if err := s.storeGenesis(node); err != nil {
			return err
		}
	} else if err := s.blocks.PutIndex(node); err != nil {
		return err
	}

	s.coins.SetBestBlock(node.Hash())
	if err := s.coins.Flush(); err != nil {
		return err
	}
	s.active.SetTip(node)
	s.metrics.ChainHeight.Set(0)
	s.log.Info("Initialized chain", "network", s.p.Name, "genesis", node.Hash())
	return nil
}

func (s *ChainState) storeGenesis(node *chain.BlockIndex) error {
	file, dataPos, err := s.blocks.WriteBlock(s.p.GenesisBlock)
	if err != nil {
		return err
	}
	node.SetDiskPos(file, dataPos)
	return s.blocks.PutIndex(node)
}
