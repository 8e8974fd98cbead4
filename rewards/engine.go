// Package rewards implements the dynamic block reward engine.
//
// The chain is cut into epochs of Params.RewardAdjustmentInterval blocks.
// When the first block of an epoch (the boundary) is connected, the engine
// measures the money supply, the age-weighted circulating supply and the
// coins locked in staking, and derives the subsidy for the rest of the
// epoch:
//
//	target   = (5% of supply + 10% of circulating) / 2, per interval
//	delta    = (subsidy*interval - target) / interval
//	damped   = delta * (1..10%) depending on |delta/subsidy|
//	subsidy' = floor_coin(subsidy - damped)
//
// The boundary block itself is still paid at the previous epoch's rate. The
// result is cached in memory and in a durable Store; the static table from
// BlockSubsidy is the fallback whenever no epoch value is known.
//
// Every computation is integer arithmetic so all nodes agree on the result.
//
// Locking: the engine lock is always taken after the chain state lock.
// ConnectBlock and DisconnectBlock are called with the chain state lock held
// and in strictly increasing (connect) or decreasing (disconnect) height order.
package rewards

import (
	"errors"
	"fmt"
	"math"
	"sort"
	"sync"
	"time"

	"github.com/btcsuite/btcd/chaincfg/chainhash"
	"github.com/btcsuite/btcd/wire"
	"github.com/holiman/uint256"

	"github.com/concordia-cash/go-concordia/chain"
	"github.com/concordia-cash/go-concordia/coins"
	"github.com/concordia-cash/go-concordia/inter"
	"github.com/concordia-cash/go-concordia/log"
	"github.com/concordia-cash/go-concordia/metrics"
	"github.com/concordia-cash/go-concordia/params"
	"github.com/concordia-cash/go-concordia/rewards/rewardsdb"
)

const (
	// Annual emission targets in parts per million.
	totalSupplyTargetEmission       = 50000
	circulatingSupplyTargetEmission = 100000

	// DefaultOpenAttempts and DefaultOpenWait bound how long Init waits for
	// the durable store, which a restarting process may still hold.
	DefaultOpenAttempts = 3
	DefaultOpenWait     = 10 * time.Second

	ageWeightMultiplier = 100000000
)

var ErrNoChain = errors.New("active chain is empty")

// ChainView is the read access the engine needs to the active chain.
type ChainView interface {
	Tip() *chain.BlockIndex
	Height() int32
	At(height int32) *chain.BlockIndex
}

// UTXOSet is scanned at every epoch boundary.
type UTXOSet interface {
	Flush() error
	Cursor() coins.Cursor
}

// BlockReader loads stored block bodies.
type BlockReader interface {
	ReadBlock(node *chain.BlockIndex) (*wire.MsgBlock, error)
}

// TxLookup resolves a transaction by hash from the transaction index.
type TxLookup interface {
	GetTransaction(hash chainhash.Hash) (*wire.MsgTx, error)
}

// Config wires the engine to the rest of the node.
type Config struct {
	Params *params.Params
	Chain  ChainView
	Coins  UTXOSet
	Blocks BlockReader
	Txs    TxLookup

	// Open opens the durable store. Wipe, when set, deletes it first on
	// Reindex.
	Open    func() (rewardsdb.Store, error)
	Wipe    func() error
	Reindex bool

	OpenAttempts int
	OpenWait     time.Duration

	Log     log.Logger
	Metrics *metrics.Metrics
}

// Epoch is one cached epoch subsidy.
type Epoch struct {
	Height int32
	Amount int64
}

// Engine computes and caches the dynamic subsidy of every epoch.
type Engine struct {
	cfg     Config
	p       *params.Params
	log     log.Logger
	metrics *metrics.Metrics
	sleep   func(time.Duration)

	mu        sync.RWMutex
	epochs    map[int32]int64
	store     rewardsdb.Store
	initiated bool
	degraded  bool
}

// NewEngine validates cfg and returns an engine that still needs Init.
func NewEngine(cfg Config) (*Engine, error) {
	if cfg.Params == nil {
		return nil, errors.New("rewards: missing params")
	}
	if cfg.Params.RewardAdjustmentInterval < 2 {
		return nil, fmt.Errorf("rewards: adjustment interval %d is below 2", cfg.Params.RewardAdjustmentInterval)
	}
	if cfg.Open == nil {
		cfg.Open = func() (rewardsdb.Store, error) { return rewardsdb.NewMemory(), nil }
	}
	if cfg.OpenAttempts <= 0 {
		cfg.OpenAttempts = DefaultOpenAttempts
	}
	if cfg.OpenWait <= 0 {
		cfg.OpenWait = DefaultOpenWait
	}
	if cfg.Log == nil {
		cfg.Log = log.Root()
	}
	if cfg.Metrics == nil {
		cfg.Metrics = metrics.New()
	}
	return &Engine{
		cfg:     cfg,
		p:       cfg.Params,
		log:     cfg.Log.WithField("module", "rewards"),
		metrics: cfg.Metrics,
		sleep:   time.Sleep,
		epochs:  make(map[int32]int64),
	}, nil
}

// GetDynamicRewardsEpoch returns the epoch number of height.
func (e *Engine) GetDynamicRewardsEpoch(height int32) int32 {
	return height / e.p.RewardAdjustmentInterval
}

// GetDynamicRewardsEpochHeight returns the boundary height of height's epoch.
func (e *Engine) GetDynamicRewardsEpochHeight(height int32) int32 {
	return e.GetDynamicRewardsEpoch(height) * e.p.RewardAdjustmentInterval
}

// IsDynamicRewardsEpochHeight reports whether height is an epoch boundary.
func (e *Engine) IsDynamicRewardsEpochHeight(height int32) bool {
	return e.GetDynamicRewardsEpochHeight(height) == height
}

// GetBlockValue returns the subsidy of the block at height. A boundary block
// is paid at the rate of the block before it, since its own epoch value is
// only computed while it connects.
func (e *Engine) GetBlockValue(height int32) int64 {
	if height > 0 && e.IsDynamicRewardsEpochHeight(height) {
		// the interval is at least 2, so height-1 is never a boundary
		height--
	}
	subsidy := BlockSubsidy(height)

	e.mu.RLock()
	amount, ok := e.epochs[e.GetDynamicRewardsEpochHeight(height)]
	e.mu.RUnlock()

	if ok {
		return min(subsidy, amount)
	}
	return subsidy
}

// ConnectBlock updates the epoch cache for a newly connected block.
// subsidy is the value the block was allowed to mint.
//
// Store write failures do not fail the call: they are logged and switch the
// engine to memory-only operation.
func (e *Engine) ConnectBlock(node *chain.BlockIndex, subsidy int64) error {
	height := node.Height()
	if height <= 0 {
		return nil
	}

	e.mu.RLock()
	ready := e.initiated || e.degraded
	e.mu.RUnlock()
	if !ready {
		if err := e.Init(); err != nil {
			e.log.Warn("Connecting block without durable rewards store", "height", height, "err", err)
		}
	}

	epochHeight := e.GetDynamicRewardsEpochHeight(height)

	var newSubsidy int64
	if height == epochHeight {
		computed, err := e.computeEpochSubsidy(node, subsidy)
		if err != nil {
			return fmt.Errorf("rewards at height %d: %w", height, err)
		}
		newSubsidy = computed
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	if height != epochHeight {
		if _, ok := e.epochs[epochHeight]; !ok {
			newSubsidy = subsidy
		}
	}
	if newSubsidy > 0 {
		e.epochs[epochHeight] = newSubsidy
		e.persist(epochHeight, newSubsidy)
		if height == epochHeight {
			e.metrics.EpochSubsidy.Set(float64(newSubsidy))
		}
	}
	return nil
}

// DisconnectBlock drops the epoch a boundary block created. Only the exact
// boundary entry is removed.
func (e *Engine) DisconnectBlock(node *chain.BlockIndex) {
	height := node.Height()
	if height <= 0 || !e.IsDynamicRewardsEpochHeight(height) {
		return
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	if _, ok := e.epochs[height]; !ok {
		return
	}
	delete(e.epochs, height)
	if e.store == nil {
		return
	}
	if err := e.store.Delete(height); err != nil {
		e.storeFailed("delete", height, err)
	}
	e.log.Debug("Removed epoch", "height", height)
}

// persist writes one epoch to the durable store. e.mu must be held.
func (e *Engine) persist(height int32, amount int64) {
	if e.store == nil {
		return
	}
	if err := e.store.Upsert(height, amount); err != nil {
		e.storeFailed("upsert", height, err)
	}
}

// storeFailed switches to memory-only mode. e.mu must be held.
func (e *Engine) storeFailed(op string, height int32, err error) {
	e.metrics.RewardsStoreErrors.Inc()
	e.log.Error("Rewards store write failed, continuing in memory", "op", op, "height", height, "err", err)
	if closeErr := e.store.Close(); closeErr != nil {
		e.log.Warn("Closing rewards store", "err", closeErr)
	}
	e.store = nil
	e.degraded = true
}

// Init opens the durable store, loads it, and rebuilds any epoch missing
// below the current tip from the stored blocks. On failure the engine keeps
// working from memory and the static table.
func (e *Engine) Init() error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.initiated {
		e.log.Debug("Already initialized")
		return nil
	}

	store, err := e.openStore()
	if err != nil {
		e.degraded = true
		e.log.Error("Rewards store unavailable, using static subsidies", "err", err)
		return err
	}
	table, err := store.Load()
	if err != nil {
		_ = store.Close()
		e.degraded = true
		e.log.Error("Rewards store unreadable, using static subsidies", "err", err)
		return fmt.Errorf("load rewards: %w", err)
	}
	for height, amount := range table {
		e.epochs[height] = amount
	}
	e.store = store
	e.degraded = false

	e.backfill()
	if e.store == nil {
		return errors.New("rewards store failed during backfill")
	}

	for _, epoch := range e.sortedEpochs() {
		e.log.Info("Dynamic reward", "height", epoch.Height, "amount", FormatMoney(epoch.Amount))
	}
	e.initiated = true
	return nil
}

func (e *Engine) openStore() (rewardsdb.Store, error) {
	if e.cfg.Reindex && e.cfg.Wipe != nil {
		if err := e.cfg.Wipe(); err != nil {
			return nil, err
		}
		e.log.Info("Deleted rewards store for reindex")
	}

	var lastErr error
	for attempt := 1; attempt <= e.cfg.OpenAttempts; attempt++ {
		store, err := e.cfg.Open()
		if err == nil {
			return store, nil
		}
		lastErr = err
		e.log.Warn("Opening rewards store failed", "attempt", attempt, "err", err)
		if attempt < e.cfg.OpenAttempts {
			e.sleep(e.cfg.OpenWait)
		}
	}
	return nil, fmt.Errorf("open rewards store after %d attempts: %w", e.cfg.OpenAttempts, lastErr)
}

// backfill recomputes missing epochs from the first block paid at each
// epoch's rate. e.mu must be held.
func (e *Engine) backfill() {
	if e.cfg.Chain == nil || e.cfg.Blocks == nil {
		return
	}
	interval := e.p.RewardAdjustmentInterval
	tip := e.cfg.Chain.Height()
	for height := interval; height <= tip; height += interval {
		if _, ok := e.epochs[height]; ok {
			continue
		}
		node := e.cfg.Chain.At(height + 1)
		if node == nil {
			continue
		}
		block, err := e.cfg.Blocks.ReadBlock(node)
		if err != nil {
			e.log.Debug("Skipping epoch backfill", "height", height, "err", err)
			continue
		}
		amount := e.mintedBy(block)
		if amount <= 0 {
			continue
		}
		e.epochs[height] = amount
		e.persist(height, amount)
		e.log.Info("Restored epoch from blocks", "height", height, "amount", FormatMoney(amount))
	}
}

// mintedBy returns the value created by block's reward transaction: its
// outputs minus whatever inputs can be resolved.
func (e *Engine) mintedBy(block *wire.MsgBlock) int64 {
	tx := inter.RewardTx(block)
	if tx == nil {
		return 0
	}
	var minted int64
	if !inter.IsCoinBase(tx) && e.cfg.Txs != nil {
		for _, in := range tx.TxIn {
			prev, err := e.cfg.Txs.GetTransaction(in.PreviousOutPoint.Hash)
			if err != nil || int(in.PreviousOutPoint.Index) >= len(prev.TxOut) {
				continue
			}
			minted -= prev.TxOut[in.PreviousOutPoint.Index].Value
		}
	}
	return minted + inter.ValueOut(tx)
}

// computeEpochSubsidy derives the subsidy of the epoch starting at node.
func (e *Engine) computeEpochSubsidy(node *chain.BlockIndex, subsidy int64) (int64, error) {
	height := node.Height()
	interval := int64(e.p.RewardAdjustmentInterval)
	blocksPerDay := e.p.BlocksPerDay()

	moneySupply, _ := node.MoneySupply()

	collateral := e.p.MasternodeCollateral(height)
	nextWeekCollateral := e.p.MasternodeCollateral(height + int32(e.p.BlocksPerWeek()))

	circulating, err := e.circulatingSupply(height, collateral, nextWeekCollateral)
	if err != nil {
		return 0, err
	}

	// The window ends at the parent: it is the tip while this block connects.
	hashPS := networkHashPS(node.Prev(), e.p.RewardAdjustmentInterval)
	staked := stakedCoins(hashPS, e.p.TimeSlotLength)
	circulatingFree := max(circulating-staked, 0)

	actualEmission := subsidy * interval
	supplyTarget := ((moneySupply / (365 * blocksPerDay)) / 1000000) * totalSupplyTargetEmission * interval
	circulatingTarget := ((circulatingFree / (365 * blocksPerDay)) / 1000000) * circulatingSupplyTargetEmission * interval
	targetEmission := (supplyTarget + circulatingTarget) / 2

	delta := (actualEmission - targetEmission) / interval

	// |delta/subsidy| in percent maps linearly onto a 1..10% damping weight
	ratio := int64(100)
	if subsidy > 0 {
		ratio = abs((delta * 100) / subsidy)
	}
	weight := (min(ratio, 100)*9)/100 + 1
	damped := delta * weight / 100

	newSubsidy := subsidy - damped
	newSubsidy = (newSubsidy / params.COIN) * params.COIN

	e.log.Debug("Epoch inputs",
		"height", height,
		"moneySupply", FormatMoney(moneySupply),
		"circulating", FormatMoney(circulating),
		"hashPS", hashPS,
		"staked", FormatMoney(staked),
		"circulatingFree", FormatMoney(circulatingFree))
	e.log.Debug("Epoch emission",
		"actual", FormatMoney(actualEmission),
		"supplyTarget", FormatMoney(supplyTarget),
		"circulatingTarget", FormatMoney(circulatingTarget),
		"target", FormatMoney(targetEmission),
		"delta", FormatMoney(delta),
		"ratio", ratio,
		"damped", FormatMoney(damped))
	e.log.Info("Adjusted block reward", "height", height, "from", FormatMoney(subsidy), "to", FormatMoney(newSubsidy))

	return newSubsidy, nil
}

// circulatingSupply sums every unspent output weighted by age: full weight up
// to 3 months, falling linearly to nothing at 12 months. Masternode
// collaterals are left out.
func (e *Engine) circulatingSupply(height int32, collateral, nextWeekCollateral int64) (int64, error) {
	if e.cfg.Coins == nil {
		return 0, nil
	}
	start := time.Now()
	defer func() { e.metrics.UTXOScanDuration.Observe(time.Since(start).Seconds()) }()

	if err := e.cfg.Coins.Flush(); err != nil {
		return 0, fmt.Errorf("flush coins: %w", err)
	}
	blocksPerMonth := e.p.BlocksPerMonth()

	cursor := e.cfg.Coins.Cursor()
	defer cursor.Release()

	var total int64
	for ; cursor.Valid(); cursor.Next() {
		if _, ok := cursor.Key(); !ok {
			break
		}
		coin, ok := cursor.Value()
		if !ok {
			break
		}
		if coin.Value == collateral || coin.Value == nextWeekCollateral {
			continue
		}
		total += coin.Value * ageWeight(int64(height-coin.Height), blocksPerMonth) / 100
	}
	if err := cursor.Error(); err != nil {
		return 0, fmt.Errorf("scan coins: %w", err)
	}
	return total, nil
}

// ageWeight is the percentage of an output of the given age, in blocks,
// counted as circulating.
func ageWeight(age, blocksPerMonth int64) int64 {
	w := (100*ageWeightMultiplier - ((100*ageWeightMultiplier)/(9*blocksPerMonth))*(age-3*blocksPerMonth)) / ageWeightMultiplier
	return min(max(w, 0), 100)
}

// networkHashPS estimates the work per second over the last blocks ending
// at end. It saturates instead of overflowing.
func networkHashPS(end *chain.BlockIndex, blocks int32) int64 {
	if end == nil {
		return 0
	}
	start := end.Ancestor(end.Height() - min(blocks, end.Height()))
	timeDiff := end.Timestamp() - start.Timestamp()
	if timeDiff <= 0 {
		return 0
	}
	work := new(uint256.Int).Sub(end.ChainWork(), start.ChainWork())
	work.Div(work, uint256.NewInt(uint64(timeDiff)))
	if !work.IsUint64() || work.Uint64() > math.MaxInt64 {
		return math.MaxInt64
	}
	return int64(work.Uint64())
}

// stakedCoins converts a stake hash rate into the coins needed to produce it.
func stakedCoins(hashPS, timeSlot int64) int64 {
	if hashPS > math.MaxInt64/(timeSlot*100) {
		return math.MaxInt64
	}
	return hashPS * timeSlot * 100
}

func abs(v int64) int64 {
	if v < 0 {
		return -v
	}
	return v
}

// Epochs returns the cached epochs ordered by height.
func (e *Engine) Epochs() []Epoch {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.sortedEpochs()
}

func (e *Engine) sortedEpochs() []Epoch {
	out := make([]Epoch, 0, len(e.epochs))
	for height, amount := range e.epochs {
		out = append(out, Epoch{Height: height, Amount: amount})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Height < out[j].Height })
	return out
}

// Degraded reports whether the durable store is unavailable.
func (e *Engine) Degraded() bool {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.degraded
}

// Shutdown closes the durable store. The in-memory cache stays readable.
func (e *Engine) Shutdown() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.initiated = false
	if e.store == nil {
		return nil
	}
	err := e.store.Close()
	e.store = nil
	return err
}
