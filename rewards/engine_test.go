package rewards

import (
	"bytes"
	"errors"
	"testing"
	"time"

	"github.com/btcsuite/btcd/chaincfg/chainhash"
	"github.com/btcsuite/btcd/wire"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/concordia-cash/go-concordia/chain"
	"github.com/concordia-cash/go-concordia/coins"
	"github.com/concordia-cash/go-concordia/log"
	"github.com/concordia-cash/go-concordia/metrics"
	"github.com/concordia-cash/go-concordia/params"
	"github.com/concordia-cash/go-concordia/rewards/rewardsdb"
)

const coin = params.COIN

// sliceCursor yields coins in order. When failAt is positive, the entry at
// index failAt-1 is unreadable and the cursor reports err.
type sliceCursor struct {
	coins  []coins.Coin
	pos    int
	failAt int
	err    error
}

func (c *sliceCursor) Valid() bool { return c.pos < len(c.coins) }
func (c *sliceCursor) Next()       { c.pos++ }
func (c *sliceCursor) Key() (wire.OutPoint, bool) {
	return wire.OutPoint{Index: uint32(c.pos)}, c.Valid()
}
func (c *sliceCursor) Value() (*coins.Coin, bool) {
	if !c.Valid() {
		return nil, false
	}
	if c.failAt > 0 && c.pos == c.failAt-1 {
		c.err = errors.New("corrupt coin entry")
		return nil, false
	}
	return &c.coins[c.pos], true
}
func (c *sliceCursor) Error() error { return c.err }
func (c *sliceCursor) Release()     {}

type fakeUTXO struct {
	coins   []coins.Coin
	flushes int
	failAt  int
}

func (u *fakeUTXO) Flush() error { u.flushes++; return nil }
func (u *fakeUTXO) Cursor() coins.Cursor {
	return &sliceCursor{coins: u.coins, failAt: u.failAt}
}

type fakeBlocks map[chainhash.Hash]*wire.MsgBlock

func (b fakeBlocks) ReadBlock(node *chain.BlockIndex) (*wire.MsgBlock, error) {
	block, ok := b[node.Hash()]
	if !ok {
		return nil, errors.New("no data")
	}
	return block, nil
}

type fakeTxs map[chainhash.Hash]*wire.MsgTx

func (t fakeTxs) GetTransaction(hash chainhash.Hash) (*wire.MsgTx, error) {
	tx, ok := t[hash]
	if !ok {
		return nil, errors.New("not indexed")
	}
	return tx, nil
}

type failingStore struct {
	rewardsdb.Store
}

func (failingStore) Upsert(int32, int64) error { return errors.New("disk full") }

func testParams(interval int32) *params.Params {
	p := params.RegTestParams()
	p.RewardAdjustmentInterval = interval
	return p
}

func buildChain(t *testing.T, p *params.Params, n int) (*chain.Chain, []*chain.BlockIndex) {
	ix := chain.NewIndex(p)
	genesis, err := ix.AddHeader(&p.GenesisBlock.Header)
	require.NoError(t, err)

	nodes := []*chain.BlockIndex{genesis}
	for h := 1; h <= n; h++ {
		prev := nodes[h-1]
		node, err := ix.AddHeader(&wire.BlockHeader{
			Version:   1,
			PrevBlock: prev.Hash(),
			Timestamp: time.Unix(prev.Timestamp()+60, 0),
			Bits:      p.PowLimitBits,
			Nonce:     uint32(h),
		})
		require.NoError(t, err)
		nodes = append(nodes, node)
	}
	c := chain.NewChain()
	c.SetTip(nodes[n])
	return c, nodes
}

func newTestEngine(t *testing.T, cfg Config) *Engine {
	if cfg.Log == nil {
		cfg.Log = log.Discard()
	}
	e, err := NewEngine(cfg)
	require.NoError(t, err)
	e.sleep = func(time.Duration) {}
	return e
}

func TestEpochHeights(t *testing.T) {
	e := newTestEngine(t, Config{Params: params.MainNetParams()})

	assert.True(t, e.IsDynamicRewardsEpochHeight(43200))
	assert.False(t, e.IsDynamicRewardsEpochHeight(43199))
	assert.Equal(t, int32(43200), e.GetDynamicRewardsEpochHeight(43250))
	assert.Equal(t, int32(1), e.GetDynamicRewardsEpoch(43250))
	assert.Equal(t, int32(0), e.GetDynamicRewardsEpochHeight(43199))
}

func TestNewEngineRejectsShortInterval(t *testing.T) {
	_, err := NewEngine(Config{Params: testParams(1)})
	assert.Error(t, err)
	_, err = NewEngine(Config{})
	assert.Error(t, err)
}

func TestGetBlockValueStatic(t *testing.T) {
	e := newTestEngine(t, Config{Params: testParams(10)})

	for _, tt := range []struct {
		height int32
		want   int64
	}{
		{0, BaseSubsidy},
		{1, PremineSubsidy},
		{2, BaseSubsidy},
		{10, BaseSubsidy},
		{11, BaseSubsidy},
	} {
		if got := e.GetBlockValue(tt.height); got != tt.want {
			t.Errorf("GetBlockValue(%d) = %d, want %d", tt.height, got, tt.want)
		}
	}
}

func TestConnectNonBoundaryCachesSubsidy(t *testing.T) {
	p := testParams(10)
	_, nodes := buildChain(t, p, 15)
	e := newTestEngine(t, Config{Params: p})
	require.NoError(t, e.Init())

	require.NoError(t, e.ConnectBlock(nodes[13], 80*coin))
	assert.Equal(t, []Epoch{{Height: 10, Amount: 80 * coin}}, e.Epochs())
	assert.Equal(t, 80*coin, e.GetBlockValue(11))
	assert.Equal(t, 80*coin, e.GetBlockValue(19))
	// the next boundary is still paid at the previous epoch's rate
	assert.Equal(t, 80*coin, e.GetBlockValue(20))

	// an existing entry is never replaced by the fallback
	require.NoError(t, e.ConnectBlock(nodes[14], 70*coin))
	assert.Equal(t, 80*coin, e.GetBlockValue(14))

	// cached values above the static table are capped by it
	require.NoError(t, e.ConnectBlock(nodes[1], 200*coin))
	assert.Equal(t, BaseSubsidy, e.GetBlockValue(2))
}

func TestBoundaryAdjustment(t *testing.T) {
	p := testParams(10)
	c, nodes := buildChain(t, p, 12)
	utxo := &fakeUTXO{coins: []coins.Coin{
		{Value: 1000000 * coin, Height: 5},
		// masternode collateral is not circulating
		{Value: 100 * coin, Height: 1},
	}}
	m := metrics.New()
	store := rewardsdb.NewMemory()
	e := newTestEngine(t, Config{
		Params:  p,
		Chain:   c,
		Coins:   utxo,
		Open:    func() (rewardsdb.Store, error) { return store, nil },
		Metrics: m,
	})
	require.NoError(t, e.Init())

	boundary := nodes[10]
	boundary.SetMoneySupply(2000000 * coin)
	require.NoError(t, e.ConnectBlock(boundary, 100*coin))

	assert.Equal(t, 1, utxo.flushes)
	assert.Equal(t, []Epoch{{Height: 10, Amount: 91 * coin}}, e.Epochs())
	assert.Equal(t, 100*coin, e.GetBlockValue(10))
	assert.Equal(t, 91*coin, e.GetBlockValue(11))
	assert.Equal(t, float64(91*coin), testutil.ToFloat64(m.EpochSubsidy))

	table, err := store.Load()
	require.NoError(t, err)
	assert.Equal(t, map[int32]int64{10: 91 * coin}, table)

	// same inputs, same result
	require.NoError(t, e.ConnectBlock(boundary, 100*coin))
	assert.Equal(t, []Epoch{{Height: 10, Amount: 91 * coin}}, e.Epochs())

	e.DisconnectBlock(boundary)
	assert.Empty(t, e.Epochs())
	assert.Equal(t, 100*coin, e.GetBlockValue(11))
	table, err = store.Load()
	require.NoError(t, err)
	assert.Empty(t, table)
}

func TestBoundaryFailsOnUnreadableCoin(t *testing.T) {
	p := testParams(10)
	c, nodes := buildChain(t, p, 12)
	tests := []struct {
		name   string
		failAt int
		ok     bool
	}{
		{"readable set", 0, true},
		{"first entry unreadable", 1, false},
		{"last entry unreadable", 2, false},
	}
	for _, tt := range tests {
		utxo := &fakeUTXO{failAt: tt.failAt, coins: []coins.Coin{
			{Value: 1000000 * coin, Height: 5},
			{Value: 50 * coin, Height: 6},
		}}
		store := rewardsdb.NewMemory()
		e := newTestEngine(t, Config{
			Params: p,
			Chain:  c,
			Coins:  utxo,
			Open:   func() (rewardsdb.Store, error) { return store, nil },
		})
		require.NoError(t, e.Init())

		boundary := nodes[10]
		boundary.SetMoneySupply(2000000 * coin)
		err := e.ConnectBlock(boundary, 100*coin)
		if tt.ok {
			assert.NoError(t, err, tt.name)
			assert.Len(t, e.Epochs(), 1, tt.name)
			continue
		}
		if err == nil {
			t.Errorf("%s: ConnectBlock accepted a partial coin scan", tt.name)
		}
		assert.Empty(t, e.Epochs(), tt.name)
		table, err := store.Load()
		require.NoError(t, err)
		assert.Empty(t, table, tt.name)
	}
}

func TestDisconnectOnlyTouchesBoundary(t *testing.T) {
	p := testParams(10)
	_, nodes := buildChain(t, p, 25)
	store := rewardsdb.NewMemory()
	e := newTestEngine(t, Config{
		Params: p,
		Open:   func() (rewardsdb.Store, error) { return store, nil },
	})
	require.NoError(t, e.Init())

	require.NoError(t, e.ConnectBlock(nodes[5], 90*coin))
	require.NoError(t, e.ConnectBlock(nodes[15], 80*coin))
	require.NoError(t, e.ConnectBlock(nodes[25], 70*coin))

	e.DisconnectBlock(nodes[15])
	e.DisconnectBlock(nodes[21])
	assert.Len(t, e.Epochs(), 3)

	// an earlier boundary leaves the later epochs in memory and on disk
	e.DisconnectBlock(nodes[10])
	assert.Equal(t, []Epoch{{0, 90 * coin}, {20, 70 * coin}}, e.Epochs())
	table, err := store.Load()
	require.NoError(t, err)
	assert.Equal(t, map[int32]int64{0: 90 * coin, 20: 70 * coin}, table)

	e.DisconnectBlock(nodes[20])
	assert.Equal(t, []Epoch{{0, 90 * coin}}, e.Epochs())
	table, err = store.Load()
	require.NoError(t, err)
	assert.Equal(t, map[int32]int64{0: 90 * coin}, table)
}

func TestAgeWeight(t *testing.T) {
	const month = 43200
	for _, tt := range []struct {
		age  int64
		want int64
	}{
		{0, 100},
		{3 * month, 100},
		{3*month + 1, 99},
		{7*month + month/2, 50},
		{12 * month, 0},
		{24 * month, 0},
	} {
		if got := ageWeight(tt.age, month); got != tt.want {
			t.Errorf("ageWeight(%d) = %d, want %d", tt.age, got, tt.want)
		}
	}
}

func TestStakedCoinsSaturates(t *testing.T) {
	assert.Equal(t, int64(1500), stakedCoins(1, 15))
	assert.Equal(t, int64(1<<63-1), stakedCoins(1<<62, 15))
}

func rewardBlock(tx ...*wire.MsgTx) *wire.MsgBlock {
	block := wire.NewMsgBlock(&wire.BlockHeader{})
	for _, t := range tx {
		_ = block.AddTransaction(t)
	}
	return block
}

func coinbaseTx(values ...int64) *wire.MsgTx {
	tx := wire.NewMsgTx(1)
	tx.AddTxIn(wire.NewTxIn(wire.NewOutPoint(&chainhash.Hash{}, wire.MaxPrevOutIndex), []byte{0x51}, nil))
	for _, v := range values {
		tx.AddTxOut(wire.NewTxOut(v, []byte{0x76}))
	}
	return tx
}

func TestInitBackfill(t *testing.T) {
	p := testParams(10)
	c, nodes := buildChain(t, p, 31)

	funding := wire.NewMsgTx(1)
	funding.AddTxOut(wire.NewTxOut(1000*coin, []byte{0x76}))
	stake := wire.NewMsgTx(1)
	stake.AddTxIn(wire.NewTxIn(wire.NewOutPoint(ptr(funding.TxHash()), 0), nil, nil))
	stake.AddTxOut(wire.NewTxOut(0, nil))
	stake.AddTxOut(wire.NewTxOut(1032*coin, []byte{0xa9}))
	stake.AddTxOut(wire.NewTxOut(48*coin, []byte{0xac}))

	blocks := fakeBlocks{
		nodes[11].Hash(): rewardBlock(coinbaseTx(95 * coin)),
		nodes[21].Hash(): rewardBlock(coinbaseTx(0), stake),
		// nodes[31] has no data and is skipped
	}
	store := rewardsdb.NewMemory()
	require.NoError(t, store.Upsert(10, 93*coin))

	e := newTestEngine(t, Config{
		Params: p,
		Chain:  c,
		Blocks: blocks,
		Txs:    fakeTxs{funding.TxHash(): funding},
		Open:   func() (rewardsdb.Store, error) { return store, nil },
	})
	require.NoError(t, e.Init())

	assert.Equal(t, []Epoch{{10, 93 * coin}, {20, 80 * coin}}, e.Epochs())
	table, err := store.Load()
	require.NoError(t, err)
	assert.Equal(t, map[int32]int64{10: 93 * coin, 20: 80 * coin}, table)

	// a second Init is a no-op
	require.NoError(t, e.Init())
}

func ptr(h chainhash.Hash) *chainhash.Hash { return &h }

func TestInitRetriesOpen(t *testing.T) {
	var attempts, sleeps int
	e := newTestEngine(t, Config{
		Params: testParams(10),
		Open: func() (rewardsdb.Store, error) {
			attempts++
			if attempts < 3 {
				return nil, errors.New("locked")
			}
			return rewardsdb.NewMemory(), nil
		},
	})
	e.sleep = func(d time.Duration) {
		assert.Equal(t, DefaultOpenWait, d)
		sleeps++
	}
	require.NoError(t, e.Init())
	assert.Equal(t, 3, attempts)
	assert.Equal(t, 2, sleeps)
	assert.False(t, e.Degraded())
}

func TestInitFailureDegrades(t *testing.T) {
	p := testParams(10)
	_, nodes := buildChain(t, p, 12)
	var attempts int
	e := newTestEngine(t, Config{
		Params: p,
		Open: func() (rewardsdb.Store, error) {
			attempts++
			return nil, errors.New("locked")
		},
	})
	assert.Error(t, e.Init())
	assert.Equal(t, DefaultOpenAttempts, attempts)
	assert.True(t, e.Degraded())

	// memory-only operation keeps working and does not retry the store
	require.NoError(t, e.ConnectBlock(nodes[12], 90*coin))
	assert.Equal(t, 90*coin, e.GetBlockValue(12))
	assert.Equal(t, DefaultOpenAttempts, attempts)
}

func TestConnectLogsLazyInitFailure(t *testing.T) {
	p := testParams(10)
	_, nodes := buildChain(t, p, 12)

	var buf bytes.Buffer
	logger, err := log.New(log.Config{Verbosity: 3, Output: &buf})
	require.NoError(t, err)
	e := newTestEngine(t, Config{
		Params: p,
		Log:    logger,
		Open:   func() (rewardsdb.Store, error) { return nil, errors.New("locked") },
	})

	require.NoError(t, e.ConnectBlock(nodes[12], 90*coin))
	assert.True(t, e.Degraded())
	assert.Equal(t, 90*coin, e.GetBlockValue(12))
	assert.Contains(t, buf.String(), "Connecting block without durable rewards store")
	assert.Contains(t, buf.String(), "height=12")
}

func TestStoreWriteFailureDegrades(t *testing.T) {
	p := testParams(10)
	_, nodes := buildChain(t, p, 12)
	m := metrics.New()
	e := newTestEngine(t, Config{
		Params:  p,
		Open:    func() (rewardsdb.Store, error) { return failingStore{rewardsdb.NewMemory()}, nil },
		Metrics: m,
	})
	require.NoError(t, e.Init())

	require.NoError(t, e.ConnectBlock(nodes[12], 90*coin))
	assert.True(t, e.Degraded())
	assert.Equal(t, float64(1), testutil.ToFloat64(m.RewardsStoreErrors))
	assert.Equal(t, 90*coin, e.GetBlockValue(12))
	require.NoError(t, e.Shutdown())
}

func TestReindexWipes(t *testing.T) {
	var wiped bool
	e := newTestEngine(t, Config{
		Params:  testParams(10),
		Reindex: true,
		Wipe:    func() error { wiped = true; return nil },
	})
	require.NoError(t, e.Init())
	assert.True(t, wiped)
}

func TestStatus(t *testing.T) {
	p := testParams(10)
	c, nodes := buildChain(t, p, 30)
	nodes[30].SetMoneySupply(5000 * coin)
	e := newTestEngine(t, Config{Params: p, Chain: c})
	require.NoError(t, e.Init())

	st, err := e.Status()
	require.NoError(t, err)
	assert.Equal(t, int32(30), st.Height)
	assert.Equal(t, 5000*coin, st.MoneySupply)
	assert.Equal(t, BaseSubsidy, st.BlockValue)
	assert.Equal(t, 60*coin, st.MasternodeReward)
	assert.Equal(t, 40*coin, st.StakeReward)
	assert.Equal(t, p.BlocksPerDay(), st.BlocksPerDay)
	assert.Equal(t, 100*coin, st.MasternodeCollateral)

	_, err = newTestEngine(t, Config{Params: p, Chain: chain.NewChain()}).Status()
	assert.ErrorIs(t, err, ErrNoChain)
}

func TestFormatMoney(t *testing.T) {
	assert.Equal(t, "91.00000000", FormatMoney(91*coin))
	assert.Equal(t, "-0.50000000", FormatMoney(-coin/2))
	assert.Equal(t, "0.00000001", FormatMoney(1))
}
