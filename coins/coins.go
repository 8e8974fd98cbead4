// Package coins holds the unspent transaction output set.
//
// The set lives in a go-ethereum key-value store. A View caches changes in
// memory; child views stage the changes of one block so that a failed
// connection can be dropped without touching the parent. The root view is
// written to the database by Flush.
//
// Views are not safe for concurrent use. The chain state serializes access
// under its own lock.
package coins

import (
	"errors"
	"fmt"

	"github.com/Fantom-foundation/lachesis-base/common/bigendian"
	"github.com/btcsuite/btcd/chaincfg/chainhash"
	"github.com/btcsuite/btcd/txscript"
	"github.com/btcsuite/btcd/wire"
	"github.com/ethereum/go-ethereum/ethdb"
	"github.com/ethereum/go-ethereum/rlp"

	"github.com/concordia-cash/go-concordia/inter"
)

var (
	// ErrMissingCoin is returned when spending an unknown or spent output.
	ErrMissingCoin = errors.New("missing or spent output")
	// ErrNotRoot is returned by operations reserved for the database view.
	ErrNotRoot = errors.New("operation requires the root view")
	// ErrRootCommit is returned when committing the root view.
	ErrRootCommit = errors.New("root view has no parent to commit to")
	// ErrBadUndo is returned when undo data does not match its block.
	ErrBadUndo = errors.New("undo data does not match block")
	// ErrCorruptCoin is reported by a cursor that meets an unreadable entry.
	ErrCorruptCoin = errors.New("corrupt coin entry")
)

// Key prefixes inside the coins database.
var (
	prefixCoin = []byte("c")
	prefixUndo = []byte("u")
	keyBest    = []byte("B")
)

// Coin is one unspent output together with its creation context.
type Coin struct {
	Value     int64
	PkScript  []byte
	Height    int32
	CoinBase  bool
	CoinStake bool
}

// IsReward reports whether the coin was minted by a coinbase or coinstake.
func (c *Coin) IsReward() bool { return c.CoinBase || c.CoinStake }

const (
	flagCoinBase uint8 = 1 << iota
	flagCoinStake
)

type coinRecord struct {
	Value    uint64
	PkScript []byte
	Height   uint32
	Flags    uint8
}

func (c *Coin) record() coinRecord {
	rec := coinRecord{Value: uint64(c.Value), PkScript: c.PkScript, Height: uint32(c.Height)}
	if c.CoinBase {
		rec.Flags |= flagCoinBase
	}
	if c.CoinStake {
		rec.Flags |= flagCoinStake
	}
	return rec
}

func (rec *coinRecord) coin() *Coin {
	return &Coin{
		Value:     int64(rec.Value),
		PkScript:  rec.PkScript,
		Height:    int32(rec.Height),
		CoinBase:  rec.Flags&flagCoinBase != 0,
		CoinStake: rec.Flags&flagCoinStake != 0,
	}
}

func coinKey(op wire.OutPoint) []byte {
	key := make([]byte, 0, len(prefixCoin)+chainhash.HashSize+4)
	key = append(key, prefixCoin...)
	key = append(key, op.Hash[:]...)
	return append(key, bigendian.Uint32ToBytes(op.Index)...)
}

func outPointFromKey(key []byte) (wire.OutPoint, bool) {
	var op wire.OutPoint
	if len(key) != len(prefixCoin)+chainhash.HashSize+4 {
		return op, false
	}
	copy(op.Hash[:], key[len(prefixCoin):len(prefixCoin)+chainhash.HashSize])
	op.Index = bigendian.BytesToUint32(key[len(prefixCoin)+chainhash.HashSize:])
	return op, true
}

// entry is a cached coin. A nil coin is a tombstone for a spent output.
type entry struct {
	coin *Coin
}

// View is a cached layer over the coins database or over a parent view.
type View struct {
	parent *View
	db     ethdb.KeyValueStore

	cache map[wire.OutPoint]entry
	best  *chainhash.Hash

	// parent state replaced by the last Commit
	replaced     map[wire.OutPoint]*entry
	replacedBest *chainhash.Hash
}

// NewView returns the root view over db.
func NewView(db ethdb.KeyValueStore) *View {
	return &View{db: db, cache: make(map[wire.OutPoint]entry)}
}

// Child returns a view staging changes on top of v.
func (v *View) Child() *View {
	return &View{parent: v, cache: make(map[wire.OutPoint]entry)}
}

// Get returns the unspent coin at op, or nil.
func (v *View) Get(op wire.OutPoint) (*Coin, error) {
	if e, ok := v.cache[op]; ok {
		return e.coin, nil
	}
	if v.parent != nil {
		return v.parent.Get(op)
	}

	data, err := v.db.Get(coinKey(op))
	if err != nil {
		if ok, _ := v.db.Has(coinKey(op)); !ok {
			return nil, nil
		}
		return nil, fmt.Errorf("read coin %s: %w", op, err)
	}
	var rec coinRecord
	if err := rlp.DecodeBytes(data, &rec); err != nil {
		return nil, fmt.Errorf("decode coin %s: %w", op, err)
	}
	return rec.coin(), nil
}

// Add records an unspent output.
func (v *View) Add(op wire.OutPoint, coin *Coin) {
	v.cache[op] = entry{coin: coin}
}

// Spend removes the coin at op and returns it.
func (v *View) Spend(op wire.OutPoint) (*Coin, error) {
	coin, err := v.Get(op)
	if err != nil {
		return nil, err
	}
	if coin == nil {
		return nil, fmt.Errorf("%w: %s", ErrMissingCoin, op)
	}
	v.cache[op] = entry{}
	return coin, nil
}

// SetBestBlock records the block the set reflects.
func (v *View) SetBestBlock(hash chainhash.Hash) {
	v.best = &hash
}

// BestBlock returns the block the set reflects. ok is false for a fresh set.
func (v *View) BestBlock() (hash chainhash.Hash, ok bool, err error) {
	if v.best != nil {
		return *v.best, true, nil
	}
	if v.parent != nil {
		return v.parent.BestBlock()
	}
	data, err := v.db.Get(keyBest)
	if err != nil {
		if has, _ := v.db.Has(keyBest); !has {
			return hash, false, nil
		}
		return hash, false, err
	}
	copy(hash[:], data)
	return hash, true, nil
}

// Commit moves the staged changes of a child view into its parent.
func (v *View) Commit() error {
	if v.parent == nil {
		return ErrRootCommit
	}
	v.replaced = make(map[wire.OutPoint]*entry, len(v.cache))
	for op, e := range v.cache {
		if prior, ok := v.parent.cache[op]; ok {
			v.replaced[op] = &prior
		} else {
			v.replaced[op] = nil
		}
		v.parent.cache[op] = e
	}
	v.replacedBest = v.parent.best
	if v.best != nil {
		v.parent.best = v.best
	}
	v.cache = make(map[wire.OutPoint]entry)
	v.best = nil
	return nil
}

// Revert undoes the last Commit on the parent. It is only meaningful while
// the parent has not been flushed since.
func (v *View) Revert() {
	if v.parent == nil || v.replaced == nil {
		return
	}
	for op, prior := range v.replaced {
		if prior == nil {
			delete(v.parent.cache, op)
			continue
		}
		v.parent.cache[op] = *prior
	}
	v.parent.best = v.replacedBest
	v.replaced = nil
	v.replacedBest = nil
}

// Flush writes the cached changes of the root view to the database.
func (v *View) Flush() error {
	if v.parent != nil {
		return ErrNotRoot
	}

	batch := v.db.NewBatch()
	for op, e := range v.cache {
		if e.coin == nil {
			if err := batch.Delete(coinKey(op)); err != nil {
				return err
			}
			continue
		}
		data, err := rlp.EncodeToBytes(e.coin.record())
		if err != nil {
			return fmt.Errorf("encode coin %s: %w", op, err)
		}
		if err := batch.Put(coinKey(op), data); err != nil {
			return err
		}
	}
	if v.best != nil {
		if err := batch.Put(keyBest, v.best[:]); err != nil {
			return err
		}
	}
	if err := batch.Write(); err != nil {
		return fmt.Errorf("flush coins: %w", err)
	}

	v.cache = make(map[wire.OutPoint]entry)
	v.best = nil
	return nil
}

// Dirty returns the number of cached changes.
func (v *View) Dirty() int { return len(v.cache) }

// isUnspendable reports outputs that never enter the set: the empty coinstake
// marker and OP_RETURN data carriers.
func isUnspendable(out *wire.TxOut) bool {
	if inter.IsEmptyOutput(out) {
		return true
	}
	return len(out.PkScript) > 0 && out.PkScript[0] == txscript.OP_RETURN
}

// AddOutputs adds the spendable outputs of tx, created at height.
func (v *View) AddOutputs(tx *wire.MsgTx, height int32) {
	hash := tx.TxHash()
	coinBase, coinStake := inter.IsCoinBase(tx), inter.IsCoinStake(tx)
	for i, out := range tx.TxOut {
		if isUnspendable(out) {
			continue
		}
		v.Add(wire.OutPoint{Hash: hash, Index: uint32(i)}, &Coin{
			Value:     out.Value,
			PkScript:  out.PkScript,
			Height:    height,
			CoinBase:  coinBase,
			CoinStake: coinStake,
		})
	}
}

// SpendInputs spends every input of tx, the txIndex-th transaction of its
// block, and records the spent coins in undo. Coinbase transactions have no
// real inputs and spend nothing.
func (v *View) SpendInputs(tx *wire.MsgTx, txIndex int, undo *BlockUndo) ([]*Coin, error) {
	if inter.IsCoinBase(tx) {
		return nil, nil
	}
	spent := make([]*Coin, 0, len(tx.TxIn))
	for _, in := range tx.TxIn {
		coin, err := v.Spend(in.PreviousOutPoint)
		if err != nil {
			return nil, err
		}
		undo.Spent = append(undo.Spent, SpentCoin{
			TxIndex:  uint32(txIndex),
			OutPoint: in.PreviousOutPoint,
			Coin:     coin,
		})
		spent = append(spent, coin)
	}
	return spent, nil
}

// DisconnectBlock reverts block. Transactions are undone last to first: the
// outputs of a transaction are removed before the coins it spent are
// restored, so an output spent later in the same block stays spent.
func (v *View) DisconnectBlock(block *wire.MsgBlock, undo *BlockUndo) error {
	next := len(undo.Spent) - 1
	for i := len(block.Transactions) - 1; i >= 0; i-- {
		tx := block.Transactions[i]
		hash := tx.TxHash()
		for n, out := range tx.TxOut {
			if isUnspendable(out) {
				continue
			}
			v.cache[wire.OutPoint{Hash: hash, Index: uint32(n)}] = entry{}
		}
		for ; next >= 0 && undo.Spent[next].TxIndex == uint32(i); next-- {
			v.Add(undo.Spent[next].OutPoint, undo.Spent[next].Coin)
		}
	}
	if next >= 0 {
		return fmt.Errorf("%w: %d undo entries left after block %s", ErrBadUndo, next+1, block.BlockHash())
	}
	return nil
}
