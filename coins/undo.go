package coins

import (
	"fmt"

	"github.com/btcsuite/btcd/chaincfg/chainhash"
	"github.com/btcsuite/btcd/wire"
	"github.com/ethereum/go-ethereum/rlp"
)

// SpentCoin is a coin consumed by a block, kept to revert it.
type SpentCoin struct {
	// TxIndex is the position of the spending transaction in the block.
	TxIndex  uint32
	OutPoint wire.OutPoint
	Coin     *Coin
}

// BlockUndo lists the coins a block spent, in spending order. Entries of one
// transaction are contiguous.
type BlockUndo struct {
	Spent []SpentCoin
}

type undoEntry struct {
	TxIndex uint32
	Hash    [chainhash.HashSize]byte
	Index uint32
	Coin  coinRecord
}

func undoKey(hash chainhash.Hash) []byte {
	return append(append([]byte{}, prefixUndo...), hash[:]...)
}

// WriteUndo stores the undo data of block hash.
func (v *View) WriteUndo(hash chainhash.Hash, undo *BlockUndo) error {
	if v.parent != nil {
		return ErrNotRoot
	}
	entries := make([]undoEntry, len(undo.Spent))
	for i, s := range undo.Spent {
		entries[i] = undoEntry{TxIndex: s.TxIndex, Hash: s.OutPoint.Hash, Index: s.OutPoint.Index, Coin: s.Coin.record()}
	}
	data, err := rlp.EncodeToBytes(entries)
	if err != nil {
		return fmt.Errorf("encode undo %s: %w", hash, err)
	}
	return v.db.Put(undoKey(hash), data)
}

// ReadUndo loads the undo data of block hash.
func (v *View) ReadUndo(hash chainhash.Hash) (*BlockUndo, error) {
	if v.parent != nil {
		return v.parent.ReadUndo(hash)
	}
	data, err := v.db.Get(undoKey(hash))
	if err != nil {
		return nil, fmt.Errorf("undo data for %s: %w", hash, err)
	}
	var entries []undoEntry
	if err := rlp.DecodeBytes(data, &entries); err != nil {
		return nil, fmt.Errorf("decode undo %s: %w", hash, err)
	}
	undo := &BlockUndo{Spent: make([]SpentCoin, len(entries))}
	for i := range entries {
		undo.Spent[i] = SpentCoin{
			TxIndex:  entries[i].TxIndex,
			OutPoint: wire.OutPoint{Hash: entries[i].Hash, Index: entries[i].Index},
			Coin:     entries[i].Coin.coin(),
		}
	}
	return undo, nil
}
