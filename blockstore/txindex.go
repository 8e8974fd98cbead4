package blockstore

import (
	"fmt"

	"github.com/btcsuite/btcd/chaincfg/chainhash"
	"github.com/btcsuite/btcd/wire"
	"github.com/ethereum/go-ethereum/rlp"
)

var prefixTx = []byte("t")

type txLocation struct {
	Block   [chainhash.HashSize]byte
	File    uint32
	DataPos uint32
	Index   uint32
}

func txKey(hash chainhash.Hash) []byte {
	return append(append([]byte{}, prefixTx...), hash[:]...)
}

// IndexTransactions maps every transaction of block to the block's position.
func (s *Store) IndexTransactions(block *wire.MsgBlock, file int32, dataPos uint32) error {
	blockHash := block.BlockHash()
	batch := s.db.NewBatch()
	for i, tx := range block.Transactions {
		data, err := rlp.EncodeToBytes(&txLocation{
			Block:   blockHash,
			File:    uint32(file),
			DataPos: dataPos,
			Index:   uint32(i),
		})
		if err != nil {
			return err
		}
		if err := batch.Put(txKey(tx.TxHash()), data); err != nil {
			return err
		}
	}
	return batch.Write()
}

// UnindexTransactions drops the index entries of block.
func (s *Store) UnindexTransactions(block *wire.MsgBlock) error {
	batch := s.db.NewBatch()
	for _, tx := range block.Transactions {
		if err := batch.Delete(txKey(tx.TxHash())); err != nil {
			return err
		}
	}
	return batch.Write()
}

// GetTransaction returns an indexed transaction from the active chain.
func (s *Store) GetTransaction(hash chainhash.Hash) (*wire.MsgTx, error) {
	tx, _, err := s.LookupTransaction(hash)
	return tx, err
}

// LookupTransaction returns an indexed transaction and its block hash.
func (s *Store) LookupTransaction(hash chainhash.Hash) (*wire.MsgTx, chainhash.Hash, error) {
	data, err := s.db.Get(txKey(hash))
	if err != nil {
		return nil, chainhash.Hash{}, fmt.Errorf("%w: %s", ErrTxNotFound, hash)
	}
	var loc txLocation
	if err := rlp.DecodeBytes(data, &loc); err != nil {
		return nil, chainhash.Hash{}, fmt.Errorf("decode tx location %s: %w", hash, err)
	}
	block, err := s.ReadBlockAt(int32(loc.File), loc.DataPos)
	if err != nil {
		return nil, chainhash.Hash{}, err
	}
	if int(loc.Index) >= len(block.Transactions) || block.Transactions[loc.Index].TxHash() != hash {
		return nil, chainhash.Hash{}, fmt.Errorf("%w: %s", ErrHashMismatch, hash)
	}
	return block.Transactions[loc.Index], loc.Block, nil
}

// TxCount returns the number of indexed transactions. It walks the index and
// is meant for status output.
func (s *Store) TxCount() uint64 {
	it := s.db.NewIterator(prefixTx, nil)
	defer it.Release()
	var n uint64
	for it.Next() {
		n++
	}
	return n
}
