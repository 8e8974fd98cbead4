// Package inter defines the block and transaction helpers shared by the
// consensus packages. Blocks use the Bitcoin wire format (btcd wire), with two
// extra conventions layered on top:
//
//   - Proof-of-work blocks carry their reward in the coinbase (tx 0).
//   - Proof-of-stake blocks carry an empty-output coinbase (tx 0) followed by a
//     coinstake (tx 1) that spends the staked output and pays the reward.
//
// Usage:
//
//	if inter.IsProofOfStake(block) {
//	    stake := block.Transactions[1].TxIn[0].PreviousOutPoint
//	}
//	reward := inter.RewardTx(block)
//	payee := inter.PaidPayee(block, masternodePayment)
package inter

import (
	"github.com/btcsuite/btcd/blockchain"
	"github.com/btcsuite/btcd/btcutil"
	"github.com/btcsuite/btcd/chaincfg/chainhash"
	"github.com/btcsuite/btcd/wire"
)

// IsCoinBase reports whether tx is a coinbase: a single input spending the
// null outpoint.
func IsCoinBase(tx *wire.MsgTx) bool {
	return blockchain.IsCoinBaseTx(tx)
}

// IsEmptyOutput reports whether out is the zero-value, empty-script marker
// that opens a coinstake.
func IsEmptyOutput(out *wire.TxOut) bool {
	return out.Value == 0 && len(out.PkScript) == 0
}

// IsCoinStake reports whether tx is a coinstake: it spends real inputs, has
// at least two outputs, and its first output is the empty marker.
//
// The marker output is what distinguishes a coinstake from a regular payment
// that happens to sit in position 1 of a block.
func IsCoinStake(tx *wire.MsgTx) bool {
	if len(tx.TxIn) == 0 || IsCoinBase(tx) {
		return false
	}
	if len(tx.TxOut) < 2 {
		return false
	}
	return IsEmptyOutput(tx.TxOut[0])
}

// IsProofOfStake reports whether the block was minted by a coinstake.
func IsProofOfStake(block *wire.MsgBlock) bool {
	return len(block.Transactions) > 1 && IsCoinStake(block.Transactions[1])
}

// IsProofOfWork is the complement of IsProofOfStake.
func IsProofOfWork(block *wire.MsgBlock) bool {
	return !IsProofOfStake(block)
}

// RewardTx returns the transaction that pays the block reward: the coinbase
// for PoW blocks, the coinstake for PoS blocks. It returns nil for a block
// without the required transactions.
func RewardTx(block *wire.MsgBlock) *wire.MsgTx {
	i := 0
	if IsProofOfStake(block) {
		i = 1
	}
	if i >= len(block.Transactions) {
		return nil
	}
	return block.Transactions[i]
}

// ValueOut sums the output values of tx.
func ValueOut(tx *wire.MsgTx) int64 {
	var total int64
	for _, out := range tx.TxOut {
		total += out.Value
	}
	return total
}

// PaidPayee returns the script of the reward output carrying amount. The
// outputs are scanned from the last one, since the masternode payment is
// appended after the staker's outputs. When no output matches, the last
// output's script is returned; nil means the block has no reward outputs.
func PaidPayee(block *wire.MsgBlock, amount int64) []byte {
	tx := RewardTx(block)
	if tx == nil || len(tx.TxOut) == 0 {
		return nil
	}
	for i := len(tx.TxOut) - 1; i >= 0; i-- {
		if tx.TxOut[i].Value == amount {
			return tx.TxOut[i].PkScript
		}
	}
	return tx.TxOut[len(tx.TxOut)-1].PkScript
}

// MerkleRoot computes the transaction merkle root of block.
func MerkleRoot(block *wire.MsgBlock) chainhash.Hash {
	txs := make([]*btcutil.Tx, len(block.Transactions))
	for i, tx := range block.Transactions {
		txs[i] = btcutil.NewTx(tx)
	}
	return blockchain.CalcMerkleRoot(txs, false)
}
