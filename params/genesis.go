package params

import (
	"time"

	"github.com/btcsuite/btcd/btcutil"
	"github.com/btcsuite/btcd/blockchain"
	"github.com/btcsuite/btcd/chaincfg/chainhash"
	"github.com/btcsuite/btcd/wire"
)

// genesisOutputScript is an unspendable OP_RETURN marker; genesis outputs are
// never added to the coins set.
var genesisOutputScript = []byte{0x6a}

// genesisBlock builds the single-coinbase genesis block of a network.
func genesisBlock(timestamp int64, bits, nonce uint32, message string) *wire.MsgBlock {
	coinbase := wire.NewMsgTx(1)
	sigScript := append([]byte{0x04, 0xff, 0xff, 0x00, 0x1d, 0x01, 0x04, byte(len(message))}, []byte(message)...)
	coinbase.AddTxIn(wire.NewTxIn(wire.NewOutPoint(&chainhash.Hash{}, wire.MaxPrevOutIndex), sigScript, nil))
	coinbase.AddTxOut(wire.NewTxOut(0, genesisOutputScript))

	merkle := blockchain.CalcMerkleRoot([]*btcutil.Tx{btcutil.NewTx(coinbase)}, false)

	block := wire.NewMsgBlock(&wire.BlockHeader{
		Version:    1,
		PrevBlock:  chainhash.Hash{},
		MerkleRoot: merkle,
		Timestamp:  time.Unix(timestamp, 0),
		Bits:       bits,
		Nonce:      nonce,
	})
	if err := block.AddTransaction(coinbase); err != nil {
		panic(err)
	}
	return block
}
