package integration

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/btcsuite/btcd/chaincfg/chainhash"
	"github.com/btcsuite/btcd/wire"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/concordia-cash/go-concordia/inter"
	"github.com/concordia-cash/go-concordia/log"
	"github.com/concordia-cash/go-concordia/params"
	"github.com/concordia-cash/go-concordia/rewards/rewardsdb"
)

func testNodeConfig(dir string, preset PresetConfig) NodeConfig {
	p := params.RegTestParams()
	now := p.GenesisBlock.Header.Timestamp.Add(30 * 24 * time.Hour)
	return NodeConfig{
		DataDir: dir,
		Params:  p,
		Preset:  preset,
		Log:     log.Discard(),
		Now:     func() time.Time { return now },
	}
}

// mineBlocks extends the active tip by count blocks paying to OP_TRUE.
func mineBlocks(t *testing.T, n *Node, count int) []*wire.MsgBlock {
	t.Helper()
	var out []*wire.MsgBlock
	for i := 0; i < count; i++ {
		tip := n.Chain.Tip()
		height := tip.Height() + 1

		cb := wire.NewMsgTx(1)
		cb.AddTxIn(wire.NewTxIn(wire.NewOutPoint(&chainhash.Hash{}, wire.MaxPrevOutIndex),
			[]byte{0x04, byte(height), byte(height >> 8), byte(height >> 16), byte(height >> 24)}, nil))
		cb.AddTxOut(wire.NewTxOut(10*params.COIN, []byte{0x51}))

		block := wire.NewMsgBlock(&wire.BlockHeader{
			Version:   1,
			PrevBlock: tip.Hash(),
			Timestamp: time.Unix(tip.Timestamp()+60, 0),
			Bits:      n.Params.PowLimitBits,
		})
		require.NoError(t, block.AddTransaction(cb))
		block.Header.MerkleRoot = inter.MerkleRoot(block)
		require.NoError(t, n.Chain.AcceptBlock(block))
		out = append(out, block)
	}
	return out
}

func TestChainDir(t *testing.T) {
	assert.Equal(t, "/data", ChainDir("/data", params.MainNetParams()))
	assert.Equal(t, filepath.Join("/data", "regtest"), ChainDir("/data", params.RegTestParams()))
	assert.Equal(t, filepath.Join("/data", "test"), ChainDir("/data", params.TestNetParams()))
}

func TestMakeNodeRejectsMissingParams(t *testing.T) {
	_, err := MakeNode(NodeConfig{DataDir: t.TempDir()})
	require.Error(t, err)
}

func TestNodeRestart(t *testing.T) {
	for _, preset := range []PresetConfig{DefaultPreset(), LitePreset()} {
		preset := preset
		t.Run(preset.Name, func(t *testing.T) {
			dir := t.TempDir()
			cfg := testNodeConfig(dir, preset)

			n, err := MakeNode(cfg)
			require.NoError(t, err)
			assert.Equal(t, int32(0), n.Chain.Height())
			mined := mineBlocks(t, n, 5)
			tipHash := n.Chain.Tip().Hash()
			require.NoError(t, n.Close())

			chainDir := ChainDir(dir, cfg.Params)
			for _, path := range []string{
				filepath.Join(chainDir, "blocks", "index"),
				filepath.Join(chainDir, "chainstate"),
				rewardsdb.Path(preset.RewardsDB, chainDir),
			} {
				_, err := os.Stat(path)
				assert.NoError(t, err, path)
			}

			n, err = MakeNode(cfg)
			require.NoError(t, err)
			assert.Equal(t, int32(5), n.Chain.Height())
			assert.Equal(t, tipHash, n.Chain.Tip().Hash())

			block, err := n.Blocks.ReadBlock(n.Chain.Tip())
			require.NoError(t, err)
			assert.Equal(t, mined[4].BlockHash(), block.BlockHash())

			mineBlocks(t, n, 2)
			assert.Equal(t, int32(7), n.Chain.Height())
			require.NoError(t, n.Close())
		})
	}
}

func TestNodeReindex(t *testing.T) {
	dir := t.TempDir()
	cfg := testNodeConfig(dir, LitePreset())

	n, err := MakeNode(cfg)
	require.NoError(t, err)
	mined := mineBlocks(t, n, 4)
	require.NoError(t, n.Close())

	cfg.Reindex = true
	n, err = MakeNode(cfg)
	require.NoError(t, err)
	defer n.Close()

	assert.Equal(t, int32(4), n.Chain.Height())
	assert.Equal(t, mined[3].BlockHash(), n.Chain.Tip().Hash())
	assert.Equal(t, cfg.Params.GenesisHash, n.Chain.Locator()[len(n.Chain.Locator())-1])

	c, err := n.Coins.Get(wire.OutPoint{Hash: mined[0].Transactions[0].TxHash(), Index: 0})
	require.NoError(t, err)
	require.NotNil(t, c)
	assert.Equal(t, int32(1), c.Height)
}
