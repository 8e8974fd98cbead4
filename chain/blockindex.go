package chain

import (
	"encoding/binary"
	"fmt"
	"math/bits"
	"sort"
	"time"

	"github.com/btcsuite/btcd/chaincfg/chainhash"
	"github.com/btcsuite/btcd/wire"
	"github.com/holiman/uint256"

	"github.com/concordia-cash/go-concordia/params"
	"github.com/concordia-cash/go-concordia/pow"
)

// NodeID addresses a BlockIndex inside its Index arena.
type NodeID int32

// NoNode is the null NodeID.
const NoNode NodeID = -1

// medianTimeSpan is the number of blocks sampled by MedianTimePast.
const medianTimeSpan = 11

// BlockIndex is one header in the block tree.
//
// Immutable header fields are set once at insertion. The status, money
// supply, stake modifier and disk position are mutated by chain-state code,
// which serializes those writes under its own lock.
type BlockIndex struct {
	arena *Index
	id    NodeID

	parent NodeID
	// skip[k] is the ancestor 2^k blocks below this one.
	skip []NodeID

	hash       chainhash.Hash
	height     int32
	version    int32
	merkleRoot chainhash.Hash
	time       int64
	bits       uint32
	nonce      uint32

	chainWork *uint256.Int

	status         BlockStatus
	proofOfStake   bool
	stakeModifier  *chainhash.Hash
	moneySupply    int64
	hasMoneySupply bool
	file           int32
	dataPos        uint32
}

// ID returns the arena id of the node.
func (b *BlockIndex) ID() NodeID { return b.id }

// Hash returns the block hash.
func (b *BlockIndex) Hash() chainhash.Hash { return b.hash }

// Height returns the block height. Genesis is 0.
func (b *BlockIndex) Height() int32 { return b.height }

// Bits returns the compact target the block claims.
func (b *BlockIndex) Bits() uint32 { return b.bits }

// Timestamp returns the block time in unix seconds.
func (b *BlockIndex) Timestamp() int64 { return b.time }

// ChainWork returns a copy of the cumulative work up to and including this block.
func (b *BlockIndex) ChainWork() *uint256.Int { return new(uint256.Int).Set(b.chainWork) }

// Status returns the validity/storage bitmask.
func (b *BlockIndex) Status() BlockStatus { return b.status }

// IsProofOfStake reports whether the block was minted by a coinstake.
func (b *BlockIndex) IsProofOfStake() bool { return b.proofOfStake }

// SetProofOfStake flags the block as proof-of-stake.
func (b *BlockIndex) SetProofOfStake() { b.proofOfStake = true }

// Prev returns the parent node, or nil for genesis.
func (b *BlockIndex) Prev() *BlockIndex {
	if b.parent == NoNode {
		return nil
	}
	return b.arena.Node(b.parent)
}

// Parent implements pow.HeaderCtx.
func (b *BlockIndex) Parent() pow.HeaderCtx {
	if prev := b.Prev(); prev != nil {
		return prev
	}
	return nil
}

// RelativeAncestorCtx implements pow.HeaderCtx.
func (b *BlockIndex) RelativeAncestorCtx(distance int32) pow.HeaderCtx {
	if ancestor := b.Ancestor(b.height - distance); ancestor != nil {
		return ancestor
	}
	return nil
}

// Ancestor returns the ancestor at height, or nil when height is outside
// [0, b.Height()]. Each hop at least halves the remaining distance.
func (b *BlockIndex) Ancestor(height int32) *BlockIndex {
	if height < 0 || height > b.height {
		return nil
	}

	b.arena.mu.RLock()
	defer b.arena.mu.RUnlock()

	cur := b
	for cur.height > height {
		k := bits.Len32(uint32(cur.height-height)) - 1
		cur = b.arena.nodes[cur.skip[k]]
	}
	return cur
}

// buildSkip fills the skip table from the parent's table. The caller holds
// the arena write lock.
func (b *BlockIndex) buildSkip(nodes []*BlockIndex) {
	if b.parent == NoNode {
		return
	}
	b.skip = make([]NodeID, bits.Len32(uint32(b.height)))
	b.skip[0] = b.parent
	for k := 1; k < len(b.skip); k++ {
		b.skip[k] = nodes[b.skip[k-1]].skip[k-1]
	}
}

// Header reconstructs the wire header of the block.
func (b *BlockIndex) Header() wire.BlockHeader {
	header := wire.BlockHeader{
		Version:    b.version,
		MerkleRoot: b.merkleRoot,
		Timestamp:  time.Unix(b.time, 0),
		Bits:       b.bits,
		Nonce:      b.nonce,
	}
	if prev := b.Prev(); prev != nil {
		header.PrevBlock = prev.hash
	}
	return header
}

// IsValid reports whether the node reached level and never failed. level
// must only contain validity bits.
func (b *BlockIndex) IsValid(level BlockStatus) bool {
	checkValidityLevel(level)
	if b.status&StatusFailedMask != 0 {
		return false
	}
	return b.status&StatusValidMask >= level
}

// RaiseValidity lifts the validity level to level. It reports false when the
// node already reached it or has failed.
func (b *BlockIndex) RaiseValidity(level BlockStatus) bool {
	checkValidityLevel(level)
	if b.status&StatusFailedMask != 0 {
		return false
	}
	if b.status&StatusValidMask < level {
		b.status = (b.status &^ StatusValidMask) | level
		return true
	}
	return false
}

// MarkFailed permanently blocks validity raises. child selects
// StatusFailedChild instead of StatusFailedValid.
func (b *BlockIndex) MarkFailed(child bool) {
	if child {
		b.status |= StatusFailedChild
		return
	}
	b.status |= StatusFailedValid
}

// HaveData reports whether the block body is stored.
func (b *BlockIndex) HaveData() bool { return b.status&StatusHaveData != 0 }

// HaveUndo reports whether undo data for the block is stored.
func (b *BlockIndex) HaveUndo() bool { return b.status&StatusHaveUndo != 0 }

// SetHaveUndo flags the block's undo data as stored.
func (b *BlockIndex) SetHaveUndo() { b.status |= StatusHaveUndo }

// RestoreStatus overwrites the status with a value loaded from disk.
func (b *BlockIndex) RestoreStatus(status BlockStatus) { b.status = status }

// SetDiskPos records where the block body lives and flags it as stored.
func (b *BlockIndex) SetDiskPos(file int32, dataPos uint32) {
	b.file = file
	b.dataPos = dataPos
	b.status |= StatusHaveData
}

// DiskPos returns the stored block position. ok is false without data.
func (b *BlockIndex) DiskPos() (file int32, dataPos uint32, ok bool) {
	if !b.HaveData() {
		return 0, 0, false
	}
	return b.file, b.dataPos, true
}

// MoneySupply returns the total coins issued up to this block. ok is false
// until the block has been connected.
func (b *BlockIndex) MoneySupply() (supply int64, ok bool) {
	return b.moneySupply, b.hasMoneySupply
}

// SetMoneySupply records the money supply after connecting this block.
func (b *BlockIndex) SetMoneySupply(supply int64) {
	b.moneySupply = supply
	b.hasMoneySupply = true
}

// MedianTimePast is the median of the timestamps of this block and its ten
// predecessors (fewer near genesis).
func (b *BlockIndex) MedianTimePast() int64 {
	times := make([]int64, 0, medianTimeSpan)
	for cur := b; cur != nil && len(times) < medianTimeSpan; cur = cur.Prev() {
		times = append(times, cur.time)
	}
	sort.Slice(times, func(i, j int) bool { return times[i] < times[j] })
	return times[len(times)/2]
}

// MinPastBlockTime is the timestamp the next block must exceed. PoW blocks
// are bounded by the median time past, PoS blocks by this block's time.
func (b *BlockIndex) MinPastBlockTime(p *params.Params) int64 {
	activation := p.Upgrades[params.UpgradePoS].ActivationHeight
	if activation == params.NoActivationHeight || b.height < activation {
		return b.MedianTimePast()
	}
	return b.time
}

// MaxFutureBlockTime is the latest timestamp accepted for the next block
// given the adjusted network time now.
func (b *BlockIndex) MaxFutureBlockTime(p *params.Params, now int64) int64 {
	return now + p.FutureBlockTimeDrift(b.height+1)
}

// StakeModifier returns the stake modifier, or the zero hash when unset.
func (b *BlockIndex) StakeModifier() chainhash.Hash {
	if b.stakeModifier == nil {
		return chainhash.Hash{}
	}
	return *b.stakeModifier
}

// SetStakeModifier stores modifier as this block's stake modifier.
func (b *BlockIndex) SetStakeModifier(modifier chainhash.Hash) {
	b.stakeModifier = &modifier
}

// SetNewStakeModifier derives and stores
// DoubleSHA256(prevoutID || LE32(prevoutN) || parent modifier).
// Only genesis lacks a parent and it never carries a stake modifier, so a
// parentless call is a broken invariant.
func (b *BlockIndex) SetNewStakeModifier(prevoutID chainhash.Hash, prevoutN uint32) {
	prev := b.Prev()
	if prev == nil {
		panic(fmt.Sprintf("chain: stake modifier for parentless block %s", b.hash))
	}

	parentModifier := prev.StakeModifier()
	buf := make([]byte, 0, 2*chainhash.HashSize+4)
	buf = append(buf, prevoutID[:]...)
	buf = binary.LittleEndian.AppendUint32(buf, prevoutN)
	buf = append(buf, parentModifier[:]...)
	b.SetStakeModifier(chainhash.DoubleHashH(buf))
}

func (b *BlockIndex) String() string {
	return fmt.Sprintf("BlockIndex(height=%d, hash=%s, status=%s)", b.height, b.hash, b.status)
}
