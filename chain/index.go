package chain

import (
	"errors"
	"fmt"
	"sync"

	"github.com/btcsuite/btcd/chaincfg/chainhash"
	"github.com/btcsuite/btcd/wire"
	"github.com/holiman/uint256"

	"github.com/concordia-cash/go-concordia/params"
	"github.com/concordia-cash/go-concordia/pow"
)

var (
	// ErrOrphanHeader is returned for a header whose parent is unknown.
	ErrOrphanHeader = errors.New("header parent not in index")
	// ErrUnexpectedGenesis is returned for a parentless header that is not
	// the network genesis, or a second genesis.
	ErrUnexpectedGenesis = errors.New("unexpected genesis header")
)

// Index is the arena holding every known header. Nodes are never removed,
// so a NodeID stays valid for the lifetime of the index.
type Index struct {
	mu     sync.RWMutex
	nodes  []*BlockIndex
	byHash map[chainhash.Hash]NodeID
	params *params.Params
}

// NewIndex returns an empty index for the given network.
func NewIndex(p *params.Params) *Index {
	return &Index{
		byHash: make(map[chainhash.Hash]NodeID),
		params: p,
	}
}

// Node returns the node with the given id, or nil.
func (ix *Index) Node(id NodeID) *BlockIndex {
	ix.mu.RLock()
	defer ix.mu.RUnlock()
	if id < 0 || int(id) >= len(ix.nodes) {
		return nil
	}
	return ix.nodes[id]
}

// Lookup returns the node for hash, or nil.
func (ix *Index) Lookup(hash chainhash.Hash) *BlockIndex {
	ix.mu.RLock()
	defer ix.mu.RUnlock()
	id, ok := ix.byHash[hash]
	if !ok {
		return nil
	}
	return ix.nodes[id]
}

// Genesis returns the genesis node, or nil for an empty index.
func (ix *Index) Genesis() *BlockIndex {
	ix.mu.RLock()
	defer ix.mu.RUnlock()
	if len(ix.nodes) == 0 {
		return nil
	}
	return ix.nodes[0]
}

// Len returns the number of known headers.
func (ix *Index) Len() int {
	ix.mu.RLock()
	defer ix.mu.RUnlock()
	return len(ix.nodes)
}

// ForEach calls fn for every node in insertion order until fn returns false.
// fn must not add headers.
func (ix *Index) ForEach(fn func(*BlockIndex) bool) {
	ix.mu.RLock()
	nodes := ix.nodes
	ix.mu.RUnlock()

	for _, node := range nodes {
		if !fn(node) {
			return
		}
	}
}

// AddHeader inserts header and returns its node. A header that is already
// known returns the existing node. Chain work and the skip table are computed
// here, so every node is complete as soon as it is visible.
func (ix *Index) AddHeader(header *wire.BlockHeader) (*BlockIndex, error) {
	hash := header.BlockHash()

	ix.mu.Lock()
	defer ix.mu.Unlock()

	if id, ok := ix.byHash[hash]; ok {
		return ix.nodes[id], nil
	}

	node := &BlockIndex{
		arena:      ix,
		id:         NodeID(len(ix.nodes)),
		parent:     NoNode,
		hash:       hash,
		version:    header.Version,
		merkleRoot: header.MerkleRoot,
		time:       header.Timestamp.Unix(),
		bits:       header.Bits,
		nonce:      header.Nonce,
	}

	proof := pow.GetBlockProof(header.Bits)
	if header.PrevBlock == (chainhash.Hash{}) {
		if len(ix.nodes) != 0 || hash != ix.params.GenesisHash {
			return nil, fmt.Errorf("%w: %s", ErrUnexpectedGenesis, hash)
		}
		node.chainWork = proof
	} else {
		parentID, ok := ix.byHash[header.PrevBlock]
		if !ok {
			return nil, fmt.Errorf("%w: %s (parent %s)", ErrOrphanHeader, hash, header.PrevBlock)
		}
		parent := ix.nodes[parentID]
		node.parent = parentID
		node.height = parent.height + 1
		node.chainWork = new(uint256.Int).Add(parent.chainWork, proof)
		node.buildSkip(ix.nodes)
	}

	ix.nodes = append(ix.nodes, node)
	ix.byHash[hash] = node.id
	return node, nil
}
