package chain

import (
	"sync"

	"github.com/btcsuite/btcd/chaincfg/chainhash"
)

// locatorDenseEntries is the number of locator hashes taken one block apart
// before the step starts doubling.
const locatorDenseEntries = 10

// Chain is the active chain: a dense height-indexed view of the path from
// genesis to the current tip.
type Chain struct {
	mu    sync.RWMutex
	nodes []*BlockIndex
}

// NewChain returns an empty active chain.
func NewChain() *Chain {
	return &Chain{}
}

// SetTip makes node the tip. Entries are rewritten from node downwards until
// the existing chain already agrees, so a short reorg only touches the
// heights above the fork. A nil node clears the chain.
func (c *Chain) SetTip(node *BlockIndex) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if node == nil {
		c.nodes = nil
		return
	}

	// Slots past the old tip must read as nil, so truncated entries are
	// cleared before the slice can grow back over them.
	size := int(node.height) + 1
	switch {
	case size <= len(c.nodes):
		clear(c.nodes[size:])
		c.nodes = c.nodes[:size]
	case size <= cap(c.nodes):
		c.nodes = c.nodes[:size]
	default:
		grown := make([]*BlockIndex, size, size+size/4)
		copy(grown, c.nodes)
		c.nodes = grown
	}
	for cur := node; cur != nil && c.nodes[cur.height] != cur; cur = cur.Prev() {
		c.nodes[cur.height] = cur
	}
}

// Tip returns the last block, or nil for an empty chain.
func (c *Chain) Tip() *BlockIndex {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.tip()
}

func (c *Chain) tip() *BlockIndex {
	if len(c.nodes) == 0 {
		return nil
	}
	return c.nodes[len(c.nodes)-1]
}

// Genesis returns the first block, or nil for an empty chain.
func (c *Chain) Genesis() *BlockIndex {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if len(c.nodes) == 0 {
		return nil
	}
	return c.nodes[0]
}

// Height returns the tip height, or -1 for an empty chain.
func (c *Chain) Height() int32 {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return int32(len(c.nodes)) - 1
}

// At returns the block at height, or nil when out of range.
func (c *Chain) At(height int32) *BlockIndex {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.at(height)
}

func (c *Chain) at(height int32) *BlockIndex {
	if height < 0 || int(height) >= len(c.nodes) {
		return nil
	}
	return c.nodes[height]
}

// Contains reports whether node is part of the active chain.
func (c *Chain) Contains(node *BlockIndex) bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.contains(node)
}

func (c *Chain) contains(node *BlockIndex) bool {
	return node != nil && c.at(node.height) == node
}

// Next returns the successor of node in the active chain, or nil if node is
// the tip or not in the chain.
func (c *Chain) Next(node *BlockIndex) *BlockIndex {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if !c.contains(node) {
		return nil
	}
	return c.at(node.height + 1)
}

// GetLocator describes the position of node (the tip when nil) by hashes at
// exponentially growing distances. The genesis hash is always last.
func (c *Chain) GetLocator(node *BlockIndex) []chainhash.Hash {
	c.mu.RLock()
	defer c.mu.RUnlock()

	if node == nil {
		node = c.tip()
	}

	step := int32(1)
	locator := make([]chainhash.Hash, 0, 32)
	for node != nil {
		locator = append(locator, node.hash)
		if node.height == 0 {
			break
		}

		height := node.height - step
		if height < 0 {
			height = 0
		}
		if c.contains(node) {
			node = c.at(height)
		} else {
			node = node.Ancestor(height)
		}

		if len(locator) > locatorDenseEntries {
			step *= 2
		}
	}
	return locator
}

// FindFork returns the highest block shared by node's branch and the
// active chain.
func (c *Chain) FindFork(node *BlockIndex) *BlockIndex {
	c.mu.RLock()
	defer c.mu.RUnlock()

	if node == nil {
		return nil
	}
	if height := int32(len(c.nodes)) - 1; node.height > height {
		node = node.Ancestor(height)
	}
	for node != nil && !c.contains(node) {
		node = node.Prev()
	}
	return node
}
