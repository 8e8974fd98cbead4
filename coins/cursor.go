package coins

import (
	"fmt"

	"github.com/btcsuite/btcd/wire"
	"github.com/ethereum/go-ethereum/ethdb"
	"github.com/ethereum/go-ethereum/rlp"
)

// Cursor walks the flushed unspent outputs in key order. Key and Value report
// false on an unreadable entry; Error then says why.
type Cursor interface {
	Valid() bool
	Next()
	Key() (wire.OutPoint, bool)
	Value() (*Coin, bool)
	// Error returns the first iteration or decoding failure, if any.
	Error() error
	Release()
}

type dbCursor struct {
	it    ethdb.Iterator
	valid bool
	err   error
}

// Cursor returns a cursor over the database. Cached changes are not visible,
// so callers flush the root view first.
func (v *View) Cursor() Cursor {
	root := v
	for root.parent != nil {
		root = root.parent
	}
	c := &dbCursor{it: root.db.NewIterator(prefixCoin, nil)}
	c.advance()
	return c
}

func (c *dbCursor) advance() {
	c.valid = c.it.Next()
	if !c.valid && c.err == nil {
		c.err = c.it.Error()
	}
}

func (c *dbCursor) Valid() bool { return c.valid }

func (c *dbCursor) Next() {
	if c.valid {
		c.advance()
	}
}

func (c *dbCursor) Key() (wire.OutPoint, bool) {
	if !c.valid {
		return wire.OutPoint{}, false
	}
	op, ok := outPointFromKey(c.it.Key())
	if !ok {
		c.fail(fmt.Errorf("%w: key %x", ErrCorruptCoin, c.it.Key()))
	}
	return op, ok
}

func (c *dbCursor) Value() (*Coin, bool) {
	if !c.valid {
		return nil, false
	}
	var rec coinRecord
	if err := rlp.DecodeBytes(c.it.Value(), &rec); err != nil {
		c.fail(fmt.Errorf("%w: key %x: %v", ErrCorruptCoin, c.it.Key(), err))
		return nil, false
	}
	return rec.coin(), true
}

func (c *dbCursor) fail(err error) {
	if c.err == nil {
		c.err = err
	}
}

func (c *dbCursor) Error() error { return c.err }

func (c *dbCursor) Release() {
	c.valid = false
	c.it.Release()
}
