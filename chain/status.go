package chain

import "fmt"

// BlockStatus is the per-node validity and storage bitmask.
type BlockStatus uint32

const (
	// StatusValidUnknown is the zero value: nothing has been checked yet.
	StatusValidUnknown BlockStatus = 0

	// StatusValidHeader means the header parsed, hashed and met its claimed target.
	StatusValidHeader BlockStatus = 1

	// StatusValidTree means all parents are known and contextual header
	// checks (bits, timestamps) passed.
	StatusValidTree BlockStatus = 2

	// StatusValidTransactions means the body was stored and its shape
	// (coinbase, coinstake, merkle root) checked.
	StatusValidTransactions BlockStatus = 3

	// StatusValidChain means the block's outputs and inputs were applied
	// without missing or immature spends.
	StatusValidChain BlockStatus = 4

	// StatusValidScripts means the block was fully connected, including the
	// block value check.
	StatusValidScripts BlockStatus = 5

	// StatusValidMask covers every validity level.
	StatusValidMask = StatusValidHeader | StatusValidTree | StatusValidTransactions |
		StatusValidChain | StatusValidScripts

	StatusHaveData BlockStatus = 8
	StatusHaveUndo BlockStatus = 16
	StatusHaveMask             = StatusHaveData | StatusHaveUndo

	// StatusFailedValid marks a block that failed validation itself.
	StatusFailedValid BlockStatus = 32
	// StatusFailedChild marks a block descending from a failed block.
	StatusFailedChild BlockStatus = 64
	StatusFailedMask            = StatusFailedValid | StatusFailedChild
)

func checkValidityLevel(level BlockStatus) {
	if level&^StatusValidMask != 0 {
		panic(fmt.Sprintf("chain: %#x is not a validity level", uint32(level)))
	}
}

func (s BlockStatus) String() string {
	var state string
	switch {
	case s&StatusFailedMask != 0:
		state = "failed"
	default:
		switch s & StatusValidMask {
		case StatusValidUnknown:
			state = "unknown"
		case StatusValidHeader:
			state = "header"
		case StatusValidTree:
			state = "tree"
		case StatusValidTransactions:
			state = "transactions"
		case StatusValidChain:
			state = "chain"
		default:
			state = "scripts"
		}
	}
	if s&StatusHaveData != 0 {
		state += "+data"
	}
	return state
}
