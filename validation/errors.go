package validation

import (
	"errors"
	"fmt"
)

// ErrorCode identifies a kind of consensus rule violation.
type ErrorCode int

const (
	// ErrDuplicateBlock indicates a block with the same hash already exists.
	ErrDuplicateBlock ErrorCode = iota

	// ErrOrphanBlock indicates the parent of a block is unknown.
	ErrOrphanBlock

	// ErrKnownInvalid indicates the block or one of its ancestors already
	// failed validation.
	ErrKnownInvalid

	// ErrHighHash indicates the block hash is above its claimed target.
	ErrHighHash

	// ErrUnexpectedDifficulty indicates the bits differ from the retarget
	// engine's result.
	ErrUnexpectedDifficulty

	// ErrTimeTooOld indicates the timestamp does not move past the previous
	// block time bound.
	ErrTimeTooOld

	// ErrTimeTooNew indicates the timestamp is too far in the future.
	ErrTimeTooNew

	// ErrBadTimeSlot indicates a PoS timestamp off the time-slot grid.
	ErrBadTimeSlot

	ErrNoTransactions
	ErrFirstTxNotCoinbase
	ErrMultipleCoinbases
	ErrBadMerkleRoot
	ErrBadTxOutValue

	// ErrPoSBeforeActivation and ErrPoWAfterActivation enforce the block
	// type selected by the PoS upgrade.
	ErrPoSBeforeActivation
	ErrPoWAfterActivation

	ErrMissingTxOut
	ErrImmatureSpend
	ErrStakeTooShallow
	ErrSpendTooHigh

	// ErrBadBlockValue indicates a block minted more than its block value.
	ErrBadBlockValue

	numErrorCodes
)

var errorCodeStrings = map[ErrorCode]string{
	ErrDuplicateBlock:       "ErrDuplicateBlock",
	ErrOrphanBlock:          "ErrOrphanBlock",
	ErrKnownInvalid:         "ErrKnownInvalid",
	ErrHighHash:             "ErrHighHash",
	ErrUnexpectedDifficulty: "ErrUnexpectedDifficulty",
	ErrTimeTooOld:           "ErrTimeTooOld",
	ErrTimeTooNew:           "ErrTimeTooNew",
	ErrBadTimeSlot:          "ErrBadTimeSlot",
	ErrNoTransactions:       "ErrNoTransactions",
	ErrFirstTxNotCoinbase:   "ErrFirstTxNotCoinbase",
	ErrMultipleCoinbases:    "ErrMultipleCoinbases",
	ErrBadMerkleRoot:        "ErrBadMerkleRoot",
	ErrBadTxOutValue:        "ErrBadTxOutValue",
	ErrPoSBeforeActivation:  "ErrPoSBeforeActivation",
	ErrPoWAfterActivation:   "ErrPoWAfterActivation",
	ErrMissingTxOut:         "ErrMissingTxOut",
	ErrImmatureSpend:        "ErrImmatureSpend",
	ErrStakeTooShallow:      "ErrStakeTooShallow",
	ErrSpendTooHigh:         "ErrSpendTooHigh",
	ErrBadBlockValue:        "ErrBadBlockValue",
}

func (e ErrorCode) String() string {
	if s := errorCodeStrings[e]; s != "" {
		return s
	}
	return fmt.Sprintf("Unknown ErrorCode (%d)", int(e))
}

// RuleError reports a block that breaks a consensus rule. The block is
// rejected; the node keeps running.
type RuleError struct {
	ErrorCode   ErrorCode
	Description string
}

func (e RuleError) Error() string {
	return e.Description
}

func ruleError(c ErrorCode, desc string) RuleError {
	return RuleError{ErrorCode: c, Description: desc}
}

// IsErrorCode reports whether err is a RuleError with code c.
func IsErrorCode(err error, c ErrorCode) bool {
	var rerr RuleError
	return errors.As(err, &rerr) && rerr.ErrorCode == c
}

func isRuleError(err error) bool {
	var rerr RuleError
	return errors.As(err, &rerr)
}
