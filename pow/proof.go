package pow

import (
	"errors"
	"fmt"

	"github.com/btcsuite/btcd/chaincfg/chainhash"
	"github.com/holiman/uint256"

	"github.com/concordia-cash/go-concordia/params"
)

var (
	// ErrBadDiffBits is returned for a compact target that is negative,
	// zero, overflowing or easier than the network limit.
	ErrBadDiffBits = errors.New("nBits below minimum work")
	// ErrHighHash is returned when the block hash is above its target.
	ErrHighHash = errors.New("hash doesn't match nBits")
)

// HashToInt interprets a block hash as a 256-bit number. Hashes are stored
// little-endian, so the bytes are reversed before loading.
func HashToInt(hash *chainhash.Hash) *uint256.Int {
	var be [chainhash.HashSize]byte
	for i := 0; i < chainhash.HashSize; i++ {
		be[i] = hash[chainhash.HashSize-1-i]
	}
	return new(uint256.Int).SetBytes32(be[:])
}

// CheckProofOfWork verifies that hash satisfies the target claimed by bits.
// Networks with SkipProofOfWork accept everything.
func CheckProofOfWork(hash *chainhash.Hash, bits uint32, p *params.Params) error {
	if p.SkipProofOfWork {
		return nil
	}

	target, ok := targetFromCompact(bits)
	if !ok || target.Gt(p.PowLimit) {
		return fmt.Errorf("%w: bits %08x", ErrBadDiffBits, bits)
	}
	if HashToInt(hash).Gt(target) {
		return fmt.Errorf("%w: hash %s above target %08x", ErrHighHash, hash, bits)
	}
	return nil
}

// GetBlockProof estimates the number of hashes needed to meet bits.
//
// The exact value is 2**256 / (target+1). 2**256 does not fit in 256 bits,
// but since it is at least as large as target+1 the quotient equals
// ((2**256 - target - 1) / (target+1)) + 1, that is ~target / (target+1) + 1.
// Invalid targets carry no work.
func GetBlockProof(bits uint32) *uint256.Int {
	target, ok := targetFromCompact(bits)
	if !ok {
		return new(uint256.Int)
	}
	denominator := new(uint256.Int).AddUint64(target, 1)
	if denominator.IsZero() {
		// target was 2**256-1
		return uint256.NewInt(1)
	}
	proof := new(uint256.Int).Not(target)
	proof.Div(proof, denominator)
	return proof.AddUint64(proof, 1)
}
