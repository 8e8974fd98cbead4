// Package pow implements the difficulty rules: the compact "nBits" target
// codec, proof-of-work checks, block proof (work) estimation and the
// multi-window retarget engine.
package pow

import (
	"github.com/holiman/uint256"
)

// SetCompact decodes a compact target.
//
// The compact format is a base-256 float: the high byte is the exponent (the
// length of the number in bytes), the next bit is a sign bit and the low 23
// bits are the mantissa. negative reports a set sign bit with a non-zero
// mantissa; overflow reports a value that does not fit in 256 bits.
func SetCompact(compact uint32) (target *uint256.Int, negative bool, overflow bool) {
	size := compact >> 24
	word := compact & 0x007fffff

	target = new(uint256.Int)
	if size <= 3 {
		word >>= 8 * (3 - size)
		target.SetUint64(uint64(word))
	} else {
		target.SetUint64(uint64(word))
		target.Lsh(target, uint(8*(size-3)))
	}

	negative = word != 0 && compact&0x00800000 != 0
	overflow = word != 0 && (size > 34 ||
		(word > 0xff && size > 33) ||
		(word > 0xffff && size > 32))
	return target, negative, overflow
}

// GetCompact encodes target in compact form. It is the inverse of SetCompact
// for every non-negative, non-overflowing value, modulo mantissa truncation.
func GetCompact(target *uint256.Int) uint32 {
	size := uint32((target.BitLen() + 7) / 8)

	var compact uint32
	if size <= 3 {
		compact = uint32(target.Uint64() << (8 * (3 - size)))
	} else {
		shifted := new(uint256.Int).Rsh(target, uint(8*(size-3)))
		compact = uint32(shifted.Uint64())
	}

	// The 0x00800000 bit is the sign bit, so move a set bit into the exponent.
	if compact&0x00800000 != 0 {
		compact >>= 8
		size++
	}
	return compact | size<<24
}

// targetFromCompact decodes compact and reports whether it is a usable target.
func targetFromCompact(compact uint32) (*uint256.Int, bool) {
	target, negative, overflow := SetCompact(compact)
	if negative || overflow || target.IsZero() {
		return target, false
	}
	return target, true
}
