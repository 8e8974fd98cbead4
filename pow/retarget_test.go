package pow

import (
	"errors"
	"testing"

	"github.com/btcsuite/btcd/chaincfg/chainhash"
	"github.com/holiman/uint256"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/concordia-cash/go-concordia/params"
)

// testHeader is a minimal in-memory header chain.
type testHeader struct {
	height int32
	bits   uint32
	time   int64
	parent *testHeader
}

func (h *testHeader) Height() int32    { return h.height }
func (h *testHeader) Bits() uint32     { return h.bits }
func (h *testHeader) Timestamp() int64 { return h.time }

func (h *testHeader) Parent() HeaderCtx {
	if h.parent == nil {
		return nil
	}
	return h.parent
}

func (h *testHeader) RelativeAncestorCtx(distance int32) HeaderCtx {
	cur := h
	for i := int32(0); i < distance && cur != nil; i++ {
		cur = cur.parent
	}
	if cur == nil {
		return nil
	}
	return cur
}

// buildChain returns the tip of a chain whose block times are given by spacings
// (spacings[i] is the gap between block i and block i+1).
func buildChain(bits uint32, start int64, spacings []int64) *testHeader {
	tip := &testHeader{height: 0, bits: bits, time: start}
	for _, gap := range spacings {
		tip = &testHeader{height: tip.height + 1, bits: bits, time: tip.time + gap, parent: tip}
	}
	return tip
}

func constantSpacings(n int, gap int64) []int64 {
	out := make([]int64, n)
	for i := range out {
		out[i] = gap
	}
	return out
}

func target(bits uint32) *uint256.Int {
	t, _, _ := SetCompact(bits)
	return t
}

func TestNextWorkRequiredRegTest(t *testing.T) {
	p := params.RegTestParams()
	tip := buildChain(0x1d00ffff, 1000, []int64{1, 1, 1})
	assert.Equal(t, uint32(0x1d00ffff), NextWorkRequired(tip, p))
}

func TestNextWorkRequiredSteady(t *testing.T) {
	p := params.MainNetParams()
	tip := buildChain(0x1c05a3f4, 1000, constantSpacings(20, p.TargetSpacing))
	assert.Equal(t, uint32(0x1c05a3f4), NextWorkRequired(tip, p))
}

func TestNextWorkRequiredSecondBlock(t *testing.T) {
	p := params.MainNetParams()
	genesis := buildChain(0x1c05a3f4, 1000, nil)
	// Only one interval exists, so the ideal spacing stands in for it.
	assert.Equal(t, uint32(0x1c05a3f4), NextWorkRequired(genesis, p))
}

func TestNextWorkRequiredFastBlock(t *testing.T) {
	p := params.MainNetParams()
	spacings := constantSpacings(20, p.TargetSpacing)
	spacings[len(spacings)-1] = 30
	tip := buildChain(0x1c05a3f4, 1000, spacings)

	next := NextWorkRequired(tip, p)
	assert.True(t, target(next).Lt(target(0x1c05a3f4)), "fast block should raise difficulty")

	// t * (30000 + 59*60000) / (60*60000)
	want := new(uint256.Int).Mul(target(0x1c05a3f4), uint256.NewInt(30000+59*60000))
	want.Div(want, uint256.NewInt(60*60000))
	assert.Equal(t, GetCompact(want), next)
}

func TestNextWorkRequiredSlowBlock(t *testing.T) {
	p := params.MainNetParams()
	spacings := constantSpacings(20, p.TargetSpacing)
	spacings[len(spacings)-1] = 600
	tip := buildChain(0x1c05a3f4, 1000, spacings)

	next := NextWorkRequired(tip, p)
	assert.True(t, target(next).Gt(target(0x1c05a3f4)), "slow block should lower difficulty")
}

func TestNextWorkRequiredPowLimit(t *testing.T) {
	p := params.MainNetParams()
	spacings := constantSpacings(5, p.TargetSpacing)
	spacings[len(spacings)-1] = 100000
	tip := buildChain(p.PowLimitBits, 1000, spacings)

	assert.Equal(t, p.PowLimitBits, NextWorkRequired(tip, p))
}

func TestNextWorkRequiredBackwardsTime(t *testing.T) {
	p := params.MainNetParams()
	tests := []struct {
		name string
		last []int64
	}{
		{"far before parent", []int64{-100000}},
		{"jump forward then back", []int64{7000, -7000}},
		{"exactly cancels the steps", []int64{-59 * 60}},
	}
	for _, tt := range tests {
		spacings := append(constantSpacings(5, p.TargetSpacing), tt.last...)
		tip := buildChain(0x1c05a3f4, 1000, spacings)
		if got := NextWorkRequired(tip, p); got != p.PowLimitBits {
			t.Errorf("%s: got %08x, want pow limit %08x", tt.name, got, p.PowLimitBits)
		}
	}

	// One second short of cancelling keeps the multiplier positive.
	spacings := append(constantSpacings(5, p.TargetSpacing), -59*60+1)
	tip := buildChain(0x1c05a3f4, 1000, spacings)
	want := new(uint256.Int).Mul(target(0x1c05a3f4), uint256.NewInt(1000))
	want.Div(want, uint256.NewInt(60*60000))
	assert.Equal(t, GetCompact(want), NextWorkRequired(tip, p))
}

func TestNextWorkRequiredDayWindow(t *testing.T) {
	p := params.MainNetParams()
	blocksPerDay := int(p.BlocksPerDay())

	// A full day of 10% fast blocks saturates the day window and pushes the
	// final spacing to its +10% clamp.
	spacings := constantSpacings(blocksPerDay+10, 54)
	tip := buildChain(0x1c05a3f4, 1000, spacings)
	next := NextWorkRequired(tip, p)

	assert.True(t, target(next).Lt(target(0x1c05a3f4)))
}

func TestNextWorkRequiredLongChain(t *testing.T) {
	p := params.MainNetParams()

	// 10100 intervals: 9000 of 61s, 1099 of 58s, then one of 75s. The day
	// and week windows are populated while the two-week and month windows
	// still fall back to their ideal spans.
	spacings := append(constantSpacings(9000, 61), constantSpacings(1099, 58)...)
	spacings = append(spacings, 75)
	tip := buildChain(0x1c05a3f4, 1000, spacings)
	require.Greater(t, int64(tip.Height()), p.BlocksPerWeek())

	// day:   span 84557s,  spacing 65403ms
	// week:  span 611597s, spacing 57375ms
	// final: (65403*60 + 57375*24 + 60000*10 + 60000*6) / 100 = 62611ms
	// next:  t * (75000 + 59*62611) / (60*62611)
	assert.Equal(t, int64(65403), windowSpacing(tip, window{params.DayInSeconds, p.BlocksPerDay()}, p.TargetSpacing))
	assert.Equal(t, int64(57375), windowSpacing(tip, window{params.WeekInSeconds, p.BlocksPerWeek()}, p.TargetSpacing))
	assert.Equal(t, uint32(0x1c05a8b7), NextWorkRequired(tip, p))
}

func TestCheckProofOfWork(t *testing.T) {
	main := params.MainNetParams()

	zero := chainhash.Hash{}
	require.NoError(t, CheckProofOfWork(&zero, main.PowLimitBits, main))

	var high chainhash.Hash
	for i := range high {
		high[i] = 0xff
	}
	err := CheckProofOfWork(&high, main.PowLimitBits, main)
	assert.True(t, errors.Is(err, ErrHighHash), "got %v", err)

	for _, bits := range []uint32{0, 0x1f00ffff, 0x04923456, 0xff123456} {
		err := CheckProofOfWork(&zero, bits, main)
		assert.True(t, errors.Is(err, ErrBadDiffBits), "bits %08x: got %v", bits, err)
	}

	reg := params.RegTestParams()
	assert.NoError(t, CheckProofOfWork(&high, 0, reg))
}

func TestHashToInt(t *testing.T) {
	var h chainhash.Hash
	h[0] = 0x01
	assert.Equal(t, uint64(1), HashToInt(&h).Uint64())

	h = chainhash.Hash{}
	h[31] = 0x80
	assert.Equal(t, 256, HashToInt(&h).BitLen())
}

func TestGetBlockProof(t *testing.T) {
	assert.Equal(t, uint64(0x100010001), GetBlockProof(0x1d00ffff).Uint64())
	assert.Equal(t, uint64(2), GetBlockProof(0x207fffff).Uint64())
	assert.True(t, GetBlockProof(0).IsZero())
	assert.True(t, GetBlockProof(0x04923456).IsZero())
	assert.True(t, GetBlockProof(0xff123456).IsZero())
}
