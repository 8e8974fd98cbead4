package pow

import (
	"github.com/holiman/uint256"

	"github.com/concordia-cash/go-concordia/params"
)

// HeaderCtx is the view of a block header the retarget engine needs. It lets
// the engine walk history without depending on the block index itself.
type HeaderCtx interface {
	Height() int32
	Bits() uint32
	Timestamp() int64
	Parent() HeaderCtx
	RelativeAncestorCtx(distance int32) HeaderCtx
}

const (
	// spacingResolution raises the adjustment resolution to milliseconds.
	spacingResolution = 1000

	// stepDivisor moves the target in 1/60th steps.
	stepDivisor = 60

	// Weights of the day, week, two-week and month windows, out of 100.
	weightDay     = 60
	weightWeek    = 24
	weightBiWeek  = 10
	weightMonth   = 6
	weightDivisor = 100

	smoothingPasses = 4

	// sampleCeiling caps a window sample at 100x the ideal spacing.
	sampleCeiling = 100
)

// window is one trailing sample of block times.
type window struct {
	targetTime int64 // ideal duration of the window, in seconds
	blocks     int64 // number of blocks the window spans
}

// windowSpacing returns the smoothed target spacing (in milliseconds) derived
// from one window.
//
// The first pass scales the ideal spacing by target/actual; the next three
// reapply the same ratio to the previous result, so deviations are raised to
// the fourth power before being weighted.
func windowSpacing(prev HeaderCtx, w window, targetSpacing int64) int64 {
	height := int64(prev.Height()) + 1

	actual := w.targetTime
	if height > w.blocks {
		start := prev.RelativeAncestorCtx(int32(w.blocks))
		if start != nil {
			actual = prev.Timestamp() - start.Timestamp()
		}
	}
	if actual < 1 {
		actual = 1
	}

	// Any sample above the ceiling forces the blended value past the +10%
	// clamp, so saturating here keeps the products inside int64.
	ceiling := targetSpacing * spacingResolution * sampleCeiling

	spacing := (w.targetTime * targetSpacing * spacingResolution) / actual
	for i := 1; i < smoothingPasses && spacing < ceiling; i++ {
		spacing = w.targetTime * spacing / actual
	}
	if spacing > ceiling {
		spacing = ceiling
	}
	return spacing
}

// NextWorkRequired returns the compact target the block after prev must meet.
//
// Four trailing windows (one day, one week, two weeks and thirty days) each
// produce a smoothed spacing. The samples are blended 60/24/10/6 and clamped
// to 90%..110% of the ideal spacing, giving the final target spacing F. The
// previous target is then scaled by (actual + 59*F) / (60*F), where actual is
// the spacing of the last two blocks, and capped at the network pow limit.
func NextWorkRequired(prev HeaderCtx, p *params.Params) uint32 {
	if p.NoRetargeting {
		return prev.Bits()
	}

	targetSpacing := p.TargetSpacing
	height := int64(prev.Height()) + 1

	actualSpacing := targetSpacing
	if height > 1 {
		if parent := prev.Parent(); parent != nil {
			actualSpacing = prev.Timestamp() - parent.Timestamp()
		}
	}
	actualSpacing *= spacingResolution

	day := windowSpacing(prev, window{params.DayInSeconds, p.BlocksPerDay()}, targetSpacing)
	week := windowSpacing(prev, window{params.WeekInSeconds, p.BlocksPerWeek()}, targetSpacing)
	biWeek := windowSpacing(prev, window{2 * params.WeekInSeconds, 2 * p.BlocksPerWeek()}, targetSpacing)
	month := windowSpacing(prev, window{params.MonthInSeconds, p.BlocksPerMonth()}, targetSpacing)

	final := (day*weightDay + week*weightWeek + biWeek*weightBiWeek + month*weightMonth) / weightDivisor

	maxSpacing := (targetSpacing * spacingResolution * 110) / 100
	minSpacing := (targetSpacing * spacingResolution * 90) / 100
	if final > maxSpacing {
		final = maxSpacing
	}
	if final < minSpacing {
		final = minSpacing
	}

	target, _, _ := SetCompact(prev.Bits())

	// A block stamped far enough before its parent turns the multiplier
	// non-positive. The target saturates to the pow limit in that case.
	multiplier := actualSpacing + (stepDivisor-1)*final
	if multiplier < 1 {
		return GetCompact(p.PowLimit)
	}

	next, overflow := new(uint256.Int).MulDivOverflow(
		target,
		uint256.NewInt(uint64(multiplier)),
		uint256.NewInt(uint64(stepDivisor*final)),
	)
	if overflow || next.Gt(p.PowLimit) {
		next = p.PowLimit
	}
	return GetCompact(next)
}
