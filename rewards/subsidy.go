package rewards

import (
	"fmt"

	"github.com/concordia-cash/go-concordia/params"
)

const (
	// PremineSubsidy is paid once, by the block at height 1.
	PremineSubsidy = 100000000 * params.COIN
	// BaseSubsidy is the static reward of every other block.
	BaseSubsidy = 100 * params.COIN
)

// BlockSubsidy is the static reward table. The dynamic engine only ever
// lowers it.
func BlockSubsidy(height int32) int64 {
	if height == 1 {
		return PremineSubsidy
	}
	return BaseSubsidy
}

// FormatMoney renders an amount in base units as a decimal coin value.
func FormatMoney(amount int64) string {
	sign := ""
	if amount < 0 {
		sign = "-"
		amount = -amount
	}
	return fmt.Sprintf("%s%d.%08d", sign, amount/params.COIN, amount%params.COIN)
}
