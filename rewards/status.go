package rewards

import (
	"github.com/concordia-cash/go-concordia/params"
)

// Status is a snapshot of the reward economics at the chain tip.
type Status struct {
	Height      int32
	MoneySupply int64

	BlockValue       int64
	MasternodeReward int64
	StakeReward      int64

	// BlocksPerDay counts the blocks of the last 24 hours once the chain is
	// older than a day, and the nominal rate before that.
	BlocksPerDay int64

	NetworkHashPS       int64
	SmoothNetworkHashPS int64
	StakedCoins         int64
	SmoothStakedCoins   int64
	StakingROI          float64
	SmoothStakingROI    float64

	MasternodeCollateral         int64
	MasternodeNextWeekCollateral int64
}

// Status reports the reward economics at the current tip.
func (e *Engine) Status() (*Status, error) {
	if e.cfg.Chain == nil {
		return nil, ErrNoChain
	}
	tip := e.cfg.Chain.Tip()
	if tip == nil {
		return nil, ErrNoChain
	}
	p := e.p
	height := tip.Height()

	st := &Status{
		Height:       height,
		BlockValue:   e.GetBlockValue(height),
		BlocksPerDay: p.BlocksPerDay(),
	}
	st.MoneySupply, _ = tip.MoneySupply()
	st.MasternodeReward = p.MasternodePayment(st.BlockValue)
	st.StakeReward = st.BlockValue - st.MasternodeReward

	if int64(height) > st.BlocksPerDay {
		var i int64
		for cur := tip; cur != nil && cur.Height() > 0; cur = cur.Prev() {
			if cur.Timestamp() < tip.Timestamp()-params.DayInSeconds {
				st.BlocksPerDay = i
				break
			}
			i++
		}
	}

	st.NetworkHashPS = networkHashPS(tip, int32(p.TargetTimespan/p.TargetSpacing))
	st.SmoothNetworkHashPS = networkHashPS(tip, int32(3*params.HourInSeconds/p.TargetSpacing))
	st.StakedCoins = stakedCoins(st.NetworkHashPS, p.TimeSlotLength)
	st.SmoothStakedCoins = stakedCoins(st.SmoothNetworkHashPS, p.TimeSlotLength)

	yearly := float64(st.StakeReward * st.BlocksPerDay * 365)
	if st.StakedCoins > 0 {
		st.StakingROI = yearly / float64(st.StakedCoins)
	}
	if st.SmoothStakedCoins > 0 {
		st.SmoothStakingROI = yearly / float64(st.SmoothStakedCoins)
	}

	st.MasternodeCollateral = p.MasternodeCollateral(height)
	st.MasternodeNextWeekCollateral = p.MasternodeCollateral(height + int32(p.BlocksPerWeek()))
	return st, nil
}
