// Package params defines the consensus parameter sets of the Concordia networks.
//
// This package provides:
//   - Network identification (MainNet, TestNet, RegTest)
//   - Block timing rules (target spacing, time slots, future drift)
//   - Proof-of-work limits used by the retarget engine
//   - Economic parameters (money range, reward adjustment interval, collateral schedule)
//   - The network upgrade table (see upgrades.go)
//
// A Params value is built once at startup and is read-only afterwards. The only
// mutation allowed is UpdateNetworkUpgradeParameters, which exists for regtest.
package params

import (
	"fmt"

	"github.com/btcsuite/btcd/chaincfg/chainhash"
	"github.com/btcsuite/btcd/wire"
	"github.com/holiman/uint256"
)

// Time units used by the consensus rules, in seconds.
const (
	HourInSeconds  int64 = 60 * 60
	DayInSeconds   int64 = 24 * HourInSeconds
	WeekInSeconds  int64 = 7 * DayInSeconds
	MonthInSeconds int64 = 30 * DayInSeconds
)

// COIN is the number of base units in one coin.
const COIN int64 = 100000000

// Network identifies which chain a parameter set belongs to.
type Network uint8

const (
	MainNet Network = iota
	TestNet
	RegTest
)

func (n Network) String() string {
	switch n {
	case MainNet:
		return "main"
	case TestNet:
		return "test"
	case RegTest:
		return "regtest"
	default:
		return fmt.Sprintf("network(%d)", uint8(n))
	}
}

// ParseNetwork maps a CLI/config network name onto a Network.
func ParseNetwork(name string) (Network, error) {
	switch name {
	case "main", "mainnet", "":
		return MainNet, nil
	case "test", "testnet":
		return TestNet, nil
	case "regtest":
		return RegTest, nil
	default:
		return 0, fmt.Errorf("unknown network %q (valid: main, test, regtest)", name)
	}
}

// CollateralStep sets the masternode collateral from Height onwards.
type CollateralStep struct {
	Height int32
	Amount int64
}

// Params describes every consensus-critical constant of one network.
type Params struct {
	Net  Network
	Name string

	// Magic prefixes every record in the flat block files.
	Magic uint32

	GenesisBlock *wire.MsgBlock
	GenesisHash  chainhash.Hash

	// PowLimit is the easiest target a block may claim.
	PowLimit     *uint256.Int
	PowLimitBits uint32

	// NoRetargeting keeps the previous block's bits for every block.
	NoRetargeting bool

	// SkipProofOfWork accepts any hash regardless of the claimed target.
	SkipProofOfWork bool

	CoinbaseMaturity   int32
	FutureTimeDriftPoW int64
	FutureTimeDriftPoS int64
	MaxMoneyOut        int64
	StakeMinDepth      int32

	TargetTimespan int64
	TargetSpacing  int64
	TimeSlotLength int64

	// RewardAdjustmentInterval is the epoch length of the dynamic rewards
	// engine, in blocks. It must be at least 2.
	RewardAdjustmentInterval int32

	// MasternodeRewardPercent is the share of the block value paid to the
	// selected masternode.
	MasternodeRewardPercent int64

	// Collateral is ordered by height; the last step at or below a height wins.
	Collateral []CollateralStep

	Upgrades [MaxNetworkUpgrades]NetworkUpgrade
}

// BlocksPerDay returns how many blocks the target spacing fits in one day.
func (p *Params) BlocksPerDay() int64 { return DayInSeconds / p.TargetSpacing }

// BlocksPerWeek returns how many blocks the target spacing fits in one week.
func (p *Params) BlocksPerWeek() int64 { return WeekInSeconds / p.TargetSpacing }

// BlocksPerMonth returns how many blocks the target spacing fits in 30 days.
func (p *Params) BlocksPerMonth() int64 { return MonthInSeconds / p.TargetSpacing }

// MoneyRange reports whether value is a valid amount on this network.
func (p *Params) MoneyRange(value int64) bool {
	return value >= 0 && value <= p.MaxMoneyOut
}

// FutureBlockTimeDrift is how far ahead of the adjusted clock a block at
// height may be stamped. PoS blocks are held to a much tighter bound.
func (p *Params) FutureBlockTimeDrift(height int32) int64 {
	if p.NetworkUpgradeActive(height, UpgradePoS) {
		return p.FutureTimeDriftPoS
	}
	return p.FutureTimeDriftPoW
}

// IsValidBlockTimeStamp checks the time-slot alignment required once PoS is active.
func (p *Params) IsValidBlockTimeStamp(t int64, height int32) bool {
	if p.NetworkUpgradeActive(height, UpgradePoS) {
		return t%p.TimeSlotLength == 0
	}
	return true
}

// HasStakeMinDepth reports whether an output created at utxoHeight is deep
// enough to stake at contextHeight.
func (p *Params) HasStakeMinDepth(contextHeight, utxoHeight int32) bool {
	return contextHeight-utxoHeight >= p.StakeMinDepth
}

// MasternodeCollateral returns the collateral amount in force at height.
func (p *Params) MasternodeCollateral(height int32) int64 {
	var amount int64
	for _, step := range p.Collateral {
		if step.Height > height {
			break
		}
		amount = step.Amount
	}
	return amount
}

// MasternodePayment returns the masternode share of a block value.
func (p *Params) MasternodePayment(blockValue int64) int64 {
	return blockValue * p.MasternodeRewardPercent / 100
}

// Validate rejects parameter sets the engines cannot run with.
func (p *Params) Validate() error {
	if p.TargetSpacing <= 0 {
		return fmt.Errorf("%s: target spacing must be positive", p.Name)
	}
	if p.TimeSlotLength <= 0 {
		return fmt.Errorf("%s: time slot length must be positive", p.Name)
	}
	if p.RewardAdjustmentInterval < 2 {
		return fmt.Errorf("%s: reward adjustment interval %d is below 2", p.Name, p.RewardAdjustmentInterval)
	}
	if p.PowLimit == nil || p.PowLimit.IsZero() {
		return fmt.Errorf("%s: missing pow limit", p.Name)
	}
	if p.GenesisBlock == nil {
		return fmt.Errorf("%s: missing genesis block", p.Name)
	}
	for i := 1; i < len(p.Collateral); i++ {
		if p.Collateral[i].Height < p.Collateral[i-1].Height {
			return fmt.Errorf("%s: collateral schedule out of order at step %d", p.Name, i)
		}
	}
	return nil
}

// ForNetwork returns a fresh parameter set for the given network.
func ForNetwork(n Network) *Params {
	switch n {
	case TestNet:
		return TestNetParams()
	case RegTest:
		return RegTestParams()
	default:
		return MainNetParams()
	}
}

// powLimitFromShift returns ^uint256(0) >> shift.
func powLimitFromShift(shift uint) *uint256.Int {
	limit := new(uint256.Int).Not(new(uint256.Int))
	return limit.Rsh(limit, shift)
}

// MainNetParams returns the production network parameters.
func MainNetParams() *Params {
	p := &Params{
		Net:                      MainNet,
		Name:                     "main",
		Magic:                    0xc7a1d0e3,
		PowLimit:                 powLimitFromShift(20),
		PowLimitBits:             0x1e0fffff,
		CoinbaseMaturity:         100,
		FutureTimeDriftPoW:       7200,
		FutureTimeDriftPoS:       14,
		MaxMoneyOut:              2000000000 * COIN,
		StakeMinDepth:            600,
		TargetTimespan:           40 * 60,
		TargetSpacing:            60,
		TimeSlotLength:           15,
		RewardAdjustmentInterval: int32(MonthInSeconds / 60),
		MasternodeRewardPercent:  60,
		Collateral: []CollateralStep{
			{Height: 0, Amount: 10000 * COIN},
			{Height: 525600, Amount: 15000 * COIN},
			{Height: 1051200, Amount: 20000 * COIN},
		},
	}
	p.Upgrades[BaseNetwork] = NetworkUpgrade{ProtocolVersion: 70920, ActivationHeight: AlwaysActive}
	p.Upgrades[UpgradePoS] = NetworkUpgrade{ProtocolVersion: 70920, ActivationHeight: 1001}
	p.Upgrades[UpgradeTestDummy] = NetworkUpgrade{ProtocolVersion: 70920, ActivationHeight: NoActivationHeight}
	p.GenesisBlock = genesisBlock(1735689600, 0x1e0fffff, 2084524493, "Concordia Cash mainnet genesis")
	p.GenesisHash = p.GenesisBlock.BlockHash()
	return p
}

// TestNetParams returns the public test network parameters.
func TestNetParams() *Params {
	p := MainNetParams()
	p.Net = TestNet
	p.Name = "test"
	p.Magic = 0x45a9c3b1
	p.StakeMinDepth = 100
	p.Collateral = []CollateralStep{
		{Height: 0, Amount: 1000 * COIN},
	}
	p.Upgrades[UpgradePoS].ActivationHeight = 201
	p.Upgrades[UpgradeTestDummy].ActivationHeight = NoActivationHeight
	p.GenesisBlock = genesisBlock(1735689601, 0x1e0fffff, 3517482, "Concordia Cash testnet genesis")
	p.GenesisHash = p.GenesisBlock.BlockHash()
	return p
}

// RegTestParams returns the local regression test parameters. Retargeting
// and proof-of-work checks are disabled so tests can mine instantly.
func RegTestParams() *Params {
	p := MainNetParams()
	p.Net = RegTest
	p.Name = "regtest"
	p.Magic = 0xa1cf7eac
	p.PowLimit = powLimitFromShift(1)
	p.PowLimitBits = 0x207fffff
	p.NoRetargeting = true
	p.SkipProofOfWork = true
	p.CoinbaseMaturity = 10
	p.StakeMinDepth = 20
	p.Collateral = []CollateralStep{
		{Height: 0, Amount: 100 * COIN},
	}
	p.Upgrades[UpgradePoS].ActivationHeight = 251
	p.Upgrades[UpgradeTestDummy].ActivationHeight = NoActivationHeight
	p.GenesisBlock = genesisBlock(1735689602, 0x207fffff, 2, "Concordia Cash regtest genesis")
	p.GenesisHash = p.GenesisBlock.BlockHash()
	return p
}
