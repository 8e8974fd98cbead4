package params

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/btcsuite/btcd/chaincfg/chainhash"
)

// UpgradeIndex addresses Params.Upgrades. The order of the indices must match
// the on-chain order of the upgrades: several helpers scan the table in order.
type UpgradeIndex uint32

const (
	BaseNetwork UpgradeIndex = iota
	UpgradePoS
	UpgradeTestDummy
	MaxNetworkUpgrades
)

// Activation height sentinels.
const (
	// AlwaysActive makes an upgrade active from the genesis block.
	AlwaysActive int32 = 0
	// NoActivationHeight keeps an upgrade disabled forever.
	NoActivationHeight int32 = -1
)

// NetworkUpgrade is one row of the upgrade table.
type NetworkUpgrade struct {
	// ProtocolVersion is the first protocol version that understands the rules.
	ProtocolVersion int32
	// ActivationHeight is the first block governed by the new rules.
	ActivationHeight int32
	// ActivationBlock is the hash of the block at ActivationHeight, once known.
	ActivationBlock *chainhash.Hash
}

// UpgradeInfo carries the display name of an upgrade. Multi-word names use
// '_' so they can be typed into --nuparams.
type UpgradeInfo struct {
	Name string
	Info string
}

// NetworkUpgradeInfo is ordered by UpgradeIndex.
var NetworkUpgradeInfo = [MaxNetworkUpgrades]UpgradeInfo{
	BaseNetwork:      {Name: "Base", Info: "Base network"},
	UpgradePoS:       {Name: "PoS", Info: "Proof of Stake Consensus activation"},
	UpgradeTestDummy: {Name: "Test_dummy", Info: "Test dummy info"},
}

func (idx UpgradeIndex) String() string {
	if idx < MaxNetworkUpgrades {
		return NetworkUpgradeInfo[idx].Name
	}
	return fmt.Sprintf("upgrade(%d)", uint32(idx))
}

// UpgradeState is the lifecycle position of an upgrade at a height.
type UpgradeState uint8

const (
	UpgradeDisabled UpgradeState = iota
	UpgradeActive
	UpgradePending
)

func (s UpgradeState) String() string {
	switch s {
	case UpgradeDisabled:
		return "disabled"
	case UpgradeActive:
		return "active"
	case UpgradePending:
		return "pending"
	default:
		return "unknown"
	}
}

func checkUpgradeIndex(idx UpgradeIndex) {
	if idx >= MaxNetworkUpgrades {
		panic(fmt.Sprintf("params: upgrade index %d out of range", idx))
	}
}

// NetworkUpgradeState reports the state of upgrade idx at height. The block at
// ActivationHeight-1 is still governed by the old rules. Negative heights are
// a caller bug and panic.
func (p *Params) NetworkUpgradeState(height int32, idx UpgradeIndex) UpgradeState {
	if height < 0 {
		panic(fmt.Sprintf("params: negative height %d", height))
	}
	checkUpgradeIndex(idx)

	activation := p.Upgrades[idx].ActivationHeight
	switch {
	case activation == NoActivationHeight:
		return UpgradeDisabled
	case height >= activation:
		return UpgradeActive
	default:
		return UpgradePending
	}
}

// NetworkUpgradeActive reports whether upgrade idx governs the block at height.
func (p *Params) NetworkUpgradeActive(height int32, idx UpgradeIndex) bool {
	return p.NetworkUpgradeState(height, idx) == UpgradeActive
}

// CurrentEpoch returns the newest upgrade active at height, falling back to
// BaseNetwork.
func (p *Params) CurrentEpoch(height int32) UpgradeIndex {
	for idx := MaxNetworkUpgrades - 1; idx > BaseNetwork; idx-- {
		if p.NetworkUpgradeActive(height, idx) {
			return idx
		}
	}
	return BaseNetwork
}

// IsActivationHeight reports whether height is exactly the activation height
// of upgrade idx. BaseNetwork is never an activation event.
func (p *Params) IsActivationHeight(height int32, idx UpgradeIndex) bool {
	if height < 0 {
		panic(fmt.Sprintf("params: negative height %d", height))
	}
	checkUpgradeIndex(idx)
	if idx == BaseNetwork {
		return false
	}
	return height == p.Upgrades[idx].ActivationHeight
}

// IsActivationHeightForAnyUpgrade reports whether any upgrade activates at height.
func (p *Params) IsActivationHeightForAnyUpgrade(height int32) bool {
	if height < 0 {
		return false
	}
	for idx := BaseNetwork + 1; idx < MaxNetworkUpgrades; idx++ {
		if height == p.Upgrades[idx].ActivationHeight {
			return true
		}
	}
	return false
}

// NextEpoch returns the lowest upgrade still pending at height.
func (p *Params) NextEpoch(height int32) (UpgradeIndex, bool) {
	for idx := BaseNetwork + 1; idx < MaxNetworkUpgrades; idx++ {
		if p.NetworkUpgradeState(height, idx) == UpgradePending {
			return idx, true
		}
	}
	return 0, false
}

// NextActivationHeight returns the activation height of NextEpoch(height).
func (p *Params) NextActivationHeight(height int32) (int32, bool) {
	idx, ok := p.NextEpoch(height)
	if !ok {
		return 0, false
	}
	return p.Upgrades[idx].ActivationHeight, true
}

// UpdateNetworkUpgradeParameters moves the activation height of an upgrade.
// Only regtest accepts it.
func (p *Params) UpdateNetworkUpgradeParameters(idx UpgradeIndex, height int32) error {
	if p.Net != RegTest {
		return fmt.Errorf("network upgrade parameters may only be overridden on regtest")
	}
	if idx == BaseNetwork || idx >= MaxNetworkUpgrades {
		return fmt.Errorf("upgrade %s cannot be overridden", idx)
	}
	if height < NoActivationHeight {
		return fmt.Errorf("invalid activation height %d for %s", height, idx)
	}
	p.Upgrades[idx].ActivationHeight = height
	return nil
}

// ApplyNetworkUpgradeOverrides parses a "name:height,name:height" list (as
// given to --nuparams) and applies it.
func (p *Params) ApplyNetworkUpgradeOverrides(overrides string) error {
	for _, item := range strings.Split(overrides, ",") {
		item = strings.TrimSpace(item)
		if item == "" {
			continue
		}
		parts := strings.Split(item, ":")
		if len(parts) != 2 {
			return fmt.Errorf("network upgrade override %q is not name:height", item)
		}
		idx, ok := upgradeByName(parts[0])
		if !ok {
			return fmt.Errorf("unknown network upgrade %q", parts[0])
		}
		height, err := strconv.ParseInt(parts[1], 10, 32)
		if err != nil {
			return fmt.Errorf("invalid activation height %q: %w", parts[1], err)
		}
		if err := p.UpdateNetworkUpgradeParameters(idx, int32(height)); err != nil {
			return err
		}
	}
	return nil
}

func upgradeByName(name string) (UpgradeIndex, bool) {
	for idx := BaseNetwork; idx < MaxNetworkUpgrades; idx++ {
		if NetworkUpgradeInfo[idx].Name == name {
			return idx, true
		}
	}
	return 0, false
}
