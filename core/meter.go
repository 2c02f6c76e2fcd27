package core

import "fmt"

// ComputeTier is the cost class of a metered operation (section 5).
type ComputeTier int

const (
	TierLight ComputeTier = iota
	TierMedium
	TierHeavy
)

// Tiered compute-tick costs, section 5 "resource model".
const (
	LightTicks  uint64 = 100
	MediumTicks uint64 = 1000
	HeavyTicks  uint64 = 10000
)

func tierCost(t ComputeTier) uint64 {
	switch t {
	case TierLight:
		return LightTicks
	case TierMedium:
		return MediumTicks
	case TierHeavy:
		return HeavyTicks
	default:
		return HeavyTicks
	}
}

// ResourceMeter tracks the three budgets of an execution (section 5):
// disk bytes, network bytes, and compute ticks. It is the generalization
// of a single-dimension gas meter to the spec's three-dimensional model.
type ResourceMeter struct {
	diskUsed, diskLimit       uint64
	networkUsed, networkLimit uint64
	ticksUsed, ticksLimit     uint64
}

// NewResourceMeter constructs a meter with the given budgets.
func NewResourceMeter(diskLimit, networkLimit, ticksLimit uint64) *ResourceMeter {
	return &ResourceMeter{
		diskLimit:    diskLimit,
		networkLimit: networkLimit,
		ticksLimit:   ticksLimit,
	}
}

// ConsumeDisk charges n bytes against the disk budget.
func (m *ResourceMeter) ConsumeDisk(n uint64) error {
	if m.diskUsed+n > m.diskLimit {
		return fmt.Errorf("statedb: disk budget exceeded (%d/%d): %w", m.diskUsed+n, m.diskLimit, ErrTickMeterExhausted)
	}
	m.diskUsed += n
	return nil
}

// ConsumeNetwork charges n bytes against the network budget.
func (m *ResourceMeter) ConsumeNetwork(n uint64) error {
	if m.networkUsed+n > m.networkLimit {
		return fmt.Errorf("statedb: network budget exceeded (%d/%d): %w", m.networkUsed+n, m.networkLimit, ErrTickMeterExhausted)
	}
	m.networkUsed += n
	return nil
}

// ConsumeTicks charges the tiered cost of tier against the compute budget.
func (m *ResourceMeter) ConsumeTicks(tier ComputeTier) error {
	return m.ConsumeRawTicks(tierCost(tier))
}

// ConsumeRawTicks charges an exact tick amount, used by the WASM backend's
// use_meter_ticks host primitive which reports metered costs directly.
func (m *ResourceMeter) ConsumeRawTicks(n uint64) error {
	if m.ticksUsed+n > m.ticksLimit {
		return fmt.Errorf("%w (%d/%d)", ErrTickMeterExhausted, m.ticksUsed+n, m.ticksLimit)
	}
	m.ticksUsed += n
	return nil
}

// RemainingTicks reports the unspent compute-tick budget.
func (m *ResourceMeter) RemainingTicks() uint64 {
	return m.ticksLimit - m.ticksUsed
}

// Usage snapshots the meter's consumption, for receipts and account
// resource-credit bookkeeping.
type Usage struct {
	Disk, Network, Ticks uint64
}

func (m *ResourceMeter) Usage() Usage {
	return Usage{Disk: m.diskUsed, Network: m.networkUsed, Ticks: m.ticksUsed}
}

// snapshot captures the meter's current counters for nested-session
// rollback (section 5 "nested sessions").
type meterSnapshot struct {
	diskUsed, networkUsed, ticksUsed uint64
}

func (m *ResourceMeter) snapshot() meterSnapshot {
	return meterSnapshot{diskUsed: m.diskUsed, networkUsed: m.networkUsed, ticksUsed: m.ticksUsed}
}

func (m *ResourceMeter) restore(s meterSnapshot) {
	m.diskUsed, m.networkUsed, m.ticksUsed = s.diskUsed, s.networkUsed, s.ticksUsed
}
