package core

import "bytes"

// ForkChoice selects the head among finalized tips (spec 4.B "algorithms").
// Each implementation breaks ties itself, by block-id lexicographic order.
type ForkChoice interface {
	// Less reports whether a is preferred over b.
	Less(a, b *StateNode) bool
}

// FIFOForkChoice prefers the node that was finalized first.
type FIFOForkChoice struct{}

func (FIFOForkChoice) Less(a, b *StateNode) bool {
	if a.finalizedSeq != b.finalizedSeq {
		return a.finalizedSeq < b.finalizedSeq
	}
	return bytes.Compare(a.ID[:], b.ID[:]) < 0
}

// BlockTimeForkChoice prefers the earliest block timestamp.
type BlockTimeForkChoice struct{}

func (BlockTimeForkChoice) Less(a, b *StateNode) bool {
	if a.Timestamp != b.Timestamp {
		return a.Timestamp < b.Timestamp
	}
	return bytes.Compare(a.ID[:], b.ID[:]) < 0
}

// ProofOfBurnForkChoice prefers the node with the greater externally
// supplied burn weight; ties fall back to block-id order.
type ProofOfBurnForkChoice struct{}

func (ProofOfBurnForkChoice) Less(a, b *StateNode) bool {
	if a.BurnWeight != b.BurnWeight {
		return a.BurnWeight > b.BurnWeight // "greater weight wins" -> Less means "a should be preferred"
	}
	return bytes.Compare(a.ID[:], b.ID[:]) < 0
}
