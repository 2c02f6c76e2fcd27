// Package core implements the execution and state layer of the node: the
// forked state database, the resource meter and sessions, the chronicler,
// the thunk dispatcher, the system-call table, the WASM backend and the
// execution context/controller that ties them together.
package core

import (
	"github.com/ethereum/go-ethereum/common"
)

// BlockID identifies a state node once it has been finalized. Genesis uses
// the zero value.
type BlockID = common.Hash

// ContractID identifies a contract's address space.
type ContractID = common.Address

// ObjectSpace partitions the address space of a state node. Ordering is
// lexicographic on (Zone, System, ID), matching spec section 3.
type ObjectSpace struct {
	Zone   []byte
	ID     uint32
	System bool
}

// Equal reports whether two spaces address the same partition.
func (s ObjectSpace) Equal(o ObjectSpace) bool {
	return string(s.Zone) == string(o.Zone) && s.ID == o.ID && s.System == o.System
}

// Privilege is the privilege level of a stack frame.
type Privilege int

const (
	PrivilegeUser Privilege = iota
	PrivilegeKernel
)

// Intent describes why an execution context was opened.
type Intent int

const (
	IntentBlockApplication Intent = iota
	IntentTransactionApplication
	IntentReadOnly
)

// Event is a single chronicler record (spec section 3).
type Event struct {
	Source      ContractID
	Name        string
	Payload     []byte
	ImpactedIDs [][]byte
	Sequence    uint32
}

// TransactionReceipt is the per-transaction outcome folded into a Receipt.
type TransactionReceipt struct {
	ID          BlockID
	Success     bool
	Code        string
	Diagnostic  string
	ComputeUsed uint64
	Events      []Event
	Logs        []string
}

// Receipt is the outcome of applying a block (spec section 3).
type Receipt struct {
	BlockID            BlockID
	ComputeUsed        uint64
	ComputeCharged     uint64
	DiskUsed           uint64
	NetworkUsed        uint64
	Events             []Event
	Logs               []string
	StateDeltaEntries  int
	TransactionReceipt []TransactionReceipt
}
