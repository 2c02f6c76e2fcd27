package core

// Operation is a single contract invocation inside a transaction.
type Operation struct {
	Contract   ContractID
	EntryPoint uint32
	Args       []byte
}

// Transaction is the unit of work applied inside a session of its own
// during block application (section 4.E).
type Transaction struct {
	ID           [32]byte
	Payer        ContractID
	Operations   []Operation
	DiskLimit    uint64
	NetworkLimit uint64
	TickLimit    uint64
}

// Block is the unit SubmitBlock/ProposeBlock apply against the tree.
type Block struct {
	ID         BlockID
	ParentID   BlockID
	Height     uint64
	Timestamp  int64
	BurnWeight uint64

	Transactions []Transaction
}
