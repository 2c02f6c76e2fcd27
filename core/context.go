package core

// Frame is one entry in an execution context's call stack (section 4.E).
type Frame struct {
	Caller     ContractID
	Contract   ContractID
	Privilege  Privilege
	EntryPoint uint32
	Args       []byte
}

// ExecutionContext carries everything a thunk or system call needs to act
// on behalf of the block or transaction currently being applied: the state
// node it reads and writes through, its resource/event/log sinks, the WASM
// backend driving it, and its call-stack frames (section 4.E).
type ExecutionContext struct {
	DB      *StateDB
	Handle  int
	Session *Session

	Intent Intent
	Chain  *Chronicler

	Backend *WasmBackend

	frames []Frame

	// ReadOnly forbids Put/Erase even though the underlying node may be
	// writable; set for read_contract and other query-only entry points.
	ReadOnly bool
}

// NewExecutionContext wires a context over an already-open session.
func NewExecutionContext(db *StateDB, handle int, sess *Session, chain *Chronicler, backend *WasmBackend, intent Intent) *ExecutionContext {
	return &ExecutionContext{DB: db, Handle: handle, Session: sess, Chain: chain, Backend: backend, Intent: intent}
}

// PushFrame enters a new call frame, e.g. on invoke_system_call override
// dispatch or a contract-to-contract call thunk.
func (c *ExecutionContext) PushFrame(f Frame) {
	c.frames = append(c.frames, f)
}

// PopFrame leaves the most recent call frame.
func (c *ExecutionContext) PopFrame() {
	if len(c.frames) == 0 {
		return
	}
	c.frames = c.frames[:len(c.frames)-1]
}

// TopFrame returns the current call frame, or the zero Frame if the stack
// is empty (top-level transaction application).
func (c *ExecutionContext) TopFrame() Frame {
	if len(c.frames) == 0 {
		return Frame{}
	}
	return c.frames[len(c.frames)-1]
}

// Privilege returns the privilege level of the current frame.
func (c *ExecutionContext) Privilege() Privilege {
	return c.TopFrame().Privilege
}

// Get reads (space, key) through the context's session.
func (c *ExecutionContext) Get(space ObjectSpace, key []byte) ([]byte, error) {
	return c.Session.Get(space, key)
}

// Put writes (space, key)=value through the context's session.
func (c *ExecutionContext) Put(space ObjectSpace, key, value []byte) error {
	if c.ReadOnly {
		return ErrInsufficientPrivileges
	}
	return c.Session.Put(space, key, value)
}

// Erase removes (space, key) through the context's session.
func (c *ExecutionContext) Erase(space ObjectSpace, key []byte) error {
	if c.ReadOnly {
		return ErrInsufficientPrivileges
	}
	return c.Session.Erase(space, key)
}
