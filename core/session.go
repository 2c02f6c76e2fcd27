package core

// ResourceSink, EventSink, and LogSink are the three narrow interfaces a
// Session composes instead of inheriting a monolithic execution-context
// base (design note 9). ResourceMeter, Chronicler, and any contract-side
// logger satisfy them directly.
type ResourceSink interface {
	ConsumeDisk(n uint64) error
	ConsumeNetwork(n uint64) error
	ConsumeTicks(tier ComputeTier) error
	ConsumeRawTicks(n uint64) error
	RemainingTicks() uint64
}

type EventSink interface {
	Emit(ev Event)
}

type LogSink interface {
	Log(source ContractID, message string)
}

type undoRecord struct {
	space   ObjectSpace
	key     []byte
	present bool
	tomb    bool
	value   []byte
}

// Session is a nested, rollback/commit-scoped view over one anonymous
// state node (section 5). A transaction runs in a root session; any
// sub-call (contract-to-contract) runs in a child session so a failure
// deep in the call stack unwinds only that sub-call's writes.
type Session struct {
	db     *StateDB
	handle int
	parent *Session

	Resources ResourceSink
	Events    EventSink
	Logs      LogSink

	meterMark meterSnapshot
	undo      []undoRecord
	closed    bool
}

// NewSession opens a root session over handle.
func NewSession(db *StateDB, handle int, resources ResourceSink, events EventSink, logs LogSink) *Session {
	s := &Session{db: db, handle: handle, Resources: resources, Events: events, Logs: logs}
	if m, ok := resources.(*ResourceMeter); ok {
		s.meterMark = m.snapshot()
	}
	return s
}

// Begin opens a nested child session sharing the same node and sinks.
func (s *Session) Begin() *Session {
	child := &Session{
		db:        s.db,
		handle:    s.handle,
		parent:    s,
		Resources: s.Resources,
		Events:    s.Events,
		Logs:      s.Logs,
	}
	if m, ok := s.Resources.(*ResourceMeter); ok {
		child.meterMark = m.snapshot()
	}
	return child
}

func (s *Session) Get(space ObjectSpace, key []byte) ([]byte, error) {
	return s.db.Get(s.handle, space, key)
}

// Put records an undo entry, then applies the write to the underlying node.
func (s *Session) Put(space ObjectSpace, key, value []byte) error {
	v, tomb, present := s.db.peekEntry(s.handle, space, key)
	s.undo = append(s.undo, undoRecord{space: space, key: append([]byte(nil), key...), present: present, tomb: tomb, value: v})
	return s.db.Put(s.handle, space, key, value)
}

func (s *Session) Erase(space ObjectSpace, key []byte) error {
	v, tomb, present := s.db.peekEntry(s.handle, space, key)
	s.undo = append(s.undo, undoRecord{space: space, key: append([]byte(nil), key...), present: present, tomb: tomb, value: v})
	return s.db.Erase(s.handle, space, key)
}

// Commit finalizes the session's writes. For a nested session this hands
// its undo log up to the parent so an outer rollback still unwinds it; a
// root session's writes are already durable on the node's delta layer.
func (s *Session) Commit() error {
	if s.closed {
		return nil
	}
	s.closed = true
	if s.parent != nil {
		s.parent.undo = append(s.parent.undo, s.undo...)
	}
	return nil
}

// Rollback undoes every write this session made, in reverse order, and
// restores the resource meter to the mark taken at Begin/NewSession.
func (s *Session) Rollback() error {
	if s.closed {
		return nil
	}
	s.closed = true
	for i := len(s.undo) - 1; i >= 0; i-- {
		u := s.undo[i]
		s.db.restoreEntry(s.handle, u.space, u.key, u.present, u.tomb, u.value)
	}
	if m, ok := s.Resources.(*ResourceMeter); ok {
		m.restore(s.meterMark)
	}
	return nil
}
