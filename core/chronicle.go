package core

import "sync"

// Chronicler is the single writer of record for events and logs produced
// during block application. It assigns each event a strictly increasing,
// dense sequence number and, when a session is attached, mirrors the same
// event into that session's own buffer so a failed transaction's events
// can be discarded independently of the block-wide record.
type Chronicler struct {
	mu      sync.Mutex
	seq     uint32
	events  []Event
	logs    []string
	session *sessionMirror
}

// sessionMirror buffers events/logs for the currently attached session so
// they can be dropped on rollback without touching the chronicler's own
// permanent record.
type sessionMirror struct {
	events []Event
	logs   []string
}

// NewChronicler constructs an empty chronicler.
func NewChronicler() *Chronicler {
	return &Chronicler{}
}

// Attach binds a session mirror; detach with Detach once the session ends.
func (c *Chronicler) Attach() *sessionMirror {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.session = &sessionMirror{}
	return c.session
}

// Detach clears the attached session mirror.
func (c *Chronicler) Detach() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.session = nil
}

// Emit implements EventSink: it assigns the event the next dense sequence
// number and records it in both the permanent log and the active session
// mirror, if any.
func (c *Chronicler) Emit(ev Event) {
	c.mu.Lock()
	defer c.mu.Unlock()
	ev.Sequence = c.seq
	c.seq++
	c.events = append(c.events, ev)
	if c.session != nil {
		c.session.events = append(c.session.events, ev)
	}
}

// Log implements LogSink.
func (c *Chronicler) Log(source ContractID, message string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.logs = append(c.logs, message)
	if c.session != nil {
		c.session.logs = append(c.session.logs, message)
	}
}

// Events returns the permanent, block-wide event record in sequence order.
func (c *Chronicler) Events() []Event {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]Event, len(c.events))
	copy(out, c.events)
	return out
}

// Logs returns the permanent, block-wide log buffer.
func (c *Chronicler) Logs() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]string, len(c.logs))
	copy(out, c.logs)
	return out
}

// SessionEvents returns whatever the currently attached session has mirrored
// so far, for assembling a transaction receipt before rollback discards it.
func (m *sessionMirror) SessionEvents() []Event {
	out := make([]Event, len(m.events))
	copy(out, m.events)
	return out
}
