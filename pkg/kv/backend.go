// Package kv implements the ordered key/value backend contract consumed by
// the state-node tree: put/get/erase plus cursor-based iteration, with a
// memory and a persistent implementation sharing the same interface.
package kv

import "errors"

// ErrNotFound is returned by Get when a key has no value.
var ErrNotFound = errors.New("kv: not found")

// Backend is an ordered byte-key/byte-value map with cursor iteration.
// Implementations must order keys lexicographically.
type Backend interface {
	Put(key, value []byte) error
	Get(key []byte) ([]byte, error) // ErrNotFound if absent
	Erase(key []byte) error

	Find(key []byte) Cursor
	LowerBound(key []byte) Cursor
	Begin() Cursor
	End() Cursor

	// Header returns the backend's opaque block-header blob, its only
	// non-KV metadata (section 6, "persistent state layout").
	Header() []byte
	SetHeader(h []byte) error

	Close() error
}

// Cursor walks a Backend's keys in order. A cursor is invalidated only by
// erasing the key it currently points at; inserts of other keys never
// invalidate it.
type Cursor interface {
	Valid() bool
	Key() []byte
	Value() []byte
	Next()
	Prev()
}
