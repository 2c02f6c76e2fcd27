package kv

import (
	"bytes"
	"sort"
)

// MemBackend is an in-memory ordered map, used as the state database's
// root backend when no path is configured (tests, ephemeral nodes).
type MemBackend struct {
	keys   [][]byte
	values map[string][]byte
	header []byte
}

// NewMemBackend returns an empty in-memory backend.
func NewMemBackend() *MemBackend {
	return &MemBackend{values: make(map[string][]byte)}
}

func (m *MemBackend) search(key []byte) int {
	return sort.Search(len(m.keys), func(i int) bool { return bytes.Compare(m.keys[i], key) >= 0 })
}

func (m *MemBackend) Put(key, value []byte) error {
	k := string(key)
	if _, exists := m.values[k]; !exists {
		i := m.search(key)
		m.keys = append(m.keys, nil)
		copy(m.keys[i+1:], m.keys[i:])
		cp := make([]byte, len(key))
		copy(cp, key)
		m.keys[i] = cp
	}
	cp := make([]byte, len(value))
	copy(cp, value)
	m.values[k] = cp
	return nil
}

func (m *MemBackend) Get(key []byte) ([]byte, error) {
	v, ok := m.values[string(key)]
	if !ok {
		return nil, ErrNotFound
	}
	return v, nil
}

func (m *MemBackend) Erase(key []byte) error {
	k := string(key)
	if _, ok := m.values[k]; !ok {
		return nil
	}
	delete(m.values, k)
	i := m.search(key)
	if i < len(m.keys) && bytes.Equal(m.keys[i], key) {
		m.keys = append(m.keys[:i], m.keys[i+1:]...)
	}
	return nil
}

func (m *MemBackend) Header() []byte { return m.header }

func (m *MemBackend) SetHeader(h []byte) error {
	m.header = append([]byte(nil), h...)
	return nil
}

func (m *MemBackend) Close() error { return nil }

func (m *MemBackend) Find(key []byte) Cursor {
	i := m.search(key)
	if i >= len(m.keys) || !bytes.Equal(m.keys[i], key) {
		return &memCursor{m: m, idx: len(m.keys)}
	}
	return &memCursor{m: m, idx: i}
}

func (m *MemBackend) LowerBound(key []byte) Cursor {
	return &memCursor{m: m, idx: m.search(key)}
}

func (m *MemBackend) Begin() Cursor { return &memCursor{m: m, idx: 0} }
func (m *MemBackend) End() Cursor   { return &memCursor{m: m, idx: len(m.keys)} }

type memCursor struct {
	m   *MemBackend
	idx int
}

func (c *memCursor) Valid() bool { return c.idx >= 0 && c.idx < len(c.m.keys) }

func (c *memCursor) Key() []byte {
	if !c.Valid() {
		return nil
	}
	return c.m.keys[c.idx]
}

func (c *memCursor) Value() []byte {
	if !c.Valid() {
		return nil
	}
	return c.m.values[string(c.m.keys[c.idx])]
}

func (c *memCursor) Next() { c.idx++ }
func (c *memCursor) Prev() { c.idx-- }
