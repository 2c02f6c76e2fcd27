package kv

import (
	"bufio"
	"bytes"
	"encoding/binary"
	"fmt"
	"io"
	"os"
	"sort"

	lru "github.com/hashicorp/golang-lru/v2"
)

const (
	opPut   byte = 1
	opErase byte = 0
)

// FileBackend is a log-structured persistent backend: every mutation is
// appended to a file and the current key set is kept sorted in memory, with
// a bounded LRU cache fronting value reads so repeated lookups of hot keys
// skip the file entirely.
type FileBackend struct {
	path       string
	f          *os.File
	keys       [][]byte
	offsets    map[string]int64 // key -> record offset, for rebuilding the cache on a miss
	cache      *lru.Cache[string, []byte]
	header     []byte
	headerPath string
}

// OpenFileBackend opens (creating if absent) a log file at path and replays
// it to rebuild the ordered key index. cacheSize bounds the LRU value cache.
func OpenFileBackend(path string, cacheSize int) (*FileBackend, error) {
	f, err := os.OpenFile(path, os.O_CREATE|os.O_RDWR, 0o600)
	if err != nil {
		return nil, fmt.Errorf("kv: open %s: %w", path, err)
	}
	if cacheSize <= 0 {
		cacheSize = 1024
	}
	cache, err := lru.New[string, []byte](cacheSize)
	if err != nil {
		return nil, err
	}
	b := &FileBackend{
		path:       path,
		f:          f,
		offsets:    make(map[string]int64),
		cache:      cache,
		headerPath: path + ".header",
	}
	if err := b.replay(); err != nil {
		f.Close()
		return nil, err
	}
	if hb, err := os.ReadFile(b.headerPath); err == nil {
		b.header = hb
	}
	return b, nil
}

func (b *FileBackend) replay() error {
	if _, err := b.f.Seek(0, io.SeekStart); err != nil {
		return err
	}
	r := bufio.NewReader(b.f)
	present := make(map[string]bool)
	var offset int64
	for {
		recStart := offset
		op, err := r.ReadByte()
		if err == io.EOF {
			break
		}
		if err != nil {
			return fmt.Errorf("kv: read log: %w", err)
		}
		offset++
		var klen uint32
		if err := binary.Read(r, binary.BigEndian, &klen); err != nil {
			return fmt.Errorf("kv: corrupt log header: %w", err)
		}
		offset += 4
		key := make([]byte, klen)
		if _, err := io.ReadFull(r, key); err != nil {
			return fmt.Errorf("kv: corrupt log key: %w", err)
		}
		offset += int64(klen)

		switch op {
		case opPut:
			var vlen uint32
			if err := binary.Read(r, binary.BigEndian, &vlen); err != nil {
				return fmt.Errorf("kv: corrupt log value header: %w", err)
			}
			offset += 4
			val := make([]byte, vlen)
			if _, err := io.ReadFull(r, val); err != nil {
				return fmt.Errorf("kv: corrupt log value: %w", err)
			}
			offset += int64(vlen)
			present[string(key)] = true
			b.offsets[string(key)] = recStart
		case opErase:
			delete(present, string(key))
			delete(b.offsets, string(key))
		default:
			return fmt.Errorf("kv: unknown log op %d", op)
		}
	}
	b.keys = make([][]byte, 0, len(present))
	for k := range present {
		b.keys = append(b.keys, []byte(k))
	}
	sort.Slice(b.keys, func(i, j int) bool { return bytes.Compare(b.keys[i], b.keys[j]) < 0 })
	return nil
}

func (b *FileBackend) search(key []byte) int {
	return sort.Search(len(b.keys), func(i int) bool { return bytes.Compare(b.keys[i], key) >= 0 })
}

func (b *FileBackend) appendRecord(op byte, key, value []byte) (int64, error) {
	off, err := b.f.Seek(0, io.SeekEnd)
	if err != nil {
		return 0, err
	}
	buf := &bytes.Buffer{}
	buf.WriteByte(op)
	binary.Write(buf, binary.BigEndian, uint32(len(key)))
	buf.Write(key)
	if op == opPut {
		binary.Write(buf, binary.BigEndian, uint32(len(value)))
		buf.Write(value)
	}
	if _, err := b.f.Write(buf.Bytes()); err != nil {
		return 0, err
	}
	return off, nil
}

func (b *FileBackend) Put(key, value []byte) error {
	off, err := b.appendRecord(opPut, key, value)
	if err != nil {
		return err
	}
	k := string(key)
	if _, existed := b.offsets[k]; !existed {
		i := b.search(key)
		b.keys = append(b.keys, nil)
		copy(b.keys[i+1:], b.keys[i:])
		cp := make([]byte, len(key))
		copy(cp, key)
		b.keys[i] = cp
	}
	b.offsets[k] = off
	cp := make([]byte, len(value))
	copy(cp, value)
	b.cache.Add(k, cp)
	return nil
}

func (b *FileBackend) Get(key []byte) ([]byte, error) {
	k := string(key)
	if v, ok := b.cache.Get(k); ok {
		return v, nil
	}
	off, ok := b.offsets[k]
	if !ok {
		return nil, ErrNotFound
	}
	if _, err := b.f.Seek(off, io.SeekStart); err != nil {
		return nil, err
	}
	r := bufio.NewReader(b.f)
	r.ReadByte()
	var klen uint32
	binary.Read(r, binary.BigEndian, &klen)
	io.CopyN(io.Discard, r, int64(klen))
	var vlen uint32
	if err := binary.Read(r, binary.BigEndian, &vlen); err != nil {
		return nil, fmt.Errorf("kv: read value: %w", err)
	}
	val := make([]byte, vlen)
	if _, err := io.ReadFull(r, val); err != nil {
		return nil, fmt.Errorf("kv: read value: %w", err)
	}
	b.cache.Add(k, val)
	return val, nil
}

func (b *FileBackend) Erase(key []byte) error {
	k := string(key)
	if _, ok := b.offsets[k]; !ok {
		return nil
	}
	if _, err := b.appendRecord(opErase, key, nil); err != nil {
		return err
	}
	delete(b.offsets, k)
	b.cache.Remove(k)
	i := b.search(key)
	if i < len(b.keys) && bytes.Equal(b.keys[i], key) {
		b.keys = append(b.keys[:i], b.keys[i+1:]...)
	}
	return nil
}

func (b *FileBackend) Header() []byte { return b.header }

func (b *FileBackend) SetHeader(h []byte) error {
	if err := os.WriteFile(b.headerPath, h, 0o600); err != nil {
		return err
	}
	b.header = append([]byte(nil), h...)
	return nil
}

func (b *FileBackend) Close() error { return b.f.Close() }

// Compact rewrites the log file to hold a single Put record per live key,
// discarding superseded writes and erase records — the same WAL-truncation
// idiom as a full ledger snapshot, bounding the log's growth without
// changing the key set it represents.
func (b *FileBackend) Compact() error {
	tmpPath := b.path + ".compact"
	tmp, err := os.OpenFile(tmpPath, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0o600)
	if err != nil {
		return fmt.Errorf("kv: compact: create temp log: %w", err)
	}

	newOffsets := make(map[string]int64, len(b.keys))
	var offset int64
	buf := &bytes.Buffer{}
	for _, k := range b.keys {
		v, err := b.Get(k)
		if err != nil {
			tmp.Close()
			os.Remove(tmpPath)
			return fmt.Errorf("kv: compact: read %q: %w", k, err)
		}
		buf.Reset()
		buf.WriteByte(opPut)
		binary.Write(buf, binary.BigEndian, uint32(len(k)))
		buf.Write(k)
		binary.Write(buf, binary.BigEndian, uint32(len(v)))
		buf.Write(v)
		newOffsets[string(k)] = offset
		offset += int64(buf.Len())
		if _, err := tmp.Write(buf.Bytes()); err != nil {
			tmp.Close()
			os.Remove(tmpPath)
			return fmt.Errorf("kv: compact: write temp log: %w", err)
		}
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("kv: compact: close temp log: %w", err)
	}

	if err := b.f.Close(); err != nil {
		return fmt.Errorf("kv: compact: close log: %w", err)
	}
	if err := os.Rename(tmpPath, b.path); err != nil {
		return fmt.Errorf("kv: compact: replace log: %w", err)
	}
	f, err := os.OpenFile(b.path, os.O_CREATE|os.O_RDWR, 0o600)
	if err != nil {
		return fmt.Errorf("kv: compact: reopen log: %w", err)
	}
	b.f = f
	b.offsets = newOffsets
	b.cache.Purge()
	return nil
}

func (b *FileBackend) Find(key []byte) Cursor {
	i := b.search(key)
	if i >= len(b.keys) || !bytes.Equal(b.keys[i], key) {
		return &fileCursor{b: b, idx: len(b.keys)}
	}
	return &fileCursor{b: b, idx: i}
}

func (b *FileBackend) LowerBound(key []byte) Cursor {
	return &fileCursor{b: b, idx: b.search(key)}
}

func (b *FileBackend) Begin() Cursor { return &fileCursor{b: b, idx: 0} }
func (b *FileBackend) End() Cursor   { return &fileCursor{b: b, idx: len(b.keys)} }

type fileCursor struct {
	b   *FileBackend
	idx int
}

func (c *fileCursor) Valid() bool { return c.idx >= 0 && c.idx < len(c.b.keys) }

func (c *fileCursor) Key() []byte {
	if !c.Valid() {
		return nil
	}
	return c.b.keys[c.idx]
}

func (c *fileCursor) Value() []byte {
	if !c.Valid() {
		return nil
	}
	v, _ := c.b.Get(c.b.keys[c.idx])
	return v
}

func (c *fileCursor) Next() { c.idx++ }
func (c *fileCursor) Prev() { c.idx-- }
