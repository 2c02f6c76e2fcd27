package kv

import (
	"path/filepath"
	"testing"
)

func backends(t *testing.T) map[string]Backend {
	t.Helper()
	fb, err := OpenFileBackend(filepath.Join(t.TempDir(), "log"), 16)
	if err != nil {
		t.Fatalf("open file backend: %v", err)
	}
	t.Cleanup(func() { fb.Close() })
	return map[string]Backend{
		"mem":  NewMemBackend(),
		"file": fb,
	}
}

func TestPutGetErase(t *testing.T) {
	for name, b := range backends(t) {
		t.Run(name, func(t *testing.T) {
			if err := b.Put([]byte("a"), []byte("1")); err != nil {
				t.Fatalf("put: %v", err)
			}
			v, err := b.Get([]byte("a"))
			if err != nil || string(v) != "1" {
				t.Fatalf("get = %q, %v", v, err)
			}
			if err := b.Erase([]byte("a")); err != nil {
				t.Fatalf("erase: %v", err)
			}
			if _, err := b.Get([]byte("a")); err != ErrNotFound {
				t.Fatalf("expected ErrNotFound, got %v", err)
			}
		})
	}
}

func TestOrderedIteration(t *testing.T) {
	for name, b := range backends(t) {
		t.Run(name, func(t *testing.T) {
			for _, k := range []string{"c", "a", "b"} {
				if err := b.Put([]byte(k), []byte(k)); err != nil {
					t.Fatalf("put: %v", err)
				}
			}
			var got []string
			for c := b.Begin(); c.Valid(); c.Next() {
				got = append(got, string(c.Key()))
			}
			want := []string{"a", "b", "c"}
			if len(got) != len(want) {
				t.Fatalf("got %v want %v", got, want)
			}
			for i := range want {
				if got[i] != want[i] {
					t.Fatalf("got %v want %v", got, want)
				}
			}
		})
	}
}

func TestLowerBound(t *testing.T) {
	for name, b := range backends(t) {
		t.Run(name, func(t *testing.T) {
			for _, k := range []string{"a", "c", "e"} {
				b.Put([]byte(k), []byte(k))
			}
			c := b.LowerBound([]byte("b"))
			if !c.Valid() || string(c.Key()) != "c" {
				t.Fatalf("lower_bound(b) = %q", c.Key())
			}
		})
	}
}

func TestHeaderRoundTrip(t *testing.T) {
	for name, b := range backends(t) {
		t.Run(name, func(t *testing.T) {
			if err := b.SetHeader([]byte("header-blob")); err != nil {
				t.Fatalf("set header: %v", err)
			}
			if string(b.Header()) != "header-blob" {
				t.Fatalf("header = %q", b.Header())
			}
		})
	}
}

func TestFileBackendCompact(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "log")
	fb, err := OpenFileBackend(path, 16)
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	defer fb.Close()

	fb.Put([]byte("a"), []byte("1"))
	fb.Put([]byte("a"), []byte("2"))
	fb.Put([]byte("b"), []byte("3"))
	fb.Erase([]byte("b"))
	fb.Put([]byte("c"), []byte("4"))

	if err := fb.Compact(); err != nil {
		t.Fatalf("compact: %v", err)
	}

	v, err := fb.Get([]byte("a"))
	if err != nil || string(v) != "2" {
		t.Fatalf("get a after compact = %q, %v", v, err)
	}
	if _, err := fb.Get([]byte("b")); err != ErrNotFound {
		t.Fatalf("expected b erased after compact, got %v", err)
	}
	v, err = fb.Get([]byte("c"))
	if err != nil || string(v) != "4" {
		t.Fatalf("get c after compact = %q, %v", v, err)
	}

	fb.Close()
	fb2, err := OpenFileBackend(path, 16)
	if err != nil {
		t.Fatalf("reopen after compact: %v", err)
	}
	defer fb2.Close()
	v, err = fb2.Get([]byte("a"))
	if err != nil || string(v) != "2" {
		t.Fatalf("get a after reopen = %q, %v", v, err)
	}
}

func TestFileBackendReplay(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "log")
	fb, err := OpenFileBackend(path, 16)
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	fb.Put([]byte("a"), []byte("1"))
	fb.Put([]byte("b"), []byte("2"))
	fb.Erase([]byte("a"))
	fb.Close()

	fb2, err := OpenFileBackend(path, 16)
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	defer fb2.Close()
	if _, err := fb2.Get([]byte("a")); err != ErrNotFound {
		t.Fatalf("expected a to be erased, got %v", err)
	}
	v, err := fb2.Get([]byte("b"))
	if err != nil || string(v) != "2" {
		t.Fatalf("get b = %q, %v", v, err)
	}
}
