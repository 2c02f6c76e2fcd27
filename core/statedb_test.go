package core

import "testing"

func openTestDB(t *testing.T) *StateDB {
	t.Helper()
	db, err := OpenStateDB(StateDBConfig{})
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	return db
}

func TestGenesisBootstrap(t *testing.T) {
	db := openTestDB(t)
	head := db.Head()
	if head == nil || head.Height != 0 || head.Condition != Finalized {
		t.Fatalf("unexpected genesis head: %+v", head)
	}
}

func TestLinearAdvance(t *testing.T) {
	db := openTestDB(t)

	n1, err := db.MakeChild(0)
	if err != nil {
		t.Fatalf("make child: %v", err)
	}
	if err := db.Put(n1.Handle, SpaceMetadata, []byte("k"), []byte("v1")); err != nil {
		t.Fatalf("put: %v", err)
	}
	var id1 BlockID
	id1[0] = 1
	if err := db.Finalize(n1.Handle, id1); err != nil {
		t.Fatalf("finalize: %v", err)
	}
	db.RecomputeHead()
	if db.Head().Handle != n1.Handle {
		t.Fatalf("head did not advance")
	}

	v, err := db.Get(n1.Handle, SpaceMetadata, []byte("k"))
	if err != nil || string(v) != "v1" {
		t.Fatalf("get: %v %q", err, v)
	}

	n2, err := db.MakeChild(n1.Handle)
	if err != nil {
		t.Fatalf("make child 2: %v", err)
	}
	// n2 should still see n1's write via overlay lookup.
	v, err = db.Get(n2.Handle, SpaceMetadata, []byte("k"))
	if err != nil || string(v) != "v1" {
		t.Fatalf("overlay get: %v %q", err, v)
	}
	if err := db.Erase(n2.Handle, SpaceMetadata, []byte("k")); err != nil {
		t.Fatalf("erase: %v", err)
	}
	if _, err := db.Get(n2.Handle, SpaceMetadata, []byte("k")); err != ErrNotFound {
		t.Fatalf("expected tombstone to mask ancestor value, got %v", err)
	}
}

func TestForkAndReorg(t *testing.T) {
	db := openTestDB(t)

	a, _ := db.MakeChild(0)
	var idA BlockID
	idA[0] = 0xA
	if err := db.Finalize(a.Handle, idA); err != nil {
		t.Fatalf("finalize a: %v", err)
	}

	b, _ := db.MakeChild(0)
	var idB BlockID
	idB[0] = 0xB
	if err := db.Finalize(b.Handle, idB); err != nil {
		t.Fatalf("finalize b: %v", err)
	}

	db.RecomputeHead()
	first := db.Head().Handle

	heads := db.ForkHeads()
	if len(heads) != 2 {
		t.Fatalf("expected 2 fork heads, got %d", len(heads))
	}

	other := a.Handle
	if first == a.Handle {
		other = b.Handle
	}
	if err := db.SetHead(other); err != nil {
		t.Fatalf("set_head: %v", err)
	}
	if db.Head().Handle != other {
		t.Fatalf("set_head did not move head")
	}

	if err := db.Discard(first); err != nil {
		t.Fatalf("discard former head: %v", err)
	}
	if _, err := db.node(first); err == nil {
		t.Fatalf("discarded node still resolvable")
	}
}

func TestCommitIrreversible(t *testing.T) {
	db := openTestDB(t)

	n1, _ := db.MakeChild(0)
	db.Put(n1.Handle, SpaceMetadata, []byte("k1"), []byte("v1"))
	var id1 BlockID
	id1[0] = 1
	if err := db.Finalize(n1.Handle, id1); err != nil {
		t.Fatalf("finalize 1: %v", err)
	}
	db.SetHead(n1.Handle)

	n2, _ := db.MakeChild(n1.Handle)
	db.Put(n2.Handle, SpaceMetadata, []byte("k2"), []byte("v2"))
	var id2 BlockID
	id2[0] = 2
	if err := db.Finalize(n2.Handle, id2); err != nil {
		t.Fatalf("finalize 2: %v", err)
	}
	db.SetHead(n2.Handle)

	if err := db.CommitIrreversible(1); err != nil {
		t.Fatalf("commit: %v", err)
	}
	v, err := db.Get(n2.Handle, SpaceMetadata, []byte("k1"))
	if err != nil || string(v) != "v1" {
		t.Fatalf("squashed value not visible via root: %v %q", err, v)
	}
	if _, err := db.node(0); err == nil {
		t.Fatalf("genesis should have been discarded after squash")
	}
}

func TestRangeScan(t *testing.T) {
	db := openTestDB(t)
	n1, _ := db.MakeChild(0)
	db.Put(n1.Handle, SpaceMetadata, []byte("a"), []byte("1"))
	db.Put(n1.Handle, SpaceMetadata, []byte("b"), []byte("2"))
	db.Put(n1.Handle, SpaceMetadata, []byte("c"), []byte("3"))

	entries, err := db.Range(n1.Handle, SpaceMetadata, []byte("a"), []byte("c"))
	if err != nil {
		t.Fatalf("range: %v", err)
	}
	if len(entries) != 2 {
		t.Fatalf("expected 2 entries in [a,c), got %d", len(entries))
	}
}

// TestRangeScanUnboundedStaysWithinSpace checks that an unbounded range
// scan (high == nil) on one ObjectSpace never returns keys belonging to a
// different space that happens to sort immediately after it.
func TestRangeScanUnboundedStaysWithinSpace(t *testing.T) {
	db := openTestDB(t)
	n1, _ := db.MakeChild(0)
	db.Put(n1.Handle, SpaceMetadata, []byte("a"), []byte("1"))
	db.Put(n1.Handle, SpaceTransactionNonce, []byte("a"), []byte("should-not-appear"))

	entries, err := db.Range(n1.Handle, SpaceMetadata, nil, nil)
	if err != nil {
		t.Fatalf("range: %v", err)
	}
	if len(entries) != 1 {
		t.Fatalf("expected only SpaceMetadata's entry, got %d: %+v", len(entries), entries)
	}
}

// TestRangeScanMergesAcrossLayersInOrder plants interleaved keys in a
// committed node (and so in the root backend) and in its anonymous child's
// delta, then checks the merged scan comes back in ascending key order
// rather than grouped by which layer a key happened to live in.
func TestRangeScanMergesAcrossLayersInOrder(t *testing.T) {
	db := openTestDB(t)

	n1, _ := db.MakeChild(0)
	db.Put(n1.Handle, SpaceMetadata, []byte("b"), []byte("from-n1"))
	db.Put(n1.Handle, SpaceMetadata, []byte("d"), []byte("from-n1"))
	var id1 BlockID
	id1[0] = 1
	if err := db.Finalize(n1.Handle, id1); err != nil {
		t.Fatalf("finalize n1: %v", err)
	}
	db.SetHead(n1.Handle)
	if err := db.CommitIrreversible(n1.Height); err != nil {
		t.Fatalf("commit: %v", err)
	}

	n2, _ := db.MakeChild(n1.Handle)
	db.Put(n2.Handle, SpaceMetadata, []byte("a"), []byte("from-n2"))
	db.Put(n2.Handle, SpaceMetadata, []byte("c"), []byte("from-n2"))
	db.Put(n2.Handle, SpaceMetadata, []byte("e"), []byte("from-n2"))

	entries, err := db.Range(n2.Handle, SpaceMetadata, nil, nil)
	if err != nil {
		t.Fatalf("range: %v", err)
	}
	want := []string{"a", "b", "c", "d", "e"}
	if len(entries) != len(want) {
		t.Fatalf("got %d entries, want %d: %+v", len(entries), len(want), entries)
	}
	for i, e := range entries {
		gotKey := string(e.Key[len(e.Key)-1:])
		if gotKey != want[i] {
			t.Fatalf("entry %d: got user key suffix %q, want %q (out of order merge)", i, gotKey, want[i])
		}
	}
}
