package core

import "testing"

type nullEvents struct{ events []Event }

func (n *nullEvents) Emit(ev Event) { n.events = append(n.events, ev) }

type nullLogs struct{ lines []string }

func (n *nullLogs) Log(source ContractID, message string) { n.lines = append(n.lines, message) }

func TestMeterBudgets(t *testing.T) {
	m := NewResourceMeter(100, 100, 1000)
	if err := m.ConsumeTicks(TierLight); err != nil {
		t.Fatalf("light tick: %v", err)
	}
	if m.RemainingTicks() != 900 {
		t.Fatalf("remaining = %d, want 900", m.RemainingTicks())
	}
	if err := m.ConsumeTicks(TierHeavy); err == nil {
		t.Fatalf("expected tick exhaustion")
	}
}

func TestSessionRollback(t *testing.T) {
	db := openTestDB(t)
	n1, _ := db.MakeChild(0)
	db.Put(n1.Handle, SpaceMetadata, []byte("k"), []byte("original"))

	meter := NewResourceMeter(1000, 1000, 1000)
	events := &nullEvents{}
	logs := &nullLogs{}
	sess := NewSession(db, n1.Handle, meter, events, logs)

	if err := sess.Put(SpaceMetadata, []byte("k"), []byte("changed")); err != nil {
		t.Fatalf("put: %v", err)
	}
	meter.ConsumeTicks(TierMedium)

	if err := sess.Rollback(); err != nil {
		t.Fatalf("rollback: %v", err)
	}
	v, err := db.Get(n1.Handle, SpaceMetadata, []byte("k"))
	if err != nil || string(v) != "original" {
		t.Fatalf("rollback did not restore value: %v %q", err, v)
	}
	if meter.RemainingTicks() != 1000 {
		t.Fatalf("rollback did not restore meter")
	}
}

func TestNestedSessionCommitPropagatesUndo(t *testing.T) {
	db := openTestDB(t)
	n1, _ := db.MakeChild(0)
	db.Put(n1.Handle, SpaceMetadata, []byte("k"), []byte("original"))

	meter := NewResourceMeter(1000, 1000, 1000)
	root := NewSession(db, n1.Handle, meter, &nullEvents{}, &nullLogs{})
	child := root.Begin()
	if err := child.Put(SpaceMetadata, []byte("k"), []byte("child-write")); err != nil {
		t.Fatalf("child put: %v", err)
	}
	if err := child.Commit(); err != nil {
		t.Fatalf("child commit: %v", err)
	}
	// The outer rollback must still unwind the child's write.
	if err := root.Rollback(); err != nil {
		t.Fatalf("root rollback: %v", err)
	}
	v, err := db.Get(n1.Handle, SpaceMetadata, []byte("k"))
	if err != nil || string(v) != "original" {
		t.Fatalf("root rollback did not undo child write: %v %q", err, v)
	}
}
