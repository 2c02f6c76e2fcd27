package core

import "testing"

func TestChroniclerSequenceIsDense(t *testing.T) {
	c := NewChronicler()
	c.Emit(Event{Name: "a"})
	c.Emit(Event{Name: "b"})
	c.Emit(Event{Name: "c"})
	events := c.Events()
	for i, ev := range events {
		if ev.Sequence != uint32(i) {
			t.Fatalf("event %d has sequence %d, want dense sequence", i, ev.Sequence)
		}
	}
}

func TestChroniclerSessionMirror(t *testing.T) {
	c := NewChronicler()
	c.Emit(Event{Name: "before-session"})

	mirror := c.Attach()
	c.Emit(Event{Name: "during-session"})
	c.Log(ContractID{}, "during-session-log")

	if len(mirror.SessionEvents()) != 1 {
		t.Fatalf("expected 1 mirrored event, got %d", len(mirror.SessionEvents()))
	}
	if len(c.Events()) != 2 {
		t.Fatalf("expected 2 permanent events, got %d", len(c.Events()))
	}
	c.Detach()
	c.Emit(Event{Name: "after-session"})
	if len(mirror.SessionEvents()) != 1 {
		t.Fatalf("detached mirror should not receive further events")
	}
}
