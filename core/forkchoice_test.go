package core

import "testing"

func TestRecomputeHeadPrefersEarliestBlockTime(t *testing.T) {
	db, err := OpenStateDB(StateDBConfig{ForkAlgo: BlockTimeForkChoice{}})
	if err != nil {
		t.Fatalf("open: %v", err)
	}

	later, _ := db.MakeChild(0)
	later.Timestamp = 200
	var idLater BlockID
	idLater[0] = 1
	if err := db.Finalize(later.Handle, idLater); err != nil {
		t.Fatalf("finalize later: %v", err)
	}

	earlier, _ := db.MakeChild(0)
	earlier.Timestamp = 100
	var idEarlier BlockID
	idEarlier[0] = 2
	if err := db.Finalize(earlier.Handle, idEarlier); err != nil {
		t.Fatalf("finalize earlier: %v", err)
	}

	db.RecomputeHead()
	if db.Head().Handle != earlier.Handle {
		t.Fatalf("expected earliest-timestamp sibling to win head, got handle %d", db.Head().Handle)
	}
}

func TestRecomputeHeadIgnoresAncestors(t *testing.T) {
	db := openTestDB(t)

	n1, _ := db.MakeChild(0)
	var id1 BlockID
	id1[0] = 1
	if err := db.Finalize(n1.Handle, id1); err != nil {
		t.Fatalf("finalize n1: %v", err)
	}
	db.RecomputeHead()
	if db.Head().Handle != n1.Handle {
		t.Fatalf("head should advance past genesis once a child is finalized")
	}

	n2, _ := db.MakeChild(n1.Handle)
	var id2 BlockID
	id2[0] = 2
	if err := db.Finalize(n2.Handle, id2); err != nil {
		t.Fatalf("finalize n2: %v", err)
	}
	db.RecomputeHead()
	if db.Head().Handle != n2.Handle {
		t.Fatalf("head should advance to the deeper finalized node, not fall back to an ancestor")
	}
}

func TestRecomputeHeadProofOfBurnPrefersGreaterWeight(t *testing.T) {
	db, err := OpenStateDB(StateDBConfig{ForkAlgo: ProofOfBurnForkChoice{}})
	if err != nil {
		t.Fatalf("open: %v", err)
	}

	light, _ := db.MakeChild(0)
	light.BurnWeight = 10
	var idLight BlockID
	idLight[0] = 1
	if err := db.Finalize(light.Handle, idLight); err != nil {
		t.Fatalf("finalize light: %v", err)
	}

	heavy, _ := db.MakeChild(0)
	heavy.BurnWeight = 90
	var idHeavy BlockID
	idHeavy[0] = 2
	if err := db.Finalize(heavy.Handle, idHeavy); err != nil {
		t.Fatalf("finalize heavy: %v", err)
	}

	db.RecomputeHead()
	if db.Head().Handle != heavy.Handle {
		t.Fatalf("expected greater burn weight to win head, got handle %d", db.Head().Handle)
	}
}
