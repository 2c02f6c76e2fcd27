package core

import (
	"bytes"
	"fmt"
	"sort"
	"sync"

	log "github.com/sirupsen/logrus"

	"synnergy-network/pkg/kv"
)

// NodeCondition is the lifecycle state of a StateNode (spec section 3).
// "Anonymous" also covers the spec's "writable" condition: an anonymous
// node is, by definition, the only kind of node still open for writes.
// The anonymous/writable/finalized trio is therefore collapsed into two
// enforced states (Anonymous, Finalized).
type NodeCondition int

const (
	Anonymous NodeCondition = iota
	Finalized
)

// StateNode is one snapshot in the fork-aware tree. Nodes are referenced by
// a stable arena handle rather than pointers between parent and child, so
// that discard never has to chase back-pointers (design note 9).
type StateNode struct {
	Handle       int
	ParentHandle int
	ID           BlockID
	Height       uint64
	Condition    NodeCondition
	Delta        *DeltaLayer
	Timestamp    int64
	BurnWeight   uint64
	finalizedSeq uint64
	discarded    bool
}

// StateDB is the forked state database (FSDB, spec 4.B).
type StateDB struct {
	mu sync.RWMutex

	root       kv.Backend
	comparator ForkChoice
	threshold  uint64
	patches    []RectifyPatch

	arena      map[int]*StateNode
	children   map[int][]int
	byBlockID  map[BlockID]int
	nextHandle int
	seqCounter uint64

	rootHandle int // the committed path's frontier node
	headHandle int
}

// StateDBConfig mirrors the open(path, genesis, fork-algo, reset) operation.
type StateDBConfig struct {
	Path      string
	Genesis   map[string][]byte // encoded storage key -> value, planted at height 0
	ForkAlgo  ForkChoice
	Reset     bool
	Threshold uint64 // irreversibility threshold, default DefaultIrreversibilityThreshold
	CacheSize int

	// RectifyPatches are operator-approved, out-of-band corrections applied
	// to the root backend as each one's target height becomes irreversible
	// (section 9's state-rectification open question).
	RectifyPatches []RectifyPatch
}

// OpenStateDB loads or initializes the tree, planting the genesis node at
// height 0 with the supplied initial keys/values (4.B "open").
func OpenStateDB(cfg StateDBConfig) (*StateDB, error) {
	if cfg.ForkAlgo == nil {
		cfg.ForkAlgo = FIFOForkChoice{}
	}
	if cfg.Threshold == 0 {
		cfg.Threshold = DefaultIrreversibilityThreshold
	}

	var backend kv.Backend
	if cfg.Path == "" {
		backend = kv.NewMemBackend()
	} else {
		fb, err := kv.OpenFileBackend(cfg.Path, cfg.CacheSize)
		if err != nil {
			return nil, fmt.Errorf("statedb: open root backend: %w", err)
		}
		backend = fb
	}
	if cfg.Reset {
		for c := backend.Begin(); c.Valid(); c = backend.Begin() {
			backend.Erase(c.Key())
		}
	}

	db := &StateDB{
		root:       backend,
		comparator: cfg.ForkAlgo,
		threshold:  cfg.Threshold,
		patches:    cfg.RectifyPatches,
		arena:      make(map[int]*StateNode),
		children:   make(map[int][]int),
		byBlockID:  make(map[BlockID]int),
	}

	genesis := &StateNode{
		Handle:       0,
		ParentHandle: -1,
		Height:       0,
		Condition:    Finalized,
		Delta:        newDeltaLayer(),
	}
	for k, v := range cfg.Genesis {
		genesis.Delta.entries[k] = deltaEntry{value: v}
	}
	db.arena[0] = genesis
	db.byBlockID[BlockID{}] = 0
	db.nextHandle = 1
	db.rootHandle = 0
	db.headHandle = 0

	log.WithField("threshold", db.threshold).Info("statedb: opened")
	return db, nil
}

func (db *StateDB) node(handle int) (*StateNode, error) {
	n, ok := db.arena[handle]
	if !ok || n.discarded {
		return nil, ErrNotFound
	}
	return n, nil
}

// MakeChild creates an anonymous, writable node over parent (4.B).
func (db *StateDB) MakeChild(parentHandle int) (*StateNode, error) {
	db.mu.Lock()
	defer db.mu.Unlock()

	parent, err := db.node(parentHandle)
	if err != nil {
		return nil, err
	}
	n := &StateNode{
		Handle:       db.nextHandle,
		ParentHandle: parentHandle,
		Height:       parent.Height + 1,
		Condition:    Anonymous,
		Delta:        newDeltaLayer(),
	}
	db.arena[n.Handle] = n
	db.children[parentHandle] = append(db.children[parentHandle], n.Handle)
	db.nextHandle++
	return n, nil
}

// Finalize atomically assigns blockID to an anonymous node (4.B).
func (db *StateDB) Finalize(handle int, blockID BlockID) error {
	db.mu.Lock()
	defer db.mu.Unlock()

	n, err := db.node(handle)
	if err != nil {
		return err
	}
	if n.Condition != Anonymous {
		return fmt.Errorf("statedb: finalize: %w", ErrFinalized)
	}
	parent, err := db.node(n.ParentHandle)
	if err != nil {
		return fmt.Errorf("statedb: finalize: parent not finalized: %w", err)
	}
	if parent.Condition != Finalized {
		return fmt.Errorf("statedb: finalize: parent not finalized")
	}
	if parent.Height+1 != n.Height {
		return fmt.Errorf("statedb: finalize: height inconsistent")
	}
	if _, exists := db.byBlockID[blockID]; exists {
		return fmt.Errorf("statedb: finalize: block id already exists")
	}
	n.ID = blockID
	n.Condition = Finalized
	db.seqCounter++
	n.finalizedSeq = db.seqCounter
	db.byBlockID[blockID] = handle
	log.WithFields(log.Fields{"handle": handle, "height": n.Height}).Info("statedb: finalized")
	return nil
}

// isOnHeadLine reports whether handle lies on the path from root to head.
func (db *StateDB) isOnHeadLine(handle int) bool {
	h := db.headHandle
	for {
		if h == handle {
			return true
		}
		if h == db.rootHandle {
			return false
		}
		n, ok := db.arena[h]
		if !ok {
			return false
		}
		h = n.ParentHandle
	}
}

func (db *StateDB) hasLiveDescendants(handle int) bool {
	for _, c := range db.children[handle] {
		n, ok := db.arena[c]
		if ok && !n.discarded {
			return true
		}
		if db.hasLiveDescendants(c) {
			return true
		}
	}
	return false
}

// Discard removes a node that is not on the head line and has no live
// descendants (4.B).
func (db *StateDB) Discard(handle int) error {
	db.mu.Lock()
	defer db.mu.Unlock()

	n, err := db.node(handle)
	if err != nil {
		return err
	}
	if db.isOnHeadLine(handle) {
		return fmt.Errorf("statedb: discard: %w: on head line", ErrCannotDiscard)
	}
	if db.hasLiveDescendants(handle) {
		return fmt.Errorf("statedb: discard: %w: has descendants", ErrCannotDiscard)
	}
	n.discarded = true
	if n.Condition == Finalized {
		delete(db.byBlockID, n.ID)
	}
	delete(db.arena, handle)
	return nil
}

// SetHead designates handle as head; it must be finalized.
func (db *StateDB) SetHead(handle int) error {
	db.mu.Lock()
	defer db.mu.Unlock()
	n, err := db.node(handle)
	if err != nil {
		return err
	}
	if n.Condition != Finalized {
		return fmt.Errorf("statedb: set_head: node not finalized")
	}
	db.headHandle = handle
	return nil
}

// finalizedTips returns every finalized, non-discarded node that has no
// finalized child — the candidate set a head comparison is made over.
// Ancestors are excluded: an ancestor's timestamp/sequence is always
// earlier than its descendant's, so including it would make any "earliest
// wins" comparator (block-time, FIFO) degenerate to always preferring
// genesis.
func (db *StateDB) finalizedTips() []*StateNode {
	hasFinalizedChild := make(map[int]bool)
	for _, n := range db.arena {
		if n.Condition != Finalized || n.discarded {
			continue
		}
		if p, ok := db.arena[n.ParentHandle]; ok && p.Condition == Finalized {
			hasFinalizedChild[n.ParentHandle] = true
		}
	}
	var tips []*StateNode
	for _, n := range db.arena {
		if n.Condition == Finalized && !n.discarded && !hasFinalizedChild[n.Handle] {
			tips = append(tips, n)
		}
	}
	return tips
}

// RecomputeHead applies the fork-choice comparator over the finalized tips
// and advances head to whichever one it prefers (4.B "fork-choice"). Head
// never moves to a non-finalized node.
func (db *StateDB) RecomputeHead() {
	db.mu.Lock()
	defer db.mu.Unlock()
	var best *StateNode
	for _, n := range db.finalizedTips() {
		if best == nil || db.comparator.Less(n, best) {
			best = n
		}
	}
	if best != nil {
		db.headHandle = best.Handle
	}
}

// Head returns the current head node.
func (db *StateDB) Head() *StateNode {
	db.mu.RLock()
	defer db.mu.RUnlock()
	return db.arena[db.headHandle]
}

// ForkHeads returns every finalized tip (a finalized node with no finalized
// child), for get_fork_heads (section 6).
func (db *StateDB) ForkHeads() []*StateNode {
	db.mu.RLock()
	defer db.mu.RUnlock()
	return db.finalizedTips()
}

// Threshold reports the irreversibility threshold this tree was opened
// with, so callers (the controller) can decide when a newly finalized
// height should be committed (section 4.B "commit_irreversible").
func (db *StateDB) Threshold() uint64 {
	db.mu.RLock()
	defer db.mu.RUnlock()
	return db.threshold
}

// NodeByBlockID resolves a finalized node by its block id.
func (db *StateDB) NodeByBlockID(id BlockID) (*StateNode, bool) {
	db.mu.RLock()
	defer db.mu.RUnlock()
	h, ok := db.byBlockID[id]
	if !ok {
		return nil, false
	}
	return db.arena[h], true
}

// walk returns the ancestor chain from node up to (and including) root.
func (db *StateDB) walk(handle int) []*StateNode {
	var chain []*StateNode
	h := handle
	for {
		n, ok := db.arena[h]
		if !ok {
			break
		}
		chain = append(chain, n)
		if h == db.rootHandle {
			break
		}
		h = n.ParentHandle
	}
	return chain
}

// Get resolves (space, key) via ancestor walk with tombstone masking (4.B
// "overlay lookup").
func (db *StateDB) Get(handle int, space ObjectSpace, key []byte) ([]byte, error) {
	db.mu.RLock()
	defer db.mu.RUnlock()
	for _, n := range db.walk(handle) {
		if v, tomb, ok := n.Delta.lookup(space, key); ok {
			if tomb {
				return nil, ErrNotFound
			}
			return v, nil
		}
	}
	if v, err := db.root.Get(encodeStorageKey(space, key)); err == nil {
		return v, nil
	}
	return nil, ErrNotFound
}

// Put writes (space, key)=value on a non-finalized node (4.B).
func (db *StateDB) Put(handle int, space ObjectSpace, key, value []byte) error {
	db.mu.Lock()
	defer db.mu.Unlock()
	n, err := db.node(handle)
	if err != nil {
		return err
	}
	if n.Condition == Finalized {
		return fmt.Errorf("statedb: put: %w", ErrFinalized)
	}
	n.Delta.put(space, key, value)
	return nil
}

// Erase tombstones (space, key) on a non-finalized node (4.B).
func (db *StateDB) Erase(handle int, space ObjectSpace, key []byte) error {
	db.mu.Lock()
	defer db.mu.Unlock()
	n, err := db.node(handle)
	if err != nil {
		return err
	}
	if n.Condition == Finalized {
		return fmt.Errorf("statedb: erase: %w", ErrFinalized)
	}
	n.Delta.erase(space, key)
	return nil
}

// peekEntry reports the raw delta-layer state of (space, key) on handle's
// own node, without walking ancestors. Used by Session to build undo
// records before a write.
func (db *StateDB) peekEntry(handle int, space ObjectSpace, key []byte) (value []byte, tomb bool, present bool) {
	db.mu.RLock()
	defer db.mu.RUnlock()
	n, ok := db.arena[handle]
	if !ok {
		return nil, false, false
	}
	return n.Delta.lookup(space, key)
}

// restoreEntry directly sets or clears a node's own delta-layer entry,
// bypassing the finalized check; it is used only to undo a session's own
// writes on its still-anonymous node.
func (db *StateDB) restoreEntry(handle int, space ObjectSpace, key []byte, present, tomb bool, value []byte) {
	db.mu.Lock()
	defer db.mu.Unlock()
	n, ok := db.arena[handle]
	if !ok {
		return
	}
	k := string(encodeStorageKey(space, key))
	if !present {
		delete(n.Delta.entries, k)
		return
	}
	n.Delta.entries[k] = deltaEntry{value: value, tombstone: tomb}
}

// RangeEntry is one result of Range.
type RangeEntry struct {
	Key   []byte
	Value []byte
}

// Range merge-iterates the ancestor chain of handle within [low, high),
// suppressing tombstoned keys and deduplicating by nearest ancestor (4.B
// "range scan").
func (db *StateDB) Range(handle int, space ObjectSpace, low, high []byte) ([]RangeEntry, error) {
	db.mu.RLock()
	defer db.mu.RUnlock()
	if _, err := db.node(handle); err != nil {
		return nil, err
	}

	lowKey := encodeStorageKey(space, low)
	var highKey []byte
	if high != nil {
		highKey = encodeStorageKey(space, high)
	} else {
		// No caller-supplied upper bound: default to the end of this space
		// so the scan never leaks into the next ObjectSpace's keys, which
		// sort immediately after this one's under the shared encoding.
		highKey = spaceUpperBound(space)
	}

	seen := make(map[string]bool)
	var out []RangeEntry
	for _, n := range db.walk(handle) {
		for _, k := range n.Delta.sortedKeys() {
			if seen[k] {
				continue
			}
			if !inRange(k, lowKey, highKey) {
				continue
			}
			seen[k] = true
			e := n.Delta.entries[k]
			if e.tombstone {
				continue
			}
			out = append(out, RangeEntry{Key: []byte(k), Value: e.value})
		}
	}
	for c := db.root.LowerBound(lowKey); c.Valid(); c.Next() {
		k := c.Key()
		if highKey != nil && bytes.Compare(k, highKey) >= 0 {
			break
		}
		if seen[string(k)] {
			continue
		}
		out = append(out, RangeEntry{Key: append([]byte(nil), k...), Value: append([]byte(nil), c.Value()...)})
	}
	sort.Slice(out, func(i, j int) bool { return bytes.Compare(out[i].Key, out[j].Key) < 0 })
	return out, nil
}

// CommitIrreversible squashes the unique path-prefix at height <= threshold
// into the root backend and discards every off-path node at or below that
// height (4.B "commit").
func (db *StateDB) CommitIrreversible(height uint64) error {
	db.mu.Lock()
	defer db.mu.Unlock()

	// Walk from head down to find the node at the requested height on the
	// head line; that is the unique committed path-prefix frontier.
	var target *StateNode
	h := db.headHandle
	for {
		n, ok := db.arena[h]
		if !ok {
			return ErrNotFound
		}
		if n.Height == height {
			target = n
			break
		}
		if h == db.rootHandle {
			return fmt.Errorf("statedb: commit_irreversible: height %d not on head line", height)
		}
		h = n.ParentHandle
	}

	// Merge deltas from current root frontier down to target, oldest first.
	// A frontier that an earlier commit produced is already in the root
	// backend and is skipped; the genesis frontier is merged.
	chain := db.walk(target.Handle)
	for i := len(chain) - 1; i >= 0; i-- {
		n := chain[i]
		if n.Handle == db.rootHandle && n.Handle != target.Handle && n.ParentHandle != -1 {
			continue
		}
		for _, k := range n.Delta.sortedKeys() {
			e := n.Delta.entries[k]
			if e.tombstone {
				db.root.Erase([]byte(k))
			} else {
				db.root.Put([]byte(k), e.value)
			}
		}
		if n.Handle == target.Handle {
			break
		}
	}

	// Apply any operator-approved rectification patch scheduled for exactly
	// this height, after the ordinary merge so a patch can override what an
	// already-finalized block wrote (section 9).
	for _, patch := range db.patches {
		if patch.AppliesAtH != target.Height {
			continue
		}
		for _, op := range patch.Ops {
			k := encodeStorageKey(op.Space, op.Key)
			if op.Tombstone {
				db.root.Erase(k)
			} else {
				db.root.Put(k, op.Value)
			}
		}
		log.WithFields(log.Fields{"patch": patch.Name, "height": patch.AppliesAtH}).Warn("statedb: applied rectification patch")
	}

	db.root.SetHeader(target.ID[:])
	if compactor, ok := db.root.(interface{ Compact() error }); ok {
		if err := compactor.Compact(); err != nil {
			log.WithError(err).Warn("statedb: root backend compaction failed")
		}
	}

	// Discard every node at or below target.Height that is not target
	// itself (off-path siblings and the now-squashed ancestors).
	for handle, n := range db.arena {
		if handle == target.Handle {
			continue
		}
		if n.Height <= target.Height {
			n.discarded = true
			if n.Condition == Finalized {
				delete(db.byBlockID, n.ID)
			}
			delete(db.arena, handle)
		}
	}
	db.rootHandle = target.Handle
	log.WithFields(log.Fields{"height": height, "block_id": target.ID}).Info("statedb: committed irreversible")
	return nil
}
