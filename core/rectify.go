package core

import "encoding/json"

// RectifyOp is one imperative step of a RectifyPatch (section 9, resolving
// the spec's open question on state rectification as a configuration-driven
// mechanism rather than hard-coded chain logic).
type RectifyOp struct {
	Space ObjectSpace `json:"space"`
	Key   []byte      `json:"key"`
	// Value is applied with Put; a nil Value with Tombstone true erases
	// the key instead.
	Value     []byte `json:"value,omitempty"`
	Tombstone bool   `json:"tombstone,omitempty"`
}

// RectifyPatch is a data-driven correction consulted at commit_irreversible
// time: a named, versioned bundle of object writes/erasures that the
// operator has approved out of band (e.g. to undo a discovered consensus
// bug) rather than a hard-coded special case in the commit path.
type RectifyPatch struct {
	Name       string      `json:"name"`
	AppliesAtH uint64      `json:"applies_at_height"`
	Ops        []RectifyOp `json:"ops"`
}

// DecodeRectifyPatch parses a patch from its JSON configuration form.
func DecodeRectifyPatch(b []byte) (RectifyPatch, error) {
	var p RectifyPatch
	if err := json.Unmarshal(b, &p); err != nil {
		return RectifyPatch{}, err
	}
	return p, nil
}

// Rectify applies patch's ops directly against handle's node, bypassing the
// ordinary transaction/session path since a rectification is an
// out-of-band correction, not a metered operation.
func Rectify(db *StateDB, handle int, patch RectifyPatch) error {
	for _, op := range patch.Ops {
		if op.Tombstone {
			if err := db.Erase(handle, op.Space, op.Key); err != nil {
				return err
			}
			continue
		}
		if err := db.Put(handle, op.Space, op.Key, op.Value); err != nil {
			return err
		}
	}
	return nil
}
