package core

import (
	"crypto/sha256"
	"encoding/binary"
)

// Kernel-reserved object spaces (system=true, zone=empty), spec section 6.
var (
	SpaceContractBytecode  = ObjectSpace{ID: 1, System: true}
	SpaceContractMetadata  = ObjectSpace{ID: 2, System: true}
	SpaceSystemCallDispatch = ObjectSpace{ID: 3, System: true}
	SpaceMetadata          = ObjectSpace{ID: 4, System: true}
	SpaceTransactionNonce  = ObjectSpace{ID: 5, System: true}
)

func hashKey(name string) []byte {
	h := sha256.Sum256([]byte("object_key::" + name))
	return h[:]
}

// Kernel-reserved keys under SpaceMetadata (hashed names), spec section 6.
var (
	KeyHeadBlock              = hashKey("head_block")
	KeyChainID                = hashKey("chain_id")
	KeyGenesis                = hashKey("genesis_key")
	KeyResourceLimitData      = hashKey("resource_limit_data")
	KeyMaxAccountResources    = hashKey("max_account_resources")
	KeyProtocolDescriptor     = hashKey("protocol_descriptor")
	KeyComputeBandwidthReg    = hashKey("compute_bandwidth_registry")
	KeyBlockHashCode          = hashKey("block_hash_code")
)

// Defaults from spec section 6.
const (
	DefaultIrreversibilityThreshold = 60
	DefaultAuthorizeEntryPoint      = uint32(0x4a2dbd90)
	MaxObjectSize                   = 1 << 20 // 1 MiB
	SystemCallDispatchRecordMax     = 512
)

// encodeStorageKey implements the persistent key encoding from section 6:
// zone || system-byte || id(u32 big-endian) || user-key. It is also used as
// the ordering key inside delta layers. Byte-wise comparison of this
// encoding matches the spec's (zone, system, id) lexicographic order when
// the zones are equal or differ before either ends; when one zone is a
// proper prefix of the other, the order depends on the longer zone's next
// byte.
func encodeStorageKey(space ObjectSpace, key []byte) []byte {
	out := make([]byte, 0, len(space.Zone)+1+4+len(key))
	out = append(out, space.Zone...)
	if space.System {
		out = append(out, 1)
	} else {
		out = append(out, 0)
	}
	var idBuf [4]byte
	binary.BigEndian.PutUint32(idBuf[:], space.ID)
	out = append(out, idBuf[:]...)
	out = append(out, key...)
	return out
}

// spaceUpperBound returns the exclusive upper bound of space's encoded key
// range: the successor of its (zone, system, id) prefix, with no user-key
// suffix. Used when a range scan has no caller-supplied high bound, so the
// scan stops at the end of its own space instead of reading into whichever
// space happens to sort next.
func spaceUpperBound(space ObjectSpace) []byte {
	prefix := encodeStorageKey(space, nil)
	out := append([]byte(nil), prefix...)
	for i := len(out) - 1; i >= 0; i-- {
		if out[i] < 0xff {
			out[i]++
			return out[:i+1]
		}
	}
	// Every prefix byte was already 0xff: there is no encodable successor,
	// so the range is unbounded above. The system byte is always 0 or 1, so
	// the loop above always finds a byte to increment and this is not
	// reached.
	return nil
}
