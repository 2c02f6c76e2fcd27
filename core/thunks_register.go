package core

import (
	"encoding/binary"
	"fmt"
)

// Built-in thunk ids (section 4.F). These are registered once, during
// process init, and the dispatcher is then closed to new registrations.
const (
	ThunkGetObject          uint32 = 1
	ThunkPutObject          uint32 = 2
	ThunkRemoveObject       uint32 = 3
	ThunkGetArguments       uint32 = 4
	ThunkExitContract       uint32 = 5
	ThunkRegisterSystemCall uint32 = 6
	ThunkGetContractID      uint32 = 7
	ThunkCheckAuthority     uint32 = 8
)

func init() {
	registerBuiltinThunks(Thunks())
	Thunks().Close()
}

// objectIOArgs is the wire format shared by get/put/remove_object: a
// one-byte zone length prefix, the zone bytes, a 4-byte big-endian object
// id, a system-space flag byte, a 4-byte big-endian key length, then the
// user key (and, for put, the value appended after it).
type objectIOArgs struct {
	Space ObjectSpace
	Key   []byte
	Value []byte
}

func encodeObjectIOArgs(a objectIOArgs) []byte {
	out := make([]byte, 0, 1+len(a.Space.Zone)+4+1+4+len(a.Key)+len(a.Value))
	out = append(out, byte(len(a.Space.Zone)))
	out = append(out, a.Space.Zone...)
	var idBuf [4]byte
	binary.BigEndian.PutUint32(idBuf[:], a.Space.ID)
	out = append(out, idBuf[:]...)
	if a.Space.System {
		out = append(out, 1)
	} else {
		out = append(out, 0)
	}
	var klen [4]byte
	binary.BigEndian.PutUint32(klen[:], uint32(len(a.Key)))
	out = append(out, klen[:]...)
	out = append(out, a.Key...)
	out = append(out, a.Value...)
	return out
}

func decodeObjectIOArgs(b []byte) (objectIOArgs, error) {
	if len(b) < 1 {
		return objectIOArgs{}, fmt.Errorf("core: object io args too short")
	}
	zlen := int(b[0])
	b = b[1:]
	if len(b) < zlen+4+1+4 {
		return objectIOArgs{}, fmt.Errorf("core: object io args truncated")
	}
	zone := append([]byte(nil), b[:zlen]...)
	b = b[zlen:]
	id := binary.BigEndian.Uint32(b[:4])
	b = b[4:]
	system := b[0] == 1
	b = b[1:]
	klen := binary.BigEndian.Uint32(b[:4])
	b = b[4:]
	if uint32(len(b)) < klen {
		return objectIOArgs{}, fmt.Errorf("core: object io args key truncated")
	}
	key := append([]byte(nil), b[:klen]...)
	value := append([]byte(nil), b[klen:]...)
	return objectIOArgs{Space: ObjectSpace{Zone: zone, ID: id, System: system}, Key: key, Value: value}, nil
}

func registerBuiltinThunks(d *ThunkDispatcher) {
	d.Register(ThunkGetObject, true, func(ctx *ExecutionContext, args []byte) ([]byte, error) {
		a, err := decodeObjectIOArgs(args)
		if err != nil {
			return nil, err
		}
		v, err := ctx.Get(a.Space, a.Key)
		if err != nil {
			return nil, err
		}
		return v, nil
	})

	d.Register(ThunkPutObject, true, func(ctx *ExecutionContext, args []byte) ([]byte, error) {
		a, err := decodeObjectIOArgs(args)
		if err != nil {
			return nil, err
		}
		if a.Space.System && ctx.Privilege() != PrivilegeKernel {
			return nil, ErrInsufficientPrivileges
		}
		if err := ctx.Put(a.Space, a.Key, a.Value); err != nil {
			return nil, err
		}
		return nil, nil
	})

	d.Register(ThunkRemoveObject, true, func(ctx *ExecutionContext, args []byte) ([]byte, error) {
		a, err := decodeObjectIOArgs(args)
		if err != nil {
			return nil, err
		}
		if a.Space.System && ctx.Privilege() != PrivilegeKernel {
			return nil, ErrInsufficientPrivileges
		}
		if err := ctx.Erase(a.Space, a.Key); err != nil {
			return nil, err
		}
		return nil, nil
	})

	d.Register(ThunkGetArguments, true, func(ctx *ExecutionContext, args []byte) ([]byte, error) {
		return ctx.TopFrame().Args, nil
	})

	d.Register(ThunkExitContract, true, func(ctx *ExecutionContext, args []byte) ([]byte, error) {
		// The calling convention treats a non-nil error from this thunk as
		// the signal that unwinds the current frame's WASM execution.
		return nil, fmt.Errorf("core: contract exit requested")
	})

	d.Register(ThunkRegisterSystemCall, false, func(ctx *ExecutionContext, args []byte) ([]byte, error) {
		if ctx.Privilege() != PrivilegeKernel {
			return nil, ErrInsufficientPrivileges
		}
		if len(args) < 4+20+4 {
			return nil, fmt.Errorf("core: register_system_call: args too short")
		}
		id := SyscallID(binary.BigEndian.Uint32(args[0:4]))
		var contract ContractID
		copy(contract[:], args[4:24])
		entryPoint := binary.BigEndian.Uint32(args[24:28])
		if err := RegisterSystemCall(ctx, id, contract, entryPoint); err != nil {
			return nil, err
		}
		return nil, nil
	})

	d.Register(ThunkGetContractID, false, func(ctx *ExecutionContext, args []byte) ([]byte, error) {
		c := ctx.TopFrame().Contract
		return c[:], nil
	})

	d.Register(ThunkCheckAuthority, false, func(ctx *ExecutionContext, args []byte) ([]byte, error) {
		if len(args) != 20 {
			return nil, fmt.Errorf("core: check_authority: expected 20-byte account id")
		}
		var account ContractID
		copy(account[:], args)
		if account != ctx.TopFrame().Caller {
			return []byte{0}, nil
		}
		return []byte{1}, nil
	})
}
