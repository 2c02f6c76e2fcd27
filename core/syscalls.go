package core

import (
	"encoding/binary"
	"fmt"
)

// SyscallID identifies one of the kernel's fixed system calls (section 4.G).
type SyscallID uint32

// System calls that may never be overridden to a contract entry point,
// since doing so would let a contract impersonate kernel bootstrapping
// (section 4.G).
const (
	SyscallRegisterSystemCall SyscallID = 1
	SyscallExitContract       SyscallID = 2
	SyscallGetArguments       SyscallID = 3
)

var nonOverridable = map[SyscallID]bool{
	SyscallRegisterSystemCall: true,
	SyscallExitContract:       true,
	SyscallGetArguments:       true,
}

// SyscallOverride redirects a syscall to a contract entry point instead of
// its default thunk.
type SyscallOverride struct {
	Contract   ContractID
	EntryPoint uint32
}

// syscallRecord is either a bare thunk id or a contract override, encoded
// for storage under SpaceSystemCallDispatch.
type syscallRecord struct {
	ThunkID  uint32
	Override *SyscallOverride
}

func encodeSyscallRecord(r syscallRecord) []byte {
	if r.Override == nil {
		buf := make([]byte, 5)
		buf[0] = 0
		binary.BigEndian.PutUint32(buf[1:], r.ThunkID)
		return buf
	}
	buf := make([]byte, 1+20+4)
	buf[0] = 1
	copy(buf[1:21], r.Override.Contract[:])
	binary.BigEndian.PutUint32(buf[21:], r.Override.EntryPoint)
	return buf
}

func decodeSyscallRecord(b []byte) (syscallRecord, error) {
	if len(b) == 0 {
		return syscallRecord{}, ErrNotFound
	}
	switch b[0] {
	case 0:
		if len(b) < 5 {
			return syscallRecord{}, fmt.Errorf("core: corrupt syscall record")
		}
		return syscallRecord{ThunkID: binary.BigEndian.Uint32(b[1:5])}, nil
	case 1:
		if len(b) < 25 {
			return syscallRecord{}, fmt.Errorf("core: corrupt syscall override record")
		}
		var c ContractID
		copy(c[:], b[1:21])
		return syscallRecord{Override: &SyscallOverride{Contract: c, EntryPoint: binary.BigEndian.Uint32(b[21:25])}}, nil
	default:
		return syscallRecord{}, fmt.Errorf("core: unknown syscall record tag %d", b[0])
	}
}

func syscallKey(id SyscallID) []byte {
	var buf [4]byte
	binary.BigEndian.PutUint32(buf[:], uint32(id))
	return buf[:]
}

// RegisterSystemCall overrides id to dispatch to (contract, entryPoint)
// instead of its default thunk. Called from the register_system_call
// thunk, which is itself non-overridable.
func RegisterSystemCall(ctx *ExecutionContext, id SyscallID, contract ContractID, entryPoint uint32) error {
	if nonOverridable[id] {
		return fmt.Errorf("syscall %d: %w", id, ErrSyscallNotOverridable)
	}
	rec := syscallRecord{Override: &SyscallOverride{Contract: contract, EntryPoint: entryPoint}}
	return ctx.Put(SpaceSystemCallDispatch, syscallKey(id), encodeSyscallRecord(rec))
}

// BindDefaultThunk records id's default thunk id, used during genesis
// bootstrap before any contract override exists.
func BindDefaultThunk(ctx *ExecutionContext, id SyscallID, thunkID uint32) error {
	rec := syscallRecord{ThunkID: thunkID}
	return ctx.Put(SpaceSystemCallDispatch, syscallKey(id), encodeSyscallRecord(rec))
}

// ResolveSystemCall looks up what id currently dispatches to.
func ResolveSystemCall(ctx *ExecutionContext, id SyscallID) (syscallRecord, error) {
	b, err := ctx.Get(SpaceSystemCallDispatch, syscallKey(id))
	if err != nil {
		return syscallRecord{}, fmt.Errorf("syscall %d: %w", id, ErrUnknownSystemCall)
	}
	return decodeSyscallRecord(b)
}

// InvokeSystemCall resolves id and runs either its bound thunk or its
// contract override, pushing a call frame for the duration (section 4.G).
func InvokeSystemCall(id SyscallID, ctx *ExecutionContext, args []byte, maxReturn uint32) ([]byte, error) {
	rec, err := ResolveSystemCall(ctx, id)
	if err != nil {
		return nil, err
	}
	if rec.Override == nil {
		return Thunks().Invoke(rec.ThunkID, ctx, args, maxReturn)
	}
	ctx.PushFrame(Frame{
		Caller:     ctx.TopFrame().Contract,
		Contract:   rec.Override.Contract,
		Privilege:  PrivilegeUser,
		EntryPoint: rec.Override.EntryPoint,
		Args:       args,
	})
	defer ctx.PopFrame()
	if ctx.Backend == nil {
		return nil, fmt.Errorf("core: no wasm backend bound for system call override")
	}
	// The override runs in a child session so its failure unwinds only its
	// own writes.
	outer := ctx.Session
	ctx.Session = outer.Begin()
	defer func() { ctx.Session = outer }()
	out, err := ctx.Backend.RunEntryPoint(ctx, rec.Override.Contract, rec.Override.EntryPoint, args, maxReturn)
	if err != nil {
		ctx.Session.Rollback()
		return nil, err
	}
	ctx.Session.Commit()
	return out, nil
}
