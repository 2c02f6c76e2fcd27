package core

import (
	"errors"
	"testing"
)

func TestSyscallDefaultThunkBinding(t *testing.T) {
	ctx, _ := newTestContext(t)
	if err := BindDefaultThunk(ctx, SyscallID(100), ThunkGetObject); err != nil {
		t.Fatalf("bind default thunk: %v", err)
	}
	rec, err := ResolveSystemCall(ctx, SyscallID(100))
	if err != nil {
		t.Fatalf("resolve: %v", err)
	}
	if rec.Override != nil || rec.ThunkID != ThunkGetObject {
		t.Fatalf("unexpected record: %+v", rec)
	}
}

func TestSyscallOverrideAndNonOverridable(t *testing.T) {
	ctx, _ := newTestContext(t)
	var contract ContractID
	contract[0] = 0xAB

	if err := RegisterSystemCall(ctx, SyscallID(200), contract, 42); err != nil {
		t.Fatalf("register override: %v", err)
	}
	rec, err := ResolveSystemCall(ctx, SyscallID(200))
	if err != nil {
		t.Fatalf("resolve: %v", err)
	}
	if rec.Override == nil || rec.Override.Contract != contract || rec.Override.EntryPoint != 42 {
		t.Fatalf("unexpected override record: %+v", rec)
	}

	if err := RegisterSystemCall(ctx, SyscallRegisterSystemCall, contract, 1); !errors.Is(err, ErrSyscallNotOverridable) {
		t.Fatalf("expected syscall_not_overridable, got %v", err)
	}
}

func TestUnknownSystemCall(t *testing.T) {
	ctx, _ := newTestContext(t)
	if _, err := ResolveSystemCall(ctx, SyscallID(99999)); !errors.Is(err, ErrUnknownSystemCall) {
		t.Fatalf("expected unknown_system_call, got %v", err)
	}
}
