package core

import "errors"

// Transaction-scoped failures (section 7): rolled back at the session
// boundary, reported as a nonzero transaction receipt code.
var (
	ErrTickMeterExhausted     = errors.New("tick_meter_exhausted")
	ErrWasmMemoryFault        = errors.New("wasm_memory_fault")
	ErrUnknownThunk           = errors.New("unknown_thunk")
	ErrInsufficientPrivileges = errors.New("insufficient_privileges")
	ErrArgumentTooLarge       = errors.New("argument_too_large")
	ErrReturnBufferTooSmall   = errors.New("return_buffer_too_small")
	ErrUnknownSystemCall      = errors.New("unknown_system_call")
	ErrSyscallNotOverridable  = errors.New("syscall_not_overridable")
	ErrAuthorizationFailed    = errors.New("authorization_failure")
	ErrNonceMismatch          = errors.New("nonce_mismatch")
)

// Block-scoped failures (section 7): the block is rejected and its
// anonymous state node discarded; head never changes.
var (
	ErrInvalidParent       = errors.New("invalid_parent")
	ErrBlockHeightMismatch = errors.New("block_height_mismatch")
	ErrPreviousIDMismatch  = errors.New("previous_id_mismatch")
	ErrInvalidSignature    = errors.New("signature_invalid")
	ErrStateRootMismatch   = errors.New("state_root_mismatch")
)

// FSDB failure semantics (spec section 4.B).
var (
	ErrNotFound      = errors.New("not-found")
	ErrFinalized     = errors.New("finalized")
	ErrCannotDiscard = errors.New("cannot-discard")
)
