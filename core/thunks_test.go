package core

import "testing"

func newTestContext(t *testing.T) (*ExecutionContext, *StateDB) {
	t.Helper()
	db := openTestDB(t)
	n1, err := db.MakeChild(0)
	if err != nil {
		t.Fatalf("make child: %v", err)
	}
	meter := NewResourceMeter(1 << 20, 1 << 20, 1_000_000)
	sess := NewSession(db, n1.Handle, meter, NewChronicler(), NewChronicler())
	ctx := NewExecutionContext(db, n1.Handle, sess, NewChronicler(), nil, IntentTransactionApplication)
	ctx.PushFrame(Frame{Privilege: PrivilegeKernel})
	return ctx, db
}

func TestBuiltinObjectThunks(t *testing.T) {
	ctx, _ := newTestContext(t)

	putArgs := encodeObjectIOArgs(objectIOArgs{Space: SpaceMetadata, Key: []byte("hello"), Value: []byte("world")})
	if _, err := Thunks().Invoke(ThunkPutObject, ctx, putArgs, MaxObjectSize); err != nil {
		t.Fatalf("put_object: %v", err)
	}

	getArgs := encodeObjectIOArgs(objectIOArgs{Space: SpaceMetadata, Key: []byte("hello")})
	out, err := Thunks().Invoke(ThunkGetObject, ctx, getArgs, MaxObjectSize)
	if err != nil {
		t.Fatalf("get_object: %v", err)
	}
	if string(out) != "world" {
		t.Fatalf("get_object = %q, want world", out)
	}

	if _, err := Thunks().Invoke(ThunkRemoveObject, ctx, getArgs, MaxObjectSize); err != nil {
		t.Fatalf("remove_object: %v", err)
	}
	if _, err := Thunks().Invoke(ThunkGetObject, ctx, getArgs, MaxObjectSize); err != ErrNotFound {
		t.Fatalf("expected not-found after remove, got %v", err)
	}
}

func TestUnknownThunk(t *testing.T) {
	ctx, _ := newTestContext(t)
	if _, err := Thunks().Invoke(999999, ctx, nil, 0); err == nil {
		t.Fatalf("expected unknown_thunk error")
	}
}

func TestArgumentTooLarge(t *testing.T) {
	ctx, _ := newTestContext(t)
	huge := make([]byte, MaxObjectSize+1)
	if _, err := Thunks().Invoke(ThunkGetObject, ctx, huge, MaxObjectSize); err == nil {
		t.Fatalf("expected argument_too_large error")
	}
}

func TestReturnBufferTooSmall(t *testing.T) {
	ctx, _ := newTestContext(t)
	putArgs := encodeObjectIOArgs(objectIOArgs{Space: SpaceMetadata, Key: []byte("k"), Value: []byte("a-long-value")})
	if _, err := Thunks().Invoke(ThunkPutObject, ctx, putArgs, MaxObjectSize); err != nil {
		t.Fatalf("put_object: %v", err)
	}
	getArgs := encodeObjectIOArgs(objectIOArgs{Space: SpaceMetadata, Key: []byte("k")})
	if _, err := Thunks().Invoke(ThunkGetObject, ctx, getArgs, 1); err == nil {
		t.Fatalf("expected return_buffer_too_small error")
	}
}

func TestInsufficientPrivilegesOnSystemSpace(t *testing.T) {
	ctx, _ := newTestContext(t)
	ctx.PopFrame()
	ctx.PushFrame(Frame{Privilege: PrivilegeUser})

	putArgs := encodeObjectIOArgs(objectIOArgs{Space: SpaceMetadata, Key: []byte("k"), Value: []byte("v")})
	if _, err := Thunks().Invoke(ThunkPutObject, ctx, putArgs, MaxObjectSize); err != ErrInsufficientPrivileges {
		t.Fatalf("expected insufficient_privileges, got %v", err)
	}
}
