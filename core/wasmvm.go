package core

import (
	"fmt"

	"github.com/wasmerio/wasmer-go/wasmer"
)

// WasmBackend instantiates and runs contract bytecode under wasmer,
// exposing invoke_thunk, invoke_system_call, get_meter_ticks, and
// use_meter_ticks as host imports (section 4.F).
type WasmBackend struct {
	engine *wasmer.Engine
	cache  *ModuleCache
}

// NewWasmBackend builds a backend with a module cache of the given size.
func NewWasmBackend(cacheSize int) (*WasmBackend, error) {
	engine := wasmer.NewEngine()
	cache, err := NewModuleCache(engine, cacheSize)
	if err != nil {
		return nil, fmt.Errorf("core: wasm backend: %w", err)
	}
	return &WasmBackend{engine: engine, cache: cache}, nil
}

type hostEnv struct {
	mem *wasmer.Memory
	ctx *ExecutionContext
}

func (h *hostEnv) read(ptr, ln int32) ([]byte, bool) {
	data := h.mem.Data()
	if ptr < 0 || ln < 0 || int(ptr)+int(ln) > len(data) {
		return nil, false
	}
	out := make([]byte, ln)
	copy(out, data[ptr:int(ptr)+int(ln)])
	return out, true
}

func (h *hostEnv) write(ptr int32, data []byte) bool {
	mem := h.mem.Data()
	if ptr < 0 || int(ptr)+len(data) > len(mem) {
		return false
	}
	copy(mem[ptr:], data)
	return true
}

func i32params(n int) []*wasmer.ValueType {
	kinds := make([]*wasmer.ValueType, n)
	for i := range kinds {
		kinds[i] = wasmer.NewValueType(wasmer.I32)
	}
	return kinds
}

func registerHostImports(store *wasmer.Store, h *hostEnv) *wasmer.ImportObject {
	imports := wasmer.NewImportObject()

	invokeThunk := wasmer.NewFunction(
		store,
		wasmer.NewFunctionType(i32params(5), i32params(1)),
		func(args []wasmer.Value) ([]wasmer.Value, error) {
			id := uint32(args[0].I32())
			argPtr, argLen := args[1].I32(), args[2].I32()
			retPtr, retLen := args[3].I32(), args[4].I32()
			in, ok := h.read(argPtr, argLen)
			if !ok {
				return nil, fmt.Errorf("invoke_thunk: %w", ErrWasmMemoryFault)
			}
			out, err := Thunks().Invoke(id, h.ctx, in, uint32(retLen))
			if err != nil {
				return []wasmer.Value{wasmer.NewI32(-1)}, nil
			}
			if !h.write(retPtr, out) {
				return nil, fmt.Errorf("invoke_thunk: %w", ErrWasmMemoryFault)
			}
			return []wasmer.Value{wasmer.NewI32(int32(len(out)))}, nil
		},
	)

	invokeSyscall := wasmer.NewFunction(
		store,
		wasmer.NewFunctionType(i32params(5), i32params(1)),
		func(args []wasmer.Value) ([]wasmer.Value, error) {
			id := SyscallID(uint32(args[0].I32()))
			argPtr, argLen := args[1].I32(), args[2].I32()
			retPtr, retLen := args[3].I32(), args[4].I32()
			in, ok := h.read(argPtr, argLen)
			if !ok {
				return nil, fmt.Errorf("invoke_system_call: %w", ErrWasmMemoryFault)
			}
			out, err := InvokeSystemCall(id, h.ctx, in, uint32(retLen))
			if err != nil {
				return []wasmer.Value{wasmer.NewI32(-1)}, nil
			}
			if !h.write(retPtr, out) {
				return nil, fmt.Errorf("invoke_system_call: %w", ErrWasmMemoryFault)
			}
			return []wasmer.Value{wasmer.NewI32(int32(len(out)))}, nil
		},
	)

	getMeterTicks := wasmer.NewFunction(
		store,
		wasmer.NewFunctionType([]*wasmer.ValueType{}, []*wasmer.ValueType{wasmer.NewValueType(wasmer.I64)}),
		func(args []wasmer.Value) ([]wasmer.Value, error) {
			return []wasmer.Value{wasmer.NewI64(int64(h.ctx.Session.Resources.RemainingTicks()))}, nil
		},
	)

	useMeterTicks := wasmer.NewFunction(
		store,
		wasmer.NewFunctionType([]*wasmer.ValueType{wasmer.NewValueType(wasmer.I64)}, []*wasmer.ValueType{wasmer.NewValueType(wasmer.I32)}),
		func(args []wasmer.Value) ([]wasmer.Value, error) {
			amount := uint64(args[0].I64())
			if err := h.ctx.Session.Resources.ConsumeRawTicks(amount); err != nil {
				return nil, fmt.Errorf("use_meter_ticks: %w", err)
			}
			return []wasmer.Value{wasmer.NewI32(0)}, nil
		},
	)

	imports.Register("env", map[string]wasmer.IntoExtern{
		"invoke_thunk":       invokeThunk,
		"invoke_system_call": invokeSyscall,
		"get_meter_ticks":    getMeterTicks,
		"use_meter_ticks":    useMeterTicks,
	})
	return imports
}

// RunEntryPoint instantiates contract's bytecode and calls the exported
// function named by entryPoint's hex form, passing args via a freshly
// written memory region and returning up to maxReturn bytes of result.
func (b *WasmBackend) RunEntryPoint(ctx *ExecutionContext, contract ContractID, entryPoint uint32, args []byte, maxReturn uint32) ([]byte, error) {
	bytecode, err := ctx.Get(SpaceContractBytecode, contract[:])
	if err != nil {
		return nil, fmt.Errorf("core: contract %x has no bytecode: %w", contract, err)
	}
	mod, err := b.cache.Get(bytecode)
	if err != nil {
		return nil, fmt.Errorf("core: parse contract module: %w", err)
	}

	env := &hostEnv{ctx: ctx}
	store := wasmer.NewStore(b.engine)
	imports := registerHostImports(store, env)

	instance, err := wasmer.NewInstance(mod, imports)
	if err != nil {
		return nil, fmt.Errorf("core: instantiate contract: %w", err)
	}

	mem, err := instance.Exports.GetMemory("memory")
	if err != nil {
		return nil, fmt.Errorf("core: contract exports no memory: %w", ErrWasmMemoryFault)
	}
	env.mem = mem

	fnName := fmt.Sprintf("entry_%08x", entryPoint)
	fn, err := instance.Exports.GetFunction(fnName)
	if err != nil {
		fn, err = instance.Exports.GetFunction("invoke")
		if err != nil {
			return nil, fmt.Errorf("core: contract has neither %s nor invoke export", fnName)
		}
	}

	argPtr := int32(0)
	if !env.write(argPtr, args) {
		return nil, fmt.Errorf("core: writing call arguments: %w", ErrWasmMemoryFault)
	}

	raw, err := fn(argPtr, int32(len(args)))
	if err != nil {
		return nil, fmt.Errorf("core: contract trapped: %w", err)
	}

	retPtr, retLen := decodeReturnHandle(raw)
	if uint32(retLen) > maxReturn {
		return nil, fmt.Errorf("core: run entry point: %w", ErrReturnBufferTooSmall)
	}
	out, ok := env.read(retPtr, retLen)
	if !ok {
		return nil, fmt.Errorf("core: reading call result: %w", ErrWasmMemoryFault)
	}
	return out, nil
}

// decodeReturnHandle splits a contract's packed (ptr<<32 | len) i64 return
// value, the convention used by entry-point exports to hand back a result
// region without an extra host round trip.
func decodeReturnHandle(v interface{}) (int32, int32) {
	switch r := v.(type) {
	case int64:
		return int32(r >> 32), int32(r & 0xffffffff)
	case []wasmer.Value:
		if len(r) == 0 {
			return 0, 0
		}
		packed := r[0].I64()
		return int32(packed >> 32), int32(packed & 0xffffffff)
	default:
		return 0, 0
	}
}
