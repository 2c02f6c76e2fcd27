package core

import (
	"crypto/sha256"

	lru "github.com/hashicorp/golang-lru/v2"
	"github.com/wasmerio/wasmer-go/wasmer"
)

// ModuleCache memoizes parsed WASM modules by bytecode digest so repeat
// calls into the same contract skip recompilation (section 4.F).
type ModuleCache struct {
	store *wasmer.Store
	cache *lru.Cache[[32]byte, *wasmer.Module]
}

// NewModuleCache builds a cache backed by engine's store, holding up to
// size compiled modules.
func NewModuleCache(engine *wasmer.Engine, size int) (*ModuleCache, error) {
	if size <= 0 {
		size = 64
	}
	c, err := lru.New[[32]byte, *wasmer.Module](size)
	if err != nil {
		return nil, err
	}
	return &ModuleCache{store: wasmer.NewStore(engine), cache: c}, nil
}

// Get compiles bytecode, or returns the cached module for it.
func (mc *ModuleCache) Get(bytecode []byte) (*wasmer.Module, error) {
	digest := sha256.Sum256(bytecode)
	if mod, ok := mc.cache.Get(digest); ok {
		return mod, nil
	}
	mod, err := wasmer.NewModule(mc.store, bytecode)
	if err != nil {
		return nil, err
	}
	mc.cache.Add(digest, mod)
	return mod, nil
}
