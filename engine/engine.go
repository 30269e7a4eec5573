package engine

import (
	"context"
	"fmt"
	"sync/atomic"

	"github.com/tetratelabs/wazero"
	"github.com/tetratelabs/wazero/api"
	"github.com/tetratelabs/wazero/experimental"
	"go.uber.org/zap"

	"github.com/wippyai/objmodel/errors"
)

// Export names a guest must provide to serve as an allocator.
const (
	CabiRealloc  = "cabi_realloc"
	MemoryExport = "memory"
)

// Engine compiles and instantiates guest modules whose linear memory backs
// an allocator.
type Engine struct {
	runtime wazero.Runtime
	seq     atomic.Uint64
}

// Config holds configuration for the engine
type Config struct {
	// MemoryLimitPages caps every guest memory, in 64KB pages. 0 keeps
	// wazero's default of 65536 pages.
	MemoryLimitPages uint32
	// EnableThreads enables the threads proposal (shared memory, atomics).
	EnableThreads bool
}

// NewEngine creates an engine with default configuration.
func NewEngine(ctx context.Context) (*Engine, error) {
	return NewEngineWithConfig(ctx, nil)
}

// NewEngineWithConfig creates an engine with custom configuration.
func NewEngineWithConfig(ctx context.Context, cfg *Config) (*Engine, error) {
	runtimeCfg := wazero.NewRuntimeConfig()

	if cfg != nil {
		if cfg.MemoryLimitPages > 65536 {
			return nil, errors.InvalidArgument(errors.PhaseConfig,
				fmt.Sprintf("memory limit %d pages exceeds 65536", cfg.MemoryLimitPages))
		}
		if cfg.MemoryLimitPages > 0 {
			runtimeCfg = runtimeCfg.WithMemoryLimitPages(cfg.MemoryLimitPages)
		}
		if cfg.EnableThreads {
			runtimeCfg = runtimeCfg.WithCoreFeatures(api.CoreFeaturesV2 | experimental.CoreFeaturesThreads)
		}
	}

	return &Engine{runtime: wazero.NewRuntimeWithConfig(ctx, runtimeCfg)}, nil
}

// LoadAllocator compiles and instantiates wasm and returns an allocator over
// its linear memory. The module must export "memory" and "cabi_realloc".
// The returned allocator holds no stake; the caller takes the first one.
func (e *Engine) LoadAllocator(ctx context.Context, wasm []byte) (*LinearAllocator, error) {
	compiled, err := e.runtime.CompileModule(ctx, wasm)
	if err != nil {
		return nil, errors.New(errors.PhaseEngine, errors.KindInvalidData).
			Detail("compile module").
			Cause(err).
			Build()
	}

	name := fmt.Sprintf("objmodel-alloc#%d", e.seq.Add(1))
	mod, err := e.runtime.InstantiateModule(ctx, compiled, wazero.NewModuleConfig().WithName(name))
	if err != nil {
		_ = compiled.Close(ctx)
		return nil, errors.Instantiation(err)
	}

	mem := mod.ExportedMemory(MemoryExport)
	if mem == nil {
		_ = mod.Close(ctx)
		_ = compiled.Close(ctx)
		return nil, errors.NotFound(errors.PhaseEngine, "export", MemoryExport)
	}
	fn := mod.ExportedFunction(CabiRealloc)
	if fn == nil {
		_ = mod.Close(ctx)
		_ = compiled.Close(ctx)
		return nil, errors.NotFound(errors.PhaseEngine, "export", CabiRealloc)
	}
	if err := checkReallocSignature(fn.Definition()); err != nil {
		_ = mod.Close(ctx)
		_ = compiled.Close(ctx)
		return nil, err
	}

	Logger().Debug("guest allocator instantiated",
		zap.String("module", name),
		zap.Uint32("memory_bytes", mem.Size()))

	return newLinearAllocator(ctx, name, mod, compiled, mem, fn), nil
}

func checkReallocSignature(def api.FunctionDefinition) error {
	params, results := def.ParamTypes(), def.ResultTypes()
	ok := len(params) == 4 && len(results) == 1 && results[0] == api.ValueTypeI32
	for _, p := range params {
		ok = ok && p == api.ValueTypeI32
	}
	if !ok {
		return errors.InvalidData(errors.PhaseEngine,
			CabiRealloc+" must have type (i32, i32, i32, i32) -> i32")
	}
	return nil
}

// Close closes the runtime and every guest it instantiated.
func (e *Engine) Close(ctx context.Context) error {
	return e.runtime.Close(ctx)
}
