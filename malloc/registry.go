package malloc

import (
	"context"
	"math"
	"sync"
	"sync/atomic"

	"go.uber.org/zap"

	"github.com/wippyai/objmodel"
	"github.com/wippyai/objmodel/errors"
	"github.com/wippyai/objmodel/internal/debug"
	"github.com/wippyai/objmodel/object"
)

// State is the lifecycle state of a Registry.
type State int32

const (
	Uninitialized State = iota
	Initialized
	TornDown
)

func (s State) String() string {
	switch s {
	case Uninitialized:
		return "uninitialized"
	case Initialized:
		return "initialized"
	case TornDown:
		return "torn down"
	}
	return "unknown"
}

// Factory creates the default allocator. It returns an object nobody holds
// a stake in yet; the registry takes the first one.
type Factory func() (objmodel.Unknown, error)

// HeapFactory returns a Factory for the Go-heap allocator.
func HeapFactory(cfg *HeapConfig) Factory {
	return func() (objmodel.Unknown, error) {
		return NewHeapWithConfig(cfg), nil
	}
}

// Registry owns a process default allocator and hands out scoped slots
// that each hold the allocator current for one goroutine.
//
// Init and Teardown must not run concurrently with each other or with slot
// operations. Slot operations on different scopes may run in parallel; a
// single scope must be used by one goroutine at a time.
type Registry struct {
	factory   Factory
	def       atomic.Pointer[defaultAlloc]
	state     atomic.Int32
	gen       atomic.Uint64
	installed atomic.Int64
	mu        sync.Mutex
}

type defaultAlloc struct {
	a objmodel.Allocator
}

// slot is one scope's current allocator. It is only touched by the
// goroutine owning the scope, so it needs no locking.
type slot struct {
	cur objmodel.Allocator
	gen uint64
}

type slotKey struct {
	r *Registry
}

// NewRegistry creates an uninitialised registry. A nil factory means the
// Go-heap allocator with no limit.
func NewRegistry(factory Factory) *Registry {
	if factory == nil {
		factory = HeapFactory(nil)
	}
	return &Registry{factory: factory}
}

// SetFactory replaces the default allocator factory. It fails once the
// registry is initialised.
func (r *Registry) SetFactory(factory Factory) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.State() == Initialized {
		return errors.ContractViolation(errors.PhaseRegistry, "factory changed after init")
	}
	if factory == nil {
		return errors.NilPointer(errors.PhaseRegistry, "factory")
	}
	r.factory = factory
	return nil
}

// State returns the registry's lifecycle state.
func (r *Registry) State() State {
	return State(r.state.Load())
}

// Init creates the default allocator and takes a stake in it. On failure
// nothing is kept and the registry stays in its previous state. Init after
// Teardown is allowed; scopes bound before the teardown stay invalid.
func (r *Registry) Init() error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.State() == Initialized {
		debug.Assert(false, "registry initialised twice")
		Logger().Warn("registry initialised twice")
		return errors.ContractViolation(errors.PhaseRegistry, "registry already initialised")
	}

	u, err := r.factory()
	if err != nil {
		return errors.Wrap(errors.PhaseRegistry, errors.KindOutOfMemory, err, "create default allocator")
	}
	if u == nil {
		return errors.New(errors.PhaseRegistry, errors.KindOutOfMemory).
			Detail("default allocator factory returned nil").
			Build()
	}
	a, err := object.Query[objmodel.Allocator](u)
	if err != nil {
		// Take and drop a stake so an unowned object is destroyed.
		u.AddRef()
		u.Release()
		return errors.New(errors.PhaseRegistry, errors.KindNoInterface).
			Capability("IMalloc").
			Cause(err).
			Detail("default allocator does not answer the allocator capability").
			Build()
	}

	r.def.Store(&defaultAlloc{a: a})
	r.state.Store(int32(Initialized))
	Logger().Debug("registry initialised", zap.Uint64("generation", r.gen.Load()))
	return nil
}

// Teardown releases the default allocator and invalidates every bound
// scope. Allocators still installed in scopes keep the stakes their scopes
// took; those are reported, not released.
func (r *Registry) Teardown() {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.State() != Initialized {
		debug.Assert(false, "teardown of registry that is not initialised")
		Logger().Warn("teardown of registry that is not initialised", zap.Stringer("state", r.State()))
		return
	}

	r.gen.Add(1)
	r.state.Store(int32(TornDown))
	if n := r.installed.Swap(0); n > 0 {
		Logger().Warn("scopes still hold allocators at teardown", zap.Int64("scopes", n))
	}
	if d := r.def.Swap(nil); d != nil {
		d.a.Release()
	}
	Logger().Debug("registry torn down", zap.Uint64("generation", r.gen.Load()))
}

// Default returns the default allocator without a stake, or nil when the
// registry is not initialised.
func (r *Registry) Default() objmodel.Allocator {
	if d := r.def.Load(); d != nil {
		return d.a
	}
	return nil
}

// staleGen marks scopes bound while the registry was torn down. No
// generation reaches it.
const staleGen = math.MaxUint64

// Bind returns a context carrying a fresh, empty scope of r. Scopes bound
// before the first Init become usable once it runs; scopes bound while r is
// torn down are never usable, even after a later Init.
func (r *Registry) Bind(ctx context.Context) context.Context {
	gen := r.gen.Load()
	if r.State() == TornDown {
		gen = staleGen
	}
	return context.WithValue(ctx, slotKey{r}, &slot{gen: gen})
}

// lookup returns the scope bound in ctx if it belongs to the current
// initialised generation.
func (r *Registry) lookup(ctx context.Context) (*slot, error) {
	if r.State() != Initialized {
		return nil, errors.NotInitialized(errors.PhaseRegistry, "registry")
	}
	s, ok := ctx.Value(slotKey{r}).(*slot)
	if !ok {
		return nil, errors.NotInitialized(errors.PhaseRegistry, "scope")
	}
	if s.gen != r.gen.Load() {
		return nil, errors.New(errors.PhaseRegistry, errors.KindNotInitialized).
			Detail("scope was bound before teardown").
			Build()
	}
	return s, nil
}

// violation asserts and logs a contract violation and returns it as an
// error.
func violation(err error, op string) error {
	debug.Assert(false, op+": "+err.Error())
	Logger().Warn("allocator registry contract violation", zap.String("op", op), zap.Error(err))
	return err
}

// SetCurrent installs a in the scope of ctx and takes a stake in it. The
// scope must be empty: nested scopes use SwapCurrent or Use.
func (r *Registry) SetCurrent(ctx context.Context, a objmodel.Allocator) error {
	s, err := r.lookup(ctx)
	if err != nil {
		return violation(err, "set")
	}
	if a == nil {
		return errors.NilPointer(errors.PhaseRegistry, "allocator")
	}
	if s.cur != nil {
		return violation(errors.ContractViolation(errors.PhaseRegistry, "scope already has an allocator"), "set")
	}
	a.AddRef()
	s.cur = a
	r.installed.Add(1)
	Logger().Debug("allocator set")
	return nil
}

// SetCurrentOrDefault is SetCurrent with nil meaning the default allocator.
func (r *Registry) SetCurrentOrDefault(ctx context.Context, a objmodel.Allocator) error {
	if a == nil {
		if a = r.Default(); a == nil {
			return violation(errors.NotInitialized(errors.PhaseRegistry, "registry"), "set")
		}
	}
	return r.SetCurrent(ctx, a)
}

// CurrentNoRef returns the allocator installed in the scope of ctx without
// a stake. It returns nil when nothing is installed. Calling it before
// Init, after Teardown or with a context that was never bound is a
// contract violation: asserted, and nil otherwise.
func (r *Registry) CurrentNoRef(ctx context.Context) objmodel.Allocator {
	s, err := r.lookup(ctx)
	if err != nil {
		_ = violation(err, "current")
		return nil
	}
	return s.cur
}

// Current is CurrentNoRef for callers that treat a missing allocator as an
// ordinary error: it fails with errors.ErrNotInitialized instead of
// asserting.
func (r *Registry) Current(ctx context.Context) (objmodel.Allocator, error) {
	s, err := r.lookup(ctx)
	if err != nil {
		return nil, err
	}
	if s.cur == nil {
		return nil, errors.NotInitialized(errors.PhaseRegistry, "current allocator")
	}
	return s.cur, nil
}

// ClearCurrent empties the scope of ctx and releases its stake.
func (r *Registry) ClearCurrent(ctx context.Context) {
	s, err := r.lookup(ctx)
	if err != nil {
		_ = violation(err, "clear")
		return
	}
	if s.cur == nil {
		_ = violation(errors.ContractViolation(errors.PhaseRegistry, "scope has no allocator"), "clear")
		return
	}
	a := s.cur
	s.cur = nil
	r.installed.Add(-1)
	a.Release()
	Logger().Debug("allocator cleared")
}

// SwapCurrent puts a in the scope of ctx and returns what was there. No
// count changes: the scope takes over whatever stake the caller had in a,
// and the caller takes over the scope's stake in the prior value. Swapping
// the prior value back restores the scope exactly, nil included.
//
// With an invalid scope nothing is installed and nil is returned.
func (r *Registry) SwapCurrent(ctx context.Context, a objmodel.Allocator) objmodel.Allocator {
	s, err := r.lookup(ctx)
	if err != nil {
		_ = violation(err, "swap")
		return nil
	}
	prior := s.cur
	s.cur = a
	switch {
	case prior == nil && a != nil:
		r.installed.Add(1)
	case prior != nil && a == nil:
		r.installed.Add(-1)
	}
	return prior
}

// SwapCurrentOrDefault is SwapCurrent with nil meaning the default
// allocator.
func (r *Registry) SwapCurrentOrDefault(ctx context.Context, a objmodel.Allocator) objmodel.Allocator {
	if a == nil {
		a = r.Default()
	}
	return r.SwapCurrent(ctx, a)
}

// Use installs a, or the default for nil, for a nested region and returns
// the function that restores the previous allocator. The caller keeps its
// stake in a for the whole region; for nil, Use takes a stake in the
// default and restore drops it. ClearCurrent inside the region ends it
// early and consumes the stake the region installed.
//
//	restore := reg.Use(ctx, arena)
//	defer restore()
func (r *Registry) Use(ctx context.Context, a objmodel.Allocator) (restore func()) {
	if _, err := r.lookup(ctx); err != nil {
		_ = violation(err, "use")
		return func() {}
	}
	held := a
	if held == nil {
		if held = r.Default(); held != nil {
			held.AddRef()
		}
	}
	prior := r.SwapCurrent(ctx, held)
	return func() {
		cur := r.SwapCurrent(ctx, prior)
		if a == nil && held != nil && cur == held {
			held.Release()
		}
	}
}

// Alloc allocates size bytes from the current allocator of ctx.
func (r *Registry) Alloc(ctx context.Context, size uint32) (objmodel.Ptr, error) {
	a, err := r.Current(ctx)
	if err != nil {
		return objmodel.Null, err
	}
	return a.Alloc(size)
}

// Realloc resizes ptr through the current allocator of ctx.
func (r *Registry) Realloc(ctx context.Context, ptr objmodel.Ptr, size uint32) (objmodel.Ptr, error) {
	a, err := r.Current(ctx)
	if err != nil {
		return objmodel.Null, err
	}
	return a.Realloc(ptr, size)
}

// Free releases ptr through the current allocator of ctx.
func (r *Registry) Free(ctx context.Context, ptr objmodel.Ptr) error {
	a, err := r.Current(ctx)
	if err != nil {
		return err
	}
	a.Free(ptr)
	return nil
}
