package object

import (
	"reflect"
	"slices"
	"sync/atomic"

	"go.uber.org/zap"

	"github.com/wippyai/objmodel"
	"github.com/wippyai/objmodel/errors"
	"github.com/wippyai/objmodel/iid"
	"github.com/wippyai/objmodel/internal/debug"
)

var live atomic.Int64

// Live returns the number of initialised objects that have not been
// destroyed yet. Useful for leak checks.
func Live() int64 {
	return live.Load()
}

// Base implements Unknown for the struct embedding it: an atomic count that
// starts at zero, a capability set fixed at Init, and a destroy hook that
// runs exactly once when the count drops from one to zero.
//
//	type Counter struct {
//	    object.Base
//	    n int
//	}
//
//	func NewCounter() *Counter {
//	    c := &Counter{}
//	    c.Init(c, nil, IIDCounter)
//	    return c
//	}
type Base struct {
	self      objmodel.Unknown
	destroy   func()
	label     string
	caps      []iid.IID
	count     atomic.Int32
	destroyed atomic.Bool
}

// Init binds b to self, the value embedding it. destroy may be nil. caps
// lists the capabilities self answers besides IUnknown.
func (b *Base) Init(self objmodel.Unknown, destroy func(), caps ...iid.IID) {
	debug.Assert(b.self == nil, "object initialised twice")
	if debug.Enabled {
		st := reflect.TypeOf(self)
		for _, id := range caps {
			if e, ok := iid.Lookup(id); ok {
				debug.Assert(st.Implements(e.Type), st.String()+" does not implement "+e.Name)
			}
		}
	}
	b.self = self
	b.destroy = destroy
	b.caps = caps
	live.Add(1)
}

// SetLabel names the object in lifecycle log entries.
func (b *Base) SetLabel(label string) {
	b.label = label
}

// QueryInterface returns self with one new stake if id is IUnknown or one of
// the declared capabilities.
func (b *Base) QueryInterface(id iid.IID) (objmodel.Unknown, error) {
	if b.self == nil {
		debug.Assert(false, "QueryInterface on uninitialised object")
		return nil, errors.NotInitialized(errors.PhaseQuery, "object")
	}
	if id != objmodel.IIDUnknown && !slices.Contains(b.caps, id) {
		return nil, errors.NoInterface(iid.Name(id))
	}
	b.AddRef()
	return b.self, nil
}

// AddRef takes one stake.
func (b *Base) AddRef() uint32 {
	debug.Assert(!b.destroyed.Load(), "AddRef on destroyed object")
	return uint32(b.count.Add(1))
}

// Release drops one stake and destroys the object on the last one.
// Releasing an object with no stakes is a contract violation; without the
// debug tag it returns 0 and the destroy hook does not run again.
func (b *Base) Release() uint32 {
	for {
		c := b.count.Load()
		if c <= 0 {
			debug.Assert(false, "too many releases")
			Logger().Warn("release without stake", zap.String("object", b.name()))
			return 0
		}
		if b.count.CompareAndSwap(c, c-1) {
			if c == 1 {
				b.finalize()
			}
			return uint32(c - 1)
		}
	}
}

// Count returns the current number of stakes.
func (b *Base) Count() uint32 {
	return uint32(b.count.Load())
}

// Destroyed reports whether the destroy hook has run.
func (b *Base) Destroyed() bool {
	return b.destroyed.Load()
}

func (b *Base) finalize() {
	if !b.destroyed.CompareAndSwap(false, true) {
		return
	}
	live.Add(-1)
	if b.label != "" {
		Logger().Debug("object destroyed", zap.String("object", b.label))
	}
	if b.destroy != nil {
		b.destroy()
	}
}

func (b *Base) name() string {
	if b.label != "" {
		return b.label
	}
	if b.self == nil {
		return "<uninitialised>"
	}
	return reflect.TypeOf(b.self).String()
}
