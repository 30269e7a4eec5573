package handle

import (
	"sync"

	"go.uber.org/zap"

	"github.com/wippyai/objmodel"
	"github.com/wippyai/objmodel/errors"
	"github.com/wippyai/objmodel/iid"
	"github.com/wippyai/objmodel/object"
)

// Table maps integer handles to objects. Every live handle owns one stake
// in its object, taken through the capability it was published under.
// Handles are reused after they are dropped.
type Table struct {
	entries   []entry
	freeList  []Handle
	observers []Observer
	mu        sync.Mutex
	obsMu     sync.RWMutex
	closed    bool
}

type entry struct {
	obj     objmodel.Unknown
	id      iid.IID
	borrows uint32
	valid   bool
}

// NewTable creates an empty table.
func NewTable() *Table {
	return &Table{
		entries:  make([]entry, 0, 64),
		freeList: make([]Handle, 0, 16),
	}
}

// Publish queries obj for capability id and stores the result under a new
// handle. The table's stake comes from that query; the caller keeps its own.
func (t *Table) Publish(obj objmodel.Unknown, id iid.IID) (Handle, error) {
	if obj == nil {
		return 0, errors.NilPointer(errors.PhaseQuery, "object")
	}
	held, err := obj.QueryInterface(id)
	if err != nil {
		return 0, err
	}

	t.mu.Lock()
	if t.closed {
		t.mu.Unlock()
		held.Release()
		return 0, ErrClosed
	}
	e := entry{obj: held, id: id, valid: true}
	var h Handle
	if n := len(t.freeList); n > 0 {
		h = t.freeList[n-1]
		t.freeList = t.freeList[:n-1]
		t.entries[h-1] = e
	} else {
		t.entries = append(t.entries, e)
		h = Handle(len(t.entries))
	}
	t.mu.Unlock()

	t.notify(Event{Type: EventPublished, Handle: h, Capability: id, Object: held})
	return h, nil
}

// lookup returns the live entry for h. The caller holds t.mu.
func (t *Table) lookup(h Handle) *entry {
	if h == 0 || int(h) > len(t.entries) {
		return nil
	}
	e := &t.entries[h-1]
	if !e.valid {
		return nil
	}
	return e
}

// Get returns the object behind h without a stake, and the capability it
// was published under.
func (t *Table) Get(h Handle) (objmodel.Unknown, iid.IID, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()

	e := t.lookup(h)
	if e == nil {
		return nil, iid.Nil, false
	}
	return e.obj, e.id, true
}

// Resolve returns the object behind h as capability T with a new stake.
func Resolve[T objmodel.Unknown](t *Table, h Handle) (T, error) {
	var zero T
	obj, _, ok := t.Get(h)
	if !ok {
		return zero, ErrInvalidHandle
	}
	return object.Query[T](obj)
}

// Borrow marks h as lent out. A borrowed handle cannot be dropped until
// every borrow is returned.
func (t *Table) Borrow(h Handle) bool {
	t.mu.Lock()
	e := t.lookup(h)
	if e == nil {
		t.mu.Unlock()
		return false
	}
	e.borrows++
	ev := Event{Type: EventBorrowed, Handle: h, Capability: e.id, Object: e.obj}
	t.mu.Unlock()

	t.notify(ev)
	return true
}

// ReturnBorrow ends one borrow of h.
func (t *Table) ReturnBorrow(h Handle) bool {
	t.mu.Lock()
	e := t.lookup(h)
	if e == nil || e.borrows == 0 {
		t.mu.Unlock()
		return false
	}
	e.borrows--
	ev := Event{Type: EventBorrowReturned, Handle: h, Capability: e.id, Object: e.obj}
	t.mu.Unlock()

	t.notify(ev)
	return true
}

// Drop invalidates h and releases the table's stake. Observers see the
// object before the release.
func (t *Table) Drop(h Handle) error {
	t.mu.Lock()
	e := t.lookup(h)
	if e == nil {
		t.mu.Unlock()
		return ErrInvalidHandle
	}
	if e.borrows > 0 {
		t.mu.Unlock()
		return ErrOutstandingBorrow
	}
	obj, id := e.obj, e.id
	*e = entry{}
	t.freeList = append(t.freeList, h)
	t.mu.Unlock()

	t.notify(Event{Type: EventDropped, Handle: h, Capability: id, Object: obj})
	obj.Release()
	return nil
}

// Subscribe adds an observer for lifecycle events.
func (t *Table) Subscribe(o Observer) {
	t.obsMu.Lock()
	defer t.obsMu.Unlock()
	t.observers = append(t.observers, o)
}

// Unsubscribe removes an observer.
func (t *Table) Unsubscribe(o Observer) {
	t.obsMu.Lock()
	defer t.obsMu.Unlock()
	for i, obs := range t.observers {
		if obs == o {
			t.observers = append(t.observers[:i], t.observers[i+1:]...)
			return
		}
	}
}

// Len returns the number of live handles.
func (t *Table) Len() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.entries) - len(t.freeList)
}

// Each calls fn for every live handle until fn returns false. fn must not
// call back into the table.
func (t *Table) Each(fn func(Handle, iid.IID, objmodel.Unknown) bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	for i, e := range t.entries {
		if e.valid && !fn(Handle(i+1), e.id, e.obj) {
			return
		}
	}
}

// Close drops every handle, borrowed or not, and refuses further
// publishing. Closing twice is a no-op.
func (t *Table) Close() error {
	t.mu.Lock()
	if t.closed {
		t.mu.Unlock()
		return nil
	}
	t.closed = true
	var evs []Event
	for i := range t.entries {
		e := &t.entries[i]
		if !e.valid {
			continue
		}
		if e.borrows > 0 {
			Logger().Warn("handle closed while borrowed",
				zap.Uint32("handle", uint32(i+1)),
				zap.Uint32("borrows", e.borrows))
		}
		evs = append(evs, Event{Type: EventDropped, Handle: Handle(i + 1), Capability: e.id, Object: e.obj})
	}
	t.entries = nil
	t.freeList = nil
	t.mu.Unlock()

	for _, ev := range evs {
		t.notify(ev)
		ev.Object.Release()
	}
	return nil
}

func (t *Table) notify(e Event) {
	t.obsMu.RLock()
	defer t.obsMu.RUnlock()
	for _, o := range t.observers {
		o.OnHandleEvent(e)
	}
}
