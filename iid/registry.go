package iid

import (
	"fmt"
	"reflect"
	"sort"
	"sync"
)

// Entry is a single capability registration.
type Entry struct {
	// Type is the Go interface type of the capability.
	Type reflect.Type
	// Name is the capability name used in logs and errors.
	Name string
	// ID is the capability identity.
	ID IID
}

var registry = struct {
	byType map[reflect.Type]Entry
	byID   map[IID]Entry
	mu     sync.RWMutex
}{
	byType: make(map[reflect.Type]Entry),
	byID:   make(map[IID]Entry),
}

// Register associates the Go type T with a capability identity and name and
// returns id. Registering the same triple again is a no-op; registering T or
// id a second time with a different partner panics, since two components
// would otherwise disagree about what a token means.
func Register[T any](name string, id IID) IID {
	if id.IsNil() {
		panic("iid: register " + name + " with nil identity")
	}
	t := reflect.TypeFor[T]()

	registry.mu.Lock()
	defer registry.mu.Unlock()

	if e, ok := registry.byType[t]; ok {
		if e.ID != id {
			panic(fmt.Sprintf("iid: %v already registered as %s (%s)", t, e.Name, e.ID))
		}
		return id
	}
	if e, ok := registry.byID[id]; ok {
		panic(fmt.Sprintf("iid: %s already registered for %v", id, e.Type))
	}

	e := Entry{Type: t, Name: name, ID: id}
	registry.byType[t] = e
	registry.byID[id] = e
	return id
}

// RegisterName registers T under an identity derived from name.
func RegisterName[T any](name string) IID {
	return Register[T](name, FromName(name))
}

// Of returns the identity registered for T.
func Of[T any]() (IID, bool) {
	t := reflect.TypeFor[T]()

	registry.mu.RLock()
	defer registry.mu.RUnlock()

	e, ok := registry.byType[t]
	return e.ID, ok
}

// MustOf is like Of but panics when T has no registered identity.
func MustOf[T any]() IID {
	id, ok := Of[T]()
	if !ok {
		panic(fmt.Sprintf("iid: no identity registered for %v", reflect.TypeFor[T]()))
	}
	return id
}

// Lookup returns the registration for id.
func Lookup(id IID) (Entry, bool) {
	registry.mu.RLock()
	defer registry.mu.RUnlock()

	e, ok := registry.byID[id]
	return e, ok
}

// Name returns the registered name for id, or its GUID string.
func Name(id IID) string {
	if e, ok := Lookup(id); ok {
		return e.Name
	}
	return id.String()
}

// Entries returns a snapshot of all registrations ordered by name.
func Entries() []Entry {
	registry.mu.RLock()
	out := make([]Entry, 0, len(registry.byID))
	for _, e := range registry.byID {
		out = append(out, e)
	}
	registry.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}
