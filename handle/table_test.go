package handle

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wippyai/objmodel"
	"github.com/wippyai/objmodel/errors"
	"github.com/wippyai/objmodel/iid"
	"github.com/wippyai/objmodel/object"
)

type Named interface {
	objmodel.Unknown
	Name() string
}

type Sized interface {
	objmodel.Unknown
	Size() int
}

var (
	iidNamed = iid.RegisterName[Named]("handle-test/Named")
	iidSized = iid.RegisterName[Sized]("handle-test/Sized")
)

type thing struct {
	object.Base
	name string
}

func newThing(name string) *thing {
	t := &thing{name: name}
	t.Init(t, nil, iidNamed, iidSized)
	return t
}

func (t *thing) Name() string { return t.name }
func (t *thing) Size() int     { return len(t.name) }

type testObserver struct {
	mu     sync.Mutex
	events []Event
}

func (o *testObserver) OnHandleEvent(e Event) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.events = append(o.events, e)
}

func (o *testObserver) types() []EventType {
	o.mu.Lock()
	defer o.mu.Unlock()
	out := make([]EventType, len(o.events))
	for i, e := range o.events {
		out[i] = e.Type
	}
	return out
}

func TestTable_PublishOwnsOneStake(t *testing.T) {
	table := NewTable()
	obj := newThing("a")

	h, err := table.Publish(obj, iidNamed)
	require.NoError(t, err)
	assert.NotZero(t, h)
	assert.Equal(t, uint32(1), obj.Count())
	assert.Equal(t, 1, table.Len())

	got, id, ok := table.Get(h)
	require.True(t, ok)
	assert.Equal(t, iidNamed, id)
	assert.True(t, object.IsEqualObject(got, obj))
	assert.Equal(t, uint32(1), obj.Count(), "Get takes no stake")

	require.NoError(t, table.Drop(h))
	assert.True(t, obj.Destroyed())
	assert.Equal(t, 0, table.Len())
}

func TestTable_PublishErrors(t *testing.T) {
	table := NewTable()

	_, err := table.Publish(nil, iidNamed)
	assert.ErrorIs(t, err, errors.ErrPointer)

	obj := newThing("b")
	_, err = table.Publish(obj, objmodel.IIDAllocator)
	assert.ErrorIs(t, err, errors.ErrNoInterface)
	assert.Equal(t, uint32(0), obj.Count())

	require.NoError(t, table.Close())
	_, err = table.Publish(obj, iidNamed)
	assert.ErrorIs(t, err, ErrClosed)
	assert.Equal(t, uint32(0), obj.Count(), "refused publish keeps no stake")
	assert.True(t, obj.Destroyed(), "the rejected stake was the only one")
}

func TestResolve(t *testing.T) {
	table := NewTable()
	obj := newThing("hello")
	h, err := table.Publish(obj, iidNamed)
	require.NoError(t, err)

	s, err := Resolve[Sized](table, h)
	require.NoError(t, err)
	assert.Equal(t, 5, s.Size())
	assert.Equal(t, uint32(2), obj.Count(), "one count across capabilities")

	require.NoError(t, table.Drop(h))
	assert.False(t, obj.Destroyed(), "the resolved reference keeps it alive")
	s.Release()
	assert.True(t, obj.Destroyed())

	_, err = Resolve[Sized](table, h)
	assert.ErrorIs(t, err, ErrInvalidHandle)
	_, err = Resolve[Sized](table, 0)
	assert.ErrorIs(t, err, ErrInvalidHandle)
}

func TestTable_Borrow(t *testing.T) {
	table := NewTable()
	obj := newThing("c")
	h, err := table.Publish(obj, iidNamed)
	require.NoError(t, err)

	assert.False(t, table.ReturnBorrow(h), "nothing lent out")
	assert.True(t, table.Borrow(h))
	assert.True(t, table.Borrow(h))
	assert.ErrorIs(t, table.Drop(h), ErrOutstandingBorrow)

	assert.True(t, table.ReturnBorrow(h))
	assert.ErrorIs(t, table.Drop(h), ErrOutstandingBorrow)
	assert.True(t, table.ReturnBorrow(h))
	require.NoError(t, table.Drop(h))

	assert.False(t, table.Borrow(h))
	assert.ErrorIs(t, table.Drop(h), ErrInvalidHandle)
	assert.True(t, obj.Destroyed())
}

func TestTable_HandleReuse(t *testing.T) {
	table := NewTable()
	h1, err := table.Publish(newThing("x"), iidNamed)
	require.NoError(t, err)
	h2, err := table.Publish(newThing("y"), iidNamed)
	require.NoError(t, err)
	assert.NotEqual(t, h1, h2)

	require.NoError(t, table.Drop(h1))
	h3, err := table.Publish(newThing("z"), iidSized)
	require.NoError(t, err)
	assert.Equal(t, h1, h3)

	got, id, ok := table.Get(h3)
	require.True(t, ok)
	assert.Equal(t, iidSized, id)
	assert.Equal(t, "z", got.(Named).Name())
	require.NoError(t, table.Close())
}

func TestTable_Observer(t *testing.T) {
	table := NewTable()
	obs := &testObserver{}
	table.Subscribe(obs)

	obj := newThing("d")
	h, err := table.Publish(obj, iidNamed)
	require.NoError(t, err)
	table.Borrow(h)
	table.ReturnBorrow(h)
	require.NoError(t, table.Drop(h))

	assert.Equal(t, []EventType{EventPublished, EventBorrowed, EventBorrowReturned, EventDropped}, obs.types())
	for _, e := range obs.events {
		assert.Equal(t, h, e.Handle)
		assert.Equal(t, iidNamed, e.Capability)
	}

	table.Unsubscribe(obs)
	_, err = table.Publish(newThing("e"), iidNamed)
	require.NoError(t, err)
	assert.Len(t, obs.types(), 4)
	require.NoError(t, table.Close())
}

func TestTable_CloseReleasesEverything(t *testing.T) {
	table := NewTable()
	obs := &testObserver{}
	table.Subscribe(obs)

	a, b := newThing("a"), newThing("b")
	ha, err := table.Publish(a, iidNamed)
	require.NoError(t, err)
	_, err = table.Publish(b, iidSized)
	require.NoError(t, err)
	table.Borrow(ha)

	require.NoError(t, table.Close())
	assert.True(t, a.Destroyed(), "close ignores borrows")
	assert.True(t, b.Destroyed())
	assert.Equal(t, 0, table.Len())
	assert.Equal(t, []EventType{EventPublished, EventPublished, EventBorrowed, EventDropped, EventDropped}, obs.types())

	require.NoError(t, table.Close())
}

func TestTable_Each(t *testing.T) {
	table := NewTable()
	defer table.Close()

	names := []string{"one", "two", "three"}
	for _, n := range names {
		_, err := table.Publish(newThing(n), iidNamed)
		require.NoError(t, err)
	}

	var seen []string
	table.Each(func(h Handle, id iid.IID, obj objmodel.Unknown) bool {
		seen = append(seen, obj.(Named).Name())
		return true
	})
	assert.Equal(t, names, seen)

	count := 0
	table.Each(func(Handle, iid.IID, objmodel.Unknown) bool {
		count++
		return false
	})
	assert.Equal(t, 1, count)
}

func TestTable_Concurrent(t *testing.T) {
	table := NewTable()
	obj := newThing("shared")
	obj.AddRef()
	defer obj.Release()

	var wg sync.WaitGroup
	for range 8 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for range 100 {
				h, err := table.Publish(obj, iidNamed)
				if !assert.NoError(t, err) {
					return
				}
				s, err := Resolve[Sized](table, h)
				if !assert.NoError(t, err) {
					return
				}
				s.Release()
				assert.NoError(t, table.Drop(h))
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, 0, table.Len())
	assert.Equal(t, uint32(1), obj.Count())
}

func TestEventType_String(t *testing.T) {
	assert.Equal(t, "published", EventPublished.String())
	assert.Equal(t, "borrow returned", EventBorrowReturned.String())
	assert.Equal(t, "unknown", EventType(99).String())
}
