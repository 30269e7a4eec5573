package ref

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wippyai/objmodel"
	"github.com/wippyai/objmodel/errors"
	"github.com/wippyai/objmodel/iid"
	"github.com/wippyai/objmodel/object"
)

type named interface {
	objmodel.Unknown
	Name() string
}

type sized interface {
	objmodel.Unknown
	Size() int
}

type missing interface {
	objmodel.Unknown
	Missing()
}

var (
	iidNamed = iid.RegisterName[named]("ref-test/named")
	iidSized = iid.RegisterName[sized]("ref-test/sized")
	_        = iid.RegisterName[missing]("ref-test/missing")
)

type thing struct {
	object.Base
	name      string
	destroyed int
}

func newThing(name string) *thing {
	t := &thing{name: name}
	t.Init(t, func() { t.destroyed++ }, iidNamed, iidSized)
	return t
}

func (t *thing) Name() string { return t.name }
func (t *thing) Size() int    { return len(t.name) }

func TestNew(t *testing.T) {
	obj := newThing("a")
	r := New[named](obj)
	assert.Equal(t, uint32(1), obj.Count())
	assert.False(t, r.IsNil())
	assert.Equal(t, "a", r.Get().Name())

	r.Release()
	assert.True(t, r.IsNil())
	assert.Equal(t, 1, obj.destroyed)

	var empty Ref[named]
	assert.True(t, empty.IsNil())
	empty.Release()

	nilRef := New[named](nil)
	assert.True(t, nilRef.IsNil())

	var typedNil *thing
	typed := New[*thing](typedNil)
	assert.True(t, typed.IsNil())
}

func TestAttachDetachPreserveCount(t *testing.T) {
	obj := newThing("a")
	obj.AddRef()
	obj.AddRef()
	require.Equal(t, uint32(2), obj.Count())

	var r Ref[named]
	r.Attach(obj)
	assert.Equal(t, uint32(2), obj.Count())

	p := r.Detach()
	assert.Equal(t, uint32(2), obj.Count())
	assert.True(t, r.IsNil())
	assert.Same(t, obj, p)

	obj.Release()
	obj.Release()
	assert.Equal(t, 1, obj.destroyed)
}

func TestAttachReleasesPrevious(t *testing.T) {
	a, b := newThing("a"), newThing("b")
	r := New[named](a)
	b.AddRef()

	r.Attach(b)
	assert.Equal(t, 1, a.destroyed)
	assert.Equal(t, uint32(1), b.Count())

	r.Release()
	assert.Equal(t, 1, b.destroyed)
}

func TestCopyTo(t *testing.T) {
	obj := newThing("a")
	r := New[named](obj)
	defer r.Release()

	err := r.CopyTo(nil)
	assert.ErrorIs(t, err, errors.ErrPointer)
	assert.Equal(t, errors.E_POINTER, errors.CodeOf(err))
	assert.Equal(t, uint32(1), obj.Count())

	var out named
	require.NoError(t, r.CopyTo(&out))
	assert.Same(t, obj, out)
	assert.Equal(t, uint32(2), obj.Count())
	out.Release()

	var empty Ref[named]
	out = obj
	require.NoError(t, empty.CopyTo(&out))
	assert.Nil(t, out)
}

func TestClone(t *testing.T) {
	obj := newThing("a")
	r := New[named](obj)
	c := r.Clone()
	assert.Equal(t, uint32(2), obj.Count())

	r.Release()
	assert.Equal(t, 0, obj.destroyed)
	c.Release()
	assert.Equal(t, 1, obj.destroyed)
}

func TestSet(t *testing.T) {
	a, b := newThing("a"), newThing("b")
	r := New[named](a)

	r.Set(&r)
	assert.Equal(t, uint32(1), a.Count(), "self-set keeps one stake")
	r.SetRaw(a)
	assert.Equal(t, uint32(1), a.Count())
	assert.Equal(t, 0, a.destroyed)

	other := New[named](b)
	r.Set(&other)
	assert.Equal(t, 1, a.destroyed)
	assert.Equal(t, uint32(2), b.Count(), "count equals live references")
	other.Release()
	assert.Equal(t, uint32(1), b.Count())

	r.SetRaw(nil)
	assert.True(t, r.IsNil())
	assert.Equal(t, 1, b.destroyed)
}

func TestMove(t *testing.T) {
	obj := newThing("a")
	r := New[named](obj)

	m := r.Move()
	assert.True(t, r.IsNil())
	assert.Equal(t, uint32(1), obj.Count())

	var dst Ref[named]
	dst.MoveFrom(&m)
	assert.True(t, m.IsNil())
	assert.Equal(t, uint32(1), obj.Count())

	dst.MoveFrom(&dst)
	assert.Equal(t, uint32(1), obj.Count())
	assert.False(t, dst.IsNil())

	dst.Release()
	assert.Equal(t, 1, obj.destroyed)
}

func TestMoveFromReleasesPrevious(t *testing.T) {
	a, b := newThing("a"), newThing("b")
	dst := New[named](a)
	src := New[named](b)

	dst.MoveFrom(&src)
	assert.Equal(t, 1, a.destroyed)
	assert.Equal(t, uint32(1), b.Count())
	dst.Release()
}

func TestAssignAcrossCapabilities(t *testing.T) {
	obj := newThing("abc")
	n := New[named](obj)
	defer n.Release()

	var s Ref[sized]
	require.NoError(t, Assign(&s, n.Get()))
	assert.Equal(t, 3, s.Get().Size())
	assert.Equal(t, uint32(2), obj.Count())

	require.NoError(t, Assign(&s, s.Get()))
	assert.Equal(t, uint32(2), obj.Count(), "self-assign changes nothing")

	var m Ref[missing]
	err := Assign(&m, n.Get())
	assert.ErrorIs(t, err, errors.ErrNoInterface)
	assert.True(t, m.IsNil())
	assert.Equal(t, uint32(2), obj.Count())

	require.NoError(t, Assign[sized, named](&s, nil))
	assert.True(t, s.IsNil())
	assert.Equal(t, uint32(1), obj.Count())
}

// plain answers only IUnknown.
type plain struct {
	object.Base
}

func TestAssignFailureEmptiesDestination(t *testing.T) {
	held := newThing("held")
	src := &plain{}
	src.Init(src, nil)
	src.AddRef()
	defer src.Release()

	dst := New[named](held)
	err := Assign(&dst, src)
	assert.ErrorIs(t, err, errors.ErrNoInterface)
	assert.True(t, dst.IsNil())
	assert.Equal(t, 1, held.destroyed)
	assert.Equal(t, uint32(1), src.Count())
}

func TestQuery(t *testing.T) {
	obj := newThing("abcd")
	n := New[named](obj)
	defer n.Release()

	s, err := Query[sized](&n)
	require.NoError(t, err)
	assert.Equal(t, 4, s.Get().Size())
	assert.Equal(t, uint32(2), obj.Count())
	s.Release()

	_, err = Query[missing](&n)
	assert.ErrorIs(t, err, errors.ErrNoInterface)
	assert.Equal(t, uint32(1), obj.Count())

	var empty Ref[named]
	e, err := Query[sized](&empty)
	require.NoError(t, err)
	assert.True(t, e.IsNil())
}

func TestEquality(t *testing.T) {
	a, b := newThing("a"), newThing("b")
	ra := New[named](a)
	defer ra.Release()
	sa := New[sized](a)
	defer sa.Release()

	assert.True(t, ra.Equal(a))
	assert.False(t, ra.Equal(b))
	assert.True(t, ra.IsEqualObject(sa.Get()))
	assert.False(t, ra.IsEqualObject(b))
	assert.False(t, ra.IsEqualObject(nil))

	var empty Ref[named]
	assert.True(t, empty.IsEqualObject(nil))
	assert.True(t, empty.Equal(nil))
}
