package ref

import (
	"reflect"

	"github.com/wippyai/objmodel"
	"github.com/wippyai/objmodel/errors"
	"github.com/wippyai/objmodel/internal/debug"
	"github.com/wippyai/objmodel/object"
)

// Ref owns at most one stake in an object viewed through capability T.
// A Ref must not be copied by assignment once it holds a stake; use Clone
// to share and Move to transfer.
type Ref[T objmodel.Unknown] struct {
	p T
}

// New returns a Ref holding a fresh stake in p. A nil p gives an empty Ref.
func New[T objmodel.Unknown](p T) Ref[T] {
	if !isNil(p) {
		p.AddRef()
	}
	return Ref[T]{p: p}
}

// Adopt returns a Ref that takes over a stake the caller already owns.
func Adopt[T objmodel.Unknown](p T) Ref[T] {
	return Ref[T]{p: p}
}

// Get returns the referenced object without a new stake.
func (r *Ref[T]) Get() T {
	return r.p
}

// IsNil reports whether r is empty.
func (r *Ref[T]) IsNil() bool {
	return isNil(r.p)
}

// Clone returns a second Ref to the same object with its own stake.
func (r *Ref[T]) Clone() Ref[T] {
	return New(r.p)
}

// Set makes r share src's object. The new stake is taken before the old one
// is given up, so r.Set(r) and aliased Refs are safe.
func (r *Ref[T]) Set(src *Ref[T]) {
	r.SetRaw(src.p)
}

// SetRaw makes r refer to p with a new stake, taking it before giving up the
// old one.
func (r *Ref[T]) SetRaw(p T) {
	if !isNil(p) {
		p.AddRef()
	}
	old := r.p
	r.p = p
	if !isNil(old) {
		old.Release()
	}
}

// Move empties r and returns a Ref holding its stake.
func (r *Ref[T]) Move() Ref[T] {
	var zero T
	out := Ref[T]{p: r.p}
	r.p = zero
	return out
}

// MoveFrom releases r's current stake and takes over src's, leaving src
// empty. Moving a Ref into itself changes nothing.
func (r *Ref[T]) MoveFrom(src *Ref[T]) {
	if src == r {
		return
	}
	var zero T
	old := r.p
	r.p = src.p
	src.p = zero
	if !isNil(old) {
		old.Release()
	}
}

// Attach releases r's current stake and takes over a stake in p that the
// caller already owns. The count of p is not changed.
func (r *Ref[T]) Attach(p T) {
	old := r.p
	r.p = p
	if !isNil(old) {
		n := old.Release()
		debug.Assert(n != 0 || !sameValue(old, p), "Attach of an object destroyed by the same call")
	}
}

// Detach empties r and hands its stake to the caller.
func (r *Ref[T]) Detach() T {
	var zero T
	p := r.p
	r.p = zero
	return p
}

// CopyTo stores the object in *out with a new stake. An empty r stores the
// zero value and succeeds.
func (r *Ref[T]) CopyTo(out *T) error {
	if out == nil {
		return errors.NilPointer(errors.PhaseRefCount, "out")
	}
	if !isNil(r.p) {
		r.p.AddRef()
	}
	*out = r.p
	return nil
}

// Release gives up r's stake, if any, and empties r. The stake is cleared
// before the object is released so a destroy hook that reaches back into r
// sees it empty.
func (r *Ref[T]) Release() {
	var zero T
	p := r.p
	r.p = zero
	if !isNil(p) {
		p.Release()
	}
}

// Close is Release for use with defer and io.Closer-shaped helpers.
func (r *Ref[T]) Close() error {
	r.Release()
	return nil
}

// Equal reports whether r holds exactly p, compared by value without
// querying. Use IsEqualObject for identity across capabilities.
func (r *Ref[T]) Equal(p T) bool {
	return sameValue(r.p, p)
}

// IsEqualObject reports whether r and other refer to the same object.
func (r *Ref[T]) IsEqualObject(other objmodel.Unknown) bool {
	var u objmodel.Unknown
	if !isNil(r.p) {
		u = r.p
	}
	if isNil(other) {
		other = nil
	}
	return object.IsEqualObject(u, other)
}

// Assign makes dst refer to src's object viewed through capability T. If dst
// already holds the same object nothing changes. When src does not answer T,
// dst is emptied and the query error is returned.
func Assign[T, Q objmodel.Unknown](dst *Ref[T], src Q) error {
	if isNil(src) {
		dst.Release()
		return nil
	}
	if !isNil(dst.p) && object.IsEqualObject(dst.p, src) {
		return nil
	}
	t, err := object.Query[T](src)
	if err != nil {
		dst.Release()
		return err
	}
	dst.Attach(t)
	return nil
}

// Query returns a new Ref to r's object viewed through capability Q. An
// empty r yields an empty Ref.
func Query[Q, T objmodel.Unknown](r *Ref[T]) (Ref[Q], error) {
	if isNil(r.p) {
		return Ref[Q]{}, nil
	}
	q, err := object.Query[Q](r.p)
	if err != nil {
		return Ref[Q]{}, err
	}
	return Adopt(q), nil
}

func sameValue[T any](a, b T) bool {
	av, bv := any(a), any(b)
	if av == nil || bv == nil {
		return av == nil && bv == nil
	}
	ta, tb := reflect.TypeOf(av), reflect.TypeOf(bv)
	if ta != tb || !ta.Comparable() {
		return false
	}
	return av == bv
}

func isNil[T any](p T) bool {
	v := any(p)
	if v == nil {
		return true
	}
	rv := reflect.ValueOf(v)
	switch rv.Kind() {
	case reflect.Pointer, reflect.Map, reflect.Slice, reflect.Func, reflect.Chan, reflect.Interface, reflect.UnsafePointer:
		return rv.IsNil()
	}
	return false
}
