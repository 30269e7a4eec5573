package object

import (
	"reflect"

	"github.com/wippyai/objmodel"
	"github.com/wippyai/objmodel/errors"
	"github.com/wippyai/objmodel/iid"
)

// Query is the typed form of QueryInterface: it asks obj for the capability
// registered for T and returns it with one new stake. Either the whole
// conversion succeeds or no stake is left behind.
func Query[T objmodel.Unknown](obj objmodel.Unknown) (T, error) {
	var zero T
	if obj == nil {
		return zero, errors.NilPointer(errors.PhaseQuery, "object")
	}
	id, ok := iid.Of[T]()
	if !ok {
		return zero, errors.New(errors.PhaseQuery, errors.KindNotFound).
			Detail("no identity registered for %v", reflect.TypeFor[T]()).
			Build()
	}
	u, err := obj.QueryInterface(id)
	if err != nil {
		return zero, err
	}
	t, ok := u.(T)
	if !ok {
		u.Release()
		return zero, errors.New(errors.PhaseQuery, errors.KindNoInterface).
			Capability(iid.Name(id)).
			Detail("%T answered the query but does not implement it", u).
			Build()
	}
	return t, nil
}

// Implements reports whether obj answers the capability id, without keeping
// a stake.
func Implements(obj objmodel.Unknown, id iid.IID) bool {
	if obj == nil {
		return false
	}
	u, err := obj.QueryInterface(id)
	if err != nil {
		return false
	}
	u.Release()
	return true
}

// QueryTo is the result-slot form of QueryInterface. It fails with
// errors.ErrPointer when out is nil and always clears *out first.
func QueryTo(obj objmodel.Unknown, id iid.IID, out *objmodel.Unknown) error {
	if out == nil {
		return errors.NilPointer(errors.PhaseQuery, "out")
	}
	*out = nil
	if obj == nil {
		return errors.InvalidArgument(errors.PhaseQuery, "object is nil")
	}
	u, err := obj.QueryInterface(id)
	if err != nil {
		return err
	}
	*out = u
	return nil
}

// IsEqualObject reports whether a and b are the same object: both nil, or
// both answering IUnknown with the same value. Objects must be pointers or
// other comparable values.
func IsEqualObject(a, b objmodel.Unknown) bool {
	if a == nil && b == nil {
		return true
	}
	if a == nil || b == nil {
		return false
	}

	ua, errA := a.QueryInterface(objmodel.IIDUnknown)
	if errA == nil {
		defer ua.Release()
	}
	ub, errB := b.QueryInterface(objmodel.IIDUnknown)
	if errB == nil {
		defer ub.Release()
	}
	if errA != nil || errB != nil {
		return false
	}
	return ua == ub
}
