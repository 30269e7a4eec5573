// Package object implements the reference-counted object contract.
//
// Embed Base in a struct and call Init from its constructor to get atomic
// AddRef/Release, a closed capability set answered by QueryInterface, and a
// destroy hook that runs exactly once:
//
//	s := &stream{}
//	s.Init(s, s.close, IIDSequentialStream)
//
// Objects start with no stakes. Whoever receives one from a constructor
// takes the first stake, usually with ref.New.
//
// Query converts between capabilities with Go types:
//
//	w, err := object.Query[SequentialStream](obj)
//	if errors.Is(err, errors.ErrNoInterface) {
//	    // not supported, branch locally
//	}
//	defer w.Release()
//
// IsEqualObject compares identity across capabilities by asking both sides
// for IUnknown.
package object
