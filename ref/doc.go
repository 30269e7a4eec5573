// Package ref provides Ref, an owning reference to an object viewed through
// one capability.
//
// A Ref holds zero or one stake. Every way of filling it states who pays for
// the stake:
//
//	New(p)        takes a new stake (AddRef)
//	Adopt(p)      takes over a stake the caller already owns
//	r.Attach(p)   releases the old stake, takes over the caller's
//	r.Detach()    hands the stake back to the caller
//	r.CopyTo(&p)  gives the caller a new stake
//	r.Release()   gives up the stake
//
// Assign and Query convert between capabilities by querying the object, so
// a Ref[Blob] can be filled from a Ref[Stream] of the same object.
//
//	r := ref.New[blob.Blob](b)
//	defer r.Release()
//
//	s, err := ref.Query[blob.Stream](&r)
//	if err != nil {
//	    return err
//	}
//	defer s.Release()
package ref
