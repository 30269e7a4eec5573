// Package iid provides capability identities and the process-wide table
// that maps Go capability interfaces to them.
//
// An IID is a 128-bit token. Components that never link against each other
// still agree on a capability as long as they use the same token, so IIDs
// are either published GUIDs:
//
//	var IIDBlob = iid.MustParse("8BA5FB08-5195-40E2-AC58-0D989C3A0102")
//
// or derived deterministically from a capability name:
//
//	var IIDCounter = iid.FromName("example.com/counter")
//
// Binding a Go interface to its identity enables typed queries:
//
//	iid.Register[Blob]("IDxcBlob", IIDBlob)
//	id := iid.MustOf[Blob]()
//
// Registration is normally done from package-level variable initialisers.
package iid
