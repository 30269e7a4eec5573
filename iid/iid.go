package iid

import (
	"github.com/google/uuid"
)

// IID identifies one capability contract. It is a 16-byte RFC 4122 value, so
// well-known interface GUIDs can be used verbatim.
type IID uuid.UUID

// Nil is the zero identity. No capability uses it.
var Nil IID

// Namespace is the UUID namespace for name-derived identities. It must never
// change: every component derives the same IID for the same name from it.
var Namespace = uuid.MustParse("5b1f3a0e-6d2c-4f8e-9a41-0c7d3e9b2f61")

// Parse parses a GUID string in any form accepted by uuid.Parse, including
// the braced registry form.
func Parse(s string) (IID, error) {
	u, err := uuid.Parse(s)
	if err != nil {
		return Nil, err
	}
	return IID(u), nil
}

// MustParse is like Parse but panics on malformed input.
func MustParse(s string) IID {
	return IID(uuid.MustParse(s))
}

// FromName derives a stable identity from a capability name using a
// name-based SHA-1 UUID in Namespace.
func FromName(name string) IID {
	return IID(uuid.NewSHA1(Namespace, []byte(name)))
}

// IsNil reports whether id is the zero identity.
func (id IID) IsNil() bool {
	return id == Nil
}

// String returns the canonical lowercase GUID form.
func (id IID) String() string {
	return uuid.UUID(id).String()
}
