package handle

import (
	"errors"

	"github.com/wippyai/objmodel"
	"github.com/wippyai/objmodel/iid"
)

// Handle is an opaque reference to an object in a table.
// Handle 0 is reserved and always invalid.
type Handle uint32

// Event types for handle lifecycle notifications.
type EventType uint8

const (
	EventPublished EventType = iota
	EventDropped
	EventBorrowed
	EventBorrowReturned
)

func (t EventType) String() string {
	switch t {
	case EventPublished:
		return "published"
	case EventDropped:
		return "dropped"
	case EventBorrowed:
		return "borrowed"
	case EventBorrowReturned:
		return "borrow returned"
	}
	return "unknown"
}

// Event represents a handle lifecycle event. Object is borrowed for the
// duration of the callback.
type Event struct {
	Object     objmodel.Unknown
	Capability iid.IID
	Handle     Handle
	Type       EventType
}

// Observer receives notifications about handle lifecycle events.
// Callbacks run with no table lock held.
type Observer interface {
	OnHandleEvent(Event)
}

var (
	ErrClosed            = errors.New("handle table closed")
	ErrInvalidHandle     = errors.New("invalid handle")
	ErrOutstandingBorrow = errors.New("cannot drop handle with outstanding borrows")
)
