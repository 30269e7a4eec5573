// Package handle hands out integer handles for reference-counted objects,
// for code that cannot hold Go interface values, such as a guest module.
//
// # Handle Lifecycle
//
//	Publish  - query the object for a capability and own the result
//	Borrow   - lend the handle out; it cannot be dropped meanwhile
//	Drop     - invalidate the handle and release the table's stake
//
// # Handle Table
//
//	table := handle.NewTable()
//	defer table.Close()
//
//	h, err := table.Publish(b, blob.IIDBlob)
//	if err != nil {
//	    return err
//	}
//
//	// Resolve through any capability the object answers.
//	s, err := handle.Resolve[blob.SequentialStream](table, h)
//	if err != nil {
//	    return err
//	}
//	defer s.Release()
//
//	err = table.Drop(h)
//
// Handles are reused once dropped, so a stale handle may resolve to a
// different object. Handle 0 is never issued.
//
// # Observers
//
// Observers see every lifecycle event after the table lock is released:
//
//	type counter struct{ published, dropped atomic.Int64 }
//
//	func (c *counter) OnHandleEvent(e handle.Event) {
//	    switch e.Type {
//	    case handle.EventPublished:
//	        c.published.Add(1)
//	    case handle.EventDropped:
//	        c.dropped.Add(1)
//	    }
//	}
//
// Close drops every remaining handle, releasing the table's stakes.
package handle
