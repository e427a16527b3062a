package registry

import "sync"

// Conn is the registry's view of a bus connection: a stable id, a private
// lock guarding its owned-name and queued-wait membership, and the
// activator bit. Package bus keeps these directly in its connection table;
// the registry never looks past it.
type Conn struct {
	// ID is the connection's stable 64-bit identity, unique within a bus.
	ID uint64

	// IsActivator marks a connection that holds names as a fallback owner;
	// set once at construction and never changed.
	IsActivator bool

	mu          sync.Mutex
	ownedNames  []*nameEntry
	queuedWaits []*waiter
}

// NewConn creates a registry-tracked connection handle with the given id.
func NewConn(id uint64, isActivator bool) *Conn {
	return &Conn{ID: id, IsActivator: isActivator}
}

// OwnedCount returns the number of names this connection currently owns.
// Equal to len(owned_names) per invariant I1.
func (c *Conn) OwnedCount() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.ownedNames)
}

// QueuedCount returns the number of names this connection is waiting on.
func (c *Conn) QueuedCount() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.queuedWaits)
}

// attach links e into c.owned_names and sets e.owner = c, under c.lock.
// Per spec.md §4.3, every Detach on an entry that will not be freed is
// paired with an Attach before the registry lock is released.
func attach(e *nameEntry, c *Conn) {
	c.mu.Lock()
	e.owner = c
	c.ownedNames = append(c.ownedNames, e)
	c.mu.Unlock()
}

// detach unlinks e from its current owner's owned_names under the owner's
// lock. e.owner is left set to the (former) owner only long enough for the
// caller to read the old id; callers must overwrite it via attach before
// releasing the registry lock, unless e is being freed.
func detach(e *nameEntry) {
	o := e.owner
	o.mu.Lock()
	for i, en := range o.ownedNames {
		if en == e {
			o.ownedNames = append(o.ownedNames[:i], o.ownedNames[i+1:]...)
			break
		}
	}
	o.mu.Unlock()
}

// enqueueWaiter links w into e.waiters (tail) and w.conn.queued_waits.
func enqueueWaiter(e *nameEntry, w *waiter) {
	e.waiters = append(e.waiters, w)
	w.conn.mu.Lock()
	w.conn.queuedWaits = append(w.conn.queuedWaits, w)
	w.conn.mu.Unlock()
}

// popWaiter removes and returns the head of e.waiters, also unlinking it
// from its connection's queued_waits. Returns nil if e.waiters is empty.
func popWaiter(e *nameEntry) *waiter {
	if len(e.waiters) == 0 {
		return nil
	}
	w := e.waiters[0]
	e.waiters = e.waiters[1:]
	unlinkFromConn(w)
	return w
}

// removeWaiter removes a specific waiter from both its entry's waiters
// list and its connection's queued_waits, wherever it sits in the FIFO.
func removeWaiter(e *nameEntry, w *waiter) {
	for i, cand := range e.waiters {
		if cand == w {
			e.waiters = append(e.waiters[:i], e.waiters[i+1:]...)
			break
		}
	}
	unlinkFromConn(w)
}

func unlinkFromConn(w *waiter) {
	w.conn.mu.Lock()
	for i, cand := range w.conn.queuedWaits {
		if cand == w {
			w.conn.queuedWaits = append(w.conn.queuedWaits[:i], w.conn.queuedWaits[i+1:]...)
			break
		}
	}
	w.conn.mu.Unlock()
}

// spliceOwnerState atomically drains c's owned_names and queued_waits into
// two fresh local slices, leaving c empty. Used only by EvictOwner, which
// must not hold R.lock while taking c.lock (spec.md §4.4.6, §5).
func spliceOwnerState(c *Conn) (owned []*nameEntry, waits []*waiter) {
	c.mu.Lock()
	owned = c.ownedNames
	waits = c.queuedWaits
	c.ownedNames = nil
	c.queuedWaits = nil
	c.mu.Unlock()
	return owned, waits
}
