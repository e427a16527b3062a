// Package registry implements the name registry: the authority that maps
// well-known names to the connection that owns them, arbitrates contention
// via a four-mode takeover state machine, and emits ordered change events
// into a caller-supplied notify.Log.
//
// Every operation here executes under the registry's single mutex, per the
// lock order Bus.lock -> R.lock -> C.lock documented in spec.md §5. Callers
// are responsible for flushing the notify.Log they pass in only after the
// call returns (never while still holding R.lock indirectly).
package registry

import (
	"sync"

	"github.com/busreg/busreg/buserr"
	"github.com/busreg/busreg/notify"
)

// MessageMigrator migrates any messages queued at an activator connection
// to the connection taking over its name. It is the thin seam onto the
// out-of-scope message-copy mechanism (spec.md §1): the registry calls it
// during takeover and aborts with no state change if it fails.
type MessageMigrator interface {
	Migrate(from, to *Conn) error
}

type noopMigrator struct{}

func (noopMigrator) Migrate(from, to *Conn) error { return nil }

// Registry owns every indexed name entry for one bus. One Registry exists
// per bus lifetime (spec.md §9 "Global state").
type Registry struct {
	mu            sync.Mutex
	index         map[string]*nameEntry
	migrator      MessageMigrator
	maxQueueDepth int
}

// New creates an empty registry with a no-op message migrator and no
// waiter-queue depth limit.
func New() *Registry {
	return &Registry{
		index:    make(map[string]*nameEntry),
		migrator: noopMigrator{},
	}
}

// SetMigrator installs the message migrator used during activator
// takeover. Passing nil restores the no-op default.
func (r *Registry) SetMigrator(m MessageMigrator) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if m == nil {
		m = noopMigrator{}
	}
	r.migrator = m
}

// SetMaxQueueDepth caps how many waiters a single name's queue may hold;
// a queueable acquire beyond the limit is refused with QueueFullError.
// n <= 0 means unlimited, the default.
func (r *Registry) SetMaxQueueDepth(n int) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.maxQueueDepth = n
}

// AcquireStatus distinguishes a freshly granted acquire from an idempotent
// re-acquire by the current owner.
type AcquireStatus int

const (
	AcquireOK AcquireStatus = iota
	AcquireAlready
)

// AcquireResult is the successful outcome of Acquire. Flags reflects the
// entry's effective flags; FlagInQueue is set when the request was queued
// rather than granted.
type AcquireResult struct {
	Status AcquireStatus
	Flags  Flags
}

// Lookup resolves name to its entry's current owner, with no side effects.
// The second return is false if no entry is indexed for name.
func (r *Registry) Lookup(name string) (ownerID uint64, flags Flags, ok bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	e, found := r.index[name]
	if !found {
		return 0, 0, false
	}
	return e.owner.ID, e.flags, true
}

// Acquire implements spec.md §4.4.2. Preconditions (name validity, the
// requester's owned-name quota, and policy) are the caller's
// responsibility; Acquire trusts that they already hold.
//
// A non-nil *buserr.AlreadyError is returned alongside a valid
// AcquireResult when the same connection re-acquires a name it already
// owns (spec.md P5) — callers should treat it as success, not failure.
func (r *Registry) Acquire(c *Conn, name string, flags Flags, log *notify.Log) (AcquireResult, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	flags &^= FlagInQueue // IN_QUEUE is output-only, never part of a request

	e, found := r.index[name]
	if !found {
		return r.acquireNew(c, name, flags, log), nil
	}
	if e.owner == c {
		e.flags = flags
		return AcquireResult{Status: AcquireAlready, Flags: e.flags}, buserr.NewAlreadyError(name)
	}
	return r.acquireConflict(c, e, flags, log)
}

// acquireNew implements spec.md §4.4.2 case A.
func (r *Registry) acquireNew(c *Conn, name string, flags Flags, log *notify.Log) AcquireResult {
	e := &nameEntry{name: name, hash: nameHash(name)}

	if c.IsActivator {
		e.activator = c
		flags = FlagAllowReplacement
	}
	e.flags = flags

	r.index[name] = e
	attach(e, c)

	log.Add(notify.Event{Kind: notify.KindAdd, OldOwner: 0, NewOwner: c.ID, Flags: uint32(e.flags), Name: name})
	return AcquireResult{Status: AcquireOK, Flags: e.flags}
}

// acquireConflict implements the conflict state machine of spec.md §4.4.3.
func (r *Registry) acquireConflict(c *Conn, e *nameEntry, reqFlags Flags, log *notify.Log) (AcquireResult, error) {
	switch {
	case reqFlags.Has(FlagReplaceExisting) && e.flags.Has(FlagAllowReplacement):
		return r.takeover(c, e, reqFlags, log)

	case reqFlags.Has(FlagQueueable):
		if r.maxQueueDepth > 0 && len(e.waiters) >= r.maxQueueDepth {
			return AcquireResult{}, buserr.NewQueueFullError(e.name, r.maxQueueDepth)
		}
		w := &waiter{conn: c, flags: reqFlags, entry: e}
		enqueueWaiter(e, w)
		return AcquireResult{Status: AcquireOK, Flags: reqFlags | FlagInQueue}, nil

	default:
		return AcquireResult{}, buserr.NewNameExistsError(e.name)
	}
}

// takeover implements the atomic takeover path of spec.md §4.4.3.
func (r *Registry) takeover(c *Conn, e *nameEntry, reqFlags Flags, log *notify.Log) (AcquireResult, error) {
	o := e.owner

	// Step 1: a replaceable owner that is itself queueable rejoins the
	// queue as a waiter, so a later release by the new owner restores it.
	if e.flags.Has(FlagQueueable) {
		enqueueWaiter(e, &waiter{conn: o, flags: e.flags, entry: e})
	}

	// Step 2: activator takeover must not stall on its queued messages. The
	// activator stays set, so a later release hands the name back to it.
	if e.activator != nil {
		if err := r.migrator.Migrate(e.activator, c); err != nil {
			// Abort with no state change: undo the waiter enqueue from step 1.
			if e.flags.Has(FlagQueueable) {
				removeWaiter(e, e.waiters[len(e.waiters)-1])
			}
			return AcquireResult{}, buserr.NewNoMemError(err.Error())
		}
	}

	// Step 4: swap ownership.
	oldID := o.ID
	detach(e)
	attach(e, c)
	e.flags = reqFlags

	// Step 5.
	log.Add(notify.Event{Kind: notify.KindChange, OldOwner: oldID, NewOwner: c.ID, Flags: uint32(e.flags), Name: e.name})
	return AcquireResult{Status: AcquireOK, Flags: e.flags}, nil
}

// Release implements spec.md §4.4.4: it releases name if c is the current
// owner, cancels c's queued wait on name if any, or reports
// PermissionDenied if c has no standing over name at all.
func (r *Registry) Release(name string, c *Conn, log *notify.Log) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	e, found := r.index[name]
	if !found {
		return buserr.NewNameNotFoundError(name)
	}

	if e.owner == c {
		r.releaseEntry(e, log)
		return nil
	}

	for _, w := range e.waiters {
		if w.conn == c {
			removeWaiter(e, w)
			return nil
		}
	}

	return buserr.NewPermissionDeniedError("connection %d has no standing over %q", c.ID, name)
}

// releaseEntry implements spec.md §4.4.5.
func (r *Registry) releaseEntry(e *nameEntry, log *notify.Log) {
	oldID := e.owner.ID
	detach(e)

	if w := popWaiter(e); w != nil {
		e.flags = w.flags &^ FlagInQueue
		attach(e, w.conn)
		log.Add(notify.Event{Kind: notify.KindChange, OldOwner: oldID, NewOwner: w.conn.ID, Flags: uint32(e.flags), Name: e.name})
		return
	}

	if e.activator != nil {
		e.flags = FlagAllowReplacement
		attach(e, e.activator)
		log.Add(notify.Event{Kind: notify.KindChange, OldOwner: oldID, NewOwner: e.activator.ID, Flags: uint32(e.flags), Name: e.name})
		return
	}

	log.Add(notify.Event{Kind: notify.KindRemove, OldOwner: oldID, NewOwner: 0, Flags: uint32(e.flags), Name: e.name})
	delete(r.index, e.name)
}

// EvictOwner implements spec.md §4.4.6: it removes c's presence from every
// name it owns or waits on, without ever holding c.lock while holding
// R.lock (the splice-then-process pattern in spliceOwnerState breaks that
// would-be lock cycle with Attach/Detach's R.lock -> owner.lock edge).
func (r *Registry) EvictOwner(c *Conn, log *notify.Log) {
	owned, waits := spliceOwnerState(c)

	r.mu.Lock()
	defer r.mu.Unlock()

	for _, w := range waits {
		removeWaiter(w.entry, w)
	}
	for _, e := range owned {
		r.releaseEntry(e, log)
	}
}
