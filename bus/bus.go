// Package bus ties the name registry, the notification broadcaster, and a
// live connection table into one serving unit: everything cmd/busd needs to
// dispatch an incoming transport.Conn request. It owns Bus.lock, the
// outermost lock in the order documented in spec.md §5
// (Bus.lock -> R.lock -> C.lock), and is the only package allowed to
// combine registry state with connection-table state (package registry
// never sees anything but *registry.Conn).
package bus

import (
	"sync"

	"github.com/busreg/busreg/buserr"
	"github.com/busreg/busreg/config"
	"github.com/busreg/busreg/nameval"
	"github.com/busreg/busreg/notify"
	"github.com/busreg/busreg/policy"
	"github.com/busreg/busreg/registry"
	"github.com/busreg/busreg/wire"
)

// Bus is one running instance of the name registry service: the set of
// live connections, the registry they contend over, and the broadcaster
// fanning out ownership changes.
type Bus struct {
	mu     sync.Mutex
	conns  map[uint64]*registry.Conn
	nextID uint64
	reg    *registry.Registry
	bcast  *notify.Broadcaster
	policy policy.Policy
	cfg    *config.Config
}

// New creates a Bus with an empty connection table, a fresh registry, and a
// broadcaster sized per cfg. If pol is nil, policy.AllowAll{} is used.
func New(cfg *config.Config, pol policy.Policy) *Bus {
	if pol == nil {
		pol = policy.AllowAll{}
	}
	reg := registry.New()
	reg.SetMaxQueueDepth(cfg.MaxQueueDepth)
	b := &Bus{
		conns:  make(map[uint64]*registry.Conn),
		nextID: 1,
		reg:    reg,
		bcast:  notify.NewBroadcaster(cfg.BroadcastWorkers),
		policy: pol,
		cfg:    cfg,
	}
	return b
}

// Start launches the broadcaster's worker pool.
func (b *Bus) Start() error { return b.bcast.Start() }

// Stop drains the broadcaster.
func (b *Bus) Stop() error { return b.bcast.Stop() }

// Broadcaster exposes the bus's notification fan-out, so transport-layer
// dispatch code can Subscribe/Unsubscribe a connection's outbound writer.
func (b *Bus) Broadcaster() *notify.Broadcaster { return b.bcast }

// Hello registers a new connection and returns its assigned id. isActivator
// marks a privileged fallback-owner connection (spec.md §3).
func (b *Bus) Hello(isActivator bool) *registry.Conn {
	b.mu.Lock()
	defer b.mu.Unlock()

	id := b.nextID
	b.nextID++
	c := registry.NewConn(id, isActivator)
	b.conns[id] = c
	return c
}

// Bye evicts a connection: every name it owns is released (promoting a
// waiter or rebinding an activator per spec.md §4.4.5) and every queued
// wait it holds is cancelled, then it is removed from the connection table.
func (b *Bus) Bye(connID uint64, log *notify.Log) {
	b.mu.Lock()
	c, ok := b.conns[connID]
	if ok {
		delete(b.conns, connID)
	}
	b.mu.Unlock()

	if !ok {
		return
	}
	b.reg.EvictOwner(c, log)
	b.bcast.Unsubscribe(connID)
}

// resolve looks up a live connection by id, honoring the privileged
// "act on behalf of another connection" path: a request dispatcher may
// pass actingFor to apply an operation against a different connection than
// the one that sent it (spec.md §9's resolved open question places this
// here, in the request layer, never inside package registry).
func (b *Bus) resolve(connID uint64) (*registry.Conn, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	c, ok := b.conns[connID]
	if !ok {
		return nil, buserr.NewNoConnError(connID)
	}
	return c, nil
}

// Acquire validates name, enforces the requester's owned-name quota and the
// installed policy, then delegates to the registry. actingFor is the
// connection the acquire is performed on behalf of — ordinarily the
// requester itself, but a privileged caller may pass a different live id.
func (b *Bus) Acquire(actingFor uint64, name string, flags registry.Flags, log *notify.Log) (registry.AcquireResult, error) {
	if !nameval.IsValidString(name) {
		return registry.AcquireResult{}, buserr.NewInvalidNameError(name)
	}
	if len(name) > b.cfg.MaxNameLen {
		return registry.AcquireResult{}, buserr.NewInvalidNameError(name)
	}
	if !b.policy.Allow(actingFor, name) {
		return registry.AcquireResult{}, buserr.NewPermissionDeniedError("policy refused %q for connection %d", name, actingFor)
	}

	c, err := b.resolve(actingFor)
	if err != nil {
		return registry.AcquireResult{}, err
	}
	if c.OwnedCount() >= b.cfg.MaxNamesPerConn {
		return registry.AcquireResult{}, buserr.NewTooManyNamesError(actingFor, b.cfg.MaxNamesPerConn)
	}

	return b.reg.Acquire(c, name, flags, log)
}

// Release delegates to the registry on behalf of actingFor.
func (b *Bus) Release(actingFor uint64, name string, log *notify.Log) error {
	c, err := b.resolve(actingFor)
	if err != nil {
		return err
	}
	return b.reg.Release(name, c, log)
}

// Lookup resolves name to its current owner with no side effects.
func (b *Bus) Lookup(name string) (ownerID uint64, flags registry.Flags, ok bool) {
	return b.reg.Lookup(name)
}

// ListOptions selects which record categories List returns, mirroring
// spec.md §4.4.7's four independent filter bits: unique-id records and
// name records are each optional, and each is independently subject to
// the activator filter; queued waiter records are further gated on
// IncludeQueued.
type ListOptions struct {
	IncludeUniqueIDs  bool
	IncludeNames      bool
	IncludeQueued     bool
	IncludeActivators bool
}

// List builds the exact binary listing of spec.md §6, filtered per opts —
// combining the bus's own connection table, read under Bus.lock, with
// registry.SnapshotNames, which takes R.lock after Bus.lock has been
// released. The two locks are never held together here, so the unique-id
// and name records are two separate snapshots.
func (b *Bus) List(opts ListOptions) []byte {
	var records []wire.ListRecord

	if opts.IncludeUniqueIDs {
		b.mu.Lock()
		for id, c := range b.conns {
			if opts.IncludeActivators || !c.IsActivator {
				records = append(records, wire.ListRecord{ID: id})
			}
		}
		b.mu.Unlock()
	}

	if opts.IncludeNames {
		names := b.reg.SnapshotNames(opts.IncludeQueued, opts.IncludeActivators)
		for _, n := range names {
			records = append(records, wire.ListRecord{
				ID:        n.OwnerID,
				Flags:     uint64(n.Flags),
				ConnFlags: connFlagsFor(n),
				Name:      n.Name,
				HasName:   true,
			})
		}
	}

	return wire.BuildList(records)
}

func connFlagsFor(n registry.NameRecord) uint64 {
	var f uint64
	if n.IsActivator {
		f |= 1
	}
	if n.Queued {
		f |= 2
	}
	return f
}

// Flush delivers every event in log to the broadcaster, which fans them out
// to subscribed connections' transport writers. Callers must call Flush
// only after the registry call that produced log has returned, never while
// any lock from this package or package registry is still held.
func (b *Bus) Flush(log *notify.Log) {
	b.bcast.Flush(log)
	log.Reset()
}
