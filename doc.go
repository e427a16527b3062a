// Package busreg implements the name registry at the heart of an in-process
// IPC bus: it maps well-known textual names (e.g. "com.example.Service") to
// the single connection that currently owns each name, and maintains a fair
// FIFO takeover queue of connections that want to own the name next.
//
// # Quick Start
//
// Run the daemon and talk to it with the CLI:
//
//	go run ./cmd/busd &
//	go run ./cmd/busctl acquire com.example.Service
//	go run ./cmd/busctl list
//
// # Core Concepts
//
//   - Connection: an opaque handle identified by a 64-bit id (package bus).
//   - Entry: the registry record for one currently-owned name (package registry).
//   - Waiter: a queued request to own a name once the current owner releases.
//   - Activator: a fallback connection that receives a name back when every
//     other owner has released it.
//   - Takeover: the atomic transfer of ownership from an incumbent to a
//     replacing acquirer, optionally demoting the incumbent into the queue.
//
// # Working with the Registry
//
//	reg := registry.New()
//	conn := registry.NewConn(1, false)
//	log := notify.New()
//	res, err := reg.Acquire(conn, "com.example.Service", registry.FlagAllowReplacement, log)
//	...
//	names := reg.SnapshotNames(false, false)
//
// A Bus composes a Registry with a live connection table, a broadcaster, and
// policy — the unit cmd/busd actually serves requests against:
//
//	b := bus.New(cfg, policy.AllowAll{})
//	buf := b.List(bus.ListOptions{IncludeUniqueIDs: true, IncludeNames: true})
//
// # Concurrency
//
// All registry operations are safe for concurrent use. A single mutex
// guards the index and all entry/waiter linkage; notification delivery
// always happens after that lock is released (package notify).
//
// # Error Handling
//
// Failures are reported as package buserr's typed errors:
//
//	_, err := reg.Acquire(conn, name, 0, log)
//	if errors.Is(err, buserr.ErrNameExists) {
//		...
//	}
package busreg

// Version is the semantic version of the busreg module.
const Version = "0.1.0"
