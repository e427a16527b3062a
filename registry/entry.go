package registry

import "hash/fnv"

// Flags is the acquisition flag bitset used for both requests and the
// effective flags stored on an entry or waiter.
type Flags uint32

const (
	// FlagReplaceExisting requests a takeover of an existing owner.
	FlagReplaceExisting Flags = 1 << iota
	// FlagAllowReplacement marks an owner as willing to be taken over.
	FlagAllowReplacement
	// FlagQueueable requests enqueueing as a waiter when the name is taken.
	FlagQueueable
	// FlagInQueue is output-only: set on the flags returned to a caller
	// whose acquire request was queued rather than granted outright.
	FlagInQueue
)

func (f Flags) Has(bit Flags) bool { return f&bit != 0 }

// nameEntry is the registry's record for one currently-owned name. It is
// born when a name is first acquired and dies when released with no
// waiter and no activator (spec.md §3 Lifecycle).
type nameEntry struct {
	name      string
	hash      uint64
	owner     *Conn
	flags     Flags
	activator *Conn
	waiters   []*waiter // FIFO; waiters[0] is next in line
}

// waiter is a queued request to become owner once the current owner
// releases or is taken over.
type waiter struct {
	conn  *Conn
	flags Flags
	entry *nameEntry // back-reference, used by EvictOwner to find the waiter's entry
}

func nameHash(name string) uint64 {
	h := fnv.New64a()
	_, _ = h.Write([]byte(name))
	return h.Sum64()
}
