package registry

// NameRecord is one row of a name-table snapshot: either the current owner
// of a name, or — when queued records are requested — one of its waiters.
type NameRecord struct {
	Name        string
	OwnerID     uint64
	IsActivator bool
	Flags       uint32
	Queued      bool
}

// SnapshotNames walks the index under the registry lock and returns an
// independent copy of every name record, optionally including queued
// waiter reservations and activator-owned names. The lock is held only
// for the duration of this copy; spec.md §4.4.7's two-pass
// size-then-serialize algorithm exists because the reference
// implementation has no growable arrays — the equivalent guarantee here
// ("sizes and content agree") comes from encoding a single consistent
// snapshot rather than re-walking the live index a second time.
func (r *Registry) SnapshotNames(includeQueued, includeActivators bool) []NameRecord {
	r.mu.Lock()
	defer r.mu.Unlock()

	var out []NameRecord
	for name, e := range r.index {
		if includeActivators || !e.owner.IsActivator {
			out = append(out, NameRecord{
				Name:        name,
				OwnerID:     e.owner.ID,
				IsActivator: e.owner.IsActivator,
				Flags:       uint32(e.flags),
			})
		}
		if !includeQueued {
			continue
		}
		for _, w := range e.waiters {
			if includeActivators || !w.conn.IsActivator {
				out = append(out, NameRecord{
					Name:        name,
					OwnerID:     w.conn.ID,
					IsActivator: w.conn.IsActivator,
					Flags:       uint32(w.flags),
					Queued:      true,
				})
			}
		}
	}
	return out
}

// Len reports how many names are currently indexed, for diagnostics.
func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.index)
}
