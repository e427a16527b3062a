package registry

import (
	"errors"
	"testing"

	"github.com/busreg/busreg/buserr"
	"github.com/busreg/busreg/notify"
)

func mustOK(t *testing.T) func(AcquireResult, error) AcquireResult {
	t.Helper()
	return func(res AcquireResult, err error) AcquireResult {
		t.Helper()
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if res.Status != AcquireOK {
			t.Fatalf("expected AcquireOK, got %v", res.Status)
		}
		return res
	}
}

// Scenario 1: single acquire/release.
func TestSingleAcquireRelease(t *testing.T) {
	r := New()
	c1 := NewConn(1, false)
	log := notify.New()

	mustOK(t)(r.Acquire(c1, "a.b", 0, log))
	if len(log.Events()) != 1 || log.Events()[0].Kind != notify.KindAdd {
		t.Fatalf("expected one ADD event, got %v", log.Events())
	}
	ev := log.Events()[0]
	if ev.OldOwner != 0 || ev.NewOwner != 1 || ev.Name != "a.b" {
		t.Fatalf("unexpected ADD event: %+v", ev)
	}

	log.Reset()
	if err := r.Release("a.b", c1, log); err != nil {
		t.Fatalf("release: %v", err)
	}
	if len(log.Events()) != 1 || log.Events()[0].Kind != notify.KindRemove {
		t.Fatalf("expected one REMOVE event, got %v", log.Events())
	}
	if r.Len() != 0 {
		t.Fatalf("expected empty registry, has %d entries", r.Len())
	}
}

// Scenario 2: queued takeover (immediate, no queueing).
func TestImmediateTakeover(t *testing.T) {
	r := New()
	c1, c2 := NewConn(1, false), NewConn(2, false)
	log := notify.New()

	mustOK(t)(r.Acquire(c1, "x.y", FlagAllowReplacement, log))
	log.Reset()

	mustOK(t)(r.Acquire(c2, "x.y", FlagReplaceExisting, log))
	if len(log.Events()) != 1 {
		t.Fatalf("expected one CHANGE event, got %v", log.Events())
	}
	ev := log.Events()[0]
	if ev.Kind != notify.KindChange || ev.OldOwner != 1 || ev.NewOwner != 2 {
		t.Fatalf("unexpected takeover event: %+v", ev)
	}

	owner, _, ok := r.Lookup("x.y")
	if !ok || owner != 2 {
		t.Fatalf("expected owner 2, got %d (ok=%v)", owner, ok)
	}
}

// Scenario 3: queue and promote.
func TestQueueAndPromote(t *testing.T) {
	r := New()
	c1, c2 := NewConn(1, false), NewConn(2, false)
	log := notify.New()

	mustOK(t)(r.Acquire(c1, "svc", FlagAllowReplacement|FlagQueueable, log))
	log.Reset()

	res := mustOK(t)(r.Acquire(c2, "svc", FlagQueueable, log))
	if !res.Flags.Has(FlagInQueue) {
		t.Fatalf("expected FlagInQueue set, got %v", res.Flags)
	}
	if len(log.Events()) != 0 {
		t.Fatalf("expected no event for queueing, got %v", log.Events())
	}

	if err := r.Release("svc", c1, log); err != nil {
		t.Fatalf("release: %v", err)
	}
	if len(log.Events()) != 1 || log.Events()[0].Kind != notify.KindChange {
		t.Fatalf("expected one CHANGE event, got %v", log.Events())
	}
	ev := log.Events()[0]
	if ev.OldOwner != 1 || ev.NewOwner != 2 {
		t.Fatalf("unexpected promotion event: %+v", ev)
	}

	owner, _, ok := r.Lookup("svc")
	if !ok || owner != 2 {
		t.Fatalf("expected owner 2, got %d", owner)
	}
}

func TestMaxQueueDepthRejectsOverflow(t *testing.T) {
	r := New()
	r.SetMaxQueueDepth(2)
	owner, w1, w2, w3 := NewConn(1, false), NewConn(2, false), NewConn(3, false), NewConn(4, false)
	log := notify.New()

	mustOK(t)(r.Acquire(owner, "svc", FlagAllowReplacement|FlagQueueable, log))
	mustOK(t)(r.Acquire(w1, "svc", FlagQueueable, log))
	mustOK(t)(r.Acquire(w2, "svc", FlagQueueable, log))

	_, err := r.Acquire(w3, "svc", FlagQueueable, log)
	if code, ok := buserr.CodeOf(err); !ok || code != buserr.CodeQueueFull {
		t.Fatalf("expected CodeQueueFull, got %v (ok=%v)", err, ok)
	}

	// Freeing a slot (by releasing a waiter) allows a subsequent enqueue.
	if err := r.Release("svc", w1, log); err != nil {
		t.Fatalf("release: %v", err)
	}
	mustOK(t)(r.Acquire(w3, "svc", FlagQueueable, log))
}

func TestMaxQueueDepthUnlimitedByDefault(t *testing.T) {
	r := New()
	owner := NewConn(1, false)
	log := notify.New()
	mustOK(t)(r.Acquire(owner, "svc", FlagAllowReplacement|FlagQueueable, log))

	for i := 2; i < 10; i++ {
		mustOK(t)(r.Acquire(NewConn(uint64(i), false), "svc", FlagQueueable, log))
	}
}

// Scenario 4: displaced owner rejoins queue.
func TestDisplacedOwnerRejoinsQueue(t *testing.T) {
	r := New()
	c1, c2 := NewConn(1, false), NewConn(2, false)
	log := notify.New()

	mustOK(t)(r.Acquire(c1, "svc", FlagAllowReplacement|FlagQueueable, log))
	log.Reset()

	mustOK(t)(r.Acquire(c2, "svc", FlagReplaceExisting|FlagQueueable, log))
	owner, _, _ := r.Lookup("svc")
	if owner != 2 {
		t.Fatalf("expected owner 2 after takeover, got %d", owner)
	}
	if c1.QueuedCount() != 1 {
		t.Fatalf("expected c1 to rejoin the queue, queued count=%d", c1.QueuedCount())
	}

	log.Reset()
	if err := r.Release("svc", c2, log); err != nil {
		t.Fatalf("release: %v", err)
	}
	owner, _, _ = r.Lookup("svc")
	if owner != 1 {
		t.Fatalf("expected owner 1 restored, got %d", owner)
	}
}

// Scenario 5: activator hand-back.
func TestActivatorHandBack(t *testing.T) {
	r := New()
	cAct := NewConn(1, true)
	c1 := NewConn(2, false)
	log := notify.New()

	res := mustOK(t)(r.Acquire(cAct, "bus.name", 0, log))
	if res.Flags != FlagAllowReplacement {
		t.Fatalf("expected activator flags coerced to AllowReplacement, got %v", res.Flags)
	}
	log.Reset()

	mustOK(t)(r.Acquire(c1, "bus.name", FlagReplaceExisting, log))
	owner, _, _ := r.Lookup("bus.name")
	if owner != 2 {
		t.Fatalf("expected owner 2 after takeover, got %d", owner)
	}

	log.Reset()
	if err := r.Release("bus.name", c1, log); err != nil {
		t.Fatalf("release: %v", err)
	}
	owner, _, ok := r.Lookup("bus.name")
	if !ok {
		t.Fatal("expected entry to survive via activator hand-back")
	}
	if owner != 1 {
		t.Fatalf("expected activator (1) to own the name again, got %d", owner)
	}
	if log.Events()[0].Kind != notify.KindChange {
		t.Fatalf("expected CHANGE on hand-back, got %v", log.Events())
	}
}

func TestActivatorMigrationFailureAbortsTakeoverCleanly(t *testing.T) {
	r := New()
	r.SetMigrator(migratorFunc(func(from, to *Conn) error {
		return errors.New("boom")
	}))
	cAct := NewConn(1, true)
	c1 := NewConn(2, false)
	log := notify.New()

	mustOK(t)(r.Acquire(cAct, "bus.name", 0, log))
	log.Reset()

	_, err := r.Acquire(c1, "bus.name", FlagReplaceExisting, log)
	if err == nil {
		t.Fatal("expected migration failure to propagate")
	}
	code, _ := buserr.CodeOf(err)
	if code != buserr.CodeNoMem {
		t.Fatalf("expected CodeNoMem, got %v", code)
	}
	if len(log.Events()) != 0 {
		t.Fatalf("expected no events on aborted takeover, got %v", log.Events())
	}

	owner, _, ok := r.Lookup("bus.name")
	if !ok || owner != 1 {
		t.Fatalf("expected activator to still own the name, got owner=%d ok=%v", owner, ok)
	}
	if c1.QueuedCount() != 0 {
		t.Fatalf("expected no leftover waiter on aborted takeover, got %d", c1.QueuedCount())
	}
}

type migratorFunc func(from, to *Conn) error

func (f migratorFunc) Migrate(from, to *Conn) error { return f(from, to) }

// Scenario 6: eviction with mixed state.
func TestEvictOwnerMixedState(t *testing.T) {
	r := New()
	c1 := NewConn(1, false)
	c2 := NewConn(2, false)
	log := notify.New()

	mustOK(t)(r.Acquire(c1, "a.b", 0, log))
	mustOK(t)(r.Acquire(c1, "c.d", 0, log))
	mustOK(t)(r.Acquire(c2, "e.f", FlagQueueable|FlagAllowReplacement, log))
	res := mustOK(t)(r.Acquire(c1, "e.f", FlagQueueable, log))
	if !res.Flags.Has(FlagInQueue) {
		t.Fatalf("expected c1 queued on e.f")
	}

	log.Reset()
	r.EvictOwner(c1, log)

	kinds := map[string]notify.Kind{}
	for _, ev := range log.Events() {
		kinds[ev.Name] = ev.Kind
	}
	if kinds["a.b"] != notify.KindRemove || kinds["c.d"] != notify.KindRemove {
		t.Fatalf("expected a.b and c.d removed, got %v", log.Events())
	}
	if _, ok := kinds["e.f"]; ok {
		t.Fatalf("expected no ownership-change event for e.f, got %v", kinds["e.f"])
	}

	if _, _, ok := r.Lookup("a.b"); ok {
		t.Fatal("a.b should be unindexed")
	}
	if _, _, ok := r.Lookup("c.d"); ok {
		t.Fatal("c.d should be unindexed")
	}
	owner, _, ok := r.Lookup("e.f")
	if !ok || owner != 2 {
		t.Fatalf("expected e.f still owned by c2, got owner=%d ok=%v", owner, ok)
	}
	if c1.OwnedCount() != 0 || c1.QueuedCount() != 0 {
		t.Fatalf("expected c1 fully evicted, owned=%d queued=%d", c1.OwnedCount(), c1.QueuedCount())
	}
}

// P1: uniqueness.
func TestUniquenessInvariant(t *testing.T) {
	r := New()
	c1, c2 := NewConn(1, false), NewConn(2, false)
	log := notify.New()

	mustOK(t)(r.Acquire(c1, "a.b", 0, log))
	_, err := r.Acquire(c2, "a.b", 0, log)
	if err == nil {
		t.Fatal("expected NameExists on conflicting acquire with no takeover flags")
	}
	code, _ := buserr.CodeOf(err)
	if code != buserr.CodeNameExists {
		t.Fatalf("expected CodeNameExists, got %v", code)
	}
	if r.Len() != 1 {
		t.Fatalf("expected exactly one entry, got %d", r.Len())
	}
}

// P2: owner accounting.
func TestOwnerAccounting(t *testing.T) {
	r := New()
	c1 := NewConn(1, false)
	log := notify.New()

	mustOK(t)(r.Acquire(c1, "a.b", 0, log))
	mustOK(t)(r.Acquire(c1, "c.d", 0, log))

	if c1.OwnedCount() != 2 {
		t.Fatalf("expected owned count 2, got %d", c1.OwnedCount())
	}
}

// P4: round-trip.
func TestAcquireReleaseRoundTrip(t *testing.T) {
	r := New()
	c1 := NewConn(1, false)
	log := notify.New()

	mustOK(t)(r.Acquire(c1, "a.b", FlagAllowReplacement, log))
	if err := r.Release("a.b", c1, log); err != nil {
		t.Fatalf("release: %v", err)
	}
	if r.Len() != 0 {
		t.Fatalf("expected empty registry after round-trip, got %d entries", r.Len())
	}

	kinds := []notify.Kind{log.Events()[0].Kind, log.Events()[1].Kind}
	if kinds[0] != notify.KindAdd || kinds[1] != notify.KindRemove {
		t.Fatalf("expected ADD then REMOVE, got %v", kinds)
	}
}

// P5: idempotence.
func TestIdempotentReacquire(t *testing.T) {
	r := New()
	c1 := NewConn(1, false)
	log := notify.New()

	mustOK(t)(r.Acquire(c1, "a.b", FlagAllowReplacement, log))
	res, err := r.Acquire(c1, "a.b", FlagQueueable, log)
	if res.Status != AcquireAlready {
		t.Fatalf("expected AcquireAlready, got %v", res.Status)
	}
	code, _ := buserr.CodeOf(err)
	if code != buserr.CodeAlready {
		t.Fatalf("expected CodeAlready, got %v", code)
	}
	if res.Flags != FlagQueueable {
		t.Fatalf("expected final flags to be the second request's flags, got %v", res.Flags)
	}
}

func TestReleaseByNonOwnerNonWaiterIsPermissionDenied(t *testing.T) {
	r := New()
	c1, c2 := NewConn(1, false), NewConn(2, false)
	log := notify.New()

	mustOK(t)(r.Acquire(c1, "a.b", 0, log))
	err := r.Release("a.b", c2, log)
	if err == nil {
		t.Fatal("expected PermissionDenied")
	}
	code, _ := buserr.CodeOf(err)
	if code != buserr.CodePermissionDenied {
		t.Fatalf("expected CodePermissionDenied, got %v", code)
	}
}

func TestReleaseUnknownNameIsNotFound(t *testing.T) {
	r := New()
	c1 := NewConn(1, false)
	log := notify.New()

	err := r.Release("never.acquired", c1, log)
	code, _ := buserr.CodeOf(err)
	if code != buserr.CodeNameNotFound {
		t.Fatalf("expected CodeNameNotFound, got %v (%v)", code, err)
	}
}

func TestQueueCancelViaRelease(t *testing.T) {
	r := New()
	c1, c2 := NewConn(1, false), NewConn(2, false)
	log := notify.New()

	mustOK(t)(r.Acquire(c1, "svc", FlagAllowReplacement|FlagQueueable, log))
	mustOK(t)(r.Acquire(c2, "svc", FlagQueueable, log))

	if err := r.Release("svc", c2, log); err != nil {
		t.Fatalf("cancel via release: %v", err)
	}
	if c2.QueuedCount() != 0 {
		t.Fatalf("expected c2's wait to be cancelled, queued=%d", c2.QueuedCount())
	}
	owner, _, _ := r.Lookup("svc")
	if owner != 1 {
		t.Fatalf("expected owner unchanged at 1, got %d", owner)
	}
}
