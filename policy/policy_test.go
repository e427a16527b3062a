package policy

import "testing"

func TestAllowAll(t *testing.T) {
	p := AllowAll{}
	if !p.Allow(1, "anything.at.all") {
		t.Fatal("expected AllowAll to allow every request")
	}
}

func TestDenylist(t *testing.T) {
	p := NewDenylist("blocked.name")

	if p.Allow(1, "blocked.name") {
		t.Fatal("expected denied name to be refused")
	}
	if !p.Allow(1, "other.name") {
		t.Fatal("expected non-listed name to be allowed")
	}

	p.Deny("other.name")
	if p.Allow(1, "other.name") {
		t.Fatal("expected newly denied name to be refused")
	}

	p.AllowName("blocked.name")
	if !p.Allow(1, "blocked.name") {
		t.Fatal("expected removed name to be allowed again")
	}
}
