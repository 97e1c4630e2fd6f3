package registry

import "testing"

func TestGuardUnloadableOnlyWhenInactiveAndDrained(t *testing.T) {
	g := NewGuard(1)
	if g.Unloadable() {
		t.Fatal("active guard must not be unloadable")
	}

	g.Enter()
	g.Deactivate()
	if g.Unloadable() {
		t.Fatal("guard with in-flight calls must not be unloadable even if inactive")
	}

	g.Leave()
	if !g.Unloadable() {
		t.Fatal("inactive guard with zero in-flight calls must be unloadable")
	}
}

func TestGuardInflightCounting(t *testing.T) {
	g := NewGuard(7)
	g.Enter()
	g.Enter()
	if g.InflightCalls() != 2 {
		t.Fatalf("inflight = %d, want 2", g.InflightCalls())
	}
	g.Leave()
	if g.InflightCalls() != 1 {
		t.Fatalf("inflight = %d, want 1", g.InflightCalls())
	}
}
