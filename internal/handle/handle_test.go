package handle

import (
	"testing"

	"github.com/timmyreynolds/HELICS/internal/iface"
)

func TestRegisterAssignsMonotonicHandles(t *testing.T) {
	m := NewManager()
	a, err := m.Register(1, iface.KindPublication, "pub1", false)
	if err != nil {
		t.Fatalf("register a: %v", err)
	}
	b, err := m.Register(1, iface.KindEndpoint, "ep1", false)
	if err != nil {
		t.Fatalf("register b: %v", err)
	}
	if b.Handle <= a.Handle {
		t.Fatalf("expected monotonically increasing handles, got %v then %v", a.Handle, b.Handle)
	}
}

func TestRegisterDuplicateLocalKeyFails(t *testing.T) {
	m := NewManager()
	if _, err := m.Register(1, iface.KindEndpoint, "port1", false); err != nil {
		t.Fatalf("first registration: %v", err)
	}
	_, err := m.Register(1, iface.KindEndpoint, "port1", false)
	if err == nil {
		t.Fatalf("expected RegistrationFailure on duplicate key")
	}
	if _, ok := m.LookupByLocalName(1, "port1"); !ok {
		t.Fatalf("first registration should remain intact")
	}
}

func TestMarkUsedAndUnused(t *testing.T) {
	m := NewManager()
	a, _ := m.Register(1, iface.KindPublication, "p", false)
	b, _ := m.Register(1, iface.KindInput, "i", false)

	m.MarkUsed(a.Handle)
	unused := m.Unused()
	if len(unused) != 1 || unused[0] != b.Handle {
		t.Fatalf("expected only %v unused, got %v", b.Handle, unused)
	}
}

func TestRemoveTombstonesHandle(t *testing.T) {
	m := NewManager()
	info, _ := m.Register(1, iface.KindEndpoint, "gone", false)
	m.Remove(info.Handle)

	if _, ok := m.Lookup(info.Handle); ok {
		t.Fatalf("expected handle to be removed")
	}
	if _, ok := m.LookupByLocalName(1, "gone"); ok {
		t.Fatalf("expected name index entry to be removed")
	}
	if m.Size() != 0 {
		t.Fatalf("expected empty table, got size %d", m.Size())
	}
}
