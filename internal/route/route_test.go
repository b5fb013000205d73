package route

import (
	"testing"

	"github.com/timmyreynolds/HELICS/internal/ids"
	"github.com/timmyreynolds/HELICS/internal/wire"
)

func TestTransmitUsesBoundRoute(t *testing.T) {
	boundCh := make(chan *wire.Frame, 1)
	parentCh := make(chan *wire.Frame, 1)

	parent := NewInProcessRoute(parentCh)
	table := NewTable(parent)

	bound := NewInProcessRoute(boundCh)
	rid := table.AddRoute(bound)
	table.Bind(3, rid)

	f := &wire.Frame{Dest: wire.Endpoint{Federate: 3}}
	if err := table.Transmit(f); err != nil {
		t.Fatalf("transmit: %v", err)
	}

	select {
	case got := <-boundCh:
		if got != f {
			t.Fatalf("unexpected frame on bound route")
		}
	default:
		t.Fatalf("expected frame delivered to bound route")
	}
	select {
	case <-parentCh:
		t.Fatalf("frame should not have gone to parent route")
	default:
	}
}

func TestTransmitFallsBackToParent(t *testing.T) {
	parentCh := make(chan *wire.Frame, 1)
	table := NewTable(NewInProcessRoute(parentCh))

	f := &wire.Frame{Dest: wire.Endpoint{Federate: 99}}
	if err := table.Transmit(f); err != nil {
		t.Fatalf("transmit: %v", err)
	}
	select {
	case got := <-parentCh:
		if got != f {
			t.Fatalf("unexpected frame on parent route")
		}
	default:
		t.Fatalf("expected frame to fall back to parent route")
	}
}

func TestTransmitFailsWithNoRouteAndNoParent(t *testing.T) {
	table := NewTable(nil)
	err := table.Transmit(&wire.Frame{Dest: wire.Endpoint{Federate: 1}})
	if err == nil {
		t.Fatalf("expected error when no route and no parent exist")
	}
}

func TestRemoveRouteDropsFederateBinding(t *testing.T) {
	ch := make(chan *wire.Frame, 1)
	table := NewTable(nil)
	rid := table.AddRoute(NewInProcessRoute(ch))
	table.Bind(5, rid)

	table.RemoveRoute(rid)
	if _, ok := table.RouteFor(5); ok {
		t.Fatalf("expected federate binding to be dropped with its route")
	}
}

func TestUnbindRemovesMapping(t *testing.T) {
	ch := make(chan *wire.Frame, 1)
	table := NewTable(nil)
	rid := table.AddRoute(NewInProcessRoute(ch))
	table.Bind(ids.GlobalFederateId(7), rid)
	table.Unbind(7)
	if _, ok := table.RouteFor(7); ok {
		t.Fatalf("expected unbind to remove mapping")
	}
}
