package message

import (
	"testing"

	"github.com/google/go-cmp/cmp"

	"github.com/timmyreynolds/HELICS/internal/ids"
)

func msg(t int64, srcFed ids.GlobalFederateId, payload string) *Message {
	return &Message{
		Time:           t,
		OriginalSource: ids.GlobalHandle{Federate: srcFed, Handle: 1},
		Payload:        []byte(payload),
	}
}

func TestAddKeepsStableOrderByTimeThenSource(t *testing.T) {
	q := NewEndpointQueue()
	q.Add(msg(5, 3, "c"))
	q.Add(msg(5, 1, "a"))
	q.Add(msg(5, 2, "b"))
	q.Add(msg(1, 9, "first"))

	if q.Size() != 4 {
		t.Fatalf("expected 4 messages, got %d", q.Size())
	}

	q.UpdateTimeInclusive(5)
	order := []string{}
	for q.AvailableCount() > 0 {
		m := q.Get(5)
		order = append(order, string(m.Payload))
		q.UpdateTimeInclusive(5)
	}
	want := []string{"first", "a", "b", "c"}
	if diff := cmp.Diff(want, order); diff != "" {
		t.Fatalf("delivery order mismatch (-want +got):\n%s", diff)
	}
}

func TestUpdateTimeUpToExcludesExactMatch(t *testing.T) {
	q := NewEndpointQueue()
	q.Add(msg(2, 1, "early"))
	q.Add(msg(3, 1, "exact"))
	q.Add(msg(4, 1, "late"))

	q.UpdateTimeUpTo(3)
	if got := q.AvailableCount(); got != 1 {
		t.Fatalf("UpdateTimeUpTo(3) available = %d, want 1 (only time<3)", got)
	}
}

func TestUpdateTimeInclusiveIncludesExactMatch(t *testing.T) {
	q := NewEndpointQueue()
	q.Add(msg(2, 1, "early"))
	q.Add(msg(3, 1, "exact"))
	q.Add(msg(4, 1, "late"))

	q.UpdateTimeInclusive(3)
	if got := q.AvailableCount(); got != 2 {
		t.Fatalf("UpdateTimeInclusive(3) available = %d, want 2 (time<=3)", got)
	}
}

func TestGetReturnsNilWhenFrontNotYetAvailable(t *testing.T) {
	q := NewEndpointQueue()
	q.Add(msg(10, 1, "future"))
	if m := q.Get(5); m != nil {
		t.Fatalf("expected nil, got message at time %d", m.Time)
	}
	if q.Size() != 1 {
		t.Fatalf("Get should not remove an unavailable message")
	}
}

func TestGetDecrementsAvailableAndRemoves(t *testing.T) {
	q := NewEndpointQueue()
	q.Add(msg(1, 1, "a"))
	q.Add(msg(2, 1, "b"))
	q.UpdateTimeInclusive(2)

	if got := q.AvailableCount(); got != 2 {
		t.Fatalf("expected 2 available, got %d", got)
	}
	m := q.Get(2)
	if m == nil || string(m.Payload) != "a" {
		t.Fatalf("expected front message 'a', got %v", m)
	}
	if got := q.AvailableCount(); got != 1 {
		t.Fatalf("expected 1 available after Get, got %d", got)
	}
	if q.Size() != 1 {
		t.Fatalf("expected 1 message remaining, got %d", q.Size())
	}
}

func TestClearEmptiesQueue(t *testing.T) {
	q := NewEndpointQueue()
	q.Add(msg(1, 1, "a"))
	q.UpdateTimeInclusive(1)
	q.Clear()
	if q.Size() != 0 || q.AvailableCount() != 0 {
		t.Fatalf("expected empty queue after Clear")
	}
}
