// Package route implements the routing table every core and broker keeps:
// GlobalFederateId to RouteId, with a default parent route for anything not
// yet known locally. Route itself is an abstract "send one framed control
// message" contract; InProcessRoute is the only concrete transport this
// repository owns, grounded on the teacher's Stream/Transport framing but
// carrying wire.Frame values instead of JSON envelopes. Concrete network
// transports are out of scope per spec §1 Non-goals — this exists to make
// the kernel testable end-to-end.
package route

import (
	"fmt"
	"sync"

	"github.com/timmyreynolds/HELICS/internal/ids"
	"github.com/timmyreynolds/HELICS/internal/wire"
)

// Route is the "send one framed control message" contract any transport
// implements. Frames must not be split or reordered on a route (spec §6).
type Route interface {
	Send(f *wire.Frame) error
	Close() error
}

// InProcessRoute delivers frames directly into a peer's inbound channel,
// preserving arrival order. It is used to wire cores and brokers together
// within a single process for tests and for the reference in-process
// deployment mode.
type InProcessRoute struct {
	inbound chan<- *wire.Frame
}

// NewInProcessRoute wraps a peer's inbound channel as a Route.
func NewInProcessRoute(inbound chan<- *wire.Frame) *InProcessRoute {
	return &InProcessRoute{inbound: inbound}
}

func (r *InProcessRoute) Send(f *wire.Frame) error {
	select {
	case r.inbound <- f:
		return nil
	default:
		// Fall back to a blocking send so a full channel applies
		// backpressure instead of silently dropping a frame.
		r.inbound <- f
		return nil
	}
}

func (r *InProcessRoute) Close() error { return nil }

// Table maps GlobalFederateId to the RouteId used to reach it, plus the
// implicit parent route for anything unresolved. It is populated as
// registrations propagate up and down the broker tree (spec §4.2).
type Table struct {
	mu      sync.RWMutex
	gen     int32
	byFed   map[ids.GlobalFederateId]ids.RouteId
	byRoute map[ids.RouteId]Route
	parent  Route
}

// NewTable returns an empty routing table. parent may be nil for the root
// broker, which has no further route to forward unknown destinations to.
func NewTable(parent Route) *Table {
	return &Table{
		byFed:   make(map[ids.GlobalFederateId]ids.RouteId),
		byRoute: make(map[ids.RouteId]Route),
		parent:  parent,
	}
}

// AddRoute registers a new neighbor route and returns its assigned RouteId.
func (t *Table) AddRoute(r Route) ids.RouteId {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.gen++
	id := ids.RouteId(t.gen)
	t.byRoute[id] = r
	return id
}

// RemoveRoute drops a route and every federate mapping that pointed to it.
func (t *Table) RemoveRoute(id ids.RouteId) {
	t.mu.Lock()
	defer t.mu.Unlock()
	delete(t.byRoute, id)
	for fed, rid := range t.byFed {
		if rid == id {
			delete(t.byFed, fed)
		}
	}
}

// Bind associates a federate with a route, overwriting any prior mapping.
func (t *Table) Bind(fed ids.GlobalFederateId, route ids.RouteId) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.byFed[fed] = route
}

// Unbind removes a federate's route mapping, e.g. on disconnect.
func (t *Table) Unbind(fed ids.GlobalFederateId) {
	t.mu.Lock()
	defer t.mu.Unlock()
	delete(t.byFed, fed)
}

// Transmit sends a frame to its Dest federate: via the bound route if known,
// else via the parent route, else it fails — there is nowhere left to try.
func (t *Table) Transmit(f *wire.Frame) error {
	t.mu.RLock()
	target := f.Dest.Federate
	routeID, known := t.byFed[target]
	var r Route
	if known {
		r = t.byRoute[routeID]
	}
	parent := t.parent
	t.mu.RUnlock()

	if r != nil {
		return r.Send(f)
	}
	if parent != nil {
		return parent.Send(f)
	}
	return fmt.Errorf("route: no route to federate %v and no parent route", target)
}

// RouteFor returns the RouteId bound to a federate, if any.
func (t *Table) RouteFor(fed ids.GlobalFederateId) (ids.RouteId, bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	id, ok := t.byFed[fed]
	return id, ok
}
