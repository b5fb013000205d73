// Package ids defines the tagged 32-bit identifier types used throughout the
// federation. They are deliberately distinct Go types so that a
// LocalFederateId can never be passed where a GlobalFederateId is expected
// and vice versa — the compiler enforces what the original relied on
// strong-typedef discipline for.
package ids

import "fmt"

// GlobalFederateId is a federation-unique federate identifier, assigned by
// the root broker when a federate's owning core registers it.
type GlobalFederateId int32

// InvalidGlobalFederateId marks an unassigned or not-yet-registered federate.
const InvalidGlobalFederateId GlobalFederateId = 0

// IsValid reports whether the id has been assigned.
func (g GlobalFederateId) IsValid() bool { return g != InvalidGlobalFederateId }

func (g GlobalFederateId) String() string { return fmt.Sprintf("fed(%d)", int32(g)) }

// LocalFederateId is the 1-based index of a federate inside its owning core.
type LocalFederateId int32

// InvalidLocalFederateId marks a federate not known to the local core.
const InvalidLocalFederateId LocalFederateId = -1

func (l LocalFederateId) IsValid() bool { return l >= 1 }

func (l LocalFederateId) String() string { return fmt.Sprintf("localfed(%d)", int32(l)) }

// InterfaceHandle is a per-core unique handle for a publication, input,
// endpoint, filter or translator. Handles are monotonically assigned within
// a core starting at 1; zero is reserved for "no handle".
type InterfaceHandle int32

const InvalidInterfaceHandle InterfaceHandle = 0

func (h InterfaceHandle) IsValid() bool { return h != InvalidInterfaceHandle }

func (h InterfaceHandle) String() string { return fmt.Sprintf("handle(%d)", int32(h)) }

// GlobalBrokerId is a federation-unique broker identifier, assigned by the
// root broker.
type GlobalBrokerId int32

const InvalidGlobalBrokerId GlobalBrokerId = 0

func (b GlobalBrokerId) IsValid() bool { return b != InvalidGlobalBrokerId }

func (b GlobalBrokerId) String() string { return fmt.Sprintf("broker(%d)", int32(b)) }

// RouteId is a per-core/broker key identifying how to reach a neighbor node.
// RouteId(0) is reserved for the implicit parent route.
type RouteId int32

const ParentRouteId RouteId = 0

func (r RouteId) String() string { return fmt.Sprintf("route(%d)", int32(r)) }

// GlobalHandle composes a federate id with one of its interface handles to
// form a federation-wide address for a publication, input, endpoint, filter
// or translator.
type GlobalHandle struct {
	Federate GlobalFederateId
	Handle   InterfaceHandle
}

func (g GlobalHandle) IsValid() bool { return g.Federate.IsValid() && g.Handle.IsValid() }

func (g GlobalHandle) String() string {
	return fmt.Sprintf("%s/%s", g.Federate, g.Handle)
}

// idGenerator hands out monotonically increasing ids of a tagged type,
// starting from a configurable base. Cores use it for InterfaceHandle
// assignment (1-based, monotonic within the core) and, through
// FederateIDGenerator, for GlobalFederateId assignment.
type idGenerator struct {
	next int32
}

func newIDGenerator(base int32) *idGenerator {
	return &idGenerator{next: base}
}

func (g *idGenerator) take() int32 {
	v := g.next
	g.next++
	return v
}

// HandleGenerator hands out InterfaceHandle values, monotonic within a core,
// starting at 1.
type HandleGenerator struct{ gen *idGenerator }

func NewHandleGenerator() *HandleGenerator {
	return &HandleGenerator{gen: newIDGenerator(1)}
}

func (h *HandleGenerator) Next() InterfaceHandle {
	return InterfaceHandle(h.gen.take())
}

// FederateIDGenerator hands out GlobalFederateId values, monotonic starting
// at 1. A core uses one to assign ids to the federates it registers.
type FederateIDGenerator struct{ gen *idGenerator }

func NewFederateIDGenerator() *FederateIDGenerator {
	return &FederateIDGenerator{gen: newIDGenerator(1)}
}

func (f *FederateIDGenerator) Next() GlobalFederateId {
	return GlobalFederateId(f.gen.take())
}

// BrokerIDGenerator hands out GlobalBrokerId values, monotonic starting at 1.
type BrokerIDGenerator struct{ gen *idGenerator }

func NewBrokerIDGenerator() *BrokerIDGenerator {
	return &BrokerIDGenerator{gen: newIDGenerator(1)}
}

func (b *BrokerIDGenerator) Next() GlobalBrokerId {
	return GlobalBrokerId(b.gen.take())
}

// LocalFederateIDGenerator hands out LocalFederateId values, 1-based,
// monotonic within a core.
type LocalFederateIDGenerator struct{ gen *idGenerator }

func NewLocalFederateIDGenerator() *LocalFederateIDGenerator {
	return &LocalFederateIDGenerator{gen: newIDGenerator(1)}
}

func (l *LocalFederateIDGenerator) Next() LocalFederateId {
	return LocalFederateId(l.gen.take())
}
