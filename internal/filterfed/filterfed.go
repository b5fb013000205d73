// Package filterfed hosts filter and translator operators as synthetic
// federates of a Core, per spec §4.5: a filter sits on an endpoint's
// message path without being a "real" simulator, but it still needs a
// federate identity so its coupling delay can enter the time-coordination
// graph (internal/timecoord only understands edges between federates). This
// package is the convenience layer module 11 names; the actual delay/
// reroute/drop/clone mechanics live in internal/filterops and are applied
// by internal/core.Send — filterfed's job is wiring the synthetic
// federate's dependency edges and guarding against cyclic filter graphs,
// which internal/core deliberately does not do on its own (spec §4.5 open
// question, resolved here: reject the bind rather than risk a deadlocked
// grant cycle).
package filterfed

import (
	"math/rand"
	"sync"

	"github.com/timmyreynolds/HELICS/internal/core"
	"github.com/timmyreynolds/HELICS/internal/filterops"
	"github.com/timmyreynolds/HELICS/internal/herrors"
	"github.com/timmyreynolds/HELICS/internal/iface"
	"github.com/timmyreynolds/HELICS/internal/ids"
	"github.com/timmyreynolds/HELICS/internal/message"
)

// Network tracks the dependency edges filterfed has introduced on behalf
// of a single Core, so BindSource/BindDestination can refuse an edge that
// would close a cycle back through the filter being bound — a cyclic
// filter graph (spec §4.5's open question) would otherwise deadlock the
// conservative grant algorithm, since every federate on the cycle would
// wait on another's Tnext forever.
type Network struct {
	core *core.Core

	mu    sync.Mutex
	edges map[ids.LocalFederateId]map[ids.LocalFederateId]bool
}

// NewNetwork returns a Network bound to c. One Network per Core is enough;
// it holds no state Core itself doesn't already have a copy of except the
// edge-cycle bookkeeping.
func NewNetwork(c *core.Core) *Network {
	return &Network{core: c, edges: make(map[ids.LocalFederateId]map[ids.LocalFederateId]bool)}
}

// addEdge records dependent -> dependency and pushes it into the core's
// time coordinator, refusing it if dependency can already (transitively)
// reach dependent — which would make the new edge close a cycle.
func (n *Network) addEdge(dependent, dependency ids.LocalFederateId, couplingDelay int64) error {
	n.mu.Lock()
	defer n.mu.Unlock()

	if dependent == dependency {
		return herrors.NewInvalidState("filter federate cannot depend on itself")
	}
	if n.reachable(dependency, dependent) {
		return herrors.NewInvalidState("binding would close a cyclic filter graph through federate %v", dependency)
	}

	if n.edges[dependent] == nil {
		n.edges[dependent] = make(map[ids.LocalFederateId]bool)
	}
	n.edges[dependent][dependency] = true
	return n.core.AddTimeDependency(dependent, dependency, couplingDelay)
}

// reachable reports whether to is reachable from from by following edges
// already recorded (depth-first, visited-guarded).
func (n *Network) reachable(from, to ids.LocalFederateId) bool {
	visited := make(map[ids.LocalFederateId]bool)
	var dfs func(ids.LocalFederateId) bool
	dfs = func(cur ids.LocalFederateId) bool {
		if cur == to {
			return true
		}
		if visited[cur] {
			return false
		}
		visited[cur] = true
		for next := range n.edges[cur] {
			if dfs(next) {
				return true
			}
		}
		return false
	}
	return dfs(from)
}

// Handle is a running filter or translator federate: its hosting identity
// plus the interface object Core returned when it was registered.
type Handle struct {
	net      *Network
	Federate ids.LocalFederateId
	Global   ids.GlobalFederateId
	Filter   *iface.Filter
}

func newHostFederate(net *Network, name string) (ids.LocalFederateId, ids.GlobalFederateId, error) {
	return net.core.RegisterFederate(name)
}

// NewDelayFilter hosts a DelayFilter operator as a synthetic federate named
// name, grounded on the §8 "delay filter" scenario.
func NewDelayFilter(net *Network, name string, delay int64) (*Handle, error) {
	local, global, err := newHostFederate(net, name)
	if err != nil {
		return nil, err
	}
	f, err := net.core.RegisterFilter(local, name, true, &filterops.DelayFilter{Delay: delay})
	if err != nil {
		return nil, err
	}
	return &Handle{net: net, Federate: local, Global: global, Filter: f}, nil
}

// NewRerouteFilter hosts a RerouteFilter operator, grounded on the §8
// "reroute filter" scenario ("condition \"end\"").
func NewRerouteFilter(net *Network, name string, match func(*message.Message) bool, newDest ids.GlobalHandle) (*Handle, error) {
	local, global, err := newHostFederate(net, name)
	if err != nil {
		return nil, err
	}
	op := &filterops.RerouteFilter{Match: match, NewDest: newDest}
	f, err := net.core.RegisterFilter(local, name, true, op)
	if err != nil {
		return nil, err
	}
	return &Handle{net: net, Federate: local, Global: global, Filter: f}, nil
}

// NewRandomDropFilter hosts a RandomDropFilter operator with probability p,
// grounded on the §8 "random-drop filter" scenario. rng may be nil.
func NewRandomDropFilter(net *Network, name string, p float64, rng *rand.Rand) (*Handle, error) {
	local, global, err := newHostFederate(net, name)
	if err != nil {
		return nil, err
	}
	f, err := net.core.RegisterFilter(local, name, true, &filterops.RandomDropFilter{P: p, Rng: rng})
	if err != nil {
		return nil, err
	}
	return &Handle{net: net, Federate: local, Global: global, Filter: f}, nil
}

// NewCloningFilter hosts a cloning filter, grounded on the §8 "cloning
// filter" scenario.
func NewCloningFilter(net *Network, name string) (*Handle, error) {
	local, global, err := newHostFederate(net, name)
	if err != nil {
		return nil, err
	}
	f, err := net.core.RegisterCloningFilter(local, name, true, filterops.CloningFilter{})
	if err != nil {
		return nil, err
	}
	return &Handle{net: net, Federate: local, Global: global, Filter: f}, nil
}

// NewTranslator hosts a translator federate with the given encoding.
func NewTranslator(net *Network, name string, enc iface.Encoding) (ids.LocalFederateId, error) {
	local, _, err := newHostFederate(net, name)
	if err != nil {
		return 0, err
	}
	if _, err := net.core.RegisterTranslator(local, name, true, enc); err != nil {
		return 0, err
	}
	return local, nil
}

// BindSource attaches this filter to an endpoint's outbound path and adds
// the corresponding time-coordination edge: the filter federate now
// depends on the source endpoint's federate, since it cannot report a
// Tnext past what the source might still emit.
func (h *Handle) BindSource(sourceFed ids.LocalFederateId, sourceEndpoint ids.GlobalHandle) error {
	if err := h.net.addEdge(h.Federate, sourceFed, 0); err != nil {
		return err
	}
	return h.net.core.AddFilterSourceEndpoint(h.Filter, sourceEndpoint)
}

// BindDestination declares that destFed's messages pass through this
// filter, adding couplingDelay (the filter's own delay, if any) to the
// dependency edge destFed now carries on the filter federate (spec §4.5:
// "filters contribute their delay to the coupling_delay of the
// dependency edge they sit on").
func (h *Handle) BindDestination(destFed ids.LocalFederateId, couplingDelay int64) error {
	return h.net.addEdge(destFed, h.Federate, couplingDelay)
}

// BindDelivery records a cloning filter's delivery endpoint and wires the
// delivery federate as a dependent of the filter, mirroring BindDestination
// for the cloned copy's path.
func (h *Handle) BindDelivery(deliveryFed ids.LocalFederateId, endpoint ids.GlobalHandle) error {
	if err := h.net.addEdge(deliveryFed, h.Federate, 0); err != nil {
		return err
	}
	return h.net.core.AddFilterDeliveryEndpoint(h.Filter, endpoint)
}
