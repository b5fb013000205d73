// Package core implements the CommonCore-equivalent node: the owner of one
// or more local federates' handle tables, message/value routing, filter
// application, and per-federate time coordination. It is the direct
// counterpart of CommonCore.hpp in the original HELICS sources, adapted to
// Go's arena-plus-integer-handle idiom per spec Design Note ("Shared
// pointer graphs among FederateState, Core, Interface").
package core

import (
	"encoding/binary"
	"fmt"
	"sync"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/timmyreynolds/HELICS/internal/brokerbase"
	"github.com/timmyreynolds/HELICS/internal/federate"
	"github.com/timmyreynolds/HELICS/internal/filterops"
	"github.com/timmyreynolds/HELICS/internal/handle"
	"github.com/timmyreynolds/HELICS/internal/herrors"
	"github.com/timmyreynolds/HELICS/internal/ids"
	"github.com/timmyreynolds/HELICS/internal/iface"
	"github.com/timmyreynolds/HELICS/internal/logging"
	"github.com/timmyreynolds/HELICS/internal/message"
	"github.com/timmyreynolds/HELICS/internal/route"
	"github.com/timmyreynolds/HELICS/internal/timecoord"
	"github.com/timmyreynolds/HELICS/internal/wire"
)

// federateEntry is the arena-resident record for one locally-hosted
// federate: its identity, state machine, time coordinator, and the
// out-of-band command channel used by sendCommand/getCommand/waitCommand.
type federateEntry struct {
	name        string
	global      ids.GlobalFederateId
	local       ids.LocalFederateId
	state       *federate.StateMachine
	coord       *timecoord.Coordinator
	delayInit   bool
	readyToInit bool
	pending     *federate.Ticket
	tags        map[string]string
	commands    chan string
}

// Core owns the handle table, routing table and per-federate state for the
// federates it hosts. Exactly one Core backs a process in the reference
// in-process deployment; a production deployment would run one per
// simulator process.
type Core struct {
	base   *brokerbase.Base
	log    *logrus.Entry
	handles *handle.Manager
	routes  *route.Table

	mu         sync.RWMutex
	nextLocal  *ids.LocalFederateIDGenerator
	globalGen  *ids.FederateIDGenerator
	byLocal    map[ids.LocalFederateId]*federateEntry
	byGlobal   map[ids.GlobalFederateId]*federateEntry
	byName     map[string]*federateEntry

	publications map[ids.InterfaceHandle]*iface.Publication
	inputs       map[ids.InterfaceHandle]*iface.Input
	endpoints    map[ids.InterfaceHandle]*iface.Endpoint
	filters      map[ids.InterfaceHandle]*iface.Filter
	translators  map[ids.InterfaceHandle]*iface.Translator
	queues       map[ids.InterfaceHandle]*message.EndpointQueue
	filterOps    map[ids.InterfaceHandle]filterops.FilterOperator
	cloneOps     map[ids.InterfaceHandle]filterops.CloningOperator

	interfaceTags map[ids.InterfaceHandle]map[string]string
	globals       map[string]string

	// byKey and pendingLinks back the named-interface resolution mechanism
	// of spec §4.2: byKey maps every global interface key this core knows
	// about (registered locally or learned from a REGISTER_INTERFACE
	// broadcast) to its resolved handle; pendingLinks holds link requests
	// still waiting on a key neither source has seen yet.
	byKey        map[string]ids.GlobalHandle
	pendingLinks map[string][]pendingLink
}

// pendingLink is a target-linking request queued against a not-yet-resolved
// named interface (spec §4.2, "queued as a pending named-interface query").
type pendingLink struct {
	kind   pendingLinkKind
	local  ids.InterfaceHandle
}

type pendingLinkKind int

const (
	pendingDestination pendingLinkKind = iota
	pendingSource
)

// New constructs an unconnected Core. parentRoute is nil for a root core
// with no broker above it (a standalone single-core federation).
func New(name string, logger *logrus.Logger, parentRoute route.Route) *Core {
	log := logging.ForComponent(logger, "core").WithField("node", name)
	c := &Core{
		base:          brokerbase.New(log, 0),
		log:           log,
		handles:       handle.NewManager(),
		routes:        route.NewTable(parentRoute),
		nextLocal:     ids.NewLocalFederateIDGenerator(),
		globalGen:     ids.NewFederateIDGenerator(),
		byLocal:       make(map[ids.LocalFederateId]*federateEntry),
		byGlobal:      make(map[ids.GlobalFederateId]*federateEntry),
		byName:        make(map[string]*federateEntry),
		publications:  make(map[ids.InterfaceHandle]*iface.Publication),
		inputs:        make(map[ids.InterfaceHandle]*iface.Input),
		endpoints:     make(map[ids.InterfaceHandle]*iface.Endpoint),
		filters:       make(map[ids.InterfaceHandle]*iface.Filter),
		translators:   make(map[ids.InterfaceHandle]*iface.Translator),
		queues:        make(map[ids.InterfaceHandle]*message.EndpointQueue),
		filterOps:     make(map[ids.InterfaceHandle]filterops.FilterOperator),
		cloneOps:      make(map[ids.InterfaceHandle]filterops.CloningOperator),
		interfaceTags: make(map[ids.InterfaceHandle]map[string]string),
		globals:       make(map[string]string),
		byKey:         make(map[string]ids.GlobalHandle),
		pendingLinks:  make(map[string][]pendingLink),
	}
	c.base.Configure(name)
	return c
}

// Connect brings the core's command loop up and negotiates its identity.
// assign mirrors the protocol-hello exchange of spec §4.1; a standalone
// core (no parent broker) may pass a function that just mints a local id.
func (c *Core) Connect(assign func() (ids.GlobalBrokerId, error)) error {
	if err := c.base.Connect(assign); err != nil {
		return err
	}
	c.base.RegisterHandler(wire.ActionRegisterInterface, c.handleRegisterInterface)
	return nil
}

// sync runs fn on the single command-processing thread (spec §4.1/§5): every
// public method that mutates Core state posts fn through Base.RunSync
// instead of running directly on the caller's goroutine, so no two calls —
// however concurrent their callers — ever interleave their state changes.
// priority mirrors brokerbase.isPriority's classification of the operation
// fn stands in for. fn must not itself call sync, or any other method that
// does: the command thread would block waiting on itself.
func (c *Core) sync(priority bool, fn func() error) error {
	var outErr error
	if err := c.base.RunSync(priority, func() { outErr = fn() }); err != nil {
		return err
	}
	return outErr
}

// Disconnect idempotently tears the core down: every hosted federate is
// finalized, any outstanding time-request ticket resolves with
// ConnectionFailure so no caller blocks on Complete() forever, and the
// command loop stops.
func (c *Core) Disconnect() {
	c.mu.Lock()
	tickets := make([]*federate.Ticket, 0, len(c.byLocal))
	for _, fe := range c.byLocal {
		fe.state.Finalize()
		if fe.pending != nil {
			tickets = append(tickets, fe.pending)
			fe.pending = nil
		}
	}
	c.mu.Unlock()
	for _, ticket := range tickets {
		ticket.Resolve(federate.TimeGrant{}, herrors.NewConnectionFailure("core disconnected with a pending time request"))
	}
	c.base.Disconnect()
}

// RegisterFederate admits a new federate under this core, starting in
// CREATED. The returned LocalFederateId is stable for the federate's
// lifetime; the GlobalFederateId is assigned immediately in this
// single-core reference implementation (a multi-core deployment would wait
// for the parent's ACK per the two-phase conversation of spec §4.2).
func (c *Core) RegisterFederate(name string) (ids.LocalFederateId, ids.GlobalFederateId, error) {
	var local ids.LocalFederateId
	var global ids.GlobalFederateId
	err := c.sync(true, func() error {
		c.mu.Lock()
		defer c.mu.Unlock()

		if _, exists := c.byName[name]; exists {
			return herrors.NewRegistrationFailure("duplicate federate name %q", name)
		}

		local = c.nextLocal.Next()
		global = c.globalGen.Next()
		fe := &federateEntry{
			name:     name,
			global:   global,
			local:    local,
			state:    federate.NewStateMachine(),
			coord:    timecoord.NewCoordinator(1, 10),
			tags:     make(map[string]string),
			commands: make(chan string, 16),
		}
		c.byLocal[local] = fe
		c.byGlobal[global] = fe
		c.byName[name] = fe
		c.routes.Bind(global, ids.ParentRouteId)
		return nil
	})
	return local, global, err
}

func (c *Core) federateByLocal(fed ids.LocalFederateId) (*federateEntry, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	fe, ok := c.byLocal[fed]
	if !ok {
		return nil, herrors.NewInvalidIdentifier("unknown local federate id %v", fed)
	}
	return fe, nil
}

// SetDelayInitEntry sets the DELAY_INIT_ENTRY flag (spec §4.6): the core
// refuses INIT_GRANT for this federate until SetCoreReadyToInit releases it.
func (c *Core) SetDelayInitEntry(fed ids.LocalFederateId, delay bool) error {
	return c.sync(true, func() error {
		fe, err := c.federateByLocal(fed)
		if err != nil {
			return err
		}
		c.mu.Lock()
		fe.delayInit = delay
		c.mu.Unlock()
		return nil
	})
}

// SetCoreReadyToInit releases a federate held by DELAY_INIT_ENTRY.
func (c *Core) SetCoreReadyToInit(fed ids.LocalFederateId) error {
	return c.sync(true, func() error {
		fe, err := c.federateByLocal(fed)
		if err != nil {
			return err
		}
		c.mu.Lock()
		fe.readyToInit = true
		c.mu.Unlock()
		return nil
	})
}

func (c *Core) readyForInitGrant(fe *federateEntry) bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return !fe.delayInit || fe.readyToInit
}

// EnterInitializingMode transitions CREATED -> INITIALIZING, honoring
// DELAY_INIT_ENTRY.
func (c *Core) EnterInitializingMode(fed ids.LocalFederateId) error {
	return c.sync(true, func() error {
		fe, err := c.federateByLocal(fed)
		if err != nil {
			return err
		}
		if !c.readyForInitGrant(fe) {
			return herrors.NewInvalidState("federate %s held at init barrier by delay_init_entry", fe.name)
		}
		return fe.state.Transition(federate.Initializing)
	})
}

// EnterExecutingMode transitions INITIALIZING -> EXECUTING.
func (c *Core) EnterExecutingMode(fed ids.LocalFederateId) error {
	return c.sync(true, func() error {
		fe, err := c.federateByLocal(fed)
		if err != nil {
			return err
		}
		return fe.state.Transition(federate.Executing)
	})
}

// Finalize moves a federate to FINALIZE unconditionally, per spec §7's
// always-succeeds rule, and drops it as a time dependency of anything that
// depended on it (disconnect termination path, spec §4.3).
func (c *Core) Finalize(fed ids.LocalFederateId) error {
	return c.sync(true, func() error {
		fe, err := c.federateByLocal(fed)
		if err != nil {
			return err
		}
		fe.state.Finalize()
		c.routes.Unbind(fe.global)

		c.mu.RLock()
		deps := make([]*federateEntry, 0, len(c.byLocal))
		for _, other := range c.byLocal {
			deps = append(deps, other)
		}
		c.mu.RUnlock()
		for _, other := range deps {
			if other == fe {
				continue
			}
			other.coord.RemoveDependency(fe.global)
		}
		return nil
	})
}

// LocalError transitions only the originating federate to ERROR_STATE.
func (c *Core) LocalError(fed ids.LocalFederateId, code int, msg string) error {
	err := c.sync(true, func() error {
		fe, ferr := c.federateByLocal(fed)
		if ferr != nil {
			return ferr
		}
		fe.state.EnterErrorState()
		return nil
	})
	if err != nil {
		return err
	}
	return herrors.NewLocalError(code, msg)
}

// GlobalError transitions every federate this core hosts to ERROR_STATE.
func (c *Core) GlobalError(code int, msg string) error {
	_ = c.sync(true, func() error {
		c.mu.RLock()
		entries := make([]*federateEntry, 0, len(c.byLocal))
		for _, fe := range c.byLocal {
			entries = append(entries, fe)
		}
		c.mu.RUnlock()
		for _, fe := range entries {
			fe.state.EnterErrorState()
		}
		return nil
	})
	return herrors.NewGlobalError(code, msg)
}

// State returns a federate's current operating mode.
func (c *Core) State(fed ids.LocalFederateId) (federate.Mode, error) {
	fe, err := c.federateByLocal(fed)
	if err != nil {
		return 0, err
	}
	return fe.state.State(), nil
}

// registerHandle is the shared plumbing behind the five Register* calls:
// allocate a local handle, optionally reserve the name globally. Spec §4.2
// describes a two-phase REGISTER_INTERFACE conversation with a parent
// broker; in this single-core reference deployment the core itself is the
// authority, so acceptance is immediate. Per spec §3, handle.Manager
// namespaces non-global keys by federate so two federates may each use the
// same local name; only global==true reserves the key federation-wide.
// Every new registration also feeds byKey and drains any pendingLinks
// waiting on this key (spec §4.2's named-interface resolution).
func (c *Core) registerHandle(fed ids.LocalFederateId, kind iface.Kind, key string, global bool) (*handle.BasicHandleInfo, error) {
	if _, err := c.federateByLocal(fed); err != nil {
		return nil, err
	}
	info, err := c.handles.Register(fed, kind, key, global)
	if err != nil {
		return nil, err
	}
	c.mu.Lock()
	c.interfaceTags[info.Handle] = make(map[string]string)
	c.mu.Unlock()
	if global && key != "" {
		c.resolvePending(key, c.globalHandle(fed, info.Handle))
	}
	return info, nil
}

// RegisterPublication creates a Publication interface owned by fed.
func (c *Core) RegisterPublication(fed ids.LocalFederateId, key, valueType, units string, global bool) (*iface.Publication, error) {
	var p *iface.Publication
	err := c.sync(true, func() error {
		info, err := c.registerHandle(fed, iface.KindPublication, key, global)
		if err != nil {
			return err
		}
		p = iface.NewPublication(info.Handle, fed, key, global)
		p.Type = valueType
		p.Units = units
		p.Global = c.globalHandle(fed, info.Handle)
		c.mu.Lock()
		c.publications[info.Handle] = p
		c.mu.Unlock()
		return nil
	})
	if err != nil {
		return nil, err
	}
	return p, nil
}

// RegisterInput creates an Input interface owned by fed.
func (c *Core) RegisterInput(fed ids.LocalFederateId, key, valueType, units string, global bool) (*iface.Input, error) {
	var i *iface.Input
	err := c.sync(true, func() error {
		info, err := c.registerHandle(fed, iface.KindInput, key, global)
		if err != nil {
			return err
		}
		i = iface.NewInput(info.Handle, fed, key, global)
		i.Type = valueType
		i.Units = units
		i.Global = c.globalHandle(fed, info.Handle)
		c.mu.Lock()
		c.inputs[info.Handle] = i
		c.mu.Unlock()
		return nil
	})
	if err != nil {
		return nil, err
	}
	return i, nil
}

// RegisterEndpoint creates an Endpoint interface owned by fed, and its
// backing message queue.
func (c *Core) RegisterEndpoint(fed ids.LocalFederateId, key, msgType string, global bool) (*iface.Endpoint, error) {
	var e *iface.Endpoint
	err := c.sync(true, func() error {
		info, err := c.registerHandle(fed, iface.KindEndpoint, key, global)
		if err != nil {
			return err
		}
		e = iface.NewEndpoint(info.Handle, fed, key, global)
		e.Type = msgType
		e.Global = c.globalHandle(fed, info.Handle)
		c.mu.Lock()
		c.endpoints[info.Handle] = e
		c.queues[info.Handle] = message.NewEndpointQueue()
		c.mu.Unlock()
		return nil
	})
	if err != nil {
		return nil, err
	}
	return e, nil
}

// RegisterFilter creates a non-cloning Filter owned by fed and installs its
// operator.
func (c *Core) RegisterFilter(fed ids.LocalFederateId, key string, global bool, op filterops.FilterOperator) (*iface.Filter, error) {
	var f *iface.Filter
	err := c.sync(true, func() error {
		info, err := c.registerHandle(fed, iface.KindFilter, key, global)
		if err != nil {
			return err
		}
		f = iface.NewFilter(info.Handle, fed, key, global, iface.FilterNonCloning)
		f.Global = c.globalHandle(fed, info.Handle)
		c.mu.Lock()
		c.filters[info.Handle] = f
		c.filterOps[info.Handle] = op
		c.mu.Unlock()
		return nil
	})
	if err != nil {
		return nil, err
	}
	return f, nil
}

// RegisterCloningFilter creates a cloning Filter owned by fed.
func (c *Core) RegisterCloningFilter(fed ids.LocalFederateId, key string, global bool, op filterops.CloningOperator) (*iface.Filter, error) {
	var f *iface.Filter
	err := c.sync(true, func() error {
		info, err := c.registerHandle(fed, iface.KindCloningFilter, key, global)
		if err != nil {
			return err
		}
		f = iface.NewFilter(info.Handle, fed, key, global, iface.FilterCloning)
		f.Global = c.globalHandle(fed, info.Handle)
		c.mu.Lock()
		c.filters[info.Handle] = f
		c.cloneOps[info.Handle] = op
		c.mu.Unlock()
		return nil
	})
	if err != nil {
		return nil, err
	}
	return f, nil
}

// RegisterTranslator creates a Translator owned by fed.
func (c *Core) RegisterTranslator(fed ids.LocalFederateId, key string, global bool, enc iface.Encoding) (*iface.Translator, error) {
	var tr *iface.Translator
	err := c.sync(true, func() error {
		info, err := c.registerHandle(fed, iface.KindTranslator, key, global)
		if err != nil {
			return err
		}
		tr = iface.NewTranslator(info.Handle, fed, key, global, enc)
		c.mu.Lock()
		c.translators[info.Handle] = tr
		c.mu.Unlock()
		return nil
	})
	if err != nil {
		return nil, err
	}
	return tr, nil
}

func (c *Core) globalHandle(fed ids.LocalFederateId, h ids.InterfaceHandle) ids.GlobalHandle {
	c.mu.RLock()
	defer c.mu.RUnlock()
	fe := c.byLocal[fed]
	if fe == nil {
		return ids.GlobalHandle{}
	}
	return ids.GlobalHandle{Federate: fe.global, Handle: h}
}

// AddFilterSourceEndpoint records that f filters messages leaving endpoint
// (spec §4.4 "apply any source filters bound to the source endpoint").
func (c *Core) AddFilterSourceEndpoint(f *iface.Filter, endpoint ids.GlobalHandle) error {
	return c.sync(true, func() error {
		f.BindSource(endpoint)
		return nil
	})
}

// AddFilterDeliveryEndpoint records a cloning filter's delivery target.
func (c *Core) AddFilterDeliveryEndpoint(f *iface.Filter, endpoint ids.GlobalHandle) error {
	return c.sync(true, func() error {
		f.AddDeliveryEndpoint(endpoint)
		return nil
	})
}

// linkDestination is the raw plumbing behind AddDestinationTarget: link a
// publication to an input, or an endpoint to a destination endpoint,
// depending on which table source lives in. Must only be called already on
// the command thread (from AddDestinationTarget/AddDestinationTargetByName
// or resolvePending), never re-entered through sync.
func (c *Core) linkDestination(source ids.InterfaceHandle, target ids.GlobalHandle) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if p, ok := c.publications[source]; ok {
		p.AddDestination(target)
		return nil
	}
	if e, ok := c.endpoints[source]; ok {
		e.AddDestination(target)
		return nil
	}
	return herrors.NewInvalidIdentifier("handle %v is not a publication or endpoint", source)
}

// linkSource is linkDestination's counterpart for AddSourceTarget.
func (c *Core) linkSource(dest ids.InterfaceHandle, source ids.GlobalHandle) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if i, ok := c.inputs[dest]; ok {
		i.AddSource(source)
		return nil
	}
	if e, ok := c.endpoints[dest]; ok {
		e.AddSource(source)
		return nil
	}
	return herrors.NewInvalidIdentifier("handle %v is not an input or endpoint", dest)
}

// AddDestinationTarget links source to an already-resolved target handle.
func (c *Core) AddDestinationTarget(source ids.InterfaceHandle, target ids.GlobalHandle) error {
	return c.sync(true, func() error { return c.linkDestination(source, target) })
}

// AddSourceTarget links dest to an already-resolved source handle.
func (c *Core) AddSourceTarget(dest ids.InterfaceHandle, source ids.GlobalHandle) error {
	return c.sync(true, func() error { return c.linkSource(dest, source) })
}

// AddDestinationTargetByName links source to the interface registered under
// targetKey. If the key is already known (registered locally with a global
// key, or learned from another core's REGISTER_INTERFACE broadcast) the
// link completes immediately; otherwise it is queued as a pending
// named-interface link and completed later by resolvePending, per spec
// §4.2's "queued as a pending named-interface query; the local resolver …
// reacts to REGISTER_INTERFACE broadcasts" — this is the mechanism that
// gives handleRegisterInterface's command-thread frame handler its purpose.
func (c *Core) AddDestinationTargetByName(source ids.InterfaceHandle, targetKey string) error {
	return c.sync(true, func() error {
		c.mu.RLock()
		target, ok := c.byKey[targetKey]
		c.mu.RUnlock()
		if ok {
			return c.linkDestination(source, target)
		}
		c.mu.Lock()
		c.pendingLinks[targetKey] = append(c.pendingLinks[targetKey], pendingLink{kind: pendingDestination, local: source})
		c.mu.Unlock()
		return nil
	})
}

// AddSourceTargetByName is AddDestinationTargetByName's counterpart for
// source links.
func (c *Core) AddSourceTargetByName(dest ids.InterfaceHandle, sourceKey string) error {
	return c.sync(true, func() error {
		c.mu.RLock()
		source, ok := c.byKey[sourceKey]
		c.mu.RUnlock()
		if ok {
			return c.linkSource(dest, source)
		}
		c.mu.Lock()
		c.pendingLinks[sourceKey] = append(c.pendingLinks[sourceKey], pendingLink{kind: pendingSource, local: dest})
		c.mu.Unlock()
		return nil
	})
}

// resolvePending records key as resolved to target and completes every link
// that was waiting on it. Called on the command thread only: from
// registerHandle when a local global interface is registered, and from
// handleRegisterInterface when another core's broadcast resolves a key this
// core has pending links against.
func (c *Core) resolvePending(key string, target ids.GlobalHandle) {
	c.mu.Lock()
	c.byKey[key] = target
	waiting := c.pendingLinks[key]
	delete(c.pendingLinks, key)
	c.mu.Unlock()

	for _, link := range waiting {
		switch link.kind {
		case pendingDestination:
			c.linkDestination(link.local, target)
		case pendingSource:
			c.linkSource(link.local, target)
		}
	}
}

// handleRegisterInterface is the command-thread handler for inbound
// REGISTER_INTERFACE broadcasts (spec §4.2), registered on Base in Connect.
// A broker rebroadcasts this action for two distinct events that happen to
// share a wire action: a federate joining the federation under a name
// (internal/broker.Broker.RegisterFederateName, which carries no interface
// handle — Source.Handle is always InvalidInterfaceHandle) and, when a
// broker-mediated interface-key registry exists, a specific publication or
// endpoint becoming resolvable (a real Source.Handle). Only the latter
// completes a pending named-interface link; a federate-name broadcast is
// not an interface key and must not resolve one.
func (c *Core) handleRegisterInterface(f *wire.Frame) {
	if f.Name == "" || !f.Source.Handle.IsValid() {
		return
	}
	c.resolvePending(f.Name, ids.GlobalHandle{Federate: f.Source.Federate, Handle: f.Source.Handle})
}

// SetValue publishes a value from a Publication by setting it directly on
// each destination Input hosted on this core. No SET_VALUE frame is built,
// and destinations hosted on other cores do not receive the value. Per spec
// §7 ("send in CREATED" is
// InvalidState), publishing is only permitted once the owning federate has
// entered INITIALIZING or EXECUTING.
func (c *Core) SetValue(pub ids.InterfaceHandle, value []byte) error {
	return c.sync(false, func() error {
		c.mu.RLock()
		p, ok := c.publications[pub]
		c.mu.RUnlock()
		if !ok {
			return herrors.NewInvalidIdentifier("unknown publication handle %v", pub)
		}
		if info, ok := c.handles.Lookup(pub); ok {
			if fe, err := c.federateByLocal(info.Federate); err == nil {
				if err := fe.state.RequireMode(federate.Initializing, federate.Executing); err != nil {
					return err
				}
			}
		}

		c.mu.RLock()
		targets := append([]ids.GlobalHandle(nil), p.DestinationTargets...)
		c.mu.RUnlock()

		for _, target := range targets {
			c.mu.RLock()
			input, local := c.inputByGlobal(target)
			c.mu.RUnlock()
			if local {
				input.SetValue(p.Global, value)
			}
			// A target outside this core would be transmitted via routes;
			// out of scope for the in-process reference deployment.
		}
		c.handles.MarkUsed(pub)
		return nil
	})
}

// newMessageID mints a collision-resistant message identifier, truncating a
// random UUID to the wire frame's 32-bit messageID field — a burst of
// command-queue traffic no longer risks the collisions a
// time.Now().UnixNano()-based nonce would produce.
func newMessageID() uint32 {
	id := uuid.New()
	return binary.LittleEndian.Uint32(id[:4])
}

func (c *Core) inputByGlobal(target ids.GlobalHandle) (*iface.Input, bool) {
	i, ok := c.inputs[target.Handle]
	return i, ok
}

// GetValue returns an input's most recently received value, or its default.
func (c *Core) GetValue(input ids.InterfaceHandle) ([]byte, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	i, ok := c.inputs[input]
	if !ok {
		return nil, herrors.NewInvalidIdentifier("unknown input handle %v", input)
	}
	return i.Value(), nil
}

// Send constructs a MESSAGE frame from source to dest and routes it, per
// spec §4.4: stamped time is max(currentTime + output_delay, explicitTime),
// source filters are applied first, then the message is enqueued locally
// or transmitted via the routing table. Per spec §7's own example ("send in
// CREATED" -> InvalidState), sending requires the federate be INITIALIZING
// or EXECUTING.
func (c *Core) Send(sourceFed ids.LocalFederateId, sourceHandle ids.InterfaceHandle, dest ids.GlobalHandle, currentTime, outputDelay, explicitTime int64, payload []byte) error {
	return c.sync(false, func() error {
		fe, err := c.federateByLocal(sourceFed)
		if err != nil {
			return err
		}
		if err := fe.state.RequireMode(federate.Initializing, federate.Executing); err != nil {
			return err
		}

		stampedTime := currentTime + outputDelay
		if explicitTime > stampedTime {
			stampedTime = explicitTime
		}

		src := c.globalHandle(sourceFed, sourceHandle)
		m := &message.Message{
			Source:         src,
			OriginalSource: src,
			Dest:           dest,
			OriginalDest:   dest,
			Time:           stampedTime,
			MessageID:      newMessageID(),
			Payload:        payload,
		}

		c.applySourceFilters(sourceHandle, m)
		c.handles.MarkUsed(sourceHandle)
		return c.deliverOrRoute(m)
	})
}

// applySourceFilters runs every filter bound to sourceHandle over m in
// registration order, mutating m.Time/m.Dest in place for delay/reroute
// filters and delivering clones for any cloning filter encountered.
func (c *Core) applySourceFilters(sourceHandle ids.InterfaceHandle, m *message.Message) {
	c.mu.RLock()
	var bound []*iface.Filter
	for _, f := range c.filters {
		for _, src := range f.SourceEndpoints {
			if src.Handle == sourceHandle {
				bound = append(bound, f)
				break
			}
		}
	}
	c.mu.RUnlock()

	for _, f := range bound {
		c.mu.RLock()
		op, hasOp := c.filterOps[f.Handle]
		cloner, hasCloner := c.cloneOps[f.Handle]
		c.mu.RUnlock()

		if hasCloner && cloner.Clone(m) {
			for _, dst := range f.DeliveryEndpoints {
				clone := *m
				clone.Dest = dst
				clone.OriginalDest = m.OriginalDest
				c.deliverOrRoute(&clone)
			}
			continue
		}
		if hasOp {
			res := op.Apply(m)
			if res.Message == nil {
				m.Payload = nil
				m.Dest = ids.GlobalHandle{} // dropped: caller's deliverOrRoute will no-op on invalid dest
				return
			}
			*m = *res.Message
			if res.Reroute.IsValid() {
				m.Dest = res.Reroute
			}
		}
	}
}

// deliverOrRoute enqueues m locally if its destination endpoint lives on
// this core, else transmits it via the routing table (spec §4.4).
func (c *Core) deliverOrRoute(m *message.Message) error {
	if !m.Dest.IsValid() {
		return nil // dropped by a filter
	}

	c.mu.RLock()
	queue, local := c.queues[m.Dest.Handle]
	c.mu.RUnlock()

	if local {
		queue.Add(m)
		c.handles.MarkUsed(m.Dest.Handle)
		return nil
	}

	f := &wire.Frame{
		Action:    wire.ActionMessage,
		Source:    wire.Endpoint{Federate: m.Source.Federate, Handle: m.Source.Handle},
		Dest:      wire.Endpoint{Federate: m.Dest.Federate, Handle: m.Dest.Handle},
		Time:      m.Time,
		MessageID: m.MessageID,
		Payload:   m.Payload,
	}
	return c.routes.Transmit(f)
}

// UpdateEndpointTime recomputes an endpoint's available-message count per
// the semantics resolved against EndpointInfo.cpp (inclusive vs up-to).
func (c *Core) UpdateEndpointTime(endpoint ids.InterfaceHandle, t int64, inclusive bool) error {
	return c.sync(false, func() error {
		c.mu.RLock()
		q, ok := c.queues[endpoint]
		c.mu.RUnlock()
		if !ok {
			return herrors.NewInvalidIdentifier("unknown endpoint handle %v", endpoint)
		}
		if inclusive {
			q.UpdateTimeInclusive(t)
		} else {
			q.UpdateTimeUpTo(t)
		}
		return nil
	})
}

// Receive pops the next available message for an endpoint, or nil if none
// is available yet at maxTime.
func (c *Core) Receive(endpoint ids.InterfaceHandle, maxTime int64) (*message.Message, error) {
	var m *message.Message
	err := c.sync(false, func() error {
		c.mu.RLock()
		q, ok := c.queues[endpoint]
		c.mu.RUnlock()
		if !ok {
			return herrors.NewInvalidIdentifier("unknown endpoint handle %v", endpoint)
		}
		m = q.Get(maxTime)
		return nil
	})
	if err != nil {
		return nil, err
	}
	return m, nil
}

// ReceiveAny scans every endpoint owned by fed and returns the first
// available message found, along with the handle it arrived on.
func (c *Core) ReceiveAny(fed ids.LocalFederateId, maxTime int64) (ids.InterfaceHandle, *message.Message) {
	var handle ids.InterfaceHandle
	var m *message.Message
	c.sync(false, func() error {
		c.mu.RLock()
		defer c.mu.RUnlock()
		for h, e := range c.endpoints {
			if e.Fed != fed {
				continue
			}
			if msg := c.queues[h].Get(maxTime); msg != nil {
				handle, m = h, msg
				return nil
			}
		}
		return nil
	})
	return handle, m
}

// RequestTimeAsync submits a time request for fed and returns a ticket. If
// the grant algorithm (package timecoord) can resolve it immediately
// (Grant or Iterate), the ticket is already complete when this returns;
// otherwise the ticket is held as fed's pending request and completed later
// by ReevaluateTimeRequest, once a dependency update or disconnect makes
// progress possible, or by ExpireTimeRequest. No timeout monitor calls
// ExpireTimeRequest, so a request that never becomes resolvable stays
// pending until the caller expires it or disconnects. The grant algorithm
// itself runs on the command thread via sync, so it always sees a
// consistent view of every dependency's Tnext.
func (c *Core) RequestTimeAsync(fed ids.LocalFederateId, requested int64) (*federate.Ticket, error) {
	var ticket *federate.Ticket
	err := c.sync(false, func() error {
		fe, err := c.federateByLocal(fed)
		if err != nil {
			return err
		}
		ticket = federate.NewTicket()
		result := fe.coord.RequestTime(requested)
		if result.Outcome == timecoord.Pending {
			c.mu.Lock()
			fe.pending = ticket
			c.mu.Unlock()
			return nil
		}
		ticket.Resolve(outcomeToGrant(result), nil)
		return nil
	})
	if err != nil {
		return nil, err
	}
	return ticket, nil
}

func outcomeToGrant(result *timecoord.GrantResult) federate.TimeGrant {
	return federate.TimeGrant{Time: result.Time, Iterating: result.Outcome == timecoord.Iterate}
}

// ReevaluateTimeRequest re-runs the grant algorithm for fed's pending
// request, called after a dependency updates its Tnext or disconnects. If
// the request becomes resolvable, it completes the ticket RequestTimeAsync
// returned earlier.
func (c *Core) ReevaluateTimeRequest(fed ids.LocalFederateId) (*timecoord.GrantResult, error) {
	var result *timecoord.GrantResult
	err := c.sync(false, func() error {
		fe, err := c.federateByLocal(fed)
		if err != nil {
			return err
		}
		result = fe.coord.Reevaluate()
		if result == nil {
			return nil
		}
		if result.Outcome != timecoord.Pending {
			c.mu.Lock()
			ticket := fe.pending
			fe.pending = nil
			c.mu.Unlock()
			if ticket != nil {
				ticket.Resolve(outcomeToGrant(result), nil)
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return result, nil
}

// ExpireTimeRequest fails fed's pending time request with
// TimeCoordinationTimeout and transitions it to ERROR_STATE. It sends no
// LOCAL_ERROR frame, so fed's dependents are not told of the failure.
func (c *Core) ExpireTimeRequest(fed ids.LocalFederateId) error {
	var timeoutErr error
	err := c.sync(true, func() error {
		fe, err := c.federateByLocal(fed)
		if err != nil {
			return err
		}
		c.mu.Lock()
		ticket := fe.pending
		fe.pending = nil
		c.mu.Unlock()
		if ticket == nil {
			return nil
		}
		fe.state.EnterErrorState()
		timeoutErr = herrors.NewTimeCoordinationTimeout("grant_timeout elapsed for federate %s", fe.name)
		ticket.Resolve(federate.TimeGrant{}, timeoutErr)
		return nil
	})
	if err != nil {
		return err
	}
	return timeoutErr
}

// AddTimeDependency registers dependent as depending on dependency, with
// couplingDelay added to the edge (e.g. from an interposed delay filter,
// spec §4.5).
func (c *Core) AddTimeDependency(dependent, dependency ids.LocalFederateId, couplingDelay int64) error {
	return c.sync(true, func() error {
		dep, err := c.federateByLocal(dependent)
		if err != nil {
			return err
		}
		src, err := c.federateByLocal(dependency)
		if err != nil {
			return err
		}
		dep.coord.AddDependency(src.global, couplingDelay)
		return nil
	})
}

// SetGlobal stores a federation-wide key/value pair (supplemented feature,
// grounded on CommonCore::setGlobal).
func (c *Core) SetGlobal(key, value string) {
	c.sync(false, func() error {
		c.mu.Lock()
		defer c.mu.Unlock()
		c.globals[key] = value
		return nil
	})
}

// GetGlobal retrieves a value set with SetGlobal.
func (c *Core) GetGlobal(key string) (string, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	v, ok := c.globals[key]
	return v, ok
}

// SetFederateTag/GetFederateTag implement the supplemented per-federate tag
// store (grounded on CommonCore::setFederateTag/getFederateTag).
func (c *Core) SetFederateTag(fed ids.LocalFederateId, key, value string) error {
	return c.sync(false, func() error {
		fe, err := c.federateByLocal(fed)
		if err != nil {
			return err
		}
		c.mu.Lock()
		fe.tags[key] = value
		c.mu.Unlock()
		return nil
	})
}

func (c *Core) GetFederateTag(fed ids.LocalFederateId, key string) (string, error) {
	fe, err := c.federateByLocal(fed)
	if err != nil {
		return "", err
	}
	c.mu.RLock()
	defer c.mu.RUnlock()
	return fe.tags[key], nil
}

// SetInterfaceTag/GetInterfaceTag implement the supplemented per-interface
// tag store.
func (c *Core) SetInterfaceTag(h ids.InterfaceHandle, key, value string) {
	c.sync(false, func() error {
		c.mu.Lock()
		defer c.mu.Unlock()
		if c.interfaceTags[h] == nil {
			c.interfaceTags[h] = make(map[string]string)
		}
		c.interfaceTags[h][key] = value
		return nil
	})
}

func (c *Core) GetInterfaceTag(h ids.InterfaceHandle, key string) string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.interfaceTags[h][key]
}

// SendCommand posts an out-of-band command string to a federate's command
// channel (supplemented feature, grounded on CommonCore::sendCommand).
func (c *Core) SendCommand(fed ids.LocalFederateId, cmd string) error {
	fe, err := c.federateByLocal(fed)
	if err != nil {
		return err
	}
	select {
	case fe.commands <- cmd:
		return nil
	default:
		return fmt.Errorf("core: command channel full for federate %v", fed)
	}
}

// GetCommand returns the next pending command for fed without blocking, or
// "" if none is queued.
func (c *Core) GetCommand(fed ids.LocalFederateId) (string, error) {
	fe, err := c.federateByLocal(fed)
	if err != nil {
		return "", err
	}
	select {
	case cmd := <-fe.commands:
		return cmd, nil
	default:
		return "", nil
	}
}

// WaitCommand blocks until a command is available for fed.
func (c *Core) WaitCommand(fed ids.LocalFederateId) (string, error) {
	fe, err := c.federateByLocal(fed)
	if err != nil {
		return "", err
	}
	return <-fe.commands, nil
}

// Query answers the fast/ordered query protocol (spec §6). Only "federates"
// is answered directly; anything else returns an empty result.
func (c *Core) Query(ordered bool, target, queryString string) (string, error) {
	return c.base.Query(ordered, func() (string, error) { return c.answerQuery(queryString), nil })
}

func (c *Core) answerQuery(queryString string) string {
	switch queryString {
	case "federates":
		c.mu.RLock()
		defer c.mu.RUnlock()
		names := make([]string, 0, len(c.byName))
		for name := range c.byName {
			names = append(names, name)
		}
		return fmt.Sprintf("%v", names)
	default:
		return "{}"
	}
}
