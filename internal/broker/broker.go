// Package broker implements the interior tree node: the CommonCore
// equivalent one layer up. A Broker hosts no federates itself; it hosts
// child cores and/or child brokers, merges their name-resolution and
// dependency-graph state, and — only at the root — gates the federation's
// INIT_GRANT/EXEC_GRANT broadcast behind every child reporting ready. It
// embeds the same brokerbase.Base command thread and query subsystem Core
// does (Design Note 1: "one command-thread base, two roles built on it"),
// grounded on the teacher's broker.go which plays the analogous
// routers-registering-with-a-broker role.
package broker

import (
	"fmt"
	"strings"
	"sync"

	"github.com/sirupsen/logrus"

	"github.com/timmyreynolds/HELICS/internal/brokerbase"
	"github.com/timmyreynolds/HELICS/internal/herrors"
	"github.com/timmyreynolds/HELICS/internal/ids"
	"github.com/timmyreynolds/HELICS/internal/logging"
	"github.com/timmyreynolds/HELICS/internal/route"
	"github.com/timmyreynolds/HELICS/internal/wire"
)

// QueryAnswerer is satisfied by anything a broker can forward a query to:
// a child Core or a child Broker. Keeping this as an interface rather than
// a concrete type lets the in-process tree wire Core and Broker together
// without either package importing the other.
type QueryAnswerer interface {
	Query(ordered bool, target, queryString string) (string, error)
}

type childInfo struct {
	id        ids.GlobalBrokerId
	route     route.Route
	answerer  QueryAnswerer
	readyInit bool
	readyExec bool
}

// Broker is the interior tree node. isRoot governs whether it gates
// INIT_GRANT/EXEC_GRANT itself (root). A non-root broker records its
// children's readiness but neither broadcasts a grant nor reports that
// readiness to its own parent; this reference deployment only exercises a
// two-level tree (root broker, leaf cores).
type Broker struct {
	base   *brokerbase.Base
	log    *logrus.Entry
	routes *route.Table
	isRoot bool

	mu          sync.RWMutex
	children    map[ids.GlobalBrokerId]*childInfo
	names       map[string]ids.GlobalFederateId
	nameOwner   map[string]ids.GlobalBrokerId
	globals     map[string]string
	initGranted bool
	execGranted bool
}

// NewBroker constructs an unconnected Broker. parentRoute is nil for the
// federation root.
func NewBroker(name string, logger *logrus.Logger, parentRoute route.Route, isRoot bool) *Broker {
	log := logging.ForComponent(logger, "broker").WithField("node", name)
	b := &Broker{
		base:      brokerbase.New(log, 0),
		log:       log,
		routes:    route.NewTable(parentRoute),
		isRoot:    isRoot,
		children:  make(map[ids.GlobalBrokerId]*childInfo),
		names:     make(map[string]ids.GlobalFederateId),
		nameOwner: make(map[string]ids.GlobalBrokerId),
		globals:   make(map[string]string),
	}
	b.base.Configure(name)
	return b
}

// Connect brings the command loop up and negotiates identity with the
// parent (a no-op assign function for the root).
func (b *Broker) Connect(assign func() (ids.GlobalBrokerId, error)) error {
	return b.base.Connect(assign)
}

// sync runs fn on the single command-processing thread (spec §4.1/§5),
// Broker's counterpart of core.Core.sync — see that method's comment for
// why every public mutating method routes through here instead of running
// directly on the caller's goroutine.
func (b *Broker) sync(priority bool, fn func() error) error {
	var outErr error
	if err := b.base.RunSync(priority, func() { outErr = fn() }); err != nil {
		return err
	}
	return outErr
}

// Disconnect tears down every child's route and stops the command loop.
func (b *Broker) Disconnect() {
	b.mu.Lock()
	for id, c := range b.children {
		_ = c.route.Close()
		delete(b.children, id)
	}
	b.mu.Unlock()
	b.base.Disconnect()
}

// RegisterChild admits a child core or broker under this node. answerer is
// used for query forwarding; route is used for control-frame broadcast
// (INIT_GRANT, EXEC_GRANT, DISCONNECT notices).
func (b *Broker) RegisterChild(id ids.GlobalBrokerId, r route.Route, answerer QueryAnswerer) error {
	return b.sync(true, func() error {
		b.mu.Lock()
		defer b.mu.Unlock()
		if _, exists := b.children[id]; exists {
			return herrors.NewRegistrationFailure("duplicate child broker id %v", id)
		}
		b.children[id] = &childInfo{id: id, route: r, answerer: answerer}
		return nil
	})
}

// RemoveChild drops a disconnected child, releases any names it owned, and
// notifies the remaining children (spec §4.2 disconnect propagation).
func (b *Broker) RemoveChild(id ids.GlobalBrokerId) {
	b.sync(true, func() error {
		b.mu.Lock()
		delete(b.children, id)
		for name, owner := range b.nameOwner {
			if owner == id {
				delete(b.names, name)
				delete(b.nameOwner, name)
			}
		}
		remaining := make([]*childInfo, 0, len(b.children))
		for _, c := range b.children {
			remaining = append(remaining, c)
		}
		b.mu.Unlock()

		notice := &wire.Frame{Action: wire.ActionDisconnect, Name: fmt.Sprintf("broker:%d", id)}
		for _, c := range remaining {
			_ = c.route.Send(notice)
		}
		return nil
	})
}

// RegisterFederateName records a federate's global name under this
// broker's subtree and broadcasts it to every other child as an
// ActionRegisterInterface frame carrying the federate id and name but no
// interface handle. Core.handleRegisterInterface ignores frames without a
// valid source handle, so a receiving core does not resolve pending
// named-interface links from this broadcast; ResolveName answers from the
// broker's own table.
func (b *Broker) RegisterFederateName(global ids.GlobalFederateId, name string, owner ids.GlobalBrokerId) error {
	return b.sync(true, func() error {
		b.mu.Lock()
		if _, exists := b.names[name]; exists {
			b.mu.Unlock()
			return herrors.NewRegistrationFailure("duplicate federate name %q in federation", name)
		}
		b.names[name] = global
		b.nameOwner[name] = owner
		others := make([]*childInfo, 0, len(b.children))
		for id, c := range b.children {
			if id != owner {
				others = append(others, c)
			}
		}
		b.mu.Unlock()

		frame := &wire.Frame{
			Action: wire.ActionRegisterInterface,
			Source: wire.Endpoint{Federate: global},
			Name:   name,
		}
		for _, c := range others {
			_ = c.route.Send(frame)
		}
		return nil
	})
}

// ResolveName looks up a federate's global id by its federation-wide name.
func (b *Broker) ResolveName(name string) (ids.GlobalFederateId, bool) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	g, ok := b.names[name]
	return g, ok
}

// ChildReadyForInit records that a child has reached its init barrier
// (every federate it hosts is either EXECUTING-bound or held at
// DELAY_INIT_ENTRY). Once every registered child is ready, the root
// broadcasts INIT_GRANT.
func (b *Broker) ChildReadyForInit(id ids.GlobalBrokerId) error {
	return b.markReady(id, true, false)
}

// ChildReadyForExec mirrors ChildReadyForInit for the EXEC_GRANT barrier.
func (b *Broker) ChildReadyForExec(id ids.GlobalBrokerId) error {
	return b.markReady(id, false, true)
}

func (b *Broker) markReady(id ids.GlobalBrokerId, forInit, forExec bool) error {
	return b.sync(true, func() error {
		b.mu.Lock()
		c, ok := b.children[id]
		if !ok {
			b.mu.Unlock()
			return herrors.NewInvalidIdentifier("unknown child broker id %v", id)
		}
		if forInit {
			c.readyInit = true
		}
		if forExec {
			c.readyExec = true
		}

		allInit, allExec := true, true
		for _, child := range b.children {
			if !child.readyInit {
				allInit = false
			}
			if !child.readyExec {
				allExec = false
			}
		}
		shouldGrantInit := b.isRoot && !b.initGranted && allInit && len(b.children) > 0
		shouldGrantExec := b.isRoot && !b.execGranted && allExec && len(b.children) > 0
		if shouldGrantInit {
			b.initGranted = true
		}
		if shouldGrantExec {
			b.execGranted = true
		}
		targets := make([]*childInfo, 0, len(b.children))
		for _, child := range b.children {
			targets = append(targets, child)
		}
		b.mu.Unlock()

		if shouldGrantInit {
			b.broadcast(targets, wire.ActionInitGrant)
		}
		if shouldGrantExec {
			b.broadcast(targets, wire.ActionExecGrant)
		}
		return nil
	})
}

func (b *Broker) broadcast(targets []*childInfo, action wire.Action) {
	frame := &wire.Frame{Action: action}
	for _, c := range targets {
		if err := c.route.Send(frame); err != nil {
			b.log.WithError(err).WithField("child", c.id).Warn("broadcast delivery failed")
		}
	}
}

// SetGlobal/GetGlobal implement the federation-wide key/value store at the
// root, the natural home for it in a multi-core deployment (supplemented
// feature, spec §CommonCore::setGlobal).
func (b *Broker) SetGlobal(key, value string) {
	b.sync(false, func() error {
		b.mu.Lock()
		defer b.mu.Unlock()
		b.globals[key] = value
		return nil
	})
}

func (b *Broker) GetGlobal(key string) (string, bool) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	v, ok := b.globals[key]
	return v, ok
}

// Query answers locally when possible, else fans out to every child and
// aggregates their answers into a JSON-array-shaped string (spec §6 query
// protocol, "ordered" vs "fast" sequencing via brokerbase.Base.Query).
func (b *Broker) Query(ordered bool, target, queryString string) (string, error) {
	return b.base.Query(ordered, func() (string, error) { return b.answerQuery(queryString), nil })
}

func (b *Broker) answerQuery(queryString string) string {
	switch queryString {
	case "global_value":
		return "{}"
	default:
	}

	b.mu.RLock()
	children := make([]*childInfo, 0, len(b.children))
	for _, c := range b.children {
		children = append(children, c)
	}
	b.mu.RUnlock()

	results := make([]string, 0, len(children))
	for _, c := range children {
		if c.answerer == nil {
			continue
		}
		if res, err := c.answerer.Query(false, fmt.Sprintf("%d", c.id), queryString); err == nil {
			results = append(results, res)
		}
	}
	return "[" + strings.Join(results, ",") + "]"
}
