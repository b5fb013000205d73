// Package timecoord implements the conservative distributed time protocol of
// spec §4.3: the per-federate dependency set, the grant algorithm, and the
// iteration/timeout/disconnect termination paths.
package timecoord

import (
	"sort"
	"sync"

	"github.com/timmyreynolds/HELICS/internal/ids"
)

// DependencyInfo tracks what a federate knows about one of its time
// dependencies: the earliest time that dependency might still emit
// (Tnext), that dependency's own most recent grant (TminDE), the coupling
// delay imposed on the edge (by an interposed filter, if any), and whether
// the dependency can still block a grant (Active — false once it has
// disconnected or the edge has otherwise been dropped).
type DependencyInfo struct {
	Federate      ids.GlobalFederateId
	Tnext         int64
	TminDE        int64
	CouplingDelay int64
	Active        bool
}

// effectiveBound is the earliest time this dependency could still emit an
// event observable at the far end of its edge.
func (d *DependencyInfo) effectiveBound() int64 {
	return d.Tnext + d.CouplingDelay
}

// Outcome is the result of evaluating a pending time request.
type Outcome int

const (
	// Pending means no dependency currently prevents further waiting, but
	// the request cannot yet be granted — the caller should keep blocking
	// and re-evaluate on the next dependency update.
	Pending Outcome = iota
	Grant
	Iterate
)

// GrantResult reports the outcome of evaluating a federate's time request.
type GrantResult struct {
	Outcome Outcome
	Time    int64
}

// Coordinator holds one federate's view of its time-dependency set and
// evaluates grant requests against it. It performs no I/O and blocks on
// nothing; the owning core drives it from the command loop and is
// responsible for turning a Pending result into a blocked ticket.
type Coordinator struct {
	mu         sync.Mutex
	epsilon    int64 // minimum time step; the federate's own lookahead
	deps       map[ids.GlobalFederateId]*DependencyInfo
	requested  int64
	hasRequest bool
	iterCount  int
	maxIter    int
	granted    int64
}

// NewCoordinator returns a Coordinator with the given minimum time step
// (epsilon) and maximum iteration count. Once a request has iterated that
// many times at a capped time, the next evaluation grants the capped time
// instead of returning Iterate again; a maxIterations of 0 or less never
// stops iterating.
func NewCoordinator(epsilon int64, maxIterations int) *Coordinator {
	return &Coordinator{
		epsilon: epsilon,
		deps:    make(map[ids.GlobalFederateId]*DependencyInfo),
		maxIter: maxIterations,
	}
}

// AddDependency registers a new time dependency, active from the current
// granted time.
func (c *Coordinator) AddDependency(fed ids.GlobalFederateId, couplingDelay int64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.deps[fed] = &DependencyInfo{
		Federate:      fed,
		Tnext:         c.granted,
		CouplingDelay: couplingDelay,
		Active:        true,
	}
}

// RemoveDependency drops a dependency's edge entirely — used when a
// dependency has finalized, per the disconnect termination path. The
// dependent should re-evaluate its pending request afterward.
func (c *Coordinator) RemoveDependency(fed ids.GlobalFederateId) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.deps, fed)
}

// UpdateDependency records a dependency's latest reported Tnext/TminDE, sent
// alongside a grant or iteration on that dependency's side.
func (c *Coordinator) UpdateDependency(fed ids.GlobalFederateId, tnext, tminDE int64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	d, ok := c.deps[fed]
	if !ok {
		return
	}
	d.Tnext = tnext
	d.TminDE = tminDE
}

// RequestTime begins a new time request, replacing any prior one, and
// evaluates it immediately.
func (c *Coordinator) RequestTime(requested int64) *GrantResult {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.requested = requested
	c.hasRequest = true
	c.iterCount = 0
	return c.evaluateLocked()
}

// Reevaluate re-runs the grant algorithm for the currently pending request,
// called after any dependency update, removal, or iteration completion. It
// returns nil if there is no pending request.
func (c *Coordinator) Reevaluate() *GrantResult {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.hasRequest {
		return nil
	}
	return c.evaluateLocked()
}

// AckIteration is called after the core has processed an Iterate outcome
// (delivered pending inputs to the federate) and is re-requesting the same
// time.
func (c *Coordinator) AckIteration() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.iterCount++
}

func (c *Coordinator) evaluateLocked() *GrantResult {
	// Tg = min(Trequested, min over active dependencies of Tnext+coupling_delay)
	tg := c.requested
	for _, d := range c.deps {
		if !d.Active {
			continue
		}
		if bound := d.effectiveBound(); bound < tg {
			tg = bound
		}
	}

	ready := true
	for _, d := range c.deps {
		if !d.Active {
			continue
		}
		if d.Tnext < tg+c.epsilon {
			ready = false
			break
		}
	}

	if ready && tg >= c.requested {
		// Full grant at the requested time: no dependency can still
		// emit anything earlier, so the request is fully satisfiable.
		c.hasRequest = false
		c.granted = c.requested
		for _, d := range c.deps {
			_ = d
		}
		return &GrantResult{Outcome: Grant, Time: c.granted}
	}

	if ready && tg < c.requested {
		// All dependencies have reported in, but the binding constraint
		// caps the grant below what was requested: a cyclic coupling at
		// this time. The federate must iterate to make progress.
		if c.maxIter > 0 && c.iterCount >= c.maxIter {
			// Out of iterations; grant the bounded time rather than
			// spin forever — callers treat repeated Iterate at an
			// unchanged Tg as a stall.
			c.hasRequest = false
			c.granted = tg
			return &GrantResult{Outcome: Grant, Time: c.granted}
		}
		return &GrantResult{Outcome: Iterate, Time: tg}
	}

	return &GrantResult{Outcome: Pending, Time: tg}
}

// CurrentGrant returns the most recent time granted to this federate.
func (c *Coordinator) CurrentGrant() int64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.granted
}

// OutboundTnext is the Tnext this federate should advertise to its own
// dependents after a grant: the granted time plus its minimum time step.
func (c *Coordinator) OutboundTnext() int64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.granted + c.epsilon
}

// Dependencies returns a snapshot of the current dependency set, sorted by
// federate id for deterministic tests and diagnostics.
func (c *Coordinator) Dependencies() []DependencyInfo {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]DependencyInfo, 0, len(c.deps))
	for _, d := range c.deps {
		out = append(out, *d)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Federate < out[j].Federate })
	return out
}
