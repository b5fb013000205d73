// Ticket implements the "…Async + …Complete" pattern of spec Design Note:
// requestTimeAsync submits a command frame and returns a handle to the
// in-flight request; requestTimeComplete blocks on it. Cancellation is via
// node-wide disconnect, which resolves every outstanding ticket with an
// error.
package federate

// TimeGrant is the payload a completed time-request ticket resolves to.
type TimeGrant struct {
	Time      int64
	Iterating bool
}

// Ticket is a handle to an in-flight asynchronous request. The zero value is
// not usable; construct with NewTicket.
type Ticket struct {
	done chan ticketResult
}

type ticketResult struct {
	grant TimeGrant
	err   error
}

// NewTicket returns a ticket whose Complete call will block until Resolve is
// called exactly once.
func NewTicket() *Ticket {
	return &Ticket{done: make(chan ticketResult, 1)}
}

// Resolve completes the ticket. Only the first call has effect; it is the
// core's job to call this exactly once per ticket, from the command thread.
func (t *Ticket) Resolve(grant TimeGrant, err error) {
	select {
	case t.done <- ticketResult{grant: grant, err: err}:
	default:
	}
}

// Complete blocks until the ticket is resolved and returns its result.
func (t *Ticket) Complete() (TimeGrant, error) {
	res := <-t.done
	return res.grant, res.err
}
