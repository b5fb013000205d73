// Package message implements the federation's message model: the envelope
// carried between endpoints and the per-endpoint queue discipline described
// in spec §4.4, resolved against the original HELICS EndpointInfo.cpp where
// the spec text alone left the exact boundary ambiguous.
package message

import (
	"sort"

	"github.com/timmyreynolds/HELICS/internal/ids"
)

// Message is an endpoint-to-endpoint payload in flight. Source/Dest name the
// current hop (which may be a filter's logical address mid-pipeline);
// OriginalSource/OriginalDest are preserved across filter rerouting and
// cloning so a destination can always see who really sent it.
type Message struct {
	Source         ids.GlobalHandle
	OriginalSource ids.GlobalHandle
	Dest           ids.GlobalHandle
	OriginalDest   ids.GlobalHandle
	Time           int64 // fixed-point nanoseconds
	MessageID      uint32
	Flags          uint16
	Payload        []byte
}

// less implements the stable total order used for queue insertion: primarily
// by Time, then lexicographically by OriginalSource (federate then handle).
// This mirrors msgSorter in the original EndpointInfo.cpp exactly, which is
// why equal-time messages from different senders have a deterministic,
// reproducible arrival order at a shared endpoint.
func less(a, b *Message) bool {
	if a.Time != b.Time {
		return a.Time < b.Time
	}
	if a.OriginalSource.Federate != b.OriginalSource.Federate {
		return a.OriginalSource.Federate < b.OriginalSource.Federate
	}
	return a.OriginalSource.Handle < b.OriginalSource.Handle
}

// EndpointQueue holds messages addressed to one endpoint, ordered per less.
// It is not safe for concurrent use; callers serialize access the same way
// the command thread serializes everything else that touches federate state.
type EndpointQueue struct {
	messages  []*Message
	available int
}

// NewEndpointQueue returns an empty queue.
func NewEndpointQueue() *EndpointQueue {
	return &EndpointQueue{}
}

// Add inserts a message, keeping the queue sorted by (Time, OriginalSource),
// and re-derives the stable sort the way addMessage in the original does
// (push_back then stable_sort) rather than a binary-search insert, since the
// queues involved are small and the clarity is worth more than the
// asymptotics here.
func (q *EndpointQueue) Add(m *Message) {
	q.messages = append(q.messages, m)
	sort.SliceStable(q.messages, func(i, j int) bool {
		return less(q.messages[i], q.messages[j])
	})
}

// UpdateTimeUpTo recomputes the count of messages available strictly before
// newTime: count of messages with Time < newTime. This is the semantics
// confirmed against the original's updateTimeUpTo, whose scan breaks on
// `time >= newTime` — i.e. it does NOT include messages exactly at newTime,
// despite the "up to" name suggesting otherwise at first read.
func (q *EndpointQueue) UpdateTimeUpTo(newTime int64) {
	count := 0
	for _, m := range q.messages {
		if m.Time >= newTime {
			break
		}
		count++
	}
	q.available = count
}

// UpdateTimeInclusive recomputes the count of messages available at or
// before newTime: count of messages with Time <= newTime. This is the
// semantics confirmed against the original's updateTimeInclusive, whose scan
// breaks on `time > newTime`.
func (q *EndpointQueue) UpdateTimeInclusive(newTime int64) {
	count := 0
	for _, m := range q.messages {
		if m.Time > newTime {
			break
		}
		count++
	}
	q.available = count
}

// AvailableCount returns the count established by the most recent
// UpdateTimeUpTo/UpdateTimeInclusive call.
func (q *EndpointQueue) AvailableCount() int {
	return q.available
}

// Get pops and returns the front message if it is available (Time <=
// maxTime), decrementing the available counter. It returns nil if the queue
// is empty or the front message is not yet available.
func (q *EndpointQueue) Get(maxTime int64) *Message {
	if len(q.messages) == 0 {
		return nil
	}
	front := q.messages[0]
	if front.Time > maxTime {
		return nil
	}
	q.messages = q.messages[1:]
	if q.available > 0 {
		q.available--
	}
	return front
}

// Size returns the total number of messages queued, available or not.
func (q *EndpointQueue) Size() int {
	return len(q.messages)
}

// Clear empties the queue, used on disconnect.
func (q *EndpointQueue) Clear() {
	q.messages = nil
	q.available = 0
}
