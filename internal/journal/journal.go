// Package journal keeps the append-only lifecycle log of one
// (symbol, timeframe) for audit and replay queries.
package journal

import (
	"time"

	"github.com/RonoHenry/AgentICTrader/internal/model"
)

// DefaultCapacity is the number of events kept per stream.
const DefaultCapacity = 5000

// Query selects events with From <= At < To. Zero bounds are open and an
// empty Kinds matches every kind.
type Query struct {
	From  time.Time
	To    time.Time
	Kinds []model.EventKind
	Limit int
}

// Match reports whether e satisfies the time and kind filters.
func (q Query) Match(e model.Event) bool {
	if !q.From.IsZero() && e.At.Before(q.From) {
		return false
	}
	if !q.To.IsZero() && !e.At.Before(q.To) {
		return false
	}
	if len(q.Kinds) == 0 {
		return true
	}
	for _, k := range q.Kinds {
		if e.Kind == k {
			return true
		}
	}
	return false
}

// Journal is a bounded append-only event log. Sequence numbers start at 1 and
// never repeat, even after old events are dropped. Not safe for concurrent use.
type Journal struct {
	capacity int
	events   []model.Event
	seq      uint64
}

// New creates a journal keeping at most capacity events.
func New(capacity int) *Journal {
	if capacity <= 0 {
		capacity = DefaultCapacity
	}
	return &Journal{capacity: capacity}
}

// Append stamps events with sequence numbers and stores them. The stamped
// copies are returned for delivery to sinks.
func (j *Journal) Append(events ...model.Event) []model.Event {
	if len(events) == 0 {
		return nil
	}
	out := make([]model.Event, len(events))
	for i, e := range events {
		j.seq++
		e.Seq = j.seq
		out[i] = e
	}
	j.events = append(j.events, out...)
	if len(j.events) >= 2*j.capacity {
		j.events = append([]model.Event(nil), j.events[len(j.events)-j.capacity:]...)
	}
	return out
}

// Query returns matching events in append order.
func (j *Journal) Query(q Query) []model.Event {
	var out []model.Event
	for _, e := range j.window() {
		if !q.Match(e) {
			continue
		}
		out = append(out, e)
		if q.Limit > 0 && len(out) >= q.Limit {
			break
		}
	}
	return out
}

// Len is the number of events currently retained.
func (j *Journal) Len() int { return len(j.window()) }

// LastSeq is the sequence number of the newest event, 0 if none.
func (j *Journal) LastSeq() uint64 { return j.seq }

func (j *Journal) window() []model.Event {
	if len(j.events) > j.capacity {
		return j.events[len(j.events)-j.capacity:]
	}
	return j.events
}

// Transitions extracts the phase history from events.
func Transitions(events []model.Event) []model.PhaseTransition {
	var out []model.PhaseTransition
	for _, e := range events {
		if e.Kind == model.EventPhaseTransition && e.Transition != nil {
			out = append(out, *e.Transition)
		}
	}
	return out
}
