package jobs

import (
	"sync"
	"time"

	"github.com/dendotai/transpoze-app/internal/domain"
)

// EventType classifies messages emitted while jobs move through the queue.
type EventType string

const (
	EventJobUpdated         EventType = "job-updated"
	EventConversionProgress EventType = "conversion-progress"
	EventConversionComplete EventType = "conversion-complete"
	EventConversionFailed   EventType = "conversion-failed"
	EventJobsCleared        EventType = "jobs-cleared"
)

// Event is a sequenced payload consumed by UI subscribers.
type Event struct {
	Seq       int64       `json:"seq"`
	Timestamp time.Time   `json:"timestamp"`
	Type      EventType   `json:"type"`
	JobID     string      `json:"jobId,omitempty"`
	Job       *domain.Job `json:"job,omitempty"`
	Progress  float64     `json:"progress,omitempty"`
	Error     string      `json:"error,omitempty"`
	JobIDs    []string    `json:"jobIds,omitempty"`
}

// Sink receives job notifications. Delivery is best effort and Emit must not
// block for long.
type Sink interface {
	Emit(event Event)
}

// SinkFunc adapts a function to Sink.
type SinkFunc func(event Event)

// Emit calls f(event).
func (f SinkFunc) Emit(event Event) { f(event) }

// Fanout returns a sink that forwards each event to every non-nil sink.
func Fanout(sinks ...Sink) Sink {
	targets := make([]Sink, 0, len(sinks))
	for _, sink := range sinks {
		if sink != nil {
			targets = append(targets, sink)
		}
	}
	return SinkFunc(func(event Event) {
		for _, sink := range targets {
			sink.Emit(event)
		}
	})
}

// EventBus stores recent events and provides incremental reads.
type EventBus struct {
	mu        sync.RWMutex
	nextSeq   int64
	maxEvents int
	events    []Event
}

// NewEventBus creates a bounded in-memory event buffer.
func NewEventBus(maxEvents int) *EventBus {
	if maxEvents <= 0 {
		maxEvents = 500
	}

	return &EventBus{
		maxEvents: maxEvents,
		events:    make([]Event, 0, maxEvents),
	}
}

// Emit publishes event and drops the sequenced copy.
func (b *EventBus) Emit(event Event) {
	b.Publish(event)
}

// Publish appends one event and assigns sequence and timestamp.
func (b *EventBus) Publish(event Event) Event {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.nextSeq++
	event.Seq = b.nextSeq
	if event.Timestamp.IsZero() {
		event.Timestamp = time.Now().UTC()
	}

	b.events = append(b.events, event)
	if len(b.events) > b.maxEvents {
		trim := len(b.events) - b.maxEvents
		b.events = append([]Event(nil), b.events[trim:]...)
	}

	return event
}

// Since returns events with sequence strictly greater than seq.
func (b *EventBus) Since(seq int64) []Event {
	b.mu.RLock()
	defer b.mu.RUnlock()

	if len(b.events) == 0 {
		return nil
	}

	out := make([]Event, 0, len(b.events))
	for _, event := range b.events {
		if event.Seq > seq {
			out = append(out, event)
		}
	}
	return out
}

// LastSeq returns the sequence number of the newest event.
func (b *EventBus) LastSeq() int64 {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.nextSeq
}
