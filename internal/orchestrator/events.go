package orchestrator

import (
	"log"
	"sync/atomic"
	"time"

	"github.com/clearlane/claimflow/pkg/models"
)

// EventType identifies what happened during claim processing.
type EventType string

const (
	// EventAgentStarted is emitted when a first-stage agent begins.
	EventAgentStarted EventType = "agent_started"
	// EventAgentFinished is emitted when an agent reaches a terminal outcome.
	EventAgentFinished EventType = "agent_finished"
	// EventClaimDecided is emitted when the final decision is produced.
	EventClaimDecided EventType = "claim_decided"
)

// Event is a notification about one claim's processing progress.
type Event struct {
	Type    EventType     `json:"type"`
	ClaimID string        `json:"claim_id"`
	Agent   string        `json:"agent,omitempty"`
	Status  models.Status `json:"status,omitempty"`
	Failed  bool          `json:"failed,omitempty"`
	Time    time.Time     `json:"time"`
}

// EventEmitter provides a thread-safe way to emit events to subscribers.
type EventEmitter struct {
	events       chan Event
	droppedCount atomic.Uint64
}

// NewEventEmitter creates a new EventEmitter with the given buffer size.
func NewEventEmitter(bufferSize int) *EventEmitter {
	return &EventEmitter{
		events: make(chan Event, bufferSize),
	}
}

// Emit sends an event to the events channel.
// If the channel is full, it tries with a timeout before dropping the event.
func (e *EventEmitter) Emit(event Event) {
	select {
	case e.events <- event:
		return
	default:
		// Channel full, try with timeout
	}

	// Give the receiver a short chance to drain before dropping
	select {
	case e.events <- event:
		return
	case <-time.After(100 * time.Millisecond):
		count := e.droppedCount.Add(1)
		if count%10 == 1 { // Log every 10th drop to avoid spam
			log.Printf("[orchestrator] WARNING: event channel full, dropped event (total dropped: %d): type=%s", count, event.Type)
		}
	}
}

// DroppedCount returns the total number of events that have been dropped.
func (e *EventEmitter) DroppedCount() uint64 {
	return e.droppedCount.Load()
}

// Events returns a read-only channel of events.
func (e *EventEmitter) Events() <-chan Event {
	return e.events
}

// Close closes the events channel.
func (e *EventEmitter) Close() {
	close(e.events)
}
