package jobs

import (
	"sync"
	"time"

	"media-animator/internal/domain"
)

// EventType classifies messages emitted during batch execution.
type EventType string

const (
	EventTypeStatus EventType = "status"
	EventTypeFile   EventType = "file"
	EventTypeResult EventType = "result"
	EventTypeError  EventType = "error"
)

// Event is a sequenced payload consumed by pollers.
type Event struct {
	Seq            int64               `json:"seq"`
	Timestamp      time.Time           `json:"timestamp"`
	BatchID        string              `json:"batchId"`
	Type           EventType           `json:"type"`
	Progress       int                 `json:"progress"`
	CurrentFile    string              `json:"currentFile,omitempty"`
	CompletedFiles int                 `json:"completedFiles"`
	TotalFiles     int                 `json:"totalFiles"`
	Message        string              `json:"message,omitempty"`
	Outcome        *domain.FileOutcome `json:"outcome,omitempty"`
}

// EventFromStatus builds an event carrying the progress fields of status.
func EventFromStatus(eventType EventType, status domain.ConversionStatus) Event {
	return Event{
		BatchID:        status.BatchID,
		Type:           eventType,
		Progress:       status.Progress,
		CurrentFile:    status.CurrentFile,
		CompletedFiles: status.CompletedFiles,
		TotalFiles:     status.TotalFiles,
		Message:        status.Message,
	}
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
