// Package notify delivers job status changes to interested observers.
package notify

import (
	"context"
	"log"
	"sync"
	"time"

	"github.com/killallgit/echonote-api/internal/models"
)

// StatusEvent describes one status or progress change of a job
type StatusEvent struct {
	Seq       int64            `json:"seq"`
	Timestamp time.Time        `json:"timestamp"`
	JobID     string           `json:"job_id"`
	UserID    string           `json:"user_id"`
	Status    models.JobStatus `json:"status"`
	Progress  int              `json:"progress"`
	Message   string           `json:"message,omitempty"`
	ErrorKind string           `json:"error_kind,omitempty"`
}

// Terminal reports whether the event closes the job's stream
func (e StatusEvent) Terminal() bool {
	return e.Status.IsTerminal()
}

// Notifier receives status events. Delivery is best effort and must not block.
type Notifier interface {
	PublishStatus(ctx context.Context, event StatusEvent)
}

// LogNotifier writes status events to the standard logger
type LogNotifier struct{}

// PublishStatus implements Notifier
func (LogNotifier) PublishStatus(_ context.Context, e StatusEvent) {
	switch {
	case e.Status == models.JobStatusError:
		log.Printf("[ERROR] Job %s failed (%s): %s", e.JobID, e.ErrorKind, e.Message)
	case e.Message != "":
		log.Printf("[INFO] Job %s %s %d%%: %s", e.JobID, e.Status, e.Progress, e.Message)
	default:
		log.Printf("[INFO] Job %s %s %d%%", e.JobID, e.Status, e.Progress)
	}
}

// Multi fans an event out to several notifiers
type Multi []Notifier

// PublishStatus implements Notifier
func (m Multi) PublishStatus(ctx context.Context, e StatusEvent) {
	for _, n := range m {
		if n != nil {
			n.PublishStatus(ctx, e)
		}
	}
}

// EventBus keeps a bounded history of events and pushes new ones to
// per-job subscribers.
type EventBus struct {
	mu          sync.RWMutex
	nextSeq     int64
	maxEvents   int
	events      []StatusEvent
	subscribers map[string]map[chan StatusEvent]struct{}
}

// NewEventBus creates a bounded in-memory event buffer
func NewEventBus(maxEvents int) *EventBus {
	if maxEvents <= 0 {
		maxEvents = 500
	}

	return &EventBus{
		maxEvents:   maxEvents,
		events:      make([]StatusEvent, 0, maxEvents),
		subscribers: make(map[string]map[chan StatusEvent]struct{}),
	}
}

// PublishStatus implements Notifier
func (b *EventBus) PublishStatus(_ context.Context, e StatusEvent) {
	b.Publish(e)
}

// Publish appends one event, assigns sequence and timestamp, and delivers
// it to subscribers of the job. Slow subscribers miss events rather than
// block the publisher.
func (b *EventBus) Publish(e StatusEvent) StatusEvent {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.nextSeq++
	e.Seq = b.nextSeq
	if e.Timestamp.IsZero() {
		e.Timestamp = time.Now().UTC()
	}

	b.events = append(b.events, e)
	if len(b.events) > b.maxEvents {
		trim := len(b.events) - b.maxEvents
		b.events = append([]StatusEvent(nil), b.events[trim:]...)
	}

	for ch := range b.subscribers[e.JobID] {
		select {
		case ch <- e:
		default:
		}
	}

	return e
}

// Since returns events for jobID with sequence strictly greater than seq.
// An empty jobID matches every job.
func (b *EventBus) Since(jobID string, seq int64) []StatusEvent {
	b.mu.RLock()
	defer b.mu.RUnlock()

	var out []StatusEvent
	for _, e := range b.events {
		if e.Seq > seq && (jobID == "" || e.JobID == jobID) {
			out = append(out, e)
		}
	}
	return out
}

// Subscribe registers for live events of jobID. The returned function
// unsubscribes and closes the channel.
func (b *EventBus) Subscribe(jobID string, buffer int) (<-chan StatusEvent, func()) {
	if buffer <= 0 {
		buffer = 16
	}
	ch := make(chan StatusEvent, buffer)

	b.mu.Lock()
	if b.subscribers[jobID] == nil {
		b.subscribers[jobID] = make(map[chan StatusEvent]struct{})
	}
	b.subscribers[jobID][ch] = struct{}{}
	b.mu.Unlock()

	var once sync.Once
	return ch, func() {
		once.Do(func() {
			b.mu.Lock()
			delete(b.subscribers[jobID], ch)
			if len(b.subscribers[jobID]) == 0 {
				delete(b.subscribers, jobID)
			}
			b.mu.Unlock()
			close(ch)
		})
	}
}
