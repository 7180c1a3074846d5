package notify

import (
	"context"
	"testing"
	"time"

	"github.com/killallgit/echonote-api/internal/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEventBus_Since(t *testing.T) {
	bus := NewEventBus(3)
	bus.Publish(StatusEvent{JobID: "a", Status: models.JobStatusPending})
	bus.Publish(StatusEvent{JobID: "b", Status: models.JobStatusPending})
	bus.Publish(StatusEvent{JobID: "a", Status: models.JobStatusProcessing})

	events := bus.Since("a", 1)
	require.Len(t, events, 1)
	assert.Equal(t, int64(3), events[0].Seq)
	assert.False(t, events[0].Timestamp.IsZero())

	assert.Len(t, bus.Since("", 0), 3)
}

func TestEventBus_CapsHistory(t *testing.T) {
	bus := NewEventBus(2)
	bus.Publish(StatusEvent{Message: "1"})
	bus.Publish(StatusEvent{Message: "2"})
	bus.Publish(StatusEvent{Message: "3"})

	events := bus.Since("", 0)
	require.Len(t, events, 2)
	assert.Equal(t, "2", events[0].Message)
	assert.Equal(t, "3", events[1].Message)
}

func TestEventBus_Subscribe(t *testing.T) {
	bus := NewEventBus(10)
	ch, unsubscribe := bus.Subscribe("job-1", 4)

	bus.PublishStatus(context.Background(), StatusEvent{JobID: "other", Status: models.JobStatusProcessing})
	bus.PublishStatus(context.Background(), StatusEvent{JobID: "job-1", Status: models.JobStatusDone, Progress: 100})

	select {
	case e := <-ch:
		assert.Equal(t, "job-1", e.JobID)
		assert.True(t, e.Terminal())
	case <-time.After(time.Second):
		t.Fatal("no event delivered")
	}

	unsubscribe()
	unsubscribe()

	_, open := <-ch
	assert.False(t, open)
}

func TestEventBus_SlowSubscriberDoesNotBlock(t *testing.T) {
	bus := NewEventBus(10)
	_, unsubscribe := bus.Subscribe("job-1", 1)
	defer unsubscribe()

	done := make(chan struct{})
	go func() {
		for i := 0; i < 5; i++ {
			bus.Publish(StatusEvent{JobID: "job-1"})
		}
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("publisher blocked on a full subscriber")
	}
}

type recorder struct {
	events []StatusEvent
}

func (r *recorder) PublishStatus(_ context.Context, e StatusEvent) {
	r.events = append(r.events, e)
}

func TestMulti(t *testing.T) {
	a, b := &recorder{}, &recorder{}
	m := Multi{a, nil, b, LogNotifier{}}

	m.PublishStatus(context.Background(), StatusEvent{JobID: "j", Status: models.JobStatusError, ErrorKind: "storage"})

	assert.Len(t, a.events, 1)
	assert.Len(t, b.events, 1)
}
