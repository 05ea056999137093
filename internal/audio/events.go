package audio

import (
	"sync"

	"github.com/google/uuid"
)

// EventType identifies a recorder notification.
type EventType string

const (
	// EventStateChanged fires after every committed state transition.
	EventStateChanged EventType = "stateChanged"
	// EventDurationChanged fires periodically while recording.
	EventDurationChanged EventType = "durationChanged"
	// EventAudioURLReady fires exactly once per completed stop, after
	// the stateChanged event for the final transition.
	EventAudioURLReady EventType = "audioUrlReady"
	// EventError fires on pipeline errors that abort the session from
	// inside, where no caller is waiting on a return value.
	EventError EventType = "error"
)

// Event is a single recorder notification. Only the fields relevant to
// the Type are populated.
type Event struct {
	Type     EventType `json:"type"`
	State    State     `json:"state,omitempty"`
	Duration int64     `json:"duration,omitempty"` // milliseconds
	Result   *Result   `json:"result,omitempty"`
	Message  string    `json:"message,omitempty"`
}

// subscriberBuffer is the per-subscriber channel depth. A subscriber
// that falls this far behind starts losing events; delivery never
// blocks the recorder.
const subscriberBuffer = 16

// eventBus fans recorder events out to any number of subscribers.
type eventBus struct {
	mu   sync.Mutex
	subs map[uuid.UUID]chan Event
}

func newEventBus() *eventBus {
	return &eventBus{subs: make(map[uuid.UUID]chan Event)}
}

// subscribe registers a new listener and returns its channel together
// with a cancel function. Cancel closes the channel and is safe to call
// more than once.
func (b *eventBus) subscribe() (<-chan Event, func()) {
	b.mu.Lock()
	defer b.mu.Unlock()

	id := uuid.New()
	ch := make(chan Event, subscriberBuffer)
	b.subs[id] = ch

	cancel := func() {
		b.mu.Lock()
		defer b.mu.Unlock()
		if sub, ok := b.subs[id]; ok {
			delete(b.subs, id)
			close(sub)
		}
	}
	return ch, cancel
}

// publish delivers an event to every subscriber without blocking. Full
// subscriber channels drop the event.
func (b *eventBus) publish(ev Event) {
	b.mu.Lock()
	defer b.mu.Unlock()

	for _, ch := range b.subs {
		select {
		case ch <- ev:
		default:
		}
	}
}
