package audio

import (
	"testing"
)

func TestEventBusFanout(t *testing.T) {
	b := newEventBus()
	ch1, cancel1 := b.subscribe()
	defer cancel1()
	ch2, cancel2 := b.subscribe()
	defer cancel2()

	b.publish(Event{Type: EventStateChanged, State: StateRecording})

	for i, ch := range []<-chan Event{ch1, ch2} {
		select {
		case ev := <-ch:
			if ev.Type != EventStateChanged {
				t.Errorf("Subscriber %d: expected type %s, got %s", i, EventStateChanged, ev.Type)
			}
			if ev.State != StateRecording {
				t.Errorf("Subscriber %d: expected state %s, got %s", i, StateRecording, ev.State)
			}
		default:
			t.Errorf("Subscriber %d received no event", i)
		}
	}
}

func TestEventBusCancel(t *testing.T) {
	b := newEventBus()
	ch, cancel := b.subscribe()

	cancel()
	if _, ok := <-ch; ok {
		t.Error("Expected channel to be closed after cancel")
	}

	// A second cancel and a publish into an empty bus must both be safe.
	cancel()
	b.publish(Event{Type: EventError, Message: "late"})
}

func TestEventBusDropsWhenSubscriberFull(t *testing.T) {
	b := newEventBus()
	ch, cancel := b.subscribe()
	defer cancel()

	for i := 0; i < subscriberBuffer+8; i++ {
		b.publish(Event{Type: EventDurationChanged, Duration: int64(i)})
	}

	received := 0
	for {
		select {
		case ev := <-ch:
			if ev.Duration != int64(received) {
				t.Errorf("Expected event %d in order, got %d", received, ev.Duration)
			}
			received++
		default:
			if received != subscriberBuffer {
				t.Errorf("Expected %d buffered events, got %d", subscriberBuffer, received)
			}
			return
		}
	}
}
