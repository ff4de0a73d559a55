package realtime

import (
	"testing"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

func TestHubPublishReachesAllSessions(t *testing.T) {
	hub := NewHub(zerolog.Nop())

	first := hub.Subscribe("farmer-1")
	second := hub.Subscribe("farmer-1")
	other := hub.Subscribe("farmer-2")

	event := Event{NotificationID: uuid.Must(uuid.NewV7()), CropType: "Maize"}
	if delivered := hub.Publish("farmer-1", event); delivered != 2 {
		t.Fatalf("expected delivery to 2 sessions, got %d", delivered)
	}

	for _, sub := range []*Subscriber{first, second} {
		select {
		case got := <-sub.Events():
			if got.CropType != "Maize" {
				t.Fatalf("unexpected event payload: %+v", got)
			}
		default:
			t.Fatal("subscriber did not receive the event")
		}
	}

	select {
	case <-other.Events():
		t.Fatal("event leaked to another user's session")
	default:
	}
}

func TestHubPublishWithoutSubscribers(t *testing.T) {
	hub := NewHub(zerolog.Nop())
	if delivered := hub.Publish("nobody", Event{}); delivered != 0 {
		t.Fatalf("expected 0 deliveries, got %d", delivered)
	}
}

func TestHubUnsubscribeClosesChannel(t *testing.T) {
	hub := NewHub(zerolog.Nop())
	sub := hub.Subscribe("farmer-1")

	hub.Unsubscribe(sub)
	hub.Unsubscribe(sub) // second call is a no-op

	if _, open := <-sub.Events(); open {
		t.Fatal("channel should be closed after unsubscribe")
	}

	if delivered := hub.Publish("farmer-1", Event{}); delivered != 0 {
		t.Fatalf("expected no delivery after unsubscribe, got %d", delivered)
	}
}

func TestHubDropsWhenBufferFull(t *testing.T) {
	hub := NewHub(zerolog.Nop())
	sub := hub.Subscribe("farmer-1")

	for i := 0; i < subscriberBuffer; i++ {
		if delivered := hub.Publish("farmer-1", Event{}); delivered != 1 {
			t.Fatalf("fill publish %d should deliver", i)
		}
	}

	if delivered := hub.Publish("farmer-1", Event{}); delivered != 0 {
		t.Fatal("publish into a full buffer should drop, not block")
	}

	_ = sub
}
