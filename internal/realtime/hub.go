package realtime

import (
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"farm-price-alerts/internal/metrics"
)

// Event is the payload pushed to a user's active sessions when an alert
// fires. Delivery is at-most-once; the durable notification record is
// the fallback for anything missed.
type Event struct {
	NotificationID uuid.UUID       `json:"notificationId"`
	AlertID        uuid.UUID       `json:"alertId"`
	CropType       string          `json:"cropType"`
	Location       string          `json:"location"`
	Threshold      decimal.Decimal `json:"threshold"`
	CurrentPrice   decimal.Decimal `json:"currentPrice"`
	PercentChange  decimal.Decimal `json:"percentChange"`
	Title          string          `json:"title"`
	Message        string          `json:"message"`
	Timestamp      time.Time       `json:"timestamp"`
}

const subscriberBuffer = 16

// Subscriber receives events addressed to one user on one session.
type Subscriber struct {
	userID string
	ch     chan Event
}

// Events exposes the subscriber's delivery channel.
func (s *Subscriber) Events() <-chan Event {
	return s.ch
}

// Hub fans events out to per-user subscriber channels. Sends never
// block: a subscriber whose buffer is full misses the event and is
// expected to reconcile from the durable store.
type Hub struct {
	mu     sync.RWMutex
	subs   map[string]map[*Subscriber]struct{}
	logger zerolog.Logger
}

// NewHub constructs an empty hub.
func NewHub(logger zerolog.Logger) *Hub {
	return &Hub{
		subs:   make(map[string]map[*Subscriber]struct{}),
		logger: logger.With().Str("component", "realtime_hub").Logger(),
	}
}

// Subscribe registers a new session channel for the user.
func (h *Hub) Subscribe(userID string) *Subscriber {
	sub := &Subscriber{userID: userID, ch: make(chan Event, subscriberBuffer)}

	h.mu.Lock()
	defer h.mu.Unlock()
	if h.subs[userID] == nil {
		h.subs[userID] = make(map[*Subscriber]struct{})
	}
	h.subs[userID][sub] = struct{}{}

	h.logger.Debug().Str("user_id", userID).Int("sessions", len(h.subs[userID])).Msg("session subscribed")
	return sub
}

// Unsubscribe removes a session channel; safe to call twice.
func (h *Hub) Unsubscribe(sub *Subscriber) {
	if sub == nil {
		return
	}

	h.mu.Lock()
	defer h.mu.Unlock()
	sessions, ok := h.subs[sub.userID]
	if !ok {
		return
	}
	if _, ok := sessions[sub]; !ok {
		return
	}
	delete(sessions, sub)
	if len(sessions) == 0 {
		delete(h.subs, sub.userID)
	}
	close(sub.ch)
}

// Publish delivers the event to every active session of the user and
// returns how many sessions received it. Zero is normal when the user
// has no connected session.
func (h *Hub) Publish(userID string, event Event) int {
	h.mu.RLock()
	defer h.mu.RUnlock()

	delivered := 0
	for sub := range h.subs[userID] {
		select {
		case sub.ch <- event:
			delivered++
		default:
			h.logger.Warn().Str("user_id", userID).Msg("subscriber buffer full, event dropped")
		}
	}

	if delivered > 0 {
		metrics.PushDelivered.Add(float64(delivered))
	} else {
		metrics.PushFailed.Inc()
	}
	return delivered
}
