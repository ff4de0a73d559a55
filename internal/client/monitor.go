package client

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"farm-price-alerts/internal/realtime"
)

// State is the monitor lifecycle state.
type State string

const (
	StateDisconnected State = "DISCONNECTED"
	StateConnecting   State = "CONNECTING"
	StateIdle         State = "IDLE"
	StateMonitoring   State = "MONITORING"
)

// ErrNotConnected is returned when an operation requires an established
// session and there is none.
var ErrNotConnected = errors.New("client: not connected")

// API is the subset of the server API the monitor needs.
type API interface {
	Notifications(ctx context.Context, status string, limit, offset int) ([]Notification, error)
	CheckNow(ctx context.Context) (int, error)
}

// DialFunc opens a realtime event subscription.
type DialFunc func(ctx context.Context) (EventSource, error)

// memoryLimit bounds the in-memory notification list the same way the
// on-disk cache is bounded.
const memoryLimit = 50

// Monitor maintains one user's notification session: a realtime
// subscription, a periodic reconcile poll, and a bounded local history.
type Monitor struct {
	api    API
	dial   DialFunc
	cache  *Cache
	poll   time.Duration
	logger zerolog.Logger

	// OnNotify, when set, is invoked for every notification that arrives
	// over the realtime stream. It is called outside the monitor lock.
	OnNotify func(Notification)

	mu            sync.Mutex
	state         State
	stream        EventSource
	stopWatch     context.CancelFunc
	watchDone     chan struct{}
	notifications []Notification
	lastUpdate    time.Time
}

// NewMonitor constructs a disconnected monitor. cache may be nil, in
// which case no local history is persisted.
func NewMonitor(api API, dial DialFunc, cache *Cache, poll time.Duration, logger zerolog.Logger) *Monitor {
	if poll <= 0 {
		poll = time.Minute
	}
	return &Monitor{
		api:    api,
		dial:   dial,
		cache:  cache,
		poll:   poll,
		logger: logger.With().Str("component", "client_monitor").Logger(),
		state:  StateDisconnected,
	}
}

// Connect establishes the realtime subscription and reconciles local
// state against the server. It is a no-op when already connected.
func (m *Monitor) Connect(ctx context.Context, userID string) error {
	if userID == "" {
		return errors.New("client: user id is required")
	}

	m.mu.Lock()
	if m.state != StateDisconnected {
		m.mu.Unlock()
		return nil
	}
	m.state = StateConnecting
	m.mu.Unlock()

	stream, err := m.dial(ctx)
	if err != nil {
		m.setState(StateDisconnected)
		return err
	}

	// Server state is authoritative; replace whatever the previous
	// session left behind.
	fetched, err := m.api.Notifications(ctx, "", memoryLimit, 0)
	if err != nil {
		_ = stream.Close()
		m.setState(StateDisconnected)
		return err
	}

	m.mu.Lock()
	// Close may have run while the fetch was in flight; installing the
	// session now would leak it past the teardown.
	if m.state != StateConnecting {
		m.mu.Unlock()
		_ = stream.Close()
		return ErrNotConnected
	}
	m.stream = stream
	m.notifications = fetched
	m.lastUpdate = time.Now()
	m.state = StateIdle
	m.mu.Unlock()

	m.persist(fetched)
	m.logger.Info().Int("notifications", len(fetched)).Msg("connected")
	return nil
}

// StartMonitoring begins consuming realtime events and polling for
// missed notifications. Calling it while already monitoring is a no-op.
func (m *Monitor) StartMonitoring() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	switch m.state {
	case StateMonitoring:
		return nil
	case StateIdle:
	default:
		return ErrNotConnected
	}

	ctx, cancel := context.WithCancel(context.Background())
	m.stopWatch = cancel
	m.watchDone = make(chan struct{})
	m.state = StateMonitoring
	go m.watch(ctx, m.stream.Events(), m.watchDone)
	return nil
}

// StopMonitoring cancels the watch loop immediately. Safe to call when
// not monitoring. The realtime subscription stays open so monitoring
// can resume without re-subscribing.
func (m *Monitor) StopMonitoring() {
	m.mu.Lock()
	if m.state != StateMonitoring {
		m.mu.Unlock()
		return
	}
	cancel, done := m.stopWatch, m.watchDone
	m.stopWatch, m.watchDone = nil, nil
	m.state = StateIdle
	m.mu.Unlock()

	cancel()
	<-done
}

// ManualCheck requests an immediate server-side evaluation pass. Errors
// are logged, never surfaced; the periodic poll will pick up whatever a
// failed check missed.
func (m *Monitor) ManualCheck(ctx context.Context) {
	fired, err := m.api.CheckNow(ctx)
	if err != nil {
		m.logger.Warn().Err(err).Msg("manual check failed")
		return
	}
	m.logger.Info().Int("fired", fired).Msg("manual check complete")
	m.refresh(ctx)
}

// MarkAsRead flips the local read flag for one notification. The
// server-side read state is updated through the API separately.
func (m *Monitor) MarkAsRead(id string) {
	m.mu.Lock()
	for i := range m.notifications {
		if m.notifications[i].ID == id {
			m.notifications[i].Read = true
			break
		}
	}
	m.mu.Unlock()

	if m.cache != nil {
		if err := m.cache.MarkRead(id); err != nil {
			m.logger.Warn().Err(err).Str("id", id).Msg("cache mark read failed")
		}
	}
}

// Notifications returns a copy of the in-memory list, newest first.
func (m *Monitor) Notifications() []Notification {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]Notification, len(m.notifications))
	copy(out, m.notifications)
	return out
}

// LastUpdate reports when the list last changed.
func (m *Monitor) LastUpdate() time.Time {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.lastUpdate
}

// State reports the current lifecycle state.
func (m *Monitor) State() State {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state
}

// StoredNotifications reads the persisted local history.
func (m *Monitor) StoredNotifications() ([]Notification, error) {
	if m.cache == nil {
		return nil, nil
	}
	return m.cache.Recent(0)
}

// ClearStoredNotifications empties the persisted local history.
func (m *Monitor) ClearStoredNotifications() error {
	if m.cache == nil {
		return nil
	}
	return m.cache.Clear()
}

// Close stops monitoring and tears down the session.
func (m *Monitor) Close() error {
	m.StopMonitoring()

	m.mu.Lock()
	stream := m.stream
	m.stream = nil
	m.state = StateDisconnected
	m.mu.Unlock()

	if stream != nil {
		return stream.Close()
	}
	return nil
}

func (m *Monitor) watch(ctx context.Context, events <-chan realtime.Event, done chan struct{}) {
	defer close(done)

	ticker := time.NewTicker(m.poll)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case event, ok := <-events:
			if !ok {
				m.logger.Warn().Msg("event stream closed")
				return
			}
			m.handleEvent(event)
		case <-ticker.C:
			m.refresh(ctx)
		}
	}
}

func (m *Monitor) handleEvent(event realtime.Event) {
	n := Notification{
		ID:             event.NotificationID.String(),
		AlertID:        event.AlertID.String(),
		Title:          event.Title,
		Message:        event.Message,
		CropType:       event.CropType,
		Location:       event.Location,
		PriceChangePct: event.PercentChange.String(),
		Status:         "PENDING",
		CreatedAt:      event.Timestamp.UTC().Format(time.RFC3339),
	}

	m.mu.Lock()
	m.notifications = append([]Notification{n}, m.notifications...)
	if len(m.notifications) > memoryLimit {
		m.notifications = m.notifications[:memoryLimit]
	}
	m.lastUpdate = time.Now()
	notify := m.OnNotify
	m.mu.Unlock()

	m.persist([]Notification{n})
	if notify != nil {
		notify(n)
	}
}

// refresh re-fetches the list from the server, catching anything the
// realtime stream dropped.
func (m *Monitor) refresh(ctx context.Context) {
	fetched, err := m.api.Notifications(ctx, "", memoryLimit, 0)
	if err != nil {
		m.logger.Warn().Err(err).Msg("notification refresh failed")
		return
	}

	m.mu.Lock()
	m.notifications = fetched
	m.lastUpdate = time.Now()
	m.mu.Unlock()

	m.persist(fetched)
}

func (m *Monitor) persist(notifications []Notification) {
	if m.cache == nil {
		return
	}
	for _, n := range notifications {
		if err := m.cache.Put(n); err != nil {
			m.logger.Warn().Err(err).Str("id", n.ID).Msg("cache put failed")
			return
		}
	}
}

func (m *Monitor) setState(s State) {
	m.mu.Lock()
	m.state = s
	m.mu.Unlock()
}
