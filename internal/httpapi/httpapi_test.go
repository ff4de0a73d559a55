package httpapi

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"farm-price-alerts/internal/market"
	"farm-price-alerts/internal/storage"
)

type fakeNotificationStore struct {
	storage.NotificationStore
	notifications []market.Notification
}

func (f *fakeNotificationStore) ListNotifications(ctx context.Context, ownerID string, status market.NotificationStatus, limit, offset int) ([]market.Notification, error) {
	matched := make([]market.Notification, 0)
	for _, n := range f.notifications {
		if n.OwnerID != ownerID {
			continue
		}
		if status != "" && n.Status != status {
			continue
		}
		matched = append(matched, n)
	}
	if offset >= len(matched) {
		return nil, nil
	}
	matched = matched[offset:]
	if limit > 0 && len(matched) > limit {
		matched = matched[:limit]
	}
	return matched, nil
}

func (f *fakeNotificationStore) MarkNotificationsRead(ctx context.Context, ownerID string, ids []uuid.UUID) (int64, error) {
	return f.transition(ownerID, ids, market.NotificationRead), nil
}

func (f *fakeNotificationStore) DismissNotifications(ctx context.Context, ownerID string, ids []uuid.UUID) (int64, error) {
	return f.transition(ownerID, ids, market.NotificationDismissed), nil
}

func (f *fakeNotificationStore) transition(ownerID string, ids []uuid.UUID, to market.NotificationStatus) int64 {
	requested := make(map[uuid.UUID]struct{}, len(ids))
	for _, id := range ids {
		requested[id] = struct{}{}
	}

	var updated int64
	for i := range f.notifications {
		n := &f.notifications[i]
		if _, ok := requested[n.ID]; !ok {
			continue
		}
		if n.OwnerID != ownerID || n.Status != market.NotificationPending {
			continue
		}
		n.Status = to
		updated++
	}
	return updated
}

type fakeAlertStore struct {
	storage.AlertStore
	alerts []market.Alert
}

func (f *fakeAlertStore) CreateAlert(ctx context.Context, alert market.Alert) (market.Alert, error) {
	for _, existing := range f.alerts {
		if existing.OwnerID == alert.OwnerID &&
			existing.CropType == alert.CropType &&
			existing.Location == alert.Location &&
			existing.Quality == alert.Quality &&
			existing.Type == alert.Type {
			return market.Alert{}, storage.ErrDuplicateAlert
		}
	}
	alert.ID = uuid.Must(uuid.NewV7())
	alert.CreatedAt = time.Now().UTC()
	f.alerts = append(f.alerts, alert)
	return alert, nil
}

func (f *fakeAlertStore) ListAlertsByOwner(ctx context.Context, ownerID string) ([]market.Alert, error) {
	owned := make([]market.Alert, 0)
	for _, a := range f.alerts {
		if a.OwnerID == ownerID {
			owned = append(owned, a)
		}
	}
	return owned, nil
}

func (f *fakeAlertStore) SetAlertActive(ctx context.Context, ownerID string, id uuid.UUID, active bool) error {
	for i := range f.alerts {
		if f.alerts[i].ID == id && f.alerts[i].OwnerID == ownerID {
			f.alerts[i].IsActive = active
			return nil
		}
	}
	return storage.ErrNotFound
}

func (f *fakeAlertStore) DeleteAlert(ctx context.Context, ownerID string, id uuid.UUID) error {
	for i := range f.alerts {
		if f.alerts[i].ID == id && f.alerts[i].OwnerID == ownerID {
			f.alerts = append(f.alerts[:i], f.alerts[i+1:]...)
			return nil
		}
	}
	return storage.ErrNotFound
}

type fakeObservationStore struct {
	storage.ObservationStore
	observations []market.Observation
}

func (f *fakeObservationStore) ListRecentApproved(ctx context.Context, filter storage.ObservationFilter) ([]market.Observation, error) {
	return f.observations, nil
}

type fakeChecker struct {
	fired int
	err   error
}

func (f *fakeChecker) CheckNow(ctx context.Context) (int, error) {
	return f.fired, f.err
}

func testNotification(owner string, status market.NotificationStatus) market.Notification {
	now := time.Now().UTC()
	return market.Notification{
		ID:             uuid.Must(uuid.NewV7()),
		AlertID:        uuid.Must(uuid.NewV7()),
		OwnerID:        owner,
		Title:          "Price Increase - maize in Kampala",
		Message:        "maize prices have increased by 15.0% in Kampala.",
		AlertType:      market.AlertPriceIncrease,
		CropType:       "maize",
		Location:       "Kampala",
		OldPrice:       decimal.NewFromInt(1000),
		NewPrice:       decimal.NewFromInt(1150),
		PriceChangePct: decimal.NewFromInt(15),
		Unit:           "kg",
		ObservedAt:     now,
		Status:         status,
		CreatedAt:      now,
	}
}

func newTestServer(alerts *fakeAlertStore, observations *fakeObservationStore, notifications *fakeNotificationStore, checker Checker) *Server {
	if alerts == nil {
		alerts = &fakeAlertStore{}
	}
	if observations == nil {
		observations = &fakeObservationStore{}
	}
	if notifications == nil {
		notifications = &fakeNotificationStore{}
	}
	return New(alerts, observations, notifications, nil, checker, time.Minute, zerolog.Nop())
}

func doRequest(t *testing.T, srv *Server, method, path, user string, body any) *httptest.ResponseRecorder {
	t.Helper()

	var reader *bytes.Reader
	if body != nil {
		encoded, err := json.Marshal(body)
		if err != nil {
			t.Fatalf("marshal body: %v", err)
		}
		reader = bytes.NewReader(encoded)
	} else {
		reader = bytes.NewReader(nil)
	}

	req := httptest.NewRequest(method, path, reader)
	if user != "" {
		req.Header.Set("X-User-ID", user)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	rec := httptest.NewRecorder()
	srv.Router().ServeHTTP(rec, req)
	return rec
}

func TestAPIRequiresIdentity(t *testing.T) {
	srv := newTestServer(nil, nil, nil, nil)

	rec := doRequest(t, srv, http.MethodGet, "/api/notifications", "", nil)
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401 without identity, got %d", rec.Code)
	}
}

func TestHealthz(t *testing.T) {
	srv := newTestServer(nil, nil, nil, nil)

	rec := doRequest(t, srv, http.MethodGet, "/healthz", "", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
}

func TestListNotificationsFiltersByStatus(t *testing.T) {
	notifications := &fakeNotificationStore{notifications: []market.Notification{
		testNotification("farmer-1", market.NotificationPending),
		testNotification("farmer-1", market.NotificationRead),
		testNotification("farmer-2", market.NotificationPending),
	}}
	srv := newTestServer(nil, nil, notifications, nil)

	rec := doRequest(t, srv, http.MethodGet, "/api/notifications?status=pending", "farmer-1", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}

	var payload struct {
		Notifications []notificationView `json:"notifications"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &payload); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if len(payload.Notifications) != 1 {
		t.Fatalf("expected only farmer-1's pending notification, got %d", len(payload.Notifications))
	}
	if payload.Notifications[0].Status != "PENDING" {
		t.Fatalf("unexpected status %s", payload.Notifications[0].Status)
	}
}

func TestListNotificationsRejectsUnknownStatus(t *testing.T) {
	srv := newTestServer(nil, nil, nil, nil)

	rec := doRequest(t, srv, http.MethodGet, "/api/notifications?status=archived", "farmer-1", nil)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 for unknown status, got %d", rec.Code)
	}
}

func TestMarkReadUpdatesOnlyOwnedSubset(t *testing.T) {
	mine1 := testNotification("farmer-1", market.NotificationPending)
	mine2 := testNotification("farmer-1", market.NotificationPending)
	theirs := testNotification("farmer-2", market.NotificationPending)
	notifications := &fakeNotificationStore{notifications: []market.Notification{mine1, mine2, theirs}}
	srv := newTestServer(nil, nil, notifications, nil)

	body := map[string][]string{"ids": {
		mine1.ID.String(),
		mine2.ID.String(),
		theirs.ID.String(),
		"not-a-uuid",
	}}
	rec := doRequest(t, srv, http.MethodPost, "/api/notifications/read", "farmer-1", body)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}

	var payload struct {
		Updated int64 `json:"updated"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &payload); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if payload.Updated != 2 {
		t.Fatalf("only the two owned notifications should update, got %d", payload.Updated)
	}

	for _, n := range notifications.notifications {
		if n.OwnerID == "farmer-2" && n.Status != market.NotificationPending {
			t.Fatal("non-owned notification must not change")
		}
		if n.OwnerID == "farmer-1" && n.Status != market.NotificationRead {
			t.Fatal("owned notifications should be READ")
		}
	}
}

func TestMarkReadSkipsAlreadyReadRows(t *testing.T) {
	already := testNotification("farmer-1", market.NotificationRead)
	notifications := &fakeNotificationStore{notifications: []market.Notification{already}}
	srv := newTestServer(nil, nil, notifications, nil)

	body := map[string][]string{"ids": {already.ID.String()}}
	rec := doRequest(t, srv, http.MethodPost, "/api/notifications/read", "farmer-1", body)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}

	var payload struct {
		Updated int64 `json:"updated"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &payload); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	// Only PENDING rows transition; an owned but already-read id counts
	// as not updated.
	if payload.Updated != 0 {
		t.Fatalf("re-marking a read notification should update 0 rows, got %d", payload.Updated)
	}
}

func TestDismissNotifications(t *testing.T) {
	mine := testNotification("farmer-1", market.NotificationPending)
	notifications := &fakeNotificationStore{notifications: []market.Notification{mine}}
	srv := newTestServer(nil, nil, notifications, nil)

	body := map[string][]string{"ids": {mine.ID.String()}}
	rec := doRequest(t, srv, http.MethodPost, "/api/notifications/dismiss", "farmer-1", body)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	if notifications.notifications[0].Status != market.NotificationDismissed {
		t.Fatalf("expected DISMISSED, got %s", notifications.notifications[0].Status)
	}
}

func TestCreateAlert(t *testing.T) {
	alerts := &fakeAlertStore{}
	srv := newTestServer(alerts, nil, nil, nil)

	body := map[string]any{
		"cropType":  "maize",
		"location":  "Kampala",
		"alertType": "PRICE_INCREASE",
		"frequency": "IMMEDIATE",
		"threshold": 10,
	}
	rec := doRequest(t, srv, http.MethodPost, "/api/alerts", "farmer-1", body)
	if rec.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d: %s", rec.Code, rec.Body.String())
	}

	var view alertView
	if err := json.Unmarshal(rec.Body.Bytes(), &view); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if !view.IsActive {
		t.Fatal("new alerts should start active")
	}

	// An identical subscription conflicts.
	rec = doRequest(t, srv, http.MethodPost, "/api/alerts", "farmer-1", body)
	if rec.Code != http.StatusConflict {
		t.Fatalf("expected 409 for duplicate subscription, got %d", rec.Code)
	}

	// A different owner may hold the same subscription.
	rec = doRequest(t, srv, http.MethodPost, "/api/alerts", "farmer-2", body)
	if rec.Code != http.StatusCreated {
		t.Fatalf("expected 201 for another owner, got %d", rec.Code)
	}
}

func TestCreateAlertValidation(t *testing.T) {
	srv := newTestServer(nil, nil, nil, nil)

	cases := []struct {
		name string
		body map[string]any
	}{
		{"unknown alert type", map[string]any{
			"cropType": "maize", "location": "Kampala",
			"alertType": "PRICE_ROCKET", "frequency": "IMMEDIATE", "threshold": 10,
		}},
		{"unknown frequency", map[string]any{
			"cropType": "maize", "location": "Kampala",
			"alertType": "PRICE_INCREASE", "frequency": "HOURLY", "threshold": 10,
		}},
		{"threshold above 100", map[string]any{
			"cropType": "maize", "location": "Kampala",
			"alertType": "PRICE_INCREASE", "frequency": "IMMEDIATE", "threshold": 150,
		}},
		{"zero threshold", map[string]any{
			"cropType": "maize", "location": "Kampala",
			"alertType": "PRICE_INCREASE", "frequency": "IMMEDIATE", "threshold": 0,
		}},
		{"missing crop", map[string]any{
			"location":  "Kampala",
			"alertType": "PRICE_INCREASE", "frequency": "IMMEDIATE", "threshold": 10,
		}},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			rec := doRequest(t, srv, http.MethodPost, "/api/alerts", "farmer-1", tc.body)
			if rec.Code != http.StatusBadRequest {
				t.Fatalf("expected 400, got %d: %s", rec.Code, rec.Body.String())
			}
		})
	}
}

func TestToggleAlertOwnership(t *testing.T) {
	owned := market.Alert{
		ID: uuid.Must(uuid.NewV7()), OwnerID: "farmer-1",
		CropType: "maize", Location: "Kampala",
		Type: market.AlertPriceIncrease, Frequency: market.FrequencyImmediate,
		Threshold: decimal.NewFromInt(10), IsActive: true,
	}
	alerts := &fakeAlertStore{alerts: []market.Alert{owned}}
	srv := newTestServer(alerts, nil, nil, nil)

	rec := doRequest(t, srv, http.MethodPatch, "/api/alerts/"+owned.ID.String(), "farmer-1", map[string]bool{"isActive": false})
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}
	if alerts.alerts[0].IsActive {
		t.Fatal("alert should be paused")
	}

	// Someone else's alert reads as absent.
	rec = doRequest(t, srv, http.MethodPatch, "/api/alerts/"+owned.ID.String(), "farmer-2", map[string]bool{"isActive": true})
	if rec.Code != http.StatusNotFound {
		t.Fatalf("expected 404 for non-owned alert, got %d", rec.Code)
	}
}

func TestDeleteAlert(t *testing.T) {
	owned := market.Alert{
		ID: uuid.Must(uuid.NewV7()), OwnerID: "farmer-1",
		CropType: "maize", Location: "Kampala",
		Type: market.AlertPriceIncrease, Frequency: market.FrequencyImmediate,
		Threshold: decimal.NewFromInt(10), IsActive: true,
	}
	alerts := &fakeAlertStore{alerts: []market.Alert{owned}}
	srv := newTestServer(alerts, nil, nil, nil)

	rec := doRequest(t, srv, http.MethodDelete, "/api/alerts/"+owned.ID.String(), "farmer-1", nil)
	if rec.Code != http.StatusNoContent {
		t.Fatalf("expected 204, got %d", rec.Code)
	}
	if len(alerts.alerts) != 0 {
		t.Fatal("alert should be gone")
	}
}

func TestCheckNowEndpoint(t *testing.T) {
	srv := newTestServer(nil, nil, nil, &fakeChecker{fired: 3})

	rec := doRequest(t, srv, http.MethodPost, "/api/alerts/check", "farmer-1", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}

	var payload struct {
		Fired int `json:"fired"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &payload); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if payload.Fired != 3 {
		t.Fatalf("expected 3 fired, got %d", payload.Fired)
	}
}

func TestCheckNowWithoutCheckerUnavailable(t *testing.T) {
	srv := newTestServer(nil, nil, nil, nil)

	rec := doRequest(t, srv, http.MethodPost, "/api/alerts/check", "farmer-1", nil)
	if rec.Code != http.StatusServiceUnavailable {
		t.Fatalf("expected 503 without evaluation service, got %d", rec.Code)
	}
}

func TestListMarketPrices(t *testing.T) {
	observations := &fakeObservationStore{observations: []market.Observation{{
		ID:            uuid.Must(uuid.NewV7()),
		CropType:      "maize",
		PricePerUnit:  decimal.NewFromInt(1150),
		Unit:          "kg",
		Quality:       market.QualityStandard,
		Location:      "Kampala",
		EffectiveDate: time.Now().UTC(),
		Status:        market.ObservationApproved,
	}}}
	srv := newTestServer(nil, observations, nil, nil)

	rec := doRequest(t, srv, http.MethodGet, "/api/market-prices?crop=maize", "farmer-1", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}

	var payload struct {
		Prices []observationView `json:"prices"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &payload); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if len(payload.Prices) != 1 || payload.Prices[0].CropType != "maize" {
		t.Fatalf("unexpected prices payload: %+v", payload.Prices)
	}
}
