package engine

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"farm-price-alerts/internal/market"
	"farm-price-alerts/internal/storage"
)

type fakeAlertStore struct {
	storage.AlertStore
	alerts  []market.Alert
	listErr error
}

func (f *fakeAlertStore) ListActiveAlerts(ctx context.Context) ([]market.Alert, error) {
	if f.listErr != nil {
		return nil, f.listErr
	}
	return f.alerts, nil
}

type fakeObservationStore struct {
	storage.ObservationStore
	byCrop map[string][]market.Observation
	errFor map[string]error
}

func (f *fakeObservationStore) ListRecentApproved(ctx context.Context, filter storage.ObservationFilter) ([]market.Observation, error) {
	if err, ok := f.errFor[filter.CropType]; ok {
		return nil, err
	}
	return f.byCrop[filter.CropType], nil
}

func observationPair(crop, location string, previous, latest int64) []market.Observation {
	base := time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC)
	// Newest first, the order the store returns.
	return []market.Observation{
		{
			ID:            uuid.Must(uuid.NewV7()),
			CropType:      crop,
			PricePerUnit:  decimal.NewFromInt(latest),
			Unit:          "kg",
			Quality:       market.QualityStandard,
			Location:      location,
			EffectiveDate: base,
			Status:        market.ObservationApproved,
		},
		{
			ID:            uuid.Must(uuid.NewV7()),
			CropType:      crop,
			PricePerUnit:  decimal.NewFromInt(previous),
			Unit:          "kg",
			Quality:       market.QualityStandard,
			Location:      location,
			EffectiveDate: base.Add(-24 * time.Hour),
			Status:        market.ObservationApproved,
		},
	}
}

func testAlert(crop, location string, alertType market.AlertType, threshold int64) market.Alert {
	return market.Alert{
		ID:        uuid.Must(uuid.NewV7()),
		OwnerID:   "farmer-1",
		CropType:  crop,
		Location:  location,
		Type:      alertType,
		Frequency: market.FrequencyImmediate,
		Threshold: decimal.NewFromInt(threshold),
		IsActive:  true,
	}
}

func newTestEngine(alerts *fakeAlertStore, observations *fakeObservationStore) *Engine {
	return New(alerts, observations, Options{}, zerolog.Nop())
}

func evaluateOne(t *testing.T, alert market.Alert, observations []market.Observation) []Trigger {
	t.Helper()
	eng := newTestEngine(
		&fakeAlertStore{alerts: []market.Alert{alert}},
		&fakeObservationStore{byCrop: map[string][]market.Observation{alert.CropType: observations}},
	)
	triggers, err := eng.EvaluateAll(context.Background(), time.Now().UTC())
	if err != nil {
		t.Fatalf("evaluate: %v", err)
	}
	return triggers
}

func TestIncreaseAlertFiresOnRise(t *testing.T) {
	alert := testAlert("maize", "Kampala", market.AlertPriceIncrease, 10)
	triggers := evaluateOne(t, alert, observationPair("maize", "Kampala", 1000, 1150))

	if len(triggers) != 1 {
		t.Fatalf("expected 1 trigger, got %d", len(triggers))
	}
	if got := triggers[0].PercentChange.StringFixed(1); got != "15.0" {
		t.Fatalf("expected 15.0%% change, got %s", got)
	}
	if !triggers[0].ObservedAt.Equal(triggers[0].Latest.EffectiveDate) {
		t.Fatal("observed_at should be the latest observation's effective date")
	}
}

func TestDecreaseAlertIgnoresRise(t *testing.T) {
	alert := testAlert("maize", "Kampala", market.AlertPriceDecrease, 10)
	triggers := evaluateOne(t, alert, observationPair("maize", "Kampala", 1000, 1150))

	if len(triggers) != 0 {
		t.Fatalf("decrease alert should not fire on a rise, got %d triggers", len(triggers))
	}
}

func TestDecreaseAlertFiresOnDrop(t *testing.T) {
	alert := testAlert("beans", "Mbale", market.AlertPriceDecrease, 1)
	triggers := evaluateOne(t, alert, observationPair("beans", "Mbale", 4200, 4116))

	if len(triggers) != 1 {
		t.Fatalf("expected 1 trigger, got %d", len(triggers))
	}
	if got := triggers[0].PercentChange.StringFixed(1); got != "-2.0" {
		t.Fatalf("expected -2.0%% change, got %s", got)
	}
}

func TestThresholdNotMetStaysSilent(t *testing.T) {
	// A 2% drop against a 5% threshold.
	alert := testAlert("beans", "Mbale", market.AlertPriceDecrease, 5)
	triggers := evaluateOne(t, alert, observationPair("beans", "Mbale", 4200, 4116))

	if len(triggers) != 0 {
		t.Fatalf("2%% drop should not clear a 5%% threshold, got %d triggers", len(triggers))
	}
}

func TestThresholdBoundaryIsInclusive(t *testing.T) {
	// Exactly 10% up against a 10% threshold.
	alert := testAlert("maize", "Kampala", market.AlertPriceIncrease, 10)
	triggers := evaluateOne(t, alert, observationPair("maize", "Kampala", 1000, 1100))

	if len(triggers) != 1 {
		t.Fatalf("change equal to the threshold should fire, got %d triggers", len(triggers))
	}
}

func TestVolatilityAlertFiresBothDirections(t *testing.T) {
	up := testAlert("maize", "Kampala", market.AlertPriceVolatility, 10)
	if got := evaluateOne(t, up, observationPair("maize", "Kampala", 1000, 1150)); len(got) != 1 {
		t.Fatalf("volatility should fire on a rise, got %d triggers", len(got))
	}

	down := testAlert("maize", "Kampala", market.AlertPriceVolatility, 10)
	if got := evaluateOne(t, down, observationPair("maize", "Kampala", 1000, 850)); len(got) != 1 {
		t.Fatalf("volatility should fire on a drop, got %d triggers", len(got))
	}
}

func TestSingleObservationIsSkipped(t *testing.T) {
	alert := testAlert("maize", "Kampala", market.AlertPriceIncrease, 10)
	pair := observationPair("maize", "Kampala", 1000, 1150)
	triggers := evaluateOne(t, alert, pair[:1])

	if len(triggers) != 0 {
		t.Fatalf("one observation is not enough to decide, got %d triggers", len(triggers))
	}
}

func TestZeroPreviousPriceIsSkipped(t *testing.T) {
	alert := testAlert("maize", "Kampala", market.AlertPriceIncrease, 10)
	pair := observationPair("maize", "Kampala", 1000, 1150)
	pair[1].PricePerUnit = decimal.Zero

	triggers := evaluateOne(t, alert, pair)
	if len(triggers) != 0 {
		t.Fatalf("zero previous price must be skipped silently, got %d triggers", len(triggers))
	}
}

func TestFrequencyGate(t *testing.T) {
	asOf := time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC)

	cases := []struct {
		name      string
		frequency market.Frequency
		last      *time.Time
		want      bool
	}{
		{"never triggered is always eligible", market.FrequencyDaily, nil, true},
		{"daily gate closed at 23h", market.FrequencyDaily, timePtr(asOf.Add(-23 * time.Hour)), false},
		{"daily gate open at 25h", market.FrequencyDaily, timePtr(asOf.Add(-25 * time.Hour)), true},
		{"daily gate open at exactly 24h", market.FrequencyDaily, timePtr(asOf.Add(-24 * time.Hour)), true},
		{"immediate never gates", market.FrequencyImmediate, timePtr(asOf.Add(-time.Minute)), true},
		{"weekly gate closed at 6d", market.FrequencyWeekly, timePtr(asOf.Add(-6 * 24 * time.Hour)), false},
		{"monthly gate open at 31d", market.FrequencyMonthly, timePtr(asOf.Add(-31 * 24 * time.Hour)), true},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			alert := testAlert("maize", "Kampala", market.AlertPriceIncrease, 10)
			alert.Frequency = tc.frequency
			alert.LastTriggeredAt = tc.last

			if got := frequencyPermits(alert, asOf); got != tc.want {
				t.Fatalf("frequencyPermits = %v, want %v", got, tc.want)
			}
		})
	}
}

func TestEvaluationIsolatesFailingAlert(t *testing.T) {
	broken := testAlert("coffee", "Gulu", market.AlertPriceIncrease, 10)
	healthy := testAlert("maize", "Kampala", market.AlertPriceIncrease, 10)

	eng := newTestEngine(
		&fakeAlertStore{alerts: []market.Alert{broken, healthy}},
		&fakeObservationStore{
			byCrop: map[string][]market.Observation{"maize": observationPair("maize", "Kampala", 1000, 1150)},
			errFor: map[string]error{"coffee": errors.New("store unavailable")},
		},
	)

	triggers, err := eng.EvaluateAll(context.Background(), time.Now().UTC())
	if err != nil {
		t.Fatalf("evaluate: %v", err)
	}
	if len(triggers) != 1 {
		t.Fatalf("healthy alert should still fire, got %d triggers", len(triggers))
	}
	if triggers[0].Alert.ID != healthy.ID {
		t.Fatal("wrong alert fired")
	}
}

func TestActiveAlertFetchRetriesOnce(t *testing.T) {
	eng := newTestEngine(&fakeAlertStore{listErr: errors.New("down")}, &fakeObservationStore{})

	if _, err := eng.EvaluateAll(context.Background(), time.Now().UTC()); err == nil {
		t.Fatal("persistent alert fetch failure should surface")
	}
}

func timePtr(t time.Time) *time.Time { return &t }
