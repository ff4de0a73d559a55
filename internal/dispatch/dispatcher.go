package dispatch

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"farm-price-alerts/internal/engine"
	"farm-price-alerts/internal/market"
	"farm-price-alerts/internal/metrics"
	"farm-price-alerts/internal/realtime"
	"farm-price-alerts/internal/storage"
)

// Publisher is the realtime fan-out the dispatcher pushes through.
type Publisher interface {
	Publish(userID string, event realtime.Event) int
}

// Dispatcher turns trigger decisions into durable notification records
// and best-effort realtime pushes.
type Dispatcher struct {
	alerts        storage.AlertStore
	notifications storage.NotificationStore
	publisher     Publisher
	logger        zerolog.Logger
}

// New constructs a dispatcher.
func New(alerts storage.AlertStore, notifications storage.NotificationStore, publisher Publisher, logger zerolog.Logger) *Dispatcher {
	return &Dispatcher{
		alerts:        alerts,
		notifications: notifications,
		publisher:     publisher,
		logger:        logger.With().Str("component", "dispatcher").Logger(),
	}
}

// Dispatch claims the trigger, persists the durable record, then pushes.
// The durable write is the source of truth: a failed push degrades to
// pick-up-on-next-poll and never rolls the record back. A nil
// notification with nil error means another pass already handled the
// same fire.
func (d *Dispatcher) Dispatch(ctx context.Context, trigger engine.Trigger) (*market.Notification, error) {
	now := time.Now().UTC()

	claimed, err := d.alerts.ClaimAlertTrigger(ctx, trigger.Alert.ID, trigger.PrevTriggeredAt, now)
	if err != nil {
		return nil, fmt.Errorf("claim trigger: %w", err)
	}
	if !claimed {
		d.logger.Debug().
			Stringer("alert_id", trigger.Alert.ID).
			Msg("trigger already claimed by a concurrent pass")
		return nil, nil
	}

	notification := buildNotification(trigger)

	persisted, err := d.notifications.InsertNotification(ctx, notification)
	if err != nil {
		if errors.Is(err, storage.ErrAlreadyDispatched) {
			d.logger.Debug().
				Stringer("alert_id", trigger.Alert.ID).
				Time("observed_at", trigger.ObservedAt).
				Msg("notification for this price event already exists")
			return nil, nil
		}
		return nil, fmt.Errorf("persist notification: %w", err)
	}

	metrics.TriggersFired.Inc()
	metrics.NotificationsPersisted.Inc()

	if d.publisher != nil {
		delivered := d.publisher.Publish(persisted.OwnerID, realtime.Event{
			NotificationID: persisted.ID,
			AlertID:        persisted.AlertID,
			CropType:       persisted.CropType,
			Location:       persisted.Location,
			Threshold:      trigger.Alert.Threshold,
			CurrentPrice:   persisted.NewPrice,
			PercentChange:  persisted.PriceChangePct,
			Title:          persisted.Title,
			Message:        persisted.Message,
			Timestamp:      persisted.CreatedAt,
		})
		if delivered == 0 {
			d.logger.Debug().
				Str("owner_id", persisted.OwnerID).
				Msg("no active session for realtime push; durable record remains")
		}
	}

	d.logger.Info().
		Stringer("alert_id", persisted.AlertID).
		Str("owner_id", persisted.OwnerID).
		Str("crop", persisted.CropType).
		Str("change_pct", persisted.PriceChangePct.StringFixed(1)).
		Msg("alert dispatched")

	return &persisted, nil
}

func buildNotification(trigger engine.Trigger) market.Notification {
	alert := trigger.Alert
	return market.Notification{
		ID:             uuid.Must(uuid.NewV7()),
		AlertID:        alert.ID,
		OwnerID:        alert.OwnerID,
		Title:          renderTitle(alert),
		Message:        renderMessage(trigger),
		AlertType:      alert.Type,
		CropType:       alert.CropType,
		Location:       alert.Location,
		OldPrice:       trigger.Previous.PricePerUnit,
		NewPrice:       trigger.Latest.PricePerUnit,
		PriceChangePct: trigger.PercentChange,
		Unit:           trigger.Latest.Unit,
		ObservedAt:     trigger.ObservedAt,
		Status:         market.NotificationPending,
	}
}

func renderTitle(alert market.Alert) string {
	return fmt.Sprintf("%s - %s in %s", alert.Type.Label(), alert.CropType, alert.Location)
}

func renderMessage(trigger engine.Trigger) string {
	return fmt.Sprintf(
		"%s prices have %s by %s%% in %s. Price changed from %s to %s per %s.",
		trigger.Alert.CropType,
		directionWord(trigger.Alert.Type),
		trigger.PercentChange.Abs().StringFixed(1),
		trigger.Alert.Location,
		trigger.Previous.PricePerUnit.String(),
		trigger.Latest.PricePerUnit.String(),
		trigger.Latest.Unit,
	)
}

// directionWord asserts a direction only for the directional alert
// types; everything else reads as a neutral "changed".
func directionWord(t market.AlertType) string {
	switch t {
	case market.AlertPriceIncrease:
		return "increased"
	case market.AlertPriceDecrease:
		return "decreased"
	default:
		return "changed"
	}
}
