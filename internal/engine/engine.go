package engine

import (
	"context"
	"time"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"farm-price-alerts/internal/market"
	"farm-price-alerts/internal/metrics"
	"farm-price-alerts/internal/storage"
)

// Trigger is the decision that one alert's conditions are currently met.
// PrevTriggeredAt carries the last_triggered_at value read during
// evaluation so the dispatcher can claim the fire with a compare-and-set.
type Trigger struct {
	Alert           market.Alert
	Previous        market.Observation
	Latest          market.Observation
	PercentChange   decimal.Decimal
	ObservedAt      time.Time
	PrevTriggeredAt *time.Time
}

// Options tune an evaluation pass.
type Options struct {
	// StoreTimeout bounds each store call made during a pass.
	StoreTimeout time.Duration
	// ObservationLimit is how many recent observations to fetch per alert.
	// Two are required for a decision; more are tolerated and ignored.
	ObservationLimit int
}

// Engine scans active alerts against recent approved observations and
// decides which alerts fire.
type Engine struct {
	alerts       storage.AlertStore
	observations storage.ObservationStore
	opts         Options
	logger       zerolog.Logger
}

// New constructs an evaluation engine.
func New(alerts storage.AlertStore, observations storage.ObservationStore, opts Options, logger zerolog.Logger) *Engine {
	if opts.StoreTimeout <= 0 {
		opts.StoreTimeout = 10 * time.Second
	}
	if opts.ObservationLimit < 2 {
		opts.ObservationLimit = 2
	}
	return &Engine{
		alerts:       alerts,
		observations: observations,
		opts:         opts,
		logger:       logger.With().Str("component", "engine").Logger(),
	}
}

// EvaluateAll runs one evaluation pass as of the given instant. Failures
// while evaluating a single alert are logged and isolated; the pass
// continues and returns every trigger it could decide.
func (e *Engine) EvaluateAll(ctx context.Context, asOf time.Time) ([]Trigger, error) {
	alerts, err := e.listActiveAlerts(ctx)
	if err != nil {
		return nil, err
	}

	metrics.EvaluationPasses.Inc()

	triggers := make([]Trigger, 0)
	for _, alert := range alerts {
		select {
		case <-ctx.Done():
			return triggers, ctx.Err()
		default:
		}

		metrics.AlertsEvaluated.Inc()

		trigger, fired, evalErr := e.evaluate(ctx, alert, asOf)
		if evalErr != nil {
			e.logger.Error().Err(evalErr).
				Stringer("alert_id", alert.ID).
				Str("crop", alert.CropType).
				Msg("alert evaluation failed; continuing with remaining alerts")
			continue
		}
		if fired {
			triggers = append(triggers, trigger)
		}
	}

	return triggers, nil
}

func (e *Engine) listActiveAlerts(ctx context.Context) ([]market.Alert, error) {
	alerts, err := e.withTimeoutAlerts(ctx)
	if err == nil {
		return alerts, nil
	}
	e.logger.Warn().Err(err).Msg("active alert fetch failed, retrying once")
	return e.withTimeoutAlerts(ctx)
}

func (e *Engine) withTimeoutAlerts(ctx context.Context) ([]market.Alert, error) {
	ctx, cancel := context.WithTimeout(ctx, e.opts.StoreTimeout)
	defer cancel()
	return e.alerts.ListActiveAlerts(ctx)
}

// evaluate decides a single alert. The bool result distinguishes "fired"
// from the silent outcomes (insufficient data, zero previous price,
// threshold not met, direction mismatch, frequency gate closed).
func (e *Engine) evaluate(ctx context.Context, alert market.Alert, asOf time.Time) (Trigger, bool, error) {
	observations, err := e.recentObservations(ctx, alert)
	if err != nil {
		return Trigger{}, false, err
	}

	if len(observations) < 2 {
		e.logger.Debug().
			Stringer("alert_id", alert.ID).
			Int("observations", len(observations)).
			Msg("insufficient observations, skipping")
		return Trigger{}, false, nil
	}

	latest, previous := observations[0], observations[1]

	change, ok := market.PercentChange(previous.PricePerUnit, latest.PricePerUnit)
	if !ok {
		e.logger.Debug().
			Stringer("alert_id", alert.ID).
			Msg("previous price is zero, skipping")
		return Trigger{}, false, nil
	}

	// Inclusive boundary: a change exactly at the threshold fires.
	if change.Abs().LessThan(alert.Threshold) {
		return Trigger{}, false, nil
	}

	if !directionMatches(alert.Type, change) {
		return Trigger{}, false, nil
	}

	if !frequencyPermits(alert, asOf) {
		e.logger.Debug().
			Stringer("alert_id", alert.ID).
			Str("frequency", string(alert.Frequency)).
			Msg("frequency gate closed, skipping")
		return Trigger{}, false, nil
	}

	return Trigger{
		Alert:           alert,
		Previous:        previous,
		Latest:          latest,
		PercentChange:   change,
		ObservedAt:      latest.EffectiveDate,
		PrevTriggeredAt: alert.LastTriggeredAt,
	}, true, nil
}

func (e *Engine) recentObservations(ctx context.Context, alert market.Alert) ([]market.Observation, error) {
	filter := storage.ObservationFilter{
		CropType: alert.CropType,
		Location: alert.Location,
		Quality:  alert.Quality,
		Limit:    e.opts.ObservationLimit,
	}

	observations, err := e.withTimeoutObservations(ctx, filter)
	if err == nil {
		return observations, nil
	}
	e.logger.Warn().Err(err).
		Stringer("alert_id", alert.ID).
		Msg("observation fetch failed, retrying once")
	return e.withTimeoutObservations(ctx, filter)
}

func (e *Engine) withTimeoutObservations(ctx context.Context, filter storage.ObservationFilter) ([]market.Observation, error) {
	ctx, cancel := context.WithTimeout(ctx, e.opts.StoreTimeout)
	defer cancel()
	return e.observations.ListRecentApproved(ctx, filter)
}

// directionMatches applies the per-type direction policy. Only the
// increase/decrease/volatility types carry real direction semantics;
// the remaining three are placeholders that pass any qualifying change.
func directionMatches(t market.AlertType, change decimal.Decimal) bool {
	switch t {
	case market.AlertPriceIncrease:
		return change.IsPositive()
	case market.AlertPriceDecrease:
		return change.IsNegative()
	default:
		return true
	}
}

// frequencyPermits applies the minimum-gap policy. An alert that has
// never triggered is always eligible.
func frequencyPermits(alert market.Alert, asOf time.Time) bool {
	if alert.LastTriggeredAt == nil {
		return true
	}
	return asOf.Sub(*alert.LastTriggeredAt) >= alert.Frequency.Gap()
}
