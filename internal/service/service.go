package service

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"farm-price-alerts/internal/dispatch"
	"farm-price-alerts/internal/engine"
	"farm-price-alerts/internal/metrics"
	"farm-price-alerts/internal/scheduler"
	"farm-price-alerts/internal/storage"
)

// Service orchestrates scheduled evaluation and dispatch. Evaluation is
// server-driven: clients are pure subscribers and never own the
// schedule.
type Service struct {
	scheduler  *scheduler.Scheduler
	engine     *engine.Engine
	dispatcher *dispatch.Dispatcher
	logger     zerolog.Logger

	locker  storage.AdvisoryLocker
	lockKey int64
}

// New constructs the evaluation service.
func New(sched *scheduler.Scheduler, eng *engine.Engine, disp *dispatch.Dispatcher, locker storage.AdvisoryLocker, lockKey int64, logger zerolog.Logger) *Service {
	return &Service{
		scheduler:  sched,
		engine:     eng,
		dispatcher: disp,
		logger:     logger.With().Str("component", "service").Logger(),
		locker:     locker,
		lockKey:    lockKey,
	}
}

// Run begins the scheduled evaluation loop.
func (s *Service) Run(ctx context.Context) error {
	if s.scheduler == nil {
		return fmt.Errorf("scheduler not configured")
	}
	return s.scheduler.Run(ctx, s.ProcessTick)
}

// ProcessTick executes one evaluation pass under the advisory lock so
// only one replica evaluates per tick.
func (s *Service) ProcessTick(ctx context.Context, tick time.Time) error {
	unlock, proceed, err := s.acquireLock(ctx)
	if err != nil {
		return err
	}
	if !proceed {
		s.logger.Debug().Time("tick", tick).Msg("skip tick because advisory lock held elsewhere")
		return nil
	}
	if unlock != nil {
		defer unlock()
	}

	_, err = s.executePass(ctx, tick)
	return err
}

// CheckNow runs one out-of-band evaluation pass and returns how many
// alerts fired. Used by the manual check-now endpoint; the claim CAS and
// the stable notification key keep it safe alongside scheduled passes.
func (s *Service) CheckNow(ctx context.Context) (int, error) {
	return s.executePass(ctx, time.Now().UTC())
}

func (s *Service) executePass(ctx context.Context, asOf time.Time) (int, error) {
	started := time.Now()
	defer func() {
		metrics.PassDuration.Observe(time.Since(started).Seconds())
	}()

	triggers, err := s.engine.EvaluateAll(ctx, asOf)
	if err != nil {
		return 0, fmt.Errorf("evaluate alerts: %w", err)
	}

	fired := 0
	for _, trigger := range triggers {
		notification, dispatchErr := s.dispatcher.Dispatch(ctx, trigger)
		if dispatchErr != nil {
			s.logger.Error().Err(dispatchErr).
				Stringer("alert_id", trigger.Alert.ID).
				Msg("dispatch failed; remaining triggers continue")
			continue
		}
		if notification != nil {
			fired++
		}
	}

	s.logger.Info().
		Time("as_of", asOf).
		Int("triggers", len(triggers)).
		Int("dispatched", fired).
		Msg("evaluation pass complete")

	return fired, nil
}

func (s *Service) acquireLock(ctx context.Context) (func(), bool, error) {
	if s.lockKey == 0 || s.locker == nil {
		return nil, true, nil
	}
	unlock, acquired, err := s.locker.TryAdvisoryLock(ctx, s.lockKey)
	if err != nil {
		return nil, false, fmt.Errorf("acquire advisory lock: %w", err)
	}
	if !acquired {
		return nil, false, nil
	}
	return unlock, true, nil
}
