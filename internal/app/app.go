package app

import (
	"context"
	"errors"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"

	"farm-price-alerts/internal/config"
	"farm-price-alerts/internal/dispatch"
	"farm-price-alerts/internal/engine"
	"farm-price-alerts/internal/httpapi"
	"farm-price-alerts/internal/realtime"
	"farm-price-alerts/internal/scheduler"
	"farm-price-alerts/internal/service"
	"farm-price-alerts/internal/storage"
)

// App aggregates configuration and shared dependencies for the CLI commands.
type App struct {
	Config *config.Config
	Logger zerolog.Logger
}

// NewApp constructs a new application handle.
func NewApp(cfg *config.Config, logger zerolog.Logger) *App {
	return &App{Config: cfg, Logger: logger.With().Str("component", "app").Logger()}
}

func (a *App) openStore(ctx context.Context) (*storage.Store, func(), error) {
	if a.Config.Database.DSN == "" {
		return nil, nil, nil
	}

	pool, err := storage.NewPool(ctx, a.Config.Database)
	if err != nil {
		return nil, nil, err
	}

	store := storage.NewStore(pool)
	closer := func() {
		store.Close()
	}
	return store, closer, nil
}

func (a *App) newService(store *storage.Store, sched *scheduler.Scheduler, hub *realtime.Hub) *service.Service {
	eng := engine.New(store, store, engine.Options{
		StoreTimeout:     a.Config.Engine.StoreTimeout,
		ObservationLimit: a.Config.Engine.ObservationLimit,
	}, a.Logger)

	var publisher dispatch.Publisher
	if hub != nil {
		publisher = hub
	}
	disp := dispatch.New(store, store, publisher, a.Logger)

	return service.New(sched, eng, disp, store, a.Config.Scheduler.AdvisoryLockKey, a.Logger)
}

// Run executes the long-running alert service: the scheduled evaluation
// loop plus the HTTP API and websocket listener.
func (a *App) Run(ctx context.Context) error {
	ctx, cancel := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	store, closeStore, err := a.openStore(ctx)
	if err != nil {
		return err
	}
	if store == nil {
		return errors.New("database.dsn is required to run the alert service")
	}
	defer closeStore()

	sched := scheduler.New(scheduler.Options{
		Interval:     a.Config.Scheduler.Interval,
		AlignToStart: a.Config.Scheduler.AlignToInterval,
		StartupDelay: a.Config.Scheduler.StartupDelay,
	}, a.Logger)

	hub := realtime.NewHub(a.Logger)
	svc := a.newService(store, sched, hub)

	api := httpapi.New(store, store, store, hub, svc, a.Config.HTTP.PingInterval, a.Logger)
	server := &http.Server{
		Addr:         a.Config.HTTP.Addr,
		Handler:      api.Router(),
		ReadTimeout:  a.Config.HTTP.ReadTimeout,
		WriteTimeout: a.Config.HTTP.WriteTimeout,
	}

	serverErr := make(chan error, 1)
	go func() {
		a.Logger.Info().Str("addr", server.Addr).Msg("http listener starting")
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverErr <- err
		}
	}()

	a.Logger.Info().
		Dur("interval", a.Config.Scheduler.Interval).
		Msg("starting alert evaluation service")

	runErr := make(chan error, 1)
	go func() {
		runErr <- svc.Run(ctx)
	}()

	select {
	case err = <-serverErr:
		a.Logger.Error().Err(err).Msg("http listener failed")
		cancel()
		<-runErr
	case err = <-runErr:
	}

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), a.Config.HTTP.ShutdownTimeout)
	defer shutdownCancel()
	if shutdownErr := server.Shutdown(shutdownCtx); shutdownErr != nil {
		a.Logger.Warn().Err(shutdownErr).Msg("http shutdown incomplete")
	}

	if err != nil && !errors.Is(err, context.Canceled) {
		a.Logger.Error().Err(err).Msg("service terminated with error")
		return err
	}

	a.Logger.Info().Msg("alert service stopped")
	return nil
}

// ExportOptions hold parameters for exporting price history.
type ExportOptions struct {
	Crop      string
	Location  string
	From      *time.Time
	To        *time.Time
	PNGPath   string
	CSVPath   string
	MaxPoints int
}

// ShowOptions configure the show command.
type ShowOptions struct {
	Crop     string
	Location string
	Limit    int
}

// WatchOptions configure the interactive watch client.
type WatchOptions struct {
	UserID   string
	CheckNow bool
}

// SeedOptions configure synthetic observation generation.
type SeedOptions struct {
	Crop      string
	Location  string
	Unit      string
	BasePrice float64
	Days      int
}
