package app

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"farm-price-alerts/internal/client"
)

// Watch runs the terminal notification client: it connects to the alert
// service, prints notifications as they arrive, and keeps a bounded
// local cache for later inspection.
func (a *App) Watch(ctx context.Context, opts WatchOptions) error {
	if opts.UserID == "" {
		return errors.New("--user is required")
	}

	ctx, cancel := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	cache, err := client.NewCache(a.Config.Client.CachePath, a.Config.Client.CacheLimit)
	if err != nil {
		return err
	}
	defer cache.Close()

	api := client.NewAPIClient(a.Config.Client.APIBaseURL, opts.UserID, 10*time.Second)
	dial := func(ctx context.Context) (client.EventSource, error) {
		return client.DialStream(ctx, a.Config.Client.WSURL, opts.UserID, a.Logger)
	}

	monitor := client.NewMonitor(api, dial, cache, a.Config.Client.PollInterval, a.Logger)
	monitor.OnNotify = func(n client.Notification) {
		fmt.Fprintf(os.Stdout, "[%s] %s\n  %s\n", n.CreatedAt, n.Title, n.Message)
	}
	defer monitor.Close()

	if err := monitor.Connect(ctx, opts.UserID); err != nil {
		return err
	}

	for _, n := range monitor.Notifications() {
		fmt.Fprintf(os.Stdout, "[%s] %s\n", n.CreatedAt, n.Title)
	}

	if opts.CheckNow {
		monitor.ManualCheck(ctx)
		for _, n := range monitor.Notifications() {
			fmt.Fprintf(os.Stdout, "[%s] %s\n", n.CreatedAt, n.Title)
		}
		return nil
	}

	if err := monitor.StartMonitoring(); err != nil {
		return err
	}

	a.Logger.Info().Str("user_id", opts.UserID).Msg("watching for alert notifications")
	<-ctx.Done()

	monitor.StopMonitoring()
	return nil
}
