package app

import (
	"context"
	"errors"
	"fmt"
	"os"
)

// Check runs one evaluation pass immediately and reports how many
// alerts fired. Notifications are persisted exactly as a scheduled pass
// would persist them; there is no realtime push because no hub runs.
func (a *App) Check(ctx context.Context) error {
	store, closeStore, err := a.openStore(ctx)
	if err != nil {
		return err
	}
	if store == nil {
		return errors.New("database not configured; cannot check alerts")
	}
	defer closeStore()

	svc := a.newService(store, nil, nil)

	fired, err := svc.CheckNow(ctx)
	if err != nil {
		return err
	}

	fmt.Fprintf(os.Stdout, "%d alert(s) fired\n", fired)
	return nil
}
