package app

import (
	"context"
	"errors"
	"fmt"
	"os"
	"time"
)

// Sweep deactivates expired opportunities and reports how many were swept.
func (a *App) Sweep(ctx context.Context) error {
	store, closeStore, err := a.openStore(ctx)
	if err != nil {
		return err
	}
	if store == nil {
		return errors.New("database not configured; cannot sweep")
	}
	defer closeStore()

	swept, err := store.ExpireBefore(ctx, time.Now().UTC())
	if err != nil {
		return err
	}

	fmt.Fprintf(os.Stdout, "swept %d expired opportunities\n", swept)
	return nil
}
