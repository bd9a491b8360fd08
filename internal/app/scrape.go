package app

import (
	"context"
	"errors"
)

// Scrape executes one scrape-and-evaluate run and exits.
func (a *App) Scrape(ctx context.Context) error {
	store, closeStore, err := a.openStore(ctx)
	if err != nil {
		return err
	}
	if store == nil {
		return errors.New("database not configured; cannot scrape")
	}
	defer closeStore()

	svc := a.newService(store, nil)
	return svc.RunOnce(ctx)
}
