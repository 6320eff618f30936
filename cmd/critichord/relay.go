package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/d60-Lab/critichord/pkg/database"
	"github.com/d60-Lab/critichord/pkg/logger"
)

var relayCmd = &cobra.Command{
	Use:   "relay",
	Short: "Deliver outbox events as push messages",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		a, err := newApp(ctx)
		if err != nil {
			return err
		}
		defer a.close()

		relay, closeDispatcher, err := a.newRelay()
		if err != nil {
			return err
		}
		defer closeDispatcher()

		stopRelay := relay.Start()
		logger.Info("outbox relay started")
		<-ctx.Done()

		sctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return stopRelay(sctx)
	},
}

var migrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Create or update the database schema",
	RunE: func(cmd *cobra.Command, args []string) error {
		db, err := database.Open(cfg.Database)
		if err != nil {
			return err
		}
		if err := database.Migrate(db); err != nil {
			return err
		}
		logger.Info("migration finished")
		return nil
	},
}
