// outbox-dispatcher runs the event outbox dispatcher as a standalone
// process, for deployments where publishing is separated from the API
// server.
//
// Usage:
//   DB_USER=... DB_PASSWORD=... DB_HOST=... DB_PORT=... DB_NAME=... go run ./cmd/outbox-dispatcher
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"bitbucket.org/mmdatafocus/finledger_backend/config"
	"bitbucket.org/mmdatafocus/finledger_backend/workflow"
)

func main() {
	config.ConnectDatabaseWithRetry()
	db := config.GetDB()
	if db == nil {
		fmt.Fprintln(os.Stderr, "database not initialized (config.GetDB returned nil). Set DB_* env vars.")
		os.Exit(1)
	}
	logger := config.GetLogger()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	logger.Info("outbox dispatcher started")
	workflow.NewOutboxDispatcher(db, logger).Run(ctx)
	logger.Info("outbox dispatcher stopped")
}
