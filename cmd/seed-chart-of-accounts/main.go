// seed-chart-of-accounts creates the system default accounts for a business
// (accounts payable, receivable, bank, expense, forex gain/loss, settlement
// variance, retained earnings). Re-running is safe: existing accounts are
// left alone.
//
// Usage:
//   DB_USER=... DB_PASSWORD=... DB_HOST=... DB_PORT=... DB_NAME=... go run ./cmd/seed-chart-of-accounts <business-id>
package main

import (
	"fmt"
	"os"

	"bitbucket.org/mmdatafocus/finledger_backend/config"
	"bitbucket.org/mmdatafocus/finledger_backend/models"
	"gorm.io/gorm"
)

func main() {
	if len(os.Args) < 2 || os.Args[1] == "" {
		fmt.Fprintln(os.Stderr, "usage: seed-chart-of-accounts <business-id>")
		os.Exit(2)
	}
	businessId := os.Args[1]

	config.ConnectDatabaseWithRetry()
	db := config.GetDB()
	if db == nil {
		fmt.Fprintln(os.Stderr, "database not initialized (config.GetDB returned nil). Set DB_* env vars.")
		os.Exit(1)
	}
	models.MigrateTable()

	err := db.Transaction(func(tx *gorm.DB) error {
		return models.SeedDefaultAccounts(tx, businessId)
	})
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to seed accounts: %v\n", err)
		os.Exit(1)
	}
	fmt.Printf("seeded default chart of accounts for business %s\n", businessId)
}
