package main

import (
	"context"
	"fmt"
	"os"

	"bitbucket.org/mmdatafocus/ledger_backend/config"
	"bitbucket.org/mmdatafocus/ledger_backend/models"
)

func main() {
	config.ConnectDatabaseWithRetry()
	config.ConnectRedisWithRetry()
	if config.GetDB() == nil {
		fmt.Fprintln(os.Stderr, "database not initialized")
		os.Exit(1)
	}

	models.MigrateTable()

	if err := models.EnsureSystemAccounts(context.Background()); err != nil {
		fmt.Fprintf(os.Stderr, "seed system accounts: %v\n", err)
		os.Exit(1)
	}
	fmt.Println("system accounts seeded")
}
