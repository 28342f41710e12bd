package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"time"

	"bitbucket.org/mmdatafocus/ledger_backend/config"
	"bitbucket.org/mmdatafocus/ledger_backend/models"
	"bitbucket.org/mmdatafocus/ledger_backend/models/reports"
	"bitbucket.org/mmdatafocus/ledger_backend/workflow"
)

func main() {
	exportPath := flag.String("export", "", "Optional: write the trial balance to this xlsx file")
	flag.Parse()

	config.ConnectDatabaseWithRetry()
	config.ConnectRedisWithRetry()
	if config.GetDB() == nil {
		fmt.Fprintln(os.Stderr, "database not initialized")
		os.Exit(1)
	}
	logger := config.GetLogger()
	ctx := context.Background()

	cid, err := workflow.RunReconciliationChecks(ctx, logger)
	if err != nil {
		fmt.Fprintf(os.Stderr, "reconciliation checks: %v\n", err)
		os.Exit(1)
	}

	mismatches, err := models.GetReconciliationReports(ctx, &cid, nil)
	if err != nil {
		fmt.Fprintf(os.Stderr, "load reports: %v\n", err)
		os.Exit(1)
	}
	for _, m := range mismatches {
		fmt.Printf("%s %s#%d: %s\n", m.CheckType, m.EntityType, m.EntityId, m.Details)
	}
	fmt.Printf("run %s: %d mismatch(es)\n", cid, len(mismatches))

	if *exportPath != "" {
		if err := reports.SaveTrialBalanceExcel(ctx, time.Now().UTC(), *exportPath); err != nil {
			fmt.Fprintf(os.Stderr, "export trial balance: %v\n", err)
			os.Exit(1)
		}
		fmt.Printf("trial balance written to %s\n", *exportPath)
	}

	if len(mismatches) > 0 {
		os.Exit(2)
	}
}
