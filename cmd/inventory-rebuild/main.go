package main

import (
	"context"
	"flag"
	"fmt"
	"os"

	"bitbucket.org/mmdatafocus/ledger_backend/config"
	"bitbucket.org/mmdatafocus/ledger_backend/models"
	"bitbucket.org/mmdatafocus/ledger_backend/workflow"
)

func main() {
	itemID := flag.Int("item-id", 0, "Optional: rebuild a single item")
	flag.Parse()

	config.ConnectDatabaseWithRetry()
	config.ConnectRedisWithRetry()
	if config.GetDB() == nil {
		fmt.Fprintln(os.Stderr, "database not initialized")
		os.Exit(1)
	}
	logger := config.GetLogger()
	ctx := context.Background()

	if *itemID > 0 {
		item, err := models.RebuildItemCaches(ctx, *itemID)
		if err != nil {
			fmt.Fprintf(os.Stderr, "rebuild item %d: %v\n", *itemID, err)
			os.Exit(1)
		}
		fmt.Printf("item %s: qty=%s avg_cost=%s\n", item.Sku, item.QuantityOnHand.String(), item.AverageCost.String())
		return
	}

	rebuilt, err := workflow.RebuildAllItemCaches(ctx, logger)
	if err != nil {
		fmt.Fprintf(os.Stderr, "rebuild: %v\n", err)
		os.Exit(1)
	}
	fmt.Printf("rebuilt %d item(s)\n", rebuilt)
}
