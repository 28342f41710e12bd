package workflow

import (
	"context"

	"bitbucket.org/mmdatafocus/ledger_backend/config"
	"bitbucket.org/mmdatafocus/ledger_backend/models"
	"bitbucket.org/mmdatafocus/ledger_backend/utils"
	"github.com/sirupsen/logrus"
)

// RebuildAllItemCaches replays the movement ledger for every item and
// rewrites the cached quantity and average cost. Run after backdated
// movements or when a reconciliation check reports ITEM_QTY drift.
func RebuildAllItemCaches(ctx context.Context, logger *logrus.Logger) (int, error) {
	release, err := utils.ObtainLock(ctx, "InventoryRebuild", "all", moduleName, "RebuildAllItemCaches")
	if err != nil {
		return 0, err
	}
	defer release()

	db := config.GetDB()
	var itemIds []int
	if err := db.WithContext(ctx).Model(&models.Item{}).Order("id ASC").Pluck("id", &itemIds).Error; err != nil {
		return 0, err
	}

	rebuilt := 0
	for _, itemId := range itemIds {
		if _, err := models.RebuildItemCaches(ctx, itemId); err != nil {
			config.LogError(logger, moduleName, "RebuildAllItemCaches", "rebuild failed", itemId, err)
			continue
		}
		rebuilt++
	}

	if logger != nil {
		logger.WithFields(logrus.Fields{
			"field":   "InventoryRebuild",
			"total":   len(itemIds),
			"rebuilt": rebuilt,
		}).Info("inventory cache rebuild completed")
	}
	return rebuilt, nil
}
