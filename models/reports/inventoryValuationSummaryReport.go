package reports

import (
	"context"
	"time"

	"bitbucket.org/mmdatafocus/ledger_backend/config"
	"bitbucket.org/mmdatafocus/ledger_backend/models"
	"github.com/shopspring/decimal"
)

type InventoryValuationResponse struct {
	ItemId        int                  `json:"item_id"`
	Sku           string               `json:"sku"`
	ItemName      string               `json:"item_name"`
	CostingMethod models.CostingMethod `json:"costing_method"`
	QtyOnHand     decimal.Decimal      `json:"qty_on_hand"`
	AssetValue    decimal.Decimal      `json:"asset_value"`
	ReorderPoint  decimal.Decimal      `json:"reorder_point"`
	NeedsReorder  bool                 `json:"needs_reorder"`
}

// GetInventoryValuationSummaryReport values every active item's on-hand
// stock as of the given date under its own costing method.
func GetInventoryValuationSummaryReport(ctx context.Context, asOf time.Time) ([]*InventoryValuationResponse, error) {

	db := config.GetDB()
	var items []*models.Item
	if err := db.WithContext(ctx).
		Where("item_type = ?", models.ItemTypeInventory).
		Order("sku ASC").Find(&items).Error; err != nil {
		return nil, err
	}

	results := make([]*InventoryValuationResponse, 0, len(items))
	for _, item := range items {
		qty, value, err := models.InventoryValuation(ctx, item.ID, &asOf)
		if err != nil {
			return nil, err
		}
		needsReorder := qty.Cmp(item.ReorderPoint) != 1
		if qty.IsZero() && value.IsZero() && !needsReorder {
			continue
		}
		results = append(results, &InventoryValuationResponse{
			ItemId:        item.ID,
			Sku:           item.Sku,
			ItemName:      item.Name,
			CostingMethod: item.CostingMethod,
			QtyOnHand:     qty,
			AssetValue:    value,
			ReorderPoint:  item.ReorderPoint,
			NeedsReorder:  needsReorder,
		})
	}
	return results, nil
}
