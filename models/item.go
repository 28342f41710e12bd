package models

import (
	"context"
	"errors"
	"time"

	"bitbucket.org/mmdatafocus/ledger_backend/config"
	"bitbucket.org/mmdatafocus/ledger_backend/utils"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

type Item struct {
	ID              int             `gorm:"primary_key" json:"id"`
	Sku             string          `gorm:"size:100;uniqueIndex;not null" json:"sku"`
	Name            string          `gorm:"size:100;not null" json:"name" binding:"required"`
	Description     string          `gorm:"type:text" json:"description"`
	ItemType        ItemType        `gorm:"type:enum('inventory','non_inventory','service');not null;default:'inventory';index" json:"item_type"`
	CostingMethod   CostingMethod   `gorm:"type:enum('FIFO','LIFO','Average');not null;default:'FIFO'" json:"costing_method"`
	SalesPrice      decimal.Decimal `gorm:"type:decimal(20,4);default:0" json:"sales_price"`
	PurchaseCost    decimal.Decimal `gorm:"type:decimal(20,4);default:0" json:"purchase_cost"`
	ReorderPoint    decimal.Decimal `gorm:"type:decimal(20,4);default:0" json:"reorder_point"`
	ReorderQuantity decimal.Decimal `gorm:"type:decimal(20,4);default:0" json:"reorder_quantity"`
	// AverageCost and QuantityOnHand are caches derived from
	// inventory_transactions; the rebuild workflow recomputes them.
	AverageCost    decimal.Decimal `gorm:"type:decimal(20,4);default:0" json:"average_cost"`
	QuantityOnHand decimal.Decimal `gorm:"type:decimal(20,4);default:0" json:"quantity_on_hand"`
	IsActive       *bool           `gorm:"not null;default:true" json:"is_active"`
	CreatedAt      time.Time       `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt      time.Time       `gorm:"autoUpdateTime" json:"updated_at"`
}

// InventoryTransaction is the append-only movement ledger for an item.
// Positive qty rows are receipts (purchases, positive adjustments) and
// carry the unit cost of the lot; negative qty rows are consumptions.
type InventoryTransaction struct {
	ID            int                   `gorm:"primary_key" json:"id"`
	ItemId        int                   `gorm:"index;not null;index:idx_inv_item_date,priority:1" json:"item_id" binding:"required"`
	MovementType  InventoryMovementType `gorm:"type:enum('Purchase','Sale','Adjustment');not null" json:"movement_type"`
	MovementDate  time.Time             `gorm:"not null;index:idx_inv_item_date,priority:2" json:"movement_date"`
	Qty           decimal.Decimal       `gorm:"type:decimal(20,4);default:0" json:"qty"`
	UnitCost      decimal.Decimal       `gorm:"type:decimal(20,4);default:0" json:"unit_cost"`
	Reason        string                `gorm:"size:255" json:"reason"`
	ReferenceType TransactionSourceType `gorm:"size:5;index:idx_inv_ref,priority:1" json:"reference_type"`
	ReferenceID   int                   `gorm:"index:idx_inv_ref,priority:2" json:"reference_id"`
	IsReversal    bool                  `gorm:"not null;default:false" json:"is_reversal"`
	CreatedAt     time.Time             `gorm:"autoCreateTime" json:"created_at"`
}

type NewItem struct {
	Name            string          `json:"name" binding:"required"`
	Description     string          `json:"description"`
	ItemType        ItemType        `json:"item_type"`
	CostingMethod   CostingMethod   `json:"costing_method"`
	SalesPrice      decimal.Decimal `json:"sales_price"`
	PurchaseCost    decimal.Decimal `json:"purchase_cost"`
	ReorderPoint    decimal.Decimal `json:"reorder_point"`
	ReorderQuantity decimal.Decimal `json:"reorder_quantity"`
}

// inventoryLot is a received layer with its remaining cost basis, used by
// the FIFO/LIFO walkers.
type inventoryLot struct {
	Qty      decimal.Decimal
	UnitCost decimal.Decimal
}

// Inventory movements are append-only.

func (it *InventoryTransaction) BeforeUpdate(tx *gorm.DB) error {
	return gorm.ErrInvalidData
}

func (it *InventoryTransaction) BeforeDelete(tx *gorm.DB) error {
	return gorm.ErrInvalidData
}

func (i *Item) GetId() int {
	return i.ID
}

func (input *NewItem) validate(ctx context.Context, id int) error {
	if id > 0 {
		if err := utils.ValidateResourceId[Item](ctx, id); err != nil {
			return err
		}
	}
	if err := utils.ValidateUnique[Item](ctx, "name", input.Name, id); err != nil {
		return err
	}
	if input.ItemType != "" {
		if err := input.ItemType.Validate(); err != nil {
			return utils.NewValidationError("item_type", err.Error())
		}
	}
	if input.CostingMethod != "" {
		if err := input.CostingMethod.Validate(); err != nil {
			return utils.NewValidationError("costing_method", err.Error())
		}
	}
	if input.SalesPrice.IsNegative() || input.PurchaseCost.IsNegative() {
		return utils.NewValidationError("sales_price", "prices cannot be negative")
	}
	if input.ReorderPoint.IsNegative() || input.ReorderQuantity.IsNegative() {
		return utils.NewValidationError("reorder_point", "reorder levels cannot be negative")
	}
	return nil
}

func CreateItem(ctx context.Context, input *NewItem) (*Item, error) {
	if _, _, err := utils.RequireActor(ctx); err != nil {
		return nil, err
	}
	if err := input.validate(ctx, 0); err != nil {
		return nil, err
	}

	seqNo, err := utils.GetSequence[Item](ctx)
	if err != nil {
		return nil, err
	}

	costingMethod := input.CostingMethod
	if costingMethod == "" {
		costingMethod = CostingMethodFIFO
	}
	itemType := input.ItemType
	if itemType == "" {
		itemType = ItemTypeInventory
	}

	item := Item{
		Sku:             formatDocumentNumber(itemSkuFormat, seqNo),
		Name:            input.Name,
		Description:     input.Description,
		ItemType:        itemType,
		CostingMethod:   costingMethod,
		SalesPrice:      input.SalesPrice,
		PurchaseCost:    input.PurchaseCost,
		ReorderPoint:    input.ReorderPoint,
		ReorderQuantity: input.ReorderQuantity,
		AverageCost:     input.PurchaseCost,
		IsActive:        utils.NewTrue(),
	}

	db := config.GetDB()
	if err := db.WithContext(ctx).Create(&item).Error; err != nil {
		return nil, err
	}

	SaveHistoryCreate(ctx, item.ID, "items", &item, "Item "+item.Sku+" created.")
	return &item, nil
}

func UpdateItem(ctx context.Context, id int, input *NewItem) (*Item, error) {
	if _, _, err := utils.RequireActor(ctx); err != nil {
		return nil, err
	}
	if err := input.validate(ctx, id); err != nil {
		return nil, err
	}

	oldItem, err := utils.FetchModel[Item](ctx, id)
	if err != nil {
		return nil, err
	}

	// Changing the costing method or item type after movements exist would
	// silently reprice or strand past consumptions, so both are locked once
	// the ledger is non-empty.
	costingChanged := input.CostingMethod != "" && input.CostingMethod != oldItem.CostingMethod
	typeChanged := input.ItemType != "" && input.ItemType != oldItem.ItemType
	if costingChanged || typeChanged {
		count, err := utils.ResourceCountWhere[InventoryTransaction](ctx, "item_id = ?", id)
		if err != nil {
			return nil, err
		}
		if count > 0 && costingChanged {
			return nil, utils.NewValidationError("costing_method", "costing method cannot be changed once inventory movements exist")
		}
		if count > 0 && typeChanged {
			return nil, utils.NewValidationError("item_type", "item type cannot be changed once inventory movements exist")
		}
	}

	item, err := utils.FetchModel[Item](ctx, id)
	if err != nil {
		return nil, err
	}

	itemType := input.ItemType
	if itemType == "" {
		itemType = oldItem.ItemType
	}
	costingMethod := input.CostingMethod
	if costingMethod == "" {
		costingMethod = oldItem.CostingMethod
	}

	db := config.GetDB()
	err = db.WithContext(ctx).Model(item).Updates(map[string]interface{}{
		"Name":            input.Name,
		"Description":     input.Description,
		"ItemType":        itemType,
		"CostingMethod":   costingMethod,
		"SalesPrice":      input.SalesPrice,
		"PurchaseCost":    input.PurchaseCost,
		"ReorderPoint":    input.ReorderPoint,
		"ReorderQuantity": input.ReorderQuantity,
	}).Error
	if err != nil {
		return nil, err
	}

	SaveHistoryUpdate(ctx, id, "items", oldItem, item, "Item "+item.Sku+" updated.")
	return item, nil
}

func GetItem(ctx context.Context, id int) (*Item, error) {
	return utils.FetchModel[Item](ctx, id)
}

func GetItems(ctx context.Context, name *string, isActive *bool) ([]*Item, error) {
	db := config.GetDB()
	var items []*Item

	dbCtx := db.WithContext(ctx)
	if name != nil && *name != "" {
		dbCtx = dbCtx.Where("name LIKE ? OR sku LIKE ?", "%"+*name+"%", "%"+*name+"%")
	}
	if isActive != nil {
		dbCtx = dbCtx.Where("is_active = ?", *isActive)
	}
	err := dbCtx.Order("sku ASC").Find(&items).Error
	if err != nil {
		return nil, err
	}
	return items, nil
}

// itemTracksStockTx reports whether the item moves through the inventory
// ledger, inside the caller's transaction.
func itemTracksStockTx(ctx context.Context, tx *gorm.DB, itemId int) (bool, error) {
	var item Item
	if err := tx.WithContext(ctx).Select("id", "item_type").Where("id = ?", itemId).First(&item).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return false, utils.ErrorRecordNotFound
		}
		return false, err
	}
	return item.ItemType.TracksStock(), nil
}

// FindLowStockItems lists active inventory items at or below their
// reorder point, lowest stock first.
func FindLowStockItems(ctx context.Context) ([]*Item, error) {
	db := config.GetDB()
	var items []*Item
	err := db.WithContext(ctx).
		Where("quantity_on_hand <= reorder_point").
		Where("item_type = ?", ItemTypeInventory).
		Where("is_active = ?", true).
		Order("quantity_on_hand ASC").
		Find(&items).Error
	if err != nil {
		return nil, err
	}
	return items, nil
}

// consumeLots walks receipt layers in the given order and prices qty
// against them. If the layers run out the remainder is simply not priced;
// the result covers only what exists.
func consumeLots(lots []inventoryLot, qty decimal.Decimal) (cost decimal.Decimal, consumed decimal.Decimal) {
	remaining := qty
	for _, lot := range lots {
		if remaining.IsZero() || remaining.IsNegative() {
			break
		}
		if lot.Qty.IsZero() || lot.Qty.IsNegative() {
			continue
		}
		take := decimal.Min(remaining, lot.Qty)
		cost = cost.Add(take.Mul(lot.UnitCost))
		consumed = consumed.Add(take)
		remaining = remaining.Sub(take)
	}
	return cost, consumed
}

// remainingLots replays the item's movement history in receipt order and
// returns the layers still on hand, oldest first. Consumptions deplete
// the end the costing method dictates: oldest first for FIFO and Average,
// newest first for LIFO.
func remainingLots(method CostingMethod, movements []*InventoryTransaction) []inventoryLot {
	lots := make([]inventoryLot, 0, len(movements))
	for _, m := range movements {
		if m.Qty.IsPositive() {
			lots = append(lots, inventoryLot{Qty: m.Qty, UnitCost: m.UnitCost})
			continue
		}
		outgoing := m.Qty.Neg()
		if method == CostingMethodLIFO {
			for i := len(lots) - 1; i >= 0 && !outgoing.IsZero(); i-- {
				if lots[i].Qty.IsZero() {
					continue
				}
				take := decimal.Min(outgoing, lots[i].Qty)
				lots[i].Qty = lots[i].Qty.Sub(take)
				outgoing = outgoing.Sub(take)
			}
			continue
		}
		for i := range lots {
			if outgoing.IsZero() {
				break
			}
			if lots[i].Qty.IsZero() {
				continue
			}
			take := decimal.Min(outgoing, lots[i].Qty)
			lots[i].Qty = lots[i].Qty.Sub(take)
			outgoing = outgoing.Sub(take)
		}
	}
	result := make([]inventoryLot, 0, len(lots))
	for _, lot := range lots {
		if lot.Qty.IsPositive() {
			result = append(result, lot)
		}
	}
	return result
}

func reverseLots(lots []inventoryLot) []inventoryLot {
	reversed := make([]inventoryLot, len(lots))
	for i, lot := range lots {
		reversed[len(lots)-1-i] = lot
	}
	return reversed
}

// averageUnitCost is total receipt cost over total receipt qty.
func averageUnitCost(movements []*InventoryTransaction) decimal.Decimal {
	totalQty := decimal.Zero
	totalCost := decimal.Zero
	for _, m := range movements {
		if m.Qty.IsPositive() {
			totalQty = totalQty.Add(m.Qty)
			totalCost = totalCost.Add(m.Qty.Mul(m.UnitCost))
		}
	}
	if totalQty.IsZero() {
		return decimal.Zero
	}
	return totalCost.DivRound(totalQty, 4)
}

func itemMovements(ctx context.Context, db *gorm.DB, itemId int, asOf *time.Time) ([]*InventoryTransaction, error) {
	var movements []*InventoryTransaction
	dbCtx := db.WithContext(ctx).Where("item_id = ?", itemId)
	if asOf != nil {
		dbCtx = dbCtx.Where("movement_date <= ?", asOf)
	}
	err := dbCtx.Order("movement_date ASC, id ASC").Find(&movements).Error
	if err != nil {
		return nil, err
	}
	return movements, nil
}

// GetCOGS prices a prospective sale of qty units against the item's
// current inventory using its costing method. If on-hand quantity is less
// than qty, the returned cost covers only the units that exist.
func GetCOGS(ctx context.Context, itemId int, qty decimal.Decimal) (decimal.Decimal, error) {
	if qty.IsNegative() || qty.IsZero() {
		return decimal.Zero, utils.NewValidationError("qty", "quantity must be positive")
	}

	item, err := utils.FetchModel[Item](ctx, itemId)
	if err != nil {
		return decimal.Zero, err
	}

	db := config.GetDB()
	movements, err := itemMovements(ctx, db, itemId, nil)
	if err != nil {
		return decimal.Zero, err
	}
	return cogsForMovements(item.CostingMethod, movements, qty), nil
}

func cogsForMovements(method CostingMethod, movements []*InventoryTransaction, qty decimal.Decimal) decimal.Decimal {
	switch method {
	case CostingMethodAverage:
		onHand := decimal.Zero
		for _, m := range movements {
			onHand = onHand.Add(m.Qty)
		}
		priced := decimal.Min(qty, decimal.Max(onHand, decimal.Zero))
		return priced.Mul(averageUnitCost(movements))
	case CostingMethodLIFO:
		cost, _ := consumeLots(reverseLots(remainingLots(method, movements)), qty)
		return cost
	default: // FIFO
		cost, _ := consumeLots(remainingLots(method, movements), qty)
		return cost
	}
}

// onHandQty sums all movements.
func onHandQty(movements []*InventoryTransaction) decimal.Decimal {
	total := decimal.Zero
	for _, m := range movements {
		total = total.Add(m.Qty)
	}
	return total
}

// recordInventoryMovementTx appends a movement row and refreshes the
// item's cached quantity and average cost inside the caller's transaction.
func recordInventoryMovementTx(ctx context.Context, tx *gorm.DB, movement *InventoryTransaction) error {
	if err := tx.WithContext(ctx).Create(movement).Error; err != nil {
		return err
	}

	movements, err := itemMovements(ctx, tx, movement.ItemId, nil)
	if err != nil {
		return err
	}

	return tx.WithContext(ctx).Model(&Item{}).
		Where("id = ?", movement.ItemId).
		Updates(map[string]interface{}{
			"quantity_on_hand": onHandQty(movements),
			"average_cost":     averageUnitCost(movements),
		}).Error
}

// recordSaleTx consumes qty units at the item's costing method. Unlike
// GetCOGS, actually recording a sale with insufficient stock is rejected.
func recordSaleTx(ctx context.Context, tx *gorm.DB, itemId int, qty decimal.Decimal, movementDate time.Time, refType TransactionSourceType, refId int) (decimal.Decimal, error) {
	if qty.IsNegative() || qty.IsZero() {
		return decimal.Zero, utils.NewValidationError("qty", "quantity must be positive")
	}

	var item Item
	if err := tx.WithContext(ctx).Where("id = ?", itemId).First(&item).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return decimal.Zero, utils.ErrorRecordNotFound
		}
		return decimal.Zero, err
	}
	if !item.ItemType.TracksStock() {
		return decimal.Zero, utils.NewValidationError("item_id", "item "+item.Sku+" does not track stock")
	}

	movements, err := itemMovements(ctx, tx, itemId, nil)
	if err != nil {
		return decimal.Zero, err
	}
	if onHandQty(movements).Cmp(qty) == -1 {
		return decimal.Zero, utils.NewValidationError("qty", "insufficient stock for item "+item.Sku)
	}

	cogs := cogsForMovements(item.CostingMethod, movements, qty)

	unitCost := decimal.Zero
	if !qty.IsZero() {
		unitCost = cogs.DivRound(qty, 4)
	}
	movement := InventoryTransaction{
		ItemId:        itemId,
		MovementType:  InventoryMovementTypeSale,
		MovementDate:  movementDate,
		Qty:           qty.Neg(),
		UnitCost:      unitCost,
		ReferenceType: refType,
		ReferenceID:   refId,
	}
	if err := recordInventoryMovementTx(ctx, tx, &movement); err != nil {
		return decimal.Zero, err
	}
	return cogs, nil
}

func recordPurchaseTx(ctx context.Context, tx *gorm.DB, itemId int, qty decimal.Decimal, unitCost decimal.Decimal, movementDate time.Time, refType TransactionSourceType, refId int) error {
	if qty.IsNegative() || qty.IsZero() {
		return utils.NewValidationError("qty", "quantity must be positive")
	}
	if unitCost.IsNegative() {
		return utils.NewValidationError("unit_cost", "unit cost cannot be negative")
	}

	var item Item
	if err := tx.WithContext(ctx).Where("id = ?", itemId).First(&item).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return utils.ErrorRecordNotFound
		}
		return err
	}
	if !item.ItemType.TracksStock() {
		return utils.NewValidationError("item_id", "item "+item.Sku+" does not track stock")
	}

	movement := InventoryTransaction{
		ItemId:        itemId,
		MovementType:  InventoryMovementTypePurchase,
		MovementDate:  movementDate,
		Qty:           qty,
		UnitCost:      unitCost,
		ReferenceType: refType,
		ReferenceID:   refId,
	}
	if err := recordInventoryMovementTx(ctx, tx, &movement); err != nil {
		return err
	}

	// Last purchase price becomes the default cost for future receipts.
	return tx.WithContext(ctx).Model(&Item{}).
		Where("id = ?", itemId).
		Update("purchase_cost", unitCost).Error
}

// RecordAdjustment posts a manual quantity adjustment with its ledger
// entry (inventory asset against the adjustment account). Negative
// adjustments are priced like a sale; positive ones receive at the given
// unit cost (item purchase cost when zero).
func RecordAdjustment(ctx context.Context, itemId int, qty decimal.Decimal, unitCost decimal.Decimal, movementDate time.Time, reason string) (*InventoryTransaction, error) {
	if _, _, err := utils.RequireActor(ctx); err != nil {
		return nil, err
	}
	if qty.IsZero() {
		return nil, utils.NewValidationError("qty", "adjustment quantity cannot be zero")
	}
	if reason == "" {
		return nil, utils.NewValidationError("reason", "reason is required")
	}

	item, err := utils.FetchModel[Item](ctx, itemId)
	if err != nil {
		return nil, err
	}
	if !item.ItemType.TracksStock() {
		return nil, utils.NewValidationError("item_id", "item "+item.Sku+" does not track stock")
	}

	systemAccounts, err := GetSystemAccounts(ctx)
	if err != nil {
		return nil, err
	}
	inventoryAccountId := systemAccounts[SystemAccountInventoryAsset]
	adjustmentAccountId := systemAccounts[SystemAccountAdjustment]

	db := config.GetDB()
	tx := db.Begin()

	if err := AcquireDocumentLock(tx, "item", itemId); err != nil {
		tx.Rollback()
		return nil, err
	}

	var movement InventoryTransaction
	var value decimal.Decimal
	if qty.IsPositive() {
		cost := unitCost
		if cost.IsZero() {
			cost = item.PurchaseCost
		}
		movement = InventoryTransaction{
			ItemId:        itemId,
			MovementType:  InventoryMovementTypeAdjustment,
			MovementDate:  movementDate,
			Qty:           qty,
			UnitCost:      cost,
			Reason:        reason,
			ReferenceType: TransactionSourceTypeInventoryAdj,
		}
		value = qty.Mul(cost)
		if err := recordInventoryMovementTx(ctx, tx, &movement); err != nil {
			tx.Rollback()
			return nil, err
		}
	} else {
		outQty := qty.Neg()
		movements, err := itemMovements(ctx, tx, itemId, nil)
		if err != nil {
			tx.Rollback()
			return nil, err
		}
		if onHandQty(movements).Cmp(outQty) == -1 {
			tx.Rollback()
			return nil, utils.NewValidationError("qty", "insufficient stock for item "+item.Sku)
		}
		value = cogsForMovements(item.CostingMethod, movements, outQty)
		cost := decimal.Zero
		if !outQty.IsZero() {
			cost = value.DivRound(outQty, 4)
		}
		movement = InventoryTransaction{
			ItemId:        itemId,
			MovementType:  InventoryMovementTypeAdjustment,
			MovementDate:  movementDate,
			Qty:           qty,
			UnitCost:      cost,
			Reason:        reason,
			ReferenceType: TransactionSourceTypeInventoryAdj,
		}
		if err := recordInventoryMovementTx(ctx, tx, &movement); err != nil {
			tx.Rollback()
			return nil, err
		}
	}

	if !value.IsZero() {
		lines := []NewTransactionLine{
			{AccountId: inventoryAccountId, Debit: value, Description: "Inventory adjustment " + item.Sku},
			{AccountId: adjustmentAccountId, Credit: value, Description: reason},
		}
		if qty.IsNegative() {
			lines = []NewTransactionLine{
				{AccountId: adjustmentAccountId, Debit: value, Description: reason},
				{AccountId: inventoryAccountId, Credit: value, Description: "Inventory adjustment " + item.Sku},
			}
		}
		entry := NewTransaction{
			TransactionDate: movementDate,
			Description:     "Inventory adjustment for " + item.Sku + ": " + reason,
			Lines:           lines,
		}
		if _, err := createTransactionTx(ctx, tx, &entry, TransactionSourceTypeInventoryAdj, movement.ID); err != nil {
			tx.Rollback()
			return nil, err
		}
	}

	ReleaseDocumentLock(tx, "item", itemId)
	if err := tx.Commit().Error; err != nil {
		return nil, err
	}

	SaveHistoryCreate(ctx, movement.ID, "inventory_transactions", &movement, "Inventory adjustment for "+item.Sku+" recorded.")
	return &movement, nil
}

// RecordPurchase receives stock outside a bill (e.g. opening stock).
func RecordPurchase(ctx context.Context, itemId int, qty decimal.Decimal, unitCost decimal.Decimal, movementDate time.Time) (*Item, error) {
	if _, _, err := utils.RequireActor(ctx); err != nil {
		return nil, err
	}
	if err := utils.ValidateResourceId[Item](ctx, itemId); err != nil {
		return nil, err
	}

	db := config.GetDB()
	tx := db.Begin()
	if err := AcquireDocumentLock(tx, "item", itemId); err != nil {
		tx.Rollback()
		return nil, err
	}
	if err := recordPurchaseTx(ctx, tx, itemId, qty, unitCost, movementDate, TransactionSourceTypeOpeningBal, 0); err != nil {
		tx.Rollback()
		return nil, err
	}
	ReleaseDocumentLock(tx, "item", itemId)
	if err := tx.Commit().Error; err != nil {
		return nil, err
	}
	return utils.FetchModel[Item](ctx, itemId)
}

// RecordSale consumes stock outside an invoice and returns the COGS amount.
func RecordSale(ctx context.Context, itemId int, qty decimal.Decimal, movementDate time.Time) (decimal.Decimal, error) {
	if _, _, err := utils.RequireActor(ctx); err != nil {
		return decimal.Zero, err
	}

	db := config.GetDB()
	tx := db.Begin()
	if err := AcquireDocumentLock(tx, "item", itemId); err != nil {
		tx.Rollback()
		return decimal.Zero, err
	}
	cogs, err := recordSaleTx(ctx, tx, itemId, qty, movementDate, TransactionSourceTypeManual, 0)
	if err != nil {
		tx.Rollback()
		return decimal.Zero, err
	}
	ReleaseDocumentLock(tx, "item", itemId)
	if err := tx.Commit().Error; err != nil {
		return decimal.Zero, err
	}
	return cogs, nil
}

func GetInventoryTransactions(ctx context.Context, itemId int, fromDate *time.Time, toDate *time.Time) ([]*InventoryTransaction, error) {
	db := config.GetDB()
	var movements []*InventoryTransaction

	dbCtx := db.WithContext(ctx).Where("item_id = ?", itemId)
	if fromDate != nil {
		dbCtx = dbCtx.Where("movement_date >= ?", fromDate)
	}
	if toDate != nil {
		dbCtx = dbCtx.Where("movement_date <= ?", toDate)
	}
	err := dbCtx.Order("movement_date ASC, id ASC").Find(&movements).Error
	if err != nil {
		return nil, err
	}
	return movements, nil
}

// InventoryValuation replays the item's movements up to asOf and returns
// the on-hand quantity with its value under the item's costing method.
func InventoryValuation(ctx context.Context, itemId int, asOf *time.Time) (qty decimal.Decimal, value decimal.Decimal, err error) {
	item, err := utils.FetchModel[Item](ctx, itemId)
	if err != nil {
		return decimal.Zero, decimal.Zero, err
	}

	db := config.GetDB()
	movements, err := itemMovements(ctx, db, itemId, asOf)
	if err != nil {
		return decimal.Zero, decimal.Zero, err
	}

	qty = onHandQty(movements)
	if qty.IsNegative() || qty.IsZero() {
		return qty, decimal.Zero, nil
	}

	if item.CostingMethod == CostingMethodAverage {
		return qty, qty.Mul(averageUnitCost(movements)).Round(2), nil
	}
	for _, lot := range remainingLots(item.CostingMethod, movements) {
		value = value.Add(lot.Qty.Mul(lot.UnitCost))
	}
	return qty, value.Round(2), nil
}

// RebuildItemCaches replays the movement ledger and rewrites the item's
// cached quantity and average cost. Used by the inventory-rebuild job.
func RebuildItemCaches(ctx context.Context, itemId int) (*Item, error) {
	db := config.GetDB()

	movements, err := itemMovements(ctx, db, itemId, nil)
	if err != nil {
		return nil, err
	}

	err = db.WithContext(ctx).Model(&Item{}).
		Where("id = ?", itemId).
		Updates(map[string]interface{}{
			"quantity_on_hand": onHandQty(movements),
			"average_cost":     averageUnitCost(movements),
		}).Error
	if err != nil {
		return nil, err
	}
	return utils.FetchModel[Item](ctx, itemId)
}
