package models

import (
	"context"
	"time"

	"bitbucket.org/mmdatafocus/ledger_backend/config"
	"bitbucket.org/mmdatafocus/ledger_backend/utils"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

type Bill struct {
	ID                     int             `gorm:"primary_key" json:"id"`
	BillNumber             string          `gorm:"size:255;not null;index" json:"bill_number"`
	SequenceNo             decimal.Decimal `gorm:"type:decimal(15);not null" json:"sequence_no"`
	VendorId               int             `gorm:"index;not null" json:"vendor_id" binding:"required"`
	Vendor                 *Vendor         `json:"vendor"`
	BillDate               time.Time       `gorm:"not null" json:"bill_date" binding:"required"`
	PaymentTerms           PaymentTerms    `gorm:"type:enum('Net15', 'Net30', 'Net45', 'Net60', 'DueMonthEnd', 'DueNextMonthEnd', 'DueOnReceipt', 'Custom');not null;default:'DueOnReceipt'" json:"payment_terms"`
	PaymentTermsCustomDays int             `gorm:"default:0" json:"payment_terms_custom_days"`
	DueDate                *time.Time      `gorm:"index" json:"due_date"`
	// VendorBillNumber is the vendor's own reference on the bill document.
	VendorBillNumber string          `gorm:"size:255" json:"vendor_bill_number"`
	Notes            string          `gorm:"type:text" json:"notes"`
	CurrentStatus    BillStatus      `gorm:"type:enum('Draft','Received','Partial Paid','Paid','Overdue','Void');not null;default:'Draft';index" json:"current_status"`
	Subtotal         decimal.Decimal `gorm:"type:decimal(20,4);default:0" json:"subtotal"`
	DiscountPct      decimal.Decimal `gorm:"type:decimal(20,4);default:0" json:"discount_pct"`
	DiscountTotal    decimal.Decimal `gorm:"type:decimal(20,4);default:0" json:"discount_total"`
	TaxTotal         decimal.Decimal `gorm:"type:decimal(20,4);default:0" json:"tax_total"`
	TotalAmount      decimal.Decimal `gorm:"type:decimal(20,4);default:0" json:"total_amount"`
	AmountPaid       decimal.Decimal `gorm:"type:decimal(20,4);default:0" json:"amount_paid"`
	BalanceDue       decimal.Decimal `gorm:"type:decimal(20,4);default:0" json:"balance_due"`
	VoidReason       *string         `gorm:"type:text" json:"void_reason"`
	VoidedAt         *time.Time      `json:"voided_at"`
	Lines            []BillLine      `gorm:"foreignKey:BillId" json:"lines"`
	CreatedAt        time.Time       `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt        time.Time       `gorm:"autoUpdateTime" json:"updated_at"`
}

type BillLine struct {
	ID     int `gorm:"primary_key" json:"id"`
	BillId int `gorm:"index;not null" json:"bill_id"`
	// ItemId > 0 marks an inventory receipt line; other lines post to
	// ExpenseAccountId instead.
	ItemId           int             `gorm:"index;default:0" json:"item_id"`
	ExpenseAccountId int             `gorm:"default:0" json:"expense_account_id"`
	Name             string          `gorm:"size:255;not null" json:"name"`
	Description      string          `gorm:"size:255" json:"description"`
	Qty              decimal.Decimal `gorm:"type:decimal(20,4);default:0" json:"qty"`
	UnitCost         decimal.Decimal `gorm:"type:decimal(20,4);default:0" json:"unit_cost"`
	DiscountPct      decimal.Decimal `gorm:"type:decimal(20,4);default:0" json:"discount_pct"`
	DiscountAmount   decimal.Decimal `gorm:"type:decimal(20,4);default:0" json:"discount_amount"`
	TaxRate          decimal.Decimal `gorm:"type:decimal(20,4);default:0" json:"tax_rate"`
	TaxAmount        decimal.Decimal `gorm:"type:decimal(20,4);default:0" json:"tax_amount"`
	LineTotal        decimal.Decimal `gorm:"type:decimal(20,4);default:0" json:"line_total"`
	// Billable expense lines can later be recharged to a customer.
	Billable           *bool     `gorm:"not null;default:false" json:"billable"`
	BillableCustomerId int       `gorm:"index;default:0" json:"billable_customer_id"`
	CreatedAt          time.Time `gorm:"autoCreateTime" json:"created_at"`
}

type NewBill struct {
	VendorId               int             `json:"vendor_id" binding:"required"`
	BillDate               time.Time       `json:"bill_date" binding:"required"`
	PaymentTerms           PaymentTerms    `json:"payment_terms"`
	PaymentTermsCustomDays int             `json:"payment_terms_custom_days"`
	DueDate                *time.Time      `json:"due_date"`
	DiscountPct            decimal.Decimal `json:"discount_pct"`
	VendorBillNumber       string          `json:"vendor_bill_number"`
	Notes                  string          `json:"notes"`
	CurrentStatus          BillStatus      `json:"current_status"`
	Lines                  []NewBillLine   `json:"lines"`
}

type NewBillLine struct {
	ItemId             int             `json:"item_id"`
	ExpenseAccountId   int             `json:"expense_account_id"`
	Name               string          `json:"name"`
	Description        string          `json:"description"`
	Qty                decimal.Decimal `json:"qty" binding:"required"`
	UnitCost           decimal.Decimal `json:"unit_cost"`
	DiscountPct        decimal.Decimal `json:"discount_pct"`
	TaxRate            decimal.Decimal `json:"tax_rate"`
	Billable           *bool           `json:"billable"`
	BillableCustomerId int             `json:"billable_customer_id"`
}

func (b *Bill) GetId() int {
	return b.ID
}

func (input *NewBill) validate(ctx context.Context, id int) error {
	if id > 0 {
		if err := utils.ValidateResourceId[Bill](ctx, id); err != nil {
			return err
		}
	}
	if len(input.Lines) == 0 {
		return utils.NewValidationError("lines", "at least one line is required")
	}

	vendor, err := utils.FetchModel[Vendor](ctx, input.VendorId)
	if err != nil {
		return utils.NewValidationError("vendor_id", "vendor not found")
	}
	if vendor.IsActive != nil && !*vendor.IsActive {
		return utils.NewValidationError("vendor_id", "vendor is inactive")
	}

	if input.PaymentTerms != "" {
		if err := input.PaymentTerms.Validate(); err != nil {
			return utils.NewValidationError("payment_terms", err.Error())
		}
		if input.PaymentTerms == PaymentTermsCustom && input.PaymentTermsCustomDays <= 0 {
			return utils.NewValidationError("payment_terms_custom_days", "custom payment terms require a positive day count")
		}
	}
	if input.DueDate != nil && utils.TruncateToDate(*input.DueDate).Before(utils.TruncateToDate(input.BillDate)) {
		return utils.NewValidationError("due_date", "due date cannot be before the bill date")
	}
	if err := validateDiscountPct(input.DiscountPct); err != nil {
		return err
	}

	itemIds := []int{}
	accountIds := []int{}
	customerIds := []int{}
	for _, line := range input.Lines {
		if line.Qty.IsZero() || line.Qty.IsNegative() {
			return utils.NewValidationError("lines", "quantity must be positive")
		}
		if line.UnitCost.IsNegative() {
			return utils.NewValidationError("lines", "unit cost cannot be negative")
		}
		if line.TaxRate.IsNegative() {
			return utils.NewValidationError("lines", "tax rate cannot be negative")
		}
		if err := validateDiscountPct(line.DiscountPct); err != nil {
			return err
		}
		if line.ItemId > 0 {
			item, err := utils.FetchModel[Item](ctx, line.ItemId)
			if err != nil {
				return utils.NewValidationError("lines", "item not found")
			}
			if !item.ItemType.TracksStock() && line.ExpenseAccountId == 0 {
				return utils.NewValidationError("lines", "expense account is required for non-stock item lines")
			}
			itemIds = append(itemIds, line.ItemId)
		} else {
			if line.ExpenseAccountId == 0 {
				return utils.NewValidationError("lines", "expense account is required for non-item lines")
			}
			if line.Name == "" {
				return utils.NewValidationError("lines", "name is required for non-item lines")
			}
			accountIds = append(accountIds, line.ExpenseAccountId)
		}
		if line.Billable != nil && *line.Billable {
			if line.ItemId > 0 {
				return utils.NewValidationError("lines", "item lines cannot be marked billable")
			}
			if line.BillableCustomerId == 0 {
				return utils.NewValidationError("lines", "billable lines require a customer")
			}
			customerIds = append(customerIds, line.BillableCustomerId)
		}
	}
	if len(itemIds) > 0 {
		if err := utils.ValidateResourcesId[Item](ctx, itemIds); err != nil {
			return utils.NewValidationError("lines", "item not found")
		}
	}
	if len(accountIds) > 0 {
		if err := utils.ValidateResourcesId[Account](ctx, accountIds); err != nil {
			return utils.NewValidationError("lines", "expense account not found")
		}
	}
	if len(customerIds) > 0 {
		if err := utils.ValidateResourcesId[Customer](ctx, customerIds); err != nil {
			return utils.NewValidationError("lines", "billable customer not found")
		}
	}
	return nil
}

// receiveBillLines computes line and document totals with the same
// arithmetic as receiveInvoiceLines: fractional tax rates applied to
// the line-discounted base, header discount off the discounted subtotal.
func receiveBillLines(inputs []NewBillLine, headerDiscountPct decimal.Decimal) (lines []BillLine, subtotal, discountTotal, taxTotal, total decimal.Decimal) {
	hundred := decimal.NewFromInt(100)
	for _, l := range inputs {
		lineTotal := l.Qty.Mul(l.UnitCost).Round(2)
		lineDiscount := lineTotal.Mul(l.DiscountPct).Div(hundred).Round(2)
		lineTax := lineTotal.Sub(lineDiscount).Mul(l.TaxRate).Round(2)
		billable := l.Billable
		if billable == nil {
			billable = utils.NewFalse()
		}
		lines = append(lines, BillLine{
			ItemId:             l.ItemId,
			ExpenseAccountId:   l.ExpenseAccountId,
			Name:               l.Name,
			Description:        l.Description,
			Qty:                l.Qty,
			UnitCost:           l.UnitCost,
			DiscountPct:        l.DiscountPct,
			DiscountAmount:     lineDiscount,
			TaxRate:            l.TaxRate,
			TaxAmount:          lineTax,
			LineTotal:          lineTotal,
			Billable:           billable,
			BillableCustomerId: l.BillableCustomerId,
		})
		subtotal = subtotal.Add(lineTotal).Sub(lineDiscount)
		taxTotal = taxTotal.Add(lineTax)
	}
	discountTotal = subtotal.Mul(headerDiscountPct).Div(hundred).Round(2)
	total = subtotal.Sub(discountTotal).Add(taxTotal)
	return lines, subtotal, discountTotal, taxTotal, total
}

// NextBillStatus mirrors NextInvoiceStatus for the payable side.
func NextBillStatus(current BillStatus, totalAmount, amountPaid, balanceDue decimal.Decimal, dueDate *time.Time, today time.Time) BillStatus {
	if current == BillStatusDraft || current == BillStatusVoid {
		return current
	}
	if balanceDue.IsZero() || balanceDue.IsNegative() {
		return BillStatusPaid
	}
	if amountPaid.IsPositive() {
		return BillStatusPartialPaid
	}
	if dueDate != nil && dueDate.Before(utils.TruncateToDate(today)) {
		return BillStatusOverdue
	}
	return BillStatusReceived
}

// receiveBillTx runs the Draft -> Received transition: inventory receipt
// for item lines and a balanced ledger posting against accounts payable.
func receiveBillTx(ctx context.Context, tx *gorm.DB, bill *Bill) error {
	systemAccounts, err := GetSystemAccounts(ctx)
	if err != nil {
		return err
	}

	inventoryTotal := decimal.Zero
	expenseByAccount := map[int]decimal.Decimal{}
	for _, line := range bill.Lines {
		net := line.LineTotal.Sub(line.DiscountAmount)
		if line.ItemId > 0 {
			tracksStock, err := itemTracksStockTx(ctx, tx, line.ItemId)
			if err != nil {
				return err
			}
			// Service and non-inventory item lines are expensed below.
			if tracksStock {
				if err := AcquireDocumentLock(tx, "item", line.ItemId); err != nil {
					return err
				}
				// Stock is valued at the discounted cost actually paid.
				if err := recordPurchaseTx(ctx, tx, line.ItemId, line.Qty, effectiveUnitCost(net, line.Qty), bill.BillDate, TransactionSourceTypeBill, bill.ID); err != nil {
					return err
				}
				inventoryTotal = inventoryTotal.Add(net)
				continue
			}
		}
		expenseByAccount[line.ExpenseAccountId] = expenseByAccount[line.ExpenseAccountId].Add(net)
	}

	lines := []NewTransactionLine{}
	if inventoryTotal.IsPositive() {
		lines = append(lines, NewTransactionLine{
			AccountId:   systemAccounts[SystemAccountInventoryAsset],
			Debit:       inventoryTotal,
			Description: "Inventory received on bill " + bill.BillNumber,
		})
	}
	for accountId, amount := range expenseByAccount {
		lines = append(lines, NewTransactionLine{
			AccountId:   accountId,
			Debit:       amount,
			Description: "Expense on bill " + bill.BillNumber,
		})
	}
	if bill.TaxTotal.IsPositive() {
		lines = append(lines, NewTransactionLine{
			AccountId:   systemAccounts[SystemAccountTaxPayable],
			Debit:       bill.TaxTotal,
			Description: "Input tax on bill " + bill.BillNumber,
		})
	}
	lines = append(lines, NewTransactionLine{
		AccountId:   systemAccounts[SystemAccountAccountsPayable],
		Credit:      bill.TotalAmount,
		Description: "Bill " + bill.BillNumber,
	})
	if bill.DiscountTotal.IsPositive() {
		lines = append(lines, NewTransactionLine{
			AccountId:   systemAccounts[SystemAccountDiscounts],
			Credit:      bill.DiscountTotal,
			Description: "Discount on bill " + bill.BillNumber,
		})
	}

	// A zero-amount bill has nothing to post.
	if bill.TotalAmount.IsPositive() {
		entry := NewTransaction{
			TransactionDate: bill.BillDate,
			Description:     "Bill " + bill.BillNumber,
			ReferenceNumber: bill.VendorBillNumber,
			Lines:           lines,
		}
		if _, err := createTransactionTx(ctx, tx, &entry, TransactionSourceTypeBill, bill.ID); err != nil {
			return err
		}
	}

	return tx.WithContext(ctx).Model(bill).Update("current_status", BillStatusReceived).Error
}

// effectiveUnitCost spreads a line discount across the received units.
func effectiveUnitCost(netAmount, qty decimal.Decimal) decimal.Decimal {
	if qty.IsZero() {
		return decimal.Zero
	}
	return netAmount.DivRound(qty, 4)
}

func CreateBill(ctx context.Context, input *NewBill) (*Bill, error) {
	if _, _, err := utils.RequireActor(ctx); err != nil {
		return nil, err
	}
	if err := input.validate(ctx, 0); err != nil {
		return nil, err
	}

	requestedStatus := input.CurrentStatus
	if requestedStatus != "" && requestedStatus != BillStatusDraft && requestedStatus != BillStatusReceived {
		return nil, utils.NewValidationError("current_status", "new bills can only be Draft or Received")
	}

	vendor, err := utils.FetchModel[Vendor](ctx, input.VendorId)
	if err != nil {
		return nil, err
	}

	paymentTerms := input.PaymentTerms
	customDays := input.PaymentTermsCustomDays
	if paymentTerms == "" {
		paymentTerms = vendor.PaymentTerms
		customDays = vendor.PaymentTermsCustomDays
	}
	dueDate := input.DueDate
	if dueDate == nil {
		dueDate = calculateDueDate(input.BillDate, paymentTerms, customDays)
	}

	seqNo, err := utils.GetSequence[Bill](ctx)
	if err != nil {
		return nil, err
	}

	lines, subtotal, discountTotal, taxTotal, total := receiveBillLines(input.Lines, input.DiscountPct)

	bill := Bill{
		BillNumber:             formatDocumentNumber(billNumberFormat, seqNo),
		SequenceNo:             decimal.NewFromInt(seqNo),
		VendorId:               input.VendorId,
		BillDate:               input.BillDate,
		PaymentTerms:           paymentTerms,
		PaymentTermsCustomDays: customDays,
		DueDate:                dueDate,
		VendorBillNumber:       input.VendorBillNumber,
		Notes:                  input.Notes,
		CurrentStatus:          BillStatusDraft,
		Subtotal:               subtotal,
		DiscountPct:            input.DiscountPct,
		DiscountTotal:          discountTotal,
		TaxTotal:               taxTotal,
		TotalAmount:            total,
		BalanceDue:             total,
		Lines:                  lines,
	}

	db := config.GetDB()
	tx := db.Begin()
	if err := tx.WithContext(ctx).Create(&bill).Error; err != nil {
		tx.Rollback()
		return nil, err
	}

	if requestedStatus == BillStatusReceived {
		if err := receiveBillTx(ctx, tx, &bill); err != nil {
			tx.Rollback()
			return nil, err
		}
		bill.CurrentStatus = BillStatusReceived
	}

	if err := tx.Commit().Error; err != nil {
		return nil, err
	}

	SaveHistoryCreate(ctx, bill.ID, "bills", &bill, "Bill "+bill.BillNumber+" created.")
	return utils.FetchModel[Bill](ctx, bill.ID, "Lines", "Vendor")
}

// ReceiveBill transitions a Draft bill to Received, posting its ledger
// entries and receiving inventory.
func ReceiveBill(ctx context.Context, id int) (*Bill, error) {
	if _, _, err := utils.RequireActor(ctx); err != nil {
		return nil, err
	}

	bill, err := utils.FetchModel[Bill](ctx, id, "Lines")
	if err != nil {
		return nil, err
	}
	if bill.CurrentStatus == BillStatusVoid {
		return nil, utils.ErrorAlreadyVoid
	}
	if bill.CurrentStatus != BillStatusDraft {
		return nil, utils.NewValidationError("current_status", "only draft bills can be received")
	}

	db := config.GetDB()
	tx := db.Begin()
	if err := receiveBillTx(ctx, tx, bill); err != nil {
		tx.Rollback()
		return nil, err
	}
	if err := tx.Commit().Error; err != nil {
		return nil, err
	}

	SaveHistoryUpdate(ctx, id, "bills", bill, nil, "Bill "+bill.BillNumber+" received.")
	return utils.FetchModel[Bill](ctx, id, "Lines", "Vendor")
}

// UpdateBill replaces a draft or unpaid received bill. Once any payment
// has been applied, or the bill is paid or void, it is immutable.
func UpdateBill(ctx context.Context, id int, input *NewBill) (*Bill, error) {
	if _, _, err := utils.RequireActor(ctx); err != nil {
		return nil, err
	}
	if err := input.validate(ctx, id); err != nil {
		return nil, err
	}

	oldBill, err := utils.FetchModel[Bill](ctx, id, "Lines")
	if err != nil {
		return nil, err
	}

	switch oldBill.CurrentStatus {
	case BillStatusVoid:
		return nil, utils.ErrorAlreadyVoid
	case BillStatusDraft, BillStatusReceived, BillStatusOverdue:
	default:
		return nil, utils.ErrorImmutableDocument
	}
	if oldBill.AmountPaid.IsPositive() {
		return nil, utils.ErrorImmutableDocument
	}

	vendor, err := utils.FetchModel[Vendor](ctx, input.VendorId)
	if err != nil {
		return nil, err
	}

	paymentTerms := input.PaymentTerms
	customDays := input.PaymentTermsCustomDays
	if paymentTerms == "" {
		paymentTerms = vendor.PaymentTerms
		customDays = vendor.PaymentTermsCustomDays
	}
	dueDate := input.DueDate
	if dueDate == nil {
		dueDate = calculateDueDate(input.BillDate, paymentTerms, customDays)
	}

	lines, subtotal, discountTotal, taxTotal, total := receiveBillLines(input.Lines, input.DiscountPct)

	wasPosted := oldBill.CurrentStatus != BillStatusDraft

	db := config.GetDB()
	tx := db.Begin()

	if err := AcquireDocumentLock(tx, "bill", id); err != nil {
		tx.Rollback()
		return nil, err
	}

	if wasPosted {
		if err := reverseSourceTransactionsTx(ctx, tx, TransactionSourceTypeBill, id, "Bill "+oldBill.BillNumber+" edited"); err != nil {
			tx.Rollback()
			return nil, err
		}
		if err := reverseBillInventoryTx(ctx, tx, oldBill); err != nil {
			tx.Rollback()
			return nil, err
		}
	}

	if err := tx.WithContext(ctx).Where("bill_id = ?", id).Delete(&BillLine{}).Error; err != nil {
		tx.Rollback()
		return nil, err
	}
	for i := range lines {
		lines[i].BillId = id
	}
	if err := tx.WithContext(ctx).Create(&lines).Error; err != nil {
		tx.Rollback()
		return nil, err
	}

	err = tx.WithContext(ctx).Model(&Bill{}).Where("id = ?", id).Updates(map[string]interface{}{
		"vendor_id":                 input.VendorId,
		"bill_date":                 input.BillDate,
		"payment_terms":             paymentTerms,
		"payment_terms_custom_days": customDays,
		"due_date":                  dueDate,
		"vendor_bill_number":        input.VendorBillNumber,
		"notes":                     input.Notes,
		"subtotal":                  subtotal,
		"discount_pct":              input.DiscountPct,
		"discount_total":            discountTotal,
		"tax_total":                 taxTotal,
		"total_amount":              total,
		"balance_due":               total,
		"current_status":            BillStatusDraft,
	}).Error
	if err != nil {
		tx.Rollback()
		return nil, err
	}

	if wasPosted {
		updated := Bill{
			ID:               id,
			BillNumber:       oldBill.BillNumber,
			BillDate:         input.BillDate,
			VendorBillNumber: input.VendorBillNumber,
			Subtotal:         subtotal,
			DiscountPct:      input.DiscountPct,
			DiscountTotal:    discountTotal,
			TaxTotal:         taxTotal,
			TotalAmount:      total,
			BalanceDue:       total,
			Lines:            lines,
		}
		if err := receiveBillTx(ctx, tx, &updated); err != nil {
			tx.Rollback()
			return nil, err
		}
	}

	ReleaseDocumentLock(tx, "bill", id)
	if err := tx.Commit().Error; err != nil {
		return nil, err
	}

	bill, err := utils.FetchModel[Bill](ctx, id, "Lines", "Vendor")
	if err != nil {
		return nil, err
	}
	SaveHistoryUpdate(ctx, id, "bills", oldBill, bill, "Bill "+bill.BillNumber+" updated.")
	return bill, nil
}

// reverseBillInventoryTx removes the stock a bill received. Fails when
// the stock has already been consumed by later sales.
func reverseBillInventoryTx(ctx context.Context, tx *gorm.DB, bill *Bill) error {
	for _, line := range bill.Lines {
		if line.ItemId == 0 {
			continue
		}
		if err := AcquireDocumentLock(tx, "item", line.ItemId); err != nil {
			return err
		}
		movements, err := itemMovements(ctx, tx, line.ItemId, nil)
		if err != nil {
			return err
		}
		if onHandQty(movements).Cmp(line.Qty) == -1 {
			return utils.NewValidationError("lines", "stock received on this bill has already been consumed")
		}
		reversal := InventoryTransaction{
			ItemId:        line.ItemId,
			MovementType:  InventoryMovementTypePurchase,
			MovementDate:  bill.BillDate,
			Qty:           line.Qty.Neg(),
			UnitCost:      effectiveUnitCost(line.LineTotal.Sub(line.DiscountAmount), line.Qty),
			Reason:        "Reversal of receipt on bill " + bill.BillNumber,
			ReferenceType: TransactionSourceTypeBill,
			ReferenceID:   bill.ID,
			IsReversal:    true,
		}
		if err := recordInventoryMovementTx(ctx, tx, &reversal); err != nil {
			return err
		}
	}
	return nil
}

// VoidBill reverses the bill's ledger postings and removes the inventory
// it received. Payments must be voided first.
func VoidBill(ctx context.Context, id int, reason string) (*Bill, error) {
	if _, _, err := utils.RequireActor(ctx); err != nil {
		return nil, err
	}
	if reason == "" {
		return nil, utils.NewValidationError("reason", "reason is required")
	}
	if len(reason) > 500 {
		return nil, utils.NewValidationError("reason", "reason cannot exceed 500 characters")
	}

	bill, err := utils.FetchModel[Bill](ctx, id, "Lines")
	if err != nil {
		return nil, err
	}
	if bill.CurrentStatus == BillStatusVoid {
		return nil, utils.ErrorAlreadyVoid
	}
	if bill.AmountPaid.IsPositive() {
		return nil, utils.NewValidationError("id", "bill has applied payments; void the payments first")
	}

	now := time.Now().UTC()

	db := config.GetDB()
	tx := db.Begin()

	if err := AcquireDocumentLock(tx, "bill", id); err != nil {
		tx.Rollback()
		return nil, err
	}

	if err := reverseSourceTransactionsTx(ctx, tx, TransactionSourceTypeBill, id, reason); err != nil {
		tx.Rollback()
		return nil, err
	}
	if err := reverseBillInventoryTx(ctx, tx, bill); err != nil {
		tx.Rollback()
		return nil, err
	}

	err = tx.WithContext(ctx).Model(&Bill{}).Where("id = ?", id).Updates(map[string]interface{}{
		"current_status": BillStatusVoid,
		"balance_due":    decimal.Zero,
		"void_reason":    reason,
		"voided_at":      &now,
	}).Error
	if err != nil {
		tx.Rollback()
		return nil, err
	}

	ReleaseDocumentLock(tx, "bill", id)
	if err := tx.Commit().Error; err != nil {
		return nil, err
	}

	SaveHistoryVoid(ctx, id, "bills", bill, "Bill "+bill.BillNumber+" voided: "+reason)
	return utils.FetchModel[Bill](ctx, id, "Lines", "Vendor")
}

// DeleteBill removes a never-posted draft and its lines. Posted bills
// keep their history and must be voided instead.
func DeleteBill(ctx context.Context, id int) (*Bill, error) {
	if _, _, err := utils.RequireActor(ctx); err != nil {
		return nil, err
	}

	bill, err := utils.FetchModel[Bill](ctx, id, "Lines")
	if err != nil {
		return nil, err
	}
	if bill.CurrentStatus != BillStatusDraft {
		return nil, utils.NewValidationError("id", "only draft bills can be deleted; void posted bills instead")
	}

	db := config.GetDB()
	tx := db.Begin()
	if err := tx.WithContext(ctx).Where("bill_id = ?", id).Delete(&BillLine{}).Error; err != nil {
		tx.Rollback()
		return nil, err
	}
	if err := tx.WithContext(ctx).Delete(&Bill{}, id).Error; err != nil {
		tx.Rollback()
		return nil, err
	}
	if err := tx.Commit().Error; err != nil {
		return nil, err
	}

	SaveHistoryDelete(ctx, id, "bills", bill, "Bill "+bill.BillNumber+" deleted.")
	return bill, nil
}

func GetBill(ctx context.Context, id int) (*Bill, error) {
	return utils.FetchModel[Bill](ctx, id, "Lines", "Vendor")
}

func GetBills(ctx context.Context, vendorId *int, status *BillStatus, fromDate *time.Time, toDate *time.Time) ([]*Bill, error) {
	db := config.GetDB()
	var bills []*Bill

	dbCtx := db.WithContext(ctx).Preload("Lines").Preload("Vendor")
	if vendorId != nil && *vendorId > 0 {
		dbCtx = dbCtx.Where("vendor_id = ?", *vendorId)
	}
	if status != nil && *status != "" {
		dbCtx = dbCtx.Where("current_status = ?", *status)
	}
	if fromDate != nil {
		dbCtx = dbCtx.Where("bill_date >= ?", fromDate)
	}
	if toDate != nil {
		dbCtx = dbCtx.Where("bill_date <= ?", toDate)
	}
	err := dbCtx.Order("bill_date DESC, id DESC").Find(&bills).Error
	if err != nil {
		return nil, err
	}
	return bills, nil
}

// GetBillableLines lists unbilled billable expense lines for a customer,
// ready to be recharged onto an invoice.
func GetBillableLines(ctx context.Context, customerId int) ([]*BillLine, error) {
	db := config.GetDB()
	var lines []*BillLine
	err := db.WithContext(ctx).
		Joins("JOIN bills ON bills.id = bill_lines.bill_id").
		Where("bill_lines.billable = ? AND bill_lines.billable_customer_id = ?", true, customerId).
		Where("bills.current_status NOT IN ?", []BillStatus{BillStatusDraft, BillStatusVoid}).
		Order("bill_lines.id ASC").
		Find(&lines).Error
	if err != nil {
		return nil, err
	}
	return lines, nil
}

// RefreshOverdueBills flips unpaid received bills past their due date
// to Overdue. Partially paid bills keep reporting Partial Paid.
func RefreshOverdueBills(ctx context.Context, today time.Time) (int64, error) {
	db := config.GetDB()
	result := db.WithContext(ctx).Model(&Bill{}).
		Where("current_status = ?", BillStatusReceived).
		Where("due_date IS NOT NULL AND due_date < ?", utils.TruncateToDate(today)).
		Update("current_status", BillStatusOverdue)
	return result.RowsAffected, result.Error
}
