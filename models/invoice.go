package models

import (
	"context"
	"time"

	"bitbucket.org/mmdatafocus/ledger_backend/config"
	"bitbucket.org/mmdatafocus/ledger_backend/utils"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

type Invoice struct {
	ID                     int             `gorm:"primary_key" json:"id"`
	InvoiceNumber          string          `gorm:"size:255;not null;index" json:"invoice_number"`
	SequenceNo             decimal.Decimal `gorm:"type:decimal(15);not null" json:"sequence_no"`
	CustomerId             int             `gorm:"index;not null" json:"customer_id" binding:"required"`
	Customer               *Customer       `json:"customer"`
	InvoiceDate            time.Time       `gorm:"not null" json:"invoice_date" binding:"required"`
	PaymentTerms           PaymentTerms    `gorm:"type:enum('Net15', 'Net30', 'Net45', 'Net60', 'DueMonthEnd', 'DueNextMonthEnd', 'DueOnReceipt', 'Custom');not null;default:'DueOnReceipt'" json:"payment_terms"`
	PaymentTermsCustomDays int             `gorm:"default:0" json:"payment_terms_custom_days"`
	DueDate                *time.Time      `gorm:"index" json:"due_date"`
	ReferenceNumber        string          `gorm:"size:255" json:"reference_number"`
	Notes                  string          `gorm:"type:text" json:"notes"`
	CurrentStatus          InvoiceStatus   `gorm:"type:enum('Draft','Sent','Partial Paid','Paid','Overdue','Void');not null;default:'Draft';index" json:"current_status"`
	// Money fields are computed server side from the lines; client-supplied
	// totals are ignored.
	Subtotal      decimal.Decimal `gorm:"type:decimal(20,4);default:0" json:"subtotal"`
	DiscountPct   decimal.Decimal `gorm:"type:decimal(20,4);default:0" json:"discount_pct"`
	DiscountTotal decimal.Decimal `gorm:"type:decimal(20,4);default:0" json:"discount_total"`
	TaxTotal      decimal.Decimal `gorm:"type:decimal(20,4);default:0" json:"tax_total"`
	TotalAmount   decimal.Decimal `gorm:"type:decimal(20,4);default:0" json:"total_amount"`
	AmountPaid    decimal.Decimal `gorm:"type:decimal(20,4);default:0" json:"amount_paid"`
	BalanceDue    decimal.Decimal `gorm:"type:decimal(20,4);default:0" json:"balance_due"`
	VoidReason    *string         `gorm:"type:text" json:"void_reason"`
	VoidedAt      *time.Time      `json:"voided_at"`
	Lines         []InvoiceLine   `gorm:"foreignKey:InvoiceId" json:"lines"`
	CreatedAt     time.Time       `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt     time.Time       `gorm:"autoUpdateTime" json:"updated_at"`
}

type InvoiceLine struct {
	ID          int    `gorm:"primary_key" json:"id"`
	InvoiceId   int    `gorm:"index;not null" json:"invoice_id"`
	ItemId      int    `gorm:"index;default:0" json:"item_id"`
	Name        string `gorm:"size:255;not null" json:"name"`
	Description string `gorm:"size:255" json:"description"`
	// Revenue posts to this account; zero means the default sales account.
	RevenueAccountId int             `gorm:"default:0" json:"revenue_account_id"`
	Qty              decimal.Decimal `gorm:"type:decimal(20,4);default:0" json:"qty"`
	UnitPrice        decimal.Decimal `gorm:"type:decimal(20,4);default:0" json:"unit_price"`
	DiscountPct      decimal.Decimal `gorm:"type:decimal(20,4);default:0" json:"discount_pct"`
	DiscountAmount   decimal.Decimal `gorm:"type:decimal(20,4);default:0" json:"discount_amount"`
	TaxRate          decimal.Decimal `gorm:"type:decimal(20,4);default:0" json:"tax_rate"`
	TaxAmount        decimal.Decimal `gorm:"type:decimal(20,4);default:0" json:"tax_amount"`
	LineTotal        decimal.Decimal `gorm:"type:decimal(20,4);default:0" json:"line_total"`
	CreatedAt        time.Time       `gorm:"autoCreateTime" json:"created_at"`
}

type NewInvoice struct {
	CustomerId             int              `json:"customer_id" binding:"required"`
	InvoiceDate            time.Time        `json:"invoice_date" binding:"required"`
	PaymentTerms           PaymentTerms     `json:"payment_terms"`
	PaymentTermsCustomDays int              `json:"payment_terms_custom_days"`
	DueDate                *time.Time       `json:"due_date"`
	DiscountPct            decimal.Decimal  `json:"discount_pct"`
	ReferenceNumber        string           `json:"reference_number"`
	Notes                  string           `json:"notes"`
	CurrentStatus          InvoiceStatus    `json:"current_status"`
	Lines                  []NewInvoiceLine `json:"lines"`
}

type NewInvoiceLine struct {
	ItemId           int             `json:"item_id"`
	Name             string          `json:"name"`
	Description      string          `json:"description"`
	RevenueAccountId int             `json:"revenue_account_id"`
	Qty              decimal.Decimal `json:"qty" binding:"required"`
	UnitPrice        decimal.Decimal `json:"unit_price"`
	DiscountPct      decimal.Decimal `json:"discount_pct"`
	TaxRate          decimal.Decimal `json:"tax_rate"`
}

func (i *Invoice) GetId() int {
	return i.ID
}

func (input *NewInvoice) validate(ctx context.Context, id int) error {
	if id > 0 {
		if err := utils.ValidateResourceId[Invoice](ctx, id); err != nil {
			return err
		}
	}
	if len(input.Lines) == 0 {
		return utils.NewValidationError("lines", "at least one line is required")
	}

	customer, err := utils.FetchModel[Customer](ctx, input.CustomerId)
	if err != nil {
		return utils.NewValidationError("customer_id", "customer not found")
	}
	if customer.IsActive != nil && !*customer.IsActive {
		return utils.NewValidationError("customer_id", "customer is inactive")
	}

	if input.PaymentTerms != "" {
		if err := input.PaymentTerms.Validate(); err != nil {
			return utils.NewValidationError("payment_terms", err.Error())
		}
		if input.PaymentTerms == PaymentTermsCustom && input.PaymentTermsCustomDays <= 0 {
			return utils.NewValidationError("payment_terms_custom_days", "custom payment terms require a positive day count")
		}
	}
	if input.DueDate != nil && utils.TruncateToDate(*input.DueDate).Before(utils.TruncateToDate(input.InvoiceDate)) {
		return utils.NewValidationError("due_date", "due date cannot be before the invoice date")
	}
	if err := validateDiscountPct(input.DiscountPct); err != nil {
		return err
	}

	itemIds := make([]int, 0, len(input.Lines))
	accountIds := make([]int, 0, len(input.Lines))
	for _, line := range input.Lines {
		if line.Qty.IsZero() || line.Qty.IsNegative() {
			return utils.NewValidationError("lines", "quantity must be positive")
		}
		if line.UnitPrice.IsNegative() {
			return utils.NewValidationError("lines", "unit price cannot be negative")
		}
		if line.TaxRate.IsNegative() {
			return utils.NewValidationError("lines", "tax rate cannot be negative")
		}
		if err := validateDiscountPct(line.DiscountPct); err != nil {
			return err
		}
		if line.ItemId == 0 && line.Name == "" {
			return utils.NewValidationError("lines", "name is required for non-item lines")
		}
		if line.ItemId > 0 {
			itemIds = append(itemIds, line.ItemId)
		}
		if line.RevenueAccountId > 0 {
			accountIds = append(accountIds, line.RevenueAccountId)
		}
	}
	if len(itemIds) > 0 {
		if err := utils.ValidateResourcesId[Item](ctx, itemIds); err != nil {
			return utils.NewValidationError("lines", "item not found")
		}
	}
	if len(accountIds) > 0 {
		if err := utils.ValidateResourcesId[Account](ctx, accountIds); err != nil {
			return utils.NewValidationError("lines", "revenue account not found")
		}
	}
	return nil
}

func validateDiscountPct(pct decimal.Decimal) error {
	if pct.IsNegative() || pct.Cmp(decimal.NewFromInt(100)) == 1 {
		return utils.NewValidationError("discount_pct", "discount must be between 0 and 100 percent")
	}
	return nil
}

// receiveInvoiceLines computes line and document totals. Per line:
// line_total = qty * unit_price, the discount percentage comes off the
// line total, and the fractional tax rate (0.08 for 8%) applies to the
// discounted base. The header discount percentage then comes off the
// line-discounted subtotal. Amounts are rounded to 2 decimal places.
func receiveInvoiceLines(inputs []NewInvoiceLine, headerDiscountPct decimal.Decimal) (lines []InvoiceLine, subtotal, discountTotal, taxTotal, total decimal.Decimal) {
	hundred := decimal.NewFromInt(100)
	for _, l := range inputs {
		lineTotal := l.Qty.Mul(l.UnitPrice).Round(2)
		lineDiscount := lineTotal.Mul(l.DiscountPct).Div(hundred).Round(2)
		lineTax := lineTotal.Sub(lineDiscount).Mul(l.TaxRate).Round(2)
		lines = append(lines, InvoiceLine{
			ItemId:           l.ItemId,
			Name:             l.Name,
			Description:      l.Description,
			RevenueAccountId: l.RevenueAccountId,
			Qty:              l.Qty,
			UnitPrice:        l.UnitPrice,
			DiscountPct:      l.DiscountPct,
			DiscountAmount:   lineDiscount,
			TaxRate:          l.TaxRate,
			TaxAmount:        lineTax,
			LineTotal:        lineTotal,
		})
		subtotal = subtotal.Add(lineTotal).Sub(lineDiscount)
		taxTotal = taxTotal.Add(lineTax)
	}
	discountTotal = subtotal.Mul(headerDiscountPct).Div(hundred).Round(2)
	total = subtotal.Sub(discountTotal).Add(taxTotal)
	return lines, subtotal, discountTotal, taxTotal, total
}

// NextInvoiceStatus derives the payment-driven status of an invoice.
// Void and Draft are terminal for this purpose and pass through.
func NextInvoiceStatus(current InvoiceStatus, totalAmount, amountPaid, balanceDue decimal.Decimal, dueDate *time.Time, today time.Time) InvoiceStatus {
	if current == InvoiceStatusDraft || current == InvoiceStatusVoid {
		return current
	}
	if balanceDue.IsZero() || balanceDue.IsNegative() {
		return InvoiceStatusPaid
	}
	if amountPaid.IsPositive() {
		return InvoiceStatusPartialPaid
	}
	if dueDate != nil && dueDate.Before(utils.TruncateToDate(today)) {
		return InvoiceStatusOverdue
	}
	return InvoiceStatusSent
}

// creditLimitExceeded reports whether adding amount to the customer's
// outstanding balance would push it over the limit. A zero limit means
// unlimited.
func creditLimitExceeded(limit, outstanding, amount decimal.Decimal) bool {
	if !limit.IsPositive() {
		return false
	}
	return outstanding.Add(amount).Cmp(limit) == 1
}

// checkCreditLimitTx sums the customer's open balances and rejects the
// invoice when it would exceed the credit limit. excludeId skips the
// invoice being reposted; pass 0 for a new invoice.
func checkCreditLimitTx(ctx context.Context, tx *gorm.DB, customer *Customer, excludeId int, amount decimal.Decimal) error {
	if !customer.CreditLimit.IsPositive() {
		return nil
	}
	var result struct {
		Total decimal.Decimal
	}
	err := tx.WithContext(ctx).Model(&Invoice{}).
		Select("COALESCE(SUM(balance_due), 0) AS total").
		Where("customer_id = ?", customer.ID).
		Where("current_status NOT IN ?", []InvoiceStatus{InvoiceStatusDraft, InvoiceStatusVoid}).
		Where("id <> ?", excludeId).
		Scan(&result).Error
	if err != nil {
		return err
	}
	if creditLimitExceeded(customer.CreditLimit, result.Total, amount) {
		return utils.ErrorCreditLimitExceeded
	}
	return nil
}

// confirmInvoiceTx runs the Draft -> Sent transition: credit limit check,
// inventory consumption with COGS, and the balanced ledger posting. Called
// inside the caller's transaction while holding the customer lock.
func confirmInvoiceTx(ctx context.Context, tx *gorm.DB, invoice *Invoice, customer *Customer) error {

	if err := checkCreditLimitTx(ctx, tx, customer, invoice.ID, invoice.TotalAmount); err != nil {
		return err
	}

	systemAccounts, err := GetSystemAccounts(ctx)
	if err != nil {
		return err
	}

	// Consume stock for item lines and accumulate COGS. Service and
	// non-inventory items post revenue only.
	totalCogs := decimal.Zero
	for _, line := range invoice.Lines {
		if line.ItemId == 0 {
			continue
		}
		tracksStock, err := itemTracksStockTx(ctx, tx, line.ItemId)
		if err != nil {
			return err
		}
		if !tracksStock {
			continue
		}
		if err := AcquireDocumentLock(tx, "item", line.ItemId); err != nil {
			return err
		}
		cogs, err := recordSaleTx(ctx, tx, line.ItemId, line.Qty, invoice.InvoiceDate, TransactionSourceTypeInvoice, invoice.ID)
		if err != nil {
			return err
		}
		totalCogs = totalCogs.Add(cogs)
	}

	lines := []NewTransactionLine{
		{AccountId: systemAccounts[SystemAccountAccountsReceivable], Debit: invoice.TotalAmount, Description: "Invoice " + invoice.InvoiceNumber},
	}
	if invoice.DiscountTotal.IsPositive() {
		lines = append(lines, NewTransactionLine{
			AccountId:   systemAccounts[SystemAccountDiscounts],
			Debit:       invoice.DiscountTotal,
			Description: "Discount on invoice " + invoice.InvoiceNumber,
		})
	}
	for _, invLine := range invoice.Lines {
		revenue := invLine.LineTotal.Sub(invLine.DiscountAmount)
		if !revenue.IsPositive() {
			continue
		}
		accountId := invLine.RevenueAccountId
		if accountId == 0 {
			accountId = systemAccounts[SystemAccountSalesRevenue]
		}
		lines = append(lines, NewTransactionLine{
			AccountId:   accountId,
			Credit:      revenue,
			Description: invLine.Name,
		})
	}
	if invoice.TaxTotal.IsPositive() {
		lines = append(lines, NewTransactionLine{
			AccountId:   systemAccounts[SystemAccountTaxPayable],
			Credit:      invoice.TaxTotal,
			Description: "Tax on invoice " + invoice.InvoiceNumber,
		})
	}
	// A zero-amount invoice has nothing to post.
	if invoice.TotalAmount.IsPositive() {
		entry := NewTransaction{
			TransactionDate: invoice.InvoiceDate,
			Description:     "Invoice " + invoice.InvoiceNumber,
			ReferenceNumber: invoice.ReferenceNumber,
			Lines:           lines,
		}
		if _, err := createTransactionTx(ctx, tx, &entry, TransactionSourceTypeInvoice, invoice.ID); err != nil {
			return err
		}
	}

	if totalCogs.IsPositive() {
		cogsEntry := NewTransaction{
			TransactionDate: invoice.InvoiceDate,
			Description:     "COGS for invoice " + invoice.InvoiceNumber,
			Lines: []NewTransactionLine{
				{AccountId: systemAccounts[SystemAccountCOGS], Debit: totalCogs, Description: "COGS for invoice " + invoice.InvoiceNumber},
				{AccountId: systemAccounts[SystemAccountInventoryAsset], Credit: totalCogs, Description: "COGS for invoice " + invoice.InvoiceNumber},
			},
		}
		if _, err := createTransactionTx(ctx, tx, &cogsEntry, TransactionSourceTypeInvoice, invoice.ID); err != nil {
			return err
		}
	}

	return tx.WithContext(ctx).Model(invoice).Update("current_status", InvoiceStatusSent).Error
}

func CreateInvoice(ctx context.Context, input *NewInvoice) (*Invoice, error) {
	if _, _, err := utils.RequireActor(ctx); err != nil {
		return nil, err
	}
	if err := input.validate(ctx, 0); err != nil {
		return nil, err
	}

	// A requested "Sent" still creates as Draft and transitions inside the
	// same DB transaction so posting always goes through one path.
	requestedStatus := input.CurrentStatus
	if requestedStatus != "" && requestedStatus != InvoiceStatusDraft && requestedStatus != InvoiceStatusSent {
		return nil, utils.NewValidationError("current_status", "new invoices can only be Draft or Sent")
	}

	customer, err := utils.FetchModel[Customer](ctx, input.CustomerId)
	if err != nil {
		return nil, err
	}

	paymentTerms := input.PaymentTerms
	customDays := input.PaymentTermsCustomDays
	if paymentTerms == "" {
		paymentTerms = customer.PaymentTerms
		customDays = customer.PaymentTermsCustomDays
	}
	dueDate := input.DueDate
	if dueDate == nil {
		dueDate = calculateDueDate(input.InvoiceDate, paymentTerms, customDays)
	}

	seqNo, err := utils.GetSequence[Invoice](ctx)
	if err != nil {
		return nil, err
	}

	lines, subtotal, discountTotal, taxTotal, total := receiveInvoiceLines(input.Lines, input.DiscountPct)

	invoice := Invoice{
		InvoiceNumber:          formatDocumentNumber(invoiceNumberFormat, seqNo),
		SequenceNo:             decimal.NewFromInt(seqNo),
		CustomerId:             input.CustomerId,
		InvoiceDate:            input.InvoiceDate,
		PaymentTerms:           paymentTerms,
		PaymentTermsCustomDays: customDays,
		DueDate:                dueDate,
		ReferenceNumber:        input.ReferenceNumber,
		Notes:                  input.Notes,
		CurrentStatus:          InvoiceStatusDraft,
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

	// The credit limit applies to every new invoice, Draft included.
	if err := checkCreditLimitTx(ctx, tx, customer, 0, invoice.TotalAmount); err != nil {
		tx.Rollback()
		return nil, err
	}

	if err := tx.WithContext(ctx).Create(&invoice).Error; err != nil {
		tx.Rollback()
		return nil, err
	}

	if requestedStatus == InvoiceStatusSent {
		if err := AcquireDocumentLock(tx, "customer", customer.ID); err != nil {
			tx.Rollback()
			return nil, err
		}
		if err := confirmInvoiceTx(ctx, tx, &invoice, customer); err != nil {
			tx.Rollback()
			return nil, err
		}
		invoice.CurrentStatus = InvoiceStatusSent
	}

	if err := tx.Commit().Error; err != nil {
		return nil, err
	}

	SaveHistoryCreate(ctx, invoice.ID, "invoices", &invoice, "Invoice "+invoice.InvoiceNumber+" created.")
	return utils.FetchModel[Invoice](ctx, invoice.ID, "Lines", "Customer")
}

// SendInvoice transitions a Draft invoice to Sent, posting its ledger
// entries and consuming inventory.
func SendInvoice(ctx context.Context, id int) (*Invoice, error) {
	if _, _, err := utils.RequireActor(ctx); err != nil {
		return nil, err
	}

	invoice, err := utils.FetchModel[Invoice](ctx, id, "Lines")
	if err != nil {
		return nil, err
	}
	if invoice.CurrentStatus == InvoiceStatusVoid {
		return nil, utils.ErrorAlreadyVoid
	}
	if invoice.CurrentStatus != InvoiceStatusDraft {
		return nil, utils.NewValidationError("current_status", "only draft invoices can be sent")
	}

	customer, err := utils.FetchModel[Customer](ctx, invoice.CustomerId)
	if err != nil {
		return nil, err
	}

	db := config.GetDB()
	tx := db.Begin()
	if err := AcquireDocumentLock(tx, "customer", customer.ID); err != nil {
		tx.Rollback()
		return nil, err
	}
	if err := confirmInvoiceTx(ctx, tx, invoice, customer); err != nil {
		tx.Rollback()
		return nil, err
	}
	if err := tx.Commit().Error; err != nil {
		return nil, err
	}

	SaveHistoryUpdate(ctx, id, "invoices", invoice, nil, "Invoice "+invoice.InvoiceNumber+" sent.")
	return utils.FetchModel[Invoice](ctx, id, "Lines", "Customer")
}

// reverseInvoiceInventoryTx re-adds the stock an invoice consumed by
// appending opposite movements at the original unit costs.
func reverseInvoiceInventoryTx(ctx context.Context, tx *gorm.DB, sourceType TransactionSourceType, sourceId int) error {
	var movements []*InventoryTransaction
	err := tx.WithContext(ctx).
		Where("reference_type = ? AND reference_id = ?", sourceType, sourceId).
		Where("is_reversal = ?", false).
		Find(&movements).Error
	if err != nil {
		return err
	}
	for _, m := range movements {
		reversal := InventoryTransaction{
			ItemId:        m.ItemId,
			MovementType:  m.MovementType,
			MovementDate:  m.MovementDate,
			Qty:           m.Qty.Neg(),
			UnitCost:      m.UnitCost,
			Reason:        "Reversal of movement for voided document",
			ReferenceType: sourceType,
			ReferenceID:   sourceId,
			IsReversal:    true,
		}
		if err := recordInventoryMovementTx(ctx, tx, &reversal); err != nil {
			return err
		}
	}
	return nil
}

// UpdateInvoice replaces a draft or unpaid sent invoice. Once any payment
// has been applied, or the invoice is paid or void, it is immutable.
func UpdateInvoice(ctx context.Context, id int, input *NewInvoice) (*Invoice, error) {
	if _, _, err := utils.RequireActor(ctx); err != nil {
		return nil, err
	}
	if err := input.validate(ctx, id); err != nil {
		return nil, err
	}

	oldInvoice, err := utils.FetchModel[Invoice](ctx, id, "Lines")
	if err != nil {
		return nil, err
	}

	switch oldInvoice.CurrentStatus {
	case InvoiceStatusVoid:
		return nil, utils.ErrorAlreadyVoid
	case InvoiceStatusDraft, InvoiceStatusSent, InvoiceStatusOverdue:
		// editable below, subject to the payment check
	default:
		return nil, utils.ErrorImmutableDocument
	}
	if oldInvoice.AmountPaid.IsPositive() {
		return nil, utils.ErrorImmutableDocument
	}

	customer, err := utils.FetchModel[Customer](ctx, input.CustomerId)
	if err != nil {
		return nil, err
	}

	paymentTerms := input.PaymentTerms
	customDays := input.PaymentTermsCustomDays
	if paymentTerms == "" {
		paymentTerms = customer.PaymentTerms
		customDays = customer.PaymentTermsCustomDays
	}
	dueDate := input.DueDate
	if dueDate == nil {
		dueDate = calculateDueDate(input.InvoiceDate, paymentTerms, customDays)
	}

	lines, subtotal, discountTotal, taxTotal, total := receiveInvoiceLines(input.Lines, input.DiscountPct)

	wasPosted := oldInvoice.CurrentStatus != InvoiceStatusDraft

	db := config.GetDB()
	tx := db.Begin()

	if err := AcquireDocumentLock(tx, "invoice", id); err != nil {
		tx.Rollback()
		return nil, err
	}

	if wasPosted {
		// Reverse the old posting and inventory, then repost with the new
		// content so the ledger reflects the edit without destroying history.
		if err := reverseSourceTransactionsTx(ctx, tx, TransactionSourceTypeInvoice, id, "Invoice "+oldInvoice.InvoiceNumber+" edited"); err != nil {
			tx.Rollback()
			return nil, err
		}
		if err := reverseInvoiceInventoryTx(ctx, tx, TransactionSourceTypeInvoice, id); err != nil {
			tx.Rollback()
			return nil, err
		}
	}

	// Lines are replaced wholesale.
	if err := tx.WithContext(ctx).Where("invoice_id = ?", id).Delete(&InvoiceLine{}).Error; err != nil {
		tx.Rollback()
		return nil, err
	}
	for i := range lines {
		lines[i].InvoiceId = id
	}
	if err := tx.WithContext(ctx).Create(&lines).Error; err != nil {
		tx.Rollback()
		return nil, err
	}

	err = tx.WithContext(ctx).Model(&Invoice{}).Where("id = ?", id).Updates(map[string]interface{}{
		"customer_id":               input.CustomerId,
		"invoice_date":              input.InvoiceDate,
		"payment_terms":             paymentTerms,
		"payment_terms_custom_days": customDays,
		"due_date":                  dueDate,
		"reference_number":          input.ReferenceNumber,
		"notes":                     input.Notes,
		"subtotal":                  subtotal,
		"discount_pct":              input.DiscountPct,
		"discount_total":            discountTotal,
		"tax_total":                 taxTotal,
		"total_amount":              total,
		"balance_due":               total,
		"current_status":            InvoiceStatusDraft,
	}).Error
	if err != nil {
		tx.Rollback()
		return nil, err
	}

	if wasPosted {
		updated := Invoice{
			ID:            id,
			InvoiceNumber: oldInvoice.InvoiceNumber,
			InvoiceDate:   input.InvoiceDate,
			Subtotal:      subtotal,
			DiscountPct:   input.DiscountPct,
			DiscountTotal: discountTotal,
			TaxTotal:      taxTotal,
			TotalAmount:   total,
			BalanceDue:    total,
			Lines:         lines,
		}
		if err := AcquireDocumentLock(tx, "customer", customer.ID); err != nil {
			tx.Rollback()
			return nil, err
		}
		if err := confirmInvoiceTx(ctx, tx, &updated, customer); err != nil {
			tx.Rollback()
			return nil, err
		}
	}

	ReleaseDocumentLock(tx, "invoice", id)
	if err := tx.Commit().Error; err != nil {
		return nil, err
	}

	invoice, err := utils.FetchModel[Invoice](ctx, id, "Lines", "Customer")
	if err != nil {
		return nil, err
	}
	SaveHistoryUpdate(ctx, id, "invoices", oldInvoice, invoice, "Invoice "+invoice.InvoiceNumber+" updated.")
	return invoice, nil
}

// VoidInvoice reverses the invoice's ledger postings and restores
// consumed inventory. Payments must be voided first.
func VoidInvoice(ctx context.Context, id int, reason string) (*Invoice, error) {
	if _, _, err := utils.RequireActor(ctx); err != nil {
		return nil, err
	}
	if reason == "" {
		return nil, utils.NewValidationError("reason", "reason is required")
	}
	if len(reason) > 500 {
		return nil, utils.NewValidationError("reason", "reason cannot exceed 500 characters")
	}

	invoice, err := utils.FetchModel[Invoice](ctx, id, "Lines")
	if err != nil {
		return nil, err
	}
	if invoice.CurrentStatus == InvoiceStatusVoid {
		return nil, utils.ErrorAlreadyVoid
	}
	if invoice.AmountPaid.IsPositive() {
		return nil, utils.NewValidationError("id", "invoice has applied payments; void the payments first")
	}

	now := time.Now().UTC()

	db := config.GetDB()
	tx := db.Begin()

	if err := AcquireDocumentLock(tx, "invoice", id); err != nil {
		tx.Rollback()
		return nil, err
	}

	if err := reverseSourceTransactionsTx(ctx, tx, TransactionSourceTypeInvoice, id, reason); err != nil {
		tx.Rollback()
		return nil, err
	}
	if err := reverseInvoiceInventoryTx(ctx, tx, TransactionSourceTypeInvoice, id); err != nil {
		tx.Rollback()
		return nil, err
	}

	err = tx.WithContext(ctx).Model(&Invoice{}).Where("id = ?", id).Updates(map[string]interface{}{
		"current_status": InvoiceStatusVoid,
		"balance_due":    decimal.Zero,
		"void_reason":    reason,
		"voided_at":      &now,
	}).Error
	if err != nil {
		tx.Rollback()
		return nil, err
	}

	ReleaseDocumentLock(tx, "invoice", id)
	if err := tx.Commit().Error; err != nil {
		return nil, err
	}

	SaveHistoryVoid(ctx, id, "invoices", invoice, "Invoice "+invoice.InvoiceNumber+" voided: "+reason)
	return utils.FetchModel[Invoice](ctx, id, "Lines", "Customer")
}

// DeleteInvoice removes a never-posted draft and its lines. Posted
// invoices keep their history and must be voided instead.
func DeleteInvoice(ctx context.Context, id int) (*Invoice, error) {
	if _, _, err := utils.RequireActor(ctx); err != nil {
		return nil, err
	}

	invoice, err := utils.FetchModel[Invoice](ctx, id, "Lines")
	if err != nil {
		return nil, err
	}
	if invoice.CurrentStatus != InvoiceStatusDraft {
		return nil, utils.NewValidationError("id", "only draft invoices can be deleted; void posted invoices instead")
	}

	db := config.GetDB()
	tx := db.Begin()
	if err := tx.WithContext(ctx).Where("invoice_id = ?", id).Delete(&InvoiceLine{}).Error; err != nil {
		tx.Rollback()
		return nil, err
	}
	if err := tx.WithContext(ctx).Delete(&Invoice{}, id).Error; err != nil {
		tx.Rollback()
		return nil, err
	}
	if err := tx.Commit().Error; err != nil {
		return nil, err
	}

	SaveHistoryDelete(ctx, id, "invoices", invoice, "Invoice "+invoice.InvoiceNumber+" deleted.")
	return invoice, nil
}

func GetInvoice(ctx context.Context, id int) (*Invoice, error) {
	return utils.FetchModel[Invoice](ctx, id, "Lines", "Customer")
}

func GetInvoices(ctx context.Context, customerId *int, status *InvoiceStatus, fromDate *time.Time, toDate *time.Time) ([]*Invoice, error) {
	db := config.GetDB()
	var invoices []*Invoice

	dbCtx := db.WithContext(ctx).Preload("Lines").Preload("Customer")
	if customerId != nil && *customerId > 0 {
		dbCtx = dbCtx.Where("customer_id = ?", *customerId)
	}
	if status != nil && *status != "" {
		dbCtx = dbCtx.Where("current_status = ?", *status)
	}
	if fromDate != nil {
		dbCtx = dbCtx.Where("invoice_date >= ?", fromDate)
	}
	if toDate != nil {
		dbCtx = dbCtx.Where("invoice_date <= ?", toDate)
	}
	err := dbCtx.Order("invoice_date DESC, id DESC").Find(&invoices).Error
	if err != nil {
		return nil, err
	}
	return invoices, nil
}

// RefreshOverdueInvoices flips unpaid sent invoices past their due date
// to Overdue. Partially paid invoices keep reporting Partial Paid.
// Returns the number of invoices updated.
func RefreshOverdueInvoices(ctx context.Context, today time.Time) (int64, error) {
	db := config.GetDB()
	result := db.WithContext(ctx).Model(&Invoice{}).
		Where("current_status = ?", InvoiceStatusSent).
		Where("due_date IS NOT NULL AND due_date < ?", utils.TruncateToDate(today)).
		Update("current_status", InvoiceStatusOverdue)
	return result.RowsAffected, result.Error
}
