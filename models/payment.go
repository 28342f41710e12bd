package models

import (
	"context"
	"time"

	"bitbucket.org/mmdatafocus/ledger_backend/config"
	"bitbucket.org/mmdatafocus/ledger_backend/utils"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

type Payment struct {
	ID            int             `gorm:"primary_key" json:"id"`
	PaymentNumber string          `gorm:"size:255;not null;index" json:"payment_number"`
	SequenceNo    decimal.Decimal `gorm:"type:decimal(15);not null" json:"sequence_no"`
	CustomerId    int             `gorm:"index;not null" json:"customer_id" binding:"required"`
	Customer      *Customer       `json:"customer"`
	PaymentDate   time.Time       `gorm:"not null" json:"payment_date" binding:"required"`
	Amount        decimal.Decimal `gorm:"type:decimal(20,4);default:0" json:"amount"`
	// DepositAccountId is the asset account the money lands on, the
	// system Cash account unless the caller picks another.
	DepositAccountId int `gorm:"index;not null" json:"deposit_account_id"`
	// UnappliedAmount is the part of Amount not yet applied to an invoice.
	// It sits on the unapplied payments account until applied or voided.
	UnappliedAmount decimal.Decimal      `gorm:"type:decimal(20,4);default:0" json:"unapplied_amount"`
	ReferenceNumber string               `gorm:"size:255" json:"reference_number"`
	Notes           string               `gorm:"type:text" json:"notes"`
	IsVoid          *bool                `gorm:"not null;default:false;index" json:"is_void"`
	VoidReason      *string              `gorm:"type:text" json:"void_reason"`
	VoidedAt        *time.Time           `json:"voided_at"`
	Applications    []PaymentApplication `gorm:"foreignKey:PaymentId" json:"applications"`
	CreatedAt       time.Time            `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt       time.Time            `gorm:"autoUpdateTime" json:"updated_at"`
}

type PaymentApplication struct {
	ID            int             `gorm:"primary_key" json:"id"`
	PaymentId     int             `gorm:"index;not null" json:"payment_id"`
	InvoiceId     int             `gorm:"index;not null" json:"invoice_id" binding:"required"`
	AppliedAmount decimal.Decimal `gorm:"type:decimal(20,4);default:0" json:"applied_amount"`
	CreatedAt     time.Time       `gorm:"autoCreateTime" json:"created_at"`
}

type NewPayment struct {
	CustomerId       int                     `json:"customer_id" binding:"required"`
	PaymentDate      time.Time               `json:"payment_date" binding:"required"`
	Amount           decimal.Decimal         `json:"amount" binding:"required"`
	DepositAccountId int                     `json:"deposit_account_id"`
	ReferenceNumber  string                  `json:"reference_number"`
	Notes            string                  `json:"notes"`
	Applications     []NewPaymentApplication `json:"applications"`
}

type NewPaymentApplication struct {
	InvoiceId     int             `json:"invoice_id" binding:"required"`
	AppliedAmount decimal.Decimal `json:"applied_amount" binding:"required"`
}

func (p *Payment) GetId() int {
	return p.ID
}

// resolveDepositAccount returns the account the payment money moves
// through. Zero falls back to the system Cash account.
func resolveDepositAccount(ctx context.Context, accountId int) (int, error) {
	if accountId == 0 {
		return getSystemAccount(ctx, SystemAccountCash)
	}
	account, err := utils.FetchModel[Account](ctx, accountId)
	if err != nil {
		return 0, utils.NewValidationError("deposit_account_id", "deposit account not found")
	}
	if account.IsActive != nil && !*account.IsActive {
		return 0, utils.NewValidationError("deposit_account_id", "deposit account is inactive")
	}
	return account.ID, nil
}

func (input *NewPayment) validate(ctx context.Context) error {
	if input.Amount.IsZero() || input.Amount.IsNegative() {
		return utils.NewValidationError("amount", "amount must be positive")
	}

	customer, err := utils.FetchModel[Customer](ctx, input.CustomerId)
	if err != nil {
		return utils.NewValidationError("customer_id", "customer not found")
	}
	if customer.IsActive != nil && !*customer.IsActive {
		return utils.NewValidationError("customer_id", "customer is inactive")
	}

	appliedTotal := decimal.Zero
	seen := map[int]bool{}
	for _, app := range input.Applications {
		if app.AppliedAmount.IsZero() || app.AppliedAmount.IsNegative() {
			return utils.NewValidationError("applications", "applied amount must be positive")
		}
		if seen[app.InvoiceId] {
			return utils.NewValidationError("applications", "duplicate invoice in applications")
		}
		seen[app.InvoiceId] = true

		invoice, err := utils.FetchModel[Invoice](ctx, app.InvoiceId)
		if err != nil {
			return utils.NewValidationError("applications", "invoice not found")
		}
		if invoice.CustomerId != input.CustomerId {
			return utils.NewValidationError("applications", "invoice "+invoice.InvoiceNumber+" belongs to another customer")
		}
		switch invoice.CurrentStatus {
		case InvoiceStatusDraft:
			return utils.NewValidationError("applications", "invoice "+invoice.InvoiceNumber+" is still a draft")
		case InvoiceStatusVoid:
			return utils.NewValidationError("applications", "invoice "+invoice.InvoiceNumber+" is void")
		case InvoiceStatusPaid:
			return utils.NewValidationError("applications", "invoice "+invoice.InvoiceNumber+" is already paid")
		}
		appliedTotal = appliedTotal.Add(app.AppliedAmount)
	}
	if appliedTotal.Cmp(input.Amount) == 1 {
		return utils.ErrorOverApplication
	}
	return nil
}

// applyToInvoiceTx applies amount to an invoice with a guarded update so
// two concurrent payments can never over-apply. The balance check happens
// in the UPDATE itself; zero rows affected means the balance moved under us.
func applyToInvoiceTx(ctx context.Context, tx *gorm.DB, invoiceId int, amount decimal.Decimal, today time.Time) error {
	if err := AcquireDocumentLock(tx, "invoice", invoiceId); err != nil {
		return err
	}

	result := tx.WithContext(ctx).Model(&Invoice{}).
		Where("id = ?", invoiceId).
		Where("current_status NOT IN ?", []InvoiceStatus{InvoiceStatusDraft, InvoiceStatusVoid}).
		Where("balance_due >= ?", amount).
		Updates(map[string]interface{}{
			"amount_paid": gorm.Expr("amount_paid + ?", amount),
			"balance_due": gorm.Expr("balance_due - ?", amount),
		})
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return utils.ErrorOverApplication
	}

	return refreshInvoiceStatusTx(ctx, tx, invoiceId, today)
}

// unapplyFromInvoiceTx restores a previously applied amount.
func unapplyFromInvoiceTx(ctx context.Context, tx *gorm.DB, invoiceId int, amount decimal.Decimal, today time.Time) error {
	if err := AcquireDocumentLock(tx, "invoice", invoiceId); err != nil {
		return err
	}

	result := tx.WithContext(ctx).Model(&Invoice{}).
		Where("id = ?", invoiceId).
		Where("amount_paid >= ?", amount).
		Updates(map[string]interface{}{
			"amount_paid": gorm.Expr("amount_paid - ?", amount),
			"balance_due": gorm.Expr("balance_due + ?", amount),
		})
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return utils.NewValidationError("applications", "applied amount exceeds the invoice's paid amount")
	}

	return refreshInvoiceStatusTx(ctx, tx, invoiceId, today)
}

func refreshInvoiceStatusTx(ctx context.Context, tx *gorm.DB, invoiceId int, today time.Time) error {
	var invoice Invoice
	if err := tx.WithContext(ctx).Where("id = ?", invoiceId).First(&invoice).Error; err != nil {
		return err
	}
	next := NextInvoiceStatus(invoice.CurrentStatus, invoice.TotalAmount, invoice.AmountPaid, invoice.BalanceDue, invoice.DueDate, today)
	if next == invoice.CurrentStatus {
		return nil
	}
	return tx.WithContext(ctx).Model(&Invoice{}).
		Where("id = ?", invoiceId).
		Update("current_status", next).Error
}

// CreatePayment records a customer payment and applies it to invoices.
// The applied portion credits accounts receivable; any remainder is held
// on the unapplied payments account.
func CreatePayment(ctx context.Context, input *NewPayment) (*Payment, error) {
	if _, _, err := utils.RequireActor(ctx); err != nil {
		return nil, err
	}
	if err := input.validate(ctx); err != nil {
		return nil, err
	}

	systemAccounts, err := GetSystemAccounts(ctx)
	if err != nil {
		return nil, err
	}

	depositAccountId, err := resolveDepositAccount(ctx, input.DepositAccountId)
	if err != nil {
		return nil, err
	}

	seqNo, err := utils.GetSequence[Payment](ctx)
	if err != nil {
		return nil, err
	}

	appliedTotal := decimal.Zero
	applications := make([]PaymentApplication, 0, len(input.Applications))
	for _, app := range input.Applications {
		applications = append(applications, PaymentApplication{
			InvoiceId:     app.InvoiceId,
			AppliedAmount: app.AppliedAmount,
		})
		appliedTotal = appliedTotal.Add(app.AppliedAmount)
	}
	unapplied := input.Amount.Sub(appliedTotal)

	payment := Payment{
		PaymentNumber:    formatDocumentNumber(paymentNumberFormat, seqNo),
		SequenceNo:       decimal.NewFromInt(seqNo),
		CustomerId:       input.CustomerId,
		PaymentDate:      input.PaymentDate,
		Amount:           input.Amount,
		DepositAccountId: depositAccountId,
		UnappliedAmount:  unapplied,
		ReferenceNumber:  input.ReferenceNumber,
		Notes:            input.Notes,
		IsVoid:           utils.NewFalse(),
		Applications:     applications,
	}

	today := time.Now().UTC()

	db := config.GetDB()
	tx := db.Begin()

	for _, app := range input.Applications {
		if err := applyToInvoiceTx(ctx, tx, app.InvoiceId, app.AppliedAmount, today); err != nil {
			tx.Rollback()
			return nil, err
		}
	}

	if err := tx.WithContext(ctx).Create(&payment).Error; err != nil {
		tx.Rollback()
		return nil, err
	}

	lines := []NewTransactionLine{
		{AccountId: depositAccountId, Debit: input.Amount, Description: "Payment " + payment.PaymentNumber},
	}
	if appliedTotal.IsPositive() {
		lines = append(lines, NewTransactionLine{
			AccountId:   systemAccounts[SystemAccountAccountsReceivable],
			Credit:      appliedTotal,
			Description: "Payment " + payment.PaymentNumber + " applied",
		})
	}
	if unapplied.IsPositive() {
		lines = append(lines, NewTransactionLine{
			AccountId:   systemAccounts[SystemAccountUnappliedPayments],
			Credit:      unapplied,
			Description: "Payment " + payment.PaymentNumber + " unapplied",
		})
	}
	entry := NewTransaction{
		TransactionDate: input.PaymentDate,
		Description:     "Payment " + payment.PaymentNumber,
		ReferenceNumber: input.ReferenceNumber,
		Lines:           lines,
	}
	if _, err := createTransactionTx(ctx, tx, &entry, TransactionSourceTypePayment, payment.ID); err != nil {
		tx.Rollback()
		return nil, err
	}

	if err := tx.Commit().Error; err != nil {
		return nil, err
	}

	SaveHistoryCreate(ctx, payment.ID, "payments", &payment, "Payment "+payment.PaymentNumber+" recorded.")
	return utils.FetchModel[Payment](ctx, payment.ID, "Applications", "Customer")
}

// ApplyPayment applies part of a payment's unapplied amount to more
// invoices, moving the credit from unapplied payments to receivables.
func ApplyPayment(ctx context.Context, paymentId int, inputs []NewPaymentApplication) (*Payment, error) {
	if _, _, err := utils.RequireActor(ctx); err != nil {
		return nil, err
	}
	if len(inputs) == 0 {
		return nil, utils.NewValidationError("applications", "at least one application is required")
	}

	payment, err := utils.FetchModel[Payment](ctx, paymentId, "Applications")
	if err != nil {
		return nil, err
	}
	if payment.IsVoid != nil && *payment.IsVoid {
		return nil, utils.ErrorAlreadyVoid
	}

	appliedTotal := decimal.Zero
	for _, app := range inputs {
		if app.AppliedAmount.IsZero() || app.AppliedAmount.IsNegative() {
			return nil, utils.NewValidationError("applications", "applied amount must be positive")
		}
		invoice, err := utils.FetchModel[Invoice](ctx, app.InvoiceId)
		if err != nil {
			return nil, utils.NewValidationError("applications", "invoice not found")
		}
		if invoice.CustomerId != payment.CustomerId {
			return nil, utils.NewValidationError("applications", "invoice "+invoice.InvoiceNumber+" belongs to another customer")
		}
		appliedTotal = appliedTotal.Add(app.AppliedAmount)
	}
	if appliedTotal.Cmp(payment.UnappliedAmount) == 1 {
		return nil, utils.ErrorOverApplication
	}

	systemAccounts, err := GetSystemAccounts(ctx)
	if err != nil {
		return nil, err
	}

	today := time.Now().UTC()

	db := config.GetDB()
	tx := db.Begin()

	if err := AcquireDocumentLock(tx, "payment", paymentId); err != nil {
		tx.Rollback()
		return nil, err
	}

	for _, app := range inputs {
		if err := applyToInvoiceTx(ctx, tx, app.InvoiceId, app.AppliedAmount, today); err != nil {
			tx.Rollback()
			return nil, err
		}
		application := PaymentApplication{
			PaymentId:     paymentId,
			InvoiceId:     app.InvoiceId,
			AppliedAmount: app.AppliedAmount,
		}
		if err := tx.WithContext(ctx).Create(&application).Error; err != nil {
			tx.Rollback()
			return nil, err
		}
	}

	result := tx.WithContext(ctx).Model(&Payment{}).
		Where("id = ?", paymentId).
		Where("unapplied_amount >= ?", appliedTotal).
		Update("unapplied_amount", gorm.Expr("unapplied_amount - ?", appliedTotal))
	if result.Error != nil {
		tx.Rollback()
		return nil, result.Error
	}
	if result.RowsAffected == 0 {
		tx.Rollback()
		return nil, utils.ErrorOverApplication
	}

	entry := NewTransaction{
		TransactionDate: today,
		Description:     "Payment " + payment.PaymentNumber + " application",
		Lines: []NewTransactionLine{
			{AccountId: systemAccounts[SystemAccountUnappliedPayments], Debit: appliedTotal, Description: "Payment " + payment.PaymentNumber + " applied"},
			{AccountId: systemAccounts[SystemAccountAccountsReceivable], Credit: appliedTotal, Description: "Payment " + payment.PaymentNumber + " applied"},
		},
	}
	if _, err := createTransactionTx(ctx, tx, &entry, TransactionSourceTypePayment, paymentId); err != nil {
		tx.Rollback()
		return nil, err
	}

	ReleaseDocumentLock(tx, "payment", paymentId)
	if err := tx.Commit().Error; err != nil {
		return nil, err
	}

	SaveHistoryUpdate(ctx, paymentId, "payments", payment, nil, "Payment "+payment.PaymentNumber+" applied to invoices.")
	return utils.FetchModel[Payment](ctx, paymentId, "Applications", "Customer")
}

// VoidPayment reverses a payment: every application is unwound, invoice
// balances and statuses are restored, and the ledger entries are reversed.
func VoidPayment(ctx context.Context, id int, reason string) (*Payment, error) {
	if _, _, err := utils.RequireActor(ctx); err != nil {
		return nil, err
	}
	if reason == "" {
		return nil, utils.NewValidationError("reason", "reason is required")
	}
	if len(reason) > 500 {
		return nil, utils.NewValidationError("reason", "reason cannot exceed 500 characters")
	}

	payment, err := utils.FetchModel[Payment](ctx, id, "Applications")
	if err != nil {
		return nil, err
	}
	if payment.IsVoid != nil && *payment.IsVoid {
		return nil, utils.ErrorAlreadyVoid
	}

	now := time.Now().UTC()

	db := config.GetDB()
	tx := db.Begin()

	if err := AcquireDocumentLock(tx, "payment", id); err != nil {
		tx.Rollback()
		return nil, err
	}

	for _, app := range payment.Applications {
		if err := unapplyFromInvoiceTx(ctx, tx, app.InvoiceId, app.AppliedAmount, now); err != nil {
			tx.Rollback()
			return nil, err
		}
	}

	if err := reverseSourceTransactionsTx(ctx, tx, TransactionSourceTypePayment, id, reason); err != nil {
		tx.Rollback()
		return nil, err
	}

	err = tx.WithContext(ctx).Model(&Payment{}).Where("id = ?", id).Updates(map[string]interface{}{
		"is_void":          true,
		"unapplied_amount": decimal.Zero,
		"void_reason":      reason,
		"voided_at":        &now,
	}).Error
	if err != nil {
		tx.Rollback()
		return nil, err
	}

	ReleaseDocumentLock(tx, "payment", id)
	if err := tx.Commit().Error; err != nil {
		return nil, err
	}

	SaveHistoryVoid(ctx, id, "payments", payment, "Payment "+payment.PaymentNumber+" voided: "+reason)
	return utils.FetchModel[Payment](ctx, id, "Applications", "Customer")
}

func GetPayment(ctx context.Context, id int) (*Payment, error) {
	return utils.FetchModel[Payment](ctx, id, "Applications", "Customer")
}

func GetPayments(ctx context.Context, customerId *int, fromDate *time.Time, toDate *time.Time) ([]*Payment, error) {
	db := config.GetDB()
	var payments []*Payment

	dbCtx := db.WithContext(ctx).Preload("Applications").Preload("Customer")
	if customerId != nil && *customerId > 0 {
		dbCtx = dbCtx.Where("customer_id = ?", *customerId)
	}
	if fromDate != nil {
		dbCtx = dbCtx.Where("payment_date >= ?", fromDate)
	}
	if toDate != nil {
		dbCtx = dbCtx.Where("payment_date <= ?", toDate)
	}
	err := dbCtx.Order("payment_date DESC, id DESC").Find(&payments).Error
	if err != nil {
		return nil, err
	}
	return payments, nil
}
