package models

import (
	"context"
	"time"

	"bitbucket.org/mmdatafocus/ledger_backend/config"
	"bitbucket.org/mmdatafocus/ledger_backend/utils"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

type BillPayment struct {
	ID            int             `gorm:"primary_key" json:"id"`
	PaymentNumber string          `gorm:"size:255;not null;index" json:"payment_number"`
	SequenceNo    decimal.Decimal `gorm:"type:decimal(15);not null" json:"sequence_no"`
	VendorId      int             `gorm:"index;not null" json:"vendor_id" binding:"required"`
	Vendor        *Vendor         `json:"vendor"`
	PaymentDate   time.Time       `gorm:"not null" json:"payment_date" binding:"required"`
	Amount        decimal.Decimal `gorm:"type:decimal(20,4);default:0" json:"amount"`
	// DepositAccountId is the asset account the money leaves from, the
	// system Cash account unless the caller picks another.
	DepositAccountId int `gorm:"index;not null" json:"deposit_account_id"`
	ReferenceNumber  string                   `gorm:"size:255" json:"reference_number"`
	Notes            string                   `gorm:"type:text" json:"notes"`
	IsVoid           *bool                    `gorm:"not null;default:false;index" json:"is_void"`
	VoidReason       *string                  `gorm:"type:text" json:"void_reason"`
	VoidedAt         *time.Time               `json:"voided_at"`
	Applications     []BillPaymentApplication `gorm:"foreignKey:BillPaymentId" json:"applications"`
	CreatedAt        time.Time                `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt        time.Time                `gorm:"autoUpdateTime" json:"updated_at"`
}

type BillPaymentApplication struct {
	ID            int             `gorm:"primary_key" json:"id"`
	BillPaymentId int             `gorm:"index;not null" json:"bill_payment_id"`
	BillId        int             `gorm:"index;not null" json:"bill_id" binding:"required"`
	AppliedAmount decimal.Decimal `gorm:"type:decimal(20,4);default:0" json:"applied_amount"`
	CreatedAt     time.Time       `gorm:"autoCreateTime" json:"created_at"`
}

type NewBillPayment struct {
	VendorId         int                         `json:"vendor_id" binding:"required"`
	PaymentDate      time.Time                   `json:"payment_date" binding:"required"`
	Amount           decimal.Decimal             `json:"amount" binding:"required"`
	DepositAccountId int                         `json:"deposit_account_id"`
	ReferenceNumber  string                      `json:"reference_number"`
	Notes            string                      `json:"notes"`
	Applications     []NewBillPaymentApplication `json:"applications"`
}

type NewBillPaymentApplication struct {
	BillId        int             `json:"bill_id" binding:"required"`
	AppliedAmount decimal.Decimal `json:"applied_amount" binding:"required"`
}

func (p *BillPayment) GetId() int {
	return p.ID
}

func (input *NewBillPayment) validate(ctx context.Context) error {
	if input.Amount.IsZero() || input.Amount.IsNegative() {
		return utils.NewValidationError("amount", "amount must be positive")
	}
	if len(input.Applications) == 0 {
		return utils.NewValidationError("applications", "at least one application is required")
	}

	vendor, err := utils.FetchModel[Vendor](ctx, input.VendorId)
	if err != nil {
		return utils.NewValidationError("vendor_id", "vendor not found")
	}
	if vendor.IsActive != nil && !*vendor.IsActive {
		return utils.NewValidationError("vendor_id", "vendor is inactive")
	}

	appliedTotal := decimal.Zero
	seen := map[int]bool{}
	for _, app := range input.Applications {
		if app.AppliedAmount.IsZero() || app.AppliedAmount.IsNegative() {
			return utils.NewValidationError("applications", "applied amount must be positive")
		}
		if seen[app.BillId] {
			return utils.NewValidationError("applications", "duplicate bill in applications")
		}
		seen[app.BillId] = true

		bill, err := utils.FetchModel[Bill](ctx, app.BillId)
		if err != nil {
			return utils.NewValidationError("applications", "bill not found")
		}
		if bill.VendorId != input.VendorId {
			return utils.NewValidationError("applications", "bill "+bill.BillNumber+" belongs to another vendor")
		}
		switch bill.CurrentStatus {
		case BillStatusDraft:
			return utils.NewValidationError("applications", "bill "+bill.BillNumber+" is still a draft")
		case BillStatusVoid:
			return utils.NewValidationError("applications", "bill "+bill.BillNumber+" is void")
		case BillStatusPaid:
			return utils.NewValidationError("applications", "bill "+bill.BillNumber+" is already paid")
		}
		appliedTotal = appliedTotal.Add(app.AppliedAmount)
	}
	// Vendor payments must be fully applied; there is no unapplied credit
	// on the payable side.
	if appliedTotal.Cmp(input.Amount) != 0 {
		return utils.NewValidationError("applications", "applied amounts must equal the payment amount")
	}
	return nil
}

func applyToBillTx(ctx context.Context, tx *gorm.DB, billId int, amount decimal.Decimal, today time.Time) error {
	if err := AcquireDocumentLock(tx, "bill", billId); err != nil {
		return err
	}

	result := tx.WithContext(ctx).Model(&Bill{}).
		Where("id = ?", billId).
		Where("current_status NOT IN ?", []BillStatus{BillStatusDraft, BillStatusVoid}).
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

	return refreshBillStatusTx(ctx, tx, billId, today)
}

func unapplyFromBillTx(ctx context.Context, tx *gorm.DB, billId int, amount decimal.Decimal, today time.Time) error {
	if err := AcquireDocumentLock(tx, "bill", billId); err != nil {
		return err
	}

	result := tx.WithContext(ctx).Model(&Bill{}).
		Where("id = ?", billId).
		Where("amount_paid >= ?", amount).
		Updates(map[string]interface{}{
			"amount_paid": gorm.Expr("amount_paid - ?", amount),
			"balance_due": gorm.Expr("balance_due + ?", amount),
		})
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return utils.NewValidationError("applications", "applied amount exceeds the bill's paid amount")
	}

	return refreshBillStatusTx(ctx, tx, billId, today)
}

func refreshBillStatusTx(ctx context.Context, tx *gorm.DB, billId int, today time.Time) error {
	var bill Bill
	if err := tx.WithContext(ctx).Where("id = ?", billId).First(&bill).Error; err != nil {
		return err
	}
	next := NextBillStatus(bill.CurrentStatus, bill.TotalAmount, bill.AmountPaid, bill.BalanceDue, bill.DueDate, today)
	if next == bill.CurrentStatus {
		return nil
	}
	return tx.WithContext(ctx).Model(&Bill{}).
		Where("id = ?", billId).
		Update("current_status", next).Error
}

// CreateBillPayment records a vendor payment, debiting accounts payable
// and crediting the deposit account the money left from.
func CreateBillPayment(ctx context.Context, input *NewBillPayment) (*BillPayment, error) {
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

	seqNo, err := utils.GetSequence[BillPayment](ctx)
	if err != nil {
		return nil, err
	}

	applications := make([]BillPaymentApplication, 0, len(input.Applications))
	for _, app := range input.Applications {
		applications = append(applications, BillPaymentApplication{
			BillId:        app.BillId,
			AppliedAmount: app.AppliedAmount,
		})
	}

	payment := BillPayment{
		PaymentNumber:    formatDocumentNumber(billPaymentNumberFormat, seqNo),
		SequenceNo:       decimal.NewFromInt(seqNo),
		VendorId:         input.VendorId,
		PaymentDate:      input.PaymentDate,
		Amount:           input.Amount,
		DepositAccountId: depositAccountId,
		ReferenceNumber:  input.ReferenceNumber,
		Notes:            input.Notes,
		IsVoid:           utils.NewFalse(),
		Applications:     applications,
	}

	today := time.Now().UTC()

	db := config.GetDB()
	tx := db.Begin()

	for _, app := range input.Applications {
		if err := applyToBillTx(ctx, tx, app.BillId, app.AppliedAmount, today); err != nil {
			tx.Rollback()
			return nil, err
		}
	}

	if err := tx.WithContext(ctx).Create(&payment).Error; err != nil {
		tx.Rollback()
		return nil, err
	}

	entry := NewTransaction{
		TransactionDate: input.PaymentDate,
		Description:     "Bill payment " + payment.PaymentNumber,
		ReferenceNumber: input.ReferenceNumber,
		Lines: []NewTransactionLine{
			{AccountId: systemAccounts[SystemAccountAccountsPayable], Debit: input.Amount, Description: "Bill payment " + payment.PaymentNumber},
			{AccountId: depositAccountId, Credit: input.Amount, Description: "Bill payment " + payment.PaymentNumber},
		},
	}
	if _, err := createTransactionTx(ctx, tx, &entry, TransactionSourceTypeBillPayment, payment.ID); err != nil {
		tx.Rollback()
		return nil, err
	}

	if err := tx.Commit().Error; err != nil {
		return nil, err
	}

	SaveHistoryCreate(ctx, payment.ID, "bill_payments", &payment, "Bill payment "+payment.PaymentNumber+" recorded.")
	return utils.FetchModel[BillPayment](ctx, payment.ID, "Applications", "Vendor")
}

// VoidBillPayment unwinds the payment's applications and reverses its
// ledger entry.
func VoidBillPayment(ctx context.Context, id int, reason string) (*BillPayment, error) {
	if _, _, err := utils.RequireActor(ctx); err != nil {
		return nil, err
	}
	if reason == "" {
		return nil, utils.NewValidationError("reason", "reason is required")
	}
	if len(reason) > 500 {
		return nil, utils.NewValidationError("reason", "reason cannot exceed 500 characters")
	}

	payment, err := utils.FetchModel[BillPayment](ctx, id, "Applications")
	if err != nil {
		return nil, err
	}
	if payment.IsVoid != nil && *payment.IsVoid {
		return nil, utils.ErrorAlreadyVoid
	}

	now := time.Now().UTC()

	db := config.GetDB()
	tx := db.Begin()

	if err := AcquireDocumentLock(tx, "bill_payment", id); err != nil {
		tx.Rollback()
		return nil, err
	}

	for _, app := range payment.Applications {
		if err := unapplyFromBillTx(ctx, tx, app.BillId, app.AppliedAmount, now); err != nil {
			tx.Rollback()
			return nil, err
		}
	}

	if err := reverseSourceTransactionsTx(ctx, tx, TransactionSourceTypeBillPayment, id, reason); err != nil {
		tx.Rollback()
		return nil, err
	}

	err = tx.WithContext(ctx).Model(&BillPayment{}).Where("id = ?", id).Updates(map[string]interface{}{
		"is_void":     true,
		"void_reason": reason,
		"voided_at":   &now,
	}).Error
	if err != nil {
		tx.Rollback()
		return nil, err
	}

	ReleaseDocumentLock(tx, "bill_payment", id)
	if err := tx.Commit().Error; err != nil {
		return nil, err
	}

	SaveHistoryVoid(ctx, id, "bill_payments", payment, "Bill payment "+payment.PaymentNumber+" voided: "+reason)
	return utils.FetchModel[BillPayment](ctx, id, "Applications", "Vendor")
}

func GetBillPayment(ctx context.Context, id int) (*BillPayment, error) {
	return utils.FetchModel[BillPayment](ctx, id, "Applications", "Vendor")
}

func GetBillPayments(ctx context.Context, vendorId *int, fromDate *time.Time, toDate *time.Time) ([]*BillPayment, error) {
	db := config.GetDB()
	var payments []*BillPayment

	dbCtx := db.WithContext(ctx).Preload("Applications").Preload("Vendor")
	if vendorId != nil && *vendorId > 0 {
		dbCtx = dbCtx.Where("vendor_id = ?", *vendorId)
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
