package models

import (
	"context"
	"errors"
	"fmt"
	"time"

	"bitbucket.org/mmdatafocus/ledger_backend/config"
	"bitbucket.org/mmdatafocus/ledger_backend/utils"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

type Transaction struct {
	ID                int                   `gorm:"primary_key" json:"id"`
	TransactionNumber string                `gorm:"size:255;not null;index" json:"transaction_number"`
	SequenceNo        decimal.Decimal       `gorm:"type:decimal(15);not null" json:"sequence_no"`
	TransactionDate   time.Time             `gorm:"index;not null" json:"transaction_date" binding:"required"`
	Description       string                `gorm:"type:text" json:"description"`
	ReferenceNumber   string                `gorm:"size:255" json:"reference_number"`
	SourceType        TransactionSourceType `gorm:"size:5;index:idx_txn_source,priority:1" json:"source_type"`
	SourceId          int                   `gorm:"index:idx_txn_source,priority:2" json:"source_id"`
	TotalAmount       decimal.Decimal       `gorm:"type:decimal(20,4);default:0" json:"total_amount"`
	// Ledger immutability & reversals:
	// - Posted transactions are never deleted; changes are done by
	//   inserting a reversal transaction with debits and credits swapped.
	// - For a given (source_type, source_id) there is at most one active
	//   transaction where is_reversal = false AND reversed_by_transaction_id IS NULL.
	IsReversal              bool              `gorm:"not null;default:false;index" json:"is_reversal"`
	ReversesTransactionId   *int              `gorm:"index" json:"reverses_transaction_id"`
	ReversedByTransactionId *int              `gorm:"index" json:"reversed_by_transaction_id"`
	ReversalReason          *string           `gorm:"type:text" json:"reversal_reason"`
	ReversedAt              *time.Time        `gorm:"index" json:"reversed_at"`
	Lines                   []TransactionLine `gorm:"foreignKey:TransactionId" json:"lines"`
	CreatedAt               time.Time         `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt               time.Time         `gorm:"autoUpdateTime" json:"updated_at"`
}

type TransactionLine struct {
	ID              int             `gorm:"primary_key" json:"id"`
	TransactionId   int             `gorm:"index;not null" json:"transaction_id" binding:"required"`
	AccountId       int             `gorm:"index;not null;index:idx_line_acct_date,priority:1" json:"account_id" binding:"required"`
	TransactionDate time.Time       `gorm:"index;not null;index:idx_line_acct_date,priority:2" json:"transaction_date"`
	Description     string          `gorm:"size:255" json:"description"`
	Debit           decimal.Decimal `gorm:"type:decimal(20,4);default:0" json:"debit"`
	Credit          decimal.Decimal `gorm:"type:decimal(20,4);default:0" json:"credit"`
	CreatedAt       time.Time       `gorm:"autoCreateTime" json:"created_at"`
}

type NewTransaction struct {
	TransactionDate time.Time            `json:"transaction_date" binding:"required"`
	Description     string               `json:"description"`
	ReferenceNumber string               `json:"reference_number"`
	Lines           []NewTransactionLine `json:"lines"`
}

type NewTransactionLine struct {
	AccountId   int             `json:"account_id" binding:"required"`
	Description string          `json:"description"`
	Debit       decimal.Decimal `json:"debit"`
	Credit      decimal.Decimal `json:"credit"`
}

// Ledger immutability guardrails:
// - transaction_lines are append-only (no updates/deletes).
// - transactions must never be deleted; limited updates are allowed only
//   for reversal linkage fields.

func (l *TransactionLine) BeforeUpdate(tx *gorm.DB) error {
	return errors.New("immutable ledger: transaction_lines cannot be updated")
}

func (l *TransactionLine) BeforeDelete(tx *gorm.DB) error {
	return errors.New("immutable ledger: transaction_lines cannot be deleted")
}

func (t *Transaction) BeforeDelete(tx *gorm.DB) error {
	return errors.New("immutable ledger: transactions cannot be deleted")
}

func (t *Transaction) BeforeUpdate(tx *gorm.DB) error {
	// Allow only reversal linkage fields to be updated.
	allowed := map[string]bool{
		"IsReversal":              true,
		"ReversesTransactionId":   true,
		"ReversedByTransactionId": true,
		"ReversalReason":          true,
		"ReversedAt":              true,
		"UpdatedAt":               true,
	}
	if tx == nil || tx.Statement == nil || tx.Statement.Schema == nil {
		return nil
	}
	for _, f := range tx.Statement.Schema.Fields {
		if tx.Statement.Changed(f.Name) && !allowed[f.Name] {
			return errors.New("immutable ledger: only reversal linkage fields may be updated on transactions")
		}
	}
	return nil
}

func (t *Transaction) GetId() int {
	return t.ID
}

// validateBalancedLines checks the double-entry rules over a line set:
// at least two lines, exactly one positive side per line, and total debits
// equal to total credits compared exactly.
func validateBalancedLines(lines []NewTransactionLine) (totalDebit decimal.Decimal, err error) {
	if len(lines) < 2 {
		return decimal.Zero, utils.NewValidationError("lines", "at least two lines are required")
	}

	totalCredit := decimal.Zero
	for _, line := range lines {
		if line.Debit.IsNegative() || line.Credit.IsNegative() {
			return decimal.Zero, utils.NewValidationError("lines", "debit and credit cannot be negative")
		}
		if line.Debit.IsZero() == line.Credit.IsZero() {
			return decimal.Zero, utils.NewValidationError("lines", "exactly one of debit or credit must have value")
		}
		totalDebit = totalDebit.Add(line.Debit)
		totalCredit = totalCredit.Add(line.Credit)
	}
	if totalDebit.Cmp(totalCredit) != 0 {
		return decimal.Zero, utils.ErrorUnbalancedEntry
	}
	return totalDebit, nil
}

func (input *NewTransaction) validate(ctx context.Context) error {
	accountIds := make([]int, 0, len(input.Lines))
	for _, line := range input.Lines {
		accountIds = append(accountIds, line.AccountId)
	}
	if err := utils.ValidateResourcesId[Account](ctx, accountIds); err != nil {
		return utils.NewValidationError("lines", "account not found")
	}

	db := config.GetDB()
	var inactive int64
	if err := db.WithContext(ctx).Model(&Account{}).
		Where("id IN ?", utils.UniqueSlice(accountIds)).
		Where("is_active = ?", false).
		Count(&inactive).Error; err != nil {
		return err
	}
	if inactive > 0 {
		return utils.NewValidationError("lines", "inactive account cannot be posted to")
	}
	return nil
}

func receiveTransactionLines(input *NewTransaction) ([]TransactionLine, decimal.Decimal, error) {
	totalAmount, err := validateBalancedLines(input.Lines)
	if err != nil {
		return nil, decimal.Zero, err
	}

	lines := make([]TransactionLine, 0, len(input.Lines))
	for _, l := range input.Lines {
		lines = append(lines, TransactionLine{
			AccountId:       l.AccountId,
			TransactionDate: input.TransactionDate,
			Description:     l.Description,
			Debit:           l.Debit,
			Credit:          l.Credit,
		})
	}
	return lines, totalAmount, nil
}

// createTransactionTx posts a balanced transaction inside the caller's
// database transaction. Document workflows (invoices, payments) use it so
// the ledger entry commits or rolls back together with the document.
func createTransactionTx(ctx context.Context, tx *gorm.DB, input *NewTransaction, sourceType TransactionSourceType, sourceId int) (*Transaction, error) {

	lines, totalAmount, err := receiveTransactionLines(input)
	if err != nil {
		return nil, err
	}

	seqNo, err := utils.GetSequence[Transaction](ctx)
	if err != nil {
		return nil, err
	}

	transaction := Transaction{
		TransactionNumber: formatDocumentNumber(transactionNumberFormat, seqNo),
		SequenceNo:        decimal.NewFromInt(seqNo),
		TransactionDate:   input.TransactionDate,
		Description:       input.Description,
		ReferenceNumber:   input.ReferenceNumber,
		SourceType:        sourceType,
		SourceId:          sourceId,
		TotalAmount:       totalAmount,
		Lines:             lines,
	}

	if err := tx.WithContext(ctx).Create(&transaction).Error; err != nil {
		return nil, err
	}
	return &transaction, nil
}

// CreateTransaction posts a manual journal entry.
func CreateTransaction(ctx context.Context, input *NewTransaction) (*Transaction, error) {

	if _, _, err := utils.RequireActor(ctx); err != nil {
		return nil, err
	}

	if err := input.validate(ctx); err != nil {
		return nil, err
	}

	db := config.GetDB()
	tx := db.Begin()
	transaction, err := createTransactionTx(ctx, tx, input, TransactionSourceTypeManual, 0)
	if err != nil {
		tx.Rollback()
		return nil, err
	}
	if err := tx.Commit().Error; err != nil {
		return nil, err
	}

	SaveHistoryCreate(ctx, transaction.ID, "transactions", transaction, "Transaction "+transaction.TransactionNumber+" posted.")
	return transaction, nil
}

// reverseTransactionTx creates a reversal transaction that negates the
// original's lines by swapping debit and credit.
//
// Design:
// - Posted transactions are NOT deleted.
// - A reversal transaction (is_reversal=true) is inserted and the original
//   is marked reversed_by_transaction_id=<reversal>.
// - Idempotent: if already reversed, the existing reversal id is returned.
func reverseTransactionTx(tx *gorm.DB, original *Transaction, reason string) (reversalTransactionId int, err error) {
	if tx == nil || original == nil {
		return 0, fmt.Errorf("reverse transaction: tx/original is nil")
	}

	if original.ReversedByTransactionId != nil && *original.ReversedByTransactionId > 0 {
		return *original.ReversedByTransactionId, nil
	}

	// Ensure lines are loaded.
	if original.Lines == nil {
		var loaded Transaction
		if err := tx.Preload("Lines").Where("id = ?", original.ID).First(&loaded).Error; err != nil {
			return 0, err
		}
		original = &loaded
	}

	reasonCopy := reason
	now := time.Now().UTC()

	reversedLines := make([]TransactionLine, 0, len(original.Lines))
	for _, l := range original.Lines {
		reversedLines = append(reversedLines, TransactionLine{
			AccountId:       l.AccountId,
			TransactionDate: l.TransactionDate,
			Description:     l.Description,
			Debit:           l.Credit,
			Credit:          l.Debit,
		})
	}

	reversal := Transaction{
		TransactionNumber:     "REV-" + original.TransactionNumber,
		SequenceNo:            original.SequenceNo,
		TransactionDate:       original.TransactionDate,
		Description:           "Reversal: " + reasonCopy,
		ReferenceNumber:       original.ReferenceNumber,
		SourceType:            original.SourceType,
		SourceId:              original.SourceId,
		TotalAmount:           original.TotalAmount,
		IsReversal:            true,
		ReversesTransactionId: &original.ID,
		ReversalReason:        &reasonCopy,
		Lines:                 reversedLines,
	}

	if err := tx.Create(&reversal).Error; err != nil {
		return 0, err
	}

	// Mark original as reversed (metadata-only update).
	if err := tx.Model(&Transaction{}).
		Where("id = ?", original.ID).
		Updates(map[string]interface{}{
			"reversed_by_transaction_id": reversal.ID,
			"reversal_reason":            &reasonCopy,
			"reversed_at":                &now,
		}).Error; err != nil {
		return 0, err
	}

	return reversal.ID, nil
}

// reverseSourceTransactionsTx reverses every active ledger transaction
// posted for the given source document.
func reverseSourceTransactionsTx(ctx context.Context, tx *gorm.DB, sourceType TransactionSourceType, sourceId int, reason string) error {
	var originals []*Transaction
	if err := tx.WithContext(ctx).Preload("Lines").
		Where("source_type = ? AND source_id = ?", sourceType, sourceId).
		Where("is_reversal = ? AND reversed_by_transaction_id IS NULL", false).
		Find(&originals).Error; err != nil {
		return err
	}
	for _, original := range originals {
		if _, err := reverseTransactionTx(tx, original, reason); err != nil {
			return err
		}
	}
	return nil
}

// VoidTransaction reverses a manual journal entry. Voiding an already
// reversed transaction fails with ErrorAlreadyVoid.
func VoidTransaction(ctx context.Context, id int, reason string) (*Transaction, error) {

	if _, _, err := utils.RequireActor(ctx); err != nil {
		return nil, err
	}
	if reason == "" {
		return nil, utils.NewValidationError("reason", "reason is required")
	}

	transaction, err := utils.FetchModel[Transaction](ctx, id, "Lines")
	if err != nil {
		return nil, err
	}
	if transaction.IsReversal {
		return nil, utils.NewValidationError("id", "reversal transactions cannot be voided")
	}
	if transaction.ReversedByTransactionId != nil && *transaction.ReversedByTransactionId > 0 {
		return nil, utils.ErrorAlreadyVoid
	}
	if transaction.SourceType != TransactionSourceTypeManual {
		return nil, utils.NewValidationError("id", "transaction belongs to a document; void the document instead")
	}

	db := config.GetDB()
	tx := db.Begin()
	if _, err := reverseTransactionTx(tx, transaction, reason); err != nil {
		tx.Rollback()
		return nil, err
	}
	if err := tx.Commit().Error; err != nil {
		return nil, err
	}

	SaveHistoryVoid(ctx, id, "transactions", transaction, "Transaction "+transaction.TransactionNumber+" voided: "+reason)
	return utils.FetchModel[Transaction](ctx, id, "Lines")
}

func GetTransaction(ctx context.Context, id int) (*Transaction, error) {
	return utils.FetchModel[Transaction](ctx, id, "Lines")
}

func GetTransactions(ctx context.Context, fromDate *time.Time, toDate *time.Time, sourceType *TransactionSourceType) ([]*Transaction, error) {

	db := config.GetDB()
	var results []*Transaction

	dbCtx := db.WithContext(ctx).Preload("Lines")
	if fromDate != nil {
		dbCtx = dbCtx.Where("transaction_date >= ?", fromDate)
	}
	if toDate != nil {
		dbCtx = dbCtx.Where("transaction_date <= ?", toDate)
	}
	if sourceType != nil && *sourceType != "" {
		dbCtx = dbCtx.Where("source_type = ?", *sourceType)
	}
	err := dbCtx.Order("transaction_date DESC, id DESC").Find(&results).Error
	if err != nil {
		return nil, err
	}
	return results, nil
}
