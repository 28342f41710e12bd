package models

import (
	"context"
	"fmt"
	"time"

	"bitbucket.org/mmdatafocus/ledger_backend/config"
	"bitbucket.org/mmdatafocus/ledger_backend/utils"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
)

// RunReconciliationChecks writes mismatch rows to reconciliation_reports.
// This is intended to be run on a schedule (nightly) or via an admin trigger.
func RunReconciliationChecks(ctx context.Context) (correlationId string, err error) {
	if ctx == nil {
		ctx = context.Background()
	}
	db := config.GetDB()
	if db == nil {
		return "", fmt.Errorf("db is nil")
	}
	logger := config.GetLogger()

	cid, ok := utils.GetCorrelationIdFromContext(ctx)
	if !ok || cid == "" {
		cid = uuid.NewString()
	}
	now := time.Now().UTC()
	mismatchCount := 0

	report := func(checkType, entityType string, entityId int, details string) {
		mismatchCount++
		_ = db.WithContext(ctx).Create(&ReconciliationReport{
			CheckType:     checkType,
			EntityType:    entityType,
			EntityId:      entityId,
			Details:       details,
			CorrelationId: cid,
			CreatedAt:     now,
		}).Error
	}

	// 1) Global trial balance: sum debits must equal sum credits.
	var imbalance struct {
		TotalDebit  string
		TotalCredit string
		Imbalance   int
	}
	if err := db.WithContext(ctx).Raw(`
		SELECT
			CAST(COALESCE(SUM(debit), 0) AS CHAR) AS total_debit,
			CAST(COALESCE(SUM(credit), 0) AS CHAR) AS total_credit,
			CASE
				WHEN ROUND(COALESCE(SUM(debit), 0), 4) = ROUND(COALESCE(SUM(credit), 0), 4) THEN 0
				ELSE 1
			END AS imbalance
		FROM transaction_lines
	`).Scan(&imbalance).Error; err != nil {
		return cid, err
	}
	if imbalance.Imbalance == 1 {
		report("TRIAL_BALANCE", "Ledger", 0,
			fmt.Sprintf("sum(debit)=%s != sum(credit)=%s", imbalance.TotalDebit, imbalance.TotalCredit))
	}

	// 2) Per-transaction balance.
	type txnImbalance struct {
		TransactionId int
		TotalDebit    string
		TotalCredit   string
	}
	var txnMismatches []txnImbalance
	if err := db.WithContext(ctx).Raw(`
		SELECT
			transaction_id,
			CAST(SUM(debit) AS CHAR) AS total_debit,
			CAST(SUM(credit) AS CHAR) AS total_credit
		FROM transaction_lines
		GROUP BY transaction_id
		HAVING ROUND(SUM(debit), 4) <> ROUND(SUM(credit), 4)
	`).Scan(&txnMismatches).Error; err != nil {
		return cid, err
	}
	for _, m := range txnMismatches {
		report("TRANSACTION_BALANCE", "Transaction", m.TransactionId,
			fmt.Sprintf("sum(debit)=%s != sum(credit)=%s", m.TotalDebit, m.TotalCredit))
	}

	// 3) Posted invoices must have an active ledger transaction.
	type docRow struct{ ID int }
	var unpostedInvoices []docRow
	if err := db.WithContext(ctx).Raw(`
		SELECT i.id
		FROM invoices i
		WHERE i.current_status IN ('Sent', 'Partial Paid', 'Paid', 'Overdue')
		  AND NOT EXISTS (
			SELECT 1 FROM transactions t
			WHERE t.source_type = 'IV'
			  AND t.source_id = i.id
			  AND t.is_reversal = 0
			  AND t.reversed_by_transaction_id IS NULL
		  )
	`).Scan(&unpostedInvoices).Error; err != nil {
		return cid, err
	}
	for _, inv := range unpostedInvoices {
		report("INVOICE_LEDGER", "Invoice", inv.ID, "missing active ledger transaction for posted invoice")
	}

	var unpostedBills []docRow
	if err := db.WithContext(ctx).Raw(`
		SELECT b.id
		FROM bills b
		WHERE b.current_status IN ('Received', 'Partial Paid', 'Paid', 'Overdue')
		  AND NOT EXISTS (
			SELECT 1 FROM transactions t
			WHERE t.source_type = 'BL'
			  AND t.source_id = b.id
			  AND t.is_reversal = 0
			  AND t.reversed_by_transaction_id IS NULL
		  )
	`).Scan(&unpostedBills).Error; err != nil {
		return cid, err
	}
	for _, b := range unpostedBills {
		report("BILL_LEDGER", "Bill", b.ID, "missing active ledger transaction for received bill")
	}

	// 4) Invoice money arithmetic and application consistency.
	type moneyMismatch struct {
		ID      int
		Details string
	}
	var invoiceMismatches []moneyMismatch
	if err := db.WithContext(ctx).Raw(`
		SELECT
			i.id,
			CONCAT('total=', CAST(i.total_amount AS CHAR),
				' paid=', CAST(i.amount_paid AS CHAR),
				' due=', CAST(i.balance_due AS CHAR)) AS details
		FROM invoices i
		WHERE i.current_status <> 'Void'
		  AND ROUND(i.total_amount - i.amount_paid, 4) <> ROUND(i.balance_due, 4)
	`).Scan(&invoiceMismatches).Error; err != nil {
		return cid, err
	}
	for _, m := range invoiceMismatches {
		report("INVOICE_MONEY", "Invoice", m.ID, "balance_due != total_amount - amount_paid ("+m.Details+")")
	}

	var applicationMismatches []moneyMismatch
	if err := db.WithContext(ctx).Raw(`
		SELECT
			i.id,
			CONCAT('amount_paid=', CAST(i.amount_paid AS CHAR),
				' applied=', CAST(COALESCE(SUM(pa.applied_amount), 0) AS CHAR)) AS details
		FROM invoices i
		LEFT JOIN payment_applications pa ON pa.invoice_id = i.id
		LEFT JOIN payments p ON p.id = pa.payment_id AND p.is_void = 0
		WHERE i.current_status <> 'Void'
		GROUP BY i.id
		HAVING ROUND(i.amount_paid, 4) <> ROUND(COALESCE(SUM(CASE WHEN p.id IS NOT NULL THEN pa.applied_amount ELSE 0 END), 0), 4)
	`).Scan(&applicationMismatches).Error; err != nil {
		return cid, err
	}
	for _, m := range applicationMismatches {
		report("INVOICE_APPLICATIONS", "Invoice", m.ID, "amount_paid != sum of active applications ("+m.Details+")")
	}

	// 5) Item quantity cache vs movement ledger.
	type stockMismatch struct {
		ItemId      int
		ExpectedQty string
		ActualQty   string
	}
	var stockMismatches []stockMismatch
	if err := db.WithContext(ctx).Raw(`
		SELECT
			it.id AS item_id,
			CAST(it.quantity_on_hand AS CHAR) AS expected_qty,
			CAST(COALESCE(SUM(m.qty), 0) AS CHAR) AS actual_qty
		FROM items it
		LEFT JOIN inventory_transactions m ON m.item_id = it.id
		GROUP BY it.id
		HAVING ROUND(it.quantity_on_hand, 4) <> ROUND(COALESCE(SUM(m.qty), 0), 4)
	`).Scan(&stockMismatches).Error; err != nil {
		return cid, err
	}
	for _, m := range stockMismatches {
		report("ITEM_QTY", "Item", m.ItemId,
			fmt.Sprintf("quantity_on_hand=%s != sum(inventory_transactions.qty)=%s", m.ExpectedQty, m.ActualQty))
	}

	if logger != nil {
		logger.WithFields(logrus.Fields{
			"field":          "ReconciliationChecks",
			"correlation_id": cid,
			"mismatches":     mismatchCount,
		}).Info("reconciliation checks completed")
	}
	return cid, nil
}

func GetReconciliationReports(ctx context.Context, correlationId *string, checkType *string) ([]*ReconciliationReport, error) {
	db := config.GetDB()
	var results []*ReconciliationReport

	dbCtx := db.WithContext(ctx)
	if correlationId != nil && *correlationId != "" {
		dbCtx = dbCtx.Where("correlation_id = ?", *correlationId)
	}
	if checkType != nil && *checkType != "" {
		dbCtx = dbCtx.Where("check_type = ?", *checkType)
	}
	err := dbCtx.Order("created_at DESC, id DESC").Find(&results).Error
	if err != nil {
		return nil, err
	}
	return results, nil
}
