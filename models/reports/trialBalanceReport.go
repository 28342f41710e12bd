package reports

import (
	"context"
	"time"

	"bitbucket.org/mmdatafocus/ledger_backend/config"
	"bitbucket.org/mmdatafocus/ledger_backend/models"
	"github.com/shopspring/decimal"
)

type TrialBalanceRow struct {
	AccountId   int                    `json:"account_id"`
	AccountCode string                 `json:"account_code"`
	AccountName string                 `json:"account_name"`
	MainType    models.AccountMainType `json:"main_type"`
	Debit       decimal.Decimal        `json:"debit"`
	Credit      decimal.Decimal        `json:"credit"`
}

// GetTrialBalanceReport sums every account's posted lines up to toDate and
// shows the net on the account's debit or credit side. Reversal pairs net
// to zero, so voided documents drop out without any status filter.
func GetTrialBalanceReport(ctx context.Context, toDate time.Time) ([]*TrialBalanceRow, error) {

	db := config.GetDB()
	var rows []*TrialBalanceRow

	err := db.WithContext(ctx).Raw(`
		SELECT
			ac.id AS account_id,
			ac.code AS account_code,
			ac.name AS account_name,
			ac.main_type AS main_type,
			CASE
				WHEN COALESCE(SUM(tl.debit), 0) - COALESCE(SUM(tl.credit), 0) >= 0
				THEN COALESCE(SUM(tl.debit), 0) - COALESCE(SUM(tl.credit), 0)
				ELSE 0
			END AS debit,
			CASE
				WHEN COALESCE(SUM(tl.debit), 0) - COALESCE(SUM(tl.credit), 0) < 0
				THEN ABS(COALESCE(SUM(tl.debit), 0) - COALESCE(SUM(tl.credit), 0))
				ELSE 0
			END AS credit
		FROM
			accounts AS ac
			LEFT JOIN transaction_lines AS tl
				ON tl.account_id = ac.id
				AND tl.transaction_date <= ?
		GROUP BY
			ac.id, ac.code, ac.name, ac.main_type
		HAVING
			debit <> 0 OR credit <> 0
		ORDER BY
			ac.code ASC`, toDate).Scan(&rows).Error
	if err != nil {
		return nil, err
	}
	return rows, nil
}

// TrialBalanceTotals returns the debit and credit column totals. A healthy
// ledger always has them equal.
func TrialBalanceTotals(rows []*TrialBalanceRow) (totalDebit decimal.Decimal, totalCredit decimal.Decimal) {
	for _, row := range rows {
		totalDebit = totalDebit.Add(row.Debit)
		totalCredit = totalCredit.Add(row.Credit)
	}
	return totalDebit, totalCredit
}
