package reports

import (
	"context"
	"time"

	"bitbucket.org/mmdatafocus/ledger_backend/config"
	"bitbucket.org/mmdatafocus/ledger_backend/models"
	"bitbucket.org/mmdatafocus/ledger_backend/utils"
	"github.com/shopspring/decimal"
)

type GeneralLedgerRow struct {
	TransactionId     int             `json:"transaction_id"`
	TransactionNumber string          `json:"transaction_number"`
	TransactionDate   time.Time       `json:"transaction_date"`
	Description       string          `json:"description"`
	Debit             decimal.Decimal `json:"debit"`
	Credit            decimal.Decimal `json:"credit"`
	RunningBalance    decimal.Decimal `json:"running_balance"`
}

type GeneralLedgerResponse struct {
	AccountId      int                 `json:"account_id"`
	AccountCode    string              `json:"account_code"`
	AccountName    string              `json:"account_name"`
	OpeningBalance decimal.Decimal     `json:"opening_balance"`
	ClosingBalance decimal.Decimal     `json:"closing_balance"`
	Rows           []*GeneralLedgerRow `json:"rows"`
}

// GetGeneralLedgerReport lists an account's line activity between fromDate
// and toDate with a running balance. The balance is signed by the
// account's normal balance side.
func GetGeneralLedgerReport(ctx context.Context, accountId int, fromDate time.Time, toDate time.Time) (*GeneralLedgerResponse, error) {

	account, err := utils.FetchModel[models.Account](ctx, accountId)
	if err != nil {
		return nil, err
	}

	opening, err := models.AccountBalance(ctx, accountId, fromDate.Add(-time.Second))
	if err != nil {
		return nil, err
	}

	db := config.GetDB()
	var rows []*GeneralLedgerRow
	err = db.WithContext(ctx).Raw(`
		SELECT
			t.id AS transaction_id,
			t.transaction_number AS transaction_number,
			tl.transaction_date AS transaction_date,
			tl.description AS description,
			tl.debit AS debit,
			tl.credit AS credit
		FROM
			transaction_lines AS tl
			JOIN transactions AS t ON t.id = tl.transaction_id
		WHERE
			tl.account_id = ?
			AND tl.transaction_date >= ?
			AND tl.transaction_date <= ?
		ORDER BY
			tl.transaction_date ASC, tl.id ASC`,
		accountId, fromDate, toDate).Scan(&rows).Error
	if err != nil {
		return nil, err
	}

	running := opening
	for _, row := range rows {
		if account.NormalBalance == models.NormalBalanceDebit {
			running = running.Add(row.Debit).Sub(row.Credit)
		} else {
			running = running.Add(row.Credit).Sub(row.Debit)
		}
		row.RunningBalance = running
	}

	return &GeneralLedgerResponse{
		AccountId:      accountId,
		AccountCode:    account.Code,
		AccountName:    account.Name,
		OpeningBalance: opening,
		ClosingBalance: running,
		Rows:           rows,
	}, nil
}
