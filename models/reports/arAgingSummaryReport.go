package reports

import (
	"context"
	"time"

	"bitbucket.org/mmdatafocus/ledger_backend/config"
	"github.com/shopspring/decimal"
)

type ARAgingSummaryResponse struct {
	CustomerId   int             `json:"customer_id"`
	CustomerName string          `json:"customer_name"`
	Total        decimal.Decimal `json:"total"`
	Current      decimal.Decimal `json:"current"`
	Int1to15     decimal.Decimal `json:"int1to15"`
	Int16to30    decimal.Decimal `json:"int16to30"`
	Int31to45    decimal.Decimal `json:"int31to45"`
	Int46plus    decimal.Decimal `json:"int46plus"`
	InvoiceCount int             `json:"invoice_count"`
}

// AgingBucketIndex maps days overdue to a bucket: 0 current, then 1-15,
// 16-30, 31-45 and 46+.
func AgingBucketIndex(daysOverdue int) int {
	switch {
	case daysOverdue <= 0:
		return 0
	case daysOverdue <= 15:
		return 1
	case daysOverdue <= 30:
		return 2
	case daysOverdue <= 45:
		return 3
	default:
		return 4
	}
}

// GetARAgingSummaryReport buckets the open receivable balance per
// customer by how far past due each invoice is on currentDate.
func GetARAgingSummaryReport(ctx context.Context, currentDate time.Time) ([]*ARAgingSummaryResponse, error) {

	var results []*ARAgingSummaryResponse
	db := config.GetDB()

	err := db.WithContext(ctx).Raw(`
		WITH InvoiceAging AS (
			SELECT
				i.customer_id,
				i.balance_due,
				CASE
					WHEN i.balance_due > 0 AND i.due_date IS NOT NULL THEN DATEDIFF(?, i.due_date)
					ELSE 0
				END AS days_overdue
			FROM
				invoices i
			WHERE
				i.invoice_date <= ?
				AND i.current_status IN ('Sent', 'Partial Paid', 'Overdue')
				AND i.balance_due > 0
		)
		SELECT
			ia.customer_id,
			customers.name AS customer_name,
			SUM(ia.balance_due) AS total,
			SUM(CASE WHEN ia.days_overdue <= 0 THEN ia.balance_due ELSE 0 END) AS current,
			SUM(CASE WHEN ia.days_overdue BETWEEN 1 AND 15 THEN ia.balance_due ELSE 0 END) AS int1to15,
			SUM(CASE WHEN ia.days_overdue BETWEEN 16 AND 30 THEN ia.balance_due ELSE 0 END) AS int16to30,
			SUM(CASE WHEN ia.days_overdue BETWEEN 31 AND 45 THEN ia.balance_due ELSE 0 END) AS int31to45,
			SUM(CASE WHEN ia.days_overdue >= 46 THEN ia.balance_due ELSE 0 END) AS int46plus,
			COUNT(*) AS invoice_count
		FROM
			InvoiceAging ia
			JOIN customers ON customers.id = ia.customer_id
		GROUP BY
			ia.customer_id, customers.name
		ORDER BY
			customers.name ASC`, currentDate, currentDate).Scan(&results).Error
	if err != nil {
		return nil, err
	}
	return results, nil
}
