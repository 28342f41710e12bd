package reports

import (
	"context"
	"time"

	"bitbucket.org/mmdatafocus/ledger_backend/config"
	"github.com/shopspring/decimal"
)

type APAgingSummaryResponse struct {
	VendorId   int             `json:"vendor_id"`
	VendorName string          `json:"vendor_name"`
	Total      decimal.Decimal `json:"total"`
	Current    decimal.Decimal `json:"current"`
	Int1to15   decimal.Decimal `json:"int1to15"`
	Int16to30  decimal.Decimal `json:"int16to30"`
	Int31to45  decimal.Decimal `json:"int31to45"`
	Int46plus  decimal.Decimal `json:"int46plus"`
	BillCount  int             `json:"bill_count"`
}

// GetAPAgingSummaryReport buckets the open payable balance per vendor by
// how far past due each bill is on currentDate.
func GetAPAgingSummaryReport(ctx context.Context, currentDate time.Time) ([]*APAgingSummaryResponse, error) {

	var results []*APAgingSummaryResponse
	db := config.GetDB()

	err := db.WithContext(ctx).Raw(`
		WITH BillAging AS (
			SELECT
				b.vendor_id,
				b.balance_due,
				CASE
					WHEN b.balance_due > 0 AND b.due_date IS NOT NULL THEN DATEDIFF(?, b.due_date)
					ELSE 0
				END AS days_overdue
			FROM
				bills b
			WHERE
				b.bill_date <= ?
				AND b.current_status IN ('Received', 'Partial Paid', 'Overdue')
				AND b.balance_due > 0
		)
		SELECT
			ba.vendor_id,
			vendors.name AS vendor_name,
			SUM(ba.balance_due) AS total,
			SUM(CASE WHEN ba.days_overdue <= 0 THEN ba.balance_due ELSE 0 END) AS current,
			SUM(CASE WHEN ba.days_overdue BETWEEN 1 AND 15 THEN ba.balance_due ELSE 0 END) AS int1to15,
			SUM(CASE WHEN ba.days_overdue BETWEEN 16 AND 30 THEN ba.balance_due ELSE 0 END) AS int16to30,
			SUM(CASE WHEN ba.days_overdue BETWEEN 31 AND 45 THEN ba.balance_due ELSE 0 END) AS int31to45,
			SUM(CASE WHEN ba.days_overdue >= 46 THEN ba.balance_due ELSE 0 END) AS int46plus,
			COUNT(*) AS bill_count
		FROM
			BillAging ba
			JOIN vendors ON vendors.id = ba.vendor_id
		GROUP BY
			ba.vendor_id, vendors.name
		ORDER BY
			vendors.name ASC`, currentDate, currentDate).Scan(&results).Error
	if err != nil {
		return nil, err
	}
	return results, nil
}
