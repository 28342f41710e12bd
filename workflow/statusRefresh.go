package workflow

import (
	"context"
	"time"

	"bitbucket.org/mmdatafocus/ledger_backend/models"
	"bitbucket.org/mmdatafocus/ledger_backend/utils"
	"github.com/sirupsen/logrus"
)

// RefreshDocumentStatuses sweeps open invoices and bills past their due
// date into Overdue. Intended to run daily.
func RefreshDocumentStatuses(ctx context.Context, logger *logrus.Logger, today time.Time) (int64, error) {
	release, err := utils.ObtainLock(ctx, "StatusRefresh", "daily", moduleName, "RefreshDocumentStatuses")
	if err != nil {
		return 0, err
	}
	defer release()

	invoices, err := models.RefreshOverdueInvoices(ctx, today)
	if err != nil {
		return 0, err
	}
	bills, err := models.RefreshOverdueBills(ctx, today)
	if err != nil {
		return invoices, err
	}

	if logger != nil {
		logger.WithFields(logrus.Fields{
			"field":    "StatusRefresh",
			"invoices": invoices,
			"bills":    bills,
		}).Info("overdue status refresh completed")
	}
	return invoices + bills, nil
}
