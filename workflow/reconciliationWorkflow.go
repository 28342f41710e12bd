package workflow

import (
	"context"

	"bitbucket.org/mmdatafocus/ledger_backend/models"
	"bitbucket.org/mmdatafocus/ledger_backend/utils"
	"github.com/sirupsen/logrus"
)

const moduleName = "Workflow"

// RunReconciliationChecks wraps the models-level checks with a
// distributed lock so overlapping scheduled runs don't double-report.
func RunReconciliationChecks(ctx context.Context, logger *logrus.Logger) (string, error) {
	release, err := utils.ObtainLock(ctx, "Reconciliation", "checks", moduleName, "RunReconciliationChecks")
	if err != nil {
		return "", err
	}
	defer release()

	cid, err := models.RunReconciliationChecks(ctx)
	if err != nil {
		return cid, err
	}
	if logger != nil {
		logger.WithFields(logrus.Fields{
			"field":          "ReconciliationWorkflow",
			"correlation_id": cid,
		}).Info("reconciliation workflow completed")
	}
	return cid, nil
}
