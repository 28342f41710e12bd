package models

import (
	"fmt"
	"time"

	"gorm.io/gorm"
)

// Document number prefixes. The printed number is prefix + zero-padded
// sequence, e.g. INV-0042, TXN-000108.
const (
	transactionNumberFormat = "TXN-%06d"
	invoiceNumberFormat     = "INV-%04d"
	billNumberFormat        = "BILL-%04d"
	paymentNumberFormat     = "PAY-%04d"
	billPaymentNumberFormat = "BPAY-%04d"
	itemSkuFormat           = "ITEM-%04d"
)

func formatDocumentNumber(format string, seqNo int64) string {
	return fmt.Sprintf(format, seqNo)
}

func calculateDueDate(date time.Time, paymentTerms PaymentTerms, customDays int) *time.Time {
	var dueDate time.Time
	switch terms := paymentTerms; terms {
	case PaymentTermsDueOnReceipt:
		dueDate = date
	case PaymentTermsNet15:
		dueDate = date.AddDate(0, 0, 15)
	case PaymentTermsNet30:
		dueDate = date.AddDate(0, 0, 30)
	case PaymentTermsNet45:
		dueDate = date.AddDate(0, 0, 45)
	case PaymentTermsNet60:
		dueDate = date.AddDate(0, 0, 60)
	case PaymentTermsDueEndOfMonth:
		year, month, _ := date.Date()
		firstOfMonth := time.Date(year, month, 1, 0, 0, 0, 0, date.Location())
		dueDate = firstOfMonth.AddDate(0, 1, -1)
	case PaymentTermsDueEndOfNextMonth:
		year, month, _ := date.Date()
		firstOfNextMonth := time.Date(year, month+1, 1, 0, 0, 0, 0, date.Location())
		dueDate = firstOfNextMonth.AddDate(0, 1, -1)
	case PaymentTermsCustom:
		dueDate = date.AddDate(0, 0, customDays)
	}
	return &dueDate
}

// AcquireDocumentLock serializes balance updates on a single document across
// instances using MySQL advisory locks.
// NOTE: GET_LOCK is connection-scoped, so this must be called on the same
// *gorm.DB transaction that will update the document.
func AcquireDocumentLock(tx *gorm.DB, documentType string, documentId int) error {
	lockName := fmt.Sprintf("posting:%s:%d", documentType, documentId)
	var ok int
	if err := tx.Raw("SELECT GET_LOCK(?, 30)", lockName).Scan(&ok).Error; err != nil {
		return err
	}
	if ok != 1 {
		return fmt.Errorf("could not acquire posting lock for %s %d", documentType, documentId)
	}
	return nil
}

func ReleaseDocumentLock(tx *gorm.DB, documentType string, documentId int) {
	lockName := fmt.Sprintf("posting:%s:%d", documentType, documentId)
	var _ok int
	_ = tx.Raw("SELECT RELEASE_LOCK(?)", lockName).Scan(&_ok).Error
}
