package models

import (
	"testing"
	"time"
)

func TestFormatDocumentNumber(t *testing.T) {
	cases := []struct {
		format string
		seqNo  int64
		want   string
	}{
		{transactionNumberFormat, 1, "TXN-000001"},
		{transactionNumberFormat, 108, "TXN-000108"},
		{invoiceNumberFormat, 42, "INV-0042"},
		{billNumberFormat, 7, "BILL-0007"},
		{paymentNumberFormat, 12345, "PAY-12345"},
		{itemSkuFormat, 3, "ITEM-0003"},
	}
	for _, tc := range cases {
		if got := formatDocumentNumber(tc.format, tc.seqNo); got != tc.want {
			t.Errorf("formatDocumentNumber(%q, %d) = %q, want %q", tc.format, tc.seqNo, got, tc.want)
		}
	}
}

func TestCalculateDueDate(t *testing.T) {
	date := time.Date(2026, 1, 20, 0, 0, 0, 0, time.UTC)

	cases := []struct {
		terms      PaymentTerms
		customDays int
		want       time.Time
	}{
		{PaymentTermsDueOnReceipt, 0, date},
		{PaymentTermsNet15, 0, time.Date(2026, 2, 4, 0, 0, 0, 0, time.UTC)},
		{PaymentTermsNet30, 0, time.Date(2026, 2, 19, 0, 0, 0, 0, time.UTC)},
		{PaymentTermsNet45, 0, time.Date(2026, 3, 6, 0, 0, 0, 0, time.UTC)},
		{PaymentTermsNet60, 0, time.Date(2026, 3, 21, 0, 0, 0, 0, time.UTC)},
		{PaymentTermsDueEndOfMonth, 0, time.Date(2026, 1, 31, 0, 0, 0, 0, time.UTC)},
		{PaymentTermsDueEndOfNextMonth, 0, time.Date(2026, 2, 28, 0, 0, 0, 0, time.UTC)},
		{PaymentTermsCustom, 10, time.Date(2026, 1, 30, 0, 0, 0, 0, time.UTC)},
	}

	for _, tc := range cases {
		t.Run(string(tc.terms), func(t *testing.T) {
			got := calculateDueDate(date, tc.terms, tc.customDays)
			if got == nil {
				t.Fatal("due date is nil")
			}
			if !got.Equal(tc.want) {
				t.Fatalf("due date = %v, want %v", got, tc.want)
			}
		})
	}
}

func TestCalculateDueDateEndOfMonthAcrossYear(t *testing.T) {
	date := time.Date(2026, 12, 5, 0, 0, 0, 0, time.UTC)

	got := calculateDueDate(date, PaymentTermsDueEndOfMonth, 0)
	if want := time.Date(2026, 12, 31, 0, 0, 0, 0, time.UTC); !got.Equal(want) {
		t.Fatalf("end of month = %v, want %v", got, want)
	}

	got = calculateDueDate(date, PaymentTermsDueEndOfNextMonth, 0)
	if want := time.Date(2027, 1, 31, 0, 0, 0, 0, time.UTC); !got.Equal(want) {
		t.Fatalf("end of next month = %v, want %v", got, want)
	}
}
