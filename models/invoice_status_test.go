package models

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"
)

func TestReceiveInvoiceLinesTotals(t *testing.T) {
	lines, subtotal, discountTotal, taxTotal, total := receiveInvoiceLines([]NewInvoiceLine{
		{ItemId: 1, Name: "Widget", Qty: d("2"), UnitPrice: d("10.00"), TaxRate: d("0.08")},
		{Name: "Handling", Qty: d("1"), UnitPrice: d("5.00"), TaxRate: d("0.08")},
	}, decimal.Zero)

	if !subtotal.Equal(d("25.00")) {
		t.Fatalf("subtotal = %s, want 25.00", subtotal)
	}
	if !discountTotal.IsZero() {
		t.Fatalf("discount total = %s, want 0", discountTotal)
	}
	if !taxTotal.Equal(d("2.00")) {
		t.Fatalf("tax total = %s, want 2.00", taxTotal)
	}
	if !total.Equal(d("27.00")) {
		t.Fatalf("total = %s, want 27.00", total)
	}
	if len(lines) != 2 {
		t.Fatalf("expected 2 lines, got %d", len(lines))
	}
	if !lines[0].LineTotal.Equal(d("20.00")) || !lines[0].TaxAmount.Equal(d("1.60")) {
		t.Fatalf("line 0 = %s tax %s, want 20.00 tax 1.60", lines[0].LineTotal, lines[0].TaxAmount)
	}
	if lines[1].ItemId != 0 {
		t.Fatalf("service line should keep item_id 0, got %d", lines[1].ItemId)
	}
}

func TestReceiveInvoiceLinesDiscounts(t *testing.T) {
	// Line discount comes off before tax, header discount after.
	lines, subtotal, discountTotal, taxTotal, total := receiveInvoiceLines([]NewInvoiceLine{
		{Name: "Widget", Qty: d("2"), UnitPrice: d("10.00"), DiscountPct: d("10"), TaxRate: d("0.08")},
		{Name: "Handling", Qty: d("1"), UnitPrice: d("2.00")},
	}, d("5"))

	if !lines[0].DiscountAmount.Equal(d("2.00")) {
		t.Fatalf("line discount = %s, want 2.00", lines[0].DiscountAmount)
	}
	if !lines[0].TaxAmount.Equal(d("1.44")) {
		t.Fatalf("line tax = %s, want 1.44 (8%% of 18.00)", lines[0].TaxAmount)
	}
	if !subtotal.Equal(d("20.00")) {
		t.Fatalf("subtotal = %s, want 20.00", subtotal)
	}
	if !discountTotal.Equal(d("1.00")) {
		t.Fatalf("header discount = %s, want 1.00", discountTotal)
	}
	if !taxTotal.Equal(d("1.44")) {
		t.Fatalf("tax total = %s, want 1.44", taxTotal)
	}
	if !total.Equal(d("20.44")) {
		t.Fatalf("total = %s, want 20.44", total)
	}
}

func TestReceiveInvoiceLinesRoundsPerLine(t *testing.T) {
	// 3 x 0.335 = 1.005, rounds to 1.01 before tax.
	_, subtotal, _, taxTotal, total := receiveInvoiceLines([]NewInvoiceLine{
		{Name: "Bulk", Qty: d("3"), UnitPrice: d("0.335"), TaxRate: d("0.05")},
	}, decimal.Zero)
	if !subtotal.Equal(d("1.01")) {
		t.Fatalf("subtotal = %s, want 1.01", subtotal)
	}
	if !taxTotal.Equal(d("0.05")) {
		t.Fatalf("tax total = %s, want 0.05", taxTotal)
	}
	if !total.Equal(d("1.06")) {
		t.Fatalf("total = %s, want 1.06", total)
	}
}

func TestCreditLimitExceeded(t *testing.T) {
	cases := []struct {
		name        string
		limit       string
		outstanding string
		amount      string
		want        bool
	}{
		{"zero limit is unlimited", "0", "1000000", "500", false},
		{"under limit", "100", "50", "40", false},
		{"exactly at limit", "100", "60", "40", false},
		{"over limit", "100", "90", "15", true},
		{"just over limit", "100", "90", "10.01", true},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got := creditLimitExceeded(d(tc.limit), d(tc.outstanding), d(tc.amount))
			if got != tc.want {
				t.Fatalf("creditLimitExceeded = %v, want %v", got, tc.want)
			}
		})
	}
}

func TestNextInvoiceStatus(t *testing.T) {
	today := time.Date(2026, 6, 10, 14, 30, 0, 0, time.UTC)
	past := time.Date(2026, 6, 1, 0, 0, 0, 0, time.UTC)
	todayMidnight := time.Date(2026, 6, 10, 0, 0, 0, 0, time.UTC)
	future := time.Date(2026, 7, 1, 0, 0, 0, 0, time.UTC)

	cases := []struct {
		name    string
		current InvoiceStatus
		paid    string
		due     string
		dueDate *time.Time
		want    InvoiceStatus
	}{
		{"draft passes through", InvoiceStatusDraft, "0", "100", &past, InvoiceStatusDraft},
		{"void passes through", InvoiceStatusVoid, "0", "100", &past, InvoiceStatusVoid},
		{"fully paid", InvoiceStatusSent, "100", "0", &future, InvoiceStatusPaid},
		{"fully paid wins over overdue", InvoiceStatusOverdue, "100", "0", &past, InvoiceStatusPaid},
		{"partial paid wins over overdue", InvoiceStatusPartialPaid, "40", "60", &past, InvoiceStatusPartialPaid},
		{"partial payment clears overdue", InvoiceStatusOverdue, "40", "60", &past, InvoiceStatusPartialPaid},
		{"partial paid", InvoiceStatusSent, "40", "60", &future, InvoiceStatusPartialPaid},
		{"unpaid past due goes overdue", InvoiceStatusSent, "0", "100", &past, InvoiceStatusOverdue},
		{"unpaid not yet due", InvoiceStatusSent, "0", "100", &future, InvoiceStatusSent},
		{"due today is not overdue", InvoiceStatusSent, "0", "100", &todayMidnight, InvoiceStatusSent},
		{"no due date never goes overdue", InvoiceStatusSent, "40", "60", nil, InvoiceStatusPartialPaid},
		{"overpaid counts as paid", InvoiceStatusSent, "110", "-10", &future, InvoiceStatusPaid},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got := NextInvoiceStatus(tc.current, d("100"), d(tc.paid), d(tc.due), tc.dueDate, today)
			if got != tc.want {
				t.Fatalf("status = %s, want %s", got, tc.want)
			}
		})
	}
}
