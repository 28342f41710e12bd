package models

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"
)

func TestReceiveBillLinesTotalsAndBillableDefault(t *testing.T) {
	lines, subtotal, discountTotal, taxTotal, total := receiveBillLines([]NewBillLine{
		{ItemId: 1, Name: "Widget", Qty: d("10"), UnitCost: d("2.50"), TaxRate: d("0.05")},
		{ExpenseAccountId: 7, Name: "Freight", Qty: d("1"), UnitCost: d("40.00")},
	}, decimal.Zero)

	if !subtotal.Equal(d("65.00")) {
		t.Fatalf("subtotal = %s, want 65.00", subtotal)
	}
	if !discountTotal.IsZero() {
		t.Fatalf("discount total = %s, want 0", discountTotal)
	}
	if !taxTotal.Equal(d("1.25")) {
		t.Fatalf("tax total = %s, want 1.25", taxTotal)
	}
	if !total.Equal(d("66.25")) {
		t.Fatalf("total = %s, want 66.25", total)
	}
	for i, line := range lines {
		if line.Billable == nil {
			t.Fatalf("line %d billable should default to false, got nil", i)
		}
		if *line.Billable {
			t.Fatalf("line %d billable should default to false", i)
		}
	}
	if lines[1].ExpenseAccountId != 7 {
		t.Fatalf("expense account not preserved: %d", lines[1].ExpenseAccountId)
	}
}

func TestReceiveBillLinesDiscountedCost(t *testing.T) {
	lines, subtotal, discountTotal, taxTotal, total := receiveBillLines([]NewBillLine{
		{ItemId: 1, Name: "Widget", Qty: d("10"), UnitCost: d("2.50"), DiscountPct: d("20"), TaxRate: d("0.05")},
	}, d("10"))

	if !lines[0].DiscountAmount.Equal(d("5.00")) {
		t.Fatalf("line discount = %s, want 5.00", lines[0].DiscountAmount)
	}
	// Tax applies to the discounted 20.00 base.
	if !lines[0].TaxAmount.Equal(d("1.00")) {
		t.Fatalf("line tax = %s, want 1.00", lines[0].TaxAmount)
	}
	if !subtotal.Equal(d("20.00")) {
		t.Fatalf("subtotal = %s, want 20.00", subtotal)
	}
	if !discountTotal.Equal(d("2.00")) {
		t.Fatalf("header discount = %s, want 2.00", discountTotal)
	}
	if !taxTotal.Equal(d("1.00")) {
		t.Fatalf("tax total = %s, want 1.00", taxTotal)
	}
	if !total.Equal(d("19.00")) {
		t.Fatalf("total = %s, want 19.00", total)
	}
	if !effectiveUnitCost(subtotal, d("10")).Equal(d("2.00")) {
		t.Fatalf("effective unit cost = %s, want 2.00", effectiveUnitCost(subtotal, d("10")))
	}
}

func TestNextBillStatus(t *testing.T) {
	today := time.Date(2026, 6, 10, 9, 0, 0, 0, time.UTC)
	past := time.Date(2026, 5, 20, 0, 0, 0, 0, time.UTC)
	future := time.Date(2026, 7, 1, 0, 0, 0, 0, time.UTC)

	cases := []struct {
		name    string
		current BillStatus
		paid    string
		due     string
		dueDate *time.Time
		want    BillStatus
	}{
		{"draft passes through", BillStatusDraft, "0", "100", &past, BillStatusDraft},
		{"void passes through", BillStatusVoid, "0", "100", &past, BillStatusVoid},
		{"fully paid", BillStatusReceived, "100", "0", &future, BillStatusPaid},
		{"partial paid wins over overdue", BillStatusPartialPaid, "40", "60", &past, BillStatusPartialPaid},
		{"partial payment clears overdue", BillStatusOverdue, "40", "60", &past, BillStatusPartialPaid},
		{"partial paid", BillStatusReceived, "40", "60", &future, BillStatusPartialPaid},
		{"unpaid past due goes overdue", BillStatusReceived, "0", "100", &past, BillStatusOverdue},
		{"unpaid not yet due", BillStatusReceived, "0", "100", &future, BillStatusReceived},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got := NextBillStatus(tc.current, d("100"), d(tc.paid), d(tc.due), tc.dueDate, today)
			if got != tc.want {
				t.Fatalf("status = %s, want %s", got, tc.want)
			}
		})
	}
}
