package reports

import (
	"testing"

	"github.com/shopspring/decimal"
)

func TestAgingBucketIndex(t *testing.T) {
	cases := []struct {
		daysOverdue int
		want        int
	}{
		{-30, 0},
		{0, 0},
		{1, 1},
		{15, 1},
		{16, 2},
		{30, 2},
		{31, 3},
		{45, 3},
		{46, 4},
		{365, 4},
	}
	for _, tc := range cases {
		if got := AgingBucketIndex(tc.daysOverdue); got != tc.want {
			t.Errorf("AgingBucketIndex(%d) = %d, want %d", tc.daysOverdue, got, tc.want)
		}
	}
}

func TestTrialBalanceTotals(t *testing.T) {
	rows := []*TrialBalanceRow{
		{Debit: decimal.NewFromFloat(100.25)},
		{Credit: decimal.NewFromFloat(60.25)},
		{Credit: decimal.NewFromInt(40)},
	}

	totalDebit, totalCredit := TrialBalanceTotals(rows)
	if !totalDebit.Equal(decimal.NewFromFloat(100.25)) {
		t.Fatalf("total debit = %s, want 100.25", totalDebit)
	}
	if !totalCredit.Equal(decimal.NewFromFloat(100.25)) {
		t.Fatalf("total credit = %s, want 100.25", totalCredit)
	}
	if !totalDebit.Equal(totalCredit) {
		t.Fatal("a balanced ledger must have equal column totals")
	}
}

func TestTrialBalanceTotalsEmpty(t *testing.T) {
	totalDebit, totalCredit := TrialBalanceTotals(nil)
	if !totalDebit.IsZero() || !totalCredit.IsZero() {
		t.Fatalf("empty report totals = %s / %s, want 0 / 0", totalDebit, totalCredit)
	}
}
