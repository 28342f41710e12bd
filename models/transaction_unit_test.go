package models

import (
	"errors"
	"math/rand"
	"testing"
	"time"

	"bitbucket.org/mmdatafocus/ledger_backend/utils"
	"github.com/shopspring/decimal"
)

// NOTE: These tests are intentionally DB-free. They validate the double-entry
// rules enforced before any transaction row is written.

func d(s string) decimal.Decimal {
	v, err := decimal.NewFromString(s)
	if err != nil {
		panic(err)
	}
	return v
}

func TestValidateBalancedLines(t *testing.T) {
	cases := []struct {
		name      string
		lines     []NewTransactionLine
		wantTotal string
		wantErr   bool
		errIs     error
	}{
		{
			name: "balanced pair",
			lines: []NewTransactionLine{
				{AccountId: 1, Debit: d("100")},
				{AccountId: 2, Credit: d("100")},
			},
			wantTotal: "100",
		},
		{
			name: "balanced split credit",
			lines: []NewTransactionLine{
				{AccountId: 1, Debit: d("108.00")},
				{AccountId: 2, Credit: d("100.00")},
				{AccountId: 3, Credit: d("8.00")},
			},
			wantTotal: "108.00",
		},
		{
			name: "unbalanced",
			lines: []NewTransactionLine{
				{AccountId: 1, Debit: d("100")},
				{AccountId: 2, Credit: d("99.99")},
			},
			wantErr: true,
			errIs:   utils.ErrorUnbalancedEntry,
		},
		{
			name: "off by a fraction of a cent",
			lines: []NewTransactionLine{
				{AccountId: 1, Debit: d("100.0001")},
				{AccountId: 2, Credit: d("100.0000")},
			},
			wantErr: true,
			errIs:   utils.ErrorUnbalancedEntry,
		},
		{
			name: "single line",
			lines: []NewTransactionLine{
				{AccountId: 1, Debit: d("100")},
			},
			wantErr: true,
		},
		{
			name:    "no lines",
			lines:   nil,
			wantErr: true,
		},
		{
			name: "negative debit",
			lines: []NewTransactionLine{
				{AccountId: 1, Debit: d("-100")},
				{AccountId: 2, Credit: d("-100")},
			},
			wantErr: true,
		},
		{
			name: "both sides on one line",
			lines: []NewTransactionLine{
				{AccountId: 1, Debit: d("50"), Credit: d("50")},
				{AccountId: 2, Debit: d("50"), Credit: d("50")},
			},
			wantErr: true,
		},
		{
			name: "neither side on one line",
			lines: []NewTransactionLine{
				{AccountId: 1, Debit: d("100")},
				{AccountId: 2},
				{AccountId: 3, Credit: d("100")},
			},
			wantErr: true,
		},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			total, err := validateBalancedLines(tc.lines)
			if tc.wantErr {
				if err == nil {
					t.Fatalf("expected error, got total %s", total)
				}
				if tc.errIs != nil && !errors.Is(err, tc.errIs) {
					t.Fatalf("expected %v, got %v", tc.errIs, err)
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if !total.Equal(d(tc.wantTotal)) {
				t.Fatalf("total = %s, want %s", total, tc.wantTotal)
			}
		})
	}
}

// randomBalancedLines builds a line set whose debits and credits both sum
// to the same randomly chosen total, spread over 1..5 lines per side.
func randomBalancedLines(rng *rand.Rand) []NewTransactionLine {
	total := decimal.NewFromInt(rng.Int63n(99_999) + 1).Div(decimal.NewFromInt(100))

	side := func(credit bool) []NewTransactionLine {
		n := rng.Intn(5) + 1
		lines := make([]NewTransactionLine, 0, n)
		remaining := total
		for i := 0; i < n; i++ {
			amount := remaining
			if i < n-1 {
				cents := remaining.Mul(decimal.NewFromInt(100)).IntPart()
				if cents > 1 {
					amount = decimal.NewFromInt(rng.Int63n(cents-1) + 1).Div(decimal.NewFromInt(100))
				}
			}
			line := NewTransactionLine{AccountId: rng.Intn(50) + 1}
			if credit {
				line.Credit = amount
			} else {
				line.Debit = amount
			}
			lines = append(lines, line)
			remaining = remaining.Sub(amount)
			if remaining.IsZero() {
				break
			}
		}
		return lines
	}

	return append(side(false), side(true)...)
}

func TestValidateBalancedLinesRandomSets(t *testing.T) {
	rng := rand.New(rand.NewSource(1))

	for i := 0; i < 500; i++ {
		lines := randomBalancedLines(rng)
		if _, err := validateBalancedLines(lines); err != nil {
			t.Fatalf("balanced set %d rejected: %v\nlines: %+v", i, err, lines)
		}

		// Nudging any single line by any non-zero amount must break it.
		perturbed := make([]NewTransactionLine, len(lines))
		copy(perturbed, lines)
		j := rng.Intn(len(perturbed))
		delta := decimal.NewFromInt(rng.Int63n(10_000) + 1).Div(decimal.NewFromInt(100))
		if perturbed[j].Debit.IsPositive() {
			perturbed[j].Debit = perturbed[j].Debit.Add(delta)
		} else {
			perturbed[j].Credit = perturbed[j].Credit.Add(delta)
		}
		if _, err := validateBalancedLines(perturbed); !errors.Is(err, utils.ErrorUnbalancedEntry) {
			t.Fatalf("perturbed set %d accepted (delta %s on line %d)\nlines: %+v", i, delta, j, perturbed)
		}
	}
}

func TestReceiveTransactionLinesStampsDate(t *testing.T) {
	txnDate := time.Date(2026, 3, 15, 0, 0, 0, 0, time.UTC)
	input := &NewTransaction{
		TransactionDate: txnDate,
		Lines: []NewTransactionLine{
			{AccountId: 1, Debit: d("250.50"), Description: "cash"},
			{AccountId: 2, Credit: d("250.50"), Description: "revenue"},
		},
	}

	lines, total, err := receiveTransactionLines(input)
	if err != nil {
		t.Fatalf("receiveTransactionLines: %v", err)
	}
	if !total.Equal(d("250.50")) {
		t.Fatalf("total = %s, want 250.50", total)
	}
	if len(lines) != 2 {
		t.Fatalf("expected 2 lines, got %d", len(lines))
	}
	for i, line := range lines {
		if !line.TransactionDate.Equal(txnDate) {
			t.Errorf("line %d transaction_date = %v, want %v", i, line.TransactionDate, txnDate)
		}
	}
	if lines[0].AccountId != 1 || lines[1].AccountId != 2 {
		t.Fatalf("line accounts not preserved: %d, %d", lines[0].AccountId, lines[1].AccountId)
	}
}
