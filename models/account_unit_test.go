package models

import "testing"

func TestDefaultNormalBalance(t *testing.T) {
	cases := []struct {
		mainType AccountMainType
		want     NormalBalance
	}{
		{AccountMainTypeAsset, NormalBalanceDebit},
		{AccountMainTypeLiability, NormalBalanceCredit},
		{AccountMainTypeEquity, NormalBalanceCredit},
		{AccountMainTypeIncome, NormalBalanceCredit},
		{AccountMainTypeExpense, NormalBalanceDebit},
		{AccountMainTypeCOGS, NormalBalanceDebit},
		{AccountMainTypeOtherIncome, NormalBalanceCredit},
		{AccountMainTypeOtherExpense, NormalBalanceDebit},
	}
	for _, tc := range cases {
		if err := tc.mainType.Validate(); err != nil {
			t.Errorf("%s should be a valid main type: %v", tc.mainType, err)
		}
		if got := DefaultNormalBalance(tc.mainType); got != tc.want {
			t.Errorf("DefaultNormalBalance(%s) = %s, want %s", tc.mainType, got, tc.want)
		}
	}

	if err := AccountMainType("Revenue").Validate(); err == nil {
		t.Error("unknown main type should fail validation")
	}
}

func TestParentChainHasCycle(t *testing.T) {
	// 1 <- 2 <- 3, 4 is a root on its own.
	parentOf := map[int]int{1: 0, 2: 1, 3: 2, 4: 0}

	cases := []struct {
		name      string
		accountId int
		parentId  int
		want      bool
	}{
		{"self parent", 1, 1, true},
		{"reparent under direct child", 1, 2, true},
		{"reparent under grandchild", 1, 3, true},
		{"reparent under unrelated root", 1, 4, false},
		{"leaf under existing ancestor", 3, 1, false},
		{"no parent", 3, 0, false},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got := parentChainHasCycle(parentOf, tc.accountId, tc.parentId)
			if got != tc.want {
				t.Fatalf("parentChainHasCycle = %v, want %v", got, tc.want)
			}
		})
	}
}

func TestParentChainHasCycleTerminatesOnLoopedChain(t *testing.T) {
	// 2 and 3 already point at each other; the walk must still end.
	parentOf := map[int]int{2: 3, 3: 2}
	if !parentChainHasCycle(parentOf, 5, 2) {
		t.Fatal("looped parent chain should be reported as a cycle")
	}
}
