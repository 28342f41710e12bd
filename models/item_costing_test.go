package models

import (
	"testing"
	"time"
)

// DB-free tests for the lot replay and costing math. All three methods
// share the same movement log; only the pricing order differs.

func mv(day int, qty, unitCost string) *InventoryTransaction {
	return &InventoryTransaction{
		MovementDate: time.Date(2026, 1, day, 0, 0, 0, 0, time.UTC),
		Qty:          d(qty),
		UnitCost:     d(unitCost),
	}
}

func TestCogsForMovementsByMethod(t *testing.T) {
	// Two receipts: 10 @ 2.00 then 10 @ 3.00.
	movements := []*InventoryTransaction{
		mv(1, "10", "2.00"),
		mv(2, "10", "3.00"),
	}

	cases := []struct {
		name   string
		method CostingMethod
		qty    string
		want   string
	}{
		{"fifo crosses lots", CostingMethodFIFO, "15", "35.00"},
		{"lifo crosses lots", CostingMethodLIFO, "15", "40.00"},
		{"average", CostingMethodAverage, "15", "37.50"},
		{"fifo single lot", CostingMethodFIFO, "5", "10.00"},
		{"lifo single lot", CostingMethodLIFO, "5", "15.00"},
		{"fifo oversell prices what exists", CostingMethodFIFO, "25", "50.00"},
		{"lifo oversell prices what exists", CostingMethodLIFO, "25", "50.00"},
		{"average oversell prices what exists", CostingMethodAverage, "25", "50.00"},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got := cogsForMovements(tc.method, movements, d(tc.qty))
			if !got.Equal(d(tc.want)) {
				t.Fatalf("%s qty %s: cogs = %s, want %s", tc.method, tc.qty, got, tc.want)
			}
		})
	}
}

func TestRemainingLotsDepletionOrder(t *testing.T) {
	// Receive 10 @ 2.00, receive 10 @ 3.00, then sell 5.
	movements := []*InventoryTransaction{
		mv(1, "10", "2.00"),
		mv(2, "10", "3.00"),
		mv(3, "-5", "0"),
	}

	// FIFO consumes the oldest lot first.
	fifo := remainingLots(CostingMethodFIFO, movements)
	if len(fifo) != 2 {
		t.Fatalf("fifo lots = %d, want 2", len(fifo))
	}
	if !fifo[0].Qty.Equal(d("5")) || !fifo[0].UnitCost.Equal(d("2.00")) {
		t.Fatalf("fifo oldest lot = %s @ %s, want 5 @ 2.00", fifo[0].Qty, fifo[0].UnitCost)
	}
	if !fifo[1].Qty.Equal(d("10")) || !fifo[1].UnitCost.Equal(d("3.00")) {
		t.Fatalf("fifo newest lot = %s @ %s, want 10 @ 3.00", fifo[1].Qty, fifo[1].UnitCost)
	}

	// LIFO consumes the newest lot first.
	lifo := remainingLots(CostingMethodLIFO, movements)
	if len(lifo) != 2 {
		t.Fatalf("lifo lots = %d, want 2", len(lifo))
	}
	if !lifo[0].Qty.Equal(d("10")) || !lifo[0].UnitCost.Equal(d("2.00")) {
		t.Fatalf("lifo oldest lot = %s @ %s, want 10 @ 2.00", lifo[0].Qty, lifo[0].UnitCost)
	}
	if !lifo[1].Qty.Equal(d("5")) || !lifo[1].UnitCost.Equal(d("3.00")) {
		t.Fatalf("lifo newest lot = %s @ %s, want 5 @ 3.00", lifo[1].Qty, lifo[1].UnitCost)
	}
}

func TestConsumeLotsStopsAtAvailableStock(t *testing.T) {
	lots := []inventoryLot{
		{Qty: d("10"), UnitCost: d("2.00")},
		{Qty: d("10"), UnitCost: d("3.00")},
	}

	cost, consumed := consumeLots(lots, d("25"))
	if !consumed.Equal(d("20")) {
		t.Fatalf("consumed = %s, want 20", consumed)
	}
	if !cost.Equal(d("50.00")) {
		t.Fatalf("cost = %s, want 50.00", cost)
	}

	cost, consumed = consumeLots(lots, d("12"))
	if !consumed.Equal(d("12")) || !cost.Equal(d("26.00")) {
		t.Fatalf("partial consume: cost = %s consumed = %s, want 26.00 / 12", cost, consumed)
	}
}

func TestAverageUnitCost(t *testing.T) {
	movements := []*InventoryTransaction{
		mv(1, "10", "2.00"),
		mv(2, "10", "3.00"),
		mv(3, "-5", "0"), // consumption rows never move the average
	}

	got := averageUnitCost(movements)
	if !got.Equal(d("2.5")) {
		t.Fatalf("average unit cost = %s, want 2.5", got)
	}

	if !averageUnitCost(nil).IsZero() {
		t.Fatal("average unit cost with no receipts should be zero")
	}

	// Rounds to 4 decimal places.
	uneven := []*InventoryTransaction{
		mv(1, "3", "1.00"),
		mv(2, "4", "2.00"),
	}
	got = averageUnitCost(uneven)
	if !got.Equal(d("1.5714")) {
		t.Fatalf("average unit cost = %s, want 1.5714", got)
	}
}

func TestOnHandQty(t *testing.T) {
	movements := []*InventoryTransaction{
		mv(1, "10", "2.00"),
		mv(2, "-4", "0"),
		mv(3, "7", "3.00"),
	}
	if got := onHandQty(movements); !got.Equal(d("13")) {
		t.Fatalf("on hand = %s, want 13", got)
	}
}

func TestReverseLots(t *testing.T) {
	lots := []inventoryLot{
		{Qty: d("1"), UnitCost: d("1.00")},
		{Qty: d("2"), UnitCost: d("2.00")},
		{Qty: d("3"), UnitCost: d("3.00")},
	}
	got := reverseLots(lots)
	if !got[0].UnitCost.Equal(d("3.00")) || !got[2].UnitCost.Equal(d("1.00")) {
		t.Fatalf("reverseLots order wrong: %v", got)
	}
	// input untouched
	if !lots[0].UnitCost.Equal(d("1.00")) {
		t.Fatal("reverseLots mutated its input")
	}
}

func TestItemTypeTracksStock(t *testing.T) {
	cases := []struct {
		itemType ItemType
		want     bool
	}{
		{ItemTypeInventory, true},
		{ItemTypeNonInventory, false},
		{ItemTypeService, false},
	}
	for _, tc := range cases {
		if err := tc.itemType.Validate(); err != nil {
			t.Errorf("%s should be a valid item type: %v", tc.itemType, err)
		}
		if got := tc.itemType.TracksStock(); got != tc.want {
			t.Errorf("TracksStock(%s) = %v, want %v", tc.itemType, got, tc.want)
		}
	}

	if err := ItemType("bundle").Validate(); err == nil {
		t.Error("unknown item type should fail validation")
	}
}
