package main

import (
	"database/sql"
	"testing"
	"time"
)

func ni(v int64) sql.NullInt64 {
	return sql.NullInt64{Int64: v, Valid: true}
}

func TestParseRawDate(t *testing.T) {
	tests := []struct {
		raw   int64
		valid bool
	}{
		{20260115, true},
		{19000101, true},
		{0, false},
		{-1, false},
		{20261301, false}, // month 13
		{20260230, false}, // February 30th
		{20260100, false}, // day 0
		{99991231, true},
		{123, false},
	}

	for _, tt := range tests {
		got := parseRawDate(tt.raw)
		if (got != nil) != tt.valid {
			t.Errorf("parseRawDate(%d) valid = %v, expected %v", tt.raw, got != nil, tt.valid)
		}
	}
}

func TestParseRawDateRoundTrips(t *testing.T) {
	got := parseRawDate(20260115)
	if got == nil {
		t.Fatal("Expected a valid date")
	}

	want := time.Date(2026, 1, 15, 0, 0, 0, 0, time.UTC)
	if !got.Equal(want) {
		t.Errorf("Expected %v, got %v", want, got)
	}
	if rawDateFromTime(*got) != 20260115 {
		t.Errorf("Expected round-trip back to 20260115, got %d", rawDateFromTime(*got))
	}
}

func TestReconcileSaleRecomputesZeroAmount(t *testing.T) {
	raw := SaleRaw{
		OrderNumber:  "SO1",
		ProductKey:   "BI-RB-1",
		OrderDateRaw: 20260115,
		Amount:       ni(0),
		Quantity:     ni(3),
		Price:        ni(10),
	}

	row := reconcileSale(raw)

	if row.Amount != 30 {
		t.Errorf("Expected amount recomputed to 30, got %d", row.Amount)
	}
	if row.Price == nil || *row.Price != 10 {
		t.Errorf("Expected price kept at 10, got %v", row.Price)
	}
}

func TestReconcileSaleRecomputesInconsistentAmount(t *testing.T) {
	raw := SaleRaw{
		Amount:   ni(25),
		Quantity: ni(3),
		Price:    ni(-10), // negative price is taken by absolute value
	}

	row := reconcileSale(raw)

	if row.Amount != 30 {
		t.Errorf("Expected amount recomputed to 30 from quantity * |price|, got %d", row.Amount)
	}
}

func TestReconcileSaleKeepsValidAmountWithoutPrice(t *testing.T) {
	raw := SaleRaw{
		Amount:   ni(50),
		Quantity: ni(5),
		Price:    sql.NullInt64{},
	}

	row := reconcileSale(raw)

	if row.Amount != 50 {
		t.Errorf("Expected stored amount kept when price is NULL, got %d", row.Amount)
	}
	if row.Price == nil || *row.Price != 10 {
		t.Errorf("Expected price derived as amount / quantity = 10, got %v", row.Price)
	}
}

func TestReconcileSaleNilPriceWhenDivisionInexact(t *testing.T) {
	raw := SaleRaw{
		Amount:   ni(50),
		Quantity: ni(3),
		Price:    sql.NullInt64{},
	}

	row := reconcileSale(raw)

	if row.Price != nil {
		t.Errorf("Expected NULL price when the quantity does not divide the amount, got %d", *row.Price)
	}
	if row.Amount != 50 {
		t.Errorf("Expected stored amount kept, got %d", row.Amount)
	}
}

func TestReconcileSaleNilPriceWhenQuantityZero(t *testing.T) {
	raw := SaleRaw{
		Amount:   ni(50),
		Quantity: ni(0),
		Price:    sql.NullInt64{},
	}

	row := reconcileSale(raw)

	if row.Price != nil {
		t.Errorf("Expected NULL price when quantity is zero, got %v", *row.Price)
	}
	if row.Amount != 50 {
		t.Errorf("Expected stored amount kept, got %d", row.Amount)
	}
}

func TestReconcileSaleInvalidDatesAreNil(t *testing.T) {
	raw := SaleRaw{
		OrderDateRaw: 20260115,
		ShipDateRaw:  0,
		DueDateRaw:   20261399,
		Amount:       ni(10),
		Quantity:     ni(1),
		Price:        ni(10),
	}

	row := reconcileSale(raw)

	if row.OrderDate == nil {
		t.Error("Expected a valid order date")
	}
	if row.ShipDate != nil {
		t.Error("Expected zero ship date to be NULL")
	}
	if row.DueDate != nil {
		t.Error("Expected malformed due date to be NULL")
	}
}

func TestRawDateFromTimeUsesUTC(t *testing.T) {
	zone := time.FixedZone("UTC+10", 10*3600)
	local := time.Date(2026, 1, 16, 5, 0, 0, 0, zone) // 2026-01-15 19:00 UTC

	if got := rawDateFromTime(local); got != 20260115 {
		t.Errorf("Expected the UTC calendar day 20260115, got %d", got)
	}
}
