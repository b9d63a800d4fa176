package main

import (
	"database/sql"
	"testing"
	"time"
)

func TestSplitProductKey(t *testing.T) {
	tests := []struct {
		key      string
		category string
		number   string
	}{
		{"BI-RB-1234", "BI_RB", "1234"},
		{"BI-RB-12-34", "BI_RB", "12-34"},
		{"BI-1234", "n/a", "BI-1234"},
		{"1234", "n/a", "1234"},
		{"", "n/a", ""},
	}

	for _, tt := range tests {
		category, number := splitProductKey(tt.key)
		if category != tt.category || number != tt.number {
			t.Errorf("splitProductKey(%q) = (%q, %q), expected (%q, %q)",
				tt.key, category, number, tt.category, tt.number)
		}
	}
}

func TestMapProductLine(t *testing.T) {
	tests := []struct {
		code sql.NullString
		want string
	}{
		{ns("M"), "Mountain"},
		{ns("r"), "Road"},
		{ns(" S "), "Other Sales"},
		{ns("T"), "Touring"},
		{ns("Z"), "n/a"},
		{sql.NullString{}, "n/a"},
	}

	for _, tt := range tests {
		if got := mapProductLine(tt.code); got != tt.want {
			t.Errorf("mapProductLine(%v) = %q, expected %q", tt.code, got, tt.want)
		}
	}
}

func TestLatestProductPerKeyKeepsLatestStart(t *testing.T) {
	early := sql.NullTime{Time: time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC), Valid: true}
	late := sql.NullTime{Time: time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC), Valid: true}

	raws := []ProductRaw{
		{SourceRowID: 1, ProductKey: "BI-RB-1", Cost: sql.NullInt64{Int64: 10, Valid: true}, StartDate: early},
		{SourceRowID: 2, ProductKey: "BI-RB-1", Cost: sql.NullInt64{Int64: 15, Valid: true}, StartDate: late},
		{SourceRowID: 3, ProductKey: "BI-RB-2", StartDate: sql.NullTime{}},
	}

	latest := latestProductPerKey(raws)

	if len(latest) != 2 {
		t.Fatalf("Expected 2 deduplicated rows, got %d", len(latest))
	}
	if latest[0].Cost.Int64 != 15 {
		t.Errorf("Expected the later start date to win, got cost %d", latest[0].Cost.Int64)
	}
}

func TestPlanVersionsChangedKeyExpiresAndInserts(t *testing.T) {
	v10 := normalizeProduct(ProductRaw{
		ProductKey: "BI-RB-1",
		Cost:       sql.NullInt64{Int64: 10, Valid: true},
		LineCode:   ns("R"),
	})
	v15 := normalizeProduct(ProductRaw{
		ProductKey: "BI-RB-1",
		Cost:       sql.NullInt64{Int64: 15, Valid: true},
		LineCode:   ns("R"),
	})

	current := map[string]string{"BI-RB-1": v10.Fingerprint}

	plan := planVersions([]ProductRow{v15}, current)

	if len(plan.expireKeys) != 1 || plan.expireKeys[0] != "BI-RB-1" {
		t.Errorf("Expected the changed key to be expired, got %v", plan.expireKeys)
	}
	if len(plan.inserts) != 1 || plan.inserts[0].Cost != 15 {
		t.Errorf("Expected one insert carrying the new cost, got %+v", plan.inserts)
	}
}

func TestPlanVersionsUnchangedKeyUntouched(t *testing.T) {
	row := normalizeProduct(ProductRaw{
		ProductKey: "BI-RB-1",
		Cost:       sql.NullInt64{Int64: 10, Valid: true},
		LineCode:   ns("R"),
	})

	current := map[string]string{"BI-RB-1": row.Fingerprint}

	plan := planVersions([]ProductRow{row}, current)

	if len(plan.expireKeys) != 0 || len(plan.inserts) != 0 {
		t.Errorf("Expected an unchanged key to produce no work, got %+v", plan)
	}
}

func TestPlanVersionsNewKeyInsertsOnly(t *testing.T) {
	row := normalizeProduct(ProductRaw{
		ProductKey: "BI-RB-9",
		Cost:       sql.NullInt64{Int64: 42, Valid: true},
		LineCode:   ns("M"),
	})

	plan := planVersions([]ProductRow{row}, map[string]string{})

	if len(plan.expireKeys) != 0 {
		t.Errorf("Expected no expiries for an unseen key, got %v", plan.expireKeys)
	}
	if len(plan.inserts) != 1 {
		t.Fatalf("Expected one insert, got %d", len(plan.inserts))
	}
	if plan.inserts[0].Line != "Mountain" {
		t.Errorf("Expected mapped line Mountain, got %q", plan.inserts[0].Line)
	}
}

func TestNormalizeProductNullCostIsZero(t *testing.T) {
	row := normalizeProduct(ProductRaw{ProductKey: "BI-RB-1"})

	if row.Cost != 0 {
		t.Errorf("Expected NULL cost to normalize to 0, got %d", row.Cost)
	}
	if row.CategoryID != "BI_RB" || row.ProductNumber != "1" {
		t.Errorf("Expected key split (BI_RB, 1), got (%q, %q)", row.CategoryID, row.ProductNumber)
	}
}
