package main

import (
	"database/sql"
	"testing"
	"time"
)

func ns(s string) sql.NullString {
	return sql.NullString{String: s, Valid: true}
}

func TestLatestCustomerPerKeyKeepsNewest(t *testing.T) {
	day1 := time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)
	day2 := time.Date(2026, 3, 2, 0, 0, 0, 0, time.UTC)

	raws := []CustomerRaw{
		{SourceRowID: 1, CustomerID: "C1", FirstName: ns("Ann"), CreatedAt: day1},
		{SourceRowID: 2, CustomerID: "C1", FirstName: ns("Anne"), CreatedAt: day2},
		{SourceRowID: 3, CustomerID: "C2", FirstName: ns("Bob"), CreatedAt: day1},
	}

	latest := latestCustomerPerKey(raws)

	if len(latest) != 2 {
		t.Fatalf("Expected 2 deduplicated rows, got %d", len(latest))
	}
	if latest[0].CustomerID != "C1" || latest[0].FirstName.String != "Anne" {
		t.Errorf("Expected C1 to keep the day-2 row, got %+v", latest[0])
	}
	if latest[1].CustomerID != "C2" {
		t.Errorf("Expected C2 second in sorted output, got %s", latest[1].CustomerID)
	}
}

func TestLatestCustomerPerKeyTieBreaksOnRowID(t *testing.T) {
	at := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	raws := []CustomerRaw{
		{SourceRowID: 10, CustomerID: "C1", FirstName: ns("First"), CreatedAt: at},
		{SourceRowID: 11, CustomerID: "C1", FirstName: ns("Second"), CreatedAt: at},
	}

	latest := latestCustomerPerKey(raws)

	if len(latest) != 1 {
		t.Fatalf("Expected 1 row, got %d", len(latest))
	}
	if latest[0].SourceRowID != 11 {
		t.Errorf("Expected the higher source row id to win the tie, got %d", latest[0].SourceRowID)
	}
}

func TestNormalizeCustomerMapsCodes(t *testing.T) {
	raw := CustomerRaw{
		CustomerID:        " C1 ",
		FirstName:         ns("  Ann "),
		LastName:          ns("Lee"),
		MaritalStatusCode: ns("m"),
		GenderCode:        ns("F"),
		CreatedAt:         time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC),
	}

	row := normalizeCustomer(raw)

	if row.CustomerID != "C1" {
		t.Errorf("Expected trimmed customer id, got %q", row.CustomerID)
	}
	if row.FirstName != "Ann" {
		t.Errorf("Expected trimmed first name, got %q", row.FirstName)
	}
	if row.MaritalStatus != "Married" {
		t.Errorf("Expected Married, got %q", row.MaritalStatus)
	}
	if row.Gender != "Female" {
		t.Errorf("Expected Female, got %q", row.Gender)
	}
	if row.Fingerprint == "" {
		t.Error("Expected a fingerprint to be computed")
	}
}

func TestNormalizeCustomerDefaultsUnmappedCodes(t *testing.T) {
	raw := CustomerRaw{
		CustomerID:        "C2",
		MaritalStatusCode: ns("X"),
		GenderCode:        sql.NullString{},
	}

	row := normalizeCustomer(raw)

	if row.MaritalStatus != "n/a" {
		t.Errorf("Expected n/a for unmapped marital status, got %q", row.MaritalStatus)
	}
	if row.Gender != "n/a" {
		t.Errorf("Expected n/a for missing gender, got %q", row.Gender)
	}
	if row.FirstName != "" {
		t.Errorf("Expected empty first name for NULL source, got %q", row.FirstName)
	}
}

func TestNormalizeCustomerFingerprintStable(t *testing.T) {
	raw := CustomerRaw{
		CustomerID:        "C1",
		FirstName:         ns("Ann"),
		LastName:          ns("Lee"),
		MaritalStatusCode: ns("S"),
		GenderCode:        ns("F"),
	}

	first := normalizeCustomer(raw)
	second := normalizeCustomer(raw)

	if first.Fingerprint != second.Fingerprint {
		t.Error("Expected identical input to produce identical fingerprints")
	}

	raw.FirstName = ns("Anne")
	changed := normalizeCustomer(raw)
	if changed.Fingerprint == first.Fingerprint {
		t.Error("Expected a changed attribute to change the fingerprint")
	}
}
