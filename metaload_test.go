package main

import (
	"context"
	"database/sql"
	"testing"
)

type captureAuditor struct {
	entries []AuditEntry
}

func (c *captureAuditor) LogAttempt(_ context.Context, entry AuditEntry) {
	c.entries = append(c.entries, entry)
}

func TestRunConfiguredLoadsAuditsConfigReadFailure(t *testing.T) {
	// Unreachable host: the config read fails before any entry runs
	db, err := sql.Open("postgres", "host=127.0.0.1 port=1 user=u dbname=d sslmode=disable connect_timeout=1")
	if err != nil {
		t.Fatalf("Failed to open stub connection: %v", err)
	}
	defer db.Close()

	sink := &captureAuditor{}
	loader := NewGenericLoader(db, db, sink)

	_, _, err = loader.RunConfiguredLoads(context.Background(), "batch-1")
	if err == nil {
		t.Fatal("Expected the config read to fail")
	}

	if len(sink.entries) != 1 {
		t.Fatalf("Expected 1 audit entry for the failed pass, got %d", len(sink.entries))
	}

	entry := sink.entries[0]
	if entry.TableName != "configured_loads" {
		t.Errorf("Expected pass-level table name, got %q", entry.TableName)
	}
	if entry.Status != StatusFailed {
		t.Errorf("Expected Failed status, got %q", entry.Status)
	}
	if entry.ErrorMessage == nil || *entry.ErrorMessage == "" {
		t.Error("Expected the audit entry to carry the error message")
	}
	if entry.BatchID != "batch-1" {
		t.Errorf("Expected the batch id to be recorded, got %q", entry.BatchID)
	}
}

func TestIntersectColumnsPreservesSourceOrder(t *testing.T) {
	src := []string{"id", "customer_id", "country", "loaded_at"}
	dst := []string{"country", "customer_id"}

	cols := intersectColumns(src, dst)

	if len(cols) != 2 {
		t.Fatalf("Expected 2 overlapping columns, got %d", len(cols))
	}
	if cols[0] != "customer_id" || cols[1] != "country" {
		t.Errorf("Expected source order [customer_id country], got %v", cols)
	}
}

func TestIntersectColumnsEmpty(t *testing.T) {
	cols := intersectColumns([]string{"a", "b"}, []string{"c", "d"})
	if len(cols) != 0 {
		t.Errorf("Expected no overlap, got %v", cols)
	}
}

func TestBuildSelectSQL(t *testing.T) {
	got := buildSelectSQL("bronze.customer_locations_ext", []string{"customer_id", "country"})
	want := `SELECT "customer_id", "country" FROM "bronze"."customer_locations_ext"`

	if got != want {
		t.Errorf("buildSelectSQL = %q, expected %q", got, want)
	}
}

func TestBuildInsertSQL(t *testing.T) {
	got := buildInsertSQL("silver.customer_locations", []string{"customer_id", "country"})
	want := `INSERT INTO "silver"."customer_locations" ("customer_id", "country") VALUES ($1, $2)`

	if got != want {
		t.Errorf("buildInsertSQL = %q, expected %q", got, want)
	}
}

func TestQuoteIdentEscapesQuotes(t *testing.T) {
	if got := quoteIdent(`we"ird`); got != `"we""ird"` {
		t.Errorf("quoteIdent = %q", got)
	}
}

func TestSplitQualifiedDefaultsToPublic(t *testing.T) {
	schema, name := splitQualified("customers")
	if schema != "public" || name != "customers" {
		t.Errorf("Expected (public, customers), got (%q, %q)", schema, name)
	}

	schema, name = splitQualified("silver.customers_current")
	if schema != "silver" || name != "customers_current" {
		t.Errorf("Expected (silver, customers_current), got (%q, %q)", schema, name)
	}
}
