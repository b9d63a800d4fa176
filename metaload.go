package main

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log"
	"strings"
	"time"
)

// ErrNoColumnOverlap signals a config entry whose source and target
// schemas share no column names. The entry fails; the run continues.
var ErrNoColumnOverlap = errors.New("metaload: no overlapping columns between source and target")

// configuredLoadsAuditName tags audit entries for failures of the
// configured-load pass itself, as opposed to a single entry
const configuredLoadsAuditName = "configured_loads"

// loadAuditor records load outcomes; satisfied by AuditLogger
type loadAuditor interface {
	LogAttempt(ctx context.Context, entry AuditEntry)
}

// GenericLoader executes full reloads declared in etl.load_config instead
// of hardcoded per-entity logic. Each entry runs in its own transaction:
// these are heterogeneous, independently-owned tables, and one table's
// schema drift must not block the others.
type GenericLoader struct {
	bronzeDB *sql.DB
	silverDB *sql.DB
	audit    loadAuditor
}

// NewGenericLoader creates a new metadata-driven loader
func NewGenericLoader(bronzeDB, silverDB *sql.DB, audit loadAuditor) *GenericLoader {
	return &GenericLoader{
		bronzeDB: bronzeDB,
		silverDB: silverDB,
		audit:    audit,
	}
}

// ReadConfig returns the active FULL-load entries in priority order
func (gl *GenericLoader) ReadConfig(ctx context.Context) ([]LoadConfigEntry, error) {
	query := `
		SELECT id, source_table, target_table, load_kind, active, priority
		FROM etl.load_config
		WHERE active
		  AND load_kind = $1
		ORDER BY priority, id
	`

	rows, err := gl.silverDB.QueryContext(ctx, query, LoadKindFull)
	if err != nil {
		return nil, fmt.Errorf("failed to read load config: %w", err)
	}
	defer rows.Close()

	var entries []LoadConfigEntry
	for rows.Next() {
		var e LoadConfigEntry
		if err := rows.Scan(&e.ID, &e.SourceTable, &e.TargetTable, &e.LoadKind, &e.Active, &e.Priority); err != nil {
			return nil, fmt.Errorf("failed to scan load config entry: %w", err)
		}
		entries = append(entries, e)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate load config: %w", err)
	}

	return entries, nil
}

// RunConfiguredLoads processes every active FULL entry. A failing entry is
// rolled back and audited, then processing moves on to the next entry.
// A failure to read the config itself is audited under the pass-level name
// before it propagates. Returns the number of succeeded and failed entries.
func (gl *GenericLoader) RunConfiguredLoads(ctx context.Context, batchID string) (int, int, error) {
	readStart := time.Now().UTC()
	entries, err := gl.ReadConfig(ctx)
	if err != nil {
		gl.audit.LogAttempt(ctx, failedEntry(batchID, configuredLoadsAuditName, readStart, time.Now().UTC(), err))
		return 0, 0, err
	}

	succeeded := 0
	failed := 0

	for _, entry := range entries {
		// Stop before starting a new entry, never mid-transaction
		if err := ctx.Err(); err != nil {
			return succeeded, failed, fmt.Errorf("configured loads canceled: %w", err)
		}

		startTime := time.Now().UTC()
		rowCount, loadErr := gl.runEntry(ctx, entry)
		endTime := time.Now().UTC()

		if loadErr != nil {
			failed++
			log.Printf("❌ Configured load %s → %s failed: %v", entry.SourceTable, entry.TargetTable, loadErr)
			gl.audit.LogAttempt(ctx, failedEntry(batchID, entry.TargetTable, startTime, endTime, loadErr))
			continue
		}

		succeeded++
		log.Printf("  ✅ %s → %s (%d rows)", entry.SourceTable, entry.TargetTable, rowCount)
		gl.audit.LogAttempt(ctx, successEntry(batchID, entry.TargetTable, startTime, endTime, rowCount))
	}

	return succeeded, failed, nil
}

// runEntry reloads one target from its source inside an isolated
// transaction: resolve the column intersection, clear the target, insert
// the projected source rows
func (gl *GenericLoader) runEntry(ctx context.Context, entry LoadConfigEntry) (int64, error) {
	srcCols, err := tableColumns(ctx, gl.bronzeDB, entry.SourceTable)
	if err != nil {
		return 0, err
	}

	dstCols, err := tableColumns(ctx, gl.silverDB, entry.TargetTable)
	if err != nil {
		return 0, err
	}

	cols := intersectColumns(srcCols, dstCols)
	if len(cols) == 0 {
		return 0, fmt.Errorf("%w: %s → %s", ErrNoColumnOverlap, entry.SourceTable, entry.TargetTable)
	}

	values, err := gl.readSourceRows(ctx, entry.SourceTable, cols)
	if err != nil {
		return 0, err
	}

	tx, err := gl.silverDB.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("failed to begin load transaction for %s: %w", entry.TargetTable, err)
	}
	defer tx.Rollback()

	clearSQL := fmt.Sprintf("DELETE FROM %s", quoteQualified(entry.TargetTable))
	if _, err := tx.ExecContext(ctx, clearSQL); err != nil {
		return 0, fmt.Errorf("failed to clear %s: %w", entry.TargetTable, err)
	}

	insertSQL := buildInsertSQL(entry.TargetTable, cols)
	for _, row := range values {
		if _, err := tx.ExecContext(ctx, insertSQL, row...); err != nil {
			return 0, fmt.Errorf("failed to insert into %s: %w", entry.TargetTable, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("failed to commit load for %s: %w", entry.TargetTable, err)
	}

	return int64(len(values)), nil
}

// readSourceRows materializes the projected source columns
func (gl *GenericLoader) readSourceRows(ctx context.Context, table string, cols []string) ([][]any, error) {
	query := buildSelectSQL(table, cols)

	rows, err := gl.bronzeDB.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to read source %s: %w", table, err)
	}
	defer rows.Close()

	var values [][]any
	for rows.Next() {
		row := make([]any, len(cols))
		ptrs := make([]any, len(cols))
		for i := range row {
			ptrs[i] = &row[i]
		}
		if err := rows.Scan(ptrs...); err != nil {
			return nil, fmt.Errorf("failed to scan source row from %s: %w", table, err)
		}
		values = append(values, row)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate source %s: %w", table, err)
	}

	return values, nil
}

// tableColumns lists a table's columns in ordinal order
func tableColumns(ctx context.Context, db *sql.DB, qualified string) ([]string, error) {
	schema, name := splitQualified(qualified)

	query := `
		SELECT column_name
		FROM information_schema.columns
		WHERE table_schema = $1
		  AND table_name = $2
		ORDER BY ordinal_position
	`

	rows, err := db.QueryContext(ctx, query, schema, name)
	if err != nil {
		return nil, fmt.Errorf("failed to list columns of %s: %w", qualified, err)
	}
	defer rows.Close()

	var cols []string
	for rows.Next() {
		var col string
		if err := rows.Scan(&col); err != nil {
			return nil, fmt.Errorf("failed to scan column name: %w", err)
		}
		cols = append(cols, col)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate columns of %s: %w", qualified, err)
	}

	return cols, nil
}

// intersectColumns returns the source columns also present in the target,
// preserving source order
func intersectColumns(src, dst []string) []string {
	inDst := make(map[string]bool, len(dst))
	for _, c := range dst {
		inDst[c] = true
	}

	var cols []string
	for _, c := range src {
		if inDst[c] {
			cols = append(cols, c)
		}
	}

	return cols
}

// buildSelectSQL builds the projected select for a resolved column list.
// Identifiers come from the operator-controlled config and the database's
// own catalog, and are still quoted.
func buildSelectSQL(table string, cols []string) string {
	quoted := make([]string, len(cols))
	for i, c := range cols {
		quoted[i] = quoteIdent(c)
	}
	return fmt.Sprintf("SELECT %s FROM %s", strings.Join(quoted, ", "), quoteQualified(table))
}

// buildInsertSQL builds the parameterized insert for a resolved column list
func buildInsertSQL(table string, cols []string) string {
	quoted := make([]string, len(cols))
	placeholders := make([]string, len(cols))
	for i, c := range cols {
		quoted[i] = quoteIdent(c)
		placeholders[i] = fmt.Sprintf("$%d", i+1)
	}
	return fmt.Sprintf(
		"INSERT INTO %s (%s) VALUES (%s)",
		quoteQualified(table),
		strings.Join(quoted, ", "),
		strings.Join(placeholders, ", "),
	)
}

// quoteIdent double-quotes an identifier
func quoteIdent(s string) string {
	return `"` + strings.ReplaceAll(s, `"`, `""`) + `"`
}

// quoteQualified quotes a possibly schema-qualified table name
func quoteQualified(qualified string) string {
	schema, name := splitQualified(qualified)
	return quoteIdent(schema) + "." + quoteIdent(name)
}

// splitQualified splits "schema.table" into its parts. Unqualified names
// resolve to the public schema.
func splitQualified(qualified string) (schema, name string) {
	parts := strings.SplitN(qualified, ".", 2)
	if len(parts) == 1 {
		return "public", parts[0]
	}
	return parts[0], parts[1]
}
