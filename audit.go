package main

import (
	"context"
	"database/sql"
	"log"
	"time"
)

// AuditLogger appends load outcomes to etl.load_audit. Writes happen on
// their own connection, outside any mutating transaction: a failed load's
// audit entry must survive the load's rollback.
type AuditLogger struct {
	db *sql.DB
}

// NewAuditLogger creates a new audit logger
func NewAuditLogger(db *sql.DB) *AuditLogger {
	return &AuditLogger{db: db}
}

// LogAttempt records one attempted table load. Audit writes are
// best-effort: a sink failure is reported on the service log rather than
// failing the batch a second time.
func (al *AuditLogger) LogAttempt(ctx context.Context, entry AuditEntry) {
	query := `
		INSERT INTO etl.load_audit (
			batch_id, table_name, start_time, end_time,
			row_count, status, error_message
		) VALUES (
			$1, $2, $3, $4, $5, $6, $7
		)
	`

	_, err := al.db.ExecContext(ctx, query,
		entry.BatchID, entry.TableName, entry.StartTime, entry.EndTime,
		entry.RowCount, entry.Status, entry.ErrorMessage,
	)

	if err != nil {
		log.Printf("[audit] Warning: failed to record audit entry for %s: %v", entry.TableName, err)
	}
}

// successEntry builds a successful audit entry
func successEntry(batchID, table string, start, end time.Time, rowCount int64) AuditEntry {
	return AuditEntry{
		BatchID:   batchID,
		TableName: table,
		StartTime: start,
		EndTime:   end,
		RowCount:  rowCount,
		Status:    StatusSuccess,
	}
}

// failedEntry builds a failed audit entry with a human-readable message
func failedEntry(batchID, table string, start, end time.Time, loadErr error) AuditEntry {
	msg := loadErr.Error()
	return AuditEntry{
		BatchID:      batchID,
		TableName:    table,
		StartTime:    start,
		EndTime:      end,
		Status:       StatusFailed,
		ErrorMessage: &msg,
	}
}
