package main

import (
	"context"
	"database/sql"
	"fmt"
	"sort"
	"strings"

	"github.com/lakeshed/silver-transformer/fingerprint"
	"github.com/lakeshed/silver-transformer/watermark"
)

// notApplicable is the sentinel label for unmapped or blank coded values.
// Silver rows never carry NULL for coded enumerations.
const notApplicable = "n/a"

// customersTable is the watermark id for the customer SCD1 target
const customersTable = "silver.customers_current"

// CustomerMerger applies SCD Type 1 merges to the customer current-state
// table: attributes are overwritten in place, no history is kept, and
// unchanged rows (by fingerprint) are left untouched.
type CustomerMerger struct {
	bronze     *BronzeReader
	silverDB   *sql.DB
	watermarks *watermark.Store
	batchSize  int
}

// NewCustomerMerger creates a new customer merger
func NewCustomerMerger(bronze *BronzeReader, silverDB *sql.DB, watermarks *watermark.Store, batchSize int) *CustomerMerger {
	return &CustomerMerger{
		bronze:     bronze,
		silverDB:   silverDB,
		watermarks: watermarks,
		batchSize:  batchSize,
	}
}

// MergeIncremental merges customer rows past the watermark into the
// current-state table. The upserts and the watermark advance commit as
// one transaction; on any failure nothing is visible and the watermark
// stays put.
func (cm *CustomerMerger) MergeIncremental(ctx context.Context) (int64, error) {
	since, err := cm.watermarks.Get(ctx, customersTable)
	if err != nil {
		return 0, err
	}

	raws, err := cm.bronze.ReadCustomersSince(ctx, since, cm.batchSize)
	if err != nil {
		return 0, err
	}

	if len(raws) == 0 {
		return 0, nil
	}

	// Maximum ordering value of the filtered slice, before the buffer
	observedMax := raws[0].CreatedAt
	for _, r := range raws[1:] {
		if r.CreatedAt.After(observedMax) {
			observedMax = r.CreatedAt
		}
	}

	latest := latestCustomerPerKey(raws)

	rows := make([]CustomerRow, 0, len(latest))
	for _, raw := range latest {
		rows = append(rows, normalizeCustomer(raw))
	}

	tx, err := cm.silverDB.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("failed to begin customer merge transaction: %w", err)
	}
	defer tx.Rollback()

	for i := range rows {
		if err := upsertCustomer(ctx, tx, &rows[i]); err != nil {
			return 0, err
		}
	}

	if err := cm.watermarks.AdvanceTx(ctx, tx, customersTable, observedMax); err != nil {
		return 0, err
	}

	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("failed to commit customer merge: %w", err)
	}

	return int64(len(rows)), nil
}

// latestCustomerPerKey deduplicates source rows by business key, keeping
// the row with the latest created_at per customer. Ties break on the
// highest source row id so reruns pick the same winner.
func latestCustomerPerKey(raws []CustomerRaw) []CustomerRaw {
	byKey := make(map[string]CustomerRaw, len(raws))
	for _, r := range raws {
		existing, ok := byKey[r.CustomerID]
		if !ok {
			byKey[r.CustomerID] = r
			continue
		}
		if r.CreatedAt.After(existing.CreatedAt) ||
			(r.CreatedAt.Equal(existing.CreatedAt) && r.SourceRowID > existing.SourceRowID) {
			byKey[r.CustomerID] = r
		}
	}

	result := make([]CustomerRaw, 0, len(byKey))
	for _, r := range byKey {
		result = append(result, r)
	}
	sort.Slice(result, func(i, j int) bool {
		return result[i].CustomerID < result[j].CustomerID
	})

	return result
}

// normalizeCustomer cleans a raw customer row and computes its fingerprint
// over the mutable attribute set
func normalizeCustomer(raw CustomerRaw) CustomerRow {
	row := CustomerRow{
		CustomerID:    strings.TrimSpace(raw.CustomerID),
		FirstName:     trimNullString(raw.FirstName),
		LastName:      trimNullString(raw.LastName),
		MaritalStatus: mapMaritalStatus(raw.MaritalStatusCode),
		Gender:        mapGender(raw.GenderCode),
		CreatedAt:     raw.CreatedAt,
	}

	row.Fingerprint = fingerprint.Compute([]string{
		row.FirstName,
		row.LastName,
		row.MaritalStatus,
		row.Gender,
	})

	return row
}

// mapMaritalStatus maps single-letter marital status codes to labels
func mapMaritalStatus(code sql.NullString) string {
	switch normalizeCode(code) {
	case "M":
		return "Married"
	case "S":
		return "Single"
	default:
		return notApplicable
	}
}

// mapGender maps single-letter gender codes to labels
func mapGender(code sql.NullString) string {
	switch normalizeCode(code) {
	case "M":
		return "Male"
	case "F":
		return "Female"
	default:
		return notApplicable
	}
}

// normalizeCode trims and uppercases a nullable source code
func normalizeCode(code sql.NullString) string {
	if !code.Valid {
		return ""
	}
	return strings.ToUpper(strings.TrimSpace(code.String))
}

// trimNullString coalesces a nullable string to a trimmed value
func trimNullString(s sql.NullString) string {
	if !s.Valid {
		return ""
	}
	return strings.TrimSpace(s.String)
}

// upsertCustomer inserts or overwrites one customer row. The update is
// fingerprint-gated: an unchanged row is a no-op and keeps its changed_at.
func upsertCustomer(ctx context.Context, tx *sql.Tx, row *CustomerRow) error {
	query := `
		INSERT INTO silver.customers_current AS c (
			customer_id, first_name, last_name, marital_status, gender,
			source_created_at, fingerprint, changed_at
		) VALUES (
			$1, $2, $3, $4, $5, $6, $7, NOW()
		)
		ON CONFLICT (customer_id) DO UPDATE SET
			first_name = EXCLUDED.first_name,
			last_name = EXCLUDED.last_name,
			marital_status = EXCLUDED.marital_status,
			gender = EXCLUDED.gender,
			source_created_at = EXCLUDED.source_created_at,
			fingerprint = EXCLUDED.fingerprint,
			changed_at = NOW()
		WHERE c.fingerprint <> EXCLUDED.fingerprint
	`

	_, err := tx.ExecContext(ctx, query,
		row.CustomerID, row.FirstName, row.LastName, row.MaritalStatus,
		row.Gender, row.CreatedAt, row.Fingerprint,
	)

	if err != nil {
		return fmt.Errorf("failed to upsert customer %s: %w", row.CustomerID, err)
	}

	return nil
}
