package main

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/lib/pq"

	"github.com/lakeshed/silver-transformer/fingerprint"
)

// ErrInvariantViolation signals a business key holding more than one
// current version after an SCD2 merge. The expire-before-insert ordering
// makes this unreachable; if it fires anyway the batch must fail loudly.
var ErrInvariantViolation = errors.New("scd2: multiple current versions for business key")

// productsTable is the audit name for the product SCD2 target
const productsTable = "silver.products_history"

// ProductVersioner applies SCD Type 2 versioning to the product history
// table: superseded versions are expired and closed, new versions are
// appended, and exactly one version per business key stays current.
type ProductVersioner struct {
	bronze   *BronzeReader
	silverDB *sql.DB
}

// NewProductVersioner creates a new product versioner
func NewProductVersioner(bronze *BronzeReader, silverDB *sql.DB) *ProductVersioner {
	return &ProductVersioner{
		bronze:   bronze,
		silverDB: silverDB,
	}
}

// versionPlan is the immutable outcome of comparing source fingerprints
// against the current-version projection
type versionPlan struct {
	expireKeys []string
	inserts    []ProductRow
}

// MergeVersioned re-scans the product source and reconciles the history
// chain. Expiry fully completes before inserts are applied, inside one
// transaction, so the insert eligibility test ("no current version")
// observes the expiries of this same run.
func (pv *ProductVersioner) MergeVersioned(ctx context.Context) (int64, error) {
	raws, err := pv.bronze.ReadAllProducts(ctx)
	if err != nil {
		return 0, err
	}

	if len(raws) == 0 {
		return 0, nil
	}

	latest := latestProductPerKey(raws)

	rows := make([]ProductRow, 0, len(latest))
	for _, raw := range latest {
		rows = append(rows, normalizeProduct(raw))
	}

	current, err := pv.currentFingerprints(ctx)
	if err != nil {
		return 0, err
	}

	plan := planVersions(rows, current)
	if len(plan.expireKeys) == 0 && len(plan.inserts) == 0 {
		return 0, nil
	}

	now := time.Now().UTC()

	tx, err := pv.silverDB.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("failed to begin product merge transaction: %w", err)
	}
	defer tx.Rollback()

	if err := expireVersions(ctx, tx, plan.expireKeys, now); err != nil {
		return 0, err
	}

	for i := range plan.inserts {
		if err := insertVersion(ctx, tx, &plan.inserts[i], now); err != nil {
			return 0, err
		}
	}

	if err := checkSingleCurrentVersion(ctx, tx); err != nil {
		return 0, err
	}

	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("failed to commit product merge: %w", err)
	}

	return int64(len(plan.inserts)), nil
}

// currentFingerprints reads the fingerprint of the active version per key
func (pv *ProductVersioner) currentFingerprints(ctx context.Context) (map[string]string, error) {
	query := `
		SELECT product_key, fingerprint
		FROM silver.products_history
		WHERE is_current
	`

	rows, err := pv.silverDB.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to read current product versions: %w", err)
	}
	defer rows.Close()

	current := make(map[string]string)
	for rows.Next() {
		var key, fp string
		if err := rows.Scan(&key, &fp); err != nil {
			return nil, fmt.Errorf("failed to scan current version row: %w", err)
		}
		current[key] = fp
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate current version rows: %w", err)
	}

	return current, nil
}

// latestProductPerKey deduplicates source rows by product key, keeping the
// row with the latest start date per key (tie-break: highest source row id)
func latestProductPerKey(raws []ProductRaw) []ProductRaw {
	byKey := make(map[string]ProductRaw, len(raws))
	for _, r := range raws {
		existing, ok := byKey[r.ProductKey]
		if !ok {
			byKey[r.ProductKey] = r
			continue
		}
		if productStart(r).After(productStart(existing)) ||
			(productStart(r).Equal(productStart(existing)) && r.SourceRowID > existing.SourceRowID) {
			byKey[r.ProductKey] = r
		}
	}

	result := make([]ProductRaw, 0, len(byKey))
	for _, r := range byKey {
		result = append(result, r)
	}
	sort.Slice(result, func(i, j int) bool {
		return result[i].ProductKey < result[j].ProductKey
	})

	return result
}

func productStart(r ProductRaw) time.Time {
	if r.StartDate.Valid {
		return r.StartDate.Time
	}
	return time.Time{}
}

// normalizeProduct cleans a raw product row, derives the category and
// product number from the structured key encoding, and computes the
// fingerprint over the versioned attribute set
func normalizeProduct(raw ProductRaw) ProductRow {
	key := strings.TrimSpace(raw.ProductKey)
	category, number := splitProductKey(key)

	row := ProductRow{
		ProductKey:    key,
		CategoryID:    category,
		ProductNumber: number,
		ProductName:   trimNullString(raw.ProductName),
		Cost:          raw.Cost.Int64, // zero when NULL
		Line:          mapProductLine(raw.LineCode),
	}

	row.Fingerprint = fingerprint.Compute([]string{
		row.ProductName,
		fingerprint.Int(row.Cost),
		row.Line,
	})

	return row
}

// splitProductKey decomposes a composite product key. The first two
// dash-separated segments form the category id (underscored); the rest is
// the product number. Keys with fewer than three segments keep the whole
// key as the product number.
func splitProductKey(key string) (category, number string) {
	parts := strings.Split(key, "-")
	if len(parts) < 3 {
		return notApplicable, key
	}
	return parts[0] + "_" + parts[1], strings.Join(parts[2:], "-")
}

// mapProductLine maps single-letter product line codes to labels
func mapProductLine(code sql.NullString) string {
	switch normalizeCode(code) {
	case "M":
		return "Mountain"
	case "R":
		return "Road"
	case "S":
		return "Other Sales"
	case "T":
		return "Touring"
	default:
		return notApplicable
	}
}

// planVersions compares source fingerprints against the current-version
// projection. Keys with a differing current version are expired and
// re-inserted; unseen keys are inserted; matching keys are untouched.
func planVersions(source []ProductRow, current map[string]string) versionPlan {
	var plan versionPlan
	for _, row := range source {
		fp, ok := current[row.ProductKey]
		if !ok {
			plan.inserts = append(plan.inserts, row)
			continue
		}
		if fp != row.Fingerprint {
			plan.expireKeys = append(plan.expireKeys, row.ProductKey)
			plan.inserts = append(plan.inserts, row)
		}
	}
	return plan
}

// expireVersions closes the active version of each key: effective_to is
// stamped with the run time, which becomes the successor's effective_from
func expireVersions(ctx context.Context, tx *sql.Tx, keys []string, now time.Time) error {
	if len(keys) == 0 {
		return nil
	}

	query := `
		UPDATE silver.products_history
		SET effective_to = $1,
		    is_current = FALSE
		WHERE product_key = ANY($2)
		  AND is_current
	`

	if _, err := tx.ExecContext(ctx, query, now, pq.Array(keys)); err != nil {
		return fmt.Errorf("failed to expire product versions: %w", err)
	}

	return nil
}

// insertVersion appends a new current version for a business key
func insertVersion(ctx context.Context, tx *sql.Tx, row *ProductRow, now time.Time) error {
	query := `
		INSERT INTO silver.products_history (
			product_key, category_id, product_number, product_name,
			cost, line, fingerprint, effective_from, effective_to, is_current
		) VALUES (
			$1, $2, $3, $4, $5, $6, $7, $8, NULL, TRUE
		)
	`

	_, err := tx.ExecContext(ctx, query,
		row.ProductKey, row.CategoryID, row.ProductNumber, row.ProductName,
		row.Cost, row.Line, row.Fingerprint, now,
	)

	if err != nil {
		return fmt.Errorf("failed to insert product version %s: %w", row.ProductKey, err)
	}

	return nil
}

// checkSingleCurrentVersion verifies no key ended the merge with more than
// one current row. Runs inside the merge transaction so a violation rolls
// everything back.
func checkSingleCurrentVersion(ctx context.Context, tx *sql.Tx) error {
	query := `
		SELECT product_key
		FROM silver.products_history
		WHERE is_current
		GROUP BY product_key
		HAVING COUNT(*) > 1
		LIMIT 1
	`

	var key string
	err := tx.QueryRowContext(ctx, query).Scan(&key)
	if err == sql.ErrNoRows {
		return nil
	}
	if err != nil {
		return fmt.Errorf("failed to verify current-version invariant: %w", err)
	}

	return fmt.Errorf("%w: %s", ErrInvariantViolation, key)
}
