package main

import (
	"context"
	"database/sql"
	"fmt"
	"log"
	"strings"
)

// QualityCheck defines the interface for all post-load data quality checks.
// Checks run read-only queries outside the mutating transactions; a failing
// check is recorded, never rolled back or retried.
type QualityCheck interface {
	// Name returns the unique identifier for this check
	Name() string

	// Type returns the category of check (consistency, uniqueness, etc.)
	Type() string

	// Table returns the silver table the check observes
	Table() string

	// Run executes the check and returns a result
	Run(ctx context.Context) (QualityCheckResult, error)
}

// QualityCheckResult holds the outcome of a quality check
type QualityCheckResult struct {
	CheckName string
	CheckType string
	TableName string
	Passed    bool
	Expected  string
	Actual    string
	Details   string
}

// RowCountParityCheck verifies that every distinct business key in the
// bronze source landed in the silver current-state table
type RowCountParityCheck struct {
	bronzeDB *sql.DB
	silverDB *sql.DB
}

func (c *RowCountParityCheck) Name() string  { return "row_count_parity" }
func (c *RowCountParityCheck) Type() string  { return "completeness" }
func (c *RowCountParityCheck) Table() string { return customersTable }

func (c *RowCountParityCheck) Run(ctx context.Context) (QualityCheckResult, error) {
	result := newResult(c)

	var sourceKeys int64
	err := c.bronzeDB.QueryRowContext(ctx,
		"SELECT COUNT(DISTINCT customer_id) FROM bronze.customers WHERE customer_id IS NOT NULL",
	).Scan(&sourceKeys)
	if err != nil {
		return result, fmt.Errorf("failed to count bronze customer keys: %w", err)
	}

	var targetRows int64
	err = c.silverDB.QueryRowContext(ctx,
		"SELECT COUNT(*) FROM silver.customers_current",
	).Scan(&targetRows)
	if err != nil {
		return result, fmt.Errorf("failed to count silver customers: %w", err)
	}

	result.Expected = fmt.Sprintf("%d", sourceKeys)
	result.Actual = fmt.Sprintf("%d", targetRows)
	result.Passed = sourceKeys == targetRows

	if result.Passed {
		result.Details = fmt.Sprintf("All %d customer keys are present", sourceKeys)
	} else {
		result.Details = fmt.Sprintf("Source has %d distinct keys, target has %d rows", sourceKeys, targetRows)
	}

	return result, nil
}

// DuplicateCurrentKeyCheck verifies the SCD2 current-version projection
// holds at most one row per business key
type DuplicateCurrentKeyCheck struct {
	silverDB *sql.DB
}

func (c *DuplicateCurrentKeyCheck) Name() string  { return "duplicate_current_key" }
func (c *DuplicateCurrentKeyCheck) Type() string  { return "uniqueness" }
func (c *DuplicateCurrentKeyCheck) Table() string { return productsTable }

func (c *DuplicateCurrentKeyCheck) Run(ctx context.Context) (QualityCheckResult, error) {
	result := newResult(c)

	var duplicates int64
	err := c.silverDB.QueryRowContext(ctx, `
		SELECT COUNT(*) FROM (
			SELECT product_key
			FROM silver.products_history
			WHERE is_current
			GROUP BY product_key
			HAVING COUNT(*) > 1
		) d
	`).Scan(&duplicates)
	if err != nil {
		return result, fmt.Errorf("failed to count duplicate current keys: %w", err)
	}

	result.Expected = "0"
	result.Actual = fmt.Sprintf("%d", duplicates)
	result.Passed = duplicates == 0

	if result.Passed {
		result.Details = "No business key has more than one current version"
	} else {
		result.Details = fmt.Sprintf("Found %d keys with multiple current versions", duplicates)
	}

	return result, nil
}

// AmountConsistencyCheck verifies amount == quantity * |price| for every
// reconciled fact row that carries a price
type AmountConsistencyCheck struct {
	silverDB *sql.DB
}

func (c *AmountConsistencyCheck) Name() string  { return "amount_consistency" }
func (c *AmountConsistencyCheck) Type() string  { return "consistency" }
func (c *AmountConsistencyCheck) Table() string { return salesTable }

func (c *AmountConsistencyCheck) Run(ctx context.Context) (QualityCheckResult, error) {
	result := newResult(c)

	var inconsistent int64
	err := c.silverDB.QueryRowContext(ctx, `
		SELECT COUNT(*)
		FROM silver.sales_facts
		WHERE price IS NOT NULL
		  AND amount <> quantity * ABS(price)
	`).Scan(&inconsistent)
	if err != nil {
		return result, fmt.Errorf("failed to count inconsistent amounts: %w", err)
	}

	result.Expected = "0"
	result.Actual = fmt.Sprintf("%d", inconsistent)
	result.Passed = inconsistent == 0

	if result.Passed {
		result.Details = "All fact amounts reconcile with quantity * |price|"
	} else {
		result.Details = fmt.Sprintf("Found %d facts with inconsistent amounts", inconsistent)
	}

	return result, nil
}

// TotalAmountReconciliationCheck compares the silver monetary total against
// the total recomputed from quantities and prices
type TotalAmountReconciliationCheck struct {
	silverDB *sql.DB
}

func (c *TotalAmountReconciliationCheck) Name() string  { return "total_amount_reconciliation" }
func (c *TotalAmountReconciliationCheck) Type() string  { return "consistency" }
func (c *TotalAmountReconciliationCheck) Table() string { return salesTable }

func (c *TotalAmountReconciliationCheck) Run(ctx context.Context) (QualityCheckResult, error) {
	result := newResult(c)

	var storedTotal, recomputedTotal int64
	err := c.silverDB.QueryRowContext(ctx, `
		SELECT COALESCE(SUM(amount), 0),
		       COALESCE(SUM(quantity * ABS(price)), 0)
		FROM silver.sales_facts
		WHERE price IS NOT NULL
	`).Scan(&storedTotal, &recomputedTotal)
	if err != nil {
		return result, fmt.Errorf("failed to total fact amounts: %w", err)
	}

	result.Expected = fmt.Sprintf("%d", recomputedTotal)
	result.Actual = fmt.Sprintf("%d", storedTotal)
	result.Passed = storedTotal == recomputedTotal

	if result.Passed {
		result.Details = fmt.Sprintf("Monetary total %d reconciles", storedTotal)
	} else {
		result.Details = fmt.Sprintf("Stored total %d differs from recomputed total %d", storedTotal, recomputedTotal)
	}

	return result, nil
}

// OrphanCustomerKeyCheck verifies every fact references a known customer.
// Downstream consumers map orphans to the sentinel "unknown" key; the check
// surfaces them at the source.
type OrphanCustomerKeyCheck struct {
	silverDB *sql.DB
}

func (c *OrphanCustomerKeyCheck) Name() string  { return "orphan_customer_key" }
func (c *OrphanCustomerKeyCheck) Type() string  { return "referential" }
func (c *OrphanCustomerKeyCheck) Table() string { return salesTable }

func (c *OrphanCustomerKeyCheck) Run(ctx context.Context) (QualityCheckResult, error) {
	result := newResult(c)

	var orphans int64
	err := c.silverDB.QueryRowContext(ctx, `
		SELECT COUNT(*)
		FROM silver.sales_facts f
		LEFT JOIN silver.customers_current c ON c.customer_id = f.customer_id
		WHERE c.customer_id IS NULL
	`).Scan(&orphans)
	if err != nil {
		return result, fmt.Errorf("failed to count orphan customer keys: %w", err)
	}

	result.Expected = "0"
	result.Actual = fmt.Sprintf("%d", orphans)
	result.Passed = orphans == 0

	if result.Passed {
		result.Details = "All facts reference known customers"
	} else {
		result.Details = fmt.Sprintf("Found %d facts referencing unknown customers", orphans)
	}

	return result, nil
}

func newResult(c QualityCheck) QualityCheckResult {
	return QualityCheckResult{
		CheckName: c.Name(),
		CheckType: c.Type(),
		TableName: c.Table(),
	}
}

// ==============================================================================
// QUALITY CHECK RUNNER
// ==============================================================================

// QualityChecker runs the post-load check suite and records failures
type QualityChecker struct {
	bronzeDB *sql.DB
	silverDB *sql.DB
}

// NewQualityChecker creates a new quality checker
func NewQualityChecker(bronzeDB, silverDB *sql.DB) *QualityChecker {
	return &QualityChecker{
		bronzeDB: bronzeDB,
		silverDB: silverDB,
	}
}

// RunAll executes every check. A check whose own query fails is logged and
// skipped; checks are observational and never fail the batch.
func (qc *QualityChecker) RunAll(ctx context.Context) []QualityCheckResult {
	checks := []QualityCheck{
		&RowCountParityCheck{bronzeDB: qc.bronzeDB, silverDB: qc.silverDB},
		&DuplicateCurrentKeyCheck{silverDB: qc.silverDB},
		&AmountConsistencyCheck{silverDB: qc.silverDB},
		&TotalAmountReconciliationCheck{silverDB: qc.silverDB},
		&OrphanCustomerKeyCheck{silverDB: qc.silverDB},
	}

	results := make([]QualityCheckResult, 0, len(checks))
	for _, check := range checks {
		result, err := check.Run(ctx)
		if err != nil {
			log.Printf("⚠️  Quality check %s errored: %v", check.Name(), err)
			continue
		}
		results = append(results, result)
	}

	return results
}

// RecordIssues writes one quality issue per failing check in a single
// batched insert
func (qc *QualityChecker) RecordIssues(ctx context.Context, batchID string, results []QualityCheckResult) error {
	issues := issuesFromResults(batchID, results)
	if len(issues) == 0 {
		return nil
	}

	insertSQL := `
		INSERT INTO etl.quality_issues (
			batch_id, table_name, check_name, expected_value,
			actual_value, description, layer
		) VALUES `

	placeholders := make([]string, len(issues))
	args := make([]any, 0, len(issues)*7)

	for i, issue := range issues {
		base := i * 7
		placeholders[i] = fmt.Sprintf("($%d, $%d, $%d, $%d, $%d, $%d, $%d)",
			base+1, base+2, base+3, base+4, base+5, base+6, base+7)
		args = append(args,
			issue.BatchID, issue.TableName, issue.CheckName, issue.Expected,
			issue.Actual, issue.Description, issue.Layer,
		)
	}

	insertSQL += strings.Join(placeholders, ",")
	if _, err := qc.silverDB.ExecContext(ctx, insertSQL, args...); err != nil {
		return fmt.Errorf("failed to record %d quality issues: %w", len(issues), err)
	}

	return nil
}

// issuesFromResults converts failing check results into issue rows
func issuesFromResults(batchID string, results []QualityCheckResult) []QualityIssue {
	var issues []QualityIssue
	for _, r := range results {
		if r.Passed {
			continue
		}
		issues = append(issues, QualityIssue{
			BatchID:     batchID,
			TableName:   r.TableName,
			CheckName:   r.CheckName,
			Expected:    r.Expected,
			Actual:      r.Actual,
			Description: r.Details,
			Layer:       LayerSilver,
		})
	}
	return issues
}
