package main

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/lakeshed/silver-transformer/watermark"
)

// salesTable is the watermark id for the sales fact target
const salesTable = "silver.sales_facts"

// SalesAppender appends transactional sales facts past the watermark.
// Facts are immutable once inserted; the natural order key makes the
// buffered re-read of the last day idempotent.
type SalesAppender struct {
	bronze     *BronzeReader
	silverDB   *sql.DB
	watermarks *watermark.Store
	batchSize  int
}

// NewSalesAppender creates a new sales appender
func NewSalesAppender(bronze *BronzeReader, silverDB *sql.DB, watermarks *watermark.Store, batchSize int) *SalesAppender {
	return &SalesAppender{
		bronze:     bronze,
		silverDB:   silverDB,
		watermarks: watermarks,
		batchSize:  batchSize,
	}
}

// AppendDelta appends new sales rows and advances the watermark, both in
// one transaction. The boundary is kept as a timestamp; the raw 8-digit
// order dates are converted before comparison rather than comparing mixed
// encodings.
func (sa *SalesAppender) AppendDelta(ctx context.Context) (int64, error) {
	since, err := sa.watermarks.Get(ctx, salesTable)
	if err != nil {
		return 0, err
	}

	raws, err := sa.bronze.ReadSalesSince(ctx, rawDateFromTime(since), sa.batchSize)
	if err != nil {
		return 0, err
	}

	if len(raws) == 0 {
		return 0, nil
	}

	rows := make([]SaleRow, 0, len(raws))
	var observedMax time.Time
	for _, raw := range raws {
		row := reconcileSale(raw)
		rows = append(rows, row)

		// Rows whose order date failed validation carry NULL and do not
		// move the watermark
		if row.OrderDate != nil && row.OrderDate.After(observedMax) {
			observedMax = *row.OrderDate
		}
	}

	tx, err := sa.silverDB.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("failed to begin sales append transaction: %w", err)
	}
	defer tx.Rollback()

	for i := range rows {
		if err := insertSale(ctx, tx, &rows[i]); err != nil {
			return 0, err
		}
	}

	if !observedMax.IsZero() {
		if err := sa.watermarks.AdvanceTx(ctx, tx, salesTable, observedMax); err != nil {
			return 0, err
		}
	}

	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("failed to commit sales append: %w", err)
	}

	return int64(len(rows)), nil
}

// parseRawDate validates an 8-digit yyyymmdd encoding. Zero and malformed
// values come back nil.
func parseRawDate(raw int64) *time.Time {
	if raw < 10000101 || raw > 99991231 {
		return nil
	}

	year := int(raw / 10000)
	month := int(raw / 100 % 100)
	day := int(raw % 100)

	t := time.Date(year, time.Month(month), day, 0, 0, 0, 0, time.UTC)

	// time.Date normalizes out-of-range components (e.g. month 13 rolls
	// into the next year); a round-trip mismatch means the encoding was
	// not a real calendar date
	if t.Year() != year || int(t.Month()) != month || t.Day() != day {
		return nil
	}

	return &t
}

// rawDateFromTime converts a boundary timestamp to the source's 8-digit
// date encoding for the SQL-side filter
func rawDateFromTime(t time.Time) int64 {
	u := t.UTC()
	return int64(u.Year())*10000 + int64(u.Month())*100 + int64(u.Day())
}

// reconcileSale validates dates and repairs the derived monetary fields:
// a missing or inconsistent amount is recomputed as quantity * |price|,
// and a missing or non-positive price is recomputed as amount / quantity
// (NULL when the quantity is zero or does not divide the amount evenly;
// a truncated price would break amount = quantity * |price|).
func reconcileSale(raw SaleRaw) SaleRow {
	row := SaleRow{
		OrderNumber: raw.OrderNumber,
		ProductKey:  raw.ProductKey,
		CustomerID:  raw.CustomerID,
		OrderDate:   parseRawDate(raw.OrderDateRaw),
		ShipDate:    parseRawDate(raw.ShipDateRaw),
		DueDate:     parseRawDate(raw.DueDateRaw),
	}

	if raw.Quantity.Valid {
		row.Quantity = raw.Quantity.Int64
	}

	absPrice := int64(0)
	if raw.Price.Valid {
		absPrice = raw.Price.Int64
		if absPrice < 0 {
			absPrice = -absPrice
		}
	}

	expected := row.Quantity * absPrice

	switch {
	case !raw.Amount.Valid, raw.Amount.Int64 <= 0:
		row.Amount = expected
	case raw.Price.Valid && raw.Amount.Int64 != expected:
		// Stored amount disagrees with quantity * |price|
		row.Amount = expected
	default:
		row.Amount = raw.Amount.Int64
	}

	if raw.Price.Valid && raw.Price.Int64 > 0 {
		price := raw.Price.Int64
		row.Price = &price
	} else if row.Quantity != 0 && row.Amount%row.Quantity == 0 {
		price := row.Amount / row.Quantity
		row.Price = &price
	}

	return row
}

// insertSale appends one fact row. Conflicts on the natural order key are
// ignored: the watermark buffer deliberately re-reads the last day.
func insertSale(ctx context.Context, tx *sql.Tx, row *SaleRow) error {
	query := `
		INSERT INTO silver.sales_facts (
			order_number, product_key, customer_id,
			order_date, ship_date, due_date,
			amount, quantity, price
		) VALUES (
			$1, $2, $3, $4, $5, $6, $7, $8, $9
		)
		ON CONFLICT (order_number, product_key) DO NOTHING
	`

	_, err := tx.ExecContext(ctx, query,
		row.OrderNumber, row.ProductKey, row.CustomerID,
		row.OrderDate, row.ShipDate, row.DueDate,
		row.Amount, row.Quantity, row.Price,
	)

	if err != nil {
		return fmt.Errorf("failed to insert sale %s/%s: %w", row.OrderNumber, row.ProductKey, err)
	}

	return nil
}
