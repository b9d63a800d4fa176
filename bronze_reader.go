package main

import (
	"context"
	"database/sql"
	"fmt"
	"time"
)

// BronzeReader provides read-only access to the bronze source tables
type BronzeReader struct {
	db *sql.DB
}

// NewBronzeReader creates a new bronze reader
func NewBronzeReader(db *sql.DB) *BronzeReader {
	return &BronzeReader{db: db}
}

// ReadCustomersSince reads customer rows whose created_at exceeds the
// watermark, capped at limit rows per cycle. The rows are ordered by
// created_at, so anything past the cap stays above the advanced watermark
// and arrives on the next poll.
func (br *BronzeReader) ReadCustomersSince(ctx context.Context, since time.Time, limit int) ([]CustomerRaw, error) {
	query := `
		SELECT source_row_id, customer_id, first_name, last_name,
		       marital_status, gender, created_at
		FROM bronze.customers
		WHERE created_at > $1
		  AND customer_id IS NOT NULL
		ORDER BY created_at, source_row_id
		LIMIT $2
	`

	rows, err := br.db.QueryContext(ctx, query, since, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to read bronze customers: %w", err)
	}
	defer rows.Close()

	var customers []CustomerRaw
	for rows.Next() {
		var c CustomerRaw
		if err := rows.Scan(
			&c.SourceRowID, &c.CustomerID, &c.FirstName, &c.LastName,
			&c.MaritalStatusCode, &c.GenderCode, &c.CreatedAt,
		); err != nil {
			return nil, fmt.Errorf("failed to scan customer row: %w", err)
		}
		customers = append(customers, c)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate customer rows: %w", err)
	}

	return customers, nil
}

// ReadAllProducts reads the full product source. SCD2 versioning always
// re-scans the source: detecting whether an entity changed at all requires
// comparing against its currently active version, regardless of when the
// source row last moved.
func (br *BronzeReader) ReadAllProducts(ctx context.Context) ([]ProductRaw, error) {
	query := `
		SELECT source_row_id, product_key, product_name, cost, line, start_date
		FROM bronze.products
		WHERE product_key IS NOT NULL
		ORDER BY product_key, source_row_id
	`

	rows, err := br.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to read bronze products: %w", err)
	}
	defer rows.Close()

	var products []ProductRaw
	for rows.Next() {
		var p ProductRaw
		if err := rows.Scan(
			&p.SourceRowID, &p.ProductKey, &p.ProductName,
			&p.Cost, &p.LineCode, &p.StartDate,
		); err != nil {
			return nil, fmt.Errorf("failed to scan product row: %w", err)
		}
		products = append(products, p)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate product rows: %w", err)
	}

	return products, nil
}

// ReadSalesSince reads sales order rows whose raw order date exceeds the
// given 8-digit boundary (yyyymmdd), capped at limit rows per cycle
func (br *BronzeReader) ReadSalesSince(ctx context.Context, sinceRaw int64, limit int) ([]SaleRaw, error) {
	query := `
		SELECT order_number, product_key, customer_id,
		       order_date, ship_date, due_date,
		       amount, quantity, price
		FROM bronze.sales_orders
		WHERE order_date > $1
		ORDER BY order_date, order_number
		LIMIT $2
	`

	rows, err := br.db.QueryContext(ctx, query, sinceRaw, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to read bronze sales orders: %w", err)
	}
	defer rows.Close()

	var sales []SaleRaw
	for rows.Next() {
		var orderNumber, productKey, customerID sql.NullString
		var orderDate, shipDate, dueDate sql.NullInt64
		var amount, quantity, price sql.NullInt64
		if err := rows.Scan(
			&orderNumber, &productKey, &customerID,
			&orderDate, &shipDate, &dueDate,
			&amount, &quantity, &price,
		); err != nil {
			return nil, fmt.Errorf("failed to scan sales row: %w", err)
		}

		raw, ok := newSaleRaw(orderNumber, productKey, customerID, orderDate, shipDate, dueDate, amount, quantity, price)
		if !ok {
			continue
		}
		sales = append(sales, raw)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate sales rows: %w", err)
	}

	return sales, nil
}

// newSaleRaw assembles a scanned sales row. Nullable dates coalesce to 0,
// which the date parser rejects. Rows missing any natural-key field are
// dropped rather than failing the whole read: the key columns cannot be
// NULL on the silver side.
func newSaleRaw(orderNumber, productKey, customerID sql.NullString,
	orderDate, shipDate, dueDate sql.NullInt64,
	amount, quantity, price sql.NullInt64) (SaleRaw, bool) {

	if !orderNumber.Valid || !productKey.Valid || !customerID.Valid {
		return SaleRaw{}, false
	}

	return SaleRaw{
		OrderNumber:  orderNumber.String,
		ProductKey:   productKey.String,
		CustomerID:   customerID.String,
		OrderDateRaw: orderDate.Int64,
		ShipDateRaw:  shipDate.Int64,
		DueDateRaw:   dueDate.Int64,
		Amount:       amount,
		Quantity:     quantity,
		Price:        price,
	}, true
}
