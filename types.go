package main

import (
	"database/sql"
	"time"
)

// Load status values recorded in etl.load_audit
const (
	StatusSuccess = "Success"
	StatusFailed  = "Failed"
)

// Load kinds understood by the metadata-driven engine
const (
	LoadKindFull        = "FULL"
	LoadKindIncremental = "INCREMENTAL"
)

// LayerSilver tags audit and quality records produced by this service
const LayerSilver = "silver"

// CustomerRaw is a customer row as read from bronze.customers
type CustomerRaw struct {
	SourceRowID       int64
	CustomerID        string
	FirstName         sql.NullString
	LastName          sql.NullString
	MaritalStatusCode sql.NullString
	GenderCode        sql.NullString
	CreatedAt         time.Time
}

// CustomerRow is a normalized customer ready for the SCD1 merge
type CustomerRow struct {
	CustomerID    string
	FirstName     string
	LastName      string
	MaritalStatus string
	Gender        string
	CreatedAt     time.Time
	Fingerprint   string
}

// ProductRaw is a product row as read from bronze.products
type ProductRaw struct {
	SourceRowID int64
	ProductKey  string
	ProductName sql.NullString
	Cost        sql.NullInt64
	LineCode    sql.NullString
	StartDate   sql.NullTime
}

// ProductRow is a normalized product ready for SCD2 versioning
type ProductRow struct {
	ProductKey    string
	CategoryID    string
	ProductNumber string
	ProductName   string
	Cost          int64
	Line          string
	Fingerprint   string
}

// SaleRaw is a sales order row as read from bronze.sales_orders.
// Dates arrive as raw 8-digit integers (yyyymmdd) and must be validated.
type SaleRaw struct {
	OrderNumber  string
	ProductKey   string
	CustomerID   string
	OrderDateRaw int64
	ShipDateRaw  int64
	DueDateRaw   int64
	Amount       sql.NullInt64
	Quantity     sql.NullInt64
	Price        sql.NullInt64
}

// SaleRow is a reconciled sales fact ready for appending
type SaleRow struct {
	OrderNumber string
	ProductKey  string
	CustomerID  string
	OrderDate   *time.Time
	ShipDate    *time.Time
	DueDate     *time.Time
	Amount      int64
	Quantity    int64
	Price       *int64
}

// LoadConfigEntry drives one full reload in the metadata-driven engine
type LoadConfigEntry struct {
	ID          int64
	SourceTable string
	TargetTable string
	LoadKind    string
	Active      bool
	Priority    int
}

// AuditEntry records the outcome of one attempted table load
type AuditEntry struct {
	BatchID      string
	TableName    string
	StartTime    time.Time
	EndTime      time.Time
	RowCount     int64
	Status       string
	ErrorMessage *string
}

// QualityIssue records one failed post-load invariant check
type QualityIssue struct {
	BatchID     string
	TableName   string
	CheckName   string
	Expected    string
	Actual      string
	Description string
	Layer       string
}
