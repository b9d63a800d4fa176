package main

import (
	"context"
	"database/sql"
	"fmt"
	"log"
)

// silverSchemaDDL creates the silver targets and the etl control tables.
// Bronze tables are owned by the upstream ingestion and never created here.
var silverSchemaDDL = []string{
	`CREATE SCHEMA IF NOT EXISTS silver`,
	`CREATE SCHEMA IF NOT EXISTS etl`,

	`CREATE TABLE IF NOT EXISTS silver.customers_current (
		customer_id TEXT PRIMARY KEY,
		first_name TEXT NOT NULL,
		last_name TEXT NOT NULL,
		marital_status TEXT NOT NULL,
		gender TEXT NOT NULL,
		source_created_at TIMESTAMPTZ NOT NULL,
		fingerprint TEXT NOT NULL,
		changed_at TIMESTAMPTZ NOT NULL
	)`,

	`CREATE TABLE IF NOT EXISTS silver.products_history (
		version_id BIGSERIAL PRIMARY KEY,
		product_key TEXT NOT NULL,
		category_id TEXT NOT NULL,
		product_number TEXT NOT NULL,
		product_name TEXT NOT NULL,
		cost BIGINT NOT NULL,
		line TEXT NOT NULL,
		fingerprint TEXT NOT NULL,
		effective_from TIMESTAMPTZ NOT NULL,
		effective_to TIMESTAMPTZ,
		is_current BOOLEAN NOT NULL
	)`,

	`CREATE INDEX IF NOT EXISTS products_history_current_idx
		ON silver.products_history (product_key) WHERE is_current`,

	`CREATE TABLE IF NOT EXISTS silver.sales_facts (
		order_number TEXT NOT NULL,
		product_key TEXT NOT NULL,
		customer_id TEXT NOT NULL,
		order_date DATE,
		ship_date DATE,
		due_date DATE,
		amount BIGINT NOT NULL,
		quantity BIGINT NOT NULL,
		price BIGINT,
		PRIMARY KEY (order_number, product_key)
	)`,

	// Targets for the metadata-driven full reloads
	`CREATE TABLE IF NOT EXISTS silver.customer_profiles (
		customer_id TEXT NOT NULL,
		birth_date DATE,
		gender TEXT
	)`,

	`CREATE TABLE IF NOT EXISTS silver.customer_locations (
		customer_id TEXT NOT NULL,
		country TEXT
	)`,

	`CREATE TABLE IF NOT EXISTS silver.product_categories (
		category_id TEXT NOT NULL,
		category TEXT,
		subcategory TEXT,
		maintenance TEXT
	)`,

	`CREATE TABLE IF NOT EXISTS etl.load_audit (
		id BIGSERIAL PRIMARY KEY,
		batch_id TEXT NOT NULL,
		table_name TEXT NOT NULL,
		start_time TIMESTAMPTZ NOT NULL,
		end_time TIMESTAMPTZ NOT NULL,
		row_count BIGINT NOT NULL DEFAULT 0,
		status TEXT NOT NULL,
		error_message TEXT
	)`,

	`CREATE TABLE IF NOT EXISTS etl.quality_issues (
		id BIGSERIAL PRIMARY KEY,
		batch_id TEXT NOT NULL,
		table_name TEXT NOT NULL,
		check_name TEXT NOT NULL,
		expected_value TEXT NOT NULL,
		actual_value TEXT NOT NULL,
		description TEXT NOT NULL,
		layer TEXT NOT NULL,
		created_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
	)`,

	`CREATE TABLE IF NOT EXISTS etl.load_config (
		id BIGSERIAL PRIMARY KEY,
		source_table TEXT NOT NULL,
		target_table TEXT NOT NULL UNIQUE,
		load_kind TEXT NOT NULL,
		active BOOLEAN NOT NULL DEFAULT TRUE,
		priority INT NOT NULL DEFAULT 100
	)`,
}

// loadConfigSeed registers the default reference reloads. Operators add or
// deactivate entries directly; reruns leave existing rows untouched.
var loadConfigSeed = []string{
	`INSERT INTO etl.load_config (source_table, target_table, load_kind, active, priority)
		VALUES ('bronze.customer_profiles_ext', 'silver.customer_profiles', 'FULL', TRUE, 10)
		ON CONFLICT (target_table) DO NOTHING`,
	`INSERT INTO etl.load_config (source_table, target_table, load_kind, active, priority)
		VALUES ('bronze.customer_locations_ext', 'silver.customer_locations', 'FULL', TRUE, 20)
		ON CONFLICT (target_table) DO NOTHING`,
	`INSERT INTO etl.load_config (source_table, target_table, load_kind, active, priority)
		VALUES ('bronze.product_categories_ext', 'silver.product_categories', 'FULL', TRUE, 30)
		ON CONFLICT (target_table) DO NOTHING`,
}

// initSilverSchema creates the silver and etl tables if needed and seeds
// the default load configuration
func initSilverSchema(ctx context.Context, db *sql.DB) error {
	for _, stmt := range silverSchemaDDL {
		if _, err := db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("failed to create silver schema object: %w", err)
		}
	}

	for _, stmt := range loadConfigSeed {
		if _, err := db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("failed to seed load config: %w", err)
		}
	}

	log.Println("✅ Silver schema initialized")
	return nil
}
