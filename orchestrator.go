package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/google/uuid"
)

// batchAuditName tags the batch-level audit entry written when the
// hardcoded entity sequence aborts
const batchAuditName = "silver_batch"

// Orchestrator sequences one silver batch: the hardcoded entities
// (customers, products, sales) with abort-on-first-failure semantics,
// then the metadata-driven loads with per-entry isolation, then the
// observational quality pass.
type Orchestrator struct {
	config    *Config
	customers *CustomerMerger
	products  *ProductVersioner
	sales     *SalesAppender
	generic   *GenericLoader
	quality   *QualityChecker
	audit     *AuditLogger

	ctx      context.Context
	cancel   context.CancelFunc
	stopChan chan struct{}

	// Stats
	mu                sync.RWMutex
	batchesTotal      int64
	batchErrors       int64
	lastBatchID       string
	lastBatchTime     time.Time
	lastBatchDuration time.Duration
	lastBatchRowCount int64
}

// NewOrchestrator creates a new batch orchestrator
func NewOrchestrator(config *Config, customers *CustomerMerger, products *ProductVersioner,
	sales *SalesAppender, generic *GenericLoader, quality *QualityChecker, audit *AuditLogger) *Orchestrator {
	// The run context exists before Start so Stop is safe from any
	// goroutine at any point in the service lifetime
	ctx, cancel := context.WithCancel(context.Background())
	return &Orchestrator{
		config:    config,
		customers: customers,
		products:  products,
		sales:     sales,
		generic:   generic,
		quality:   quality,
		audit:     audit,
		ctx:       ctx,
		cancel:    cancel,
		stopChan:  make(chan struct{}),
	}
}

// Start begins the batch polling loop
func (o *Orchestrator) Start() error {
	log.Println("🚀 Starting Silver Transformer")
	log.Printf("Poll Interval: %v", o.config.PollInterval())
	log.Printf("Watermark Buffer: %v", o.config.WatermarkBuffer())

	defer o.cancel()

	// Run immediate batch on startup
	log.Println("🔍 Running initial batch...")
	if err := o.runOnce(o.ctx); err != nil {
		if errors.Is(err, ErrInvariantViolation) {
			return err
		}
		log.Printf("⚠️  Initial batch error: %v", err)
	}

	ticker := time.NewTicker(o.config.PollInterval())
	defer ticker.Stop()

	log.Println("✅ Orchestrator ready - polling for new data...")

	for {
		select {
		case <-ticker.C:
			if err := o.runOnce(o.ctx); err != nil {
				// A versioning invariant violation means the history
				// chain can no longer be trusted; stop the service
				if errors.Is(err, ErrInvariantViolation) {
					return err
				}
				log.Printf("❌ Batch error: %v", err)
			}
		case <-o.stopChan:
			log.Println("🛑 Stopping orchestrator...")
			return nil
		}
	}
}

// Stop gracefully stops the orchestrator. In-flight transactions finish
// or roll back through their own error paths; no new entity transaction
// is started afterwards.
func (o *Orchestrator) Stop() {
	o.cancel()
	close(o.stopChan)
}

// runOnce executes a single batch with a fresh batch id and updates stats
func (o *Orchestrator) runOnce(ctx context.Context) error {
	batchID := uuid.NewString()
	startTime := time.Now()

	rowCount, err := o.RunBatch(ctx, batchID)

	duration := time.Since(startTime)
	o.updateStats(batchID, rowCount, duration, err)

	batchDuration.Observe(duration.Seconds())
	if err != nil {
		batchErrorsTotal.Inc()
		return err
	}

	batchesTotalMetric.Inc()
	return nil
}

// RunBatch runs one full silver batch under the given batch id and returns
// the total row count across successful loads
func (o *Orchestrator) RunBatch(ctx context.Context, batchID string) (int64, error) {
	log.Printf("📦 Starting batch %s", batchID)

	totalRows, err := o.runHardcodedEntities(ctx, batchID)
	if err != nil {
		// The hardcoded path aborts, but the metadata-driven entries are
		// independently owned and still get their pass. An invariant
		// violation poisons the batch and skips them.
		if errors.Is(err, ErrInvariantViolation) {
			return totalRows, err
		}
		if _, _, genErr := o.generic.RunConfiguredLoads(ctx, batchID); genErr != nil {
			log.Printf("❌ Configured loads aborted: %v", genErr)
		}
		return totalRows, err
	}

	succeeded, failed, err := o.generic.RunConfiguredLoads(ctx, batchID)
	if err != nil {
		return totalRows, err
	}
	log.Printf("📋 Configured loads: %d succeeded, %d failed", succeeded, failed)

	o.runQualityPass(ctx, batchID)

	log.Printf("✅ Batch %s complete (%d rows)", batchID, totalRows)
	return totalRows, nil
}

// runHardcodedEntities merges the three fixed entities in order. Each runs
// in its own all-or-nothing transaction; the first failure writes the
// entity's audit entry plus a batch-level failure entry and stops the
// hardcoded sequence.
func (o *Orchestrator) runHardcodedEntities(ctx context.Context, batchID string) (int64, error) {
	entities := []struct {
		name string
		run  func(context.Context) (int64, error)
	}{
		{customersTable, o.customers.MergeIncremental},
		{productsTable, o.products.MergeVersioned},
		{salesTable, o.sales.AppendDelta},
	}

	totalRows := int64(0)

	for _, entity := range entities {
		// Abort requests take effect between entities, never mid-commit
		if err := ctx.Err(); err != nil {
			return totalRows, fmt.Errorf("batch canceled before %s: %w", entity.name, err)
		}

		startTime := time.Now().UTC()
		rowCount, err := entity.run(ctx)
		endTime := time.Now().UTC()

		if err != nil {
			o.audit.LogAttempt(ctx, failedEntry(batchID, entity.name, startTime, endTime, err))

			batchErr := fmt.Errorf("entity %s failed: %w", entity.name, err)
			o.audit.LogAttempt(ctx, failedEntry(batchID, batchAuditName, startTime, endTime, batchErr))

			return totalRows, batchErr
		}

		o.audit.LogAttempt(ctx, successEntry(batchID, entity.name, startTime, endTime, rowCount))
		rowsTransformedTotal.WithLabelValues(entity.name).Add(float64(rowCount))

		log.Printf("  ✅ %s (%d rows)", entity.name, rowCount)
		totalRows += rowCount
	}

	return totalRows, nil
}

// runQualityPass runs the observational check suite and records failures
func (o *Orchestrator) runQualityPass(ctx context.Context, batchID string) {
	results := o.quality.RunAll(ctx)

	passed := 0
	failed := 0
	for _, r := range results {
		if r.Passed {
			passed++
		} else {
			failed++
			qualityCheckFailures.WithLabelValues(r.CheckName).Inc()
		}
	}

	if err := o.quality.RecordIssues(ctx, batchID, results); err != nil {
		log.Printf("⚠️  Failed to record quality issues: %v", err)
	}

	if failed > 0 {
		log.Printf("⚠️  Quality checks: %d passed, %d FAILED", passed, failed)
	} else {
		log.Printf("✅ Quality checks: all %d passed", passed)
	}
}

// OrchestratorStats holds batch statistics for the health endpoint
type OrchestratorStats struct {
	BatchesTotal      int64
	BatchErrors       int64
	LastBatchID       string
	LastBatchTime     time.Time
	LastBatchDuration time.Duration
	LastBatchRowCount int64
}

// GetStats returns current batch statistics
func (o *Orchestrator) GetStats() OrchestratorStats {
	o.mu.RLock()
	defer o.mu.RUnlock()

	return OrchestratorStats{
		BatchesTotal:      o.batchesTotal,
		BatchErrors:       o.batchErrors,
		LastBatchID:       o.lastBatchID,
		LastBatchTime:     o.lastBatchTime,
		LastBatchDuration: o.lastBatchDuration,
		LastBatchRowCount: o.lastBatchRowCount,
	}
}

// updateStats updates internal statistics after a batch attempt
func (o *Orchestrator) updateStats(batchID string, rowCount int64, duration time.Duration, err error) {
	o.mu.Lock()
	defer o.mu.Unlock()

	o.batchesTotal++
	if err != nil {
		o.batchErrors++
	}
	o.lastBatchID = batchID
	o.lastBatchTime = time.Now()
	o.lastBatchDuration = duration
	o.lastBatchRowCount = rowCount
}
