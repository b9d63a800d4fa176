package main

import (
	"context"
	"database/sql"
	"flag"
	"log"
	"os"
	"os/signal"
	"syscall"

	_ "github.com/lib/pq"

	"github.com/lakeshed/silver-transformer/watermark"
)

func main() {
	configPath := flag.String("config", "config.yaml", "Path to config file")
	flag.Parse()

	log.Println("🔧 Loading configuration from", *configPath)

	config, err := LoadConfig(*configPath)
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	if err := config.Validate(); err != nil {
		log.Fatalf("Invalid config: %v", err)
	}

	log.Printf("📋 Service: %s", config.Service.Name)
	log.Printf("📋 Poll interval: %v", config.PollInterval())
	log.Printf("📋 Watermark buffer: %v", config.WatermarkBuffer())
	log.Printf("📋 Batch size: %d rows", config.Performance.BatchSize)

	// Connect to Bronze (raw source extracts)
	log.Println("🔗 Connecting to Bronze...")
	bronzeDB, err := sql.Open("postgres", config.Bronze.ConnectionString())
	if err != nil {
		log.Fatalf("Failed to connect to bronze: %v", err)
	}
	defer bronzeDB.Close()

	if err := bronzeDB.Ping(); err != nil {
		log.Fatalf("Failed to ping bronze: %v", err)
	}
	log.Println("✅ Connected to Bronze")

	// Connect to Silver (cleaned, historized targets)
	log.Println("🔗 Connecting to Silver...")
	silverDB, err := sql.Open("postgres", config.Silver.ConnectionString())
	if err != nil {
		log.Fatalf("Failed to connect to silver: %v", err)
	}
	defer silverDB.Close()

	if err := silverDB.Ping(); err != nil {
		log.Fatalf("Failed to ping silver: %v", err)
	}
	log.Println("✅ Connected to Silver")

	ctx := context.Background()

	if err := initSilverSchema(ctx, silverDB); err != nil {
		log.Fatalf("Failed to initialize silver schema: %v", err)
	}

	// Register the watermarked tables with their boundary columns
	watermarks := watermark.NewStore(silverDB, config.Watermark.Table, config.WatermarkBuffer())
	tracked := map[string]string{
		customersTable: "created_at",
		salesTable:     "order_date",
	}
	if err := watermarks.Init(ctx, tracked); err != nil {
		log.Fatalf("Failed to initialize watermarks: %v", err)
	}

	// Initialize components
	bronzeReader := NewBronzeReader(bronzeDB)
	auditLogger := NewAuditLogger(silverDB)

	customers := NewCustomerMerger(bronzeReader, silverDB, watermarks, config.Performance.BatchSize)
	products := NewProductVersioner(bronzeReader, silverDB)
	sales := NewSalesAppender(bronzeReader, silverDB, watermarks, config.Performance.BatchSize)
	generic := NewGenericLoader(bronzeDB, silverDB, auditLogger)
	quality := NewQualityChecker(bronzeDB, silverDB)

	orchestrator := NewOrchestrator(config, customers, products, sales, generic, quality, auditLogger)

	// Start health server in goroutine
	healthServer := NewHealthServer(orchestrator, config.Service.HealthPort)
	go func() {
		if err := healthServer.Start(); err != nil {
			log.Fatalf("Health server failed: %v", err)
		}
	}()

	// Setup graceful shutdown
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)

	go func() {
		<-sigChan
		log.Println("🛑 Shutdown signal received...")
		orchestrator.Stop()
	}()

	// Start orchestrator (blocks until stopped)
	if err := orchestrator.Start(); err != nil {
		log.Fatalf("Orchestrator failed: %v", err)
	}

	log.Println("👋 Shutdown complete")
}
