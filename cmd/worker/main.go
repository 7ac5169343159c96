/**
 * Extraction Review Worker - Main Entry Point
 *
 * Go worker behind the bilingual insurance-form extraction pipeline.
 *
 * Architecture:
 * - Redis-backed job queue (asynq, or a raw LIST for review-UI compat)
 * - Spatial validator scoring OCR spans per document
 * - Reliability aggregator folding human corrections into per-field stats
 * - PostgreSQL persistence so tallies survive restarts via replay
 * - Periodic HTML/XLSX reliability report export
 */

package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"github.com/formguard/extraction-worker/internal/config"
	"github.com/formguard/extraction-worker/internal/processor"
	"github.com/formguard/extraction-worker/internal/queue"
	"github.com/formguard/extraction-worker/internal/reliability"
	"github.com/formguard/extraction-worker/internal/storage"
	"github.com/formguard/extraction-worker/internal/validation"
)

// consumer is the common surface of the two queue implementations.
type consumer interface {
	Start() error
	Stop() error
}

func main() {
	// Load environment variables
	if err := godotenv.Load(".env"); err != nil {
		log.Printf("Warning: .env not found, using system environment variables")
	}

	cfg, err := config.LoadConfig()
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	log.Printf("Extraction review worker starting...")
	log.Printf("Configuration loaded: Redis=%s, QueueMode=%s, Workers=%d",
		cfg.RedisURL, cfg.QueueMode, cfg.WorkerConcurrency)

	zones, err := cfg.LoadZones()
	if err != nil {
		log.Fatalf("Failed to load field zones: %v", err)
	}

	validator, err := validation.NewValidator(&validation.Config{
		MinConfidenceThreshold:  cfg.MinConfidenceThreshold,
		SpatialOverlapThreshold: cfg.SpatialOverlapThreshold,
		Zones:                   zones,
		Patterns:                validation.DefaultPatterns(),
		RequiredFields:          []string{"lastName", "firstName", "idNumber"},
	})
	if err != nil {
		log.Fatalf("Failed to build validator: %v", err)
	}

	aggregator, err := reliability.NewAggregator(&reliability.Config{
		CaseInsensitiveFields: cfg.CaseInsensitiveFields,
	})
	if err != nil {
		log.Fatalf("Failed to build aggregator: %v", err)
	}

	// Persistence is optional; without it the tallies live only in memory.
	var store *storage.CorrectionStore
	if cfg.DatabaseURL != "" {
		log.Printf("Connecting to PostgreSQL...")
		store, err = storage.NewCorrectionStore(cfg.DatabaseURL)
		if err != nil {
			log.Fatalf("Failed to initialize correction store: %v", err)
		}
		defer store.Close()
		log.Printf("Correction store initialized")
	} else {
		log.Printf("DATABASE_URL not set, running without persistence")
	}

	proc, err := processor.NewReviewProcessor(&processor.ProcessorConfig{
		Validator:  validator,
		Aggregator: aggregator,
		Store:      store,
		ReportDir:  cfg.ReportDir,
	})
	if err != nil {
		log.Fatalf("Failed to initialize review processor: %v", err)
	}

	// Rebuild tallies from stored reviews before accepting new work.
	if store != nil {
		log.Printf("Replaying stored reviews...")
		if err := proc.RebuildFromStore(context.Background()); err != nil {
			log.Fatalf("Failed to replay stored reviews: %v", err)
		}
	}

	var queueConsumer consumer
	switch cfg.QueueMode {
	case "redis":
		queueConsumer, err = queue.NewRedisConsumer(&queue.RedisConsumerConfig{
			RedisURL:    cfg.RedisURL,
			QueueName:   cfg.QueueName + ":jobs",
			Concurrency: cfg.WorkerConcurrency,
			Processor:   proc,
		})
	default:
		queueConsumer, err = queue.NewConsumer(&queue.ConsumerConfig{
			RedisURL:    cfg.RedisURL,
			QueueName:   cfg.QueueName,
			Concurrency: cfg.WorkerConcurrency,
			Processor:   proc,
		})
	}
	if err != nil {
		log.Fatalf("Failed to initialize queue consumer: %v", err)
	}

	if err := queueConsumer.Start(); err != nil {
		log.Fatalf("Failed to start queue consumer: %v", err)
	}

	// Periodic report export alongside the on-demand report task.
	reportTicker := time.NewTicker(time.Duration(cfg.ReportIntervalMin) * time.Minute)
	defer reportTicker.Stop()
	go func() {
		for range reportTicker.C {
			if err := proc.ExportReport(context.Background()); err != nil {
				log.Printf("Periodic report export failed: %v", err)
			}
		}
	}()

	log.Printf("===========================================")
	log.Printf("Extraction review worker is READY")
	log.Printf("===========================================")
	log.Printf("Queue: %s (%s mode)", cfg.QueueName, cfg.QueueMode)
	log.Printf("Workers: %d", cfg.WorkerConcurrency)
	log.Printf("Confidence threshold: %.2f", cfg.MinConfidenceThreshold)
	log.Printf("Overlap threshold: %.2f", cfg.SpatialOverlapThreshold)
	log.Printf("Report dir: %s (every %d min)", cfg.ReportDir, cfg.ReportIntervalMin)
	log.Printf("===========================================")

	// Wait for shutdown signal
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	<-sigChan

	log.Printf("Shutdown signal received, stopping...")

	if err := queueConsumer.Stop(); err != nil {
		log.Printf("Error stopping queue consumer: %v", err)
	}

	// Final export so the last reporting period is not lost.
	if err := proc.ExportReport(context.Background()); err != nil {
		log.Printf("Final report export failed: %v", err)
	}

	log.Printf("Worker stopped")
}
