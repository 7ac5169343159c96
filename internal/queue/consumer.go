/**
 * Asynq consumer for the extraction review worker
 *
 * Consumes review, report and reset tasks from the Redis-backed queue.
 * Review tasks carry one reviewed document; reset tasks start a fresh
 * reporting period; report tasks trigger an export. Reset and report are
 * routed through the queue so the reporting period can be controlled
 * without restarting the worker.
 */

package queue

import (
	"context"
	"fmt"
	"log"
	"time"

	"github.com/hibiken/asynq"

	"github.com/formguard/extraction-worker/internal/processor"
)

// Consumer handles task consumption via asynq.
type Consumer struct {
	client    *asynq.Client
	server    *asynq.Server
	mux       *asynq.ServeMux
	processor processor.ReviewProcessorInterface
	config    *ConsumerConfig
}

// ConsumerConfig holds consumer configuration.
type ConsumerConfig struct {
	RedisURL          string
	QueueName         string
	Concurrency       int
	Processor         processor.ReviewProcessorInterface
	ProcessingTimeout time.Duration
}

// NewConsumer creates a new asynq-based consumer.
func NewConsumer(cfg *ConsumerConfig) (*Consumer, error) {
	if cfg.RedisURL == "" {
		return nil, fmt.Errorf("RedisURL is required")
	}
	if cfg.QueueName == "" {
		cfg.QueueName = "formreview"
	}
	if cfg.Processor == nil {
		return nil, fmt.Errorf("Processor is required")
	}
	if cfg.Concurrency <= 0 {
		cfg.Concurrency = 10
	}
	if cfg.ProcessingTimeout <= 0 {
		cfg.ProcessingTimeout = 60 * time.Second
	}

	redisOpt, err := asynq.ParseRedisURI(cfg.RedisURL)
	if err != nil {
		return nil, fmt.Errorf("failed to parse Redis URL: %w", err)
	}

	// Client side is used by EnqueueReview when this process also produces
	// tasks (e.g. replay tooling).
	client := asynq.NewClient(redisOpt)

	server := asynq.NewServer(
		redisOpt,
		asynq.Config{
			Concurrency: cfg.Concurrency,
			Queues: map[string]int{
				cfg.QueueName: 10,
			},
		},
	)

	consumer := &Consumer{
		client:    client,
		server:    server,
		mux:       asynq.NewServeMux(),
		processor: cfg.Processor,
		config:    cfg,
	}

	consumer.mux.HandleFunc(TaskTypeReview, consumer.handleReviewTask)
	consumer.mux.HandleFunc(TaskTypeReset, consumer.handleResetTask)
	consumer.mux.HandleFunc(TaskTypeReport, consumer.handleReportTask)

	return consumer, nil
}

// Start begins consuming tasks. Non-blocking.
func (c *Consumer) Start() error {
	log.Printf("Starting asynq consumer (queue=%s, concurrency=%d)...",
		c.config.QueueName, c.config.Concurrency)
	return c.server.Start(c.mux)
}

// Stop shuts the consumer down gracefully.
func (c *Consumer) Stop() error {
	log.Println("Stopping asynq consumer...")
	c.server.Shutdown()
	return c.client.Close()
}

// EnqueueReview submits a review job to the queue.
func (c *Consumer) EnqueueReview(ctx context.Context, payload []byte) error {
	task := asynq.NewTask(TaskTypeReview, payload)
	_, err := c.client.EnqueueContext(ctx, task, asynq.Queue(c.config.QueueName))
	return err
}

// handleReviewTask processes one reviewed document.
func (c *Consumer) handleReviewTask(ctx context.Context, task *asynq.Task) error {
	req, err := DecodeReviewJob(task.Payload())
	if err != nil {
		// A payload that fails schema validation will never succeed on
		// retry; drop it.
		log.Printf("Dropping malformed review task: %v", err)
		return nil
	}

	ctx, cancel := context.WithTimeout(ctx, c.config.ProcessingTimeout)
	defer cancel()

	result, err := c.processor.ProcessReview(ctx, req)
	if err != nil {
		return fmt.Errorf("process review %s: %w", req.DocumentID, err)
	}

	log.Printf("Review %s processed (global confidence %.3f)",
		result.DocumentID, result.Validation.GlobalConfidence)
	return nil
}

// handleResetTask starts a fresh reporting period.
func (c *Consumer) handleResetTask(ctx context.Context, task *asynq.Task) error {
	log.Printf("Reset task received, clearing reporting period")
	return c.processor.ResetPeriod(ctx)
}

// handleReportTask exports the current reliability report.
func (c *Consumer) handleReportTask(ctx context.Context, task *asynq.Task) error {
	log.Printf("Report task received, exporting reliability report")
	return c.processor.ExportReport(ctx)
}
