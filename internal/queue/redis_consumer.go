/**
 * Direct Redis queue consumer for the extraction review worker
 *
 * Compatible with the review UI's queue implementation, which pushes the
 * full review payload onto a plain Redis LIST and polls a status hash.
 * Uses simple LIST/HASH operations so the UI side needs no asynq client.
 */

package queue

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/formguard/extraction-worker/internal/processor"
)

// reviewStatus is what the UI reads back from the status hash.
type reviewStatus struct {
	DocumentID       string    `json:"documentId"`
	Status           string    `json:"status"`
	GlobalConfidence float64   `json:"globalConfidence,omitempty"`
	Error            string    `json:"error,omitempty"`
	UpdatedAt        time.Time `json:"updatedAt"`
}

// RedisConsumer consumes review jobs from a plain Redis LIST.
type RedisConsumer struct {
	client    *redis.Client
	processor processor.ReviewProcessorInterface
	config    *RedisConsumerConfig
	ctx       context.Context
	cancel    context.CancelFunc
	wg        sync.WaitGroup
}

// RedisConsumerConfig holds consumer configuration.
type RedisConsumerConfig struct {
	RedisURL          string
	QueueName         string
	Concurrency       int
	Processor         processor.ReviewProcessorInterface
	ProcessingTimeout time.Duration
}

// NewRedisConsumer creates a new LIST-based queue consumer.
func NewRedisConsumer(cfg *RedisConsumerConfig) (*RedisConsumer, error) {
	if cfg.RedisURL == "" {
		return nil, fmt.Errorf("RedisURL is required")
	}
	if cfg.QueueName == "" {
		cfg.QueueName = "formreview:jobs"
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

	opt, err := redis.ParseURL(cfg.RedisURL)
	if err != nil {
		return nil, fmt.Errorf("failed to parse Redis URL: %w", err)
	}

	client := redis.NewClient(opt)

	ctx := context.Background()
	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("failed to connect to Redis: %w", err)
	}

	consumerCtx, cancel := context.WithCancel(context.Background())

	return &RedisConsumer{
		client:    client,
		processor: cfg.Processor,
		config:    cfg,
		ctx:       consumerCtx,
		cancel:    cancel,
	}, nil
}

// Start begins processing jobs from the queue.
func (c *RedisConsumer) Start() error {
	log.Printf("Starting Redis queue consumer (concurrency=%d, queue=%s)...",
		c.config.Concurrency, c.config.QueueName)

	for i := 0; i < c.config.Concurrency; i++ {
		c.wg.Add(1)
		go c.worker(i)
	}

	log.Println("Queue consumer started successfully")
	return nil
}

// Stop gracefully stops the consumer.
func (c *RedisConsumer) Stop() error {
	log.Println("Stopping queue consumer...")
	c.cancel()
	c.wg.Wait()
	return c.client.Close()
}

// worker is a goroutine that processes jobs.
func (c *RedisConsumer) worker(id int) {
	defer c.wg.Done()
	log.Printf("Worker %d started", id)

	for {
		select {
		case <-c.ctx.Done():
			log.Printf("Worker %d stopping", id)
			return
		default:
			if err := c.processNextJob(); err != nil {
				if err.Error() != "no jobs available" {
					log.Printf("Worker %d error: %v", id, err)
				}
				time.Sleep(1 * time.Second)
			}
		}
	}
}

// processNextJob fetches and processes the next job from the queue.
func (c *RedisConsumer) processNextJob() error {
	// Block for up to 5 seconds waiting for a job.
	result, err := c.client.BRPop(c.ctx, 5*time.Second, c.config.QueueName).Result()
	if err != nil {
		if err == redis.Nil {
			return fmt.Errorf("no jobs available")
		}
		return fmt.Errorf("failed to fetch job: %w", err)
	}

	if len(result) < 2 {
		return fmt.Errorf("invalid job result")
	}

	payload := []byte(result[1])

	req, err := DecodeReviewJob(payload)
	if err != nil {
		// Push the schema failure back to the UI; the job itself is not
		// retryable.
		var probe struct {
			DocumentID string `json:"documentId"`
		}
		_ = json.Unmarshal(payload, &probe)
		c.updateStatus(probe.DocumentID, "rejected", 0, err)
		log.Printf("Rejected malformed review job (document %q): %v", probe.DocumentID, err)
		return nil
	}

	c.updateStatus(req.DocumentID, "processing", 0, nil)
	log.Printf("Processing review for document %s", req.DocumentID)

	ctx, cancel := context.WithTimeout(c.ctx, c.config.ProcessingTimeout)
	defer cancel()

	reviewResult, err := c.processor.ProcessReview(ctx, req)
	if err != nil {
		c.updateStatus(req.DocumentID, "failed", 0, err)
		return fmt.Errorf("process review %s: %w", req.DocumentID, err)
	}

	c.updateStatus(req.DocumentID, "completed", reviewResult.Validation.GlobalConfidence, nil)
	return nil
}

// updateStatus writes the document's review status to the status hash the
// UI polls.
func (c *RedisConsumer) updateStatus(documentID, status string, confidence float64, cause error) {
	if documentID == "" {
		return
	}

	entry := reviewStatus{
		DocumentID:       documentID,
		Status:           status,
		GlobalConfidence: confidence,
		UpdatedAt:        time.Now(),
	}
	if cause != nil {
		entry.Error = cause.Error()
	}

	data, err := json.Marshal(entry)
	if err != nil {
		log.Printf("Failed to marshal status for %s: %v", documentID, err)
		return
	}

	statusKey := fmt.Sprintf("%s:status", c.config.QueueName)
	if err := c.client.HSet(c.ctx, statusKey, documentID, data).Err(); err != nil {
		log.Printf("Failed to update status for %s: %v", documentID, err)
	}
}
