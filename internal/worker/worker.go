// Package worker consumes admitted jobs from RabbitMQ and drives each one
// through the workflow machine, serialized per user by the concurrency gate.
package worker

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/omraval18/nclip/internal/domain"
	"github.com/omraval18/nclip/internal/workflow"
	"github.com/omraval18/nclip/shared/rabbitmq"
)

// Config holds worker configuration.
type Config struct {
	Logger        *slog.Logger
	RabbitClient  *rabbitmq.Client
	Machine       *workflow.Machine
	Gate          *workflow.Gate
	Concurrency   int
	PrefetchCount int
	JobTimeout    time.Duration
}

// jobDelivery pairs a decoded job request with its queue delivery tag.
type jobDelivery struct {
	Request     domain.JobRequest
	DeliveryTag uint64
}

// Worker runs the consume/execute loop.
type Worker struct {
	logger        *slog.Logger
	rabbitClient  *rabbitmq.Client
	machine       *workflow.Machine
	gate          *workflow.Gate
	concurrency   int
	prefetchCount int
	jobTimeout    time.Duration
	workerID      string
	jobsChan      chan *jobDelivery
	wg            sync.WaitGroup
	stopChan      chan struct{}
}

// NewWorker creates a worker instance.
func NewWorker(cfg *Config) *Worker {
	hostname, err := os.Hostname()
	if err != nil {
		hostname = "worker"
	}

	return &Worker{
		logger:        cfg.Logger,
		rabbitClient:  cfg.RabbitClient,
		machine:       cfg.Machine,
		gate:          cfg.Gate,
		concurrency:   cfg.Concurrency,
		prefetchCount: cfg.PrefetchCount,
		jobTimeout:    cfg.JobTimeout,
		workerID:      fmt.Sprintf("%s-%s", hostname, uuid.New().String()[:8]),
		jobsChan:      make(chan *jobDelivery),
		stopChan:      make(chan struct{}),
	}
}

// Start subscribes to the queue, spawns the pool, and blocks until ctx is
// canceled.
func (w *Worker) Start(ctx context.Context) error {
	w.logger.Info("Starting worker",
		slog.String("worker_id", w.workerID),
		slog.Int("concurrency", w.concurrency),
		slog.Duration("job_timeout", w.jobTimeout),
	)

	deliveries, err := w.setupConsumer()
	if err != nil {
		return fmt.Errorf("failed to set up consumer: %w", err)
	}

	w.spawnWorkerPool(ctx)
	w.runDispatcher(ctx, deliveries)

	return nil
}

// Stop gracefully stops the worker, waiting for in-flight jobs.
func (w *Worker) Stop() {
	w.logger.Info("Stopping worker...")
	close(w.stopChan)
	w.wg.Wait()
	w.logger.Info("Worker stopped")
}
