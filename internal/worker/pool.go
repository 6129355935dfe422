package worker

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/omraval18/nclip/internal/domain"
)

// spawnWorkerPool starts the processing goroutines.
func (w *Worker) spawnWorkerPool(ctx context.Context) {
	w.logger.Info("Spawning worker pool",
		slog.Int("concurrency", w.concurrency),
		slog.String("worker_id", w.workerID),
	)

	for i := 0; i < w.concurrency; i++ {
		w.wg.Add(1)
		go w.workerLoop(ctx, i)
	}
}

// workerLoop pulls jobs off the channel, runs them through the gate and the
// machine, and acks or nacks the delivery based on the outcome.
func (w *Worker) workerLoop(ctx context.Context, workerNum int) {
	defer w.wg.Done()

	workerName := fmt.Sprintf("%s-%d", w.workerID, workerNum)

	for {
		select {
		case <-w.stopChan:
			w.logger.Info("Worker goroutine stopping",
				slog.String("worker_name", workerName),
			)
			return

		case <-ctx.Done():
			w.logger.Info("Worker goroutine stopping - context canceled",
				slog.String("worker_name", workerName),
			)
			return

		case job, ok := <-w.jobsChan:
			if !ok {
				return
			}

			err := w.processJob(ctx, job)

			channel := w.rabbitClient.GetChannel()
			if channel == nil {
				w.logger.Error("No channel available for ack",
					slog.String("worker_name", workerName),
					slog.String("instance_id", job.Request.InstanceID),
				)
				continue
			}

			if err != nil {
				requeue := !domain.IsNonRetriable(err)
				w.logger.Error("Job processing failed",
					slog.String("worker_name", workerName),
					slog.String("instance_id", job.Request.InstanceID),
					slog.Bool("requeue", requeue),
					slog.String("error", err.Error()),
				)
				if nackErr := channel.Nack(job.DeliveryTag, false, requeue); nackErr != nil {
					w.logger.Error("Failed to NACK message",
						slog.String("worker_name", workerName),
						slog.String("error", nackErr.Error()),
					)
				}
				continue
			}

			if ackErr := channel.Ack(job.DeliveryTag, false); ackErr != nil {
				w.logger.Error("Failed to ACK message",
					slog.String("worker_name", workerName),
					slog.String("error", ackErr.Error()),
				)
			}
		}
	}
}

// processJob serializes per user via the gate, then runs the workflow to a
// terminal state under the job timeout. A nil return means the instance
// reached a terminal state (or already had) and the delivery can be acked.
func (w *Worker) processJob(ctx context.Context, job *jobDelivery) error {
	req := job.Request

	w.logger.Info("Processing job",
		slog.String("instance_id", req.InstanceID),
		slog.String("user_id", req.UserID),
		slog.String("s3_key", req.SourceKey),
	)

	if err := w.gate.Acquire(ctx, req.UserID); err != nil {
		return fmt.Errorf("gate acquisition canceled: %w", err)
	}
	defer w.gate.Release(req.UserID)

	jobCtx := ctx
	if w.jobTimeout > 0 {
		var cancel context.CancelFunc
		jobCtx, cancel = context.WithTimeout(ctx, w.jobTimeout)
		defer cancel()
	}

	return w.machine.Run(jobCtx, req)
}
