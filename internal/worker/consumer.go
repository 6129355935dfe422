package worker

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/omraval18/nclip/internal/domain"
	amqp "github.com/rabbitmq/amqp091-go"
)

// setupConsumer configures QoS and opens the delivery stream.
func (w *Worker) setupConsumer() (<-chan amqp.Delivery, error) {
	channel := w.rabbitClient.GetChannel()
	if channel == nil {
		return nil, fmt.Errorf("rabbitmq channel is nil")
	}

	// Per-consumer prefetch bounds the number of unacked deliveries held by
	// this process.
	if err := channel.Qos(w.prefetchCount, 0, false); err != nil {
		return nil, fmt.Errorf("failed to set QoS: %w", err)
	}

	deliveries, err := w.rabbitClient.Consume(w.workerID)
	if err != nil {
		return nil, fmt.Errorf("failed to start consuming: %w", err)
	}

	w.logger.Info("Consumer started",
		slog.String("worker_id", w.workerID),
		slog.Int("prefetch_count", w.prefetchCount),
	)

	return deliveries, nil
}

// runDispatcher reads deliveries, decodes the job payload, and feeds the
// worker pool. Malformed messages are rejected without requeue.
func (w *Worker) runDispatcher(ctx context.Context, deliveries <-chan amqp.Delivery) {
	for {
		select {
		case <-ctx.Done():
			w.logger.Info("Message dispatcher stopped - context canceled")
			return

		case delivery, ok := <-deliveries:
			if !ok {
				w.logger.Warn("Delivery channel closed")
				return
			}

			var req domain.JobRequest
			if err := json.Unmarshal(delivery.Body, &req); err != nil {
				w.logger.Error("Failed to parse job message",
					slog.String("error", err.Error()),
					slog.String("body", string(delivery.Body)),
				)
				if nackErr := delivery.Nack(false, false); nackErr != nil {
					w.logger.Error("Failed to NACK malformed message",
						slog.String("error", nackErr.Error()),
					)
				}
				continue
			}

			if req.InstanceID == "" {
				w.logger.Error("Job message missing instance_id",
					slog.String("body", string(delivery.Body)),
				)
				if nackErr := delivery.Nack(false, false); nackErr != nil {
					w.logger.Error("Failed to NACK message without instance_id",
						slog.String("error", nackErr.Error()),
					)
				}
				continue
			}

			job := &jobDelivery{
				Request:     req,
				DeliveryTag: delivery.DeliveryTag,
			}

			select {
			case w.jobsChan <- job:
				w.logger.Debug("Job dispatched to pool",
					slog.String("instance_id", req.InstanceID),
					slog.Uint64("delivery_tag", delivery.DeliveryTag),
				)
			case <-ctx.Done():
				// Return the delivery so another process can pick it up.
				if nackErr := delivery.Nack(false, true); nackErr != nil {
					w.logger.Error("Failed to NACK message on shutdown",
						slog.String("error", nackErr.Error()),
					)
				}
				return
			}
		}
	}
}
