// Package dispatch implements the synchronous admission path: credit
// reservation plus the asynchronous hand-off of admitted jobs to the worker
// queue.
package dispatch

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/google/uuid"
	"github.com/omraval18/nclip/internal/domain"
	"github.com/omraval18/nclip/internal/metrics"
)

// Ledger is the debit/refund surface the dispatcher needs.
type Ledger interface {
	Debit(ctx context.Context, userID, instanceID string, amount int) (int, error)
	Refund(ctx context.Context, userID, instanceID string, amount int) (int, error)
}

// UserStore resolves submitting users.
type UserStore interface {
	GetUser(ctx context.Context, userID string) (*domain.User, error)
}

// Publisher enqueues the workflow message.
type Publisher interface {
	Publish(ctx context.Context, body []byte, contentType string) error
}

// Receipt is returned to the caller on successful admission.
type Receipt struct {
	InstanceID string
	Balance    int
}

// Config wires a Dispatcher.
type Config struct {
	Ledger     Ledger
	Users      UserStore
	Publisher  Publisher
	Logger     *slog.Logger
	CreditCost int // <=0 means domain.CreditCostClipJob
}

// Dispatcher admits job requests: validate, reserve credit, enqueue. The
// debit happens before the hand-off so a user cannot queue more jobs than
// their balance covers; the workflow's terminal refund restores the balance
// if the job later fails.
type Dispatcher struct {
	ledger    Ledger
	users     UserStore
	publisher Publisher
	logger    *slog.Logger
	cost      int
}

// New creates a Dispatcher from cfg.
func New(cfg *Config) *Dispatcher {
	cost := cfg.CreditCost
	if cost <= 0 {
		cost = domain.CreditCostClipJob
	}
	return &Dispatcher{
		ledger:    cfg.Ledger,
		users:     cfg.Users,
		publisher: cfg.Publisher,
		logger:    cfg.Logger,
		cost:      cost,
	}
}

// Submit performs the admission check synchronously and enqueues the
// workflow instance. Failures surface as domain.ErrUserNotFound,
// domain.ErrInsufficientCredit, or an infrastructure error; none of them
// leave a reservation behind.
func (d *Dispatcher) Submit(ctx context.Context, req domain.JobRequest) (*Receipt, error) {
	if err := req.Validate(); err != nil {
		metrics.JobsSubmittedTotal.WithLabelValues("invalid").Inc()
		return nil, err
	}

	if _, err := d.users.GetUser(ctx, req.UserID); err != nil {
		metrics.JobsSubmittedTotal.WithLabelValues("not_found").Inc()
		return nil, err
	}

	// The instance ID is minted at admission so the debit and any later
	// refund share one idempotency scope.
	if req.InstanceID == "" {
		req.InstanceID = uuid.New().String()
	}

	balance, err := d.ledger.Debit(ctx, req.UserID, req.InstanceID, d.cost)
	if err != nil {
		metrics.JobsSubmittedTotal.WithLabelValues("rejected").Inc()
		return nil, err
	}

	body, err := json.Marshal(req)
	if err != nil {
		return nil, d.compensate(ctx, req, fmt.Errorf("failed to marshal job message: %w", err))
	}

	if err := d.publisher.Publish(ctx, body, "application/json"); err != nil {
		return nil, d.compensate(ctx, req, fmt.Errorf("failed to enqueue job: %w", err))
	}

	metrics.JobsSubmittedTotal.WithLabelValues("accepted").Inc()
	d.logger.Info("Job admitted",
		slog.String("instance_id", req.InstanceID),
		slog.String("user_id", req.UserID),
		slog.String("s3_key", req.SourceKey),
		slog.Int("balance", balance),
	)

	return &Receipt{
		InstanceID: req.InstanceID,
		Balance:    balance,
	}, nil
}

// compensate returns the reservation when the hand-off itself failed, so a
// rejected submission has no side effects.
func (d *Dispatcher) compensate(ctx context.Context, req domain.JobRequest, cause error) error {
	if _, refundErr := d.ledger.Refund(ctx, req.UserID, req.InstanceID, d.cost); refundErr != nil {
		d.logger.Error("Failed to refund after enqueue error",
			slog.String("instance_id", req.InstanceID),
			slog.String("user_id", req.UserID),
			slog.String("error", refundErr.Error()),
		)
	}
	metrics.JobsSubmittedTotal.WithLabelValues("error").Inc()
	return cause
}
