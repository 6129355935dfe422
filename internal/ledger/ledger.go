// Package ledger implements the credit ledger: an atomic, idempotent
// debit/refund pair over the per-user balance. Idempotency comes from the
// unique (user_id, instance_id, kind) row in credit_transactions, so neither
// a double debit nor a double refund can take effect for one job instance.
package ledger

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"

	"github.com/jmoiron/sqlx"
	"github.com/omraval18/nclip/internal/domain"
	"github.com/omraval18/nclip/internal/metrics"
	"github.com/omraval18/nclip/shared/postgresql"
)

// Ledger performs credit operations against PostgreSQL.
type Ledger struct {
	db     *sqlx.DB
	logger *slog.Logger
}

// New creates a Ledger on the shared PostgreSQL client.
func New(pg *postgresql.Client, logger *slog.Logger) *Ledger {
	return &Ledger{
		db:     pg.GetDB(),
		logger: logger,
	}
}

// Balance returns the user's current credit balance.
func (l *Ledger) Balance(ctx context.Context, userID string) (int, error) {
	var credits int
	err := l.db.GetContext(ctx, &credits, `SELECT credits FROM users WHERE id = $1`, userID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return 0, domain.ErrUserNotFound
		}
		return 0, fmt.Errorf("failed to read balance: %w", err)
	}
	return credits, nil
}

// Debit reserves amount credits for one job instance. It fails closed with
// domain.ErrInsufficientCredit when the balance cannot cover the amount: the
// decrement is a single conditional UPDATE, so two racing admissions for the
// last credit cannot both succeed. Replaying the same (user, instance) debit
// is a no-op that returns the current balance.
func (l *Ledger) Debit(ctx context.Context, userID, instanceID string, amount int) (int, error) {
	tx, err := l.db.BeginTxx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("failed to begin debit tx: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck // no-op after commit

	inserted, err := insertTransaction(ctx, tx, userID, instanceID, "debit", amount)
	if err != nil {
		return 0, err
	}

	if !inserted {
		// Already debited for this instance; report the balance unchanged.
		var credits int
		if err := tx.GetContext(ctx, &credits, `SELECT credits FROM users WHERE id = $1`, userID); err != nil {
			return 0, fmt.Errorf("failed to read balance: %w", err)
		}
		if err := tx.Commit(); err != nil {
			return 0, fmt.Errorf("failed to commit debit tx: %w", err)
		}
		return credits, nil
	}

	var credits int
	err = tx.GetContext(ctx, &credits, `
		UPDATE users
		SET credits = credits - $1, updated_at = NOW()
		WHERE id = $2 AND credits >= $1
		RETURNING credits
	`, amount, userID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			// Distinguish a missing user from an empty balance.
			var exists bool
			if chkErr := l.db.GetContext(ctx, &exists, `SELECT EXISTS (SELECT 1 FROM users WHERE id = $1)`, userID); chkErr == nil && !exists {
				return 0, domain.ErrUserNotFound
			}
			return 0, domain.ErrInsufficientCredit
		}
		return 0, fmt.Errorf("failed to debit credits: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("failed to commit debit tx: %w", err)
	}

	l.logger.Info("Credits debited",
		slog.String("user_id", userID),
		slog.String("instance_id", instanceID),
		slog.Int("amount", amount),
		slog.Int("balance", credits),
	)

	return credits, nil
}

// Refund returns the reservation for a terminally failed job instance.
// Exactly one refund per (user, instance) ever takes effect; replays return
// the current balance without crediting again.
func (l *Ledger) Refund(ctx context.Context, userID, instanceID string, amount int) (int, error) {
	tx, err := l.db.BeginTxx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("failed to begin refund tx: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck // no-op after commit

	inserted, err := insertTransaction(ctx, tx, userID, instanceID, "refund", amount)
	if err != nil {
		return 0, err
	}

	var credits int
	if inserted {
		err = tx.GetContext(ctx, &credits, `
			UPDATE users
			SET credits = credits + $1, updated_at = NOW()
			WHERE id = $2
			RETURNING credits
		`, amount, userID)
	} else {
		err = tx.GetContext(ctx, &credits, `SELECT credits FROM users WHERE id = $1`, userID)
	}
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return 0, domain.ErrUserNotFound
		}
		return 0, fmt.Errorf("failed to refund credits: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("failed to commit refund tx: %w", err)
	}

	if inserted {
		metrics.CreditRefundsTotal.Inc()
		l.logger.Info("Credits refunded",
			slog.String("user_id", userID),
			slog.String("instance_id", instanceID),
			slog.Int("amount", amount),
			slog.Int("balance", credits),
		)
	}

	return credits, nil
}

// insertTransaction claims the idempotency row. Returns false when a row for
// (user, instance, kind) already exists.
func insertTransaction(ctx context.Context, tx *sqlx.Tx, userID, instanceID, kind string, amount int) (bool, error) {
	result, err := tx.ExecContext(ctx, `
		INSERT INTO credit_transactions (user_id, instance_id, kind, amount)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (user_id, instance_id, kind) DO NOTHING
	`, userID, instanceID, kind, amount)
	if err != nil {
		return false, fmt.Errorf("failed to record %s transaction: %w", kind, err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("failed to read %s transaction result: %w", kind, err)
	}

	return rows > 0, nil
}
