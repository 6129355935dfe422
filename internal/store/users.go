package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/omraval18/nclip/internal/domain"
)

// GetUser fetches a user by ID.
func (s *Store) GetUser(ctx context.Context, userID string) (*domain.User, error) {
	query := `
		SELECT id, email, plan, credits, created_at, updated_at
		FROM users
		WHERE id = $1
	`

	var user domain.User
	if err := s.db.GetContext(ctx, &user, query, userID); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, domain.ErrUserNotFound
		}
		return nil, fmt.Errorf("failed to get user: %w", err)
	}

	return &user, nil
}
