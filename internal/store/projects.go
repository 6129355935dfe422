package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/omraval18/nclip/internal/domain"
)

// CreateProject inserts a new project owned by ownerID.
func (s *Store) CreateProject(ctx context.Context, project *domain.Project) error {
	query := `
		INSERT INTO projects (id, name, description, owner_id, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6)
	`

	now := time.Now().UTC()
	project.CreatedAt = now
	project.UpdatedAt = now

	_, err := s.db.ExecContext(ctx, query,
		project.ID,
		project.Name,
		project.Description,
		project.OwnerID,
		project.CreatedAt,
		project.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to create project: %w", err)
	}

	return nil
}

// GetOwnedProject fetches a project scoped to its owner. A miss on either
// the ID or the owner returns domain.ErrProjectNotFound.
func (s *Store) GetOwnedProject(ctx context.Context, projectID, ownerID string) (*domain.Project, error) {
	query := `
		SELECT id, name, description, owner_id, created_at, updated_at
		FROM projects
		WHERE id = $1 AND owner_id = $2
	`

	var project domain.Project
	if err := s.db.GetContext(ctx, &project, query, projectID, ownerID); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, domain.ErrProjectNotFound
		}
		return nil, fmt.Errorf("failed to get project: %w", err)
	}

	return &project, nil
}
