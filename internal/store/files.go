package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/omraval18/nclip/internal/domain"
)

// CreateUploadedFile inserts the durable record for a source video at
// upload-URL issuance time (status queued, uploaded false).
func (s *Store) CreateUploadedFile(ctx context.Context, file *domain.UploadedFile) error {
	query := `
		INSERT INTO uploaded_files (
			id, r2_key, display_name, uploaded, status,
			user_id, project_id, created_at, updated_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
	`

	now := time.Now().UTC()
	file.CreatedAt = now
	file.UpdatedAt = now

	_, err := s.db.ExecContext(ctx, query,
		file.ID,
		file.R2Key,
		file.DisplayName,
		file.Uploaded,
		file.Status,
		file.UserID,
		file.ProjectID,
		file.CreatedAt,
		file.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to create uploaded file: %w", err)
	}

	return nil
}

// GetFileBySourceKey fetches the uploaded-file record for an object key.
func (s *Store) GetFileBySourceKey(ctx context.Context, r2Key string) (*domain.UploadedFile, error) {
	query := `
		SELECT id, r2_key, display_name, uploaded, status,
		       user_id, project_id, created_at, updated_at
		FROM uploaded_files
		WHERE r2_key = $1
	`

	var file domain.UploadedFile
	if err := s.db.GetContext(ctx, &file, query, r2Key); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, domain.ErrFileNotFound
		}
		return nil, fmt.Errorf("failed to get uploaded file: %w", err)
	}

	return &file, nil
}

// GetFileByProject fetches the uploaded-file record attached to a project.
func (s *Store) GetFileByProject(ctx context.Context, projectID string) (*domain.UploadedFile, error) {
	query := `
		SELECT id, r2_key, display_name, uploaded, status,
		       user_id, project_id, created_at, updated_at
		FROM uploaded_files
		WHERE project_id = $1
		ORDER BY created_at DESC
		LIMIT 1
	`

	var file domain.UploadedFile
	if err := s.db.GetContext(ctx, &file, query, projectID); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, domain.ErrFileNotFound
		}
		return nil, fmt.Errorf("failed to get uploaded file by project: %w", err)
	}

	return &file, nil
}

// SetFileUploaded flips the uploaded flag. Naturally idempotent.
func (s *Store) SetFileUploaded(ctx context.Context, r2Key string, uploaded bool) error {
	query := `
		UPDATE uploaded_files
		SET uploaded = $1, updated_at = NOW()
		WHERE r2_key = $2
	`

	if _, err := s.db.ExecContext(ctx, query, uploaded, r2Key); err != nil {
		return fmt.Errorf("failed to set uploaded flag: %w", err)
	}

	return nil
}

// SetFileStatus overwrites the file status. The write is an idempotent
// overwrite so the failure hook may re-enter it after a crash. A missing row
// is logged, not an error: the terminal hook also fires for payloads whose
// source key never existed.
func (s *Store) SetFileStatus(ctx context.Context, r2Key string, status string) error {
	query := `
		UPDATE uploaded_files
		SET status = $1, updated_at = NOW()
		WHERE r2_key = $2
	`

	result, err := s.db.ExecContext(ctx, query, status, r2Key)
	if err != nil {
		return fmt.Errorf("failed to set file status: %w", err)
	}

	if rows, err := result.RowsAffected(); err == nil && rows == 0 {
		s.logger.Warn("File status update matched no rows",
			slog.String("r2_key", r2Key),
			slog.String("status", status),
		)
	}

	return nil
}

// SetFileState updates both the uploaded flag and the status in one write,
// used by the revalidation endpoint.
func (s *Store) SetFileState(ctx context.Context, fileID string, uploaded bool, status string) error {
	query := `
		UPDATE uploaded_files
		SET uploaded = $1, status = $2, updated_at = NOW()
		WHERE id = $3
	`

	if _, err := s.db.ExecContext(ctx, query, uploaded, status, fileID); err != nil {
		return fmt.Errorf("failed to set file state: %w", err)
	}

	return nil
}
