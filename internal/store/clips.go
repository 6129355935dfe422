package store

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/omraval18/nclip/internal/domain"
)

// UpsertClips bulk-inserts clip rows, skipping any (r2_key, uploaded_file_id)
// pair that already exists. Returns the number of rows actually inserted, so
// re-listing the same prefix after a retry is a no-op.
func (s *Store) UpsertClips(ctx context.Context, clips []domain.Clip) (int, error) {
	if len(clips) == 0 {
		return 0, nil
	}

	query := `
		INSERT INTO clips (id, r2_key, user_id, uploaded_file_id)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (r2_key, uploaded_file_id) DO NOTHING
	`

	inserted := 0
	for _, clip := range clips {
		id := clip.ID
		if id == "" {
			id = uuid.New().String()
		}

		result, err := s.db.ExecContext(ctx, query, id, clip.R2Key, clip.UserID, clip.UploadedFileID)
		if err != nil {
			return inserted, fmt.Errorf("failed to insert clip %s: %w", clip.R2Key, err)
		}

		if rows, err := result.RowsAffected(); err == nil && rows > 0 {
			inserted++
		}
	}

	return inserted, nil
}

// ListClipsByFile returns the clip rows for one uploaded file, oldest first,
// paginated by limit/offset.
func (s *Store) ListClipsByFile(ctx context.Context, uploadedFileID string, limit, offset int) ([]domain.Clip, error) {
	query := `
		SELECT id, r2_key, user_id, uploaded_file_id, created_at
		FROM clips
		WHERE uploaded_file_id = $1
		ORDER BY created_at ASC, id ASC
		LIMIT $2 OFFSET $3
	`

	var clips []domain.Clip
	if err := s.db.SelectContext(ctx, &clips, query, uploadedFileID, limit, offset); err != nil {
		return nil, fmt.Errorf("failed to list clips: %w", err)
	}

	return clips, nil
}
