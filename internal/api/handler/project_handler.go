package handler

import (
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/omraval18/nclip/internal/api/dto"
	"github.com/omraval18/nclip/internal/domain"
)

const (
	defaultClipPageSize = 20
	maxClipPageSize     = 100
)

// ownedFile resolves the project's uploaded file after an ownership check.
// Writes the error response itself and returns nil when the caller should
// bail out.
func (h *ClipHandler) ownedFile(c *gin.Context, userID string) *domain.UploadedFile {
	projectID := c.Param("project_id")
	if projectID == "" {
		c.JSON(http.StatusBadRequest, gin.H{
			"error": "project_id is required",
		})
		return nil
	}

	if _, err := h.store.GetOwnedProject(c.Request.Context(), projectID, userID); err != nil {
		if errors.Is(err, domain.ErrProjectNotFound) {
			c.JSON(http.StatusNotFound, gin.H{
				"error": "Project not found",
			})
			return nil
		}
		h.logger.Error("Failed to look up project", slog.String("error", err.Error()))
		c.JSON(http.StatusInternalServerError, gin.H{
			"error": "Failed to look up project",
		})
		return nil
	}

	file, err := h.store.GetFileByProject(c.Request.Context(), projectID)
	if err != nil {
		if errors.Is(err, domain.ErrFileNotFound) {
			c.JSON(http.StatusNotFound, gin.H{
				"error": "No uploaded file for project",
			})
			return nil
		}
		h.logger.Error("Failed to look up uploaded file", slog.String("error", err.Error()))
		c.JSON(http.StatusInternalServerError, gin.H{
			"error": "Failed to look up uploaded file",
		})
		return nil
	}

	return file
}

// GetProjectFile handles GET /api/v1/projects/:project_id/file
// Returns the project's uploaded-file record; clients poll this for
// processing progress.
func (h *ClipHandler) GetProjectFile(c *gin.Context) {
	userID := requireUser(c)
	if userID == "" {
		return
	}

	file := h.ownedFile(c, userID)
	if file == nil {
		return
	}

	c.JSON(http.StatusOK, dto.FileStatusResponse{
		FileID:    file.ID,
		S3Key:     file.R2Key,
		Uploaded:  file.Uploaded,
		Status:    file.Status,
		CreatedAt: file.CreatedAt.Format(time.RFC3339),
		UpdatedAt: file.UpdatedAt.Format(time.RFC3339),
	})
}

// RevalidateFile handles POST /api/v1/projects/:project_id/revalidate
// Re-derives the file state from the bucket: uploaded follows the source
// object's presence, status becomes completed when clip objects exist and
// failed otherwise. An escape hatch for records left stale by an
// interrupted pipeline.
func (h *ClipHandler) RevalidateFile(c *gin.Context) {
	userID := requireUser(c)
	if userID == "" {
		return
	}

	file := h.ownedFile(c, userID)
	if file == nil {
		return
	}

	uploaded, err := h.objects.Exists(c.Request.Context(), file.R2Key)
	if err != nil {
		h.logger.Error("Failed to check source object", slog.String("error", err.Error()))
		c.JSON(http.StatusBadGateway, gin.H{
			"error": "Failed to check object storage",
		})
		return
	}

	keys, err := h.objects.ListClips(c.Request.Context(), file.R2Key)
	if err != nil {
		h.logger.Error("Failed to list clip objects", slog.String("error", err.Error()))
		c.JSON(http.StatusBadGateway, gin.H{
			"error": "Failed to check object storage",
		})
		return
	}

	status := domain.FileStatusFailed
	if len(keys) > 0 {
		status = domain.FileStatusCompleted

		if _, err := h.upsertClipKeys(c, file, keys); err != nil {
			return
		}
	}

	if err := h.store.SetFileState(c.Request.Context(), file.ID, uploaded, status); err != nil {
		h.logger.Error("Failed to update file state", slog.String("error", err.Error()))
		c.JSON(http.StatusInternalServerError, gin.H{
			"error": "Failed to update file state",
		})
		return
	}

	h.logger.Info("File state revalidated",
		slog.String("file_id", file.ID),
		slog.Bool("uploaded", uploaded),
		slog.String("status", status),
		slog.Int("clips_found", len(keys)),
	)

	c.JSON(http.StatusOK, gin.H{
		"file_id":  file.ID,
		"uploaded": uploaded,
		"status":   status,
	})
}

// ListClips handles GET /api/v1/projects/:project_id/clips
// Lists the project's clips with presigned GET URLs. The bucket is listed
// first and any clip objects missing a row are upserted, so clips written
// after the workflow's reconcile step still show up.
func (h *ClipHandler) ListClips(c *gin.Context) {
	userID := requireUser(c)
	if userID == "" {
		return
	}

	file := h.ownedFile(c, userID)
	if file == nil {
		return
	}

	var req dto.ListClipsRequest
	if err := c.ShouldBindQuery(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"error": "Invalid query parameters",
		})
		return
	}
	if req.PageSize <= 0 {
		req.PageSize = defaultClipPageSize
	}
	if req.PageSize > maxClipPageSize {
		req.PageSize = maxClipPageSize
	}
	if req.Offset < 0 {
		req.Offset = 0
	}

	keys, err := h.objects.ListClips(c.Request.Context(), file.R2Key)
	if err != nil {
		h.logger.Error("Failed to list clip objects", slog.String("error", err.Error()))
		c.JSON(http.StatusBadGateway, gin.H{
			"error": "Failed to list clips",
		})
		return
	}
	if len(keys) > 0 {
		if _, err := h.upsertClipKeys(c, file, keys); err != nil {
			return
		}
	}

	clips, err := h.store.ListClipsByFile(c.Request.Context(), file.ID, req.PageSize, req.Offset)
	if err != nil {
		h.logger.Error("Failed to list clips", slog.String("error", err.Error()))
		c.JSON(http.StatusInternalServerError, gin.H{
			"error": "Failed to list clips",
		})
		return
	}

	resp := dto.ListClipsResponse{Clips: make([]dto.ClipDTO, len(clips))}
	for i, clip := range clips {
		url, err := h.objects.PresignGet(c.Request.Context(), clip.R2Key)
		if err != nil {
			h.logger.Error("Failed to presign clip URL",
				slog.String("key", clip.R2Key),
				slog.String("error", err.Error()),
			)
			c.JSON(http.StatusBadGateway, gin.H{
				"error": "Failed to create clip URLs",
			})
			return
		}
		resp.Clips[i] = dto.ClipDTO{
			ClipID:    clip.ID,
			S3Key:     clip.R2Key,
			URL:       url,
			CreatedAt: clip.CreatedAt.Format(time.RFC3339),
		}
	}

	c.JSON(http.StatusOK, resp)
}

// upsertClipKeys records bucket clip objects that don't have rows yet.
// Writes the error response itself on failure.
func (h *ClipHandler) upsertClipKeys(c *gin.Context, file *domain.UploadedFile, keys []string) (int, error) {
	clips := make([]domain.Clip, len(keys))
	for i, key := range keys {
		clips[i] = domain.Clip{
			R2Key:          key,
			UserID:         file.UserID,
			UploadedFileID: file.ID,
		}
	}

	inserted, err := h.store.UpsertClips(c.Request.Context(), clips)
	if err != nil {
		h.logger.Error("Failed to upsert clips", slog.String("error", err.Error()))
		c.JSON(http.StatusInternalServerError, gin.H{
			"error": "Failed to record clips",
		})
		return 0, err
	}
	return inserted, nil
}
