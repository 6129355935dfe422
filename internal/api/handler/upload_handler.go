package handler

import (
	"fmt"
	"log/slog"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/omraval18/nclip/internal/api/dto"
	"github.com/omraval18/nclip/internal/domain"
)

// CreateUpload handles POST /api/v1/uploads
// Creates a project plus its uploaded-file record and returns a presigned
// PUT URL the client uploads the source video to. The file starts as
// queued/not-uploaded; the workflow flips those once a job is submitted.
func (h *ClipHandler) CreateUpload(c *gin.Context) {
	userID := requireUser(c)
	if userID == "" {
		return
	}

	var req dto.CreateUploadRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.logger.Error("Invalid request body", slog.String("error", err.Error()))
		c.JSON(http.StatusBadRequest, gin.H{
			"error": "Invalid request body",
		})
		return
	}

	projectName := req.ProjectName
	if projectName == "" {
		projectName = req.Filename
	}

	project := domain.Project{
		ID:      uuid.New().String(),
		Name:    projectName,
		OwnerID: userID,
	}
	if err := h.store.CreateProject(c.Request.Context(), &project); err != nil {
		h.logger.Error("Failed to create project", slog.String("error", err.Error()))
		c.JSON(http.StatusInternalServerError, gin.H{
			"error": "Failed to create project",
		})
		return
	}

	fileID := uuid.New().String()
	key := fmt.Sprintf("uploads/%s/%s/%s", userID, fileID, req.Filename)

	file := domain.UploadedFile{
		ID:          fileID,
		R2Key:       key,
		DisplayName: &req.Filename,
		Uploaded:    false,
		Status:      domain.FileStatusQueued,
		UserID:      userID,
		ProjectID:   project.ID,
	}
	if err := h.store.CreateUploadedFile(c.Request.Context(), &file); err != nil {
		h.logger.Error("Failed to create uploaded file record", slog.String("error", err.Error()))
		c.JSON(http.StatusInternalServerError, gin.H{
			"error": "Failed to create upload record",
		})
		return
	}

	uploadURL, err := h.objects.PresignPut(c.Request.Context(), key)
	if err != nil {
		h.logger.Error("Failed to presign upload URL",
			slog.String("key", key),
			slog.String("error", err.Error()),
		)
		c.JSON(http.StatusInternalServerError, gin.H{
			"error": "Failed to create upload URL",
		})
		return
	}

	h.logger.Info("Upload URL issued",
		slog.String("user_id", userID),
		slog.String("project_id", project.ID),
		slog.String("s3_key", key),
	)

	c.JSON(http.StatusOK, dto.CreateUploadResponse{
		ProjectID: project.ID,
		FileID:    file.ID,
		S3Key:     key,
		UploadURL: uploadURL,
	})
}
