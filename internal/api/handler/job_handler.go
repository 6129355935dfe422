package handler

import (
	"errors"
	"log/slog"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/omraval18/nclip/internal/api/dto"
	"github.com/omraval18/nclip/internal/domain"
)

// SubmitClipJob handles POST /api/v1/jobs
// Admits a clip-extraction job: ownership check, credit reservation, then
// enqueue. The debit happens here synchronously; processing is asynchronous
// and the client polls the project file status for progress.
func (h *ClipHandler) SubmitClipJob(c *gin.Context) {
	userID := requireUser(c)
	if userID == "" {
		return
	}

	var req dto.SubmitClipJobRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.logger.Error("Invalid request body", slog.String("error", err.Error()))
		c.JSON(http.StatusBadRequest, gin.H{
			"error": "Invalid request body",
		})
		return
	}

	if _, err := h.store.GetOwnedProject(c.Request.Context(), req.ProjectID, userID); err != nil {
		if errors.Is(err, domain.ErrProjectNotFound) {
			c.JSON(http.StatusNotFound, gin.H{
				"error": "Project not found",
			})
			return
		}
		h.logger.Error("Failed to look up project", slog.String("error", err.Error()))
		c.JSON(http.StatusInternalServerError, gin.H{
			"error": "Failed to submit job",
		})
		return
	}

	receipt, err := h.dispatcher.Submit(c.Request.Context(), domain.JobRequest{
		UserID:    userID,
		SourceKey: req.S3Key,
		MaxClips:  req.MaxClips,
		ProjectID: req.ProjectID,
	})
	if err != nil {
		switch {
		case errors.Is(err, domain.ErrUserNotFound):
			c.JSON(http.StatusNotFound, gin.H{
				"error": "User not found",
			})
		case errors.Is(err, domain.ErrInsufficientCredit):
			c.JSON(http.StatusForbidden, gin.H{
				"error": "Insufficient credits",
				"code":  "INSUFFICIENT_CREDITS",
			})
		case errors.Is(err, domain.ErrInvalidRequest):
			c.JSON(http.StatusBadRequest, gin.H{
				"error": err.Error(),
			})
		default:
			h.logger.Error("Failed to submit job", slog.String("error", err.Error()))
			c.JSON(http.StatusInternalServerError, gin.H{
				"error": "Failed to submit job",
			})
		}
		return
	}

	c.JSON(http.StatusOK, dto.SubmitClipJobResponse{
		Accepted:   true,
		InstanceID: receipt.InstanceID,
		Balance:    receipt.Balance,
	})
}
