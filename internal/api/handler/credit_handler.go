package handler

import (
	"errors"
	"log/slog"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/omraval18/nclip/internal/domain"
)

// GetCreditBalance handles GET /api/v1/credits
// Returns the caller's current credit balance, so clients can show what a
// clip job will cost against.
func (h *ClipHandler) GetCreditBalance(c *gin.Context) {
	userID := requireUser(c)
	if userID == "" {
		return
	}

	balance, err := h.ledger.Balance(c.Request.Context(), userID)
	if err != nil {
		if errors.Is(err, domain.ErrUserNotFound) {
			c.JSON(http.StatusNotFound, gin.H{
				"error": "User not found",
			})
			return
		}
		h.logger.Error("Failed to read credit balance", slog.String("error", err.Error()))
		c.JSON(http.StatusInternalServerError, gin.H{
			"error": "Failed to read credit balance",
		})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"user_id": userID,
		"balance": balance,
	})
}
