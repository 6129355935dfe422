package handler

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/omraval18/nclip/internal/dispatch"
	"github.com/omraval18/nclip/internal/objectstore"
	"github.com/omraval18/nclip/internal/store"
)

// CreditLedger is the balance surface the API exposes to callers.
type CreditLedger interface {
	Balance(ctx context.Context, userID string) (int, error)
}

// Dependencies holds all dependencies needed by handlers
type Dependencies struct {
	Logger     *slog.Logger
	Store      *store.Store
	Ledger     CreditLedger
	Dispatcher *dispatch.Dispatcher
	Objects    *objectstore.Store
}

// ClipHandler handles upload, job submission and project HTTP requests
type ClipHandler struct {
	logger     *slog.Logger
	store      *store.Store
	ledger     CreditLedger
	dispatcher *dispatch.Dispatcher
	objects    *objectstore.Store
}

// NewClipHandler creates a new ClipHandler instance
func NewClipHandler(deps *Dependencies) *ClipHandler {
	return &ClipHandler{
		logger:     deps.Logger,
		store:      deps.Store,
		ledger:     deps.Ledger,
		dispatcher: deps.Dispatcher,
		objects:    deps.Objects,
	}
}

// requireUser reads the caller identity from X-User-ID. Session auth
// terminates at the gateway, which forwards the resolved user ID in that
// header. Writes a 401 and returns "" when the header is absent.
func requireUser(c *gin.Context) string {
	userID := c.GetHeader("X-User-ID")
	if userID == "" {
		c.JSON(http.StatusUnauthorized, gin.H{
			"error": "X-User-ID header is required",
		})
	}
	return userID
}
