// File: internal/handler/http/me_handler.go
package http

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/jan-ru/cap-oclif-keycloack-sub000/internal/handler/http/middleware"
)

// MeHandler returns the caller's identity as attached by the
// authentication middleware.
type MeHandler struct {
	logger *zap.Logger
}

// NewMeHandler creates a MeHandler.
func NewMeHandler(logger *zap.Logger) *MeHandler {
	return &MeHandler{logger: logger.Named("me_handler")}
}

// Me handles GET /api/v1/me.
func (h *MeHandler) Me(c *gin.Context) {
	user, ok := middleware.UserFromContext(c)
	if !ok {
		// The route is behind the auth middleware, so a missing identity
		// means a wiring mistake, not a client error.
		RespondWithError(c, http.StatusInternalServerError, "Identity not available", "internal_error", h.logger)
		return
	}
	RespondWithData(c, http.StatusOK, user)
}
