package handlers

import (
	"fmt"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	apperrors "coinfolio/internal/errors"
	"coinfolio/internal/logger"
	"coinfolio/internal/updates"
)

const defaultKeepAlive = 15 * time.Second

// UpdatesHandler streams profile change notifications as server-sent events.
type UpdatesHandler struct {
	hub       *updates.Hub
	keepAlive time.Duration
	log       *zap.SugaredLogger
}

// NewUpdatesHandler creates a new UpdatesHandler
func NewUpdatesHandler(hub *updates.Hub) *UpdatesHandler {
	return &UpdatesHandler{hub: hub, keepAlive: defaultKeepAlive, log: logger.Named("updates")}
}

// Stream holds the connection open and writes an event whenever the user's
// profile changes
// @Summary     Stream profile updates
// @Description Server-sent events; emits profile_update when balance, holdings or transactions change
// @Tags        updates
// @Produce     text/event-stream
// @Security    BearerAuth
// @Param       userId query string true "User ID; must match the token unless admin"
// @Success     200 {string} string "event stream"
// @Failure     401 {object} ErrorResponse "Unauthorized"
// @Failure     403 {object} ErrorResponse "Forbidden"
// @Router      /updates/stream [get]
func (h *UpdatesHandler) Stream(c *gin.Context) {
	callerID, err := getUserID(c)
	if err != nil {
		respondWithError(c, err)
		return
	}
	userID := c.Query("userId")
	if userID == "" {
		userID = callerID
	}
	if userID != callerID && !isAdmin(c) {
		respondWithError(c, apperrors.ErrForbidden)
		return
	}

	flusher, ok := c.Writer.(http.Flusher)
	if !ok {
		respondWithError(c, apperrors.WithMessage(apperrors.ErrInternalServer, "streaming not supported"))
		return
	}

	events, cancel := h.hub.Subscribe(userID)
	defer cancel()

	w := c.Writer
	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("X-Accel-Buffering", "no")
	w.WriteHeader(http.StatusOK)
	_, _ = fmt.Fprint(w, ": connected\n\n")
	flusher.Flush()

	h.log.Debugw("stream opened", "user_id", userID)
	defer h.log.Debugw("stream closed", "user_id", userID)

	ticker := time.NewTicker(h.keepAlive)
	defer ticker.Stop()

	ctx := c.Request.Context()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if _, err := fmt.Fprint(w, ": keep-alive\n\n"); err != nil {
				return
			}
			flusher.Flush()
		case e, ok := <-events:
			if !ok {
				return
			}
			if _, err := fmt.Fprintf(w, "event: %s\ndata: {\"user_id\":%q}\n\n", e.Name, e.UserID); err != nil {
				return
			}
			flusher.Flush()
		}
	}
}
