package http

import (
	"context"
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog/log"

	"github.com/dkeye/Huddle/internal/app/orch"
	"github.com/dkeye/Huddle/internal/core"
	"github.com/dkeye/Huddle/internal/domain"
)

// CallService is the coordinator surface the router drives.
type CallService interface {
	Join(ctx context.Context, room domain.RoomID, displayName string) error
	Leave(ctx context.Context) error
	SetMicEnabled(ctx context.Context, enabled bool) error
	SetVideoEnabled(ctx context.Context, enabled bool) error
	Snapshot() orch.Snapshot
	// Subscribe's channel starts with the current snapshot.
	Subscribe() (<-chan orch.Snapshot, func())
}

type JoinRequest struct {
	RoomID      string `json:"roomId"`
	DisplayName string `json:"displayName"`
}

type ToggleRequest struct {
	Enabled *bool `json:"enabled"`
}

type NameRequest struct {
	Name string `json:"name"`
}

type NameResponse struct {
	Name string `json:"name"`
}

type callHandlers struct {
	call    CallService
	names   core.NameStore
	limiter *JoinRateLimiter
}

func (h *callHandlers) join(c *gin.Context) {
	var req JoinRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid body"})
		return
	}
	room, err := domain.ParseRoomID(req.RoomID)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	name, err := domain.CleanDisplayName(req.DisplayName)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if !h.limiter.Allow(c.GetString("client_token")) {
		c.JSON(http.StatusTooManyRequests, gin.H{"error": "too many join attempts"})
		return
	}

	if err := h.names.Write(c.Request.Context(), core.DisplayNameKey, name); err != nil {
		log.Error().Err(err).Str("module", "adapters.http").Msg("store display name")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "could not save display name"})
		return
	}
	if err := h.call.Join(c.Request.Context(), room, name); err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusAccepted, h.call.Snapshot())
}

func (h *callHandlers) leave(c *gin.Context) {
	if err := h.call.Leave(c.Request.Context()); err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, h.call.Snapshot())
}

func (h *callHandlers) toggle(set func(context.Context, bool) error) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req ToggleRequest
		if err := c.ShouldBindJSON(&req); err != nil || req.Enabled == nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "missing enabled"})
			return
		}
		if err := set(c.Request.Context(), *req.Enabled); err != nil {
			writeError(c, err)
			return
		}
		c.JSON(http.StatusOK, h.call.Snapshot())
	}
}

func (h *callHandlers) snapshot(c *gin.Context) {
	c.JSON(http.StatusOK, h.call.Snapshot())
}

func (h *callHandlers) getName(c *gin.Context) {
	name, _, err := h.names.Read(c.Request.Context(), core.DisplayNameKey)
	if err != nil {
		log.Error().Err(err).Str("module", "adapters.http").Msg("read display name")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "could not read display name"})
		return
	}
	c.JSON(http.StatusOK, NameResponse{Name: name})
}

func (h *callHandlers) putName(c *gin.Context) {
	var req NameRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid body"})
		return
	}
	name, err := domain.CleanDisplayName(req.Name)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if err := h.names.Write(c.Request.Context(), core.DisplayNameKey, name); err != nil {
		log.Error().Err(err).Str("module", "adapters.http").Msg("store display name")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "could not save display name"})
		return
	}
	c.JSON(http.StatusOK, NameResponse{Name: name})
}

func writeError(c *gin.Context, err error) {
	status := http.StatusInternalServerError
	switch {
	case errors.Is(err, domain.ErrInvalidInput):
		status = http.StatusBadRequest
	case errors.Is(err, orch.ErrSessionActive), errors.Is(err, orch.ErrNoLocalTracks):
		status = http.StatusConflict
	case errors.Is(err, domain.ErrDevice):
		status = http.StatusUnprocessableEntity
	case errors.Is(err, orch.ErrClosed):
		status = http.StatusServiceUnavailable
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		status = http.StatusGatewayTimeout
	}
	if status == http.StatusInternalServerError {
		log.Error().Err(err).Str("module", "adapters.http").Str("path", c.FullPath()).Msg("request failed")
	}
	c.JSON(status, gin.H{"error": err.Error()})
}
