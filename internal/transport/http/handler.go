// Package http provides the orchestrator's HTTP transport.
package http

import (
	"errors"
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/deskflow/orchestrator/internal/broadcast"
	"github.com/deskflow/orchestrator/internal/domain"
	"github.com/deskflow/orchestrator/internal/orchestrator"
	"github.com/deskflow/orchestrator/internal/session"
)

// Handler holds the HTTP handlers for the orchestrator API.
type Handler struct {
	manager     *session.Manager
	orch        *orchestrator.Orchestrator
	broadcaster *broadcast.Broadcaster
}

// NewHandler creates a new handler.
func NewHandler(manager *session.Manager, orch *orchestrator.Orchestrator, bc *broadcast.Broadcaster) *Handler {
	return &Handler{
		manager:     manager,
		orch:        orch,
		broadcaster: bc,
	}
}

// RegisterRoutes registers the API routes.
func (h *Handler) RegisterRoutes(e *echo.Echo) {
	e.POST("/v1/signals", h.PostSignal)
	e.GET("/v1/session", h.GetSession)
	e.POST("/v1/channels/:channel_id/messages", h.PostMessage)
	e.POST("/v1/channels/:channel_id/commit", h.PostCommit)
	e.GET("/v1/channels/:channel_id", h.GetChannel)
	e.GET("/v1/channels/:channel_id/events", h.StreamEvents)
	e.DELETE("/v1/channels/:channel_id", h.DeleteChannel)
}

// PostSignal accepts a login/logout signal from a detector.
// POST /v1/signals
func (h *Handler) PostSignal(c echo.Context) error {
	var signal domain.Signal
	if err := c.Bind(&signal); err != nil {
		return c.JSON(http.StatusBadRequest, map[string]string{"error": "invalid signal body"})
	}
	if signal.Kind != domain.SignalLogin && signal.Kind != domain.SignalLogout {
		return c.JSON(http.StatusBadRequest, map[string]string{"error": "kind must be LOGIN or LOGOUT"})
	}
	if signal.Source == "" {
		signal.Source = "cookie"
	}

	if err := h.manager.OnIdentitySignal(c.Request().Context(), signal); err != nil {
		return c.JSON(http.StatusInternalServerError, map[string]string{"error": err.Error()})
	}
	return c.JSON(http.StatusAccepted, map[string]string{"status": "accepted"})
}

// GetSession returns the live session, if any.
// GET /v1/session
func (h *Handler) GetSession(c echo.Context) error {
	live := h.manager.LiveSession()
	if live == nil {
		return c.JSON(http.StatusNotFound, map[string]string{"error": "no live session"})
	}
	return c.JSON(http.StatusOK, live)
}

type postMessageRequest struct {
	Content string `json:"content"`
}

// PostMessage processes one user turn on a channel.
// POST /v1/channels/:channel_id/messages
func (h *Handler) PostMessage(c echo.Context) error {
	channelID := c.Param("channel_id")

	var req postMessageRequest
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, map[string]string{"error": "invalid message body"})
	}
	if req.Content == "" {
		return c.JSON(http.StatusBadRequest, map[string]string{"error": "content is required"})
	}

	result, err := h.orch.HandleTurn(c.Request().Context(), channelID, req.Content)
	if err != nil {
		return h.errorJSON(c, err)
	}
	return c.JSON(http.StatusOK, result)
}

// PostCommit submits the drafted request. Issued by the UI only on an
// explicit user confirmation action.
// POST /v1/channels/:channel_id/commit
func (h *Handler) PostCommit(c echo.Context) error {
	channelID := c.Param("channel_id")

	var req domain.CommitRequest
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, map[string]string{"error": "invalid commit body"})
	}
	req.ChannelID = channelID
	if req.OfferingID == "" {
		return c.JSON(http.StatusBadRequest, map[string]string{"error": "offering_id is required"})
	}

	result, err := h.orch.Commit(c.Request().Context(), req)
	if err != nil {
		return h.errorJSON(c, err)
	}
	return c.JSON(http.StatusOK, result)
}

// GetChannel returns a snapshot of a channel's history and state.
// GET /v1/channels/:channel_id
func (h *Handler) GetChannel(c echo.Context) error {
	snapshot := h.orch.ChannelSnapshot(c.Param("channel_id"))
	if snapshot == nil {
		return c.JSON(http.StatusNotFound, map[string]string{"error": "channel not found"})
	}
	return c.JSON(http.StatusOK, snapshot)
}

// DeleteChannel discards a channel when its UI surface closes.
// DELETE /v1/channels/:channel_id
func (h *Handler) DeleteChannel(c echo.Context) error {
	h.orch.DiscardChannel(c.Param("channel_id"))
	return c.NoContent(http.StatusNoContent)
}

// errorJSON maps domain errors to HTTP statuses.
func (h *Handler) errorJSON(c echo.Context, err error) error {
	switch {
	case errors.Is(err, domain.ErrNoLiveSession):
		return c.JSON(http.StatusUnauthorized, map[string]string{"error": "no live session"})
	case errors.Is(err, domain.ErrCommitInFlight):
		return c.JSON(http.StatusConflict, map[string]string{"error": "commit already in flight"})
	default:
		return c.JSON(http.StatusInternalServerError, map[string]string{"error": err.Error()})
	}
}
