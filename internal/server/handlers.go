package server

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/openorbit/agenthub/internal/common/cnst"
	"github.com/openorbit/agenthub/internal/gate"
)

type createSessionRequest struct {
	OwnerID string `json:"owner_id"`
}

type submitOperationRequest struct {
	Kind    string         `json:"kind" binding:"required"`
	Payload map[string]any `json:"payload"`
}

func (s *Server) handleCreateSession(c *gin.Context) {
	var req createSessionRequest
	if err := c.ShouldBindJSON(&req); err != nil && c.Request.ContentLength > 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body"})
		return
	}
	owner := s.ownerOf(c, req.OwnerID)

	sess := s.coordinator.CreateSession(c.Request.Context(), owner)
	c.JSON(http.StatusCreated, sess)
}

func (s *Server) handleListSessions(c *gin.Context) {
	if s.jwtService != nil {
		c.JSON(http.StatusOK, gin.H{"sessions": s.registry.ListOwned(c.GetString(ownerKey))})
		return
	}
	c.JSON(http.StatusOK, gin.H{"sessions": s.registry.List()})
}

func (s *Server) handleGetSession(c *gin.Context) {
	sess, err := s.registry.Get(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "session not found"})
		return
	}
	c.JSON(http.StatusOK, sess)
}

func (s *Server) handleDeleteSession(c *gin.Context) {
	id := c.Param("id")
	sess, err := s.registry.Get(id)
	if err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "session not found"})
		return
	}
	if s.jwtService != nil && sess.OwnerID != c.GetString(ownerKey) {
		c.JSON(http.StatusForbidden, gin.H{"error": "not the session owner"})
		return
	}

	if !s.coordinator.DeleteSession(c.Request.Context(), id) {
		c.JSON(http.StatusNotFound, gin.H{"error": "session not found"})
		return
	}
	c.Status(http.StatusNoContent)
}

// handleSubmitOperation accepts an operation into the session's queue
// and returns as soon as it is queued. Interrupts travel out-of-band:
// they pre-empt the running operation instead of waiting behind it.
func (s *Server) handleSubmitOperation(c *gin.Context) {
	id := c.Param("id")
	var req submitOperationRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body"})
		return
	}

	kind := gate.Kind(req.Kind)
	if kind == gate.KindInterrupt {
		if _, err := s.registry.Get(id); err != nil {
			c.JSON(http.StatusNotFound, gin.H{"error": "session not found"})
			return
		}
		c.JSON(http.StatusOK, gin.H{"interrupted": s.gate.Interrupt(id)})
		return
	}

	err := s.gate.Submit(id, &gate.Operation{Kind: kind, Payload: req.Payload})
	switch {
	case err == nil:
		c.JSON(http.StatusAccepted, gin.H{"accepted": true})
	case errors.Is(err, cnst.ErrSessionNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": "session not found"})
	case errors.Is(err, cnst.ErrSessionInactive):
		c.JSON(http.StatusGone, gin.H{"error": "session inactive"})
	case errors.Is(err, cnst.ErrQueueFull):
		c.JSON(http.StatusTooManyRequests, gin.H{"error": "operation queue full"})
	case errors.Is(err, cnst.ErrUnknownKind):
		c.JSON(http.StatusBadRequest, gin.H{"error": "unknown operation kind"})
	default:
		s.logger.Error("failed to submit operation",
			zap.String("session_id", id),
			zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal server error"})
	}
}
