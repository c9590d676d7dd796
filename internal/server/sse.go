package server

import (
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/openorbit/agenthub/internal/event"
)

// handleSSE streams the session's events over Server-Sent Events. The
// subscription begins at connect time; earlier events are not replayed.
func (s *Server) handleSSE(c *gin.Context) {
	id := c.Param("id")
	sess, err := s.registry.Get(id)
	if err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "session not found"})
		return
	}
	if !sess.Active {
		c.JSON(http.StatusGone, gin.H{"error": "session inactive"})
		return
	}

	c.Writer.Header().Set("Content-Type", "text/event-stream")
	c.Writer.Header().Set("Cache-Control", "no-cache, no-transform")
	c.Writer.Header().Set("Connection", "keep-alive")

	sub := s.bus.Subscribe(id)
	defer s.bus.Unsubscribe(id, sub)

	s.logger.Info("sse subscriber connected",
		zap.String("session_id", id),
		zap.String("subscriber_id", sub.ID()))

	_, err = fmt.Fprintf(c.Writer, "event: connected\ndata: {\"session_id\":%q,\"subscriber_id\":%q}\n\n", id, sub.ID())
	if err != nil {
		return
	}
	c.Writer.Flush()

	// Main event loop
	for {
		select {
		case ev := <-sub.Events():
			s.writeSSE(c, ev)
		case <-c.Request.Context().Done():
			return
		case <-s.shutdownCh:
			// flush events queued before the shutdown signal, the
			// shutdown warning among them
			for {
				select {
				case ev := <-sub.Events():
					s.writeSSE(c, ev)
				default:
					return
				}
			}
		}
	}
}

func (s *Server) writeSSE(c *gin.Context, ev *event.Event) {
	data, err := json.Marshal(ev)
	if err != nil {
		s.logger.Error("failed to marshal event", zap.Error(err))
		return
	}
	if _, err := fmt.Fprintf(c.Writer, "event: %s\ndata: %s\n\n", ev.Type, data); err != nil {
		s.logger.Error("failed to send SSE message", zap.Error(err))
		return
	}
	c.Writer.Flush()
}
