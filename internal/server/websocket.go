package server

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

const (
	wsPingInterval = 30 * time.Second
	wsPongWait     = 60 * time.Second
	wsWriteWait    = 10 * time.Second
)

// handleWebSocket streams the session's events over a WebSocket. The
// client side is read only for keepalive; any inbound data frames are
// discarded.
func (s *Server) handleWebSocket(c *gin.Context) {
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

	conn, err := s.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		s.logger.Error("failed to upgrade WebSocket connection", zap.Error(err))
		return
	}
	defer conn.Close()

	sub := s.bus.Subscribe(id)
	defer s.bus.Unsubscribe(id, sub)

	s.logger.Info("websocket subscriber connected",
		zap.String("session_id", id),
		zap.String("subscriber_id", sub.ID()))

	_ = conn.SetReadDeadline(time.Now().Add(wsPongWait))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(wsPongWait))
	})

	// the read loop only detects close and keeps pong handling alive
	closeCh := make(chan struct{})
	go func() {
		defer close(closeCh)
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
					s.logger.Debug("websocket read error",
						zap.String("subscriber_id", sub.ID()),
						zap.Error(err))
				}
				return
			}
		}
	}()

	ticker := time.NewTicker(wsPingInterval)
	defer ticker.Stop()

	for {
		select {
		case ev := <-sub.Events():
			_ = conn.SetWriteDeadline(time.Now().Add(wsWriteWait))
			if err := conn.WriteJSON(ev); err != nil {
				s.logger.Debug("failed to send websocket message",
					zap.String("subscriber_id", sub.ID()),
					zap.Error(err))
				return
			}
		case <-ticker.C:
			_ = conn.SetWriteDeadline(time.Now().Add(wsWriteWait))
			if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		case <-closeCh:
			return
		case <-s.shutdownCh:
			// deliver anything queued before the shutdown signal
			for {
				select {
				case ev := <-sub.Events():
					_ = conn.SetWriteDeadline(time.Now().Add(wsWriteWait))
					if err := conn.WriteJSON(ev); err != nil {
						return
					}
				default:
					_ = conn.WriteControl(websocket.CloseMessage,
						websocket.FormatCloseMessage(websocket.CloseGoingAway, "server shutdown"),
						time.Now().Add(wsWriteWait))
					return
				}
			}
		}
	}
}
