package api

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
)

const (
	writeWait  = 10 * time.Second
	pongWait   = 60 * time.Second
	pingPeriod = (pongWait * 9) / 10
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 4096,
	CheckOrigin: func(r *http.Request) bool {
		return true
	},
}

// handleStream pushes the current context of a symbol, then every new one
// as candles are applied. Slow clients miss intermediate contexts rather
// than stalling the engine.
func (s *Server) handleStream(c *gin.Context) {
	symbol := c.Param("symbol")
	updates, unsubscribe := s.engine.Subscribe(symbol, 32)
	defer unsubscribe()

	conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		s.logger.Warn().Err(err).Str("symbol", symbol).Msg("websocket upgrade failed")
		return
	}
	defer conn.Close()
	logger := s.logger.With().Str("symbol", symbol).Str("remote", c.ClientIP()).Logger()
	logger.Info().Msg("stream client connected")

	// the read side only handles control frames and notices disconnects
	closed := make(chan struct{})
	go func() {
		defer close(closed)
		conn.SetReadLimit(512)
		conn.SetReadDeadline(time.Now().Add(pongWait))
		conn.SetPongHandler(func(string) error {
			return conn.SetReadDeadline(time.Now().Add(pongWait))
		})
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	if sc, err := s.engine.Snapshot(symbol); err == nil {
		conn.SetWriteDeadline(time.Now().Add(writeWait))
		if err := conn.WriteJSON(sc); err != nil {
			return
		}
	}

	ticker := time.NewTicker(pingPeriod)
	defer ticker.Stop()
	for {
		select {
		case <-closed:
			logger.Info().Msg("stream client disconnected")
			return
		case sc, ok := <-updates:
			if !ok {
				return
			}
			conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := conn.WriteJSON(sc); err != nil {
				logger.Debug().Err(err).Msg("stream write failed")
				return
			}
		case <-ticker.C:
			conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
