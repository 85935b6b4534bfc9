package api

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"

	"bedrock-gateway/internal/gateway"
	"bedrock-gateway/internal/json"
	log "bedrock-gateway/internal/logging"
)

const (
	wsWriteTimeout = 10 * time.Second

	wsTypeChunk = "stream_chunk"
	wsTypeEnd   = "stream_end"
	wsTypeError = "error"
)

// wsMessage is the JSON frame exchanged with websocket clients.
type wsMessage struct {
	ID      string               `json:"id"`
	Type    string               `json:"type"`
	Chunk   *gateway.StreamChunk `json:"chunk,omitempty"`
	Message string               `json:"message,omitempty"`
}

var upgrader = websocket.Upgrader{
	ReadBufferSize:  4096,
	WriteBufferSize: 4096,
	CheckOrigin:     func(*http.Request) bool { return true },
}

// wsStream upgrades the connection, reads one chat request frame, and relays
// the gateway's chunk stream as JSON frames until the terminal chunk.
func (s *Server) wsStream(c *gin.Context) {
	conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		log.WithError(err).Debug("ws: upgrade failed")
		return
	}
	defer func() {
		_ = conn.Close()
	}()

	_, raw, err := conn.ReadMessage()
	if err != nil {
		return
	}

	req, _, err := parseChatRequest(raw)
	if err != nil {
		writeWS(conn, wsMessage{Type: wsTypeError, Message: err.Error()})
		return
	}

	stats := newCallStats(req)
	stats.authMode = s.activeAuthMode()

	for chunk := range s.gw.Stream(c.Request.Context(), req) {
		stats.observe(chunk)

		if chunk.Type == gateway.ChunkTypeDone {
			writeWS(conn, wsMessage{ID: req.RequestID, Type: wsTypeEnd})
			break
		}
		ch := chunk
		if !writeWS(conn, wsMessage{ID: req.RequestID, Type: wsTypeChunk, Chunk: &ch}) {
			break
		}
		if chunk.Type == gateway.ChunkTypeError {
			break
		}
	}

	s.record(stats)
}

func writeWS(conn *websocket.Conn, msg wsMessage) bool {
	payload, err := json.Marshal(msg)
	if err != nil {
		return false
	}
	_ = conn.SetWriteDeadline(time.Now().Add(wsWriteTimeout))
	if err := conn.WriteMessage(websocket.TextMessage, payload); err != nil {
		log.WithError(err).Debug("ws: write failed")
		return false
	}
	return true
}
