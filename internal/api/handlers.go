package api

import (
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/tidwall/gjson"
	"github.com/tidwall/sjson"

	"bedrock-gateway/internal/gateway"
	log "bedrock-gateway/internal/logging"
	"bedrock-gateway/internal/usage"
)

const maxRequestBody = 8 << 20

// chatCompletions runs one gateway call. With "stream": true (the default)
// chunks are relayed as SSE frames; otherwise content is aggregated into a
// single JSON response.
func (s *Server) chatCompletions(c *gin.Context) {
	raw, err := io.ReadAll(io.LimitReader(c.Request.Body, maxRequestBody))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": gin.H{"message": "failed to read request body"}})
		return
	}

	req, stream, err := parseChatRequest(raw)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": gin.H{"message": err.Error()}})
		return
	}

	if stream {
		s.streamResponse(c, req)
		return
	}
	s.aggregateResponse(c, req)
}

// parseChatRequest maps the inbound JSON onto a gateway request. Optional
// generation fields stay nil when absent so the shaper can omit them.
func parseChatRequest(raw []byte) (gateway.Request, bool, error) {
	if !gjson.ValidBytes(raw) {
		return gateway.Request{}, false, fmt.Errorf("request body is not valid JSON")
	}
	parsed := gjson.ParseBytes(raw)

	model := parsed.Get("model").String()
	if model == "" {
		return gateway.Request{}, false, fmt.Errorf("model is required")
	}

	req := gateway.Request{
		RequestID: uuid.NewString(),
		ModelID:   model,
	}

	for _, m := range parsed.Get("messages").Array() {
		role := gateway.Role(m.Get("role").String())
		content := m.Get("content")
		text := content.String()
		if content.IsArray() {
			text = ""
			for _, part := range content.Array() {
				if part.Get("type").String() == "text" {
					text += part.Get("text").String()
				}
			}
		}
		req.Messages = append(req.Messages, gateway.Message{Role: role, Content: text})
	}
	if len(req.Messages) == 0 {
		return gateway.Request{}, false, fmt.Errorf("messages must be non-empty")
	}

	req.Params.SystemPrompt = parsed.Get("system").String()
	if v := parsed.Get("temperature"); v.Exists() {
		f := v.Float()
		req.Params.Temperature = &f
	}
	if v := parsed.Get("top_p"); v.Exists() {
		f := v.Float()
		req.Params.TopP = &f
	}
	if v := parsed.Get("max_tokens"); v.Exists() {
		i := int(v.Int())
		req.Params.MaxTokens = &i
	}
	for _, stop := range parsed.Get("stop").Array() {
		req.Params.StopSequences = append(req.Params.StopSequences, stop.String())
	}

	stream := true
	if v := parsed.Get("stream"); v.Exists() {
		stream = v.Bool()
	}
	return req, stream, nil
}

func (s *Server) streamResponse(c *gin.Context, req gateway.Request) {
	c.Header("Content-Type", "text/event-stream")
	c.Header("Cache-Control", "no-cache")
	c.Header("Connection", "keep-alive")

	flusher, ok := c.Writer.(http.Flusher)
	if !ok {
		c.JSON(http.StatusInternalServerError, gin.H{"error": gin.H{"message": "streaming unsupported"}})
		return
	}

	stats := newCallStats(req)
	stats.authMode = s.activeAuthMode()
	ctx := c.Request.Context()

	for chunk := range s.gw.Stream(ctx, req) {
		stats.observe(chunk)

		if chunk.Type == gateway.ChunkTypeDone {
			fmt.Fprint(c.Writer, "data: [DONE]\n\n")
			flusher.Flush()
			break
		}

		frame := encodeChunkFrame(req.RequestID, chunk)
		fmt.Fprintf(c.Writer, "data: %s\n\n", frame)
		flusher.Flush()

		if chunk.Type == gateway.ChunkTypeError {
			break
		}
	}

	s.record(stats)
}

func (s *Server) aggregateResponse(c *gin.Context, req gateway.Request) {
	stats := newCallStats(req)
	stats.authMode = s.activeAuthMode()
	var text string
	var failure *gateway.Error

	for chunk := range s.gw.Stream(c.Request.Context(), req) {
		stats.observe(chunk)
		switch chunk.Type {
		case gateway.ChunkTypeContent:
			text += chunk.Text
		case gateway.ChunkTypeError:
			failure = chunk.Err
		}
	}
	s.record(stats)

	if failure != nil {
		c.JSON(statusForKind(failure.Kind), gin.H{
			"error": gin.H{"kind": failure.Kind, "message": failure.Message},
		})
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"id":      req.RequestID,
		"model":   req.ModelID,
		"content": text,
	})
}

// encodeChunkFrame builds the SSE frame payload with sjson so chunk text
// never needs manual escaping.
func encodeChunkFrame(requestID string, chunk gateway.StreamChunk) []byte {
	frame := []byte(`{}`)
	frame, _ = sjson.SetBytes(frame, "id", requestID)
	frame, _ = sjson.SetBytes(frame, "type", string(chunk.Type))
	if chunk.Type == gateway.ChunkTypeContent {
		frame, _ = sjson.SetBytes(frame, "text", chunk.Text)
	}
	if chunk.Err != nil {
		frame, _ = sjson.SetBytes(frame, "error.kind", string(chunk.Err.Kind))
		frame, _ = sjson.SetBytes(frame, "error.message", chunk.Err.Message)
	}
	return frame
}

func statusForKind(kind gateway.ErrorKind) int {
	switch kind {
	case gateway.ErrKindAuth:
		return http.StatusUnauthorized
	case gateway.ErrKindNetwork:
		return http.StatusGatewayTimeout
	default:
		return http.StatusBadGateway
	}
}

// callStats accumulates what the usage persister records per call.
type callStats struct {
	req       gateway.Request
	start     time.Time
	chunks    int64
	bytes     int64
	failed    bool
	errorKind string
	authMode  string
}

func newCallStats(req gateway.Request) *callStats {
	return &callStats{req: req, start: time.Now()}
}

func (cs *callStats) observe(chunk gateway.StreamChunk) {
	switch chunk.Type {
	case gateway.ChunkTypeContent:
		cs.chunks++
		cs.bytes += int64(len(chunk.Text))
	case gateway.ChunkTypeError:
		cs.failed = true
		if chunk.Err != nil {
			cs.errorKind = string(chunk.Err.Kind)
		}
	}
}

func (s *Server) activeAuthMode() string {
	if cred, ok := s.creds.Active(); ok {
		return string(cred.Mode)
	}
	return ""
}

func (s *Server) record(cs *callStats) {
	if s.persister == nil {
		return
	}
	s.persister.Add(usage.Record{
		RequestID:   cs.req.RequestID,
		Model:       cs.req.ModelID,
		AuthMode:    cs.authMode,
		RequestedAt: cs.start,
		Failed:      cs.failed,
		ErrorKind:   cs.errorKind,
		Chunks:      cs.chunks,
		Bytes:       cs.bytes,
		DurationMS:  time.Since(cs.start).Milliseconds(),
	})
	if cs.failed {
		log.WithFields(log.Fields{
			"request_id": cs.req.RequestID,
			"model":      cs.req.ModelID,
			"error_kind": cs.errorKind,
		}).Warn("api: call failed")
	}
}
