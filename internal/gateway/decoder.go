package gateway

import (
	"bufio"
	"bytes"
	"context"
	"io"
	"strings"

	"github.com/tidwall/gjson"

	log "bedrock-gateway/internal/logging"
)

const (
	scannerBufferSize = 64 * 1024
	maxStreamBuffer   = 10 * 1024 * 1024
)

var (
	dataTag    = []byte("data:")
	eventTag   = []byte("event:")
	doneMarker = []byte("[DONE]")
)

// deltaPaths are the JSON paths a streamed fragment's text may live under,
// one per vendor family, tried in order.
var deltaPaths = []string{
	"delta.text",
	"outputText",
	"generation",
	"text",
	"completion",
	"choices.0.delta.content",
}

func extractDelta(payload []byte) string {
	parsed := gjson.ParseBytes(payload)
	for _, path := range deltaPaths {
		if v := parsed.Get(path); v.Exists() {
			return v.String()
		}
	}
	return ""
}

// decodeLineStream consumes a line-oriented event stream (the signing path
// response encoding) and emits one content chunk per decoded fragment.
//
// Fragments that fail to parse are skipped, not fatal: the stream favors
// availability of subsequent valid chunks over strict correctness of every
// line. Only a transport read failure is an error.
//
// send reports false when the consumer stopped listening; decoding ends
// immediately in that case. The caller owns closing the body.
func decodeLineStream(ctx context.Context, body io.Reader, send func(StreamChunk) bool) *Error {
	scanner := bufio.NewScanner(body)
	scanner.Buffer(make([]byte, scannerBufferSize), maxStreamBuffer)

	for scanner.Scan() {
		select {
		case <-ctx.Done():
			return nil
		default:
		}

		line := bytes.TrimSpace(scanner.Bytes())
		if len(line) == 0 {
			continue
		}

		if bytes.Equal(line, doneMarker) {
			return nil
		}

		if bytes.HasPrefix(line, dataTag) {
			payload := bytes.TrimSpace(line[len(dataTag):])
			if bytes.Equal(payload, doneMarker) {
				return nil
			}
			if !gjson.ValidBytes(payload) {
				log.Debugf("stream decode: skipping malformed payload (%d bytes)", len(payload))
				continue
			}
			if text := extractDelta(payload); text != "" {
				if !send(contentChunk(text)) {
					return nil
				}
			}
			continue
		}

		if bytes.HasPrefix(line, eventTag) {
			name := string(bytes.TrimSpace(line[len(eventTag):]))
			if name == "completion" || name == "done" {
				return nil
			}
			continue
		}
	}

	if err := scanner.Err(); err != nil {
		return newError(ErrKindNetwork, "stream read failed: %v", err)
	}
	return nil
}

// decodeDocument consumes the single aggregated JSON document of the bearer
// path. A success shape yields exactly one content chunk, an error shape
// exactly one api_error chunk, and a document matching neither yields zero
// chunks; callers must tolerate an empty stream as a valid outcome.
func decodeDocument(body []byte) []StreamChunk {
	if !gjson.ValidBytes(body) {
		return []StreamChunk{errorChunk(newError(ErrKindParse, "response is not a parseable document"))}
	}

	parsed := gjson.ParseBytes(body)

	if text := parsed.Get("output.message.content.0.text"); text.Exists() {
		if s := text.String(); strings.TrimSpace(s) != "" {
			return []StreamChunk{contentChunk(s)}
		}
	}

	if errObj := parsed.Get("error"); errObj.Exists() {
		msg := errObj.Get("message").String()
		if msg == "" {
			msg = "backend reported an unspecified error"
		}
		return []StreamChunk{errorChunk(&Error{Kind: ErrKindAPI, Message: msg})}
	}

	return nil
}
