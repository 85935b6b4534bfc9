// Package gateway normalizes "send a conversation, receive a token stream"
// across model backends that disagree on request shape, authentication, and
// streaming encoding. Callers always consume a chunk stream; failures arrive
// as error chunks, never as error values.
package gateway

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"

	"bedrock-gateway/internal/credentials"
	log "bedrock-gateway/internal/logging"
)

const (
	serviceName       = "bedrock"
	eventStreamAccept = "application/vnd.amazon.eventstream"

	maxErrorBodyBytes = 1 << 20
)

// Option customises Gateway construction.
type Option func(*Gateway)

// WithTransport replaces the production HTTP transport, typically with a
// test double.
func WithTransport(t TransportClient) Option {
	return func(g *Gateway) { g.transport = t }
}

// WithHost overrides the derived service host (for self-hosted or test
// endpoints). The region-derived default applies when empty.
func WithHost(host string) Option {
	return func(g *Gateway) { g.host = host }
}

// Gateway orchestrates shaping, signing, transport, and decoding for one
// streaming call at a time. Concurrent calls are fully independent; the only
// shared state is the read-only credential store.
type Gateway struct {
	creds     *credentials.Store
	transport TransportClient
	signer    *Signer
	host      string
}

// New constructs a gateway over the given credential store.
func New(store *credentials.Store, opts ...Option) *Gateway {
	g := &Gateway{
		creds:     store,
		transport: NewHTTPTransport("", 0),
		signer:    NewSigner(serviceName),
	}
	for _, opt := range opts {
		opt(g)
	}
	return g
}

func (g *Gateway) endpoint(region string) string {
	if g.host != "" {
		return g.host
	}
	return fmt.Sprintf("bedrock-runtime.%s.amazonaws.com", region)
}

// Stream runs one gateway call. The returned channel yields zero or more
// content chunks followed by exactly one terminal chunk (error or done) and
// is then closed. Cancelling ctx stops decoding and releases the underlying
// connection promptly.
func (g *Gateway) Stream(ctx context.Context, req Request) <-chan StreamChunk {
	out := make(chan StreamChunk, 8)
	go g.run(ctx, req, out)
	return out
}

func (g *Gateway) run(ctx context.Context, req Request, out chan<- StreamChunk) {
	defer close(out)

	send := func(c StreamChunk) bool {
		select {
		case out <- c:
			return true
		case <-ctx.Done():
			return false
		}
	}

	// Outer recovery boundary: nothing may escape the facade as a fault.
	defer func() {
		if r := recover(); r != nil {
			log.WithField("request_id", req.RequestID).Errorf("gateway: recovered from panic: %v", r)
			send(errorChunk(newError(ErrKindNetwork, "internal failure: %v", r)))
		}
	}()

	cred, ok := g.creds.Active()
	if !ok {
		send(errorChunk(newError(ErrKindAuth, "no credential configured")))
		return
	}

	payload, err := BuildVendorRequest(req.ModelID, req.Messages, req.Params)
	if err != nil {
		send(errorChunk(normalizeErr(err)))
		return
	}

	// The credential variant decides shaping endpoint, signing, and decode
	// strategy together; an unknown variant must not fall through to either.
	var fail *Error
	switch cred.Mode {
	case credentials.AuthModeSigning:
		fail = g.streamSigned(ctx, req, cred, payload, send)
	case credentials.AuthModeBearer:
		fail = g.streamBearer(ctx, req, cred, payload, send)
	default:
		fail = newError(ErrKindAuth, "unsupported credential mode %q", cred.Mode)
	}

	if fail != nil {
		send(errorChunk(fail))
		return
	}
	if ctx.Err() != nil {
		return
	}
	send(doneChunk())
}

// streamSigned issues the signed streaming invoke call and decodes the
// line-oriented response incrementally.
func (g *Gateway) streamSigned(ctx context.Context, req Request, cred credentials.Credential, payload []byte, send func(StreamChunk) bool) *Error {
	target := "https://" + g.endpoint(cred.RegionOrDefault()) +
		"/model/" + url.PathEscape(req.ModelID) + "/invoke-with-response-stream"

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, target, bytes.NewReader(payload))
	if err != nil {
		return normalizeErr(err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Accept", eventStreamAccept)
	g.signer.Sign(httpReq, payload, cred)

	resp, err := g.transport.Do(httpReq)
	if err != nil {
		return normalizeErr(err)
	}
	defer func() {
		if errClose := resp.Body.Close(); errClose != nil {
			log.WithError(errClose).Debug("gateway: close stream body")
		}
	}()

	if fail := checkStatus(resp); fail != nil {
		return fail
	}
	return decodeLineStream(ctx, resp.Body, send)
}

// streamBearer issues the bearer converse call, reads the single response
// document, and emits its normalized chunks as one batch.
func (g *Gateway) streamBearer(ctx context.Context, req Request, cred credentials.Credential, payload []byte, send func(StreamChunk) bool) *Error {
	target := "https://" + g.endpoint(cred.RegionOrDefault()) +
		"/model/" + url.PathEscape(req.ModelID) + "/converse"

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, target, bytes.NewReader(payload))
	if err != nil {
		return normalizeErr(err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Authorization", "Bearer "+cred.APIKey)

	resp, err := g.transport.Do(httpReq)
	if err != nil {
		return normalizeErr(err)
	}
	defer func() {
		if errClose := resp.Body.Close(); errClose != nil {
			log.WithError(errClose).Debug("gateway: close response body")
		}
	}()

	if fail := checkStatus(resp); fail != nil {
		return fail
	}

	doc, err := io.ReadAll(resp.Body)
	if err != nil {
		return newError(ErrKindNetwork, "read response body: %v", err)
	}

	for _, chunk := range decodeDocument(doc) {
		if chunk.Type == ChunkTypeError {
			return chunk.Err
		}
		if !send(chunk) {
			return nil
		}
	}
	return nil
}

func checkStatus(resp *http.Response) *Error {
	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		return nil
	}
	body, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBodyBytes))
	msg := vendorErrorMessage(body)
	if msg == "" {
		msg = fmt.Sprintf("backend returned status %d", resp.StatusCode)
	}
	return &Error{Kind: ErrKindAPI, Message: msg}
}
