package gateway

import (
	"context"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/andybalholm/brotli"
	"github.com/klauspost/compress/flate"
	"github.com/klauspost/compress/gzip"
	"github.com/klauspost/compress/zstd"
	"golang.org/x/net/proxy"

	log "bedrock-gateway/internal/logging"
)

// TransportClient is the external collaborator boundary: something able to
// issue one HTTP request and hand back the response. Timeouts live here and
// surface to the gateway as plain errors.
type TransportClient interface {
	Do(req *http.Request) (*http.Response, error)
}

// HTTPTransport is the production TransportClient. It supports HTTP and
// SOCKS5 proxies and transparently decompresses encoded response bodies.
type HTTPTransport struct {
	client *http.Client
}

// NewHTTPTransport builds a transport. proxyURL may be empty; timeout of
// zero means no overall deadline (streams can stay open indefinitely).
func NewHTTPTransport(proxyURL string, timeout time.Duration) *HTTPTransport {
	client := &http.Client{Timeout: timeout}
	if proxyURL != "" {
		applyProxy(client, proxyURL)
	}
	return &HTTPTransport{client: client}
}

func applyProxy(client *http.Client, rawURL string) {
	proxyURL, err := url.Parse(rawURL)
	if err != nil {
		log.WithError(err).Warnf("transport: ignoring invalid proxy url %q", rawURL)
		return
	}
	switch proxyURL.Scheme {
	case "socks5":
		var auth *proxy.Auth
		if proxyURL.User != nil {
			password, _ := proxyURL.User.Password()
			auth = &proxy.Auth{User: proxyURL.User.Username(), Password: password}
		}
		dialer, err := proxy.SOCKS5("tcp", proxyURL.Host, auth, proxy.Direct)
		if err != nil {
			log.WithError(err).Warn("transport: failed to create SOCKS5 dialer")
			return
		}
		client.Transport = &http.Transport{
			DialContext: func(_ context.Context, network, addr string) (net.Conn, error) {
				return dialer.Dial(network, addr)
			},
		}
	case "http", "https":
		client.Transport = &http.Transport{Proxy: http.ProxyURL(proxyURL)}
	default:
		log.Warnf("transport: unsupported proxy scheme %q", proxyURL.Scheme)
	}
}

// Do issues the request and wraps the body for decompression when the
// backend responded with a known Content-Encoding.
func (t *HTTPTransport) Do(req *http.Request) (*http.Response, error) {
	resp, err := t.client.Do(req)
	if err != nil {
		return nil, err
	}
	body, err := decodeResponseBody(resp.Body, resp.Header.Get("Content-Encoding"))
	if err != nil {
		return nil, err
	}
	resp.Body = body
	return resp, nil
}

// compositeReadCloser closes the decompressor and the underlying body in order.
type compositeReadCloser struct {
	io.Reader
	closers []func() error
}

func (c *compositeReadCloser) Close() error {
	var firstErr error
	for _, fn := range c.closers {
		if fn == nil {
			continue
		}
		if err := fn(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}

func decodeResponseBody(body io.ReadCloser, contentEncoding string) (io.ReadCloser, error) {
	if body == nil {
		return nil, fmt.Errorf("response body is nil")
	}
	if contentEncoding == "" {
		return body, nil
	}
	for _, raw := range strings.Split(contentEncoding, ",") {
		switch strings.TrimSpace(strings.ToLower(raw)) {
		case "", "identity":
			continue
		case "gzip":
			gr, err := gzip.NewReader(body)
			if err != nil {
				_ = body.Close()
				return nil, fmt.Errorf("gzip reader: %w", err)
			}
			return &compositeReadCloser{Reader: gr, closers: []func() error{gr.Close, body.Close}}, nil
		case "deflate":
			fr := flate.NewReader(body)
			return &compositeReadCloser{Reader: fr, closers: []func() error{fr.Close, body.Close}}, nil
		case "br":
			br := brotli.NewReader(body)
			return &compositeReadCloser{Reader: br, closers: []func() error{body.Close}}, nil
		case "zstd":
			zr, err := zstd.NewReader(body)
			if err != nil {
				_ = body.Close()
				return nil, fmt.Errorf("zstd reader: %w", err)
			}
			return &compositeReadCloser{Reader: zr, closers: []func() error{
				func() error { zr.Close(); return nil },
				body.Close,
			}}, nil
		}
	}
	return body, nil
}
