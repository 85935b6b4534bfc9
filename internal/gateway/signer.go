package gateway

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"net/http"
	"sort"
	"strings"
	"time"

	"bedrock-gateway/internal/credentials"
)

const (
	signingAlgorithm = "AWS4-HMAC-SHA256"
	scopeTerminator  = "aws4_request"
)

// Signer derives a per-request signature from a signing credential using the
// canonical-request / scope / keyed-hash chain protocol. Region comes from
// the credential; the service name is a parameter of the scope, never
// hardcoded into the chain.
type Signer struct {
	service string
	now     func() time.Time
}

// NewSigner creates a signer for the given service identity.
func NewSigner(service string) *Signer {
	return &Signer{service: service, now: time.Now}
}

// Sign canonicalizes req, derives the signing key, and injects the
// Authorization and X-Amz-Date headers (plus the session token header when
// present). Identical inputs under a fixed timestamp always produce an
// identical signature.
func (s *Signer) Sign(req *http.Request, body []byte, cred credentials.Credential) {
	s.signAt(req, body, cred, s.now().UTC())
}

func (s *Signer) signAt(req *http.Request, body []byte, cred credentials.Credential, now time.Time) {
	amzDate := now.Format("20060102T150405Z")
	dateStamp := now.Format("20060102")
	region := cred.RegionOrDefault()

	req.Header.Set("X-Amz-Date", amzDate)
	if cred.SessionToken != "" {
		req.Header.Set("X-Amz-Security-Token", cred.SessionToken)
	}

	payloadHash := hexSHA256(body)
	canonicalHeaders, signedHeaders := canonicalizeHeaders(req)

	canonicalRequest := strings.Join([]string{
		req.Method,
		canonicalURI(req),
		req.URL.RawQuery,
		canonicalHeaders,
		signedHeaders,
		payloadHash,
	}, "\n")

	scope := strings.Join([]string{dateStamp, region, s.service, scopeTerminator}, "/")
	stringToSign := strings.Join([]string{
		signingAlgorithm,
		amzDate,
		scope,
		hexSHA256([]byte(canonicalRequest)),
	}, "\n")

	key := deriveKey(cred.SecretAccessKey, dateStamp, region, s.service)
	signature := hex.EncodeToString(hmacSHA256(key, stringToSign))

	req.Header.Set("Authorization", signingAlgorithm+
		" Credential="+cred.AccessKeyID+"/"+scope+
		", SignedHeaders="+signedHeaders+
		", Signature="+signature)
}

func canonicalURI(req *http.Request) string {
	if req.URL.Path == "" {
		return "/"
	}
	return req.URL.EscapedPath()
}

// canonicalizeHeaders serializes the host header plus every set header into
// the sorted lowercase form the signature is computed over.
func canonicalizeHeaders(req *http.Request) (canonical string, signed string) {
	headers := map[string]string{
		"host": req.Host,
	}
	if headers["host"] == "" {
		headers["host"] = req.URL.Host
	}
	for name, values := range req.Header {
		headers[strings.ToLower(name)] = strings.TrimSpace(strings.Join(values, ","))
	}

	names := make([]string, 0, len(headers))
	for name := range headers {
		names = append(names, name)
	}
	sort.Strings(names)

	var b strings.Builder
	for _, name := range names {
		b.WriteString(name)
		b.WriteString(":")
		b.WriteString(headers[name])
		b.WriteString("\n")
	}
	return b.String(), strings.Join(names, ";")
}

// deriveKey runs the fixed-depth keyed-hash chain seeded by the secret key
// and the scope components.
func deriveKey(secret, dateStamp, region, service string) []byte {
	kDate := hmacSHA256([]byte("AWS4"+secret), dateStamp)
	kRegion := hmacSHA256(kDate, region)
	kService := hmacSHA256(kRegion, service)
	return hmacSHA256(kService, scopeTerminator)
}

func hmacSHA256(key []byte, data string) []byte {
	mac := hmac.New(sha256.New, key)
	mac.Write([]byte(data))
	return mac.Sum(nil)
}

func hexSHA256(data []byte) string {
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:])
}
