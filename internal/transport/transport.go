// Package transport sends alert and contact requests to the alert-receiving
// service over HTTP.
package transport

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/mattjoyce/beacon/internal/signing"
)

// maxResponseBody caps how much of a reply body is kept for reporting.
const maxResponseBody = 64 << 10

// Request is one outgoing exchange.
type Request struct {
	Method      string
	URL         string
	ContentType string
	Body        []byte
}

// Response is what came back. Any status code is a response; only the
// absence of one is an error.
type Response struct {
	StatusCode int
	Body       string
}

// OK reports a 2xx status.
func (r Response) OK() bool { return r.StatusCode >= 200 && r.StatusCode < 300 }

// Transport performs exactly one request/response exchange. No retries.
type Transport interface {
	Do(ctx context.Context, req Request) (Response, error)
}

// HTTPTransport shares one http.Client across every call and signs bodies
// when a secret is set.
type HTTPTransport struct {
	client    *http.Client
	secret    string
	userAgent string
}

// NewHTTPTransport wraps client; nil gets a client with keep-alives and no
// overall timeout (callers bound each call with ctx).
func NewHTTPTransport(client *http.Client, secret string) *HTTPTransport {
	if client == nil {
		client = &http.Client{
			Transport: &http.Transport{
				Proxy:               http.ProxyFromEnvironment,
				MaxIdleConns:        4,
				IdleConnTimeout:     90 * time.Second,
				TLSHandshakeTimeout: 10 * time.Second,
			},
		}
	}
	return &HTTPTransport{client: client, secret: secret, userAgent: "beacon"}
}

func (t *HTTPTransport) Do(ctx context.Context, req Request) (Response, error) {
	method := req.Method
	if method == "" {
		method = http.MethodPost
	}
	hreq, err := http.NewRequestWithContext(ctx, method, req.URL, bytes.NewReader(req.Body))
	if err != nil {
		return Response{}, fmt.Errorf("build request: %w", err)
	}
	if req.ContentType != "" {
		hreq.Header.Set("Content-Type", req.ContentType)
	}
	hreq.Header.Set("User-Agent", t.userAgent)
	if t.secret != "" {
		hreq.Header.Set(signing.Header, signing.Sign(req.Body, t.secret))
	}

	resp, err := t.client.Do(hreq)
	if err != nil {
		return Response{}, err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBody))
	if err != nil {
		return Response{StatusCode: resp.StatusCode}, fmt.Errorf("read response: %w", err)
	}
	return Response{StatusCode: resp.StatusCode, Body: string(body)}, nil
}
