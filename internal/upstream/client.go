// Package upstream implements the pooled HTTP client that dispatches a
// transformed request to a route's provider and returns the raw response for
// the pipeline to buffer or stream. Grounded on the teacher's
// proxy/handler.go transport construction (pooled http.Transport, dial/idle
// timeouts), generalized to the verify-TLS-keyed ClientPool section 3 and
// section 4.7 describe.
package upstream

import (
	"bytes"
	"context"
	"crypto/tls"
	"fmt"
	"io"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/llmgatewayd/llmgatewayd/internal/config"
	"github.com/llmgatewayd/llmgatewayd/internal/dialect"
	"github.com/llmgatewayd/llmgatewayd/internal/headers"
	"github.com/llmgatewayd/llmgatewayd/internal/retry"
)

const (
	maxIdleConns        = 100
	maxIdleConnsPerHost = 100
	dialTimeout         = 10 * time.Second
	idleConnTimeout     = 120 * time.Second
)

// Pool lazily builds and shares one *http.Client per verifyTLS bucket.
// Creation is safe under concurrent access; duplicate clients built by a
// racing goroutine are never retained, only the first stored one is used.
type Pool struct {
	mu      sync.Mutex
	clients map[bool]*http.Client
}

// NewPool returns an empty pool. Clients are created on first use and live
// until process exit.
func NewPool() *Pool {
	return &Pool{clients: make(map[bool]*http.Client)}
}

// Get returns the shared client for the given verifyTLS setting, creating it
// if this is the first request for that bucket.
func (p *Pool) Get(verifyTLS bool) *http.Client {
	p.mu.Lock()
	defer p.mu.Unlock()
	if c, ok := p.clients[verifyTLS]; ok {
		return c
	}
	c := &http.Client{
		Transport: &http.Transport{
			DialContext: (&net.Dialer{
				Timeout: dialTimeout,
			}).DialContext,
			MaxIdleConns:        maxIdleConns,
			MaxIdleConnsPerHost: maxIdleConnsPerHost,
			IdleConnTimeout:     idleConnTimeout,
			TLSClientConfig: &tls.Config{
				InsecureSkipVerify: !verifyTLS,
			},
		},
	}
	p.clients[verifyTLS] = c
	return c
}

// Client dispatches requests through a shared Pool.
type Client struct {
	Pool *Pool
}

// NewClient returns an upstream Client backed by pool.
func NewClient(pool *Pool) *Client {
	return &Client{Pool: pool}
}

// Send issues body as a POST to the provider's dialect-specific path, with
// the given outbound headers already rewritten and hop-by-hop filtered. The
// per-request deadline is the route's client timeout. Callers that need
// retry/backoff should wrap Send with retry.Do; Send itself classifies the
// response status so retryable upstream errors surface as a typed error the
// retry package recognizes.
func (c *Client) Send(ctx context.Context, r *config.Route, hdrs *headers.Set, body []byte) (*http.Response, error) {
	url := r.Provider.BaseURL + dialect.Path(r.Provider.Type)

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return nil, &retry.ConnectionError{Err: fmt.Errorf("building request: %w", err)}
	}
	req.Header = hdrs.ToHTTPHeader()

	client := c.Pool.Get(r.Client.VerifySSL)
	resp, err := client.Do(req)
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, &retry.TimeoutError{Err: ctxErr}
		}
		if ne, ok := err.(net.Error); ok && ne.Timeout() {
			return nil, &retry.TimeoutError{Err: err}
		}
		return nil, &retry.ConnectionError{Err: err}
	}

	if statusErr := retry.WrapStatus(resp.StatusCode); statusErr != nil {
		io.Copy(io.Discard, io.LimitReader(resp.Body, 1<<20))
		resp.Body.Close()
		return nil, statusErr
	}
	return resp, nil
}
