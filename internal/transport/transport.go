// Package transport implements the backend transport (C5): posts JSON
// envelopes to the search backend's update endpoint, with an optional
// single-slot background worker decoupling HTTP from enumeration, per
// spec.md §4.5 and the §9 redesign note (no OS fork; a bounded worker
// task instead).
package transport

import (
	"bytes"
	"compress/gzip"
	"context"
	"crypto/tls"
	"fmt"
	"io"
	"net/http"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/rajaro/RecordManager-Finna/internal/apperr"
)

// Config configures the backend HTTP transport, per spec.md §6's
// configuration surface.
type Config struct {
	UpdateURL             string
	Username              string
	Password              string
	Timeout               time.Duration // 0 = no per-call timeout, per spec default
	LongTimeout           time.Duration // used for commit/optimize/deleteDataSource
	Background            bool
	Compress              bool
	TLSInsecureSkipVerify bool
	UserAgent             string
}

// Client is an HTTP client to the search backend.
// Modeled on the teacher's ElasticsearchSink: a single reused client,
// fixed headers, optional basic auth, optional background worker — but
// issuing raw JSON POSTs shaped like spec.md §6 rather than the ES bulk
// API, since the wire protocol here is bespoke.
type Client struct {
	cfg    Config
	http   *http.Client
	logger *logrus.Logger

	mu       sync.Mutex
	inFlight sync.WaitGroup
	lastErr  error
}

// New builds a Client. The *http.Client is constructed eagerly but makes
// no network calls until Send/Commit/Optimize/DeleteByQuery is invoked.
func New(cfg Config, logger *logrus.Logger) *Client {
	transport := &http.Transport{
		TLSClientConfig: &tls.Config{InsecureSkipVerify: cfg.TLSInsecureSkipVerify},
	}
	return &Client{
		cfg:    cfg,
		http:   &http.Client{Transport: transport},
		logger: logger,
	}
}

// Await blocks until any in-flight background request has completed and
// returns its error, if any. The driver must call this before the next
// Send, before a final commit, and at flush() (spec.md §5).
func (c *Client) Await(ctx context.Context) error {
	done := make(chan struct{})
	go func() {
		c.inFlight.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-ctx.Done():
		return ctx.Err()
	}
	c.mu.Lock()
	err := c.lastErr
	c.lastErr = nil
	c.mu.Unlock()
	return err
}

// Send posts body to the update endpoint. When background transport is
// enabled, it awaits any prior in-flight request, then launches this one
// in a worker goroutine and returns immediately; a failure surfaces at the
// next Await/Send/Commit call, aborting the pipeline (spec.md §5, §7.4).
func (c *Client) Send(ctx context.Context, body []byte, longTimeout bool) error {
	if !c.cfg.Background {
		return c.post(ctx, body, longTimeout)
	}

	if err := c.Await(ctx); err != nil {
		return err
	}

	c.inFlight.Add(1)
	go func() {
		defer c.inFlight.Done()
		if err := c.post(context.Background(), body, longTimeout); err != nil {
			c.mu.Lock()
			c.lastErr = err
			c.mu.Unlock()
			if c.logger != nil {
				c.logger.WithError(err).Error("background transport worker failed, pipeline will abort")
			}
		}
	}()
	return nil
}

// Commit issues {"commit":{}} with the long timeout.
func (c *Client) Commit(ctx context.Context) error {
	return c.Send(ctx, []byte(`{"commit":{}}`), true)
}

// Optimize issues {"optimize":{}} with the long timeout, synchronously
// (spec.md §4.7 optimizeIndex never runs in background mode's fire-and-
// forget sense — it is an explicit operator action).
func (c *Client) Optimize(ctx context.Context) error {
	return c.post(ctx, []byte(`{"optimize":{}}`), true)
}

// DeleteByQuery issues {"delete":{"query":"<query>"}} with the long
// timeout, synchronously.
func (c *Client) DeleteByQuery(ctx context.Context, query string) error {
	body := fmt.Sprintf(`{"delete":{"query":%q}}`, query)
	return c.post(ctx, []byte(body), true)
}

func (c *Client) post(ctx context.Context, body []byte, longTimeout bool) error {
	timeout := c.cfg.Timeout
	if longTimeout {
		timeout = c.cfg.LongTimeout
	}

	reqCtx := ctx
	var cancel context.CancelFunc
	if timeout > 0 {
		reqCtx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}

	payload := body
	encoding := ""
	if c.cfg.Compress {
		compressed, err := gzipBytes(body)
		if err == nil {
			payload = compressed
			encoding = "gzip"
		}
	}

	req, err := http.NewRequestWithContext(reqCtx, http.MethodPost, c.cfg.UpdateURL, bytes.NewReader(payload))
	if err != nil {
		return apperr.Wrap(apperr.CodeTransport, apperr.SeverityFatal, "transport", "post", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if c.cfg.UserAgent != "" {
		req.Header.Set("User-Agent", c.cfg.UserAgent)
	}
	if encoding != "" {
		req.Header.Set("Content-Encoding", encoding)
	}
	if c.cfg.Username != "" {
		req.SetBasicAuth(c.cfg.Username, c.cfg.Password)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return apperr.Wrap(apperr.CodeTransport, apperr.SeverityFatal, "transport", "post", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		respBody, _ := io.ReadAll(resp.Body)
		msg := fmt.Sprintf("backend returned status %d: %s", resp.StatusCode, string(respBody))
		return apperr.New(apperr.CodeTransport, apperr.SeverityFatal, "transport", "post", msg)
	}
	return nil
}

func gzipBytes(in []byte) ([]byte, error) {
	var buf bytes.Buffer
	w := gzip.NewWriter(&buf)
	if _, err := w.Write(in); err != nil {
		return nil, err
	}
	if err := w.Close(); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}
