// SPDX-FileCopyrightText: 2025 Deutsche Telekom AG
//
// SPDX-License-Identifier: Apache-2.0

package client

import (
	"bytes"
	"context"
	"crypto/tls"
	"crypto/x509"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"path"
	"time"

	"go.uber.org/zap"

	"github.com/telekom/reauth/pkg/diagnostics"
	"github.com/telekom/reauth/pkg/metrics"
)

const (
	defaultTimeout        = 30 * time.Second
	defaultRefreshTimeout = 30 * time.Second
)

var errRefreshAborted = errors.New("refresh aborted")

// CredentialStore provides the access token attached to requests and
// mints a new one on demand. Refresh reports ok=false when there is no
// valid session to refresh.
type CredentialStore interface {
	TokenSource
	Refresh(ctx context.Context) (token string, ok bool, err error)
}

// Doer sends a single HTTP request.
type Doer interface {
	Do(req *http.Request) (*http.Response, error)
}

// Client sends requests with the store's bearer token, refreshes the
// credential once per round of concurrent 401s and replays the failed
// requests with the new token.
type Client struct {
	baseURL        *url.URL
	http           Doer
	store          CredentialStore
	coord          *Coordinator
	sink           diagnostics.Sink
	log            *zap.SugaredLogger
	userAgent      string
	timeout        time.Duration
	refreshTimeout time.Duration
	tlsConfig      *tls.Config
}

type Option func(*Client) error

func New(opts ...Option) (*Client, error) {
	c := &Client{
		coord:          NewCoordinator(),
		sink:           diagnostics.Nop{},
		log:            zap.NewNop().Sugar(),
		userAgent:      "reauth",
		timeout:        defaultTimeout,
		refreshTimeout: defaultRefreshTimeout,
	}
	for _, opt := range opts {
		if err := opt(c); err != nil {
			return nil, err
		}
	}
	if c.baseURL == nil {
		return nil, errors.New("server is required")
	}
	if c.store == nil {
		return nil, errors.New("credential store is required")
	}
	if c.http == nil {
		transport := http.DefaultTransport
		if c.tlsConfig != nil {
			transport = &http.Transport{TLSClientConfig: c.tlsConfig}
		}
		c.http = &http.Client{Transport: transport, Timeout: c.timeout}
	}
	return c, nil
}

func WithServer(server string) Option {
	return func(c *Client) error {
		if server == "" {
			return errors.New("server is required")
		}
		parsed, err := url.Parse(server)
		if err != nil {
			return fmt.Errorf("invalid server: %w", err)
		}
		c.baseURL = parsed
		return nil
	}
}

func WithCredentialStore(store CredentialStore) Option {
	return func(c *Client) error {
		c.store = store
		return nil
	}
}

// WithHTTPClient replaces the transport. Timeout and TLS options are
// ignored when it is set.
func WithHTTPClient(d Doer) Option {
	return func(c *Client) error {
		if d == nil {
			return errors.New("http client is nil")
		}
		c.http = d
		return nil
	}
}

func WithUserAgent(userAgent string) Option {
	return func(c *Client) error {
		c.userAgent = userAgent
		return nil
	}
}

func WithTimeout(timeout time.Duration) Option {
	return func(c *Client) error {
		if timeout < 0 {
			return errors.New("timeout must not be negative")
		}
		c.timeout = timeout
		return nil
	}
}

// WithRefreshTimeout bounds a single refresh call. Zero disables the bound.
func WithRefreshTimeout(timeout time.Duration) Option {
	return func(c *Client) error {
		if timeout < 0 {
			return errors.New("refresh timeout must not be negative")
		}
		c.refreshTimeout = timeout
		return nil
	}
}

func WithDiagnostics(sink diagnostics.Sink) Option {
	return func(c *Client) error {
		if sink != nil {
			c.sink = sink
		}
		return nil
	}
}

func WithLogger(log *zap.SugaredLogger) Option {
	return func(c *Client) error {
		if log != nil {
			c.log = log
		}
		return nil
	}
}

func WithTLSConfig(caFile string, insecureSkipTLSVerify bool) Option {
	return func(c *Client) error {
		tlsConfig, err := loadTLSConfig(caFile, insecureSkipTLSVerify)
		if err != nil {
			return err
		}
		c.tlsConfig = tlsConfig
		return nil
	}
}

func loadTLSConfig(caFile string, insecure bool) (*tls.Config, error) {
	tlsConfig := &tls.Config{MinVersion: tls.VersionTLS12, InsecureSkipVerify: insecure} //nolint:gosec // opt-in via config
	if caFile == "" {
		return tlsConfig, nil
	}
	data, err := os.ReadFile(caFile)
	if err != nil {
		return nil, fmt.Errorf("failed to read CA file: %w", err)
	}
	pool := x509.NewCertPool()
	if ok := pool.AppendCertsFromPEM(data); !ok {
		return nil, errors.New("failed to parse CA file")
	}
	tlsConfig.RootCAs = pool
	return tlsConfig, nil
}

// IsRefreshing reports whether a credential refresh is in flight.
func (c *Client) IsRefreshing() bool { return c.coord.IsRefreshing() }

func (c *Client) RefreshState() RefreshState { return c.coord.State() }

// Waiting returns the number of requests queued behind the in-flight
// refresh.
func (c *Client) Waiting() int { return c.coord.Pending() }

// Do sends req and returns the response of the first successful attempt.
// A 401 triggers at most one credential refresh per round and one replay
// per request. Non-2xx responses are returned as *HTTPError, transport
// failures as *NetworkError and refresh failures as *RefreshError; all of
// them are reported to the diagnostics sink before being returned except
// refresh rejections delivered to queued callers, which are reported once
// by the caller that ran the refresh.
func (c *Client) Do(req *http.Request) (*http.Response, error) {
	rec, err := NewRecord(req)
	if err != nil {
		return nil, err
	}
	metrics.Requests.WithLabelValues(req.Method).Inc()

	resp, err := c.send(rec, "")
	if !Failed(resp, err) {
		return resp, nil
	}
	if Classify(resp, err, rec) != RetryableAuthFailure {
		return nil, c.fail(rec, resp, err)
	}
	discard(resp)
	return c.reauthenticate(rec)
}

func (c *Client) reauthenticate(rec Record) (*http.Response, error) {
	waiter, leader := c.coord.Join()
	if !leader {
		c.log.Debugw("Waiting for in-flight credential refresh", "correlationID", rec.CorrelationID())
		token, err := waiter.Wait(rec.Context())
		if err != nil {
			return nil, err
		}
		return c.replay(rec.Retried(), token)
	}

	rec = rec.Retried()
	token, err := c.refresh(rec)
	if err != nil {
		c.report(rec, err)
		return nil, err
	}
	return c.replay(rec, token)
}

// refresh runs the store refresh for the round opened by Join and settles
// it. The refresh is detached from the caller's cancellation because its
// outcome belongs to every queued caller; refreshTimeout bounds it.
func (c *Client) refresh(rec Record) (string, error) {
	settled := false
	defer func() {
		if !settled {
			c.coord.Settle("", &RefreshError{Err: errRefreshAborted})
		}
	}()

	ctx := context.WithoutCancel(rec.Context())
	if c.refreshTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.refreshTimeout)
		defer cancel()
	}

	start := time.Now()
	token, ok, err := c.store.Refresh(ctx)
	metrics.RefreshDuration.Observe(time.Since(start).Seconds())
	switch {
	case err != nil:
		err = &RefreshError{Err: err}
	case !ok || token == "":
		err = &RefreshError{Err: errNoToken}
	}

	if err != nil {
		metrics.RefreshTotal.WithLabelValues("failure").Inc()
		n := c.coord.Settle("", err)
		settled = true
		c.log.Warnw("Credential refresh failed", "error", err, "rejectedWaiters", n, "correlationID", rec.CorrelationID())
		return "", err
	}
	metrics.RefreshTotal.WithLabelValues("success").Inc()
	n := c.coord.Settle(token, nil)
	settled = true
	c.log.Infow("Credential refreshed", "resolvedWaiters", n, "duration", time.Since(start), "correlationID", rec.CorrelationID())
	return token, nil
}

// replay resends rec once. Its outcome is final.
func (c *Client) replay(rec Record, token string) (*http.Response, error) {
	resp, err := c.send(rec, token)
	if Failed(resp, err) {
		metrics.Replays.WithLabelValues("failure").Inc()
		return nil, c.fail(rec, resp, err)
	}
	metrics.Replays.WithLabelValues("success").Inc()
	return resp, nil
}

func (c *Client) send(rec Record, token string) (*http.Response, error) {
	req, err := rec.Request()
	if err != nil {
		return nil, err
	}
	if c.userAgent != "" && req.Header.Get("User-Agent") == "" {
		req.Header.Set("User-Agent", c.userAgent)
	}
	Authenticate(req, c.store)
	if token != "" {
		setBearer(req, token)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		c.log.Debugw("Request failed", "method", req.Method, "url", req.URL.String(), "retried", rec.IsRetried(), "correlationID", rec.CorrelationID(), "error", err)
		return nil, err
	}
	c.log.Debugw("Request completed", "method", req.Method, "url", req.URL.String(), "status", resp.StatusCode, "retried", rec.IsRetried(), "correlationID", rec.CorrelationID())
	return resp, nil
}

// fail turns a failed attempt into the caller's error and reports it.
func (c *Client) fail(rec Record, resp *http.Response, err error) error {
	if err == nil && resp != nil {
		err = decodeError(resp)
		_ = resp.Body.Close()
	} else {
		discard(resp)
		err = &NetworkError{Err: err}
	}
	c.report(rec, err)
	return err
}

func (c *Client) report(rec Record, err error) {
	kind := Kind(err)
	metrics.RequestErrors.WithLabelValues(kind).Inc()
	fields := diagnostics.Fields{
		"error":         err.Error(),
		"kind":          kind,
		"method":        rec.Method(),
		"url":           rec.URL(),
		"correlationID": rec.CorrelationID(),
	}
	var httpErr *HTTPError
	if errors.As(err, &httpErr) {
		fields["status"] = httpErr.StatusCode
	}
	diagnostics.SafeReport(c.sink, diagnostics.SeverityError, UserMessage(err), fields)
}

func discard(resp *http.Response) {
	if resp == nil || resp.Body == nil {
		return
	}
	_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, maxErrorBody))
	_ = resp.Body.Close()
}

// NewRequest builds a request for endpoint relative to the server.
func (c *Client) NewRequest(ctx context.Context, method, endpoint string, body io.Reader) (*http.Request, error) {
	fullURL := *c.baseURL
	parsedEndpoint, err := url.Parse(endpoint)
	if err != nil {
		return nil, fmt.Errorf("invalid endpoint: %w", err)
	}
	if parsedEndpoint.IsAbs() {
		fullURL = *parsedEndpoint
	} else {
		fullURL.Path = path.Join("/", fullURL.Path, parsedEndpoint.Path)
		fullURL.RawQuery = parsedEndpoint.RawQuery
	}
	return http.NewRequestWithContext(ctx, method, fullURL.String(), body)
}

// DoJSON sends body as JSON and decodes a successful response into out.
func (c *Client) DoJSON(ctx context.Context, method, endpoint string, body any, out any) error {
	var payload io.Reader
	if body != nil {
		bytesBody, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("failed to marshal request: %w", err)
		}
		payload = bytes.NewReader(bytesBody)
	}

	req, err := c.NewRequest(ctx, method, endpoint, payload)
	if err != nil {
		return err
	}
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.Do(req)
	if err != nil {
		return err
	}
	defer func() {
		_ = resp.Body.Close()
	}()
	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil && !errors.Is(err, io.EOF) {
		return fmt.Errorf("failed to decode response: %w", err)
	}
	return nil
}

func (c *Client) Get(ctx context.Context, endpoint string, out any) error {
	return c.DoJSON(ctx, http.MethodGet, endpoint, nil, out)
}

func (c *Client) Post(ctx context.Context, endpoint string, body, out any) error {
	return c.DoJSON(ctx, http.MethodPost, endpoint, body, out)
}
