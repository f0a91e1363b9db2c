// Package httpclient builds tuned HTTP clients with bounded retries.
package httpclient

import (
	"crypto/tls"
	"io"
	"net"
	"net/http"
	"time"

	"github.com/m3rciful/surveybot/core/netutil"
)

const (
	defaultDialTimeout       = 5 * time.Second
	defaultTLSHandshake      = 5 * time.Second
	defaultIdleConnTimeout   = 30 * time.Second
	defaultResponseTimeout   = 5 * time.Second
	defaultClientTimeout     = 30 * time.Second
	defaultKeepAliveInterval = 30 * time.Second
	defaultRetryAttempts     = 3
	defaultRetryBackoff      = 2 * time.Second
)

// Options tunes the client. Zero values fall back to defaults.
type Options struct {
	Timeout         time.Duration
	ResponseTimeout time.Duration
	Retries         int
	RetryBackoff    time.Duration
	// IdempotentOnly restricts replays to GET/HEAD/OPTIONS and also retries
	// those on transient statuses (429, 502, 503, 504).
	IdempotentOnly bool
	// InsecureSkipVerify disables TLS certificate verification.
	InsecureSkipVerify bool
	// NoRetry disables the retry transport entirely.
	NoRetry bool
}

// New returns an HTTP client configured by opts.
func New(opts Options) *http.Client {
	if opts.Timeout <= 0 {
		opts.Timeout = defaultClientTimeout
	}
	if opts.ResponseTimeout <= 0 {
		opts.ResponseTimeout = defaultResponseTimeout
	}
	if opts.Retries <= 0 {
		opts.Retries = defaultRetryAttempts
	}
	if opts.RetryBackoff <= 0 {
		opts.RetryBackoff = defaultRetryBackoff
	}

	transport := &http.Transport{
		Proxy:                 http.ProxyFromEnvironment,
		DialContext:           (&net.Dialer{Timeout: defaultDialTimeout, KeepAlive: defaultKeepAliveInterval}).DialContext,
		ForceAttemptHTTP2:     true,
		MaxIdleConns:          100,
		MaxIdleConnsPerHost:   10,
		IdleConnTimeout:       defaultIdleConnTimeout,
		TLSHandshakeTimeout:   defaultTLSHandshake,
		ResponseHeaderTimeout: opts.ResponseTimeout,
		ExpectContinueTimeout: 1 * time.Second,
	}
	if opts.InsecureSkipVerify {
		transport.TLSClientConfig = &tls.Config{InsecureSkipVerify: true} //nolint:gosec // operator opt-in
	}

	var rt http.RoundTripper = transport
	if !opts.NoRetry {
		rt = &RetryTransport{
			Base:           transport,
			MaxRetries:     opts.Retries,
			Backoff:        opts.RetryBackoff,
			IdempotentOnly: opts.IdempotentOnly,
		}
	}

	return &http.Client{
		Timeout:   opts.Timeout,
		Transport: rt,
	}
}

// RetryTransport replays failed requests with linear backoff.
type RetryTransport struct {
	Base           http.RoundTripper
	MaxRetries     int
	Backoff        time.Duration
	IdempotentOnly bool
}

// RoundTrip implements http.RoundTripper.
func (t *RetryTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	base := t.Base
	if base == nil {
		base = http.DefaultTransport
	}
	if t.IdempotentOnly && !netutil.Idempotent(req.Method) {
		return base.RoundTrip(req)
	}

	attempts := t.MaxRetries + 1
	var lastErr error

	for attempt := 1; attempt <= attempts; attempt++ {
		currReq := req
		if attempt > 1 {
			currReq = req.Clone(req.Context())
			if req.GetBody != nil {
				body, err := req.GetBody()
				if err != nil {
					return nil, err
				}
				currReq.Body = body
			} else if req.Body != nil && req.Body != http.NoBody {
				return nil, lastErr
			}
		}

		resp, err := base.RoundTrip(currReq)
		if err == nil {
			if !t.IdempotentOnly || !netutil.RetryableStatus(resp.StatusCode) || attempt == attempts {
				return resp, nil
			}
			_, _ = io.Copy(io.Discard, resp.Body)
			_ = resp.Body.Close()
			lastErr = &StatusError{Code: resp.StatusCode}
		} else {
			lastErr = err
			if !netutil.ShouldRetry(err) || attempt == attempts {
				break
			}
		}

		delay := t.Backoff * time.Duration(attempt)
		if delay <= 0 {
			continue
		}
		timer := time.NewTimer(delay)
		select {
		case <-req.Context().Done():
			timer.Stop()
			return nil, req.Context().Err()
		case <-timer.C:
		}
	}

	return nil, lastErr
}

// StatusError records a retryable status that was exhausted without a response to return.
type StatusError struct {
	Code int
}

func (e *StatusError) Error() string {
	return "retryable status " + http.StatusText(e.Code)
}
