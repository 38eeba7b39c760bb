package fetcher

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"time"

	"driftwatch/internal/logger"
)

type Options struct {
	// RequestTimeout bounds one GET including the body read.
	RequestTimeout time.Duration
	// MaxRedirects is how many redirects to follow; 0 disables following.
	MaxRedirects int
	// MaxBodyBytes caps the body read; 0 means unlimited.
	MaxBodyBytes int64
	UserAgent    string
	Budget       *RequestBudget

	// Transport replaces the default transport (tests).
	Transport http.RoundTripper
}

type Fetcher struct {
	client    *http.Client
	budget    *RequestBudget
	userAgent string
	maxBody   int64
	log       *logger.Logger
}

// Result is the outcome of one fetch. Err == nil means the final response was
// 200 OK and Body holds the complete payload.
type Result struct {
	URL        string
	FinalURL   string
	StatusCode int
	Body       []byte
	Elapsed    time.Duration
	Err        error
}

func (r Result) OK() bool {
	return r.Err == nil
}

// Reason is the failure text recorded for an errored URL.
func (r Result) Reason() string {
	if r.Err == nil {
		return ""
	}
	return r.Err.Error()
}

func NewFetcher(opts Options) *Fetcher {
	timeout := opts.RequestTimeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}

	transport := opts.Transport
	if transport == nil {
		transport = &http.Transport{
			Proxy: http.ProxyFromEnvironment,
			DialContext: (&net.Dialer{
				Timeout:   minDuration(10*time.Second, timeout),
				KeepAlive: 30 * time.Second,
			}).DialContext,
			TLSHandshakeTimeout:   minDuration(10*time.Second, timeout),
			ResponseHeaderTimeout: timeout,
			ExpectContinueTimeout: 1 * time.Second,
			MaxIdleConns:          100,
			MaxIdleConnsPerHost:   10,
			IdleConnTimeout:       90 * time.Second,
		}
	}

	log := logger.Named("fetcher")
	transport = &loggingRoundTripper{base: transport, log: log}

	maxRedirects := opts.MaxRedirects
	client := &http.Client{
		Transport: transport,
		Timeout:   timeout,
		CheckRedirect: func(req *http.Request, via []*http.Request) error {
			if maxRedirects <= 0 {
				return http.ErrUseLastResponse
			}
			if len(via) > maxRedirects {
				return fmt.Errorf("stopped after %d redirects", maxRedirects)
			}
			setNoCacheHeaders(req)
			return nil
		},
	}

	budget := opts.Budget
	if budget == nil {
		budget = NewRequestBudget(0, 0)
	}

	return &Fetcher{
		client:    client,
		budget:    budget,
		userAgent: opts.UserAgent,
		maxBody:   opts.MaxBodyBytes,
		log:       log,
	}
}

func (f *Fetcher) Budget() *RequestBudget {
	return f.budget
}

// Fetch issues a single cache-bypassing GET. It never retries, and it never
// returns a Go error: every failure is carried on Result.Err.
func (f *Fetcher) Fetch(ctx context.Context, rawURL string) (res Result) {
	res = Result{URL: rawURL}
	if ctx == nil {
		res.Err = &TransportError{Err: errors.New("Fetch: nil context")}
		return res
	}
	if f == nil || f.client == nil {
		res.Err = &TransportError{Err: errors.New("Fetch: nil Fetcher (use NewFetcher)")}
		return res
	}

	if err := f.budget.Acquire(ctx); err != nil {
		res.Err = &TransportError{Err: err}
		return res
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		res.Err = &TransportError{Err: err}
		return res
	}
	setNoCacheHeaders(req)
	if f.userAgent != "" {
		req.Header.Set("User-Agent", f.userAgent)
	}

	start := time.Now()
	defer func() {
		res.Elapsed = time.Since(start)
		ev := f.log.Debug().Str("url", rawURL).Dur("elapsed", res.Elapsed)
		if res.StatusCode != 0 {
			ev = ev.Int("status", res.StatusCode)
		}
		if res.Err != nil {
			ev = ev.Str("reason", res.Reason())
		}
		ev.Msg("fetch finished")
	}()

	resp, err := f.client.Do(req)
	if err != nil {
		res.Err = &TransportError{Err: err}
		return res
	}
	defer resp.Body.Close()

	res.StatusCode = resp.StatusCode
	if resp.Request != nil && resp.Request.URL != nil {
		res.FinalURL = resp.Request.URL.String()
	}

	if resp.StatusCode != http.StatusOK {
		// Drain a little so the connection can be reused.
		_, _ = io.CopyN(io.Discard, resp.Body, 4096)
		res.Err = &StatusError{Code: resp.StatusCode}
		return res
	}

	body, err := f.readBody(resp.Body)
	if err != nil {
		res.Err = &TransportError{Err: err}
		return res
	}
	res.Body = body
	return res
}

func (f *Fetcher) readBody(r io.Reader) ([]byte, error) {
	if f.maxBody <= 0 {
		return io.ReadAll(r)
	}
	body, err := io.ReadAll(io.LimitReader(r, f.maxBody+1))
	if err != nil {
		return nil, err
	}
	if int64(len(body)) > f.maxBody {
		return nil, fmt.Errorf("response body exceeds %d bytes", f.maxBody)
	}
	return body, nil
}

func setNoCacheHeaders(req *http.Request) {
	req.Header.Set("Cache-Control", "no-cache")
	req.Header.Set("Pragma", "no-cache")
}

func minDuration(a, b time.Duration) time.Duration {
	if a < b {
		return a
	}
	return b
}
