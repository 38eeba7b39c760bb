package fetcher

import (
	"net/http"
	"time"

	"driftwatch/internal/logger"
)

// loggingRoundTripper wraps an underlying transport and emits one debug line
// per request and response, so every redirect hop shows up with its latency.
type loggingRoundTripper struct {
	base http.RoundTripper
	log  *logger.Logger
}

func (t *loggingRoundTripper) RoundTrip(req *http.Request) (*http.Response, error) {
	start := time.Now()
	t.log.Debug().Str("method", req.Method).Str("url", req.URL.String()).Msg("http request")

	resp, err := t.base.RoundTrip(req)
	dur := time.Since(start).Truncate(time.Millisecond)
	if err != nil {
		t.log.Debug().Str("url", req.URL.String()).Dur("elapsed", dur).Err(err).Msg("http error")
		return resp, err
	}
	t.log.Debug().
		Str("url", req.URL.String()).
		Int("status", resp.StatusCode).
		Str("status_text", http.StatusText(resp.StatusCode)).
		Dur("elapsed", dur).
		Msg("http response")
	return resp, err
}
