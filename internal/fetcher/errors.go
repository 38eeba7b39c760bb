package fetcher

import (
	"errors"
	"fmt"
	"net/url"
)

// StatusError is returned for any final response other than 200 OK.
type StatusError struct {
	Code int
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("http status %d", e.Code)
}

// TransportError wraps DNS, connect, timeout, TLS, redirect and body read
// failures.
type TransportError struct {
	Err error
}

func (e *TransportError) Error() string {
	return transportDetail(e.Err)
}

func (e *TransportError) Unwrap() error { return e.Err }

// transportDetail drops the `Get "<url>": ` prefix net/http adds; the URL is
// already part of every outcome line.
func transportDetail(err error) string {
	if err == nil {
		return "unknown transport error"
	}
	var ue *url.Error
	if errors.As(err, &ue) && ue.Err != nil {
		return ue.Err.Error()
	}
	return err.Error()
}
