package retry

import (
	"context"
	"fmt"
	"io"
	"net/http"
)

// StatusError reports a retryable HTTP status seen by Transport.
type StatusError struct {
	StatusCode int
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("http %d %s", e.StatusCode, http.StatusText(e.StatusCode))
}

// Transport retries 429/502/503/504 responses and transient transport errors.
// The final attempt's response is returned untouched so SDK error decoding
// still sees the real status and body.
type Transport struct {
	Base   http.RoundTripper
	Policy Policy
}

func NewTransport(base http.RoundTripper, p Policy) *Transport {
	return &Transport{Base: base, Policy: p}
}

func (t *Transport) RoundTrip(req *http.Request) (*http.Response, error) {
	base := t.Base
	if base == nil {
		base = http.DefaultTransport
	}

	p := t.Policy.normalized()
	if req.Body != nil && req.Body != http.NoBody && req.GetBody == nil {
		p.MaxAttempts = 1
	}

	attempt := 0
	res := Call(req.Context(), func(ctx context.Context) (*http.Response, error) {
		attempt++
		r := req
		if attempt > 1 && req.GetBody != nil {
			body, err := req.GetBody()
			if err != nil {
				return nil, err
			}
			r = req.Clone(ctx)
			r.Body = body
		}

		resp, err := base.RoundTrip(r)
		if err != nil {
			return nil, err
		}
		if attempt < p.MaxAttempts && retryableStatus(resp.StatusCode) {
			_, _ = io.Copy(io.Discard, resp.Body)
			_ = resp.Body.Close()
			return nil, &StatusError{StatusCode: resp.StatusCode}
		}
		return resp, nil
	}, p)

	if !res.OK {
		return nil, res.Err
	}
	return res.Value, nil
}

func retryableStatus(code int) bool {
	switch code {
	case http.StatusTooManyRequests,
		http.StatusBadGateway,
		http.StatusServiceUnavailable,
		http.StatusGatewayTimeout:
		return true
	default:
		return false
	}
}
