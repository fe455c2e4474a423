package proxy

import (
	"bytes"
	"context"
	"io"
	"net/http"
	"time"

	"github.com/dkovalev/taskgw/internal/backend"
)

// bufferingForwarder materializes the full request body before forwarding.
// Used for JSON payload requests, where the body must be available in full
// for decoration or re-encoding before the backend sees it.
type bufferingForwarder struct {
	cfg    Config
	client *http.Client
}

func newBufferingForwarder(cfg Config, transport *http.Transport) *bufferingForwarder {
	return &bufferingForwarder{
		cfg: cfg,
		client: &http.Client{
			Transport: transport,
			// Redirects are passed through to the client, not followed.
			CheckRedirect: func(*http.Request, []*http.Request) error {
				return http.ErrUseLastResponse
			},
		},
	}
}

// Forward implements Forwarder.
func (f *bufferingForwarder) Forward(w http.ResponseWriter, r *http.Request, target *backend.Target) Outcome {
	ctx, cancel := context.WithTimeout(r.Context(), f.cfg.Timeout)
	defer cancel()

	start := time.Now()

	body, err := io.ReadAll(r.Body)
	if err != nil {
		return Outcome{Kind: ErrorKindUnknown, Err: err}
	}

	outURL := *target.BaseURL
	outURL.Path = RewritePath(r.URL.Path, target.PathPrefix, target.RewritePrefix)
	outURL.RawQuery = r.URL.RawQuery

	req, err := http.NewRequestWithContext(ctx, r.Method, outURL.String(), bytes.NewReader(body))
	if err != nil {
		return Outcome{Kind: ErrorKindUnknown, Err: err}
	}

	req.Header = r.Header.Clone()
	req.ContentLength = int64(len(body))
	decorateOutbound(req, r, target, f.cfg.ServiceName)

	resp, err := f.client.Do(req)
	if err != nil {
		return Outcome{Kind: Classify(err), Err: err}
	}
	defer func() { _ = resp.Body.Close() }()

	for _, h := range hopHeaders {
		resp.Header.Del(h)
	}
	for key, values := range resp.Header {
		for _, v := range values {
			w.Header().Add(key, v)
		}
	}
	annotateResponse(w.Header(), r, start)

	w.WriteHeader(resp.StatusCode)
	if _, err := io.Copy(w, resp.Body); err != nil {
		// Headers and status are already sent; report the copy failure
		// without overwriting the pass-through status.
		return Outcome{StatusCode: resp.StatusCode, Kind: ErrorKindUnknown, Err: err}
	}

	return Outcome{StatusCode: resp.StatusCode}
}
