package proxy

import (
	"context"
	"net/http"
	"net/http/httputil"
	"time"

	"github.com/dkovalev/taskgw/internal/backend"
)

// streamingForwarder pipes bodies straight through using a reverse proxy
// with immediate flushing. Used for bodyless requests and multipart
// uploads, where buffering would either waste memory or break large file
// transfers.
type streamingForwarder struct {
	cfg       Config
	transport *http.Transport
}

func newStreamingForwarder(cfg Config, transport *http.Transport) *streamingForwarder {
	return &streamingForwarder{
		cfg:       cfg,
		transport: transport,
	}
}

// Forward implements Forwarder.
func (f *streamingForwarder) Forward(w http.ResponseWriter, r *http.Request, target *backend.Target) Outcome {
	ctx, cancel := context.WithTimeout(r.Context(), f.cfg.Timeout)
	defer cancel()

	inbound := r
	r = r.WithContext(ctx)
	start := time.Now()

	var outcome Outcome

	rp := &httputil.ReverseProxy{
		Director: func(req *http.Request) {
			req.URL.Scheme = target.BaseURL.Scheme
			req.URL.Host = target.BaseURL.Host
			req.URL.Path = RewritePath(req.URL.Path, target.PathPrefix, target.RewritePrefix)
			decorateOutbound(req, inbound, target, f.cfg.ServiceName)
		},
		Transport:     f.transport,
		FlushInterval: -1,
		ModifyResponse: func(resp *http.Response) error {
			outcome.StatusCode = resp.StatusCode
			annotateResponse(resp.Header, inbound, start)
			return nil
		},
		ErrorHandler: func(_ http.ResponseWriter, _ *http.Request, err error) {
			// Leave the response unwritten; the router renders the
			// error body from the outcome.
			outcome.Err = err
			outcome.Kind = Classify(err)
		},
	}

	rp.ServeHTTP(w, r)

	return outcome
}
