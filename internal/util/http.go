package util

import (
	"encoding/json"
	"net/http"
	"time"
)

// Headers the gateway reads from or writes to requests and responses.
const (
	// HeaderCorrelationID carries the per-request correlation identifier
	// across hops; honored inbound, generated if absent.
	HeaderCorrelationID = "X-Correlation-ID"

	// HeaderRequestID identifies one outbound hop to a backend.
	HeaderRequestID = "X-Request-ID"

	// HeaderForwardedBy marks requests forwarded by this gateway.
	HeaderForwardedBy = "X-Forwarded-By"

	// HeaderResponseTime reports gateway-measured response time to the
	// client.
	HeaderResponseTime = "X-Response-Time"
)

// ErrorResponse is the JSON body for gateway-level error responses. Every
// error surfaced to a client carries the service name, a timestamp, and the
// correlation ID so the caller can correlate with backend-side logs.
type ErrorResponse struct {
	Error               string    `json:"error"`
	Service             string    `json:"service,omitempty"`
	Timestamp           time.Time `json:"timestamp"`
	CorrelationID       string    `json:"correlationId,omitempty"`
	CircuitBreakerState string    `json:"circuitBreakerState,omitempty"`
	AvailablePrefixes   []string  `json:"availablePrefixes,omitempty"`
}

// WriteJSON writes v as a JSON response with the given status code.
func WriteJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		// Headers are already sent; nothing sensible left to do.
		_ = err
	}
}

// WriteError writes a gateway error response.
func WriteError(w http.ResponseWriter, status int, resp ErrorResponse) {
	if resp.Timestamp.IsZero() {
		resp.Timestamp = time.Now().UTC()
	}
	WriteJSON(w, status, resp)
}
