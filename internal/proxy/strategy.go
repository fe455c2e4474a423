// Package proxy forwards requests to backend services. Two forwarding
// strategies exist: a streaming strategy that pipes bodies through without
// materializing them, and a buffering strategy that reads the full request
// body before forwarding. Strategy choice is a pure function of the HTTP
// method and content type.
package proxy

import (
	"strings"
)

// Strategy identifies a forwarding strategy.
type Strategy int

const (
	// StrategyStreaming pipes request and response bodies through the
	// gateway without buffering.
	StrategyStreaming Strategy = iota

	// StrategyBuffering materializes the full request body before
	// forwarding, so it can be decorated or re-encoded.
	StrategyBuffering
)

// String returns the string representation of the strategy.
func (s Strategy) String() string {
	switch s {
	case StrategyStreaming:
		return "streaming"
	case StrategyBuffering:
		return "buffering"
	default:
		return "unknown"
	}
}

// bodylessMethods are methods whose requests carry no payload; their
// responses may be large (downloads, thumbnails), so they stream.
var bodylessMethods = map[string]bool{
	"GET":     true,
	"HEAD":    true,
	"DELETE":  true,
	"OPTIONS": true,
}

// SelectStrategy chooses the forwarding strategy for a request.
//
// Multipart uploads always stream, regardless of method: large file bodies
// must never be buffered into memory. Bodyless methods stream for the sake
// of large response bodies. Everything else (JSON POST/PUT/PATCH) buffers,
// because the payload must be fully materialized before forwarding.
func SelectStrategy(method, contentType string) Strategy {
	if strings.HasPrefix(strings.ToLower(contentType), "multipart/form-data") {
		return StrategyStreaming
	}
	if bodylessMethods[strings.ToUpper(method)] {
		return StrategyStreaming
	}
	return StrategyBuffering
}

// RewritePath replaces the externally visible prefix with the backend's
// prefix. A bare or trailing-slash prefix match maps to the replacement
// without a trailing slash; deeper paths keep their remainder verbatim.
func RewritePath(path, prefix, replacement string) string {
	if prefix == "" || !strings.HasPrefix(path, prefix) {
		return path
	}

	rest := path[len(prefix):]
	if rest == "" || rest == "/" {
		if replacement == "" {
			return "/"
		}
		return replacement
	}

	out := replacement + rest
	if out == "" {
		return "/"
	}
	return out
}
