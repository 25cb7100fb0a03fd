// Package middleware wraps the outgoing HTTP transport used to talk to the
// repository API.
package middleware

import (
	"net/http"
	"time"

	"ghos/internal/logging"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// RoundTripperFunc adapts a function to http.RoundTripper.
type RoundTripperFunc func(*http.Request) (*http.Response, error)

func (f RoundTripperFunc) RoundTrip(r *http.Request) (*http.Response, error) {
	return f(r)
}

type Middleware func(http.RoundTripper) http.RoundTripper

// Chain wraps rt so the first middleware runs outermost.
func Chain(rt http.RoundTripper, middlewares ...Middleware) http.RoundTripper {
	for i := len(middlewares) - 1; i >= 0; i-- {
		rt = middlewares[i](rt)
	}
	return rt
}

func RequestID(next http.RoundTripper) http.RoundTripper {
	return RoundTripperFunc(func(r *http.Request) (*http.Response, error) {
		r = r.Clone(r.Context())
		r.Header.Set("X-Request-ID", uuid.New().String())
		return next.RoundTrip(r)
	})
}

// Headers sets API headers. An empty token leaves the request anonymous.
func Headers(userAgent, token string) Middleware {
	return func(next http.RoundTripper) http.RoundTripper {
		return RoundTripperFunc(func(r *http.Request) (*http.Response, error) {
			r = r.Clone(r.Context())
			r.Header.Set("User-Agent", userAgent)
			r.Header.Set("Accept", "application/vnd.github+json")
			if token != "" {
				r.Header.Set("Authorization", "Bearer "+token)
			}
			return next.RoundTrip(r)
		})
	}
}

func Logger(logger *logging.Logger) Middleware {
	return func(next http.RoundTripper) http.RoundTripper {
		return RoundTripperFunc(func(r *http.Request) (*http.Response, error) {
			start := time.Now()

			resp, err := next.RoundTrip(r)

			log := logger.WithOperation(r.Context()).With(
				zap.String("method", r.Method),
				zap.String("path", r.URL.Path),
				zap.String("request_id", r.Header.Get("X-Request-ID")),
				zap.Duration("duration", time.Since(start)),
			)
			if err != nil {
				log.Warn("request failed", zap.Error(err))
				return nil, err
			}
			log.Debug("request completed", zap.Int("status", resp.StatusCode))
			return resp, nil
		})
	}
}
