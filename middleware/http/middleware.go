// Package http provides HTTP middleware for admission enforcement
package http

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strconv"

	"github.com/equaltechbd/cortexa/pkg/cortexa"
)

// RequestExtractor builds the admission request from an HTTP request.
// Leave UserID empty if the user is not authenticated.
type RequestExtractor func(r *http.Request) cortexa.RequestContext

// Config holds middleware configuration
type Config struct {
	// Controller is the admission controller instance
	Controller *cortexa.Controller

	// GetRequest builds the admission request (required)
	GetRequest RequestExtractor

	// DeniedStatusCode is the HTTP status code to return on quota denial
	// Default: 429 (Too Many Requests)
	DeniedStatusCode int

	// OnDenied is called when the daily quota is exhausted
	// If nil, returns DeniedStatusCode with the denied resource
	OnDenied func(w http.ResponseWriter, r *http.Request, result *cortexa.Result)

	// OnUnauthorized is called when user is not authenticated
	// If nil, returns 401 Unauthorized
	OnUnauthorized func(w http.ResponseWriter, r *http.Request)

	// OnError is called when an internal error occurs
	// If nil, returns 500 Internal Server Error
	OnError func(w http.ResponseWriter, r *http.Request, err error)
}

// Middleware creates an HTTP middleware that admits or denies each request
// against the user's daily quota. The charge is applied before the handler
// runs; a failed handler does not refund it.
func Middleware(config Config) func(http.Handler) http.Handler {
	if config.Controller == nil {
		panic("cortexa/http: Config.Controller is required")
	}
	if config.GetRequest == nil {
		panic("cortexa/http: Config.GetRequest is required")
	}
	if config.DeniedStatusCode == 0 {
		config.DeniedStatusCode = http.StatusTooManyRequests
	}

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			req := config.GetRequest(r)
			if req.UserID == "" {
				if config.OnUnauthorized != nil {
					config.OnUnauthorized(w, r)
				} else {
					http.Error(w, "Unauthorized", http.StatusUnauthorized)
				}
				return
			}

			result, err := config.Controller.Admit(r.Context(), req)
			if err != nil {
				if errors.Is(err, cortexa.ErrQuotaExceeded) {
					setQuotaHeaders(w, result)
					if config.OnDenied != nil {
						config.OnDenied(w, r, result)
					} else {
						msg := fmt.Sprintf("Quota exceeded for %s", result.Resource)
						http.Error(w, msg, config.DeniedStatusCode)
					}
					return
				}
				if config.OnError != nil {
					config.OnError(w, r, err)
				} else {
					http.Error(w, "Internal Server Error", http.StatusInternalServerError)
				}
				return
			}

			setQuotaHeaders(w, result)
			next.ServeHTTP(w, r)
		})
	}
}

// HandlerFunc creates an HTTP middleware that enforces admission (HandlerFunc version)
func HandlerFunc(config Config) func(http.HandlerFunc) http.HandlerFunc {
	middleware := Middleware(config)
	return func(next http.HandlerFunc) http.HandlerFunc {
		return func(w http.ResponseWriter, r *http.Request) {
			middleware(next).ServeHTTP(w, r)
		}
	}
}

func setQuotaHeaders(w http.ResponseWriter, result *cortexa.Result) {
	if result == nil {
		return
	}
	w.Header().Set("X-Quota-Resource", string(result.Resource))
	w.Header().Set("X-Quota-Remaining", strconv.Itoa(result.Remaining))
	if result.FailOpen {
		w.Header().Set("X-Quota-Degraded", "true")
	}
}

// Common extractors for convenience

// ContextKey is a type for context keys
type ContextKey string

const (
	// RequestKey is the context key for a pre-built admission request
	RequestKey ContextKey = "cortexa:request"
)

// FromHeaders returns a RequestExtractor that builds the admission request
// from headers: X-User-ID, X-User-Tier, X-Team-Size, X-User-Role,
// X-User-Locale, X-Has-Attachment, X-Augmentation.
func FromHeaders() RequestExtractor {
	return func(r *http.Request) cortexa.RequestContext {
		teamSize, _ := strconv.Atoi(r.Header.Get("X-Team-Size"))
		return cortexa.RequestContext{
			UserID:                r.Header.Get("X-User-ID"),
			Tier:                  cortexa.Tier(r.Header.Get("X-User-Tier")),
			TeamSize:              teamSize,
			Role:                  r.Header.Get("X-User-Role"),
			Locale:                r.Header.Get("X-User-Locale"),
			HasAttachment:         r.Header.Get("X-Has-Attachment") == "true",
			AugmentationRequested: r.Header.Get("X-Augmentation") == "true",
		}
	}
}

// FromContext returns a RequestExtractor that reads an already-built
// admission request placed in the request context by auth middleware.
func FromContext(key ContextKey) RequestExtractor {
	return func(r *http.Request) cortexa.RequestContext {
		if req, ok := r.Context().Value(key).(cortexa.RequestContext); ok {
			return req
		}
		return cortexa.RequestContext{}
	}
}

// WithRequestContext stores an admission request in the context for
// FromContext to pick up downstream.
func WithRequestContext(ctx context.Context, key ContextKey, req cortexa.RequestContext) context.Context {
	return context.WithValue(ctx, key, req)
}
