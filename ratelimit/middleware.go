package ratelimit

import (
	"context"
	"encoding/json"
	"math"
	"net/http"
	"strconv"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/metric/noop"

	"github.com/jonwraymond/httpkit/identity"
	"github.com/jonwraymond/httpkit/observe"
)

// Headers emitted by the middleware.
const (
	HeaderLimit      = "X-RateLimit-Limit"
	HeaderRemaining  = "X-RateLimit-Remaining"
	HeaderReset      = "X-RateLimit-Reset"
	HeaderRetryAfter = "Retry-After"
)

// Limiter is one limiter class: a named limit/window pair.
// Distinct classes keep independent counters for the same caller.
type Limiter struct {
	Name   string
	Limit  int
	Window time.Duration
}

// Preset limiter classes used by the host application's routes.
var (
	APILimiter    = Limiter{Name: "api", Limit: 100, Window: time.Minute}
	AuthLimiter   = Limiter{Name: "auth", Limit: 5, Window: 15 * time.Minute}
	UploadLimiter = Limiter{Name: "upload", Limit: 20, Window: time.Hour}
	SearchLimiter = Limiter{Name: "search", Limit: 30, Window: time.Minute}
)

func (l Limiter) validate() error {
	if l.Name == "" {
		return ErrMissingName
	}
	if l.Limit <= 0 {
		return ErrInvalidLimit
	}
	if l.Window <= 0 {
		return ErrInvalidWindow
	}
	return nil
}

// Key derives the limiting identity for a request:
// name:clientIP:principal, with "anonymous" for unauthenticated callers.
func (l Limiter) Key(r *http.Request) string {
	principal := identity.PrincipalFromContext(r.Context())
	if principal == "" {
		principal = identity.Anonymous
	}
	return l.Name + ":" + identity.ClientIP(r) + ":" + principal
}

// rejection is the JSON body served with a 429.
type rejection struct {
	Error             string `json:"error"`
	RetryAfterSeconds int    `json:"retry_after_seconds"`
}

// Middleware throttles requests against a limiter class.
//
// Contract:
// - Concurrency: safe for concurrent use.
// - Errors: a store fault fails open - the request proceeds unthrottled.
type Middleware struct {
	store   Store
	limiter Limiter
	logger  observe.Logger
	allowed metric.Int64Counter
}

// NewMiddleware creates a rate limiting middleware for one limiter class.
// A nil logger or meter falls back to no-op implementations.
func NewMiddleware(store Store, limiter Limiter, logger observe.Logger, meter metric.Meter) (*Middleware, error) {
	if store == nil {
		return nil, ErrNilStore
	}
	if err := limiter.validate(); err != nil {
		return nil, err
	}
	if logger == nil {
		logger = observe.NopLogger()
	}
	if meter == nil {
		meter = noop.NewMeterProvider().Meter("noop")
	}

	allowed, err := meter.Int64Counter(
		"ratelimit.requests",
		metric.WithDescription("Rate limit checks by outcome"),
		metric.WithUnit("{request}"),
	)
	if err != nil {
		return nil, err
	}

	return &Middleware{
		store:   store,
		limiter: limiter,
		logger:  logger,
		allowed: allowed,
	}, nil
}

// Handler wraps next so each request consumes window budget before the
// handler runs. Rejected requests receive 429 with Retry-After and never
// reach the handler.
func (m *Middleware) Handler(next http.Handler) (http.Handler, error) {
	if next == nil {
		return nil, ErrNilHandler
	}

	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()

		key := m.limiter.Key(r)
		res, err := m.store.CheckAndIncrement(ctx, key, m.limiter.Limit, m.limiter.Window)
		if err != nil {
			// Fail open: availability outweighs throttling.
			m.logger.Warn(ctx, "rate limit check failed, serving unthrottled",
				observe.Field{Key: "limiter", Value: m.limiter.Name},
				observe.Field{Key: "error", Value: err.Error()})
			next.ServeHTTP(w, r)
			return
		}

		w.Header().Set(HeaderLimit, strconv.Itoa(m.limiter.Limit))
		w.Header().Set(HeaderRemaining, strconv.Itoa(res.Remaining))
		w.Header().Set(HeaderReset, strconv.FormatInt(res.ResetAt.Unix(), 10))

		m.record(ctx, res.Allowed)

		if !res.Allowed {
			retryAfter := int(math.Ceil(res.RetryAfter.Seconds()))
			if retryAfter < 1 {
				retryAfter = 1
			}
			w.Header().Set(HeaderRetryAfter, strconv.Itoa(retryAfter))
			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(http.StatusTooManyRequests)
			_ = json.NewEncoder(w).Encode(rejection{
				Error:             "rate limit exceeded",
				RetryAfterSeconds: retryAfter,
			})
			return
		}

		next.ServeHTTP(w, r)
	}), nil
}

func (m *Middleware) record(ctx context.Context, allowed bool) {
	m.allowed.Add(ctx, 1, metric.WithAttributes(
		attribute.String("ratelimit.name", m.limiter.Name),
		attribute.Bool("ratelimit.allowed", allowed),
	))
}
