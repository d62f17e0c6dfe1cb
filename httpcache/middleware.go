package httpcache

import (
	"net/http"
	"time"

	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/metric/noop"
	"golang.org/x/sync/singleflight"

	"github.com/jonwraymond/httpkit/observe"
)

// Header names emitted by the middleware.
const (
	HeaderCache       = "X-Cache"
	HeaderETag        = "ETag"
	HeaderIfNoneMatch = "If-None-Match"
)

// X-Cache values.
const (
	CacheHit  = "HIT"
	CacheMiss = "MISS"
)

// ShouldCacheFunc vetoes caching of a captured response for any reason the
// route author needs. Returning false silently skips caching; it is never an
// error.
type ShouldCacheFunc func(r *http.Request, status int, body []byte) bool

// Config configures caching for one route.
type Config struct {
	// TTL is the explicit cache lifetime. Zero defers to Tier, then to the
	// store default.
	TTL time.Duration

	// Tier expresses freshness intent symbolically. An explicit TTL wins.
	Tier Tier

	// VaryBy lists header names whose values partition the cache.
	VaryBy []string

	// KeyFunc, when set, fully replaces the default key derivation.
	KeyFunc KeyFunc

	// ShouldCache, when set, can veto caching of a captured response.
	ShouldCache ShouldCacheFunc

	// InvalidateOn lists event names under which stored keys are registered
	// for invalidation.
	InvalidateOn []string

	// Compress passes payloads through the middleware's Codec at store time.
	Compress bool

	// Coalesce collapses concurrent misses for one key into a single
	// handler execution.
	Coalesce bool
}

func (c Config) validate() error {
	if c.TTL < 0 {
		return ErrNegativeTTL
	}
	if !c.Tier.Valid() {
		return ErrUnknownTier
	}
	return nil
}

// effectiveTTL resolves precedence: explicit TTL over tier, zero defers to
// the store default.
func (c Config) effectiveTTL() time.Duration {
	if c.TTL > 0 {
		return c.TTL
	}
	return c.Tier.TTL()
}

// Middleware orchestrates the store, key derivation, fingerprinting, and the
// invalidation registry around a request/response cycle. One Middleware
// instance serves many routes; the store and registry are injected, never
// global.
//
// Contract:
// - Concurrency: safe for concurrent use.
// - Errors: internal faults fail open - the wrapped handler always runs and
//   its response reaches the client unchanged on a miss.
type Middleware struct {
	store    Store
	registry *Registry
	codec    Codec
	logger   observe.Logger
	metrics  *metrics
	group    singleflight.Group
}

// NewMiddleware creates a cache middleware over the given store.
// The registry and codec may be nil when invalidation and compression are
// unused; a nil logger or meter falls back to no-op implementations.
func NewMiddleware(store Store, registry *Registry, codec Codec, logger observe.Logger, meter metric.Meter) (*Middleware, error) {
	if store == nil {
		return nil, ErrNilStore
	}
	if logger == nil {
		logger = observe.NopLogger()
	}
	if meter == nil {
		meter = noop.NewMeterProvider().Meter("noop")
	}

	m, err := newMetrics(meter)
	if err != nil {
		return nil, err
	}

	return &Middleware{
		store:    store,
		registry: registry,
		codec:    codec,
		logger:   logger,
		metrics:  m,
	}, nil
}

// Handler wraps next with caching per cfg. Configuration errors surface
// here, at route registration time, never per request.
func (m *Middleware) Handler(cfg Config, next http.Handler) (http.Handler, error) {
	if next == nil {
		return nil, ErrNilHandler
	}
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	if cfg.Compress && m.codec == nil {
		return nil, ErrNoCodec
	}
	if len(cfg.InvalidateOn) > 0 && m.registry == nil {
		return nil, ErrNoRegistry
	}

	keyFn := cfg.KeyFunc
	if keyFn == nil {
		keyer := &DefaultKeyer{VaryBy: cfg.VaryBy}
		keyFn = keyer.Key
	}

	return &cacheHandler{
		mw:   m,
		cfg:  cfg,
		key:  keyFn,
		ttl:  cfg.effectiveTTL(),
		next: next,
	}, nil
}

type cacheHandler struct {
	mw   *Middleware
	cfg  Config
	key  KeyFunc
	ttl  time.Duration
	next http.Handler
}

// captured is the outcome of one handler execution, shared between
// coalesced requests.
type captured struct {
	status      int
	header      http.Header
	body        []byte
	fingerprint string
	origin      *http.Request
}

func (h *cacheHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	// Only the safe retrieval method is cache-eligible.
	if r.Method != http.MethodGet {
		h.mw.metrics.record(ctx, resultBypass)
		h.next.ServeHTTP(w, r)
		return
	}

	key := h.key(r)
	if ValidateKey(key) != nil {
		// Fail open: a broken key generator must not break the route.
		h.mw.logger.Warn(ctx, "cache key invalid, serving uncached",
			observe.Field{Key: "path", Value: r.URL.Path})
		h.mw.metrics.record(ctx, resultBypass)
		h.next.ServeHTTP(w, r)
		return
	}

	if entry, ok := h.mw.store.Get(ctx, key); ok {
		if h.serveHit(w, r, key, entry) {
			return
		}
		// Entry unusable; fall through and re-execute.
	}

	h.serveMiss(w, r, key)
}

// serveHit replays a stored entry, short-circuiting with 304 when the
// caller's conditional header matches the stored fingerprint. Returns false
// when the entry cannot be served (it has been dropped from the store).
func (h *cacheHandler) serveHit(w http.ResponseWriter, r *http.Request, key string, entry Entry) bool {
	ctx := r.Context()

	if inm := r.Header.Get(HeaderIfNoneMatch); inm != "" && matchesETag(inm, entry.Fingerprint) {
		w.Header().Set(HeaderETag, etagValue(entry.Fingerprint))
		w.Header().Set(HeaderCache, CacheHit)
		w.WriteHeader(http.StatusNotModified)
		h.mw.metrics.record(ctx, resultRevalidated)
		return true
	}

	data := entry.Data
	if entry.Compressed {
		if h.mw.codec == nil {
			_ = h.mw.store.Delete(ctx, key)
			return false
		}
		decoded, err := h.mw.codec.Decompress(data)
		if err != nil {
			h.mw.logger.Warn(ctx, "cached entry decompression failed",
				observe.Field{Key: "error", Value: err.Error()})
			_ = h.mw.store.Delete(ctx, key)
			return false
		}
		data = decoded
	}

	copyHeader(w.Header(), entry.Header)
	if entry.Fingerprint != "" {
		w.Header().Set(HeaderETag, etagValue(entry.Fingerprint))
	}
	w.Header().Set(HeaderCache, CacheHit)
	w.WriteHeader(entry.StatusCode)
	_, _ = w.Write(data)
	h.mw.metrics.record(ctx, resultHit)
	return true
}

func (h *cacheHandler) serveMiss(w http.ResponseWriter, r *http.Request, key string) {
	ctx := r.Context()

	var cap *captured
	if h.cfg.Coalesce {
		v, _, _ := h.mw.group.Do(key, func() (any, error) {
			return h.execute(r, key), nil
		})
		cap = v.(*captured)
	} else {
		cap = h.execute(r, key)
	}

	result, tag := resultMiss, CacheMiss
	if cap.origin != r {
		// Another in-flight request executed the handler; this one is
		// served from its capture.
		result, tag = resultHit, CacheHit
	}

	copyHeader(w.Header(), cap.header)
	if cap.fingerprint != "" {
		w.Header().Set(HeaderETag, etagValue(cap.fingerprint))
	}
	w.Header().Set(HeaderCache, tag)
	w.WriteHeader(cap.status)
	_, _ = w.Write(cap.body)
	h.mw.metrics.record(ctx, result)
}

// execute runs the downstream handler against a buffering recorder, stores
// the captured response when cacheable, and registers invalidation events.
// The captured response is returned unchanged regardless of cacheability.
func (h *cacheHandler) execute(r *http.Request, key string) *captured {
	ctx := r.Context()

	rec := newRecorder()
	h.next.ServeHTTP(rec, r)

	cap := &captured{
		status: rec.Status(),
		header: cloneHeader(rec.Header()),
		body:   append([]byte(nil), rec.body.Bytes()...),
		origin: r,
	}

	if !h.cacheable(r, cap.status, cap.body) {
		return cap
	}

	cap.fingerprint = Fingerprint(cap.body)

	data := cap.body
	compressed := false
	if h.cfg.Compress && h.mw.codec != nil {
		encoded, err := h.mw.codec.Compress(cap.body)
		if err != nil {
			h.mw.logger.Warn(ctx, "response compression failed, storing uncompressed",
				observe.Field{Key: "error", Value: err.Error()})
		} else {
			data = encoded
			compressed = true
		}
	}

	entry := Entry{
		Data:        data,
		Header:      cloneHeader(rec.Header()),
		StatusCode:  cap.status,
		CreatedAt:   time.Now(),
		Fingerprint: cap.fingerprint,
		Compressed:  compressed,
	}

	if err := h.mw.store.Set(ctx, key, entry, h.ttl); err != nil {
		// Fail open: the response still reaches the client uncached.
		h.mw.logger.Warn(ctx, "cache store set failed",
			observe.Field{Key: "error", Value: err.Error()})
		return cap
	}

	if h.mw.registry != nil {
		for _, event := range h.cfg.InvalidateOn {
			h.mw.registry.Register(event, key)
		}
	}

	return cap
}

// cacheable applies the cacheability decision in order: status below 400,
// then the route's veto predicate.
func (h *cacheHandler) cacheable(r *http.Request, status int, body []byte) bool {
	if status >= 400 {
		return false
	}
	if h.cfg.ShouldCache != nil && !h.cfg.ShouldCache(r, status, body) {
		return false
	}
	return true
}
