package httpcache

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"testing"
	"time"
)

func newTestMiddleware(t *testing.T, codec Codec) (*Middleware, *MemoryStore, *Registry) {
	t.Helper()

	store := NewMemoryStore(StoreConfig{})
	reg, err := NewRegistry(store)
	if err != nil {
		t.Fatalf("NewRegistry failed: %v", err)
	}
	mw, err := NewMiddleware(store, reg, codec, nil, nil)
	if err != nil {
		t.Fatalf("NewMiddleware failed: %v", err)
	}
	return mw, store, reg
}

func countingHandler(calls *atomic.Int64, status int, body string) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(status)
		_, _ = w.Write([]byte(body))
	})
}

func TestMiddleware_MissThenHit(t *testing.T) {
	mw, _, _ := newTestMiddleware(t, nil)

	var calls atomic.Int64
	h, err := mw.Handler(Config{TTL: time.Minute}, countingHandler(&calls, http.StatusOK, `{"ok":true}`))
	if err != nil {
		t.Fatalf("Handler failed: %v", err)
	}

	// First request: miss, handler executes
	w1 := httptest.NewRecorder()
	h.ServeHTTP(w1, httptest.NewRequest("GET", "/api/students", nil))

	if got := w1.Header().Get(HeaderCache); got != CacheMiss {
		t.Errorf("first request X-Cache = %q, want %q", got, CacheMiss)
	}
	if w1.Header().Get(HeaderETag) == "" {
		t.Error("cacheable miss should carry an ETag")
	}
	if w1.Body.String() != `{"ok":true}` {
		t.Errorf("miss body = %q", w1.Body.String())
	}

	// Second request: hit, handler does not execute
	w2 := httptest.NewRecorder()
	h.ServeHTTP(w2, httptest.NewRequest("GET", "/api/students", nil))

	if got := w2.Header().Get(HeaderCache); got != CacheHit {
		t.Errorf("second request X-Cache = %q, want %q", got, CacheHit)
	}
	if w2.Body.String() != `{"ok":true}` {
		t.Errorf("hit body = %q, want original payload", w2.Body.String())
	}
	if w2.Header().Get("Content-Type") != "application/json" {
		t.Error("hit should replay stored headers")
	}
	if calls.Load() != 1 {
		t.Errorf("handler executed %d times, want 1", calls.Load())
	}
}

func TestMiddleware_ConditionalRevalidation(t *testing.T) {
	mw, _, _ := newTestMiddleware(t, nil)

	var calls atomic.Int64
	h, err := mw.Handler(Config{TTL: time.Minute}, countingHandler(&calls, http.StatusOK, `{"ok":true}`))
	if err != nil {
		t.Fatalf("Handler failed: %v", err)
	}

	w1 := httptest.NewRecorder()
	h.ServeHTTP(w1, httptest.NewRequest("GET", "/api/students", nil))
	etag := w1.Header().Get(HeaderETag)
	if etag == "" {
		t.Fatal("expected ETag on first response")
	}

	// Present the fingerprint back: 304, empty body, not tagged MISS
	r := httptest.NewRequest("GET", "/api/students", nil)
	r.Header.Set(HeaderIfNoneMatch, etag)
	w2 := httptest.NewRecorder()
	h.ServeHTTP(w2, r)

	if w2.Code != http.StatusNotModified {
		t.Errorf("status = %d, want 304", w2.Code)
	}
	if w2.Body.Len() != 0 {
		t.Errorf("304 body should be empty, got %q", w2.Body.String())
	}
	if got := w2.Header().Get(HeaderCache); got == CacheMiss {
		t.Error("revalidation must not be tagged as a miss")
	}
	if calls.Load() != 1 {
		t.Errorf("handler executed %d times, want 1", calls.Load())
	}

	// A stale validator gets the full payload
	r3 := httptest.NewRequest("GET", "/api/students", nil)
	r3.Header.Set(HeaderIfNoneMatch, `"0123456789abcdef0123456789abcdef"`)
	w3 := httptest.NewRecorder()
	h.ServeHTTP(w3, r3)

	if w3.Code != http.StatusOK {
		t.Errorf("stale validator status = %d, want 200", w3.Code)
	}
	if w3.Body.String() != `{"ok":true}` {
		t.Errorf("stale validator body = %q", w3.Body.String())
	}
}

func TestMiddleware_NonGETBypassesCache(t *testing.T) {
	mw, store, _ := newTestMiddleware(t, nil)

	var calls atomic.Int64
	h, err := mw.Handler(Config{TTL: time.Minute}, countingHandler(&calls, http.StatusOK, "done"))
	if err != nil {
		t.Fatalf("Handler failed: %v", err)
	}

	for i := 0; i < 2; i++ {
		w := httptest.NewRecorder()
		h.ServeHTTP(w, httptest.NewRequest("POST", "/api/students", nil))
		if w.Header().Get(HeaderCache) != "" {
			t.Error("bypassed requests should not be cache-tagged")
		}
	}

	if calls.Load() != 2 {
		t.Errorf("handler executed %d times, want 2", calls.Load())
	}
	if store.Len() != 0 {
		t.Errorf("non-GET responses must not be stored, store has %d entries", store.Len())
	}
}

func TestMiddleware_ErrorStatusNotCached(t *testing.T) {
	mw, store, _ := newTestMiddleware(t, nil)

	var calls atomic.Int64
	h, err := mw.Handler(Config{TTL: time.Minute}, countingHandler(&calls, http.StatusNotFound, "missing"))
	if err != nil {
		t.Fatalf("Handler failed: %v", err)
	}

	for i := 0; i < 2; i++ {
		w := httptest.NewRecorder()
		h.ServeHTTP(w, httptest.NewRequest("GET", "/api/students/999", nil))
		if w.Code != http.StatusNotFound {
			t.Errorf("status = %d, want 404", w.Code)
		}
		if got := w.Header().Get(HeaderCache); got != CacheMiss {
			t.Errorf("X-Cache = %q, want %q", got, CacheMiss)
		}
	}

	if calls.Load() != 2 {
		t.Errorf("handler executed %d times, want 2 (404 not cached)", calls.Load())
	}
	if store.Len() != 0 {
		t.Errorf("error responses must not be stored, store has %d entries", store.Len())
	}
}

func TestMiddleware_ShouldCacheVeto(t *testing.T) {
	mw, store, _ := newTestMiddleware(t, nil)

	var calls atomic.Int64
	cfg := Config{
		TTL: time.Minute,
		ShouldCache: func(r *http.Request, status int, body []byte) bool {
			return !bytes.Contains(body, []byte("private"))
		},
	}
	h, err := mw.Handler(cfg, countingHandler(&calls, http.StatusOK, `{"private":true}`))
	if err != nil {
		t.Fatalf("Handler failed: %v", err)
	}

	w := httptest.NewRecorder()
	h.ServeHTTP(w, httptest.NewRequest("GET", "/api/grades", nil))

	// The veto skips caching silently; the response is unchanged
	if w.Code != http.StatusOK {
		t.Errorf("status = %d, want 200", w.Code)
	}
	if w.Body.String() != `{"private":true}` {
		t.Errorf("body = %q", w.Body.String())
	}
	if store.Len() != 0 {
		t.Errorf("vetoed response must not be stored, store has %d entries", store.Len())
	}
}

func TestMiddleware_VaryByPartitionsEntries(t *testing.T) {
	mw, _, _ := newTestMiddleware(t, nil)

	var calls atomic.Int64
	h, err := mw.Handler(
		Config{TTL: 300 * time.Second, VaryBy: []string{"X-Institution-Id"}},
		http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			calls.Add(1)
			fmt.Fprintf(w, "institution %s", r.Header.Get("X-Institution-Id"))
		}),
	)
	if err != nil {
		t.Fatalf("Handler failed: %v", err)
	}

	get := func(inst string) *httptest.ResponseRecorder {
		r := httptest.NewRequest("GET", "/api/students", nil)
		r.Header.Set("X-Institution-Id", inst)
		w := httptest.NewRecorder()
		h.ServeHTTP(w, r)
		return w
	}

	w1 := get("inst-1")
	w2 := get("inst-2")

	// Identical path/query, different vary header: never share an entry
	if w1.Header().Get(HeaderCache) != CacheMiss || w2.Header().Get(HeaderCache) != CacheMiss {
		t.Error("both institutions should miss on first request")
	}
	if calls.Load() != 2 {
		t.Errorf("handler executed %d times, want 2", calls.Load())
	}

	// Repeats hit their own partition
	if w := get("inst-1"); w.Header().Get(HeaderCache) != CacheHit || w.Body.String() != "institution inst-1" {
		t.Errorf("inst-1 repeat: X-Cache=%q body=%q", w.Header().Get(HeaderCache), w.Body.String())
	}
	if w := get("inst-2"); w.Body.String() != "institution inst-2" {
		t.Errorf("inst-2 repeat served wrong payload: %q", w.Body.String())
	}
}

func TestMiddleware_InvalidationEndToEnd(t *testing.T) {
	mw, _, reg := newTestMiddleware(t, nil)

	var calls atomic.Int64
	cached, err := mw.Handler(
		Config{TTL: 300 * time.Second, InvalidateOn: []string{"enrollment:updated"}},
		countingHandler(&calls, http.StatusOK, `{"students":[]}`),
	)
	if err != nil {
		t.Fatalf("Handler failed: %v", err)
	}

	mutation, err := InvalidationTrigger(reg, []string{"enrollment:updated"},
		http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusOK)
		}))
	if err != nil {
		t.Fatalf("InvalidationTrigger failed: %v", err)
	}

	get := func() *httptest.ResponseRecorder {
		w := httptest.NewRecorder()
		cached.ServeHTTP(w, httptest.NewRequest("GET", "/api/students", nil))
		return w
	}

	if w := get(); w.Header().Get(HeaderCache) != CacheMiss {
		t.Fatal("first GET should miss")
	}
	if w := get(); w.Header().Get(HeaderCache) != CacheHit {
		t.Fatal("second GET should hit")
	}

	// Fire the mutation; the cached route must miss again
	mw2 := httptest.NewRecorder()
	mutation.ServeHTTP(mw2, httptest.NewRequest("POST", "/api/enrollments", nil))

	if w := get(); w.Header().Get(HeaderCache) != CacheMiss {
		t.Error("GET after invalidation event should miss")
	}
	if calls.Load() != 2 {
		t.Errorf("handler executed %d times, want 2", calls.Load())
	}
}

// failingStore errors on Set to exercise the fail-open path.
type failingStore struct {
	Store
}

func (s *failingStore) Set(ctx context.Context, key string, entry Entry, ttl time.Duration) error {
	return errors.New("store full")
}

func TestMiddleware_FailsOpenOnStoreError(t *testing.T) {
	store := &failingStore{Store: NewMemoryStore(StoreConfig{})}
	mw, err := NewMiddleware(store, nil, nil, nil, nil)
	if err != nil {
		t.Fatalf("NewMiddleware failed: %v", err)
	}

	var calls atomic.Int64
	h, err := mw.Handler(Config{TTL: time.Minute}, countingHandler(&calls, http.StatusOK, "payload"))
	if err != nil {
		t.Fatalf("Handler failed: %v", err)
	}

	// The store fault must never reach the client
	w := httptest.NewRecorder()
	h.ServeHTTP(w, httptest.NewRequest("GET", "/api/students", nil))

	if w.Code != http.StatusOK {
		t.Errorf("status = %d, want 200", w.Code)
	}
	if w.Body.String() != "payload" {
		t.Errorf("body = %q, want handler payload", w.Body.String())
	}
}

func TestMiddleware_CoalescesConcurrentMisses(t *testing.T) {
	mw, _, _ := newTestMiddleware(t, nil)

	var calls atomic.Int64
	slow := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		time.Sleep(200 * time.Millisecond)
		_, _ = w.Write([]byte("expensive"))
	})

	h, err := mw.Handler(Config{TTL: time.Minute, Coalesce: true}, slow)
	if err != nil {
		t.Fatalf("Handler failed: %v", err)
	}

	const concurrency = 5
	var wg sync.WaitGroup
	bodies := make([]string, concurrency)

	wg.Add(concurrency)
	for i := 0; i < concurrency; i++ {
		go func(i int) {
			defer wg.Done()
			w := httptest.NewRecorder()
			h.ServeHTTP(w, httptest.NewRequest("GET", "/api/report", nil))
			bodies[i] = w.Body.String()
		}(i)
	}
	wg.Wait()

	if calls.Load() != 1 {
		t.Errorf("handler executed %d times, want 1 (coalesced)", calls.Load())
	}
	for i, body := range bodies {
		if body != "expensive" {
			t.Errorf("request %d body = %q, want shared capture", i, body)
		}
	}
}

func TestMiddleware_CompressRoundTrip(t *testing.T) {
	mw, store, _ := newTestMiddleware(t, GzipCodec{})

	payload := bytes.Repeat([]byte("compressible "), 100)
	var calls atomic.Int64
	h, err := mw.Handler(Config{TTL: time.Minute, Compress: true},
		countingHandler(&calls, http.StatusOK, string(payload)))
	if err != nil {
		t.Fatalf("Handler failed: %v", err)
	}

	w1 := httptest.NewRecorder()
	h.ServeHTTP(w1, httptest.NewRequest("GET", "/api/catalog", nil))
	if w1.Body.String() != string(payload) {
		t.Error("miss should serve the uncompressed payload")
	}

	// The stored entry holds the compressed form
	keyer := &DefaultKeyer{}
	entry, ok := store.Get(context.Background(), keyer.Key(httptest.NewRequest("GET", "/api/catalog", nil)))
	if !ok {
		t.Fatal("entry should be stored")
	}
	if !entry.Compressed {
		t.Error("entry should be marked compressed")
	}
	if len(entry.Data) >= len(payload) {
		t.Errorf("stored %d bytes, want fewer than %d", len(entry.Data), len(payload))
	}

	// Hits replay the original payload
	w2 := httptest.NewRecorder()
	h.ServeHTTP(w2, httptest.NewRequest("GET", "/api/catalog", nil))
	if w2.Header().Get(HeaderCache) != CacheHit {
		t.Error("second request should hit")
	}
	if w2.Body.String() != string(payload) {
		t.Error("hit should serve the decompressed payload")
	}
}

func TestMiddleware_KeyFuncOverride(t *testing.T) {
	mw, _, _ := newTestMiddleware(t, nil)

	var calls atomic.Int64
	cfg := Config{
		TTL: time.Minute,
		KeyFunc: func(r *http.Request) string {
			// Collapse all report variants onto one entry
			return "reports"
		},
	}
	h, err := mw.Handler(cfg, countingHandler(&calls, http.StatusOK, "report"))
	if err != nil {
		t.Fatalf("Handler failed: %v", err)
	}

	w1 := httptest.NewRecorder()
	h.ServeHTTP(w1, httptest.NewRequest("GET", "/api/reports?year=2025", nil))
	w2 := httptest.NewRecorder()
	h.ServeHTTP(w2, httptest.NewRequest("GET", "/api/reports?year=2026", nil))

	if calls.Load() != 1 {
		t.Errorf("handler executed %d times, want 1 (shared key)", calls.Load())
	}
	if w2.Header().Get(HeaderCache) != CacheHit {
		t.Error("second variant should hit the shared entry")
	}
}

func TestMiddleware_ConfigErrorsAtRegistration(t *testing.T) {
	mw, _, _ := newTestMiddleware(t, nil)
	ok := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {})

	tests := []struct {
		name    string
		cfg     Config
		next    http.Handler
		wantErr error
	}{
		{"negative ttl", Config{TTL: -time.Second}, ok, ErrNegativeTTL},
		{"unknown tier", Config{Tier: Tier("hourly")}, ok, ErrUnknownTier},
		{"nil handler", Config{}, nil, ErrNilHandler},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := mw.Handler(tt.cfg, tt.next); !errors.Is(err, tt.wantErr) {
				t.Errorf("Handler error = %v, want %v", err, tt.wantErr)
			}
		})
	}
}

func TestMiddleware_CompressRequiresCodec(t *testing.T) {
	mw, _, _ := newTestMiddleware(t, nil) // no codec
	ok := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {})

	if _, err := mw.Handler(Config{Compress: true}, ok); !errors.Is(err, ErrNoCodec) {
		t.Errorf("Handler error = %v, want ErrNoCodec", err)
	}
}

func TestMiddleware_InvalidateOnRequiresRegistry(t *testing.T) {
	mw, err := NewMiddleware(NewMemoryStore(StoreConfig{}), nil, nil, nil, nil)
	if err != nil {
		t.Fatalf("NewMiddleware failed: %v", err)
	}
	ok := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {})

	if _, err := mw.Handler(Config{InvalidateOn: []string{"x"}}, ok); !errors.Is(err, ErrNoRegistry) {
		t.Errorf("Handler error = %v, want ErrNoRegistry", err)
	}
}

func TestStatsHandler(t *testing.T) {
	store := NewMemoryStore(StoreConfig{})
	ctx := context.Background()

	_ = store.Set(ctx, "key", testEntry("v"), time.Minute)
	store.Get(ctx, "key")
	store.Get(ctx, "absent")

	w := httptest.NewRecorder()
	StatsHandler(store).ServeHTTP(w, httptest.NewRequest("GET", "/admin/cache/stats", nil))

	if w.Code != http.StatusOK {
		t.Errorf("status = %d, want 200", w.Code)
	}
	if ct := w.Header().Get("Content-Type"); ct != "application/json" {
		t.Errorf("Content-Type = %q", ct)
	}
	body := w.Body.String()
	for _, want := range []string{`"size":1`, `"hit_count":1`, `"miss_count":1`, `"hit_rate":0.5`} {
		if !bytes.Contains([]byte(body), []byte(want)) {
			t.Errorf("stats body %q missing %q", body, want)
		}
	}
}
