package httpcache

import (
	"encoding/json"
	"net/http"
)

// StatsResponse is the JSON shape served by StatsHandler.
type StatsResponse struct {
	Size      int     `json:"size"`
	HitCount  uint64  `json:"hit_count"`
	MissCount uint64  `json:"miss_count"`
	HitRate   float64 `json:"hit_rate"`
}

// StatsHandler returns an HTTP handler exposing store statistics as JSON.
// Host applications mount it on an admin route for cache diagnostics.
func StatsHandler(store Store) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if store == nil {
			http.Error(w, "cache store not configured", http.StatusServiceUnavailable)
			return
		}

		s := store.Stats()
		response := StatsResponse{
			Size:      s.Size,
			HitCount:  s.Hits,
			MissCount: s.Misses,
			HitRate:   s.HitRate,
		}

		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		_ = json.NewEncoder(w).Encode(response)
	}
}
