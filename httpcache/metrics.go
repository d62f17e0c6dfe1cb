package httpcache

import (
	"context"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// Cache disposition values recorded per request.
const (
	resultHit         = "hit"
	resultMiss        = "miss"
	resultRevalidated = "revalidated"
	resultBypass      = "bypass"
)

// metrics records cache lookup dispositions.
type metrics struct {
	requests metric.Int64Counter
}

func newMetrics(meter metric.Meter) (*metrics, error) {
	requests, err := meter.Int64Counter(
		"httpcache.requests",
		metric.WithDescription("Cache lookups by disposition"),
		metric.WithUnit("{request}"),
	)
	if err != nil {
		return nil, err
	}
	return &metrics{requests: requests}, nil
}

func (m *metrics) record(ctx context.Context, result string) {
	if m == nil || m.requests == nil {
		return
	}
	m.requests.Add(ctx, 1, metric.WithAttributes(attribute.String("cache.result", result)))
}
