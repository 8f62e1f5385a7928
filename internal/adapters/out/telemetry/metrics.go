package telemetry

import (
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/metric"
)

// MeterName is the instrumentation scope of all registry instruments.
const MeterName = "ocistore"

// Metrics holds the registry's OTel metric instruments.
type Metrics struct {
	// Blobs
	BlobCommits     metric.Int64Counter
	BlobCommitBytes metric.Int64Counter // bytes
	BlobDeletes     metric.Int64Counter

	// Manifests
	ManifestPushes  metric.Int64Counter
	ManifestDeletes metric.Int64Counter
	TagsPruned      metric.Int64Counter

	// HTTP
	RequestErrors metric.Int64Counter
	RateLimited   metric.Int64Counter

	// Events
	EventsProcessed metric.Int64Counter
	EventsDropped   metric.Int64Counter
}

// NewMetrics creates and registers all registry metric instruments.
// All fields are always initialized; OTel returns noop instruments when no
// MeterProvider is set.
func NewMetrics() (*Metrics, error) {
	meter := otel.Meter(MeterName)
	m := &Metrics{}
	var err error

	if m.BlobCommits, err = meter.Int64Counter("ocistore.blob.commits",
		metric.WithDescription("Total blobs committed")); err != nil {
		return nil, err
	}
	if m.BlobCommitBytes, err = meter.Int64Counter("ocistore.blob.commit.bytes",
		metric.WithDescription("Total bytes committed as blobs"),
		metric.WithUnit("By")); err != nil {
		return nil, err
	}
	if m.BlobDeletes, err = meter.Int64Counter("ocistore.blob.deletes",
		metric.WithDescription("Total blobs deleted")); err != nil {
		return nil, err
	}
	if m.ManifestPushes, err = meter.Int64Counter("ocistore.manifest.pushes",
		metric.WithDescription("Total manifest pushes")); err != nil {
		return nil, err
	}
	if m.ManifestDeletes, err = meter.Int64Counter("ocistore.manifest.deletes",
		metric.WithDescription("Total manifest deletions")); err != nil {
		return nil, err
	}
	if m.TagsPruned, err = meter.Int64Counter("ocistore.tags.pruned",
		metric.WithDescription("Total tags pruned by digest deletion")); err != nil {
		return nil, err
	}
	if m.RequestErrors, err = meter.Int64Counter("ocistore.http.errors",
		metric.WithDescription("Total registry error responses")); err != nil {
		return nil, err
	}
	if m.RateLimited, err = meter.Int64Counter("ocistore.http.rate_limited",
		metric.WithDescription("Total requests rejected by rate limiting")); err != nil {
		return nil, err
	}
	if m.EventsProcessed, err = meter.Int64Counter("ocistore.events.processed",
		metric.WithDescription("Total events processed")); err != nil {
		return nil, err
	}
	if m.EventsDropped, err = meter.Int64Counter("ocistore.events.dropped",
		metric.WithDescription("Total events dropped")); err != nil {
		return nil, err
	}

	return m, nil
}
