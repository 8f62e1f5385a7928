package telemetry

import (
	"context"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"

	"github.com/bnema/ocistore/internal/domain"
)

// EventRecorder is an event handler that turns registry events into metrics.
type EventRecorder struct {
	metrics *Metrics
}

// NewEventRecorder creates a recorder bound to m.
func NewEventRecorder(m *Metrics) *EventRecorder {
	return &EventRecorder{metrics: m}
}

// CanHandle accepts every registry event.
func (r *EventRecorder) CanHandle(eventType domain.EventType) bool {
	switch eventType {
	case domain.EventBlobCommitted, domain.EventBlobDeleted,
		domain.EventManifestPushed, domain.EventManifestDeleted:
		return true
	}
	return false
}

// Handle records event into the matching instruments.
func (r *EventRecorder) Handle(ctx context.Context, event domain.Event) error {
	repo := metric.WithAttributes(attribute.String("repository", event.Repository))

	switch p := event.Data.(type) {
	case domain.BlobCommittedPayload:
		upload := "monolithic"
		if p.SessionID != "" {
			upload = "chunked"
		}
		attrs := metric.WithAttributes(
			attribute.String("repository", event.Repository),
			attribute.String("upload", upload),
		)
		r.metrics.BlobCommits.Add(ctx, 1, attrs)
		r.metrics.BlobCommitBytes.Add(ctx, p.Size, attrs)
	case domain.BlobDeletedPayload:
		r.metrics.BlobDeletes.Add(ctx, 1, repo)
	case domain.ManifestPushedPayload:
		r.metrics.ManifestPushes.Add(ctx, 1, metric.WithAttributes(
			attribute.String("repository", event.Repository),
			attribute.String("media_type", p.MediaType),
		))
	case domain.ManifestDeletedPayload:
		r.metrics.ManifestDeletes.Add(ctx, 1, repo)
		if len(p.PrunedTags) > 0 {
			r.metrics.TagsPruned.Add(ctx, int64(len(p.PrunedTags)), repo)
		}
	}

	return nil
}
