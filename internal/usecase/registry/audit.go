package registry

import (
	"context"

	"github.com/bnema/zerowrap"

	"github.com/bnema/ocistore/internal/domain"
)

// AuditHandler writes one structured log line per registry mutation.
type AuditHandler struct{}

// NewAuditHandler creates a new AuditHandler.
func NewAuditHandler() *AuditHandler {
	return &AuditHandler{}
}

// CanHandle returns whether this handler can handle the given event type.
func (h *AuditHandler) CanHandle(eventType domain.EventType) bool {
	switch eventType {
	case domain.EventBlobCommitted, domain.EventBlobDeleted,
		domain.EventManifestPushed, domain.EventManifestDeleted:
		return true
	}
	return false
}

// Handle logs the event with its payload fields.
func (h *AuditHandler) Handle(ctx context.Context, event domain.Event) error {
	ctx = zerowrap.CtxWithFields(ctx, map[string]any{
		zerowrap.FieldLayer:   "usecase",
		zerowrap.FieldHandler: "AuditHandler",
		zerowrap.FieldEvent:   string(event.Type),
		"event_id":            event.ID,
	})
	log := zerowrap.FromCtx(ctx)

	entry := log.Info().Str("repository", event.Repository)

	switch p := event.Data.(type) {
	case domain.BlobCommittedPayload:
		entry = entry.Str("digest", p.Digest).Int64(zerowrap.FieldSize, p.Size)
		if p.SessionID != "" {
			entry = entry.Str("session_id", p.SessionID)
		}
	case domain.BlobDeletedPayload:
		entry = entry.Str("digest", p.Digest)
	case domain.ManifestPushedPayload:
		entry = entry.
			Str("reference", p.Reference).
			Str("digest", p.Digest).
			Str("media_type", p.MediaType).
			Int("layers", p.Layers)
	case domain.ManifestDeletedPayload:
		entry = entry.Str("reference", p.Reference).Strs("pruned_tags", p.PrunedTags)
	}

	entry.Msg("registry audit")
	return nil
}
