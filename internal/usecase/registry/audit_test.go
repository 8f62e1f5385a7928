package registry

import (
	"bytes"
	"context"
	"testing"

	"github.com/bnema/zerowrap"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bnema/ocistore/internal/domain"
)

func TestAuditHandler_CanHandle(t *testing.T) {
	h := NewAuditHandler()

	assert.True(t, h.CanHandle(domain.EventBlobCommitted))
	assert.True(t, h.CanHandle(domain.EventBlobDeleted))
	assert.True(t, h.CanHandle(domain.EventManifestPushed))
	assert.True(t, h.CanHandle(domain.EventManifestDeleted))
	assert.False(t, h.CanHandle(domain.EventType("config.reload")))
}

func TestAuditHandler_Handle(t *testing.T) {
	tests := []struct {
		name  string
		event domain.Event
		want  []string
	}{
		{
			name: "blob committed",
			event: domain.Event{
				ID:         "1",
				Type:       domain.EventBlobCommitted,
				Repository: "library/alpine",
				Data: domain.BlobCommittedPayload{
					Repository: "library/alpine",
					Digest:     "sha256:abc",
					Size:       42,
					SessionID:  "session",
				},
			},
			want: []string{"library/alpine", "sha256:abc", "session"},
		},
		{
			name: "manifest pushed",
			event: domain.Event{
				ID:         "2",
				Type:       domain.EventManifestPushed,
				Repository: "library/alpine",
				Data: domain.ManifestPushedPayload{
					Repository: "library/alpine",
					Reference:  "latest",
					Digest:     "sha256:def",
					MediaType:  "application/vnd.oci.image.manifest.v1+json",
				},
			},
			want: []string{"latest", "sha256:def"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var buf bytes.Buffer
			log := zerowrap.New(zerowrap.Config{Level: "info", Format: "json", Output: &buf})
			ctx := zerowrap.WithCtx(context.Background(), log)

			require.NoError(t, NewAuditHandler().Handle(ctx, tt.event))

			out := buf.String()
			assert.Contains(t, out, "registry audit")
			assert.Contains(t, out, string(tt.event.Type))
			for _, v := range tt.want {
				assert.Contains(t, out, v)
			}
		})
	}
}
