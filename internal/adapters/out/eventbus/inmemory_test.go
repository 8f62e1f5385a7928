package eventbus

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/bnema/zerowrap"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bnema/ocistore/internal/adapters/out/telemetry"
	"github.com/bnema/ocistore/internal/domain"
)

type recordingHandler struct {
	accept domain.EventType
	err    error

	mu     sync.Mutex
	events []domain.Event
	seen   chan struct{}
}

func newRecordingHandler(accept domain.EventType) *recordingHandler {
	return &recordingHandler{accept: accept, seen: make(chan struct{}, 16)}
}

func (h *recordingHandler) CanHandle(eventType domain.EventType) bool {
	return eventType == h.accept
}

func (h *recordingHandler) Handle(_ context.Context, event domain.Event) error {
	h.mu.Lock()
	h.events = append(h.events, event)
	h.mu.Unlock()
	h.seen <- struct{}{}
	return h.err
}

func (h *recordingHandler) received() []domain.Event {
	h.mu.Lock()
	defer h.mu.Unlock()
	return append([]domain.Event(nil), h.events...)
}

func waitFor(t *testing.T, ch <-chan struct{}) {
	t.Helper()
	select {
	case <-ch:
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for event")
	}
}

func newStartedBus(t *testing.T) *InMemory {
	t.Helper()
	bus := NewInMemory(10, zerowrap.Default())
	metrics, err := telemetry.NewMetrics()
	require.NoError(t, err)
	bus.SetMetrics(metrics)
	require.NoError(t, bus.Start())
	t.Cleanup(func() { _ = bus.Stop() })
	return bus
}

func TestInMemory_PublishDispatchesToMatchingHandlers(t *testing.T) {
	bus := newStartedBus(t)
	pushed := newRecordingHandler(domain.EventManifestPushed)
	deleted := newRecordingHandler(domain.EventBlobDeleted)
	require.NoError(t, bus.Subscribe(pushed))
	require.NoError(t, bus.Subscribe(deleted))

	err := bus.Publish(domain.EventManifestPushed, domain.ManifestPushedPayload{
		Repository: "library/alpine",
		Reference:  "latest",
		Digest:     "sha256:abc",
	})
	require.NoError(t, err)

	waitFor(t, pushed.seen)

	events := pushed.received()
	require.Len(t, events, 1)
	assert.Equal(t, domain.EventManifestPushed, events[0].Type)
	assert.Equal(t, "library/alpine", events[0].Repository)
	assert.Equal(t, "latest", events[0].Reference)
	assert.NotEmpty(t, events[0].ID)
	assert.Empty(t, deleted.received())
}

func TestInMemory_BlobPayloadFields(t *testing.T) {
	bus := newStartedBus(t)
	h := newRecordingHandler(domain.EventBlobCommitted)
	require.NoError(t, bus.Subscribe(h))

	require.NoError(t, bus.Publish(domain.EventBlobCommitted, domain.BlobCommittedPayload{
		Repository: "app",
		Digest:     "sha256:def",
		Size:       42,
	}))

	waitFor(t, h.seen)
	events := h.received()
	require.Len(t, events, 1)
	assert.Equal(t, "app", events[0].Repository)
	assert.Equal(t, "sha256:def", events[0].Reference)
}

func TestInMemory_HandlerErrorDoesNotStopBus(t *testing.T) {
	bus := newStartedBus(t)
	h := newRecordingHandler(domain.EventBlobDeleted)
	h.err = errors.New("handler failed")
	require.NoError(t, bus.Subscribe(h))

	require.NoError(t, bus.Publish(domain.EventBlobDeleted, domain.BlobDeletedPayload{Repository: "app"}))
	require.NoError(t, bus.Publish(domain.EventBlobDeleted, domain.BlobDeletedPayload{Repository: "app"}))

	waitFor(t, h.seen)
	waitFor(t, h.seen)
	assert.Len(t, h.received(), 2)
}

func TestInMemory_Unsubscribe(t *testing.T) {
	bus := NewInMemory(0, zerowrap.Default())
	h := newRecordingHandler(domain.EventBlobDeleted)

	assert.Error(t, bus.Unsubscribe(h))

	require.NoError(t, bus.Subscribe(h))
	assert.NoError(t, bus.Unsubscribe(h))
	assert.Error(t, bus.Unsubscribe(h))
}

func TestInMemory_PublishAfterStop(t *testing.T) {
	bus := NewInMemory(1, zerowrap.Default())
	require.NoError(t, bus.Start())
	require.NoError(t, bus.Stop())

	err := bus.Publish(domain.EventBlobDeleted, domain.BlobDeletedPayload{})
	assert.ErrorIs(t, err, ErrStopped)
}

func TestInMemory_PublishTimesOutWhenFull(t *testing.T) {
	bus := NewInMemory(1, zerowrap.Default())
	bus.publishTimeout = 10 * time.Millisecond

	// Not started: the single buffer slot fills and nothing drains it.
	require.NoError(t, bus.Publish(domain.EventBlobDeleted, domain.BlobDeletedPayload{}))
	err := bus.Publish(domain.EventBlobDeleted, domain.BlobDeletedPayload{})

	assert.Error(t, err)
	assert.NotErrorIs(t, err, ErrStopped)
}
