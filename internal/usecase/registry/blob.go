package registry

import (
	"context"

	"github.com/bnema/zerowrap"
	"github.com/google/uuid"
	"github.com/moby/locker"

	"github.com/bnema/ocistore/internal/boundaries/out"
	"github.com/bnema/ocistore/internal/domain"
)

// BlobService implements in.BlobService.
type BlobService struct {
	store    out.BlobStore
	eventBus out.EventPublisher
	config   Config

	// sessions serializes read-modify-write cycles per upload session.
	sessions *locker.Locker
}

// NewBlobService creates a new blob engine. eventBus may be nil.
func NewBlobService(store out.BlobStore, eventBus out.EventPublisher, config Config) *BlobService {
	return &BlobService{
		store:    store,
		eventBus: eventBus,
		config:   config,
		sessions: locker.New(),
	}
}

// Read returns the blob stored under dgst.
func (s *BlobService) Read(ctx context.Context, name domain.RepositoryName, dgst domain.Digest) (*domain.Blob, domain.Headers, error) {
	ctx = zerowrap.CtxWithFields(ctx, map[string]any{
		zerowrap.FieldLayer:   "usecase",
		zerowrap.FieldUseCase: "ReadBlob",
		"name":                name.String(),
		"digest":              dgst.String(),
	})
	log := zerowrap.FromCtx(ctx)

	blob, err := s.store.ReadBlob(ctx, name, dgst)
	if err != nil {
		return nil, nil, fail(log, err, "failed to read blob")
	}

	headers := domain.NewHeaders().
		SetContentDigest(dgst).
		SetContentLength(int64(len(blob.Content)))

	return blob, headers, nil
}

// Exists reports whether dgst is stored. An absent blob is not an error.
func (s *BlobService) Exists(ctx context.Context, name domain.RepositoryName, dgst domain.Digest) (bool, domain.Headers, error) {
	ctx = zerowrap.CtxWithFields(ctx, map[string]any{
		zerowrap.FieldLayer:   "usecase",
		zerowrap.FieldUseCase: "BlobExists",
		"name":                name.String(),
		"digest":              dgst.String(),
	})
	log := zerowrap.FromCtx(ctx)

	meta, err := s.store.StatBlob(ctx, name, dgst)
	if err != nil {
		if domain.KindOf(err) == domain.KindBlobUnknown {
			return false, domain.NewHeaders(), nil
		}
		return false, nil, fail(log, err, "failed to check blob")
	}

	headers := domain.NewHeaders().
		SetContentDigest(dgst).
		SetContentLength(meta.ContentLength)

	return true, headers, nil
}

// MonolithicUpload verifies content against declaredLength and dgst, then
// stores it. Nothing is written unless both checks pass.
func (s *BlobService) MonolithicUpload(ctx context.Context, name domain.RepositoryName, dgst domain.Digest, declaredLength int64, content []byte) (domain.Headers, error) {
	ctx = zerowrap.CtxWithFields(ctx, map[string]any{
		zerowrap.FieldLayer:   "usecase",
		zerowrap.FieldUseCase: "MonolithicUpload",
		"name":                name.String(),
		"digest":              dgst.String(),
		zerowrap.FieldSize:    declaredLength,
	})
	log := zerowrap.FromCtx(ctx)

	if int64(len(content)) != declaredLength {
		return nil, fail(log, domain.NewError(domain.KindBlobUploadInvalid,
			"declared length %d does not match received %d bytes", declaredLength, len(content)), "upload rejected")
	}
	if !dgst.Validate(content) {
		return nil, fail(log, domain.NewError(domain.KindBlobUploadInvalid,
			"content does not match digest %s", dgst), "upload rejected")
	}

	if err := s.store.WriteBlob(ctx, name, domain.NewBlob(dgst, content)); err != nil {
		return nil, fail(log, err, "failed to store blob")
	}

	s.publish(log, domain.EventBlobCommitted, domain.BlobCommittedPayload{
		Repository: name.String(),
		Digest:     dgst.String(),
		Size:       declaredLength,
	})

	log.Info().Msg("blob stored")

	return domain.NewHeaders().
		SetLocation(blobLocation(name, dgst)).
		SetContentDigest(dgst).
		SetContentLength(0), nil
}

// StartUploadSession opens a new upload session with an empty buffer.
func (s *BlobService) StartUploadSession(ctx context.Context, name domain.RepositoryName) (domain.Headers, error) {
	sessionID := uuid.NewString()

	ctx = zerowrap.CtxWithFields(ctx, map[string]any{
		zerowrap.FieldLayer:   "usecase",
		zerowrap.FieldUseCase: "StartUploadSession",
		"name":                name.String(),
		"session_id":          sessionID,
	})
	log := zerowrap.FromCtx(ctx)

	if err := s.store.WriteChunk(ctx, name, sessionID, []byte{}); err != nil {
		return nil, fail(log, err, "failed to open upload session")
	}

	log.Debug().Msg("upload session started")

	headers := domain.NewHeaders().
		SetLocation(uploadLocation(name, sessionID)).
		SetUploadUUID(sessionID).
		SetRange(domain.RangeForLength(0)).
		SetContentLength(0)
	if s.config.MinChunkLength > 0 {
		headers.SetChunkMinLength(s.config.MinChunkLength)
	}

	return headers, nil
}

// AppendChunk appends chunk to the session buffer. When contentRange is set,
// it must start at the current buffer length and span exactly the chunk.
func (s *BlobService) AppendChunk(ctx context.Context, name domain.RepositoryName, sessionID string, chunk []byte, contentRange *domain.ByteRange) (domain.Headers, error) {
	ctx = zerowrap.CtxWithFields(ctx, map[string]any{
		zerowrap.FieldLayer:   "usecase",
		zerowrap.FieldUseCase: "AppendChunk",
		"name":                name.String(),
		"session_id":          sessionID,
		zerowrap.FieldSize:    len(chunk),
	})
	log := zerowrap.FromCtx(ctx)

	unlock := s.lockSession(name, sessionID)
	defer unlock()

	current, err := s.store.ReadChunk(ctx, name, sessionID)
	if err != nil {
		return nil, fail(log, err, "failed to read upload session")
	}

	if contentRange != nil {
		if contentRange.Start != int64(len(current)) {
			return nil, fail(log, domain.NewError(domain.KindSizeInvalid,
				"chunk starts at %d but %d bytes were received", contentRange.Start, len(current)), "chunk rejected")
		}
		if contentRange.Length() != int64(len(chunk)) {
			return nil, fail(log, domain.NewError(domain.KindSizeInvalid,
				"range %s does not match chunk of %d bytes", contentRange, len(chunk)), "chunk rejected")
		}
	}

	buffer := append(current, chunk...)
	if err := s.store.WriteChunk(ctx, name, sessionID, buffer); err != nil {
		return nil, fail(log, err, "failed to write upload session")
	}

	log.Debug().Int("received", len(buffer)).Msg("chunk appended")

	return domain.NewHeaders().
		SetLocation(uploadLocation(name, sessionID)).
		SetUploadUUID(sessionID).
		SetRange(domain.RangeForLength(int64(len(buffer)))).
		SetContentLength(0), nil
}

// FinalizeSession appends finalChunk, verifies the whole buffer against dgst
// and commits it as a blob. On a digest mismatch the session stays open.
func (s *BlobService) FinalizeSession(ctx context.Context, name domain.RepositoryName, dgst domain.Digest, sessionID string, finalChunk []byte) (domain.Headers, error) {
	ctx = zerowrap.CtxWithFields(ctx, map[string]any{
		zerowrap.FieldLayer:   "usecase",
		zerowrap.FieldUseCase: "FinalizeSession",
		"name":                name.String(),
		"session_id":          sessionID,
		"digest":              dgst.String(),
	})
	log := zerowrap.FromCtx(ctx)

	unlock := s.lockSession(name, sessionID)
	defer unlock()

	current, err := s.store.ReadChunk(ctx, name, sessionID)
	if err != nil {
		return nil, fail(log, err, "failed to read upload session")
	}

	content := append(current, finalChunk...)
	if !dgst.Validate(content) {
		return nil, fail(log, domain.NewError(domain.KindBlobUploadInvalid,
			"uploaded content does not match digest %s", dgst), "finalize rejected")
	}

	if err := s.store.WriteBlob(ctx, name, domain.NewBlob(dgst, content)); err != nil {
		return nil, fail(log, err, "failed to store blob")
	}
	if err := s.store.DeleteChunk(ctx, name, sessionID); err != nil {
		return nil, fail(log, err, "failed to release upload session")
	}

	s.publish(log, domain.EventBlobCommitted, domain.BlobCommittedPayload{
		Repository: name.String(),
		Digest:     dgst.String(),
		Size:       int64(len(content)),
		SessionID:  sessionID,
	})

	log.Info().Int(zerowrap.FieldSize, len(content)).Msg("upload session finalized")

	return domain.NewHeaders().
		SetLocation(blobLocation(name, dgst)).
		SetContentDigest(dgst).
		SetContentLength(0), nil
}

// SessionStatus reports how many bytes a session has received.
func (s *BlobService) SessionStatus(ctx context.Context, name domain.RepositoryName, sessionID string) (domain.Headers, error) {
	ctx = zerowrap.CtxWithFields(ctx, map[string]any{
		zerowrap.FieldLayer:   "usecase",
		zerowrap.FieldUseCase: "SessionStatus",
		"name":                name.String(),
		"session_id":          sessionID,
	})
	log := zerowrap.FromCtx(ctx)

	current, err := s.store.ReadChunk(ctx, name, sessionID)
	if err != nil {
		return nil, fail(log, err, "failed to read upload session")
	}

	return domain.NewHeaders().
		SetLocation(uploadLocation(name, sessionID)).
		SetUploadUUID(sessionID).
		SetRange(domain.RangeForLength(int64(len(current)))).
		SetContentLength(0), nil
}

// CancelSession abandons an upload session and releases its buffer.
func (s *BlobService) CancelSession(ctx context.Context, name domain.RepositoryName, sessionID string) error {
	ctx = zerowrap.CtxWithFields(ctx, map[string]any{
		zerowrap.FieldLayer:   "usecase",
		zerowrap.FieldUseCase: "CancelSession",
		"name":                name.String(),
		"session_id":          sessionID,
	})
	log := zerowrap.FromCtx(ctx)

	unlock := s.lockSession(name, sessionID)
	defer unlock()

	if err := s.store.DeleteChunk(ctx, name, sessionID); err != nil {
		return fail(log, err, "failed to cancel upload session")
	}

	log.Info().Msg("upload session cancelled")
	return nil
}

// Remove deletes a stored blob.
func (s *BlobService) Remove(ctx context.Context, name domain.RepositoryName, dgst domain.Digest) error {
	ctx = zerowrap.CtxWithFields(ctx, map[string]any{
		zerowrap.FieldLayer:   "usecase",
		zerowrap.FieldUseCase: "RemoveBlob",
		"name":                name.String(),
		"digest":              dgst.String(),
	})
	log := zerowrap.FromCtx(ctx)

	if err := s.store.DeleteBlob(ctx, name, dgst); err != nil {
		return fail(log, err, "failed to delete blob")
	}

	s.publish(log, domain.EventBlobDeleted, domain.BlobDeletedPayload{
		Repository: name.String(),
		Digest:     dgst.String(),
	})

	log.Info().Msg("blob deleted")
	return nil
}

func (s *BlobService) lockSession(name domain.RepositoryName, sessionID string) func() {
	key := name.String() + "/" + sessionID
	s.sessions.Lock(key)
	return func() {
		_ = s.sessions.Unlock(key)
	}
}

func (s *BlobService) publish(log zerowrap.Logger, eventType domain.EventType, payload any) {
	if s.eventBus == nil {
		return
	}
	if err := s.eventBus.Publish(eventType, payload); err != nil {
		log.Warn().Err(err).Str(zerowrap.FieldEvent, string(eventType)).Msg("failed to publish event")
	}
}
