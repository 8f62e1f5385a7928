package registry

import (
	"bytes"
	"errors"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/bnema/ocistore/internal/boundaries/out/mocks"
	"github.com/bnema/ocistore/internal/domain"
)

const helloDigest = "sha256:2cf24dba5fb0a30e26e83b2ac5b9e29e1b161e5c1fa7425e73043362938b9824"

func TestBlobService_MonolithicUpload_Success(t *testing.T) {
	svc := NewBlobService(newMemStore(t), nil, DefaultConfig())
	ctx := testContext()
	name := mustName(t, "library/alpine")
	dgst := mustDigest(t, helloDigest)

	headers, err := svc.MonolithicUpload(ctx, name, dgst, 5, []byte("hello"))

	require.NoError(t, err)
	assert.Equal(t, "/v2/library/alpine/blobs/"+helloDigest, headers.Get(domain.HeaderLocation))
	assert.Equal(t, helloDigest, headers.Get(domain.HeaderDockerContentDigest))

	blob, headers, err := svc.Read(ctx, name, dgst)
	require.NoError(t, err)
	assert.Equal(t, []byte("hello"), blob.Content)
	assert.Equal(t, int64(5), blob.Metadata.ContentLength)
	assert.Equal(t, "5", headers.Get(domain.HeaderContentLength))
}

func TestBlobService_MonolithicUpload_Rejected(t *testing.T) {
	tests := []struct {
		name   string
		digest string
		length int64
	}{
		{name: "digest mismatch", digest: "sha256:" + strings.Repeat("0", 64), length: 5},
		{name: "length mismatch", digest: helloDigest, length: 6},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			store := &mocks.MockBlobStore{}
			svc := NewBlobService(store, nil, DefaultConfig())

			_, err := svc.MonolithicUpload(testContext(), mustName(t, "app"), mustDigest(t, tt.digest), tt.length, []byte("hello"))

			assert.ErrorIs(t, err, domain.ErrBlobUploadInvalid)
			store.AssertNotCalled(t, "WriteBlob", mock.Anything, mock.Anything, mock.Anything)
		})
	}
}

func TestBlobService_Exists(t *testing.T) {
	svc := NewBlobService(newMemStore(t), nil, DefaultConfig())
	ctx := testContext()
	name := mustName(t, "app")
	dgst := mustDigest(t, helloDigest)

	ok, headers, err := svc.Exists(ctx, name, dgst)
	require.NoError(t, err)
	assert.False(t, ok)
	assert.Empty(t, headers)

	_, err = svc.MonolithicUpload(ctx, name, dgst, 5, []byte("hello"))
	require.NoError(t, err)

	ok, headers, err = svc.Exists(ctx, name, dgst)
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, helloDigest, headers.Get(domain.HeaderDockerContentDigest))
	assert.Equal(t, "5", headers.Get(domain.HeaderContentLength))
}

func TestBlobService_Exists_StorageFailure(t *testing.T) {
	store := &mocks.MockBlobStore{}
	svc := NewBlobService(store, nil, DefaultConfig())
	store.On("StatBlob", mock.Anything, mock.Anything, mock.Anything).Return(nil, errors.New("io error"))

	ok, _, err := svc.Exists(testContext(), mustName(t, "app"), mustDigest(t, helloDigest))

	assert.False(t, ok)
	assert.ErrorIs(t, err, domain.ErrGeneric)
}

func TestBlobService_ChunkedUpload(t *testing.T) {
	svc := NewBlobService(newMemStore(t), nil, Config{MinChunkLength: 1024})
	ctx := testContext()
	name := mustName(t, "app")

	headers, err := svc.StartUploadSession(ctx, name)
	require.NoError(t, err)
	sessionID := headers.Get(domain.HeaderDockerUploadUUID)
	require.NotEmpty(t, sessionID)
	assert.Equal(t, "/v2/app/blobs/uploads/"+sessionID, headers.Get(domain.HeaderLocation))
	assert.Equal(t, "0-0", headers.Get(domain.HeaderRange))
	assert.Equal(t, "1024", headers.Get(domain.HeaderOCIChunkMinLength))

	headers, err = svc.AppendChunk(ctx, name, sessionID, []byte("he"), nil)
	require.NoError(t, err)
	assert.Equal(t, "0-1", headers.Get(domain.HeaderRange))

	headers, err = svc.AppendChunk(ctx, name, sessionID, []byte("llo"), &domain.ByteRange{Start: 2, End: 4})
	require.NoError(t, err)
	assert.Equal(t, "0-4", headers.Get(domain.HeaderRange))

	headers, err = svc.SessionStatus(ctx, name, sessionID)
	require.NoError(t, err)
	assert.Equal(t, "0-4", headers.Get(domain.HeaderRange))

	dgst := mustDigest(t, helloDigest)
	headers, err = svc.FinalizeSession(ctx, name, dgst, sessionID, nil)
	require.NoError(t, err)
	assert.Equal(t, "/v2/app/blobs/"+helloDigest, headers.Get(domain.HeaderLocation))
	assert.Equal(t, helloDigest, headers.Get(domain.HeaderDockerContentDigest))

	blob, _, err := svc.Read(ctx, name, dgst)
	require.NoError(t, err)
	assert.Equal(t, []byte("hello"), blob.Content)

	// A finalized session cannot be resurrected.
	_, err = svc.AppendChunk(ctx, name, sessionID, []byte("x"), nil)
	assert.ErrorIs(t, err, domain.ErrBlobUploadUnknown)
	_, err = svc.FinalizeSession(ctx, name, dgst, sessionID, nil)
	assert.ErrorIs(t, err, domain.ErrBlobUploadUnknown)
}

func TestBlobService_ChunkedMatchesMonolithic(t *testing.T) {
	ctx := testContext()
	name := mustName(t, "app")
	dgst := mustDigest(t, helloDigest)

	chunked := NewBlobService(newMemStore(t), nil, DefaultConfig())
	headers, err := chunked.StartUploadSession(ctx, name)
	require.NoError(t, err)
	sessionID := headers.Get(domain.HeaderDockerUploadUUID)
	_, err = chunked.AppendChunk(ctx, name, sessionID, []byte("hel"), nil)
	require.NoError(t, err)
	_, err = chunked.FinalizeSession(ctx, name, dgst, sessionID, []byte("lo"))
	require.NoError(t, err)

	monolithic := NewBlobService(newMemStore(t), nil, DefaultConfig())
	_, err = monolithic.MonolithicUpload(ctx, name, dgst, 5, []byte("hello"))
	require.NoError(t, err)

	a, _, err := chunked.Read(ctx, name, dgst)
	require.NoError(t, err)
	b, _, err := monolithic.Read(ctx, name, dgst)
	require.NoError(t, err)
	assert.Equal(t, b, a)
}

func TestBlobService_FinalizeSession_DigestMismatchKeepsSession(t *testing.T) {
	svc := NewBlobService(newMemStore(t), nil, DefaultConfig())
	ctx := testContext()
	name := mustName(t, "app")

	headers, err := svc.StartUploadSession(ctx, name)
	require.NoError(t, err)
	sessionID := headers.Get(domain.HeaderDockerUploadUUID)

	_, err = svc.AppendChunk(ctx, name, sessionID, []byte("hell"), nil)
	require.NoError(t, err)

	_, err = svc.FinalizeSession(ctx, name, mustDigest(t, "sha256:"+strings.Repeat("0", 64)), sessionID, nil)
	assert.ErrorIs(t, err, domain.ErrBlobUploadInvalid)

	headers, err = svc.SessionStatus(ctx, name, sessionID)
	require.NoError(t, err)
	assert.Equal(t, "0-3", headers.Get(domain.HeaderRange))

	_, err = svc.FinalizeSession(ctx, name, mustDigest(t, helloDigest), sessionID, []byte("o"))
	assert.NoError(t, err)
}

func TestBlobService_AppendChunk_RangeChecks(t *testing.T) {
	svc := NewBlobService(newMemStore(t), nil, DefaultConfig())
	ctx := testContext()
	name := mustName(t, "app")

	headers, err := svc.StartUploadSession(ctx, name)
	require.NoError(t, err)
	sessionID := headers.Get(domain.HeaderDockerUploadUUID)

	_, err = svc.AppendChunk(ctx, name, sessionID, []byte("he"), &domain.ByteRange{Start: 3, End: 4})
	assert.ErrorIs(t, err, domain.ErrSizeInvalid)

	_, err = svc.AppendChunk(ctx, name, sessionID, []byte("he"), &domain.ByteRange{Start: 0, End: 5})
	assert.ErrorIs(t, err, domain.ErrSizeInvalid)

	headers, err = svc.SessionStatus(ctx, name, sessionID)
	require.NoError(t, err)
	assert.Equal(t, "0-0", headers.Get(domain.HeaderRange))
}

func TestBlobService_UnknownSession(t *testing.T) {
	svc := NewBlobService(newMemStore(t), nil, DefaultConfig())
	ctx := testContext()
	name := mustName(t, "app")

	_, err := svc.AppendChunk(ctx, name, "nope", []byte("x"), nil)
	assert.ErrorIs(t, err, domain.ErrBlobUploadUnknown)

	_, err = svc.SessionStatus(ctx, name, "nope")
	assert.ErrorIs(t, err, domain.ErrBlobUploadUnknown)

	assert.ErrorIs(t, svc.CancelSession(ctx, name, "nope"), domain.ErrBlobUploadUnknown)
}

func TestBlobService_CancelSession(t *testing.T) {
	svc := NewBlobService(newMemStore(t), nil, DefaultConfig())
	ctx := testContext()
	name := mustName(t, "app")

	headers, err := svc.StartUploadSession(ctx, name)
	require.NoError(t, err)
	sessionID := headers.Get(domain.HeaderDockerUploadUUID)

	require.NoError(t, svc.CancelSession(ctx, name, sessionID))

	_, err = svc.AppendChunk(ctx, name, sessionID, []byte("x"), nil)
	assert.ErrorIs(t, err, domain.ErrBlobUploadUnknown)
}

func TestBlobService_ConcurrentAppends(t *testing.T) {
	svc := NewBlobService(newMemStore(t), nil, DefaultConfig())
	ctx := testContext()
	name := mustName(t, "app")

	headers, err := svc.StartUploadSession(ctx, name)
	require.NoError(t, err)
	sessionID := headers.Get(domain.HeaderDockerUploadUUID)

	const workers = 16
	const chunkSize = 64

	var wg sync.WaitGroup
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func(b byte) {
			defer wg.Done()
			_, err := svc.AppendChunk(ctx, name, sessionID, bytes.Repeat([]byte{b}, chunkSize), nil)
			assert.NoError(t, err)
		}(byte('a' + i))
	}
	wg.Wait()

	headers, err = svc.SessionStatus(ctx, name, sessionID)
	require.NoError(t, err)
	assert.Equal(t, domain.RangeForLength(workers*chunkSize).String(), headers.Get(domain.HeaderRange))

	current, err := svc.store.ReadChunk(ctx, name, sessionID)
	require.NoError(t, err)
	dgst := domain.SHA256Of(current)
	_, err = svc.FinalizeSession(ctx, name, dgst, sessionID, nil)
	require.NoError(t, err)

	blob, _, err := svc.Read(ctx, name, dgst)
	require.NoError(t, err)
	require.Len(t, blob.Content, workers*chunkSize)

	seen := make(map[byte]bool, workers)
	for i := 0; i < workers; i++ {
		run := blob.Content[i*chunkSize : (i+1)*chunkSize]
		letter := run[0]
		assert.Equal(t, bytes.Repeat([]byte{letter}, chunkSize), run, "run %d is not a single-letter chunk", i)
		assert.False(t, seen[letter], "chunk %q appended twice", letter)
		assert.True(t, letter >= 'a' && letter < 'a'+workers, "unexpected byte %q", letter)
		seen[letter] = true
	}
	assert.Len(t, seen, workers)
}

func TestBlobService_SequentialAppendsPreserveOrder(t *testing.T) {
	svc := NewBlobService(newMemStore(t), nil, DefaultConfig())
	ctx := testContext()
	name := mustName(t, "app")

	headers, err := svc.StartUploadSession(ctx, name)
	require.NoError(t, err)
	sessionID := headers.Get(domain.HeaderDockerUploadUUID)

	var want []byte
	for i := 0; i < 10; i++ {
		chunk := bytes.Repeat([]byte{byte('0' + i)}, i+1)
		want = append(want, chunk...)
		_, err := svc.AppendChunk(ctx, name, sessionID, chunk, nil)
		require.NoError(t, err)
	}

	dgst := domain.SHA256Of(want)
	_, err = svc.FinalizeSession(ctx, name, dgst, sessionID, nil)
	require.NoError(t, err)

	blob, _, err := svc.Read(ctx, name, dgst)
	require.NoError(t, err)
	assert.Equal(t, want, blob.Content)
}

func TestBlobService_Remove(t *testing.T) {
	events := &mocks.MockEventPublisher{}
	svc := NewBlobService(newMemStore(t), events, DefaultConfig())
	ctx := testContext()
	name := mustName(t, "app")
	dgst := mustDigest(t, helloDigest)

	events.On("Publish", domain.EventBlobCommitted, mock.AnythingOfType("domain.BlobCommittedPayload")).Return(nil)
	events.On("Publish", domain.EventBlobDeleted, domain.BlobDeletedPayload{Repository: "app", Digest: helloDigest}).Return(nil)

	assert.ErrorIs(t, svc.Remove(ctx, name, dgst), domain.ErrBlobUnknown)

	_, err := svc.MonolithicUpload(ctx, name, dgst, 5, []byte("hello"))
	require.NoError(t, err)
	require.NoError(t, svc.Remove(ctx, name, dgst))

	_, _, err = svc.Read(ctx, name, dgst)
	assert.ErrorIs(t, err, domain.ErrBlobUnknown)

	events.AssertExpectations(t)
}

func TestBlobService_PublishFailureDoesNotFailUpload(t *testing.T) {
	events := &mocks.MockEventPublisher{}
	svc := NewBlobService(newMemStore(t), events, DefaultConfig())
	events.On("Publish", mock.Anything, mock.Anything).Return(errors.New("bus stopped"))

	_, err := svc.MonolithicUpload(testContext(), mustName(t, "app"), mustDigest(t, helloDigest), 5, []byte("hello"))

	assert.NoError(t, err)
}
