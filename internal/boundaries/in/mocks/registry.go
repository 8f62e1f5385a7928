package mocks

import (
	"context"

	"github.com/stretchr/testify/mock"

	"github.com/bnema/ocistore/internal/domain"
)

// MockBlobService is a mock implementation of in.BlobService
type MockBlobService struct {
	mock.Mock
}

func headersAt(args mock.Arguments, i int) domain.Headers {
	if args.Get(i) == nil {
		return nil
	}
	return args.Get(i).(domain.Headers)
}

func (m *MockBlobService) Read(ctx context.Context, name domain.RepositoryName, dgst domain.Digest) (*domain.Blob, domain.Headers, error) {
	args := m.Called(ctx, name, dgst)
	if args.Get(0) == nil {
		return nil, headersAt(args, 1), args.Error(2)
	}
	return args.Get(0).(*domain.Blob), headersAt(args, 1), args.Error(2)
}

func (m *MockBlobService) Exists(ctx context.Context, name domain.RepositoryName, dgst domain.Digest) (bool, domain.Headers, error) {
	args := m.Called(ctx, name, dgst)
	return args.Bool(0), headersAt(args, 1), args.Error(2)
}

func (m *MockBlobService) MonolithicUpload(ctx context.Context, name domain.RepositoryName, dgst domain.Digest, declaredLength int64, content []byte) (domain.Headers, error) {
	args := m.Called(ctx, name, dgst, declaredLength, content)
	return headersAt(args, 0), args.Error(1)
}

func (m *MockBlobService) Remove(ctx context.Context, name domain.RepositoryName, dgst domain.Digest) error {
	args := m.Called(ctx, name, dgst)
	return args.Error(0)
}

// Upload sessions
func (m *MockBlobService) StartUploadSession(ctx context.Context, name domain.RepositoryName) (domain.Headers, error) {
	args := m.Called(ctx, name)
	return headersAt(args, 0), args.Error(1)
}

func (m *MockBlobService) AppendChunk(ctx context.Context, name domain.RepositoryName, sessionID string, chunk []byte, contentRange *domain.ByteRange) (domain.Headers, error) {
	args := m.Called(ctx, name, sessionID, chunk, contentRange)
	return headersAt(args, 0), args.Error(1)
}

func (m *MockBlobService) FinalizeSession(ctx context.Context, name domain.RepositoryName, dgst domain.Digest, sessionID string, finalChunk []byte) (domain.Headers, error) {
	args := m.Called(ctx, name, dgst, sessionID, finalChunk)
	return headersAt(args, 0), args.Error(1)
}

func (m *MockBlobService) SessionStatus(ctx context.Context, name domain.RepositoryName, sessionID string) (domain.Headers, error) {
	args := m.Called(ctx, name, sessionID)
	return headersAt(args, 0), args.Error(1)
}

func (m *MockBlobService) CancelSession(ctx context.Context, name domain.RepositoryName, sessionID string) error {
	args := m.Called(ctx, name, sessionID)
	return args.Error(0)
}

// MockManifestService is a mock implementation of in.ManifestService
type MockManifestService struct {
	mock.Mock
}

func (m *MockManifestService) Pull(ctx context.Context, name domain.RepositoryName, ref domain.Reference) (*domain.Manifest, domain.Headers, error) {
	args := m.Called(ctx, name, ref)
	if args.Get(0) == nil {
		return nil, headersAt(args, 1), args.Error(2)
	}
	return args.Get(0).(*domain.Manifest), headersAt(args, 1), args.Error(2)
}

func (m *MockManifestService) Push(ctx context.Context, name domain.RepositoryName, ref domain.Reference, manifest *domain.Manifest) (domain.Headers, error) {
	args := m.Called(ctx, name, ref, manifest)
	return headersAt(args, 0), args.Error(1)
}

func (m *MockManifestService) Remove(ctx context.Context, name domain.RepositoryName, ref domain.Reference) error {
	args := m.Called(ctx, name, ref)
	return args.Error(0)
}

func (m *MockManifestService) ListTags(ctx context.Context, name domain.RepositoryName, n int, last string) ([]string, error) {
	args := m.Called(ctx, name, n, last)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]string), args.Error(1)
}
