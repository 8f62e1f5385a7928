package mocks

import (
	"context"

	"github.com/stretchr/testify/mock"

	"github.com/bnema/ocistore/internal/domain"
)

// MockBlobStore is a mock implementation of out.BlobStore
type MockBlobStore struct {
	mock.Mock
}

// Blob operations
func (m *MockBlobStore) ReadBlob(ctx context.Context, name domain.RepositoryName, dgst domain.Digest) (*domain.Blob, error) {
	args := m.Called(ctx, name, dgst)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.Blob), args.Error(1)
}

func (m *MockBlobStore) StatBlob(ctx context.Context, name domain.RepositoryName, dgst domain.Digest) (*domain.BlobMetadata, error) {
	args := m.Called(ctx, name, dgst)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.BlobMetadata), args.Error(1)
}

func (m *MockBlobStore) WriteBlob(ctx context.Context, name domain.RepositoryName, blob *domain.Blob) error {
	args := m.Called(ctx, name, blob)
	return args.Error(0)
}

func (m *MockBlobStore) DeleteBlob(ctx context.Context, name domain.RepositoryName, dgst domain.Digest) error {
	args := m.Called(ctx, name, dgst)
	return args.Error(0)
}

// Upload session operations
func (m *MockBlobStore) ReadChunk(ctx context.Context, name domain.RepositoryName, sessionID string) ([]byte, error) {
	args := m.Called(ctx, name, sessionID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]byte), args.Error(1)
}

func (m *MockBlobStore) WriteChunk(ctx context.Context, name domain.RepositoryName, sessionID string, data []byte) error {
	args := m.Called(ctx, name, sessionID, data)
	return args.Error(0)
}

func (m *MockBlobStore) DeleteChunk(ctx context.Context, name domain.RepositoryName, sessionID string) error {
	args := m.Called(ctx, name, sessionID)
	return args.Error(0)
}

// MockManifestStore is a mock implementation of out.ManifestStore
type MockManifestStore struct {
	mock.Mock
}

func (m *MockManifestStore) ReadManifest(ctx context.Context, name domain.RepositoryName, ref domain.Reference) (*domain.Manifest, error) {
	args := m.Called(ctx, name, ref)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.Manifest), args.Error(1)
}

func (m *MockManifestStore) WriteManifest(ctx context.Context, name domain.RepositoryName, ref domain.Reference, manifest *domain.Manifest) error {
	args := m.Called(ctx, name, ref, manifest)
	return args.Error(0)
}

func (m *MockManifestStore) DeleteManifest(ctx context.Context, name domain.RepositoryName, ref domain.Reference) error {
	args := m.Called(ctx, name, ref)
	return args.Error(0)
}

// Tag operations
func (m *MockManifestStore) ReadTags(ctx context.Context, name domain.RepositoryName) ([]string, error) {
	args := m.Called(ctx, name)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]string), args.Error(1)
}

func (m *MockManifestStore) WriteTags(ctx context.Context, name domain.RepositoryName, tags []string) error {
	args := m.Called(ctx, name, tags)
	return args.Error(0)
}
