package in

import (
	"context"

	"github.com/bnema/ocistore/internal/domain"
)

// BlobService defines the blob and upload-session operations of the registry.
type BlobService interface {
	Read(ctx context.Context, name domain.RepositoryName, dgst domain.Digest) (*domain.Blob, domain.Headers, error)
	Exists(ctx context.Context, name domain.RepositoryName, dgst domain.Digest) (bool, domain.Headers, error)
	MonolithicUpload(ctx context.Context, name domain.RepositoryName, dgst domain.Digest, declaredLength int64, content []byte) (domain.Headers, error)
	Remove(ctx context.Context, name domain.RepositoryName, dgst domain.Digest) error

	// Upload sessions
	StartUploadSession(ctx context.Context, name domain.RepositoryName) (domain.Headers, error)
	AppendChunk(ctx context.Context, name domain.RepositoryName, sessionID string, chunk []byte, contentRange *domain.ByteRange) (domain.Headers, error)
	FinalizeSession(ctx context.Context, name domain.RepositoryName, dgst domain.Digest, sessionID string, finalChunk []byte) (domain.Headers, error)
	SessionStatus(ctx context.Context, name domain.RepositoryName, sessionID string) (domain.Headers, error)
	CancelSession(ctx context.Context, name domain.RepositoryName, sessionID string) error
}

// ManifestService defines the manifest and tag operations of the registry.
type ManifestService interface {
	Pull(ctx context.Context, name domain.RepositoryName, ref domain.Reference) (*domain.Manifest, domain.Headers, error)
	Push(ctx context.Context, name domain.RepositoryName, ref domain.Reference, manifest *domain.Manifest) (domain.Headers, error)
	Remove(ctx context.Context, name domain.RepositoryName, ref domain.Reference) error

	// ListTags returns up to n tags sorted lexically, starting after last.
	// n <= 0 means no limit.
	ListTags(ctx context.Context, name domain.RepositoryName, n int, last string) ([]string, error)
}
