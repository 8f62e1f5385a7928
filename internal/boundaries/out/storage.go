package out

import (
	"context"

	"github.com/bnema/ocistore/internal/domain"
)

// BlobStore defines the contract for blob and upload-session storage.
// Absent records are reported with the matching domain error kind.
type BlobStore interface {
	// ReadBlob returns the blob stored under dgst, or domain.ErrBlobUnknown.
	ReadBlob(ctx context.Context, name domain.RepositoryName, dgst domain.Digest) (*domain.Blob, error)

	// StatBlob returns the metadata of the blob stored under dgst without
	// its content, or domain.ErrBlobUnknown.
	StatBlob(ctx context.Context, name domain.RepositoryName, dgst domain.Digest) (*domain.BlobMetadata, error)

	// WriteBlob stores blob under its metadata digest.
	WriteBlob(ctx context.Context, name domain.RepositoryName, blob *domain.Blob) error

	// DeleteBlob removes a blob, or returns domain.ErrBlobUnknown.
	DeleteBlob(ctx context.Context, name domain.RepositoryName, dgst domain.Digest) error

	// ReadChunk returns the bytes accumulated for an upload session, or
	// domain.ErrBlobUploadUnknown.
	ReadChunk(ctx context.Context, name domain.RepositoryName, sessionID string) ([]byte, error)

	// WriteChunk replaces the accumulated bytes of an upload session.
	WriteChunk(ctx context.Context, name domain.RepositoryName, sessionID string, data []byte) error

	// DeleteChunk releases an upload session buffer, or returns
	// domain.ErrBlobUploadUnknown.
	DeleteChunk(ctx context.Context, name domain.RepositoryName, sessionID string) error
}

// ManifestStore defines the contract for manifest and tag list storage.
type ManifestStore interface {
	// ReadManifest returns the manifest stored under ref, or
	// domain.ErrManifestUnknown.
	ReadManifest(ctx context.Context, name domain.RepositoryName, ref domain.Reference) (*domain.Manifest, error)

	// WriteManifest stores manifest under ref.
	WriteManifest(ctx context.Context, name domain.RepositoryName, ref domain.Reference, manifest *domain.Manifest) error

	// DeleteManifest removes the manifest stored under ref, or returns
	// domain.ErrManifestUnknown.
	DeleteManifest(ctx context.Context, name domain.RepositoryName, ref domain.Reference) error

	// ReadTags returns the recorded tags of a repository, or
	// domain.ErrRepositoryNameUnknown when none were ever recorded.
	ReadTags(ctx context.Context, name domain.RepositoryName) ([]string, error)

	// WriteTags replaces the recorded tags of a repository.
	WriteTags(ctx context.Context, name domain.RepositoryName, tags []string) error
}
