// Package kvstore implements the blob and manifest stores on top of an opaque
// key/value persistence.
package kvstore

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/bnema/zerowrap"

	"github.com/bnema/ocistore/internal/boundaries/out"
	"github.com/bnema/ocistore/internal/domain"
)

// Store implements out.BlobStore and out.ManifestStore.
type Store struct {
	persistence out.Persistence
	log         zerowrap.Logger
}

// NewStore creates a store over persistence.
func NewStore(persistence out.Persistence, log zerowrap.Logger) *Store {
	return &Store{persistence: persistence, log: log}
}

// Kind segments start with an underscore, which no repository name
// component may, so keys of different repositories never collide.
const (
	blobKind     = "_blob"
	blobMetaKind = "_blob_meta"
	chunkKind    = "_blob_chunk"
	manifestKind = "_manifest"
	tagsKind     = "_tags"
)

// BlobKey is "<repo>/_blob/<digest-hex>".
func BlobKey(name domain.RepositoryName, dgst domain.Digest) string {
	return name.String() + "/" + blobKind + "/" + dgst.Hex()
}

// BlobMetaKey is "<repo>/_blob_meta/<digest-hex>".
func BlobMetaKey(name domain.RepositoryName, dgst domain.Digest) string {
	return name.String() + "/" + blobMetaKind + "/" + dgst.Hex()
}

// ChunkKey is "<repo>/_blob_chunk/<session-id>".
func ChunkKey(name domain.RepositoryName, sessionID string) string {
	return name.String() + "/" + chunkKind + "/" + sessionID
}

// ManifestKey is "<repo>/_manifest/<reference>", where a digest reference
// keeps its "algorithm:hex" form.
func ManifestKey(name domain.RepositoryName, ref domain.Reference) string {
	return name.String() + "/" + manifestKind + "/" + ref.String()
}

// TagsKey is "<repo>/_tags".
func TagsKey(name domain.RepositoryName) string {
	return name.String() + "/" + tagsKind
}

// ReadBlob returns the blob stored under dgst.
func (s *Store) ReadBlob(ctx context.Context, name domain.RepositoryName, dgst domain.Digest) (*domain.Blob, error) {
	data, err := s.read(ctx, BlobKey(name, dgst), domain.NewError(domain.KindBlobUnknown, "blob %s not found in %s", dgst, name))
	if err != nil {
		return nil, err
	}

	var blob domain.Blob
	if err := json.Unmarshal(data, &blob); err != nil {
		return nil, domain.WrapGeneric(err, fmt.Sprintf("failed to decode blob %s", dgst))
	}
	return &blob, nil
}

// StatBlob returns the metadata of the blob stored under dgst without
// loading its content. Blobs written before metadata records existed fall
// back to the full record.
func (s *Store) StatBlob(ctx context.Context, name domain.RepositoryName, dgst domain.Digest) (*domain.BlobMetadata, error) {
	data, err := s.persistence.Read(ctx, BlobMetaKey(name, dgst))
	if errors.Is(err, out.ErrKeyNotFound) {
		blob, err := s.ReadBlob(ctx, name, dgst)
		if err != nil {
			return nil, err
		}
		return &blob.Metadata, nil
	}
	if err != nil {
		s.logFailure(err, BlobMetaKey(name, dgst), "read")
		return nil, domain.WrapGeneric(err, "persistence read failed")
	}

	var meta domain.BlobMetadata
	if err := json.Unmarshal(data, &meta); err != nil {
		return nil, domain.WrapGeneric(err, fmt.Sprintf("failed to decode blob metadata %s", dgst))
	}
	return &meta, nil
}

// WriteBlob stores blob under its metadata digest, followed by its
// metadata record.
func (s *Store) WriteBlob(ctx context.Context, name domain.RepositoryName, blob *domain.Blob) error {
	data, err := json.Marshal(blob)
	if err != nil {
		return domain.WrapGeneric(err, "failed to encode blob")
	}
	meta, err := json.Marshal(blob.Metadata)
	if err != nil {
		return domain.WrapGeneric(err, "failed to encode blob metadata")
	}

	if err := s.write(ctx, BlobKey(name, blob.Metadata.Digest), data); err != nil {
		return err
	}
	return s.write(ctx, BlobMetaKey(name, blob.Metadata.Digest), meta)
}

// DeleteBlob removes a blob and its metadata record.
func (s *Store) DeleteBlob(ctx context.Context, name domain.RepositoryName, dgst domain.Digest) error {
	if err := s.delete(ctx, BlobKey(name, dgst), domain.NewError(domain.KindBlobUnknown, "blob %s not found in %s", dgst, name)); err != nil {
		return err
	}
	err := s.persistence.Delete(ctx, BlobMetaKey(name, dgst))
	if err != nil && !errors.Is(err, out.ErrKeyNotFound) {
		s.logFailure(err, BlobMetaKey(name, dgst), "delete")
		return domain.WrapGeneric(err, "persistence delete failed")
	}
	return nil
}

// ReadChunk returns the bytes accumulated for an upload session.
func (s *Store) ReadChunk(ctx context.Context, name domain.RepositoryName, sessionID string) ([]byte, error) {
	return s.read(ctx, ChunkKey(name, sessionID), domain.NewError(domain.KindBlobUploadUnknown, "upload session %s not found in %s", sessionID, name))
}

// WriteChunk replaces the accumulated bytes of an upload session.
func (s *Store) WriteChunk(ctx context.Context, name domain.RepositoryName, sessionID string, data []byte) error {
	return s.write(ctx, ChunkKey(name, sessionID), data)
}

// DeleteChunk releases an upload session buffer.
func (s *Store) DeleteChunk(ctx context.Context, name domain.RepositoryName, sessionID string) error {
	return s.delete(ctx, ChunkKey(name, sessionID), domain.NewError(domain.KindBlobUploadUnknown, "upload session %s not found in %s", sessionID, name))
}

// ReadManifest returns the manifest stored under ref.
func (s *Store) ReadManifest(ctx context.Context, name domain.RepositoryName, ref domain.Reference) (*domain.Manifest, error) {
	data, err := s.read(ctx, ManifestKey(name, ref), domain.NewError(domain.KindManifestUnknown, "manifest %s not found in %s", ref, name))
	if err != nil {
		return nil, err
	}

	var manifest domain.Manifest
	if err := json.Unmarshal(data, &manifest); err != nil {
		return nil, domain.WrapGeneric(err, fmt.Sprintf("failed to decode manifest %s", ref))
	}
	return &manifest, nil
}

// WriteManifest stores manifest under ref.
func (s *Store) WriteManifest(ctx context.Context, name domain.RepositoryName, ref domain.Reference, manifest *domain.Manifest) error {
	data, err := manifest.Payload()
	if err != nil {
		return err
	}
	return s.write(ctx, ManifestKey(name, ref), data)
}

// DeleteManifest removes the manifest stored under ref.
func (s *Store) DeleteManifest(ctx context.Context, name domain.RepositoryName, ref domain.Reference) error {
	return s.delete(ctx, ManifestKey(name, ref), domain.NewError(domain.KindManifestUnknown, "manifest %s not found in %s", ref, name))
}

// ReadTags returns the recorded tags of a repository.
func (s *Store) ReadTags(ctx context.Context, name domain.RepositoryName) ([]string, error) {
	data, err := s.read(ctx, TagsKey(name), domain.NewError(domain.KindRepositoryNameUnknown, "repository %s has no tags", name))
	if err != nil {
		return nil, err
	}

	var tags []string
	if err := json.Unmarshal(data, &tags); err != nil {
		return nil, domain.WrapGeneric(err, fmt.Sprintf("failed to decode tags of %s", name))
	}
	if tags == nil {
		tags = []string{}
	}
	return tags, nil
}

// WriteTags replaces the recorded tags of a repository.
func (s *Store) WriteTags(ctx context.Context, name domain.RepositoryName, tags []string) error {
	if tags == nil {
		tags = []string{}
	}
	data, err := json.Marshal(tags)
	if err != nil {
		return domain.WrapGeneric(err, "failed to encode tags")
	}
	return s.write(ctx, TagsKey(name), data)
}

func (s *Store) read(ctx context.Context, key string, notFound error) ([]byte, error) {
	data, err := s.persistence.Read(ctx, key)
	if err != nil {
		if errors.Is(err, out.ErrKeyNotFound) {
			return nil, notFound
		}
		s.logFailure(err, key, "read")
		return nil, domain.WrapGeneric(err, "persistence read failed")
	}
	return data, nil
}

func (s *Store) write(ctx context.Context, key string, data []byte) error {
	if err := s.persistence.Write(ctx, key, data); err != nil {
		s.logFailure(err, key, "write")
		return domain.WrapGeneric(err, "persistence write failed")
	}
	return nil
}

func (s *Store) delete(ctx context.Context, key string, notFound error) error {
	if err := s.persistence.Delete(ctx, key); err != nil {
		if errors.Is(err, out.ErrKeyNotFound) {
			return notFound
		}
		s.logFailure(err, key, "delete")
		return domain.WrapGeneric(err, "persistence delete failed")
	}
	return nil
}

func (s *Store) logFailure(err error, key, action string) {
	s.log.Error().
		Str(zerowrap.FieldLayer, "adapter").
		Str(zerowrap.FieldAdapter, "kvstore").
		Str(zerowrap.FieldAction, action).
		Str(zerowrap.FieldPath, key).
		Err(err).
		Msg("persistence operation failed")
}
