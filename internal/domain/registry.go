package domain

import (
	"encoding/json"

	ocispec "github.com/opencontainers/image-spec/specs-go/v1"
)

// ManifestSchemaVersion is the only manifest schema version accepted.
const ManifestSchemaVersion = 2

// BlobMetadata describes stored blob content.
type BlobMetadata struct {
	Digest        Digest `json:"digest"`
	ContentLength int64  `json:"content_length"`
}

// Blob is an immutable, content-addressed binary object.
type Blob struct {
	Metadata BlobMetadata `json:"metadata"`
	Content  []byte       `json:"content"`
}

// NewBlob builds a blob record for content already verified against dgst.
func NewBlob(dgst Digest, content []byte) *Blob {
	return &Blob{
		Metadata: BlobMetadata{Digest: dgst, ContentLength: int64(len(content))},
		Content:  content,
	}
}

// Descriptor references a blob from within a manifest.
type Descriptor struct {
	MediaType   string            `json:"mediaType"`
	Digest      string            `json:"digest"`
	Size        *int64            `json:"size,omitempty"`
	URLs        []string          `json:"urls,omitempty"`
	Annotations map[string]string `json:"annotations,omitempty"`
}

// Manifest describes an image's config and layers by digest.
type Manifest struct {
	SchemaVersion int               `json:"schemaVersion"`
	MediaType     string            `json:"mediaType"`
	Config        Descriptor        `json:"config"`
	Layers        []Descriptor      `json:"layers"`
	Annotations   map[string]string `json:"annotations,omitempty"`
}

// ParseManifest decodes a manifest document and checks the fields the
// registry depends on.
func ParseManifest(payload []byte) (*Manifest, error) {
	if len(payload) == 0 {
		return nil, NewError(KindManifestInvalid, "manifest body is empty")
	}

	var m Manifest
	if err := json.Unmarshal(payload, &m); err != nil {
		return nil, &RegistryError{Kind: KindManifestInvalid, Detail: "manifest is not valid JSON", Err: err}
	}
	if m.SchemaVersion != ManifestSchemaVersion {
		return nil, NewError(KindManifestInvalid, "unsupported schemaVersion %d", m.SchemaVersion)
	}
	if m.Config.Digest == "" {
		return nil, NewError(KindManifestInvalid, "manifest config digest is missing")
	}
	if m.Layers == nil {
		m.Layers = []Descriptor{}
	}

	return &m, nil
}

// Digest returns the canonical digest of the manifest, which is the digest
// of its config descriptor.
func (m *Manifest) Digest() (Digest, error) {
	return ParseDigest(m.Config.Digest)
}

// ContentType returns the manifest media type, defaulting to the OCI image
// manifest type.
func (m *Manifest) ContentType() string {
	if m.MediaType == "" {
		return ocispec.MediaTypeImageManifest
	}
	return m.MediaType
}

// Payload is the canonical JSON encoding of the manifest.
func (m *Manifest) Payload() ([]byte, error) {
	data, err := json.Marshal(m)
	if err != nil {
		return nil, WrapGeneric(err, "failed to encode manifest")
	}
	return data, nil
}
