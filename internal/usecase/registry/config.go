// Package registry implements the blob and manifest engines of the registry.
package registry

import (
	"github.com/bnema/zerowrap"

	"github.com/bnema/ocistore/internal/domain"
)

// Config holds engine policy settings.
type Config struct {
	// StrictManifestDigest rejects a manifest pushed by digest when that
	// digest differs from the manifest's canonical digest. When false, the
	// manifest is stored under both digests.
	StrictManifestDigest bool

	// MinChunkLength is advertised through OCI-Chunk-Min-Length when > 0.
	MinChunkLength int64
}

// DefaultConfig returns the default engine policy.
func DefaultConfig() Config {
	return Config{StrictManifestDigest: true}
}

func blobLocation(name domain.RepositoryName, dgst domain.Digest) string {
	return "/v2/" + name.String() + "/blobs/" + dgst.String()
}

func uploadLocation(name domain.RepositoryName, sessionID string) string {
	return "/v2/" + name.String() + "/blobs/uploads/" + sessionID
}

func manifestLocation(name domain.RepositoryName, ref domain.Reference) string {
	return "/v2/" + name.String() + "/manifests/" + ref.String()
}

// fail normalizes err into the registry taxonomy and logs it. Lower-layer
// faults are logged at error level; expected outcomes at debug level.
func fail(log zerowrap.Logger, err error, msg string) error {
	err = domain.WrapGeneric(err, msg)
	if domain.KindOf(err) == domain.KindGeneric {
		log.Error().Err(err).Msg(msg)
	} else {
		log.Debug().Err(err).Msg(msg)
	}
	return err
}
