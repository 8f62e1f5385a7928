package registry

import (
	"context"
	"testing"

	"github.com/bnema/zerowrap"
	"github.com/spf13/afero"
	"github.com/stretchr/testify/require"

	"github.com/bnema/ocistore/internal/adapters/out/filesystem"
	"github.com/bnema/ocistore/internal/adapters/out/kvstore"
	"github.com/bnema/ocistore/internal/domain"
)

func testContext() context.Context {
	return zerowrap.WithCtx(context.Background(), zerowrap.Default())
}

func newMemStore(t *testing.T) *kvstore.Store {
	t.Helper()
	p, err := filesystem.NewPersistence(afero.NewMemMapFs(), "/registry", zerowrap.Default())
	require.NoError(t, err)
	return kvstore.NewStore(p, zerowrap.Default())
}

func mustName(t *testing.T, name string) domain.RepositoryName {
	t.Helper()
	n, err := domain.ParseRepositoryName(name, domain.Host{Name: "localhost", Port: 5000})
	require.NoError(t, err)
	return n
}

func mustDigest(t *testing.T, s string) domain.Digest {
	t.Helper()
	d, err := domain.ParseDigest(s)
	require.NoError(t, err)
	return d
}

func mustTag(t *testing.T, s string) domain.Tag {
	t.Helper()
	tag, err := domain.ParseTag(s)
	require.NoError(t, err)
	return tag
}

func testManifest(configContent string) *domain.Manifest {
	size := int64(len(configContent))
	return &domain.Manifest{
		SchemaVersion: 2,
		MediaType:     "application/vnd.oci.image.manifest.v1+json",
		Config: domain.Descriptor{
			MediaType: "application/vnd.oci.image.config.v1+json",
			Digest:    domain.SHA256Of([]byte(configContent)).String(),
			Size:      &size,
		},
		Layers: []domain.Descriptor{},
	}
}
