package registry

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/bnema/ocistore/internal/boundaries/out/mocks"
	"github.com/bnema/ocistore/internal/domain"
)

func TestManifestService_PushByTag_DualKeys(t *testing.T) {
	svc := NewManifestService(newMemStore(t), nil, DefaultConfig())
	ctx := testContext()
	name := mustName(t, "library/alpine")
	manifest := testManifest("config-v1")
	dgst, err := manifest.Digest()
	require.NoError(t, err)

	headers, err := svc.Push(ctx, name, mustTag(t, "v1"), manifest)
	require.NoError(t, err)
	assert.Equal(t, "/v2/library/alpine/manifests/v1", headers.Get(domain.HeaderLocation))
	assert.Equal(t, dgst.String(), headers.Get(domain.HeaderDockerContentDigest))

	byTag, tagHeaders, err := svc.Pull(ctx, name, mustTag(t, "v1"))
	require.NoError(t, err)
	byDigest, digestHeaders, err := svc.Pull(ctx, name, dgst)
	require.NoError(t, err)

	tagPayload, err := byTag.Payload()
	require.NoError(t, err)
	digestPayload, err := byDigest.Payload()
	require.NoError(t, err)

	assert.Equal(t, tagPayload, digestPayload)
	assert.Equal(t, dgst.String(), tagHeaders.Get(domain.HeaderDockerContentDigest))
	assert.Equal(t, tagHeaders, digestHeaders)
	assert.Equal(t, "application/vnd.oci.image.manifest.v1+json", tagHeaders.Get(domain.HeaderContentType))
}

func TestManifestService_IdempotentRepush(t *testing.T) {
	store := newMemStore(t)
	svc := NewManifestService(store, nil, DefaultConfig())
	ctx := testContext()
	name := mustName(t, "app")
	manifest := testManifest("config")

	first, err := svc.Push(ctx, name, mustTag(t, "latest"), manifest)
	require.NoError(t, err)
	tagsAfterFirst, err := svc.ListTags(ctx, name, 0, "")
	require.NoError(t, err)

	second, err := svc.Push(ctx, name, mustTag(t, "latest"), manifest)
	require.NoError(t, err)
	tagsAfterSecond, err := svc.ListTags(ctx, name, 0, "")
	require.NoError(t, err)

	assert.Equal(t, first, second)
	assert.Equal(t, []string{"latest"}, tagsAfterFirst)
	assert.Equal(t, tagsAfterFirst, tagsAfterSecond)
}

func TestManifestService_PushByDigest(t *testing.T) {
	manifest := testManifest("config")
	dgst, err := manifest.Digest()
	require.NoError(t, err)
	other := domain.SHA256Of([]byte("something else"))

	t.Run("matching digest", func(t *testing.T) {
		svc := NewManifestService(newMemStore(t), nil, DefaultConfig())
		headers, err := svc.Push(testContext(), mustName(t, "app"), dgst, manifest)
		require.NoError(t, err)
		assert.Equal(t, "/v2/app/manifests/"+dgst.String(), headers.Get(domain.HeaderLocation))
	})

	t.Run("mismatch rejected when strict", func(t *testing.T) {
		store := &mocks.MockManifestStore{}
		svc := NewManifestService(store, nil, DefaultConfig())

		_, err := svc.Push(testContext(), mustName(t, "app"), other, manifest)

		assert.ErrorIs(t, err, domain.ErrDigestInvalid)
		store.AssertNotCalled(t, "WriteManifest", mock.Anything, mock.Anything, mock.Anything, mock.Anything)
	})

	t.Run("mismatch stored under both when lenient", func(t *testing.T) {
		svc := NewManifestService(newMemStore(t), nil, Config{StrictManifestDigest: false})
		ctx := testContext()
		name := mustName(t, "app")

		_, err := svc.Push(ctx, name, other, manifest)
		require.NoError(t, err)

		_, _, err = svc.Pull(ctx, name, other)
		assert.NoError(t, err)
		_, _, err = svc.Pull(ctx, name, dgst)
		assert.NoError(t, err)
	})
}

func TestManifestService_Push_InvalidConfigDigest(t *testing.T) {
	svc := NewManifestService(&mocks.MockManifestStore{}, nil, DefaultConfig())
	manifest := testManifest("config")
	manifest.Config.Digest = "not-a-digest"

	_, err := svc.Push(testContext(), mustName(t, "app"), mustTag(t, "v1"), manifest)

	assert.ErrorIs(t, err, domain.ErrDigestInvalid)
}

func TestManifestService_Pull_Unknown(t *testing.T) {
	svc := NewManifestService(newMemStore(t), nil, DefaultConfig())

	_, _, err := svc.Pull(testContext(), mustName(t, "app"), mustTag(t, "missing"))

	assert.ErrorIs(t, err, domain.ErrManifestUnknown)
}

func TestManifestService_RemoveTag_KeepsDigest(t *testing.T) {
	svc := NewManifestService(newMemStore(t), nil, DefaultConfig())
	ctx := testContext()
	name := mustName(t, "app")
	manifest := testManifest("config")
	dgst, err := manifest.Digest()
	require.NoError(t, err)

	_, err = svc.Push(ctx, name, mustTag(t, "v1"), manifest)
	require.NoError(t, err)
	_, err = svc.Push(ctx, name, mustTag(t, "v2"), manifest)
	require.NoError(t, err)

	require.NoError(t, svc.Remove(ctx, name, mustTag(t, "v1")))

	_, _, err = svc.Pull(ctx, name, mustTag(t, "v1"))
	assert.ErrorIs(t, err, domain.ErrManifestUnknown)
	_, _, err = svc.Pull(ctx, name, dgst)
	assert.NoError(t, err)

	tags, err := svc.ListTags(ctx, name, 0, "")
	require.NoError(t, err)
	assert.Equal(t, []string{"v2"}, tags)

	assert.ErrorIs(t, svc.Remove(ctx, name, mustTag(t, "v1")), domain.ErrManifestUnknown)
}

func TestManifestService_RemoveDigest_PrunesTags(t *testing.T) {
	events := &mocks.MockEventPublisher{}
	svc := NewManifestService(newMemStore(t), events, DefaultConfig())
	ctx := testContext()
	name := mustName(t, "app")

	first := testManifest("config-1")
	second := testManifest("config-2")
	firstDigest, err := first.Digest()
	require.NoError(t, err)

	events.On("Publish", domain.EventManifestPushed, mock.Anything).Return(nil)
	events.On("Publish", domain.EventManifestDeleted, domain.ManifestDeletedPayload{
		Repository: "app",
		Reference:  firstDigest.String(),
		PrunedTags: []string{"a", "b"},
	}).Return(nil)

	for _, tag := range []string{"a", "b"} {
		_, err := svc.Push(ctx, name, mustTag(t, tag), first)
		require.NoError(t, err)
	}
	_, err = svc.Push(ctx, name, mustTag(t, "c"), second)
	require.NoError(t, err)

	require.NoError(t, svc.Remove(ctx, name, firstDigest))

	_, _, err = svc.Pull(ctx, name, firstDigest)
	assert.ErrorIs(t, err, domain.ErrManifestUnknown)
	_, _, err = svc.Pull(ctx, name, mustTag(t, "a"))
	assert.ErrorIs(t, err, domain.ErrManifestUnknown)

	tags, err := svc.ListTags(ctx, name, 0, "")
	require.NoError(t, err)
	assert.Equal(t, []string{"c"}, tags)

	events.AssertExpectations(t)
}

func TestManifestService_ListTags(t *testing.T) {
	svc := NewManifestService(newMemStore(t), nil, DefaultConfig())
	ctx := testContext()
	name := mustName(t, "app")

	_, err := svc.ListTags(ctx, name, 0, "")
	assert.ErrorIs(t, err, domain.ErrRepositoryNameUnknown)

	for _, tag := range []string{"v3", "v1", "latest", "v2"} {
		_, err := svc.Push(ctx, name, mustTag(t, tag), testManifest(tag))
		require.NoError(t, err)
	}

	tests := []struct {
		name string
		n    int
		last string
		want []string
	}{
		{name: "all sorted", want: []string{"latest", "v1", "v2", "v3"}},
		{name: "first page", n: 2, want: []string{"latest", "v1"}},
		{name: "next page", n: 2, last: "v1", want: []string{"v2", "v3"}},
		{name: "past the end", last: "v3", want: []string{}},
		{name: "last not present", last: "m", want: []string{"v1", "v2", "v3"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tags, err := svc.ListTags(ctx, name, tt.n, tt.last)
			require.NoError(t, err)
			assert.Equal(t, tt.want, tags)
		})
	}
}

func TestManifestService_NestedRepositoriesAreIsolated(t *testing.T) {
	svc := NewManifestService(newMemStore(t), nil, DefaultConfig())
	ctx := testContext()
	parent := mustName(t, "a")
	child := mustName(t, "a/manifest")

	_, err := svc.Push(ctx, child, mustTag(t, "v1"), testManifest("child"))
	require.NoError(t, err)
	_, err = svc.Push(ctx, parent, mustTag(t, "tags"), testManifest("parent"))
	require.NoError(t, err)

	childTags, err := svc.ListTags(ctx, child, 0, "")
	require.NoError(t, err)
	assert.Equal(t, []string{"v1"}, childTags)

	parentTags, err := svc.ListTags(ctx, parent, 0, "")
	require.NoError(t, err)
	assert.Equal(t, []string{"tags"}, parentTags)

	pulled, _, err := svc.Pull(ctx, child, mustTag(t, "v1"))
	require.NoError(t, err)
	assert.Equal(t, testManifest("child").Config.Digest, pulled.Config.Digest)
}

func TestManifestService_StorageFailureIsGeneric(t *testing.T) {
	store := &mocks.MockManifestStore{}
	svc := NewManifestService(store, nil, DefaultConfig())
	ioErr := domain.WrapGeneric(errors.New("disk full"), "persistence write failed")

	store.On("WriteManifest", mock.Anything, mock.Anything, mock.Anything, mock.Anything).Return(ioErr)

	_, err := svc.Push(testContext(), mustName(t, "app"), mustTag(t, "v1"), testManifest("config"))

	assert.ErrorIs(t, err, domain.ErrGeneric)
	store.AssertNotCalled(t, "WriteTags", mock.Anything, mock.Anything, mock.Anything)
}
