package registry

import (
	"context"
	"slices"
	"sort"

	"github.com/bnema/zerowrap"
	"github.com/moby/locker"

	"github.com/bnema/ocistore/internal/boundaries/out"
	"github.com/bnema/ocistore/internal/domain"
)

// ManifestService implements in.ManifestService.
type ManifestService struct {
	store    out.ManifestStore
	eventBus out.EventPublisher
	config   Config

	// repos serializes tag list updates per repository.
	repos *locker.Locker
}

// NewManifestService creates a new manifest engine. eventBus may be nil.
func NewManifestService(store out.ManifestStore, eventBus out.EventPublisher, config Config) *ManifestService {
	return &ManifestService{
		store:    store,
		eventBus: eventBus,
		config:   config,
		repos:    locker.New(),
	}
}

// Pull returns the manifest stored under ref.
func (s *ManifestService) Pull(ctx context.Context, name domain.RepositoryName, ref domain.Reference) (*domain.Manifest, domain.Headers, error) {
	ctx = zerowrap.CtxWithFields(ctx, map[string]any{
		zerowrap.FieldLayer:   "usecase",
		zerowrap.FieldUseCase: "PullManifest",
		"name":                name.String(),
		"reference":           ref.String(),
	})
	log := zerowrap.FromCtx(ctx)

	manifest, err := s.store.ReadManifest(ctx, name, ref)
	if err != nil {
		return nil, nil, fail(log, err, "failed to read manifest")
	}

	dgst, err := manifest.Digest()
	if err != nil {
		return nil, nil, fail(log, domain.WrapGeneric(err, "stored manifest has an invalid digest"), "failed to read manifest")
	}
	payload, err := manifest.Payload()
	if err != nil {
		return nil, nil, fail(log, err, "failed to encode manifest")
	}

	headers := domain.NewHeaders().
		SetContentDigest(dgst).
		SetContentType(manifest.ContentType()).
		SetContentLength(int64(len(payload)))

	return manifest, headers, nil
}

// Push stores manifest under its canonical digest and, for a tag reference,
// under the tag as well.
func (s *ManifestService) Push(ctx context.Context, name domain.RepositoryName, ref domain.Reference, manifest *domain.Manifest) (domain.Headers, error) {
	ctx = zerowrap.CtxWithFields(ctx, map[string]any{
		zerowrap.FieldLayer:   "usecase",
		zerowrap.FieldUseCase: "PushManifest",
		"name":                name.String(),
		"reference":           ref.String(),
	})
	log := zerowrap.FromCtx(ctx)

	dgst, err := manifest.Digest()
	if err != nil {
		return nil, fail(log, err, "manifest rejected")
	}

	switch r := ref.(type) {
	case domain.Digest:
		if r != dgst {
			if s.config.StrictManifestDigest {
				return nil, fail(log, domain.NewError(domain.KindDigestInvalid,
					"reference %s does not match manifest digest %s", r, dgst), "manifest rejected")
			}
			if err := s.store.WriteManifest(ctx, name, r, manifest); err != nil {
				return nil, fail(log, err, "failed to store manifest")
			}
		}
		if err := s.store.WriteManifest(ctx, name, dgst, manifest); err != nil {
			return nil, fail(log, err, "failed to store manifest")
		}

	case domain.Tag:
		if err := s.store.WriteManifest(ctx, name, dgst, manifest); err != nil {
			return nil, fail(log, err, "failed to store manifest")
		}
		if err := s.store.WriteManifest(ctx, name, r, manifest); err != nil {
			return nil, fail(log, err, "failed to store manifest tag")
		}
		if err := s.recordTag(ctx, name, r); err != nil {
			return nil, fail(log, err, "failed to update tag list")
		}
	}

	s.publish(log, domain.EventManifestPushed, domain.ManifestPushedPayload{
		Repository: name.String(),
		Reference:  ref.String(),
		Digest:     dgst.String(),
		MediaType:  manifest.ContentType(),
		Layers:     len(manifest.Layers),
	})

	log.Info().Str("digest", dgst.String()).Msg("manifest stored")

	return domain.NewHeaders().
		SetLocation(manifestLocation(name, ref)).
		SetContentDigest(dgst).
		SetContentLength(0), nil
}

// Remove deletes the manifest stored under ref. Removing a tag drops only
// the alias; removing a digest also prunes every tag that resolved to it.
func (s *ManifestService) Remove(ctx context.Context, name domain.RepositoryName, ref domain.Reference) error {
	ctx = zerowrap.CtxWithFields(ctx, map[string]any{
		zerowrap.FieldLayer:   "usecase",
		zerowrap.FieldUseCase: "RemoveManifest",
		"name":                name.String(),
		"reference":           ref.String(),
	})
	log := zerowrap.FromCtx(ctx)

	if err := s.store.DeleteManifest(ctx, name, ref); err != nil {
		return fail(log, err, "failed to delete manifest")
	}

	var pruned []string
	switch r := ref.(type) {
	case domain.Tag:
		if err := s.forgetTags(ctx, name, []string{r.String()}); err != nil {
			return fail(log, err, "failed to update tag list")
		}
	case domain.Digest:
		var err error
		pruned, err = s.pruneTags(ctx, name, r)
		if err != nil {
			return fail(log, err, "failed to prune tags")
		}
	}

	s.publish(log, domain.EventManifestDeleted, domain.ManifestDeletedPayload{
		Repository: name.String(),
		Reference:  ref.String(),
		PrunedTags: pruned,
	})

	log.Info().Strs("pruned_tags", pruned).Msg("manifest deleted")
	return nil
}

// ListTags returns the repository's tags in lexical order. When last is set
// only tags after it are returned; n > 0 caps the result size.
func (s *ManifestService) ListTags(ctx context.Context, name domain.RepositoryName, n int, last string) ([]string, error) {
	ctx = zerowrap.CtxWithFields(ctx, map[string]any{
		zerowrap.FieldLayer:   "usecase",
		zerowrap.FieldUseCase: "ListTags",
		"name":                name.String(),
	})
	log := zerowrap.FromCtx(ctx)

	tags, err := s.store.ReadTags(ctx, name)
	if err != nil {
		return nil, fail(log, err, "failed to list tags")
	}

	sort.Strings(tags)

	if last != "" {
		idx := sort.Search(len(tags), func(i int) bool { return tags[i] > last })
		tags = tags[idx:]
	}
	if n > 0 && len(tags) > n {
		tags = tags[:n]
	}

	return tags, nil
}

func (s *ManifestService) recordTag(ctx context.Context, name domain.RepositoryName, tag domain.Tag) error {
	unlock := s.lockRepo(name)
	defer unlock()

	tags, err := s.readTags(ctx, name)
	if err != nil {
		return err
	}
	if slices.Contains(tags, tag.String()) {
		return nil
	}
	return s.store.WriteTags(ctx, name, append(tags, tag.String()))
}

func (s *ManifestService) forgetTags(ctx context.Context, name domain.RepositoryName, drop []string) error {
	unlock := s.lockRepo(name)
	defer unlock()

	return s.dropTags(ctx, name, drop)
}

// pruneTags deletes every tag alias whose manifest has dgst as its digest.
func (s *ManifestService) pruneTags(ctx context.Context, name domain.RepositoryName, dgst domain.Digest) ([]string, error) {
	unlock := s.lockRepo(name)
	defer unlock()

	tags, err := s.readTags(ctx, name)
	if err != nil {
		return nil, err
	}

	var pruned []string
	for _, t := range tags {
		tag, err := domain.ParseTag(t)
		if err != nil {
			continue
		}
		manifest, err := s.store.ReadManifest(ctx, name, tag)
		if err != nil {
			if domain.KindOf(err) == domain.KindManifestUnknown {
				continue
			}
			return nil, err
		}
		if tagDigest, err := manifest.Digest(); err != nil || tagDigest != dgst {
			continue
		}
		if err := s.store.DeleteManifest(ctx, name, tag); err != nil && domain.KindOf(err) != domain.KindManifestUnknown {
			return nil, err
		}
		pruned = append(pruned, t)
	}

	if len(pruned) == 0 {
		return nil, nil
	}
	return pruned, s.dropTags(ctx, name, pruned)
}

// dropTags removes tags from the list. The caller holds the repository lock.
func (s *ManifestService) dropTags(ctx context.Context, name domain.RepositoryName, drop []string) error {
	tags, err := s.readTags(ctx, name)
	if err != nil {
		return err
	}

	before := len(tags)
	kept := slices.DeleteFunc(tags, func(t string) bool {
		return slices.Contains(drop, t)
	})
	if len(kept) == before {
		return nil
	}
	return s.store.WriteTags(ctx, name, kept)
}

// readTags treats a repository without a tag record as having no tags.
func (s *ManifestService) readTags(ctx context.Context, name domain.RepositoryName) ([]string, error) {
	tags, err := s.store.ReadTags(ctx, name)
	if err != nil {
		if domain.KindOf(err) == domain.KindRepositoryNameUnknown {
			return []string{}, nil
		}
		return nil, err
	}
	return tags, nil
}

func (s *ManifestService) lockRepo(name domain.RepositoryName) func() {
	key := name.String()
	s.repos.Lock(key)
	return func() {
		_ = s.repos.Unlock(key)
	}
}

func (s *ManifestService) publish(log zerowrap.Logger, eventType domain.EventType, payload any) {
	if s.eventBus == nil {
		return
	}
	if err := s.eventBus.Publish(eventType, payload); err != nil {
		log.Warn().Err(err).Str(zerowrap.FieldEvent, string(eventType)).Msg("failed to publish event")
	}
}
