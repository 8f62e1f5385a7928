package app

import (
	"context"
	"fmt"

	"github.com/bnema/zerowrap"
	"github.com/spf13/afero"

	"github.com/bnema/ocistore/internal/adapters/out/filesystem"
	"github.com/bnema/ocistore/internal/adapters/out/sqlite"
	"github.com/bnema/ocistore/internal/adapters/out/starskey"
	"github.com/bnema/ocistore/internal/boundaries/out"
)

// createPersistence opens the configured persistence backend. The returned
// close function releases the backend and is never nil.
func createPersistence(ctx context.Context, cfg Config, log zerowrap.Logger) (out.Persistence, func() error, error) {
	noop := func() error { return nil }
	dir := cfg.StorageDir()

	switch cfg.Storage.Backend {
	case BackendMemory:
		p, err := filesystem.NewPersistence(afero.NewMemMapFs(), "/", log)
		if err != nil {
			return nil, noop, err
		}
		log.Info().Str(zerowrap.FieldLayer, "app").Msg("using in-memory storage, content is lost on shutdown")
		return p, noop, nil

	case BackendFilesystem:
		p, err := filesystem.NewOSPersistence(dir, log)
		if err != nil {
			return nil, noop, fmt.Errorf("failed to open filesystem storage: %w", err)
		}
		log.Info().Str(zerowrap.FieldLayer, "app").Str(zerowrap.FieldPath, dir).Msg("using filesystem storage")
		return p, noop, nil

	case BackendSQLite:
		p, err := sqlite.NewPersistence(ctx, dir, log)
		if err != nil {
			return nil, noop, fmt.Errorf("failed to open sqlite storage: %w", err)
		}
		log.Info().Str(zerowrap.FieldLayer, "app").Str(zerowrap.FieldPath, dir).Msg("using sqlite storage")
		return p, p.Close, nil

	case BackendStarskey:
		p, err := starskey.NewPersistence(dir, log)
		if err != nil {
			return nil, noop, fmt.Errorf("failed to open starskey storage: %w", err)
		}
		log.Info().Str(zerowrap.FieldLayer, "app").Str(zerowrap.FieldPath, dir).Msg("using starskey storage")
		return p, p.Close, nil

	default:
		return nil, noop, fmt.Errorf("unknown storage backend %q", cfg.Storage.Backend)
	}
}
