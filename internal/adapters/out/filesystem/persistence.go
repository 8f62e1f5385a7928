// Package filesystem implements the persistence adapter on an afero filesystem.
package filesystem

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/bnema/zerowrap"
	"github.com/google/uuid"
	"github.com/spf13/afero"

	"github.com/bnema/ocistore/internal/boundaries/out"
)

// dataSuffix is appended to every key on disk so that a key never collides
// with a directory created for a longer key sharing its prefix.
const dataSuffix = ".data"

// Persistence implements out.Persistence with one file per key.
type Persistence struct {
	fs      afero.Fs
	rootDir string
	log     zerowrap.Logger
}

// NewPersistence creates a filesystem persistence rooted at rootDir on fs.
func NewPersistence(fs afero.Fs, rootDir string, log zerowrap.Logger) (*Persistence, error) {
	rootDir = expandTilde(rootDir)

	if err := fs.MkdirAll(rootDir, 0750); err != nil {
		return nil, fmt.Errorf("failed to create storage directory %s: %w", rootDir, err)
	}

	log.Info().
		Str(zerowrap.FieldLayer, "adapter").
		Str(zerowrap.FieldAdapter, "filesystem").
		Str("root_dir", rootDir).
		Msg("filesystem persistence initialized")

	return &Persistence{
		fs:      fs,
		rootDir: rootDir,
		log:     log,
	}, nil
}

// NewOSPersistence creates a filesystem persistence on the host filesystem.
func NewOSPersistence(rootDir string, log zerowrap.Logger) (*Persistence, error) {
	return NewPersistence(afero.NewOsFs(), rootDir, log)
}

// expandTilde replaces a leading "~/" with the user's home directory.
func expandTilde(path string) string {
	if !strings.HasPrefix(path, "~/") {
		return path
	}
	if home, err := os.UserHomeDir(); err == nil {
		return filepath.Join(home, path[2:])
	}
	return path
}

// Read returns the bytes stored under key.
func (p *Persistence) Read(_ context.Context, key string) ([]byte, error) {
	path, err := p.keyPath(key)
	if err != nil {
		return nil, err
	}

	data, err := afero.ReadFile(p.fs, path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, out.ErrKeyNotFound
		}
		return nil, fmt.Errorf("failed to read %s: %w", key, err)
	}

	return data, nil
}

// Write stores data under key through a temporary file and a rename.
func (p *Persistence) Write(_ context.Context, key string, data []byte) error {
	path, err := p.keyPath(key)
	if err != nil {
		return err
	}

	if err := p.fs.MkdirAll(filepath.Dir(path), 0750); err != nil {
		return fmt.Errorf("failed to create directory for %s: %w", key, err)
	}

	tmpPath := path + ".tmp-" + uuid.NewString()
	if err := afero.WriteFile(p.fs, tmpPath, data, 0600); err != nil {
		_ = p.fs.Remove(tmpPath)
		return fmt.Errorf("failed to write %s: %w", key, err)
	}

	if err := p.fs.Rename(tmpPath, path); err != nil {
		_ = p.fs.Remove(tmpPath)
		return fmt.Errorf("failed to move %s to final location: %w", key, err)
	}

	p.log.Debug().
		Str(zerowrap.FieldLayer, "adapter").
		Str(zerowrap.FieldAdapter, "filesystem").
		Str(zerowrap.FieldPath, key).
		Int(zerowrap.FieldSize, len(data)).
		Msg("key written")

	return nil
}

// Delete removes key.
func (p *Persistence) Delete(_ context.Context, key string) error {
	path, err := p.keyPath(key)
	if err != nil {
		return err
	}

	if err := p.fs.Remove(path); err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return out.ErrKeyNotFound
		}
		return fmt.Errorf("failed to delete %s: %w", key, err)
	}

	p.log.Debug().
		Str(zerowrap.FieldLayer, "adapter").
		Str(zerowrap.FieldAdapter, "filesystem").
		Str(zerowrap.FieldPath, key).
		Msg("key deleted")

	return nil
}

// Exists reports whether key is present.
func (p *Persistence) Exists(_ context.Context, key string) (bool, error) {
	path, err := p.keyPath(key)
	if err != nil {
		return false, err
	}

	ok, err := afero.Exists(p.fs, path)
	if err != nil {
		return false, fmt.Errorf("failed to stat %s: %w", key, err)
	}
	return ok, nil
}

// keyPath maps a key to its file, rejecting keys that could escape rootDir.
func (p *Persistence) keyPath(key string) (string, error) {
	if key == "" || strings.HasPrefix(key, "/") || strings.Contains(key, "\\") {
		return "", fmt.Errorf("invalid storage key %q", key)
	}
	for _, segment := range strings.Split(key, "/") {
		if segment == "" || segment == "." || segment == ".." {
			return "", fmt.Errorf("invalid storage key %q", key)
		}
	}

	return filepath.Join(p.rootDir, filepath.FromSlash(key)) + dataSuffix, nil
}
