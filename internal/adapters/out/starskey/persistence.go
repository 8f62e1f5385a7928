// Package starskey implements the persistence adapter on a Starskey LSM tree.
package starskey

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/bnema/zerowrap"
	"github.com/starskey-io/starskey"

	"github.com/bnema/ocistore/internal/boundaries/out"
)

// valueMarker prefixes every stored value. Starskey reports absent keys with
// a nil value, so an empty upload buffer would otherwise read as missing.
const valueMarker byte = 0x01

// Persistence implements out.Persistence on a Starskey database.
type Persistence struct {
	db  *starskey.Starskey
	log zerowrap.Logger

	// guards Delete's read-then-delete against concurrent writers
	mu sync.Mutex
}

// NewPersistence opens the Starskey database in dir.
func NewPersistence(dir string, log zerowrap.Logger) (*Persistence, error) {
	db, err := starskey.Open(&starskey.Config{
		Permission:        0750,
		Directory:         dir,
		FlushThreshold:    64 * 1024 * 1024,
		MaxLevel:          3,
		SizeFactor:        10,
		BloomFilter:       true,
		SuRF:              false,
		Logging:           false,
		Compression:       true,
		CompressionOption: starskey.SnappyCompression,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to open starskey database: %w", err)
	}

	log.Info().
		Str(zerowrap.FieldLayer, "adapter").
		Str(zerowrap.FieldAdapter, "starskey").
		Str(zerowrap.FieldPath, dir).
		Msg("starskey persistence initialized")

	return &Persistence{db: db, log: log}, nil
}

// Read returns the bytes stored under key.
func (p *Persistence) Read(_ context.Context, key string) ([]byte, error) {
	value, err := p.db.Get([]byte(key))
	if err != nil {
		return nil, fmt.Errorf("failed to read %s: %w", key, err)
	}
	if len(value) == 0 || value[0] != valueMarker {
		return nil, out.ErrKeyNotFound
	}

	data := make([]byte, len(value)-1)
	copy(data, value[1:])
	return data, nil
}

// Write stores data under key.
func (p *Persistence) Write(_ context.Context, key string, data []byte) error {
	value := make([]byte, 0, len(data)+1)
	value = append(value, valueMarker)
	value = append(value, data...)

	p.mu.Lock()
	defer p.mu.Unlock()

	if err := p.db.Put([]byte(key), value); err != nil {
		return fmt.Errorf("failed to write %s: %w", key, err)
	}

	p.log.Debug().
		Str(zerowrap.FieldLayer, "adapter").
		Str(zerowrap.FieldAdapter, "starskey").
		Str(zerowrap.FieldPath, key).
		Int(zerowrap.FieldSize, len(data)).
		Msg("key written")

	return nil
}

// Delete removes key.
func (p *Persistence) Delete(_ context.Context, key string) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	value, err := p.db.Get([]byte(key))
	if err != nil {
		return fmt.Errorf("failed to read %s: %w", key, err)
	}
	if len(value) == 0 || value[0] != valueMarker {
		return out.ErrKeyNotFound
	}

	if err := p.db.Delete([]byte(key)); err != nil {
		return fmt.Errorf("failed to delete %s: %w", key, err)
	}

	p.log.Debug().
		Str(zerowrap.FieldLayer, "adapter").
		Str(zerowrap.FieldAdapter, "starskey").
		Str(zerowrap.FieldPath, key).
		Msg("key deleted")

	return nil
}

// Exists reports whether key is present.
func (p *Persistence) Exists(ctx context.Context, key string) (bool, error) {
	_, err := p.Read(ctx, key)
	if err == nil {
		return true, nil
	}
	if errors.Is(err, out.ErrKeyNotFound) {
		return false, nil
	}
	return false, err
}

// Close flushes and closes the database.
func (p *Persistence) Close() error {
	return p.db.Close()
}
