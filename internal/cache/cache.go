package cache

import (
	"context"
	"time"

	"infopos/backend/internal/domain"
)

// Version is the cache generation a Get observed. Counts computed after that Get are
// stored under it, so an Invalidate that lands in between discards them.
type Version int64

// ManifestCache stores manifest counts per store scope. Invalidate drops every scope at once.
type ManifestCache interface {
	Get(ctx context.Context, storeID *int64) (*domain.Manifest, Version, bool, error)
	Set(ctx context.Context, storeID *int64, version Version, value *domain.Manifest, ttl time.Duration) error
	Invalidate(ctx context.Context) error
}

type NoopManifestCache struct{}

func (NoopManifestCache) Get(_ context.Context, _ *int64) (*domain.Manifest, Version, bool, error) {
	return nil, 0, false, nil
}

func (NoopManifestCache) Set(_ context.Context, _ *int64, _ Version, _ *domain.Manifest, _ time.Duration) error {
	return nil
}

func (NoopManifestCache) Invalidate(_ context.Context) error {
	return nil
}
