package usecase

import (
	"context"
	"log/slog"

	"github.com/ebookgov/property-voice-agent/internal/core/cache"
	"github.com/ebookgov/property-voice-agent/internal/core/domain"
	"github.com/ebookgov/property-voice-agent/internal/core/ports"
)

// CacheAdminUseCase exposes cache statistics and invalidation. Invalidations
// are applied locally and broadcast so other instances drop their local tier.
type CacheAdminUseCase struct {
	cache  *cache.LookupCache
	bus    ports.InvalidationBus
	origin string
	logger *slog.Logger
}

func NewCacheAdminUseCase(lookupCache *cache.LookupCache, bus ports.InvalidationBus, origin string, logger *slog.Logger) *CacheAdminUseCase {
	if logger == nil {
		logger = slog.Default()
	}
	return &CacheAdminUseCase{
		cache:  lookupCache,
		bus:    bus,
		origin: origin,
		logger: logger,
	}
}

func (uc *CacheAdminUseCase) Stats() domain.CacheStats {
	return uc.cache.Stats()
}

func (uc *CacheAdminUseCase) ResetStats() {
	uc.cache.ResetStats()
}

func (uc *CacheAdminUseCase) Invalidate(ctx context.Context, event domain.InvalidationEvent) error {
	if err := uc.cache.Apply(ctx, event); err != nil {
		if domain.IsKind(err, domain.ErrInvalidInput) {
			return err
		}
		uc.logger.Warn("cache_invalidation_partial", "subject_id", event.SubjectID, "all", event.All, "error", err)
	}

	if uc.bus == nil {
		return nil
	}
	event.Origin = uc.origin
	if err := uc.bus.PublishInvalidation(ctx, event); err != nil {
		uc.logger.Warn("cache_invalidation_publish_failed", "subject_id", event.SubjectID, "all", event.All, "error", err)
	}
	return nil
}

// HandleRemote applies an invalidation received from another instance.
func (uc *CacheAdminUseCase) HandleRemote(ctx context.Context, event domain.InvalidationEvent) error {
	if event.Origin != "" && event.Origin == uc.origin {
		return nil
	}
	return uc.cache.Apply(ctx, event)
}
