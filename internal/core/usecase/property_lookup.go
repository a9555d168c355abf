package usecase

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/ebookgov/property-voice-agent/internal/core/cache"
	"github.com/ebookgov/property-voice-agent/internal/core/domain"
	"github.com/ebookgov/property-voice-agent/internal/core/ports"
)

// PropertyResolver maps free-form speech, such as a street address, onto a
// property id when the repository has no direct match for it.
type PropertyResolver interface {
	ResolvePropertyID(ctx context.Context, text string) (string, bool)
}

type PropertyLookupOption func(*PropertyLookupUseCase)

func WithPropertyResolver(resolver PropertyResolver) PropertyLookupOption {
	return func(uc *PropertyLookupUseCase) {
		uc.resolver = resolver
	}
}

// PropertyLookupUseCase serves property fact lookups through the lookup cache.
// Answers are cached under the property id. A subject that is not the id, such
// as a partial name or a city, is remembered as an alias of the id it resolved
// to, so reseeding the id invalidates every way the property was asked for.
type PropertyLookupUseCase struct {
	repo     ports.PropertyRepository
	cache    *cache.LookupCache
	resolver PropertyResolver
	logger   *slog.Logger
	now      func() time.Time
}

func NewPropertyLookupUseCase(
	repo ports.PropertyRepository,
	lookupCache *cache.LookupCache,
	logger *slog.Logger,
	opts ...PropertyLookupOption,
) *PropertyLookupUseCase {
	if logger == nil {
		logger = slog.Default()
	}
	uc := &PropertyLookupUseCase{
		repo:   repo,
		cache:  lookupCache,
		logger: logger,
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(uc)
	}
	return uc
}

func (uc *PropertyLookupUseCase) Lookup(ctx context.Context, req domain.PropertyFactRequest) (*domain.PropertyFactResponse, error) {
	subjectID := strings.TrimSpace(req.SubjectID)
	if subjectID == "" {
		return nil, domain.WrapError(domain.ErrInvalidInput, "lookup property", fmt.Errorf("subject_id is required"))
	}
	fact := domain.ParseFactType(req.FactType)

	canonical := subjectID
	if id, ok := uc.cache.ResolveAlias(ctx, subjectID); ok {
		canonical = id
	}
	key := domain.NewPropertyCacheKey(canonical, fact)

	lookup, err := uc.cache.GetOrFetch(ctx, key, func(ctx context.Context) (cache.Fetched, error) {
		return uc.fetch(ctx, subjectID, fact)
	})
	if err != nil {
		return nil, fmt.Errorf("lookup property: %w", err)
	}

	var answer domain.FactAnswer
	if err := json.Unmarshal(lookup.Payload, &answer); err != nil {
		uc.logger.Error("cached_fact_decode_failed", "key", key.String(), "error", err)
		answer = fallbackFact(subjectID, fact, uc.now())
	}
	answer.SubjectID = subjectID

	return &domain.PropertyFactResponse{
		Data:        answer,
		CacheHit:    lookup.Hit,
		CacheTier:   string(lookup.Tier),
		LatencyMS:   float64(lookup.Latency.Microseconds()) / 1000.0,
		RetrievedAt: uc.now().UTC(),
	}, nil
}

// fetch reads the record on a cache miss. Not-found and failed reads become
// speakable answers that are returned but never cached. A found record is
// stored under its property id.
func (uc *PropertyLookupUseCase) fetch(ctx context.Context, subjectID string, fact domain.FactType) (cache.Fetched, error) {
	at := uc.now().UTC()

	property, err := uc.repo.FetchRecord(ctx, subjectID)
	if notFound(property, err) && uc.resolver != nil {
		if id, ok := uc.resolver.ResolvePropertyID(ctx, subjectID); ok {
			property, err = uc.repo.FetchRecord(ctx, id)
		}
	}

	var (
		answer domain.FactAnswer
		out    cache.Fetched
	)
	switch {
	case err == nil && property != nil:
		answer = shapeFact(property, subjectID, fact, at)
		out.Cacheable = true
		out.StoreAs = domain.NewPropertyCacheKey(property.ID, fact)
		uc.cache.PutAlias(ctx, subjectID, property.ID)
	case notFound(property, err):
		answer = notFoundFact(subjectID, fact, at)
	default:
		uc.logger.Error("property_fetch_failed", "subject_id", subjectID, "fact_type", string(fact), "error", err)
		answer = fallbackFact(subjectID, fact, at)
	}

	payload, err := json.Marshal(answer)
	if err != nil {
		return cache.Fetched{}, fmt.Errorf("marshal fact answer: %w", err)
	}
	out.Payload = payload
	return out, nil
}

func notFound(property *domain.Property, err error) bool {
	if err == nil {
		return property == nil
	}
	return domain.IsKind(err, domain.ErrPropertyNotFound)
}
