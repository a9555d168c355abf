package usecase

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/ebookgov/property-voice-agent/internal/core/domain"
	"github.com/ebookgov/property-voice-agent/internal/core/ports"
)

// SubjectInvalidator drops cached lookups for a subject.
type SubjectInvalidator interface {
	InvalidateSubject(ctx context.Context, subjectID string) error
}

type PropertySeedOption func(*PropertySeedUseCase)

// WithListingIndex also writes each seeded property into the listing index
// used by hybrid property search.
func WithListingIndex(listings *ListingIndexer) PropertySeedOption {
	return func(uc *PropertySeedUseCase) {
		uc.listings = listings
	}
}

// PropertySeedUseCase upserts property records and invalidates any cached
// lookups for them, locally and across instances.
type PropertySeedUseCase struct {
	repo        ports.PropertyRepository
	invalidator SubjectInvalidator
	bus         ports.InvalidationBus
	listings    *ListingIndexer
	logger      *slog.Logger
}

func NewPropertySeedUseCase(
	repo ports.PropertyRepository,
	invalidator SubjectInvalidator,
	bus ports.InvalidationBus,
	logger *slog.Logger,
	opts ...PropertySeedOption,
) *PropertySeedUseCase {
	if logger == nil {
		logger = slog.Default()
	}
	uc := &PropertySeedUseCase{
		repo:        repo,
		invalidator: invalidator,
		bus:         bus,
		logger:      logger,
	}
	for _, opt := range opts {
		opt(uc)
	}
	return uc
}

// Seed writes every record, refreshes the listing index and then invalidates
// cached lookups, so no search can cache the old listing after invalidation.
// Records written before a failure stay written and are still invalidated.
func (uc *PropertySeedUseCase) Seed(ctx context.Context, properties []domain.Property) error {
	if len(properties) == 0 {
		return domain.WrapError(domain.ErrInvalidInput, "seed properties", errors.New("no properties"))
	}
	for i, p := range properties {
		if strings.TrimSpace(p.ID) == "" {
			return domain.WrapError(domain.ErrInvalidInput, "seed properties", fmt.Errorf("property %d has empty property_id", i))
		}
	}

	written := 0
	var err error
	for _, p := range properties {
		if err = uc.repo.Upsert(ctx, p); err != nil {
			err = fmt.Errorf("upsert property %s: %w", p.ID, err)
			break
		}
		written++
	}
	if err == nil && uc.listings != nil {
		if indexErr := uc.listings.Index(ctx, properties); indexErr != nil {
			err = fmt.Errorf("index property listings: %w", indexErr)
		}
	}

	for _, p := range properties[:written] {
		for _, subject := range seedSubjects(p) {
			uc.invalidate(ctx, subject)
		}
	}
	return err
}

// invalidate is best effort: records are already written and cached entries
// expire on their own.
func (uc *PropertySeedUseCase) invalidate(ctx context.Context, subject string) {
	if uc.invalidator != nil {
		if err := uc.invalidator.InvalidateSubject(ctx, subject); err != nil {
			uc.logger.Warn("seed_invalidation_failed", "subject_id", subject, "error", err)
		}
	}
	if uc.bus != nil {
		if err := uc.bus.PublishInvalidation(ctx, domain.InvalidationEvent{SubjectID: subject}); err != nil {
			uc.logger.Warn("seed_invalidation_publish_failed", "subject_id", subject, "error", err)
		}
	}
}

// seedSubjects lists the identifiers a caller may have used to cache the record.
func seedSubjects(p domain.Property) []string {
	subjects := []string{p.ID}
	if name := strings.TrimSpace(p.Name); name != "" && domain.NormalizeSubject(name) != domain.NormalizeSubject(p.ID) {
		subjects = append(subjects, name)
	}
	return subjects
}
