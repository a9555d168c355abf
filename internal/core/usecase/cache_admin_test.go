package usecase

import (
	"context"
	"encoding/json"
	"errors"
	"testing"

	"github.com/ebookgov/property-voice-agent/internal/core/cache"
	"github.com/ebookgov/property-voice-agent/internal/core/domain"
)

func newAdminFixture(t *testing.T, bus *busFake) (*CacheAdminUseCase, *cache.LookupCache) {
	t.Helper()
	c := cache.New(cache.Config{}, cache.WithLogger(discardLogger()))
	t.Cleanup(c.Close)
	if bus == nil {
		return NewCacheAdminUseCase(c, nil, "api-1", discardLogger()), c
	}
	return NewCacheAdminUseCase(c, bus, "api-1", discardLogger()), c
}

func TestCacheAdminInvalidateAppliesAndBroadcasts(t *testing.T) {
	bus := &busFake{}
	uc, c := newAdminFixture(t, bus)
	key := domain.NewPropertyCacheKey("AZ-FLAG-001", domain.FactHOA)
	c.Put(context.Background(), key, json.RawMessage(`{}`))

	if err := uc.Invalidate(context.Background(), domain.InvalidationEvent{SubjectID: "AZ-FLAG-001"}); err != nil {
		t.Fatalf("Invalidate() error = %v", err)
	}
	if c.Get(context.Background(), key).Found() {
		t.Fatalf("expected local entry removed")
	}
	if len(bus.published) != 1 || bus.published[0].Origin != "api-1" {
		t.Fatalf("unexpected broadcast: %+v", bus.published)
	}
}

func TestCacheAdminInvalidateRejectsEmptyEvent(t *testing.T) {
	bus := &busFake{}
	uc, _ := newAdminFixture(t, bus)

	err := uc.Invalidate(context.Background(), domain.InvalidationEvent{})
	if !domain.IsKind(err, domain.ErrInvalidInput) {
		t.Fatalf("expected invalid input, got %v", err)
	}
	if len(bus.published) != 0 {
		t.Fatalf("invalid events must not be broadcast")
	}
}

func TestCacheAdminPublishFailureIsNotFatal(t *testing.T) {
	uc, _ := newAdminFixture(t, &busFake{err: errors.New("nats: no servers available")})
	if err := uc.Invalidate(context.Background(), domain.InvalidationEvent{All: true}); err != nil {
		t.Fatalf("Invalidate() error = %v", err)
	}
}

func TestCacheAdminHandleRemoteSkipsOwnEvents(t *testing.T) {
	uc, c := newAdminFixture(t, nil)
	key := domain.NewPropertyCacheKey("AZ-FLAG-001", domain.FactHOA)
	c.Put(context.Background(), key, json.RawMessage(`{}`))

	if err := uc.HandleRemote(context.Background(), domain.InvalidationEvent{SubjectID: "AZ-FLAG-001", Origin: "api-1"}); err != nil {
		t.Fatalf("HandleRemote() error = %v", err)
	}
	if !c.Get(context.Background(), key).Found() {
		t.Fatalf("own event must be skipped")
	}
	if err := uc.HandleRemote(context.Background(), domain.InvalidationEvent{SubjectID: "AZ-FLAG-001", Origin: "api-2"}); err != nil {
		t.Fatalf("HandleRemote() error = %v", err)
	}
	if c.Get(context.Background(), key).Found() {
		t.Fatalf("remote event must invalidate")
	}
}

func TestCacheAdminStatsAndReset(t *testing.T) {
	uc, c := newAdminFixture(t, nil)
	_, _ = c.GetOrFetch(context.Background(), domain.NewPropertyCacheKey("x", domain.FactGeneral), func(context.Context) (cache.Fetched, error) {
		return cache.Fetched{Payload: json.RawMessage(`{}`), Cacheable: true}, nil
	})
	if uc.Stats().Misses != 1 {
		t.Fatalf("expected one miss, got %+v", uc.Stats())
	}
	uc.ResetStats()
	if uc.Stats().Total() != 0 {
		t.Fatalf("expected reset stats")
	}
}
