package lending

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"github.com/prestana/prestana/internal/shared"
)

// CalendarConfigStore loads raw calendar configuration from persistence.
type CalendarConfigStore interface {
	GetCalendarConfig(ctx context.Context, businessID uuid.UUID) (CalendarConfig, error)
}

// CachedCalendarSource resolves per-business calendars, caching the raw
// configuration in Redis with a TTL. Every schedule and penalty operation
// of one tenant sees the same calendar until the cache entry expires.
type CachedCalendarSource struct {
	store  CalendarConfigStore
	client *redis.Client
	ttl    time.Duration
}

// NewCachedCalendarSource instantiates the source. A nil client disables
// caching and loads from the store every time.
func NewCachedCalendarSource(store CalendarConfigStore, client *redis.Client, ttl time.Duration) *CachedCalendarSource {
	return &CachedCalendarSource{store: store, client: client, ttl: ttl}
}

func calendarCacheKey(businessID uuid.UUID) string {
	return fmt.Sprintf("lending:calendar:%s", businessID)
}

// CalendarFor returns the working-day calendar of one business. A business
// without configuration gets the identity calendar; a malformed
// configuration surfaces ErrCalendarConfig for the caller to degrade on.
func (s *CachedCalendarSource) CalendarFor(ctx context.Context, businessID uuid.UUID) (*Calendar, error) {
	cfg, err := s.config(ctx, businessID)
	if errors.Is(err, shared.ErrNotFound) {
		return IdentityCalendar(), nil
	}
	if err != nil {
		return nil, err
	}
	return NewCalendar(cfg)
}

func (s *CachedCalendarSource) config(ctx context.Context, businessID uuid.UUID) (CalendarConfig, error) {
	key := calendarCacheKey(businessID)
	if s.client != nil {
		raw, err := s.client.Get(ctx, key).Bytes()
		if err == nil {
			var cfg CalendarConfig
			if err := json.Unmarshal(raw, &cfg); err == nil {
				return cfg, nil
			}
			// Corrupt cache entry: drop it and fall through to the store.
			_ = s.client.Del(ctx, key).Err()
		} else if !errors.Is(err, redis.Nil) {
			return CalendarConfig{}, fmt.Errorf("lending: calendar cache: %w", err)
		}
	}

	cfg, err := s.store.GetCalendarConfig(ctx, businessID)
	if err != nil {
		return CalendarConfig{}, err
	}
	if s.client != nil {
		if raw, err := json.Marshal(cfg); err == nil {
			_ = s.client.Set(ctx, key, raw, s.ttl).Err()
		}
	}
	return cfg, nil
}

// Invalidate drops the cached configuration of one business, forcing the
// next resolution to hit the store.
func (s *CachedCalendarSource) Invalidate(ctx context.Context, businessID uuid.UUID) error {
	if s.client == nil {
		return nil
	}
	return s.client.Del(ctx, calendarCacheKey(businessID)).Err()
}
