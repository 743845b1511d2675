package lending

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"

	"github.com/prestana/prestana/internal/shared"
)

type stubCalendarStore struct {
	configs map[uuid.UUID]CalendarConfig
	calls   int
}

func (s *stubCalendarStore) GetCalendarConfig(ctx context.Context, businessID uuid.UUID) (CalendarConfig, error) {
	s.calls++
	cfg, ok := s.configs[businessID]
	if !ok {
		return CalendarConfig{}, shared.ErrNotFound
	}
	return cfg, nil
}

func TestCachedCalendarSourceHitsStoreOnce(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	businessID := uuid.New()

	store := &stubCalendarStore{configs: map[uuid.UUID]CalendarConfig{
		businessID: {NonWorkingWeekdays: []time.Weekday{time.Sunday}},
	}}
	source := NewCachedCalendarSource(store, client, time.Minute)

	ctx := context.Background()
	for i := 0; i < 3; i++ {
		cal, err := source.CalendarFor(ctx, businessID)
		require.NoError(t, err)
		require.False(t, cal.IsWorkingDay(date(2026, 1, 4))) // Sunday
	}
	require.Equal(t, 1, store.calls)
}

func TestCachedCalendarSourceMissingConfigIsIdentity(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})

	source := NewCachedCalendarSource(&stubCalendarStore{}, client, time.Minute)
	cal, err := source.CalendarFor(context.Background(), uuid.New())
	require.NoError(t, err)
	require.True(t, cal.IsWorkingDay(date(2026, 1, 4)))
}

func TestCachedCalendarSourceInvalidate(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	businessID := uuid.New()

	store := &stubCalendarStore{configs: map[uuid.UUID]CalendarConfig{businessID: {}}}
	source := NewCachedCalendarSource(store, client, time.Minute)

	ctx := context.Background()
	_, err := source.CalendarFor(ctx, businessID)
	require.NoError(t, err)
	require.NoError(t, source.Invalidate(ctx, businessID))
	_, err = source.CalendarFor(ctx, businessID)
	require.NoError(t, err)
	require.Equal(t, 2, store.calls)
}

func TestCachedCalendarSourceMalformedConfig(t *testing.T) {
	businessID := uuid.New()
	store := &stubCalendarStore{configs: map[uuid.UUID]CalendarConfig{
		businessID: {Holidays: []string{"not-a-date"}},
	}}
	source := NewCachedCalendarSource(store, nil, time.Minute)

	_, err := source.CalendarFor(context.Background(), businessID)
	require.ErrorIs(t, err, ErrCalendarConfig)
}
