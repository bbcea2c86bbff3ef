// Package occupancy is the read side: it serves the reconciled spot
// grid, rebuilt from today's reservations on every cache miss.
package occupancy

import (
	"context"
	"fmt"
	"time"

	"github.com/hvaleng/garasje/internal/domain"
	"github.com/hvaleng/garasje/internal/engine"
	redisx "github.com/hvaleng/garasje/internal/redis"
	redisrepo "github.com/hvaleng/garasje/internal/repository/redis"
)

type ReservationStore interface {
	ListForDate(ctx context.Context, date time.Time) ([]domain.ReservationWithUser, error)
}

type Config struct {
	Rows            int
	SpotsTTL        time.Duration
	AvailabilityTTL time.Duration
}

type Service struct {
	store ReservationStore
	cache *redisrepo.Cache
	cfg   Config
	now   func() time.Time
}

func New(store ReservationStore, cache *redisrepo.Cache, cfg Config) *Service {
	if cfg.Rows <= 0 {
		cfg.Rows = 5
	}

	if cfg.SpotsTTL <= 0 {
		cfg.SpotsTTL = 15 * time.Second
	}

	if cfg.AvailabilityTTL <= 0 {
		cfg.AvailabilityTTL = 15 * time.Second
	}

	return &Service{
		store: store,
		cache: cache,
		cfg:   cfg,
		now:   time.Now,
	}
}

// Spots returns the reconciled grid for today.
func (s *Service) Spots(ctx context.Context) ([]domain.ParkingSpot, error) {
	const op = "service.occupancy.Spots"

	today := s.today()

	if s.cache == nil {
		spots, err := s.load(ctx, today)
		if err != nil {
			return nil, fmt.Errorf("%s:%w", op, err)
		}
		return spots, nil
	}

	key := redisx.KeySpots(today.Format(time.DateOnly))

	spots, err := redisrepo.GetOrSetJSON(
		ctx,
		s.cache,
		key,
		s.cfg.SpotsTTL,
		func(ctx context.Context) ([]domain.ParkingSpot, error) {
			return s.load(ctx, today)
		},
	)
	if err != nil {
		return nil, fmt.Errorf("%s:%w", op, err)
	}

	return spots, nil
}

// Availability returns the free/occupied/blocked counters for today.
func (s *Service) Availability(ctx context.Context) (*domain.AvailabilityCounts, error) {
	const op = "service.occupancy.Availability"

	spots, err := s.Spots(ctx)
	if err != nil {
		return nil, fmt.Errorf("%s:%w", op, err)
	}

	counts := engine.Counts(spots)
	return &counts, nil
}

// ReservationsForDate lists the raw reservation records for one date.
func (s *Service) ReservationsForDate(ctx context.Context, date time.Time) ([]domain.ReservationWithUser, error) {
	const op = "service.occupancy.ReservationsForDate"

	out, err := s.store.ListForDate(ctx, date.UTC().Truncate(24*time.Hour))
	if err != nil {
		return nil, fmt.Errorf("%s:%w", op, err)
	}

	return out, nil
}

func (s *Service) load(ctx context.Context, date time.Time) ([]domain.ParkingSpot, error) {
	reservations, err := s.store.ListForDate(ctx, date)
	if err != nil {
		return nil, err
	}

	return engine.FromReservations(reservations, nil, s.cfg.Rows), nil
}

func (s *Service) today() time.Time {
	return s.now().UTC().Truncate(24 * time.Hour)
}
