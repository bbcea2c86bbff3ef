// Package reservation sequences the reserve/unreserve/claim actions
// against the reconciled grid, enforcing the one-reservation-per-user
// and ownership rules before any write reaches the store.
package reservation

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"time"

	"github.com/hvaleng/garasje/internal/domain"
	"github.com/hvaleng/garasje/internal/engine"
	redisx "github.com/hvaleng/garasje/internal/redis"
	"github.com/hvaleng/garasje/internal/repository"
	redisrepo "github.com/hvaleng/garasje/internal/repository/redis"
)

// ReservationStore is the slice of the reservation repository this
// service needs.
type ReservationStore interface {
	FindActiveForUser(ctx context.Context, userID int64, date time.Time) (*domain.Reservation, error)
	FindBySpot(ctx context.Context, spot domain.SpotID, date time.Time) (*domain.ReservationWithUser, error)
	Create(ctx context.Context, res domain.Reservation) (*domain.Reservation, error)
	DeleteBySpotAndUser(ctx context.Context, spot domain.SpotID, userID int64, date time.Time) error
	Claim(ctx context.Context, spot domain.SpotID, date time.Time, res domain.Reservation) (*domain.Reservation, error)
}

type UserStore interface {
	GetByID(ctx context.Context, id int64) (*domain.User, error)
}

type Config struct {
	Rows int
}

type Service struct {
	store  ReservationStore
	users  UserStore
	cache  *redisrepo.Cache
	pubsub *redisx.SpotsPubSub
	cfg    Config
	now    func() time.Time
}

func New(
	store ReservationStore,
	users UserStore,
	cache *redisrepo.Cache,
	pubsub *redisx.SpotsPubSub,
	cfg Config,
) *Service {
	if cfg.Rows <= 0 {
		cfg.Rows = 5
	}

	return &Service{
		store:  store,
		users:  users,
		cache:  cache,
		pubsub: pubsub,
		cfg:    cfg,
		now:    time.Now,
	}
}

// Reserve books a spot for the user for today.
//
// Parameters:
//   - ctx: request-scoped context.
//   - userID: the acting user.
//   - spot: target spot number, e.g. "3A".
//   - plate: the license plate to park, must belong to the user.
//   - departure: optional estimated departure time.
//
// Returns:
//   - *domain.Reservation: the created reservation.
//   - *domain.Occupant: the tandem neighbour affected by this
//     reservation (the A occupant being parked in when reserving a B
//     spot, or the B occupant blocking an A spot), nil when the paired
//     spot is free. Informational only.
//   - error: reservation.ErrPlateNotOwned, reservation.ErrAlreadyReserved,
//     reservation.ErrSpotTaken, reservation.ErrInvalidSpot,
//     reservation.ErrUserNotFound.
func (s *Service) Reserve(
	ctx context.Context,
	userID int64,
	spot domain.SpotID,
	plate string,
	departure *time.Time,
) (*domain.Reservation, *domain.Occupant, error) {
	const op = "service.reservation.Reserve"

	if _, err := domain.ParseSpotID(string(spot), s.cfg.Rows); err != nil {
		return nil, nil, fmt.Errorf("%s:%w", op, ErrInvalidSpot)
	}

	user, err := s.users.GetByID(ctx, userID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, nil, fmt.Errorf("%s:%w", op, ErrUserNotFound)
		}
		return nil, nil, fmt.Errorf("%s:%w", op, err)
	}

	if !slices.Contains(user.LicensePlates, plate) {
		return nil, nil, fmt.Errorf("%s:%w", op, ErrPlateNotOwned)
	}

	today := s.today()

	// One active reservation per user per day, checked before any write.
	if _, err := s.store.FindActiveForUser(ctx, userID, today); err == nil {
		return nil, nil, fmt.Errorf("%s:%w", op, ErrAlreadyReserved)
	} else if !errors.Is(err, repository.ErrNotFound) {
		return nil, nil, fmt.Errorf("%s:%w", op, err)
	}

	created, err := s.store.Create(ctx, domain.Reservation{
		SpotNumber:         spot,
		UserID:             &userID,
		LicensePlate:       plate,
		ReservationDate:    today,
		EstimatedDeparture: departure,
	})
	if err != nil {
		if errors.Is(err, repository.ErrSpotTaken) || errors.Is(err, repository.ErrConflict) {
			return nil, nil, fmt.Errorf("%s:%w", op, ErrSpotTaken)
		}
		return nil, nil, fmt.Errorf("%s:%w", op, err)
	}

	s.invalidate(ctx, today)

	return created, s.pairedOccupant(ctx, spot, today), nil
}

// Unreserve releases the user's own reservation at a spot.
//
// Returns:
//   - error: reservation.ErrNotOwner when the reservation belongs to
//     someone else, reservation.ErrReservationNotFound when the backend
//     holds no record for the spot (the caller must re-sync).
func (s *Service) Unreserve(ctx context.Context, userID int64, spot domain.SpotID) error {
	const op = "service.reservation.Unreserve"

	if _, err := domain.ParseSpotID(string(spot), s.cfg.Rows); err != nil {
		return fmt.Errorf("%s:%w", op, ErrInvalidSpot)
	}

	today := s.today()

	existing, err := s.store.FindBySpot(ctx, spot, today)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return fmt.Errorf("%s:%w", op, ErrReservationNotFound)
		}
		return fmt.Errorf("%s:%w", op, err)
	}

	if existing.Anonymous || existing.UserID == nil || *existing.UserID != userID {
		return fmt.Errorf("%s:%w", op, ErrNotOwner)
	}

	if err := s.store.DeleteBySpotAndUser(ctx, spot, userID, today); err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return fmt.Errorf("%s:%w", op, ErrReservationNotFound)
		}
		return fmt.Errorf("%s:%w", op, err)
	}

	s.invalidate(ctx, today)

	return nil
}

// Claim takes over an anonymously occupied spot: the anonymous record is
// replaced by an identified reservation for the claiming user, in one
// transaction.
//
// Returns:
//   - *domain.Reservation: the new identified reservation.
//   - error: reservation.ErrNotClaimable when the spot is held by an
//     identified reservation, plus the Reserve guard errors.
func (s *Service) Claim(
	ctx context.Context,
	userID int64,
	spot domain.SpotID,
	plate string,
	departure *time.Time,
) (*domain.Reservation, error) {
	const op = "service.reservation.Claim"

	if _, err := domain.ParseSpotID(string(spot), s.cfg.Rows); err != nil {
		return nil, fmt.Errorf("%s:%w", op, ErrInvalidSpot)
	}

	user, err := s.users.GetByID(ctx, userID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, fmt.Errorf("%s:%w", op, ErrUserNotFound)
		}
		return nil, fmt.Errorf("%s:%w", op, err)
	}

	if !slices.Contains(user.LicensePlates, plate) {
		return nil, fmt.Errorf("%s:%w", op, ErrPlateNotOwned)
	}

	today := s.today()

	if _, err := s.store.FindActiveForUser(ctx, userID, today); err == nil {
		return nil, fmt.Errorf("%s:%w", op, ErrAlreadyReserved)
	} else if !errors.Is(err, repository.ErrNotFound) {
		return nil, fmt.Errorf("%s:%w", op, err)
	}

	// An identified reservation cannot be claimed away; rejected here
	// before any write.
	existing, err := s.store.FindBySpot(ctx, spot, today)
	if err == nil && !existing.Anonymous {
		return nil, fmt.Errorf("%s:%w", op, ErrNotClaimable)
	} else if err != nil && !errors.Is(err, repository.ErrNotFound) {
		return nil, fmt.Errorf("%s:%w", op, err)
	}

	created, err := s.store.Claim(ctx, spot, today, domain.Reservation{
		UserID:             &userID,
		LicensePlate:       plate,
		EstimatedDeparture: departure,
	})
	if err != nil {
		if errors.Is(err, repository.ErrSpotTaken) || errors.Is(err, repository.ErrConflict) {
			return nil, fmt.Errorf("%s:%w", op, ErrSpotTaken)
		}
		return nil, fmt.Errorf("%s:%w", op, err)
	}

	s.invalidate(ctx, today)

	return created, nil
}

// pairedOccupant resolves the tandem neighbour affected by a fresh
// reservation, for the informational confirmation. Lookup failures are
// swallowed: this must never fail a successful reserve.
func (s *Service) pairedOccupant(ctx context.Context, spot domain.SpotID, date time.Time) *domain.Occupant {
	paired := spot.Paired()
	if paired == "" {
		return nil
	}

	rw, err := s.store.FindBySpot(ctx, paired, date)
	if err != nil {
		return nil
	}

	return engine.OccupantFrom(*rw)
}

func (s *Service) today() time.Time {
	return s.now().UTC().Truncate(24 * time.Hour)
}

func (s *Service) invalidate(ctx context.Context, date time.Time) {
	day := date.Format(time.DateOnly)
	if s.cache != nil {
		_ = s.cache.InvalidateSpots(ctx, day)
	}
	if s.pubsub != nil {
		_ = s.pubsub.PublishSpotsChanged(ctx, day)
	}
}
