// Package detection runs the vision pipeline: detect vehicles, read
// plates, place vehicles on the grid, merge the result into the
// occupancy model and write compensating reservation records so the
// backend re-converges with what the camera saw.
package detection

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	gocache "github.com/patrickmn/go-cache"
	"golang.org/x/sync/errgroup"

	"github.com/hvaleng/garasje/internal/assign"
	"github.com/hvaleng/garasje/internal/domain"
	"github.com/hvaleng/garasje/internal/engine"
	"github.com/hvaleng/garasje/internal/geometry"
	redisx "github.com/hvaleng/garasje/internal/redis"
	"github.com/hvaleng/garasje/internal/repository"
	redisrepo "github.com/hvaleng/garasje/internal/repository/redis"
)

// Detector is the vehicle/box detection collaborator.
type Detector interface {
	DetectVehicles(ctx context.Context, image []byte, filename string) ([]domain.Vehicle, string, error)
}

// PlateReader is the license-plate OCR collaborator.
type PlateReader interface {
	ReadPlates(ctx context.Context, image []byte, filename string) ([]domain.PlateDetection, error)
}

type ReservationStore interface {
	ListForDate(ctx context.Context, date time.Time) ([]domain.ReservationWithUser, error)
	FindActiveForUser(ctx context.Context, userID int64, date time.Time) (*domain.Reservation, error)
	FindBySpot(ctx context.Context, spot domain.SpotID, date time.Time) (*domain.ReservationWithUser, error)
	Create(ctx context.Context, res domain.Reservation) (*domain.Reservation, error)
}

type UserStore interface {
	FindByPlate(ctx context.Context, plate string) (*domain.User, error)
}

type Config struct {
	Rows          int
	PlateCacheTTL time.Duration
	WriteWorkers  int
}

// Result is one completed detection pass.
type Result struct {
	Spots          []domain.ParkingSpot  `json:"spots"`
	Boundaries     []domain.SpotBoundary `json:"boundaries"`
	ProcessedImage string                `json:"processed_image,omitempty"`
}

type Service struct {
	detector   Detector
	ocr        PlateReader
	store      ReservationStore
	users      UserStore
	cache      *redisrepo.Cache
	pubsub     *redisx.SpotsPubSub
	plateCache *gocache.Cache
	logger     *slog.Logger
	cfg        Config
	now        func() time.Time
}

func New(
	detector Detector,
	ocr PlateReader,
	store ReservationStore,
	users UserStore,
	cache *redisrepo.Cache,
	pubsub *redisx.SpotsPubSub,
	logger *slog.Logger,
	cfg Config,
) *Service {
	if cfg.Rows <= 0 {
		cfg.Rows = 5
	}

	if cfg.PlateCacheTTL <= 0 {
		cfg.PlateCacheTTL = 5 * time.Minute
	}

	if cfg.WriteWorkers <= 0 {
		cfg.WriteWorkers = 4
	}

	return &Service{
		detector:   detector,
		ocr:        ocr,
		store:      store,
		users:      users,
		cache:      cache,
		pubsub:     pubsub,
		plateCache: gocache.New(cfg.PlateCacheTTL, 2*cfg.PlateCacheTTL),
		logger:     logger,
		cfg:        cfg,
		now:        time.Now,
	}
}

// ProcessImage runs one full detection pass over a camera image.
//
// The detector is required; the OCR step is a soft dependency, its
// failure degrades to zero plates. After the grid merge, compensating
// reservation writes run concurrently with per-item failure isolation,
// and the final re-fetch happens regardless of their outcomes, so a
// partial-failure batch still converges to a consistent state.
//
// Returns:
//   - *Result: the merged grid, boundaries and annotated image.
//   - error: detection.ErrEmptyImage, detection.ErrDetectorFailure.
func (s *Service) ProcessImage(ctx context.Context, image []byte, filename string) (*Result, error) {
	const op = "service.detection.ProcessImage"

	if len(image) == 0 {
		return nil, fmt.Errorf("%s:%w", op, ErrEmptyImage)
	}

	vehicles, processed, err := s.detector.DetectVehicles(ctx, image, filename)
	if err != nil {
		return nil, fmt.Errorf("%s:%w: %w", op, ErrDetectorFailure, err)
	}

	plates, err := s.ocr.ReadPlates(ctx, image, filename)
	if err != nil {
		s.logger.Warn("plate ocr failed, continuing without plates", "error", err)
		plates = nil
	}

	vehicles = geometry.MatchPlatesToVehicles(plates, vehicles)
	detected := assign.VehiclesToSpots(vehicles, s.cfg.Rows)
	boundaries := assign.ToBoundaries(detected)

	today := s.today()

	reservations, err := s.store.ListForDate(ctx, today)
	if err != nil {
		return nil, fmt.Errorf("%s:%w", op, err)
	}

	current := engine.FromReservations(reservations, nil, s.cfg.Rows)
	merged := engine.FromDetections(boundaries, current)

	s.writeCompensations(ctx, boundaries, today)

	// Full re-fetch regardless of individual write outcomes.
	reservations, err = s.store.ListForDate(ctx, today)
	if err != nil {
		return nil, fmt.Errorf("%s:%w", op, err)
	}

	final := engine.FromReservations(reservations, merged, s.cfg.Rows)

	day := today.Format(time.DateOnly)
	if s.cache != nil {
		_ = s.cache.InvalidateSpots(ctx, day)
	}
	if s.pubsub != nil {
		_ = s.pubsub.PublishSpotsChanged(ctx, day)
	}

	return &Result{
		Spots:          final,
		Boundaries:     boundaries,
		ProcessedImage: processed,
	}, nil
}

// writeCompensations re-converges the reservation store with the
// detections: identified vehicles without a reservation get one, and a
// plate-less vehicle blocked in on an A spot gets an anonymous blocked
// record. Writes are issued concurrently and awaited as a batch; one
// failure never stops the others.
func (s *Service) writeCompensations(ctx context.Context, boundaries []domain.SpotBoundary, date time.Time) {
	bySpot := make(map[domain.SpotID]domain.SpotBoundary, len(boundaries))
	for _, b := range boundaries {
		bySpot[b.SpotNumber] = b
	}

	g, gCtx := errgroup.WithContext(ctx)
	g.SetLimit(s.cfg.WriteWorkers)

	for _, b := range boundaries {
		b := b
		if !b.Occupied || b.Vehicle == nil {
			continue
		}

		switch {
		case b.Vehicle.LicensePlate != "":
			g.Go(func() error {
				s.ensureIdentifiedReservation(gCtx, b, date)
				return nil
			})
		case b.SpotNumber.Col() == domain.ColumnA:
			pair, _ := b.SpotNumber.BlockedBy()
			if !bySpot[pair].Occupied {
				continue
			}
			g.Go(func() error {
				s.ensureAnonymousBlockedReservation(gCtx, b.SpotNumber, date)
				return nil
			})
		}
	}

	_ = g.Wait()
}

func (s *Service) ensureIdentifiedReservation(ctx context.Context, b domain.SpotBoundary, date time.Time) {
	plate := b.Vehicle.LicensePlate

	user := s.lookupUserByPlate(ctx, plate)
	if user == nil {
		return
	}

	if _, err := s.store.FindActiveForUser(ctx, user.ID, date); err == nil {
		return
	} else if !errors.Is(err, repository.ErrNotFound) {
		s.logger.Warn("reservation lookup failed", "plate", plate, "error", err)
		return
	}

	userID := user.ID
	_, err := s.store.Create(ctx, domain.Reservation{
		SpotNumber:      b.SpotNumber,
		UserID:          &userID,
		LicensePlate:    plate,
		ReservationDate: date,
	})
	if err != nil && !errors.Is(err, repository.ErrSpotTaken) {
		s.logger.Warn("compensating reservation write failed",
			"spot", b.SpotNumber, "plate", plate, "error", err)
	}
}

func (s *Service) ensureAnonymousBlockedReservation(ctx context.Context, spot domain.SpotID, date time.Time) {
	if _, err := s.store.FindBySpot(ctx, spot, date); err == nil {
		return
	} else if !errors.Is(err, repository.ErrNotFound) {
		s.logger.Warn("spot lookup failed", "spot", spot, "error", err)
		return
	}

	_, err := s.store.Create(ctx, domain.Reservation{
		SpotNumber:      spot,
		ReservationDate: date,
		Anonymous:       true,
		BlockedSpot:     true,
	})
	if err != nil && !errors.Is(err, repository.ErrSpotTaken) {
		s.logger.Warn("anonymous blocking write failed", "spot", spot, "error", err)
	}
}

// lookupUserByPlate memoizes plate-to-user resolution for the duration
// of a few detection passes; unregistered plates are cached negatively.
func (s *Service) lookupUserByPlate(ctx context.Context, plate string) *domain.User {
	if v, ok := s.plateCache.Get(plate); ok {
		u, _ := v.(*domain.User)
		return u
	}

	user, err := s.users.FindByPlate(ctx, plate)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			s.plateCache.SetDefault(plate, (*domain.User)(nil))
		} else {
			s.logger.Warn("plate lookup failed", "plate", plate, "error", err)
		}
		return nil
	}

	s.plateCache.SetDefault(plate, user)
	return user
}

func (s *Service) today() time.Time {
	return s.now().UTC().Truncate(24 * time.Hour)
}
