package service

import (
	"log/slog"

	redisx "github.com/hvaleng/garasje/internal/redis"
	postgres "github.com/hvaleng/garasje/internal/repository/postgres"
	redis "github.com/hvaleng/garasje/internal/repository/redis"
	"github.com/hvaleng/garasje/internal/service/detection"
	"github.com/hvaleng/garasje/internal/service/occupancy"
	"github.com/hvaleng/garasje/internal/service/reservation"
	"github.com/hvaleng/garasje/internal/vision"
)

type Services struct {
	Occupancy   *occupancy.Service
	Reservation *reservation.Service
	Detection   *detection.Service
}

type Config struct {
	Occupancy   occupancy.Config
	Reservation reservation.Config
	Detection   detection.Config
}

func NewServices(
	store *postgres.Store,
	cache *redis.Cache,
	pubsub *redisx.SpotsPubSub,
	detector *vision.DetectorClient,
	ocr *vision.OCRClient,
	logger *slog.Logger,
	cfg Config,
) *Services {
	reservations := store.Reservations()
	users := store.Users()

	return &Services{
		Occupancy:   occupancy.New(reservations, cache, cfg.Occupancy),
		Reservation: reservation.New(reservations, users, cache, pubsub, cfg.Reservation),
		Detection:   detection.New(detector, ocr, reservations, users, cache, pubsub, logger, cfg.Detection),
	}
}
