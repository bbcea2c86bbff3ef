package httpgin

import (
	"time"

	"github.com/hvaleng/garasje/internal/domain"
)

type ReserveRequest struct {
	UserID             int64  `json:"user_id" binding:"required"`
	LicensePlate       string `json:"license_plate" binding:"required"`
	EstimatedDeparture string `json:"estimated_departure"`
}

type ClaimRequest struct {
	UserID             int64  `json:"user_id" binding:"required"`
	LicensePlate       string `json:"license_plate" binding:"required"`
	EstimatedDeparture string `json:"estimated_departure"`
}

type ReleaseRequest struct {
	UserID int64 `json:"user_id" binding:"required"`
}

type ErrorResponse struct {
	Error string `json:"error"`
}

type ReserveResponse struct {
	Reservation *domain.Reservation `json:"reservation"`
	// PairedOccupant reports who stands in the tandem neighbour spot, so
	// a driver reserving a B spot sees whom they are parking in.
	PairedOccupant *domain.Occupant `json:"paired_occupant,omitempty"`
}

type ClaimResponse struct {
	Reservation *domain.Reservation `json:"reservation"`
}

func parseDeparture(s string) (*time.Time, error) {
	if s == "" {
		return nil, nil
	}
	t, err := time.Parse(time.RFC3339, s)
	if err != nil {
		return nil, err
	}
	return &t, nil
}
