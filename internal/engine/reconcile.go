// Package engine merges the disagreeing sources of truth about the
// garage (reservation records, vision detections, prior in-memory
// state) into one consistent per-spot occupancy model.
//
// Both entry points are pure: they never touch their inputs, never call
// out, and fully recompute the derived fields they own on every call,
// so repeated reconciliation cannot accumulate drift.
package engine

import (
	"github.com/hvaleng/garasje/internal/domain"
)

// FromReservations rebuilds the spot grid from the authoritative
// reservation records for one date.
//
// With an empty previous slice the full fixed grid is synthesized from
// scratch. Otherwise spots are updated positionally by spot number,
// preserving detection-derived fields (vehicle echoes) that the
// reservations imply nothing about.
//
// Anonymous reservations never expose an identity: even when the
// backend row carries an attached user, the occupant's name, email,
// phone number and user id are forced to nil.
func FromReservations(reservations []domain.ReservationWithUser, previous []domain.ParkingSpot, rows int) []domain.ParkingSpot {
	bySpot := make(map[domain.SpotID]domain.ReservationWithUser, len(reservations))
	for _, r := range reservations {
		bySpot[r.SpotNumber] = r
	}

	spots := bootstrap(previous, rows)

	for i := range spots {
		r, ok := bySpot[spots[i].SpotNumber]
		if !ok {
			spots[i].IsOccupied = false
			spots[i].Anonymous = false
			spots[i].BlockedSpot = false
			spots[i].OccupiedBy = nil
			spots[i].Vehicle = nil
			continue
		}

		spots[i].IsOccupied = true
		spots[i].Anonymous = r.Anonymous
		spots[i].BlockedSpot = r.BlockedSpot
		spots[i].OccupiedBy = OccupantFrom(r)
	}

	return spots
}

// FromDetections merges one detection pass into the current grid.
//
// Detection is authoritative over stale in-memory state for occupancy.
// A spot in column A is flagged blocked whenever the boundary of its
// paired B spot reports occupied; a blocked, occupied A spot whose
// vehicle has no readable plate becomes an anonymous occupancy. The
// engine only derives the view; writing compensating reservation
// records back is the orchestrator's job.
func FromDetections(boundaries []domain.SpotBoundary, current []domain.ParkingSpot) []domain.ParkingSpot {
	bySpot := make(map[domain.SpotID]domain.SpotBoundary, len(boundaries))
	for _, b := range boundaries {
		bySpot[b.SpotNumber] = b
	}

	spots := make([]domain.ParkingSpot, len(current))
	copy(spots, current)

	for i := range spots {
		b := bySpot[spots[i].SpotNumber] // zero boundary means unoccupied

		blocked := false
		if pair, ok := spots[i].SpotNumber.BlockedBy(); ok {
			blocked = bySpot[pair].Occupied
		}

		plate := boundaryPlate(b)
		anonymous := blocked && b.Occupied && plate == ""

		spots[i].IsOccupied = b.Occupied
		spots[i].BlockedSpot = blocked
		spots[i].Anonymous = anonymous
		spots[i].Vehicle = b.Vehicle

		switch {
		case plate != "":
			// Plate-to-identity resolution is a separate, backend-mediated
			// step; only the plate itself is carried here.
			spots[i].OccupiedBy = &domain.Occupant{LicensePlate: ptr(plate)}
		case blocked && b.Occupied:
			spots[i].OccupiedBy = &domain.Occupant{Anonymous: true}
		default:
			spots[i].OccupiedBy = nil
		}

		if b.Vehicle != nil {
			spots[i].DetectedVehicle = &domain.DetectedVehicle{
				Confidence:   b.Vehicle.Confidence,
				BoundingBox:  b.Vehicle.BoundingBox,
				Type:         b.Vehicle.Type,
				Area:         b.Vehicle.Area,
				LicensePlate: b.Vehicle.LicensePlate,
			}
		} else {
			spots[i].DetectedVehicle = nil
		}
	}

	return spots
}

// Counts summarises a reconciled grid.
func Counts(spots []domain.ParkingSpot) domain.AvailabilityCounts {
	c := domain.AvailabilityCounts{Total: len(spots)}
	for _, s := range spots {
		if s.IsOccupied {
			c.Occupied++
		} else {
			c.Free++
		}
		if s.BlockedSpot {
			c.Blocked++
		}
	}
	return c
}

func bootstrap(previous []domain.ParkingSpot, rows int) []domain.ParkingSpot {
	if len(previous) > 0 {
		out := make([]domain.ParkingSpot, len(previous))
		copy(out, previous)
		return out
	}

	order := domain.SpotOrder(rows)
	out := make([]domain.ParkingSpot, len(order))
	for i, id := range order {
		out[i] = domain.ParkingSpot{ID: i + 1, SpotNumber: id}
	}
	return out
}

// OccupantFrom derives the occupant view of one reservation, applying
// the anonymous-privacy rule.
func OccupantFrom(r domain.ReservationWithUser) *domain.Occupant {
	o := &domain.Occupant{
		EstimatedDeparture: r.EstimatedDeparture,
		Anonymous:          r.Anonymous,
	}

	if r.LicensePlate != "" {
		o.LicensePlate = ptr(r.LicensePlate)
	}

	if r.Anonymous {
		return o
	}

	o.UserID = r.UserID
	if r.User != nil {
		o.Name = ptr(r.User.Name)
		o.Email = ptr(r.User.Email)
		o.PhoneNumber = ptr(r.User.PhoneNumber)
	}

	return o
}

func boundaryPlate(b domain.SpotBoundary) string {
	if b.Vehicle == nil {
		return ""
	}
	return b.Vehicle.LicensePlate
}

func ptr[T any](v T) *T { return &v }
