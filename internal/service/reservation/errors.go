package reservation

import "errors"

var (
	// Validation failures, caught before any write.
	ErrInvalidSpot   = errors.New("invalid spot number")
	ErrPlateNotOwned = errors.New("license plate does not belong to user")
	ErrUserNotFound  = errors.New("user not found")

	// Guard violations.
	ErrAlreadyReserved = errors.New("user already holds a reservation today")
	ErrSpotTaken       = errors.New("spot is already reserved")
	ErrNotClaimable    = errors.New("spot is not anonymously occupied")

	// Authorization, distinct from generic backend failure.
	ErrNotOwner = errors.New("reservation belongs to another user")

	// The client believed the spot was reserved but the backend holds no
	// record; the caller must re-sync, not retry.
	ErrReservationNotFound = errors.New("reservation not found")
)
