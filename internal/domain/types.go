package domain

import (
	"time"

	"github.com/google/uuid"
)

// Position tags a detected vehicle as standing in the front (outer, B)
// or back (inner, A) rank of the garage as seen by the camera.
type Position string

const (
	PositionFront Position = "front"
	PositionBack  Position = "back"
)

// Vehicle is one detection reported by the vision service. It lives for
// a single detection pass and is never persisted.
type Vehicle struct {
	Type         string     `json:"type"`
	Confidence   float64    `json:"confidence"`
	BoundingBox  [4]float64 `json:"bounding_box"`
	Center       [2]float64 `json:"center"`
	Area         float64    `json:"area"`
	Position     Position   `json:"position"`
	LicensePlate string     `json:"license_plate,omitempty"`
}

// PlateDetection is one OCR result. BoundingBox holds either 4 numbers
// (two corners) or 8 (four corners); it is nil when the OCR service
// returned bare plate strings without geometry.
type PlateDetection struct {
	Text        string    `json:"text"`
	BoundingBox []float64 `json:"bounding_box,omitempty"`
}

// Reservation is the authoritative record of a spot being taken for one
// calendar date. Anonymous reservations carry no user and exist either
// because a vehicle was detected without a readable plate or because a
// tandem neighbour parked someone in.
type Reservation struct {
	ID                 uuid.UUID  `json:"id"`
	SpotNumber         SpotID     `json:"spot_number"`
	UserID             *int64     `json:"user_id"`
	LicensePlate       string     `json:"license_plate,omitempty"`
	ReservationDate    time.Time  `json:"reservation_date"`
	EstimatedDeparture *time.Time `json:"estimated_departure,omitempty"`
	Anonymous          bool       `json:"anonymous"`
	BlockedSpot        bool       `json:"blocked_spot"`
	CreatedAt          time.Time  `json:"created_at"`
}

// User is a registered driver. A user may own several plates.
type User struct {
	ID            int64    `json:"id"`
	Email         string   `json:"email"`
	Name          string   `json:"name"`
	PhoneNumber   string   `json:"phone_number"`
	LicensePlates []string `json:"license_plates"`
}

// ReservationWithUser joins a reservation with the profile of its owner,
// when one exists. Anonymous reservations never carry a user.
type ReservationWithUser struct {
	Reservation
	User *User `json:"user,omitempty"`
}

// Occupant is the derived view of who holds a spot. It is rebuilt on
// every reconciliation pass and is never a source of truth.
type Occupant struct {
	LicensePlate       *string    `json:"license_plate"`
	Name               *string    `json:"name"`
	Email              *string    `json:"email"`
	PhoneNumber        *string    `json:"phone_number"`
	UserID             *int64     `json:"user_id"`
	EstimatedDeparture *time.Time `json:"estimated_departure"`
	Anonymous          bool       `json:"anonymous"`
}

// DetectedVehicle echoes the raw detection fields attached to a spot.
// It is diagnostic output, independent of the occupancy resolution.
type DetectedVehicle struct {
	Confidence   float64    `json:"confidence"`
	BoundingBox  [4]float64 `json:"bounding_box"`
	Type         string     `json:"type"`
	Area         float64    `json:"area"`
	LicensePlate string     `json:"license_plate,omitempty"`
}

// ParkingSpot is the unit the rest of the application consumes. Spots
// are only ever produced whole by the reconciliation engine; fields are
// never patched individually.
type ParkingSpot struct {
	ID              int              `json:"id"`
	SpotNumber      SpotID           `json:"spot_number"`
	IsOccupied      bool             `json:"is_occupied"`
	Anonymous       bool             `json:"anonymous"`
	BlockedSpot     bool             `json:"blocked_spot"`
	OccupiedBy      *Occupant        `json:"occupied_by"`
	Vehicle         *Vehicle         `json:"vehicle,omitempty"`
	DetectedVehicle *DetectedVehicle `json:"detected_vehicle,omitempty"`
}

// DetectedSpot is the assignment algorithm's output: one fixed spot and
// the vehicle placed on it, if any.
type DetectedSpot struct {
	SpotNumber SpotID   `json:"spot_number"`
	Occupied   bool     `json:"occupied"`
	Vehicle    *Vehicle `json:"vehicle,omitempty"`
}

// SpotBoundary is the presentation form of a detected spot: occupancy
// plus the vehicle's bounding box, zeroed when no vehicle was placed.
type SpotBoundary struct {
	SpotNumber  SpotID     `json:"spot_number"`
	Occupied    bool       `json:"occupied"`
	BoundingBox [4]float64 `json:"bounding_box"`
	Vehicle     *Vehicle   `json:"vehicle,omitempty"`
}

// AvailabilityCounts summarises the reconciled grid.
type AvailabilityCounts struct {
	Free     int `json:"free"`
	Occupied int `json:"occupied"`
	Blocked  int `json:"blocked"`
	Total    int `json:"total"`
}
