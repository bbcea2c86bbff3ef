package detection

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hvaleng/garasje/internal/domain"
	"github.com/hvaleng/garasje/internal/repository"
)

type fakeDetector struct {
	vehicles []domain.Vehicle
	image    string
	err      error
}

func (f *fakeDetector) DetectVehicles(context.Context, []byte, string) ([]domain.Vehicle, string, error) {
	return f.vehicles, f.image, f.err
}

type fakeOCR struct {
	plates []domain.PlateDetection
	err    error
}

func (f *fakeOCR) ReadPlates(context.Context, []byte, string) ([]domain.PlateDetection, error) {
	return f.plates, f.err
}

type fakeStore struct {
	mu sync.Mutex

	reservations []domain.ReservationWithUser
	created      []domain.Reservation
}

func (f *fakeStore) ListForDate(context.Context, time.Time) ([]domain.ReservationWithUser, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]domain.ReservationWithUser, len(f.reservations))
	copy(out, f.reservations)
	return out, nil
}

func (f *fakeStore) FindActiveForUser(_ context.Context, userID int64, _ time.Time) (*domain.Reservation, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, rw := range f.reservations {
		if rw.UserID != nil && *rw.UserID == userID && !rw.Anonymous {
			r := rw.Reservation
			return &r, nil
		}
	}
	return nil, repository.ErrNotFound
}

func (f *fakeStore) FindBySpot(_ context.Context, spot domain.SpotID, _ time.Time) (*domain.ReservationWithUser, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, rw := range f.reservations {
		if rw.SpotNumber == spot {
			cp := rw
			return &cp, nil
		}
	}
	return nil, repository.ErrNotFound
}

func (f *fakeStore) Create(_ context.Context, res domain.Reservation) (*domain.Reservation, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	res.ID = uuid.New()
	f.created = append(f.created, res)
	f.reservations = append(f.reservations, domain.ReservationWithUser{Reservation: res})
	return &res, nil
}

type fakeUsers struct {
	byPlate map[string]*domain.User
	calls   int
}

func (f *fakeUsers) FindByPlate(_ context.Context, plate string) (*domain.User, error) {
	f.calls++
	if u, ok := f.byPlate[plate]; ok {
		return u, nil
	}
	return nil, repository.ErrNotFound
}

func discard() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func vehicleAt(x float64, pos domain.Position, plate string) domain.Vehicle {
	return domain.Vehicle{
		Type:         "car",
		Confidence:   0.9,
		BoundingBox:  [4]float64{x - 10, 0, x + 10, 20},
		Center:       [2]float64{x, 10},
		Position:     pos,
		LicensePlate: plate,
	}
}

func TestProcessImage_EmptyImage(t *testing.T) {
	svc := New(&fakeDetector{}, &fakeOCR{}, &fakeStore{}, &fakeUsers{}, nil, nil, discard(), Config{})

	_, err := svc.ProcessImage(context.Background(), nil, "frame.jpg")
	assert.ErrorIs(t, err, ErrEmptyImage)
}

func TestProcessImage_DetectorFailure(t *testing.T) {
	det := &fakeDetector{err: errors.New("boom")}
	svc := New(det, &fakeOCR{}, &fakeStore{}, &fakeUsers{}, nil, nil, discard(), Config{})

	_, err := svc.ProcessImage(context.Background(), []byte{1}, "frame.jpg")
	assert.ErrorIs(t, err, ErrDetectorFailure)
}

func TestProcessImage_OCRFailureDegradesToNoPlates(t *testing.T) {
	det := &fakeDetector{vehicles: []domain.Vehicle{vehicleAt(100, domain.PositionFront, "")}}
	store := &fakeStore{}
	svc := New(det, &fakeOCR{err: errors.New("ocr down")}, store, &fakeUsers{}, nil, nil, discard(), Config{Rows: 5})

	res, err := svc.ProcessImage(context.Background(), []byte{1}, "frame.jpg")
	require.NoError(t, err)
	require.Len(t, res.Spots, 10)

	b := res.Boundaries[1] // 1B
	assert.Equal(t, domain.SpotID("1B"), b.SpotNumber)
	assert.True(t, b.Occupied)
	require.NotNil(t, b.Vehicle)
	assert.Empty(t, b.Vehicle.LicensePlate)
}

func TestProcessImage_CreatesReservationForKnownPlate(t *testing.T) {
	det := &fakeDetector{
		vehicles: []domain.Vehicle{vehicleAt(100, domain.PositionFront, "AB12345")},
		image:    "base64data",
	}
	store := &fakeStore{}
	users := &fakeUsers{byPlate: map[string]*domain.User{
		"AB12345": {ID: 7, Name: "Kari", LicensePlates: []string{"AB12345"}},
	}}
	svc := New(det, &fakeOCR{}, store, users, nil, nil, discard(), Config{Rows: 5})

	res, err := svc.ProcessImage(context.Background(), []byte{1}, "frame.jpg")
	require.NoError(t, err)
	assert.Equal(t, "base64data", res.ProcessedImage)

	require.Len(t, store.created, 1)
	created := store.created[0]
	assert.Equal(t, domain.SpotID("1B"), created.SpotNumber)
	assert.Equal(t, "AB12345", created.LicensePlate)
	require.NotNil(t, created.UserID)
	assert.Equal(t, int64(7), *created.UserID)
	assert.False(t, created.Anonymous)
}

func TestProcessImage_UnknownPlateCreatesNothing(t *testing.T) {
	det := &fakeDetector{vehicles: []domain.Vehicle{vehicleAt(100, domain.PositionFront, "ZZ99999")}}
	store := &fakeStore{}
	svc := New(det, &fakeOCR{}, store, &fakeUsers{}, nil, nil, discard(), Config{Rows: 5})

	_, err := svc.ProcessImage(context.Background(), []byte{1}, "frame.jpg")
	require.NoError(t, err)
	assert.Empty(t, store.created)
}

func TestProcessImage_BlockedPlatelessVehicleGetsAnonymousRecord(t *testing.T) {
	// Back-row vehicle without a plate, parked in by a front-row one.
	det := &fakeDetector{vehicles: []domain.Vehicle{
		vehicleAt(100, domain.PositionBack, ""),
		vehicleAt(100, domain.PositionFront, "AB12345"),
	}}
	store := &fakeStore{}
	users := &fakeUsers{byPlate: map[string]*domain.User{
		"AB12345": {ID: 7, LicensePlates: []string{"AB12345"}},
	}}
	svc := New(det, &fakeOCR{}, store, users, nil, nil, discard(), Config{Rows: 5})

	_, err := svc.ProcessImage(context.Background(), []byte{1}, "frame.jpg")
	require.NoError(t, err)

	require.Len(t, store.created, 2)

	var anon *domain.Reservation
	for i := range store.created {
		if store.created[i].Anonymous {
			anon = &store.created[i]
		}
	}
	require.NotNil(t, anon, "the blocked vehicle at 1A needs an anonymous record")
	assert.Equal(t, domain.SpotID("1A"), anon.SpotNumber)
	assert.True(t, anon.BlockedSpot)
	assert.Nil(t, anon.UserID)
}

func TestProcessImage_UnblockedPlatelessVehicleGetsNothing(t *testing.T) {
	det := &fakeDetector{vehicles: []domain.Vehicle{vehicleAt(100, domain.PositionBack, "")}}
	store := &fakeStore{}
	svc := New(det, &fakeOCR{}, store, &fakeUsers{}, nil, nil, discard(), Config{Rows: 5})

	_, err := svc.ProcessImage(context.Background(), []byte{1}, "frame.jpg")
	require.NoError(t, err)
	assert.Empty(t, store.created, "a reachable anonymous vehicle is not recorded")
}

func TestProcessImage_ExistingReservationNotDuplicated(t *testing.T) {
	uid := int64(7)
	store := &fakeStore{reservations: []domain.ReservationWithUser{{
		Reservation: domain.Reservation{
			ID:           uuid.New(),
			SpotNumber:   "1B",
			UserID:       &uid,
			LicensePlate: "AB12345",
		},
	}}}
	det := &fakeDetector{vehicles: []domain.Vehicle{vehicleAt(100, domain.PositionFront, "AB12345")}}
	users := &fakeUsers{byPlate: map[string]*domain.User{
		"AB12345": {ID: 7, LicensePlates: []string{"AB12345"}},
	}}
	svc := New(det, &fakeOCR{}, store, users, nil, nil, discard(), Config{Rows: 5})

	_, err := svc.ProcessImage(context.Background(), []byte{1}, "frame.jpg")
	require.NoError(t, err)
	assert.Empty(t, store.created)
}

func TestProcessImage_PlateLookupMemoized(t *testing.T) {
	det := &fakeDetector{vehicles: []domain.Vehicle{vehicleAt(100, domain.PositionFront, "ZZ99999")}}
	users := &fakeUsers{}
	svc := New(det, &fakeOCR{}, &fakeStore{}, users, nil, nil, discard(), Config{Rows: 5})

	_, err := svc.ProcessImage(context.Background(), []byte{1}, "frame.jpg")
	require.NoError(t, err)
	_, err = svc.ProcessImage(context.Background(), []byte{1}, "frame.jpg")
	require.NoError(t, err)

	assert.Equal(t, 1, users.calls, "negative plate lookups are cached")
}

func TestProcessImage_LoopClosesOnReservationRecords(t *testing.T) {
	// Two plate-less vehicles in row 1. Only the blocked one at 1A gets a
	// compensating record; the pass ends with a rebuild from reservations,
	// so 1A survives in the grid while the unrecorded 1B does not. The
	// boundaries still carry the raw detection for both.
	det := &fakeDetector{vehicles: []domain.Vehicle{
		vehicleAt(100, domain.PositionBack, ""),
		vehicleAt(100, domain.PositionFront, ""),
	}}
	store := &fakeStore{}
	svc := New(det, &fakeOCR{}, store, &fakeUsers{}, nil, nil, discard(), Config{Rows: 5})

	res, err := svc.ProcessImage(context.Background(), []byte{1}, "frame.jpg")
	require.NoError(t, err)

	bySpot := make(map[domain.SpotID]domain.ParkingSpot, len(res.Spots))
	for _, s := range res.Spots {
		bySpot[s.SpotNumber] = s
	}

	oneA := bySpot["1A"]
	assert.True(t, oneA.IsOccupied)
	assert.True(t, oneA.BlockedSpot)
	assert.True(t, oneA.Anonymous)

	oneB := bySpot["1B"]
	assert.False(t, oneB.IsOccupied)

	assert.True(t, res.Boundaries[0].Occupied)
	assert.True(t, res.Boundaries[1].Occupied)
}
