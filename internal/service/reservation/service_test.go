package reservation

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hvaleng/garasje/internal/domain"
	"github.com/hvaleng/garasje/internal/repository"
)

type fakeReservationStore struct {
	bySpot    map[domain.SpotID]*domain.ReservationWithUser
	activeFor map[int64]*domain.Reservation

	created    []domain.Reservation
	deleted    []domain.SpotID
	claimed    []domain.SpotID
	createErr  error
	claimErr   error
	deleteErr  error
}

func newFakeStore() *fakeReservationStore {
	return &fakeReservationStore{
		bySpot:    make(map[domain.SpotID]*domain.ReservationWithUser),
		activeFor: make(map[int64]*domain.Reservation),
	}
}

func (f *fakeReservationStore) FindActiveForUser(_ context.Context, userID int64, _ time.Time) (*domain.Reservation, error) {
	if r, ok := f.activeFor[userID]; ok {
		return r, nil
	}
	return nil, repository.ErrNotFound
}

func (f *fakeReservationStore) FindBySpot(_ context.Context, spot domain.SpotID, _ time.Time) (*domain.ReservationWithUser, error) {
	if r, ok := f.bySpot[spot]; ok {
		return r, nil
	}
	return nil, repository.ErrNotFound
}

func (f *fakeReservationStore) Create(_ context.Context, res domain.Reservation) (*domain.Reservation, error) {
	if f.createErr != nil {
		return nil, f.createErr
	}
	res.ID = uuid.New()
	f.created = append(f.created, res)
	return &res, nil
}

func (f *fakeReservationStore) DeleteBySpotAndUser(_ context.Context, spot domain.SpotID, _ int64, _ time.Time) error {
	if f.deleteErr != nil {
		return f.deleteErr
	}
	f.deleted = append(f.deleted, spot)
	return nil
}

func (f *fakeReservationStore) Claim(_ context.Context, spot domain.SpotID, _ time.Time, res domain.Reservation) (*domain.Reservation, error) {
	if f.claimErr != nil {
		return nil, f.claimErr
	}
	f.claimed = append(f.claimed, spot)
	res.ID = uuid.New()
	res.SpotNumber = spot
	return &res, nil
}

type fakeUserStore struct {
	users map[int64]*domain.User
}

func (f *fakeUserStore) GetByID(_ context.Context, id int64) (*domain.User, error) {
	if u, ok := f.users[id]; ok {
		return u, nil
	}
	return nil, repository.ErrNotFound
}

func newService(store *fakeReservationStore, users *fakeUserStore) *Service {
	return New(store, users, nil, nil, Config{Rows: 5})
}

func testUsers() *fakeUserStore {
	return &fakeUserStore{users: map[int64]*domain.User{
		7: {ID: 7, Name: "Kari", LicensePlates: []string{"AB12345"}},
	}}
}

func TestReserve_Success(t *testing.T) {
	store := newFakeStore()
	svc := newService(store, testUsers())

	res, occupant, err := svc.Reserve(context.Background(), 7, "3B", "AB12345", nil)
	require.NoError(t, err)
	require.NotNil(t, res)

	assert.Equal(t, domain.SpotID("3B"), res.SpotNumber)
	assert.Equal(t, "AB12345", res.LicensePlate)
	require.NotNil(t, res.UserID)
	assert.Equal(t, int64(7), *res.UserID)
	assert.Nil(t, occupant, "empty paired spot yields no neighbour info")
	require.Len(t, store.created, 1)
}

func TestReserve_InvalidSpot(t *testing.T) {
	store := newFakeStore()
	svc := newService(store, testUsers())

	for _, spot := range []domain.SpotID{"", "0A", "6A", "3C", "A3", "33"} {
		_, _, err := svc.Reserve(context.Background(), 7, spot, "AB12345", nil)
		assert.ErrorIs(t, err, ErrInvalidSpot, "spot %q", spot)
	}

	assert.Empty(t, store.created, "no write may happen on validation failure")
}

func TestReserve_PlateNotOwned(t *testing.T) {
	store := newFakeStore()
	svc := newService(store, testUsers())

	_, _, err := svc.Reserve(context.Background(), 7, "1A", "ZZ99999", nil)
	assert.ErrorIs(t, err, ErrPlateNotOwned)
	assert.Empty(t, store.created)
}

func TestReserve_UserNotFound(t *testing.T) {
	store := newFakeStore()
	svc := newService(store, testUsers())

	_, _, err := svc.Reserve(context.Background(), 99, "1A", "AB12345", nil)
	assert.ErrorIs(t, err, ErrUserNotFound)
}

func TestReserve_AlreadyReserved(t *testing.T) {
	store := newFakeStore()
	store.activeFor[7] = &domain.Reservation{SpotNumber: "2A"}
	svc := newService(store, testUsers())

	_, _, err := svc.Reserve(context.Background(), 7, "3B", "AB12345", nil)
	assert.ErrorIs(t, err, ErrAlreadyReserved)
	assert.Empty(t, store.created, "guard must reject before any write")
}

func TestReserve_SpotTaken(t *testing.T) {
	store := newFakeStore()
	store.createErr = repository.ErrSpotTaken
	svc := newService(store, testUsers())

	_, _, err := svc.Reserve(context.Background(), 7, "3B", "AB12345", nil)
	assert.ErrorIs(t, err, ErrSpotTaken)
}

func TestReserve_ReportsPairedOccupant(t *testing.T) {
	store := newFakeStore()
	uid := int64(12)
	store.bySpot["3A"] = &domain.ReservationWithUser{
		Reservation: domain.Reservation{
			SpotNumber:   "3A",
			UserID:       &uid,
			LicensePlate: "CD67890",
		},
		User: &domain.User{ID: 12, Name: "Ola"},
	}
	svc := newService(store, testUsers())

	_, occupant, err := svc.Reserve(context.Background(), 7, "3B", "AB12345", nil)
	require.NoError(t, err)
	require.NotNil(t, occupant, "reserving 3B parks in the 3A occupant")
	require.NotNil(t, occupant.Name)
	assert.Equal(t, "Ola", *occupant.Name)
}

func TestReserve_PairedOccupantAnonymousStaysAnonymous(t *testing.T) {
	store := newFakeStore()
	uid := int64(12)
	store.bySpot["3A"] = &domain.ReservationWithUser{
		Reservation: domain.Reservation{
			SpotNumber:   "3A",
			UserID:       &uid,
			LicensePlate: "CD67890",
			Anonymous:    true,
		},
		User: &domain.User{ID: 12, Name: "Ola", PhoneNumber: "12345678"},
	}
	svc := newService(store, testUsers())

	_, occupant, err := svc.Reserve(context.Background(), 7, "3B", "AB12345", nil)
	require.NoError(t, err)
	require.NotNil(t, occupant)
	assert.True(t, occupant.Anonymous)
	assert.Nil(t, occupant.Name, "anonymous occupant must not expose identity")
	assert.Nil(t, occupant.PhoneNumber)
	assert.Nil(t, occupant.UserID)
	// The plate is not an identity field; it stays visible so the blocked
	// driver knows which car is parking them in.
	require.NotNil(t, occupant.LicensePlate)
	assert.Equal(t, "CD67890", *occupant.LicensePlate)
}

func TestUnreserve_Success(t *testing.T) {
	store := newFakeStore()
	uid := int64(7)
	store.bySpot["2B"] = &domain.ReservationWithUser{
		Reservation: domain.Reservation{SpotNumber: "2B", UserID: &uid},
	}
	svc := newService(store, testUsers())

	err := svc.Unreserve(context.Background(), 7, "2B")
	require.NoError(t, err)
	assert.Equal(t, []domain.SpotID{"2B"}, store.deleted)
}

func TestUnreserve_NotOwner(t *testing.T) {
	store := newFakeStore()
	other := int64(8)
	store.bySpot["2B"] = &domain.ReservationWithUser{
		Reservation: domain.Reservation{SpotNumber: "2B", UserID: &other},
	}
	svc := newService(store, testUsers())

	err := svc.Unreserve(context.Background(), 7, "2B")
	assert.ErrorIs(t, err, ErrNotOwner)
	assert.Empty(t, store.deleted)
}

func TestUnreserve_AnonymousIsNotOwned(t *testing.T) {
	store := newFakeStore()
	store.bySpot["1A"] = &domain.ReservationWithUser{
		Reservation: domain.Reservation{SpotNumber: "1A", Anonymous: true},
	}
	svc := newService(store, testUsers())

	err := svc.Unreserve(context.Background(), 7, "1A")
	assert.ErrorIs(t, err, ErrNotOwner)
}

func TestUnreserve_NoRecord(t *testing.T) {
	store := newFakeStore()
	svc := newService(store, testUsers())

	err := svc.Unreserve(context.Background(), 7, "2B")
	assert.ErrorIs(t, err, ErrReservationNotFound)
}

func TestClaim_Success(t *testing.T) {
	store := newFakeStore()
	store.bySpot["1A"] = &domain.ReservationWithUser{
		Reservation: domain.Reservation{SpotNumber: "1A", Anonymous: true, BlockedSpot: true},
	}
	svc := newService(store, testUsers())

	res, err := svc.Claim(context.Background(), 7, "1A", "AB12345", nil)
	require.NoError(t, err)
	assert.Equal(t, domain.SpotID("1A"), res.SpotNumber)
	assert.Equal(t, []domain.SpotID{"1A"}, store.claimed)
}

func TestClaim_IdentifiedSpotRejected(t *testing.T) {
	store := newFakeStore()
	other := int64(8)
	store.bySpot["1A"] = &domain.ReservationWithUser{
		Reservation: domain.Reservation{SpotNumber: "1A", UserID: &other},
	}
	svc := newService(store, testUsers())

	_, err := svc.Claim(context.Background(), 7, "1A", "AB12345", nil)
	assert.ErrorIs(t, err, ErrNotClaimable)
	assert.Empty(t, store.claimed)
}

func TestClaim_AlreadyReserved(t *testing.T) {
	store := newFakeStore()
	store.activeFor[7] = &domain.Reservation{SpotNumber: "4B"}
	store.bySpot["1A"] = &domain.ReservationWithUser{
		Reservation: domain.Reservation{SpotNumber: "1A", Anonymous: true},
	}
	svc := newService(store, testUsers())

	_, err := svc.Claim(context.Background(), 7, "1A", "AB12345", nil)
	assert.ErrorIs(t, err, ErrAlreadyReserved)
	assert.Empty(t, store.claimed)
}

func TestClaim_PlateNotOwned(t *testing.T) {
	store := newFakeStore()
	svc := newService(store, testUsers())

	_, err := svc.Claim(context.Background(), 7, "1A", "ZZ99999", nil)
	assert.ErrorIs(t, err, ErrPlateNotOwned)
}
