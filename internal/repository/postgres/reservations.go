package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/hvaleng/garasje/internal/domain"
	"github.com/hvaleng/garasje/internal/repository"
)

type ReservationRepo struct {
	pool *pgxpool.Pool
	db   DB
}

func (r *ReservationRepo) With(db DB) *ReservationRepo {
	cp := *r
	cp.db = db
	return &cp
}

func (r *ReservationRepo) handle() DB {
	if r.db != nil {
		return r.db
	}
	return r.pool
}

const reservationColumns = `r.id, r.spot_number, r.user_id, r.license_plate,
       r.reservation_date, r.estimated_departure, r.anonymous, r.blocked_spot, r.created_at`

// ListForDate returns all reservations for one calendar date, joined
// with the owner profile where one exists.
//
// Parameters:
//   - ctx: request-scoped context for cancellation and timeouts.
//   - date: the calendar date to list (time portion ignored).
//
// Returns:
//   - []domain.ReservationWithUser: reservations with joined users, empty when none.
func (r *ReservationRepo) ListForDate(ctx context.Context, date time.Time) ([]domain.ReservationWithUser, error) {
	const op = "postgres.ReservationRepo.ListForDate"

	db := r.handle()

	rows, err := db.Query(ctx,
		`SELECT `+reservationColumns+`,
		        u.id, u.email, u.name, u.phone_number, u.license_plates
		   FROM reservations r
		   LEFT JOIN users u ON u.id = r.user_id
		  WHERE r.reservation_date = $1::date
		  ORDER BY r.spot_number`,
		date,
	)
	if err != nil {
		return nil, wrapDBErr(op, err)
	}

	defer rows.Close()

	var out []domain.ReservationWithUser
	for rows.Next() {
		rw, err := scanReservationWithUser(rows)
		if err != nil {
			return nil, wrapDBErr(op, err)
		}
		out = append(out, rw)
	}
	if err := rows.Err(); err != nil {
		return nil, wrapDBErr(op, err)
	}

	return out, nil
}

// FindActiveForUser returns the user's non-anonymous reservation for the
// given date, if any.
//
// Returns:
//   - *domain.Reservation: the active reservation.
//   - error: repository.ErrNotFound when the user holds none.
func (r *ReservationRepo) FindActiveForUser(ctx context.Context, userID int64, date time.Time) (*domain.Reservation, error) {
	const op = "postgres.ReservationRepo.FindActiveForUser"

	db := r.handle()

	row := db.QueryRow(ctx,
		`SELECT `+reservationColumns+`
		   FROM reservations r
		  WHERE r.user_id = $1
		    AND r.reservation_date = $2::date
		    AND NOT r.anonymous`,
		userID, date,
	)

	res, err := scanReservation(row)
	if err != nil {
		return nil, wrapDBErr(op, err)
	}

	return &res, nil
}

// FindBySpot returns the reservation occupying a spot on the given date,
// joined with its owner profile.
//
// Returns:
//   - *domain.ReservationWithUser: the reservation.
//   - error: repository.ErrNotFound when the spot is free.
func (r *ReservationRepo) FindBySpot(ctx context.Context, spot domain.SpotID, date time.Time) (*domain.ReservationWithUser, error) {
	const op = "postgres.ReservationRepo.FindBySpot"

	db := r.handle()

	rows, err := db.Query(ctx,
		`SELECT `+reservationColumns+`,
		        u.id, u.email, u.name, u.phone_number, u.license_plates
		   FROM reservations r
		   LEFT JOIN users u ON u.id = r.user_id
		  WHERE r.spot_number = $1 AND r.reservation_date = $2::date`,
		string(spot), date,
	)
	if err != nil {
		return nil, wrapDBErr(op, err)
	}

	defer rows.Close()

	if !rows.Next() {
		if err := rows.Err(); err != nil {
			return nil, wrapDBErr(op, err)
		}
		return nil, fmt.Errorf("%s:%w", op, repository.ErrNotFound)
	}

	rw, err := scanReservationWithUser(rows)
	if err != nil {
		return nil, wrapDBErr(op, err)
	}

	return &rw, nil
}

// Create inserts a reservation. The (spot_number, reservation_date)
// unique constraint keeps one reservation per spot per date.
//
// Returns:
//   - *domain.Reservation: the stored reservation.
//   - error: repository.ErrSpotTaken when the spot is already reserved for the date.
func (r *ReservationRepo) Create(ctx context.Context, res domain.Reservation) (*domain.Reservation, error) {
	const op = "postgres.ReservationRepo.Create"

	db := r.handle()

	if res.ID == uuid.Nil {
		res.ID = uuid.New()
	}

	err := db.QueryRow(ctx,
		`INSERT INTO reservations
		        (id, spot_number, user_id, license_plate, reservation_date,
		         estimated_departure, anonymous, blocked_spot)
		 VALUES ($1, $2, $3, $4, $5::date, $6, $7, $8)
		 RETURNING created_at`,
		res.ID, string(res.SpotNumber), res.UserID, res.LicensePlate,
		res.ReservationDate, res.EstimatedDeparture, res.Anonymous, res.BlockedSpot,
	).Scan(&res.CreatedAt)
	if err != nil {
		if isUniqueViolation(err) {
			return nil, fmt.Errorf("%s:%w", op, repository.ErrSpotTaken)
		}
		return nil, wrapDBErr(op, err)
	}

	return &res, nil
}

// DeleteBySpotAndUser removes the user's own reservation at a spot for
// the given date.
//
// Returns:
//   - error: repository.ErrNotFound when no such reservation exists; the
//     caller should trigger a full re-sync rather than retry.
func (r *ReservationRepo) DeleteBySpotAndUser(ctx context.Context, spot domain.SpotID, userID int64, date time.Time) error {
	const op = "postgres.ReservationRepo.DeleteBySpotAndUser"

	db := r.handle()

	ct, err := db.Exec(ctx,
		`DELETE FROM reservations
		  WHERE spot_number = $1 AND user_id = $2 AND reservation_date = $3::date`,
		string(spot), userID, date,
	)
	if err != nil {
		return wrapDBErr(op, err)
	}

	if ct.RowsAffected() == 0 {
		return fmt.Errorf("%s:%w", op, repository.ErrNotFound)
	}

	return nil
}

// Claim atomically replaces the anonymous reservation at a spot with an
// identified one. Deleting and creating happen in one serializable
// transaction, so a concurrent claim of the same spot cannot observe the
// spot briefly free.
//
// Returns:
//   - *domain.Reservation: the new identified reservation.
//   - error: repository.ErrSpotTaken when an identified reservation
//     already holds the spot.
func (r *ReservationRepo) Claim(ctx context.Context, spot domain.SpotID, date time.Time, res domain.Reservation) (*domain.Reservation, error) {
	const op = "postgres.ReservationRepo.Claim"

	if r.db != nil {
		out, err := r.claimCore(ctx, r.db, spot, date, res)
		if err != nil {
			return nil, fmt.Errorf("%s:%w", op, translateDBErr(err))
		}
		return out, nil
	}

	tx, err := r.pool.BeginTx(ctx, pgx.TxOptions{
		IsoLevel:   pgx.Serializable,
		AccessMode: pgx.ReadWrite,
	})
	if err != nil {
		return nil, fmt.Errorf("%s:%w", op, translateDBErr(err))
	}

	defer tx.Rollback(ctx)

	out, err := r.claimCore(ctx, tx, spot, date, res)
	if err != nil {
		return nil, fmt.Errorf("%s:%w", op, translateDBErr(err))
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("%s:%w", op, translateDBErr(err))
	}

	return out, nil
}

func (r *ReservationRepo) claimCore(
	ctx context.Context,
	db DB,
	spot domain.SpotID,
	date time.Time,
	res domain.Reservation,
) (*domain.Reservation, error) {
	if _, err := db.Exec(ctx,
		`DELETE FROM reservations
		  WHERE spot_number = $1 AND reservation_date = $2::date AND anonymous`,
		string(spot), date,
	); err != nil {
		return nil, err
	}

	if res.ID == uuid.Nil {
		res.ID = uuid.New()
	}
	res.SpotNumber = spot
	res.ReservationDate = date
	res.Anonymous = false
	res.BlockedSpot = false

	err := db.QueryRow(ctx,
		`INSERT INTO reservations
		        (id, spot_number, user_id, license_plate, reservation_date,
		         estimated_departure, anonymous, blocked_spot)
		 VALUES ($1, $2, $3, $4, $5::date, $6, false, false)
		 RETURNING created_at`,
		res.ID, string(spot), res.UserID, res.LicensePlate,
		date, res.EstimatedDeparture,
	).Scan(&res.CreatedAt)
	if err != nil {
		if isUniqueViolation(err) {
			return nil, repository.ErrSpotTaken
		}
		return nil, err
	}

	return &res, nil
}

func isUniqueViolation(err error) bool {
	var pge *pgconn.PgError
	return errors.As(err, &pge) && pge.Code == "23505"
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanReservation(row rowScanner) (domain.Reservation, error) {
	var res domain.Reservation
	var spot string
	err := row.Scan(
		&res.ID, &spot, &res.UserID, &res.LicensePlate,
		&res.ReservationDate, &res.EstimatedDeparture,
		&res.Anonymous, &res.BlockedSpot, &res.CreatedAt,
	)
	res.SpotNumber = domain.SpotID(spot)
	return res, err
}

func scanReservationWithUser(row rowScanner) (domain.ReservationWithUser, error) {
	var rw domain.ReservationWithUser
	var spot string
	var uID *int64
	var uEmail, uName, uPhone *string
	var uPlates []string

	err := row.Scan(
		&rw.ID, &spot, &rw.UserID, &rw.LicensePlate,
		&rw.ReservationDate, &rw.EstimatedDeparture,
		&rw.Anonymous, &rw.BlockedSpot, &rw.CreatedAt,
		&uID, &uEmail, &uName, &uPhone, &uPlates,
	)
	if err != nil {
		return rw, err
	}

	rw.SpotNumber = domain.SpotID(spot)
	if uID != nil {
		rw.User = &domain.User{
			ID:            *uID,
			Email:         deref(uEmail),
			Name:          deref(uName),
			PhoneNumber:   deref(uPhone),
			LicensePlates: uPlates,
		}
	}

	return rw, nil
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}
