package postgres

import (
	"context"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/hvaleng/garasje/internal/domain"
)

type UserRepo struct {
	pool *pgxpool.Pool
	db   DB
}

func (r *UserRepo) With(db DB) *UserRepo {
	cp := *r
	cp.db = db
	return &cp
}

func (r *UserRepo) handle() DB {
	if r.db != nil {
		return r.db
	}
	return r.pool
}

// GetByID retrieves a user by id.
//
// Returns:
//   - *domain.User: the user when found.
//   - error: repository.ErrNotFound if the user does not exist.
func (r *UserRepo) GetByID(ctx context.Context, id int64) (*domain.User, error) {
	const op = "postgres.UserRepo.GetByID"

	db := r.handle()

	var u domain.User
	err := db.QueryRow(ctx,
		`SELECT id, email, name, phone_number, license_plates
		   FROM users WHERE id = $1`,
		id,
	).Scan(&u.ID, &u.Email, &u.Name, &u.PhoneNumber, &u.LicensePlates)
	if err != nil {
		return nil, wrapDBErr(op, err)
	}

	return &u, nil
}

// FindByPlate resolves a detected license plate to its registered owner.
//
// Returns:
//   - *domain.User: the owner when the plate is registered.
//   - error: repository.ErrNotFound for unregistered plates.
func (r *UserRepo) FindByPlate(ctx context.Context, plate string) (*domain.User, error) {
	const op = "postgres.UserRepo.FindByPlate"

	db := r.handle()

	var u domain.User
	err := db.QueryRow(ctx,
		`SELECT id, email, name, phone_number, license_plates
		   FROM users WHERE $1 = ANY(license_plates)`,
		plate,
	).Scan(&u.ID, &u.Email, &u.Name, &u.PhoneNumber, &u.LicensePlates)
	if err != nil {
		return nil, wrapDBErr(op, err)
	}

	return &u, nil
}
