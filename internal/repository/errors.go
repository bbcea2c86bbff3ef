package repository

import "errors"

var (
	ErrNotFound  = errors.New("not found")
	ErrConflict  = errors.New("conflict")
	ErrSpotTaken = errors.New("spot already reserved for this date")
)
