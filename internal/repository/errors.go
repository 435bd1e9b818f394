package repository

import (
	"errors"

	"github.com/jackc/pgx/v5/pgconn"
)

var ErrDuplicateKey = errors.New("duplicate key")

const uniqueViolation = "23505"

func translateWriteError(err error) error {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == uniqueViolation {
		return ErrDuplicateKey
	}
	return err
}

type scanner interface {
	Scan(dest ...any) error
}
