package store

import (
	"errors"

	"github.com/jackc/pgx/v5/pgconn"
)

var ErrNotFound = errors.New("not found")

// tableMissing reports whether err is Postgres undefined_table. Event stream
// reads treat a missing table as an empty stream so a partially provisioned
// database degrades reads instead of failing them.
func tableMissing(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == "42P01"
}
