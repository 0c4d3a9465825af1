package repository

import (
	"errors"

	"github.com/google/uuid"
	"github.com/lib/pq"
)

var ErrDuplicate = errors.New("duplicate row")

type scanner interface {
	Scan(dest ...interface{}) error
}

func isUniqueViolation(err error) bool {
	var pqErr *pq.Error
	return errors.As(err, &pqErr) && pqErr.Code == "23505"
}

func isNoDataFound(err error) bool {
	var pqErr *pq.Error
	return errors.As(err, &pqErr) && pqErr.Code == "P0002"
}

// idArray turns ids into a text[] parameter for `= ANY($n::uuid[])`.
func idArray(ids []uuid.UUID) interface{} {
	out := make([]string, len(ids))
	for i, id := range ids {
		out[i] = id.String()
	}
	return pq.Array(out)
}
