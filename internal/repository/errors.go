package repository

import (
	"database/sql"
	"errors"

	"github.com/lib/pq"
)

// pgInvalidTextRepresentation is raised when a key is not a valid UUID literal.
const pgInvalidTextRepresentation = "22P02"

// notFoundOnMalformedID reports a lookup by a malformed UUID key as a missing row.
func notFoundOnMalformedID(err error) error {
	var pqErr *pq.Error
	if errors.As(err, &pqErr) && pqErr.Code == pgInvalidTextRepresentation {
		return sql.ErrNoRows
	}
	return err
}
