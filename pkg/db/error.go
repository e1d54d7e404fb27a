package db

import (
	"errors"
	"strings"

	"github.com/jackc/pgx/v5/pgconn"
	"gorm.io/gorm"
)

const pgUniqueViolation = "23505"

// Driver-specific texts for dialects that don't surface a typed error.
var duplicateKeyMarkers = []string{
	"duplicate key value violates unique constraint", // postgres via database/sql
	"Error 1062",                                     // mysql
	"UNIQUE constraint failed",                       // sqlite
}

// IsDuplicateKeyErr reports whether err is a unique-constraint violation
// on any supported dialect.
func IsDuplicateKeyErr(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return true
	}

	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == pgUniqueViolation {
		return true
	}

	text := err.Error()
	for _, marker := range duplicateKeyMarkers {
		if strings.Contains(text, marker) {
			return true
		}
	}
	return false
}
