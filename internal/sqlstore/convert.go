package sqlstore

import (
	"database/sql"
	"errors"
	"time"

	"github.com/mattn/go-sqlite3"

	"github.com/starford/stash/internal/apperr"
)

// Fixed-width UTC layout keeps lexical and chronological order identical.
const timeLayout = "2006-01-02T15:04:05.000000000Z"

func formatTime(t time.Time) string {
	return t.UTC().Format(timeLayout)
}

func parseTime(s string) (time.Time, error) {
	return time.Parse(timeLayout, s)
}

func nullable(s sql.NullString) *string {
	if !s.Valid {
		return nil
	}
	v := s.String
	return &v
}

func boolInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

// constraintErr translates SQLite constraint violations into taxonomy errors.
// ref names the entity a foreign key points at; dup describes a unique clash.
func constraintErr(err error, ref, dup string) error {
	var se sqlite3.Error
	if !errors.As(err, &se) {
		return err
	}
	switch se.ExtendedCode {
	case sqlite3.ErrConstraintForeignKey:
		return apperr.NotFound(ref)
	case sqlite3.ErrConstraintUnique:
		return apperr.Conflict("%s", dup)
	case sqlite3.ErrConstraintCheck:
		return apperr.InvalidOperation("%s", se.Error())
	}
	return err
}
