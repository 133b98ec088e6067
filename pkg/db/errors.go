package db

import (
	"strings"

	pkgerrors "github.com/angelmondragon/library-backend/pkg/errors"
)

// IsUniqueViolation reports whether err is a unique constraint failure. On
// Postgres a non-empty constraintName must match the violated constraint.
// SQLite never names the index, so any sqlite unique failure matches.
func IsUniqueViolation(err error, constraintName string) bool {
	if err == nil {
		return false
	}
	if info, ok := pkgerrors.PG(err); ok {
		if info.Code != pkgerrors.PGUniqueViolation {
			return false
		}
		return constraintName == "" || info.Constraint == constraintName
	}
	msg := err.Error()
	if strings.Contains(msg, "UNIQUE constraint failed") {
		return true
	}
	if constraintName != "" {
		return strings.Contains(msg, constraintName)
	}
	return strings.Contains(msg, "duplicate key value")
}

// IsCheckViolation reports whether err is a CHECK constraint failure.
func IsCheckViolation(err error) bool {
	if err == nil {
		return false
	}
	if info, ok := pkgerrors.PG(err); ok {
		return info.Code == pkgerrors.PGCheckViolation
	}
	msg := err.Error()
	return strings.Contains(msg, "violates check constraint") || strings.Contains(msg, "CHECK constraint failed")
}
