package validators

import (
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	pkgerrors "github.com/angelmondragon/library-backend/pkg/errors"
)

// QueryParam converts a query parameter with parse. A missing parameter
// reaches parse as "" so parse owns the default.
func QueryParam[T any](r *http.Request, key string, parse func(string) (T, error)) (T, error) {
	value, err := parse(strings.TrimSpace(r.URL.Query().Get(key)))
	if err != nil {
		var zero T
		return zero, fieldError(key, "invalid query parameter", err)
	}
	return value, nil
}

// ParsePathUUID reads a chi URL parameter and parses it as a uuid.
func ParsePathUUID(r *http.Request, key string) (uuid.UUID, error) {
	raw := strings.TrimSpace(chi.URLParam(r, key))
	if raw == "" {
		return uuid.Nil, fieldError(key, "path parameter required", nil)
	}
	id, err := uuid.Parse(raw)
	if err != nil || id == uuid.Nil {
		return uuid.Nil, fieldError(key, "path parameter must be a valid uuid", err)
	}
	return id, nil
}

func fieldError(field, message string, cause error) *pkgerrors.Error {
	details := map[string]any{"field": field}
	if cause == nil {
		return pkgerrors.New(pkgerrors.CodeValidation, message).WithDetails(details)
	}
	details["error"] = cause.Error()
	return pkgerrors.Wrap(pkgerrors.CodeValidation, cause, message).WithDetails(details)
}
