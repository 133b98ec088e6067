package controllers

import (
	"net/http"

	"github.com/angelmondragon/library-backend/api/middleware"
	"github.com/angelmondragon/library-backend/api/responses"
	pkgAuth "github.com/angelmondragon/library-backend/pkg/auth"
	pkgerrors "github.com/angelmondragon/library-backend/pkg/errors"
	"github.com/angelmondragon/library-backend/pkg/logger"
)

// requirePrincipal writes 401 and returns false when the request carries no caller.
func requirePrincipal(w http.ResponseWriter, r *http.Request, logg *logger.Logger) (pkgAuth.Principal, bool) {
	principal := middleware.PrincipalFromContext(r.Context())
	if principal.IsZero() {
		responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeUnauthorized, "user context missing"))
		return pkgAuth.Principal{}, false
	}
	return principal, true
}
