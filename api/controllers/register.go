package controllers

import (
	"net/http"

	"github.com/angelmondragon/library-backend/api/responses"
	"github.com/angelmondragon/library-backend/api/validators"
	"github.com/angelmondragon/library-backend/internal/auth"
	"github.com/angelmondragon/library-backend/internal/users"
	pkgerrors "github.com/angelmondragon/library-backend/pkg/errors"
	"github.com/angelmondragon/library-backend/pkg/logger"
)

type registerFunc func(r *http.Request, req auth.RegisterRequest) (*users.UserDTO, error)

// AuthRegister creates a member account and signs it in.
func AuthRegister(reg auth.RegisterService, svc auth.Service, logg *logger.Logger) http.HandlerFunc {
	if reg == nil {
		return registerHandler(nil, svc, logg)
	}
	return registerHandler(func(r *http.Request, req auth.RegisterRequest) (*users.UserDTO, error) {
		return reg.Register(r.Context(), req)
	}, svc, logg)
}

// AdminAuthRegister creates an admin account. Only routed outside prod.
func AdminAuthRegister(reg auth.RegisterService, svc auth.Service, logg *logger.Logger) http.HandlerFunc {
	if reg == nil {
		return registerHandler(nil, svc, logg)
	}
	return registerHandler(func(r *http.Request, req auth.RegisterRequest) (*users.UserDTO, error) {
		return reg.RegisterAdmin(r.Context(), req)
	}, svc, logg)
}

func registerHandler(create registerFunc, svc auth.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if create == nil || svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "auth service unavailable"))
			return
		}

		var body auth.RegisterRequest
		if err := validators.DecodeJSONBody(r, &body); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		if _, err := create(r, body); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		result, err := svc.Login(r.Context(), auth.LoginRequest{Email: body.Email, Password: body.Password})
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		w.Header().Set(accessTokenHeader, result.AccessToken)
		responses.WriteSuccessStatus(w, http.StatusCreated, "registration successful", result)
	}
}
