package controllers

import (
	"net/http"

	"github.com/angelmondragon/library-backend/api/responses"
	"github.com/angelmondragon/library-backend/api/validators"
	"github.com/angelmondragon/library-backend/internal/catalog"
	pkgerrors "github.com/angelmondragon/library-backend/pkg/errors"
	"github.com/angelmondragon/library-backend/pkg/logger"
)

type createBookRequest struct {
	Title       string `json:"title" validate:"required,max=255"`
	Author      string `json:"author" validate:"required,max=255"`
	Publisher   string `json:"publisher" validate:"max=255"`
	TotalCopies int    `json:"total_copies" validate:"gte=1"`
}

func (req createBookRequest) toInput() catalog.CreateBookInput {
	return catalog.CreateBookInput{
		Title:       validators.SanitizeString(req.Title, 255),
		Author:      validators.SanitizeString(req.Author, 255),
		Publisher:   validators.SanitizeString(req.Publisher, 255),
		TotalCopies: req.TotalCopies,
	}
}

type updateBookRequest struct {
	Title       *string `json:"title" validate:"omitempty,max=255"`
	Author      *string `json:"author" validate:"omitempty,max=255"`
	Publisher   *string `json:"publisher" validate:"omitempty,max=255"`
	TotalCopies *int    `json:"total_copies" validate:"omitempty,gte=1"`
}

func (req updateBookRequest) toInput() catalog.UpdateBookInput {
	return catalog.UpdateBookInput{
		Title:       req.Title,
		Author:      req.Author,
		Publisher:   req.Publisher,
		TotalCopies: req.TotalCopies,
	}
}

// AdminListBooks returns every live book, borrowed out or not.
func AdminListBooks(svc catalog.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "catalog service unavailable"))
			return
		}
		books, err := svc.List(r.Context())
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, "", books)
	}
}

func AdminCreateBook(svc catalog.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "catalog service unavailable"))
			return
		}
		principal, ok := requirePrincipal(w, r, logg)
		if !ok {
			return
		}

		var body createBookRequest
		if err := validators.DecodeJSONBody(r, &body); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		book, err := svc.Create(r.Context(), principal, body.toInput())
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccessStatus(w, http.StatusCreated, "book created", book)
	}
}

// AdminUpdateBook edits details and, when total_copies is present, resizes the book.
func AdminUpdateBook(svc catalog.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "catalog service unavailable"))
			return
		}
		principal, ok := requirePrincipal(w, r, logg)
		if !ok {
			return
		}

		bookID, err := validators.ParsePathUUID(r, "bookId")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		var body updateBookRequest
		if err := validators.DecodeJSONBody(r, &body); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		ctx := r.Context()
		if logg != nil {
			ctx = logg.WithBookID(ctx, bookID.String())
		}
		book, err := svc.Update(ctx, principal, bookID, body.toInput())
		if err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}
		responses.WriteSuccess(w, "book updated", book)
	}
}

func AdminDeleteBook(svc catalog.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "catalog service unavailable"))
			return
		}
		principal, ok := requirePrincipal(w, r, logg)
		if !ok {
			return
		}

		bookID, err := validators.ParsePathUUID(r, "bookId")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		ctx := r.Context()
		if logg != nil {
			ctx = logg.WithBookID(ctx, bookID.String())
		}
		if err := svc.Delete(ctx, principal, bookID); err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}
		responses.WriteSuccess(w, "book deleted", nil)
	}
}
