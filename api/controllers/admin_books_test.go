package controllers

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/google/uuid"

	"github.com/angelmondragon/library-backend/internal/catalog"
	pkgAuth "github.com/angelmondragon/library-backend/pkg/auth"
	pkgerrors "github.com/angelmondragon/library-backend/pkg/errors"
)

type stubCatalogService struct {
	created catalog.CreateBookInput
	updated catalog.UpdateBookInput
	deleted uuid.UUID
	err     error
}

func (s *stubCatalogService) Create(ctx context.Context, actor pkgAuth.Principal, input catalog.CreateBookInput) (*catalog.BookDTO, error) {
	s.created = input
	if s.err != nil {
		return nil, s.err
	}
	return &catalog.BookDTO{ID: uuid.New(), Title: input.Title, TotalCopies: input.TotalCopies, AvailableCopies: input.TotalCopies}, nil
}

func (s *stubCatalogService) Update(ctx context.Context, actor pkgAuth.Principal, bookID uuid.UUID, input catalog.UpdateBookInput) (*catalog.BookDTO, error) {
	s.updated = input
	if s.err != nil {
		return nil, s.err
	}
	return &catalog.BookDTO{ID: bookID}, nil
}

func (s *stubCatalogService) Delete(ctx context.Context, actor pkgAuth.Principal, bookID uuid.UUID) error {
	s.deleted = bookID
	return s.err
}

func (s *stubCatalogService) Get(ctx context.Context, bookID uuid.UUID) (*catalog.BookDTO, error) {
	if s.err != nil {
		return nil, s.err
	}
	return &catalog.BookDTO{ID: bookID, Title: "Dune"}, nil
}

func (s *stubCatalogService) List(ctx context.Context) ([]catalog.BookDTO, error) {
	return []catalog.BookDTO{}, s.err
}

func TestAdminCreateBook(t *testing.T) {
	svc := &stubCatalogService{}
	body := `{"title":"  Dune ","author":"Frank Herbert","publisher":"Chilton","total_copies":3}`
	resp := httptest.NewRecorder()

	AdminCreateBook(svc, nil).ServeHTTP(resp, newRequest(http.MethodPost, "/api/admin/v1/books", strings.NewReader(body), adminPrincipal(), nil))
	if resp.Code != http.StatusCreated {
		t.Fatalf("expected 201 got %d; body=%s", resp.Code, resp.Body.String())
	}
	if svc.created.Title != "Dune" || svc.created.TotalCopies != 3 {
		t.Fatalf("unexpected create input %+v", svc.created)
	}
}

func TestAdminCreateBookRejectsZeroCopies(t *testing.T) {
	body := `{"title":"Dune","author":"Frank Herbert","total_copies":0}`
	resp := httptest.NewRecorder()

	AdminCreateBook(&stubCatalogService{}, nil).ServeHTTP(resp, newRequest(http.MethodPost, "/", strings.NewReader(body), adminPrincipal(), nil))
	if resp.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 got %d", resp.Code)
	}
}

func TestAdminUpdateBookPassesOnlyProvidedFields(t *testing.T) {
	svc := &stubCatalogService{}
	bookID := uuid.New()
	resp := httptest.NewRecorder()

	req := newRequest(http.MethodPut, "/", strings.NewReader(`{"total_copies":5}`), adminPrincipal(), map[string]string{"bookId": bookID.String()})
	AdminUpdateBook(svc, nil).ServeHTTP(resp, req)
	if resp.Code != http.StatusOK {
		t.Fatalf("expected 200 got %d", resp.Code)
	}
	if svc.updated.TotalCopies == nil || *svc.updated.TotalCopies != 5 {
		t.Fatalf("expected total copies 5, got %+v", svc.updated.TotalCopies)
	}
	if svc.updated.Title != nil || svc.updated.Author != nil {
		t.Fatalf("expected untouched details, got %+v", svc.updated)
	}
}

func TestAdminDeleteBookConflict(t *testing.T) {
	svc := &stubCatalogService{err: pkgerrors.New(pkgerrors.CodeConflict, "book has active loans")}
	bookID := uuid.New()
	resp := httptest.NewRecorder()

	AdminDeleteBook(svc, nil).ServeHTTP(resp, newRequest(http.MethodDelete, "/", nil, adminPrincipal(), map[string]string{"bookId": bookID.String()}))
	if resp.Code != http.StatusConflict {
		t.Fatalf("expected 409 got %d", resp.Code)
	}
	if svc.deleted != bookID {
		t.Fatalf("expected delete for %s", bookID)
	}
}

func TestGetBookNotFound(t *testing.T) {
	svc := &stubCatalogService{err: pkgerrors.New(pkgerrors.CodeNotFound, "book not found")}
	resp := httptest.NewRecorder()

	GetBook(svc, nil).ServeHTTP(resp, newRequest(http.MethodGet, "/", nil, memberPrincipal(), map[string]string{"bookId": uuid.New().String()}))
	if resp.Code != http.StatusNotFound {
		t.Fatalf("expected 404 got %d", resp.Code)
	}
}
