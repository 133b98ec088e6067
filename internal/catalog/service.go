package catalog

import (
	"context"
	"errors"
	"strings"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/angelmondragon/library-backend/internal/inventory"
	"github.com/angelmondragon/library-backend/internal/loans"
	"github.com/angelmondragon/library-backend/pkg/auth"
	"github.com/angelmondragon/library-backend/pkg/db/models"
	"github.com/angelmondragon/library-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/library-backend/pkg/errors"
	"github.com/angelmondragon/library-backend/pkg/logger"
	"github.com/angelmondragon/library-backend/pkg/outbox"
	"github.com/angelmondragon/library-backend/pkg/outbox/payloads"
)

type txRunner interface {
	WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error
}

type outboxPublisher interface {
	Emit(ctx context.Context, tx *gorm.DB, event outbox.DomainEvent) error
}

// Service manages the book catalog. Copy counts change only through the
// inventory repository, under the same book lock the lending path takes.
type Service interface {
	Create(ctx context.Context, actor auth.Principal, input CreateBookInput) (*BookDTO, error)
	Update(ctx context.Context, actor auth.Principal, bookID uuid.UUID, input UpdateBookInput) (*BookDTO, error)
	Delete(ctx context.Context, actor auth.Principal, bookID uuid.UUID) error
	Get(ctx context.Context, bookID uuid.UUID) (*BookDTO, error)
	List(ctx context.Context) ([]BookDTO, error)
}

type service struct {
	tx        txRunner
	inventory inventory.Repository
	loans     loans.Repository
	outbox    outboxPublisher
	logg      *logger.Logger
}

// NewService builds the catalog service.
func NewService(tx txRunner, inventoryRepo inventory.Repository, loanRepo loans.Repository, publisher outboxPublisher, logg *logger.Logger) (Service, error) {
	if tx == nil {
		return nil, errors.New("tx runner required")
	}
	if inventoryRepo == nil {
		return nil, errors.New("inventory repository required")
	}
	if loanRepo == nil {
		return nil, errors.New("loan repository required")
	}
	if publisher == nil {
		return nil, errors.New("outbox publisher required")
	}
	if logg == nil {
		return nil, errors.New("logger required")
	}
	return &service{tx: tx, inventory: inventoryRepo, loans: loanRepo, outbox: publisher, logg: logg}, nil
}

func (s *service) Create(ctx context.Context, actor auth.Principal, input CreateBookInput) (*BookDTO, error) {
	if err := requireManager(actor); err != nil {
		return nil, err
	}
	title := strings.TrimSpace(input.Title)
	author := strings.TrimSpace(input.Author)
	if title == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "title is required")
	}
	if author == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "author is required")
	}

	book := &models.Book{
		Title:           title,
		Author:          author,
		Publisher:       strings.TrimSpace(input.Publisher),
		TotalCopies:     input.TotalCopies,
		AvailableCopies: input.TotalCopies,
	}
	if err := s.inventory.Create(ctx, book); err != nil {
		return nil, err
	}

	s.logg.Info(s.logg.WithBookID(ctx, book.ID.String()), "book.created")
	return toDTO(book), nil
}

func (s *service) Update(ctx context.Context, actor auth.Principal, bookID uuid.UUID, input UpdateBookInput) (*BookDTO, error) {
	if err := requireManager(actor); err != nil {
		return nil, err
	}
	if bookID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "book id required")
	}
	if input.empty() {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "no changes supplied")
	}
	details, err := normalizeDetails(input)
	if err != nil {
		return nil, err
	}

	ctx = s.logg.WithBookID(ctx, bookID.String())
	var updated *models.Book
	err = s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		repo := s.inventory.WithTx(tx)

		current, err := repo.LockBook(ctx, bookID)
		if err != nil {
			return err
		}
		if err := repo.UpdateDetails(ctx, bookID, details); err != nil {
			return err
		}

		if input.TotalCopies == nil || *input.TotalCopies == current.TotalCopies {
			updated, err = repo.FindByID(ctx, bookID)
			return err
		}

		updated, err = repo.Resize(ctx, bookID, *input.TotalCopies)
		if err != nil {
			return err
		}
		return s.outbox.Emit(ctx, tx, outbox.DomainEvent{
			EventType:     enums.EventBookResized,
			AggregateType: enums.AggregateBook,
			AggregateID:   bookID,
			Actor:         &outbox.ActorRef{UserID: actor.UserID, Role: actor.Role.String()},
			Data: payloads.BookResizedEvent{
				BookID:          bookID,
				PreviousTotal:   current.TotalCopies,
				TotalCopies:     updated.TotalCopies,
				AvailableCopies: updated.AvailableCopies,
			},
		})
	})
	if err != nil {
		return nil, normalize(err, "update book")
	}

	s.logg.Info(ctx, "book.updated")
	return toDTO(updated), nil
}

func (s *service) Delete(ctx context.Context, actor auth.Principal, bookID uuid.UUID) error {
	if err := requireManager(actor); err != nil {
		return err
	}
	if bookID == uuid.Nil {
		return pkgerrors.New(pkgerrors.CodeValidation, "book id required")
	}

	ctx = s.logg.WithBookID(ctx, bookID.String())
	err := s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		repo := s.inventory.WithTx(tx)
		if _, err := repo.LockBook(ctx, bookID); err != nil {
			return err
		}
		active, err := s.loans.WithTx(tx).CountActiveForBook(ctx, bookID)
		if err != nil {
			return err
		}
		if active > 0 {
			return pkgerrors.New(pkgerrors.CodeConflict, "book has active loans").
				WithDetails(map[string]any{"active_loans": active})
		}
		return repo.SoftDelete(ctx, bookID)
	})
	if err != nil {
		return normalize(err, "delete book")
	}

	s.logg.Info(ctx, "book.deleted")
	return nil
}

func (s *service) Get(ctx context.Context, bookID uuid.UUID) (*BookDTO, error) {
	if bookID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "book id required")
	}
	book, err := s.inventory.FindByID(ctx, bookID)
	if err != nil {
		return nil, err
	}
	return toDTO(book), nil
}

func (s *service) List(ctx context.Context) ([]BookDTO, error) {
	books, err := s.inventory.List(ctx)
	if err != nil {
		return nil, err
	}
	out := make([]BookDTO, 0, len(books))
	for i := range books {
		out = append(out, *toDTO(&books[i]))
	}
	return out, nil
}

func requireManager(actor auth.Principal) error {
	if actor.IsZero() {
		return pkgerrors.New(pkgerrors.CodeUnauthorized, "authentication required")
	}
	if !actor.Role.CanManageCatalog() {
		return pkgerrors.New(pkgerrors.CodeForbidden, "catalog changes require an admin")
	}
	return nil
}

func normalizeDetails(input UpdateBookInput) (inventory.Details, error) {
	var details inventory.Details
	trimmed := func(field string, value *string, required bool) (*string, error) {
		if value == nil {
			return nil, nil
		}
		v := strings.TrimSpace(*value)
		if required && v == "" {
			return nil, pkgerrors.New(pkgerrors.CodeValidation, field+" cannot be empty")
		}
		return &v, nil
	}

	var err error
	if details.Title, err = trimmed("title", input.Title, true); err != nil {
		return details, err
	}
	if details.Author, err = trimmed("author", input.Author, true); err != nil {
		return details, err
	}
	if details.Publisher, err = trimmed("publisher", input.Publisher, false); err != nil {
		return details, err
	}
	if input.TotalCopies != nil && *input.TotalCopies < 1 {
		return details, pkgerrors.New(pkgerrors.CodeValidation, "total_copies must be at least 1")
	}
	return details, nil
}

func normalize(err error, message string) error {
	if pkgerrors.As(err) != nil {
		return err
	}
	return pkgerrors.Wrap(pkgerrors.CodeInternal, err, message)
}
