package inventory

import (
	"context"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/angelmondragon/library-backend/internal/repo"
	"github.com/angelmondragon/library-backend/pkg/db/models"
	pkgerrors "github.com/angelmondragon/library-backend/pkg/errors"
)

// Details carries the descriptive fields of a book that may change freely.
type Details struct {
	Title     *string
	Author    *string
	Publisher *string
}

// Repository owns book rows and is the only writer of copy counts.
type Repository interface {
	WithTx(tx *gorm.DB) Repository
	Create(ctx context.Context, book *models.Book) error
	FindByID(ctx context.Context, bookID uuid.UUID) (*models.Book, error)
	LockBook(ctx context.Context, bookID uuid.UUID) (*models.Book, error)
	List(ctx context.Context) ([]models.Book, error)
	GetAvailable(ctx context.Context, bookID uuid.UUID) (int, error)
	AdjustAvailable(ctx context.Context, bookID uuid.UUID, delta int) (int, error)
	Resize(ctx context.Context, bookID uuid.UUID, newTotal int) (*models.Book, error)
	UpdateDetails(ctx context.Context, bookID uuid.UUID, details Details) error
	SoftDelete(ctx context.Context, bookID uuid.UUID) error
}

type repository struct {
	repo.Base
	now func() time.Time
}

// NewRepository returns an inventory repository bound to the provided database.
func NewRepository(db *gorm.DB) Repository {
	return &repository{Base: repo.NewBase(db), now: time.Now}
}

func (r *repository) WithTx(tx *gorm.DB) Repository {
	if tx == nil {
		return r
	}
	return &repository{Base: repo.NewBase(tx), now: r.now}
}

func (r *repository) Create(ctx context.Context, book *models.Book) error {
	if book == nil {
		return pkgerrors.New(pkgerrors.CodeValidation, "book is required")
	}
	if book.TotalCopies < 1 {
		return pkgerrors.New(pkgerrors.CodeValidation, "total_copies must be at least 1")
	}
	if book.AvailableCopies < 0 || book.AvailableCopies > book.TotalCopies {
		return pkgerrors.New(pkgerrors.CodeValidation, "available_copies must be between 0 and total_copies")
	}
	if err := r.DB(ctx).Create(book).Error; err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "create book")
	}
	return nil
}

func (r *repository) FindByID(ctx context.Context, bookID uuid.UUID) (*models.Book, error) {
	return r.find(r.DB(ctx), bookID)
}

// LockBook loads the book row with SELECT ... FOR UPDATE. The lock lives until
// the surrounding transaction ends; sqlite ignores the clause and relies on its
// single writer instead.
func (r *repository) LockBook(ctx context.Context, bookID uuid.UUID) (*models.Book, error) {
	return r.find(r.DB(ctx).Clauses(clause.Locking{Strength: "UPDATE"}), bookID)
}

func (r *repository) find(db *gorm.DB, bookID uuid.UUID) (*models.Book, error) {
	book, err := repo.First[models.Book](db.Where("id = ?", bookID))
	switch {
	case err != nil:
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "load book")
	case book == nil:
		return nil, pkgerrors.New(pkgerrors.CodeNotFound, "book not found")
	}
	return book, nil
}

func (r *repository) List(ctx context.Context) ([]models.Book, error) {
	var books []models.Book
	if err := r.DB(ctx).Order("title ASC").Order("id ASC").Find(&books).Error; err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "list books")
	}
	return books, nil
}

func (r *repository) GetAvailable(ctx context.Context, bookID uuid.UUID) (int, error) {
	book, err := r.FindByID(ctx, bookID)
	if err != nil {
		return 0, err
	}
	return book.AvailableCopies, nil
}

// AdjustAvailable applies delta to the available count in one conditional
// UPDATE. Decrements never take the count below zero; increments are clamped
// to total_copies.
func (r *repository) AdjustAvailable(ctx context.Context, bookID uuid.UUID, delta int) (int, error) {
	if delta == 0 {
		return r.GetAvailable(ctx, bookID)
	}

	query := r.DB(ctx).Model(&models.Book{}).Where("id = ?", bookID)
	var expr clause.Expr
	if delta < 0 {
		query = query.Where("available_copies + ? >= 0", delta)
		expr = gorm.Expr("available_copies + ?", delta)
	} else {
		expr = gorm.Expr(
			"CASE WHEN available_copies + ? > total_copies THEN total_copies ELSE available_copies + ? END",
			delta, delta,
		)
	}

	res := query.Updates(map[string]any{
		"available_copies": expr,
		"updated_at":       r.now().UTC(),
	})
	if res.Error != nil {
		return 0, pkgerrors.Wrap(pkgerrors.CodeInternal, res.Error, "adjust available copies")
	}
	if res.RowsAffected == 0 {
		if _, err := r.FindByID(ctx, bookID); err != nil {
			return 0, err
		}
		return 0, pkgerrors.New(pkgerrors.CodeStateConflict, "available copies cannot go below zero").
			WithDetails(map[string]any{"book_id": bookID.String(), "delta": delta})
	}
	return r.GetAvailable(ctx, bookID)
}

// Resize sets total_copies and shifts available_copies by the same difference,
// clamped to [0, newTotal]. Every right-hand side reads the pre-update row.
func (r *repository) Resize(ctx context.Context, bookID uuid.UUID, newTotal int) (*models.Book, error) {
	if newTotal < 1 {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "total_copies must be at least 1").
			WithDetails(map[string]any{"total_copies": newTotal})
	}

	res := r.DB(ctx).Model(&models.Book{}).Where("id = ?", bookID).Updates(map[string]any{
		"available_copies": gorm.Expr(
			"CASE WHEN available_copies + ? - total_copies < 0 THEN 0 "+
				"WHEN available_copies + ? - total_copies > ? THEN ? "+
				"ELSE available_copies + ? - total_copies END",
			newTotal, newTotal, newTotal, newTotal, newTotal,
		),
		"total_copies": newTotal,
		"updated_at":   r.now().UTC(),
	})
	if res.Error != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, res.Error, "resize book")
	}
	if res.RowsAffected == 0 {
		return nil, pkgerrors.New(pkgerrors.CodeNotFound, "book not found")
	}
	return r.FindByID(ctx, bookID)
}

func (r *repository) UpdateDetails(ctx context.Context, bookID uuid.UUID, details Details) error {
	updates := map[string]any{}
	if details.Title != nil {
		updates["title"] = *details.Title
	}
	if details.Author != nil {
		updates["author"] = *details.Author
	}
	if details.Publisher != nil {
		updates["publisher"] = *details.Publisher
	}
	if len(updates) == 0 {
		_, err := r.FindByID(ctx, bookID)
		return err
	}
	updates["updated_at"] = r.now().UTC()

	res := r.DB(ctx).Model(&models.Book{}).Where("id = ?", bookID).Updates(updates)
	if res.Error != nil {
		return pkgerrors.Wrap(pkgerrors.CodeInternal, res.Error, "update book")
	}
	if res.RowsAffected == 0 {
		return pkgerrors.New(pkgerrors.CodeNotFound, "book not found")
	}
	return nil
}

func (r *repository) SoftDelete(ctx context.Context, bookID uuid.UUID) error {
	res := r.DB(ctx).Where("id = ?", bookID).Delete(&models.Book{})
	if res.Error != nil {
		return pkgerrors.Wrap(pkgerrors.CodeInternal, res.Error, "delete book")
	}
	if res.RowsAffected == 0 {
		return pkgerrors.New(pkgerrors.CodeNotFound, "book not found")
	}
	return nil
}
