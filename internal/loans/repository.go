package loans

import (
	"context"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/angelmondragon/library-backend/internal/repo"
	"github.com/angelmondragon/library-backend/pkg/db"
	"github.com/angelmondragon/library-backend/pkg/db/models"
	pkgerrors "github.com/angelmondragon/library-backend/pkg/errors"
)

// ActiveLoanIndex is the partial unique index guarding one active loan per user and book.
const ActiveLoanIndex = "ux_loans_active_user_book"

// Repository is the append-only ledger of loans.
type Repository interface {
	WithTx(tx *gorm.DB) Repository
	FindByID(ctx context.Context, loanID uuid.UUID) (*models.Loan, error)
	FindActiveLoan(ctx context.Context, userID, bookID uuid.UUID) (*models.Loan, error)
	FindLatestLoan(ctx context.Context, userID, bookID uuid.UUID) (*models.Loan, error)
	CreateLoan(ctx context.Context, userID, bookID uuid.UUID, borrowedAt, dueAt time.Time) (*models.Loan, error)
	CloseLoan(ctx context.Context, loanID uuid.UUID, returnedAt time.Time) error
	ActiveLoansForUser(ctx context.Context, userID uuid.UUID) ([]models.Loan, error)
	ActiveLoansAll(ctx context.Context) ([]models.Loan, error)
	CountActiveForBook(ctx context.Context, bookID uuid.UUID) (int64, error)
	FindOverdue(ctx context.Context, now time.Time, limit int) ([]models.Loan, error)
}

type repository struct {
	repo.Base
}

// NewRepository returns a loan ledger bound to the provided database.
func NewRepository(db *gorm.DB) Repository {
	return &repository{Base: repo.NewBase(db)}
}

func (r *repository) WithTx(tx *gorm.DB) Repository {
	if tx == nil {
		return r
	}
	return &repository{Base: repo.NewBase(tx)}
}

func (r *repository) FindByID(ctx context.Context, loanID uuid.UUID) (*models.Loan, error) {
	loan, err := r.first(r.DB(ctx).Where("id = ?", loanID))
	if err == nil && loan == nil {
		return nil, pkgerrors.New(pkgerrors.CodeNotFound, "loan not found")
	}
	return loan, err
}

// FindActiveLoan returns nil without error when the pair has no open loan.
func (r *repository) FindActiveLoan(ctx context.Context, userID, bookID uuid.UUID) (*models.Loan, error) {
	return r.first(r.DB(ctx).
		Where("user_id = ? AND book_id = ? AND date_return IS NULL", userID, bookID))
}

// FindLatestLoan returns the most recent loan for the pair in any state, or nil.
func (r *repository) FindLatestLoan(ctx context.Context, userID, bookID uuid.UUID) (*models.Loan, error) {
	return r.first(r.DB(ctx).
		Where("user_id = ? AND book_id = ?", userID, bookID).
		Order("date_borrowed DESC").
		Order("created_at DESC"))
}

func (r *repository) first(query *gorm.DB) (*models.Loan, error) {
	loan, err := repo.First[models.Loan](query)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "load loan")
	}
	return loan, nil
}

func (r *repository) CreateLoan(ctx context.Context, userID, bookID uuid.UUID, borrowedAt, dueAt time.Time) (*models.Loan, error) {
	loan := &models.Loan{
		ID:           uuid.New(),
		UserID:       userID,
		BookID:       bookID,
		DateBorrowed: borrowedAt.UTC(),
		DueDate:      dueAt.UTC(),
	}
	if err := r.DB(ctx).Create(loan).Error; err != nil {
		if db.IsUniqueViolation(err, ActiveLoanIndex) {
			return nil, pkgerrors.Wrap(pkgerrors.CodeConflict, err, "book already borrowed")
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "create loan")
	}
	return loan, nil
}

// CloseLoan stamps date_return only while the loan is still open, so two racing
// returns cannot both close it.
func (r *repository) CloseLoan(ctx context.Context, loanID uuid.UUID, returnedAt time.Time) error {
	res := r.DB(ctx).Model(&models.Loan{}).
		Where("id = ? AND date_return IS NULL", loanID).
		Update("date_return", returnedAt.UTC())
	if res.Error != nil {
		return pkgerrors.Wrap(pkgerrors.CodeInternal, res.Error, "close loan")
	}
	if res.RowsAffected == 1 {
		return nil
	}
	if _, err := r.FindByID(ctx, loanID); err != nil {
		return err
	}
	return pkgerrors.New(pkgerrors.CodeAlreadyClosed, "book already returned")
}

func (r *repository) ActiveLoansForUser(ctx context.Context, userID uuid.UUID) ([]models.Loan, error) {
	return r.list(r.DB(ctx).Where("user_id = ? AND date_return IS NULL", userID))
}

func (r *repository) ActiveLoansAll(ctx context.Context) ([]models.Loan, error) {
	return r.list(r.DB(ctx).Where("date_return IS NULL"))
}

func (r *repository) list(query *gorm.DB) ([]models.Loan, error) {
	var loans []models.Loan
	if err := query.Order("date_borrowed ASC").Order("id ASC").Find(&loans).Error; err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "list loans")
	}
	return loans, nil
}

func (r *repository) CountActiveForBook(ctx context.Context, bookID uuid.UUID) (int64, error) {
	var count int64
	if err := r.DB(ctx).Model(&models.Loan{}).
		Where("book_id = ? AND date_return IS NULL", bookID).
		Count(&count).Error; err != nil {
		return 0, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "count active loans")
	}
	return count, nil
}

// FindOverdue lists open loans whose due date is before now, oldest due first.
func (r *repository) FindOverdue(ctx context.Context, now time.Time, limit int) ([]models.Loan, error) {
	query := r.DB(ctx).
		Where("date_return IS NULL AND due_date < ?", now.UTC()).
		Order("due_date ASC").
		Order("id ASC")
	if limit > 0 {
		query = query.Limit(limit)
	}
	var loans []models.Loan
	if err := query.Find(&loans).Error; err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "list overdue loans")
	}
	return loans, nil
}
