package query

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/angelmondragon/library-backend/pkg/auth"
	"github.com/angelmondragon/library-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/library-backend/pkg/errors"
)

// BookSummary is the public projection of a book.
type BookSummary struct {
	ID              uuid.UUID `json:"id" gorm:"column:id"`
	Title           string    `json:"title" gorm:"column:title"`
	Author          string    `json:"author" gorm:"column:author"`
	Publisher       string    `json:"publisher" gorm:"column:publisher"`
	TotalCopies     int       `json:"total_copies" gorm:"column:total_copies"`
	AvailableCopies int       `json:"available_copies" gorm:"column:available_copies"`
}

type BookRef struct {
	ID     uuid.UUID `json:"id"`
	Title  string    `json:"title"`
	Author string    `json:"author"`
}

type Borrower struct {
	ID    uuid.UUID `json:"id"`
	Name  string    `json:"name"`
	Email string    `json:"email"`
}

// LoanSummary is an active loan joined with its book. Borrower is only set on
// administrative listings.
type LoanSummary struct {
	LoanID     uuid.UUID `json:"loan_id"`
	Book       BookRef   `json:"book"`
	Borrower   *Borrower `json:"borrower,omitempty"`
	BorrowedAt time.Time `json:"borrowed_at"`
	DueDate    time.Time `json:"due_date"`
	Overdue    bool      `json:"overdue"`
}

// Stats is the dashboard projection.
type Stats struct {
	TotalBooks     int64 `json:"total_books" gorm:"column:total_books"`
	TotalUsers     int64 `json:"total_users" gorm:"column:total_users"`
	AvailableBooks int64 `json:"available_books" gorm:"column:available_books"`
	ActiveLoans    int64 `json:"active_loans" gorm:"column:active_loans"`
}

type loanRow struct {
	LoanID     uuid.UUID `gorm:"column:loan_id"`
	BorrowedAt time.Time `gorm:"column:borrowed_at"`
	DueDate    time.Time `gorm:"column:due_date"`
	BookID     uuid.UUID `gorm:"column:book_id"`
	BookTitle  string    `gorm:"column:book_title"`
	BookAuthor string    `gorm:"column:book_author"`
	UserID     uuid.UUID `gorm:"column:user_id"`
	UserName   string    `gorm:"column:user_name"`
	UserEmail  string    `gorm:"column:user_email"`
}

// Service exposes the read-only projections. Every call is a single statement,
// so results always reflect whole commits.
type Service interface {
	AvailableBooks(ctx context.Context) ([]BookSummary, error)
	BorrowedByUser(ctx context.Context, userID uuid.UUID) ([]LoanSummary, error)
	AllActiveLoans(ctx context.Context) ([]LoanSummary, error)
	ListActiveLoans(ctx context.Context, principal auth.Principal, scope enums.LoanScope) ([]LoanSummary, error)
	OverdueLoans(ctx context.Context) ([]LoanSummary, error)
	Stats(ctx context.Context) (*Stats, error)
}

type service struct {
	db  *gorm.DB
	now func() time.Time
}

// NewService builds the query service over a read connection.
func NewService(db *gorm.DB, now func() time.Time) (Service, error) {
	if db == nil {
		return nil, errors.New("database required")
	}
	if now == nil {
		now = time.Now
	}
	return &service{db: db, now: now}, nil
}

func (s *service) AvailableBooks(ctx context.Context) ([]BookSummary, error) {
	sql, args, err := availableBooksQuery()
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "build available books query")
	}
	books := []BookSummary{}
	if err := s.db.WithContext(ctx).Raw(sql, args...).Scan(&books).Error; err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "list available books")
	}
	return books, nil
}

func (s *service) BorrowedByUser(ctx context.Context, userID uuid.UUID) ([]LoanSummary, error) {
	if userID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "user id required")
	}
	return s.loans(ctx, loanFilter{userID: &userID}, false)
}

func (s *service) AllActiveLoans(ctx context.Context) ([]LoanSummary, error) {
	return s.loans(ctx, loanFilter{}, true)
}

func (s *service) ListActiveLoans(ctx context.Context, principal auth.Principal, scope enums.LoanScope) ([]LoanSummary, error) {
	if principal.IsZero() {
		return nil, pkgerrors.New(pkgerrors.CodeUnauthorized, "authentication required")
	}
	switch scope {
	case enums.LoanScopeSelf:
		return s.BorrowedByUser(ctx, principal.UserID)
	case enums.LoanScopeAll:
		if !principal.Role.CanViewAllLoans() {
			return nil, pkgerrors.New(pkgerrors.CodeForbidden, "listing all loans requires an admin")
		}
		return s.AllActiveLoans(ctx)
	}
	return nil, pkgerrors.New(pkgerrors.CodeValidation, "scope must be self or all").
		WithDetails(map[string]any{"scope": string(scope)})
}

func (s *service) OverdueLoans(ctx context.Context) ([]LoanSummary, error) {
	now := s.now().UTC()
	return s.loans(ctx, loanFilter{overdueBefore: &now}, true)
}

func (s *service) Stats(ctx context.Context) (*Stats, error) {
	sql, args, err := statsQuery()
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "build stats query")
	}
	var stats Stats
	if err := s.db.WithContext(ctx).Raw(sql, args...).Scan(&stats).Error; err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "load stats")
	}
	return &stats, nil
}

func (s *service) loans(ctx context.Context, filter loanFilter, withBorrower bool) ([]LoanSummary, error) {
	sql, args, err := activeLoansQuery(filter)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "build loans query")
	}
	var rows []loanRow
	if err := s.db.WithContext(ctx).Raw(sql, args...).Scan(&rows).Error; err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "list active loans")
	}

	now := s.now().UTC()
	out := make([]LoanSummary, 0, len(rows))
	for _, row := range rows {
		summary := LoanSummary{
			LoanID:     row.LoanID,
			Book:       BookRef{ID: row.BookID, Title: row.BookTitle, Author: row.BookAuthor},
			BorrowedAt: row.BorrowedAt.UTC(),
			DueDate:    row.DueDate.UTC(),
			Overdue:    now.After(row.DueDate),
		}
		if withBorrower {
			summary.Borrower = &Borrower{ID: row.UserID, Name: row.UserName, Email: row.UserEmail}
		}
		out = append(out, summary)
	}
	return out, nil
}
