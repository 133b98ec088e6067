package lending

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/angelmondragon/library-backend/internal/inventory"
	"github.com/angelmondragon/library-backend/internal/loans"
	"github.com/angelmondragon/library-backend/pkg/auth"
	"github.com/angelmondragon/library-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/library-backend/pkg/errors"
	"github.com/angelmondragon/library-backend/pkg/logger"
	"github.com/angelmondragon/library-backend/pkg/metrics"
	"github.com/angelmondragon/library-backend/pkg/outbox"
	"github.com/angelmondragon/library-backend/pkg/outbox/payloads"
)

const (
	// DefaultLoanPeriod is how long a borrower keeps a copy.
	DefaultLoanPeriod = 14 * 24 * time.Hour

	operationBorrow = "borrow"
	operationReturn = "return"
)

type txRunner interface {
	WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error
}

type outboxPublisher interface {
	Emit(ctx context.Context, tx *gorm.DB, event outbox.DomainEvent) error
}

// Service runs borrow and return as single all-or-nothing transactions.
type Service interface {
	Borrow(ctx context.Context, principal auth.Principal, bookID uuid.UUID) (*LoanSnapshot, error)
	Return(ctx context.Context, principal auth.Principal, bookID uuid.UUID) (*ReturnAck, error)
	ReturnLoan(ctx context.Context, principal auth.Principal, loanID uuid.UUID) (*ReturnAck, error)
}

// LoanSnapshot describes the loan created by a successful borrow.
type LoanSnapshot struct {
	LoanID          uuid.UUID `json:"loan_id"`
	BookID          uuid.UUID `json:"book_id"`
	UserID          uuid.UUID `json:"user_id"`
	BorrowedAt      time.Time `json:"borrowed_at"`
	DueDate         time.Time `json:"due_date"`
	AvailableCopies int       `json:"available_copies"`
}

// ReturnAck confirms a closed loan.
type ReturnAck struct {
	LoanID          uuid.UUID `json:"loan_id"`
	BookID          uuid.UUID `json:"book_id"`
	ReturnedAt      time.Time `json:"returned_at"`
	Late            bool      `json:"late"`
	AvailableCopies int       `json:"available_copies"`
}

// ServiceParams wires the lending service.
type ServiceParams struct {
	TxRunner   txRunner
	Inventory  inventory.Repository
	Loans      loans.Repository
	Outbox     outboxPublisher
	Logger     *logger.Logger
	Metrics    *metrics.LendingMetrics
	LoanPeriod time.Duration
	Now        func() time.Time
}

type service struct {
	tx         txRunner
	inventory  inventory.Repository
	loans      loans.Repository
	outbox     outboxPublisher
	logg       *logger.Logger
	metrics    *metrics.LendingMetrics
	loanPeriod time.Duration
	now        func() time.Time
}

// NewService builds the lending service.
func NewService(params ServiceParams) (Service, error) {
	if params.TxRunner == nil {
		return nil, errors.New("tx runner required")
	}
	if params.Inventory == nil {
		return nil, errors.New("inventory repository required")
	}
	if params.Loans == nil {
		return nil, errors.New("loan repository required")
	}
	if params.Outbox == nil {
		return nil, errors.New("outbox publisher required")
	}
	if params.Logger == nil {
		return nil, errors.New("logger required")
	}
	period := params.LoanPeriod
	if period <= 0 {
		period = DefaultLoanPeriod
	}
	now := params.Now
	if now == nil {
		now = time.Now
	}
	return &service{
		tx:         params.TxRunner,
		inventory:  params.Inventory,
		loans:      params.Loans,
		outbox:     params.Outbox,
		logg:       params.Logger,
		metrics:    params.Metrics,
		loanPeriod: period,
		now:        now,
	}, nil
}

func (s *service) Borrow(ctx context.Context, principal auth.Principal, bookID uuid.UUID) (snapshot *LoanSnapshot, err error) {
	started := time.Now()
	defer func() { s.observe(operationBorrow, started, err) }()

	if principal.IsZero() {
		return nil, pkgerrors.New(pkgerrors.CodeUnauthorized, "authentication required")
	}
	if bookID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "book id required")
	}
	ctx = s.logg.WithFields(ctx, map[string]any{
		"user_id": principal.UserID.String(),
		"book_id": bookID.String(),
	})

	err = s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		inventoryRepo := s.inventory.WithTx(tx)
		loanRepo := s.loans.WithTx(tx)

		book, err := inventoryRepo.LockBook(ctx, bookID)
		if err != nil {
			return err
		}
		if book.AvailableCopies <= 0 {
			return pkgerrors.New(pkgerrors.CodeUnavailable, "no copies available")
		}

		active, err := loanRepo.FindActiveLoan(ctx, principal.UserID, bookID)
		if err != nil {
			return err
		}
		if active != nil {
			return pkgerrors.New(pkgerrors.CodeConflict, "book already borrowed").
				WithDetails(map[string]any{"loan_id": active.ID.String()})
		}

		borrowedAt := s.now().UTC()
		loan, err := loanRepo.CreateLoan(ctx, principal.UserID, bookID, borrowedAt, borrowedAt.Add(s.loanPeriod))
		if err != nil {
			return err
		}

		available, err := inventoryRepo.AdjustAvailable(ctx, bookID, -1)
		if err != nil {
			return err
		}

		snapshot = &LoanSnapshot{
			LoanID:          loan.ID,
			BookID:          bookID,
			UserID:          principal.UserID,
			BorrowedAt:      loan.DateBorrowed,
			DueDate:         loan.DueDate,
			AvailableCopies: available,
		}

		return s.outbox.Emit(ctx, tx, outbox.DomainEvent{
			EventType:     enums.EventLoanBorrowed,
			AggregateType: enums.AggregateLoan,
			AggregateID:   loan.ID,
			Actor:         actorFor(principal),
			OccurredAt:    borrowedAt,
			Data: payloads.LoanBorrowedEvent{
				LoanID:          loan.ID,
				UserID:          principal.UserID,
				BookID:          bookID,
				BorrowedAt:      loan.DateBorrowed,
				DueDate:         loan.DueDate,
				AvailableCopies: available,
			},
		})
	})
	if err != nil {
		return nil, normalize(err, "borrow book")
	}

	ctx = s.logg.WithLoanID(ctx, snapshot.LoanID.String())
	s.logg.Info(ctx, "loan.borrowed")
	return snapshot, nil
}

func (s *service) Return(ctx context.Context, principal auth.Principal, bookID uuid.UUID) (ack *ReturnAck, err error) {
	started := time.Now()
	defer func() { s.observe(operationReturn, started, err) }()

	if principal.IsZero() {
		return nil, pkgerrors.New(pkgerrors.CodeUnauthorized, "authentication required")
	}
	if bookID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "book id required")
	}
	ctx = s.logg.WithFields(ctx, map[string]any{
		"user_id": principal.UserID.String(),
		"book_id": bookID.String(),
	})

	err = s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		if _, err := s.inventory.WithTx(tx).LockBook(ctx, bookID); err != nil {
			return err
		}

		loanRepo := s.loans.WithTx(tx)
		active, err := loanRepo.FindActiveLoan(ctx, principal.UserID, bookID)
		if err != nil {
			return err
		}
		if active == nil {
			latest, err := loanRepo.FindLatestLoan(ctx, principal.UserID, bookID)
			if err != nil {
				return err
			}
			if latest != nil {
				return pkgerrors.New(pkgerrors.CodeAlreadyClosed, "book already returned")
			}
			return pkgerrors.New(pkgerrors.CodeNotFound, "book not borrowed")
		}

		ack, err = s.closeLoan(ctx, tx, principal, active.ID, active.BookID, active.DueDate)
		return err
	})
	if err != nil {
		return nil, normalize(err, "return book")
	}

	s.logg.Info(s.logg.WithLoanID(ctx, ack.LoanID.String()), "loan.returned")
	return ack, nil
}

func (s *service) ReturnLoan(ctx context.Context, principal auth.Principal, loanID uuid.UUID) (ack *ReturnAck, err error) {
	started := time.Now()
	defer func() { s.observe(operationReturn, started, err) }()

	if principal.IsZero() {
		return nil, pkgerrors.New(pkgerrors.CodeUnauthorized, "authentication required")
	}
	if loanID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "loan id required")
	}
	ctx = s.logg.WithFields(ctx, map[string]any{
		"user_id": principal.UserID.String(),
		"loan_id": loanID.String(),
	})

	err = s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		loan, err := s.loans.WithTx(tx).FindByID(ctx, loanID)
		if err != nil {
			return err
		}
		if loan.UserID != principal.UserID {
			return pkgerrors.New(pkgerrors.CodeNotFound, "loan not found")
		}
		if !loan.IsActive() {
			return pkgerrors.New(pkgerrors.CodeAlreadyClosed, "book already returned")
		}
		if _, err := s.inventory.WithTx(tx).LockBook(ctx, loan.BookID); err != nil {
			return err
		}

		ack, err = s.closeLoan(ctx, tx, principal, loan.ID, loan.BookID, loan.DueDate)
		return err
	})
	if err != nil {
		return nil, normalize(err, "return loan")
	}

	s.logg.Info(ctx, "loan.returned")
	return ack, nil
}

// closeLoan runs the shared tail of both return paths; the caller holds the book lock.
func (s *service) closeLoan(ctx context.Context, tx *gorm.DB, principal auth.Principal, loanID, bookID uuid.UUID, dueDate time.Time) (*ReturnAck, error) {
	returnedAt := s.now().UTC()
	if err := s.loans.WithTx(tx).CloseLoan(ctx, loanID, returnedAt); err != nil {
		return nil, err
	}

	available, err := s.inventory.WithTx(tx).AdjustAvailable(ctx, bookID, 1)
	if err != nil {
		return nil, err
	}

	ack := &ReturnAck{
		LoanID:          loanID,
		BookID:          bookID,
		ReturnedAt:      returnedAt,
		Late:            returnedAt.After(dueDate),
		AvailableCopies: available,
	}

	if err := s.outbox.Emit(ctx, tx, outbox.DomainEvent{
		EventType:     enums.EventLoanReturned,
		AggregateType: enums.AggregateLoan,
		AggregateID:   loanID,
		Actor:         actorFor(principal),
		OccurredAt:    returnedAt,
		Data: payloads.LoanReturnedEvent{
			LoanID:          loanID,
			UserID:          principal.UserID,
			BookID:          bookID,
			ReturnedAt:      returnedAt,
			Late:            ack.Late,
			AvailableCopies: available,
		},
	}); err != nil {
		return nil, err
	}
	return ack, nil
}

func (s *service) observe(operation string, started time.Time, err error) {
	outcome := ""
	if err != nil {
		outcome = string(pkgerrors.CodeOf(err))
	}
	s.metrics.Observe(operation, outcome, time.Since(started))
}

func actorFor(principal auth.Principal) *outbox.ActorRef {
	return &outbox.ActorRef{UserID: principal.UserID, Role: principal.Role.String()}
}

// normalize keeps typed errors and hides anything else behind an internal code.
func normalize(err error, message string) error {
	if pkgerrors.As(err) != nil {
		return err
	}
	return pkgerrors.Wrap(pkgerrors.CodeInternal, err, message)
}
