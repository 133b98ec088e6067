package cron

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/multierr"
	"gorm.io/gorm"

	"github.com/angelmondragon/library-backend/pkg/db/models"
	"github.com/angelmondragon/library-backend/pkg/enums"
	"github.com/angelmondragon/library-backend/pkg/logger"
	"github.com/angelmondragon/library-backend/pkg/outbox"
	"github.com/angelmondragon/library-backend/pkg/outbox/payloads"
)

const defaultOverdueBatchSize = 500

type overdueLoanFinder interface {
	FindOverdue(ctx context.Context, now time.Time, limit int) ([]models.Loan, error)
}

type overdueEmitter interface {
	EmitIfNotExists(ctx context.Context, tx *gorm.DB, event outbox.DomainEvent) error
}

// OverdueLoansJobParams configure the overdue-loans job.
type OverdueLoansJobParams struct {
	Logger    *logger.Logger
	DB        txRunner
	Loans     overdueLoanFinder
	Outbox    overdueEmitter
	BatchSize int
}

// NewOverdueLoansJob builds the job that queues one loan_overdue event per
// open loan past its due date.
func NewOverdueLoansJob(params OverdueLoansJobParams) (Job, error) {
	if params.Logger == nil {
		return nil, fmt.Errorf("logger required")
	}
	if params.DB == nil {
		return nil, fmt.Errorf("db runner required")
	}
	if params.Loans == nil {
		return nil, fmt.Errorf("loan finder required")
	}
	if params.Outbox == nil {
		return nil, fmt.Errorf("outbox emitter required")
	}
	batch := params.BatchSize
	if batch <= 0 {
		batch = defaultOverdueBatchSize
	}
	return &overdueLoansJob{
		logg:   params.Logger,
		db:     params.DB,
		loans:  params.Loans,
		outbox: params.Outbox,
		batch:  batch,
		now:    time.Now,
	}, nil
}

type overdueLoansJob struct {
	logg   *logger.Logger
	db     txRunner
	loans  overdueLoanFinder
	outbox overdueEmitter
	batch  int
	now    func() time.Time
}

func (j *overdueLoansJob) Name() string { return "overdue-loans" }

// Run walks overdue loans oldest due first. Each loan gets its own transaction
// so one failure does not roll back events already queued for others.
func (j *overdueLoansJob) Run(ctx context.Context) (int, error) {
	now := j.now().UTC()
	loans, err := j.loans.FindOverdue(ctx, now, j.batch)
	if err != nil {
		return 0, fmt.Errorf("find overdue loans: %w", err)
	}

	var (
		processed int
		errs      error
	)
	for i := range loans {
		loan := loans[i]
		if err := j.emitOverdue(ctx, loan, now); err != nil {
			errs = multierr.Append(errs, fmt.Errorf("loan %s: %w", loan.ID, err))
			continue
		}
		processed++
	}

	logCtx := j.logg.WithFields(ctx, map[string]any{
		"overdue_found": len(loans),
		"processed":     processed,
		"batch_limit":   j.batch,
	})
	if len(loans) == j.batch {
		j.logg.Warn(logCtx, "overdue batch limit reached; remaining loans carried to next run")
	}
	j.logg.Info(logCtx, "overdue loan scan complete")
	return processed, errs
}

func (j *overdueLoansJob) emitOverdue(ctx context.Context, loan models.Loan, detected time.Time) error {
	if loan.ID == uuid.Nil {
		return fmt.Errorf("loan id missing")
	}
	return j.db.WithTx(ctx, func(tx *gorm.DB) error {
		return j.outbox.EmitIfNotExists(ctx, tx, outbox.DomainEvent{
			EventType:     enums.EventLoanOverdue,
			AggregateType: enums.AggregateLoan,
			AggregateID:   loan.ID,
			Data: payloads.LoanOverdueEvent{
				LoanID:   loan.ID,
				UserID:   loan.UserID,
				BookID:   loan.BookID,
				DueDate:  loan.DueDate,
				Detected: detected,
			},
			OccurredAt: detected,
		})
	})
}
