package cron

import (
	"context"
	"fmt"
	"time"

	"github.com/angelmondragon/library-backend/pkg/logger"
	"gorm.io/gorm"
)

const (
	outboxRetentionDays      = 30
	outboxMinAttempts        = 5
	outboxRetentionBatchSize = 1000
)

// OutboxRetentionJobParams configure the job that prunes delivered and dead
// outbox rows. Retention is in days.
type OutboxRetentionJobParams struct {
	Logger      *logger.Logger
	DB          txRunner
	Repository  outboxRetentionRepo
	Retention   int
	MinAttempts int
	BatchSize   int
}

type outboxRetentionRepo interface {
	DeletePublishedBefore(ctx context.Context, tx *gorm.DB, cutoff time.Time, minAttemptCount, limit int) (int64, error)
}

type outboxRetentionJob struct {
	logg        *logger.Logger
	db          txRunner
	repo        outboxRetentionRepo
	retention   time.Duration
	minAttempts int
	batchSize   int
	now         func() time.Time
}

func NewOutboxRetentionJob(params OutboxRetentionJobParams) (Job, error) {
	if params.Logger == nil {
		return nil, fmt.Errorf("logger required")
	}
	if params.DB == nil {
		return nil, fmt.Errorf("db runner required")
	}
	if params.Repository == nil {
		return nil, fmt.Errorf("outbox repository required")
	}
	return &outboxRetentionJob{
		logg:        params.Logger,
		db:          params.DB,
		repo:        params.Repository,
		retention:   time.Duration(positiveOr(params.Retention, outboxRetentionDays)) * 24 * time.Hour,
		minAttempts: positiveOr(params.MinAttempts, outboxMinAttempts),
		batchSize:   positiveOr(params.BatchSize, outboxRetentionBatchSize),
		now:         time.Now,
	}, nil
}

func (j *outboxRetentionJob) Name() string { return "outbox-retention" }

// Run deletes in batches, each in its own transaction, until a batch comes
// back short. Rows removed before a failure stay removed and are counted.
func (j *outboxRetentionJob) Run(ctx context.Context) (int, error) {
	cutoff := j.now().UTC().Add(-j.retention)
	var total, batches int64
	for {
		if err := ctx.Err(); err != nil {
			return int(total), err
		}
		var deleted int64
		err := j.db.WithTx(ctx, func(tx *gorm.DB) error {
			n, err := j.repo.DeletePublishedBefore(ctx, tx, cutoff, j.minAttempts, j.batchSize)
			deleted = n
			return err
		})
		if err != nil {
			return int(total), fmt.Errorf("outbox retention: %w", err)
		}
		total += deleted
		batches++
		if deleted < int64(j.batchSize) {
			break
		}
	}

	j.logg.Info(j.logg.WithFields(ctx, map[string]any{
		"cutoff":       cutoff,
		"min_attempts": j.minAttempts,
		"batches":      batches,
		"rows_deleted": total,
	}), "outbox retention cleanup complete")
	return int(total), nil
}

func positiveOr(v, fallback int) int {
	if v <= 0 {
		return fallback
	}
	return v
}
