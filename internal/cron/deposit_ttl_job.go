package cron

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/multierr"

	"github.com/wecinema/wecinema-backend/pkg/config"
	"github.com/wecinema/wecinema-backend/pkg/db/models"
	"github.com/wecinema/wecinema-backend/pkg/logger"
	"github.com/wecinema/wecinema-backend/pkg/metrics"
)

const depositTTLJobName = "deposit-ttl"

const depositBatchLimit = 200

// staleDepositSource exposes the deposit operations the TTL sweep needs.
type staleDepositSource interface {
	StaleSubmittedBefore(ctx context.Context, cutoff time.Time, limit int) ([]models.Deposit, error)
	RejectUnclaimed(ctx context.Context, depositID uuid.UUID) (bool, error)
}

// DepositTTLJobParams configure the deposit TTL sweep.
type DepositTTLJobParams struct {
	Logger   *logger.Logger
	Deposits staleDepositSource
	Metrics  *metrics.CronJobMetrics
	Config   config.SweeperConfig
	Now      func() time.Time
}

// DepositTTLJob rejects deposits that were announced but never arrived
// within the configured window.
type DepositTTLJob struct {
	logg     *logger.Logger
	deposits staleDepositSource
	metrics  *metrics.CronJobMetrics
	ttl      time.Duration
	now      func() time.Time
}

// NewDepositTTLJob builds the deposit TTL job.
func NewDepositTTLJob(params DepositTTLJobParams) (*DepositTTLJob, error) {
	if params.Logger == nil {
		return nil, fmt.Errorf("logger required")
	}
	if params.Deposits == nil {
		return nil, fmt.Errorf("deposit source required")
	}
	ttlDays := params.Config.DepositTTLDays
	if ttlDays <= 0 {
		ttlDays = 60
	}
	now := params.Now
	if now == nil {
		now = time.Now
	}
	return &DepositTTLJob{
		logg:     params.Logger,
		deposits: params.Deposits,
		metrics:  params.Metrics,
		ttl:      time.Duration(ttlDays) * 24 * time.Hour,
		now:      now,
	}, nil
}

// Name returns the job identifier.
func (j *DepositTTLJob) Name() string {
	return depositTTLJobName
}

// Run rejects one batch of stale submitted deposits. Each rejection runs
// in its own transaction and re-checks the deposit state, so a deposit an
// admin received mid-sweep is left alone.
func (j *DepositTTLJob) Run(ctx context.Context) error {
	cutoff := j.now().Add(-j.ttl)
	candidates, err := j.deposits.StaleSubmittedBefore(ctx, cutoff, depositBatchLimit)
	if err != nil {
		return fmt.Errorf("find stale deposits: %w", err)
	}
	if len(candidates) == 0 {
		return nil
	}

	var errs error
	rejected := 0
	for _, deposit := range candidates {
		ok, rejectErr := j.deposits.RejectUnclaimed(ctx, deposit.ID)
		if rejectErr != nil {
			errs = multierr.Append(errs, fmt.Errorf("reject deposit %s: %w", deposit.ID, rejectErr))
			continue
		}
		if ok {
			rejected++
		}
	}

	if j.metrics != nil {
		j.metrics.AddSwept(depositTTLJobName, rejected)
	}
	logCtx := j.logg.WithField(ctx, "candidates", len(candidates))
	logCtx = j.logg.WithField(logCtx, "rejected", rejected)
	j.logg.Info(logCtx, "deposit ttl sweep complete")
	return errs
}
