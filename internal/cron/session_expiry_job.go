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

const sessionExpiryJobName = "session-expiry"

// expiredSessionFinder selects in_progress sessions whose window has passed.
type expiredSessionFinder interface {
	FindExpiredInProgress(ctx context.Context, cutoff time.Time, limit int) ([]models.ViewingSession, error)
}

// sessionExpirer transitions a single session to expired.
type sessionExpirer interface {
	Expire(ctx context.Context, sessionID uuid.UUID) (bool, error)
}

// SessionExpiryJobParams configure the session expiry sweep.
type SessionExpiryJobParams struct {
	Logger   *logger.Logger
	Sessions expiredSessionFinder
	Expirer  sessionExpirer
	Metrics  *metrics.CronJobMetrics
	Config   config.SweeperConfig
	Now      func() time.Time
}

// SessionExpiryJob expires rental sessions whose 48h window has lapsed,
// freeing their copies for the next viewer.
type SessionExpiryJob struct {
	logg     *logger.Logger
	sessions expiredSessionFinder
	expirer  sessionExpirer
	metrics  *metrics.CronJobMetrics
	limit    int
	now      func() time.Time
}

// NewSessionExpiryJob builds the session expiry job.
func NewSessionExpiryJob(params SessionExpiryJobParams) (*SessionExpiryJob, error) {
	if params.Logger == nil {
		return nil, fmt.Errorf("logger required")
	}
	if params.Sessions == nil {
		return nil, fmt.Errorf("session finder required")
	}
	if params.Expirer == nil {
		return nil, fmt.Errorf("session expirer required")
	}
	now := params.Now
	if now == nil {
		now = time.Now
	}
	limit := params.Config.SessionBatchLimit
	if limit <= 0 {
		limit = 500
	}
	return &SessionExpiryJob{
		logg:     params.Logger,
		sessions: params.Sessions,
		expirer:  params.Expirer,
		metrics:  params.Metrics,
		limit:    limit,
		now:      now,
	}, nil
}

// Name returns the job identifier.
func (j *SessionExpiryJob) Name() string {
	return sessionExpiryJobName
}

// Run sweeps one batch of lapsed sessions. Each session is expired in
// its own transaction with a row lock and a state re-check, so a session
// the user just returned or the arbitrator just rotated is skipped.
func (j *SessionExpiryJob) Run(ctx context.Context) error {
	candidates, err := j.sessions.FindExpiredInProgress(ctx, j.now(), j.limit)
	if err != nil {
		return fmt.Errorf("find lapsed sessions: %w", err)
	}
	if len(candidates) == 0 {
		return nil
	}

	var errs error
	expired := 0
	for _, session := range candidates {
		ok, expireErr := j.expirer.Expire(ctx, session.ID)
		if expireErr != nil {
			errs = multierr.Append(errs, fmt.Errorf("expire session %s: %w", session.ID, expireErr))
			continue
		}
		if ok {
			expired++
		}
	}

	if j.metrics != nil {
		j.metrics.AddSwept(sessionExpiryJobName, expired)
	}
	logCtx := j.logg.WithField(ctx, "candidates", len(candidates))
	logCtx = j.logg.WithField(logCtx, "expired", expired)
	j.logg.Info(logCtx, "session expiry sweep complete")
	return errs
}
