package cron

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/wecinema/wecinema-backend/pkg/config"
	"github.com/wecinema/wecinema-backend/pkg/db/models"
)

type fakeSessionFinder struct {
	sessions []models.ViewingSession
	err      error
	cutoff   time.Time
	limit    int
}

func (f *fakeSessionFinder) FindExpiredInProgress(ctx context.Context, cutoff time.Time, limit int) ([]models.ViewingSession, error) {
	f.cutoff = cutoff
	f.limit = limit
	return f.sessions, f.err
}

type fakeExpirer struct {
	expired map[uuid.UUID]bool
	failOn  map[uuid.UUID]error
	calls   []uuid.UUID
}

func (f *fakeExpirer) Expire(ctx context.Context, sessionID uuid.UUID) (bool, error) {
	f.calls = append(f.calls, sessionID)
	if err, ok := f.failOn[sessionID]; ok {
		return false, err
	}
	return f.expired[sessionID], nil
}

func TestSessionExpiryJobSweepsBatch(t *testing.T) {
	lapsedA := models.ViewingSession{ID: uuid.New()}
	lapsedB := models.ViewingSession{ID: uuid.New()}
	rotated := models.ViewingSession{ID: uuid.New()}

	finder := &fakeSessionFinder{sessions: []models.ViewingSession{lapsedA, lapsedB, rotated}}
	expirer := &fakeExpirer{expired: map[uuid.UUID]bool{
		lapsedA.ID: true,
		lapsedB.ID: true,
		// rotated was picked up by the sweep but changed state since;
		// Expire re-checks and reports false.
	}}

	job, err := NewSessionExpiryJob(SessionExpiryJobParams{
		Logger:   testLogger(),
		Sessions: finder,
		Expirer:  expirer,
		Config:   config.SweeperConfig{SessionBatchLimit: 100},
	})
	if err != nil {
		t.Fatalf("NewSessionExpiryJob: %v", err)
	}

	if err := job.Run(context.Background()); err != nil {
		t.Fatalf("Run: %v", err)
	}

	if len(expirer.calls) != 3 {
		t.Fatalf("expected 3 expire attempts, got %d", len(expirer.calls))
	}
	if finder.limit != 100 {
		t.Fatalf("expected configured batch limit, got %d", finder.limit)
	}
}

func TestSessionExpiryJobCollectsErrors(t *testing.T) {
	broken := models.ViewingSession{ID: uuid.New()}
	healthy := models.ViewingSession{ID: uuid.New()}

	finder := &fakeSessionFinder{sessions: []models.ViewingSession{broken, healthy}}
	expirer := &fakeExpirer{
		expired: map[uuid.UUID]bool{healthy.ID: true},
		failOn:  map[uuid.UUID]error{broken.ID: errors.New("deadlock")},
	}

	job, err := NewSessionExpiryJob(SessionExpiryJobParams{
		Logger:   testLogger(),
		Sessions: finder,
		Expirer:  expirer,
	})
	if err != nil {
		t.Fatalf("NewSessionExpiryJob: %v", err)
	}

	err = job.Run(context.Background())
	if err == nil {
		t.Fatal("expected aggregated error")
	}
	// The failure on one row must not stop the rest of the batch.
	if len(expirer.calls) != 2 {
		t.Fatalf("expected both rows attempted, got %d", len(expirer.calls))
	}
}

func TestSessionExpiryJobEmptyBatch(t *testing.T) {
	finder := &fakeSessionFinder{}
	expirer := &fakeExpirer{}

	job, err := NewSessionExpiryJob(SessionExpiryJobParams{
		Logger:   testLogger(),
		Sessions: finder,
		Expirer:  expirer,
	})
	if err != nil {
		t.Fatalf("NewSessionExpiryJob: %v", err)
	}

	if err := job.Run(context.Background()); err != nil {
		t.Fatalf("Run: %v", err)
	}
	if len(expirer.calls) != 0 {
		t.Fatal("nothing to expire on an empty batch")
	}
}

type fakeDepositSource struct {
	deposits []models.Deposit
	rejected map[uuid.UUID]bool
	failOn   map[uuid.UUID]error
	cutoff   time.Time
	calls    []uuid.UUID
}

func (f *fakeDepositSource) StaleSubmittedBefore(ctx context.Context, cutoff time.Time, limit int) ([]models.Deposit, error) {
	f.cutoff = cutoff
	return f.deposits, nil
}

func (f *fakeDepositSource) RejectUnclaimed(ctx context.Context, depositID uuid.UUID) (bool, error) {
	f.calls = append(f.calls, depositID)
	if err, ok := f.failOn[depositID]; ok {
		return false, err
	}
	return f.rejected[depositID], nil
}

func TestDepositTTLJobUsesConfiguredWindow(t *testing.T) {
	fixed := time.Date(2026, 8, 31, 6, 0, 0, 0, time.UTC)
	stale := models.Deposit{ID: uuid.New()}
	receivedMidSweep := models.Deposit{ID: uuid.New()}

	source := &fakeDepositSource{
		deposits: []models.Deposit{stale, receivedMidSweep},
		rejected: map[uuid.UUID]bool{stale.ID: true},
	}

	job, err := NewDepositTTLJob(DepositTTLJobParams{
		Logger:   testLogger(),
		Deposits: source,
		Config:   config.SweeperConfig{DepositTTLDays: 60},
		Now:      func() time.Time { return fixed },
	})
	if err != nil {
		t.Fatalf("NewDepositTTLJob: %v", err)
	}

	if err := job.Run(context.Background()); err != nil {
		t.Fatalf("Run: %v", err)
	}

	wantCutoff := fixed.Add(-60 * 24 * time.Hour)
	if !source.cutoff.Equal(wantCutoff) {
		t.Fatalf("expected cutoff %v, got %v", wantCutoff, source.cutoff)
	}
	if len(source.calls) != 2 {
		t.Fatalf("expected both candidates attempted, got %d", len(source.calls))
	}
}

func TestDepositTTLJobCollectsErrors(t *testing.T) {
	broken := models.Deposit{ID: uuid.New()}
	healthy := models.Deposit{ID: uuid.New()}

	source := &fakeDepositSource{
		deposits: []models.Deposit{broken, healthy},
		rejected: map[uuid.UUID]bool{healthy.ID: true},
		failOn:   map[uuid.UUID]error{broken.ID: errors.New("deadlock")},
	}

	job, err := NewDepositTTLJob(DepositTTLJobParams{
		Logger:   testLogger(),
		Deposits: source,
	})
	if err != nil {
		t.Fatalf("NewDepositTTLJob: %v", err)
	}

	err = job.Run(context.Background())
	if err == nil {
		t.Fatal("expected aggregated error")
	}
	if len(source.calls) != 2 {
		t.Fatalf("expected both rows attempted, got %d", len(source.calls))
	}
}
