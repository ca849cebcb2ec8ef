package store

import (
	"context"
	"errors"
	"testing"
	"time"

	"payout-reconciler/core/reconcile"
	"payout-reconciler/feature/simulated"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLease_AcquireRelease(t *testing.T) {
	s := setupStore(t)
	ctx := context.Background()
	l := s.Lease(RunLease)
	l.now = func() time.Time { return testNow }

	ok, err := l.Acquire(ctx, "daemon", time.Minute)
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = l.Acquire(ctx, "cli", time.Minute)
	require.NoError(t, err)
	assert.False(t, ok, "a live lease is not handed to another holder")

	ok, err = l.Acquire(ctx, "daemon", time.Minute)
	require.NoError(t, err)
	assert.True(t, ok, "the holder extends its own lease")

	require.NoError(t, l.Release(ctx, "cli"), "releasing a lease you do not hold is a no-op")
	ok, err = l.Acquire(ctx, "cli", time.Minute)
	require.NoError(t, err)
	assert.False(t, ok)

	require.NoError(t, l.Release(ctx, "daemon"))
	ok, err = l.Acquire(ctx, "cli", time.Minute)
	require.NoError(t, err)
	assert.True(t, ok)

	var count int64
	require.NoError(t, s.DB().Model(&LeaseRecord{}).Count(&count).Error)
	assert.Equal(t, int64(1), count)
}

func TestLease_ExpiredLeaseIsTakenOver(t *testing.T) {
	s := setupStore(t)
	ctx := context.Background()
	l := s.Lease(RunLease)
	l.now = func() time.Time { return testNow }

	ok, err := l.Acquire(ctx, "crashed", time.Minute)
	require.NoError(t, err)
	require.True(t, ok)

	l.now = func() time.Time { return testNow.Add(2 * time.Minute) }
	ok, err = l.Acquire(ctx, "daemon", time.Minute)
	require.NoError(t, err)
	assert.True(t, ok)

	var rec LeaseRecord
	require.NoError(t, s.DB().First(&rec, "name = ?", RunLease).Error)
	assert.Equal(t, "daemon", rec.Holder)
}

func TestLease_NamesAreIndependent(t *testing.T) {
	s := setupStore(t)
	ctx := context.Background()

	ok, err := s.Lease("a").Acquire(ctx, "one", time.Minute)
	require.NoError(t, err)
	assert.True(t, ok)
	ok, err = s.Lease("b").Acquire(ctx, "two", time.Minute)
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestLease_DatabaseErrorsArePersistenceFailures(t *testing.T) {
	db, mock := setupMockDB(t)
	l := New(db).Lease(RunLease)

	mock.ExpectBegin()
	mock.ExpectExec("INSERT INTO `run_locks`").WillReturnError(errors.New("read only"))
	mock.ExpectRollback()
	_, err := l.Acquire(context.Background(), "daemon", time.Minute)
	assert.ErrorIs(t, err, reconcile.ErrPersistence)

	assert.NoError(t, mock.ExpectationsWereMet())
}

// blockingSource holds the first page until release is closed.
type blockingSource struct {
	started chan struct{}
	release chan struct{}
}

func (b *blockingSource) FetchPage(ctx context.Context, _ string) (reconcile.Page, error) {
	close(b.started)
	select {
	case <-b.release:
		return reconcile.Page{}, nil
	case <-ctx.Done():
		return reconcile.Page{}, ctx.Err()
	}
}

func TestEnginesSharingAStoreDoNotOverlap(t *testing.T) {
	s := setupStore(t)
	cfg := reconcile.DefaultConfig()
	cfg.RunDeadline = 0

	rule, err := reconcile.NewReferenceRule(cfg.ReferenceTemplate, "")
	require.NoError(t, err)
	dataset, err := simulated.NewDataset(simulated.Config{Payouts: 5, Seed: 3, PageSize: 5, MaxBatchSize: 30}, rule, testNow)
	require.NoError(t, err)

	source := &blockingSource{started: make(chan struct{}), release: make(chan struct{})}
	daemon, err := reconcile.NewEngine(cfg, reconcile.Dependencies{Source: source, Ledger: dataset, Store: s, Lease: s.Lease(RunLease)})
	require.NoError(t, err)
	cli, err := reconcile.NewEngine(cfg, reconcile.Dependencies{Source: dataset, Ledger: dataset, Store: s, Lease: s.Lease(RunLease)})
	require.NoError(t, err)

	done := make(chan error, 1)
	go func() {
		_, err := daemon.Run(context.Background())
		done <- err
	}()
	<-source.started

	_, err = cli.Run(context.Background())
	assert.ErrorIs(t, err, reconcile.ErrRunInProgress)
	_, err = cli.Prune(context.Background())
	assert.ErrorIs(t, err, reconcile.ErrRunInProgress)
	assert.False(t, cli.Running())

	close(source.release)
	require.NoError(t, <-done)

	summary, err := cli.Run(context.Background())
	require.NoError(t, err, "the lease is released when the run ends")
	assert.Equal(t, 5, summary.Processed)
}
