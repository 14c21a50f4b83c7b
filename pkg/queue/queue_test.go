package queue

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

var (
	echoCalls atomic.Int32
	flakyRuns atomic.Int32
	failRuns  atomic.Int32
)

type (
	echoJob      struct{ Val string }
	flakyJob     struct{}
	failJob      struct{}
	panicJob     struct{}
	unregistered struct{}
)

func (echoJob) JobName() string      { return "echo" }
func (flakyJob) JobName() string     { return "flaky" }
func (failJob) JobName() string      { return "fail" }
func (panicJob) JobName() string     { return "panic" }
func (unregistered) JobName() string { return "nobody" }

func (j *echoJob) Handle(context.Context) error   { echoCalls.Add(1); return nil }
func (j *flakyJob) Handle(context.Context) error  { return j.run() }
func (j *failJob) Handle(context.Context) error   { failRuns.Add(1); return errors.New("always fails") }
func (j *panicJob) Handle(context.Context) error  { panic("boom") }
func (unregistered) Handle(context.Context) error { return nil }

func (j *flakyJob) run() error {
	if flakyRuns.Add(1) < 2 {
		return errors.New("first try fails")
	}
	return nil
}

func newTestManager(t *testing.T) (*Manager, *gorm.DB) {
	t.Helper()
	db, err := gorm.Open(sqlite.Open("file::memory:"), &gorm.Config{Logger: logger.Default.LogMode(logger.Silent)})
	require.NoError(t, err)
	sqlDB, _ := db.DB()
	sqlDB.SetMaxOpenConns(1)
	require.NoError(t, db.AutoMigrate(&FailedJobRecord{}))
	UseDB(db)
	t.Cleanup(func() { UseDB(nil) })

	m := NewManager(NewMemoryDriver())
	m.SetRetry(2, func(int) time.Duration { return 10 * time.Millisecond })
	m.Register("echo", func() Job { return &echoJob{} })
	m.Register("flaky", func() Job { return &flakyJob{} })
	m.Register("fail", func() Job { return &failJob{} })
	m.Register("panic", func() Job { return &panicJob{} })

	ctx, cancel := context.WithCancel(context.Background())
	m.Start(ctx, 2)
	t.Cleanup(func() {
		cancel()
		m.Wait()
	})
	return m, db
}

func failedCount(db *gorm.DB, jobType string) int64 {
	var n int64
	db.Model(&FailedJobRecord{}).Where("job_type = ?", jobType).Count(&n)
	return n
}

func TestDispatchAndProcess(t *testing.T) {
	m, _ := newTestManager(t)
	before := echoCalls.Load()

	require.NoError(t, m.Dispatch(context.Background(), &echoJob{Val: "hello"}))
	assert.Eventually(t, func() bool { return echoCalls.Load() == before+1 }, time.Second, 10*time.Millisecond)
}

func TestRetryThenSucceed(t *testing.T) {
	m, db := newTestManager(t)
	flakyRuns.Store(0)

	require.NoError(t, m.Dispatch(context.Background(), &flakyJob{}))
	assert.Eventually(t, func() bool { return flakyRuns.Load() == 2 }, time.Second, 10*time.Millisecond)
	assert.Zero(t, failedCount(db, "flaky"))
}

func TestExhaustedJobIsPersisted(t *testing.T) {
	m, db := newTestManager(t)
	failRuns.Store(0)

	require.NoError(t, m.Dispatch(context.Background(), &failJob{}))
	assert.Eventually(t, func() bool { return failedCount(db, "fail") == 1 }, 2*time.Second, 20*time.Millisecond)
	assert.Equal(t, int32(2), failRuns.Load())

	recs, err := FailedJobs(context.Background(), 10)
	require.NoError(t, err)
	require.NotEmpty(t, recs)
	assert.Equal(t, "always fails", recs[0].Error)
	assert.Equal(t, 2, recs[0].Attempts)
}

func TestPanickingJobDoesNotKillWorker(t *testing.T) {
	m, db := newTestManager(t)
	before := echoCalls.Load()

	require.NoError(t, m.Dispatch(context.Background(), &panicJob{}))
	require.NoError(t, m.Dispatch(context.Background(), &echoJob{}))

	assert.Eventually(t, func() bool { return echoCalls.Load() == before+1 }, time.Second, 10*time.Millisecond)
	assert.Eventually(t, func() bool { return failedCount(db, "panic") == 1 }, 2*time.Second, 20*time.Millisecond)
}

func TestDispatchUnknownJob(t *testing.T) {
	m := NewManager(NewMemoryDriver())
	err := m.Dispatch(context.Background(), unregistered{})
	assert.ErrorIs(t, err, ErrUnknownJob)
}

func TestDispatchAfter(t *testing.T) {
	m, _ := newTestManager(t)
	before := echoCalls.Load()

	require.NoError(t, m.DispatchAfter(context.Background(), &echoJob{}, 50*time.Millisecond))
	assert.Equal(t, before, echoCalls.Load())
	assert.Eventually(t, func() bool { return echoCalls.Load() == before+1 }, time.Second, 10*time.Millisecond)
}
