// Package queue runs background jobs for Darcho: notification fan-out, mail
// and anything else that must not hold up an HTTP request.
//
//	type NotifyJob struct{ UserID uint }
//	func (NotifyJob) JobName() string                        { return "notify" }
//	func (j *NotifyJob) Handle(ctx context.Context) error    { ... }
//
//	queue.Register("notify", func() queue.Job { return &NotifyJob{} })
//	queue.Dispatch(ctx, &NotifyJob{UserID: 1})
//	queue.Start(ctx, config.QueueWorkers())
package queue

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/darcho/darcho/pkg/logger"
	"github.com/darcho/darcho/pkg/metrics"
)

// Job is the interface every queued job satisfies.
type Job interface {
	Handle(ctx context.Context) error
}

// Named lets a job pick its registry name. Jobs without it use their Go type.
type Named interface {
	JobName() string
}

// Driver is the queue storage backend.
type Driver interface {
	Push(ctx context.Context, payload []byte) error
	PushDelayed(ctx context.Context, payload []byte, delay time.Duration) error
	// Pop blocks until a payload is ready. A nil payload with nil error means
	// the poll timed out.
	Pop(ctx context.Context) ([]byte, error)
	Name() string
}

// ErrUnknownJob is returned by Dispatch for jobs that were never registered.
var ErrUnknownJob = errors.New("queue: job type not registered")

type envelope struct {
	ID       string          `json:"id"`
	Type     string          `json:"type"`
	Payload  json.RawMessage `json:"payload"`
	Attempts int             `json:"attempts"`
}

// Manager owns a driver, the job registry and the worker pool.
type Manager struct {
	mu       sync.RWMutex
	driver   Driver
	registry map[string]func() Job
	maxTries int
	backoff  func(attempt int) time.Duration
	timeout  time.Duration
	wg       sync.WaitGroup
}

// NewManager creates a Manager on d with three tries and linear backoff.
func NewManager(d Driver) *Manager {
	return &Manager{
		driver:   d,
		registry: map[string]func() Job{},
		maxTries: 3,
		backoff:  func(attempt int) time.Duration { return time.Duration(attempt) * 5 * time.Second },
		timeout:  time.Minute,
	}
}

var defaultManager = NewManager(NewMemoryDriver())

// Default returns the process-wide manager.
func Default() *Manager { return defaultManager }

// SetDriver swaps the driver of the default manager (e.g. to Redis).
func SetDriver(d Driver) { defaultManager.SetDriver(d) }

// Register adds a job type to the default manager.
func Register(name string, factory func() Job) { defaultManager.Register(name, factory) }

// Dispatch queues job on the default manager.
func Dispatch(ctx context.Context, job Job) error { return defaultManager.Dispatch(ctx, job) }

// DispatchAfter queues job on the default manager once delay has passed.
func DispatchAfter(ctx context.Context, job Job, delay time.Duration) error {
	return defaultManager.DispatchAfter(ctx, job, delay)
}

// Start launches n workers on the default manager.
func Start(ctx context.Context, n int) { defaultManager.Start(ctx, n) }

// Wait blocks until the default manager's workers have returned.
func Wait() { defaultManager.Wait() }

func (m *Manager) SetDriver(d Driver) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.driver = d
}

// SetRetry sets the attempt limit and the delay before each retry.
func (m *Manager) SetRetry(maxTries int, backoff func(attempt int) time.Duration) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.maxTries = maxTries
	m.backoff = backoff
}

func (m *Manager) Register(name string, factory func() Job) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.registry[name] = factory
}

func (m *Manager) currentDriver() Driver {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.driver
}

func jobName(job Job) string {
	if n, ok := job.(Named); ok {
		return n.JobName()
	}
	return fmt.Sprintf("%T", job)
}

func (m *Manager) encode(job Job) ([]byte, string, error) {
	name := jobName(job)
	m.mu.RLock()
	_, ok := m.registry[name]
	m.mu.RUnlock()
	if !ok {
		return nil, name, fmt.Errorf("%w: %s", ErrUnknownJob, name)
	}

	payload, err := json.Marshal(job)
	if err != nil {
		return nil, name, fmt.Errorf("queue: marshal job %s: %w", name, err)
	}
	raw, err := json.Marshal(envelope{ID: uuid.NewString(), Type: name, Payload: payload})
	if err != nil {
		return nil, name, fmt.Errorf("queue: marshal envelope: %w", err)
	}
	return raw, name, nil
}

func (m *Manager) Dispatch(ctx context.Context, job Job) error {
	raw, _, err := m.encode(job)
	if err != nil {
		return err
	}
	return m.currentDriver().Push(ctx, raw)
}

func (m *Manager) DispatchAfter(ctx context.Context, job Job, delay time.Duration) error {
	raw, _, err := m.encode(job)
	if err != nil {
		return err
	}
	return m.currentDriver().PushDelayed(ctx, raw, delay)
}

// ─── Workers ─────────────────────────────────────────────────────────────────

// Start launches n workers that run until ctx is cancelled.
func (m *Manager) Start(ctx context.Context, n int) {
	if n < 1 {
		n = 1
	}
	for i := 0; i < n; i++ {
		m.wg.Add(1)
		go m.work(ctx)
	}
	logger.Info("queue: workers started", "count", n, "driver", m.currentDriver().Name())
}

// Wait blocks until every worker has returned.
func (m *Manager) Wait() { m.wg.Wait() }

func (m *Manager) work(ctx context.Context) {
	defer m.wg.Done()
	for {
		raw, err := m.currentDriver().Pop(ctx)
		if ctx.Err() != nil {
			return
		}
		if err != nil {
			logger.Warn("queue: pop failed", "error", err)
			select {
			case <-ctx.Done():
				return
			case <-time.After(500 * time.Millisecond):
			}
			continue
		}
		if raw == nil {
			continue
		}
		m.process(ctx, raw)
	}
}

// process runs one payload. A failure is pushed back with backoff until the
// attempt limit, then recorded as failed.
func (m *Manager) process(ctx context.Context, raw []byte) {
	var env envelope
	if err := json.Unmarshal(raw, &env); err != nil {
		logger.Error("queue: bad envelope", "error", err)
		return
	}

	m.mu.RLock()
	factory, ok := m.registry[env.Type]
	maxTries, backoff, timeout := m.maxTries, m.backoff, m.timeout
	m.mu.RUnlock()

	if !ok {
		logger.Warn("queue: unregistered job type", "type", env.Type)
		persistFailed(ctx, env, ErrUnknownJob)
		return
	}

	job := factory()
	if err := json.Unmarshal(env.Payload, job); err != nil {
		logger.Error("queue: unmarshal payload", "type", env.Type, "error", err)
		persistFailed(ctx, env, err)
		return
	}

	env.Attempts++
	start := time.Now()
	err := runSafely(ctx, job, timeout)
	if err == nil {
		metrics.RecordQueueJob(env.Type, "ok", start)
		logger.Debug("queue: job processed", "type", env.Type, "id", env.ID)
		return
	}

	if env.Attempts < maxTries {
		metrics.RecordQueueJob(env.Type, "retry", start)
		logger.Warn("queue: job failed, retrying",
			"type", env.Type, "id", env.ID, "attempt", env.Attempts, "error", err)
		again, _ := json.Marshal(env)
		if perr := m.currentDriver().PushDelayed(ctx, again, backoff(env.Attempts)); perr != nil {
			logger.Error("queue: requeue failed", "type", env.Type, "error", perr)
			persistFailed(ctx, env, err)
		}
		return
	}

	metrics.RecordQueueJob(env.Type, "failed", start)
	logger.Error("queue: job exhausted retries", "type", env.Type, "id", env.ID, "error", err)
	persistFailed(ctx, env, err)
}

func runSafely(ctx context.Context, job Job, timeout time.Duration) (err error) {
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), timeout)
	defer cancel()
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("queue: job panicked: %v", r)
		}
	}()
	return job.Handle(ctx)
}
