// Package schedule runs recurring maintenance tasks such as expiring stale
// pending orders.
//
//	schedule.Every(15).Minutes().Name("orders:expire-pending").WithoutOverlapping().Run(task)
//	schedule.Cron("0 3 * * *").Name("nightly").Run(task)
//
//	schedule.Start(ctx)          // inside `darcho serve`
//	schedule.RunNow(ctx, "")     // `darcho schedule:run`
package schedule

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/darcho/darcho/pkg/logger"
)

// Task is one unit of scheduled work.
type Task func(ctx context.Context) error

type entry struct {
	id        string
	interval  time.Duration
	cronExpr  string
	task      Task
	noOverlap bool

	mu      sync.Mutex
	lastRun time.Time
	running bool
}

// Schedule is a fluent builder for one entry.
type Schedule struct {
	e *entry
}

// Info describes a registered entry for schedule:list output.
type Info struct {
	Name      string
	Frequency string
	LastRun   time.Time
}

var (
	regMu   sync.Mutex
	entries []*entry
	wg      sync.WaitGroup
)

// ErrUnknownTask is returned by RunNow for a name nobody registered.
var ErrUnknownTask = errors.New("schedule: unknown task")

func EveryMinute() *Schedule             { return Every(1).Minutes() }
func Every(n int) *freqBuilder           { return &freqBuilder{n: n} }
func Hourly() *Schedule                  { return Every(1).Hours() }
func Daily() *Schedule                   { return Every(24).Hours() }
func Cron(expr string) *Schedule         { return &Schedule{e: &entry{cronExpr: expr}} }
func interval(d time.Duration) *Schedule { return &Schedule{e: &entry{interval: d}} }

type freqBuilder struct{ n int }

func (f *freqBuilder) Seconds() *Schedule { return interval(time.Duration(f.n) * time.Second) }
func (f *freqBuilder) Minutes() *Schedule { return interval(time.Duration(f.n) * time.Minute) }
func (f *freqBuilder) Hours() *Schedule   { return interval(time.Duration(f.n) * time.Hour) }

// WithoutOverlapping skips a run while the previous one is still going.
func (s *Schedule) WithoutOverlapping() *Schedule {
	s.e.noOverlap = true
	return s
}

// Name sets the identifier used in logs and by RunNow.
func (s *Schedule) Name(id string) *Schedule {
	s.e.id = id
	return s
}

// Run registers the task.
func (s *Schedule) Run(fn Task) {
	s.e.task = fn
	regMu.Lock()
	defer regMu.Unlock()
	if s.e.id == "" {
		s.e.id = fmt.Sprintf("task-%d", len(entries)+1)
	}
	entries = append(entries, s.e)
}

func snapshot() []*entry {
	regMu.Lock()
	defer regMu.Unlock()
	return append([]*entry(nil), entries...)
}

// Start dispatches due tasks every second until ctx is cancelled. Interval
// tasks run once right away.
func Start(ctx context.Context) {
	wg.Add(1)
	go func() {
		defer wg.Done()
		loop(ctx)
	}()
	logger.Info("schedule: scheduler started", "tasks", len(snapshot()))
}

// Wait blocks until the loop and any running tasks have returned.
func Wait() { wg.Wait() }

func loop(ctx context.Context) {
	ticker := time.NewTicker(time.Second)
	defer ticker.Stop()

	lastMinute := -1
	for {
		select {
		case <-ctx.Done():
			logger.Info("schedule: scheduler stopped")
			return
		case now := <-ticker.C:
			newMinute := now.Minute() != lastMinute
			lastMinute = now.Minute()
			for _, e := range snapshot() {
				if isDue(e, now, newMinute) {
					dispatch(ctx, e)
				}
			}
		}
	}
}

func isDue(e *entry, now time.Time, newMinute bool) bool {
	if e.cronExpr != "" {
		return newMinute && matchCron(e.cronExpr, now)
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.lastRun.IsZero() || now.Sub(e.lastRun) >= e.interval
}

func dispatch(ctx context.Context, e *entry) {
	if !e.begin() {
		logger.Warn("schedule: skipping overlapping task", "id", e.id)
		return
	}
	wg.Add(1)
	go func() {
		defer wg.Done()
		_ = e.execute(ctx)
	}()
}

func (e *entry) begin() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.noOverlap && e.running {
		return false
	}
	e.running = true
	e.lastRun = time.Now()
	return true
}

func (e *entry) execute(ctx context.Context) (err error) {
	start := time.Now()
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("schedule: task %s panicked: %v", e.id, r)
		}
		e.mu.Lock()
		e.running = false
		e.mu.Unlock()
		if err != nil {
			logger.Error("schedule: task failed", "id", e.id, "error", err)
			return
		}
		logger.Info("schedule: task done", "id", e.id, "duration", time.Since(start).String())
	}()
	return e.task(ctx)
}

// RunNow runs the named task, or every task when name is "", synchronously.
func RunNow(ctx context.Context, name string) error {
	var errs []error
	found := false
	for _, e := range snapshot() {
		if name != "" && e.id != name {
			continue
		}
		found = true
		if !e.begin() {
			continue
		}
		if err := e.execute(ctx); err != nil {
			errs = append(errs, err)
		}
	}
	if !found && name != "" {
		return fmt.Errorf("%w: %s", ErrUnknownTask, name)
	}
	return errors.Join(errs...)
}

// List returns every registered entry.
func List() []Info {
	out := make([]Info, 0)
	for _, e := range snapshot() {
		freq := e.cronExpr
		if freq == "" {
			freq = "every " + e.interval.String()
		}
		e.mu.Lock()
		out = append(out, Info{Name: e.id, Frequency: freq, LastRun: e.lastRun})
		e.mu.Unlock()
	}
	return out
}

// Flush removes every entry. Tests use it between cases.
func Flush() {
	regMu.Lock()
	defer regMu.Unlock()
	entries = nil
}

// ─── 5-field cron: minute hour dom month dow ─────────────────────────────────
// Each field is *, n, */step, a-b or a comma list of those.

func matchCron(expr string, t time.Time) bool {
	fields := strings.Fields(expr)
	if len(fields) != 5 {
		return false
	}
	vals := []int{t.Minute(), t.Hour(), t.Day(), int(t.Month()), int(t.Weekday())}
	for i, f := range fields {
		if !matchField(f, vals[i]) {
			return false
		}
	}
	return true
}

func matchField(field string, val int) bool {
	for _, part := range strings.Split(field, ",") {
		if matchPart(part, val) {
			return true
		}
	}
	return false
}

func matchPart(part string, val int) bool {
	switch {
	case part == "*":
		return true
	case strings.HasPrefix(part, "*/"):
		step, err := strconv.Atoi(part[2:])
		return err == nil && step > 0 && val%step == 0
	case strings.Contains(part, "-"):
		lo, hi, ok := strings.Cut(part, "-")
		if !ok {
			return false
		}
		a, err1 := strconv.Atoi(lo)
		b, err2 := strconv.Atoi(hi)
		return err1 == nil && err2 == nil && val >= a && val <= b
	default:
		n, err := strconv.Atoi(part)
		return err == nil && n == val
	}
}
