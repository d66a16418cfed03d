package scheduler

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/robfig/cron/v3"
	"go.uber.org/zap"
)

const (
	// DefaultSpec runs often enough to hit every hour bucket more than once.
	DefaultSpec = "@every 15m"

	defaultLeaseTTL = 10 * time.Minute
	tickLeaseKey    = "scheduler:tick"
)

// ErrLeaseHeld is returned by RunOnce when another instance owns the tick.
var ErrLeaseHeld = errors.New("scheduler: tick lease held by another instance")

// Leaser grants a short exclusive lease across instances.
type Leaser interface {
	AcquireLease(ctx context.Context, key string, ttl time.Duration) (bool, error)
	LeaseHolder(ctx context.Context, key string) (string, error)
}

// Runner drives Scheduler.Tick on a cron cadence.
type Runner struct {
	sched    *Scheduler
	spec     string
	leaser   Leaser
	leaseTTL time.Duration
	now      func() time.Time
	log      *zap.Logger

	mu     sync.Mutex
	cron   *cron.Cron
	cancel context.CancelFunc
	first  sync.WaitGroup
}

// RunnerOption customises the Runner.
type RunnerOption func(*Runner)

// WithSpec overrides the cron cadence.
func WithSpec(spec string) RunnerOption {
	return func(r *Runner) {
		if spec != "" {
			r.spec = spec
		}
	}
}

// WithLeaser makes ticks single-writer across instances. ttl should be a bit
// shorter than the tick interval.
func WithLeaser(l Leaser, ttl time.Duration) RunnerOption {
	return func(r *Runner) {
		r.leaser = l
		if ttl > 0 {
			r.leaseTTL = ttl
		}
	}
}

// WithNow overrides the clock.
func WithNow(now func() time.Time) RunnerOption {
	return func(r *Runner) {
		if now != nil {
			r.now = now
		}
	}
}

// WithRunnerLogger sets the logger.
func WithRunnerLogger(l *zap.Logger) RunnerOption {
	return func(r *Runner) {
		if l != nil {
			r.log = l
		}
	}
}

func NewRunner(s *Scheduler, opts ...RunnerOption) *Runner {
	r := &Runner{
		sched:    s,
		spec:     DefaultSpec,
		leaseTTL: defaultLeaseTTL,
		now:      time.Now,
		log:      zap.NewNop(),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Start schedules ticks until Stop. The first tick runs immediately.
func (r *Runner) Start(ctx context.Context) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.cron != nil {
		return nil
	}

	runCtx, cancel := context.WithCancel(ctx)
	logger := cronLogger{r.log.Sugar()}
	c := cron.New(cron.WithLogger(logger))

	// The immediate run shares the wrapper so it cannot overlap a cron run.
	job := cron.NewChain(cron.Recover(logger), cron.SkipIfStillRunning(logger)).
		Then(cron.FuncJob(func() { _, _ = r.RunOnce(runCtx) }))
	if _, err := c.AddJob(r.spec, job); err != nil {
		cancel()
		return err
	}

	r.cron = c
	r.cancel = cancel
	c.Start()
	r.first.Add(1)
	go func() {
		defer r.first.Done()
		job.Run()
	}()

	r.log.Info("notification scheduler started", zap.String("spec", r.spec))
	return nil
}

// Stop cancels in-flight work and waits for the running tick to return.
func (r *Runner) Stop() {
	r.mu.Lock()
	c, cancel := r.cron, r.cancel
	r.cron, r.cancel = nil, nil
	r.mu.Unlock()

	if c == nil {
		return
	}
	cancel()
	<-c.Stop().Done()
	r.first.Wait()
	r.log.Info("notification scheduler stopped")
}

// RunOnce performs a single tick, taking the lease first when one is configured.
func (r *Runner) RunOnce(ctx context.Context) (TickSummary, error) {
	now := r.now().UTC()

	if r.leaser != nil {
		ok, err := r.leaser.AcquireLease(ctx, tickLeaseKey, r.leaseTTL)
		if err != nil {
			ticksTotal.WithLabelValues("error").Inc()
			r.log.Warn("acquire tick lease failed", zap.Error(err))
			return TickSummary{}, err
		}
		if !ok {
			ticksTotal.WithLabelValues("lease_held").Inc()
			holder, _ := r.leaser.LeaseHolder(ctx, tickLeaseKey)
			r.log.Debug("tick lease held elsewhere, skipping", zap.String("holder", holder))
			return TickSummary{}, ErrLeaseHeld
		}
	}

	start := time.Now()
	summary, err := r.sched.Tick(ctx, now)
	fields := []zap.Field{
		zap.Int("users", summary.Users),
		zap.Int("dispatched", summary.Dispatched),
		zap.Int("skipped", summary.Skipped),
		zap.Int("failed", summary.Failed),
		zap.Duration("took", time.Since(start)),
	}
	if err != nil {
		ticksTotal.WithLabelValues("error").Inc()
		r.log.Warn("scheduler tick aborted", append(fields, zap.Error(err))...)
		return summary, err
	}
	ticksTotal.WithLabelValues("ok").Inc()
	r.log.Info("scheduler tick complete", fields...)
	return summary, nil
}

type cronLogger struct {
	s *zap.SugaredLogger
}

func (l cronLogger) Info(msg string, keysAndValues ...interface{}) {
	l.s.Debugw(msg, keysAndValues...)
}

func (l cronLogger) Error(err error, msg string, keysAndValues ...interface{}) {
	l.s.Errorw(msg, append(keysAndValues, "error", err)...)
}
