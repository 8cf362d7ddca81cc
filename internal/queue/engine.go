package queue

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/frahmantamala/paygate/internal/metrics"
	"github.com/frahmantamala/paygate/pkg/logger"
)

type Options struct {
	// MaxAttempts is how many times a failing job runs before it is dead-lettered.
	MaxAttempts int
	// BlockTimeout bounds one idle fetch.
	BlockTimeout time.Duration
	Logger       *slog.Logger
}

func (o *Options) applyDefaults() {
	if o.MaxAttempts <= 0 {
		o.MaxAttempts = 3
	}
	if o.BlockTimeout <= 0 {
		o.BlockTimeout = time.Second
	}
	if o.Logger == nil {
		o.Logger = logger.LoggerWrapper()
	}
}

type backend interface {
	push(ctx context.Context, name string, job *Job) error
	// fetch returns nil, nil when nothing arrived within the block timeout.
	fetch(ctx context.Context, name string) (*Job, error)
	ack(ctx context.Context, name string, job *Job) error
	requeue(ctx context.Context, name string, job *Job) error
	bury(ctx context.Context, name string, job *Job, cause error) error
	stats(ctx context.Context, name string) (Stats, error)
}

// engine runs worker pools over a backend.
type engine struct {
	backend backend
	opts    Options
	logger  *slog.Logger

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
	mu     sync.Mutex
	closed bool
	once   sync.Once
}

func newEngine(b backend, opts Options) *engine {
	opts.applyDefaults()
	ctx, cancel := context.WithCancel(context.Background())
	return &engine{
		backend: b,
		opts:    opts,
		logger:  opts.Logger,
		ctx:     ctx,
		cancel:  cancel,
	}
}

func (e *engine) Enqueue(ctx context.Context, name string, payload interface{}) (*Job, error) {
	job, err := NewJob(name, payload)
	if err != nil {
		return nil, err
	}
	if err := e.backend.push(ctx, name, job); err != nil {
		return nil, fmt.Errorf("enqueue %s: %w", name, err)
	}
	e.logger.Debug("job enqueued", "queue", name, "job_id", job.ID)
	return job, nil
}

func (e *engine) Consume(name string, concurrency int, handler Handler) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.closed {
		return ErrClosed
	}
	if concurrency <= 0 {
		concurrency = 1
	}

	p := &pool{
		name:  name,
		size:  concurrency,
		fetch: func(ctx context.Context) (*Job, error) { return e.backend.fetch(ctx, name) },
		giveBack: func(ctx context.Context, job *Job) {
			if err := e.backend.requeue(ctx, name, job); err != nil {
				e.logger.Error("failed to return job to queue", "queue", name, "job_id", job.ID, "error", err)
			}
		},
		process: func(ctx context.Context, job *Job) { e.process(ctx, name, handler, job) },
		logger:  e.logger,
	}
	p.start(e.ctx, &e.wg)
	return nil
}

func (e *engine) Stats(ctx context.Context, name string) (Stats, error) {
	return e.backend.stats(ctx, name)
}

// Close stops all consumers and waits for in-flight handlers.
func (e *engine) Close() error {
	e.once.Do(func() {
		e.mu.Lock()
		e.closed = true
		e.mu.Unlock()

		e.logger.Info("shutting down queue consumers")
		e.cancel()
		e.wg.Wait()
		e.logger.Info("queue consumers stopped")
	})
	return nil
}

func (e *engine) process(ctx context.Context, name string, handler Handler, job *Job) {
	err := runHandler(ctx, handler, job)
	bctx := context.WithoutCancel(ctx)

	if err != nil && ctx.Err() != nil && errors.Is(err, context.Canceled) {
		// Interrupted by shutdown; the attempt does not count.
		if rerr := e.backend.requeue(bctx, name, job); rerr != nil {
			e.logger.Error("failed to requeue interrupted job", "queue", name, "job_id", job.ID, "error", rerr)
		}
		return
	}

	job.Attempts++
	switch {
	case err == nil:
		if aerr := e.backend.ack(bctx, name, job); aerr != nil {
			e.logger.Error("failed to acknowledge job", "queue", name, "job_id", job.ID, "error", aerr)
		}
		metrics.QueueJobsTotal.WithLabelValues(name, "completed").Inc()

	case IsPermanent(err) || job.Attempts >= e.opts.MaxAttempts:
		e.logger.Error("job failed permanently",
			"queue", name,
			"job_id", job.ID,
			"attempts", job.Attempts,
			"error", err)
		if berr := e.backend.bury(bctx, name, job, err); berr != nil {
			e.logger.Error("failed to dead-letter job", "queue", name, "job_id", job.ID, "error", berr)
		}
		metrics.QueueJobsTotal.WithLabelValues(name, "failed").Inc()

	default:
		e.logger.Warn("job failed, requeueing",
			"queue", name,
			"job_id", job.ID,
			"attempts", job.Attempts,
			"error", err)
		if rerr := e.backend.requeue(bctx, name, job); rerr != nil {
			e.logger.Error("failed to requeue job", "queue", name, "job_id", job.ID, "error", rerr)
		}
		metrics.QueueJobsTotal.WithLabelValues(name, "retried").Inc()
	}
}

func runHandler(ctx context.Context, handler Handler, job *Job) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("handler panic: %v", r)
		}
	}()
	return handler(ctx, job)
}
