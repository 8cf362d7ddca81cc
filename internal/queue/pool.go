package queue

import (
	"context"
	"log/slog"
	"sync"
	"time"
)

type worker struct {
	id         int
	workerPool chan chan *Job
	jobChannel chan *Job
	logger     *slog.Logger
}

func newWorker(id int, workerPool chan chan *Job, logger *slog.Logger) *worker {
	return &worker{
		id:         id,
		workerPool: workerPool,
		jobChannel: make(chan *Job),
		logger:     logger,
	}
}

func (w *worker) start(ctx context.Context, wg *sync.WaitGroup, process func(context.Context, *Job)) {
	wg.Add(1)
	go func() {
		defer wg.Done()

		for {
			select {
			case w.workerPool <- w.jobChannel:
			case <-ctx.Done():
				return
			}

			select {
			case job := <-w.jobChannel:
				w.logger.Debug("worker processing job", "worker_id", w.id, "job_id", job.ID)
				process(ctx, job)
			case <-ctx.Done():
				w.logger.Debug("worker shutting down", "worker_id", w.id)
				return
			}
		}
	}()
}

// pool pulls a job only once a worker is idle, so a busy consumer never holds
// jobs it cannot start.
type pool struct {
	name       string
	fetch      func(ctx context.Context) (*Job, error)
	giveBack   func(ctx context.Context, job *Job)
	process    func(ctx context.Context, job *Job)
	workerPool chan chan *Job
	size       int
	logger     *slog.Logger
}

func (p *pool) start(ctx context.Context, wg *sync.WaitGroup) {
	p.workerPool = make(chan chan *Job, p.size)
	for i := 0; i < p.size; i++ {
		newWorker(i, p.workerPool, p.logger).start(ctx, wg, p.process)
	}

	wg.Add(1)
	go p.dispatch(ctx, wg)

	p.logger.Info("queue consumer started", "queue", p.name, "workers", p.size)
}

func (p *pool) dispatch(ctx context.Context, wg *sync.WaitGroup) {
	defer wg.Done()

	for {
		var jobChannel chan *Job
		select {
		case jobChannel = <-p.workerPool:
		case <-ctx.Done():
			p.logger.Info("dispatcher shutting down", "queue", p.name)
			return
		}

		job := p.next(ctx)
		if job == nil {
			p.logger.Info("dispatcher shutting down", "queue", p.name)
			return
		}

		select {
		case jobChannel <- job:
		case <-ctx.Done():
			p.giveBack(context.WithoutCancel(ctx), job)
			p.logger.Info("dispatcher shutting down", "queue", p.name)
			return
		}
	}
}

// next blocks until a job is available or ctx ends.
func (p *pool) next(ctx context.Context) *Job {
	for {
		job, err := p.fetch(ctx)
		if ctx.Err() != nil {
			if job != nil {
				p.giveBack(context.WithoutCancel(ctx), job)
			}
			return nil
		}
		if err != nil {
			p.logger.Error("failed to fetch job", "queue", p.name, "error", err)
			select {
			case <-time.After(time.Second):
			case <-ctx.Done():
				return nil
			}
			continue
		}
		if job != nil {
			return job
		}
	}
}
