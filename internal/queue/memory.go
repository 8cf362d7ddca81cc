package queue

import (
	"context"
	"sync"
	"time"
)

// MemoryQueue is a process-local queue for development and tests. Jobs do not
// survive a restart.
type MemoryQueue struct {
	*engine
}

var _ Queue = (*MemoryQueue)(nil)

func NewMemoryQueue(capacity int, opts Options) *MemoryQueue {
	if capacity <= 0 {
		capacity = 100
	}
	opts.applyDefaults()
	b := &memoryBackend{
		capacity:     capacity,
		blockTimeout: opts.BlockTimeout,
		lists:        make(map[string]*memoryList),
	}
	return &MemoryQueue{engine: newEngine(b, opts)}
}

type memoryList struct {
	jobs      chan *Job
	active    int64
	completed int64
	failed    int64
}

type memoryBackend struct {
	mu           sync.Mutex
	capacity     int
	blockTimeout time.Duration
	lists        map[string]*memoryList
}

func (b *memoryBackend) list(name string) *memoryList {
	b.mu.Lock()
	defer b.mu.Unlock()

	l, ok := b.lists[name]
	if !ok {
		l = &memoryList{jobs: make(chan *Job, b.capacity)}
		b.lists[name] = l
	}
	return l
}

func (b *memoryBackend) push(_ context.Context, name string, job *Job) error {
	select {
	case b.list(name).jobs <- job:
		return nil
	default:
		return ErrQueueFull
	}
}

func (b *memoryBackend) fetch(ctx context.Context, name string) (*Job, error) {
	l := b.list(name)
	timer := time.NewTimer(b.blockTimeout)
	defer timer.Stop()

	select {
	case job := <-l.jobs:
		b.mu.Lock()
		l.active++
		b.mu.Unlock()
		return job, nil
	case <-timer.C:
		return nil, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

func (b *memoryBackend) ack(_ context.Context, name string, _ *Job) error {
	l := b.list(name)
	b.mu.Lock()
	l.active--
	l.completed++
	b.mu.Unlock()
	return nil
}

func (b *memoryBackend) requeue(ctx context.Context, name string, job *Job) error {
	l := b.list(name)
	b.mu.Lock()
	l.active--
	b.mu.Unlock()

	if err := b.push(ctx, name, job); err != nil {
		b.mu.Lock()
		l.failed++
		b.mu.Unlock()
		return err
	}
	return nil
}

func (b *memoryBackend) bury(_ context.Context, name string, _ *Job, _ error) error {
	l := b.list(name)
	b.mu.Lock()
	l.active--
	l.failed++
	b.mu.Unlock()
	return nil
}

func (b *memoryBackend) stats(_ context.Context, name string) (Stats, error) {
	l := b.list(name)
	b.mu.Lock()
	defer b.mu.Unlock()
	return Stats{
		Waiting:   int64(len(l.jobs)),
		Active:    l.active,
		Completed: l.completed,
		Failed:    l.failed,
	}, nil
}
