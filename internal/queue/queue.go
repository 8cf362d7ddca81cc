// Package queue is the durable job queue shared by the API (producer) and the
// worker (consumer). Delivery is at-least-once: a job is removed only after
// its handler returns, and handlers must tolerate duplicates.
package queue

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// Queue names.
const (
	PaymentSettlement = "payment-processing-queue"
	RefundSettlement  = "refund-processing-queue"
	WebhookDelivery   = "webhook-delivery-queue"
	TestJobs          = "test-queue"
)

// Names lists every queue the worker consumes.
var Names = []string{PaymentSettlement, RefundSettlement, WebhookDelivery, TestJobs}

var (
	ErrClosed    = errors.New("queue closed")
	ErrQueueFull = errors.New("queue full")
)

type Job struct {
	ID         string          `json:"id"`
	Queue      string          `json:"queue"`
	Payload    json.RawMessage `json:"payload"`
	Attempts   int             `json:"attempts"`
	EnqueuedAt time.Time       `json:"enqueued_at"`

	raw string
}

// NewJob wraps payload into a job addressed to the named queue.
func NewJob(name string, payload interface{}) (*Job, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("encode job payload: %w", err)
	}
	return &Job{
		ID:         uuid.NewString(),
		Queue:      name,
		Payload:    data,
		EnqueuedAt: time.Now().UTC(),
	}, nil
}

func (j *Job) Decode(v interface{}) error {
	if err := json.Unmarshal(j.Payload, v); err != nil {
		return Permanent(fmt.Errorf("decode job %s: %w", j.ID, err))
	}
	return nil
}

type Handler func(ctx context.Context, job *Job) error

type Stats struct {
	Waiting   int64 `json:"waiting" yaml:"waiting"`
	Active    int64 `json:"active" yaml:"active"`
	Completed int64 `json:"completed" yaml:"completed"`
	Failed    int64 `json:"failed" yaml:"failed"`
}

func (s Stats) Add(o Stats) Stats {
	return Stats{
		Waiting:   s.Waiting + o.Waiting,
		Active:    s.Active + o.Active,
		Completed: s.Completed + o.Completed,
		Failed:    s.Failed + o.Failed,
	}
}

// Queue is implemented by the Redis and in-memory backends.
type Queue interface {
	Enqueue(ctx context.Context, name string, payload interface{}) (*Job, error)
	// Consume starts concurrency workers for the named queue. They run until Close.
	Consume(name string, concurrency int, handler Handler) error
	Stats(ctx context.Context, name string) (Stats, error)
	Close() error
}

type permanentError struct {
	err error
}

func (e *permanentError) Error() string { return e.err.Error() }
func (e *permanentError) Unwrap() error { return e.err }

// Permanent marks a handler error that must not be retried.
func Permanent(err error) error {
	if err == nil {
		return nil
	}
	return &permanentError{err: err}
}

func IsPermanent(err error) bool {
	var pe *permanentError
	return errors.As(err, &pe)
}
