package rest

import (
	"net/http"
	"time"

	"github.com/frahmantamala/paygate/internal"
	"github.com/frahmantamala/paygate/internal/queue"
	"github.com/frahmantamala/paygate/internal/transport"
)

// JobStatus sums job counts over every queue the worker consumes.
type JobStatus struct {
	Pending      int64  `json:"pending"`
	Processing   int64  `json:"processing"`
	Completed    int64  `json:"completed"`
	Failed       int64  `json:"failed"`
	WorkerStatus string `json:"worker_status"`
}

// PingJob is the payload of a test-queue job.
type PingJob struct {
	Message     string    `json:"message"`
	RequestedAt time.Time `json:"requested_at"`
}

type JobsHandler struct {
	*transport.BaseHandler
	queue queue.Queue
}

func NewJobsHandler(base *transport.BaseHandler, q queue.Queue) *JobsHandler {
	return &JobsHandler{BaseHandler: base, queue: q}
}

func (h *JobsHandler) Status(w http.ResponseWriter, r *http.Request) {
	var total queue.Stats
	for _, name := range queue.Names {
		s, err := h.queue.Stats(r.Context(), name)
		if err != nil {
			h.HandleServiceError(w, internal.NewUnavailableError("Job queue unavailable", err))
			return
		}
		total = total.Add(s)
	}

	h.WriteJSON(w, http.StatusOK, JobStatus{
		Pending:      total.Waiting,
		Processing:   total.Active,
		Completed:    total.Completed,
		Failed:       total.Failed,
		WorkerStatus: "running",
	})
}

func (h *JobsHandler) EnqueuePing(w http.ResponseWriter, r *http.Request) {
	job, err := h.queue.Enqueue(r.Context(), queue.TestJobs, PingJob{Message: "ping", RequestedAt: time.Now().UTC()})
	if err != nil {
		h.HandleServiceError(w, internal.NewUnavailableError("Job queue unavailable", err))
		return
	}
	h.WriteJSON(w, http.StatusAccepted, map[string]string{"job_id": job.ID, "queue": queue.TestJobs})
}
