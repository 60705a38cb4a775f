package httpapi

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"

	"wplace_overlay/internal/stats"
)

var errJobNotFound = errors.New("batch job not found")

// JobStatus is the lifecycle state of a batch job.
type JobStatus string

const (
	JobRunning JobStatus = "running"
	JobDone    JobStatus = "done"
	JobFailed  JobStatus = "failed"
)

// JobView is the JSON form of a batch job.
type JobView struct {
	ID         string        `json:"id"`
	Layer      string        `json:"layer"`
	Status     JobStatus     `json:"status"`
	StartedAt  time.Time     `json:"started_at"`
	FinishedAt *time.Time    `json:"finished_at,omitempty"`
	Report     *stats.Report `json:"report,omitempty"`
	Error      string        `json:"error,omitempty"`
}

type job struct {
	mu   sync.Mutex
	view JobView
}

func (j *job) snapshot() JobView {
	j.mu.Lock()
	defer j.mu.Unlock()
	return j.view
}

type batchFunc func(ctx context.Context, layerKey string) (stats.Report, error)

// jobRegistry keeps the most recent batch jobs in memory.
type jobRegistry struct {
	mu    sync.Mutex
	jobs  map[string]*job
	order []string
	limit int
}

func newJobRegistry() *jobRegistry {
	return &jobRegistry{jobs: make(map[string]*job), limit: 64}
}

func (r *jobRegistry) start(ctx context.Context, layer string, run batchFunc) *job {
	j := &job{view: JobView{
		ID:        uuid.NewString(),
		Layer:     layer,
		Status:    JobRunning,
		StartedAt: time.Now(),
	}}

	r.mu.Lock()
	r.jobs[j.view.ID] = j
	r.order = append(r.order, j.view.ID)
	for len(r.order) > r.limit {
		delete(r.jobs, r.order[0])
		r.order = r.order[1:]
	}
	r.mu.Unlock()

	go func() {
		rep, err := run(ctx, layer)
		now := time.Now()
		j.mu.Lock()
		defer j.mu.Unlock()
		j.view.FinishedAt = &now
		if err != nil {
			j.view.Status = JobFailed
			j.view.Error = err.Error()
			return
		}
		j.view.Status = JobDone
		j.view.Report = &rep
	}()
	return j
}

func (r *jobRegistry) get(id string) (*job, error) {
	if _, err := uuid.Parse(id); err != nil {
		return nil, badRequest("job id must be a UUID")
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	j, ok := r.jobs[id]
	if !ok {
		return nil, errJobNotFound
	}
	return j, nil
}
