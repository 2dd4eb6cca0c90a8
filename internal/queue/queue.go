// Package queue implements QueueEngine (spec §4.4): a priority queue that
// serializes concurrent generation requests against the single-tenant SD
// engine, one job running at a time, with cancellation, progress polling,
// and panic-safe worker recovery.
//
// Grounded on the teacher pack's agentoven workflow.Engine (background
// execution via a runID→cancel map, async dispatch with defer/recover at
// the top of the run loop) generalized from a DAG-step executor down to a
// flat min-heap of generation jobs.
package queue

import (
	"container/heap"
	"context"
	"encoding/json"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/sdforge/sdforge-gateway/internal/apperr"
	"github.com/sdforge/sdforge-gateway/internal/sdgateway"
	"github.com/sdforge/sdforge-gateway/internal/store"
)

// Job statuses, matching store.JobRecord.Status.
const (
	StatusQueued   = "queued"
	StatusRunning  = "running"
	StatusDone     = "done"
	StatusFailed   = "failed"
	StatusCanceled = "canceled"
)

// Postprocessor runs after a generation succeeds: NSFW censoring and
// UploadRouter delivery (spec §4.4's "on completion runs optional NSFW
// censoring and UploadRouter"). Kept as an injected func so QueueEngine
// doesn't import classifier/upload directly and create a dependency cycle.
type Postprocessor func(ctx context.Context, job *Job, resp *sdgateway.Txt2ImgResponse) ([]string, error)

// Job is one generation request in flight or in history.
type Job struct {
	ID         string
	ContextKey string
	Priority   int
	Request    sdgateway.Txt2ImgRequest
	Status     string
	Progress   float64
	ResultPaths []string
	Err        string
	Created    time.Time
	Started    time.Time
	Finished   time.Time
}

// heapItem is one entry in the min-heap, ordered by (priority desc, created asc)
// so the highest-priority, oldest-enqueued job pops first.
type heapItem struct {
	job   *Job
	index int
}

type jobHeap []*heapItem

func (h jobHeap) Len() int { return len(h) }
func (h jobHeap) Less(i, j int) bool {
	if h[i].job.Priority != h[j].job.Priority {
		return h[i].job.Priority > h[j].job.Priority
	}
	return h[i].job.Created.Before(h[j].job.Created)
}
func (h jobHeap) Swap(i, j int) {
	h[i], h[j] = h[j], h[i]
	h[i].index, h[j].index = i, j
}
func (h *jobHeap) Push(x interface{}) {
	item := x.(*heapItem)
	item.index = len(*h)
	*h = append(*h, item)
}
func (h *jobHeap) Pop() interface{} {
	old := *h
	n := len(old)
	item := old[n-1]
	old[n-1] = nil
	item.index = -1
	*h = old[:n-1]
	return item
}

// Engine is the QueueEngine component.
type Engine struct {
	gateway *sdgateway.Client
	store   store.QueueStore
	post    Postprocessor
	logger  *slog.Logger

	mu       sync.Mutex
	pending  jobHeap
	byID     map[string]*heapItem
	current  *Job
	cancelFn context.CancelFunc

	wake chan struct{}
}

// New creates an Engine. post may be nil, in which case completed jobs
// carry no result paths (useful for tests that only exercise scheduling).
func New(gateway *sdgateway.Client, s store.QueueStore, post Postprocessor, logger *slog.Logger) *Engine {
	if logger == nil {
		logger = slog.Default()
	}
	return &Engine{
		gateway: gateway,
		store:   s,
		post:    post,
		logger:  logger,
		byID:    make(map[string]*heapItem),
		wake:    make(chan struct{}, 1),
	}
}

// Run starts the single background worker and blocks until ctx is canceled.
// Call it in a goroutine from the process's main lifecycle.
func (e *Engine) Run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case <-e.wake:
		case <-time.After(time.Second):
		}
		e.runNext(ctx)
	}
}

// Enqueue adds a new job to the queue and returns its ID.
func (e *Engine) Enqueue(ctx context.Context, contextKey string, req sdgateway.Txt2ImgRequest, priority int) (string, error) {
	job := &Job{
		ID:         uuid.NewString(),
		ContextKey: contextKey,
		Priority:   priority,
		Request:    req,
		Status:     StatusQueued,
		Created:    time.Now(),
	}

	reqBytes, err := json.Marshal(req)
	if err != nil {
		return "", apperr.Wrap(apperr.Internal, "marshal queue job request", err)
	}
	if err := e.store.Insert(ctx, store.JobRecord{
		ID:         job.ID,
		ContextKey: job.ContextKey,
		Priority:   job.Priority,
		Status:     job.Status,
		Request:    reqBytes,
		Created:    job.Created,
	}); err != nil {
		return "", err
	}

	e.mu.Lock()
	item := &heapItem{job: job}
	heap.Push(&e.pending, item)
	e.byID[job.ID] = item
	e.mu.Unlock()

	select {
	case e.wake <- struct{}{}:
	default:
	}
	return job.ID, nil
}

// Get returns a snapshot of a job, queued/running/terminal.
func (e *Engine) Get(job string) (*Job, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.current != nil && e.current.ID == job {
		snap := *e.current
		return &snap, true
	}
	if item, ok := e.byID[job]; ok {
		snap := *item.job
		return &snap, true
	}
	return nil, false
}

// List returns every job the engine currently tracks in memory (queued or
// running), optionally filtered by status.
func (e *Engine) List(statusFilter string) []Job {
	e.mu.Lock()
	defer e.mu.Unlock()

	var out []Job
	if e.current != nil && (statusFilter == "" || e.current.Status == statusFilter) {
		out = append(out, *e.current)
	}
	for _, item := range e.byID {
		if item.index < 0 {
			continue // popped: running (reported above) or terminal
		}
		if statusFilter == "" || item.job.Status == statusFilter {
			out = append(out, *item.job)
		}
	}
	return out
}

// History returns terminal jobs for contextKey, most recent first, from the
// durable store (spec §4.4's "history(limit) returns terminal jobs in
// reverse order up to a retention cap").
func (e *Engine) History(ctx context.Context, contextKey string, limit int) ([]store.JobRecord, error) {
	records, err := e.store.ListByContext(ctx, contextKey, limit)
	if err != nil {
		return nil, err
	}
	terminal := records[:0]
	for _, r := range records {
		switch r.Status {
		case StatusDone, StatusFailed, StatusCanceled:
			terminal = append(terminal, r)
		}
	}
	return terminal, nil
}

// Cancel cancels job: if still queued it's removed before ever running; if
// currently running, the engine interrupts the SD engine and the in-flight
// image (if any) is discarded, matching spec §4.4's invariant (c).
func (e *Engine) Cancel(ctx context.Context, job string) error {
	e.mu.Lock()
	if item, ok := e.byID[job]; ok && item.index >= 0 {
		heap.Remove(&e.pending, item.index)
		item.job.Status = StatusCanceled
		item.job.Finished = time.Now()
		e.mu.Unlock()
		return e.store.UpdateStatus(ctx, job, StatusCanceled, "", nil)
	}
	running := e.current != nil && e.current.ID == job
	cancelFn := e.cancelFn
	e.mu.Unlock()

	if !running {
		return apperr.Newf(apperr.NotFound, "job %q not found", job)
	}
	if cancelFn != nil {
		cancelFn()
	}
	return e.gateway.Interrupt(ctx)
}

// runNext pops the highest-priority job (if any) and drives it to
// completion, recovering from panics so a single bad job can't take the
// worker down permanently (spec §4.4's failure semantics).
func (e *Engine) runNext(parent context.Context) {
	e.mu.Lock()
	if e.pending.Len() == 0 {
		e.mu.Unlock()
		return
	}
	// The popped item stays in byID (index -1) so Get can still report the
	// job after it finishes.
	item := heap.Pop(&e.pending).(*heapItem)
	job := item.job
	job.Status = StatusRunning
	job.Started = time.Now()

	runCtx, cancel := context.WithCancel(parent)
	e.current = job
	e.cancelFn = cancel
	e.mu.Unlock()

	defer func() {
		if r := recover(); r != nil {
			e.logger.Error("queue worker panic recovered", "job_id", job.ID, "panic", r)
			e.finish(runCtx, job, StatusFailed, "worker panic", nil)
		}
		cancel()
		e.mu.Lock()
		e.current = nil
		e.cancelFn = nil
		e.mu.Unlock()
	}()

	_ = e.store.UpdateStatus(parent, job.ID, StatusRunning, "", nil)
	e.execute(runCtx, job)
}

func (e *Engine) execute(ctx context.Context, job *Job) {
	go e.pollProgress(ctx, job)

	resp, err := e.gateway.Txt2Img(ctx, job.Request)
	if err != nil {
		if ctx.Err() != nil {
			e.finish(ctx, job, StatusCanceled, "", nil)
			return
		}
		e.finish(ctx, job, StatusFailed, err.Error(), nil)
		return
	}

	if ctx.Err() != nil {
		// Canceled after the image came back: the result is discarded per
		// spec §4.4 invariant (c).
		e.finish(ctx, job, StatusCanceled, "", nil)
		return
	}

	var paths []string
	if e.post != nil {
		paths, err = e.post(ctx, job, resp)
		if err != nil {
			e.finish(ctx, job, StatusFailed, err.Error(), nil)
			return
		}
	}
	e.finish(ctx, job, StatusDone, "", paths)
}

func (e *Engine) pollProgress(ctx context.Context, job *Job) {
	ticker := time.NewTicker(time.Second)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			p, err := e.gateway.Progress(ctx)
			if err != nil {
				continue
			}
			e.mu.Lock()
			if e.current == job && p.Progress >= job.Progress {
				job.Progress = p.Progress
			}
			e.mu.Unlock()
		}
	}
}

func (e *Engine) finish(ctx context.Context, job *Job, status, errMsg string, paths []string) {
	job.Status = status
	job.Err = errMsg
	job.ResultPaths = paths
	job.Finished = time.Now()
	job.Progress = 1.0
	if err := e.store.UpdateStatus(ctx, job.ID, status, errMsg, paths); err != nil {
		e.logger.Error("persist job terminal status failed", "job_id", job.ID, "error", err)
	}
}
