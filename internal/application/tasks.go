package application

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/bnema/forum-agent/internal/domain"
	"github.com/bnema/forum-agent/internal/logging"
	"github.com/bnema/forum-agent/internal/ports"
	"github.com/google/uuid"
)

var ErrRegistryClosing = errors.New("task registry is shutting down")

type taskHandle struct {
	info   domain.TaskInfo
	cancel context.CancelFunc
}

// TaskRegistry tracks every background goroutine so shutdown can cancel and
// wait for all of them. A task is in the table before its goroutine starts and
// leaves it exactly once when the goroutine returns.
type TaskRegistry struct {
	mu         sync.Mutex
	base       context.Context
	cancelBase context.CancelFunc
	tasks      map[string]*taskHandle
	closing    bool
	wg         sync.WaitGroup

	clock   ports.Clock
	logger  logging.Logger
	metrics ports.Metrics
	onError func(name string, err error)
}

var _ ports.Spawner = (*TaskRegistry)(nil)

func NewTaskRegistry(clock ports.Clock, logger logging.Logger, metrics ports.Metrics) *TaskRegistry {
	if clock == nil {
		clock = ports.SystemClock{}
	}
	if logger == nil {
		logger = logging.Discard()
	}
	if metrics == nil {
		metrics = ports.NopMetrics{}
	}

	base, cancel := context.WithCancel(context.Background())
	return &TaskRegistry{
		base:       base,
		cancelBase: cancel,
		tasks:      make(map[string]*taskHandle),
		clock:      clock,
		logger:     logger,
		metrics:    metrics,
	}
}

// OnError registers a callback for tasks that fail outside of cancellation.
func (r *TaskRegistry) OnError(fn func(name string, err error)) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.onError = fn
}

func (r *TaskRegistry) Spawn(name string, kind domain.TaskKind, fn func(ctx context.Context) error) (string, error) {
	r.mu.Lock()
	if r.closing {
		r.mu.Unlock()
		return "", ErrRegistryClosing
	}

	ctx, cancel := context.WithCancel(r.base)
	handle := &taskHandle{
		info: domain.TaskInfo{
			ID:        uuid.NewString(),
			Name:      name,
			Kind:      kind,
			StartedAt: r.clock.Now(),
		},
		cancel: cancel,
	}
	r.tasks[handle.info.ID] = handle
	r.wg.Add(1)
	r.mu.Unlock()

	r.metrics.TaskStarted(string(kind))
	go r.run(ctx, handle, fn)

	return handle.info.ID, nil
}

func (r *TaskRegistry) run(ctx context.Context, handle *taskHandle, fn func(ctx context.Context) error) {
	defer r.wg.Done()
	defer r.remove(handle)

	err := invoke(ctx, fn)
	fields := logging.Fields{"task": handle.info.Name, "kind": handle.info.Kind, "task_id": handle.info.ID}

	switch {
	case err == nil:
		r.metrics.TaskFinished(string(handle.info.Kind), "ok")
	case ctx.Err() != nil || errors.Is(err, context.Canceled):
		r.metrics.TaskFinished(string(handle.info.Kind), "cancelled")
		r.logger.WithFields(fields).WithError(err).Debug("task ended during cancellation")
	default:
		r.metrics.TaskFinished(string(handle.info.Kind), "error")
		r.logger.WithFields(fields).WithError(err).Warn("task failed")

		r.mu.Lock()
		onError := r.onError
		r.mu.Unlock()
		if onError != nil {
			onError(handle.info.Name, err)
		}
	}
}

func invoke(ctx context.Context, fn func(ctx context.Context) error) (err error) {
	defer func() {
		if recovered := recover(); recovered != nil {
			err = fmt.Errorf("task panicked: %v", recovered)
		}
	}()
	return fn(ctx)
}

func (r *TaskRegistry) remove(handle *taskHandle) {
	handle.cancel()

	r.mu.Lock()
	defer r.mu.Unlock()

	delete(r.tasks, handle.info.ID)
}

// Running lists live tasks, oldest first.
func (r *TaskRegistry) Running() []domain.TaskInfo {
	r.mu.Lock()
	defer r.mu.Unlock()

	out := make([]domain.TaskInfo, 0, len(r.tasks))
	for _, handle := range r.tasks {
		out = append(out, handle.info)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].StartedAt.Equal(out[j].StartedAt) {
			return out[i].Name < out[j].Name
		}
		return out[i].StartedAt.Before(out[j].StartedAt)
	})
	return out
}

func (r *TaskRegistry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()

	return len(r.tasks)
}

// Shutdown cancels every task and waits until all of them returned or ctx
// expires. Afterwards the registry accepts new tasks again.
func (r *TaskRegistry) Shutdown(ctx context.Context) error {
	r.mu.Lock()
	r.closing = true
	r.cancelBase()
	r.mu.Unlock()

	done := make(chan struct{})
	go func() {
		r.wg.Wait()
		close(done)
	}()

	var err error
	select {
	case <-done:
	case <-ctx.Done():
		err = fmt.Errorf("wait for tasks: %w", ctx.Err())
	}

	r.mu.Lock()
	r.base, r.cancelBase = context.WithCancel(context.Background())
	r.closing = false
	r.mu.Unlock()

	return err
}

// Job is a handle on a one-shot background job.
type Job struct {
	ID   string
	done chan struct{}
	err  error
}

func newJob() *Job {
	return &Job{done: make(chan struct{})}
}

func (j *Job) finish(err error) {
	j.err = err
	close(j.done)
}

// track wraps fn so the job completes exactly once, even when fn panics.
func (j *Job) track(fn func(ctx context.Context) error) func(ctx context.Context) error {
	return func(ctx context.Context) (err error) {
		defer func() {
			if recovered := recover(); recovered != nil {
				err = fmt.Errorf("task panicked: %v", recovered)
			}
			j.finish(err)
		}()
		return fn(ctx)
	}
}

func (j *Job) Done() <-chan struct{} {
	return j.done
}

func (j *Job) Wait(ctx context.Context) error {
	select {
	case <-j.done:
		return j.err
	case <-ctx.Done():
		return ctx.Err()
	}
}

// PostJob additionally carries the structured outcome of a post cycle.
type PostJob struct {
	*Job
	result domain.PostResult
}

func (j *PostJob) Wait(ctx context.Context) (domain.PostResult, error) {
	if err := j.Job.Wait(ctx); err != nil {
		if ctx.Err() != nil {
			return domain.PostResult{}, err
		}
		if j.result.Status == "" {
			return domain.Failed(err.Error()), err
		}
		return j.result, err
	}
	return j.result, nil
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}

	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
