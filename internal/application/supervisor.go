package application

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/failsafe-go/failsafe-go"

	"github.com/bnema/forum-agent/internal/domain"
	"github.com/bnema/forum-agent/internal/logging"
	"github.com/bnema/forum-agent/internal/ports"
)

const (
	TaskIngest     = "ingest"
	TaskBrowseLoop = "browse_loop"
	TaskPostLoop   = "post_loop"
	TaskBrowseOnce = "browse_once"
	TaskPostOnce   = "post_once"
)

type SupervisorConfig struct {
	RealtimeEnabled  bool
	BrowseEnabled    bool
	PostingEnabled   bool
	ReconnectInitial time.Duration
	ReconnectMax     time.Duration
	BrowseInterval   time.Duration
	BrowseDelay      time.Duration
	PostInterval     time.Duration
	PostDelay        time.Duration
}

type SupervisorDeps struct {
	Stream    ports.EventStream
	Router    *Router
	Responder ports.Responder
	Forum     io.Closer
	Session   *Session
	Registry  *TaskRegistry
	Journal   ports.Journal
	Clock     ports.Clock
	Logger    logging.Logger
	Metrics   ports.Metrics
}

// Supervisor owns the long-lived loops and the one-shot jobs triggered by an
// operator. Every goroutine it starts goes through the task registry.
type Supervisor struct {
	cfg SupervisorConfig

	stream    ports.EventStream
	router    *Router
	responder ports.Responder
	forum     io.Closer
	session   *Session
	registry  *TaskRegistry
	journal   ports.Journal
	clock     ports.Clock
	logger    logging.Logger
	metrics   ports.Metrics

	mu      sync.Mutex
	running bool
}

func NewSupervisor(cfg SupervisorConfig, deps SupervisorDeps) *Supervisor {
	if deps.Clock == nil {
		deps.Clock = ports.SystemClock{}
	}
	if deps.Logger == nil {
		deps.Logger = logging.Discard()
	}
	if deps.Metrics == nil {
		deps.Metrics = ports.NopMetrics{}
	}
	if deps.Session == nil {
		deps.Session = NewSession(deps.Clock)
	}
	if deps.Registry == nil {
		deps.Registry = NewTaskRegistry(deps.Clock, deps.Logger, deps.Metrics)
	}
	cfg.ReconnectInitial, cfg.ReconnectMax = reconnectBounds(cfg.ReconnectInitial, cfg.ReconnectMax)
	if cfg.BrowseInterval <= 0 {
		cfg.BrowseInterval = time.Hour
	}
	if cfg.PostInterval <= 0 {
		cfg.PostInterval = 6 * time.Hour
	}

	s := &Supervisor{
		cfg:       cfg,
		stream:    deps.Stream,
		router:    deps.Router,
		responder: deps.Responder,
		forum:     deps.Forum,
		session:   deps.Session,
		registry:  deps.Registry,
		journal:   deps.Journal,
		clock:     deps.Clock,
		logger:    deps.Logger,
		metrics:   deps.Metrics,
	}
	s.registry.OnError(func(name string, err error) {
		s.session.RecordError(fmt.Sprintf("%s: %v", name, err))
	})
	return s
}

// Start launches the enabled loops. Calling it while running is a no-op.
func (s *Supervisor) Start(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.running {
		return nil
	}

	var errs []error
	if s.cfg.RealtimeEnabled && s.stream != nil && s.router != nil {
		errs = append(errs, s.spawnLoop(TaskIngest, s.ingestLoop))
	}
	if s.cfg.BrowseEnabled {
		errs = append(errs, s.spawnLoop(TaskBrowseLoop, func(ctx context.Context) error {
			return s.periodic(ctx, TaskBrowseLoop, s.cfg.BrowseDelay, s.cfg.BrowseInterval, s.session.SetNextBrowse, s.runBrowse)
		}))
	}
	if s.cfg.PostingEnabled {
		errs = append(errs, s.spawnLoop(TaskPostLoop, func(ctx context.Context) error {
			return s.periodic(ctx, TaskPostLoop, s.cfg.PostDelay, s.cfg.PostInterval, s.session.SetNextPost, func(ctx context.Context) error {
				_, err := s.runPost(ctx, false)
				return err
			})
		}))
	}

	if err := errors.Join(errs...); err != nil {
		return fmt.Errorf("start supervisor: %w", err)
	}
	s.running = true
	s.logger.WithFields(logging.Fields{
		"realtime": s.cfg.RealtimeEnabled,
		"browse":   s.cfg.BrowseEnabled,
		"posting":  s.cfg.PostingEnabled,
	}).Info("supervisor started")
	return nil
}

func (s *Supervisor) spawnLoop(name string, fn func(ctx context.Context) error) error {
	_, err := s.registry.Spawn(name, domain.TaskKindLoop, fn)
	return err
}

// ingestLoop keeps one event stream connection alive, backing off between
// sessions that delivered nothing. It only returns on cancellation.
func (s *Supervisor) ingestLoop(ctx context.Context) error {
	executor := failsafe.With[int](newReconnectPolicy(s.cfg.ReconnectInitial, s.cfg.ReconnectMax, s.logReconnect))

	for {
		_, _ = executor.WithContext(ctx).GetWithExecution(func(exec failsafe.Execution[int]) (int, error) {
			return s.streamSession(exec.Context())
		})
		if err := ctx.Err(); err != nil {
			return err
		}

		s.logReconnect(s.cfg.ReconnectInitial)
		if err := sleepCtx(ctx, s.cfg.ReconnectInitial); err != nil {
			return err
		}
	}
}

// streamSession runs one connection until it ends and records the
// disconnect. It reports how many events the session delivered.
func (s *Supervisor) streamSession(ctx context.Context) (int, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}

	s.session.ConnectAttempt()
	s.metrics.StreamConnectAttempt()

	delivered, err := s.stream.Stream(ctx, s.router.Handle)
	if ctx.Err() != nil {
		return delivered, ctx.Err()
	}
	if err != nil {
		s.session.RecordError(err.Error())
		s.logger.WithError(err).Warn("event stream ended")
	}

	s.session.Reconnect()
	s.metrics.StreamReconnect(s.session.Snapshot().LastDisconnectReason)
	return delivered, err
}

func (s *Supervisor) logReconnect(delay time.Duration) {
	s.logger.WithFields(logging.Fields{
		"reason": s.session.Snapshot().LastDisconnectReason,
		"delay":  delay.String(),
	}).Info("reconnecting event stream")
}

// periodic waits out the initial delay, then runs unit forever with interval
// pauses, publishing the next run time before each unit.
func (s *Supervisor) periodic(
	ctx context.Context,
	name string,
	delay, interval time.Duration,
	publish func(time.Time),
	unit func(ctx context.Context) error,
) error {
	publish(s.clock.Now().Add(delay))
	if err := sleepCtx(ctx, delay); err != nil {
		return err
	}

	for {
		publish(s.clock.Now().Add(interval))
		if err := s.runUnit(ctx, name, unit); err != nil {
			return err
		}

		publish(s.clock.Now().Add(interval))
		if err := sleepCtx(ctx, interval); err != nil {
			return err
		}
	}
}

// runUnit contains a failing or panicking unit so the loop survives it. Only
// cancellation is returned.
func (s *Supervisor) runUnit(ctx context.Context, name string, unit func(ctx context.Context) error) error {
	err := invoke(ctx, unit)
	if ctx.Err() != nil {
		return ctx.Err()
	}
	if err != nil {
		s.session.RecordError(err.Error())
		s.logger.WithError(err).WithField("task", name).Warn("loop iteration failed")
	}
	return nil
}

func (s *Supervisor) runBrowse(ctx context.Context) error {
	return s.responder.RunBrowseCycle(ctx)
}

func (s *Supervisor) runPost(ctx context.Context, force bool) (domain.PostResult, error) {
	result, err := s.responder.RunPostCycle(ctx, force)
	if err != nil {
		return result, err
	}

	s.metrics.PostCycle(string(result.Status))
	fields := logging.Fields{
		"status":   result.Status,
		"reason":   result.Reason,
		"force":    force,
		"dry_run":  result.DryRun,
		"category": result.Category,
	}
	if result.ContentID != nil {
		fields["content_id"] = *result.ContentID
	}
	s.logger.WithFields(fields).Info("post cycle finished")
	return result, nil
}

// TriggerBrowse runs one browse cycle as a tracked job.
func (s *Supervisor) TriggerBrowse() (*Job, error) {
	job := newJob()
	id, err := s.registry.Spawn(TaskBrowseOnce, domain.TaskKindJob, job.track(s.runBrowse))
	if err != nil {
		return nil, fmt.Errorf("trigger browse: %w", err)
	}
	job.ID = id
	return job, nil
}

// TriggerPost runs one post cycle as a tracked job. With force the enabled
// flag and the probability gate are bypassed; rate limits still apply.
func (s *Supervisor) TriggerPost(force bool) (*PostJob, error) {
	job := &PostJob{Job: newJob()}
	id, err := s.registry.Spawn(TaskPostOnce, domain.TaskKindJob, job.track(func(ctx context.Context) (err error) {
		job.result, err = s.runPost(ctx, force)
		return err
	}))
	if err != nil {
		return nil, fmt.Errorf("trigger post: %w", err)
	}
	job.ID = id
	return job, nil
}

// Stop cancels every task and waits for them, then releases the stream and
// forum connections. It is safe to call more than once.
func (s *Supervisor) Stop(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	waitErr := s.registry.Shutdown(ctx)
	s.session.MarkStopped()

	if s.stream != nil {
		if err := s.stream.Close(); err != nil {
			s.logger.WithError(err).Debug("close event stream")
		}
	}
	if s.forum != nil {
		if err := s.forum.Close(); err != nil {
			s.logger.WithError(err).Debug("close forum client")
		}
	}

	if s.running {
		s.running = false
		s.logger.Info("supervisor stopped")
	}
	return waitErr
}

func (s *Supervisor) Running() bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.running
}

func (s *Supervisor) Session() *Session {
	return s.session
}

// Snapshot is the read-only diagnostics view.
func (s *Supervisor) Snapshot(ctx context.Context) domain.Diagnostics {
	diag := s.session.Snapshot()
	diag.Tasks = s.registry.Running()
	diag.PostingEnabled = s.cfg.PostingEnabled

	if s.journal != nil {
		if n, err := s.journal.Len(ctx); err == nil {
			diag.JournalItems = n
		}
	}
	return diag
}
