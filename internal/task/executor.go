package task

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"math/rand"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/vkalinin/devagent-api/internal/capability"
	"github.com/vkalinin/devagent-api/internal/domain"
	"github.com/vkalinin/devagent-api/internal/store"
)

// Progress bounds for the executor's own writes. Providers report the
// intermediate milestones; the store forces 100 on success.
const (
	milestoneStarted = 10
	milestoneDone    = 100
)

// TaskStore is the slice of the store the executor needs.
type TaskStore interface {
	GetByID(ctx context.Context, id uuid.UUID) (*domain.Task, error)
	UpdateStatus(ctx context.Context, id uuid.UUID, update store.TaskStatusUpdate) (*domain.Task, error)
	FindByStatus(ctx context.Context, status domain.TaskStatus, limit int) ([]*domain.Task, error)
}

// ExecutorConfig holds the tunables for the worker pool and retry policy.
type ExecutorConfig struct {
	// WorkerCount is the number of concurrent workers draining the queue.
	WorkerCount int

	// QueueSize bounds the in-process work queue.
	QueueSize int

	// MaxRetries is the number of additional attempts after the first one
	// fails with a transient error.
	MaxRetries int

	// BackoffBase is the delay before the first retry; subsequent retries
	// double it, jittered to 50-100% of the computed value.
	BackoffBase time.Duration

	// InvokeTimeout bounds a single provider invocation.
	InvokeTimeout time.Duration

	// StuckTaskAge is how long a running task may go without completing
	// before the reconciler re-enqueues it.
	StuckTaskAge time.Duration

	// StuckCheckInterval is how often the reconciler scans for stuck tasks.
	StuckCheckInterval time.Duration
}

func (c *ExecutorConfig) applyDefaults() {
	if c.WorkerCount <= 0 {
		c.WorkerCount = 4
	}
	if c.QueueSize <= 0 {
		c.QueueSize = 256
	}
	if c.MaxRetries < 0 {
		c.MaxRetries = 0
	}
	if c.BackoffBase <= 0 {
		c.BackoffBase = 2 * time.Second
	}
	if c.InvokeTimeout <= 0 {
		c.InvokeTimeout = 5 * time.Minute
	}
	if c.StuckTaskAge <= 0 {
		c.StuckTaskAge = 30 * time.Minute
	}
	if c.StuckCheckInterval <= 0 {
		c.StuckCheckInterval = 5 * time.Minute
	}
}

// Executor drains the work queue with a pool of workers, drives the
// capability provider for each task, and writes every status transition
// through the store's validated update path. Completion is decided by the
// stored status, never by queue position: a duplicate delivery of a task
// that has already left pending is acked and skipped. Only recovery and
// reconciler deliveries may pick a running task back up.
type Executor struct {
	queue    *Queue
	store    TaskStore
	provider capability.Provider
	cfg      ExecutorConfig
	logger   *slog.Logger

	wg     sync.WaitGroup
	cancel context.CancelFunc

	mu       sync.Mutex
	inflight map[uuid.UUID]struct{}
}

// NewExecutor creates an executor. The queue it drains is created here;
// submit work through Enqueue.
func NewExecutor(
	taskStore TaskStore,
	provider capability.Provider,
	cfg ExecutorConfig,
	logger *slog.Logger,
) *Executor {
	if taskStore == nil {
		panic("taskStore cannot be nil")
	}
	if provider == nil {
		panic("provider cannot be nil")
	}
	if logger == nil {
		logger = slog.Default()
	}

	cfg.applyDefaults()

	return &Executor{
		queue:    NewQueue(cfg.QueueSize),
		store:    taskStore,
		provider: provider,
		cfg:      cfg,
		logger:   logger.With(slog.String("component", "task_executor")),
		inflight: make(map[uuid.UUID]struct{}),
	}
}

// Enqueue adds a task to the work queue. Returns ErrQueueFull when the
// executor cannot keep up; callers should surface that as back-pressure.
func (e *Executor) Enqueue(t *domain.Task) error {
	return e.queue.Enqueue(NewWorkItem(t))
}

// Start recovers orphaned tasks from the store, then launches the worker
// pool and the stuck-task reconciler. It returns immediately; use Stop to
// shut the executor down.
func (e *Executor) Start(ctx context.Context) error {
	runCtx, cancel := context.WithCancel(context.WithoutCancel(ctx))
	e.cancel = cancel

	if err := e.Recover(ctx); err != nil {
		cancel()
		return fmt.Errorf("startup recovery failed: %w", err)
	}

	for i := 0; i < e.cfg.WorkerCount; i++ {
		e.wg.Add(1)
		go e.worker(runCtx, i)
	}

	e.wg.Add(1)
	go e.reconcile(runCtx)

	e.logger.Info("task executor started",
		slog.Int("workers", e.cfg.WorkerCount),
		slog.Int("queue_size", e.cfg.QueueSize))
	return nil
}

// Stop shuts the executor down: the queue stops accepting work, workers
// finish their current task, and Stop blocks until all of them exit.
func (e *Executor) Stop() {
	e.queue.Close()
	if e.cancel != nil {
		e.cancel()
	}
	e.wg.Wait()
	e.logger.Info("task executor stopped")
}

// Recover re-enqueues tasks the previous process left behind: every pending
// task, and every running task (in flight when the process died). Running
// tasks keep their status; the execution path accepts them and resets their
// progress.
func (e *Executor) Recover(ctx context.Context) error {
	recovered := 0
	for _, status := range []domain.TaskStatus{domain.TaskStatusPending, domain.TaskStatusRunning} {
		tasks, err := e.store.FindByStatus(ctx, status, e.cfg.QueueSize)
		if err != nil {
			return fmt.Errorf("failed to find %s tasks: %w", status, err)
		}
		for _, t := range tasks {
			if err := e.queue.Enqueue(NewRequeueItem(t)); err != nil {
				e.logger.Warn("failed to re-enqueue task during recovery",
					slog.String("task_id", t.ID.String()),
					slog.String("error", err.Error()))
				continue
			}
			recovered++
		}
	}

	if recovered > 0 {
		e.logger.Info("recovered orphaned tasks", slog.Int("count", recovered))
	}
	return nil
}

func (e *Executor) worker(ctx context.Context, id int) {
	defer e.wg.Done()

	log := e.logger.With(slog.Int("worker", id))
	for {
		delivery, err := e.queue.Dequeue(ctx)
		if err != nil {
			if errors.Is(err, ErrQueueClosed) || errors.Is(err, context.Canceled) {
				return
			}
			log.Error("dequeue failed", slog.String("error", err.Error()))
			return
		}

		e.processDelivery(ctx, delivery)
	}
}

// reconcile periodically re-enqueues running tasks that have been in flight
// longer than StuckTaskAge and are not being processed by this instance.
func (e *Executor) reconcile(ctx context.Context) {
	defer e.wg.Done()

	ticker := time.NewTicker(e.cfg.StuckCheckInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}

		tasks, err := e.store.FindByStatus(ctx, domain.TaskStatusRunning, e.cfg.QueueSize)
		if err != nil {
			e.logger.Warn("stuck-task scan failed", slog.String("error", err.Error()))
			continue
		}

		cutoff := time.Now().UTC().Add(-e.cfg.StuckTaskAge)
		for _, t := range tasks {
			if t.StartedAt == nil || t.StartedAt.After(cutoff) {
				continue
			}
			if e.isInflight(t.ID) {
				continue
			}

			e.logger.Warn("re-enqueueing stuck task",
				slog.String("task_id", t.ID.String()),
				slog.Time("started_at", *t.StartedAt))
			if err := e.queue.Enqueue(NewRequeueItem(t)); err != nil {
				e.logger.Warn("failed to re-enqueue stuck task",
					slog.String("task_id", t.ID.String()),
					slog.String("error", err.Error()))
			}
		}
	}
}

// processDelivery runs one work item to a terminal state, or acks and skips
// it when the stored task no longer needs work. Transient provider failures
// retry in place with exponential backoff; the delivery is only nacked when
// the store itself is unreachable, so the item survives for a later attempt.
func (e *Executor) processDelivery(ctx context.Context, delivery *Delivery) {
	item := delivery.Item
	log := e.logger.With(slog.String("task_id", item.TaskID.String()))

	// One execution per task per process. A second delivery arriving while
	// the task is in flight here would race the claim below and run the
	// provider twice.
	if !e.markInflight(item.TaskID) {
		log.Debug("task already in flight, skipping duplicate delivery")
		delivery.Ack()
		return
	}
	defer e.clearInflight(item.TaskID)

	// The store decides whether this delivery still matters.
	current, err := e.store.GetByID(ctx, item.TaskID)
	if err != nil {
		if store.IsNotFoundError(err) {
			log.Warn("dequeued task no longer exists")
			delivery.Ack()
			return
		}
		log.Error("failed to load task on dequeue", slog.String("error", err.Error()))
		delivery.Nack()
		return
	}

	if current.Status.IsTerminal() {
		log.Debug("skipping delivery for finished task",
			slog.String("status", string(current.Status)))
		delivery.Ack()
		return
	}

	// A fresh delivery expects a pending task; anything else means the
	// task was already picked up, likely by another instance. Recovery and
	// reconciler items are the only ones allowed to re-claim a running row.
	if current.Status != domain.TaskStatusPending && !item.Requeue {
		log.Debug("skipping duplicate delivery for in-flight task",
			slog.String("status", string(current.Status)))
		delivery.Ack()
		return
	}

	// Claim the task. For a fresh pending task this sets started_at; for a
	// recovered running task it resets progress to the starting milestone.
	startProgress := milestoneStarted
	if _, err := e.store.UpdateStatus(ctx, item.TaskID, store.TaskStatusUpdate{
		Status:   domain.TaskStatusRunning,
		Progress: &startProgress,
	}); err != nil {
		if errors.Is(err, domain.ErrIllegalTransition) {
			// Finished or cancelled between the read and the claim.
			log.Debug("task claimed elsewhere, skipping")
			delivery.Ack()
			return
		}
		log.Error("failed to claim task", slog.String("error", err.Error()))
		delivery.Nack()
		return
	}

	log.Info("task execution started", slog.String("capability", string(item.Capability)))

	if err := e.runAttempts(ctx, item, log); err != nil {
		// Terminal write failed; redeliver so the failure is not silent.
		delivery.Nack()
		return
	}
	delivery.Ack()
}

// runAttempts drives the provider with the retry policy and writes the
// terminal state. It returns an error only when the terminal store write
// itself failed; capability failures are absorbed into the failed status.
func (e *Executor) runAttempts(ctx context.Context, item WorkItem, log *slog.Logger) error {
	var lastErr error

	// The first attempt starts from the claim's progress write; retries
	// start from the reset value below.
	floor := milestoneStarted

	for attempt := 0; ; attempt++ {
		result, err := e.invoke(ctx, item, floor)
		if err == nil {
			return e.finish(ctx, item.TaskID, log, store.TaskStatusUpdate{
				Status: domain.TaskStatusSucceeded,
				Result: result,
			})
		}

		lastErr = err

		if !capability.IsTransient(err) {
			log.Warn("task failed permanently",
				slog.String("error", err.Error()),
				slog.Int("attempt", attempt+1))
			return e.fail(ctx, item.TaskID, log, err)
		}

		if attempt >= e.cfg.MaxRetries {
			log.Warn("task failed after exhausting retries",
				slog.String("error", err.Error()),
				slog.Int("attempts", attempt+1))
			return e.fail(ctx, item.TaskID, log,
				fmt.Errorf("retries exhausted after %d attempts: %w", attempt+1, lastErr))
		}

		// Reset visible progress before retrying so pollers see the task
		// starting over rather than frozen mid-attempt.
		zero := 0
		if _, uerr := e.store.UpdateStatus(ctx, item.TaskID, store.TaskStatusUpdate{
			Status:   domain.TaskStatusRunning,
			Progress: &zero,
		}); uerr != nil {
			if errors.Is(uerr, domain.ErrIllegalTransition) {
				// Cancelled while we were failing; nothing more to do.
				log.Info("task cancelled during retry, abandoning")
				return nil
			}
			log.Warn("failed to reset progress before retry", slog.String("error", uerr.Error()))
		}
		floor = 0

		delay := e.backoff(attempt)
		log.Info("retrying task after transient failure",
			slog.String("error", err.Error()),
			slog.Int("attempt", attempt+1),
			slog.Duration("backoff", delay))

		select {
		case <-ctx.Done():
			// Shutdown mid-retry; leave the task running for recovery.
			return nil
		case <-time.After(delay):
		}
	}
}

// invoke runs a single bounded provider attempt, streaming progress
// milestones into the store as the provider reports them. floor is the
// progress value already written for this attempt; reports below it are
// dropped so progress stays monotone within the attempt.
func (e *Executor) invoke(ctx context.Context, item WorkItem, floor int) (result []byte, err error) {
	attemptCtx, cancel := context.WithTimeout(ctx, e.cfg.InvokeTimeout)
	defer cancel()

	lastProgress := floor
	reporter := capability.ReporterFunc(func(ctx context.Context, progress int) {
		// Progress only moves forward within an attempt.
		if progress <= lastProgress || progress >= milestoneDone {
			return
		}
		lastProgress = progress
		if _, err := e.store.UpdateStatus(ctx, item.TaskID, store.TaskStatusUpdate{
			Status:   domain.TaskStatusRunning,
			Progress: &progress,
		}); err != nil {
			e.logger.Debug("progress update dropped",
				slog.String("task_id", item.TaskID.String()),
				slog.String("error", err.Error()))
		}
	})

	return e.provider.Invoke(
		capability.WithReporter(attemptCtx, reporter),
		item.Capability,
		item.Context,
	)
}

func (e *Executor) finish(
	ctx context.Context,
	taskID uuid.UUID,
	log *slog.Logger,
	update store.TaskStatusUpdate,
) error {
	if _, err := e.store.UpdateStatus(ctx, taskID, update); err != nil {
		if errors.Is(err, domain.ErrIllegalTransition) {
			// Cancelled while the attempt was running; the cancel wins.
			log.Info("task reached terminal state elsewhere, dropping outcome",
				slog.String("outcome", string(update.Status)))
			return nil
		}
		log.Error("failed to write terminal task state",
			slog.String("outcome", string(update.Status)),
			slog.String("error", err.Error()))
		return err
	}

	log.Info("task finished", slog.String("status", string(update.Status)))
	return nil
}

func (e *Executor) fail(ctx context.Context, taskID uuid.UUID, log *slog.Logger, cause error) error {
	msg := cause.Error()
	return e.finish(ctx, taskID, log, store.TaskStatusUpdate{
		Status: domain.TaskStatusFailed,
		Error:  &msg,
	})
}

// backoff computes the delay before retry attempt+1: BackoffBase doubled per
// attempt, jittered to 50-100% so synchronized retries spread out.
func (e *Executor) backoff(attempt int) time.Duration {
	base := float64(e.cfg.BackoffBase) * math.Pow(2, float64(attempt))
	jitter := 0.5 + rand.Float64()*0.5
	return time.Duration(base * jitter)
}

// markInflight reserves the task for this delivery. Returns false when
// another worker in this process already holds it.
func (e *Executor) markInflight(id uuid.UUID) bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	if _, ok := e.inflight[id]; ok {
		return false
	}
	e.inflight[id] = struct{}{}
	return true
}

func (e *Executor) clearInflight(id uuid.UUID) {
	e.mu.Lock()
	defer e.mu.Unlock()
	delete(e.inflight, id)
}

func (e *Executor) isInflight(id uuid.UUID) bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	_, ok := e.inflight[id]
	return ok
}
