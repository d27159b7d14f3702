package retry

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"
)

const maxTaskDelay = 30 * time.Second

// Task is a unit of deferred work executed by the queue's workers.
type Task interface {
	ID() string
	Type() string
	Execute(ctx context.Context) error
}

type envelope struct {
	task     Task
	attempts int
}

// Queue runs tasks on a bounded worker pool and reschedules transient
// failures with exponential delay via timers instead of sleeping a worker.
type Queue struct {
	policy      Policy
	logger      zerolog.Logger
	workerCount int
	taskTimeout time.Duration

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
	tasks  chan envelope

	timerMu sync.Mutex
	timers  map[*time.Timer]struct{}
}

func NewQueue(workerCount int, policy Policy, logger zerolog.Logger) *Queue {
	if workerCount < 1 {
		workerCount = 1
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Queue{
		policy:      policy,
		logger:      logger,
		workerCount: workerCount,
		taskTimeout: 5 * time.Minute,
		ctx:         ctx,
		cancel:      cancel,
		tasks:       make(chan envelope, 300),
		timers:      map[*time.Timer]struct{}{},
	}
}

func (q *Queue) Start() {
	for i := 0; i < q.workerCount; i++ {
		q.wg.Add(1)
		go q.worker(i)
	}
}

func (q *Queue) Stop() {
	q.cancel()
	q.timerMu.Lock()
	for timer := range q.timers {
		timer.Stop()
	}
	q.timers = map[*time.Timer]struct{}{}
	q.timerMu.Unlock()
	q.wg.Wait()
}

func (q *Queue) Enqueue(task Task) error {
	if task == nil {
		return fmt.Errorf("task is nil")
	}
	return q.enqueue(envelope{task: task})
}

func (q *Queue) enqueue(env envelope) error {
	select {
	case q.tasks <- env:
		return nil
	case <-q.ctx.Done():
		return q.ctx.Err()
	default:
		return fmt.Errorf("task queue is full")
	}
}

func (q *Queue) worker(id int) {
	defer q.wg.Done()

	for {
		select {
		case env := <-q.tasks:
			q.execute(id, env)
		case <-q.ctx.Done():
			return
		}
	}
}

func (q *Queue) execute(workerID int, env envelope) {
	taskCtx, cancel := context.WithTimeout(q.ctx, q.taskTimeout)
	defer cancel()

	err := env.task.Execute(taskCtx)
	if err == nil {
		return
	}

	q.logger.Error().
		Err(err).
		Int("worker_id", workerID).
		Str("type", env.task.Type()).
		Str("id", env.task.ID()).
		Int("attempt", env.attempts+1).
		Msg("task execution failed")

	if IsPermanent(err) || env.attempts+1 >= q.policy.MaxAttempts {
		q.logger.Warn().
			Str("type", env.task.Type()).
			Str("id", env.task.ID()).
			Msg("task dropped after final attempt")
		return
	}

	delay := q.policy.Delay(env.attempts)
	if delay > maxTaskDelay {
		delay = maxTaskDelay
	}
	next := envelope{task: env.task, attempts: env.attempts + 1}

	q.timerMu.Lock()
	var timer *time.Timer
	timer = time.AfterFunc(delay, func() {
		q.timerMu.Lock()
		delete(q.timers, timer)
		q.timerMu.Unlock()
		if err := q.enqueue(next); err != nil {
			q.logger.Warn().
				Err(err).
				Str("type", next.task.Type()).
				Str("id", next.task.ID()).
				Msg("failed to reschedule task")
		}
	})
	q.timers[timer] = struct{}{}
	q.timerMu.Unlock()
}
