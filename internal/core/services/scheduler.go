package services

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/lookout/backend/internal/core/ports"
	"github.com/lookout/backend/internal/infrastructure/logger"
)

type SchedulerConfig struct {
	// TickInterval is how often the due-scan runs.
	TickInterval time.Duration
	// Workers is the number of goroutines driving executions.
	Workers int
	// QueueSize bounds the dispatch queue; a full queue drops the firing
	// to the next tick instead of backing up the scanner.
	QueueSize int
}

func (c *SchedulerConfig) applyDefaults() {
	if c.TickInterval <= 0 {
		c.TickInterval = 15 * time.Second
	}
	if c.Workers <= 0 {
		c.Workers = 4
	}
	if c.QueueSize <= 0 {
		c.QueueSize = 64
	}
}

// Scheduler periodically scans the schedule store for due tasks and
// hands them to a worker pool. Executions for different tasks interleave
// freely; per-task ordering is the coordinator's single-flight concern,
// so a duplicate enqueue is harmless.
type Scheduler struct {
	tasks  ports.TaskRepository
	coord  *Coordinator
	logger *logger.Logger
	cfg    SchedulerConfig

	queue   chan string
	stopCh  chan struct{}
	wg      sync.WaitGroup
	mu      sync.Mutex
	running bool

	now func() time.Time
}

func NewScheduler(tasks ports.TaskRepository, coord *Coordinator, log *logger.Logger, cfg SchedulerConfig) *Scheduler {
	cfg.applyDefaults()
	return &Scheduler{
		tasks:  tasks,
		coord:  coord,
		logger: log,
		cfg:    cfg,
		queue:  make(chan string, cfg.QueueSize),
		stopCh: make(chan struct{}),
		now:    time.Now,
	}
}

func (s *Scheduler) Start() {
	s.mu.Lock()
	if s.running {
		s.mu.Unlock()
		return
	}
	s.running = true
	s.mu.Unlock()

	for i := 0; i < s.cfg.Workers; i++ {
		s.wg.Add(1)
		go s.worker()
	}

	s.wg.Add(1)
	go s.scanLoop()

	s.logger.Infow("scheduler_started", "workers", s.cfg.Workers, "tick", s.cfg.TickInterval.String())
}

// Stop halts the scan loop and waits for in-flight executions to finish.
func (s *Scheduler) Stop() {
	s.mu.Lock()
	if !s.running {
		s.mu.Unlock()
		return
	}
	s.running = false
	s.mu.Unlock()

	close(s.stopCh)
	s.wg.Wait()
	s.logger.Info("scheduler stopped")
}

func (s *Scheduler) scanLoop() {
	defer s.wg.Done()

	ticker := time.NewTicker(s.cfg.TickInterval)
	defer ticker.Stop()

	s.scanOnce()
	for {
		select {
		case <-s.stopCh:
			close(s.queue)
			return
		case <-ticker.C:
			s.scanOnce()
		}
	}
}

// scanOnce enqueues every due task. The coordinator's due re-check makes
// redelivery of the same firing a no-op, so over-enqueueing is safe.
func (s *Scheduler) scanOnce() {
	ctx, cancel := context.WithTimeout(context.Background(), s.cfg.TickInterval)
	defer cancel()

	due, err := s.tasks.ListDue(ctx, s.now())
	if err != nil {
		s.logger.Errorw("due_scan_failed", "error", err)
		return
	}

	for _, task := range due {
		select {
		case s.queue <- task.ID:
		default:
			s.logger.Warnw("dispatch_queue_full", "task_id", task.ID)
			return
		}
	}

	if len(due) > 0 {
		s.logger.Infow("due_scan", "count", len(due))
	}
}

func (s *Scheduler) worker() {
	defer s.wg.Done()

	for taskID := range s.queue {
		err := s.coord.RunScheduled(context.Background(), taskID)
		switch {
		case err == nil:
		case errors.Is(err, ErrExecutionInFlight), errors.Is(err, ErrFiringNotDue), errors.Is(err, ErrTaskInactive):
			// Skipped firing; retried at the task's next occurrence.
		default:
			s.logger.Errorw("scheduled_execution_failed", "task_id", taskID, "error", err)
		}
	}
}
