package enrichment

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/gofrs/flock"
)

var ErrAlreadyRunning = errors.New("another altmetric pass holds the lock")

type Runner interface {
	Run(ctx context.Context) (Result, error)
}

// Scheduler runs the job once at start and then every interval. Each pass
// holds a file lock so two processes never scan concurrently.
type Scheduler struct {
	runner   Runner
	interval time.Duration
	lock     *flock.Flock
	ticker   *time.Ticker
	stopCh   chan struct{}
	doneCh   chan struct{}
	log      *slog.Logger
}

func NewScheduler(runner Runner, interval time.Duration, lockPath string, logger *slog.Logger) *Scheduler {
	return &Scheduler{
		runner:   runner,
		interval: interval,
		lock:     flock.New(lockPath),
		stopCh:   make(chan struct{}),
		doneCh:   make(chan struct{}),
		log:      logger.With("component", "altmetric_scheduler"),
	}
}

func (s *Scheduler) Start(ctx context.Context) error {
	if s.interval <= 0 {
		return fmt.Errorf("invalid interval %s", s.interval)
	}

	s.ticker = time.NewTicker(s.interval)
	s.log.Info("scheduler started", "interval", s.interval)

	go func() {
		defer close(s.doneCh)
		s.tick(ctx)
		for {
			select {
			case <-s.ticker.C:
				s.tick(ctx)
			case <-s.stopCh:
				s.log.Info("scheduler stopped")
				return
			case <-ctx.Done():
				s.log.Info("scheduler context cancelled")
				return
			}
		}
	}()

	return nil
}

// Stop ends the loop and waits for a running pass to return.
func (s *Scheduler) Stop() {
	close(s.stopCh)
	if s.ticker != nil {
		s.ticker.Stop()
	}
	<-s.doneCh
}

func (s *Scheduler) tick(ctx context.Context) {
	if _, err := s.RunOnce(ctx); err != nil {
		if errors.Is(err, ErrAlreadyRunning) {
			s.log.Warn("skipping pass", "error", err)
			return
		}
		s.log.Error("scheduled pass failed", "error", err)
	}
}

// RunOnce runs a single locked pass.
func (s *Scheduler) RunOnce(ctx context.Context) (Result, error) {
	ok, err := s.lock.TryLock()
	if err != nil {
		return Result{}, fmt.Errorf("acquire lock: %w", err)
	}
	if !ok {
		return Result{}, ErrAlreadyRunning
	}
	defer func() { _ = s.lock.Unlock() }()

	return s.runner.Run(ctx)
}
