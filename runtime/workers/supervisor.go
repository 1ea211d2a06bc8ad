package workers

import (
	"context"
	"conversation-engine/contract"
	"conversation-engine/errors"
	"fmt"
	"log/slog"
	"maps"
	"sync"
	"time"
)

const (
	defaultRestartInterval = 200 * time.Millisecond
	maxBackoffFactor       = 32
)

// Supervisor runs the background workers of the engine, the event fanout first
// among them, and keeps them alive until it is stopped.
//
// A failing worker is restarted after a delay that doubles on every consecutive
// failure, up to maxBackoffFactor times the restart interval. A worker that ran
// longer than that ceiling before failing starts over from the base interval.
type Supervisor struct {
	wg              sync.WaitGroup
	log             *slog.Logger
	workers         []contract.Worker
	restartInterval time.Duration

	mu       sync.Mutex
	cancel   context.CancelFunc
	restarts map[string]int
}

func NewSupervisor(log *slog.Logger, restartInterval time.Duration) *Supervisor {
	if restartInterval <= 0 {
		restartInterval = defaultRestartInterval
	}
	return &Supervisor{log: log, restartInterval: restartInterval, restarts: make(map[string]int)}
}

// Run starts every registered worker and blocks until all of them returned.
// Canceling ctx or calling Stop ends the supervision.
func (s *Supervisor) Run(ctx context.Context) {
	supervisedCtx, cancel := context.WithCancel(ctx)
	s.mu.Lock()
	s.cancel = cancel
	s.mu.Unlock()
	defer cancel()

	for _, worker := range s.workers {
		s.Start(supervisedCtx, worker)
	}
	s.wg.Wait()
}

func (s *Supervisor) Add(worker ...contract.Worker) contract.ISupervisor {
	s.workers = append(s.workers, worker...)
	return s
}

// Start runs a worker under supervision. A worker returning nil is done and
// never restarted.
func (s *Supervisor) Start(ctx context.Context, worker contract.Worker) {
	s.wg.Add(1)
	name := contract.GetWorkerName(worker)

	go func() {
		defer s.wg.Done()

		ceiling := s.restartInterval * maxBackoffFactor
		delay := s.restartInterval
		for ctx.Err() == nil {
			started := time.Now()
			err := runSafely(ctx, worker)
			switch {
			case err == nil:
				s.log.Info("Worker finished", "name", name)
				return
			case ctx.Err() != nil:
				s.log.Info("Worker stopped", "name", name)
				return
			}

			if time.Since(started) >= ceiling {
				delay = s.restartInterval
			}
			restarts := s.countRestart(name)
			s.log.Warn("Worker crashed, restarting", "name", name, "error", err, "restarts", restarts, "delay", delay)

			select {
			case <-ctx.Done():
			case <-time.After(delay):
			}
			delay = min(delay*2, ceiling)
		}
	}()
}

func runSafely(ctx context.Context, worker contract.Worker) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("%w: %v", errors.ErrWorkerPanic, r)
		}
	}()
	return worker.Run(ctx)
}

func (s *Supervisor) countRestart(name string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.restarts[name]++
	return s.restarts[name]
}

// Restarts returns how many times each worker was restarted, by worker name.
func (s *Supervisor) Restarts() map[string]int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return maps.Clone(s.restarts)
}

// Stop cancels every supervised worker. Run returns once they all stopped.
func (s *Supervisor) Stop() {
	s.mu.Lock()
	cancel := s.cancel
	s.mu.Unlock()
	if cancel != nil {
		cancel()
	}
}
