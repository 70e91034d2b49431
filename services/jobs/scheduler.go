// Package jobs runs the periodic background work of the API.
package jobs

import (
	"context"
	"sync"
	"time"

	"github.com/trezcool/sala/core"
)

// Job is a named unit of work run every Interval.
type Job struct {
	Name     string
	Interval time.Duration
	Run      func(ctx context.Context) error
}

type Scheduler struct {
	logger core.Logger
	jobs   []Job
	wg     sync.WaitGroup
}

func NewScheduler(logger core.Logger, jobs ...Job) *Scheduler {
	return &Scheduler{logger: logger, jobs: jobs}
}

// Start runs each job once, then on every tick, until `ctx` is cancelled.
// A run is skipped while the previous run of the same job is still going.
func (s *Scheduler) Start(ctx context.Context) {
	for _, job := range s.jobs {
		if job.Interval <= 0 || job.Run == nil {
			continue
		}
		s.wg.Add(1)
		go s.loop(ctx, job)
	}
}

// Wait blocks until all the job loops have returned.
func (s *Scheduler) Wait() {
	s.wg.Wait()
}

func (s *Scheduler) loop(ctx context.Context, job Job) {
	defer s.wg.Done()
	ticker := time.NewTicker(job.Interval)
	defer ticker.Stop()

	s.runOnce(ctx, job)
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.runOnce(ctx, job)
		}
	}
}

func (s *Scheduler) runOnce(ctx context.Context, job Job) {
	defer func() {
		if r := recover(); r != nil {
			s.logger.Error("job panicked", map[string]interface{}{"job": job.Name, "panic": r})
		}
	}()
	start := time.Now()
	if err := job.Run(ctx); err != nil {
		s.logger.Error("job failed", err, map[string]interface{}{"job": job.Name})
		return
	}
	s.logger.Debug("job done", map[string]interface{}{"job": job.Name, "took": time.Since(start).String()})
}
