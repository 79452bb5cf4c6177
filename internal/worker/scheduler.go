// Package worker runs the background loops: the checkpoint scheduler that
// fires the reporting jobs, and the embedding coordinator that backfills
// chunk embeddings.
package worker

import (
	"context"
	"log/slog"
	"time"

	"github.com/jonboulle/clockwork"
)

// Job is one schedulable reporting job.
type Job interface {
	Run(ctx context.Context) error
}

// NamedJob pairs a job with the name used in logs.
type NamedJob struct {
	Name string
	Job  Job
}

// Scheduler fires the reporting jobs at fixed hour-of-day checkpoints. Jobs
// run sequentially in registration order; a failing job does not stop the
// others, and the next checkpoint is computed fresh after every cycle.
type Scheduler struct {
	checkpoints []int
	minute      int
	loc         *time.Location
	jobs        []NamedJob
	clock       clockwork.Clock
}

// NewScheduler creates a scheduler firing at the given checkpoint hours plus
// the minute offset, interpreted in loc. The checkpoint list must already be
// validated (the schedule resolver shares the same configuration).
func NewScheduler(checkpoints []int, minute int, loc *time.Location, jobs []NamedJob, clock clockwork.Clock) *Scheduler {
	if loc == nil {
		loc = time.UTC
	}
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	hours := make([]int, len(checkpoints))
	copy(hours, checkpoints)
	return &Scheduler{
		checkpoints: hours,
		minute:      minute,
		loc:         loc,
		jobs:        jobs,
		clock:       clock,
	}
}

// Run blocks until ctx is cancelled, firing every job at each checkpoint.
func (s *Scheduler) Run(ctx context.Context) {
	slog.Info("scheduler started",
		"component", "worker",
		"worker", "scheduler",
		"checkpoints", s.checkpoints,
		"minute", s.minute,
		"timezone", s.loc.String(),
	)

	for {
		next := s.nextCheckpoint(s.clock.Now())
		slog.Debug("waiting for next checkpoint",
			"component", "worker",
			"worker", "scheduler",
			"next", next,
		)

		select {
		case <-ctx.Done():
			slog.Info("scheduler stopped",
				"component", "worker",
				"worker", "scheduler",
				"reason", "context_cancelled",
			)
			return
		case <-s.clock.After(next.Sub(s.clock.Now())):
			s.runJobs(ctx)
		}
	}
}

// nextCheckpoint returns the first checkpoint instant strictly after now.
func (s *Scheduler) nextCheckpoint(now time.Time) time.Time {
	now = now.In(s.loc)
	for _, h := range s.checkpoints {
		candidate := time.Date(now.Year(), now.Month(), now.Day(), h, s.minute, 0, 0, s.loc)
		if candidate.After(now) {
			return candidate
		}
	}
	// Every checkpoint has passed today; wrap to tomorrow's first.
	tomorrow := now.AddDate(0, 0, 1)
	return time.Date(tomorrow.Year(), tomorrow.Month(), tomorrow.Day(), s.checkpoints[0], s.minute, 0, 0, s.loc)
}

// runJobs executes every registered job sequentially, continuing past
// individual failures. Jobs record their own outcomes in the run log; the
// scheduler only logs the cycle summary.
func (s *Scheduler) runJobs(ctx context.Context) {
	var succeeded, failed int
	for _, nj := range s.jobs {
		if ctx.Err() != nil {
			return // Graceful shutdown, skip the summary
		}
		if err := nj.Job.Run(ctx); err != nil {
			slog.Error("job failed",
				"component", "worker",
				"worker", "scheduler",
				"job", nj.Name,
				"error", err,
			)
			failed++
			continue
		}
		succeeded++
	}

	if succeeded > 0 || failed > 0 {
		slog.Info("checkpoint cycle completed",
			"component", "worker",
			"worker", "scheduler",
			"jobs_total", len(s.jobs),
			"jobs_succeeded", succeeded,
			"jobs_failed", failed,
		)
	}
}
