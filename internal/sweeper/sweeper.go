// Package sweeper runs the periodic maintenance jobs of the battle service.
package sweeper

import (
	"context"
	"fmt"
	"time"

	"github.com/go-co-op/gocron/v2"
	"github.com/jason-s-yu/battles/internal/metrics"
	"github.com/sirupsen/logrus"
)

// Jobs is the part of battle.Service the sweeper drives.
type Jobs interface {
	ExpireStaleMatches(ctx context.Context) (int, error)
	ExpireInvitations(ctx context.Context) (int, error)
	RetryQueuedMatchmaking(ctx context.Context) (int, error)
	RetryRewardCredits(ctx context.Context) (int, error)
}

// Sweeper owns a gocron scheduler with one job per maintenance task.
type Sweeper struct {
	sched   gocron.Scheduler
	log     *logrus.Entry
	timeout time.Duration
}

// New registers every job to run each interval. Runs of the same job never overlap.
func New(jobs Jobs, interval time.Duration, logger *logrus.Logger) (*Sweeper, error) {
	sched, err := gocron.NewScheduler()
	if err != nil {
		return nil, fmt.Errorf("failed to create scheduler: %w", err)
	}
	s := &Sweeper{
		sched:   sched,
		log:     logger.WithField("component", "sweeper"),
		timeout: interval,
	}

	tasks := []struct {
		name string
		run  func(context.Context) (int, error)
	}{
		{"expire_stale_matches", jobs.ExpireStaleMatches},
		{"expire_invitations", jobs.ExpireInvitations},
		{"retry_matchmaking", jobs.RetryQueuedMatchmaking},
		{"retry_reward_credits", jobs.RetryRewardCredits},
	}
	for _, t := range tasks {
		_, err := sched.NewJob(
			gocron.DurationJob(interval),
			gocron.NewTask(s.sweep, t.name, t.run),
			gocron.WithName(t.name),
			gocron.WithSingletonMode(gocron.LimitModeReschedule),
		)
		if err != nil {
			return nil, fmt.Errorf("failed to schedule %s: %w", t.name, err)
		}
	}
	return s, nil
}

// Start begins running the jobs in the background.
func (s *Sweeper) Start() {
	s.sched.Start()
	s.log.Info("sweeper started")
}

// Shutdown stops the scheduler and waits for running jobs.
func (s *Sweeper) Shutdown() error {
	return s.sched.Shutdown()
}

func (s *Sweeper) sweep(name string, run func(context.Context) (int, error)) {
	ctx, cancel := context.WithTimeout(context.Background(), s.timeout)
	defer cancel()

	n, err := run(ctx)
	metrics.SweepAffected(name, n)
	entry := s.log.WithFields(logrus.Fields{"job": name, "affected": n})
	if err != nil {
		entry.WithError(err).Error("sweep failed")
		return
	}
	if n > 0 {
		entry.Info("sweep done")
	}
}
