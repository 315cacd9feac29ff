package scheduler

import (
	"context"
	"time"

	"github.com/go-co-op/gocron"
	"github.com/sirupsen/logrus"

	"github.com/i474232898/treemap/internal/posts"
)

// StatsRefresher rebuilds the per-district statistics snapshot.
type StatsRefresher interface {
	Refresh(ctx context.Context) ([]posts.LocationStat, error)
}

// Warmer precomputes boundary overlays for fresh statistics.
type Warmer interface {
	Warm(ctx context.Context, stats []posts.LocationStat) error
}

// Scheduler periodically refreshes district statistics and warms the boundary overlays.
type Scheduler struct {
	scheduler *gocron.Scheduler
	stats     StatsRefresher
	warmer    Warmer
	interval  time.Duration
	timeout   time.Duration
	log       *logrus.Entry
}

// New creates a new Scheduler. warmer may be nil.
func New(interval time.Duration, stats StatsRefresher, warmer Warmer) *Scheduler {
	s := gocron.NewScheduler(time.UTC)
	s.SingletonModeAll()
	return &Scheduler{
		scheduler: s,
		stats:     stats,
		warmer:    warmer,
		interval:  interval,
		timeout:   30 * time.Second,
		log:       logrus.WithField("component", "scheduler"),
	}
}

// Start schedules the periodic job and starts the underlying scheduler.
// The job also runs once immediately.
func (s *Scheduler) Start() error {
	interval := s.interval
	if interval <= 0 {
		interval = time.Minute
	}

	_, err := s.scheduler.Every(interval).Do(s.run)
	if err != nil {
		return err
	}

	s.scheduler.StartAsync()
	return nil
}

func (s *Scheduler) run() {
	ctx, cancel := context.WithTimeout(context.Background(), s.timeout)
	defer cancel()

	s.log.Debug("running stats refresh job")
	stats, err := s.stats.Refresh(ctx)
	if err != nil {
		s.log.WithError(err).Error("stats refresh failed")
		return
	}
	if s.warmer != nil {
		if err := s.warmer.Warm(ctx, stats); err != nil {
			s.log.WithError(err).Warn("overlay warm-up failed")
		}
	}
	s.log.WithField("districts", len(stats)).Debug("completed stats refresh job")
}

// Stop stops the scheduler and cancels any future jobs.
func (s *Scheduler) Stop() {
	if s.scheduler != nil {
		s.scheduler.Stop()
	}
}
