package jobs

import (
	"context"
	"fmt"
	"log"
	"time"

	"github.com/go-co-op/gocron"
)

// StaleSyncer resyncs records that stopped receiving webhooks
type StaleSyncer interface {
	SyncStale(ctx context.Context, olderThan time.Duration, limit int) (int, error)
}

// StaleSweeper periodically polls the vendor for records stuck mid-flow,
// covering webhooks the vendor never delivered.
type StaleSweeper struct {
	syncer    StaleSyncer
	interval  time.Duration
	olderThan time.Duration
	batch     int
	scheduler *gocron.Scheduler
}

// NewStaleSweeper creates a sweeper
func NewStaleSweeper(syncer StaleSyncer, interval, olderThan time.Duration, batch int) *StaleSweeper {
	return &StaleSweeper{
		syncer:    syncer,
		interval:  interval,
		olderThan: olderThan,
		batch:     batch,
		scheduler: gocron.NewScheduler(time.UTC),
	}
}

// Start schedules the sweep. Overlapping runs are skipped.
func (s *StaleSweeper) Start(ctx context.Context) error {
	_, err := s.scheduler.Every(s.interval).
		WaitForSchedule().
		SingletonMode().
		Do(func() {
			if _, err := s.RunOnce(ctx); err != nil {
				log.Printf("Stale onboarding sweep failed: %v", err)
			}
		})
	if err != nil {
		return fmt.Errorf("failed to schedule stale onboarding sweep: %w", err)
	}

	s.scheduler.StartAsync()
	log.Printf("Stale onboarding sweep scheduled every %s", s.interval)
	return nil
}

// Stop stops the scheduler
func (s *StaleSweeper) Stop() {
	s.scheduler.Stop()
}

// RunOnce runs one sweep and returns the number of records synced
func (s *StaleSweeper) RunOnce(ctx context.Context) (int, error) {
	start := time.Now()
	n, err := s.syncer.SyncStale(ctx, s.olderThan, s.batch)
	if err != nil {
		return n, err
	}
	if n > 0 {
		log.Printf("Resynced %d stale onboarding records in %s", n, time.Since(start).Round(time.Millisecond))
	}
	return n, nil
}
