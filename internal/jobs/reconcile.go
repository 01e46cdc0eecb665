package jobs

import (
	"context"
	"fmt"
	"log"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/melih/aetherhost/internal/core/services"
)

// DefaultSchedule runs the reconcile job once a minute.
const DefaultSchedule = "@every 1m"

// Reconciler is the part of the compute service the job drives.
type Reconciler interface {
	Reconcile(ctx context.Context) (services.ReconcileReport, error)
}

// Scheduler runs background jobs on cron schedules.
type Scheduler struct {
	cron    *cron.Cron
	timeout time.Duration
}

// NewScheduler creates a stopped scheduler. Each run gets at most timeout.
func NewScheduler(timeout time.Duration) *Scheduler {
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &Scheduler{
		cron: cron.New(cron.WithChain(
			cron.Recover(cron.DefaultLogger),
			cron.SkipIfStillRunning(cron.DefaultLogger),
		)),
		timeout: timeout,
	}
}

// AddReconcile registers the container status reconcile job.
func (s *Scheduler) AddReconcile(schedule string, r Reconciler) error {
	if schedule == "" {
		schedule = DefaultSchedule
	}
	_, err := s.cron.AddFunc(schedule, func() { s.runReconcile(r) })
	if err != nil {
		return fmt.Errorf("schedule reconcile %q: %w", schedule, err)
	}
	return nil
}

func (s *Scheduler) runReconcile(r Reconciler) {
	ctx, cancel := context.WithTimeout(context.Background(), s.timeout)
	defer cancel()

	report, err := r.Reconcile(ctx)
	if err != nil {
		log.Printf("[reconcile] failed: %v", err)
		return
	}
	if report.Updated > 0 || report.Removed > 0 {
		log.Printf("[reconcile] checked %d containers: %d updated, %d removed",
			report.Checked, report.Updated, report.Removed)
	}
}

// Start runs the scheduler in its own goroutine.
func (s *Scheduler) Start() {
	s.cron.Start()
}

// Stop halts scheduling and waits for running jobs to finish.
func (s *Scheduler) Stop() {
	<-s.cron.Stop().Done()
}
