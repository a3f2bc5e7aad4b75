// Package scheduler runs the daily notification pass on a cron timetable.
package scheduler

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/robfig/cron/v3"

	"fleetdocs/internal/service"
)

// runTimeout bounds one full notification pass, scheduled or manual.
const runTimeout = 10 * time.Minute

// Scheduler triggers the notification pipeline once a day at a fixed local
// time. Manual triggers share the same entry point, and a mutex keeps passes
// from overlapping so a slow run cannot race a second one into double sends.
type Scheduler struct {
	notify service.NotifyService
	cron   *cron.Cron
	loc    *time.Location

	mu sync.Mutex
}

// New builds a Scheduler that fires daily at hour:minute in loc.
func New(notify service.NotifyService, loc *time.Location, hour, minute int) (*Scheduler, error) {
	if loc == nil {
		loc = time.Local
	}
	s := &Scheduler{
		notify: notify,
		cron:   cron.New(cron.WithLocation(loc)),
		loc:    loc,
	}

	spec := fmt.Sprintf("%d %d * * *", minute, hour)
	if _, err := s.cron.AddFunc(spec, s.scheduledRun); err != nil {
		return nil, fmt.Errorf("register cron entry %q: %w", spec, err)
	}
	return s, nil
}

// Start launches the cron loop in its own goroutine.
func (s *Scheduler) Start() {
	s.cron.Start()
	logJSON(map[string]any{
		"component": "scheduler",
		"event":     "started",
		"location":  s.loc.String(),
	})
}

// Stop halts the timetable and waits for an in-flight pass to finish.
func (s *Scheduler) Stop() {
	ctx := s.cron.Stop()
	<-ctx.Done()
	logJSON(map[string]any{
		"component": "scheduler",
		"event":     "stopped",
	})
}

// RunNow executes one fleet-wide or vehicle-scoped pass immediately. It
// blocks while a scheduled pass is in flight.
func (s *Scheduler) RunNow(ctx context.Context, vehicleID *string) (*service.RunReport, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.notify.Run(ctx, vehicleID)
}

func (s *Scheduler) scheduledRun() {
	ctx, cancel := context.WithTimeout(context.Background(), runTimeout)
	defer cancel()

	s.mu.Lock()
	defer s.mu.Unlock()

	report, err := s.notify.Run(ctx, nil)
	if err != nil {
		logJSON(map[string]any{
			"component":     "scheduler",
			"event":         "run_failed",
			"level":         "error",
			"error_message": err.Error(),
		})
		return
	}
	logJSON(map[string]any{
		"component": "scheduler",
		"event":     "run_completed",
		"scanned":   report.Scanned,
		"sent":      report.Sent,
		"skipped":   report.Skipped,
		"failed":    report.Failed,
	})
}

func logJSON(data map[string]any) {
	data["ts"] = time.Now().Format(time.RFC3339Nano)
	if _, ok := data["level"]; !ok {
		data["level"] = "info"
	}
	b, err := json.Marshal(data)
	if err != nil {
		log.Printf("failed to marshal log entry: %v", err)
		return
	}
	log.SetFlags(0)
	log.Println(string(b))
}
