package jobs

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"busticket/internal/service"

	"github.com/robfig/cron/v3"
)

// ReminderSender is satisfied by *service.ReminderService.
type ReminderSender interface {
	SendReminders(ctx context.Context, w service.ReminderWindow) (int, error)
}

// ReminderJob runs the day-before and hour-before reminder sweeps on cron
// schedules. A sweep that overruns its slot skips the next tick.
type ReminderJob struct {
	sender  ReminderSender
	cron    *cron.Cron
	timeout time.Duration
	ctx     context.Context
	cancel  context.CancelFunc
}

func NewReminderJob(sender ReminderSender, timeout time.Duration) *ReminderJob {
	if timeout <= 0 {
		timeout = 5 * time.Minute
	}
	return &ReminderJob{
		sender: sender,
		cron: cron.New(cron.WithChain(
			cron.Recover(cron.DefaultLogger),
			cron.SkipIfStillRunning(cron.DefaultLogger),
		)),
		timeout: timeout,
	}
}

// Schedule registers a sweep of w on spec, e.g. "@every 30m" or "*/15 * * * *".
func (j *ReminderJob) Schedule(spec string, w service.ReminderWindow) error {
	if _, err := j.cron.AddFunc(spec, func() { j.sweep(w) }); err != nil {
		return fmt.Errorf("failed to schedule %s reminders with %q: %w", w.Name, spec, err)
	}
	slog.Info("Reminder sweep scheduled", "window", w.Name, "spec", spec)
	return nil
}

func (j *ReminderJob) Start(ctx context.Context) {
	j.ctx, j.cancel = context.WithCancel(ctx)
	j.cron.Start()
	slog.Info("Reminder job started", "sweeps", len(j.cron.Entries()))
}

// Stop cancels in-flight sweeps and waits for them to return.
func (j *ReminderJob) Stop() {
	if j.cancel != nil {
		j.cancel()
	}
	<-j.cron.Stop().Done()
	slog.Info("Reminder job stopped")
}

func (j *ReminderJob) sweep(w service.ReminderWindow) {
	parent := j.ctx
	if parent == nil {
		parent = context.Background()
	}
	ctx, cancel := context.WithTimeout(parent, j.timeout)
	defer cancel()

	start := time.Now()
	sent, err := j.sender.SendReminders(ctx, w)
	if err != nil {
		slog.Error("Reminder sweep failed", "window", w.Name, "error", err)
		return
	}
	slog.Info("Reminder sweep finished", "window", w.Name, "sent", sent, "duration", time.Since(start))
}
