package scheduler

import (
	"context"
	"fmt"
	"time"

	"github.com/sirupsen/logrus"

	"taskpilot/internal/domain"
	"taskpilot/internal/repo"
)

// Notifier delivers one scheduler message to a chat. The telegram adapter
// implements it; tests use a recording stub.
type Notifier interface {
	Send(chatID int64, text string) error
}

// Scheduler periodically reminds assignees about tasks coming due and
// escalates to the project manager when very little time is left. Each sweep
// is independent: a task still due on the next sweep is reminded about again
// unless a Deduper is installed.
type Scheduler struct {
	Repo                repo.Repo
	Notify              Notifier
	Log                 *logrus.Logger
	Interval            time.Duration
	Window              time.Duration
	EscalationThreshold time.Duration
	Dedup               *Deduper
	Now                 func() time.Time
}

func New(r repo.Repo, n Notifier, log *logrus.Logger) *Scheduler {
	return &Scheduler{
		Repo:                r,
		Notify:              n,
		Log:                 log,
		Interval:            time.Hour,
		Window:              24 * time.Hour,
		EscalationThreshold: 2 * time.Hour,
		Now:                 time.Now,
	}
}

// Run sweeps once immediately, then on every tick until the context ends.
func (s *Scheduler) Run(ctx context.Context) error {
	s.Sweep(ctx)
	ticker := time.NewTicker(s.Interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			s.Sweep(ctx)
		}
	}
}

// Sweep runs one pass over the deadline window. Delivery failures are logged
// and never abort the pass; the remaining tasks still get their reminders.
func (s *Scheduler) Sweep(ctx context.Context) {
	now := s.Now()
	due, err := s.Repo.TasksDueBetween(ctx, now, now.Add(s.Window), domain.TaskStatusCompleted)
	if err != nil {
		if s.Log != nil {
			s.Log.WithError(err).Error("deadline sweep query failed")
		}
		return
	}
	for _, d := range due {
		deadline, err := time.Parse(time.RFC3339, d.Task.Deadline)
		if err != nil {
			if s.Log != nil {
				s.Log.WithError(err).WithField("task_id", d.Task.ID).Error("task has unparseable deadline")
			}
			continue
		}
		remaining := deadline.Sub(now)
		s.notify(d.AssigneeChatID, d.Task.ID, "reminder", reminderText(d, remaining))
		if remaining <= s.EscalationThreshold && d.ManagerChatID != d.AssigneeChatID {
			s.notify(d.ManagerChatID, d.Task.ID, "escalation", escalationText(d, remaining))
		}
	}
}

func (s *Scheduler) notify(chatID, taskID int64, kind, text string) {
	if s.Dedup != nil && s.Dedup.Seen(taskID, kind) {
		return
	}
	if err := s.Notify.Send(chatID, text); err != nil {
		if s.Log != nil {
			s.Log.WithError(err).WithFields(logrus.Fields{"chat_id": chatID, "task_id": taskID}).Warn("deadline notification failed")
		}
		return
	}
	if s.Dedup != nil {
		s.Dedup.Mark(taskID, kind)
	}
}

func reminderText(d domain.DueTask, remaining time.Duration) string {
	return fmt.Sprintf("Deadline approaching!\n\nTask #%d: %s\nProject: %s\nTime left: %s",
		d.Task.ID, d.Task.Description, d.ProjectName, humanDuration(remaining))
}

func escalationText(d domain.DueTask, remaining time.Duration) string {
	return fmt.Sprintf("Heads up: a task in %s is almost due.\n\nTask #%d: %s\nAssignee: %s\nTime left: %s",
		d.ProjectName, d.Task.ID, d.Task.Description, d.AssigneeName, humanDuration(remaining))
}

func humanDuration(dur time.Duration) string {
	dur = dur.Round(time.Minute)
	h := dur / time.Hour
	m := (dur % time.Hour) / time.Minute
	switch {
	case h > 0 && m > 0:
		return fmt.Sprintf("%dh %dm", h, m)
	case h > 0:
		return fmt.Sprintf("%dh", h)
	default:
		return fmt.Sprintf("%dm", m)
	}
}
