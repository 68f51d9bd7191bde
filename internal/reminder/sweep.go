package reminder

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/nadavhl/secondbrain/internal/notify"
	"github.com/nadavhl/secondbrain/internal/storage"
)

// store is the slice of the storage layer the sweep needs.
type store interface {
	ListUsersWithReminders() ([]storage.User, error)
	NormalizeReminderTimestamps(ownerID string) (int, error)
	DueReminders(ownerID string, nowMS int64, limit int) ([]storage.Item, error)
	AdvanceReminder(itemID string, newCount int, nextAtMS *int64) error
}

// Report summarizes one sweep run.
type Report struct {
	UsersChecked   int      `json:"usersChecked"`
	RemindersFound int      `json:"remindersFound"`
	RemindersSent  int      `json:"remindersSent"`
	Errors         []string `json:"errors,omitempty"`
}

// Sweeper finds due reminders and dispatches notifications.
type Sweeper struct {
	store        store
	sender       notify.Sender
	batchPerUser int
	appURL       string
	log          *slog.Logger
	now          func() time.Time
}

// NewSweeper creates a Sweeper. batchPerUser caps the reminders fired
// for one user in a single run; overdue items beyond the cap wait for
// the next run. appURL, when set, puts an open-in-app link in every
// reminder message.
func NewSweeper(st store, sender notify.Sender, batchPerUser int, appURL string, log *slog.Logger) *Sweeper {
	if batchPerUser <= 0 {
		batchPerUser = 10
	}
	if log == nil {
		log = slog.Default()
	}
	return &Sweeper{store: st, sender: sender, batchPerUser: batchPerUser, appURL: appURL, log: log, now: time.Now}
}

// Run executes one sweep across all users with reminders enabled. A
// failure for one user or item lands in the report and the sweep keeps
// going.
func (s *Sweeper) Run(ctx context.Context) Report {
	var report Report

	users, err := s.store.ListUsersWithReminders()
	if err != nil {
		report.Errors = append(report.Errors, fmt.Sprintf("list users: %v", err))
		return report
	}

	now := s.now()
	for _, user := range users {
		if ctx.Err() != nil {
			report.Errors = append(report.Errors, "sweep cancelled")
			return report
		}
		report.UsersChecked++

		// Legacy rows may still carry text timestamps; the due query
		// compares numerically, so they get rewritten first.
		if fixed, err := s.store.NormalizeReminderTimestamps(user.ID); err != nil {
			report.Errors = append(report.Errors, fmt.Sprintf("user %s: normalize: %v", user.ID, err))
		} else if fixed > 0 {
			s.log.Info("normalized legacy reminder timestamps", "user", user.ID, "count", fixed)
		}

		due, err := s.store.DueReminders(user.ID, now.UnixMilli(), s.batchPerUser)
		if err != nil {
			report.Errors = append(report.Errors, fmt.Sprintf("user %s: query due: %v", user.ID, err))
			continue
		}
		report.RemindersFound += len(due)

		for _, item := range due {
			if err := s.fire(ctx, user, item, now); err != nil {
				report.Errors = append(report.Errors, fmt.Sprintf("item %s: %v", item.ID, err))
				continue
			}
			report.RemindersSent++
		}
	}

	s.log.Info("reminder sweep finished",
		"users", report.UsersChecked,
		"found", report.RemindersFound,
		"sent", report.RemindersSent,
		"errors", len(report.Errors))
	return report
}

// fire sends the notification and advances the item's reminder state.
// The state only moves after a successful send; a failed send leaves
// the item due for the next run.
func (s *Sweeper) fire(ctx context.Context, user storage.User, item storage.Item, now time.Time) error {
	if err := s.sender.Send(ctx, user.PhoneNumber, notify.FormatReminderMessage(item, s.appURL)); err != nil {
		return fmt.Errorf("send: %w", err)
	}

	newCount := item.ReminderCount + 1
	if newCount >= CompletionCount {
		if err := s.store.AdvanceReminder(item.ID, newCount, nil); err != nil {
			return fmt.Errorf("complete: %w", err)
		}
		return nil
	}

	days := NextIntervalDays(newCount, item.ReminderProfile)
	next := now.AddDate(0, 0, days).UnixMilli()
	if err := s.store.AdvanceReminder(item.ID, newCount, &next); err != nil {
		return fmt.Errorf("advance: %w", err)
	}
	return nil
}
