package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"sponsortracker/internal/metrics"
	"sponsortracker/internal/models"
	"sponsortracker/internal/notify"
	"sponsortracker/internal/store"
)

// ReminderRun reports one pass over upcoming deadlines.
type ReminderRun struct {
	Sent   int      `json:"sent"`
	Total  int      `json:"total"`
	Errors []string `json:"errors,omitempty"`
}

// RunDeadlineReminders emails every opted-in user about open deals whose
// deadline is one of their reminder offsets away from now's date. A deal is
// reminded at most once per calendar day.
func (s *Service) RunDeadlineReminders(ctx context.Context, now time.Time) (ReminderRun, error) {
	var run ReminderRun
	users, err := s.st.ListReminderRecipients(ctx)
	if err != nil {
		return run, err
	}
	today := now.UTC().Truncate(24 * time.Hour)
	remindDate := today.Format(dateLayout)

	for _, u := range users {
		if err := ctx.Err(); err != nil {
			return run, err
		}
		for _, days := range u.ReminderDays {
			due := today.AddDate(0, 0, days).Format(dateLayout)
			deals, err := s.st.ListDealsDueOn(ctx, u.ID, due)
			if err != nil {
				run.Errors = append(run.Errors, fmt.Sprintf("user %s: %v", u.ID, err))
				continue
			}
			for _, d := range deals {
				run.Total++
				sent, err := s.remindDeal(ctx, u, d, days, remindDate, now)
				if sent {
					run.Sent++
				}
				if err != nil {
					run.Errors = append(run.Errors, fmt.Sprintf("deal %s: %v", d.ID, err))
				}
			}
		}
	}
	s.log.Info("deadline reminders processed",
		zap.String("date", remindDate),
		zap.Int("sent", run.Sent),
		zap.Int("total", run.Total),
		zap.Int("errors", len(run.Errors)),
	)
	return run, nil
}

func (s *Service) remindDeal(ctx context.Context, u models.User, d models.Deal, days int, remindDate string, now time.Time) (bool, error) {
	already, err := s.st.ReminderSent(ctx, d.ID, remindDate)
	if err != nil {
		return false, err
	}
	if already {
		return false, nil
	}
	msg := notify.DeadlineReminder{
		To:             u.Email,
		UserName:       u.DisplayName(),
		DealTitle:      d.Title,
		DaysLeft:       days,
		DealURL:        s.dealURL(d.ID),
		UnsubscribeURL: s.UnsubscribeURL(u.ID),
	}
	if d.Deadline != nil {
		msg.Deadline = *d.Deadline
	}
	if d.Brand != nil {
		msg.BrandName = d.Brand.Name
	}
	err = s.sender.SendDeadlineReminder(ctx, msg)
	metrics.EmailsSent.WithLabelValues("deadline", metrics.Outcome(err)).Inc()
	if err != nil {
		return false, err
	}
	if err := s.st.RecordReminder(ctx, d.ID, remindDate, now.UTC()); err != nil && !errors.Is(err, store.ErrConflict) {
		return true, err
	}
	return true, nil
}
