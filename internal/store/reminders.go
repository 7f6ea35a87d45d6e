package store

import (
	"context"
	"time"

	"github.com/google/uuid"
)

func (s *Store) ReminderSent(ctx context.Context, dealID, remindDate string) (bool, error) {
	var n int
	err := s.db.QueryRowContext(ctx,
		s.q(`SELECT COUNT(1) FROM reminders WHERE deal_id=? AND remind_date=?`), dealID, remindDate,
	).Scan(&n)
	if err != nil {
		return false, wrap("check reminder", err)
	}
	return n > 0, nil
}

// RecordReminder marks a reminder as delivered. A second record for the same
// deal and date returns ErrConflict.
func (s *Store) RecordReminder(ctx context.Context, dealID, remindDate string, at time.Time) error {
	_, err := s.db.ExecContext(ctx,
		s.q(`INSERT INTO reminders(id,deal_id,remind_date,sent,created_at) VALUES(?,?,?,?,?)`),
		uuid.NewString(), dealID, remindDate, true, at,
	)
	if err != nil && isUniqueViolation(err) {
		return ErrConflict
	}
	return wrap("record reminder", err)
}
