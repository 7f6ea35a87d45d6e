package store

import (
	"context"
	"database/sql"
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"

	"sponsortracker/internal/models"
)

const dealSelect = `SELECT d.id,d.user_id,d.brand_id,d.title,d.status,d.amount,d.currency,d.content_type,
d.deadline,d.publish_date,d.payment_date,d.notes,d.created_at,d.updated_at,b.id,b.name,b.category
FROM deals d LEFT JOIN brands b ON b.id = d.brand_id AND b.user_id = d.user_id`

// openStatuses is spliced into queries; values are fixed enum literals.
const openStatuses = `d.status NOT IN ('published','paid')`

func scanDeal(row interface{ Scan(...any) error }) (models.Deal, error) {
	var d models.Deal
	var brandID, deadline, publishDate, paymentDate, notes sql.NullString
	var refID, refName, refCategory sql.NullString
	if err := row.Scan(
		&d.ID, &d.UserID, &brandID, &d.Title, &d.Status, &d.Amount, &d.Currency, &d.ContentType,
		&deadline, &publishDate, &paymentDate, &notes, &d.CreatedAt, &d.UpdatedAt,
		&refID, &refName, &refCategory,
	); err != nil {
		return models.Deal{}, err
	}
	d.BrandID = stringPtr(brandID)
	d.Deadline = stringPtr(deadline)
	d.PublishDate = stringPtr(publishDate)
	d.PaymentDate = stringPtr(paymentDate)
	d.Notes = stringPtr(notes)
	if refID.Valid {
		d.Brand = &models.BrandRef{ID: refID.String, Name: refName.String, Category: models.BrandCategory(refCategory.String)}
	}
	return d, nil
}

func (s *Store) queryDeals(ctx context.Context, query string, args ...any) ([]models.Deal, error) {
	rows, err := s.db.QueryContext(ctx, s.q(query), args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := []models.Deal{}
	for rows.Next() {
		d, err := scanDeal(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, d)
	}
	return out, rows.Err()
}

func (s *Store) CreateDeal(ctx context.Context, d models.Deal) (models.Deal, error) {
	if d.ID == "" {
		d.ID = uuid.NewString()
	}
	if d.CreatedAt.IsZero() {
		d.CreatedAt = time.Now().UTC()
	}
	if d.UpdatedAt.IsZero() {
		d.UpdatedAt = d.CreatedAt
	}
	_, err := s.db.ExecContext(ctx,
		s.q(`INSERT INTO deals(id,user_id,brand_id,title,status,amount,currency,content_type,deadline,publish_date,payment_date,notes,created_at,updated_at)
VALUES(?,?,?,?,?,?,?,?,?,?,?,?,?,?)`),
		d.ID, d.UserID, nullableString(d.BrandID), d.Title, d.Status, d.Amount, d.Currency, d.ContentType,
		nullableString(d.Deadline), nullableString(d.PublishDate), nullableString(d.PaymentDate), nullableString(d.Notes),
		d.CreatedAt, d.UpdatedAt,
	)
	if err != nil {
		return models.Deal{}, wrap("create deal", err)
	}
	return s.GetDeal(ctx, d.UserID, d.ID)
}

func (s *Store) GetDeal(ctx context.Context, userID, id string) (models.Deal, error) {
	d, err := scanDeal(s.db.QueryRowContext(ctx, s.q(dealSelect+` WHERE d.id=? AND d.user_id=?`), id, userID))
	if errors.Is(err, sql.ErrNoRows) {
		return models.Deal{}, ErrNotFound
	}
	return d, wrap("get deal", err)
}

func (s *Store) ListDeals(ctx context.Context, userID string, q models.DealQuery) ([]models.Deal, error) {
	where := []string{"d.user_id=?"}
	args := []any{userID}
	if q.Status != "" {
		where = append(where, "d.status=?")
		args = append(args, q.Status)
	}
	if q.BrandID != "" {
		where = append(where, "d.brand_id=?")
		args = append(args, q.BrandID)
	}
	query := dealSelect + ` WHERE ` + strings.Join(where, " AND ") + ` ORDER BY d.created_at DESC, d.id DESC`
	if q.Limit > 0 {
		query += ` LIMIT ?`
		args = append(args, q.Limit)
	}
	out, err := s.queryDeals(ctx, query, args...)
	return out, wrap("list deals", err)
}

// ListDealsDueOn returns the user's open deals whose deadline is date.
func (s *Store) ListDealsDueOn(ctx context.Context, userID, date string) ([]models.Deal, error) {
	out, err := s.queryDeals(ctx,
		dealSelect+` WHERE d.user_id=? AND d.deadline=? AND `+openStatuses+` ORDER BY d.created_at, d.id`,
		userID, date,
	)
	return out, wrap("list deals due", err)
}

// ListUpcomingDeadlines returns open deals with from <= deadline <= to.
// Dates are YYYY-MM-DD, so string comparison orders them.
func (s *Store) ListUpcomingDeadlines(ctx context.Context, userID, from, to string) ([]models.Deal, error) {
	out, err := s.queryDeals(ctx,
		dealSelect+` WHERE d.user_id=? AND d.deadline >= ? AND d.deadline <= ? AND `+openStatuses+` ORDER BY d.deadline, d.id`,
		userID, from, to,
	)
	return out, wrap("list upcoming deadlines", err)
}

func (s *Store) UpdateDeal(ctx context.Context, d models.Deal) error {
	res, err := s.db.ExecContext(ctx,
		s.q(`UPDATE deals SET brand_id=?, title=?, status=?, amount=?, currency=?, content_type=?, deadline=?, publish_date=?, payment_date=?, notes=?, updated_at=?
WHERE id=? AND user_id=?`),
		nullableString(d.BrandID), d.Title, d.Status, d.Amount, d.Currency, d.ContentType,
		nullableString(d.Deadline), nullableString(d.PublishDate), nullableString(d.PaymentDate), nullableString(d.Notes),
		d.UpdatedAt, d.ID, d.UserID,
	)
	return wrap("update deal", affectedOrNotFound(res, err))
}

// UpdateDealStatus moves a deal and reports the status it had before.
func (s *Store) UpdateDealStatus(ctx context.Context, userID, id string, status models.DealStatus, now time.Time) (models.DealStatus, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return "", wrap("begin status update", err)
	}
	defer func() { _ = tx.Rollback() }()

	var prev models.DealStatus
	err = tx.QueryRowContext(ctx, s.q(`SELECT status FROM deals WHERE id=? AND user_id=?`), id, userID).Scan(&prev)
	if errors.Is(err, sql.ErrNoRows) {
		return "", ErrNotFound
	}
	if err != nil {
		return "", wrap("read deal status", err)
	}
	if _, err := tx.ExecContext(ctx,
		s.q(`UPDATE deals SET status=?, updated_at=? WHERE id=? AND user_id=?`), status, now, id, userID); err != nil {
		return "", wrap("update deal status", err)
	}
	return prev, wrap("commit status update", tx.Commit())
}

func (s *Store) DeleteDeal(ctx context.Context, userID, id string) error {
	res, err := s.db.ExecContext(ctx, s.q(`DELETE FROM deals WHERE id=? AND user_id=?`), id, userID)
	return wrap("delete deal", affectedOrNotFound(res, err))
}
