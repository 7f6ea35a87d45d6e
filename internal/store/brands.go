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

const brandColumns = `id,user_id,name,category,contact_name,contact_email,contact_phone,website,notes,created_at`

func scanBrand(row interface{ Scan(...any) error }) (models.Brand, error) {
	var b models.Brand
	var contactName, contactEmail, contactPhone, website, notes sql.NullString
	if err := row.Scan(&b.ID, &b.UserID, &b.Name, &b.Category, &contactName, &contactEmail, &contactPhone, &website, &notes, &b.CreatedAt); err != nil {
		return models.Brand{}, err
	}
	b.ContactName = stringPtr(contactName)
	b.ContactEmail = stringPtr(contactEmail)
	b.ContactPhone = stringPtr(contactPhone)
	b.Website = stringPtr(website)
	b.Notes = stringPtr(notes)
	return b, nil
}

func (s *Store) CreateBrand(ctx context.Context, b models.Brand) (models.Brand, error) {
	if b.ID == "" {
		b.ID = uuid.NewString()
	}
	if b.CreatedAt.IsZero() {
		b.CreatedAt = time.Now().UTC()
	}
	_, err := s.db.ExecContext(ctx,
		s.q(`INSERT INTO brands(`+brandColumns+`) VALUES(?,?,?,?,?,?,?,?,?,?)`),
		b.ID, b.UserID, b.Name, b.Category,
		nullableString(b.ContactName), nullableString(b.ContactEmail), nullableString(b.ContactPhone),
		nullableString(b.Website), nullableString(b.Notes), b.CreatedAt,
	)
	if err != nil {
		return models.Brand{}, wrap("create brand", err)
	}
	return b, nil
}

func (s *Store) GetBrand(ctx context.Context, userID, id string) (models.Brand, error) {
	b, err := scanBrand(s.db.QueryRowContext(ctx,
		s.q(`SELECT `+brandColumns+` FROM brands WHERE id=? AND user_id=?`), id, userID))
	if errors.Is(err, sql.ErrNoRows) {
		return models.Brand{}, ErrNotFound
	}
	return b, wrap("get brand", err)
}

func (s *Store) ListBrands(ctx context.Context, userID string, q models.BrandQuery) ([]models.Brand, error) {
	where := []string{"user_id=?"}
	args := []any{userID}
	if search := strings.ToLower(strings.TrimSpace(q.Search)); search != "" {
		where = append(where, "LOWER(name) LIKE ?")
		args = append(args, "%"+search+"%")
	}
	if q.Category != "" {
		where = append(where, "category=?")
		args = append(args, q.Category)
	}
	rows, err := s.db.QueryContext(ctx,
		s.q(`SELECT `+brandColumns+` FROM brands WHERE `+strings.Join(where, " AND ")+` ORDER BY created_at DESC, id DESC`),
		args...,
	)
	if err != nil {
		return nil, wrap("list brands", err)
	}
	defer rows.Close()

	out := []models.Brand{}
	for rows.Next() {
		b, err := scanBrand(rows)
		if err != nil {
			return nil, wrap("scan brand", err)
		}
		out = append(out, b)
	}
	return out, rows.Err()
}

func (s *Store) ListBrandOptions(ctx context.Context, userID string) ([]models.BrandOption, error) {
	rows, err := s.db.QueryContext(ctx, s.q(`SELECT id,name FROM brands WHERE user_id=? ORDER BY name, id`), userID)
	if err != nil {
		return nil, wrap("list brand options", err)
	}
	defer rows.Close()

	out := []models.BrandOption{}
	for rows.Next() {
		var o models.BrandOption
		if err := rows.Scan(&o.ID, &o.Name); err != nil {
			return nil, wrap("scan brand option", err)
		}
		out = append(out, o)
	}
	return out, rows.Err()
}

func (s *Store) UpdateBrand(ctx context.Context, b models.Brand) error {
	res, err := s.db.ExecContext(ctx,
		s.q(`UPDATE brands SET name=?, category=?, contact_name=?, contact_email=?, contact_phone=?, website=?, notes=? WHERE id=? AND user_id=?`),
		b.Name, b.Category,
		nullableString(b.ContactName), nullableString(b.ContactEmail), nullableString(b.ContactPhone),
		nullableString(b.Website), nullableString(b.Notes),
		b.ID, b.UserID,
	)
	return wrap("update brand", affectedOrNotFound(res, err))
}

// DeleteBrand removes the brand and detaches its deals in one transaction.
func (s *Store) DeleteBrand(ctx context.Context, userID, id string, now time.Time) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return wrap("begin delete brand", err)
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.ExecContext(ctx,
		s.q(`UPDATE deals SET brand_id=NULL, updated_at=? WHERE brand_id=? AND user_id=?`), now, id, userID); err != nil {
		return wrap("detach deals", err)
	}
	res, err := tx.ExecContext(ctx, s.q(`DELETE FROM brands WHERE id=? AND user_id=?`), id, userID)
	if err := affectedOrNotFound(res, err); err != nil {
		return wrap("delete brand", err)
	}
	return wrap("commit delete brand", tx.Commit())
}
