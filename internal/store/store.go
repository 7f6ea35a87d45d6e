package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/go-sql-driver/mysql"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgconn"

	"sponsortracker/internal/db"
	"sponsortracker/internal/models"
)

var ErrNotFound = errors.New("not found")
var ErrConflict = errors.New("conflict")

// Store persists per-user data. Every brand, deal and reminder query is
// filtered by the owning user id.
type Store struct {
	db      *sql.DB
	dialect db.Dialect
}

func New(sqdb *sql.DB, dialect db.Dialect) *Store {
	if dialect == "" {
		dialect = db.SQLite
	}
	return &Store{db: sqdb, dialect: dialect}
}

func (s *Store) q(query string) string { return db.Rebind(s.dialect, query) }

func (s *Store) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

func (s *Store) CreateUser(ctx context.Context, email, name, passwordHash string) (models.User, error) {
	now := time.Now().UTC()
	u := models.User{
		ID:             uuid.NewString(),
		Email:          email,
		Name:           name,
		PasswordHash:   passwordHash,
		EmailReminders: true,
		ReminderDays:   append([]int(nil), models.DefaultReminderDays...),
		CreatedAt:      now,
	}
	_, err := s.db.ExecContext(ctx,
		s.q(`INSERT INTO users(id,email,name,password_hash,email_reminders,reminder_days,created_at) VALUES(?,?,?,?,?,?,?)`),
		u.ID, u.Email, u.Name, u.PasswordHash, u.EmailReminders, EncodeDays(u.ReminderDays), u.CreatedAt,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return models.User{}, ErrConflict
		}
		return models.User{}, err
	}
	return u, nil
}

const userColumns = `id,email,name,password_hash,email_reminders,reminder_days,created_at,last_login_at`

func scanUser(row interface{ Scan(...any) error }) (models.User, error) {
	var u models.User
	var days string
	var lastLogin sql.NullTime
	if err := row.Scan(&u.ID, &u.Email, &u.Name, &u.PasswordHash, &u.EmailReminders, &days, &u.CreatedAt, &lastLogin); err != nil {
		return models.User{}, err
	}
	u.ReminderDays = DecodeDays(days)
	if lastLogin.Valid {
		t := lastLogin.Time
		u.LastLoginAt = &t
	}
	return u, nil
}

func (s *Store) GetUserByEmail(ctx context.Context, email string) (models.User, error) {
	u, err := scanUser(s.db.QueryRowContext(ctx, s.q(`SELECT `+userColumns+` FROM users WHERE email=?`), email))
	if errors.Is(err, sql.ErrNoRows) {
		return models.User{}, ErrNotFound
	}
	return u, err
}

func (s *Store) GetUserByID(ctx context.Context, id string) (models.User, error) {
	u, err := scanUser(s.db.QueryRowContext(ctx, s.q(`SELECT `+userColumns+` FROM users WHERE id=?`), id))
	if errors.Is(err, sql.ErrNoRows) {
		return models.User{}, ErrNotFound
	}
	return u, err
}

// ListReminderRecipients returns users who have deadline emails turned on.
func (s *Store) ListReminderRecipients(ctx context.Context) ([]models.User, error) {
	rows, err := s.db.QueryContext(ctx, s.q(`SELECT `+userColumns+` FROM users WHERE email_reminders=? ORDER BY created_at`), true)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []models.User
	for rows.Next() {
		u, err := scanUser(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, u)
	}
	return out, rows.Err()
}

func (s *Store) UpdateUserSettings(ctx context.Context, userID, name string, emailReminders bool, days []int) error {
	res, err := s.db.ExecContext(ctx,
		s.q(`UPDATE users SET name=?, email_reminders=?, reminder_days=? WHERE id=?`),
		name, emailReminders, EncodeDays(days), userID,
	)
	return affectedOrNotFound(res, err)
}

func (s *Store) SetEmailReminders(ctx context.Context, userID string, on bool) error {
	res, err := s.db.ExecContext(ctx, s.q(`UPDATE users SET email_reminders=? WHERE id=?`), on, userID)
	return affectedOrNotFound(res, err)
}

func (s *Store) TouchUserLastLogin(ctx context.Context, userID string, at time.Time) error {
	_, err := s.db.ExecContext(ctx, s.q(`UPDATE users SET last_login_at=? WHERE id=?`), at, userID)
	return err
}

func (s *Store) CreateSession(ctx context.Context, sess models.Session) error {
	_, err := s.db.ExecContext(ctx,
		s.q(`INSERT INTO sessions(id,user_id,token_hash,ip_hint,user_agent_hash,expires_at,idle_expires_at,created_at,last_seen_at) VALUES(?,?,?,?,?,?,?,?,?)`),
		sess.ID, sess.UserID, sess.TokenHash, sess.IPHint, sess.UserAgentHash, sess.ExpiresAt, sess.IdleExpiresAt, sess.CreatedAt, sess.LastSeenAt,
	)
	return err
}

func (s *Store) GetSessionByTokenHash(ctx context.Context, tokenHash string) (models.Session, error) {
	var sess models.Session
	var revoked sql.NullTime
	var ipHint, uaHash sql.NullString
	err := s.db.QueryRowContext(ctx,
		s.q(`SELECT id,user_id,token_hash,ip_hint,user_agent_hash,expires_at,idle_expires_at,created_at,last_seen_at,revoked_at FROM sessions WHERE token_hash=?`),
		tokenHash,
	).Scan(&sess.ID, &sess.UserID, &sess.TokenHash, &ipHint, &uaHash, &sess.ExpiresAt, &sess.IdleExpiresAt, &sess.CreatedAt, &sess.LastSeenAt, &revoked)
	if errors.Is(err, sql.ErrNoRows) {
		return models.Session{}, ErrNotFound
	}
	if err != nil {
		return models.Session{}, err
	}
	sess.IPHint = ipHint.String
	sess.UserAgentHash = uaHash.String
	if revoked.Valid {
		t := revoked.Time
		sess.RevokedAt = &t
	}
	return sess, nil
}

func (s *Store) TouchSession(ctx context.Context, id string, now, idleExpiry time.Time) error {
	_, err := s.db.ExecContext(ctx, s.q(`UPDATE sessions SET last_seen_at=?, idle_expires_at=? WHERE id=?`), now, idleExpiry, id)
	return err
}

func (s *Store) RevokeSession(ctx context.Context, id string) error {
	_, err := s.db.ExecContext(ctx, s.q(`UPDATE sessions SET revoked_at=? WHERE id=?`), time.Now().UTC(), id)
	return err
}

// DeleteExpiredSessions removes sessions past their absolute expiry or revoked
// before the cutoff.
func (s *Store) DeleteExpiredSessions(ctx context.Context, cutoff time.Time) (int64, error) {
	res, err := s.db.ExecContext(ctx,
		s.q(`DELETE FROM sessions WHERE expires_at < ? OR (revoked_at IS NOT NULL AND revoked_at < ?)`),
		cutoff, cutoff,
	)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

// EncodeDays stores reminder offsets as a comma separated list.
func EncodeDays(days []int) string {
	parts := make([]string, 0, len(days))
	for _, d := range days {
		parts = append(parts, strconv.Itoa(d))
	}
	return strings.Join(parts, ",")
}

// DecodeDays parses EncodeDays output, dropping malformed entries. An empty
// value yields the default offsets.
func DecodeDays(v string) []int {
	var out []int
	for _, p := range strings.Split(v, ",") {
		n, err := strconv.Atoi(strings.TrimSpace(p))
		if err != nil || n <= 0 {
			continue
		}
		out = append(out, n)
	}
	if len(out) == 0 {
		return append([]int(nil), models.DefaultReminderDays...)
	}
	sort.Sort(sort.Reverse(sort.IntSlice(out)))
	return out
}

func affectedOrNotFound(res sql.Result, err error) error {
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code == "23505"
	}
	var myErr *mysql.MySQLError
	if errors.As(err, &myErr) {
		return myErr.Number == 1062
	}
	msg := strings.ToLower(err.Error())
	return strings.Contains(msg, "unique constraint") || strings.Contains(msg, "duplicate")
}

func nullableString(v *string) any {
	if v == nil {
		return nil
	}
	return *v
}

func stringPtr(v sql.NullString) *string {
	if !v.Valid {
		return nil
	}
	s := v.String
	return &s
}

func wrap(op string, err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, ErrNotFound) || errors.Is(err, ErrConflict) {
		return err
	}
	return fmt.Errorf("%s: %w", op, err)
}
