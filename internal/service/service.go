package service

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	netmail "net/mail"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"sponsortracker/internal/analytics"
	"sponsortracker/internal/auth"
	"sponsortracker/internal/config"
	"sponsortracker/internal/models"
	"sponsortracker/internal/notify"
	"sponsortracker/internal/store"
	"sponsortracker/internal/util"
)

var (
	ErrInvalidCredentials = errors.New("invalid credentials")
	ErrValidation         = errors.New("validation failed")
)

const unsubscribePurpose = "unsubscribe"

func invalid(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrValidation, fmt.Sprintf(format, args...))
}

type Service struct {
	cfg        config.Config
	st         *store.Store
	sender     notify.Sender
	log        *zap.Logger
	analyzer   analytics.Analyzer
	encryptKey []byte
	now        func() time.Time
}

func New(cfg config.Config, st *store.Store, sender notify.Sender, log *zap.Logger) *Service {
	if log == nil {
		log = zap.NewNop()
	}
	if sender == nil {
		sender = notify.NewMailer(cfg.MailFrom, cfg.ContactInbox, notify.LogTransport{})
	}
	return &Service{
		cfg:        cfg,
		st:         st,
		sender:     sender,
		log:        log,
		analyzer:   analytics.New(cfg.USDToKRW),
		encryptKey: util.Derive32ByteKey(cfg.SessionEncryptKey),
		now:        func() time.Time { return time.Now().UTC() },
	}
}

// SetClock replaces the service clock; tests use it to pin "today".
func (s *Service) SetClock(now func() time.Time) {
	s.now = func() time.Time { return now().UTC() }
}

func (s *Service) Now() time.Time { return s.now() }

func hashUA(ua string) string {
	sum := sha256.Sum256([]byte(ua))
	return hex.EncodeToString(sum[:])
}

func (s *Service) ValidatePassword(password string) error {
	n := len([]rune(password))
	if n < s.cfg.PasswordMinLength || n > s.cfg.PasswordMaxLength {
		return invalid("password must be %d to %d characters", s.cfg.PasswordMinLength, s.cfg.PasswordMaxLength)
	}
	return nil
}

func normalizeEmail(v string) (string, error) {
	v = strings.ToLower(strings.TrimSpace(v))
	addr, err := netmail.ParseAddress(v)
	if err != nil || addr.Address != v {
		return "", invalid("invalid email address")
	}
	return v, nil
}

func (s *Service) Signup(ctx context.Context, email, password, name string) (models.User, error) {
	email, err := normalizeEmail(email)
	if err != nil {
		return models.User{}, err
	}
	if err := s.ValidatePassword(password); err != nil {
		return models.User{}, err
	}
	hash, err := auth.HashPassword(password)
	if err != nil {
		return models.User{}, err
	}
	return s.st.CreateUser(ctx, email, strings.TrimSpace(name), hash)
}

func (s *Service) Login(ctx context.Context, email, password, ip, userAgent string) (rawToken string, user models.User, err error) {
	u, err := s.st.GetUserByEmail(ctx, strings.ToLower(strings.TrimSpace(email)))
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return "", models.User{}, ErrInvalidCredentials
		}
		return "", models.User{}, err
	}
	if !auth.VerifyPassword(u.PasswordHash, password) {
		return "", models.User{}, ErrInvalidCredentials
	}

	raw, tokenHash, err := auth.NewOpaqueToken()
	if err != nil {
		return "", models.User{}, err
	}
	now := s.now()
	sess := models.Session{
		ID:            uuid.NewString(),
		UserID:        u.ID,
		TokenHash:     tokenHash,
		IPHint:        ip,
		UserAgentHash: hashUA(userAgent),
		ExpiresAt:     now.Add(s.cfg.SessionAbsoluteDuration()),
		IdleExpiresAt: now.Add(s.cfg.SessionIdleDuration()),
		CreatedAt:     now,
		LastSeenAt:    now,
	}
	if err := s.st.CreateSession(ctx, sess); err != nil {
		return "", models.User{}, err
	}
	if err := s.st.TouchUserLastLogin(ctx, u.ID, now); err != nil {
		s.log.Warn("record last login failed", zap.String("user_id", u.ID), zap.Error(err))
	}
	u.LastLoginAt = &now
	return raw, u, nil
}

func (s *Service) ValidateSession(ctx context.Context, rawToken string) (models.User, models.Session, error) {
	sess, err := s.st.GetSessionByTokenHash(ctx, auth.HashToken(rawToken))
	if err != nil {
		return models.User{}, models.Session{}, ErrInvalidCredentials
	}
	now := s.now()
	if sess.RevokedAt != nil || now.After(sess.ExpiresAt) || now.After(sess.IdleExpiresAt) {
		return models.User{}, models.Session{}, ErrInvalidCredentials
	}
	if err := s.st.TouchSession(ctx, sess.ID, now, now.Add(s.cfg.SessionIdleDuration())); err != nil {
		s.log.Warn("touch session failed", zap.String("session_id", sess.ID), zap.Error(err))
	}
	u, err := s.st.GetUserByID(ctx, sess.UserID)
	if err != nil {
		return models.User{}, models.Session{}, ErrInvalidCredentials
	}
	return u, sess, nil
}

func (s *Service) Logout(ctx context.Context, rawToken string) error {
	sess, err := s.st.GetSessionByTokenHash(ctx, auth.HashToken(rawToken))
	if err != nil {
		return nil
	}
	return s.st.RevokeSession(ctx, sess.ID)
}

// PurgeSessions drops sessions that can no longer be used.
func (s *Service) PurgeSessions(ctx context.Context) (int64, error) {
	return s.st.DeleteExpiredSessions(ctx, s.now())
}

func (s *Service) Me(ctx context.Context, userID string) (models.User, error) {
	return s.st.GetUserByID(ctx, userID)
}

type SettingsPatch struct {
	Name           *string
	EmailReminders *bool
	ReminderDays   []int
}

func (s *Service) UpdateSettings(ctx context.Context, userID string, p SettingsPatch) (models.User, error) {
	u, err := s.st.GetUserByID(ctx, userID)
	if err != nil {
		return models.User{}, err
	}
	if p.Name != nil {
		u.Name = strings.TrimSpace(*p.Name)
	}
	if p.EmailReminders != nil {
		u.EmailReminders = *p.EmailReminders
	}
	if p.ReminderDays != nil {
		days, err := NormalizeReminderDays(p.ReminderDays)
		if err != nil {
			return models.User{}, err
		}
		u.ReminderDays = days
	}
	if err := s.st.UpdateUserSettings(ctx, u.ID, u.Name, u.EmailReminders, u.ReminderDays); err != nil {
		return models.User{}, err
	}
	return u, nil
}

// NormalizeReminderDays dedupes offsets and sorts them largest first. Each
// offset must be within 1..30 days and at least one is required.
func NormalizeReminderDays(days []int) ([]int, error) {
	if len(days) == 0 {
		return nil, invalid("reminder_days must not be empty")
	}
	seen := make(map[int]bool, len(days))
	out := make([]int, 0, len(days))
	for _, d := range days {
		if d < 1 || d > 30 {
			return nil, invalid("reminder_days values must be between 1 and 30")
		}
		if !seen[d] {
			seen[d] = true
			out = append(out, d)
		}
	}
	return store.DecodeDays(store.EncodeDays(out)), nil
}

func (s *Service) UnsubscribeToken(userID string) (string, error) {
	return util.Seal(s.encryptKey, unsubscribePurpose, userID)
}

func (s *Service) UnsubscribeURL(userID string) string {
	token, err := s.UnsubscribeToken(userID)
	if err != nil {
		return ""
	}
	return strings.TrimRight(s.cfg.BaseURL, "/") + "/api/v1/notifications/unsubscribe?token=" + token
}

// Unsubscribe turns deadline and status emails off for the token's owner.
func (s *Service) Unsubscribe(ctx context.Context, token string) error {
	userID, err := util.Open(s.encryptKey, unsubscribePurpose, strings.TrimSpace(token))
	if err != nil {
		return invalid("invalid unsubscribe token")
	}
	return s.st.SetEmailReminders(ctx, userID, false)
}

func (s *Service) dealURL(id string) string {
	return strings.TrimRight(s.cfg.BaseURL, "/") + "/deals/" + id
}

// Ping reports whether the store answers.
func (s *Service) Ping(ctx context.Context) error {
	return s.st.Ping(ctx)
}
