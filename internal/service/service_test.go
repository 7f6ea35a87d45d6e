package service

import (
	"context"
	"errors"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"sponsortracker/internal/config"
	"sponsortracker/internal/db"
	"sponsortracker/internal/models"
	"sponsortracker/internal/notify"
	"sponsortracker/internal/store"
)

type recordingSender struct {
	mu       sync.Mutex
	reminded []notify.DeadlineReminder
	statuses []notify.StatusUpdate
	contacts []notify.ContactMessage
	failWith error
}

func (r *recordingSender) SendDeadlineReminder(ctx context.Context, m notify.DeadlineReminder) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.failWith != nil {
		return r.failWith
	}
	r.reminded = append(r.reminded, m)
	return nil
}

func (r *recordingSender) SendStatusUpdate(ctx context.Context, m notify.StatusUpdate) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.failWith != nil {
		return r.failWith
	}
	r.statuses = append(r.statuses, m)
	return nil
}

func (r *recordingSender) SendContact(ctx context.Context, m notify.ContactMessage) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.failWith != nil {
		return r.failWith
	}
	r.contacts = append(r.contacts, m)
	return nil
}

var testNow = time.Date(2025, 6, 10, 9, 0, 0, 0, time.UTC)

func testConfig() config.Config {
	return config.Config{
		BaseURL:             "https://tracker.example.com",
		SessionEncryptKey:   "this_is_a_valid_long_session_encrypt_key_123456",
		SessionIdleMinutes:  60,
		SessionAbsoluteHour: 24,
		PasswordMinLength:   8,
		PasswordMaxLength:   128,
		MailFrom:            "Sponsor Tracker <noreply@example.com>",
		ContactInbox:        "inbox@example.com",
		USDToKRW:            decimal.NewFromInt(1400),
	}
}

func newTestService(t *testing.T) (*Service, *recordingSender) {
	t.Helper()
	sqdb, err := db.OpenSQLite(filepath.Join(t.TempDir(), "app.db"), 1, 1, time.Minute)
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	t.Cleanup(func() { _ = sqdb.Close() })
	if err := db.ApplyMigrations(sqdb, db.SQLite, filepath.Join("..", "..", "migrations")); err != nil {
		t.Fatalf("apply migrations: %v", err)
	}
	sender := &recordingSender{}
	svc := New(testConfig(), store.New(sqdb, db.SQLite), sender, nil)
	svc.SetClock(func() time.Time { return testNow })
	return svc, sender
}

func mustSignup(t *testing.T, svc *Service, email string) models.User {
	t.Helper()
	u, err := svc.Signup(context.Background(), email, "correct horse battery", "")
	if err != nil {
		t.Fatalf("signup %s: %v", email, err)
	}
	return u
}

func strPtr(v string) *string { return &v }

func TestSignupNormalizesAndRejectsDuplicates(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()

	u, err := svc.Signup(ctx, "  Creator@Example.COM ", "correct horse battery", "Jin")
	if err != nil {
		t.Fatalf("signup: %v", err)
	}
	if u.Email != "creator@example.com" {
		t.Fatalf("expected lower-cased email, got %q", u.Email)
	}
	if _, err := svc.Signup(ctx, "creator@example.com", "correct horse battery", ""); !errors.Is(err, store.ErrConflict) {
		t.Fatalf("expected ErrConflict, got %v", err)
	}
	if _, err := svc.Signup(ctx, "not-an-email", "correct horse battery", ""); !errors.Is(err, ErrValidation) {
		t.Fatalf("expected ErrValidation for bad email, got %v", err)
	}
	if _, err := svc.Signup(ctx, "short@example.com", "short", ""); !errors.Is(err, ErrValidation) {
		t.Fatalf("expected ErrValidation for short password, got %v", err)
	}
}

func TestValidatePasswordBounds(t *testing.T) {
	svc := &Service{cfg: config.Config{PasswordMinLength: 8, PasswordMaxLength: 12}}
	if err := svc.ValidatePassword("1234567"); err == nil {
		t.Fatalf("expected 7 characters to fail")
	}
	if err := svc.ValidatePassword("12345678"); err != nil {
		t.Fatalf("expected 8 characters to pass: %v", err)
	}
	if err := svc.ValidatePassword("1234567890123"); err == nil {
		t.Fatalf("expected 13 characters to fail")
	}
}

func TestLoginSessionLifecycle(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()
	mustSignup(t, svc, "creator@example.com")

	if _, _, err := svc.Login(ctx, "creator@example.com", "wrong password!", "1.2.3.4", "ua"); !errors.Is(err, ErrInvalidCredentials) {
		t.Fatalf("expected ErrInvalidCredentials, got %v", err)
	}
	if _, _, err := svc.Login(ctx, "nobody@example.com", "correct horse battery", "1.2.3.4", "ua"); !errors.Is(err, ErrInvalidCredentials) {
		t.Fatalf("expected ErrInvalidCredentials for unknown user, got %v", err)
	}

	raw, u, err := svc.Login(ctx, "Creator@example.com", "correct horse battery", "1.2.3.4", "ua")
	if err != nil {
		t.Fatalf("login: %v", err)
	}
	if raw == "" || u.LastLoginAt == nil {
		t.Fatalf("expected token and last login, got %q %+v", raw, u)
	}

	got, _, err := svc.ValidateSession(ctx, raw)
	if err != nil || got.ID != u.ID {
		t.Fatalf("validate session: %v %+v", err, got)
	}

	svc.SetClock(func() time.Time { return testNow.Add(2 * time.Hour) })
	if _, _, err := svc.ValidateSession(ctx, raw); !errors.Is(err, ErrInvalidCredentials) {
		t.Fatalf("expected idle session to expire, got %v", err)
	}

	svc.SetClock(func() time.Time { return testNow })
	raw, _, err = svc.Login(ctx, "creator@example.com", "correct horse battery", "", "")
	if err != nil {
		t.Fatalf("second login: %v", err)
	}
	if err := svc.Logout(ctx, raw); err != nil {
		t.Fatalf("logout: %v", err)
	}
	if _, _, err := svc.ValidateSession(ctx, raw); !errors.Is(err, ErrInvalidCredentials) {
		t.Fatalf("expected revoked session to fail, got %v", err)
	}
}

func TestUpdateSettingsNormalizesReminderDays(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()
	u := mustSignup(t, svc, "creator@example.com")

	off := false
	got, err := svc.UpdateSettings(ctx, u.ID, SettingsPatch{
		Name:           strPtr("  Jin "),
		EmailReminders: &off,
		ReminderDays:   []int{1, 7, 3, 7},
	})
	if err != nil {
		t.Fatalf("update settings: %v", err)
	}
	if got.Name != "Jin" || got.EmailReminders {
		t.Fatalf("unexpected settings: %+v", got)
	}
	if len(got.ReminderDays) != 3 || got.ReminderDays[0] != 7 || got.ReminderDays[2] != 1 {
		t.Fatalf("expected [7 3 1], got %v", got.ReminderDays)
	}

	me, err := svc.Me(ctx, u.ID)
	if err != nil {
		t.Fatalf("me: %v", err)
	}
	if len(me.ReminderDays) != 3 || me.EmailReminders {
		t.Fatalf("settings not persisted: %+v", me)
	}

	for _, days := range [][]int{{}, {0}, {31}} {
		if _, err := svc.UpdateSettings(ctx, u.ID, SettingsPatch{ReminderDays: days}); !errors.Is(err, ErrValidation) {
			t.Fatalf("expected ErrValidation for %v, got %v", days, err)
		}
	}
}

func TestUnsubscribeToken(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()
	u := mustSignup(t, svc, "creator@example.com")

	token, err := svc.UnsubscribeToken(u.ID)
	if err != nil {
		t.Fatalf("token: %v", err)
	}
	if err := svc.Unsubscribe(ctx, "garbage"); !errors.Is(err, ErrValidation) {
		t.Fatalf("expected ErrValidation for garbage token, got %v", err)
	}
	if err := svc.Unsubscribe(ctx, token); err != nil {
		t.Fatalf("unsubscribe: %v", err)
	}
	me, _ := svc.Me(ctx, u.ID)
	if me.EmailReminders {
		t.Fatalf("expected email reminders off")
	}
}

func TestSendContact(t *testing.T) {
	svc, sender := newTestService(t)
	ctx := context.Background()

	if err := svc.SendContact(ctx, ContactRequest{Name: "A", Email: "a@example.com"}); !errors.Is(err, ErrContactMissingFields) {
		t.Fatalf("expected missing fields, got %v", err)
	}
	if err := svc.SendContact(ctx, ContactRequest{Name: "A", Email: "nope", Message: "hi"}); !errors.Is(err, ErrContactInvalidEmail) {
		t.Fatalf("expected invalid email, got %v", err)
	}
	if err := svc.SendContact(ctx, ContactRequest{Name: " A ", Email: "a@example.com", Message: "hello"}); err != nil {
		t.Fatalf("send contact: %v", err)
	}
	if len(sender.contacts) != 1 || sender.contacts[0].Name != "A" {
		t.Fatalf("unexpected contacts: %+v", sender.contacts)
	}

	sender.failWith = errors.New("smtp down")
	if err := svc.SendContact(ctx, ContactRequest{Name: "A", Email: "a@example.com", Message: "hello"}); err == nil {
		t.Fatalf("expected send failure to surface")
	}
}
