package store

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"sponsortracker/internal/db"
	"sponsortracker/internal/models"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	sqdb, err := db.OpenSQLite(filepath.Join(t.TempDir(), "app.db"), 1, 1, time.Minute)
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	t.Cleanup(func() { _ = sqdb.Close() })
	if err := db.ApplyMigrations(sqdb, db.SQLite, filepath.Join("..", "..", "migrations")); err != nil {
		t.Fatalf("apply migrations: %v", err)
	}
	return New(sqdb, db.SQLite)
}

func mustUser(t *testing.T, st *Store, email string) models.User {
	t.Helper()
	u, err := st.CreateUser(context.Background(), email, "", "hash")
	if err != nil {
		t.Fatalf("create user %s: %v", email, err)
	}
	return u
}

func strPtr(v string) *string { return &v }

func TestCreateUserDefaultsAndConflict(t *testing.T) {
	st := newTestStore(t)
	ctx := context.Background()

	u := mustUser(t, st, "creator@example.com")
	got, err := st.GetUserByEmail(ctx, "creator@example.com")
	if err != nil {
		t.Fatalf("get user: %v", err)
	}
	if got.ID != u.ID || !got.EmailReminders {
		t.Fatalf("unexpected user: %+v", got)
	}
	if len(got.ReminderDays) != 2 || got.ReminderDays[0] != 3 || got.ReminderDays[1] != 1 {
		t.Fatalf("expected default reminder days [3 1], got %v", got.ReminderDays)
	}

	if _, err := st.CreateUser(ctx, "creator@example.com", "", "hash"); !errors.Is(err, ErrConflict) {
		t.Fatalf("expected ErrConflict for duplicate email, got %v", err)
	}
	if _, err := st.GetUserByID(ctx, "missing"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestUpdateUserSettingsAndRecipients(t *testing.T) {
	st := newTestStore(t)
	ctx := context.Background()
	a := mustUser(t, st, "a@example.com")
	b := mustUser(t, st, "b@example.com")

	if err := st.UpdateUserSettings(ctx, a.ID, "Alice", true, []int{7, 2}); err != nil {
		t.Fatalf("update settings: %v", err)
	}
	if err := st.SetEmailReminders(ctx, b.ID, false); err != nil {
		t.Fatalf("disable reminders: %v", err)
	}

	recipients, err := st.ListReminderRecipients(ctx)
	if err != nil {
		t.Fatalf("list recipients: %v", err)
	}
	if len(recipients) != 1 || recipients[0].ID != a.ID {
		t.Fatalf("expected only a as recipient, got %+v", recipients)
	}
	if recipients[0].Name != "Alice" || recipients[0].ReminderDays[0] != 7 || recipients[0].ReminderDays[1] != 2 {
		t.Fatalf("settings not persisted: %+v", recipients[0])
	}
	if err := st.SetEmailReminders(ctx, "missing", false); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestBrandsAreScopedPerUser(t *testing.T) {
	st := newTestStore(t)
	ctx := context.Background()
	owner := mustUser(t, st, "owner@example.com")
	other := mustUser(t, st, "other@example.com")

	base := time.Date(2025, 3, 1, 9, 0, 0, 0, time.UTC)
	nike, err := st.CreateBrand(ctx, models.Brand{UserID: owner.ID, Name: "Nike", Category: "fashion", CreatedAt: base})
	if err != nil {
		t.Fatalf("create brand: %v", err)
	}
	if _, err := st.CreateBrand(ctx, models.Brand{UserID: owner.ID, Name: "Samsung", Category: "tech", CreatedAt: base.Add(time.Hour)}); err != nil {
		t.Fatalf("create brand: %v", err)
	}

	if _, err := st.GetBrand(ctx, other.ID, nike.ID); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected foreign brand to be hidden, got %v", err)
	}

	all, err := st.ListBrands(ctx, owner.ID, models.BrandQuery{})
	if err != nil {
		t.Fatalf("list brands: %v", err)
	}
	if len(all) != 2 || all[0].Name != "Samsung" {
		t.Fatalf("expected newest first, got %+v", all)
	}

	found, err := st.ListBrands(ctx, owner.ID, models.BrandQuery{Search: "NIK"})
	if err != nil {
		t.Fatalf("search brands: %v", err)
	}
	if len(found) != 1 || found[0].ID != nike.ID {
		t.Fatalf("expected case-insensitive match on Nike, got %+v", found)
	}

	byCategory, err := st.ListBrands(ctx, owner.ID, models.BrandQuery{Category: "tech"})
	if err != nil {
		t.Fatalf("filter brands: %v", err)
	}
	if len(byCategory) != 1 || byCategory[0].Name != "Samsung" {
		t.Fatalf("expected Samsung for tech, got %+v", byCategory)
	}

	opts, err := st.ListBrandOptions(ctx, owner.ID)
	if err != nil {
		t.Fatalf("brand options: %v", err)
	}
	if len(opts) != 2 || opts[0].Name != "Nike" {
		t.Fatalf("expected options ordered by name, got %+v", opts)
	}

	nike.Name = "Nike Korea"
	nike.UserID = other.ID
	if err := st.UpdateBrand(ctx, nike); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected update by other user to miss, got %v", err)
	}
}

func TestDeleteBrandDetachesDeals(t *testing.T) {
	st := newTestStore(t)
	ctx := context.Background()
	u := mustUser(t, st, "creator@example.com")

	brand, err := st.CreateBrand(ctx, models.Brand{UserID: u.ID, Name: "Olive Young", Category: "beauty"})
	if err != nil {
		t.Fatalf("create brand: %v", err)
	}
	deal, err := st.CreateDeal(ctx, models.Deal{
		UserID: u.ID, BrandID: &brand.ID, Title: "Spring haul", Status: models.StatusPitching,
		Amount: decimal.NewFromInt(500000), Currency: models.CurrencyKRW, ContentType: "youtube_video",
	})
	if err != nil {
		t.Fatalf("create deal: %v", err)
	}
	if deal.Brand == nil || deal.Brand.Name != "Olive Young" {
		t.Fatalf("expected embedded brand on read, got %+v", deal.Brand)
	}

	if err := st.DeleteBrand(ctx, u.ID, brand.ID, time.Now().UTC()); err != nil {
		t.Fatalf("delete brand: %v", err)
	}
	got, err := st.GetDeal(ctx, u.ID, deal.ID)
	if err != nil {
		t.Fatalf("deal should survive brand delete: %v", err)
	}
	if got.BrandID != nil || got.Brand != nil {
		t.Fatalf("expected detached deal, got brand_id=%v brand=%+v", got.BrandID, got.Brand)
	}
	if err := st.DeleteBrand(ctx, u.ID, brand.ID, time.Now().UTC()); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound on second delete, got %v", err)
	}
}

func TestDealFiltersAndStatusMove(t *testing.T) {
	st := newTestStore(t)
	ctx := context.Background()
	u := mustUser(t, st, "creator@example.com")
	brand, err := st.CreateBrand(ctx, models.Brand{UserID: u.ID, Name: "Coupang", Category: "lifestyle"})
	if err != nil {
		t.Fatalf("create brand: %v", err)
	}

	base := time.Date(2025, 3, 1, 9, 0, 0, 0, time.UTC)
	first, err := st.CreateDeal(ctx, models.Deal{
		UserID: u.ID, BrandID: &brand.ID, Title: "Reel", Status: models.StatusPitching,
		Amount: decimal.RequireFromString("1250.50"), Currency: models.CurrencyUSD, ContentType: "instagram_reel",
		Deadline: strPtr("2025-03-04"), CreatedAt: base,
	})
	if err != nil {
		t.Fatalf("create deal: %v", err)
	}
	if _, err := st.CreateDeal(ctx, models.Deal{
		UserID: u.ID, Title: "Blog", Status: models.StatusPaid,
		Amount: decimal.NewFromInt(300000), Currency: models.CurrencyKRW, ContentType: "blog",
		Deadline: strPtr("2025-03-04"), CreatedAt: base.Add(time.Minute),
	}); err != nil {
		t.Fatalf("create deal: %v", err)
	}

	all, err := st.ListDeals(ctx, u.ID, models.DealQuery{})
	if err != nil {
		t.Fatalf("list deals: %v", err)
	}
	if len(all) != 2 || all[0].Title != "Blog" {
		t.Fatalf("expected newest first, got %+v", all)
	}
	if !all[1].Amount.Equal(decimal.RequireFromString("1250.5")) {
		t.Fatalf("amount not preserved: %s", all[1].Amount)
	}

	byBrand, err := st.ListDeals(ctx, u.ID, models.DealQuery{BrandID: brand.ID})
	if err != nil || len(byBrand) != 1 {
		t.Fatalf("expected one deal for brand, got %d (%v)", len(byBrand), err)
	}
	paid, err := st.ListDeals(ctx, u.ID, models.DealQuery{Status: models.StatusPaid})
	if err != nil || len(paid) != 1 || paid[0].Title != "Blog" {
		t.Fatalf("expected paid filter to return Blog, got %+v (%v)", paid, err)
	}

	due, err := st.ListDealsDueOn(ctx, u.ID, "2025-03-04")
	if err != nil {
		t.Fatalf("list due: %v", err)
	}
	if len(due) != 1 || due[0].ID != first.ID {
		t.Fatalf("expected only the open deal to be due, got %+v", due)
	}

	upcoming, err := st.ListUpcomingDeadlines(ctx, u.ID, "2025-03-01", "2025-03-08")
	if err != nil || len(upcoming) != 1 {
		t.Fatalf("expected one upcoming deadline, got %d (%v)", len(upcoming), err)
	}

	moved := base.Add(2 * time.Hour)
	prev, err := st.UpdateDealStatus(ctx, u.ID, first.ID, models.StatusNegotiating, moved)
	if err != nil {
		t.Fatalf("update status: %v", err)
	}
	if prev != models.StatusPitching {
		t.Fatalf("expected previous status pitching, got %s", prev)
	}
	got, err := st.GetDeal(ctx, u.ID, first.ID)
	if err != nil {
		t.Fatalf("get deal: %v", err)
	}
	if got.Status != models.StatusNegotiating || !got.UpdatedAt.Equal(moved) {
		t.Fatalf("status move not persisted: %+v", got)
	}

	other := mustUser(t, st, "other@example.com")
	if _, err := st.UpdateDealStatus(ctx, other.ID, first.ID, models.StatusPaid, moved); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound for foreign deal, got %v", err)
	}
	if err := st.DeleteDeal(ctx, other.ID, first.ID); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound deleting foreign deal, got %v", err)
	}
}

func TestRecordReminderIsUniquePerDealAndDate(t *testing.T) {
	st := newTestStore(t)
	ctx := context.Background()
	u := mustUser(t, st, "creator@example.com")
	deal, err := st.CreateDeal(ctx, models.Deal{
		UserID: u.ID, Title: "Shorts", Status: models.StatusProducing,
		Amount: decimal.Zero, Currency: models.CurrencyKRW, ContentType: "youtube_shorts",
	})
	if err != nil {
		t.Fatalf("create deal: %v", err)
	}

	sent, err := st.ReminderSent(ctx, deal.ID, "2025-03-04")
	if err != nil || sent {
		t.Fatalf("expected no reminder yet, got %v (%v)", sent, err)
	}
	if err := st.RecordReminder(ctx, deal.ID, "2025-03-04", time.Now().UTC()); err != nil {
		t.Fatalf("record reminder: %v", err)
	}
	if err := st.RecordReminder(ctx, deal.ID, "2025-03-04", time.Now().UTC()); !errors.Is(err, ErrConflict) {
		t.Fatalf("expected ErrConflict on duplicate reminder, got %v", err)
	}
	sent, err = st.ReminderSent(ctx, deal.ID, "2025-03-04")
	if err != nil || !sent {
		t.Fatalf("expected reminder recorded, got %v (%v)", sent, err)
	}
}

func TestDecodeDays(t *testing.T) {
	if got := DecodeDays("1,7,x,3"); len(got) != 3 || got[0] != 7 || got[2] != 1 {
		t.Fatalf("unexpected decode: %v", got)
	}
	if got := DecodeDays(""); len(got) != 2 || got[0] != 3 {
		t.Fatalf("expected defaults for empty value, got %v", got)
	}
	if EncodeDays([]int{3, 1}) != "3,1" {
		t.Fatalf("unexpected encode")
	}
}
