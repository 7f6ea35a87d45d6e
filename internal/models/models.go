package models

import (
	"time"

	"github.com/shopspring/decimal"
)

type DealStatus string

const (
	StatusPitching    DealStatus = "pitching"
	StatusNegotiating DealStatus = "negotiating"
	StatusContracted  DealStatus = "contracted"
	StatusProducing   DealStatus = "producing"
	StatusPublished   DealStatus = "published"
	StatusPaid        DealStatus = "paid"
)

// Pipeline is the kanban column order.
var Pipeline = []DealStatus{
	StatusPitching,
	StatusNegotiating,
	StatusContracted,
	StatusProducing,
	StatusPublished,
	StatusPaid,
}

var statusLabels = map[DealStatus]string{
	StatusPitching:    "Pitching",
	StatusNegotiating: "Negotiating",
	StatusContracted:  "Contracted",
	StatusProducing:   "Producing",
	StatusPublished:   "Published",
	StatusPaid:        "Paid",
}

func (s DealStatus) Valid() bool {
	_, ok := statusLabels[s]
	return ok
}

func (s DealStatus) Label() string {
	if l, ok := statusLabels[s]; ok {
		return l
	}
	return string(s)
}

// Closed reports whether the deal no longer needs deadline reminders.
func (s DealStatus) Closed() bool {
	return s == StatusPublished || s == StatusPaid
}

type ContentType string

var contentTypeLabels = map[ContentType]string{
	"instagram_post":  "Instagram post",
	"instagram_reel":  "Instagram reel",
	"instagram_story": "Instagram story",
	"youtube_video":   "YouTube video",
	"youtube_shorts":  "YouTube Shorts",
	"tiktok":          "TikTok",
	"blog":            "Blog",
	"other":           "Other",
}

func (c ContentType) Valid() bool {
	_, ok := contentTypeLabels[c]
	return ok
}

func (c ContentType) Label() string {
	if l, ok := contentTypeLabels[c]; ok {
		return l
	}
	return string(c)
}

type Currency string

const (
	CurrencyKRW Currency = "KRW"
	CurrencyUSD Currency = "USD"
)

func (c Currency) Valid() bool { return c == CurrencyKRW || c == CurrencyUSD }

type BrandCategory string

var brandCategories = map[BrandCategory]string{
	"fashion":   "Fashion",
	"beauty":    "Beauty",
	"tech":      "Tech",
	"food":      "Food",
	"travel":    "Travel",
	"lifestyle": "Lifestyle",
	"health":    "Health",
	"finance":   "Finance",
	"education": "Education",
	"other":     "Other",
}

func (c BrandCategory) Valid() bool {
	_, ok := brandCategories[c]
	return ok
}

func (c BrandCategory) Label() string {
	if l, ok := brandCategories[c]; ok {
		return l
	}
	return string(c)
}

// DefaultReminderDays is used when a user never chose their own offsets.
var DefaultReminderDays = []int{3, 1}

type User struct {
	ID             string     `json:"id"`
	Email          string     `json:"email"`
	Name           string     `json:"name"`
	PasswordHash   string     `json:"-"`
	EmailReminders bool       `json:"email_reminders"`
	ReminderDays   []int      `json:"reminder_days"`
	CreatedAt      time.Time  `json:"created_at"`
	LastLoginAt    *time.Time `json:"last_login_at,omitempty"`
}

// DisplayName falls back to the local part of the email address.
func (u User) DisplayName() string {
	if u.Name != "" {
		return u.Name
	}
	for i := 0; i < len(u.Email); i++ {
		if u.Email[i] == '@' {
			return u.Email[:i]
		}
	}
	return u.Email
}

type Session struct {
	ID            string
	UserID        string
	TokenHash     string
	IPHint        string
	UserAgentHash string
	ExpiresAt     time.Time
	IdleExpiresAt time.Time
	CreatedAt     time.Time
	LastSeenAt    time.Time
	RevokedAt     *time.Time
}

type Brand struct {
	ID           string        `json:"id"`
	UserID       string        `json:"user_id"`
	Name         string        `json:"name"`
	Category     BrandCategory `json:"category"`
	ContactName  *string       `json:"contact_name"`
	ContactEmail *string       `json:"contact_email"`
	ContactPhone *string       `json:"contact_phone"`
	Website      *string       `json:"website"`
	Notes        *string       `json:"notes"`
	CreatedAt    time.Time     `json:"created_at"`
}

type BrandOption struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

type BrandRef struct {
	ID       string        `json:"id"`
	Name     string        `json:"name"`
	Category BrandCategory `json:"category"`
}

type Deal struct {
	ID          string          `json:"id"`
	UserID      string          `json:"user_id"`
	BrandID     *string         `json:"brand_id"`
	Title       string          `json:"title"`
	Status      DealStatus      `json:"status"`
	Amount      decimal.Decimal `json:"amount"`
	Currency    Currency        `json:"currency"`
	ContentType ContentType     `json:"content_type"`
	Deadline    *string         `json:"deadline"`
	PublishDate *string         `json:"publish_date"`
	PaymentDate *string         `json:"payment_date"`
	Notes       *string         `json:"notes"`
	CreatedAt   time.Time       `json:"created_at"`
	UpdatedAt   time.Time       `json:"updated_at"`
	Brand       *BrandRef       `json:"brand,omitempty"`
}

type Reminder struct {
	ID         string    `json:"id"`
	DealID     string    `json:"deal_id"`
	RemindDate string    `json:"remind_date"`
	Sent       bool      `json:"sent"`
	CreatedAt  time.Time `json:"created_at"`
}

type BrandQuery struct {
	Search   string
	Category BrandCategory
}

type DealQuery struct {
	Status  DealStatus
	BrandID string
	Limit   int
}

// DueDeal is a deal joined with its owner, as needed to send a reminder.
type DueDeal struct {
	Deal  Deal
	Owner User
}
