package service

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"sponsortracker/internal/analytics"
	"sponsortracker/internal/metrics"
	"sponsortracker/internal/models"
	"sponsortracker/internal/notify"
	"sponsortracker/internal/store"
)

const dateLayout = "2006-01-02"

// DealInput is the writable part of a deal. Status defaults to pitching,
// currency to KRW and content type to other.
type DealInput struct {
	BrandID     *string            `json:"brand_id"`
	Title       string             `json:"title"`
	Status      models.DealStatus  `json:"status"`
	Amount      decimal.Decimal    `json:"amount"`
	Currency    models.Currency    `json:"currency"`
	ContentType models.ContentType `json:"content_type"`
	Deadline    *string            `json:"deadline"`
	PublishDate *string            `json:"publish_date"`
	PaymentDate *string            `json:"payment_date"`
	Notes       *string            `json:"notes"`
}

func validDate(field string, v *string) (*string, error) {
	v = optional(v)
	if v == nil {
		return nil, nil
	}
	if _, err := time.Parse(dateLayout, *v); err != nil {
		return nil, invalid("%s must be YYYY-MM-DD", field)
	}
	return v, nil
}

func (s *Service) applyDeal(ctx context.Context, userID string, in DealInput, d *models.Deal) error {
	title := strings.TrimSpace(in.Title)
	if title == "" {
		return invalid("title is required")
	}
	if in.Status == "" {
		in.Status = models.StatusPitching
	}
	if !in.Status.Valid() {
		return invalid("unknown status %q", in.Status)
	}
	if in.Currency == "" {
		in.Currency = models.CurrencyKRW
	}
	if !in.Currency.Valid() {
		return invalid("unknown currency %q", in.Currency)
	}
	if in.ContentType == "" {
		in.ContentType = "other"
	}
	if !in.ContentType.Valid() {
		return invalid("unknown content_type %q", in.ContentType)
	}
	if in.Amount.IsNegative() {
		return invalid("amount must not be negative")
	}

	deadline, err := validDate("deadline", in.Deadline)
	if err != nil {
		return err
	}
	publish, err := validDate("publish_date", in.PublishDate)
	if err != nil {
		return err
	}
	payment, err := validDate("payment_date", in.PaymentDate)
	if err != nil {
		return err
	}

	brandID := optional(in.BrandID)
	if brandID != nil {
		if _, err := s.st.GetBrand(ctx, userID, *brandID); err != nil {
			if errors.Is(err, store.ErrNotFound) {
				return invalid("brand_id does not reference one of your brands")
			}
			return err
		}
	}

	d.BrandID = brandID
	d.Title = title
	d.Status = in.Status
	d.Amount = in.Amount
	d.Currency = in.Currency
	d.ContentType = in.ContentType
	d.Deadline = deadline
	d.PublishDate = publish
	d.PaymentDate = payment
	d.Notes = optional(in.Notes)
	return nil
}

func (s *Service) CreateDeal(ctx context.Context, userID string, in DealInput) (models.Deal, error) {
	now := s.now()
	d := models.Deal{UserID: userID, CreatedAt: now, UpdatedAt: now}
	if err := s.applyDeal(ctx, userID, in, &d); err != nil {
		return models.Deal{}, err
	}
	return s.st.CreateDeal(ctx, d)
}

func (s *Service) GetDeal(ctx context.Context, userID, id string) (models.Deal, error) {
	return s.st.GetDeal(ctx, userID, id)
}

func (s *Service) ListDeals(ctx context.Context, userID string, q models.DealQuery) ([]models.Deal, error) {
	if q.Status != "" && !q.Status.Valid() {
		return nil, invalid("unknown status %q", q.Status)
	}
	return s.st.ListDeals(ctx, userID, q)
}

func (s *Service) UpdateDeal(ctx context.Context, userID, id string, in DealInput) (models.Deal, error) {
	d, err := s.st.GetDeal(ctx, userID, id)
	if err != nil {
		return models.Deal{}, err
	}
	if err := s.applyDeal(ctx, userID, in, &d); err != nil {
		return models.Deal{}, err
	}
	d.UpdatedAt = s.now()
	if err := s.st.UpdateDeal(ctx, d); err != nil {
		return models.Deal{}, err
	}
	return s.st.GetDeal(ctx, userID, id)
}

func (s *Service) DeleteDeal(ctx context.Context, userID, id string) error {
	return s.st.DeleteDeal(ctx, userID, id)
}

// MoveDeal changes a deal's pipeline status. When the status actually
// changes and the owner wants emails, a status update is sent; a failed send
// is logged and does not undo the move.
func (s *Service) MoveDeal(ctx context.Context, owner models.User, id string, status models.DealStatus) (models.Deal, error) {
	if !status.Valid() {
		return models.Deal{}, invalid("unknown status %q", status)
	}
	prev, err := s.st.UpdateDealStatus(ctx, owner.ID, id, status, s.now())
	if err != nil {
		return models.Deal{}, err
	}
	d, err := s.st.GetDeal(ctx, owner.ID, id)
	if err != nil {
		return models.Deal{}, err
	}
	if prev == status || !owner.EmailReminders {
		return d, nil
	}

	msg := notify.StatusUpdate{
		To:             owner.Email,
		UserName:       owner.DisplayName(),
		DealTitle:      d.Title,
		OldStatus:      prev,
		NewStatus:      status,
		DealURL:        s.dealURL(d.ID),
		UnsubscribeURL: s.UnsubscribeURL(owner.ID),
	}
	if d.Brand != nil {
		msg.BrandName = d.Brand.Name
	}
	err = s.sender.SendStatusUpdate(ctx, msg)
	metrics.EmailsSent.WithLabelValues("status", metrics.Outcome(err)).Inc()
	if err != nil {
		s.log.Warn("status update email failed",
			zap.String("deal_id", d.ID),
			zap.String("user_id", owner.ID),
			zap.Error(err),
		)
	}
	return d, nil
}

func (s *Service) Board(ctx context.Context, userID string) ([]analytics.Column, error) {
	deals, err := s.st.ListDeals(ctx, userID, models.DealQuery{})
	if err != nil {
		return nil, err
	}
	return s.analyzer.Board(deals), nil
}

func (s *Service) allDeals(ctx context.Context, userID string) ([]models.Deal, error) {
	return s.st.ListDeals(ctx, userID, models.DealQuery{})
}

func (s *Service) Summary(ctx context.Context, userID string) (analytics.Summary, error) {
	deals, err := s.allDeals(ctx, userID)
	if err != nil {
		return analytics.Summary{}, err
	}
	return s.analyzer.Summarize(deals), nil
}

func (s *Service) MonthlyRevenue(ctx context.Context, userID string) ([]analytics.MonthlyRevenue, error) {
	deals, err := s.allDeals(ctx, userID)
	if err != nil {
		return nil, err
	}
	return s.analyzer.Monthly(deals, s.now()), nil
}

func (s *Service) RevenueByBrand(ctx context.Context, userID string) ([]analytics.BrandRevenue, error) {
	deals, err := s.allDeals(ctx, userID)
	if err != nil {
		return nil, err
	}
	return s.analyzer.ByBrand(deals), nil
}

func (s *Service) DealsByStatus(ctx context.Context, userID string) ([]analytics.StatusSummary, error) {
	deals, err := s.allDeals(ctx, userID)
	if err != nil {
		return nil, err
	}
	return s.analyzer.ByStatus(deals), nil
}

type Dashboard struct {
	Summary           analytics.Summary `json:"summary"`
	UpcomingDeadlines []models.Deal     `json:"upcoming_deadlines"`
	RecentDeals       []models.Deal     `json:"recent_deals"`
}

const (
	dashboardHorizonDays = 7
	dashboardRecentDeals = 5
)

func (s *Service) Dashboard(ctx context.Context, userID string) (Dashboard, error) {
	deals, err := s.allDeals(ctx, userID)
	if err != nil {
		return Dashboard{}, err
	}
	today := s.now()
	upcoming, err := s.st.ListUpcomingDeadlines(ctx, userID,
		today.Format(dateLayout), today.AddDate(0, 0, dashboardHorizonDays).Format(dateLayout))
	if err != nil {
		return Dashboard{}, err
	}
	recent := deals
	if len(recent) > dashboardRecentDeals {
		recent = recent[:dashboardRecentDeals]
	}
	if upcoming == nil {
		upcoming = []models.Deal{}
	}
	if recent == nil {
		recent = []models.Deal{}
	}
	return Dashboard{
		Summary:           s.analyzer.Summarize(deals),
		UpcomingDeadlines: upcoming,
		RecentDeals:       recent,
	}, nil
}
