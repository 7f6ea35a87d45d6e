package service

import (
	"context"
	netmail "net/mail"
	"strings"

	"sponsortracker/internal/models"
)

// BrandInput is the writable part of a brand.
type BrandInput struct {
	Name         string               `json:"name"`
	Category     models.BrandCategory `json:"category"`
	ContactName  *string              `json:"contact_name"`
	ContactEmail *string              `json:"contact_email"`
	ContactPhone *string              `json:"contact_phone"`
	Website      *string              `json:"website"`
	Notes        *string              `json:"notes"`
}

func (in BrandInput) apply(b *models.Brand) error {
	name := strings.TrimSpace(in.Name)
	if name == "" {
		return invalid("name is required")
	}
	if in.Category == "" {
		in.Category = "other"
	}
	if !in.Category.Valid() {
		return invalid("unknown category %q", in.Category)
	}
	email := optional(in.ContactEmail)
	if email != nil {
		if _, err := netmail.ParseAddress(*email); err != nil {
			return invalid("invalid contact_email")
		}
	}
	b.Name = name
	b.Category = in.Category
	b.ContactName = optional(in.ContactName)
	b.ContactEmail = email
	b.ContactPhone = optional(in.ContactPhone)
	b.Website = optional(in.Website)
	b.Notes = optional(in.Notes)
	return nil
}

// optional trims v and maps blank strings to nil.
func optional(v *string) *string {
	if v == nil {
		return nil
	}
	t := strings.TrimSpace(*v)
	if t == "" {
		return nil
	}
	return &t
}

func (s *Service) CreateBrand(ctx context.Context, userID string, in BrandInput) (models.Brand, error) {
	b := models.Brand{UserID: userID, CreatedAt: s.now()}
	if err := in.apply(&b); err != nil {
		return models.Brand{}, err
	}
	return s.st.CreateBrand(ctx, b)
}

func (s *Service) GetBrand(ctx context.Context, userID, id string) (models.Brand, error) {
	return s.st.GetBrand(ctx, userID, id)
}

func (s *Service) ListBrands(ctx context.Context, userID string, q models.BrandQuery) ([]models.Brand, error) {
	q.Search = strings.TrimSpace(q.Search)
	if q.Category != "" && !q.Category.Valid() {
		return nil, invalid("unknown category %q", q.Category)
	}
	return s.st.ListBrands(ctx, userID, q)
}

func (s *Service) BrandOptions(ctx context.Context, userID string) ([]models.BrandOption, error) {
	return s.st.ListBrandOptions(ctx, userID)
}

func (s *Service) UpdateBrand(ctx context.Context, userID, id string, in BrandInput) (models.Brand, error) {
	b, err := s.st.GetBrand(ctx, userID, id)
	if err != nil {
		return models.Brand{}, err
	}
	if err := in.apply(&b); err != nil {
		return models.Brand{}, err
	}
	if err := s.st.UpdateBrand(ctx, b); err != nil {
		return models.Brand{}, err
	}
	return b, nil
}

// DeleteBrand removes the brand and leaves its deals without one.
func (s *Service) DeleteBrand(ctx context.Context, userID, id string) error {
	return s.st.DeleteBrand(ctx, userID, id, s.now())
}
