package service

import (
	"context"
	netmail "net/mail"
	"strings"

	"sponsortracker/internal/metrics"
	"sponsortracker/internal/notify"
)

var (
	ErrContactMissingFields = invalid("Missing required fields")
	ErrContactInvalidEmail  = invalid("Invalid email address")
)

type ContactRequest struct {
	Name    string `json:"name"`
	Email   string `json:"email"`
	Message string `json:"message"`
}

// Validate trims the fields and checks that all are present and the address
// parses.
func (c *ContactRequest) Validate() error {
	c.Name = strings.TrimSpace(c.Name)
	c.Email = strings.TrimSpace(c.Email)
	c.Message = strings.TrimSpace(c.Message)
	if c.Name == "" || c.Email == "" || c.Message == "" {
		return ErrContactMissingFields
	}
	if addr, err := netmail.ParseAddress(c.Email); err != nil || addr.Address != c.Email {
		return ErrContactInvalidEmail
	}
	return nil
}

// SendContact forwards a validated contact form to the contact inbox.
func (s *Service) SendContact(ctx context.Context, c ContactRequest) error {
	if err := c.Validate(); err != nil {
		return err
	}
	err := s.sender.SendContact(ctx, notify.ContactMessage{Name: c.Name, Email: c.Email, Message: c.Message})
	metrics.EmailsSent.WithLabelValues("contact", metrics.Outcome(err)).Inc()
	return err
}
