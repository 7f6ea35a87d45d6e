// Package captcha checks contact form tokens against a hosted verifier.
package captcha

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"sponsortracker/internal/config"
)

var (
	ErrCaptchaRequired    = errors.New("captcha_required")
	ErrCaptchaUnavailable = errors.New("captcha_unavailable")
)

type Verifier interface {
	Verify(ctx context.Context, token, remoteIP string) error
}

// NoopVerifier accepts every token; used when CAPTCHA_ENABLED is off.
type NoopVerifier struct{}

func (NoopVerifier) Verify(ctx context.Context, token, remoteIP string) error { return nil }

// HTTPVerifier speaks the siteverify protocol. turnstile and hcaptcha take a
// form body; cap takes JSON and reports failures in error/message fields.
type HTTPVerifier struct {
	provider  string
	verifyURL string
	secret    string
	client    *http.Client
}

func NewVerifier(cfg config.Config) Verifier {
	if !cfg.CaptchaEnabled {
		return NoopVerifier{}
	}
	return NewHTTPVerifier(cfg.CaptchaProvider, cfg.CaptchaVerifyURL, cfg.CaptchaSecret, &http.Client{Timeout: 8 * time.Second})
}

func NewHTTPVerifier(provider, verifyURL, secret string, client *http.Client) *HTTPVerifier {
	return &HTTPVerifier{
		provider:  strings.ToLower(strings.TrimSpace(provider)),
		verifyURL: strings.TrimSpace(verifyURL),
		secret:    strings.TrimSpace(secret),
		client:    client,
	}
}

type verifyResponse struct {
	Success    bool     `json:"success"`
	ErrorCodes []string `json:"error-codes"`
	Error      string   `json:"error"`
	Message    string   `json:"message"`
}

func (v *HTTPVerifier) Verify(ctx context.Context, token, remoteIP string) error {
	token = strings.TrimSpace(token)
	if token == "" {
		return fmt.Errorf("%w: captcha token is required", ErrCaptchaRequired)
	}
	remoteIP = strings.TrimSpace(remoteIP)

	var (
		body        io.Reader
		contentType string
		jsonAPI     bool
	)
	switch v.provider {
	case "", "turnstile", "hcaptcha":
		form := url.Values{"secret": {v.secret}, "response": {token}}
		if remoteIP != "" {
			form.Set("remoteip", remoteIP)
		}
		body, contentType = strings.NewReader(form.Encode()), "application/x-www-form-urlencoded"
	case "cap":
		payload := map[string]string{"secret": v.secret, "response": token}
		if remoteIP != "" {
			payload["remoteip"] = remoteIP
		}
		raw, err := json.Marshal(payload)
		if err != nil {
			return fmt.Errorf("%w: %v", ErrCaptchaUnavailable, err)
		}
		body, contentType, jsonAPI = bytes.NewReader(raw), "application/json", true
	default:
		return fmt.Errorf("%w: unsupported captcha provider %q", ErrCaptchaUnavailable, v.provider)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, v.verifyURL, body)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrCaptchaUnavailable, err)
	}
	req.Header.Set("Content-Type", contentType)
	return v.do(req, jsonAPI)
}

func (v *HTTPVerifier) do(req *http.Request, jsonAPI bool) error {
	resp, err := v.client.Do(req)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrCaptchaUnavailable, err)
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode >= 500, jsonAPI && (resp.StatusCode < 200 || resp.StatusCode >= 300):
		return fmt.Errorf("%w: captcha verify HTTP %d", ErrCaptchaUnavailable, resp.StatusCode)
	case resp.StatusCode < 200 || resp.StatusCode >= 300:
		return fmt.Errorf("%w: captcha verify HTTP %d", ErrCaptchaRequired, resp.StatusCode)
	}

	var out verifyResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return fmt.Errorf("%w: %v", ErrCaptchaUnavailable, err)
	}
	if out.Success {
		return nil
	}
	reason := "captcha rejected"
	switch {
	case jsonAPI && strings.TrimSpace(out.Error) != "":
		reason = out.Error
	case jsonAPI && strings.TrimSpace(out.Message) != "":
		reason = out.Message
	case len(out.ErrorCodes) > 0:
		reason = "captcha rejected: " + strings.Join(out.ErrorCodes, ",")
	}
	return fmt.Errorf("%w: %s", ErrCaptchaRequired, reason)
}
