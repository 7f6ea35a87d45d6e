package api

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"testing"

	"sponsortracker/internal/captcha"
	"sponsortracker/internal/config"
)

var validContact = map[string]string{
	"name":    "Jin",
	"email":   "jin@example.com",
	"message": "Can we talk about a collab?",
}

func TestContactRateLimitedPerClientIP(t *testing.T) {
	env := newTestEnv(t, nil, Options{})

	for i := 1; i <= 5; i++ {
		rec := doJSON(t, env.router, http.MethodPost, "/api/contact", validContact, fromIP("203.0.113.7"))
		if rec.Code != http.StatusOK {
			t.Fatalf("request %d: expected 200, got %d body=%s", i, rec.Code, rec.Body.String())
		}
		if got := rec.Header().Get("X-RateLimit-Remaining"); got != strconv.Itoa(5-i) {
			t.Fatalf("request %d: expected remaining %d, got %q", i, 5-i, got)
		}
	}

	rec := doJSON(t, env.router, http.MethodPost, "/api/contact", validContact, fromIP("203.0.113.7"))
	if rec.Code != http.StatusTooManyRequests {
		t.Fatalf("expected 429, got %d", rec.Code)
	}
	retry, err := strconv.Atoi(rec.Header().Get("Retry-After"))
	if err != nil || retry < 1 || retry > 60 {
		t.Fatalf("expected Retry-After within the window, got %q", rec.Header().Get("Retry-After"))
	}
	var body map[string]string
	decodeBody(t, rec, &body)
	if body["error"] != "Too many requests. Please try again later." {
		t.Fatalf("unexpected 429 body: %v", body)
	}
	if len(env.sender.contacts) != 5 {
		t.Fatalf("expected 5 forwarded messages, got %d", len(env.sender.contacts))
	}

	other := doJSON(t, env.router, http.MethodPost, "/api/contact", validContact, fromIP("198.51.100.9, 203.0.113.7"))
	if other.Code != http.StatusOK {
		t.Fatalf("expected a different client to pass, got %d", other.Code)
	}

	env.limiter.mu.Lock()
	defer env.limiter.mu.Unlock()
	if env.limiter.keys[0] != "contact:203.0.113.7" || env.limiter.keys[len(env.limiter.keys)-1] != "contact:198.51.100.9" {
		t.Fatalf("unexpected limiter keys: %v", env.limiter.keys)
	}
}

func TestContactWithoutAddressHeadersSharesAnonymousBucket(t *testing.T) {
	env := newTestEnv(t, nil, Options{})
	doJSON(t, env.router, http.MethodPost, "/api/contact", validContact)
	env.limiter.mu.Lock()
	defer env.limiter.mu.Unlock()
	if env.limiter.keys[0] != "contact:anonymous" {
		t.Fatalf("expected anonymous key, got %v", env.limiter.keys)
	}
}

func TestContactValidation(t *testing.T) {
	env := newTestEnv(t, nil, Options{})
	cases := []struct {
		name string
		body map[string]string
		want string
	}{
		{"missing message", map[string]string{"name": "Jin", "email": "jin@example.com"}, "Missing required fields"},
		{"blank name", map[string]string{"name": " ", "email": "jin@example.com", "message": "hi"}, "Missing required fields"},
		{"bad email", map[string]string{"name": "Jin", "email": "jin-at-example", "message": "hi"}, "Invalid email address"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			rec := doJSON(t, env.router, http.MethodPost, "/api/contact", tc.body, fromIP("192.0.2."+strconv.Itoa(len(tc.name))))
			if rec.Code != http.StatusBadRequest {
				t.Fatalf("expected 400, got %d", rec.Code)
			}
			var body map[string]string
			decodeBody(t, rec, &body)
			if body["error"] != tc.want {
				t.Fatalf("expected %q, got %v", tc.want, body)
			}
		})
	}
	if len(env.sender.contacts) != 0 {
		t.Fatalf("invalid submissions must not be forwarded")
	}
}

func TestContactSendFailure(t *testing.T) {
	env := newTestEnv(t, nil, Options{})
	env.sender.failWith = errors.New("smtp down")
	rec := doJSON(t, env.router, http.MethodPost, "/api/contact", validContact, fromIP("192.0.2.10"))
	if rec.Code != http.StatusInternalServerError {
		t.Fatalf("expected 500, got %d", rec.Code)
	}
	var body map[string]string
	decodeBody(t, rec, &body)
	if body["error"] != "Failed to send message" {
		t.Fatalf("unexpected body: %v", body)
	}
}

type stubVerifier struct{ err error }

func (s stubVerifier) Verify(ctx context.Context, token, remoteIP string) error { return s.err }

func TestContactCaptcha(t *testing.T) {
	enable := func(c *config.Config) { c.CaptchaEnabled = true }

	rejected := newTestEnv(t, enable, Options{Captcha: stubVerifier{err: captcha.ErrCaptchaRequired}})
	rec := doJSON(t, rejected.router, http.MethodPost, "/api/contact", validContact, fromIP("192.0.2.11"))
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 for rejected captcha, got %d", rec.Code)
	}

	accepted := newTestEnv(t, enable, Options{Captcha: stubVerifier{}})
	rec = doJSON(t, accepted.router, http.MethodPost, "/api/contact", validContact, fromIP("192.0.2.11"))
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200 for accepted captcha, got %d", rec.Code)
	}
}
