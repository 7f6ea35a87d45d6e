package api

import (
	"crypto/subtle"
	"errors"
	"net/http"
	"strings"

	"go.uber.org/zap"

	"sponsortracker/internal/auth"
	"sponsortracker/internal/metrics"
	"sponsortracker/internal/middleware"
	"sponsortracker/internal/service"
	"sponsortracker/internal/util"
)

type signupRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
	Name     string `json:"name"`
}

func (h *Handlers) Signup(w http.ResponseWriter, r *http.Request) {
	var req signupRequest
	if err := util.DecodeJSON(w, r, &req); err != nil {
		h.badJSON(w, r)
		return
	}
	u, err := h.svc.Signup(r.Context(), req.Email, req.Password, req.Name)
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}
	util.WriteJSON(w, http.StatusCreated, u)
}

type loginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

func (h *Handlers) Login(w http.ResponseWriter, r *http.Request) {
	var req loginRequest
	if err := util.DecodeJSON(w, r, &req); err != nil {
		h.badJSON(w, r)
		return
	}
	token, user, err := h.svc.Login(r.Context(), req.Email, req.Password, middleware.ClientIP(r), r.UserAgent())
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}
	csrfToken := auth.RandomToken()
	h.setAuthCookies(w, r, token, csrfToken)
	util.WriteJSON(w, http.StatusOK, map[string]any{"user": user, "csrf_token": csrfToken})
}

func (h *Handlers) Logout(w http.ResponseWriter, r *http.Request) {
	if c, _ := r.Cookie(h.cfg.SessionCookieName); c != nil && c.Value != "" {
		if err := h.svc.Logout(r.Context(), c.Value); err != nil {
			h.log.Warn("logout failed", zap.String("request_id", middleware.RequestID(r.Context())), zap.Error(err))
		}
	}
	h.clearAuthCookies(w, r)
	util.WriteJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (h *Handlers) Me(w http.ResponseWriter, r *http.Request) {
	u, _ := middleware.User(r.Context())
	util.WriteJSON(w, http.StatusOK, u)
}

type settingsRequest struct {
	Name           *string `json:"name"`
	EmailReminders *bool   `json:"email_reminders"`
	ReminderDays   []int   `json:"reminder_days"`
}

func (h *Handlers) UpdateSettings(w http.ResponseWriter, r *http.Request) {
	u, _ := middleware.User(r.Context())
	var req settingsRequest
	if err := util.DecodeJSON(w, r, &req); err != nil {
		h.badJSON(w, r)
		return
	}
	updated, err := h.svc.UpdateSettings(r.Context(), u.ID, service.SettingsPatch{
		Name:           req.Name,
		EmailReminders: req.EmailReminders,
		ReminderDays:   req.ReminderDays,
	})
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}
	util.WriteJSON(w, http.StatusOK, updated)
}

func (h *Handlers) Unsubscribe(w http.ResponseWriter, r *http.Request) {
	if err := h.svc.Unsubscribe(r.Context(), r.URL.Query().Get("token")); err != nil {
		h.writeServiceError(w, r, err)
		return
	}
	util.WriteJSON(w, http.StatusOK, map[string]string{"status": "unsubscribed"})
}

type contactRequest struct {
	service.ContactRequest
	CaptchaToken string `json:"captcha_token"`
}

// Contact keeps the public form's bare {"error": ...} response shape.
func (h *Handlers) Contact(w http.ResponseWriter, r *http.Request) {
	var req contactRequest
	if err := util.DecodeJSON(w, r, &req); err != nil {
		util.WriteSimpleError(w, http.StatusBadRequest, "Invalid request body")
		return
	}
	if err := req.Validate(); err != nil {
		msg := "Missing required fields"
		if errors.Is(err, service.ErrContactInvalidEmail) {
			msg = "Invalid email address"
		}
		util.WriteSimpleError(w, http.StatusBadRequest, msg)
		return
	}
	if h.cfg.CaptchaEnabled {
		if err := h.captchaVerifier.Verify(r.Context(), req.CaptchaToken, middleware.ClientIP(r)); err != nil {
			h.log.Info("contact captcha rejected", zap.String("request_id", middleware.RequestID(r.Context())), zap.Error(err))
			util.WriteSimpleError(w, http.StatusBadRequest, "Captcha verification failed")
			return
		}
	}
	if err := h.svc.SendContact(r.Context(), req.ContactRequest); err != nil {
		h.log.Error("contact form send failed", zap.String("request_id", middleware.RequestID(r.Context())), zap.Error(err))
		util.WriteSimpleError(w, http.StatusInternalServerError, "Failed to send message")
		return
	}
	util.WriteJSON(w, http.StatusOK, map[string]bool{"success": true})
}

// CronReminders is the external trigger for the deadline reminder job.
func (h *Handlers) CronReminders(w http.ResponseWriter, r *http.Request) {
	if h.cfg.CronSecret == "" {
		util.WriteSimpleError(w, http.StatusServiceUnavailable, "Cron secret not configured")
		return
	}
	got := strings.TrimSpace(r.Header.Get("Authorization"))
	want := "Bearer " + h.cfg.CronSecret
	if subtle.ConstantTimeCompare([]byte(got), []byte(want)) != 1 {
		util.WriteSimpleError(w, http.StatusUnauthorized, "Unauthorized")
		return
	}
	run, err := h.svc.RunDeadlineReminders(r.Context(), h.svc.Now())
	metrics.ReminderRuns.WithLabelValues("cron", metrics.Outcome(err)).Inc()
	if err != nil {
		h.log.Error("cron reminder run failed", zap.Error(err))
		util.WriteSimpleError(w, http.StatusInternalServerError, err.Error())
		return
	}
	util.WriteJSON(w, http.StatusOK, map[string]any{
		"success": true,
		"sent":    run.Sent,
		"total":   run.Total,
		"errors":  run.Errors,
	})
}
