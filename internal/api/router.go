package api

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"go.uber.org/zap"

	"sponsortracker/internal/captcha"
	"sponsortracker/internal/config"
	"sponsortracker/internal/metrics"
	"sponsortracker/internal/middleware"
	"sponsortracker/internal/rate"
	"sponsortracker/internal/service"
	"sponsortracker/internal/store"
	"sponsortracker/internal/util"
	"sponsortracker/internal/version"
)

type Handlers struct {
	cfg             config.Config
	svc             *service.Service
	limiter         rate.Backend
	captchaVerifier captcha.Verifier
	log             *zap.Logger
	mailProbe       func(context.Context) error
}

// Options carries the router's collaborators. Zero values fall back to an
// in-process limiter, the configured captcha verifier and a no-op logger.
type Options struct {
	Limiter   rate.Backend
	Captcha   captcha.Verifier
	Logger    *zap.Logger
	MailProbe func(context.Context) error
}

func NewRouter(cfg config.Config, svc *service.Service, opts Options) http.Handler {
	h := &Handlers{
		cfg:             cfg,
		svc:             svc,
		limiter:         opts.Limiter,
		captchaVerifier: opts.Captcha,
		log:             opts.Logger,
		mailProbe:       opts.MailProbe,
	}
	if h.limiter == nil {
		h.limiter = rate.NewLimiter()
	}
	if h.captchaVerifier == nil {
		h.captchaVerifier = captcha.NewVerifier(cfg)
	}
	if h.log == nil {
		h.log = zap.NewNop()
	}

	r := chi.NewRouter()
	r.Use(chimw.Recoverer)
	r.Use(middleware.RequestIDMiddleware)
	r.Use(middleware.RequestLogger(h.log))
	r.Use(middleware.SecurityHeaders)
	if len(cfg.CORSAllowedOrigins) > 0 {
		r.Use(cors.Handler(cors.Options{
			AllowedOrigins:   cfg.CORSAllowedOrigins,
			AllowedMethods:   []string{"GET", "POST", "PUT", "PATCH", "DELETE", "OPTIONS"},
			AllowedHeaders:   []string{"Content-Type", "X-CSRF-Token"},
			ExposedHeaders:   []string{"Retry-After", "X-RateLimit-Limit", "X-RateLimit-Remaining", "X-RateLimit-Reset"},
			AllowCredentials: true,
		}))
	}

	r.Get("/health/live", func(w http.ResponseWriter, r *http.Request) {
		util.WriteJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})
	r.Get("/health/ready", h.Ready)
	if cfg.MetricsEnabled {
		r.Handle("/metrics", metrics.Handler())
	}

	r.With(middleware.RateLimit(h.limiter, "contact", cfg.ContactRateLimit, h.log)).Post("/api/contact", h.Contact)
	r.Get("/api/cron/reminders", h.CronReminders)

	r.Route("/api/v1", func(r chi.Router) {
		r.Get("/version", func(w http.ResponseWriter, r *http.Request) {
			util.WriteJSON(w, http.StatusOK, version.Current())
		})
		r.Post("/auth/signup", h.Signup)
		r.With(middleware.RateLimit(h.limiter, "login", cfg.LoginRateLimit, h.log)).Post("/auth/login", h.Login)
		r.Post("/auth/logout", h.Logout)
		r.Get("/notifications/unsubscribe", h.Unsubscribe)

		r.Group(func(r chi.Router) {
			r.Use(middleware.Authn(h.svc, cfg.SessionCookieName))
			r.Use(middleware.CSRFFromCookie(cfg.CSRFCookieName))

			r.Get("/me", h.Me)
			r.Patch("/me/settings", h.UpdateSettings)

			r.Get("/brands", h.ListBrands)
			r.Post("/brands", h.CreateBrand)
			r.Get("/brands/options", h.BrandOptions)
			r.Get("/brands/{id}", h.GetBrand)
			r.Put("/brands/{id}", h.UpdateBrand)
			r.Delete("/brands/{id}", h.DeleteBrand)

			r.Get("/deals", h.ListDeals)
			r.Post("/deals", h.CreateDeal)
			r.Get("/deals/board", h.Board)
			r.Get("/deals/{id}", h.GetDeal)
			r.Put("/deals/{id}", h.UpdateDeal)
			r.Delete("/deals/{id}", h.DeleteDeal)
			r.Patch("/deals/{id}/status", h.MoveDeal)

			r.Get("/analytics/summary", h.AnalyticsSummary)
			r.Get("/analytics/monthly", h.AnalyticsMonthly)
			r.Get("/analytics/brands", h.AnalyticsBrands)
			r.Get("/analytics/statuses", h.AnalyticsStatuses)
			r.Get("/dashboard", h.Dashboard)
		})
	})

	return r
}

func (h *Handlers) Ready(w http.ResponseWriter, r *http.Request) {
	ready := map[string]any{"checked_at": time.Now().UTC().Format(time.RFC3339)}
	comps := map[string]any{}
	ready["components"] = comps
	ok := true

	if err := h.svc.Ping(r.Context()); err != nil {
		ok = false
		comps["database"] = map[string]any{"ok": false, "error": err.Error()}
	} else {
		comps["database"] = map[string]any{"ok": true}
	}
	if h.mailProbe != nil {
		if err := h.mailProbe(r.Context()); err != nil {
			ok = false
			comps["smtp"] = map[string]any{"ok": false, "error": err.Error()}
		} else {
			comps["smtp"] = map[string]any{"ok": true}
		}
	}

	if ok {
		ready["status"] = "ready"
		util.WriteJSON(w, http.StatusOK, ready)
		return
	}
	ready["status"] = "degraded"
	util.WriteJSON(w, http.StatusServiceUnavailable, ready)
}

// writeServiceError maps service and store errors onto the JSON envelope.
func (h *Handlers) writeServiceError(w http.ResponseWriter, r *http.Request, err error) {
	rid := middleware.RequestID(r.Context())
	switch {
	case errors.Is(err, service.ErrValidation):
		util.WriteError(w, http.StatusBadRequest, "validation_failed", err.Error(), rid)
	case errors.Is(err, store.ErrNotFound):
		util.WriteError(w, http.StatusNotFound, "not_found", "resource not found", rid)
	case errors.Is(err, store.ErrConflict):
		util.WriteError(w, http.StatusConflict, "conflict", "resource already exists", rid)
	case errors.Is(err, service.ErrInvalidCredentials):
		util.WriteError(w, http.StatusUnauthorized, "invalid_credentials", "invalid email or password", rid)
	default:
		h.log.Error("request failed",
			zap.String("path", r.URL.Path),
			zap.String("request_id", rid),
			zap.Error(err),
		)
		util.WriteError(w, http.StatusInternalServerError, "internal_error", "internal error", rid)
	}
}

func (h *Handlers) badJSON(w http.ResponseWriter, r *http.Request) {
	util.WriteError(w, http.StatusBadRequest, "bad_request", "invalid json", middleware.RequestID(r.Context()))
}

func (h *Handlers) setAuthCookies(w http.ResponseWriter, r *http.Request, sessionToken, csrfToken string) {
	secure := h.cfg.ResolveCookieSecure(r)
	maxAge := int(h.cfg.SessionAbsoluteDuration().Seconds())
	http.SetCookie(w, &http.Cookie{
		Name:     h.cfg.SessionCookieName,
		Value:    sessionToken,
		Path:     "/",
		HttpOnly: true,
		Secure:   secure,
		SameSite: http.SameSiteLaxMode,
		MaxAge:   maxAge,
	})
	http.SetCookie(w, &http.Cookie{
		Name:     h.cfg.CSRFCookieName,
		Value:    csrfToken,
		Path:     "/",
		HttpOnly: false,
		Secure:   secure,
		SameSite: http.SameSiteLaxMode,
		MaxAge:   maxAge,
	})
}

func (h *Handlers) clearAuthCookies(w http.ResponseWriter, r *http.Request) {
	secure := h.cfg.ResolveCookieSecure(r)
	expiredAt := time.Unix(1, 0).UTC()
	for _, c := range []struct {
		name     string
		httpOnly bool
	}{{h.cfg.SessionCookieName, true}, {h.cfg.CSRFCookieName, false}} {
		http.SetCookie(w, &http.Cookie{
			Name:     c.name,
			Path:     "/",
			HttpOnly: c.httpOnly,
			Secure:   secure,
			SameSite: http.SameSiteLaxMode,
			MaxAge:   -1,
			Expires:  expiredAt,
		})
	}
}
