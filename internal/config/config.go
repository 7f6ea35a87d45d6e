package config

import (
	"fmt"
	"net/http"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/shopspring/decimal"

	"sponsortracker/internal/rate"
)

type Config struct {
	ListenAddr string
	AppEnv     string
	LogLevel   string
	LogFormat  string
	BaseURL    string

	DBDriver          string
	DBDSN             string
	DBPath            string
	DBMaxOpenConns    int
	DBMaxIdleConns    int
	DBConnMaxLifetime time.Duration
	MigrationsDir     string

	SessionCookieName   string
	SessionIdleMinutes  int
	SessionAbsoluteHour int
	SessionEncryptKey   string
	CSRFCookieName      string
	CookieSecure        bool
	CORSAllowedOrigins  []string

	CaptchaEnabled   bool
	CaptchaProvider  string
	CaptchaVerifyURL string
	CaptchaSecret    string

	PasswordMinLength int
	PasswordMaxLength int

	SMTPHost               string
	SMTPPort               int
	SMTPUsername           string
	SMTPPassword           string
	SMTPTLS                bool
	SMTPStartTLS           bool
	SMTPInsecureSkipVerify bool

	MailSender   string
	MailFrom     string
	ContactInbox string

	CronSecret               string
	ReminderSchedulerEnabled bool
	ReminderHourUTC          int
	USDToKRW                 decimal.Decimal

	RateLimitBackend string
	RateLimitSweep   time.Duration
	ContactRateLimit rate.Policy
	LoginRateLimit   rate.Policy
	RedisAddr        string
	RedisPassword    string
	RedisDB          int
	MetricsEnabled   bool

	HTTPReadTimeoutSec       int
	HTTPReadHeaderTimeoutSec int
	HTTPWriteTimeoutSec      int
	HTTPIdleTimeoutSec       int
}

func Load() (Config, error) {
	// .env is optional; real environment variables win.
	_ = godotenv.Load()

	cfg := Config{
		ListenAddr:               env("LISTEN_ADDR", ":8080"),
		AppEnv:                   strings.ToLower(env("APP_ENV", "development")),
		LogLevel:                 strings.ToLower(env("LOG_LEVEL", "info")),
		LogFormat:                strings.ToLower(env("LOG_FORMAT", "console")),
		BaseURL:                  strings.TrimRight(env("APP_BASE_URL", "http://localhost:8080"), "/"),
		DBDriver:                 strings.ToLower(env("DB_DRIVER", "sqlite")),
		DBDSN:                    env("DB_DSN", ""),
		DBPath:                   env("APP_DB_PATH", "./data/app.db"),
		DBMaxOpenConns:           envInt("APP_DB_MAX_OPEN_CONNS", 4),
		DBMaxIdleConns:           envInt("APP_DB_MAX_IDLE_CONNS", 2),
		DBConnMaxLifetime:        time.Duration(envInt("APP_DB_CONN_MAX_LIFETIME_MIN", 30)) * time.Minute,
		MigrationsDir:            env("MIGRATIONS_DIR", "migrations"),
		SessionCookieName:        env("SESSION_COOKIE_NAME", "sponsortracker_session"),
		SessionIdleMinutes:       envInt("SESSION_IDLE_MINUTES", 60*24),
		SessionAbsoluteHour:      envInt("SESSION_ABSOLUTE_HOURS", 24*14),
		SessionEncryptKey:        env("SESSION_ENCRYPT_KEY", "CHANGE_ME_PRODUCTION_SESSION_KEY"),
		CSRFCookieName:           env("CSRF_COOKIE_NAME", "sponsortracker_csrf"),
		CookieSecure:             envBool("COOKIE_SECURE", false),
		CORSAllowedOrigins:       envCSV("CORS_ALLOWED_ORIGINS"),
		CaptchaEnabled:           envBool("CAPTCHA_ENABLED", false),
		CaptchaProvider:          strings.ToLower(env("CAPTCHA_PROVIDER", "turnstile")),
		CaptchaVerifyURL:         env("CAPTCHA_VERIFY_URL", ""),
		CaptchaSecret:            env("CAPTCHA_SECRET", ""),
		PasswordMinLength:        envInt("PASSWORD_MIN_LENGTH", 8),
		PasswordMaxLength:        envInt("PASSWORD_MAX_LENGTH", 128),
		SMTPHost:                 env("SMTP_HOST", "127.0.0.1"),
		SMTPPort:                 envInt("SMTP_PORT", 587),
		SMTPUsername:             env("SMTP_USERNAME", ""),
		SMTPPassword:             env("SMTP_PASSWORD", ""),
		SMTPTLS:                  envBool("SMTP_TLS", false),
		SMTPStartTLS:             envBool("SMTP_STARTTLS", true),
		SMTPInsecureSkipVerify:   envBool("SMTP_INSECURE_SKIP_VERIFY", false),
		MailSender:               strings.ToLower(env("MAIL_SENDER", "log")),
		MailFrom:                 env("MAIL_FROM", "Sponsor Tracker <noreply@example.com>"),
		ContactInbox:             env("CONTACT_INBOX", "hello@example.com"),
		CronSecret:               env("CRON_SECRET", ""),
		ReminderSchedulerEnabled: envBool("REMINDER_SCHEDULER_ENABLED", false),
		ReminderHourUTC:          envInt("REMINDER_HOUR_UTC", 0),
		RateLimitBackend:         strings.ToLower(env("RATE_LIMIT_BACKEND", "memory")),
		RateLimitSweep:           time.Duration(envInt("RATE_LIMIT_SWEEP_SECONDS", 60)) * time.Second,
		ContactRateLimit: rate.Policy{
			Window:      time.Duration(envInt("CONTACT_RATE_WINDOW_SEC", 60)) * time.Second,
			MaxRequests: envInt("CONTACT_RATE_LIMIT", 5),
		},
		LoginRateLimit: rate.Policy{
			Window:      time.Duration(envInt("LOGIN_RATE_WINDOW_SEC", 60)) * time.Second,
			MaxRequests: envInt("LOGIN_RATE_LIMIT", 20),
		},
		RedisAddr:                env("REDIS_ADDR", "localhost:6379"),
		RedisPassword:            env("REDIS_PASSWORD", ""),
		RedisDB:                  envInt("REDIS_DB", 0),
		MetricsEnabled:           envBool("METRICS_ENABLED", true),
		HTTPReadTimeoutSec:       envInt("HTTP_READ_TIMEOUT_SEC", 10),
		HTTPReadHeaderTimeoutSec: envInt("HTTP_READ_HEADER_TIMEOUT_SEC", 5),
		HTTPWriteTimeoutSec:      envInt("HTTP_WRITE_TIMEOUT_SEC", 30),
		HTTPIdleTimeoutSec:       envInt("HTTP_IDLE_TIMEOUT_SEC", 60),
	}

	usdRate, err := decimal.NewFromString(env("USD_KRW_RATE", "1400"))
	if err != nil || !usdRate.IsPositive() {
		return Config{}, fmt.Errorf("USD_KRW_RATE must be a positive number")
	}
	cfg.USDToKRW = usdRate

	if cfg.SessionIdleMinutes <= 0 || cfg.SessionAbsoluteHour <= 0 {
		return Config{}, fmt.Errorf("session timeouts must be positive")
	}
	if cfg.DBMaxOpenConns <= 0 || cfg.DBMaxIdleConns < 0 {
		return Config{}, fmt.Errorf("invalid DB pool config")
	}
	if cfg.DBDriver == "postgres" {
		cfg.DBDriver = "pgx"
	}
	switch cfg.DBDriver {
	case "sqlite":
	case "pgx", "mysql":
		if strings.TrimSpace(cfg.DBDSN) == "" {
			return Config{}, fmt.Errorf("DB_DSN is required for DB_DRIVER=%s", cfg.DBDriver)
		}
	default:
		return Config{}, fmt.Errorf("DB_DRIVER must be one of: sqlite, pgx, mysql")
	}
	if cfg.SMTPPort <= 0 {
		return Config{}, fmt.Errorf("invalid SMTP port")
	}
	if cfg.PasswordMinLength < 8 {
		return Config{}, fmt.Errorf("password min length must be >= 8")
	}
	if cfg.PasswordMaxLength < cfg.PasswordMinLength {
		return Config{}, fmt.Errorf("password max length must be >= min length")
	}
	if strings.TrimSpace(cfg.SessionEncryptKey) == "" ||
		cfg.SessionEncryptKey == "CHANGE_ME_PRODUCTION_SESSION_KEY" ||
		len(cfg.SessionEncryptKey) < 24 {
		return Config{}, fmt.Errorf("SESSION_ENCRYPT_KEY must be set to a strong non-default value (>=24 chars)")
	}
	if !cfg.CookieSecure && !isLocalListen(cfg.ListenAddr) {
		return Config{}, fmt.Errorf("COOKIE_SECURE=false is allowed only for local listen addresses")
	}
	switch cfg.MailSender {
	case "log", "smtp":
	default:
		return Config{}, fmt.Errorf("MAIL_SENDER must be one of: log, smtp")
	}
	if cfg.ReminderHourUTC < 0 || cfg.ReminderHourUTC > 23 {
		return Config{}, fmt.Errorf("REMINDER_HOUR_UTC must be within 0..23")
	}
	switch cfg.RateLimitBackend {
	case "memory", "redis":
	default:
		return Config{}, fmt.Errorf("RATE_LIMIT_BACKEND must be one of: memory, redis")
	}
	if cfg.RateLimitSweep <= 0 {
		return Config{}, fmt.Errorf("RATE_LIMIT_SWEEP_SECONDS must be positive")
	}
	for name, p := range map[string]rate.Policy{"contact": cfg.ContactRateLimit, "login": cfg.LoginRateLimit} {
		if p.Window <= 0 || p.MaxRequests <= 0 {
			return Config{}, fmt.Errorf("%s rate limit: %w: window and limit must be positive", name, rate.ErrInvalidPolicy)
		}
	}
	if cfg.CaptchaEnabled {
		if strings.TrimSpace(cfg.CaptchaSecret) == "" {
			return Config{}, fmt.Errorf("CAPTCHA_SECRET is required when CAPTCHA_ENABLED=true")
		}
		if strings.TrimSpace(cfg.CaptchaVerifyURL) == "" {
			switch cfg.CaptchaProvider {
			case "turnstile", "":
				cfg.CaptchaVerifyURL = "https://challenges.cloudflare.com/turnstile/v0/siteverify"
			case "hcaptcha":
				cfg.CaptchaVerifyURL = "https://hcaptcha.com/siteverify"
			default:
				return Config{}, fmt.Errorf("unsupported CAPTCHA_PROVIDER: %s", cfg.CaptchaProvider)
			}
		}
	}
	return cfg, nil
}

func (c Config) SessionIdleDuration() time.Duration {
	return time.Duration(c.SessionIdleMinutes) * time.Minute
}

func (c Config) SessionAbsoluteDuration() time.Duration {
	return time.Duration(c.SessionAbsoluteHour) * time.Hour
}

func (c Config) ResolveCookieSecure(r *http.Request) bool {
	if c.CookieSecure {
		return true
	}
	return r != nil && r.TLS != nil
}

func (c Config) IsProduction() bool {
	return c.AppEnv == "production"
}

func env(k, d string) string {
	if v := os.Getenv(k); v != "" {
		return v
	}
	return d
}

func envInt(k string, d int) int {
	v := os.Getenv(k)
	if v == "" {
		return d
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return d
	}
	return n
}

func envBool(k string, d bool) bool {
	v := os.Getenv(k)
	if v == "" {
		return d
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return d
	}
	return b
}

func envCSV(k string) []string {
	v := strings.TrimSpace(os.Getenv(k))
	if v == "" {
		return nil
	}
	parts := strings.Split(v, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if p != "" {
			out = append(out, p)
		}
	}
	return out
}

func isLocalListen(addr string) bool {
	a := strings.ToLower(strings.TrimSpace(addr))
	return strings.Contains(a, "127.0.0.1") || strings.Contains(a, "localhost") || strings.Contains(a, "[::1]") || strings.HasPrefix(a, ":")
}
