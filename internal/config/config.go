package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
)

// DatabaseConfig holds PostgreSQL database connection settings.
type DatabaseConfig struct {
	Host               string
	Port               string
	User               string
	Password           string
	Name               string
	SSLMode            string
	MaxOpenConns       int
	MaxIdleConns       int
	ConnMaxLifetimeSec int
}

// MinIOConfig holds object storage settings for document attachments.
type MinIOConfig struct {
	Endpoint  string
	AccessKey string
	SecretKey string
	Bucket    string
	UseSSL    bool
}

// MailConfig holds outbound mail settings. Provider selects the primary
// transport ("RESEND" or "SMTP"); the other one, if configured, acts as
// the fallback.
type MailConfig struct {
	Provider   string
	From       string
	To         string // optional recipient override for all notification mail
	TimeoutSec int

	ResendAPIKey  string
	ResendBaseURL string

	SMTPHost string
	SMTPPort int
	SMTPUser string
	SMTPPass string
}

// NotifyConfig holds expiry notification settings.
type NotifyConfig struct {
	Enabled    bool
	Thresholds []int // days before expiry, e.g. 30,15,10,7,1
	CronHour   int
	CronMinute int
}

// AppConfig is the centralized configuration struct for the application.
// It is populated from environment variables. Sensitive values are not hardcoded.
type AppConfig struct {
	AppHost       string
	Port          string
	Timezone      string
	PanelURL      string
	AdminPassword string
	Database      DatabaseConfig
	MinIO         MinIOConfig
	Mail          MailConfig
	Notify        NotifyConfig
}

// Load reads configuration from environment variables.
// A .env file can be auto-loaded by importing: _ "github.com/joho/godotenv/autoload"
// This function does not require a .env file; real environment variables take precedence.
func Load() (*AppConfig, error) {
	thresholds, err := parseThresholds(getEnv("NOTIFY_THRESHOLDS_DAYS", "30,15,10,7,1"))
	if err != nil {
		return nil, err
	}

	return &AppConfig{
		AppHost:       getEnv("APP_HOST", "localhost:8080"),
		Port:          getEnv("PORT", "8080"),
		Timezone:      getEnv("TZ", "Europe/Istanbul"),
		PanelURL:      getEnv("PANEL_URL", "http://localhost:3000"),
		AdminPassword: getEnv("VEHICLE_ADMIN_PASSWORD", ""),
		Database: DatabaseConfig{
			Host:               getEnv("DB_HOST", ""),
			Port:               getEnv("DB_PORT", "5432"),
			User:               getEnv("DB_USER", ""),
			Password:           getEnv("DB_PASSWORD", ""),
			Name:               getEnv("DB_NAME", ""),
			SSLMode:            getEnv("DB_SSLMODE", "disable"),
			MaxOpenConns:       getEnvInt("DB_MAX_OPEN_CONNS", 10),
			MaxIdleConns:       getEnvInt("DB_MAX_IDLE_CONNS", 5),
			ConnMaxLifetimeSec: getEnvInt("DB_CONN_MAX_LIFETIME_SEC", 300),
		},
		MinIO: MinIOConfig{
			Endpoint:  getEnv("MINIO_ENDPOINT", ""),
			AccessKey: getEnv("MINIO_ACCESS_KEY", ""),
			SecretKey: getEnv("MINIO_SECRET_KEY", ""),
			Bucket:    getEnv("MINIO_BUCKET", ""),
			UseSSL:    getEnvBool("MINIO_USE_SSL", false),
		},
		Mail: MailConfig{
			Provider:      strings.ToUpper(getEnv("MAIL_PROVIDER", "RESEND")),
			From:          getEnv("MAIL_FROM", "bildirim@fleetdocs.local"),
			To:            getEnv("MAIL_TO", ""),
			TimeoutSec:    getEnvInt("MAIL_TIMEOUT_SEC", 20),
			ResendAPIKey:  strings.TrimSpace(getEnv("RESEND_API_KEY", "")),
			ResendBaseURL: getEnv("RESEND_BASE_URL", ""),
			SMTPHost:      strings.TrimSpace(getEnv("SMTP_HOST", "")),
			SMTPPort:      getEnvInt("SMTP_PORT", 587),
			SMTPUser:      getEnv("SMTP_USER", ""),
			SMTPPass:      getEnv("SMTP_PASS", ""),
		},
		Notify: NotifyConfig{
			Enabled:    getEnvBool("NOTIFY_ENABLED", true),
			Thresholds: thresholds,
			CronHour:   getEnvInt("NOTIFY_CRON_HOUR", 8),
			CronMinute: getEnvInt("NOTIFY_CRON_MINUTE", 0),
		},
	}, nil
}

// parseThresholds parses a comma-separated list of positive day counts,
// preserving order and rejecting duplicates.
func parseThresholds(raw string) ([]int, error) {
	parts := strings.Split(raw, ",")
	out := make([]int, 0, len(parts))
	seen := make(map[int]bool, len(parts))
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if p == "" {
			continue
		}
		n, err := strconv.Atoi(p)
		if err != nil {
			return nil, fmt.Errorf("invalid notification threshold %q: %w", p, err)
		}
		if n <= 0 {
			return nil, fmt.Errorf("invalid notification threshold %d: must be positive", n)
		}
		if seen[n] {
			return nil, fmt.Errorf("duplicate notification threshold %d", n)
		}
		seen[n] = true
		out = append(out, n)
	}
	if len(out) == 0 {
		return nil, fmt.Errorf("no notification thresholds configured")
	}
	return out, nil
}

func getEnv(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func getEnvBool(key string, def bool) bool {
	if v := os.Getenv(key); v != "" {
		b, err := strconv.ParseBool(v)
		if err == nil {
			return b
		}
	}
	return def
}

func getEnvInt(key string, def int) int {
	if v := os.Getenv(key); v != "" {
		i, err := strconv.Atoi(v)
		if err == nil {
			return i
		}
	}
	return def
}
