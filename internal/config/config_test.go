package config

import (
	"os"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad(t *testing.T) {
	// Save current env and restore later
	origHost := os.Getenv("DB_HOST")
	defer os.Setenv("DB_HOST", origHost)

	os.Setenv("DB_HOST", "test-host")
	os.Setenv("DB_MAX_OPEN_CONNS", "20")
	os.Setenv("MINIO_USE_SSL", "true")
	os.Setenv("MAIL_PROVIDER", "smtp")
	os.Setenv("SMTP_HOST", " mail.example.com ")
	defer func() {
		os.Unsetenv("DB_MAX_OPEN_CONNS")
		os.Unsetenv("MINIO_USE_SSL")
		os.Unsetenv("MAIL_PROVIDER")
		os.Unsetenv("SMTP_HOST")
	}()

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "test-host", cfg.Database.Host)
	assert.Equal(t, 20, cfg.Database.MaxOpenConns)
	assert.True(t, cfg.MinIO.UseSSL)
	assert.Equal(t, "SMTP", cfg.Mail.Provider)
	assert.Equal(t, "mail.example.com", cfg.Mail.SMTPHost)
	assert.Equal(t, []int{30, 15, 10, 7, 1}, cfg.Notify.Thresholds)
	assert.Equal(t, 8, cfg.Notify.CronHour)
	assert.Equal(t, 0, cfg.Notify.CronMinute)
}

func TestLoadInvalidThresholds(t *testing.T) {
	os.Setenv("NOTIFY_THRESHOLDS_DAYS", "30,abc")
	defer os.Unsetenv("NOTIFY_THRESHOLDS_DAYS")

	_, err := Load()
	assert.Error(t, err)
}

func TestParseThresholds(t *testing.T) {
	tests := []struct {
		name    string
		raw     string
		want    []int
		wantErr bool
	}{
		{name: "default list", raw: "30,15,10,7,1", want: []int{30, 15, 10, 7, 1}},
		{name: "whitespace tolerated", raw: " 14 , 7 ", want: []int{14, 7}},
		{name: "single value", raw: "7", want: []int{7}},
		{name: "not a number", raw: "7,soon", wantErr: true},
		{name: "zero rejected", raw: "7,0", wantErr: true},
		{name: "negative rejected", raw: "-1", wantErr: true},
		{name: "duplicate rejected", raw: "7,7", wantErr: true},
		{name: "empty list rejected", raw: " , ", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := parseThresholds(tt.raw)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestGetEnv(t *testing.T) {
	key := "TEST_ENV_VAR"
	os.Setenv(key, "value")
	defer os.Unsetenv(key)

	assert.Equal(t, "value", getEnv(key, "default"))
	assert.Equal(t, "default", getEnv("NON_EXISTENT", "default"))
}

func TestGetEnvBool(t *testing.T) {
	key := "TEST_BOOL_VAR"

	os.Setenv(key, "true")
	assert.True(t, getEnvBool(key, false))

	os.Setenv(key, "false")
	assert.False(t, getEnvBool(key, true))

	os.Setenv(key, "invalid")
	assert.True(t, getEnvBool(key, true))

	os.Unsetenv(key)
	assert.True(t, getEnvBool(key, true))
}

func TestGetEnvInt(t *testing.T) {
	key := "TEST_INT_VAR"

	os.Setenv(key, "123")
	assert.Equal(t, 123, getEnvInt(key, 0))

	os.Setenv(key, "invalid")
	assert.Equal(t, 10, getEnvInt(key, 10))

	os.Unsetenv(key)
	assert.Equal(t, 10, getEnvInt(key, 10))
}
