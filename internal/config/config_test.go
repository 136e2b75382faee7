package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad_Defaults(t *testing.T) {
	cfg, err := Load()

	require.NoError(t, err)
	assert.Equal(t, "http://localhost:8080/api", cfg.APIURL)
	assert.Equal(t, "warn", cfg.LogLevel)
	assert.Equal(t, 15*time.Second, cfg.Timeout)
	assert.Equal(t, 7, cfg.BorrowDays)
	assert.Equal(t, uint32(5), cfg.Breaker.MinRequests)
	assert.Equal(t, 0.5, cfg.Breaker.FailureRatio)
}

func TestLoad_Overrides(t *testing.T) {
	t.Setenv("BOOKBAZAAR_API_URL", "https://books.example.com/api")
	t.Setenv("BOOKBAZAAR_TIMEOUT", "2s")
	t.Setenv("BOOKBAZAAR_BREAKER_TIMEOUT", "5s")
	t.Setenv("BOOKBAZAAR_BREAKER_MIN_REQUESTS", "10")

	cfg, err := Load()

	require.NoError(t, err)
	assert.Equal(t, "https://books.example.com/api", cfg.APIURL)
	assert.Equal(t, 2*time.Second, cfg.Timeout)
	assert.Equal(t, 5*time.Second, cfg.Breaker.Timeout)
	assert.Equal(t, uint32(10), cfg.Breaker.MinRequests)
}

func TestLoad_Invalid(t *testing.T) {
	tests := []struct {
		key, val, msg string
	}{
		{"BOOKBAZAAR_API_URL", "localhost:8080", "absolute http(s) URL"},
		{"BOOKBAZAAR_TIMEOUT", "-1s", "must be positive"},
		{"BOOKBAZAAR_TIMEOUT", "soon", "parse config"},
		{"BOOKBAZAAR_BORROW_DAYS", "0", "between 1 and 60"},
		{"BOOKBAZAAR_BREAKER_FAILURE_RATIO", "1.5", "FAILURE_RATIO"},
	}
	for _, tt := range tests {
		t.Run(tt.key+"="+tt.val, func(t *testing.T) {
			t.Setenv(tt.key, tt.val)

			cfg, err := Load()

			assert.Nil(t, cfg)
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.msg)
		})
	}
}
