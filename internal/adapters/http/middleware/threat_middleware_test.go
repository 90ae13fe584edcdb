package middleware

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestThreatPatterns_Match(t *testing.T) {
	p := DefaultThreatPatterns()

	tests := []struct {
		name string
		path string
		ua   string
		want []Violation
	}{
		{"clean", "/api/me", "Mozilla/5.0", nil},
		{"path", "/wp-admin/setup.php", "Mozilla/5.0", []Violation{{Reason: "suspicious_path:/wp-admin", Score: 10}}},
		{"query traversal", "/download?file=../../etc", "Mozilla/5.0", []Violation{{Reason: "suspicious_path:../", Score: 10}}},
		{"scanner", "/", "sqlmap/1.7", []Violation{{Reason: "suspicious_user_agent:sqlmap", Score: 20}}},
		{"empty agent", "/", "", []Violation{{Reason: "empty_user_agent", Score: 2}}},
		{"both", "/.env", "Nikto", []Violation{
			{Reason: "suspicious_path:/.env", Score: 10},
			{Reason: "suspicious_user_agent:nikto", Score: 20},
		}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, tt.path, nil)
			req.Header.Set("User-Agent", tt.ua)
			assert.Equal(t, tt.want, p.Match(req))
		})
	}
}

func TestThreatMiddleware_RecordsAndPassesThrough(t *testing.T) {
	limiter := newLimiter(t)
	handler := NewThreatMiddleware(limiter, DefaultThreatPatterns())(okHandler)

	req := httptest.NewRequest(http.MethodGet, "/.git/config", nil)
	req.Header.Set("X-Forwarded-For", "8.8.4.4")
	req.Header.Set("User-Agent", "gobuster/3.6")
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusOK, rec.Code)

	stats, err := limiter.Stats(context.Background())
	require.NoError(t, err)
	require.Len(t, stats.TopThreats, 1)
	assert.Equal(t, "8.8.4.4", stats.TopThreats[0].IP)
	assert.Equal(t, float64(30), stats.TopThreats[0].Score)
	assert.Equal(t, 2, stats.TopThreats[0].Violations)
	assert.Zero(t, stats.BlockedCount)
}
