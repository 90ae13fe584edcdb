package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/JeanGrijp/request-guard/internal/adapters/storage/memory"
	"github.com/JeanGrijp/request-guard/internal/core/domain"
	"github.com/JeanGrijp/request-guard/internal/core/services"
)

// fakeGuard authorizes a fixed user, or nobody when user is nil.
type fakeGuard struct {
	user *domain.AuthenticatedUser
	err  error
}

func (g fakeGuard) RequireAuth(context.Context) (*domain.AuthenticatedUser, error) {
	if g.err != nil {
		return nil, g.err
	}
	if g.user == nil {
		return nil, domain.NewSecurityError(domain.CodeUnauthenticated, "authentication required")
	}
	return g.user, nil
}

func (g fakeGuard) RequireRole(ctx context.Context, roles ...domain.Role) (*domain.AuthenticatedUser, error) {
	user, err := g.RequireAuth(ctx)
	if err != nil {
		return nil, err
	}
	if !domain.NewSecurityContext(user).HasRole(roles...) {
		return nil, domain.NewSecurityError(domain.CodeForbidden, "insufficient role")
	}
	return user, nil
}

var adminGuard = fakeGuard{user: &domain.AuthenticatedUser{ID: "admin-1", Role: domain.RoleAdmin}}

var serviceNow = time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)

func newAdminHandler(t *testing.T, guard Guard) (*AdminSecurityHandler, *services.RateLimiterService) {
	t.Helper()
	limiter, err := services.NewRateLimiterService(memory.New(), services.Config{
		Now: func() time.Time { return serviceNow },
	})
	require.NoError(t, err)
	t.Cleanup(limiter.Stop)
	return NewAdminSecurityHandler(guard, limiter), limiter
}

func post(h http.HandlerFunc, body string) *httptest.ResponseRecorder {
	rec := httptest.NewRecorder()
	h(rec, httptest.NewRequest(http.MethodPost, "/admin/security", strings.NewReader(body)))
	return rec
}

func decodeError(t *testing.T, rec *httptest.ResponseRecorder) errorResponse {
	t.Helper()
	var resp errorResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	return resp
}

func TestAdminSecurity_GuardFailures(t *testing.T) {
	tests := []struct {
		name       string
		guard      fakeGuard
		wantStatus int
		wantCode   domain.ErrorCode
	}{
		{"anonymous", fakeGuard{}, http.StatusUnauthorized, domain.CodeUnauthenticated},
		{"moderator", fakeGuard{user: &domain.AuthenticatedUser{ID: "m", Role: domain.RoleModerator}}, http.StatusForbidden, domain.CodeForbidden},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h, limiter := newAdminHandler(t, tt.guard)

			rec := httptest.NewRecorder()
			h.Stats(rec, httptest.NewRequest(http.MethodGet, "/admin/security", nil))
			assert.Equal(t, tt.wantStatus, rec.Code)
			resp := decodeError(t, rec)
			assert.Equal(t, string(tt.wantCode), resp.Code)
			assert.Equal(t, domain.PublicMessage(tt.wantCode), resp.Error)

			rec = post(h.Update, `{"action":"block","ip":"1.2.3.4"}`)
			assert.Equal(t, tt.wantStatus, rec.Code)

			blocked, err := limiter.IsBlocked(context.Background(), "1.2.3.4")
			require.NoError(t, err)
			assert.False(t, blocked, "rejected callers must not change the blocklist")
		})
	}
}

func TestAdminSecurity_UnexpectedGuardError(t *testing.T) {
	h, _ := newAdminHandler(t, fakeGuard{err: errors.New("user store down")})

	rec := httptest.NewRecorder()
	h.Stats(rec, httptest.NewRequest(http.MethodGet, "/admin/security", nil))
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.NotContains(t, rec.Body.String(), "user store down")
}

func TestAdminSecurity_BlockAndUnblock(t *testing.T) {
	h, limiter := newAdminHandler(t, adminGuard)
	ctx := context.Background()

	rec := post(h.Update, `{"action":"block","ip":"1.2.3.4","duration":60000}`)
	require.Equal(t, http.StatusOK, rec.Code)
	var resp blockResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.True(t, resp.Success)
	assert.Equal(t, "block", resp.Action)
	require.NotNil(t, resp.Until)
	assert.True(t, serviceNow.Add(time.Minute).Equal(*resp.Until), "until comes from the service clock")

	blocked, err := limiter.IsBlocked(ctx, "1.2.3.4")
	require.NoError(t, err)
	assert.True(t, blocked)

	rec = httptest.NewRecorder()
	h.Stats(rec, httptest.NewRequest(http.MethodGet, "/admin/security", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	var stats domain.SecurityStats
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &stats))
	assert.Equal(t, 1, stats.BlockedCount)
	require.Len(t, stats.BlockedIPs, 1)
	assert.Equal(t, "1.2.3.4", stats.BlockedIPs[0].IP)

	rec = post(h.Update, `{"action":"unblock","ip":"1.2.3.4"}`)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.NotContains(t, rec.Body.String(), "until")
	blocked, err = limiter.IsBlocked(ctx, "1.2.3.4")
	require.NoError(t, err)
	assert.False(t, blocked)
}

func TestAdminSecurity_DefaultDuration(t *testing.T) {
	h, _ := newAdminHandler(t, adminGuard)

	rec := post(h.Update, `{"action":"block","ip":"2001:db8::1"}`)
	require.Equal(t, http.StatusOK, rec.Code)
	var resp blockResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	require.NotNil(t, resp.Until)
	assert.True(t, serviceNow.Add(DefaultBlockDuration).Equal(*resp.Until))
}

func TestAdminSecurity_BadInput(t *testing.T) {
	h, limiter := newAdminHandler(t, adminGuard)

	for name, body := range map[string]string{
		"malformed json":    `{"action":`,
		"invalid ip":        `{"action":"block","ip":"999.1.1.1"}`,
		"hostname":          `{"action":"block","ip":"example.com"}`,
		"unknown action":    `{"action":"ban","ip":"1.2.3.4"}`,
		"zero duration":     `{"action":"block","ip":"1.2.3.4","duration":0}`,
		"negative duration": `{"action":"block","ip":"1.2.3.4","duration":-5}`,
		"duration overflow": `{"action":"block","ip":"1.2.3.4","duration":18446744073710}`,
	} {
		t.Run(name, func(t *testing.T) {
			rec := post(h.Update, body)
			assert.Equal(t, http.StatusBadRequest, rec.Code)
			assert.Equal(t, string(domain.CodeInvalidInput), decodeError(t, rec).Code)
		})
	}

	blocked, err := limiter.IsBlocked(context.Background(), "1.2.3.4")
	require.NoError(t, err)
	assert.False(t, blocked, "rejected requests must not block")
}

func TestAdminSecurity_LongestDurationAccepted(t *testing.T) {
	h, limiter := newAdminHandler(t, adminGuard)

	rec := post(h.Update, fmt.Sprintf(`{"action":"block","ip":"1.2.3.4","duration":%d}`, maxBlockMillis))
	require.Equal(t, http.StatusOK, rec.Code)

	blocked, err := limiter.IsBlocked(context.Background(), "1.2.3.4")
	require.NoError(t, err)
	assert.True(t, blocked)
}
