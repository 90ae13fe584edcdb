package handlers

import (
	"net/http"

	"github.com/JeanGrijp/request-guard/internal/core/domain"
)

type meResponse struct {
	User        *domain.AuthenticatedUser `json:"user"`
	Permissions map[string]bool           `json:"permissions"`
}

// MeHandler returns the caller's resolved identity and role checks.
type MeHandler struct {
	guard Guard
}

func NewMeHandler(guard Guard) *MeHandler {
	return &MeHandler{guard: guard}
}

func (h *MeHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	user, err := h.guard.RequireAuth(r.Context())
	if err != nil {
		writeGuardError(w, r, err)
		return
	}
	sc := domain.NewSecurityContext(user)

	writeJSON(w, http.StatusOK, meResponse{
		User: sc.User,
		Permissions: map[string]bool{
			"moderate": sc.HasRole(domain.RoleModerator, domain.RoleAdmin),
			"develop":  sc.HasMinRole(domain.RoleDeveloper),
			"admin":    sc.HasRole(domain.RoleAdmin),
		},
	})
}
