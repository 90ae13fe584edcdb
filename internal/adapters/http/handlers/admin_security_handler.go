package handlers

import (
	"encoding/json"
	"math"
	"net/http"
	"strings"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/JeanGrijp/request-guard/internal/core/domain"
	"github.com/JeanGrijp/request-guard/internal/core/ports"
)

// DefaultBlockDuration applies when a block request carries no duration.
const DefaultBlockDuration = 24 * time.Hour

const maxAdminBody = 1 << 16

// maxBlockMillis is the longest duration, in milliseconds, a time.Duration holds.
const maxBlockMillis = math.MaxInt64 / int64(time.Millisecond)

// AdminSecurityHandler exposes the blocklist and stats to administrators.
type AdminSecurityHandler struct {
	guard     Guard
	blocklist ports.Blocklist
}

func NewAdminSecurityHandler(guard Guard, blocklist ports.Blocklist) *AdminSecurityHandler {
	return &AdminSecurityHandler{guard: guard, blocklist: blocklist}
}

type blockRequest struct {
	Action string `json:"action"`
	IP     string `json:"ip"`
	// Duration is in milliseconds.
	Duration *int64 `json:"duration,omitempty"`
}

type blockResponse struct {
	Success bool       `json:"success"`
	Action  string     `json:"action"`
	IP      string     `json:"ip"`
	Until   *time.Time `json:"until,omitempty"`
}

// Stats handles GET: a JSON snapshot of limiter and blocklist state.
func (h *AdminSecurityHandler) Stats(w http.ResponseWriter, r *http.Request) {
	if _, err := h.guard.RequireRole(r.Context(), domain.RoleAdmin); err != nil {
		writeGuardError(w, r, err)
		return
	}

	stats, err := h.blocklist.Stats(r.Context())
	if err != nil {
		writeGuardError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, stats)
}

// Update handles POST {action: block|unblock, ip, duration?}.
func (h *AdminSecurityHandler) Update(w http.ResponseWriter, r *http.Request) {
	admin, err := h.guard.RequireRole(r.Context(), domain.RoleAdmin)
	if err != nil {
		writeGuardError(w, r, err)
		return
	}

	var req blockRequest
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxAdminBody)).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, domain.CodeInvalidInput, "invalid request body")
		return
	}
	req.IP = strings.TrimSpace(req.IP)
	if !domain.ValidIP(req.IP) {
		writeError(w, http.StatusBadRequest, domain.CodeInvalidInput, "invalid ip address")
		return
	}

	switch req.Action {
	case "block":
		d := DefaultBlockDuration
		if req.Duration != nil {
			if *req.Duration <= 0 {
				writeError(w, http.StatusBadRequest, domain.CodeInvalidInput, "duration must be positive")
				return
			}
			if *req.Duration > maxBlockMillis {
				writeError(w, http.StatusBadRequest, domain.CodeInvalidInput, "duration is too large")
				return
			}
			d = time.Duration(*req.Duration) * time.Millisecond
		}
		until, err := h.blocklist.BlockIP(r.Context(), req.IP, d)
		if err != nil {
			writeGuardError(w, r, err)
			return
		}
		log.Info().Str("admin", admin.ID).Str("ip", req.IP).Dur("duration", d).Msg("admin blocked ip")
		writeJSON(w, http.StatusOK, blockResponse{Success: true, Action: req.Action, IP: req.IP, Until: &until})
	case "unblock":
		if err := h.blocklist.UnblockIP(r.Context(), req.IP); err != nil {
			writeGuardError(w, r, err)
			return
		}
		log.Info().Str("admin", admin.ID).Str("ip", req.IP).Msg("admin unblocked ip")
		writeJSON(w, http.StatusOK, blockResponse{Success: true, Action: req.Action, IP: req.IP})
	default:
		writeError(w, http.StatusBadRequest, domain.CodeInvalidInput, "unknown action")
	}
}
