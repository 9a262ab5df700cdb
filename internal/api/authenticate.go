package api

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog/log"

	"github.com/ruslano69/ldapauth/internal/events"
	"github.com/ruslano69/ldapauth/internal/throttle"
)

// maxBodyBytes caps the credentials payload.
const maxBodyBytes = 8 << 10

// authHandler handles /api/authenticate and /api/events/{username}.
type authHandler struct {
	auth     Authenticator
	events   EventStore
	throttle Throttle // nil disables the failed-login limit
}

// ────────────────────────────────────────────────────────────────────────────
// POST /api/authenticate
// ────────────────────────────────────────────────────────────────────────────

type authenticateRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

type authenticateResponse struct {
	Groups []string `json:"groups"` // canonical name first, then groups; may be empty
}

// Authenticate checks the credentials and returns the group list.
// Any directory failure is a 401; callers cannot tell a wrong password from
// an unknown user or an unreachable directory.
func (h *authHandler) Authenticate(w http.ResponseWriter, r *http.Request) {
	var req authenticateRequest
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes)).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid json: "+err.Error())
		return
	}
	if req.Username == "" {
		writeError(w, http.StatusBadRequest, "username is required")
		return
	}

	if !h.allowed(r, req.Username) {
		writeError(w, http.StatusTooManyRequests, "too many failed attempts")
		return
	}

	groups, ok := h.auth.Authenticate(r.Context(), req.Username, req.Password)
	if !ok {
		h.recordFailure(r, req.Username)
		writeError(w, http.StatusUnauthorized, "authentication failed")
		return
	}
	h.recordSuccess(r, req.Username)
	if groups == nil {
		groups = []string{}
	}

	log.Info().
		Str("user", req.Username).
		Int("groups", len(groups)).
		Msg("authenticated")
	writeJSON(w, http.StatusOK, authenticateResponse{Groups: groups})
}

// allowed consults the throttle. A Redis failure lets the attempt through.
func (h *authHandler) allowed(r *http.Request, username string) bool {
	if h.throttle == nil {
		return true
	}
	err := h.throttle.Check(r.Context(), username)
	if errors.Is(err, throttle.ErrLocked) {
		log.Warn().Str("user", username).Msg("login rejected: failure budget exhausted")
		return false
	}
	if err != nil {
		log.Warn().Err(err).Msg("throttle unavailable, allowing login")
	}
	return true
}

func (h *authHandler) recordFailure(r *http.Request, username string) {
	if h.throttle == nil {
		return
	}
	n, err := h.throttle.Fail(r.Context(), username)
	if err != nil {
		log.Warn().Err(err).Msg("throttle: failure not recorded")
		return
	}
	log.Debug().Str("user", username).Int("failures", n).Msg("failed login counted")
}

func (h *authHandler) recordSuccess(r *http.Request, username string) {
	if h.throttle == nil {
		return
	}
	if err := h.throttle.Reset(r.Context(), username); err != nil {
		log.Warn().Err(err).Msg("throttle: reset failed")
	}
}

// ────────────────────────────────────────────────────────────────────────────
// GET /api/events/{username}
// ────────────────────────────────────────────────────────────────────────────

// LastEvent returns the most recent authentication event for a user.
func (h *authHandler) LastEvent(w http.ResponseWriter, r *http.Request) {
	if h.events == nil {
		writeError(w, http.StatusNotFound, "event feed disabled")
		return
	}
	username := chi.URLParam(r, "username")
	ev, err := h.events.Last(r.Context(), username)
	if err != nil {
		if errors.Is(err, events.ErrNotFound) {
			writeError(w, http.StatusNotFound, "no event recorded for user")
			return
		}
		log.Error().Err(err).Str("user", username).Msg("event lookup failed")
		writeError(w, http.StatusInternalServerError, "event lookup failed")
		return
	}
	writeJSON(w, http.StatusOK, ev)
}

// ────────────────────────────────────────────────────────────────────────────
// Helpers
// ────────────────────────────────────────────────────────────────────────────

type errorResponse struct {
	Error string `json:"error"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, errorResponse{Error: msg})
}
