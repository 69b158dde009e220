package handler

import (
	"encoding/json"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	apperrors "github.com/deskviewer/relay-server-go/internal/errors"
	"github.com/deskviewer/relay-server-go/internal/httputil"
	"github.com/deskviewer/relay-server-go/internal/middleware"
	"github.com/deskviewer/relay-server-go/internal/service"
)

type RecentSessionsHandler struct {
	recentSessions *service.RecentSessionService
}

func NewRecentSessionsHandler(recentSessions *service.RecentSessionService) *RecentSessionsHandler {
	return &RecentSessionsHandler{recentSessions: recentSessions}
}

func (h *RecentSessionsHandler) Routes() chi.Router {
	r := chi.NewRouter()

	r.Post("/add", h.Add)
	r.Get("/get", h.List)
	r.Delete("/remove/{sessionCode}", h.Remove)

	return r
}

type addRecentSessionRequest struct {
	SessionID string `json:"session_id"`
}

// POST /api/recentSessions/add
func (h *RecentSessionsHandler) Add(w http.ResponseWriter, r *http.Request) {
	user := middleware.GetUser(r.Context())
	if user == nil {
		httputil.WriteError(w, apperrors.Unauthorized("Authentication required"))
		return
	}

	var req addRecentSessionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		httputil.WriteError(w, apperrors.ValidationError("Invalid request body"))
		return
	}

	result, err := h.recentSessions.Add(r.Context(), user.ID, req.SessionID)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}

	writeJSON(w, http.StatusCreated, result)
}

// GET /api/recentSessions/get?limit=N
func (h *RecentSessionsHandler) List(w http.ResponseWriter, r *http.Request) {
	user := middleware.GetUser(r.Context())
	if user == nil {
		httputil.WriteError(w, apperrors.Unauthorized("Authentication required"))
		return
	}

	limit := 0
	if raw := r.URL.Query().Get("limit"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil {
			httputil.WriteError(w, apperrors.InvalidInput("limit", "must be an integer"))
			return
		}
		limit = parsed
	}

	sessions, err := h.recentSessions.List(r.Context(), user.ID, limit)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, sessions)
}

// DELETE /api/recentSessions/remove/{sessionCode}
func (h *RecentSessionsHandler) Remove(w http.ResponseWriter, r *http.Request) {
	user := middleware.GetUser(r.Context())
	if user == nil {
		httputil.WriteError(w, apperrors.Unauthorized("Authentication required"))
		return
	}

	code := chi.URLParam(r, "sessionCode")
	if err := h.recentSessions.Remove(r.Context(), user.ID, code); err != nil {
		httputil.WriteError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]string{"message": "Recent session removed"})
}
