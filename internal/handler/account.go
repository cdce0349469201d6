package handler

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/sakif/leaseshield/internal/analysis"
	"github.com/sakif/leaseshield/internal/apperror"
	"github.com/sakif/leaseshield/internal/auth"
	"github.com/sakif/leaseshield/internal/model"
	"github.com/sakif/leaseshield/internal/service"
)

// PublicConfig is what the browser needs before anyone signs in.
type PublicConfig struct {
	GAMeasurementID string   `json:"gaMeasurementId,omitempty"`
	GTMID           string   `json:"gtmId,omitempty"`
	ChatModels      []string `json:"chatModels"`
	DefaultModel    string   `json:"defaultModel"`
}

// AccountHandler serves the current user, public config and health.
type AccountHandler struct {
	auth     *service.AuthService
	profiles *service.ProfileService
	db       Pinger
	config   PublicConfig
	logger   *slog.Logger
}

// Pinger is anything whose reachability decides health.
type Pinger interface {
	Ping(ctx context.Context) error
}

func NewAccountHandler(authSvc *service.AuthService, profiles *service.ProfileService, db Pinger, gaID, gtmID string, logger *slog.Logger) *AccountHandler {
	return &AccountHandler{
		auth:     authSvc,
		profiles: profiles,
		db:       db,
		config: PublicConfig{
			GAMeasurementID: gaID,
			GTMID:           gtmID,
			ChatModels:      analysis.ChatModels,
			DefaultModel:    analysis.ChatModels[0],
		},
		logger: logger,
	}
}

type meResponse struct {
	Session auth.Session   `json:"session"`
	User    *model.User    `json:"user"`
	Profile *model.Profile `json:"profile"`
}

// HandleMe returns the signed-in user with their subscription profile.
//
// HTTP: GET /api/me
// Auth: required
func (h *AccountHandler) HandleMe(w http.ResponseWriter, r *http.Request) {
	sess := auth.SessionFromContext(r.Context())
	if !sess.Present {
		writeError(w, apperror.Unauthorized("sign in required"))
		return
	}

	user, err := h.auth.GetUserByID(r.Context(), sess.UserID)
	if err != nil {
		h.logger.Error("HandleMe: user lookup failed", slog.String("user_id", sess.UserID), slog.String("error", err.Error()))
		writeError(w, err)
		return
	}
	p, err := h.profiles.Get(r.Context(), sess.UserID)
	if err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, meResponse{Session: sess, User: user, Profile: p})
}

// HandleConfig exposes analytics ids and the chat model list.
//
// HTTP: GET /api/config
func (h *AccountHandler) HandleConfig(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, h.config)
}

// HTTP: GET /healthz
func (h *AccountHandler) HandleHealth(w http.ResponseWriter, r *http.Request) {
	if err := h.db.Ping(r.Context()); err != nil {
		h.logger.Error("health check failed", slog.String("error", err.Error()))
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{"status": "unavailable"})
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}
