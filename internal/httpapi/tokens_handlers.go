package httpapi

import (
	"errors"
	"net/http"
	"strings"

	"go.uber.org/zap"

	"github.com/waypointdigitalstudio-lang/houseops/internal/repository"
)

// TokensHandler serves device push token registration and removal.
type TokensHandler struct {
	tokens *repository.DeviceTokensRepository
	logger *zap.Logger
}

func NewTokensHandler(tokens *repository.DeviceTokensRepository, logger *zap.Logger) *TokensHandler {
	return &TokensHandler{
		tokens: tokens,
		logger: logger,
	}
}

// RegisterTokensRoutes registers /api/v1/device-tokens routes.
func (rt *Router) RegisterTokensRoutes(h *TokensHandler) {
	rt.Handle("/api/v1/device-tokens", func(w http.ResponseWriter, req *http.Request) {
		if req.Method != http.MethodPost {
			w.WriteHeader(http.StatusMethodNotAllowed)
			return
		}
		h.RegisterToken(w, req)
	})

	rt.Handle("/api/v1/device-tokens/", func(w http.ResponseWriter, req *http.Request) {
		if req.Method != http.MethodDelete {
			w.WriteHeader(http.StatusMethodNotAllowed)
			return
		}
		token := strings.TrimPrefix(req.URL.Path, "/api/v1/device-tokens/")
		h.DeleteToken(w, req, token)
	})
}

type registerTokenRequest struct {
	Token    string `json:"token"`
	Platform string `json:"platform"`
}

// RegisterToken upserts a push token for the calling user.
// Ownership conflicts are swallowed: the response is success either way,
// so a device cannot probe which tokens other users hold.
func (h *TokensHandler) RegisterToken(w http.ResponseWriter, r *http.Request) {
	uid := callerUID(r)
	if uid == "" {
		writeJSON(w, http.StatusBadRequest, Fail("X-User-Id is required"))
		return
	}
	site := siteID(r)
	if site == "" {
		writeJSON(w, http.StatusBadRequest, Fail("site_id is required"))
		return
	}

	var req registerTokenRequest
	if err := readBodyJSON(r, 1<<20, &req); err != nil {
		writeJSON(w, http.StatusBadRequest, Fail("invalid request body"))
		return
	}
	if req.Token == "" {
		writeJSON(w, http.StatusBadRequest, Fail("token is required"))
		return
	}

	err := h.tokens.Register(r.Context(), req.Token, uid, site, req.Platform)
	if err != nil {
		if errors.Is(err, repository.ErrTokenOwnedByOtherUser) ||
			errors.Is(err, repository.ErrTokenBoundToOtherSite) {
			h.logger.Warn("Device token registration skipped",
				zap.String("uid", uid),
				zap.Error(err),
			)
			writeJSON(w, http.StatusOK, Ok(map[string]any{"registered": false}))
			return
		}
		h.logger.Error("Failed to register device token", zap.Error(err))
		writeJSON(w, http.StatusInternalServerError, Fail("failed to register device token"))
		return
	}
	writeJSON(w, http.StatusOK, Ok(map[string]any{"registered": true}))
}

// DeleteToken removes the caller's own registration (device reset path).
func (h *TokensHandler) DeleteToken(w http.ResponseWriter, r *http.Request, token string) {
	uid := callerUID(r)
	if uid == "" {
		writeJSON(w, http.StatusBadRequest, Fail("X-User-Id is required"))
		return
	}
	if token == "" {
		writeJSON(w, http.StatusBadRequest, Fail("token is required"))
		return
	}

	if err := h.tokens.Delete(r.Context(), token, uid); err != nil {
		h.logger.Error("Failed to delete device token", zap.Error(err))
		writeJSON(w, http.StatusInternalServerError, Fail("failed to delete device token"))
		return
	}
	writeJSON(w, http.StatusOK, Ok(map[string]any{"deleted": true}))
}
