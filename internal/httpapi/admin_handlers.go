package httpapi

import (
	"database/sql"
	"net/http"
	"strings"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/waypointdigitalstudio-lang/houseops/internal/domain"
	"github.com/waypointdigitalstudio-lang/houseops/internal/repository"
)

// AdminHandler serves site and user management.
type AdminHandler struct {
	sites  *repository.SitesRepository
	users  *repository.UsersRepository
	logger *zap.Logger
}

func NewAdminHandler(sites *repository.SitesRepository, users *repository.UsersRepository, logger *zap.Logger) *AdminHandler {
	return &AdminHandler{
		sites:  sites,
		users:  users,
		logger: logger,
	}
}

// RegisterAdminRoutes registers /api/v1/sites and /api/v1/users routes.
func (rt *Router) RegisterAdminRoutes(h *AdminHandler) {
	rt.Handle("/api/v1/sites", func(w http.ResponseWriter, req *http.Request) {
		switch req.Method {
		case http.MethodGet:
			h.ListSites(w, req)
		case http.MethodPost:
			h.CreateSite(w, req)
		default:
			w.WriteHeader(http.StatusMethodNotAllowed)
		}
	})

	rt.Handle("/api/v1/sites/", func(w http.ResponseWriter, req *http.Request) {
		siteID := strings.TrimPrefix(req.URL.Path, "/api/v1/sites/")
		switch req.Method {
		case http.MethodGet:
			h.GetSite(w, req, siteID)
		case http.MethodPut:
			h.UpdateSite(w, req, siteID)
		default:
			w.WriteHeader(http.StatusMethodNotAllowed)
		}
	})

	rt.Handle("/api/v1/users", func(w http.ResponseWriter, req *http.Request) {
		switch req.Method {
		case http.MethodGet:
			h.ListUsers(w, req)
		case http.MethodPost:
			h.CreateUser(w, req)
		default:
			w.WriteHeader(http.StatusMethodNotAllowed)
		}
	})

	rt.Handle("/api/v1/users/", func(w http.ResponseWriter, req *http.Request) {
		uid := strings.TrimPrefix(req.URL.Path, "/api/v1/users/")
		switch req.Method {
		case http.MethodGet:
			h.GetUser(w, req, uid)
		case http.MethodPut:
			h.UpdateUser(w, req, uid)
		case http.MethodDelete:
			h.DeleteUser(w, req, uid)
		default:
			w.WriteHeader(http.StatusMethodNotAllowed)
		}
	})
}

// ============================================
// Sites
// ============================================

type siteRequest struct {
	Name     string `json:"name"`
	Timezone string `json:"timezone"`
}

func (h *AdminHandler) ListSites(w http.ResponseWriter, r *http.Request) {
	sites, err := h.sites.ListSites(r.Context())
	if err != nil {
		h.logger.Error("Failed to list sites", zap.Error(err))
		writeJSON(w, http.StatusInternalServerError, Fail("failed to list sites"))
		return
	}

	out := make([]map[string]any, 0, len(sites))
	for i := range sites {
		out = append(out, sites[i].ToJSON())
	}
	writeJSON(w, http.StatusOK, Ok(out))
}

func (h *AdminHandler) CreateSite(w http.ResponseWriter, r *http.Request) {
	var req siteRequest
	if err := readBodyJSON(r, 1<<20, &req); err != nil {
		writeJSON(w, http.StatusBadRequest, Fail("invalid request body"))
		return
	}
	if req.Name == "" {
		writeJSON(w, http.StatusBadRequest, Fail("name is required"))
		return
	}

	site := &domain.Site{
		SiteID: uuid.New().String(),
		Name:   req.Name,
	}
	if req.Timezone != "" {
		site.Timezone = sql.NullString{String: req.Timezone, Valid: true}
	}

	if err := h.sites.CreateSite(r.Context(), site); err != nil {
		h.logger.Error("Failed to create site", zap.Error(err))
		writeJSON(w, http.StatusInternalServerError, Fail("failed to create site"))
		return
	}
	writeJSON(w, http.StatusOK, Ok(map[string]any{"site_id": site.SiteID}))
}

func (h *AdminHandler) GetSite(w http.ResponseWriter, r *http.Request, siteID string) {
	site, err := h.sites.GetSite(r.Context(), siteID)
	if err != nil {
		h.logger.Error("Failed to get site", zap.Error(err))
		writeJSON(w, http.StatusInternalServerError, Fail("failed to get site"))
		return
	}
	if site == nil {
		writeJSON(w, http.StatusNotFound, Fail("site not found"))
		return
	}
	writeJSON(w, http.StatusOK, Ok(site.ToJSON()))
}

func (h *AdminHandler) UpdateSite(w http.ResponseWriter, r *http.Request, siteID string) {
	var req siteRequest
	if err := readBodyJSON(r, 1<<20, &req); err != nil {
		writeJSON(w, http.StatusBadRequest, Fail("invalid request body"))
		return
	}

	site := &domain.Site{
		SiteID: siteID,
		Name:   req.Name,
	}
	if req.Timezone != "" {
		site.Timezone = sql.NullString{String: req.Timezone, Valid: true}
	}

	if err := h.sites.UpdateSite(r.Context(), site); err != nil {
		h.logger.Error("Failed to update site", zap.Error(err))
		writeJSON(w, http.StatusInternalServerError, Fail("failed to update site"))
		return
	}
	writeJSON(w, http.StatusOK, Ok(map[string]any{"site_id": siteID}))
}

// ============================================
// Users
// ============================================

type userRequest struct {
	SiteID      string `json:"site_id"`
	Role        string `json:"role"`
	DisplayName string `json:"display_name"`
	Email       string `json:"email"`
}

func (h *AdminHandler) ListUsers(w http.ResponseWriter, r *http.Request) {
	site := siteID(r)
	if site == "" {
		writeJSON(w, http.StatusBadRequest, Fail("site_id is required"))
		return
	}

	users, err := h.users.ListUsersBySite(r.Context(), site)
	if err != nil {
		h.logger.Error("Failed to list users", zap.Error(err))
		writeJSON(w, http.StatusInternalServerError, Fail("failed to list users"))
		return
	}

	out := make([]map[string]any, 0, len(users))
	for i := range users {
		out = append(out, users[i].ToJSON())
	}
	writeJSON(w, http.StatusOK, Ok(out))
}

func (h *AdminHandler) CreateUser(w http.ResponseWriter, r *http.Request) {
	var req userRequest
	if err := readBodyJSON(r, 1<<20, &req); err != nil {
		writeJSON(w, http.StatusBadRequest, Fail("invalid request body"))
		return
	}
	if req.SiteID == "" {
		writeJSON(w, http.StatusBadRequest, Fail("site_id is required"))
		return
	}
	if req.Role != domain.RoleAdmin && req.Role != domain.RoleStaff {
		writeJSON(w, http.StatusBadRequest, Fail("role must be admin or staff"))
		return
	}

	user := &domain.User{
		UID:         uuid.New().String(),
		SiteID:      req.SiteID,
		Role:        req.Role,
		DisplayName: req.DisplayName,
	}
	if req.Email != "" {
		user.Email = sql.NullString{String: req.Email, Valid: true}
	}

	if err := h.users.CreateUser(r.Context(), user); err != nil {
		h.logger.Error("Failed to create user", zap.Error(err))
		writeJSON(w, http.StatusInternalServerError, Fail("failed to create user"))
		return
	}
	writeJSON(w, http.StatusOK, Ok(map[string]any{"uid": user.UID}))
}

func (h *AdminHandler) GetUser(w http.ResponseWriter, r *http.Request, uid string) {
	user, err := h.users.GetUser(r.Context(), uid)
	if err != nil {
		h.logger.Error("Failed to get user", zap.Error(err))
		writeJSON(w, http.StatusInternalServerError, Fail("failed to get user"))
		return
	}
	if user == nil {
		writeJSON(w, http.StatusNotFound, Fail("user not found"))
		return
	}
	writeJSON(w, http.StatusOK, Ok(user.ToJSON()))
}

func (h *AdminHandler) UpdateUser(w http.ResponseWriter, r *http.Request, uid string) {
	var req userRequest
	if err := readBodyJSON(r, 1<<20, &req); err != nil {
		writeJSON(w, http.StatusBadRequest, Fail("invalid request body"))
		return
	}
	if req.Role != domain.RoleAdmin && req.Role != domain.RoleStaff {
		writeJSON(w, http.StatusBadRequest, Fail("role must be admin or staff"))
		return
	}

	user := &domain.User{
		UID:         uid,
		Role:        req.Role,
		DisplayName: req.DisplayName,
	}
	if req.Email != "" {
		user.Email = sql.NullString{String: req.Email, Valid: true}
	}

	if err := h.users.UpdateUser(r.Context(), user); err != nil {
		h.logger.Error("Failed to update user", zap.Error(err))
		writeJSON(w, http.StatusInternalServerError, Fail("failed to update user"))
		return
	}
	writeJSON(w, http.StatusOK, Ok(map[string]any{"uid": uid}))
}

func (h *AdminHandler) DeleteUser(w http.ResponseWriter, r *http.Request, uid string) {
	if err := h.users.DeleteUser(r.Context(), uid); err != nil {
		h.logger.Error("Failed to delete user", zap.Error(err))
		writeJSON(w, http.StatusInternalServerError, Fail("failed to delete user"))
		return
	}
	writeJSON(w, http.StatusOK, Ok(map[string]any{"uid": uid}))
}
