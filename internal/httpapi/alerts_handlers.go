package httpapi

import (
	"net/http"
	"strings"

	"go.uber.org/zap"

	"github.com/waypointdigitalstudio-lang/houseops/internal/feed"
	"github.com/waypointdigitalstudio-lang/houseops/internal/repository"
)

// AlertsHandler serves the user-visible alert feed and the audit trail.
// Per-device read state is keyed by push token; the device passes its
// token explicitly via the X-Device-Token header.
type AlertsHandler struct {
	alerts   *repository.AlertsRepository
	notifier *feed.Notifier
	logger   *zap.Logger
}

func NewAlertsHandler(alerts *repository.AlertsRepository, notifier *feed.Notifier, logger *zap.Logger) *AlertsHandler {
	return &AlertsHandler{
		alerts:   alerts,
		notifier: notifier,
		logger:   logger,
	}
}

// RegisterAlertsRoutes registers /api/v1/alerts routes.
func (rt *Router) RegisterAlertsRoutes(h *AlertsHandler) {
	rt.Handle("/api/v1/alerts/unread", func(w http.ResponseWriter, req *http.Request) {
		if req.Method != http.MethodGet {
			w.WriteHeader(http.StatusMethodNotAllowed)
			return
		}
		h.ListUnread(w, req)
	})

	rt.Handle("/api/v1/alerts/unread-count", func(w http.ResponseWriter, req *http.Request) {
		if req.Method != http.MethodGet {
			w.WriteHeader(http.StatusMethodNotAllowed)
			return
		}
		h.UnreadCount(w, req)
	})

	rt.Handle("/api/v1/alerts/history", func(w http.ResponseWriter, req *http.Request) {
		if req.Method != http.MethodGet {
			w.WriteHeader(http.StatusMethodNotAllowed)
			return
		}
		h.History(w, req)
	})

	rt.Handle("/api/v1/alerts/audit", func(w http.ResponseWriter, req *http.Request) {
		if req.Method != http.MethodGet {
			w.WriteHeader(http.StatusMethodNotAllowed)
			return
		}
		h.ListAudits(w, req)
	})

	rt.Handle("/api/v1/alerts/", func(w http.ResponseWriter, req *http.Request) {
		rest := strings.TrimPrefix(req.URL.Path, "/api/v1/alerts/")
		parts := strings.Split(rest, "/")
		if len(parts) == 2 && parts[1] == "read" {
			if req.Method != http.MethodPost {
				w.WriteHeader(http.StatusMethodNotAllowed)
				return
			}
			h.MarkRead(w, req, parts[0])
			return
		}
		w.WriteHeader(http.StatusNotFound)
	})
}

func deviceToken(r *http.Request) string {
	return r.Header.Get("X-Device-Token")
}

func (h *AlertsHandler) tracker(r *http.Request) (*feed.Tracker, string) {
	site := siteID(r)
	if site == "" {
		return nil, "site_id is required"
	}
	token := deviceToken(r)
	if token == "" {
		return nil, "X-Device-Token is required"
	}
	return feed.NewTracker(h.alerts, site, token, h.logger), ""
}

func (h *AlertsHandler) ListUnread(w http.ResponseWriter, r *http.Request) {
	tracker, errMsg := h.tracker(r)
	if tracker == nil {
		writeJSON(w, http.StatusBadRequest, Fail(errMsg))
		return
	}

	limit := parseInt(r.URL.Query().Get("limit"), 200)
	entries, err := tracker.Unread(r.Context(), limit)
	if err != nil {
		h.logger.Error("Failed to list unread alerts", zap.Error(err))
		writeJSON(w, http.StatusInternalServerError, Fail("failed to list unread alerts"))
		return
	}

	out := make([]map[string]any, 0, len(entries))
	for i := range entries {
		out = append(out, entries[i].ToJSON())
	}
	writeJSON(w, http.StatusOK, Ok(out))
}

func (h *AlertsHandler) UnreadCount(w http.ResponseWriter, r *http.Request) {
	tracker, errMsg := h.tracker(r)
	if tracker == nil {
		writeJSON(w, http.StatusBadRequest, Fail(errMsg))
		return
	}

	count, err := tracker.UnreadCount(r.Context())
	if err != nil {
		h.logger.Error("Failed to count unread alerts", zap.Error(err))
		writeJSON(w, http.StatusInternalServerError, Fail("failed to count unread alerts"))
		return
	}
	writeJSON(w, http.StatusOK, Ok(map[string]any{"count": count}))
}

// History returns the full feed grouped by calendar date, newest first.
// Viewing history does not change read state.
func (h *AlertsHandler) History(w http.ResponseWriter, r *http.Request) {
	site := siteID(r)
	if site == "" {
		writeJSON(w, http.StatusBadRequest, Fail("site_id is required"))
		return
	}

	limit := parseInt(r.URL.Query().Get("limit"), 200)
	entries, err := h.alerts.ListFeed(r.Context(), site, limit)
	if err != nil {
		h.logger.Error("Failed to list alert history", zap.Error(err))
		writeJSON(w, http.StatusInternalServerError, Fail("failed to list alert history"))
		return
	}

	groups := feed.GroupByDate(entries)
	out := make([]map[string]any, 0, len(groups))
	for _, g := range groups {
		items := make([]map[string]any, 0, len(g.Entries))
		for i := range g.Entries {
			items = append(items, g.Entries[i].ToJSON())
		}
		out = append(out, map[string]any{
			"date":    g.Date,
			"entries": items,
		})
	}
	writeJSON(w, http.StatusOK, Ok(out))
}

// MarkRead merges the device token into the entry's read set.
// Idempotent: marking an already-read entry succeeds without change.
func (h *AlertsHandler) MarkRead(w http.ResponseWriter, r *http.Request, alertID string) {
	site := siteID(r)
	if site == "" {
		writeJSON(w, http.StatusBadRequest, Fail("site_id is required"))
		return
	}
	token := deviceToken(r)
	if token == "" {
		writeJSON(w, http.StatusBadRequest, Fail("X-Device-Token is required"))
		return
	}

	if err := h.alerts.MarkRead(r.Context(), alertID, token); err != nil {
		h.logger.Error("Failed to mark alert read",
			zap.String("alert_id", alertID),
			zap.Error(err),
		)
		writeJSON(w, http.StatusInternalServerError, Fail("failed to mark alert read"))
		return
	}

	if h.notifier != nil {
		if err := h.notifier.NotifyChanged(r.Context(), site); err != nil {
			h.logger.Warn("Failed to publish feed change", zap.Error(err))
		}
	}
	writeJSON(w, http.StatusOK, Ok(map[string]any{"alert_id": alertID}))
}

func (h *AlertsHandler) ListAudits(w http.ResponseWriter, r *http.Request) {
	site := siteID(r)
	if site == "" {
		writeJSON(w, http.StatusBadRequest, Fail("site_id is required"))
		return
	}

	limit := parseInt(r.URL.Query().Get("limit"), 100)
	audits, err := h.alerts.ListAudits(r.Context(), site, limit)
	if err != nil {
		h.logger.Error("Failed to list audit records", zap.Error(err))
		writeJSON(w, http.StatusInternalServerError, Fail("failed to list audit records"))
		return
	}

	out := make([]map[string]any, 0, len(audits))
	for i := range audits {
		out = append(out, audits[i].ToJSON())
	}
	writeJSON(w, http.StatusOK, Ok(out))
}
