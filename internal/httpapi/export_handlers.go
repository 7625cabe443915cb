package httpapi

import (
	"fmt"
	"net/http"
	"time"

	"go.uber.org/zap"

	"github.com/waypointdigitalstudio-lang/houseops/internal/export"
	"github.com/waypointdigitalstudio-lang/houseops/internal/repository"
)

// ExportHandler serves inventory exports.
type ExportHandler struct {
	items  *repository.StockItemsRepository
	logger *zap.Logger
}

func NewExportHandler(items *repository.StockItemsRepository, logger *zap.Logger) *ExportHandler {
	return &ExportHandler{
		items:  items,
		logger: logger,
	}
}

// RegisterExportRoutes registers /api/v1/export routes.
func (rt *Router) RegisterExportRoutes(h *ExportHandler) {
	rt.Handle("/api/v1/export/inventory", func(w http.ResponseWriter, req *http.Request) {
		if req.Method != http.MethodGet {
			w.WriteHeader(http.StatusMethodNotAllowed)
			return
		}
		h.ExportInventory(w, req)
	})
}

// ExportInventory streams the site's inventory as an XLSX attachment.
func (h *ExportHandler) ExportInventory(w http.ResponseWriter, r *http.Request) {
	site := siteID(r)
	if site == "" {
		writeJSON(w, http.StatusBadRequest, Fail("site_id is required"))
		return
	}

	items, err := h.items.ListItems(r.Context(), site)
	if err != nil {
		h.logger.Error("Failed to load items for export", zap.Error(err))
		writeJSON(w, http.StatusInternalServerError, Fail("failed to export inventory"))
		return
	}

	data, err := export.GenerateInventoryExport(items)
	if err != nil {
		h.logger.Error("Failed to generate inventory export", zap.Error(err))
		writeJSON(w, http.StatusInternalServerError, Fail("failed to export inventory"))
		return
	}

	filename := fmt.Sprintf("inventory_%s_%s.xlsx", site, time.Now().Format("20060102_150405"))
	w.Header().Set("Content-Type", "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet")
	w.Header().Set("Content-Disposition", fmt.Sprintf(`attachment; filename="%s"`, filename))
	w.Header().Set("Content-Length", fmt.Sprintf("%d", len(data)))
	_, _ = w.Write(data)
}
