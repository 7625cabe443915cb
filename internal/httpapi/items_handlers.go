package httpapi

import (
	"context"
	"database/sql"
	"net/http"
	"strings"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/waypointdigitalstudio-lang/houseops/internal/alert"
	"github.com/waypointdigitalstudio-lang/houseops/internal/domain"
	"github.com/waypointdigitalstudio-lang/houseops/internal/redisx"
	"github.com/waypointdigitalstudio-lang/houseops/internal/repository"
)

// ItemsHandler serves stock item CRUD and quantity adjustments.
// Quantity-changing writes publish a StockChange event to the alert stream;
// the item write itself is authoritative and never rolled back if publishing fails.
type ItemsHandler struct {
	items       *repository.StockItemsRepository
	redisClient *redis.Client
	stream      string
	logger      *zap.Logger
}

func NewItemsHandler(items *repository.StockItemsRepository, redisClient *redis.Client, stream string, logger *zap.Logger) *ItemsHandler {
	return &ItemsHandler{
		items:       items,
		redisClient: redisClient,
		stream:      stream,
		logger:      logger,
	}
}

// RegisterItemsRoutes registers /api/v1/items routes.
func (rt *Router) RegisterItemsRoutes(h *ItemsHandler) {
	rt.Handle("/api/v1/items", func(w http.ResponseWriter, req *http.Request) {
		switch req.Method {
		case http.MethodGet:
			h.ListItems(w, req)
		case http.MethodPost:
			h.CreateItem(w, req)
		default:
			w.WriteHeader(http.StatusMethodNotAllowed)
		}
	})

	rt.Handle("/api/v1/items/", func(w http.ResponseWriter, req *http.Request) {
		rest := strings.TrimPrefix(req.URL.Path, "/api/v1/items/")
		parts := strings.Split(rest, "/")
		switch {
		case len(parts) == 1 && parts[0] != "":
			switch req.Method {
			case http.MethodGet:
				h.GetItem(w, req, parts[0])
			case http.MethodPut:
				h.UpdateItem(w, req, parts[0])
			case http.MethodDelete:
				h.DeleteItem(w, req, parts[0])
			default:
				w.WriteHeader(http.StatusMethodNotAllowed)
			}
		case len(parts) == 2 && parts[1] == "adjust":
			if req.Method != http.MethodPost {
				w.WriteHeader(http.StatusMethodNotAllowed)
				return
			}
			h.AdjustStock(w, req, parts[0])
		default:
			w.WriteHeader(http.StatusNotFound)
		}
	})

	rt.Handle("/api/v1/items/by-barcode/", func(w http.ResponseWriter, req *http.Request) {
		if req.Method != http.MethodGet {
			w.WriteHeader(http.StatusMethodNotAllowed)
			return
		}
		barcode := strings.TrimPrefix(req.URL.Path, "/api/v1/items/by-barcode/")
		h.GetItemByBarcode(w, req, barcode)
	})
}

func (h *ItemsHandler) ListItems(w http.ResponseWriter, r *http.Request) {
	site := siteID(r)
	if site == "" {
		writeJSON(w, http.StatusBadRequest, Fail("site_id is required"))
		return
	}

	items, err := h.items.ListItems(r.Context(), site)
	if err != nil {
		h.logger.Error("Failed to list items", zap.Error(err))
		writeJSON(w, http.StatusInternalServerError, Fail("failed to list items"))
		return
	}

	out := make([]map[string]any, 0, len(items))
	for i := range items {
		out = append(out, items[i].ToJSON())
	}
	writeJSON(w, http.StatusOK, Ok(out))
}

type createItemRequest struct {
	Name            string `json:"name"`
	Barcode         string `json:"barcode"`
	QuantityCurrent int    `json:"quantity_current"`
	QuantityMin     int    `json:"quantity_min"`
}

func (h *ItemsHandler) CreateItem(w http.ResponseWriter, r *http.Request) {
	site := siteID(r)
	if site == "" {
		writeJSON(w, http.StatusBadRequest, Fail("site_id is required"))
		return
	}

	var req createItemRequest
	if err := readBodyJSON(r, 1<<20, &req); err != nil {
		writeJSON(w, http.StatusBadRequest, Fail("invalid request body"))
		return
	}
	if req.Name == "" {
		writeJSON(w, http.StatusBadRequest, Fail("name is required"))
		return
	}

	item := &domain.StockItem{
		ItemID:          uuid.New().String(),
		SiteID:          site,
		Name:            req.Name,
		QuantityCurrent: req.QuantityCurrent,
		QuantityMin:     req.QuantityMin,
		AlertState:      domain.StockStateOK,
	}
	if req.Barcode != "" {
		item.Barcode = sql.NullString{String: req.Barcode, Valid: true}
	}

	if err := h.items.CreateItem(r.Context(), item); err != nil {
		h.logger.Error("Failed to create item", zap.Error(err))
		writeJSON(w, http.StatusInternalServerError, Fail("failed to create item"))
		return
	}
	writeJSON(w, http.StatusOK, Ok(map[string]any{"item_id": item.ItemID}))
}

func (h *ItemsHandler) GetItem(w http.ResponseWriter, r *http.Request, itemID string) {
	site := siteID(r)
	if site == "" {
		writeJSON(w, http.StatusBadRequest, Fail("site_id is required"))
		return
	}

	item, err := h.items.GetItem(r.Context(), site, itemID)
	if err != nil {
		h.logger.Error("Failed to get item", zap.Error(err))
		writeJSON(w, http.StatusInternalServerError, Fail("failed to get item"))
		return
	}
	if item == nil {
		writeJSON(w, http.StatusNotFound, Fail("item not found"))
		return
	}
	writeJSON(w, http.StatusOK, Ok(item.ToJSON()))
}

func (h *ItemsHandler) GetItemByBarcode(w http.ResponseWriter, r *http.Request, barcode string) {
	site := siteID(r)
	if site == "" || barcode == "" {
		writeJSON(w, http.StatusBadRequest, Fail("site_id and barcode are required"))
		return
	}

	item, err := h.items.GetItemByBarcode(r.Context(), site, barcode)
	if err != nil {
		h.logger.Error("Failed to get item by barcode", zap.Error(err))
		writeJSON(w, http.StatusInternalServerError, Fail("failed to get item"))
		return
	}
	if item == nil {
		writeJSON(w, http.StatusNotFound, Fail("item not found"))
		return
	}
	writeJSON(w, http.StatusOK, Ok(item.ToJSON()))
}

type updateItemRequest struct {
	Name        string `json:"name"`
	Barcode     string `json:"barcode"`
	QuantityMin int    `json:"quantity_min"`
}

func (h *ItemsHandler) UpdateItem(w http.ResponseWriter, r *http.Request, itemID string) {
	site := siteID(r)
	if site == "" {
		writeJSON(w, http.StatusBadRequest, Fail("site_id is required"))
		return
	}

	var req updateItemRequest
	if err := readBodyJSON(r, 1<<20, &req); err != nil {
		writeJSON(w, http.StatusBadRequest, Fail("invalid request body"))
		return
	}

	item := &domain.StockItem{
		ItemID:      itemID,
		SiteID:      site,
		Name:        req.Name,
		QuantityMin: req.QuantityMin,
	}
	if req.Barcode != "" {
		item.Barcode = sql.NullString{String: req.Barcode, Valid: true}
	}

	if err := h.items.UpdateItem(r.Context(), item); err != nil {
		h.logger.Error("Failed to update item", zap.Error(err))
		writeJSON(w, http.StatusInternalServerError, Fail("failed to update item"))
		return
	}
	writeJSON(w, http.StatusOK, Ok(map[string]any{"item_id": itemID}))
}

func (h *ItemsHandler) DeleteItem(w http.ResponseWriter, r *http.Request, itemID string) {
	site := siteID(r)
	if site == "" {
		writeJSON(w, http.StatusBadRequest, Fail("site_id is required"))
		return
	}

	if err := h.items.DeleteItem(r.Context(), site, itemID); err != nil {
		h.logger.Error("Failed to delete item", zap.Error(err))
		writeJSON(w, http.StatusInternalServerError, Fail("failed to delete item"))
		return
	}
	writeJSON(w, http.StatusOK, Ok(map[string]any{"item_id": itemID}))
}

type adjustStockRequest struct {
	Delta *int `json:"delta"`
	Set   *int `json:"set"`
}

// AdjustStock applies a relative delta or an absolute set to the item quantity.
func (h *ItemsHandler) AdjustStock(w http.ResponseWriter, r *http.Request, itemID string) {
	site := siteID(r)
	if site == "" {
		writeJSON(w, http.StatusBadRequest, Fail("site_id is required"))
		return
	}

	var req adjustStockRequest
	if err := readBodyJSON(r, 1<<20, &req); err != nil {
		writeJSON(w, http.StatusBadRequest, Fail("invalid request body"))
		return
	}
	if req.Delta == nil && req.Set == nil {
		writeJSON(w, http.StatusBadRequest, Fail("delta or set is required"))
		return
	}

	var res *repository.AdjustResult
	var err error
	if req.Set != nil {
		res, err = h.items.SetQuantity(r.Context(), site, itemID, *req.Set)
	} else {
		res, err = h.items.AdjustQuantity(r.Context(), site, itemID, *req.Delta)
	}
	if err != nil {
		h.logger.Error("Failed to adjust stock",
			zap.String("item_id", itemID),
			zap.Error(err),
		)
		writeJSON(w, http.StatusInternalServerError, Fail("failed to adjust stock"))
		return
	}

	if res.PrevQty != res.NewQty {
		h.publishStockChange(r.Context(), site, itemID, res)
	}

	writeJSON(w, http.StatusOK, Ok(map[string]any{
		"item_id":  itemID,
		"prev_qty": res.PrevQty,
		"new_qty":  res.NewQty,
	}))
}

func (h *ItemsHandler) publishStockChange(ctx context.Context, site, itemID string, res *repository.AdjustResult) {
	change := alert.StockChange{
		ItemID:      itemID,
		SiteID:      site,
		ItemName:    res.ItemName,
		PrevQty:     res.PrevQty,
		NewQty:      res.NewQty,
		QuantityMin: res.QuantityMin,
		OccurredAt:  time.Now().Unix(),
	}
	if _, err := redisx.PublishJSONToStream(ctx, h.redisClient, h.stream, change); err != nil {
		// Alert loss is tolerated; the stock write stands either way.
		h.logger.Error("Failed to publish stock change event",
			zap.String("item_id", itemID),
			zap.Error(err),
		)
	}
}
