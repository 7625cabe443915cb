package repository

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/waypointdigitalstudio-lang/houseops/internal/domain"
)

// StockItemsRepository 库存物品仓库
type StockItemsRepository struct {
	db     *sql.DB
	logger *zap.Logger
}

// NewStockItemsRepository 创建库存物品仓库
func NewStockItemsRepository(db *sql.DB, logger *zap.Logger) *StockItemsRepository {
	return &StockItemsRepository{
		db:     db,
		logger: logger,
	}
}

const stockItemColumns = `
	item_id,
	site_id,
	name,
	barcode,
	quantity_current,
	quantity_min,
	alert_state,
	last_alert_at,
	last_alert_state,
	created_at,
	updated_at
`

func scanStockItem(row interface{ Scan(...any) error }) (*domain.StockItem, error) {
	var item domain.StockItem
	var lastAlertState sql.NullString
	err := row.Scan(
		&item.ItemID,
		&item.SiteID,
		&item.Name,
		&item.Barcode,
		&item.QuantityCurrent,
		&item.QuantityMin,
		&item.AlertState,
		&item.LastAlertAt,
		&lastAlertState,
		&item.CreatedAt,
		&item.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	item.LastAlertState = lastAlertState
	return &item, nil
}

// ============================================
// 基础 CRUD 操作
// ============================================

// CreateItem 创建库存物品（alert_state 默认 OK，报警字段仅由报警管线写入）
func (r *StockItemsRepository) CreateItem(ctx context.Context, item *domain.StockItem) error {
	if item.SiteID == "" {
		return fmt.Errorf("site_id is required")
	}
	if item.Name == "" {
		return fmt.Errorf("name is required")
	}
	if item.QuantityCurrent < 0 || item.QuantityMin < 0 {
		return fmt.Errorf("quantities must be >= 0")
	}

	query := `
		INSERT INTO stock_items (
			item_id, site_id, name, barcode,
			quantity_current, quantity_min, alert_state,
			created_at, updated_at
		) VALUES ($1, $2, $3, $4, $5, $6, 'OK', NOW(), NOW())
	`
	_, err := r.db.ExecContext(ctx, query,
		item.ItemID,
		item.SiteID,
		item.Name,
		item.Barcode,
		item.QuantityCurrent,
		item.QuantityMin,
	)
	if err != nil {
		return fmt.Errorf("failed to create stock item: %w", err)
	}
	return nil
}

// GetItem 根据 item_id 获取单个物品（需验证 site_id）
func (r *StockItemsRepository) GetItem(ctx context.Context, siteID, itemID string) (*domain.StockItem, error) {
	if siteID == "" {
		return nil, fmt.Errorf("site_id is required")
	}
	if itemID == "" {
		return nil, fmt.Errorf("item_id is required")
	}

	query := `SELECT ` + stockItemColumns + ` FROM stock_items WHERE item_id = $1 AND site_id = $2`

	item, err := scanStockItem(r.db.QueryRowContext(ctx, query, itemID, siteID))
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to get stock item: %w", err)
	}
	return item, nil
}

// GetItemByBarcode 根据条码获取物品（扫码录入路径）
func (r *StockItemsRepository) GetItemByBarcode(ctx context.Context, siteID, barcode string) (*domain.StockItem, error) {
	if siteID == "" {
		return nil, fmt.Errorf("site_id is required")
	}
	if barcode == "" {
		return nil, fmt.Errorf("barcode is required")
	}

	query := `SELECT ` + stockItemColumns + ` FROM stock_items WHERE site_id = $1 AND barcode = $2`

	item, err := scanStockItem(r.db.QueryRowContext(ctx, query, siteID, barcode))
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to get stock item by barcode: %w", err)
	}
	return item, nil
}

// ListItems 获取站点下全部物品（按名称排序）
func (r *StockItemsRepository) ListItems(ctx context.Context, siteID string) ([]domain.StockItem, error) {
	if siteID == "" {
		return nil, fmt.Errorf("site_id is required")
	}

	query := `SELECT ` + stockItemColumns + ` FROM stock_items WHERE site_id = $1 ORDER BY name`

	rows, err := r.db.QueryContext(ctx, query, siteID)
	if err != nil {
		return nil, fmt.Errorf("failed to list stock items: %w", err)
	}
	defer rows.Close()

	var items []domain.StockItem
	for rows.Next() {
		item, err := scanStockItem(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan stock item: %w", err)
		}
		items = append(items, *item)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate stock items: %w", err)
	}
	return items, nil
}

// UpdateItem 更新物品元数据（名称/条码/下限，不触碰数量和报警字段）
func (r *StockItemsRepository) UpdateItem(ctx context.Context, item *domain.StockItem) error {
	if item.ItemID == "" {
		return fmt.Errorf("item_id is required")
	}
	if item.SiteID == "" {
		return fmt.Errorf("site_id is required")
	}
	if item.QuantityMin < 0 {
		return fmt.Errorf("quantity_min must be >= 0")
	}

	query := `
		UPDATE stock_items
		SET name = $3, barcode = $4, quantity_min = $5, updated_at = NOW()
		WHERE item_id = $1 AND site_id = $2
	`
	result, err := r.db.ExecContext(ctx, query,
		item.ItemID, item.SiteID, item.Name, item.Barcode, item.QuantityMin)
	if err != nil {
		return fmt.Errorf("failed to update stock item: %w", err)
	}
	affected, _ := result.RowsAffected()
	if affected == 0 {
		return fmt.Errorf("stock item not found: %s", item.ItemID)
	}
	return nil
}

// DeleteItem 删除物品
func (r *StockItemsRepository) DeleteItem(ctx context.Context, siteID, itemID string) error {
	if siteID == "" || itemID == "" {
		return fmt.Errorf("site_id and item_id are required")
	}

	_, err := r.db.ExecContext(ctx,
		`DELETE FROM stock_items WHERE item_id = $1 AND site_id = $2`, itemID, siteID)
	if err != nil {
		return fmt.Errorf("failed to delete stock item: %w", err)
	}
	return nil
}

// ============================================
// 库存数量变更
// ============================================

// AdjustResult 数量变更结果（变更前后快照，供报警管线触发判断）
type AdjustResult struct {
	ItemName    string
	PrevQty     int
	NewQty      int
	QuantityMin int
}

// AdjustQuantity 按增量调整库存数量（结果不低于 0），返回变更前后数量
func (r *StockItemsRepository) AdjustQuantity(ctx context.Context, siteID, itemID string, delta int) (*AdjustResult, error) {
	if siteID == "" || itemID == "" {
		return nil, fmt.Errorf("site_id and item_id are required")
	}

	query := `
		UPDATE stock_items s
		SET quantity_current = GREATEST(s.quantity_current + $3, 0), updated_at = NOW()
		FROM (
			SELECT item_id, quantity_current
			FROM stock_items
			WHERE item_id = $1 AND site_id = $2
			FOR UPDATE
		) prev
		WHERE s.item_id = prev.item_id
		RETURNING s.name, prev.quantity_current, s.quantity_current, s.quantity_min
	`

	var res AdjustResult
	err := r.db.QueryRowContext(ctx, query, itemID, siteID, delta).Scan(
		&res.ItemName, &res.PrevQty, &res.NewQty, &res.QuantityMin)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, fmt.Errorf("stock item not found: %s", itemID)
		}
		return nil, fmt.Errorf("failed to adjust quantity: %w", err)
	}
	return &res, nil
}

// SetQuantity 设置库存数量为绝对值（盘点路径）
func (r *StockItemsRepository) SetQuantity(ctx context.Context, siteID, itemID string, quantity int) (*AdjustResult, error) {
	if siteID == "" || itemID == "" {
		return nil, fmt.Errorf("site_id and item_id are required")
	}
	if quantity < 0 {
		return nil, fmt.Errorf("quantity must be >= 0")
	}

	query := `
		UPDATE stock_items s
		SET quantity_current = $3, updated_at = NOW()
		FROM (
			SELECT item_id, quantity_current
			FROM stock_items
			WHERE item_id = $1 AND site_id = $2
			FOR UPDATE
		) prev
		WHERE s.item_id = prev.item_id
		RETURNING s.name, prev.quantity_current, s.quantity_current, s.quantity_min
	`

	var res AdjustResult
	err := r.db.QueryRowContext(ctx, query, itemID, siteID, quantity).Scan(
		&res.ItemName, &res.PrevQty, &res.NewQty, &res.QuantityMin)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, fmt.Errorf("stock item not found: %s", itemID)
		}
		return nil, fmt.Errorf("failed to set quantity: %w", err)
	}
	return &res, nil
}

// ============================================
// 报警管线专用（仅由 alert.Pipeline 调用）
// ============================================

// UpdateAlertState 仅更新缓存的 alert_state（冷却抑制路径）
func (r *StockItemsRepository) UpdateAlertState(ctx context.Context, itemID string, state domain.StockState) error {
	if itemID == "" {
		return fmt.Errorf("item_id is required")
	}

	_, err := r.db.ExecContext(ctx,
		`UPDATE stock_items SET alert_state = $2, updated_at = NOW() WHERE item_id = $1`,
		itemID, string(state))
	if err != nil {
		return fmt.Errorf("failed to update alert state: %w", err)
	}
	return nil
}

// MarkAlerted 原子更新报警状态与冷却簿记（放行路径）
func (r *StockItemsRepository) MarkAlerted(ctx context.Context, itemID string, state domain.StockState, at time.Time) error {
	if itemID == "" {
		return fmt.Errorf("item_id is required")
	}

	_, err := r.db.ExecContext(ctx, `
		UPDATE stock_items
		SET alert_state = $2, last_alert_state = $2, last_alert_at = $3, updated_at = NOW()
		WHERE item_id = $1
	`, itemID, string(state), at)
	if err != nil {
		return fmt.Errorf("failed to mark item alerted: %w", err)
	}
	return nil
}
