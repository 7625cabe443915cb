package domain

import (
	"database/sql"
	"time"
)

// StockState 库存状态分类
type StockState string

const (
	StockStateOK  StockState = "OK"
	StockStateLow StockState = "LOW"
	StockStateOut StockState = "OUT"
)

// StockItem 库存物品领域模型（对应 stock_items 表）
type StockItem struct {
	// 主键和站点
	ItemID string `db:"item_id"`
	SiteID string `db:"site_id"` // NOT NULL

	// 标识
	Name    string         `db:"name"`    // NOT NULL
	Barcode sql.NullString `db:"barcode"` // nullable，扫码录入用

	// 库存数量
	QuantityCurrent int `db:"quantity_current"` // NOT NULL, >= 0
	QuantityMin     int `db:"quantity_min"`     // NOT NULL, >= 0

	// 报警状态缓存（仅由报警管线写入，UI 不直接修改）
	AlertState     StockState     `db:"alert_state"`      // NOT NULL, default 'OK'
	LastAlertAt    sql.NullTime   `db:"last_alert_at"`    // nullable，冷却窗口用
	LastAlertState sql.NullString `db:"last_alert_state"` // nullable

	CreatedAt time.Time `db:"created_at"`
	UpdatedAt time.Time `db:"updated_at"`
}

// ToJSON 转换为JSON格式（用于HTTP响应）
func (s *StockItem) ToJSON() map[string]any {
	m := map[string]any{
		"item_id":          s.ItemID,
		"site_id":          s.SiteID,
		"name":             s.Name,
		"quantity_current": s.QuantityCurrent,
		"quantity_min":     s.QuantityMin,
		"alert_state":      string(s.AlertState),
		"created_at":       s.CreatedAt,
		"updated_at":       s.UpdatedAt,
	}
	if s.Barcode.Valid {
		m["barcode"] = s.Barcode.String
	}
	if s.LastAlertAt.Valid {
		m["last_alert_at"] = s.LastAlertAt.Time
	}
	if s.LastAlertState.Valid {
		m["last_alert_state"] = s.LastAlertState.String
	}
	return m
}
