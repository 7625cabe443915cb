package domain

import (
	"database/sql"
	"time"
)

// 审计记录投递状态（每次触发恰好落在一个终态）
const (
	AuditStatusSending  = "sending"
	AuditStatusSent     = "sent"
	AuditStatusError    = "error"
	AuditStatusNoTokens = "no_tokens"
)

// Feed 记录类型
const (
	FeedTypeLow     = "low"
	FeedTypeOut     = "out"
	FeedTypeRestock = "restock"
)

// AlertAudit 报警审计记录（对应 alert_audit 表，不可变，仅 status 会更新到终态）
type AlertAudit struct {
	AuditID  string `db:"audit_id"`
	SiteID   string `db:"site_id"`
	ItemID   string `db:"item_id"`
	ItemName string `db:"item_name"`

	// 触发快照
	PrevState   StockState `db:"prev_state"`
	NextState   StockState `db:"next_state"`
	Quantity    int        `db:"quantity"`
	QuantityMin int        `db:"quantity_min"`

	// 投递结果
	RecipientCount int            `db:"recipient_count"`
	Status         string         `db:"status"` // sending/sent/error/no_tokens
	ErrorText      sql.NullString `db:"error_text"`

	CreatedAt time.Time `db:"created_at"`
}

// ToJSON 转换为JSON格式（用于HTTP响应）
func (a *AlertAudit) ToJSON() map[string]any {
	m := map[string]any{
		"audit_id":        a.AuditID,
		"site_id":         a.SiteID,
		"item_id":         a.ItemID,
		"item_name":       a.ItemName,
		"prev_state":      string(a.PrevState),
		"next_state":      string(a.NextState),
		"quantity":        a.Quantity,
		"quantity_min":    a.QuantityMin,
		"recipient_count": a.RecipientCount,
		"status":          a.Status,
		"created_at":      a.CreatedAt,
	}
	if a.ErrorText.Valid {
		m["error_text"] = a.ErrorText.String
	}
	return m
}

// AlertFeedEntry 用户可见的报警 feed 记录（对应 alert_feed 表）
// read_by 是稀疏成员映射：token 不存在即未读；只增不减
type AlertFeedEntry struct {
	AlertID  string `db:"alert_id"`
	SiteID   string `db:"site_id"`
	ItemID   string `db:"item_id"`
	ItemName string `db:"item_name"`

	Type  string `db:"type"` // low/out/restock
	Title string `db:"title"`
	Body  string `db:"body"`

	ReadBy map[string]bool `db:"read_by"` // JSONB

	CreatedAt time.Time `db:"created_at"`
}

// ToJSON 转换为JSON格式（用于HTTP响应）
func (e *AlertFeedEntry) ToJSON() map[string]any {
	readBy := e.ReadBy
	if readBy == nil {
		readBy = map[string]bool{}
	}
	return map[string]any{
		"alert_id":   e.AlertID,
		"site_id":    e.SiteID,
		"item_id":    e.ItemID,
		"item_name":  e.ItemName,
		"type":       e.Type,
		"title":      e.Title,
		"body":       e.Body,
		"read_by":    readBy,
		"created_at": e.CreatedAt,
	}
}
