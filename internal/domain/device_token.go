package domain

import (
	"database/sql"
	"time"
)

// DeviceToken 推送设备令牌领域模型（对应 device_tokens 表）
// token 是主键：一个令牌同一时间只属于一个用户和一个站点
type DeviceToken struct {
	Token  string `db:"token"`   // 主键，推送网关的不透明标识
	UID    string `db:"uid"`     // NOT NULL，所属用户
	SiteID string `db:"site_id"` // NOT NULL，报警范围

	Platform sql.NullString `db:"platform"` // nullable, "ios" / "android"

	// 软删除：投递永久失败时由报警管线置 false，不物理删除
	Enabled        bool           `db:"enabled"`         // NOT NULL, default true
	DisabledReason sql.NullString `db:"disabled_reason"` // nullable
	DisabledAt     sql.NullTime   `db:"disabled_at"`     // nullable

	CreatedAt time.Time `db:"created_at"`
	UpdatedAt time.Time `db:"updated_at"`
}

// ToJSON 转换为JSON格式（用于HTTP响应，不回显完整 token）
func (d *DeviceToken) ToJSON() map[string]any {
	m := map[string]any{
		"uid":        d.UID,
		"site_id":    d.SiteID,
		"enabled":    d.Enabled,
		"created_at": d.CreatedAt,
		"updated_at": d.UpdatedAt,
	}
	if d.Platform.Valid {
		m["platform"] = d.Platform.String
	}
	if d.DisabledReason.Valid {
		m["disabled_reason"] = d.DisabledReason.String
	}
	if d.DisabledAt.Valid {
		m["disabled_at"] = d.DisabledAt.Time
	}
	if len(d.Token) > 4 {
		m["token_last4"] = d.Token[len(d.Token)-4:]
	}
	return m
}
