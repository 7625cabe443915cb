package domain

import (
	"database/sql"
	"time"
)

// Site 站点领域模型（对应 sites 表）
// 站点划分所有库存、报警和设备令牌的范围
type Site struct {
	SiteID   string         `db:"site_id"`
	Name     string         `db:"name"` // NOT NULL
	Timezone sql.NullString `db:"timezone"`

	CreatedAt time.Time `db:"created_at"`
	UpdatedAt time.Time `db:"updated_at"`
}

// ToJSON 转换为JSON格式（用于HTTP响应）
func (s *Site) ToJSON() map[string]any {
	m := map[string]any{
		"site_id":    s.SiteID,
		"name":       s.Name,
		"created_at": s.CreatedAt,
		"updated_at": s.UpdatedAt,
	}
	if s.Timezone.Valid {
		m["timezone"] = s.Timezone.String
	}
	return m
}
