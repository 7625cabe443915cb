package domain

import (
	"database/sql"
	"time"
)

// 用户角色
const (
	RoleAdmin = "admin"
	RoleStaff = "staff"
)

// User 用户领域模型（对应 users 表）
type User struct {
	UID         string         `db:"uid"`
	SiteID      string         `db:"site_id"` // NOT NULL
	Role        string         `db:"role"`    // NOT NULL, admin/staff
	DisplayName string         `db:"display_name"`
	Email       sql.NullString `db:"email"`

	CreatedAt time.Time `db:"created_at"`
	UpdatedAt time.Time `db:"updated_at"`
}

// ToJSON 转换为JSON格式（用于HTTP响应）
func (u *User) ToJSON() map[string]any {
	m := map[string]any{
		"uid":          u.UID,
		"site_id":      u.SiteID,
		"role":         u.Role,
		"display_name": u.DisplayName,
		"created_at":   u.CreatedAt,
		"updated_at":   u.UpdatedAt,
	}
	if u.Email.Valid {
		m["email"] = u.Email.String
	}
	return m
}
