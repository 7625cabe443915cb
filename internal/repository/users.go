package repository

import (
	"context"
	"database/sql"
	"fmt"

	"go.uber.org/zap"

	"github.com/waypointdigitalstudio-lang/houseops/internal/domain"
)

// UsersRepository 用户仓库
type UsersRepository struct {
	db     *sql.DB
	logger *zap.Logger
}

// NewUsersRepository 创建用户仓库
func NewUsersRepository(db *sql.DB, logger *zap.Logger) *UsersRepository {
	return &UsersRepository{db: db, logger: logger}
}

// CreateUser 创建用户
func (r *UsersRepository) CreateUser(ctx context.Context, user *domain.User) error {
	if user.UID == "" {
		return fmt.Errorf("uid is required")
	}
	if user.SiteID == "" {
		return fmt.Errorf("site_id is required")
	}
	if user.Role != domain.RoleAdmin && user.Role != domain.RoleStaff {
		return fmt.Errorf("invalid role: %s", user.Role)
	}

	_, err := r.db.ExecContext(ctx, `
		INSERT INTO users (uid, site_id, role, display_name, email, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, NOW(), NOW())
	`, user.UID, user.SiteID, user.Role, user.DisplayName, user.Email)
	if err != nil {
		return fmt.Errorf("failed to create user: %w", err)
	}
	return nil
}

// GetUser 根据 uid 获取用户
func (r *UsersRepository) GetUser(ctx context.Context, uid string) (*domain.User, error) {
	if uid == "" {
		return nil, fmt.Errorf("uid is required")
	}

	var u domain.User
	err := r.db.QueryRowContext(ctx, `
		SELECT uid, site_id, role, display_name, email, created_at, updated_at
		FROM users WHERE uid = $1
	`, uid).Scan(&u.UID, &u.SiteID, &u.Role, &u.DisplayName, &u.Email, &u.CreatedAt, &u.UpdatedAt)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to get user: %w", err)
	}
	return &u, nil
}

// ListUsersBySite 获取站点下全部用户
func (r *UsersRepository) ListUsersBySite(ctx context.Context, siteID string) ([]domain.User, error) {
	if siteID == "" {
		return nil, fmt.Errorf("site_id is required")
	}

	rows, err := r.db.QueryContext(ctx, `
		SELECT uid, site_id, role, display_name, email, created_at, updated_at
		FROM users WHERE site_id = $1 ORDER BY display_name
	`, siteID)
	if err != nil {
		return nil, fmt.Errorf("failed to list users: %w", err)
	}
	defer rows.Close()

	var users []domain.User
	for rows.Next() {
		var u domain.User
		if err := rows.Scan(&u.UID, &u.SiteID, &u.Role, &u.DisplayName, &u.Email, &u.CreatedAt, &u.UpdatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan user: %w", err)
		}
		users = append(users, u)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate users: %w", err)
	}
	return users, nil
}

// UpdateUser 更新用户资料/角色
func (r *UsersRepository) UpdateUser(ctx context.Context, user *domain.User) error {
	if user.UID == "" {
		return fmt.Errorf("uid is required")
	}
	if user.Role != domain.RoleAdmin && user.Role != domain.RoleStaff {
		return fmt.Errorf("invalid role: %s", user.Role)
	}

	result, err := r.db.ExecContext(ctx, `
		UPDATE users SET role = $2, display_name = $3, email = $4, updated_at = NOW()
		WHERE uid = $1
	`, user.UID, user.Role, user.DisplayName, user.Email)
	if err != nil {
		return fmt.Errorf("failed to update user: %w", err)
	}
	affected, _ := result.RowsAffected()
	if affected == 0 {
		return fmt.Errorf("user not found: %s", user.UID)
	}
	return nil
}

// DeleteUser 删除用户
func (r *UsersRepository) DeleteUser(ctx context.Context, uid string) error {
	if uid == "" {
		return fmt.Errorf("uid is required")
	}

	_, err := r.db.ExecContext(ctx, `DELETE FROM users WHERE uid = $1`, uid)
	if err != nil {
		return fmt.Errorf("failed to delete user: %w", err)
	}
	return nil
}
