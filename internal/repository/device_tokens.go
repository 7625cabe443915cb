package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/waypointdigitalstudio-lang/houseops/internal/domain"
)

// 注册所有权冲突（注册端静默跳过，不向设备回传区别）
var (
	ErrTokenOwnedByOtherUser = errors.New("token is owned by another user")
	ErrTokenBoundToOtherSite = errors.New("token is bound to another site")
)

// DeviceTokensRepository 推送设备令牌仓库
type DeviceTokensRepository struct {
	db     *sql.DB
	logger *zap.Logger
}

// NewDeviceTokensRepository 创建设备令牌仓库
func NewDeviceTokensRepository(db *sql.DB, logger *zap.Logger) *DeviceTokensRepository {
	return &DeviceTokensRepository{
		db:     db,
		logger: logger,
	}
}

const deviceTokenColumns = `
	token,
	uid,
	site_id,
	platform,
	enabled,
	disabled_reason,
	disabled_at,
	created_at,
	updated_at
`

func scanDeviceToken(row interface{ Scan(...any) error }) (*domain.DeviceToken, error) {
	var t domain.DeviceToken
	err := row.Scan(
		&t.Token,
		&t.UID,
		&t.SiteID,
		&t.Platform,
		&t.Enabled,
		&t.DisabledReason,
		&t.DisabledAt,
		&t.CreatedAt,
		&t.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &t, nil
}

// GetToken 根据 token 获取注册记录
func (r *DeviceTokensRepository) GetToken(ctx context.Context, token string) (*domain.DeviceToken, error) {
	if token == "" {
		return nil, fmt.Errorf("token is required")
	}

	query := `SELECT ` + deviceTokenColumns + ` FROM device_tokens WHERE token = $1`

	t, err := scanDeviceToken(r.db.QueryRowContext(ctx, query, token))
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to get device token: %w", err)
	}
	return t, nil
}

// Register 注册/更新设备令牌（调用方身份通过 uid 显式传入）
// 所有权检查是先读后写、非事务的：两个近乎同时的注册存在竞争窗口（已知限制）。
// 跨用户重新绑定被拒绝；跨站点重新绑定需先显式删除原注册。
// 重新注册会重新启用此前被禁用的 token。
func (r *DeviceTokensRepository) Register(ctx context.Context, token, uid, siteID, platform string) error {
	if token == "" {
		return fmt.Errorf("token is required")
	}
	if uid == "" {
		return fmt.Errorf("uid is required")
	}
	if siteID == "" {
		return fmt.Errorf("site_id is required")
	}

	existing, err := r.GetToken(ctx, token)
	if err != nil {
		return err
	}
	if existing != nil {
		if existing.UID != uid {
			return ErrTokenOwnedByOtherUser
		}
		if existing.SiteID != siteID {
			return ErrTokenBoundToOtherSite
		}
	}

	query := `
		INSERT INTO device_tokens (token, uid, site_id, platform, enabled, created_at, updated_at)
		VALUES ($1, $2, $3, NULLIF($4, ''), true, NOW(), NOW())
		ON CONFLICT (token) DO UPDATE
		SET platform = NULLIF($4, ''),
		    enabled = true,
		    disabled_reason = NULL,
		    disabled_at = NULL,
		    updated_at = NOW()
	`
	if _, err := r.db.ExecContext(ctx, query, token, uid, siteID, platform); err != nil {
		return fmt.Errorf("failed to register device token: %w", err)
	}
	return nil
}

// ListEnabledBySite 获取站点下全部已启用的令牌（token 为主键，天然去重）
func (r *DeviceTokensRepository) ListEnabledBySite(ctx context.Context, siteID string) ([]domain.DeviceToken, error) {
	if siteID == "" {
		return nil, fmt.Errorf("site_id is required")
	}

	query := `SELECT ` + deviceTokenColumns + ` FROM device_tokens WHERE site_id = $1 AND enabled = true`

	rows, err := r.db.QueryContext(ctx, query, siteID)
	if err != nil {
		return nil, fmt.Errorf("failed to list device tokens: %w", err)
	}
	defer rows.Close()

	var tokens []domain.DeviceToken
	for rows.Next() {
		t, err := scanDeviceToken(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan device token: %w", err)
		}
		tokens = append(tokens, *t)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate device tokens: %w", err)
	}
	return tokens, nil
}

// Disable 禁用令牌（软删除：投递永久失败时由报警管线调用）
func (r *DeviceTokensRepository) Disable(ctx context.Context, token, reason string, at time.Time) error {
	if token == "" {
		return fmt.Errorf("token is required")
	}

	result, err := r.db.ExecContext(ctx, `
		UPDATE device_tokens
		SET enabled = false, disabled_reason = $2, disabled_at = $3, updated_at = NOW()
		WHERE token = $1
	`, token, reason, at)
	if err != nil {
		return fmt.Errorf("failed to disable device token: %w", err)
	}
	affected, _ := result.RowsAffected()
	if affected == 0 {
		return fmt.Errorf("device token not found: %s", token)
	}
	return nil
}

// Delete 删除令牌（设备重置路径；仅允许本人删除）
func (r *DeviceTokensRepository) Delete(ctx context.Context, token, uid string) error {
	if token == "" {
		return fmt.Errorf("token is required")
	}
	if uid == "" {
		return fmt.Errorf("uid is required")
	}

	_, err := r.db.ExecContext(ctx,
		`DELETE FROM device_tokens WHERE token = $1 AND uid = $2`, token, uid)
	if err != nil {
		return fmt.Errorf("failed to delete device token: %w", err)
	}
	return nil
}
