package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"

	"go.uber.org/zap"

	"github.com/waypointdigitalstudio-lang/houseops/internal/domain"
)

// AlertsRepository 报警记录仓库（审计记录 + 用户可见 feed 记录）
type AlertsRepository struct {
	db     *sql.DB
	logger *zap.Logger
}

// NewAlertsRepository 创建报警记录仓库
func NewAlertsRepository(db *sql.DB, logger *zap.Logger) *AlertsRepository {
	return &AlertsRepository{
		db:     db,
		logger: logger,
	}
}

// ============================================
// 审计记录（不可变，仅 status 更新到终态）
// ============================================

// CreateAudit 写入审计记录
func (r *AlertsRepository) CreateAudit(ctx context.Context, audit *domain.AlertAudit) error {
	if audit.AuditID == "" {
		return fmt.Errorf("audit_id is required")
	}
	if audit.SiteID == "" {
		return fmt.Errorf("site_id is required")
	}

	query := `
		INSERT INTO alert_audit (
			audit_id, site_id, item_id, item_name,
			prev_state, next_state, quantity, quantity_min,
			recipient_count, status, created_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
	`
	_, err := r.db.ExecContext(ctx, query,
		audit.AuditID,
		audit.SiteID,
		audit.ItemID,
		audit.ItemName,
		string(audit.PrevState),
		string(audit.NextState),
		audit.Quantity,
		audit.QuantityMin,
		audit.RecipientCount,
		audit.Status,
		audit.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to create audit record: %w", err)
	}
	return nil
}

// UpdateAuditStatus 更新审计记录投递终态（sent / error）
func (r *AlertsRepository) UpdateAuditStatus(ctx context.Context, auditID, status, errorText string) error {
	if auditID == "" {
		return fmt.Errorf("audit_id is required")
	}

	result, err := r.db.ExecContext(ctx,
		`UPDATE alert_audit SET status = $2, error_text = NULLIF($3, '') WHERE audit_id = $1`,
		auditID, status, errorText)
	if err != nil {
		return fmt.Errorf("failed to update audit status: %w", err)
	}
	affected, _ := result.RowsAffected()
	if affected == 0 {
		return fmt.Errorf("audit record not found: %s", auditID)
	}
	return nil
}

// ListAudits 获取站点审计记录（最新在前）
func (r *AlertsRepository) ListAudits(ctx context.Context, siteID string, limit int) ([]domain.AlertAudit, error) {
	if siteID == "" {
		return nil, fmt.Errorf("site_id is required")
	}
	if limit <= 0 {
		limit = 100
	}

	query := `
		SELECT audit_id, site_id, item_id, item_name,
		       prev_state, next_state, quantity, quantity_min,
		       recipient_count, status, error_text, created_at
		FROM alert_audit
		WHERE site_id = $1
		ORDER BY created_at DESC
		LIMIT $2
	`
	rows, err := r.db.QueryContext(ctx, query, siteID, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list audit records: %w", err)
	}
	defer rows.Close()

	var audits []domain.AlertAudit
	for rows.Next() {
		var a domain.AlertAudit
		var prevState, nextState string
		err := rows.Scan(
			&a.AuditID, &a.SiteID, &a.ItemID, &a.ItemName,
			&prevState, &nextState, &a.Quantity, &a.QuantityMin,
			&a.RecipientCount, &a.Status, &a.ErrorText, &a.CreatedAt,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan audit record: %w", err)
		}
		a.PrevState = domain.StockState(prevState)
		a.NextState = domain.StockState(nextState)
		audits = append(audits, a)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate audit records: %w", err)
	}
	return audits, nil
}

// ============================================
// Feed 记录（read_by 只增不减，服务端创建后不再修改）
// ============================================

const feedColumns = `
	alert_id,
	site_id,
	item_id,
	item_name,
	type,
	title,
	body,
	read_by,
	created_at
`

func scanFeedEntry(row interface{ Scan(...any) error }) (*domain.AlertFeedEntry, error) {
	var e domain.AlertFeedEntry
	var readBy []byte
	err := row.Scan(
		&e.AlertID,
		&e.SiteID,
		&e.ItemID,
		&e.ItemName,
		&e.Type,
		&e.Title,
		&e.Body,
		&readBy,
		&e.CreatedAt,
	)
	if err != nil {
		return nil, err
	}
	e.ReadBy = map[string]bool{}
	if len(readBy) > 0 {
		if err := json.Unmarshal(readBy, &e.ReadBy); err != nil {
			return nil, fmt.Errorf("malformed read_by for alert %s: %w", e.AlertID, err)
		}
	}
	return &e, nil
}

// CreateFeedEntry 写入 feed 记录（read_by 初始为空映射）
func (r *AlertsRepository) CreateFeedEntry(ctx context.Context, entry *domain.AlertFeedEntry) error {
	if entry.AlertID == "" {
		return fmt.Errorf("alert_id is required")
	}
	if entry.SiteID == "" {
		return fmt.Errorf("site_id is required")
	}

	query := `
		INSERT INTO alert_feed (
			alert_id, site_id, item_id, item_name,
			type, title, body, read_by, created_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, '{}'::jsonb, $8)
	`
	_, err := r.db.ExecContext(ctx, query,
		entry.AlertID,
		entry.SiteID,
		entry.ItemID,
		entry.ItemName,
		entry.Type,
		entry.Title,
		entry.Body,
		entry.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to create feed entry: %w", err)
	}
	return nil
}

// ListFeed 获取站点 feed 记录（最新在前，历史视图用）
func (r *AlertsRepository) ListFeed(ctx context.Context, siteID string, limit int) ([]domain.AlertFeedEntry, error) {
	if siteID == "" {
		return nil, fmt.Errorf("site_id is required")
	}
	if limit <= 0 {
		limit = 200
	}

	query := `SELECT ` + feedColumns + ` FROM alert_feed WHERE site_id = $1 ORDER BY created_at DESC LIMIT $2`

	return r.queryFeed(ctx, query, siteID, limit)
}

// ListUnread 获取 token 未读的 feed 记录（read_by 中不含该 token 即未读）
func (r *AlertsRepository) ListUnread(ctx context.Context, siteID, token string, limit int) ([]domain.AlertFeedEntry, error) {
	if siteID == "" {
		return nil, fmt.Errorf("site_id is required")
	}
	if token == "" {
		return nil, fmt.Errorf("token is required")
	}
	if limit <= 0 {
		limit = 200
	}

	query := `
		SELECT ` + feedColumns + `
		FROM alert_feed
		WHERE site_id = $1
		  AND NOT COALESCE((read_by ->> $2)::boolean, false)
		ORDER BY created_at DESC
		LIMIT $3
	`
	return r.queryFeed(ctx, query, siteID, token, limit)
}

// UnreadCount 统计 token 的未读数（角标）
func (r *AlertsRepository) UnreadCount(ctx context.Context, siteID, token string) (int, error) {
	if siteID == "" {
		return 0, fmt.Errorf("site_id is required")
	}
	if token == "" {
		return 0, fmt.Errorf("token is required")
	}

	query := `
		SELECT COUNT(*)
		FROM alert_feed
		WHERE site_id = $1
		  AND NOT COALESCE((read_by ->> $2)::boolean, false)
	`
	var count int
	if err := r.db.QueryRowContext(ctx, query, siteID, token).Scan(&count); err != nil {
		return 0, fmt.Errorf("failed to count unread alerts: %w", err)
	}
	return count, nil
}

// MarkRead 幂等地把 token 合并进 read_by（JSONB 并集，不覆盖其他 token 的条目）
func (r *AlertsRepository) MarkRead(ctx context.Context, alertID, token string) error {
	if alertID == "" {
		return fmt.Errorf("alert_id is required")
	}
	if token == "" {
		return fmt.Errorf("token is required")
	}

	result, err := r.db.ExecContext(ctx, `
		UPDATE alert_feed
		SET read_by = read_by || jsonb_build_object($2::text, true)
		WHERE alert_id = $1
	`, alertID, token)
	if err != nil {
		return fmt.Errorf("failed to mark alert read: %w", err)
	}
	affected, _ := result.RowsAffected()
	if affected == 0 {
		return fmt.Errorf("feed entry not found: %s", alertID)
	}
	return nil
}

func (r *AlertsRepository) queryFeed(ctx context.Context, query string, args ...any) ([]domain.AlertFeedEntry, error) {
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query feed entries: %w", err)
	}
	defer rows.Close()

	var entries []domain.AlertFeedEntry
	for rows.Next() {
		e, err := scanFeedEntry(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan feed entry: %w", err)
		}
		entries = append(entries, *e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate feed entries: %w", err)
	}
	return entries, nil
}
