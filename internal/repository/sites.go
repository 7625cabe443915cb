package repository

import (
	"context"
	"database/sql"
	"fmt"

	"go.uber.org/zap"

	"github.com/waypointdigitalstudio-lang/houseops/internal/domain"
)

// SitesRepository 站点仓库
type SitesRepository struct {
	db     *sql.DB
	logger *zap.Logger
}

// NewSitesRepository 创建站点仓库
func NewSitesRepository(db *sql.DB, logger *zap.Logger) *SitesRepository {
	return &SitesRepository{db: db, logger: logger}
}

// CreateSite 创建站点
func (r *SitesRepository) CreateSite(ctx context.Context, site *domain.Site) error {
	if site.SiteID == "" {
		return fmt.Errorf("site_id is required")
	}
	if site.Name == "" {
		return fmt.Errorf("name is required")
	}

	_, err := r.db.ExecContext(ctx, `
		INSERT INTO sites (site_id, name, timezone, created_at, updated_at)
		VALUES ($1, $2, $3, NOW(), NOW())
	`, site.SiteID, site.Name, site.Timezone)
	if err != nil {
		return fmt.Errorf("failed to create site: %w", err)
	}
	return nil
}

// GetSite 根据 site_id 获取站点
func (r *SitesRepository) GetSite(ctx context.Context, siteID string) (*domain.Site, error) {
	if siteID == "" {
		return nil, fmt.Errorf("site_id is required")
	}

	var s domain.Site
	err := r.db.QueryRowContext(ctx, `
		SELECT site_id, name, timezone, created_at, updated_at
		FROM sites WHERE site_id = $1
	`, siteID).Scan(&s.SiteID, &s.Name, &s.Timezone, &s.CreatedAt, &s.UpdatedAt)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to get site: %w", err)
	}
	return &s, nil
}

// ListSites 获取全部站点
func (r *SitesRepository) ListSites(ctx context.Context) ([]domain.Site, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT site_id, name, timezone, created_at, updated_at
		FROM sites ORDER BY name
	`)
	if err != nil {
		return nil, fmt.Errorf("failed to list sites: %w", err)
	}
	defer rows.Close()

	var sites []domain.Site
	for rows.Next() {
		var s domain.Site
		if err := rows.Scan(&s.SiteID, &s.Name, &s.Timezone, &s.CreatedAt, &s.UpdatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan site: %w", err)
		}
		sites = append(sites, s)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate sites: %w", err)
	}
	return sites, nil
}

// UpdateSite 更新站点
func (r *SitesRepository) UpdateSite(ctx context.Context, site *domain.Site) error {
	if site.SiteID == "" {
		return fmt.Errorf("site_id is required")
	}

	result, err := r.db.ExecContext(ctx, `
		UPDATE sites SET name = $2, timezone = $3, updated_at = NOW() WHERE site_id = $1
	`, site.SiteID, site.Name, site.Timezone)
	if err != nil {
		return fmt.Errorf("failed to update site: %w", err)
	}
	affected, _ := result.RowsAffected()
	if affected == 0 {
		return fmt.Errorf("site not found: %s", site.SiteID)
	}
	return nil
}
