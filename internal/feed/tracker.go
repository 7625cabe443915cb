package feed

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/waypointdigitalstudio-lang/houseops/internal/domain"
)

// Store 跟踪器需要的 feed 读写（由 repository.AlertsRepository 实现）
type Store interface {
	ListFeed(ctx context.Context, siteID string, limit int) ([]domain.AlertFeedEntry, error)
	ListUnread(ctx context.Context, siteID, token string, limit int) ([]domain.AlertFeedEntry, error)
	UnreadCount(ctx context.Context, siteID, token string) (int, error)
	MarkRead(ctx context.Context, alertID, token string) error
}

// IsUnread token 是否未读该记录（read_by 中缺失或为 false 即未读）
func IsUnread(entry *domain.AlertFeedEntry, token string) bool {
	if entry.ReadBy == nil {
		return true
	}
	return !entry.ReadBy[token]
}

// DayGroup 按日历日期分组的 feed 记录（历史视图）
type DayGroup struct {
	Date    string // "2006-01-02"
	Entries []domain.AlertFeedEntry
}

// GroupByDate 按日期分组，组和组内均保持最新在前
// 入参必须已按 created_at 降序排列（仓库查询保证）
func GroupByDate(entries []domain.AlertFeedEntry) []DayGroup {
	var groups []DayGroup
	for _, e := range entries {
		date := e.CreatedAt.Format("2006-01-02")
		if len(groups) == 0 || groups[len(groups)-1].Date != date {
			groups = append(groups, DayGroup{Date: date})
		}
		last := &groups[len(groups)-1]
		last.Entries = append(last.Entries, e)
	}
	return groups
}

// Tracker 单设备的已读回执跟踪器
// 维护该 token 在其站点 feed 上的未读状态，驱动角标与未读过滤
type Tracker struct {
	store  Store
	siteID string
	token  string
	logger *zap.Logger
}

// NewTracker 创建已读回执跟踪器
func NewTracker(store Store, siteID, token string, logger *zap.Logger) *Tracker {
	return &Tracker{
		store:  store,
		siteID: siteID,
		token:  token,
		logger: logger,
	}
}

// UnreadCount 未读数（角标）
func (t *Tracker) UnreadCount(ctx context.Context) (int, error) {
	return t.store.UnreadCount(ctx, t.siteID, t.token)
}

// Unread 仅未读的实时过滤视图
func (t *Tracker) Unread(ctx context.Context, limit int) ([]domain.AlertFeedEntry, error) {
	return t.store.ListUnread(ctx, t.siteID, t.token, limit)
}

// History 完整历史视图：按日期分组、最新在前
// 查看历史不隐式改动已读状态（没有"看过即全部已读"）
func (t *Tracker) History(ctx context.Context, limit int) ([]DayGroup, error) {
	entries, err := t.store.ListFeed(ctx, t.siteID, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to load alert history: %w", err)
	}
	return GroupByDate(entries), nil
}

// MarkRead 幂等标记单条记录为已读（合并语义，只增不减）
func (t *Tracker) MarkRead(ctx context.Context, alertID string) error {
	return t.store.MarkRead(ctx, alertID, t.token)
}
