package feed_test

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/waypointdigitalstudio-lang/houseops/internal/domain"
	"github.com/waypointdigitalstudio-lang/houseops/internal/feed"
)

// fakeFeedStore 仅用于单元测试（内存 feed）
type fakeFeedStore struct {
	mu      sync.Mutex
	entries []domain.AlertFeedEntry
}

func (f *fakeFeedStore) ListFeed(ctx context.Context, siteID string, limit int) ([]domain.AlertFeedEntry, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []domain.AlertFeedEntry
	for _, e := range f.entries {
		if e.SiteID == siteID {
			out = append(out, e)
		}
	}
	return out, nil
}

func (f *fakeFeedStore) ListUnread(ctx context.Context, siteID, token string, limit int) ([]domain.AlertFeedEntry, error) {
	all, _ := f.ListFeed(ctx, siteID, limit)
	var out []domain.AlertFeedEntry
	for i := range all {
		if feed.IsUnread(&all[i], token) {
			out = append(out, all[i])
		}
	}
	return out, nil
}

func (f *fakeFeedStore) UnreadCount(ctx context.Context, siteID, token string) (int, error) {
	unread, _ := f.ListUnread(ctx, siteID, token, 0)
	return len(unread), nil
}

func (f *fakeFeedStore) MarkRead(ctx context.Context, alertID, token string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	for i := range f.entries {
		if f.entries[i].AlertID == alertID {
			if f.entries[i].ReadBy == nil {
				f.entries[i].ReadBy = map[string]bool{}
			}
			// 合并语义：只新增，不覆盖其他 token 的条目
			f.entries[i].ReadBy[token] = true
			return nil
		}
	}
	return fmt.Errorf("feed entry not found: %s", alertID)
}

func newEntry(alertID, siteID string, createdAt time.Time, readBy map[string]bool) domain.AlertFeedEntry {
	return domain.AlertFeedEntry{
		AlertID:   alertID,
		SiteID:    siteID,
		ItemID:    "item-1",
		ItemName:  "Paper towels",
		Type:      domain.FeedTypeLow,
		Title:     "Low stock",
		Body:      "Paper towels is LOW (2 left, min 5).",
		ReadBy:    readBy,
		CreatedAt: createdAt,
	}
}

func TestIsUnread(t *testing.T) {
	e := newEntry("a-1", "site-1", time.Now(), nil)
	assert.True(t, feed.IsUnread(&e, "tok-1"))

	e.ReadBy = map[string]bool{"tok-1": true}
	assert.False(t, feed.IsUnread(&e, "tok-1"))
	assert.True(t, feed.IsUnread(&e, "tok-2"))

	// read_by 中显式 false 仍视为未读
	e.ReadBy = map[string]bool{"tok-1": false}
	assert.True(t, feed.IsUnread(&e, "tok-1"))
}

func TestTracker_UnreadAndMarkRead(t *testing.T) {
	now := time.Now()
	store := &fakeFeedStore{entries: []domain.AlertFeedEntry{
		newEntry("a-1", "site-1", now, nil),
		newEntry("a-2", "site-1", now.Add(-time.Hour), map[string]bool{"tok-other": true}),
		newEntry("a-3", "site-2", now, nil),
	}}
	tracker := feed.NewTracker(store, "site-1", "tok-1", zap.NewNop())
	ctx := context.Background()

	count, err := tracker.UnreadCount(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, count)

	require.NoError(t, tracker.MarkRead(ctx, "a-1"))

	count, err = tracker.UnreadCount(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, count)

	unread, err := tracker.Unread(ctx, 0)
	require.NoError(t, err)
	require.Len(t, unread, 1)
	assert.Equal(t, "a-2", unread[0].AlertID)

	// 其他 token 的回执不受影响
	assert.True(t, store.entries[1].ReadBy["tok-other"])
}

func TestTracker_MarkReadMonotone(t *testing.T) {
	// read_by 中的 token 集合只增不减
	store := &fakeFeedStore{entries: []domain.AlertFeedEntry{
		newEntry("a-1", "site-1", time.Now(), nil),
	}}
	ctx := context.Background()

	tokens := []string{"tok-1", "tok-2", "tok-1", "tok-3", "tok-2"}
	seen := 0
	for _, tok := range tokens {
		tracker := feed.NewTracker(store, "site-1", tok, zap.NewNop())
		require.NoError(t, tracker.MarkRead(ctx, "a-1"))
		if len(store.entries[0].ReadBy) < seen {
			t.Fatalf("read_by shrank: %v", store.entries[0].ReadBy)
		}
		seen = len(store.entries[0].ReadBy)
	}
	assert.Equal(t, 3, seen)
}

func TestTracker_HistoryGroupedByDate(t *testing.T) {
	base := time.Date(2026, 8, 30, 15, 0, 0, 0, time.UTC)
	store := &fakeFeedStore{entries: []domain.AlertFeedEntry{
		newEntry("a-1", "site-1", base, nil),
		newEntry("a-2", "site-1", base.Add(-2*time.Hour), nil),
		newEntry("a-3", "site-1", base.Add(-26*time.Hour), nil),
	}}
	tracker := feed.NewTracker(store, "site-1", "tok-1", zap.NewNop())

	groups, err := tracker.History(context.Background(), 0)

	require.NoError(t, err)
	require.Len(t, groups, 2)
	assert.Equal(t, "2026-08-30", groups[0].Date)
	require.Len(t, groups[0].Entries, 2)
	assert.Equal(t, "a-1", groups[0].Entries[0].AlertID)
	assert.Equal(t, "2026-08-29", groups[1].Date)
	require.Len(t, groups[1].Entries, 1)

	// 历史视图不隐式改动已读状态
	count, err := tracker.UnreadCount(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 3, count)
}

func TestGroupByDate_Empty(t *testing.T) {
	assert.Empty(t, feed.GroupByDate(nil))
}
