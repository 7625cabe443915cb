package repository

import (
	"context"
	"database/sql"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/waypointdigitalstudio-lang/houseops/internal/domain"
)

func setupMockAlertsDB(t *testing.T) (*sql.DB, sqlmock.Sqlmock, *AlertsRepository) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)

	logger := zap.NewNop()
	repo := NewAlertsRepository(db, logger)

	return db, mock, repo
}

// ============================================
// 审计记录测试
// ============================================

func TestCreateAudit_Success(t *testing.T) {
	db, mock, repo := setupMockAlertsDB(t)
	defer db.Close()

	audit := &domain.AlertAudit{
		AuditID:        uuid.New().String(),
		SiteID:         "site-1",
		ItemID:         "item-1",
		ItemName:       "Paper towels",
		PrevState:      domain.StockStateLow,
		NextState:      domain.StockStateOut,
		Quantity:       0,
		QuantityMin:    10,
		RecipientCount: 0,
		Status:         domain.AuditStatusNoTokens,
		CreatedAt:      time.Now(),
	}

	mock.ExpectExec(`INSERT INTO alert_audit`).
		WithArgs(audit.AuditID, "site-1", "item-1", "Paper towels",
			"LOW", "OUT", 0, 10, 0, "no_tokens", audit.CreatedAt).
		WillReturnResult(sqlmock.NewResult(0, 1))

	err := repo.CreateAudit(context.Background(), audit)

	require.NoError(t, err)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestUpdateAuditStatus_Success(t *testing.T) {
	db, mock, repo := setupMockAlertsDB(t)
	defer db.Close()

	auditID := uuid.New().String()

	mock.ExpectExec(`UPDATE alert_audit`).
		WithArgs(auditID, "error", "gateway unreachable").
		WillReturnResult(sqlmock.NewResult(0, 1))

	err := repo.UpdateAuditStatus(context.Background(), auditID, domain.AuditStatusError, "gateway unreachable")

	require.NoError(t, err)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestUpdateAuditStatus_NotFound(t *testing.T) {
	db, mock, repo := setupMockAlertsDB(t)
	defer db.Close()

	mock.ExpectExec(`UPDATE alert_audit`).
		WillReturnResult(sqlmock.NewResult(0, 0))

	err := repo.UpdateAuditStatus(context.Background(), "missing", domain.AuditStatusSent, "")

	require.Error(t, err)
	assert.Contains(t, err.Error(), "not found")
}

// ============================================
// Feed 记录测试
// ============================================

func feedRows(alertID, siteID, readBy string) *sqlmock.Rows {
	now := time.Now()
	return sqlmock.NewRows([]string{
		"alert_id", "site_id", "item_id", "item_name",
		"type", "title", "body", "read_by", "created_at",
	}).AddRow(
		alertID, siteID, "item-1", "Paper towels",
		"out", "Out of stock", "Paper towels is OUT (0 left).", []byte(readBy), now,
	)
}

func TestCreateFeedEntry_Success(t *testing.T) {
	db, mock, repo := setupMockAlertsDB(t)
	defer db.Close()

	entry := &domain.AlertFeedEntry{
		AlertID:   uuid.New().String(),
		SiteID:    "site-1",
		ItemID:    "item-1",
		ItemName:  "Paper towels",
		Type:      domain.FeedTypeOut,
		Title:     "Out of stock",
		Body:      "Paper towels is OUT (0 left).",
		ReadBy:    map[string]bool{},
		CreatedAt: time.Now(),
	}

	mock.ExpectExec(`INSERT INTO alert_feed`).
		WithArgs(entry.AlertID, "site-1", "item-1", "Paper towels",
			"out", "Out of stock", "Paper towels is OUT (0 left).", entry.CreatedAt).
		WillReturnResult(sqlmock.NewResult(0, 1))

	err := repo.CreateFeedEntry(context.Background(), entry)

	require.NoError(t, err)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestListFeed_ParsesReadBy(t *testing.T) {
	db, mock, repo := setupMockAlertsDB(t)
	defer db.Close()

	alertID := uuid.New().String()

	mock.ExpectQuery(`SELECT`).
		WithArgs("site-1", 200).
		WillReturnRows(feedRows(alertID, "site-1", `{"tok-1": true}`))

	entries, err := repo.ListFeed(context.Background(), "site-1", 0)

	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, alertID, entries[0].AlertID)
	assert.Equal(t, "out", entries[0].Type)
	assert.True(t, entries[0].ReadBy["tok-1"])
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestListUnread_FiltersByToken(t *testing.T) {
	db, mock, repo := setupMockAlertsDB(t)
	defer db.Close()

	alertID := uuid.New().String()

	mock.ExpectQuery(`SELECT`).
		WithArgs("site-1", "tok-2", 200).
		WillReturnRows(feedRows(alertID, "site-1", `{}`))

	entries, err := repo.ListUnread(context.Background(), "site-1", "tok-2", 0)

	require.NoError(t, err)
	require.Len(t, entries, 1)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestUnreadCount(t *testing.T) {
	db, mock, repo := setupMockAlertsDB(t)
	defer db.Close()

	mock.ExpectQuery(`SELECT COUNT`).
		WithArgs("site-1", "tok-1").
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(3))

	count, err := repo.UnreadCount(context.Background(), "site-1", "tok-1")

	require.NoError(t, err)
	assert.Equal(t, 3, count)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestMarkRead_MergesToken(t *testing.T) {
	db, mock, repo := setupMockAlertsDB(t)
	defer db.Close()

	alertID := uuid.New().String()

	mock.ExpectExec(`UPDATE alert_feed`).
		WithArgs(alertID, "tok-1").
		WillReturnResult(sqlmock.NewResult(0, 1))

	err := repo.MarkRead(context.Background(), alertID, "tok-1")

	require.NoError(t, err)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestMarkRead_NotFound(t *testing.T) {
	db, mock, repo := setupMockAlertsDB(t)
	defer db.Close()

	mock.ExpectExec(`UPDATE alert_feed`).
		WillReturnResult(sqlmock.NewResult(0, 0))

	err := repo.MarkRead(context.Background(), "missing", "tok-1")

	require.Error(t, err)
	assert.Contains(t, err.Error(), "not found")
}
