package httpapi

import (
	"database/sql"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/alicebob/miniredis/v2"
	"github.com/go-redis/redis/v8"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/waypointdigitalstudio-lang/houseops/internal/feed"
	"github.com/waypointdigitalstudio-lang/houseops/internal/repository"
)

const testStream = "houseops:stock:changes"

func setupItemsRouter(t *testing.T) (*Router, sqlmock.Sqlmock, *miniredis.Miniredis) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { rdb.Close() })

	logger := zap.NewNop()
	items := repository.NewStockItemsRepository(db, logger)

	rt := NewRouter(logger)
	rt.RegisterItemsRoutes(NewItemsHandler(items, rdb, testStream, logger))
	return rt, mock, mr
}

func decodeResult(t *testing.T, rec *httptest.ResponseRecorder) Result[json.RawMessage] {
	var res Result[json.RawMessage]
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &res))
	return res
}

func TestListItems_RequiresSite(t *testing.T) {
	rt, _, _ := setupItemsRouter(t)

	req := httptest.NewRequest(http.MethodGet, "/api/v1/items", nil)
	rec := httptest.NewRecorder()
	rt.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
	res := decodeResult(t, rec)
	assert.Equal(t, "error", res.Type)
}

func TestGetItem_NotFoundResponse(t *testing.T) {
	rt, mock, _ := setupItemsRouter(t)

	mock.ExpectQuery(`SELECT`).
		WithArgs("item-1", "site-1").
		WillReturnError(sql.ErrNoRows)

	req := httptest.NewRequest(http.MethodGet, "/api/v1/items/item-1?site_id=site-1", nil)
	rec := httptest.NewRecorder()
	rt.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusNotFound, rec.Code)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestAdjustStock_PublishesChange(t *testing.T) {
	rt, mock, mr := setupItemsRouter(t)

	mock.ExpectQuery(`UPDATE stock_items`).
		WithArgs("item-1", "site-1", -3).
		WillReturnRows(sqlmock.NewRows(
			[]string{"name", "quantity_current", "quantity_current", "quantity_min"},
		).AddRow("Paper towels", 5, 2, 5))

	body := strings.NewReader(`{"delta": -3}`)
	req := httptest.NewRequest(http.MethodPost, "/api/v1/items/item-1/adjust?site_id=site-1", body)
	rec := httptest.NewRecorder()
	rt.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)
	require.NoError(t, mock.ExpectationsWereMet())

	// 数量发生变化必须发布事件
	assert.Equal(t, 1, mustStreamLen(t, mr, testStream))
}

func TestAdjustStock_UnchangedDoesNotPublish(t *testing.T) {
	rt, mock, mr := setupItemsRouter(t)

	// GREATEST(0 + delta, 0) clamps at zero: quantity stays 0
	mock.ExpectQuery(`UPDATE stock_items`).
		WithArgs("item-1", "site-1", -3).
		WillReturnRows(sqlmock.NewRows(
			[]string{"name", "quantity_current", "quantity_current", "quantity_min"},
		).AddRow("Paper towels", 0, 0, 5))

	body := strings.NewReader(`{"delta": -3}`)
	req := httptest.NewRequest(http.MethodPost, "/api/v1/items/item-1/adjust?site_id=site-1", body)
	rec := httptest.NewRecorder()
	rt.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, 0, mustStreamLen(t, mr, testStream))
}

func TestAdjustStock_MissingDeltaAndSet(t *testing.T) {
	rt, _, _ := setupItemsRouter(t)

	body := strings.NewReader(`{}`)
	req := httptest.NewRequest(http.MethodPost, "/api/v1/items/item-1/adjust?site_id=site-1", body)
	rec := httptest.NewRecorder()
	rt.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func mustStreamLen(t *testing.T, mr *miniredis.Miniredis, stream string) int {
	if !mr.Exists(stream) {
		return 0
	}
	entries, err := mr.Stream(stream)
	require.NoError(t, err)
	return len(entries)
}

// ============================================
// Device tokens
// ============================================

func setupTokensRouter(t *testing.T) (*Router, sqlmock.Sqlmock) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	logger := zap.NewNop()
	tokens := repository.NewDeviceTokensRepository(db, logger)

	rt := NewRouter(logger)
	rt.RegisterTokensRoutes(NewTokensHandler(tokens, logger))
	return rt, mock
}

func TestRegisterToken_Success(t *testing.T) {
	rt, mock := setupTokensRouter(t)

	mock.ExpectQuery(`SELECT`).
		WithArgs("tok-1").
		WillReturnError(sql.ErrNoRows)
	mock.ExpectExec(`INSERT INTO device_tokens`).
		WithArgs("tok-1", "user-1", "site-1", "ios").
		WillReturnResult(sqlmock.NewResult(0, 1))

	body := strings.NewReader(`{"token": "tok-1", "platform": "ios"}`)
	req := httptest.NewRequest(http.MethodPost, "/api/v1/device-tokens?site_id=site-1", body)
	req.Header.Set("X-User-Id", "user-1")
	rec := httptest.NewRecorder()
	rt.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)
	res := decodeResult(t, rec)
	assert.Equal(t, "success", res.Type)
	assert.JSONEq(t, `{"registered": true}`, string(res.Result))
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestRegisterToken_OtherUserConflictIsSilent(t *testing.T) {
	rt, mock := setupTokensRouter(t)

	now := time.Now()
	rows := sqlmock.NewRows([]string{
		"token", "uid", "site_id", "platform", "enabled",
		"disabled_reason", "disabled_at", "created_at", "updated_at",
	}).AddRow("tok-1", "other-user", "site-1", nil, true, nil, nil, now, now)
	mock.ExpectQuery(`SELECT`).WithArgs("tok-1").WillReturnRows(rows)

	body := strings.NewReader(`{"token": "tok-1"}`)
	req := httptest.NewRequest(http.MethodPost, "/api/v1/device-tokens?site_id=site-1", body)
	req.Header.Set("X-User-Id", "user-1")
	rec := httptest.NewRecorder()
	rt.ServeHTTP(rec, req)

	// 冲突对设备端不可见：仍返回成功，但不写入
	assert.Equal(t, http.StatusOK, rec.Code)
	res := decodeResult(t, rec)
	assert.Equal(t, "success", res.Type)
	assert.JSONEq(t, `{"registered": false}`, string(res.Result))
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestRegisterToken_RequiresCaller(t *testing.T) {
	rt, _ := setupTokensRouter(t)

	body := strings.NewReader(`{"token": "tok-1"}`)
	req := httptest.NewRequest(http.MethodPost, "/api/v1/device-tokens?site_id=site-1", body)
	rec := httptest.NewRecorder()
	rt.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

// ============================================
// Alerts feed
// ============================================

func setupAlertsRouter(t *testing.T) (*Router, sqlmock.Sqlmock, *miniredis.Miniredis) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { rdb.Close() })

	logger := zap.NewNop()
	alerts := repository.NewAlertsRepository(db, logger)
	notifier := feed.NewNotifier(rdb, "houseops:feed:")

	rt := NewRouter(logger)
	rt.RegisterAlertsRoutes(NewAlertsHandler(alerts, notifier, logger))
	return rt, mock, mr
}

func TestUnreadCount(t *testing.T) {
	rt, mock, _ := setupAlertsRouter(t)

	mock.ExpectQuery(`SELECT COUNT`).
		WithArgs("site-1", "tok-1").
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(3))

	req := httptest.NewRequest(http.MethodGet, "/api/v1/alerts/unread-count?site_id=site-1", nil)
	req.Header.Set("X-Device-Token", "tok-1")
	rec := httptest.NewRecorder()
	rt.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)
	res := decodeResult(t, rec)
	assert.JSONEq(t, `{"count": 3}`, string(res.Result))
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestUnreadCount_RequiresDeviceToken(t *testing.T) {
	rt, _, _ := setupAlertsRouter(t)

	req := httptest.NewRequest(http.MethodGet, "/api/v1/alerts/unread-count?site_id=site-1", nil)
	rec := httptest.NewRecorder()
	rt.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestMarkRead_Success(t *testing.T) {
	rt, mock, _ := setupAlertsRouter(t)

	mock.ExpectExec(`UPDATE alert_feed`).
		WithArgs("alert-1", "tok-1").
		WillReturnResult(sqlmock.NewResult(0, 1))

	req := httptest.NewRequest(http.MethodPost, "/api/v1/alerts/alert-1/read?site_id=site-1", nil)
	req.Header.Set("X-Device-Token", "tok-1")
	rec := httptest.NewRecorder()
	rt.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)
	require.NoError(t, mock.ExpectationsWereMet())
}
