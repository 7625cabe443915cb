package alert_test

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/waypointdigitalstudio-lang/houseops/internal/domain"
	"github.com/waypointdigitalstudio-lang/houseops/internal/push"
)

// fakeStockStore 仅用于单元测试（内存库存）
type fakeStockStore struct {
	mu    sync.Mutex
	items map[string]*domain.StockItem

	updateAlertStateCalls int
	markAlertedCalls      int
}

func newFakeStockStore(items ...*domain.StockItem) *fakeStockStore {
	s := &fakeStockStore{items: make(map[string]*domain.StockItem)}
	for _, it := range items {
		s.items[it.ItemID] = it
	}
	return s
}

func (f *fakeStockStore) GetItem(ctx context.Context, siteID, itemID string) (*domain.StockItem, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	item, ok := f.items[itemID]
	if !ok || item.SiteID != siteID {
		return nil, fmt.Errorf("stock item not found: %s", itemID)
	}
	cp := *item
	return &cp, nil
}

func (f *fakeStockStore) UpdateAlertState(ctx context.Context, itemID string, state domain.StockState) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.updateAlertStateCalls++
	item, ok := f.items[itemID]
	if !ok {
		return fmt.Errorf("stock item not found: %s", itemID)
	}
	item.AlertState = state
	return nil
}

func (f *fakeStockStore) MarkAlerted(ctx context.Context, itemID string, state domain.StockState, at time.Time) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.markAlertedCalls++
	item, ok := f.items[itemID]
	if !ok {
		return fmt.Errorf("stock item not found: %s", itemID)
	}
	item.AlertState = state
	item.LastAlertState.Valid = true
	item.LastAlertState.String = string(state)
	item.LastAlertAt.Valid = true
	item.LastAlertAt.Time = at
	return nil
}

// fakeTokenStore 仅用于单元测试（内存设备令牌）
type fakeTokenStore struct {
	mu     sync.Mutex
	tokens []domain.DeviceToken

	listErr error
}

func (f *fakeTokenStore) ListEnabledBySite(ctx context.Context, siteID string) ([]domain.DeviceToken, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.listErr != nil {
		return nil, f.listErr
	}
	var out []domain.DeviceToken
	for _, t := range f.tokens {
		if t.Enabled && t.SiteID == siteID {
			out = append(out, t)
		}
	}
	return out, nil
}

func (f *fakeTokenStore) Disable(ctx context.Context, token, reason string, at time.Time) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	for i := range f.tokens {
		if f.tokens[i].Token == token {
			f.tokens[i].Enabled = false
			f.tokens[i].DisabledReason.Valid = true
			f.tokens[i].DisabledReason.String = reason
			f.tokens[i].DisabledAt.Valid = true
			f.tokens[i].DisabledAt.Time = at
			return nil
		}
	}
	return fmt.Errorf("token not found: %s", token)
}

func (f *fakeTokenStore) find(token string) *domain.DeviceToken {
	f.mu.Lock()
	defer f.mu.Unlock()
	for i := range f.tokens {
		if f.tokens[i].Token == token {
			return &f.tokens[i]
		}
	}
	return nil
}

// fakeAlertStore 仅用于单元测试（内存审计/feed 记录）
type fakeAlertStore struct {
	mu      sync.Mutex
	audits  []*domain.AlertAudit
	entries []*domain.AlertFeedEntry
}

func (f *fakeAlertStore) CreateAudit(ctx context.Context, audit *domain.AlertAudit) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	cp := *audit
	f.audits = append(f.audits, &cp)
	return nil
}

func (f *fakeAlertStore) UpdateAuditStatus(ctx context.Context, auditID, status, errorText string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, a := range f.audits {
		if a.AuditID == auditID {
			a.Status = status
			a.ErrorText.Valid = errorText != ""
			a.ErrorText.String = errorText
			return nil
		}
	}
	return fmt.Errorf("audit not found: %s", auditID)
}

func (f *fakeAlertStore) CreateFeedEntry(ctx context.Context, entry *domain.AlertFeedEntry) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	cp := *entry
	f.entries = append(f.entries, &cp)
	return nil
}

// fakePusher 仅用于单元测试（可编程的推送网关）
type fakePusher struct {
	mu      sync.Mutex
	sent    [][]push.Message
	tickets []push.Ticket
	err     error
}

func (f *fakePusher) Send(ctx context.Context, messages []push.Message) ([]push.Ticket, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.sent = append(f.sent, messages)
	if f.err != nil {
		return nil, f.err
	}
	if f.tickets != nil {
		return f.tickets, nil
	}
	// 默认全部成功
	tickets := make([]push.Ticket, len(messages))
	for i := range tickets {
		tickets[i] = push.Ticket{Status: "ok", ID: fmt.Sprintf("ticket-%d", i)}
	}
	return tickets, nil
}

func (f *fakePusher) sendCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.sent)
}
