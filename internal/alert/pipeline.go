package alert

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/waypointdigitalstudio-lang/houseops/internal/domain"
	"github.com/waypointdigitalstudio-lang/houseops/internal/push"
)

// DefaultCooldown 同状态报警冷却窗口
const DefaultCooldown = 10 * time.Minute

// StockChange 库存数量变更事件（每次数量变更写入后发布一条）
type StockChange struct {
	ItemID   string `json:"item_id"`
	SiteID   string `json:"site_id"`
	ItemName string `json:"item_name"`

	PrevQty     int `json:"prev_qty"`
	NewQty      int `json:"new_qty"`
	QuantityMin int `json:"quantity_min"` // 变更后的下限为准

	OccurredAt int64 `json:"occurred_at"` // Unix 秒
}

// StockStore 管线需要的库存读写（由 repository.StockItemsRepository 实现）
type StockStore interface {
	GetItem(ctx context.Context, siteID, itemID string) (*domain.StockItem, error)
	// UpdateAlertState 仅更新缓存的 alert_state（冷却抑制路径）
	UpdateAlertState(ctx context.Context, itemID string, state domain.StockState) error
	// MarkAlerted 原子更新 alert_state / last_alert_state / last_alert_at（放行路径）
	MarkAlerted(ctx context.Context, itemID string, state domain.StockState, at time.Time) error
}

// TokenStore 管线需要的设备令牌读写（由 repository.DeviceTokensRepository 实现）
type TokenStore interface {
	ListEnabledBySite(ctx context.Context, siteID string) ([]domain.DeviceToken, error)
	Disable(ctx context.Context, token, reason string, at time.Time) error
}

// AlertStore 审计与 feed 记录写入（由 repository.AlertsRepository 实现）
type AlertStore interface {
	CreateAudit(ctx context.Context, audit *domain.AlertAudit) error
	UpdateAuditStatus(ctx context.Context, auditID, status, errorText string) error
	CreateFeedEntry(ctx context.Context, entry *domain.AlertFeedEntry) error
}

// Pusher 推送网关（由 push.Client 实现）
type Pusher interface {
	Send(ctx context.Context, messages []push.Message) ([]push.Ticket, error)
}

// FeedNotifier feed 变更通知（可选，驱动客户端实时订阅刷新）
type FeedNotifier interface {
	NotifyChanged(ctx context.Context, siteID string) error
}

// Pipeline 低库存报警管线
// 检测 → 冷却 → 写记录 → 推送扇出 → 处理投递结果，单次调用内顺序执行
type Pipeline struct {
	stocks   StockStore
	tokens   TokenStore
	alerts   AlertStore
	pusher   Pusher
	notifier FeedNotifier // 可为 nil
	cooldown time.Duration
	logger   *zap.Logger
}

// NewPipeline 创建报警管线
func NewPipeline(
	stocks StockStore,
	tokens TokenStore,
	alerts AlertStore,
	pusher Pusher,
	notifier FeedNotifier,
	cooldown time.Duration,
	logger *zap.Logger,
) *Pipeline {
	if cooldown <= 0 {
		cooldown = DefaultCooldown
	}
	return &Pipeline{
		stocks:   stocks,
		tokens:   tokens,
		alerts:   alerts,
		pusher:   pusher,
		notifier: notifier,
		cooldown: cooldown,
		logger:   logger,
	}
}

// Process 处理一条库存变更事件（至少一次语义：同一写入可能重复投递）
// 返回 error 仅表示整批推送调用失败（审计记录已标记 error）；
// 触发本次管线的库存写入本身永远不会因管线失败而回滚
func (p *Pipeline) Process(ctx context.Context, change StockChange) error {
	// 数量逐位相同：直接退出，不评估状态（避免无关字段写入造成的伪触发）
	if change.PrevQty == change.NewQty {
		return nil
	}

	prevState := Classify(change.PrevQty, change.QuantityMin)
	nextState := Classify(change.NewQty, change.QuantityMin)

	// 数量变了但没跨越分类边界（如 OK→OK）：不构成报警跃迁
	if prevState == nextState {
		return nil
	}

	item, err := p.stocks.GetItem(ctx, change.SiteID, change.ItemID)
	if err != nil {
		return fmt.Errorf("failed to load stock item %s: %w", change.ItemID, err)
	}
	if item == nil {
		// 物品在写入与消费之间被删除：事件作废
		p.logger.Warn("Stock item gone before alert evaluation",
			zap.String("item_id", change.ItemID),
		)
		return nil
	}

	now := time.Now()

	// 冷却门：同一结果状态在窗口内重复出现时抑制派发，但仍更新缓存的 alert_state。
	// 缺失 last_alert_at 视为无限久之前。跨状态跃迁（如 LOW→OUT）始终放行。
	if item.LastAlertState.Valid && item.LastAlertState.String == string(nextState) &&
		item.LastAlertAt.Valid && now.Sub(item.LastAlertAt.Time) < p.cooldown {
		if err := p.stocks.UpdateAlertState(ctx, change.ItemID, nextState); err != nil {
			return fmt.Errorf("failed to update alert state: %w", err)
		}
		p.logger.Info("Alert suppressed by cooldown",
			zap.String("item_id", change.ItemID),
			zap.String("next_state", string(nextState)),
			zap.Duration("since_last_alert", now.Sub(item.LastAlertAt.Time)),
		)
		return nil
	}

	if err := p.stocks.MarkAlerted(ctx, change.ItemID, nextState, now); err != nil {
		return fmt.Errorf("failed to mark item alerted: %w", err)
	}

	recipients, err := p.tokens.ListEnabledBySite(ctx, change.SiteID)
	if err != nil {
		return fmt.Errorf("failed to resolve recipients: %w", err)
	}

	itemName := change.ItemName
	if itemName == "" {
		itemName = item.Name
	}
	title := Title(nextState)
	body := Body(nextState, itemName, change.NewQty, change.QuantityMin)

	status := domain.AuditStatusSending
	if len(recipients) == 0 {
		status = domain.AuditStatusNoTokens
	}

	audit := &domain.AlertAudit{
		AuditID:        uuid.New().String(),
		SiteID:         change.SiteID,
		ItemID:         change.ItemID,
		ItemName:       itemName,
		PrevState:      prevState,
		NextState:      nextState,
		Quantity:       change.NewQty,
		QuantityMin:    change.QuantityMin,
		RecipientCount: len(recipients),
		Status:         status,
		CreatedAt:      now,
	}
	if err := p.alerts.CreateAudit(ctx, audit); err != nil {
		return fmt.Errorf("failed to create audit record: %w", err)
	}

	// feed 记录总是写入：即使推送全部失败，应用内的报警列表也要可见
	entry := &domain.AlertFeedEntry{
		AlertID:   uuid.New().String(),
		SiteID:    change.SiteID,
		ItemID:    change.ItemID,
		ItemName:  itemName,
		Type:      FeedType(nextState),
		Title:     title,
		Body:      body,
		ReadBy:    map[string]bool{},
		CreatedAt: now,
	}
	if err := p.alerts.CreateFeedEntry(ctx, entry); err != nil {
		return fmt.Errorf("failed to create feed entry: %w", err)
	}
	p.notifyFeedChanged(ctx, change.SiteID)

	p.logger.Info("Alert triggered",
		zap.String("item_id", change.ItemID),
		zap.String("site_id", change.SiteID),
		zap.String("prev_state", string(prevState)),
		zap.String("next_state", string(nextState)),
		zap.Int("recipient_count", len(recipients)),
	)

	// 无接收者：跳过网络调用，no_tokens 是正常终态而非错误
	if len(recipients) == 0 {
		return nil
	}

	messages := make([]push.Message, 0, len(recipients))
	for _, r := range recipients {
		messages = append(messages, push.Message{
			To:       r.Token,
			Title:    title,
			Body:     body,
			Priority: "high",
			Sound:    "default",
			Data: map[string]any{
				"item_id": change.ItemID,
				"state":   string(nextState),
				"qty":     change.NewQty,
				"min":     change.QuantityMin,
			},
		})
	}

	tickets, err := p.pusher.Send(ctx, messages)
	if err != nil {
		// 整批调用失败：记录到审计并上抛，由运行时的重投递策略决定是否重试
		if updErr := p.alerts.UpdateAuditStatus(ctx, audit.AuditID, domain.AuditStatusError, err.Error()); updErr != nil {
			p.logger.Error("Failed to record dispatch error",
				zap.String("audit_id", audit.AuditID),
				zap.Error(updErr),
			)
		}
		return fmt.Errorf("push dispatch failed: %w", err)
	}

	p.processTickets(ctx, recipients, tickets, now)

	if err := p.alerts.UpdateAuditStatus(ctx, audit.AuditID, domain.AuditStatusSent, ""); err != nil {
		return fmt.Errorf("failed to finalize audit record: %w", err)
	}

	return nil
}

// processTickets 按下标把票据对回原始 token，禁用永久失效的注册
func (p *Pipeline) processTickets(ctx context.Context, recipients []domain.DeviceToken, tickets []push.Ticket, now time.Time) {
	for i := range tickets {
		if i >= len(recipients) {
			break
		}
		ticket := &tickets[i]
		if !ticket.IsError() {
			continue
		}

		if ticket.ErrorCode() == push.ErrorDeviceNotRegistered {
			// 永久失效：软删除该 token，其余 token 不受影响
			if err := p.tokens.Disable(ctx, recipients[i].Token, push.ErrorDeviceNotRegistered, now); err != nil {
				p.logger.Error("Failed to disable dead token",
					zap.String("token", recipients[i].Token),
					zap.Error(err),
				)
			} else {
				p.logger.Info("Disabled dead push token",
					zap.String("token", recipients[i].Token),
				)
			}
			continue
		}

		// 瞬时失败只记日志：状态不变，下一次合格跃迁会自然重试
		p.logger.Warn("Push delivery error",
			zap.String("token", recipients[i].Token),
			zap.String("error_code", ticket.ErrorCode()),
			zap.String("message", ticket.Message),
		)
	}
}

func (p *Pipeline) notifyFeedChanged(ctx context.Context, siteID string) {
	if p.notifier == nil {
		return
	}
	if err := p.notifier.NotifyChanged(ctx, siteID); err != nil {
		p.logger.Warn("Failed to notify feed change",
			zap.String("site_id", siteID),
			zap.Error(err),
		)
	}
}
