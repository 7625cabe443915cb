package feed

import (
	"context"

	"github.com/go-redis/redis/v8"
	"go.uber.org/zap"

	"github.com/waypointdigitalstudio-lang/houseops/internal/domain"
)

// Notifier feed 变更通知端（写路径：报警管线创建记录、已读回执写入后调用）
type Notifier struct {
	redisClient   *redis.Client
	channelPrefix string
}

// NewNotifier 创建 feed 变更通知端
func NewNotifier(redisClient *redis.Client, channelPrefix string) *Notifier {
	return &Notifier{
		redisClient:   redisClient,
		channelPrefix: channelPrefix,
	}
}

// NotifyChanged 发布站点 feed 变更通知
func (n *Notifier) NotifyChanged(ctx context.Context, siteID string) error {
	return n.redisClient.Publish(ctx, n.channelPrefix+siteID, "changed").Err()
}

// Subscriber feed 实时订阅端（读路径）
// 每个 UI 消费者持有恰好一个活跃订阅，通过取消 ctx 释放，避免泄漏
type Subscriber struct {
	redisClient   *redis.Client
	store         Store
	channelPrefix string
	logger        *zap.Logger
}

// NewSubscriber 创建 feed 订阅端
func NewSubscriber(redisClient *redis.Client, store Store, channelPrefix string, logger *zap.Logger) *Subscriber {
	return &Subscriber{
		redisClient:   redisClient,
		store:         store,
		channelPrefix: channelPrefix,
		logger:        logger,
	}
}

// Subscribe 订阅站点 feed：返回惰性无界的快照序列
// 先推送一次当前快照，之后每收到变更通知重新查询并推送；
// ctx 取消后通道关闭。可随时重新订阅（restartable）。
func (s *Subscriber) Subscribe(ctx context.Context, siteID string, limit int) <-chan []domain.AlertFeedEntry {
	out := make(chan []domain.AlertFeedEntry, 1)
	pubsub := s.redisClient.Subscribe(ctx, s.channelPrefix+siteID)

	go func() {
		defer close(out)
		defer pubsub.Close()

		// 初始快照
		s.emitSnapshot(ctx, siteID, limit, out)

		ch := pubsub.Channel()
		for {
			select {
			case <-ctx.Done():
				return
			case _, ok := <-ch:
				if !ok {
					return
				}
				s.emitSnapshot(ctx, siteID, limit, out)
			}
		}
	}()

	return out
}

func (s *Subscriber) emitSnapshot(ctx context.Context, siteID string, limit int, out chan<- []domain.AlertFeedEntry) {
	entries, err := s.store.ListFeed(ctx, siteID, limit)
	if err != nil {
		s.logger.Error("Failed to load feed snapshot",
			zap.String("site_id", siteID),
			zap.Error(err),
		)
		return
	}
	select {
	case out <- entries:
	case <-ctx.Done():
	}
}
