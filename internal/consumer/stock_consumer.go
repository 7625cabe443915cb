package consumer

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/go-redis/redis/v8"
	"go.uber.org/zap"

	"github.com/waypointdigitalstudio-lang/houseops/internal/alert"
	"github.com/waypointdigitalstudio-lang/houseops/internal/redisx"
)

// Processor 库存变更事件处理器接口（由 alert.Pipeline 实现）
type Processor interface {
	Process(ctx context.Context, change alert.StockChange) error
}

// StockConsumer 库存变更事件消费者（Redis Streams 消费者组）
// 消费者组投递是至少一次语义：同一写入可能重复触发管线，
// 冷却门与"数量未变"短路是仅有的去重防线（尽力而为，非恰好一次）
type StockConsumer struct {
	redisClient  *redis.Client
	processor    Processor
	logger       *zap.Logger
	stream       string
	groupName    string
	consumerName string
	batchSize    int64
}

// NewStockConsumer 创建库存变更事件消费者
func NewStockConsumer(
	redisClient *redis.Client,
	processor Processor,
	logger *zap.Logger,
	stream string,
	groupName string,
	consumerName string,
	batchSize int64,
) *StockConsumer {
	return &StockConsumer{
		redisClient:  redisClient,
		processor:    processor,
		logger:       logger,
		stream:       stream,
		groupName:    groupName,
		consumerName: consumerName,
		batchSize:    batchSize,
	}
}

// Start 启动消费者（阻塞直到 ctx 取消）
func (c *StockConsumer) Start(ctx context.Context) error {
	// 创建消费者组
	if err := redisx.CreateConsumerGroup(ctx, c.redisClient, c.stream, c.groupName); err != nil {
		return fmt.Errorf("failed to create consumer group: %w", err)
	}

	c.logger.Info("Stock consumer started",
		zap.String("stream", c.stream),
		zap.String("consumer_group", c.groupName),
		zap.String("consumer_name", c.consumerName),
	)

	// 消费事件（带指数退避）
	backoffDuration := time.Second
	maxBackoff := 30 * time.Second

	for {
		select {
		case <-ctx.Done():
			c.logger.Info("Stock consumer stopped")
			return nil
		default:
			if err := c.consumeEvents(ctx); err != nil {
				c.logger.Error("Failed to consume events",
					zap.Error(err),
					zap.Duration("backoff", backoffDuration),
				)

				// 指数退避
				select {
				case <-ctx.Done():
					return nil
				case <-time.After(backoffDuration):
					backoffDuration *= 2
					if backoffDuration > maxBackoff {
						backoffDuration = maxBackoff
					}
				}
				continue
			}
			backoffDuration = time.Second
		}
	}
}

// consumeEvents 读取并处理一批消息
func (c *StockConsumer) consumeEvents(ctx context.Context) error {
	messages, err := redisx.ReadFromStream(ctx, c.redisClient, c.stream, c.groupName, c.consumerName, c.batchSize)
	if err != nil {
		return fmt.Errorf("failed to read from stream: %w", err)
	}

	for _, msg := range messages {
		if err := c.handleMessage(ctx, msg); err != nil {
			// 管线失败：不确认消息，留在 pending 列表由运维回收；
			// 触发本次管线的库存写入不受影响
			c.logger.Error("Failed to process stock change",
				zap.String("message_id", msg.ID),
				zap.Error(err),
			)
			continue
		}
		if err := redisx.AckMessage(ctx, c.redisClient, c.stream, c.groupName, msg.ID); err != nil {
			c.logger.Error("Failed to ack message",
				zap.String("message_id", msg.ID),
				zap.Error(err),
			)
		}
	}

	return nil
}

// handleMessage 解析并处理单条消息
func (c *StockConsumer) handleMessage(ctx context.Context, msg redisx.StreamMessage) error {
	raw, ok := msg.Values["data"].(string)
	if !ok {
		// 坏消息直接确认丢弃，避免反复投毒
		c.logger.Warn("Dropping malformed stream message",
			zap.String("message_id", msg.ID),
		)
		return redisx.AckMessage(ctx, c.redisClient, c.stream, c.groupName, msg.ID)
	}

	var change alert.StockChange
	if err := json.Unmarshal([]byte(raw), &change); err != nil {
		c.logger.Warn("Dropping undecodable stock change",
			zap.String("message_id", msg.ID),
			zap.Error(err),
		)
		return redisx.AckMessage(ctx, c.redisClient, c.stream, c.groupName, msg.ID)
	}

	return c.processor.Process(ctx, change)
}
