package push

import (
	"context"
	"fmt"
	"time"

	"github.com/go-resty/resty/v2"
	"go.uber.org/zap"
)

// ErrorDeviceNotRegistered 永久性投递失败：设备注册已失效
// 收到该错误码的 token 应被禁用
const ErrorDeviceNotRegistered = "DeviceNotRegistered"

// Message 推送消息（Expo push API 请求格式）
type Message struct {
	To       string         `json:"to"`
	Title    string         `json:"title"`
	Body     string         `json:"body"`
	Priority string         `json:"priority,omitempty"`
	Sound    string         `json:"sound,omitempty"`
	Data     map[string]any `json:"data,omitempty"`
}

// TicketDetails 投递票据错误详情
type TicketDetails struct {
	Error string `json:"error,omitempty"`
}

// Ticket 单条消息的投递票据（与请求按下标对齐）
type Ticket struct {
	Status  string         `json:"status"` // "ok" 或 "error"
	ID      string         `json:"id,omitempty"`
	Message string         `json:"message,omitempty"`
	Details *TicketDetails `json:"details,omitempty"`
}

// IsError 票据是否为错误
func (t *Ticket) IsError() bool {
	return t.Status == "error"
}

// ErrorCode 票据的错误码（无错误时为空串）
func (t *Ticket) ErrorCode() string {
	if t.Details == nil {
		return ""
	}
	return t.Details.Error
}

// sendResponse 推送网关批量响应
type sendResponse struct {
	Data []Ticket `json:"data"`
}

// Client 推送网关客户端（Expo push API）
type Client struct {
	httpClient *resty.Client
	logger     *zap.Logger
}

// NewClient 创建推送网关客户端
// 整批发送失败不在客户端重试：下一次合格的状态跃迁会自然再次触发
func NewClient(baseURL string, logger *zap.Logger) *Client {
	client := resty.New().
		SetBaseURL(baseURL).
		SetTimeout(10 * time.Second).
		SetHeader("Content-Type", "application/json").
		SetHeader("Accept", "application/json")

	return &Client{
		httpClient: client,
		logger:     logger,
	}
}

// Send 批量发送推送消息，返回与 messages 按下标对齐的票据列表
func (c *Client) Send(ctx context.Context, messages []Message) ([]Ticket, error) {
	if len(messages) == 0 {
		return nil, nil
	}

	c.logger.Debug("Sending push messages",
		zap.Int("message_count", len(messages)),
	)

	var response sendResponse
	resp, err := c.httpClient.R().
		SetContext(ctx).
		SetBody(messages).
		SetResult(&response).
		Post("/--/api/v2/push/send")

	if err != nil {
		return nil, fmt.Errorf("failed to call push gateway: %w", err)
	}

	if resp.IsError() {
		return nil, fmt.Errorf("push gateway returned status %d: %s", resp.StatusCode(), resp.String())
	}

	if len(response.Data) != len(messages) {
		c.logger.Warn("Push gateway ticket count mismatch",
			zap.Int("message_count", len(messages)),
			zap.Int("ticket_count", len(response.Data)),
		)
	}

	return response.Data, nil
}
