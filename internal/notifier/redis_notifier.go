package notifier

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"drivesafe-alarm/internal/config"
	"drivesafe-alarm/internal/models"

	"github.com/go-redis/redis/v8"
	"go.uber.org/zap"
)

// EmergencyPayload 紧急通知载荷（发布到 Redis，由下游通知网关实际派发）
type EmergencyPayload struct {
	SessionID   string                    `json:"session_id"`
	Contacts    []models.EmergencyContact `json:"contacts"`
	Location    *models.Location          `json:"location,omitempty"`
	TriggeredAt time.Time                 `json:"triggered_at"`
}

// RedisNotifier 通过 Redis 发布紧急通知
// 实现 session.Notifier；短信/电话派发由订阅该频道的网关服务负责
type RedisNotifier struct {
	config      *config.Config
	redisClient *redis.Client
	logger      *zap.Logger
	sessionID   string
}

// NewRedisNotifier 创建紧急通知发布器
func NewRedisNotifier(
	cfg *config.Config,
	redisClient *redis.Client,
	logger *zap.Logger,
	sessionID string,
) *RedisNotifier {
	return &RedisNotifier{
		config:      cfg,
		redisClient: redisClient,
		logger:      logger,
		sessionID:   sessionID,
	}
}

// SendEmergencyNotification 发布一条紧急通知
func (n *RedisNotifier) SendEmergencyNotification(ctx context.Context, contacts []models.EmergencyContact, location *models.Location) error {
	payload := EmergencyPayload{
		SessionID:   n.sessionID,
		Contacts:    contacts,
		Location:    location,
		TriggeredAt: time.Now(),
	}

	jsonData, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("failed to marshal emergency payload: %w", err)
	}

	channel := n.config.Monitor.Cache.EmergencyChannelPrefix + n.sessionID
	if err := n.redisClient.Publish(ctx, channel, jsonData).Err(); err != nil {
		return fmt.Errorf("failed to publish emergency notification: %w", err)
	}

	n.logger.Info("Emergency notification published",
		zap.String("session_id", n.sessionID),
		zap.String("channel", channel),
		zap.Int("contact_count", len(contacts)),
	)

	return nil
}
