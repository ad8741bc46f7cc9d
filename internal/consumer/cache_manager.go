package consumer

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

// CacheManager Redis 缓存管理器
// 读取采集协作方写入的检测采样，写出风险状态快照供 UI 协作方读取
type CacheManager struct {
	config      *config.Config
	redisClient *redis.Client
	logger      *zap.Logger
}

// NewCacheManager 创建缓存管理器
func NewCacheManager(
	cfg *config.Config,
	redisClient *redis.Client,
	logger *zap.Logger,
) *CacheManager {
	return &CacheManager{
		config:      cfg,
		redisClient: redisClient,
		logger:      logger,
	}
}

// RiskSnapshot 风险状态快照（写入 Redis 供仪表盘读取）
type RiskSnapshot struct {
	RiskLevel    models.RiskLevel `json:"risk_level"`
	RiskScore    int              `json:"risk_score"`
	SOSPhase     models.SOSPhase  `json:"sos_phase"`
	ActiveAlerts int              `json:"active_alerts"`
	Timestamp    int64            `json:"timestamp"`
}

// GetDetectionSample 从 Redis 读取当前检测采样
func (c *CacheManager) GetDetectionSample(ctx context.Context, sessionID string) (*models.DetectionSample, error) {
	key := fmt.Sprintf("%s%s%s",
		c.config.Monitor.Cache.SessionKeyPrefix,
		sessionID,
		c.config.Monitor.Cache.DetectionSuffix,
	)

	val, err := c.redisClient.Get(ctx, key).Result()
	if err != nil {
		if err == redis.Nil {
			return nil, fmt.Errorf("detection sample not found for session: %s", sessionID)
		}
		return nil, fmt.Errorf("failed to get cache: %w", err)
	}

	var sample models.DetectionSample
	if err := json.Unmarshal([]byte(val), &sample); err != nil {
		return nil, fmt.Errorf("failed to unmarshal detection sample: %w", err)
	}

	return &sample, nil
}

// UpdateRiskCache 更新风险状态缓存（带 TTL）
func (c *CacheManager) UpdateRiskCache(ctx context.Context, sessionID string, snapshot RiskSnapshot) error {
	key := fmt.Sprintf("%s%s%s",
		c.config.Monitor.Cache.SessionKeyPrefix,
		sessionID,
		c.config.Monitor.Cache.RiskSuffix,
	)

	jsonData, err := json.Marshal(snapshot)
	if err != nil {
		return fmt.Errorf("failed to marshal risk snapshot: %w", err)
	}

	err = c.redisClient.Set(
		ctx,
		key,
		jsonData,
		time.Duration(c.config.Monitor.Cache.RiskTTL)*time.Second,
	).Err()

	if err != nil {
		return fmt.Errorf("failed to set risk cache: %w", err)
	}

	c.logger.Debug("Updated risk cache",
		zap.String("session_id", sessionID),
		zap.String("key", key),
		zap.String("risk_level", snapshot.RiskLevel.String()),
	)

	return nil
}
