package consumer

import (
	"context"
	"time"

	"drivesafe-alarm/internal/config"
	"drivesafe-alarm/internal/models"

	"go.uber.org/zap"
)

// SampleSink 采样接收方接口（由风险会话实现）
type SampleSink interface {
	SubmitDetectionSample(sample models.DetectionSample) error
}

// FeedConsumer 检测采样消费者
// 按固定周期轮询 Redis 检测缓存，把新采样喂给会话；
// 同一条采样的风险评估和报警写入在下一次轮询前完成（单 goroutine 串行）
type FeedConsumer struct {
	config    *config.Config
	cache     *CacheManager
	logger    *zap.Logger
	sessionID string

	lastTimestamp time.Time
}

// NewFeedConsumer 创建采样消费者
func NewFeedConsumer(
	cfg *config.Config,
	cache *CacheManager,
	logger *zap.Logger,
	sessionID string,
) *FeedConsumer {
	return &FeedConsumer{
		config:    cfg,
		cache:     cache,
		logger:    logger,
		sessionID: sessionID,
	}
}

// Start 启动消费者（轮询模式），阻塞直到上下文取消
func (c *FeedConsumer) Start(ctx context.Context, sink SampleSink) error {
	interval := time.Duration(c.config.Monitor.SampleIntervalMs) * time.Millisecond
	c.logger.Info("Feed consumer started",
		zap.String("session_id", c.sessionID),
		zap.Duration("sample_interval", interval),
	)

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			c.logger.Info("Feed consumer stopped")
			return nil
		case <-ticker.C:
			if err := c.pollOnce(ctx, sink); err != nil {
				c.logger.Debug("Poll skipped",
					zap.Error(err),
				)
				// 继续轮询，不中断
			}
		}
	}
}

// pollOnce 读取一次检测缓存并提交给会话
// 采样时间戳未前进时跳过（采集方尚未写入新帧）
func (c *FeedConsumer) pollOnce(ctx context.Context, sink SampleSink) error {
	sample, err := c.cache.GetDetectionSample(ctx, c.sessionID)
	if err != nil {
		return err
	}

	if !sample.Timestamp.After(c.lastTimestamp) {
		return nil
	}
	c.lastTimestamp = sample.Timestamp

	if err := sink.SubmitDetectionSample(*sample); err != nil {
		c.logger.Warn("Sample rejected by session",
			zap.String("session_id", c.sessionID),
			zap.Error(err),
		)
		// 非法采样丢弃，轮询继续
	}
	return nil
}
