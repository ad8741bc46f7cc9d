package service

import (
	"context"
	"database/sql"
	"fmt"
	"net/http"
	"time"

	"drivesafe-alarm/internal/config"
	"drivesafe-alarm/internal/consumer"
	"drivesafe-alarm/internal/evaluator"
	"drivesafe-alarm/internal/models"
	"drivesafe-alarm/internal/notifier"
	"drivesafe-alarm/internal/repository"
	"drivesafe-alarm/internal/session"
	"drivesafe-alarm/internal/transport"

	"github.com/go-redis/redis/v8"
	_ "github.com/lib/pq"
	"go.uber.org/zap"
)

// MonitorService 驾驶风险监控服务（整合各层）
type MonitorService struct {
	config      *config.Config
	db          *sql.DB
	redisClient *redis.Client
	logger      *zap.Logger
	sessionID   string

	// 各层组件
	cacheManager    *consumer.CacheManager
	feedConsumer    *consumer.FeedConsumer
	alertEventsRepo *repository.AlertEventsRepository
	evaluator       *evaluator.Evaluator
	session         *session.Session
	hub             *transport.Hub
	httpServer      *http.Server
}

// NewMonitorService 创建监控服务
func NewMonitorService(cfg *config.Config, logger *zap.Logger, sessionID string) (*MonitorService, error) {
	// 1. 连接数据库
	db, err := sql.Open("postgres", buildDSN(cfg))
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// 测试数据库连接
	if err := db.Ping(); err != nil {
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	// 2. 连接 Redis
	redisClient := redis.NewClient(&redis.Options{
		Addr:     cfg.Redis.Addr,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	})

	// 测试 Redis 连接
	ctx := context.Background()
	if err := redisClient.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("failed to ping redis: %w", err)
	}

	// 3. 创建 Repository 层
	alertEventsRepo := repository.NewAlertEventsRepository(db, logger)

	// 4. 创建 Consumer 层
	cacheManager := consumer.NewCacheManager(cfg, redisClient, logger)

	// 5. 创建 Evaluator 层
	eval := evaluator.NewEvaluator(
		time.Duration(cfg.Monitor.AlertCooldownMs)*time.Millisecond,
		logger,
	)

	// 6. 创建推送中心和通知器
	hub := transport.NewHub(logger)
	redisNotifier := notifier.NewRedisNotifier(cfg, redisClient, logger, sessionID)

	svc := &MonitorService{
		config:          cfg,
		db:              db,
		redisClient:     redisClient,
		logger:          logger,
		sessionID:       sessionID,
		cacheManager:    cacheManager,
		alertEventsRepo: alertEventsRepo,
		evaluator:       eval,
		hub:             hub,
	}

	// 7. 创建风险会话（事件接入推送、缓存和归档）
	svc.session = session.NewSession(
		eval,
		redisNotifier,
		svc.sessionEvents(),
		session.Options{
			AlertLogCapacity:    cfg.Monitor.AlertLogCapacity,
			DisplayCountdownSec: cfg.Monitor.DisplayCountdownSec,
			SOSCountdownSec:     cfg.Monitor.SOSCountdownSec,
			CriticalStreakLimit: cfg.Monitor.CriticalStreakLimit,
		},
		logger,
	)

	// 8. 创建 FeedConsumer（轮询检测采样）
	svc.feedConsumer = consumer.NewFeedConsumer(cfg, cacheManager, logger, sessionID)

	return svc, nil
}

// Session 暴露风险会话（供外部协作方调用 SOS/确认操作）
func (s *MonitorService) Session() *session.Session {
	return s.session
}

// Start 启动服务（阻塞，直到 ctx 取消或发生不可恢复错误）
func (s *MonitorService) Start(ctx context.Context) error {
	s.logger.Info("Starting monitor service",
		zap.String("session_id", s.sessionID),
	)

	// 启动 WebSocket 推送端点
	mux := http.NewServeMux()
	mux.HandleFunc("/ws", s.hub.HandleWS)
	s.httpServer = &http.Server{
		Addr:    s.config.HTTP.Addr,
		Handler: mux,
	}
	go func() {
		if err := s.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			s.logger.Error("HTTP server error",
				zap.Error(err),
			)
		}
	}()

	// 启动风险会话（行程开始）
	if err := s.session.StartMonitoring(ctx); err != nil {
		return fmt.Errorf("failed to start session: %w", err)
	}

	// 启动 FeedConsumer（轮询模式）
	if err := s.feedConsumer.Start(ctx, s.session); err != nil {
		return fmt.Errorf("failed to start feed consumer: %w", err)
	}

	return nil
}

// Stop 停止服务
func (s *MonitorService) Stop() error {
	s.logger.Info("Stopping monitor service")

	s.session.StopMonitoring()
	s.hub.Close()

	if s.httpServer != nil {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := s.httpServer.Shutdown(shutdownCtx); err != nil {
			s.logger.Error("Failed to shutdown HTTP server",
				zap.Error(err),
			)
		}
	}

	// 关闭数据库连接
	if err := s.db.Close(); err != nil {
		s.logger.Error("Failed to close database",
			zap.Error(err),
		)
	}

	// 关闭 Redis 连接
	if err := s.redisClient.Close(); err != nil {
		s.logger.Error("Failed to close redis",
			zap.Error(err),
		)
	}

	return nil
}

// sessionEvents 把会话事件接到推送中心、风险缓存和事件归档
func (s *MonitorService) sessionEvents() session.Events {
	return session.Events{
		OnRiskLevelChanged: func(level models.RiskLevel, score int) {
			s.hub.Broadcast("risk_changed", map[string]interface{}{
				"risk_level": level,
				"risk_score": score,
			})
			s.publishRiskSnapshot()
		},
		OnAlertCreated: func(alert models.Alert) {
			s.hub.Broadcast("alert_created", alert)
			s.publishRiskSnapshot()

			ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
			defer cancel()
			if err := s.alertEventsRepo.CreateAlertEvent(ctx, s.sessionID, &alert); err != nil {
				s.logger.Error("Failed to archive alert event",
					zap.String("alert_id", alert.ID),
					zap.Error(err),
				)
			}
		},
		OnAlertShown: func(alert models.Alert, loopSound bool) {
			s.hub.Broadcast("alert_shown", map[string]interface{}{
				"alert":      alert,
				"loop_sound": loopSound,
			})
		},
		OnAlertHidden: func(alert models.Alert) {
			s.hub.Broadcast("alert_hidden", alert)
			s.publishRiskSnapshot()

			// 行程结束等未经确认的隐藏不写入档案确认
			if !alert.Acknowledged {
				return
			}
			ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
			defer cancel()
			if err := s.alertEventsRepo.AcknowledgeAlertEvent(ctx, s.sessionID, alert.ID); err != nil {
				s.logger.Error("Failed to acknowledge archived alert event",
					zap.String("alert_id", alert.ID),
					zap.Error(err),
				)
			}
		},
		OnSOSStateChanged: func(state models.SOSState) {
			s.hub.Broadcast("sos_changed", state)
			s.publishRiskSnapshot()
		},
	}
}

// publishRiskSnapshot 把当前风险状态写入 Redis 缓存
func (s *MonitorService) publishRiskSnapshot() {
	level, score := s.session.CurrentRisk()
	sosState := s.session.SOSState()

	snapshot := consumer.RiskSnapshot{
		RiskLevel:    level,
		RiskScore:    score,
		SOSPhase:     sosState.Phase,
		ActiveAlerts: len(s.session.ActiveAlerts()),
		Timestamp:    time.Now().Unix(),
	}

	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()
	if err := s.cacheManager.UpdateRiskCache(ctx, s.sessionID, snapshot); err != nil {
		s.logger.Error("Failed to update risk cache",
			zap.Error(err),
		)
	}
}

// buildDSN 构建数据库连接字符串
func buildDSN(cfg *config.Config) string {
	return fmt.Sprintf(
		"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		cfg.Database.Host,
		cfg.Database.Port,
		cfg.Database.User,
		cfg.Database.Password,
		cfg.Database.Database,
		cfg.Database.SSLMode,
	)
}
