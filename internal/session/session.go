package session

import (
	"context"
	"fmt"
	"sync"
	"time"

	"drivesafe-alarm/internal/evaluator"
	"drivesafe-alarm/internal/models"

	"go.uber.org/zap"
)

// Notifier 紧急通知派发接口（实际的短信/电话派发由外部协作方实现）
type Notifier interface {
	SendEmergencyNotification(ctx context.Context, contacts []models.EmergencyContact, location *models.Location) error
}

// Events 会话事件回调（由 UI 协作方订阅）
// 所有回调都在会话锁之外触发，回调内可以安全地回调会话方法
type Events struct {
	OnRiskLevelChanged func(level models.RiskLevel, score int)
	OnAlertCreated     func(alert models.Alert)
	// OnAlertShown 进入展示状态：播放该严重度的提示音（critical 时循环）
	OnAlertShown func(alert models.Alert, loopSound bool)
	// OnAlertHidden 离开展示状态：停止提示音
	OnAlertHidden     func(alert models.Alert)
	OnSOSStateChanged func(state models.SOSState)
}

// Options 会话参数（零值字段使用默认值）
type Options struct {
	AlertLogCapacity    int // 报警日志容量，默认 100
	DisplayCountdownSec int // 展示报警自动确认倒计时，默认 10 秒
	SOSCountdownSec     int // SOS 发送倒计时，默认 10 秒
	CriticalStreakLimit int // 连续 critical 采样自动触发 SOS 的阈值，默认 15
}

func (o *Options) applyDefaults() {
	if o.AlertLogCapacity <= 0 {
		o.AlertLogCapacity = 100
	}
	if o.DisplayCountdownSec <= 0 {
		o.DisplayCountdownSec = 10
	}
	if o.SOSCountdownSec <= 0 {
		o.SOSCountdownSec = 10
	}
	if o.CriticalStreakLimit <= 0 {
		o.CriticalStreakLimit = 15
	}
}

// Session 单次行程的风险会话
// 持有全部会话可变状态，所有读写经由同一把锁串行化；
// 展示倒计时与 SOS 倒计时各自运行在独立的 1 秒定时器上，
// 定时器回调通过 generation 检查防止命中已重置的会话
type Session struct {
	mu       sync.Mutex
	eval     *evaluator.Evaluator
	notifier Notifier
	events   Events
	opts     Options
	logger   *zap.Logger

	monitoring   bool
	generation   uint64
	cancel       context.CancelFunc
	tickInterval time.Duration // 定时器周期，默认 1 秒；测试中可改为手动驱动步进

	currentDetection *models.DetectionSample
	riskLevel        models.RiskLevel
	riskScore        int
	alerts           []models.Alert // 最新在前，容量受限

	// 展示状态机（同一时刻至多展示一条报警）
	shown          *models.Alert
	shownRemaining int

	// SOS 状态机
	sosPhase     models.SOSPhase
	sosRemaining int

	criticalStreak int

	location *models.Location
	contacts []models.EmergencyContact
}

// NewSession 创建风险会话（监控初始为关闭状态）
func NewSession(eval *evaluator.Evaluator, notifier Notifier, events Events, opts Options, logger *zap.Logger) *Session {
	opts.applyDefaults()
	return &Session{
		eval:         eval,
		notifier:     notifier,
		events:       events,
		opts:         opts,
		logger:       logger,
		riskLevel:    models.RiskSafe,
		sosPhase:     models.SOSIdle,
		tickInterval: time.Second,
	}
}

// StartMonitoring 开始监控（行程开始）
// 重置会话状态并启动展示/SOS 两个 1 秒定时器
func (s *Session) StartMonitoring(ctx context.Context) error {
	s.mu.Lock()
	if s.monitoring {
		s.mu.Unlock()
		return fmt.Errorf("monitoring already active")
	}

	pending := s.resetLocked()
	s.monitoring = true
	s.generation++
	gen := s.generation

	tickerCtx, cancel := context.WithCancel(ctx)
	s.cancel = cancel
	interval := s.tickInterval
	s.mu.Unlock()
	s.emit(pending)

	go s.runTicker(tickerCtx, gen, interval, s.stepDisplay)
	go s.runTicker(tickerCtx, gen, interval, s.stepSOS)

	s.logger.Info("Monitoring started")
	return nil
}

// StopMonitoring 停止监控（行程结束）
// 先同步取消全部定时器，再原子地重置状态；重置后不会再有过期回调生效
func (s *Session) StopMonitoring() {
	s.mu.Lock()
	if !s.monitoring {
		s.mu.Unlock()
		return
	}

	if s.cancel != nil {
		s.cancel()
		s.cancel = nil
	}
	s.generation++
	s.monitoring = false
	pending := s.resetLocked()
	s.mu.Unlock()
	s.emit(pending)

	s.logger.Info("Monitoring stopped")
}

// IsMonitoring 返回当前是否在监控中
func (s *Session) IsMonitoring() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.monitoring
}

// SubmitDetectionSample 提交一条检测采样
// 非法采样被拒绝：风险状态、冷却表、连击计数均不受影响
func (s *Session) SubmitDetectionSample(sample models.DetectionSample) error {
	if err := sample.Validate(); err != nil {
		s.logger.Warn("Rejected invalid detection sample",
			zap.Error(err),
		)
		return fmt.Errorf("invalid detection sample: %w", err)
	}

	s.mu.Lock()
	if !s.monitoring {
		// 监控未激活时保持惰性：不评估、不报错
		s.mu.Unlock()
		return nil
	}

	riskLevel, riskScore, alerts := s.eval.Evaluate(sample)

	var pending []func()

	s.currentDetection = &sample
	s.riskScore = riskScore
	if riskLevel != s.riskLevel {
		s.riskLevel = riskLevel
		if cb := s.events.OnRiskLevelChanged; cb != nil {
			level, score := riskLevel, riskScore
			pending = append(pending, func() { cb(level, score) })
		}
	}

	for _, alert := range alerts {
		s.appendAlertLocked(alert)
		if cb := s.events.OnAlertCreated; cb != nil {
			a := alert
			pending = append(pending, func() { cb(a) })
		}
	}

	// 持续 critical 自动触发 SOS
	if riskLevel == models.RiskCritical {
		s.criticalStreak++
		if s.criticalStreak >= s.opts.CriticalStreakLimit && s.sosPhase == models.SOSIdle {
			s.logger.Warn("Sustained critical risk, triggering SOS",
				zap.Int("streak", s.criticalStreak),
			)
			s.criticalStreak = 0
			pending = append(pending, s.startCountdownLocked()...)
		}
	} else {
		s.criticalStreak = 0
	}

	pending = append(pending, s.maybeShowLocked()...)

	s.mu.Unlock()
	s.emit(pending)
	return nil
}

// CurrentRisk 返回当前风险级别和风险分
func (s *Session) CurrentRisk() (models.RiskLevel, int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.riskLevel, s.riskScore
}

// CurrentDetection 返回最近一条采样（无采样时返回 nil）
func (s *Session) CurrentDetection() *models.DetectionSample {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.currentDetection == nil {
		return nil
	}
	sample := *s.currentDetection
	return &sample
}

// ActiveAlerts 返回未确认的报警（最新在前）
func (s *Session) ActiveAlerts() []models.Alert {
	s.mu.Lock()
	defer s.mu.Unlock()

	active := make([]models.Alert, 0)
	for _, alert := range s.alerts {
		if !alert.Acknowledged {
			active = append(active, alert)
		}
	}
	return active
}

// Alerts 返回全部报警日志（最新在前）
func (s *Session) Alerts() []models.Alert {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]models.Alert(nil), s.alerts...)
}

// AcknowledgeAlert 确认一条报警
// 若该报警正在展示，同时结束展示
func (s *Session) AcknowledgeAlert(alertID string) error {
	s.mu.Lock()
	acked := false
	for i := range s.alerts {
		if s.alerts[i].ID == alertID {
			s.alerts[i].Acknowledged = true
			acked = true
			break
		}
	}
	if !acked {
		s.mu.Unlock()
		return fmt.Errorf("alert not found: %s", alertID)
	}

	var pending []func()
	if s.shown != nil && s.shown.ID == alertID {
		pending = s.hideShownLocked(false)
		pending = append(pending, s.maybeShowLocked()...)
	}
	s.mu.Unlock()
	s.emit(pending)
	return nil
}

// SetLocation 更新当前定位（仅用于 SOS 载荷）
func (s *Session) SetLocation(location models.Location) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.location = &location
}

// SetEmergencyContacts 更新紧急联系人列表
func (s *Session) SetEmergencyContacts(contacts []models.EmergencyContact) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.contacts = append([]models.EmergencyContact(nil), contacts...)
}

// appendAlertLocked 将报警插入日志头部并裁剪尾部（调用方需持锁）
func (s *Session) appendAlertLocked(alert models.Alert) {
	s.alerts = append([]models.Alert{alert}, s.alerts...)
	if len(s.alerts) > s.opts.AlertLogCapacity {
		s.alerts = s.alerts[:s.opts.AlertLogCapacity]
	}
}

// resetLocked 重置会话状态，返回待触发的事件（调用方需持锁）
func (s *Session) resetLocked() []func() {
	var pending []func()

	if s.shown != nil {
		pending = append(pending, s.hideShownLocked(false)...)
	}
	if s.sosPhase != models.SOSIdle {
		s.sosPhase = models.SOSIdle
		s.sosRemaining = 0
		pending = append(pending, s.sosChangedLocked()...)
	}
	if s.riskLevel != models.RiskSafe {
		s.riskLevel = models.RiskSafe
		s.riskScore = 0
		if cb := s.events.OnRiskLevelChanged; cb != nil {
			pending = append(pending, func() { cb(models.RiskSafe, 0) })
		}
	}

	s.currentDetection = nil
	s.alerts = nil
	s.criticalStreak = 0
	return pending
}

// runTicker 按固定周期驱动一个状态机步进，直到上下文取消
func (s *Session) runTicker(ctx context.Context, gen uint64, interval time.Duration, step func(gen uint64)) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			step(gen)
		}
	}
}

// emit 依次触发挂起的事件回调（必须在锁外调用）
func (s *Session) emit(pending []func()) {
	for _, fn := range pending {
		fn()
	}
}
