package session

import (
	"drivesafe-alarm/internal/models"

	"go.uber.org/zap"
)

// 展示状态机：NoActiveAlert <-> Showing(alert, secondsRemaining)
// 同一时刻至多展示一条报警；展示中到达的 high/critical 报警保持未确认，
// 等当前报警结束后按到达顺序被选中

// ShownAlert 返回正在展示的报警及剩余秒数（未在展示时返回 nil）
func (s *Session) ShownAlert() (*models.Alert, int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.shown == nil {
		return nil, 0
	}
	alert := *s.shown
	return &alert, s.shownRemaining
}

// DismissShownAlert 用户主动关闭正在展示的报警
// 立即确认并结束展示，取消剩余倒计时
func (s *Session) DismissShownAlert() {
	s.mu.Lock()
	if s.shown == nil {
		s.mu.Unlock()
		return
	}
	pending := s.hideShownLocked(true)
	pending = append(pending, s.maybeShowLocked()...)
	s.mu.Unlock()
	s.emit(pending)
}

// stepDisplay 展示倒计时步进（每秒一次）
// 到 0 时自动确认当前报警并选取下一条
func (s *Session) stepDisplay(gen uint64) {
	s.mu.Lock()
	if s.generation != gen || !s.monitoring || s.shown == nil {
		s.mu.Unlock()
		return
	}

	s.shownRemaining--
	var pending []func()
	if s.shownRemaining <= 0 {
		pending = s.hideShownLocked(true)
		pending = append(pending, s.maybeShowLocked()...)
	}
	s.mu.Unlock()
	s.emit(pending)
}

// maybeShowLocked 选取下一条待展示的报警（调用方需持锁）
// 从未确认的 high/critical 报警中按到达顺序选取：日志最新在前，倒序扫描即最早到达
func (s *Session) maybeShowLocked() []func() {
	if s.shown == nil {
		for i := len(s.alerts) - 1; i >= 0; i-- {
			alert := s.alerts[i]
			if alert.Acknowledged || alert.Severity < models.RiskHigh {
				continue
			}

			shown := alert
			s.shown = &shown
			s.shownRemaining = s.opts.DisplayCountdownSec

			s.logger.Info("Alert shown",
				zap.String("alert_id", shown.ID),
				zap.String("alert_type", string(shown.Type)),
				zap.String("severity", shown.Severity.String()),
			)

			if cb := s.events.OnAlertShown; cb != nil {
				loopSound := shown.Severity == models.RiskCritical
				return []func(){func() { cb(shown, loopSound) }}
			}
			return nil
		}
	}
	return nil
}

// hideShownLocked 结束当前展示（调用方需持锁）
// acknowledge 为 true 时同时确认日志中的对应报警
func (s *Session) hideShownLocked(acknowledge bool) []func() {
	if s.shown == nil {
		return nil
	}

	hidden := *s.shown
	s.shown = nil
	s.shownRemaining = 0

	// 回调携带日志中的真实确认状态：未经确认的隐藏（如行程结束）不得被当作确认
	for i := range s.alerts {
		if s.alerts[i].ID == hidden.ID {
			if acknowledge {
				s.alerts[i].Acknowledged = true
			}
			hidden.Acknowledged = s.alerts[i].Acknowledged
			break
		}
	}

	if cb := s.events.OnAlertHidden; cb != nil {
		return []func(){func() { cb(hidden) }}
	}
	return nil
}
