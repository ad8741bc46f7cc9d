package session

import (
	"context"
	"fmt"

	"drivesafe-alarm/internal/models"

	"go.uber.org/zap"
)

// SOS 升级状态机
//
//	idle -> counting_down（手动触发或持续 critical）
//	counting_down -> counting_down（每秒递减）-> sending（倒计时归零或 Send Now）
//	counting_down -> idle（仅此状态接受取消）
//	sending -> sent（派发成功）| failed（派发失败，可经 Send Now 重试）
//	sent/failed -> idle（用户关闭）
//
// 进入 sending 后不再存在回到倒计时的路径：派发一旦开始不可撤销

// SOSState 返回当前 SOS 状态快照
func (s *Session) SOSState() models.SOSState {
	s.mu.Lock()
	defer s.mu.Unlock()
	return models.SOSState{Phase: s.sosPhase, SecondsRemaining: s.sosRemaining}
}

// TriggerSOS 手动触发 SOS（仅 idle 状态接受）
// 倒计时由监控会话的定时器驱动，监控未激活时拒绝触发
func (s *Session) TriggerSOS() error {
	s.mu.Lock()
	if !s.monitoring {
		s.mu.Unlock()
		return fmt.Errorf("monitoring not active")
	}
	if s.sosPhase != models.SOSIdle {
		s.mu.Unlock()
		return fmt.Errorf("sos already active: phase=%s", s.sosPhase)
	}
	pending := s.startCountdownLocked()
	s.mu.Unlock()
	s.emit(pending)
	return nil
}

// CancelSOS 取消 SOS（"I'm safe"，仅倒计时阶段接受）
// sending/sent 阶段调用无效果：通知已经或正在送达联系人
func (s *Session) CancelSOS() error {
	s.mu.Lock()
	if s.sosPhase != models.SOSCountingDown {
		s.mu.Unlock()
		return fmt.Errorf("sos cancel only valid during countdown: phase=%s", s.sosPhase)
	}
	s.sosPhase = models.SOSIdle
	s.sosRemaining = 0
	pending := s.sosChangedLocked()
	s.mu.Unlock()
	s.emit(pending)

	s.logger.Info("SOS cancelled by user")
	return nil
}

// SendNow 跳过剩余倒计时立即派发（倒计时阶段），或在派发失败后重试
func (s *Session) SendNow() error {
	s.mu.Lock()
	if s.sosPhase != models.SOSCountingDown && s.sosPhase != models.SOSFailed {
		s.mu.Unlock()
		return fmt.Errorf("send now only valid during countdown or after failure: phase=%s", s.sosPhase)
	}
	pending := s.beginSendingLocked()
	s.mu.Unlock()
	s.emit(pending)
	return nil
}

// CloseSOS 关闭 SOS 结果页（sent/failed 状态），回到 idle
func (s *Session) CloseSOS() error {
	s.mu.Lock()
	if s.sosPhase != models.SOSSent && s.sosPhase != models.SOSFailed {
		s.mu.Unlock()
		return fmt.Errorf("sos close only valid after dispatch completed: phase=%s", s.sosPhase)
	}
	s.sosPhase = models.SOSIdle
	s.sosRemaining = 0
	pending := s.sosChangedLocked()
	s.mu.Unlock()
	s.emit(pending)
	return nil
}

// stepSOS SOS 倒计时步进（每秒一次），归零后自动进入派发
func (s *Session) stepSOS(gen uint64) {
	s.mu.Lock()
	if s.generation != gen || s.sosPhase != models.SOSCountingDown {
		s.mu.Unlock()
		return
	}

	s.sosRemaining--
	var pending []func()
	if s.sosRemaining <= 0 {
		pending = s.beginSendingLocked()
	} else {
		pending = s.sosChangedLocked()
	}
	s.mu.Unlock()
	s.emit(pending)
}

// startCountdownLocked 进入倒计时（调用方需持锁）
// 进入倒计时即开始循环警报音（由状态变更回调承载）
func (s *Session) startCountdownLocked() []func() {
	s.sosPhase = models.SOSCountingDown
	s.sosRemaining = s.opts.SOSCountdownSec

	s.logger.Warn("SOS countdown started",
		zap.Int("seconds", s.sosRemaining),
	)
	return s.sosChangedLocked()
}

// beginSendingLocked 进入派发阶段并异步执行派发（调用方需持锁）
// 派发不阻塞任何定时器；完成后按结果迁移到 sent 或 failed
func (s *Session) beginSendingLocked() []func() {
	s.sosPhase = models.SOSSending
	s.sosRemaining = 0

	gen := s.generation
	contacts := append([]models.EmergencyContact(nil), s.contacts...)
	var location *models.Location
	if s.location != nil {
		loc := *s.location
		location = &loc
	}

	go s.dispatch(gen, contacts, location)

	return s.sosChangedLocked()
}

// dispatch 执行紧急通知派发（独立 goroutine）
func (s *Session) dispatch(gen uint64, contacts []models.EmergencyContact, location *models.Location) {
	err := s.notifier.SendEmergencyNotification(context.Background(), contacts, location)

	s.mu.Lock()
	if s.generation != gen || s.sosPhase != models.SOSSending {
		// 会话已重置或状态被并发迁移，丢弃过期结果
		s.mu.Unlock()
		return
	}

	if err != nil {
		s.sosPhase = models.SOSFailed
		s.logger.Error("Emergency notification dispatch failed",
			zap.Error(err),
		)
	} else {
		s.sosPhase = models.SOSSent
		s.logger.Info("Emergency notification sent",
			zap.Int("contact_count", len(contacts)),
		)
	}
	pending := s.sosChangedLocked()
	s.mu.Unlock()
	s.emit(pending)
}

// sosChangedLocked 构造 SOS 状态变更回调（调用方需持锁）
func (s *Session) sosChangedLocked() []func() {
	if cb := s.events.OnSOSStateChanged; cb != nil {
		state := models.SOSState{Phase: s.sosPhase, SecondsRemaining: s.sosRemaining}
		return []func(){func() { cb(state) }}
	}
	return nil
}
