package evaluator

import (
	"time"

	"drivesafe-alarm/internal/models"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// AlertPolicy 报警策略引擎
// 持有各报警类型的冷却时间表；冷却表仅归本引擎所有，不对外共享
type AlertPolicy struct {
	cooldown  time.Duration
	lastFired map[models.AlertType]time.Time
	now       func() time.Time
	logger    *zap.Logger
}

// NewAlertPolicy 创建报警策略引擎
func NewAlertPolicy(cooldown time.Duration, logger *zap.Logger) *AlertPolicy {
	return &AlertPolicy{
		cooldown:  cooldown,
		lastFired: make(map[models.AlertType]time.Time),
		now:       time.Now,
		logger:    logger,
	}
}

// Evaluate 按固定顺序评估一条采样，返回本次触发的报警（0 条或多条）
// 顺序：drowsiness、distraction、phone_usage、no_face、yawning
func (p *AlertPolicy) Evaluate(sample models.DetectionSample, riskLevel models.RiskLevel) []models.Alert {
	var alerts []models.Alert

	// drowsiness/distraction 的严重度跟随总体风险级别
	if sample.DrowsinessScore > 80 {
		if alert, ok := p.fire(models.AlertDrowsiness, riskLevel, sample); ok {
			alerts = append(alerts, alert)
		}
	}
	if sample.DistractionScore > 80 {
		if alert, ok := p.fire(models.AlertDistraction, riskLevel, sample); ok {
			alerts = append(alerts, alert)
		}
	}

	// 以下类型使用固定严重度，与总体风险级别无关
	if sample.PhoneUsageDetected {
		if alert, ok := p.fire(models.AlertPhoneUsage, models.RiskHigh, sample); ok {
			alerts = append(alerts, alert)
		}
	}
	if !sample.FaceDetected {
		if alert, ok := p.fire(models.AlertNoFace, models.RiskModerate, sample); ok {
			alerts = append(alerts, alert)
		}
	}
	if sample.Yawning {
		if alert, ok := p.fire(models.AlertYawning, models.RiskModerate, sample); ok {
			alerts = append(alerts, alert)
		}
	}

	return alerts
}

// fire 触发一条指定类型的报警
// 冷却窗口从上一次成功触发起算：被抑制的尝试不更新时间戳
func (p *AlertPolicy) fire(alertType models.AlertType, severity models.RiskLevel, sample models.DetectionSample) (models.Alert, bool) {
	now := p.now()

	if last, ok := p.lastFired[alertType]; ok && now.Sub(last) < p.cooldown {
		p.logger.Debug("Alert suppressed by cooldown",
			zap.String("alert_type", string(alertType)),
			zap.Duration("since_last", now.Sub(last)),
		)
		return models.Alert{}, false
	}

	p.lastFired[alertType] = now

	return models.Alert{
		ID:           uuid.New().String(),
		Type:         alertType,
		Severity:     severity,
		Confidence:   sample.Confidence,
		Timestamp:    sample.Timestamp,
		Acknowledged: false,
	}, true
}
