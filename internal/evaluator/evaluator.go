package evaluator

import (
	"time"

	"drivesafe-alarm/internal/models"

	"go.uber.org/zap"
)

// Evaluator 风险评估器（评分 + 报警策略）
type Evaluator struct {
	policy *AlertPolicy
	logger *zap.Logger
}

// NewEvaluator 创建评估器
func NewEvaluator(alertCooldown time.Duration, logger *zap.Logger) *Evaluator {
	return &Evaluator{
		policy: NewAlertPolicy(alertCooldown, logger),
		logger: logger,
	}
}

// Evaluate 评估一条采样：先计算风险级别，再按策略产生报警
func (e *Evaluator) Evaluate(sample models.DetectionSample) (models.RiskLevel, int, []models.Alert) {
	riskLevel, riskScore := ScoreSample(sample)

	alerts := e.policy.Evaluate(sample, riskLevel)

	for _, alert := range alerts {
		e.logger.Info("Alert created",
			zap.String("alert_id", alert.ID),
			zap.String("alert_type", string(alert.Type)),
			zap.String("severity", alert.Severity.String()),
			zap.Float64("confidence", alert.Confidence),
		)
	}

	return riskLevel, riskScore, alerts
}
