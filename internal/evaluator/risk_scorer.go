package evaluator

import (
	"math"

	"drivesafe-alarm/internal/models"
)

// 加权评分权重
const (
	weightDrowsiness  = 30 // drowsiness_score > 70
	weightDistraction = 25 // distraction_score > 70
	weightPhoneUsage  = 40
	weightNoFace      = 20
	weightYawning     = 10
	weightHeadYaw     = 15 // |head_pose.yaw| > 20°
)

// 分桶阈值（>= 比较）
const (
	thresholdCritical = 80
	thresholdHigh     = 60
	thresholdModerate = 30
)

// ScoreSample 计算单条采样的风险级别和风险分
// 纯函数，无副作用：同一采样永远得到同一结果
func ScoreSample(sample models.DetectionSample) (models.RiskLevel, int) {
	score := 0

	if sample.DrowsinessScore > 70 {
		score += weightDrowsiness
	}
	if sample.DistractionScore > 70 {
		score += weightDistraction
	}
	if sample.PhoneUsageDetected {
		score += weightPhoneUsage
	}
	if !sample.FaceDetected {
		score += weightNoFace
	}
	if sample.Yawning {
		score += weightYawning
	}
	if math.Abs(sample.HeadPose.Yaw) > 20 {
		score += weightHeadYaw
	}

	switch {
	case score >= thresholdCritical:
		return models.RiskCritical, score
	case score >= thresholdHigh:
		return models.RiskHigh, score
	case score >= thresholdModerate:
		return models.RiskModerate, score
	default:
		return models.RiskSafe, score
	}
}
