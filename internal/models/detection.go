package models

import (
	"fmt"
	"time"
)

// HeadPose 头部姿态角（单位：度）
type HeadPose struct {
	Pitch float64 `json:"pitch"`
	Yaw   float64 `json:"yaw"`
	Roll  float64 `json:"roll"`
}

// DetectionSample 单次检测采样（检测信号源每个评估 tick 产生一条）
// 采样一经产生不可变，按值向下游传递
type DetectionSample struct {
	DrowsinessScore    float64   `json:"drowsiness_score"`
	DistractionScore   float64   `json:"distraction_score"`
	PhoneUsageDetected bool      `json:"phone_usage_detected"`
	SeatbeltDetected   bool      `json:"seatbelt_detected"`
	FaceDetected       bool      `json:"face_detected"`
	Yawning            bool      `json:"yawning"`
	HeadPose           HeadPose  `json:"head_pose"`
	Confidence         float64   `json:"confidence"`
	Timestamp          time.Time `json:"timestamp"`
}

// Validate 校验采样数据（分值越界或缺少必填字段则拒绝）
func (s *DetectionSample) Validate() error {
	if s.DrowsinessScore < 0 || s.DrowsinessScore > 100 {
		return fmt.Errorf("drowsiness_score out of range [0,100]: %.2f", s.DrowsinessScore)
	}
	if s.DistractionScore < 0 || s.DistractionScore > 100 {
		return fmt.Errorf("distraction_score out of range [0,100]: %.2f", s.DistractionScore)
	}
	if s.Confidence < 0 || s.Confidence > 1 {
		return fmt.Errorf("confidence out of range [0,1]: %.4f", s.Confidence)
	}
	if s.Timestamp.IsZero() {
		return fmt.Errorf("timestamp is required")
	}
	return nil
}

// Location 经纬度（仅透传给紧急通知载荷，本服务不解释）
type Location struct {
	Lat float64 `json:"lat"`
	Lng float64 `json:"lng"`
}

// EmergencyContact 紧急联系人
type EmergencyContact struct {
	Name      string `json:"name"`
	Phone     string `json:"phone"`
	IsPrimary bool   `json:"is_primary"`
}
