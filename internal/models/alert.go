package models

import (
	"time"
)

// AlertType 报警类型
type AlertType string

const (
	AlertDrowsiness  AlertType = "drowsiness"
	AlertDistraction AlertType = "distraction"
	AlertPhoneUsage  AlertType = "phone_usage"
	AlertNoFace      AlertType = "no_face"
	AlertYawning     AlertType = "yawning"
	AlertHeadDrop    AlertType = "head_drop"
	AlertSeatbelt    AlertType = "seatbelt"
	AlertAccident    AlertType = "accident"
)

var alertMessages = map[AlertType]string{
	AlertDrowsiness:  "Drowsiness detected! Please stay alert.",
	AlertDistraction: "You seem distracted. Keep your eyes on the road.",
	AlertPhoneUsage:  "Phone usage detected! Please focus on driving.",
	AlertNoFace:      "Face not detected. Please look at the road.",
	AlertYawning:     "Frequent yawning detected. Consider taking a break.",
	AlertHeadDrop:    "Head drop detected! Stay awake.",
	AlertSeatbelt:    "Please fasten your seatbelt.",
	AlertAccident:    "Possible accident detected!",
}

// Message 返回该类型的用户提示文案
func (t AlertType) Message() string {
	if msg, ok := alertMessages[t]; ok {
		return msg
	}
	return string(t)
}

// Alert 一条检测报警
// 创建后唯一允许的变更是翻转 Acknowledged；报警不单独删除，仅随日志尾部裁剪
type Alert struct {
	ID           string    `json:"id"`
	Type         AlertType `json:"type"`
	Severity     RiskLevel `json:"severity"`
	Confidence   float64   `json:"confidence"`
	Timestamp    time.Time `json:"timestamp"`
	Acknowledged bool      `json:"acknowledged"`
}

// AlertEvent 报警事件档案记录（对应 alert_events 表）
type AlertEvent struct {
	EventID      string     `json:"event_id" db:"event_id"`
	TripID       string     `json:"trip_id" db:"trip_id"`
	Type         AlertType  `json:"alert_type" db:"alert_type"`
	Severity     RiskLevel  `json:"severity" db:"severity"`
	Confidence   float64    `json:"confidence" db:"confidence"`
	Acknowledged bool       `json:"acknowledged" db:"acknowledged"`
	AckTime      *time.Time `json:"ack_time,omitempty" db:"ack_time"`
	TriggeredAt  time.Time  `json:"triggered_at" db:"triggered_at"`
	CreatedAt    time.Time  `json:"created_at" db:"created_at"`
}
