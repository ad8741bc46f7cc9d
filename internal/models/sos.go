package models

// SOSPhase SOS 升级状态机的状态
type SOSPhase string

const (
	SOSIdle         SOSPhase = "idle"
	SOSCountingDown SOSPhase = "counting_down"
	SOSSending      SOSPhase = "sending"
	SOSSent         SOSPhase = "sent"
	SOSFailed       SOSPhase = "failed"
)

// SOSState SOS 状态快照（倒计时秒数仅在 counting_down 阶段有意义）
type SOSState struct {
	Phase            SOSPhase `json:"phase"`
	SecondsRemaining int      `json:"seconds_remaining"`
}
