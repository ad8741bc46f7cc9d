package models

import (
	"encoding/json"
	"fmt"
)

// RiskLevel 风险级别（全序：safe < moderate < high < critical）
type RiskLevel int

const (
	RiskSafe RiskLevel = iota
	RiskModerate
	RiskHigh
	RiskCritical
)

var riskLevelNames = map[RiskLevel]string{
	RiskSafe:     "safe",
	RiskModerate: "moderate",
	RiskHigh:     "high",
	RiskCritical: "critical",
}

// String 返回风险级别的字符串表示
func (l RiskLevel) String() string {
	if name, ok := riskLevelNames[l]; ok {
		return name
	}
	return fmt.Sprintf("unknown(%d)", int(l))
}

// ParseRiskLevel 解析风险级别字符串
func ParseRiskLevel(s string) (RiskLevel, error) {
	for level, name := range riskLevelNames {
		if name == s {
			return level, nil
		}
	}
	return RiskSafe, fmt.Errorf("invalid risk level: %s", s)
}

// MarshalJSON 序列化为字符串形式（与前端约定一致）
func (l RiskLevel) MarshalJSON() ([]byte, error) {
	return json.Marshal(l.String())
}

// UnmarshalJSON 从字符串形式反序列化
func (l *RiskLevel) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return err
	}
	level, err := ParseRiskLevel(s)
	if err != nil {
		return err
	}
	*l = level
	return nil
}
