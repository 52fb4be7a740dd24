package model

import (
	"fmt"
	"strings"
)

// ============================================================================
// Log level
// ============================================================================

// Level - 수집되는 로그 이벤트의 레벨
type Level string

const (
	LevelDebug       Level = "Debug"
	LevelInformation Level = "Information"
	LevelWarning     Level = "Warning"
	LevelError       Level = "Error"
	LevelCritical    Level = "Critical"
)

var levelNames = map[string]Level{
	"debug":       LevelDebug,
	"information": LevelInformation,
	"info":        LevelInformation,
	"warning":     LevelWarning,
	"warn":        LevelWarning,
	"error":       LevelError,
	"critical":    LevelCritical,
	"fatal":       LevelCritical,
}

// ParseLevel - 대소문자 구분 없이 레벨 문자열을 해석
func ParseLevel(s string) (Level, bool) {
	lvl, ok := levelNames[strings.ToLower(strings.TrimSpace(s))]
	return lvl, ok
}

// ============================================================================
// Incident severity
// ============================================================================

// Severity - Incident 심각도. 값이 클수록 심각하다.
type Severity int

const (
	SeverityLow Severity = iota
	SeverityMedium
	SeverityHigh
	SeverityCritical
)

var severityNames = [...]string{"Low", "Medium", "High", "Critical"}

func (s Severity) String() string {
	if s < SeverityLow || s > SeverityCritical {
		return fmt.Sprintf("Severity(%d)", int(s))
	}
	return severityNames[s]
}

func ParseSeverity(s string) (Severity, error) {
	for i, name := range severityNames {
		if strings.EqualFold(name, strings.TrimSpace(s)) {
			return Severity(i), nil
		}
	}
	return SeverityLow, fmt.Errorf("unknown severity %q", s)
}

func (s Severity) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

func (s *Severity) UnmarshalText(b []byte) error {
	parsed, err := ParseSeverity(string(b))
	if err != nil {
		return err
	}
	*s = parsed
	return nil
}

// ============================================================================
// Incident status
// ============================================================================

// Status - Incident 상태. Resolved, Closed는 종료 상태이다.
type Status int

const (
	StatusOpen Status = iota
	StatusAcknowledged
	StatusInProgress
	StatusResolved
	StatusClosed
)

var statusNames = [...]string{"Open", "Acknowledged", "InProgress", "Resolved", "Closed"}

func (s Status) String() string {
	if s < StatusOpen || s > StatusClosed {
		return fmt.Sprintf("Status(%d)", int(s))
	}
	return statusNames[s]
}

func (s Status) IsTerminal() bool {
	return s == StatusResolved || s == StatusClosed
}

func ParseStatus(s string) (Status, error) {
	for i, name := range statusNames {
		if strings.EqualFold(name, strings.TrimSpace(s)) {
			return Status(i), nil
		}
	}
	return StatusOpen, fmt.Errorf("unknown status %q", s)
}

func (s Status) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

func (s *Status) UnmarshalText(b []byte) error {
	parsed, err := ParseStatus(string(b))
	if err != nil {
		return err
	}
	*s = parsed
	return nil
}
