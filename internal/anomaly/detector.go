// Package anomaly decides whether a signature's recent activity warrants an incident.
package anomaly

import (
	"math"

	"github.com/kube-rca/ingest/internal/model"
)

// Config - 탐지 배수와 baseline이 없을 때의 고정 임계값
type Config struct {
	SpikeMultiplier  float64 `yaml:"spike_multiplier"`
	BurstMultiplier  float64 `yaml:"burst_multiplier"`
	SpikeFallback    int     `yaml:"spike_fallback"`
	BurstFallback    int     `yaml:"burst_fallback"`
	WindowsPerHour   float64 `yaml:"windows_per_hour"`
	ErrorHighCount   int     `yaml:"error_high_count"`
	ErrorCritCount   int     `yaml:"error_critical_count"`
	WarningHighCount int     `yaml:"warning_high_count"`
}

var DefaultConfig = Config{
	SpikeMultiplier:  3.0,
	BurstMultiplier:  2.0,
	SpikeFallback:    10,
	BurstFallback:    30,
	WindowsPerHour:   12,
	ErrorHighCount:   50,
	ErrorCritCount:   100,
	WarningHighCount: 200,
}

type Result struct {
	Trigger           bool
	Reason            model.AnomalyReason
	SuggestedSeverity model.Severity
}

type Detector struct {
	cfg Config
}

// NewDetector - 0으로 남은 값은 기본값으로 채운다
func NewDetector(cfg Config) *Detector {
	d := DefaultConfig
	if cfg.SpikeMultiplier > 0 {
		d.SpikeMultiplier = cfg.SpikeMultiplier
	}
	if cfg.BurstMultiplier > 0 {
		d.BurstMultiplier = cfg.BurstMultiplier
	}
	if cfg.SpikeFallback > 0 {
		d.SpikeFallback = cfg.SpikeFallback
	}
	if cfg.BurstFallback > 0 {
		d.BurstFallback = cfg.BurstFallback
	}
	if cfg.WindowsPerHour > 0 {
		d.WindowsPerHour = cfg.WindowsPerHour
	}
	if cfg.ErrorHighCount > 0 {
		d.ErrorHighCount = cfg.ErrorHighCount
	}
	if cfg.ErrorCritCount > 0 {
		d.ErrorCritCount = cfg.ErrorCritCount
	}
	if cfg.WarningHighCount > 0 {
		d.WarningHighCount = cfg.WarningHighCount
	}
	return &Detector{cfg: d}
}

var defaultDetector = NewDetector(DefaultConfig)

// Evaluate - 기본 설정으로 평가
func Evaluate(metrics model.AnomalyMetrics, level model.Level) Result {
	return defaultDetector.Evaluate(metrics, level)
}

// Evaluate - 규칙을 순서대로 적용하고 처음 맞는 규칙으로 결정
//
//  1. Critical 레벨은 통계와 무관하게 즉시 Critical
//  2. Spike: 5분 건수가 (baseline/12)*3 초과, baseline이 없으면 10 초과
//  3. Burst: 1시간 건수가 baseline*2 초과, baseline이 없으면 30 초과
func (d *Detector) Evaluate(metrics model.AnomalyMetrics, level model.Level) Result {
	if level == model.LevelCritical {
		return Result{Trigger: true, Reason: model.ReasonImmediateCritical, SuggestedSeverity: model.SeverityCritical}
	}

	baseline := metrics.AverageHourlyBaseline
	hasBaseline := baseline > 0

	if hasBaseline {
		expected5Min := baseline / d.cfg.WindowsPerHour
		if float64(metrics.EventsLast5Min) > expected5Min*d.cfg.SpikeMultiplier {
			return d.triggered(model.ReasonSpikeDetected, level, metrics.EventsLast5Min)
		}
	} else if metrics.EventsLast5Min > d.cfg.SpikeFallback {
		return d.triggered(model.ReasonSpikeDetected, level, metrics.EventsLast5Min)
	}

	if hasBaseline {
		if float64(metrics.EventsLast1Hour) > baseline*d.cfg.BurstMultiplier {
			return d.triggered(model.ReasonBurstDetected, level, metrics.EventsLast1Hour)
		}
	} else if metrics.EventsLast1Hour > d.cfg.BurstFallback {
		return d.triggered(model.ReasonBurstDetected, level, metrics.EventsLast1Hour)
	}

	return Result{Reason: model.ReasonNone, SuggestedSeverity: model.SeverityLow}
}

func (d *Detector) triggered(reason model.AnomalyReason, level model.Level, count int) Result {
	return Result{Trigger: true, Reason: reason, SuggestedSeverity: d.suggestSeverity(level, count)}
}

func (d *Detector) suggestSeverity(level model.Level, count int) model.Severity {
	switch level {
	case model.LevelError:
		switch {
		case count >= d.cfg.ErrorCritCount:
			return model.SeverityCritical
		case count >= d.cfg.ErrorHighCount:
			return model.SeverityHigh
		default:
			return model.SeverityMedium
		}
	case model.LevelWarning:
		if count >= d.cfg.WarningHighCount {
			return model.SeverityHigh
		}
		return model.SeverityMedium
	default:
		return model.SeverityLow
	}
}

// Baseline - 시간 구간별 건수의 평균과 모표준편차
func Baseline(hourlyCounts []int) (mean, stddev float64) {
	if len(hourlyCounts) == 0 {
		return 0, 0
	}
	var sum float64
	for _, c := range hourlyCounts {
		sum += float64(c)
	}
	mean = sum / float64(len(hourlyCounts))

	var squares float64
	for _, c := range hourlyCounts {
		diff := float64(c) - mean
		squares += diff * diff
	}
	stddev = math.Sqrt(squares / float64(len(hourlyCounts)))
	return mean, stddev
}
