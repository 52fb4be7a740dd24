// Package template provides webhook body template rendering.
//
// 지원하는 변수 형식:
//
//	{{incident.id}}, {{incident.title}}, {{incident.severity}},
//	{{incident.status}}, {{incident.occurrence_count}},
//	{{incident.first_occurrence}}, {{incident.last_occurrence}},
//	{{incident.root_cause}}, {{incident.hash}}
//
//	{{application.name}}, {{timestamp}}
package template

import (
	"encoding/json"
	"strconv"
	"strings"
	"time"

	"github.com/kube-rca/ingest/internal/model"
)

// IncidentData - 템플릿 렌더링에 사용할 Incident 데이터
type IncidentData struct {
	ID              string
	Title           string
	Severity        string
	Status          string
	OccurrenceCount int
	FirstOccurrence time.Time
	LastOccurrence  time.Time
	RootCause       string
	HashSignature   string
	ApplicationName string
}

// IncidentDataFromModel - model.Incident에서 IncidentData 생성
func IncidentDataFromModel(inc *model.Incident, applicationName string) IncidentData {
	rootCause := ""
	if inc.RootCauseSummary != nil {
		rootCause = *inc.RootCauseSummary
	}
	return IncidentData{
		ID:              inc.ID.String(),
		Title:           inc.Title,
		Severity:        inc.Severity.String(),
		Status:          inc.Status.String(),
		OccurrenceCount: inc.OccurrenceCount,
		FirstOccurrence: inc.FirstOccurrence,
		LastOccurrence:  inc.LastOccurrence,
		RootCause:       rootCause,
		HashSignature:   inc.HashSignature,
		ApplicationName: applicationName,
	}
}

// RenderBody - webhook body 템플릿의 변수를 실제 값으로 치환
//
// 문자열 값은 JSON 문자열 안에 넣어도 깨지지 않도록 escape된다.
// incident가 nil이면 incident 변수는 빈 문자열로 치환됩니다.
func RenderBody(body string, incident *IncidentData, now time.Time) string {
	pairs := make([]string, 0, 24)

	if incident != nil {
		pairs = append(pairs,
			"{{incident.id}}", incident.ID,
			"{{incident.title}}", escape(incident.Title),
			"{{incident.severity}}", incident.Severity,
			"{{incident.status}}", incident.Status,
			"{{incident.occurrence_count}}", strconv.Itoa(incident.OccurrenceCount),
			"{{incident.first_occurrence}}", incident.FirstOccurrence.Format(time.RFC3339),
			"{{incident.last_occurrence}}", incident.LastOccurrence.Format(time.RFC3339),
			"{{incident.root_cause}}", escape(incident.RootCause),
			"{{incident.hash}}", incident.HashSignature,
			"{{application.name}}", escape(incident.ApplicationName),
		)
	} else {
		pairs = append(pairs,
			"{{incident.id}}", "",
			"{{incident.title}}", "",
			"{{incident.severity}}", "",
			"{{incident.status}}", "",
			"{{incident.occurrence_count}}", "",
			"{{incident.first_occurrence}}", "",
			"{{incident.last_occurrence}}", "",
			"{{incident.root_cause}}", "",
			"{{incident.hash}}", "",
			"{{application.name}}", "",
		)
	}
	pairs = append(pairs, "{{timestamp}}", now.UTC().Format(time.RFC3339))

	return strings.NewReplacer(pairs...).Replace(body)
}

// escape - JSON 문자열 리터럴 내부 형태로 변환 (앞뒤 따옴표 제외)
func escape(s string) string {
	b, err := json.Marshal(s)
	if err != nil || len(b) < 2 {
		return s
	}
	return string(b[1 : len(b)-1])
}
