package client

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/kube-rca/ingest/internal/config"
	"github.com/kube-rca/ingest/internal/model"
	"google.golang.org/genai"
)

const analysisPrompt = `You are analyzing recurring application log messages that were grouped into one incident.
For each message, in the same order, return:
  - positive_score: sentiment positivity between 0 and 1
  - key_phrases: up to 5 short key phrases
  - entities: recognized entities as {"text": ..., "category": ...}
Then, for the group as a whole, return root_cause_summary, suggested_fix,
severity_justification and confidence_score (0-100).
Respond with a single JSON object shaped as:
{"documents":[{"positive_score":0.1,"key_phrases":[],"entities":[]}],
 "root_cause_summary":"","suggested_fix":"","severity_justification":"","confidence_score":0}

Messages:
`

// GenAIAnalyzer - Gemini로 로그 메시지를 분석하는 텍스트 분석기
type GenAIAnalyzer struct {
	client *genai.Client
	model  string
}

func NewGenAIAnalyzer(ctx context.Context, cfg config.AIConfig) (*GenAIAnalyzer, error) {
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("missing AI_API_KEY")
	}
	model := cfg.AnalysisModel
	if model == "" {
		model = "gemini-2.0-flash"
	}
	client, err := genai.NewClient(ctx, &genai.ClientConfig{APIKey: cfg.APIKey, Backend: genai.BackendGeminiAPI})
	if err != nil {
		return nil, err
	}
	return &GenAIAnalyzer{client: client, model: model}, nil
}

// Analyze - 메시지 묶음을 한 번에 분석. 일부 문서가 비어 있어도 나머지 결과는 반환한다.
func (a *GenAIAnalyzer) Analyze(ctx context.Context, messages []string) (model.TextAnalysis, error) {
	if len(messages) == 0 {
		return model.TextAnalysis{}, nil
	}

	res, err := a.client.Models.GenerateContent(ctx, a.model, genai.Text(buildAnalysisPrompt(messages)), &genai.GenerateContentConfig{
		ResponseMIMEType: "application/json",
	})
	if err != nil {
		return model.TextAnalysis{}, err
	}
	if res == nil {
		return model.TextAnalysis{}, fmt.Errorf("empty analysis result")
	}
	return parseAnalysis(res.Text(), len(messages))
}

func buildAnalysisPrompt(messages []string) string {
	var b strings.Builder
	b.WriteString(analysisPrompt)
	for i, m := range messages {
		fmt.Fprintf(&b, "%d. %s\n", i+1, m)
	}
	return b.String()
}

// parseAnalysis - 응답 JSON 해석. 문서 수가 모자라면 빈 문서를 에러 표시로 채운다.
func parseAnalysis(text string, expected int) (model.TextAnalysis, error) {
	text = strings.TrimSpace(text)
	text = strings.TrimPrefix(text, "```json")
	text = strings.TrimPrefix(text, "```")
	text = strings.TrimSuffix(text, "```")

	var out model.TextAnalysis
	if err := json.Unmarshal([]byte(strings.TrimSpace(text)), &out); err != nil {
		return model.TextAnalysis{}, fmt.Errorf("failed to parse analysis: %w", err)
	}
	for len(out.Documents) < expected {
		out.Documents = append(out.Documents, model.DocumentAnalysis{Err: "missing document result"})
	}
	if len(out.Documents) > expected {
		out.Documents = out.Documents[:expected]
	}
	out.RootCauseSummary = nilIfBlank(out.RootCauseSummary)
	out.SuggestedFix = nilIfBlank(out.SuggestedFix)
	out.SeverityJustification = nilIfBlank(out.SeverityJustification)
	return out, nil
}

func nilIfBlank(s *string) *string {
	if s == nil || strings.TrimSpace(*s) == "" {
		return nil
	}
	return s
}
