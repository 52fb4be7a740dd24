// 외부 텍스트 분석 서비스와 HTTP 통신하는 클라이언트 정의
//
// 환경변수:
//   - ANALYTICS_URL: 분석 서비스 URL (예: http://text-analytics.kube-rca.svc:8000)
//
// 분석 서비스에 전달하는 데이터:
//   - documents: 같은 signature로 묶인 최근 로그 메시지

package client

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/kube-rca/ingest/internal/config"
	"github.com/kube-rca/ingest/internal/model"
)

// AnalyticsClient 구조체 정의
type AnalyticsClient struct {
	baseURL    string
	httpClient *http.Client
}

// AnalyticsDocument - 분석 요청 문서 1건
type AnalyticsDocument struct {
	ID   string `json:"id"`
	Text string `json:"text"`
}

// AnalyticsRequest 구조체 정의
type AnalyticsRequest struct {
	Documents []AnalyticsDocument `json:"documents"`
}

// AnalyticsClient 객체 생성
func NewAnalyticsClient(cfg config.AIConfig) *AnalyticsClient {
	return &AnalyticsClient{
		baseURL: cfg.AnalyticsURL,
		httpClient: &http.Client{
			Timeout: 60 * time.Second,
		},
	}
}

// 분석 서비스 설정 여부 체크
func (c *AnalyticsClient) IsConfigured() bool {
	return c.baseURL != ""
}

// POST /analyze 분석 요청하고 분석 결과 반환 (동기)
func (c *AnalyticsClient) Analyze(ctx context.Context, messages []string) (model.TextAnalysis, error) {
	if len(messages) == 0 {
		return model.TextAnalysis{}, nil
	}

	req := AnalyticsRequest{Documents: make([]AnalyticsDocument, 0, len(messages))}
	for i, m := range messages {
		req.Documents = append(req.Documents, AnalyticsDocument{ID: fmt.Sprint(i), Text: m})
	}

	payload, err := json.Marshal(req)
	if err != nil {
		return model.TextAnalysis{}, fmt.Errorf("failed to marshal analytics request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/analyze", bytes.NewBuffer(payload))
	if err != nil {
		return model.TextAnalysis{}, fmt.Errorf("failed to create request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return model.TextAnalysis{}, fmt.Errorf("failed to send request to analytics: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return model.TextAnalysis{}, fmt.Errorf("failed to read response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return model.TextAnalysis{}, fmt.Errorf("analytics returned status %d: %s", resp.StatusCode, string(body))
	}

	return parseAnalysis(string(body), len(messages))
}
