package client

import (
	"context"
	"fmt"
	"strings"

	"github.com/kube-rca/ingest/internal/config"
	"github.com/kube-rca/ingest/internal/model"
	"google.golang.org/genai"
)

const (
	defaultEmbeddingModel = "text-embedding-004"
	// 색인 문서용 임베딩. 검색 질의용(RETRIEVAL_QUERY)과 구분된다.
	taskRetrievalDocument = "RETRIEVAL_DOCUMENT"
)

// EmbeddingClient - incident 검색 문서의 임베딩 생성 (pgvector 컬럼 차원과 같아야 한다)
type EmbeddingClient struct {
	client *genai.Client
	model  string
	dims   int
}

func NewEmbeddingClient(ctx context.Context, cfg config.AIConfig) (*EmbeddingClient, error) {
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("missing AI_API_KEY")
	}
	modelName := cfg.EmbeddingModel
	if modelName == "" {
		modelName = defaultEmbeddingModel
	}
	client, err := genai.NewClient(ctx, &genai.ClientConfig{APIKey: cfg.APIKey, Backend: genai.BackendGeminiAPI})
	if err != nil {
		return nil, err
	}
	return &EmbeddingClient{client: client, model: modelName, dims: cfg.EmbeddingDims}, nil
}

// EmbedDocument - 검색 문서 필드로 본문을 만들어 임베딩한다
func (c *EmbeddingClient) EmbedDocument(ctx context.Context, doc model.SearchDocument) ([]float32, error) {
	text := DocumentText(doc)
	if text == "" {
		return nil, fmt.Errorf("search document %s has no text to embed", doc.ID)
	}

	embedCfg := &genai.EmbedContentConfig{TaskType: taskRetrievalDocument, Title: doc.Title}
	if c.dims > 0 {
		dims := int32(c.dims)
		embedCfg.OutputDimensionality = &dims
	}
	res, err := c.client.Models.EmbedContent(ctx, c.model, genai.Text(text), embedCfg)
	if err != nil {
		return nil, fmt.Errorf("embed incident %s with %s: %w", doc.ID, c.model, err)
	}
	return firstVector(res, c.dims)
}

// DocumentText - 임베딩 본문. 빈 필드는 건너뛰고 "라벨: 값" 줄로 잇는다.
func DocumentText(doc model.SearchDocument) string {
	fields := []struct{ label, value string }{
		{"title", doc.Title},
		{"application", doc.ApplicationName},
		{"severity", doc.Severity},
		{"description", doc.Description},
		{"key phrases", doc.KeyPhrases},
		{"entities", doc.Entities},
	}
	lines := make([]string, 0, len(fields))
	for _, f := range fields {
		if v := strings.TrimSpace(f.value); v != "" {
			lines = append(lines, f.label+": "+v)
		}
	}
	return strings.Join(lines, "\n")
}

// firstVector - dims가 0이면 차원 검사 생략
func firstVector(res *genai.EmbedContentResponse, dims int) ([]float32, error) {
	if res == nil || len(res.Embeddings) == 0 || res.Embeddings[0] == nil || len(res.Embeddings[0].Values) == 0 {
		return nil, fmt.Errorf("empty embedding result")
	}
	values := res.Embeddings[0].Values
	if dims > 0 && len(values) != dims {
		return nil, fmt.Errorf("embedding has %d dimensions, index expects %d", len(values), dims)
	}
	return values, nil
}
