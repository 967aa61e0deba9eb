package generator

import (
	"context"
	"fmt"
	"net/http"
	"sync"

	"google.golang.org/genai"
)

// GenAIVideoService は google.golang.org/genai の Client を使う VideoService の実装です。
// Client は最初の呼び出し時に作成するため、API キーが未設定でも構築できます。
type GenAIVideoService struct {
	apiKey     string
	httpClient *http.Client

	mu     sync.Mutex
	client *genai.Client
}

// NewGenAIVideoService は Gemini API バックエンド向けの GenAIVideoService を作成します。
func NewGenAIVideoService(apiKey string, httpClient *http.Client) *GenAIVideoService {
	return &GenAIVideoService{
		apiKey:     apiKey,
		httpClient: httpClient,
	}
}

func (s *GenAIVideoService) genaiClient(ctx context.Context) (*genai.Client, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.client != nil {
		return s.client, nil
	}

	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:     s.apiKey,
		Backend:    genai.BackendGeminiAPI,
		HTTPClient: s.httpClient,
	})
	if err != nil {
		return nil, fmt.Errorf("genai クライアントの作成に失敗しました: %w", err)
	}
	s.client = client
	return client, nil
}

// GenerateVideos は Models.GenerateVideos を呼び出します。
func (s *GenAIVideoService) GenerateVideos(ctx context.Context, model, prompt string, image *genai.Image, config *genai.GenerateVideosConfig) (*genai.GenerateVideosOperation, error) {
	client, err := s.genaiClient(ctx)
	if err != nil {
		return nil, err
	}
	return client.Models.GenerateVideos(ctx, model, prompt, image, config)
}

// GetVideosOperation は Operations.GetVideosOperation を呼び出します。
func (s *GenAIVideoService) GetVideosOperation(ctx context.Context, op *genai.GenerateVideosOperation) (*genai.GenerateVideosOperation, error) {
	client, err := s.genaiClient(ctx)
	if err != nil {
		return nil, err
	}
	return client.Operations.GetVideosOperation(ctx, op, nil)
}
