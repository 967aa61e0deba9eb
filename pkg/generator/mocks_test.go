package generator

import (
	"context"
	"sync"
	"time"

	"google.golang.org/genai"
)

// --- Mocks ---

// mockVideoService は VideoService のテスト用モックなのだ。
type mockVideoService struct {
	mu           sync.Mutex
	generateFunc func(ctx context.Context, model, prompt string, image *genai.Image, config *genai.GenerateVideosConfig) (*genai.GenerateVideosOperation, error)
	getFunc      func(ctx context.Context, op *genai.GenerateVideosOperation) (*genai.GenerateVideosOperation, error)

	generateCalls int
	getCalls      int
	lastModel     string
	lastPrompt    string
	lastImage     *genai.Image
	lastConfig    *genai.GenerateVideosConfig
	polledNames   []string
}

func (m *mockVideoService) GenerateVideos(ctx context.Context, model, prompt string, image *genai.Image, config *genai.GenerateVideosConfig) (*genai.GenerateVideosOperation, error) {
	m.mu.Lock()
	m.generateCalls++
	m.lastModel = model
	m.lastPrompt = prompt
	m.lastImage = image
	m.lastConfig = config
	m.mu.Unlock()

	if m.generateFunc != nil {
		return m.generateFunc(ctx, model, prompt, image, config)
	}
	return &genai.GenerateVideosOperation{Name: "operations/default"}, nil
}

func (m *mockVideoService) GetVideosOperation(ctx context.Context, op *genai.GenerateVideosOperation) (*genai.GenerateVideosOperation, error) {
	m.mu.Lock()
	m.getCalls++
	m.polledNames = append(m.polledNames, op.Name)
	m.mu.Unlock()

	if m.getFunc != nil {
		return m.getFunc(ctx, op)
	}
	return doneOperation("operations/default", "https://example.com/video.mp4"), nil
}

func (m *mockVideoService) calls() (generate, get int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.generateCalls, m.getCalls
}

// mockHTTPClient は HTTPClient のテスト用モックなのだ。
type mockHTTPClient struct {
	data        []byte
	contentType string
	err         error
	calls       int
	lastURL     string
}

func (m *mockHTTPClient) FetchVideo(ctx context.Context, url string) ([]byte, string, error) {
	m.calls++
	m.lastURL = url
	return m.data, m.contentType, m.err
}

// mockRecorder は Recorder のテスト用モックなのだ。
type mockRecorder struct {
	mu       sync.Mutex
	outcomes []string
	polls    int
}

func (m *mockRecorder) ObserveGeneration(outcome string, d time.Duration) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.outcomes = append(m.outcomes, outcome)
}

func (m *mockRecorder) ObservePoll() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.polls++
}

// progressLog は進捗メッセージを記録するのだ。
type progressLog struct {
	mu       sync.Mutex
	messages []string
}

func (p *progressLog) record(msg string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.messages = append(p.messages, msg)
}

func (p *progressLog) all() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]string(nil), p.messages...)
}

// --- Helpers ---

func pendingOperation(name string) *genai.GenerateVideosOperation {
	return &genai.GenerateVideosOperation{Name: name}
}

func doneOperation(name, uri string) *genai.GenerateVideosOperation {
	return &genai.GenerateVideosOperation{
		Name: name,
		Done: true,
		Response: &genai.GenerateVideosResponse{
			GeneratedVideos: []*genai.GeneratedVideo{
				{Video: &genai.Video{URI: uri}},
			},
		},
	}
}

// noWait はポーリング間隔の待機をスキップし、要求された待機時間を記録するのだ。
type noWait struct {
	mu        sync.Mutex
	durations []time.Duration
}

func (w *noWait) wait(ctx context.Context, d time.Duration) error {
	w.mu.Lock()
	w.durations = append(w.durations, d)
	w.mu.Unlock()
	return ctx.Err()
}
