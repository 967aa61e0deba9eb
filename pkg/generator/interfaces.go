package generator

import (
	"context"
	"time"

	"github.com/shouni/gemini-video-kit/pkg/domain"
	"google.golang.org/genai"
)

// VideoGenerator はビジネスロジック層や UI 層が利用する統合窓口です。
type VideoGenerator interface {
	// Generate は設定に従って動画を生成し、完成した動画バイナリを返します。
	// onProgress には各フェーズの進捗メッセージが渡されます。
	Generate(ctx context.Context, cfg domain.GenerationConfig, onProgress ProgressFunc) (*domain.VideoArtifact, error)
}

// VideoService は Veo の長時間実行オペレーションを扱うリモートサービスです。
type VideoService interface {
	// GenerateVideos は生成リクエストを送信し、初期オペレーションを返します。
	GenerateVideos(ctx context.Context, model, prompt string, image *genai.Image, config *genai.GenerateVideosConfig) (*genai.GenerateVideosOperation, error)
	// GetVideosOperation は最新のオペレーションハンドルを使って状態を再取得します。
	GetVideosOperation(ctx context.Context, op *genai.GenerateVideosOperation) (*genai.GenerateVideosOperation, error)
}

// HTTPClient は、生成済み動画を URL から取得するためのインターフェースです。
type HTTPClient interface {
	// FetchVideo はレスポンスボディとレスポンスの Content-Type を返します。
	FetchVideo(ctx context.Context, url string) (data []byte, contentType string, err error)
}

// Recorder は生成処理の結果を観測するためのインターフェースです。
type Recorder interface {
	ObserveGeneration(outcome string, d time.Duration)
	ObservePoll()
}

// ProgressFunc は進捗メッセージを受け取るコールバックです。
type ProgressFunc func(message string)
