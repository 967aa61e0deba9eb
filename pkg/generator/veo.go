package generator

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"mime"
	"net/http"
	"strings"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/shouni/gemini-video-kit/pkg/domain"
)

// VeoGenerator は、リクエストの組み立て・送信・完了待ち・ダウンロードを一括で行う
// 動画生成ジェネレーターです。同時に実行できる生成処理は 1 つだけです。
type VeoGenerator struct {
	service    VideoService
	httpClient HTTPClient
	apiKey     string
	model      string
	poller     *Poller
	recorder   Recorder
	inFlight   atomic.Bool
}

// NewVeoGenerator は依存関係を注入して VeoGenerator を初期化するのだ。
// apiKey が空でも作成できますが、Generate は ConfigurationError を返します。
func NewVeoGenerator(service VideoService, httpClient HTTPClient, apiKey string, opts Options) (*VeoGenerator, error) {
	if service == nil {
		return nil, fmt.Errorf("service (VideoService) is required")
	}
	if httpClient == nil {
		return nil, fmt.Errorf("httpClient is required")
	}

	model := opts.Model
	if model == "" {
		model = DefaultModel
	}
	var recorder Recorder = noopRecorder{}
	if opts.Recorder != nil {
		recorder = opts.Recorder
	}

	poller := NewPoller(service, opts.PollInterval, opts.MaxPollAttempts)
	poller.recorder = recorder

	return &VeoGenerator{
		service:    service,
		httpClient: httpClient,
		apiKey:     apiKey,
		model:      model,
		poller:     poller,
		recorder:   recorder,
	}, nil
}

// Generate は動画を 1 本生成し、ダウンロードした動画バイナリを返します。
func (g *VeoGenerator) Generate(ctx context.Context, cfg domain.GenerationConfig, onProgress ProgressFunc) (artifact *domain.VideoArtifact, err error) {
	start := time.Now()
	defer func() {
		g.recorder.ObserveGeneration(outcomeOf(err), time.Since(start))
	}()

	if onProgress == nil {
		onProgress = func(string) {}
	}

	if strings.TrimSpace(g.apiKey) == "" {
		return nil, &domain.ConfigurationError{
			Message: "API key is not set. Please ensure GEMINI_API_KEY is configured.",
		}
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	if !g.inFlight.CompareAndSwap(false, true) {
		return nil, domain.ErrGenerationInProgress
	}
	defer g.inFlight.Store(false)

	requestID := uuid.NewString()
	logger := slog.With("request_id", requestID, "model", g.model)

	onProgress(MsgInitializing)

	req, err := buildVideoRequest(g.model, cfg)
	if err != nil {
		return nil, err
	}

	logger.InfoContext(ctx, "動画生成リクエストを送信します",
		"aspect_ratio", cfg.AspectRatio, "has_image", req.Image != nil)

	op, err := g.service.GenerateVideos(ctx, req.Model, req.Prompt, req.Image, req.Config)
	if err != nil {
		return nil, fmt.Errorf("動画生成リクエストの送信に失敗しました: %w", err)
	}
	if op == nil {
		return nil, fmt.Errorf("動画生成リクエストの応答にオペレーションが含まれていません")
	}

	onProgress(MsgSubmitted)
	logger.InfoContext(ctx, "動画生成を開始しました", "operation", op.Name)

	op, err = g.poller.AwaitCompletion(ctx, op, onProgress)
	if err != nil {
		return nil, err
	}

	onProgress(MsgFinalizing)

	uri, err := extractVideoURI(op)
	if err != nil {
		logger.WarnContext(ctx, "動画URIを取得できませんでした", "operation", op.Name, "error", err)
		return nil, err
	}

	onProgress(MsgDownloading)

	data, contentType, err := g.download(ctx, uri)
	if err != nil {
		return nil, err
	}

	onProgress(MsgComplete)
	logger.InfoContext(ctx, "動画生成が完了しました", "bytes", len(data), "elapsed", time.Since(start))

	return &domain.VideoArtifact{
		Data:     data,
		MimeType: videoMimeType(contentType, data),
	}, nil
}

func (g *VeoGenerator) download(ctx context.Context, uri string) ([]byte, string, error) {
	downloadURL, err := withAPIKey(uri, g.apiKey)
	if err != nil {
		return nil, "", err
	}

	data, contentType, err := g.httpClient.FetchVideo(ctx, downloadURL)
	if err != nil {
		var dlErr *domain.DownloadError
		if errors.As(err, &dlErr) {
			return nil, "", err
		}
		return nil, "", fmt.Errorf("動画のダウンロードに失敗しました: %w", err)
	}
	return data, contentType, nil
}

// videoMimeType はレスポンスの Content-Type を優先し、動画でなければボディから推定します。
func videoMimeType(contentType string, data []byte) string {
	if mediaType, _, err := mime.ParseMediaType(contentType); err == nil && strings.HasPrefix(mediaType, "video/") {
		return mediaType
	}
	if sniffed := http.DetectContentType(data); strings.HasPrefix(sniffed, "video/") {
		return sniffed
	}
	return defaultVideoMimeType
}
