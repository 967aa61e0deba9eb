// Package server は VideoGenerator を HTTP と WebSocket で公開します。
package server

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gorilla/mux"
	"github.com/gorilla/websocket"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/shouni/gemini-video-kit/pkg/domain"
	"github.com/shouni/gemini-video-kit/pkg/generator"
	"github.com/shouni/gemini-video-kit/pkg/imgutil"
)

const (
	// MsgPreparing は Generate を呼び出す前に UI 層が出す進捗メッセージです。
	MsgPreparing = "Preparing assets..."

	defaultMaxImageSize = 20 << 20
	downloadFileName    = "veo_video.mp4"
)

// Options は Server の任意設定です。
type Options struct {
	GenerationTimeout time.Duration // 0 はタイムアウトなし
	MaxImageSize      int64
	CompressImage     bool
	ImageQuality      int
	Gatherer          prometheus.Gatherer // nil の場合 /metrics は公開しない
}

// Server は動画生成の HTTP API です。
type Server struct {
	generator generator.VideoGenerator
	opts      Options
	upgrader  websocket.Upgrader
	router    *mux.Router
}

// New は Server を作成し、ルートを登録します。
func New(gen generator.VideoGenerator, opts Options) (*Server, error) {
	if gen == nil {
		return nil, fmt.Errorf("generator (VideoGenerator) is required")
	}
	if opts.MaxImageSize <= 0 {
		opts.MaxImageSize = defaultMaxImageSize
	}

	s := &Server{
		generator: gen,
		opts:      opts,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  4096,
			WriteBufferSize: 4096,
		},
		router: mux.NewRouter(),
	}
	s.routes()
	return s, nil
}

func (s *Server) routes() {
	s.router.HandleFunc("/healthz", s.handleHealth).Methods(http.MethodGet)
	s.router.HandleFunc("/api/videos", s.handleGenerate).Methods(http.MethodPost)
	s.router.HandleFunc("/ws/videos", s.handleStream).Methods(http.MethodGet)
	if s.opts.Gatherer != nil {
		s.router.Handle("/metrics", promhttp.HandlerFor(s.opts.Gatherer, promhttp.HandlerOpts{})).Methods(http.MethodGet)
	}
}

// Handler はルーターを返します。
func (s *Server) Handler() http.Handler {
	return s.router
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	_, _ = w.Write([]byte("ok"))
}

// handleGenerate は multipart フォームを受け取り、生成した動画をそのまま返します。
func (s *Server) handleGenerate(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, s.opts.MaxImageSize+(1<<20))
	if err := r.ParseMultipartForm(s.opts.MaxImageSize); err != nil && !errors.Is(err, http.ErrNotMultipart) {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			writeJSON(w, http.StatusRequestEntityTooLarge, errorResponse{
				Error: fmt.Sprintf("request body exceeds %d bytes", tooLarge.Limit),
			})
			return
		}
		writeError(w, &domain.ValidationError{Field: "form", Message: fmt.Sprintf("invalid form: %v", err)})
		return
	}

	prompt := r.FormValue("prompt")
	if strings.TrimSpace(prompt) == "" {
		writeError(w, &domain.ValidationError{Field: "prompt", Message: domain.PromptRequiredMessage})
		return
	}

	cfg, err := s.formConfig(r, prompt)
	if err != nil {
		writeError(w, err)
		return
	}

	ctx, cancel := s.generationContext(r.Context())
	defer cancel()

	slog.InfoContext(ctx, MsgPreparing, "remote", r.RemoteAddr)
	artifact, err := s.generator.Generate(ctx, cfg, func(msg string) {
		slog.InfoContext(ctx, msg)
	})
	if err != nil {
		slog.WarnContext(ctx, "動画生成に失敗しました", "error", err)
		writeError(w, err)
		return
	}

	w.Header().Set("Content-Type", artifact.MimeType)
	w.Header().Set("Content-Length", strconv.Itoa(len(artifact.Data)))
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", downloadFileName))
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(artifact.Data)
}

func (s *Server) formConfig(r *http.Request, prompt string) (domain.GenerationConfig, error) {
	cfg := domain.NewGenerationConfig(prompt)

	aspect, err := domain.ParseAspectRatio(r.FormValue("aspectRatio"))
	if err != nil {
		return cfg, err
	}
	cfg.AspectRatio = aspect

	res, err := domain.ParseResolution(r.FormValue("resolution"))
	if err != nil {
		return cfg, err
	}
	cfg.Resolution = res

	if raw := r.FormValue("soundEnabled"); raw != "" {
		sound, err := strconv.ParseBool(raw)
		if err != nil {
			return cfg, &domain.ValidationError{Field: "soundEnabled", Message: fmt.Sprintf("invalid soundEnabled: %q", raw)}
		}
		cfg.SoundEnabled = sound
	}

	file, _, err := r.FormFile("image")
	switch {
	case errors.Is(err, http.ErrMissingFile), errors.Is(err, http.ErrNotMultipart):
		return cfg, nil
	case err != nil:
		return cfg, &domain.ValidationError{Field: "image", Message: fmt.Sprintf("invalid image upload: %v", err)}
	}
	defer file.Close()

	data, err := io.ReadAll(file)
	if err != nil {
		return cfg, fmt.Errorf("参照画像の読み込みに失敗しました: %w", err)
	}
	img, err := imgutil.NewReferenceImage(data, s.opts.CompressImage, s.opts.ImageQuality)
	if err != nil {
		return cfg, err
	}
	cfg.Image = img
	return cfg, nil
}

func (s *Server) generationContext(parent context.Context) (context.Context, context.CancelFunc) {
	if s.opts.GenerationTimeout > 0 {
		return context.WithTimeout(parent, s.opts.GenerationTimeout)
	}
	return context.WithCancel(parent)
}

// statusFor はエラーを HTTP ステータスに変換します。
func statusFor(err error) int {
	var (
		cfgErr *domain.ConfigurationError
		valErr *domain.ValidationError
		genErr *domain.GenerationFailedError
		dlErr  *domain.DownloadError
	)
	switch {
	case errors.As(err, &valErr):
		return http.StatusBadRequest
	case errors.Is(err, domain.ErrGenerationInProgress):
		return http.StatusConflict
	case errors.As(err, &cfgErr):
		return http.StatusInternalServerError
	case errors.As(err, &genErr), errors.As(err, &dlErr), errors.Is(err, domain.ErrPollingExhausted):
		return http.StatusBadGateway
	case errors.Is(err, context.DeadlineExceeded):
		return http.StatusGatewayTimeout
	default:
		return http.StatusInternalServerError
	}
}

func writeError(w http.ResponseWriter, err error) {
	writeJSON(w, statusFor(err), errorResponse{Error: err.Error()})
}
