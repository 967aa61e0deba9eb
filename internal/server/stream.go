package server

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"strings"
	"sync"

	"github.com/gorilla/websocket"

	"github.com/shouni/gemini-video-kit/pkg/domain"
)

// メッセージ種別
const (
	FrameProgress = "progress"
	FrameComplete = "complete"
	FrameError    = "error"
)

// StreamRequest は WebSocket で受け取る生成リクエストです。
type StreamRequest struct {
	Prompt       string                 `json:"prompt"`
	Image        *domain.ReferenceImage `json:"image,omitempty"`
	AspectRatio  string                 `json:"aspectRatio,omitempty"`
	Resolution   string                 `json:"resolution,omitempty"`
	SoundEnabled *bool                  `json:"soundEnabled,omitempty"`
}

// StreamFrame はサーバーから送るテキストフレームです。
type StreamFrame struct {
	Type     string `json:"type"`
	Message  string `json:"message,omitempty"`
	MimeType string `json:"mimeType,omitempty"`
	Size     int    `json:"size,omitempty"`
}

type errorResponse struct {
	Error string `json:"error"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Warn("レスポンスの書き込みに失敗しました", "error", err)
	}
}

// toConfig はリクエストを GenerationConfig に変換します。
func (req StreamRequest) toConfig() (domain.GenerationConfig, error) {
	if strings.TrimSpace(req.Prompt) == "" {
		return domain.GenerationConfig{}, &domain.ValidationError{Field: "prompt", Message: domain.PromptRequiredMessage}
	}
	cfg := domain.NewGenerationConfig(req.Prompt)
	cfg.Image = req.Image

	aspect, err := domain.ParseAspectRatio(req.AspectRatio)
	if err != nil {
		return cfg, err
	}
	cfg.AspectRatio = aspect

	res, err := domain.ParseResolution(req.Resolution)
	if err != nil {
		return cfg, err
	}
	cfg.Resolution = res

	if req.SoundEnabled != nil {
		cfg.SoundEnabled = *req.SoundEnabled
	}
	return cfg, nil
}

// streamConn は gorilla/websocket の書き込みを直列化します。
type streamConn struct {
	mu   sync.Mutex
	conn *websocket.Conn
}

func (c *streamConn) writeFrame(f StreamFrame) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.conn.WriteJSON(f)
}

func (c *streamConn) writeBinary(data []byte) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.conn.WriteMessage(websocket.BinaryMessage, data)
}

// handleStream は 1 接続につき 1 回の生成を行い、進捗を逐次送信します。
func (s *Server) handleStream(w http.ResponseWriter, r *http.Request) {
	ws, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		slog.Warn("WebSocket へのアップグレードに失敗しました", "error", err)
		return
	}
	defer ws.Close()
	ws.SetReadLimit(s.opts.MaxImageSize * 2)

	conn := &streamConn{conn: ws}

	var req StreamRequest
	if err := ws.ReadJSON(&req); err != nil {
		_ = conn.writeFrame(StreamFrame{Type: FrameError, Message: "invalid request: " + err.Error()})
		return
	}

	cfg, err := req.toConfig()
	if err != nil {
		_ = conn.writeFrame(StreamFrame{Type: FrameError, Message: err.Error()})
		return
	}

	ctx, cancel := s.generationContext(r.Context())
	defer cancel()

	// クライアントが切断したら生成を中断する
	go func() {
		for {
			if _, _, err := ws.NextReader(); err != nil {
				cancel()
				return
			}
		}
	}()

	progress := func(msg string) {
		if err := conn.writeFrame(StreamFrame{Type: FrameProgress, Message: msg}); err != nil {
			slog.DebugContext(ctx, "進捗の送信に失敗しました", "error", err)
		}
	}

	progress(MsgPreparing)
	artifact, err := s.generator.Generate(ctx, cfg, progress)
	if err != nil {
		slog.WarnContext(ctx, "動画生成に失敗しました", "error", err)
		_ = conn.writeFrame(StreamFrame{Type: FrameError, Message: err.Error()})
		return
	}

	if err := conn.writeBinary(artifact.Data); err != nil {
		slog.WarnContext(ctx, "動画の送信に失敗しました", "error", err)
		return
	}
	_ = conn.writeFrame(StreamFrame{Type: FrameComplete, MimeType: artifact.MimeType, Size: len(artifact.Data)})
	_ = ws.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
}
