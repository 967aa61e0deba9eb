package server

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"image"
	"image/color"
	"image/png"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/shouni/gemini-video-kit/pkg/domain"
	"github.com/shouni/gemini-video-kit/pkg/generator"
)

// fakeGenerator は VideoGenerator のテスト用実装なのだ。
type fakeGenerator struct {
	mu       sync.Mutex
	messages []string
	artifact *domain.VideoArtifact
	err      error
	calls    int
	lastCfg  domain.GenerationConfig
}

func (f *fakeGenerator) Generate(ctx context.Context, cfg domain.GenerationConfig, onProgress generator.ProgressFunc) (*domain.VideoArtifact, error) {
	f.mu.Lock()
	f.calls++
	f.lastCfg = cfg
	f.mu.Unlock()

	for _, m := range f.messages {
		onProgress(m)
	}
	if f.err != nil {
		return nil, f.err
	}
	return f.artifact, nil
}

func (f *fakeGenerator) snapshot() (int, domain.GenerationConfig) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls, f.lastCfg
}

func newTestServer(t *testing.T, gen generator.VideoGenerator, opts Options) *httptest.Server {
	t.Helper()
	s, err := New(gen, opts)
	require.NoError(t, err)
	ts := httptest.NewServer(s.Handler())
	t.Cleanup(ts.Close)
	return ts
}

func pngBytes(t *testing.T) []byte {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, 4, 4))
	img.Set(1, 1, color.RGBA{R: 255, A: 255})
	var buf bytes.Buffer
	require.NoError(t, png.Encode(&buf, img))
	return buf.Bytes()
}

func multipartBody(t *testing.T, fields map[string]string, imageData []byte) (*bytes.Buffer, string) {
	t.Helper()
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	for k, v := range fields {
		require.NoError(t, mw.WriteField(k, v))
	}
	if imageData != nil {
		fw, err := mw.CreateFormFile("image", "ref.png")
		require.NoError(t, err)
		_, err = fw.Write(imageData)
		require.NoError(t, err)
	}
	require.NoError(t, mw.Close())
	return &buf, mw.FormDataContentType()
}

func TestNew_RequiresGenerator(t *testing.T) {
	_, err := New(nil, Options{})
	assert.Error(t, err)
}

func TestHealthz(t *testing.T) {
	ts := newTestServer(t, &fakeGenerator{}, Options{})

	resp, err := http.Get(ts.URL + "/healthz")
	require.NoError(t, err)
	defer resp.Body.Close()

	assert.Equal(t, http.StatusOK, resp.StatusCode)
}

func TestGenerate_BlankPromptIsRejected(t *testing.T) {
	gen := &fakeGenerator{}
	ts := newTestServer(t, gen, Options{})

	body, ct := multipartBody(t, map[string]string{"prompt": "   "}, nil)
	resp, err := http.Post(ts.URL+"/api/videos", ct, body)
	require.NoError(t, err)
	defer resp.Body.Close()

	var got errorResponse
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&got))

	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	assert.Contains(t, got.Error, domain.PromptRequiredMessage)
	calls, _ := gen.snapshot()
	assert.Zero(t, calls, "空のプロンプトでは生成を呼ばないのだ")
}

func TestGenerate_Success(t *testing.T) {
	gen := &fakeGenerator{
		messages: []string{generator.MsgInitializing, generator.MsgComplete},
		artifact: &domain.VideoArtifact{Data: []byte("mp4-bytes"), MimeType: "video/mp4"},
	}
	ts := newTestServer(t, gen, Options{})
	imgData := pngBytes(t)

	body, ct := multipartBody(t, map[string]string{
		"prompt":       "a cat surfing",
		"aspectRatio":  "9:16",
		"resolution":   "720p",
		"soundEnabled": "false",
	}, imgData)
	resp, err := http.Post(ts.URL+"/api/videos", ct, body)
	require.NoError(t, err)
	defer resp.Body.Close()

	var got bytes.Buffer
	_, err = got.ReadFrom(resp.Body)
	require.NoError(t, err)

	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "video/mp4", resp.Header.Get("Content-Type"))
	assert.Contains(t, resp.Header.Get("Content-Disposition"), "attachment")
	assert.Equal(t, "mp4-bytes", got.String())

	_, cfg := gen.snapshot()
	assert.Equal(t, "a cat surfing", cfg.Prompt)
	assert.Equal(t, domain.AspectRatioPortrait, cfg.AspectRatio)
	assert.Equal(t, domain.Resolution720p, cfg.Resolution)
	assert.False(t, cfg.SoundEnabled)
	require.NotNil(t, cfg.Image)
	assert.Equal(t, "image/png", cfg.Image.MimeType)
	assert.Equal(t, base64.StdEncoding.EncodeToString(imgData), cfg.Image.Data)
}

func TestGenerate_Defaults(t *testing.T) {
	gen := &fakeGenerator{artifact: &domain.VideoArtifact{Data: []byte("x"), MimeType: "video/mp4"}}
	ts := newTestServer(t, gen, Options{})

	body, ct := multipartBody(t, map[string]string{"prompt": "sunset"}, nil)
	resp, err := http.Post(ts.URL+"/api/videos", ct, body)
	require.NoError(t, err)
	resp.Body.Close()

	assert.Equal(t, http.StatusOK, resp.StatusCode)
	_, cfg := gen.snapshot()
	assert.Equal(t, domain.DefaultAspectRatio, cfg.AspectRatio)
	assert.Equal(t, domain.DefaultResolution, cfg.Resolution)
	assert.True(t, cfg.SoundEnabled)
	assert.Nil(t, cfg.Image)
}

func TestGenerate_InvalidFields(t *testing.T) {
	tests := []struct {
		name   string
		fields map[string]string
	}{
		{"アスペクト比", map[string]string{"prompt": "p", "aspectRatio": "4:3"}},
		{"解像度", map[string]string{"prompt": "p", "resolution": "4k"}},
		{"音声フラグ", map[string]string{"prompt": "p", "soundEnabled": "maybe"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			gen := &fakeGenerator{}
			ts := newTestServer(t, gen, Options{})

			body, ct := multipartBody(t, tt.fields, nil)
			resp, err := http.Post(ts.URL+"/api/videos", ct, body)
			require.NoError(t, err)
			resp.Body.Close()

			assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
			calls, _ := gen.snapshot()
			assert.Zero(t, calls)
		})
	}
}

func TestGenerate_ErrorMapping(t *testing.T) {
	gen := &fakeGenerator{err: &domain.DownloadError{StatusCode: 403, Status: "403 Forbidden"}}
	ts := newTestServer(t, gen, Options{})

	body, ct := multipartBody(t, map[string]string{"prompt": "p"}, nil)
	resp, err := http.Post(ts.URL+"/api/videos", ct, body)
	require.NoError(t, err)
	defer resp.Body.Close()

	var got errorResponse
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&got))

	assert.Equal(t, http.StatusBadGateway, resp.StatusCode)
	assert.Equal(t, "Failed to download video: 403 Forbidden", got.Error)
}

func TestStatusFor(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want int
	}{
		{"設定エラー", &domain.ConfigurationError{Message: "no key"}, http.StatusInternalServerError},
		{"検証エラー", &domain.ValidationError{Field: "prompt", Message: "x"}, http.StatusBadRequest},
		{"生成失敗", &domain.GenerationFailedError{}, http.StatusBadGateway},
		{"ダウンロード失敗", fmt.Errorf("wrap: %w", &domain.DownloadError{StatusCode: 500}), http.StatusBadGateway},
		{"実行中", domain.ErrGenerationInProgress, http.StatusConflict},
		{"ポーリング上限", domain.ErrPollingExhausted, http.StatusBadGateway},
		{"タイムアウト", context.DeadlineExceeded, http.StatusGatewayTimeout},
		{"その他", errors.New("boom"), http.StatusInternalServerError},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, statusFor(tt.err))
		})
	}
}

func TestGenerate_Timeout(t *testing.T) {
	var sawDeadline atomic.Bool
	gen := &deadlineGenerator{onCall: func(ctx context.Context) {
		_, ok := ctx.Deadline()
		sawDeadline.Store(ok)
	}}
	ts := newTestServer(t, gen, Options{GenerationTimeout: time.Minute})

	body, ct := multipartBody(t, map[string]string{"prompt": "p"}, nil)
	resp, err := http.Post(ts.URL+"/api/videos", ct, body)
	require.NoError(t, err)
	resp.Body.Close()

	assert.True(t, sawDeadline.Load(), "タイムアウト設定時は期限付きコンテキストが渡るのだ")
}

type deadlineGenerator struct {
	onCall func(ctx context.Context)
}

func (d *deadlineGenerator) Generate(ctx context.Context, _ domain.GenerationConfig, _ generator.ProgressFunc) (*domain.VideoArtifact, error) {
	d.onCall(ctx)
	return &domain.VideoArtifact{Data: []byte("x"), MimeType: "video/mp4"}, nil
}

func TestMetricsEndpoint(t *testing.T) {
	reg := prometheus.NewRegistry()
	counter := prometheus.NewCounter(prometheus.CounterOpts{Name: "server_test_total", Help: "test"})
	reg.MustRegister(counter)
	counter.Inc()

	ts := newTestServer(t, &fakeGenerator{}, Options{Gatherer: reg})

	resp, err := http.Get(ts.URL + "/metrics")
	require.NoError(t, err)
	defer resp.Body.Close()

	var body bytes.Buffer
	_, err = body.ReadFrom(resp.Body)
	require.NoError(t, err)

	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Contains(t, body.String(), "server_test_total 1")
}

func TestMetricsEndpoint_DisabledWithoutGatherer(t *testing.T) {
	ts := newTestServer(t, &fakeGenerator{}, Options{})

	resp, err := http.Get(ts.URL + "/metrics")
	require.NoError(t, err)
	resp.Body.Close()

	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func dialStream(t *testing.T, ts *httptest.Server) *websocket.Conn {
	t.Helper()
	url := "ws" + strings.TrimPrefix(ts.URL, "http") + "/ws/videos"
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(5*time.Second)))
	return conn
}

func TestStream_Success(t *testing.T) {
	gen := &fakeGenerator{
		messages: []string{generator.MsgInitializing, generator.MsgSubmitted, generator.MsgComplete},
		artifact: &domain.VideoArtifact{Data: []byte("mp4-bytes"), MimeType: "video/mp4"},
	}
	ts := newTestServer(t, gen, Options{})
	conn := dialStream(t, ts)

	sound := false
	require.NoError(t, conn.WriteJSON(StreamRequest{
		Prompt:       "a cat surfing",
		AspectRatio:  "9:16",
		SoundEnabled: &sound,
		Image:        &domain.ReferenceImage{Data: base64.StdEncoding.EncodeToString([]byte("img")), MimeType: "image/png"},
	}))

	var progress []string
	for {
		msgType, data, err := conn.ReadMessage()
		require.NoError(t, err)
		if msgType == websocket.BinaryMessage {
			assert.Equal(t, "mp4-bytes", string(data))
			break
		}
		var f StreamFrame
		require.NoError(t, json.Unmarshal(data, &f))
		require.Equal(t, FrameProgress, f.Type, "バイナリの前は進捗だけなのだ: %+v", f)
		progress = append(progress, f.Message)
	}

	var done StreamFrame
	require.NoError(t, conn.ReadJSON(&done))
	assert.Equal(t, FrameComplete, done.Type)
	assert.Equal(t, "video/mp4", done.MimeType)
	assert.Equal(t, len("mp4-bytes"), done.Size)

	assert.Equal(t, []string{MsgPreparing, generator.MsgInitializing, generator.MsgSubmitted, generator.MsgComplete}, progress)

	_, cfg := gen.snapshot()
	assert.Equal(t, domain.AspectRatioPortrait, cfg.AspectRatio)
	assert.False(t, cfg.SoundEnabled)
	require.NotNil(t, cfg.Image)
	assert.Equal(t, "image/png", cfg.Image.MimeType)
}

func TestStream_BlankPrompt(t *testing.T) {
	gen := &fakeGenerator{}
	ts := newTestServer(t, gen, Options{})
	conn := dialStream(t, ts)

	require.NoError(t, conn.WriteJSON(StreamRequest{Prompt: ""}))

	var f StreamFrame
	require.NoError(t, conn.ReadJSON(&f))
	assert.Equal(t, FrameError, f.Type)
	assert.Contains(t, f.Message, domain.PromptRequiredMessage)
	calls, _ := gen.snapshot()
	assert.Zero(t, calls)
}

func TestStream_GenerationError(t *testing.T) {
	gen := &fakeGenerator{
		messages: []string{generator.MsgInitializing},
		err:      &domain.GenerationFailedError{},
	}
	ts := newTestServer(t, gen, Options{})
	conn := dialStream(t, ts)

	require.NoError(t, conn.WriteJSON(StreamRequest{Prompt: "p"}))

	var last StreamFrame
	for {
		var f StreamFrame
		require.NoError(t, conn.ReadJSON(&f))
		if f.Type != FrameProgress {
			last = f
			break
		}
	}
	assert.Equal(t, FrameError, last.Type)
	assert.Equal(t, "Video generation failed or the API returned no video URI.", last.Message)
}

func TestGenerate_Busy(t *testing.T) {
	gen := &fakeGenerator{err: domain.ErrGenerationInProgress}
	ts := newTestServer(t, gen, Options{})

	body, ct := multipartBody(t, map[string]string{"prompt": "p"}, nil)
	resp, err := http.Post(ts.URL+"/api/videos", ct, body)
	require.NoError(t, err)
	resp.Body.Close()

	assert.Equal(t, http.StatusConflict, resp.StatusCode)
}

func TestGenerate_BodyTooLarge(t *testing.T) {
	gen := &fakeGenerator{}
	s, err := New(gen, Options{MaxImageSize: 1024})
	require.NoError(t, err)

	body, ct := multipartBody(t, map[string]string{"prompt": "p"}, bytes.Repeat([]byte{0x89}, 2<<20))
	req := httptest.NewRequest(http.MethodPost, "/api/videos", body)
	req.Header.Set("Content-Type", ct)
	rec := httptest.NewRecorder()

	s.Handler().ServeHTTP(rec, req)

	assert.Equal(t, http.StatusRequestEntityTooLarge, rec.Code)
	calls, _ := gen.snapshot()
	assert.Zero(t, calls, "上限を超えたリクエストでは生成を呼ばないのだ")
}
