package generator

import (
	"github.com/shouni/gemini-video-kit/pkg/domain"
	"google.golang.org/genai"
)

// videoRequest は Veo API へ送信する 1 回分のリクエストです。
type videoRequest struct {
	Model  string
	Prompt string
	Image  *genai.Image
	Config *genai.GenerateVideosConfig
}

// buildVideoRequest はドメインの設定を Veo API の形式に変換します。
// Resolution と SoundEnabled は現在の API では未対応のため送信しません。
func buildVideoRequest(model string, cfg domain.GenerationConfig) (*videoRequest, error) {
	req := &videoRequest{
		Model:  model,
		Prompt: cfg.Prompt,
		Config: &genai.GenerateVideosConfig{
			NumberOfVideos: numberOfVideos,
			AspectRatio:    string(cfg.AspectRatio),
		},
	}

	if cfg.Image != nil {
		data, err := cfg.Image.Bytes()
		if err != nil {
			return nil, err
		}
		req.Image = &genai.Image{
			ImageBytes: data,
			MIMEType:   cfg.Image.MimeType,
		}
	}

	return req, nil
}
