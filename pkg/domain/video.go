package domain

import (
	"encoding/base64"
	"fmt"
	"strings"
)

// AspectRatio は生成する動画のアスペクト比です。
type AspectRatio string

const (
	AspectRatioLandscape AspectRatio = "16:9"
	AspectRatioPortrait  AspectRatio = "9:16"
)

// Resolution は生成する動画の解像度です。
// 現在の Veo API には送信されませんが、設定としては受け付けます。
type Resolution string

const (
	Resolution720p  Resolution = "720p"
	Resolution1080p Resolution = "1080p"
)

const (
	DefaultAspectRatio = AspectRatioLandscape
	DefaultResolution  = Resolution1080p
)

// ParseAspectRatio は文字列を AspectRatio に変換します。空文字はデフォルト値になります。
func ParseAspectRatio(s string) (AspectRatio, error) {
	switch AspectRatio(strings.TrimSpace(s)) {
	case "":
		return DefaultAspectRatio, nil
	case AspectRatioLandscape:
		return AspectRatioLandscape, nil
	case AspectRatioPortrait:
		return AspectRatioPortrait, nil
	}
	return "", &ValidationError{Field: "aspectRatio", Message: fmt.Sprintf("unsupported aspect ratio: %q", s)}
}

// ParseResolution は文字列を Resolution に変換します。空文字はデフォルト値になります。
func ParseResolution(s string) (Resolution, error) {
	switch Resolution(strings.TrimSpace(s)) {
	case "":
		return DefaultResolution, nil
	case Resolution720p:
		return Resolution720p, nil
	case Resolution1080p:
		return Resolution1080p, nil
	}
	return "", &ValidationError{Field: "resolution", Message: fmt.Sprintf("unsupported resolution: %q", s)}
}

// ReferenceImage は動画生成の初期フレームとして渡す参照画像です。
type ReferenceImage struct {
	Data     string `json:"data"` // base64 エンコード済みの画像データ
	MimeType string `json:"mimeType"`
}

// Bytes は base64 の画像データをデコードして返します。
func (i *ReferenceImage) Bytes() ([]byte, error) {
	data, err := base64.StdEncoding.DecodeString(i.Data)
	if err != nil {
		return nil, &ValidationError{Field: "image", Message: fmt.Sprintf("image data is not valid base64: %v", err)}
	}
	return data, nil
}

// GenerationConfig は 1 回の動画生成に必要なパラメータです。
// Generate に渡した後は変更しないでください。
type GenerationConfig struct {
	Prompt       string
	Image        *ReferenceImage
	AspectRatio  AspectRatio
	SoundEnabled bool
	Resolution   Resolution
}

// NewGenerationConfig はフォームの初期値 (16:9, 1080p, サウンドあり) で設定を作成します。
func NewGenerationConfig(prompt string) GenerationConfig {
	return GenerationConfig{
		Prompt:       prompt,
		AspectRatio:  DefaultAspectRatio,
		SoundEnabled: true,
		Resolution:   DefaultResolution,
	}
}

// Validate は設定値を検証します。
func (c GenerationConfig) Validate() error {
	if strings.TrimSpace(c.Prompt) == "" {
		return &ValidationError{Field: "prompt", Message: PromptRequiredMessage}
	}
	if c.AspectRatio != AspectRatioLandscape && c.AspectRatio != AspectRatioPortrait {
		return &ValidationError{Field: "aspectRatio", Message: fmt.Sprintf("unsupported aspect ratio: %q", c.AspectRatio)}
	}
	if c.Resolution != Resolution720p && c.Resolution != Resolution1080p {
		return &ValidationError{Field: "resolution", Message: fmt.Sprintf("unsupported resolution: %q", c.Resolution)}
	}
	if c.Image != nil {
		if c.Image.MimeType == "" {
			return &ValidationError{Field: "image", Message: "image mime type is required"}
		}
		if _, err := c.Image.Bytes(); err != nil {
			return err
		}
	}
	return nil
}

// VideoArtifact は生成された動画のバイナリです。
type VideoArtifact struct {
	Data     []byte
	MimeType string
}
