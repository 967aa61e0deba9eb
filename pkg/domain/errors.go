package domain

import (
	"errors"
	"fmt"
)

// PromptRequiredMessage はプロンプト未入力時に利用者へ表示するメッセージです。
const PromptRequiredMessage = "Please enter a prompt."

var (
	// ErrGenerationInProgress は同じジェネレーターで生成処理が実行中のときに返ります。
	ErrGenerationInProgress = errors.New("video generation is already in progress")
	// ErrPollingExhausted はポーリング上限に達しても完了しなかったときに返ります。
	ErrPollingExhausted = errors.New("video generation did not complete within the polling limit")
)

// ConfigurationError は API キーなどの必須設定が欠けている場合のエラーです。
// このエラーが返るとき、ネットワーク通信は一切行われていません。
type ConfigurationError struct {
	Message string
}

func (e *ConfigurationError) Error() string {
	return e.Message
}

// GenerationFailedError はオペレーションが完了したものの利用可能な動画 URI がない場合のエラーです。
type GenerationFailedError struct {
	Reason string
}

func (e *GenerationFailedError) Error() string {
	if e.Reason == "" {
		return "Video generation failed or the API returned no video URI."
	}
	return fmt.Sprintf("Video generation failed: %s", e.Reason)
}

// DownloadError は動画のダウンロードが成功ステータスを返さなかった場合のエラーです。
type DownloadError struct {
	StatusCode int
	Status     string
}

func (e *DownloadError) Error() string {
	return fmt.Sprintf("Failed to download video: %s", e.Status)
}

// ValidationError は入力値が不正な場合のエラーです。
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	return e.Message
}
