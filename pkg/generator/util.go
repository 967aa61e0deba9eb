package generator

import (
	"context"
	"errors"
	"fmt"
	"net/url"

	"github.com/shouni/gemini-video-kit/pkg/domain"
	"google.golang.org/genai"
)

// withAPIKey はダウンロード URI に API キーをクエリパラメータとして付与します。
// 既存のクエリパラメータ (alt=media など) は保持されます。
func withAPIKey(rawURI, apiKey string) (string, error) {
	u, err := url.Parse(rawURI)
	if err != nil {
		return "", fmt.Errorf("ダウンロードURIのパース失敗: %w", err)
	}
	q := u.Query()
	q.Set(apiKeyQueryParam, apiKey)
	u.RawQuery = q.Encode()
	return u.String(), nil
}

// extractVideoURI は完了したオペレーションから最初の動画の URI を取り出します。
// 結果の構造が欠けている場合は GenerationFailedError を返します。
func extractVideoURI(op *genai.GenerateVideosOperation) (string, error) {
	if op.Error != nil {
		return "", &domain.GenerationFailedError{Reason: operationErrorMessage(op.Error)}
	}
	if op.Response == nil || len(op.Response.GeneratedVideos) == 0 {
		return "", &domain.GenerationFailedError{}
	}
	video := op.Response.GeneratedVideos[0]
	if video == nil || video.Video == nil || video.Video.URI == "" {
		return "", &domain.GenerationFailedError{}
	}
	return video.Video.URI, nil
}

func operationErrorMessage(opErr map[string]any) string {
	if msg, ok := opErr["message"].(string); ok && msg != "" {
		return msg
	}
	return fmt.Sprintf("%v", opErr)
}

// outcomeOf はエラーをメトリクス用の分類に変換します。
func outcomeOf(err error) string {
	var (
		cfgErr *domain.ConfigurationError
		valErr *domain.ValidationError
		genErr *domain.GenerationFailedError
		dlErr  *domain.DownloadError
	)
	switch {
	case err == nil:
		return OutcomeSuccess
	case errors.As(err, &cfgErr):
		return OutcomeConfigurationError
	case errors.As(err, &valErr):
		return OutcomeValidationError
	case errors.Is(err, domain.ErrGenerationInProgress):
		return OutcomeInProgress
	case errors.As(err, &genErr), errors.Is(err, domain.ErrPollingExhausted):
		return OutcomeGenerationFailed
	case errors.As(err, &dlErr):
		return OutcomeDownloadError
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return OutcomeCanceled
	default:
		return OutcomeError
	}
}
