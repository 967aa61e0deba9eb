package generator

import "time"

const (
	DefaultModel        = "veo-3.0-generate-preview"
	DefaultPollInterval = 10 * time.Second

	numberOfVideos       = 1
	apiKeyQueryParam     = "key"
	defaultVideoMimeType = "video/mp4"
)

// 進捗メッセージ
const (
	MsgInitializing = "Initializing video generation..."
	MsgSubmitted    = "Video synthesis started... This may take several minutes."
	MsgPolling      = "Checking generation status..."
	MsgFinalizing   = "Finalizing video..."
	MsgDownloading  = "Downloading generated video..."
	MsgComplete     = "Generation complete!"
)

// 生成結果の分類 (メトリクスのラベル)
const (
	OutcomeSuccess            = "success"
	OutcomeConfigurationError = "configuration_error"
	OutcomeValidationError    = "validation_error"
	OutcomeInProgress         = "in_progress"
	OutcomeGenerationFailed   = "generation_failed"
	OutcomeDownloadError      = "download_error"
	OutcomeCanceled           = "canceled"
	OutcomeError              = "error"
)

// Options は VeoGenerator の任意設定です。ゼロ値はデフォルト値として扱われます。
type Options struct {
	Model           string
	PollInterval    time.Duration
	MaxPollAttempts int // 0 は無制限
	Recorder        Recorder
}

type noopRecorder struct{}

func (noopRecorder) ObserveGeneration(string, time.Duration) {}
func (noopRecorder) ObservePoll()                            {}
