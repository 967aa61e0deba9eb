package generator

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/shouni/gemini-video-kit/pkg/domain"
	"google.golang.org/genai"
)

// Poller は固定間隔でオペレーションの状態を確認し、完了まで待機します。
// バックオフやジッターは行いません。
type Poller struct {
	service     VideoService
	interval    time.Duration
	maxAttempts int
	recorder    Recorder
	wait        func(ctx context.Context, d time.Duration) error
}

// NewPoller は Poller を初期化します。maxAttempts が 0 の場合は無制限にポーリングします。
func NewPoller(service VideoService, interval time.Duration, maxAttempts int) *Poller {
	if interval <= 0 {
		interval = DefaultPollInterval
	}
	return &Poller{
		service:     service,
		interval:    interval,
		maxAttempts: maxAttempts,
		recorder:    noopRecorder{},
		wait:        sleepContext,
	}
}

// AwaitCompletion は op が done になるまで状態確認を繰り返し、完了したオペレーションを返します。
// 受け取ったハンドルが既に完了している場合は一度も問い合わせません。
func (p *Poller) AwaitCompletion(ctx context.Context, op *genai.GenerateVideosOperation, onProgress ProgressFunc) (*genai.GenerateVideosOperation, error) {
	if op == nil {
		return nil, fmt.Errorf("operation handle is required")
	}
	if onProgress == nil {
		onProgress = func(string) {}
	}

	attempts := 0
	for !op.Done {
		if p.maxAttempts > 0 && attempts >= p.maxAttempts {
			return nil, fmt.Errorf("%w (attempts: %d)", domain.ErrPollingExhausted, attempts)
		}

		if err := p.wait(ctx, p.interval); err != nil {
			return nil, err
		}

		onProgress(MsgPolling)
		attempts++
		p.recorder.ObservePoll()

		next, err := p.service.GetVideosOperation(ctx, op)
		if err != nil {
			return nil, fmt.Errorf("オペレーション状態の取得に失敗しました: %w", err)
		}
		if next == nil {
			return nil, fmt.Errorf("オペレーション状態の取得結果が空でした (operation: %s)", op.Name)
		}
		op = next

		slog.DebugContext(ctx, "オペレーション状態を確認しました", "operation", op.Name, "done", op.Done, "attempt", attempts)
	}

	return op, nil
}

// sleepContext は d だけ待機します。ctx がキャンセルされた場合は即座に戻ります。
func sleepContext(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
