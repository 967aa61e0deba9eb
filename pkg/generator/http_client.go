package generator

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"github.com/shouni/gemini-video-kit/pkg/domain"
	"github.com/shouni/go-http-kit/pkg/httpkit"
)

const defaultDownloadTimeout = 5 * time.Minute

// DownloadClient は生成済み動画を取得する HTTPClient の実装です。
// 成功以外のステータスは domain.DownloadError として返します。リトライは行いません。
type DownloadClient struct {
	client   *httpkit.Client
	checkURL bool
}

// NewDownloadClient は httpkit.Client を使う DownloadClient を作成します。
// デフォルトでは接続のたびに (リダイレクト先も含めて) 接続先 IP を検証する安全なトランスポートを使います。
// opts はリトライ無効化の後に適用されます。
func NewDownloadClient(timeout time.Duration, opts ...httpkit.ClientOption) *DownloadClient {
	if timeout <= 0 {
		timeout = defaultDownloadTimeout
	}
	options := append([]httpkit.ClientOption{httpkit.WithMaxRetries(0)}, opts...)
	client := httpkit.New(timeout, options...)
	return &DownloadClient{
		client:   client,
		checkURL: !client.SkipNetworkValidation,
	}
}

// FetchVideo は rawURL を GET し、レスポンスボディと Content-Type を返します。
func (d *DownloadClient) FetchVideo(ctx context.Context, rawURL string) ([]byte, string, error) {
	if d.checkURL {
		safe, err := d.client.IsSafeURL(rawURL)
		if err == nil && !safe {
			err = errors.New("restricted destination")
		}
		if err != nil {
			return nil, "", fmt.Errorf("安全ではないURLが指定されました (%s): %w", redactURL(rawURL), stripURL(err))
		}
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return nil, "", fmt.Errorf("リクエスト作成失敗 (%s): %w", redactURL(rawURL), err)
	}

	resp, err := d.client.Do(req)
	if err != nil {
		return nil, "", fmt.Errorf("GET %s: %w", redactURL(rawURL), stripURL(err))
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, httpkit.MaxBodyDisplaySize))
		return nil, "", &domain.DownloadError{StatusCode: resp.StatusCode, Status: resp.Status}
	}

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, "", fmt.Errorf("レスポンスボディの読み込みに失敗しました: %w", err)
	}
	return data, resp.Header.Get("Content-Type"), nil
}

// stripURL は url.Error が保持する (API キーを含む) URL を取り除きます。
func stripURL(err error) error {
	var urlErr *url.Error
	if errors.As(err, &urlErr) {
		return urlErr.Err
	}
	return err
}

// redactURL はログやエラーに出力するため API キーを伏せた URL を返します。
func redactURL(rawURL string) string {
	u, err := url.Parse(rawURL)
	if err != nil {
		return "<invalid url>"
	}
	q := u.Query()
	if q.Has(apiKeyQueryParam) {
		q.Set(apiKeyQueryParam, "REDACTED")
		u.RawQuery = q.Encode()
	}
	return u.String()
}
