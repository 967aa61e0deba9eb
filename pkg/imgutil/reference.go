package imgutil

import (
	"encoding/base64"
	"fmt"
	"net/http"
	"strings"

	"github.com/shouni/gemini-video-kit/pkg/domain"
)

// DefaultCompressionQuality は参照画像を JPEG に再エンコードするときの品質です。
const DefaultCompressionQuality = 75

// NewReferenceImage は画像のバイト列から MIME タイプを判定し、動画生成用の参照画像を作成します。
// compress が true の場合は JPEG に圧縮してから格納します。
func NewReferenceImage(data []byte, compress bool, quality int) (*domain.ReferenceImage, error) {
	if len(data) == 0 {
		return nil, &domain.ValidationError{Field: "image", Message: "image data cannot be empty"}
	}

	mimeType := http.DetectContentType(data)
	if !strings.HasPrefix(mimeType, "image/") {
		return nil, &domain.ValidationError{Field: "image", Message: fmt.Sprintf("unsupported image type: %s", mimeType)}
	}

	if compress {
		if quality <= 0 {
			quality = DefaultCompressionQuality
		}
		compressed, err := CompressToJPEG(data, quality)
		if err != nil {
			return nil, fmt.Errorf("参照画像の圧縮に失敗しました: %w", err)
		}
		data = compressed
		mimeType = "image/jpeg"
	}

	return &domain.ReferenceImage{
		Data:     base64.StdEncoding.EncodeToString(data),
		MimeType: mimeType,
	}, nil
}
