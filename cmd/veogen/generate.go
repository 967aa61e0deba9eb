package main

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/shouni/go-remote-io/pkg/remoteio"
	"github.com/spf13/pflag"

	"github.com/shouni/gemini-video-kit/internal/server"
	"github.com/shouni/gemini-video-kit/pkg/domain"
	"github.com/shouni/gemini-video-kit/pkg/generator"
	"github.com/shouni/gemini-video-kit/pkg/imgutil"
)

const defaultOutput = "veo_output.mp4"

// generateFlags は generate サブコマンド固有の入力です。
type generateFlags struct {
	prompt      string
	imagePath   string
	aspectRatio string
	resolution  string
	sound       bool
	output      string
}

func newGenerateFlagSet(f *generateFlags) *pflag.FlagSet {
	fs := pflag.NewFlagSet("generate", pflag.ContinueOnError)
	fs.StringVarP(&f.prompt, "prompt", "p", "", "text prompt describing the video")
	fs.StringVarP(&f.imagePath, "image", "i", "", "optional reference image (local path, gs:// or s3://) used as the first frame")
	fs.StringVar(&f.aspectRatio, "aspect-ratio", string(domain.DefaultAspectRatio), "16:9 or 9:16")
	fs.StringVar(&f.resolution, "resolution", string(domain.DefaultResolution), "720p or 1080p")
	fs.BoolVar(&f.sound, "sound", true, "request generated audio")
	fs.StringVarP(&f.output, "output", "o", defaultOutput, "output path (local, gs:// or s3://)")
	addCommonFlags(fs)
	return fs
}

// buildGenerationConfig はフラグから GenerationConfig を組み立てます。参照画像は reader から読み込みます。
func buildGenerationConfig(ctx context.Context, reader remoteio.InputReader, f generateFlags, compress bool, quality int) (domain.GenerationConfig, error) {
	cfg := domain.NewGenerationConfig(f.prompt)
	cfg.SoundEnabled = f.sound

	aspect, err := domain.ParseAspectRatio(f.aspectRatio)
	if err != nil {
		return cfg, err
	}
	cfg.AspectRatio = aspect

	res, err := domain.ParseResolution(f.resolution)
	if err != nil {
		return cfg, err
	}
	cfg.Resolution = res

	if f.imagePath != "" {
		data, err := readAll(ctx, reader, f.imagePath)
		if err != nil {
			return cfg, fmt.Errorf("参照画像の読み込みに失敗しました: %w", err)
		}
		img, err := imgutil.NewReferenceImage(data, compress, quality)
		if err != nil {
			return cfg, err
		}
		cfg.Image = img
	}
	return cfg, nil
}

func runGenerate(ctx context.Context, args []string, stderr io.Writer) error {
	var f generateFlags
	fs := newGenerateFlagSet(&f)
	fs.SetOutput(stderr)
	if err := fs.Parse(args); err != nil {
		if errors.Is(err, pflag.ErrHelp) {
			return nil
		}
		return err
	}

	cfg, err := loadConfig(fs, stderr)
	if err != nil {
		return err
	}

	gen, err := newGenerator(cfg, prometheus.NewRegistry())
	if err != nil {
		return err
	}

	store := newStorage()
	defer func() {
		if err := store.Close(); err != nil {
			slog.Warn("ストレージクライアントのクローズに失敗しました", "error", err)
		}
	}()

	var reader remoteio.InputReader
	if f.imagePath != "" {
		if reader, err = store.Reader(ctx, f.imagePath); err != nil {
			return err
		}
	}
	genCfg, err := buildGenerationConfig(ctx, reader, f, cfg.Image.Compress, cfg.Image.Quality)
	if err != nil {
		return err
	}

	writer, err := store.Writer(ctx, f.output)
	if err != nil {
		return err
	}

	if cfg.GenerationTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, cfg.GenerationTimeout)
		defer cancel()
	}

	return generateToOutput(ctx, gen, genCfg, writer, f.output)
}

func readAll(ctx context.Context, reader remoteio.InputReader, path string) ([]byte, error) {
	rc, err := reader.Open(ctx, path)
	if err != nil {
		return nil, err
	}
	defer rc.Close()
	return io.ReadAll(rc)
}

// generateToOutput は動画を生成して path (ローカル, gs://, s3://) に書き出します。
func generateToOutput(ctx context.Context, gen generator.VideoGenerator, cfg domain.GenerationConfig, writer remoteio.OutputWriter, path string) error {
	slog.InfoContext(ctx, server.MsgPreparing)
	artifact, err := gen.Generate(ctx, cfg, func(msg string) {
		slog.InfoContext(ctx, msg)
	})
	if err != nil {
		return err
	}

	if err := writer.Write(ctx, path, bytes.NewReader(artifact.Data), artifact.MimeType); err != nil {
		return fmt.Errorf("動画ファイルの書き込みに失敗しました: %w", err)
	}
	slog.InfoContext(ctx, "動画を保存しました", "path", path, "bytes", len(artifact.Data), "mime_type", artifact.MimeType)
	return nil
}
