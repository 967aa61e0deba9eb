// veogen はテキストプロンプトと任意の参照画像から Veo で動画を生成するコマンドです。
//
//	veogen generate --prompt "..." [--image ref.png] [--output veo_output.mp4]
//	veogen serve [--addr :8080]
package main

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/pflag"

	"github.com/shouni/gemini-video-kit/internal/config"
	"github.com/shouni/gemini-video-kit/pkg/generator"
	"github.com/shouni/gemini-video-kit/pkg/metrics"
)

const envFile = ".env"

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, os.Args[1:], os.Stderr); err != nil {
		slog.Error("veogen failed", "error", err)
		stop()
		os.Exit(1)
	}
}

func run(ctx context.Context, args []string, stderr io.Writer) error {
	if len(args) == 0 {
		usage(stderr)
		return fmt.Errorf("subcommand is required")
	}

	switch args[0] {
	case "generate":
		return runGenerate(ctx, args[1:], stderr)
	case "serve":
		return runServe(ctx, args[1:], stderr)
	case "-h", "--help", "help":
		usage(stderr)
		return nil
	default:
		usage(stderr)
		return fmt.Errorf("unknown subcommand: %q", args[0])
	}
}

func usage(w io.Writer) {
	fmt.Fprintln(w, "usage: veogen <generate|serve> [flags]")
}

// addCommonFlags は両サブコマンドで共通のフラグを登録します。
func addCommonFlags(fs *pflag.FlagSet) {
	fs.String("model", generator.DefaultModel, "Veo model name")
	fs.Duration("poll-interval", generator.DefaultPollInterval, "delay between status queries")
	fs.Int("max-poll-attempts", 0, "maximum status queries (0 = unbounded)")
	fs.Duration("generation-timeout", 0, "overall timeout per generation (0 = none)")
	fs.Bool("compress-image", false, "re-encode the reference image as JPEG")
	fs.String("log-level", "info", "log level (debug, info, warn, error)")
	fs.String("log-format", "text", "log format (text, json)")
}

// loadConfig は設定を読み込み、ロガーを差し替えます。
func loadConfig(fs *pflag.FlagSet, stderr io.Writer) (*config.Config, error) {
	cfg, err := config.Load(envFile, fs)
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}
	slog.SetDefault(newLogger(cfg.Log, stderr))
	return cfg, nil
}

// newGenerator は本番用の依存関係を組み立てます。
func newGenerator(cfg *config.Config, reg prometheus.Registerer) (*generator.VeoGenerator, error) {
	service := generator.NewGenAIVideoService(cfg.APIKey, nil)
	downloader := generator.NewDownloadClient(cfg.DownloadTimeout)

	return generator.NewVeoGenerator(service, downloader, cfg.APIKey, generator.Options{
		Model:           cfg.Model,
		PollInterval:    cfg.PollInterval,
		MaxPollAttempts: cfg.MaxPollAttempts,
		Recorder:        metrics.New("veo", reg),
	})
}
