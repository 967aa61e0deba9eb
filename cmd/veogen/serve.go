package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/pflag"

	"github.com/shouni/gemini-video-kit/internal/server"
)

const shutdownTimeout = 30 * time.Second

func runServe(ctx context.Context, args []string, stderr io.Writer) error {
	fs := pflag.NewFlagSet("serve", pflag.ContinueOnError)
	fs.SetOutput(stderr)
	fs.String("addr", ":8080", "listen address")
	addCommonFlags(fs)
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
	if cfg.APIKey == "" {
		slog.Warn("API キーが設定されていません。生成リクエストは設定エラーになります")
	}

	reg := prometheus.NewRegistry()
	gen, err := newGenerator(cfg, reg)
	if err != nil {
		return err
	}

	api, err := server.New(gen, server.Options{
		GenerationTimeout: cfg.GenerationTimeout,
		MaxImageSize:      cfg.Server.MaxImageSize,
		CompressImage:     cfg.Image.Compress,
		ImageQuality:      cfg.Image.Quality,
		Gatherer:          reg,
	})
	if err != nil {
		return err
	}

	// 生成は数分かかるため WriteTimeout は設定しない
	srv := &http.Server{
		Addr:        cfg.Server.Address,
		Handler:     api.Handler(),
		ReadTimeout: cfg.Server.ReadTimeout,
		IdleTimeout: cfg.Server.IdleTimeout,
	}

	errCh := make(chan error, 1)
	go func() {
		slog.Info("サーバーを起動します", "addr", srv.Addr, "model", cfg.Model)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err, ok := <-errCh:
		if ok {
			return fmt.Errorf("listen: %w", err)
		}
		return nil
	case <-ctx.Done():
	}

	slog.Info("サーバーを停止します")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutdown: %w", err)
	}
	return nil
}
