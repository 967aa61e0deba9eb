package main

import (
	"context"
	"errors"
	"fmt"

	"github.com/shouni/go-remote-io/pkg/gcsfactory"
	"github.com/shouni/go-remote-io/pkg/remoteio"
	"github.com/shouni/go-remote-io/pkg/s3factory"
)

// storage はパスのスキーム (ローカル, gs://, s3://) に応じて remoteio の Reader/Writer を選びます。
// クラウドのクライアントは対象のパスが来たときに初めて作成します。
type storage struct {
	local     *remoteio.UniversalInputReader
	localOut  *remoteio.UniversalIOWriter
	factories map[string]remoteio.IOFactory
	newGCS    func(ctx context.Context) (remoteio.IOFactory, error)
	newS3     func(ctx context.Context) (remoteio.IOFactory, error)
}

func newStorage() *storage {
	return &storage{
		local:     remoteio.NewUniversalInputReader(nil, nil),
		localOut:  remoteio.NewUniversalIOWriter(nil, nil),
		factories: make(map[string]remoteio.IOFactory),
		newGCS:    gcsfactory.New,
		newS3:     s3factory.New,
	}
}

func (s *storage) factory(ctx context.Context, path string) (remoteio.IOFactory, error) {
	var (
		scheme string
		create func(ctx context.Context) (remoteio.IOFactory, error)
	)
	switch {
	case remoteio.IsGCSURI(path):
		scheme, create = "gs", s.newGCS
	case remoteio.IsS3URI(path):
		scheme, create = "s3", s.newS3
	default:
		return nil, nil
	}

	if f, ok := s.factories[scheme]; ok {
		return f, nil
	}
	f, err := create(ctx)
	if err != nil {
		return nil, fmt.Errorf("%s クライアントの初期化に失敗しました: %w", scheme, err)
	}
	s.factories[scheme] = f
	return f, nil
}

// Reader は path を読むための InputReader を返します。
func (s *storage) Reader(ctx context.Context, path string) (remoteio.InputReader, error) {
	f, err := s.factory(ctx, path)
	if err != nil || f == nil {
		return s.local, err
	}
	return f.InputReader()
}

// Writer は path に書き込むための OutputWriter を返します。
func (s *storage) Writer(ctx context.Context, path string) (remoteio.OutputWriter, error) {
	f, err := s.factory(ctx, path)
	if err != nil || f == nil {
		return s.localOut, err
	}
	return f.OutputWriter()
}

// Close は作成したクラウドクライアントをすべて閉じます。
func (s *storage) Close() error {
	var errs []error
	for _, f := range s.factories {
		errs = append(errs, f.Close())
	}
	return errors.Join(errs...)
}
