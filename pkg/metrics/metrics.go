// Package metrics は動画生成処理の Prometheus メトリクスを提供します。
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics は generator.Recorder を実装するメトリクス一式です。
type Metrics struct {
	GenerationsTotal   *prometheus.CounterVec
	GenerationDuration *prometheus.HistogramVec
	PollsTotal         prometheus.Counter
}

// New は reg にメトリクスを登録して Metrics を作成します。reg が nil の場合はデフォルトレジストリを使います。
func New(namespace string, reg prometheus.Registerer) *Metrics {
	if namespace == "" {
		namespace = "veo"
	}
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	factory := promauto.With(reg)

	return &Metrics{
		GenerationsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "generation",
				Name:      "requests_total",
				Help:      "Total number of video generation calls by outcome",
			},
			[]string{"outcome"},
		),
		GenerationDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Subsystem: "generation",
				Name:      "duration_seconds",
				Help:      "Video generation duration in seconds",
				Buckets:   []float64{1, 10, 30, 60, 120, 180, 300, 600, 1200},
			},
			[]string{"outcome"},
		),
		PollsTotal: factory.NewCounter(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "generation",
				Name:      "status_polls_total",
				Help:      "Total number of operation status queries",
			},
		),
	}
}

// ObserveGeneration は生成 1 回分の結果と所要時間を記録します。
func (m *Metrics) ObserveGeneration(outcome string, d time.Duration) {
	m.GenerationsTotal.WithLabelValues(outcome).Inc()
	m.GenerationDuration.WithLabelValues(outcome).Observe(d.Seconds())
}

// ObservePoll は状態確認 1 回を記録します。
func (m *Metrics) ObservePoll() {
	m.PollsTotal.Inc()
}
