package coordinator

import (
	"github.com/prometheus/client_golang/prometheus"
)

var (
	// RefreshTotal 各资源的刷新次数，按结果分类
	RefreshTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "tesbridge_refresh_total",
			Help: "Total number of coordinator refreshes by outcome.",
		},
		[]string{"kind", "id", "outcome"},
	)

	// RefreshDuration 一次拉取的耗时
	RefreshDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "tesbridge_refresh_duration_seconds",
			Help:    "Latency of coordinator fetches against Teslemetry.",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"kind"},
	)

	// UpdateIntervalSeconds 当前轮询间隔
	UpdateIntervalSeconds = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "tesbridge_update_interval_seconds",
			Help: "Current polling interval of each coordinator.",
		},
		[]string{"kind", "id"},
	)
)

func init() {
	prometheus.MustRegister(RefreshTotal)
	prometheus.MustRegister(RefreshDuration)
	prometheus.MustRegister(UpdateIntervalSeconds)
}
