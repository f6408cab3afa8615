// Package metrics はPrometheusメトリクスの収集と公開を提供する。
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// MetricsCollector はメトリクス収集のインターフェース。
// 同期オーケストレータとリモートクライアントから利用する。
type MetricsCollector interface {
	RecordSyncSuccess()
	RecordSyncFailure(reason string)
	RecordRecordsUpserted(count int)
	RecordRecordsSkipped(count int)
	RecordRemoteLatency(duration time.Duration)
	RecordRemoteHTTPStatus(statusCode int)
}

// Collector はPrometheusメトリクスを収集する実装。
type Collector struct {
	syncSuccess     prometheus.Counter
	syncFail        *prometheus.CounterVec
	recordsUpserted prometheus.Counter
	recordsSkipped  prometheus.Counter
	remoteLatency   prometheus.Histogram
	remoteStatus    *prometheus.CounterVec
}

// NewCollector は新しいCollectorを生成し、指定されたレジストリにメトリクスを登録する。
func NewCollector(reg prometheus.Registerer) *Collector {
	c := &Collector{
		syncSuccess: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "dealscope_sync_success_total",
			Help: "同期実行成功の合計数",
		}),
		syncFail: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "dealscope_sync_fail_total",
			Help: "同期実行失敗の合計数（失敗理由別）",
		}, []string{"reason"}),
		recordsUpserted: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "dealscope_records_upserted_total",
			Help: "アップサートされたレコードの合計数",
		}),
		recordsSkipped: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "dealscope_records_skipped_total",
			Help: "正規化失敗でスキップされたレコードの合計数",
		}),
		remoteLatency: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "dealscope_remote_latency_seconds",
			Help:    "リモートCRM呼び出しのレイテンシ（秒）",
			Buckets: prometheus.DefBuckets,
		}),
		remoteStatus: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "dealscope_remote_http_status_total",
			Help: "リモートCRMのHTTPステータスコード別レスポンス数",
		}, []string{"status_code"}),
	}

	reg.MustRegister(
		c.syncSuccess,
		c.syncFail,
		c.recordsUpserted,
		c.recordsSkipped,
		c.remoteLatency,
		c.remoteStatus,
	)

	return c
}

// RecordSyncSuccess は同期成功を記録する。
func (c *Collector) RecordSyncSuccess() {
	c.syncSuccess.Inc()
}

// RecordSyncFailure は同期失敗を失敗理由付きで記録する。
func (c *Collector) RecordSyncFailure(reason string) {
	c.syncFail.WithLabelValues(reason).Inc()
}

// RecordRecordsUpserted はアップサートされたレコード数を記録する。
func (c *Collector) RecordRecordsUpserted(count int) {
	c.recordsUpserted.Add(float64(count))
}

// RecordRecordsSkipped はスキップされたレコード数を記録する。
func (c *Collector) RecordRecordsSkipped(count int) {
	c.recordsSkipped.Add(float64(count))
}

// RecordRemoteLatency はリモート呼び出しのレイテンシを記録する。
func (c *Collector) RecordRemoteLatency(duration time.Duration) {
	c.remoteLatency.Observe(duration.Seconds())
}

// RecordRemoteHTTPStatus はリモートCRMのHTTPステータスコードを記録する。
func (c *Collector) RecordRemoteHTTPStatus(statusCode int) {
	c.remoteStatus.WithLabelValues(strconv.Itoa(statusCode)).Inc()
}

// Handler はPrometheusスクレイプ用のHTTPハンドラーを返す。
func Handler(gatherer prometheus.Gatherer) http.Handler {
	return promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{})
}

// compile-time interface check
var _ MetricsCollector = (*Collector)(nil)
