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
// サービス層とミドルウェアから利用する。
type MetricsCollector interface {
	RecordSubmission(duplicate bool)
	RecordRateLimited(scope string)
	RecordModerationAction(action string)
	RecordAuditLogFailure()
	RecordHTTPRequest(method, route string, statusCode int, duration time.Duration)
}

// Collector はPrometheusメトリクスを収集する実装。
type Collector struct {
	submissions       *prometheus.CounterVec
	rateLimited       *prometheus.CounterVec
	moderationActions *prometheus.CounterVec
	auditLogFailures  prometheus.Counter
	requestDuration   *prometheus.HistogramVec
}

// NewCollector は新しいCollectorを生成し、指定されたレジストリにメトリクスを登録する。
func NewCollector(reg prometheus.Registerer) *Collector {
	c := &Collector{
		submissions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "brightpearl_reports_submitted_total",
			Help: "受け付けた通報の合計数（new: 新規, duplicate: 重複による加算）",
		}, []string{"result"}),
		rateLimited: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "brightpearl_rate_limited_total",
			Help: "レート制限により拒否したリクエスト数",
		}, []string{"scope"}),
		moderationActions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "brightpearl_moderation_actions_total",
			Help: "モデレーター操作の合計数",
		}, []string{"action"}),
		auditLogFailures: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "brightpearl_audit_log_failures_total",
			Help: "監査ログの書き込みに失敗した回数",
		}),
		requestDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "brightpearl_http_request_duration_seconds",
			Help:    "HTTPリクエストの処理時間（秒）",
			Buckets: prometheus.DefBuckets,
		}, []string{"method", "route", "status"}),
	}

	reg.MustRegister(
		c.submissions,
		c.rateLimited,
		c.moderationActions,
		c.auditLogFailures,
		c.requestDuration,
	)

	return c
}

// RecordSubmission は通報の受付を記録する。
func (c *Collector) RecordSubmission(duplicate bool) {
	result := "new"
	if duplicate {
		result = "duplicate"
	}
	c.submissions.WithLabelValues(result).Inc()
}

// RecordRateLimited はレート制限による拒否を記録する。
func (c *Collector) RecordRateLimited(scope string) {
	c.rateLimited.WithLabelValues(scope).Inc()
}

// RecordModerationAction はモデレーター操作を記録する。
func (c *Collector) RecordModerationAction(action string) {
	c.moderationActions.WithLabelValues(action).Inc()
}

// RecordAuditLogFailure は監査ログの書き込み失敗を記録する。
func (c *Collector) RecordAuditLogFailure() {
	c.auditLogFailures.Inc()
}

// RecordHTTPRequest はHTTPリクエストの処理時間を記録する。
// route はchiのルートパターンを渡し、ラベルの種類が増えすぎないようにする。
func (c *Collector) RecordHTTPRequest(method, route string, statusCode int, duration time.Duration) {
	c.requestDuration.WithLabelValues(method, route, strconv.Itoa(statusCode)).Observe(duration.Seconds())
}

// Nop は何も記録しない MetricsCollector の実装。
type Nop struct{}

func (Nop) RecordSubmission(bool)                                {}
func (Nop) RecordRateLimited(string)                             {}
func (Nop) RecordModerationAction(string)                        {}
func (Nop) RecordAuditLogFailure()                               {}
func (Nop) RecordHTTPRequest(string, string, int, time.Duration) {}

var (
	_ MetricsCollector = (*Collector)(nil)
	_ MetricsCollector = Nop{}
)

// Handler はPrometheusスクレイプ用のHTTPハンドラーを返す。
func Handler(gatherer prometheus.Gatherer) http.Handler {
	return promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{})
}
