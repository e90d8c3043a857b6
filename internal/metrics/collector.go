// Package metrics provides internal metrics collection.
// This package is internal and should not be imported by external projects.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"go.uber.org/zap"
)

// =============================================================================
// 📊 指标收集器
// =============================================================================

// Collector 指标收集器
type Collector struct {
	// HTTP 指标
	httpRequestsTotal   *prometheus.CounterVec
	httpRequestDuration *prometheus.HistogramVec
	httpRequestSize     *prometheus.HistogramVec
	httpResponseSize    *prometheus.HistogramVec

	// 检索指标
	retrievalDuration *prometheus.HistogramVec
	retrievedChunks   *prometheus.HistogramVec

	// 生成指标
	answerRequestsTotal *prometheus.CounterVec
	answerDuration      *prometheus.HistogramVec

	// 管线指标
	pipelineFailures *prometheus.CounterVec

	// 索引指标
	indexRecords       *prometheus.GaugeVec
	indexBuildDuration *prometheus.HistogramVec

	logger *zap.Logger
}

// NewCollector 创建指标收集器
func NewCollector(namespace string, logger *zap.Logger) *Collector {
	c := &Collector{
		logger: logger.With(zap.String("component", "metrics")),
	}

	// HTTP 指标
	c.httpRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "http_requests_total",
			Help:      "Total number of HTTP requests",
		},
		[]string{"method", "path", "status"},
	)

	c.httpRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "http_request_duration_seconds",
			Help:      "HTTP request duration in seconds",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"method", "path"},
	)

	c.httpRequestSize = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "http_request_size_bytes",
			Help:      "HTTP request size in bytes",
			Buckets:   prometheus.ExponentialBuckets(100, 10, 8),
		},
		[]string{"method", "path"},
	)

	c.httpResponseSize = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "http_response_size_bytes",
			Help:      "HTTP response size in bytes",
			Buckets:   prometheus.ExponentialBuckets(100, 10, 8),
		},
		[]string{"method", "path"},
	)

	// 检索指标
	c.retrievalDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "retrieval_duration_seconds",
			Help:      "Vector retrieval duration in seconds",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"collection"},
	)

	c.retrievedChunks = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "retrieved_chunks",
			Help:      "Number of chunks returned per retrieval",
			Buckets:   []float64{0, 1, 2, 3, 5, 8, 13, 21},
		},
		[]string{"collection"},
	)

	// 生成指标
	c.answerRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "answer_requests_total",
			Help:      "Total number of answer generation requests",
		},
		[]string{"model", "status"},
	)

	c.answerDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "answer_generation_duration_seconds",
			Help:      "Answer generation duration in seconds",
			Buckets:   []float64{0.1, 0.5, 1, 2, 5, 10, 30, 60},
		},
		[]string{"model"},
	)

	// 管线指标
	c.pipelineFailures = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "pipeline_failures_total",
			Help:      "Total number of pipeline failures by stage",
		},
		[]string{"stage"},
	)

	// 索引指标
	c.indexRecords = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "index_records",
			Help:      "Number of records in the vector index",
		},
		[]string{"collection"},
	)

	c.indexBuildDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "index_build_duration_seconds",
			Help:      "Corpus index build duration in seconds",
			Buckets:   []float64{1, 5, 15, 30, 60, 120, 300, 600},
		},
		[]string{"collection"},
	)

	logger.Info("metrics collector initialized", zap.String("namespace", namespace))

	return c
}

// =============================================================================
// 🎯 HTTP 指标记录
// =============================================================================

// RecordHTTPRequest 记录 HTTP 请求
func (c *Collector) RecordHTTPRequest(method, path string, status int, duration time.Duration, requestSize, responseSize int64) {
	c.httpRequestsTotal.WithLabelValues(method, path, statusCode(status)).Inc()
	c.httpRequestDuration.WithLabelValues(method, path).Observe(duration.Seconds())
	c.httpRequestSize.WithLabelValues(method, path).Observe(float64(requestSize))
	c.httpResponseSize.WithLabelValues(method, path).Observe(float64(responseSize))
}

// =============================================================================
// 🔍 检索指标记录
// =============================================================================

// RecordRetrieval 记录一次向量检索
func (c *Collector) RecordRetrieval(collection string, chunks int, duration time.Duration) {
	c.retrievalDuration.WithLabelValues(collection).Observe(duration.Seconds())
	c.retrievedChunks.WithLabelValues(collection).Observe(float64(chunks))
}

// =============================================================================
// 🤖 生成指标记录
// =============================================================================

// RecordAnswer 记录一次回答生成
func (c *Collector) RecordAnswer(model, status string, duration time.Duration) {
	c.answerRequestsTotal.WithLabelValues(model, status).Inc()
	c.answerDuration.WithLabelValues(model).Observe(duration.Seconds())
}

// RecordPipelineFailure 记录管线失败
func (c *Collector) RecordPipelineFailure(stage string) {
	c.pipelineFailures.WithLabelValues(stage).Inc()
}

// =============================================================================
// 📚 索引指标记录
// =============================================================================

// RecordIndexBuild 记录索引构建
func (c *Collector) RecordIndexBuild(collection string, records int, duration time.Duration) {
	c.indexRecords.WithLabelValues(collection).Set(float64(records))
	c.indexBuildDuration.WithLabelValues(collection).Observe(duration.Seconds())
}

// =============================================================================
// 🔧 辅助函数
// =============================================================================

// statusCode 将 HTTP 状态码转换为字符串
func statusCode(code int) string {
	switch {
	case code >= 200 && code < 300:
		return "2xx"
	case code >= 300 && code < 400:
		return "3xx"
	case code >= 400 && code < 500:
		return "4xx"
	case code >= 500:
		return "5xx"
	default:
		return "unknown"
	}
}
