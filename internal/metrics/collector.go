// Package metrics provides internal metrics collection.
// This package is internal and should not be imported by external projects.
package metrics

import (
	"context"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
)

// =============================================================================
// 📊 指标收集器
// =============================================================================

// Collector 指标收集器
type Collector struct {
	// 流水线指标
	stepsTotal   *prometheus.CounterVec
	stepRetries  *prometheus.CounterVec
	stepDuration *prometheus.HistogramVec
	runsTotal    *prometheus.CounterVec

	// 定位指标
	locateTotal     *prometheus.CounterVec
	locateDuration  *prometheus.HistogramVec
	deviationPixels prometheus.Histogram
	trustTotal      *prometheus.CounterVec

	// 注入指标
	fieldsTotal *prometheus.CounterVec

	// 记录 API 指标
	recordRequestsTotal *prometheus.CounterVec

	logger *zap.Logger
}

// NewCollector 创建指标收集器
func NewCollector(namespace string, logger *zap.Logger) *Collector {
	if logger == nil {
		logger = zap.NewNop()
	}
	c := &Collector{
		logger: logger.With(zap.String("component", "metrics")),
	}

	// 流水线指标
	c.stepsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "pipeline_steps_total",
			Help:      "Total number of pipeline steps executed",
		},
		[]string{"action", "status"},
	)

	c.stepRetries = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "pipeline_step_retries_total",
			Help:      "Total number of step retries",
		},
		[]string{"step"},
	)

	c.stepDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "pipeline_step_duration_seconds",
			Help:      "Step duration in seconds",
			Buckets:   []float64{0.5, 1, 2, 5, 10, 30, 60, 120},
		},
		[]string{"action"},
	)

	c.runsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "pipeline_runs_total",
			Help:      "Total number of pipeline runs",
		},
		[]string{"state"},
	)

	// 定位指标
	c.locateTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "locate_requests_total",
			Help:      "Total number of vision locate requests",
		},
		[]string{"status"},
	)

	c.locateDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "locate_duration_seconds",
			Help:      "Vision locate duration in seconds",
			Buckets:   []float64{0.5, 1, 2, 5, 10, 30, 60},
		},
		[]string{"status"},
	)

	c.deviationPixels = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "reconcile_deviation_pixels",
			Help:      "Deviation between vision estimate and anchor in logical pixels",
			Buckets:   []float64{5, 10, 25, 50, 100, 150, 300, 600},
		},
	)

	c.trustTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "reconcile_trust_total",
			Help:      "Resolved points by trust classification",
		},
		[]string{"trust"},
	)

	// 注入指标
	c.fieldsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "inject_fields_total",
			Help:      "Injected fields by outcome",
		},
		[]string{"status"},
	)

	// 记录 API 指标
	c.recordRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "record_api_requests_total",
			Help:      "Record API requests by outcome",
		},
		[]string{"status"},
	)

	return c
}

// =============================================================================
// 📈 记录方法
// =============================================================================

// RecordStep 记录一次步骤执行
func (c *Collector) RecordStep(action, status string, duration time.Duration) {
	c.stepsTotal.WithLabelValues(action, status).Inc()
	c.stepDuration.WithLabelValues(action).Observe(duration.Seconds())
}

// RecordRetry 记录一次步骤重试
func (c *Collector) RecordRetry(step string) {
	c.stepRetries.WithLabelValues(step).Inc()
}

// RecordRun 记录一次流水线运行结果
func (c *Collector) RecordRun(state string) {
	c.runsTotal.WithLabelValues(state).Inc()
}

// RecordLocate 记录一次视觉定位
func (c *Collector) RecordLocate(status string, duration time.Duration) {
	c.locateTotal.WithLabelValues(status).Inc()
	c.locateDuration.WithLabelValues(status).Observe(duration.Seconds())
}

// RecordReconcile 记录一次仲裁结果
func (c *Collector) RecordReconcile(trust string, deviationPx float64) {
	c.trustTotal.WithLabelValues(trust).Inc()
	if deviationPx > 0 {
		c.deviationPixels.Observe(deviationPx)
	}
}

// RecordField 记录一个注入字段的结果
func (c *Collector) RecordField(status string) {
	c.fieldsTotal.WithLabelValues(status).Inc()
}

// RecordAPIRequest 记录一次记录 API 请求
func (c *Collector) RecordAPIRequest(status string) {
	c.recordRequestsTotal.WithLabelValues(status).Inc()
}

// =============================================================================
// 🌐 指标服务
// =============================================================================

// Serve 在 addr 上暴露 /metrics，阻塞直到 ctx 取消或服务出错
func (c *Collector) Serve(ctx context.Context, addr string) error {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	srv := &http.Server{Addr: addr, Handler: mux}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
		defer cancel()
		srv.Shutdown(shutdownCtx)
	}()

	c.logger.Info("metrics listener started", zap.String("addr", addr))
	if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return err
	}
	return nil
}
