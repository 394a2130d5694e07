package diag

import (
	"github.com/prometheus/client_golang/prometheus"
)

// 进程内私有注册表；--metrics-file 时以 textfile 格式导出。
// - bookchop_op_total{comp,stage,result}
// - bookchop_error_total{comp,code}
// - bookchop_op_duration_ms{comp,stage}
// - bookchop_chunks_emitted_total
// - bookchop_findings_total{kind}
var (
	registry = prometheus.NewRegistry()

	opTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "bookchop", Name: "op_total", Help: "Operations by component, stage and result.",
	}, []string{"comp", "stage", "result"})

	errorTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "bookchop", Name: "error_total", Help: "Errors by component and classified code.",
	}, []string{"comp", "code"})

	opDuration = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "bookchop", Name: "op_duration_ms", Help: "Stage duration in milliseconds.",
		Buckets: prometheus.ExponentialBuckets(1, 4, 8),
	}, []string{"comp", "stage"})

	chunksEmitted = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "bookchop", Name: "chunks_emitted_total", Help: "Chunks written by the chopper.",
	})

	findingsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "bookchop", Name: "findings_total", Help: "Recoverable diagnostics by kind.",
	}, []string{"kind"})
)

func init() {
	registry.MustRegister(opTotal, errorTotal, opDuration, chunksEmitted, findingsTotal)
}

// IncOp 累加操作计数（result=success|error）。
func IncOp(comp, stage, result string) { opTotal.WithLabelValues(comp, stage, result).Inc() }

// IncError 按分类累加错误计数。
func IncError(comp, code string) { errorTotal.WithLabelValues(comp, code).Inc() }

// ObserveDuration 记录阶段耗时（毫秒）。
func ObserveDuration(comp, stage string, durMS int64) {
	opDuration.WithLabelValues(comp, stage).Observe(float64(durMS))
}

// AddChunks 累加已发射块数。
func AddChunks(n int) {
	if n > 0 {
		chunksEmitted.Add(float64(n))
	}
}

// IncFinding 按诊断类别计数。
func IncFinding(kind string) { findingsTotal.WithLabelValues(kind).Inc() }

// Gatherer 暴露注册表（测试与导出）。
func Gatherer() prometheus.Gatherer { return registry }

// WriteMetrics 以 Prometheus textfile 格式写出全部指标（原子替换）。
func WriteMetrics(path string) error {
	return prometheus.WriteToTextfile(path, registry)
}
