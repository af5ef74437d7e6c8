package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Registry 服务指标注册表, hertz的prometheus tracer也注册在这里
var Registry = prometheus.NewRegistry()

var (
	// Summarizations 摘要任务结果, result为updated/noop/failed
	Summarizations = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "mindy",
		Subsystem: "summarizer",
		Name:      "runs_total",
		Help:      "Summarization attempts by result.",
	}, []string{"result"})

	// Archived 归档次数, source为lazy/sweep/explicit
	Archived = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "mindy",
		Subsystem: "registry",
		Name:      "archived_total",
		Help:      "Conversations archived by source.",
	}, []string{"source"})

	// Reactivated 重新激活次数
	Reactivated = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "mindy",
		Subsystem: "registry",
		Name:      "reactivated_total",
		Help:      "Archived conversations brought back to active.",
	})

	// Generations 模型调用耗时, kind为智能体类型, result为ok/error/rejected
	Generations = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "mindy",
		Subsystem: "agent",
		Name:      "generate_seconds",
		Help:      "Latency of generate calls.",
		Buckets:   prometheus.DefBuckets,
	}, []string{"kind", "result"})
)

func init() {
	Registry.MustRegister(Summarizations, Archived, Reactivated, Generations)
}

const (
	ResultUpdated  = "updated"
	ResultNoop     = "noop"
	ResultFailed   = "failed"
	ResultOK       = "ok"
	ResultError    = "error"
	ResultRejected = "rejected"

	SourceLazy     = "lazy"
	SourceSweep    = "sweep"
	SourceExplicit = "explicit"
)
