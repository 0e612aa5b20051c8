package task

import "github.com/prometheus/client_golang/prometheus"

var executionsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
	Name: "task_executions_total",
	Help: "Task executions by type and outcome (completed, retry, failed).",
}, []string{"type", "outcome"})

func Collectors() []prometheus.Collector {
	return []prometheus.Collector{executionsTotal}
}
