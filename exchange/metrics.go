package exchange

import (
	"time"

	"github.com/armon/go-metrics"
)

// metricsKeyPrefix namespaces every exchange metric, mirroring the way
// command/agent.go namespaces telemetry under "serf-agent".
var metricsKeyPrefix = []string{"exchange"}

func emitQuiesceTiming(start time.Time) {
	metrics.MeasureSince(append(metricsKeyPrefix, "quiesce"), start)
}

func emitCollectTiming(start time.Time) {
	metrics.MeasureSince(append(metricsKeyPrefix, "collect"), start)
}

func emitDecideTiming(start time.Time) {
	metrics.MeasureSince(append(metricsKeyPrefix, "decide"), start)
}

func emitDistributeTiming(start time.Time) {
	metrics.MeasureSince(append(metricsKeyPrefix, "distribute"), start)
}

func emitRemainingSize(n int) {
	metrics.SetGauge(append(metricsKeyPrefix, "remaining"), float32(n))
}

func emitLostPartitions(n int) {
	metrics.IncrCounter(append(metricsKeyPrefix, "lost_partitions"), float32(n))
}

func emitMergeCount() {
	metrics.IncrCounter(append(metricsKeyPrefix, "merged"), 1)
}

func emitFailoverCount() {
	metrics.IncrCounter(append(metricsKeyPrefix, "failover"), 1)
}
