package metrics

import (
	"runtime"
	"runtime/debug"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	registry = prometheus.NewRegistry()

	childrenRunning = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: "devfleet",
		Name:      "children_running",
		Help:      "Number of spawned children that have not yet been reaped.",
	})

	spawnFailures = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "devfleet",
		Name:      "child_spawn_failures_total",
		Help:      "Total number of children that failed to spawn.",
	}, []string{"label"})

	childrenSignaled = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "devfleet",
		Name:      "children_signaled_total",
		Help:      "Total number of children ended by the termination signal.",
	}, []string{"label"})

	childrenForceKilled = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "devfleet",
		Name:      "children_force_killed_total",
		Help:      "Total number of children that outlived the grace period and were forcibly killed.",
	}, []string{"label"})

	shutdownDuration = prometheus.NewHistogram(prometheus.HistogramOpts{
		Namespace: "devfleet",
		Name:      "shutdown_duration_seconds",
		Help:      "Duration of complete fleet shutdown passes in seconds.",
	})

	buildInfo = prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: "devfleet",
		Name:      "build_info",
		Help:      "Build metadata for the running devfleet binary.",
	}, []string{"go_version", "vcs", "vcs_revision", "vcs_time", "vcs_modified"})

	buildInfoOnce sync.Once
)

func init() {
	registry.MustRegister(childrenRunning, spawnFailures, childrenSignaled, childrenForceKilled, shutdownDuration, buildInfo)
}

// Registry returns the Prometheus registry containing all devfleet metrics.
func Registry() *prometheus.Registry {
	return registry
}

// IncChildrenRunning records a newly spawned child.
func IncChildrenRunning() {
	childrenRunning.Inc()
}

// DecChildrenRunning records a reaped child.
func DecChildrenRunning() {
	childrenRunning.Dec()
}

// IncSpawnFailure counts a child that could not be spawned.
func IncSpawnFailure(label string) {
	if label == "" {
		label = "unknown"
	}
	spawnFailures.WithLabelValues(label).Inc()
}

// IncSignaled counts a child ended by the termination signal.
func IncSignaled(label string) {
	if label == "" {
		label = "unknown"
	}
	childrenSignaled.WithLabelValues(label).Inc()
}

// IncForceKilled counts a child that required a forced kill.
func IncForceKilled(label string) {
	if label == "" {
		label = "unknown"
	}
	childrenForceKilled.WithLabelValues(label).Inc()
}

// ObserveShutdownDuration records the duration of a shutdown pass.
func ObserveShutdownDuration(d time.Duration) {
	if d < 0 {
		return
	}
	shutdownDuration.Observe(d.Seconds())
}

// EmitBuildInfo publishes build metadata once per process.
func EmitBuildInfo() {
	buildInfoOnce.Do(func() {
		goVersion := runtime.Version()
		vcs := "unknown"
		revision := "unknown"
		vcsTime := "unknown"
		modified := "unknown"
		if info, ok := debug.ReadBuildInfo(); ok {
			for _, setting := range info.Settings {
				switch setting.Key {
				case "vcs":
					vcs = setting.Value
				case "vcs.revision":
					revision = setting.Value
				case "vcs.time":
					vcsTime = setting.Value
				case "vcs.modified":
					modified = setting.Value
				}
			}
		}
		buildInfo.WithLabelValues(goVersion, vcs, revision, vcsTime, modified).Set(1)
	})
}
