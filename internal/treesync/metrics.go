package treesync

import "github.com/prometheus/client_golang/prometheus"

var (
	runsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "treesync_runs_total",
			Help: "Sync runs by trigger and outcome.",
		},
		[]string{"trigger", "status"},
	)
	runDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "treesync_run_duration_seconds",
			Help:    "Wall time of sync runs.",
			Buckets: prometheus.ExponentialBuckets(0.25, 2, 12),
		},
	)
	devicesChanged = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "treesync_devices_changed_total",
			Help: "Device mutations by action (added, deleted, updated, moved).",
		},
		[]string{"action"},
	)
	groupsChanged = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "treesync_groups_changed_total",
			Help: "Group mutations by action (created, pruned).",
		},
		[]string{"action"},
	)
	sitesInFlight = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "treesync_sites_in_flight",
			Help: "Site syncs currently executing.",
		},
	)
)

func init() {
	prometheus.MustRegister(runsTotal, runDuration, devicesChanged, groupsChanged, sitesInFlight)
}

func recordRunMetrics(trigger string, run *Run, seconds float64) {
	runsTotal.WithLabelValues(trigger, run.Status).Inc()
	runDuration.Observe(seconds)
	devicesChanged.WithLabelValues("added").Add(float64(run.Added))
	devicesChanged.WithLabelValues("deleted").Add(float64(run.Deleted))
	devicesChanged.WithLabelValues("updated").Add(float64(run.Updated))
	devicesChanged.WithLabelValues("moved").Add(float64(run.Moved))
	groupsChanged.WithLabelValues("created").Add(float64(run.GroupsCreated))
	groupsChanged.WithLabelValues("pruned").Add(float64(run.GroupsPruned))
}
