package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// HTTPRequests counts API calls issued to either tenant.
	HTTPRequests = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "wafbackup_http_requests_total",
		Help: "API requests issued, by method and response status",
	}, []string{"method", "status"})

	// RulesBackedUp counts overridden rules written to backup artifacts.
	RulesBackedUp = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "wafbackup_rules_backed_up_total",
		Help: "Overridden rules captured during backup, by container kind",
	}, []string{"container"})

	// RestoreSkipped counts objects restore deliberately did not apply.
	RestoreSkipped = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "wafbackup_restore_skipped_total",
		Help: "Objects skipped during restore, by stage and reason",
	}, []string{"stage", "reason"})

	// UnitFailures counts failed concurrent units in either direction.
	UnitFailures = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "wafbackup_unit_failures_total",
		Help: "Backup or restore units that returned an error",
	}, []string{"unit"})
)
