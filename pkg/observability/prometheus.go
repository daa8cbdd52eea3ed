package observability

import (
	"fmt"
	"net/http"
)

// prometheusSeries fixes the export order of the counters.
var prometheusSeries = []struct {
	name, help, kind, key string
}{
	{"meshcoord_requests_total", "Total number of API requests.", "counter", "request_count"},
	{"meshcoord_errors_total", "Total number of API errors.", "counter", "error_count"},
	{"meshcoord_nodes_total", "Current number of registered nodes.", "gauge", "total_nodes"},
	{"meshcoord_nodes_healthy", "Current number of healthy nodes.", "gauge", "healthy_nodes"},
	{"meshcoord_nodes_failed", "Total nodes marked failed.", "counter", "failed_nodes"},
	{"meshcoord_nodes_byzantine", "Total Byzantine detections.", "counter", "byzantine_nodes"},
	{"meshcoord_partitions_detected_total", "Total network partitions detected.", "counter", "partitions_detected"},
	{"meshcoord_partitions_healed_total", "Total network partitions healed.", "counter", "partitions_healed"},
	{"meshcoord_migrations_success_total", "Total successful migrations.", "counter", "successful_migrations"},
	{"meshcoord_migrations_failed_total", "Total failed migrations.", "counter", "failed_migrations"},
	{"meshcoord_events_processed_total", "Total fleet events processed.", "counter", "events_processed"},
}

// PrometheusHandler returns an http.HandlerFunc that exports metrics in
// Prometheus text exposition format at /metrics.
func (m *Metrics) PrometheusHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/plain; version=0.0.4; charset=utf-8")
		snap := m.GetMetrics()
		for _, s := range prometheusSeries {
			fmt.Fprintf(w, "# HELP %s %s\n", s.name, s.help)
			fmt.Fprintf(w, "# TYPE %s %s\n", s.name, s.kind)
			fmt.Fprintf(w, "%s %d\n\n", s.name, snap[s.key])
		}
	}
}
