// Package observability provides lightweight internal metrics counters for
// the coordination control plane.
package observability

import (
	"sync/atomic"

	"github.com/hypermesh-online/meshcoord/pkg/model"
)

// FleetSnapshotFunc supplies the current fleet-wide counters, owned by the
// coordinator's event processor.
type FleetSnapshotFunc func() model.FleetMetrics

// Metrics holds simple atomic counters for API server operations plus a hook
// into the coordinator's fleet metrics.
type Metrics struct {
	requestCount atomic.Int64
	errorCount   atomic.Int64

	fleet FleetSnapshotFunc
}

// NewMetrics returns a Metrics wired to the given fleet snapshot source.
// fleet may be nil, in which case fleet gauges read as zero.
func NewMetrics(fleet FleetSnapshotFunc) *Metrics {
	return &Metrics{fleet: fleet}
}

func (m *Metrics) IncRequest() { m.requestCount.Add(1) }
func (m *Metrics) IncError()   { m.errorCount.Add(1) }

// Fleet returns the current fleet metrics snapshot.
func (m *Metrics) Fleet() model.FleetMetrics {
	if m.fleet == nil {
		return model.FleetMetrics{}
	}
	return m.fleet()
}

// GetMetrics returns a snapshot of all counters.
func (m *Metrics) GetMetrics() map[string]int64 {
	f := m.Fleet()
	return map[string]int64{
		"request_count":         m.requestCount.Load(),
		"error_count":           m.errorCount.Load(),
		"total_nodes":           int64(f.TotalNodes),
		"healthy_nodes":         int64(f.HealthyNodes),
		"failed_nodes":          int64(f.FailedNodes),
		"byzantine_nodes":       int64(f.ByzantineNodes),
		"partitions_detected":   int64(f.PartitionsDetected),
		"partitions_healed":     int64(f.PartitionsHealed),
		"successful_migrations": int64(f.SuccessfulMigrations),
		"failed_migrations":     int64(f.FailedMigrations),
		"events_processed":      int64(f.EventsProcessed),
	}
}
