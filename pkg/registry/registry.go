// Package registry holds the authoritative set of known mesh nodes, their
// capability descriptors, and their current status. All mutations are atomic
// with respect to concurrent reads; no operation blocks callers of other
// components.
package registry

import (
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/hypermesh-online/meshcoord/pkg/model"
)

// Registry is an in-memory node registry guarded by a read/write mutex.
type Registry struct {
	mu    sync.RWMutex
	nodes map[string]*model.NodeInfo

	// now is injectable for tests.
	now func() time.Time
}

// New returns an empty Registry.
func New() *Registry {
	return &Registry{
		nodes: make(map[string]*model.NodeInfo),
		now:   time.Now,
	}
}

// SetClock overrides the registry's time source. Intended for tests.
func (r *Registry) SetClock(now func() time.Time) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.now = now
}

// Join adds a node as Active, or reactivates it if it was previously known
// (including a node that had Failed; rejoin is the only path out of Failed).
// Returns the node's status before the call and whether it was already known,
// so callers can tell a fresh admission from a reactivation.
func (r *Registry) Join(id model.NodeID, caps model.NodeCapabilities) (model.NodeStatus, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	key := id.Key()
	existing, known := r.nodes[key]
	if known {
		prev := existing.Status
		existing.NodeID = id
		existing.Capabilities = caps
		existing.Status = model.StatusActive
		existing.LastHeartbeat = r.now()
		existing.Available.ClampTo(caps)
		return prev, true
	}
	r.nodes[key] = &model.NodeInfo{
		NodeID:        id,
		Capabilities:  caps,
		Status:        model.StatusActive,
		LastHeartbeat: r.now(),
		Available: model.AvailableResources{
			CPUCores:      float64(caps.CPUCores),
			MemoryBytes:   caps.MemoryBytes,
			GPUDevices:    caps.GPUDevices,
			StorageBytes:  caps.StorageBytes,
			BandwidthMbps: caps.BandwidthMbps,
		},
		Metrics: model.PerformanceMetrics{SuccessRate: 1.0},
	}
	return "", false
}

// Leave removes a voluntarily departing node.
func (r *Registry) Leave(id model.NodeID) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	key := id.Key()
	if _, ok := r.nodes[key]; !ok {
		return fmt.Errorf("node %q not found", id.ShortKey())
	}
	delete(r.nodes, key)
	return nil
}

// UpdateHeartbeat refreshes a node's last-heartbeat timestamp.
func (r *Registry) UpdateHeartbeat(id model.NodeID) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	n, ok := r.nodes[id.Key()]
	if !ok {
		return fmt.Errorf("node %q not found", id.ShortKey())
	}
	n.LastHeartbeat = r.now()
	return nil
}

// UpdateMetrics replaces a node's performance metrics and refreshes its
// heartbeat in the same critical section.
func (r *Registry) UpdateMetrics(id model.NodeID, m model.PerformanceMetrics) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	n, ok := r.nodes[id.Key()]
	if !ok {
		return fmt.Errorf("node %q not found", id.ShortKey())
	}
	n.Metrics = m
	n.LastHeartbeat = r.now()
	return nil
}

// UpdateAvailable replaces a node's free-capacity view, clamped to its
// capabilities so the capacity invariant always holds.
func (r *Registry) UpdateAvailable(id model.NodeID, avail model.AvailableResources) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	n, ok := r.nodes[id.Key()]
	if !ok {
		return fmt.Errorf("node %q not found", id.ShortKey())
	}
	avail.ClampTo(n.Capabilities)
	n.Available = avail
	return nil
}

// SetStatus moves a node to the given status, validating the change against
// the transition table. A Failed node cannot be un-failed here; only Join
// does that.
func (r *Registry) SetStatus(id model.NodeID, status model.NodeStatus) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	n, ok := r.nodes[id.Key()]
	if !ok {
		return fmt.Errorf("node %q not found", id.ShortKey())
	}
	if n.Status == status {
		return nil
	}
	if !n.Status.CanTransitionTo(status) {
		return model.TransitionError("node "+id.ShortKey(), n.Status, status)
	}
	n.Status = status
	return nil
}

// MarkFailed sets a node to Failed and reports whether the status actually
// changed. Callers use the return value to emit the failure event exactly
// once.
func (r *Registry) MarkFailed(id model.NodeID) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	n, ok := r.nodes[id.Key()]
	if !ok || n.Status == model.StatusFailed {
		return false
	}
	n.Status = model.StatusFailed
	return true
}

// AdjustTrust moves a node's trust score by delta, clamped to [0,1].
func (r *Registry) AdjustTrust(id model.NodeID, delta float64) {
	r.mu.Lock()
	defer r.mu.Unlock()
	n, ok := r.nodes[id.Key()]
	if !ok {
		return
	}
	ts := n.NodeID.TrustScore + delta
	if ts < 0 {
		ts = 0
	}
	if ts > 1 {
		ts = 1
	}
	n.NodeID.TrustScore = ts
}

// Get returns a copy of the node record.
func (r *Registry) Get(id model.NodeID) (model.NodeInfo, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	n, ok := r.nodes[id.Key()]
	if !ok {
		return model.NodeInfo{}, false
	}
	return *n, true
}

// GetByKey returns a copy of the node record by its hex key.
func (r *Registry) GetByKey(key string) (model.NodeInfo, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	n, ok := r.nodes[key]
	if !ok {
		return model.NodeInfo{}, false
	}
	return *n, true
}

// List returns copies of all node records, sorted by node key so callers see
// a stable, deterministic order.
func (r *Registry) List() []model.NodeInfo {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]model.NodeInfo, 0, len(r.nodes))
	for _, n := range r.nodes {
		out = append(out, *n)
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].NodeID.Key() < out[j].NodeID.Key()
	})
	return out
}

// Active returns all nodes currently in Active status, in stable order.
func (r *Registry) Active() []model.NodeInfo {
	all := r.List()
	out := all[:0]
	for _, n := range all {
		if n.Status == model.StatusActive {
			out = append(out, n)
		}
	}
	return out
}

// StaleNodes returns nodes whose heartbeat is older than timeout and that are
// not already Failed.
func (r *Registry) StaleNodes(timeout time.Duration) []model.NodeInfo {
	r.mu.RLock()
	now := r.now()
	var stale []model.NodeInfo
	for _, n := range r.nodes {
		if n.Status != model.StatusFailed && now.Sub(n.LastHeartbeat) > timeout {
			stale = append(stale, *n)
		}
	}
	r.mu.RUnlock()
	sort.Slice(stale, func(i, j int) bool {
		return stale[i].NodeID.Key() < stale[j].NodeID.Key()
	})
	return stale
}

// Len returns the number of known nodes.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.nodes)
}
