// Package topology maintains the fleet connectivity view: the node set's
// pairwise latency/bandwidth matrices, the open-partition list, and the
// connected-components computation that turns pairwise reachability into
// partition records.
package topology

import (
	"crypto/rand"
	"encoding/hex"
	"sort"
	"sync"
	"time"

	"github.com/hypermesh-online/meshcoord/pkg/model"
)

// Manager tracks partitions and link measurements.
type Manager struct {
	mu         sync.RWMutex
	partitions []model.NetworkPartition
	latency    map[string]map[string]float64
	bandwidth  map[string]map[string]uint64
	updatedAt  time.Time

	now func() time.Time
}

// New returns an empty topology Manager.
func New() *Manager {
	return &Manager{
		latency:   make(map[string]map[string]float64),
		bandwidth: make(map[string]map[string]uint64),
		now:       time.Now,
	}
}

// SetClock overrides the manager's time source. Intended for tests.
func (m *Manager) SetClock(now func() time.Time) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.now = now
}

// RecordLink stores a measured latency/bandwidth sample for the directed pair
// (from, to).
func (m *Manager) RecordLink(from, to model.NodeID, latencyMs float64, bandwidthMbps uint64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	fk, tk := from.Key(), to.Key()
	if m.latency[fk] == nil {
		m.latency[fk] = make(map[string]float64)
	}
	if m.bandwidth[fk] == nil {
		m.bandwidth[fk] = make(map[string]uint64)
	}
	m.latency[fk][tk] = latencyMs
	m.bandwidth[fk][tk] = bandwidthMbps
	m.updatedAt = m.now()
}

// Snapshot assembles a NetworkTopology from the given node records plus the
// manager's partition and link state.
func (m *Manager) Snapshot(nodes []model.NodeInfo) model.NetworkTopology {
	m.mu.RLock()
	defer m.mu.RUnlock()

	parts := make([]model.NetworkPartition, len(m.partitions))
	copy(parts, m.partitions)

	lat := make(map[string]map[string]float64, len(m.latency))
	for k, row := range m.latency {
		cp := make(map[string]float64, len(row))
		for k2, v := range row {
			cp[k2] = v
		}
		lat[k] = cp
	}
	bw := make(map[string]map[string]uint64, len(m.bandwidth))
	for k, row := range m.bandwidth {
		cp := make(map[string]uint64, len(row))
		for k2, v := range row {
			cp[k2] = v
		}
		bw[k] = cp
	}

	return model.NetworkTopology{
		Nodes:           nodes,
		Partitions:      parts,
		LatencyMatrix:   lat,
		BandwidthMatrix: bw,
		LastUpdated:     m.updatedAt,
	}
}

// Partitions returns a copy of all partition records, healed included
// (history is retained for audit).
func (m *Manager) Partitions() []model.NetworkPartition {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]model.NetworkPartition, len(m.partitions))
	copy(out, m.partitions)
	return out
}

// OpenPartitions returns the unhealed partition records.
func (m *Manager) OpenPartitions() []model.NetworkPartition {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []model.NetworkPartition
	for _, p := range m.partitions {
		if !p.Healed {
			out = append(out, p)
		}
	}
	return out
}

// Reconcile evaluates one reachability snapshot end to end. Open partitions
// whose members have all rejoined the main connectivity component are healed;
// components still cut off from the main fleet are recorded as new
// partitions. Healing and detection share the same component view, so a
// partition the snapshot would immediately re-detect is never healed.
func (m *Manager) Reconcile(active []model.NodeID, reachable map[string][]string) (healed []string, opened []model.NetworkPartition) {
	if len(active) == 0 {
		return nil, nil
	}
	byKey, components := splitComponents(active, reachable)

	mainSet := make(map[string]bool, len(components[0]))
	for _, k := range components[0] {
		mainSet[k] = true
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	healed = m.healLocked(mainSet)
	if len(components) > 1 {
		opened = m.openLocked(byKey, components[1:])
	}
	return healed, opened
}

// DetectPartitions computes connected components over the pairwise
// reachability map restricted to the given active nodes. The largest
// component is taken to be the main fleet; every other component becomes a
// partition record. Components identical to an already-open partition are not
// re-recorded. Returns the newly opened partitions.
func (m *Manager) DetectPartitions(active []model.NodeID, reachable map[string][]string) []model.NetworkPartition {
	if len(active) == 0 {
		return nil
	}
	byKey, components := splitComponents(active, reachable)
	if len(components) <= 1 {
		return nil
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.openLocked(byKey, components[1:])
}

// splitComponents builds the undirected reachability graph restricted to the
// active nodes and returns its connected components, largest first (ties by
// first member key, so the main-fleet choice is deterministic).
func splitComponents(active []model.NodeID, reachable map[string][]string) (map[string]model.NodeID, [][]string) {
	byKey := make(map[string]model.NodeID, len(active))
	keys := make([]string, 0, len(active))
	for _, n := range active {
		byKey[n.Key()] = n
		keys = append(keys, n.Key())
	}
	sort.Strings(keys)

	adj := make(map[string]map[string]bool, len(keys))
	for _, k := range keys {
		adj[k] = make(map[string]bool)
	}
	for from, tos := range reachable {
		if _, ok := byKey[from]; !ok {
			continue
		}
		for _, to := range tos {
			if _, ok := byKey[to]; !ok {
				continue
			}
			adj[from][to] = true
			adj[to][from] = true
		}
	}

	components := connectedComponents(keys, adj)
	sort.Slice(components, func(i, j int) bool {
		if len(components[i]) != len(components[j]) {
			return len(components[i]) > len(components[j])
		}
		return components[i][0] < components[j][0]
	})
	return byKey, components
}

// openLocked records the given components as partitions, skipping any that
// matches an already-open record.
func (m *Manager) openLocked(byKey map[string]model.NodeID, components [][]string) []model.NetworkPartition {
	var opened []model.NetworkPartition
	for _, comp := range components {
		if m.hasOpenPartitionLocked(comp) {
			continue
		}
		members := make([]model.NodeID, 0, len(comp))
		for _, k := range comp {
			members = append(members, byKey[k])
		}
		p := model.NetworkPartition{
			PartitionID: newPartitionID(),
			Nodes:       members,
			DetectedAt:  m.now(),
		}
		m.partitions = append(m.partitions, p)
		opened = append(opened, p)
	}
	return opened
}

// HealCheck marks every open partition whose members are all listed in
// reachableKeys as healed, flipping the flag exactly once per partition.
// Returns the IDs of partitions healed by this call.
func (m *Manager) HealCheck(reachableKeys map[string]bool) []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.healLocked(reachableKeys)
}

func (m *Manager) healLocked(reachableKeys map[string]bool) []string {
	var healed []string
	for i := range m.partitions {
		p := &m.partitions[i]
		if p.Healed {
			continue
		}
		all := true
		for _, n := range p.Nodes {
			if !reachableKeys[n.Key()] {
				all = false
				break
			}
		}
		if all {
			p.Healed = true
			p.HealedAt = m.now()
			healed = append(healed, p.PartitionID)
		}
	}
	return healed
}

// hasOpenPartitionLocked reports whether an unhealed partition with exactly
// the given (sorted) member keys is already recorded.
func (m *Manager) hasOpenPartitionLocked(sortedKeys []string) bool {
	for _, p := range m.partitions {
		if p.Healed || len(p.Nodes) != len(sortedKeys) {
			continue
		}
		pk := make([]string, 0, len(p.Nodes))
		for _, n := range p.Nodes {
			pk = append(pk, n.Key())
		}
		sort.Strings(pk)
		same := true
		for i := range pk {
			if pk[i] != sortedKeys[i] {
				same = false
				break
			}
		}
		if same {
			return true
		}
	}
	return false
}

// connectedComponents returns the components of the undirected graph as
// sorted key slices. Iteration over the sorted key list keeps the result
// deterministic.
func connectedComponents(keys []string, adj map[string]map[string]bool) [][]string {
	visited := make(map[string]bool, len(keys))
	var components [][]string
	for _, start := range keys {
		if visited[start] {
			continue
		}
		var comp []string
		stack := []string{start}
		visited[start] = true
		for len(stack) > 0 {
			k := stack[len(stack)-1]
			stack = stack[:len(stack)-1]
			comp = append(comp, k)
			for nb := range adj[k] {
				if !visited[nb] {
					visited[nb] = true
					stack = append(stack, nb)
				}
			}
		}
		sort.Strings(comp)
		components = append(components, comp)
	}
	return components
}

func newPartitionID() string {
	b := make([]byte, 8)
	_, _ = rand.Read(b)
	return "part-" + hex.EncodeToString(b)
}
