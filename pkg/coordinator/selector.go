package coordinator

import (
	"fmt"

	"github.com/hypermesh-online/meshcoord/pkg/model"
)

// Scoring weights for allocation decisions. Free capacity dominates, with
// reliability and responsiveness as secondary signals; the trust score scales
// the whole thing so an untrusted node can never win on raw capacity.
const (
	weightCPUFree     = 0.3
	weightMemFree     = 0.3
	weightSuccessRate = 0.2
	weightResponse    = 0.2
)

// nodeScore rates a node's suitability for new allocations.
func nodeScore(n model.NodeInfo) float64 {
	var cpuFree, memFree float64
	if n.Capabilities.CPUCores > 0 {
		cpuFree = n.Available.CPUCores / float64(n.Capabilities.CPUCores)
	}
	if n.Capabilities.MemoryBytes > 0 {
		memFree = float64(n.Available.MemoryBytes) / float64(n.Capabilities.MemoryBytes)
	}
	responsiveness := 1.0 / (1.0 + n.Metrics.AvgResponseMs/1000.0)

	base := weightCPUFree*cpuFree +
		weightMemFree*memFree +
		weightSuccessRate*n.Metrics.SuccessRate +
		weightResponse*responsiveness
	return base * n.NodeID.TrustScore
}

// SelectAllocationNode picks the active node with the highest score among
// those that advertise the given resource type, excluding any listed nodes.
// Ties keep the earlier node in key order, so the choice is deterministic.
func (c *Coordinator) SelectAllocationNode(rt model.ResourceType, exclude ...model.NodeID) (model.NodeID, float64, error) {
	var (
		best      model.NodeID
		bestScore float64
		found     bool
	)
	for _, n := range c.reg.List() {
		if n.Status != model.StatusActive {
			continue
		}
		if !n.Capabilities.SupportsType(rt) {
			continue
		}
		if excluded(n.NodeID, exclude) {
			continue
		}
		score := nodeScore(n)
		if !found || score > bestScore {
			best, bestScore, found = n.NodeID, score, true
		}
	}
	if !found {
		return model.NodeID{}, 0, &model.AllocationError{
			Reason: fmt.Sprintf("no eligible node for resource type %q", rt),
		}
	}
	return best, bestScore, nil
}

func excluded(id model.NodeID, exclude []model.NodeID) bool {
	for _, e := range exclude {
		if id.Equal(e) {
			return true
		}
	}
	return false
}
