package coordinator

import (
	"context"
	"fmt"
	"log"
	"sort"
	"time"

	"github.com/hypermesh-online/meshcoord/pkg/model"
)

// Start launches the event processor and the periodic detector loops. It
// returns immediately; the loops run until Stop is called or ctx is
// cancelled. Start is a no-op if the coordinator is already running.
func (c *Coordinator) Start(ctx context.Context) {
	if !c.started.CompareAndSwap(false, true) {
		return
	}
	ctx, c.cancel = context.WithCancel(ctx)

	c.wg.Add(1)
	go func() {
		defer c.wg.Done()
		c.processEvents(ctx)
	}()

	c.runLoop(ctx, c.cfg.HeartbeatInterval, c.checkHeartbeats)
	c.runLoop(ctx, c.cfg.PartitionInterval, c.scanPartitions)
	c.runLoop(ctx, c.cfg.ByzantineInterval, func(ctx context.Context) {
		c.DetectByzantineNodes()
	})
	if c.cfg.LoadBalancing {
		c.runLoop(ctx, c.cfg.LoadBalanceInterval, c.balanceLoad)
	}
	c.runLoop(ctx, c.cfg.MarketPurgeInterval, func(context.Context) {
		offers, requests := c.mkt.PurgeExpired()
		if offers+requests > 0 {
			log.Printf("coordinator: purged %d expired offers, %d expired requests", offers, requests)
		}
	})
}

// Stop halts the background loops and waits for in-flight work to finish.
func (c *Coordinator) Stop() {
	if !c.started.CompareAndSwap(true, false) {
		return
	}
	c.cancel()
	c.wg.Wait()
}

// runLoop runs tick every interval until ctx is cancelled. Intervals <= 0
// disable the loop.
func (c *Coordinator) runLoop(ctx context.Context, interval time.Duration, tick func(context.Context)) {
	if interval <= 0 {
		return
	}
	c.wg.Add(1)
	go func() {
		defer c.wg.Done()
		t := time.NewTicker(interval)
		defer t.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-t.C:
				tick(ctx)
			}
		}
	}()
}

// checkHeartbeats marks nodes whose heartbeat has gone stale as failed. The
// registry reports whether the status actually changed, so the failure event
// fires exactly once per failure.
func (c *Coordinator) checkHeartbeats(ctx context.Context) {
	for _, n := range c.reg.StaleNodes(c.cfg.FailureTimeout) {
		if !c.reg.MarkFailed(n.NodeID) {
			continue
		}
		id := n.NodeID
		log.Printf("coordinator: node %s failed (no heartbeat for %s)", id.ShortKey(), c.cfg.FailureTimeout)
		if err := c.publish(model.Event{
			Type:   model.EventNodeFailed,
			Node:   &id,
			Reason: "heartbeat timeout",
		}); err != nil {
			log.Printf("coordinator: publish node_failed for %s: %v", id.ShortKey(), err)
		}
	}
}

// scanPartitions reconciles the partition records against the latest
// reachability reports. Healing keys on the same connectivity view detection
// uses: a member counts as recovered only once it is back in the main
// component, not merely because it still heartbeats.
func (c *Coordinator) scanPartitions(ctx context.Context) {
	healthy := c.healthyKeys()
	var active []model.NodeID
	for _, n := range c.reg.List() {
		if healthy[n.NodeID.Key()] {
			active = append(active, n.NodeID)
		}
	}

	healed, opened := c.topo.Reconcile(active, c.reachabilitySnapshot())
	for _, id := range healed {
		c.onPartitionHealed(id)
	}
	for _, p := range opened {
		part := p
		log.Printf("coordinator: partition %s detected with %d nodes", part.PartitionID, len(part.Nodes))
		for _, n := range part.Nodes {
			if err := c.reg.SetStatus(n, model.StatusPartitioned); err != nil {
				log.Printf("coordinator: mark %s partitioned: %v", n.ShortKey(), err)
			}
		}
		if err := c.publish(model.Event{
			Type:      model.EventPartitionDetected,
			Partition: &part,
		}); err != nil {
			log.Printf("coordinator: publish partition_detected: %v", err)
		}
	}
}

// healthyKeys returns the set of nodes that are not failed and have a fresh
// heartbeat. These are the nodes that participate in the connectivity graph;
// whether one is reachable is decided by the reachability reports.
func (c *Coordinator) healthyKeys() map[string]bool {
	now := c.now()
	out := make(map[string]bool)
	for _, n := range c.reg.List() {
		if n.Status == model.StatusFailed {
			continue
		}
		if now.Sub(n.LastHeartbeat) > c.cfg.FailureTimeout {
			continue
		}
		out[n.NodeID.Key()] = true
	}
	return out
}

// onPartitionHealed restores the partition's members to active and emits the
// heal event.
func (c *Coordinator) onPartitionHealed(partitionID string) {
	for _, p := range c.topo.Partitions() {
		if p.PartitionID != partitionID {
			continue
		}
		for _, n := range p.Nodes {
			if err := c.reg.SetStatus(n, model.StatusActive); err != nil {
				log.Printf("coordinator: reactivate %s after heal: %v", n.ShortKey(), err)
			}
		}
		break
	}
	log.Printf("coordinator: partition %s healed", partitionID)
	if err := c.publish(model.Event{
		Type:        model.EventPartitionHealed,
		PartitionID: partitionID,
	}); err != nil {
		log.Printf("coordinator: publish partition_healed: %v", err)
	}
}

// DetectByzantineNodes scans every node's asset reports against the fleet
// majority and flags nodes whose suspicious-behaviour ratio strictly exceeds
// the configured threshold. Flagged nodes are moved to suspected, lose trust,
// and produce a byzantine_detected event. The flag is advisory; suspected
// nodes keep serving until an operator or trust policy removes them.
func (c *Coordinator) DetectByzantineNodes() []model.NodeID {
	states := c.AssetStates()

	var flagged []model.NodeID
	for _, n := range c.reg.List() {
		if n.Status == model.StatusFailed {
			continue
		}
		suspicious, observed, evidence := c.inspectNode(n, states)
		if n.Metrics.SuccessRate < 0.5 {
			suspicious++
			evidence = append(evidence, fmt.Sprintf("success rate %.2f below 0.5", n.Metrics.SuccessRate))
		}
		if observed == 0 {
			observed = 1
		}
		ratio := float64(suspicious) / float64(observed)
		if ratio <= c.cfg.ByzantineThreshold {
			continue
		}

		id := n.NodeID
		flagged = append(flagged, id)
		log.Printf("coordinator: node %s flagged byzantine (ratio %.2f)", id.ShortKey(), ratio)
		if err := c.reg.SetStatus(id, model.StatusSuspected); err != nil {
			log.Printf("coordinator: suspect %s: %v", id.ShortKey(), err)
		}
		c.reg.AdjustTrust(id, -0.05)
		if err := c.publish(model.Event{
			Type:     model.EventByzantineDetected,
			Node:     &id,
			Evidence: evidence,
		}); err != nil {
			log.Printf("coordinator: publish byzantine_detected for %s: %v", id.ShortKey(), err)
		}
	}
	return flagged
}

// inspectNode counts how many of the node's asset reports disagree with a
// strict majority of the other observers.
func (c *Coordinator) inspectNode(n model.NodeInfo, states []model.DistributedAssetState) (suspicious, observed int, evidence []string) {
	key := n.NodeID.Key()
	for _, st := range states {
		own, ok := st.Reports[key]
		if !ok {
			continue
		}
		observed++
		majority, ok := majorityReport(st.Reports, key)
		if ok && majority != own {
			suspicious++
			evidence = append(evidence, fmt.Sprintf("asset %s: reported %q, majority %q", st.AssetID.ID, own, majority))
		}
	}
	return suspicious, observed, evidence
}

// majorityReport returns the value reported by a strict majority of observers
// other than exclude, if one exists.
func majorityReport(reports map[string]string, exclude string) (string, bool) {
	counts := make(map[string]int)
	others := 0
	for k, v := range reports {
		if k == exclude {
			continue
		}
		counts[v]++
		others++
	}
	// Deterministic winner when counts tie (no strict majority then anyway).
	values := make([]string, 0, len(counts))
	for v := range counts {
		values = append(values, v)
	}
	sort.Strings(values)
	for _, v := range values {
		if counts[v]*2 > others {
			return v, true
		}
	}
	return "", false
}

// balanceLoad finds nodes whose load sits above the fleet average by more
// than the configured threshold and moves one of their assets to the least
// loaded active node. One migration per overloaded node per scan keeps the
// balancer from thrashing.
func (c *Coordinator) balanceLoad(ctx context.Context) {
	active := c.reg.Active()
	if len(active) < 2 {
		return
	}

	var total float64
	loads := make(map[string]float64, len(active))
	for _, n := range active {
		l := nodeLoad(n)
		loads[n.NodeID.Key()] = l
		total += l
	}
	avg := total / float64(len(active))

	for _, n := range active {
		if loads[n.NodeID.Key()] <= avg+c.cfg.LoadThreshold {
			continue
		}
		asset, ok := c.assetOn(n.NodeID)
		if !ok {
			continue
		}
		target, ok := leastLoaded(active, loads, n.NodeID, asset.Type)
		if !ok {
			continue
		}
		log.Printf("coordinator: rebalancing asset %s off overloaded node %s", asset.ID, n.NodeID.ShortKey())
		if _, err := c.MigrateAsset(ctx, asset, target); err != nil {
			log.Printf("coordinator: rebalance asset %s: %v", asset.ID, err)
		}
	}
}

// nodeLoad folds CPU and memory utilization into one figure.
func nodeLoad(n model.NodeInfo) float64 {
	return (n.Metrics.CPUUtilization + n.Metrics.MemoryUtilization) / 2
}

// assetOn returns one asset hosted by the node, in deterministic order.
func (c *Coordinator) assetOn(id model.NodeID) (model.AssetID, bool) {
	states := c.AssetStates()
	sort.Slice(states, func(i, j int) bool { return states[i].AssetID.ID < states[j].AssetID.ID })
	for _, st := range states {
		if st.PrimaryNode.Equal(id) {
			return st.AssetID, true
		}
	}
	return model.AssetID{}, false
}

// leastLoaded picks the lowest-load active node that can host the asset,
// excluding source. Nodes that do not advertise the asset's resource type are
// skipped.
func leastLoaded(active []model.NodeInfo, loads map[string]float64, source model.NodeID, rt model.ResourceType) (model.NodeID, bool) {
	var (
		best  model.NodeID
		min   float64
		found bool
	)
	for _, n := range active {
		if n.NodeID.Equal(source) || !n.Capabilities.SupportsType(rt) {
			continue
		}
		l := loads[n.NodeID.Key()]
		if !found || l < min {
			best, min, found = n.NodeID, l, true
		}
	}
	return best, found
}
