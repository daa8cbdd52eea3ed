package coordinator

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/hypermesh-online/meshcoord/pkg/model"
	"github.com/hypermesh-online/meshcoord/pkg/store"
)

func nodeID(b byte) model.NodeID {
	var id model.NodeID
	id.ID[0] = b
	id.TrustScore = 1.0
	return id
}

func cpuCaps(cores uint32, mem uint64) model.NodeCapabilities {
	return model.NodeCapabilities{
		CPUCores:    cores,
		MemoryBytes: mem,
		Supported:   []model.ResourceType{model.ResourceCPU, model.ResourceMemory},
	}
}

// testConfig disables every periodic loop so tests drive ticks by hand.
func testConfig() Config {
	cfg := DefaultConfig()
	cfg.HeartbeatInterval = 0
	cfg.PartitionInterval = 0
	cfg.ByzantineInterval = 0
	cfg.LoadBalanceInterval = 0
	cfg.MarketPurgeInterval = 0
	cfg.AutoRecovery = false
	cfg.LoadBalancing = false
	return cfg
}

func waitEvent(t *testing.T, ch <-chan model.Event, typ model.EventType) model.Event {
	t.Helper()
	deadline := time.After(2 * time.Second)
	for {
		select {
		case evt := <-ch:
			if evt.Type == typ {
				return evt
			}
		case <-deadline:
			t.Fatalf("timed out waiting for %s event", typ)
		}
	}
}

func requireNoEvent(t *testing.T, ch <-chan model.Event) {
	t.Helper()
	select {
	case evt := <-ch:
		t.Fatalf("unexpected event %s", evt.Type)
	case <-time.After(100 * time.Millisecond):
	}
}

func TestAllocateAssetPlacesOnBestNode(t *testing.T) {
	c := New(testConfig(), nil)
	require.NoError(t, c.JoinNetwork(nodeID(1), cpuCaps(8, 16<<30)))
	require.NoError(t, c.JoinNetwork(nodeID(2), cpuCaps(8, 16<<30)))

	// Node 2 is half busy; node 1 must win on free capacity.
	require.NoError(t, c.UpdateNodeResources(nodeID(2), model.AvailableResources{
		CPUCores: 4, MemoryBytes: 8 << 30,
	}))

	asset := model.AssetID{ID: "asset-1", Type: model.ResourceCPU}
	decision, err := c.AllocateAsset(asset, true)
	require.NoError(t, err)
	require.True(t, decision.TargetNode.Equal(nodeID(1)))
	require.Greater(t, decision.Score, 0.0)

	st, err := c.AssetState(asset)
	require.NoError(t, err)
	require.True(t, st.PrimaryNode.Equal(nodeID(1)))

	recorded, ok := c.Allocation("asset-1")
	require.True(t, ok)
	require.True(t, recorded.TargetNode.Equal(nodeID(1)))
}

func TestAllocateAssetRejectsInvalidProof(t *testing.T) {
	c := New(testConfig(), nil)
	require.NoError(t, c.JoinNetwork(nodeID(1), cpuCaps(4, 8<<30)))

	_, err := c.AllocateAsset(model.AssetID{ID: "a", Type: model.ResourceCPU}, false)
	var allocErr *model.AllocationError
	require.True(t, errors.As(err, &allocErr))
	require.Contains(t, allocErr.Reason, "proof")

	// Nothing was tracked.
	_, err = c.AssetState(model.AssetID{ID: "a"})
	require.Error(t, err)
}

func TestAllocateAssetNoEligibleNode(t *testing.T) {
	c := New(testConfig(), nil)
	// The only node does not advertise GPU.
	require.NoError(t, c.JoinNetwork(nodeID(1), cpuCaps(4, 8<<30)))

	_, err := c.AllocateAsset(model.AssetID{ID: "g", Type: model.ResourceGPU}, true)
	var allocErr *model.AllocationError
	require.True(t, errors.As(err, &allocErr))
}

func TestSelectorDeterministicOnTies(t *testing.T) {
	c := New(testConfig(), nil)
	// Identical nodes: the winner must be the first in key order every time.
	require.NoError(t, c.JoinNetwork(nodeID(7), cpuCaps(4, 8<<30)))
	require.NoError(t, c.JoinNetwork(nodeID(3), cpuCaps(4, 8<<30)))

	for i := 0; i < 10; i++ {
		winner, _, err := c.SelectAllocationNode(model.ResourceCPU)
		require.NoError(t, err)
		require.True(t, winner.Equal(nodeID(3)), "tie must go to the lower key")
	}
}

func TestSelectorWeighsTrustAndResponsiveness(t *testing.T) {
	c := New(testConfig(), nil)
	slow := nodeID(1)
	fast := nodeID(2)
	require.NoError(t, c.JoinNetwork(slow, cpuCaps(4, 8<<30)))
	require.NoError(t, c.JoinNetwork(fast, cpuCaps(4, 8<<30)))

	require.NoError(t, c.UpdateNodeMetrics(slow, model.PerformanceMetrics{
		AvgResponseMs: 3000, SuccessRate: 1.0,
	}))
	require.NoError(t, c.UpdateNodeMetrics(fast, model.PerformanceMetrics{
		AvgResponseMs: 10, SuccessRate: 1.0,
	}))

	winner, _, err := c.SelectAllocationNode(model.ResourceCPU)
	require.NoError(t, err)
	require.True(t, winner.Equal(fast))

	// Zero trust takes a node out of the running no matter its capacity.
	c.Registry().AdjustTrust(fast, -1.0)
	winner, _, err = c.SelectAllocationNode(model.ResourceCPU)
	require.NoError(t, err)
	require.True(t, winner.Equal(slow))
}

func TestMigrateAssetSwitchesPrimary(t *testing.T) {
	c := New(testConfig(), store.NewMemoryStore())
	require.NoError(t, c.JoinNetwork(nodeID(1), cpuCaps(8, 16<<30)))
	require.NoError(t, c.JoinNetwork(nodeID(2), cpuCaps(8, 16<<30)))

	asset := model.AssetID{ID: "asset-1", Type: model.ResourceCPU}
	_, err := c.AllocateAsset(asset, true)
	require.NoError(t, err)

	st, err := c.MigrateAsset(context.Background(), asset, nodeID(2))
	require.NoError(t, err)
	require.Equal(t, model.MigrationCompleted, st.State)
	require.Equal(t, float64(100), st.Progress)

	state, err := c.AssetState(asset)
	require.NoError(t, err)
	require.True(t, state.PrimaryNode.Equal(nodeID(2)))
}

func TestMigrateAssetUnknownAssetOrTarget(t *testing.T) {
	c := New(testConfig(), nil)
	require.NoError(t, c.JoinNetwork(nodeID(1), cpuCaps(4, 8<<30)))

	_, err := c.MigrateAsset(context.Background(), model.AssetID{ID: "ghost"}, nodeID(1))
	var notFound *model.AssetNotFoundError
	require.True(t, errors.As(err, &notFound))

	asset := model.AssetID{ID: "asset-1", Type: model.ResourceCPU}
	_, err = c.AllocateAsset(asset, true)
	require.NoError(t, err)
	_, err = c.MigrateAsset(context.Background(), asset, nodeID(9))
	require.Error(t, err)
}

func TestMigrateAssetUsesTrackedResourceType(t *testing.T) {
	c := New(testConfig(), nil)
	require.NoError(t, c.JoinNetwork(nodeID(1), cpuCaps(8, 16<<30)))
	require.NoError(t, c.JoinNetwork(nodeID(2), cpuCaps(8, 16<<30)))

	_, err := c.AllocateAsset(model.AssetID{ID: "asset-1", Type: model.ResourceMemory}, true)
	require.NoError(t, err)

	// Reference by ID alone: the tracked record supplies the type, so the
	// plan carries memory-scaled estimates rather than the defaults.
	st, err := c.MigrateAsset(context.Background(), model.AssetID{ID: "asset-1"}, nodeID(2))
	require.NoError(t, err)
	require.Equal(t, model.ResourceMemory, st.Plan.AssetID.Type)
	require.Equal(t, uint64(4<<30), st.Plan.EstimatedBytes)
	require.Equal(t, 30*time.Second, st.Plan.EstimatedDuration)
}

func TestMigrateAssetRejectsIneligibleTarget(t *testing.T) {
	c := New(testConfig(), nil)
	src := nodeID(1)
	down := nodeID(2)
	memOnly := nodeID(3)
	require.NoError(t, c.JoinNetwork(src, cpuCaps(8, 16<<30)))
	require.NoError(t, c.JoinNetwork(down, cpuCaps(8, 16<<30)))
	require.NoError(t, c.JoinNetwork(memOnly, model.NodeCapabilities{
		MemoryBytes: 8 << 30,
		Supported:   []model.ResourceType{model.ResourceMemory},
	}))

	asset := model.AssetID{ID: "asset-1", Type: model.ResourceCPU}
	_, err := c.AllocateAsset(asset, true)
	require.NoError(t, err)
	c.Registry().MarkFailed(down)

	// A failed node is not a valid target, nor is one that does not
	// advertise the asset's resource type.
	_, err = c.MigrateAsset(context.Background(), asset, down)
	require.Error(t, err)
	_, err = c.MigrateAsset(context.Background(), asset, memOnly)
	require.Error(t, err)

	// Neither attempt planned anything or moved the asset.
	st, err := c.AssetState(asset)
	require.NoError(t, err)
	require.True(t, st.PrimaryNode.Equal(src))
	require.Empty(t, c.Migrator().History())
	require.Empty(t, c.Migrator().Active())
}

func TestHandleNodeFailureRecoversAssets(t *testing.T) {
	c := New(testConfig(), nil)
	big := nodeID(1)
	small := nodeID(2)
	require.NoError(t, c.JoinNetwork(big, cpuCaps(8, 16<<30)))
	require.NoError(t, c.JoinNetwork(small, cpuCaps(2, 4<<30)))

	// Both assets land on the big node.
	a1 := model.AssetID{ID: "asset-1", Type: model.ResourceCPU}
	a2 := model.AssetID{ID: "asset-2", Type: model.ResourceMemory}
	for _, a := range []model.AssetID{a1, a2} {
		decision, err := c.AllocateAsset(a, true)
		require.NoError(t, err)
		require.True(t, decision.TargetNode.Equal(big))
	}

	c.Registry().MarkFailed(big)
	require.NoError(t, c.HandleNodeFailure(context.Background(), big))

	for _, a := range []model.AssetID{a1, a2} {
		st, err := c.AssetState(a)
		require.NoError(t, err)
		require.True(t, st.PrimaryNode.Equal(small), "asset %s not re-homed", a.ID)
	}
	require.Len(t, c.Migrator().History(), 2)
}

func TestHandleNodeFailureSkipsHealthyPrimary(t *testing.T) {
	c := New(testConfig(), nil)
	require.NoError(t, c.JoinNetwork(nodeID(1), cpuCaps(8, 16<<30)))
	require.NoError(t, c.JoinNetwork(nodeID(2), cpuCaps(8, 16<<30)))

	asset := model.AssetID{ID: "asset-1", Type: model.ResourceCPU}
	_, err := c.AllocateAsset(asset, true)
	require.NoError(t, err)

	// The primary is still active: re-running recovery must be a no-op.
	require.NoError(t, c.HandleNodeFailure(context.Background(), nodeID(1)))
	require.Empty(t, c.Migrator().History())

	st, err := c.AssetState(asset)
	require.NoError(t, err)
	require.True(t, st.PrimaryNode.Equal(nodeID(1)))
}

func TestHandleNodeFailureNoFallbackNode(t *testing.T) {
	c := New(testConfig(), nil)
	only := nodeID(1)
	require.NoError(t, c.JoinNetwork(only, cpuCaps(8, 16<<30)))

	asset := model.AssetID{ID: "asset-1", Type: model.ResourceCPU}
	_, err := c.AllocateAsset(asset, true)
	require.NoError(t, err)

	c.Registry().MarkFailed(only)
	err = c.HandleNodeFailure(context.Background(), only)
	require.Error(t, err, "no eligible target must surface an error")

	// The asset keeps its (failed) primary so a later recovery can retry.
	st, stateErr := c.AssetState(asset)
	require.NoError(t, stateErr)
	require.True(t, st.PrimaryNode.Equal(only))
}

func TestHeartbeatMonitorFailsNodesExactlyOnce(t *testing.T) {
	c := New(testConfig(), nil)
	now := time.Unix(50000, 0)
	c.SetClock(func() time.Time { return now })

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	c.Start(ctx)
	defer c.Stop()

	sub, unsub := c.Subscribe(16)
	defer unsub()

	require.NoError(t, c.JoinNetwork(nodeID(1), cpuCaps(4, 8<<30)))
	waitEvent(t, sub, model.EventNodeJoined)

	now = now.Add(31 * time.Second)
	c.checkHeartbeats(ctx)
	evt := waitEvent(t, sub, model.EventNodeFailed)
	require.Equal(t, "heartbeat timeout", evt.Reason)

	n, _ := c.Registry().Get(nodeID(1))
	require.Equal(t, model.StatusFailed, n.Status)

	// A second scan must not emit a second failure event.
	c.checkHeartbeats(ctx)
	requireNoEvent(t, sub)
}

func TestEventProcessorOwnsFleetMetrics(t *testing.T) {
	st := store.NewMemoryStore()
	c := New(testConfig(), st)
	now := time.Unix(50000, 0)
	c.SetClock(func() time.Time { return now })

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	c.Start(ctx)
	defer c.Stop()

	sub, unsub := c.Subscribe(16)
	defer unsub()

	require.NoError(t, c.JoinNetwork(nodeID(1), cpuCaps(4, 8<<30)))
	require.NoError(t, c.JoinNetwork(nodeID(2), cpuCaps(4, 8<<30)))
	waitEvent(t, sub, model.EventNodeJoined)
	waitEvent(t, sub, model.EventNodeJoined)

	now = now.Add(31 * time.Second)
	require.NoError(t, c.Heartbeat(nodeID(2)))
	c.checkHeartbeats(ctx)
	waitEvent(t, sub, model.EventNodeFailed)

	m := c.Metrics()
	require.Equal(t, uint64(2), m.TotalNodes)
	require.Equal(t, uint64(1), m.HealthyNodes)
	require.Equal(t, uint64(1), m.FailedNodes)
	require.Equal(t, uint64(3), m.EventsProcessed)

	// The audit log is totally ordered and newest first.
	events, err := c.RecentEvents(10)
	require.NoError(t, err)
	require.Len(t, events, 3)
	require.Equal(t, model.EventNodeFailed, events[0].Type)
	require.Equal(t, uint64(3), events[0].Seq)
}

func TestRejoinDoesNotInflateFleetGauges(t *testing.T) {
	c := New(testConfig(), nil)
	now := time.Unix(50000, 0)
	c.SetClock(func() time.Time { return now })

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	c.Start(ctx)
	defer c.Stop()

	sub, unsub := c.Subscribe(16)
	defer unsub()

	require.NoError(t, c.JoinNetwork(nodeID(1), cpuCaps(4, 8<<30)))
	waitEvent(t, sub, model.EventNodeJoined)
	require.NoError(t, c.JoinNetwork(nodeID(1), cpuCaps(4, 8<<30)))
	evt := waitEvent(t, sub, model.EventNodeJoined)
	require.True(t, evt.Rejoin)

	// The registry holds one node; the gauges must agree.
	m := c.Metrics()
	require.Equal(t, uint64(1), m.TotalNodes)
	require.Equal(t, uint64(1), m.HealthyNodes)

	// A failed node rejoining moves from failed back to healthy.
	now = now.Add(31 * time.Second)
	c.checkHeartbeats(ctx)
	waitEvent(t, sub, model.EventNodeFailed)

	require.NoError(t, c.JoinNetwork(nodeID(1), cpuCaps(4, 8<<30)))
	evt = waitEvent(t, sub, model.EventNodeJoined)
	require.Equal(t, model.StatusFailed, evt.PrevStatus)

	m = c.Metrics()
	require.Equal(t, uint64(1), m.TotalNodes)
	require.Equal(t, uint64(1), m.HealthyNodes)
	require.Equal(t, uint64(0), m.FailedNodes)
}

func TestPartitionScanDetectsAndHeals(t *testing.T) {
	c := New(testConfig(), nil)
	now := time.Unix(50000, 0)
	c.SetClock(func() time.Time { return now })

	a, b, isolated := nodeID(1), nodeID(2), nodeID(3)
	for _, id := range []model.NodeID{a, b, isolated} {
		require.NoError(t, c.JoinNetwork(id, cpuCaps(4, 8<<30)))
	}

	c.ReportReachability(a, []model.NodeID{b})
	c.scanPartitions(context.Background())

	open := c.TopologyManager().OpenPartitions()
	require.Len(t, open, 1)
	require.Len(t, open[0].Nodes, 1)
	require.True(t, open[0].Nodes[0].Equal(isolated))

	n, _ := c.Registry().Get(isolated)
	require.Equal(t, model.StatusPartitioned, n.Status)

	// Connectivity restored: the next scan heals and reactivates members.
	c.ReportReachability(b, []model.NodeID{isolated})
	c.scanPartitions(context.Background())

	require.Empty(t, c.TopologyManager().OpenPartitions())
	n, _ = c.Registry().Get(isolated)
	require.Equal(t, model.StatusActive, n.Status)
}

func TestPartitionScanStableWhileDisconnected(t *testing.T) {
	c := New(testConfig(), nil)
	now := time.Unix(50000, 0)
	c.SetClock(func() time.Time { return now })

	a, b, isolated := nodeID(1), nodeID(2), nodeID(3)
	for _, id := range []model.NodeID{a, b, isolated} {
		require.NoError(t, c.JoinNetwork(id, cpuCaps(4, 8<<30)))
	}
	c.ReportReachability(a, []model.NodeID{b})

	// The isolated node keeps heartbeating but the link never comes back:
	// repeated scans must neither heal the record nor open a duplicate
	// under a fresh ID.
	for i := 0; i < 3; i++ {
		c.scanPartitions(context.Background())
	}

	all := c.TopologyManager().Partitions()
	require.Len(t, all, 1)
	require.False(t, all[0].Healed)
	require.Len(t, c.TopologyManager().OpenPartitions(), 1)

	n, _ := c.Registry().Get(isolated)
	require.Equal(t, model.StatusPartitioned, n.Status)
}

func TestByzantineDetectionBoundary(t *testing.T) {
	cfg := testConfig()
	cfg.ByzantineThreshold = 1.0 / 3.0
	c := New(cfg, nil)

	liar := nodeID(1)
	honest := []model.NodeID{nodeID(2), nodeID(3), nodeID(4)}
	require.NoError(t, c.JoinNetwork(liar, cpuCaps(4, 8<<30)))
	for _, id := range honest {
		require.NoError(t, c.JoinNetwork(id, cpuCaps(4, 8<<30)))
	}

	assets := []model.AssetID{
		{ID: "asset-1", Type: model.ResourceCPU},
		{ID: "asset-2", Type: model.ResourceCPU},
		{ID: "asset-3", Type: model.ResourceCPU},
	}
	for _, a := range assets {
		_, err := c.AllocateAsset(a, true)
		require.NoError(t, err)
		for _, id := range honest {
			require.NoError(t, c.SyncAssetState(a, id, "hash-ok"))
		}
	}

	// One disagreement out of three observed assets: exactly at the
	// threshold, which must not flag.
	require.NoError(t, c.SyncAssetState(assets[0], liar, "hash-bad"))
	require.NoError(t, c.SyncAssetState(assets[1], liar, "hash-ok"))
	require.NoError(t, c.SyncAssetState(assets[2], liar, "hash-ok"))
	require.Empty(t, c.DetectByzantineNodes())

	// A second disagreement pushes the ratio strictly past the threshold.
	require.NoError(t, c.SyncAssetState(assets[1], liar, "hash-bad"))
	flagged := c.DetectByzantineNodes()
	require.Len(t, flagged, 1)
	require.True(t, flagged[0].Equal(liar))

	n, _ := c.Registry().Get(liar)
	require.Equal(t, model.StatusSuspected, n.Status)
	require.Less(t, n.NodeID.TrustScore, 1.0)
}

func TestLowSuccessRateCountsAsSuspicious(t *testing.T) {
	cfg := testConfig()
	cfg.ByzantineThreshold = 0.33
	c := New(cfg, nil)

	flaky := nodeID(1)
	require.NoError(t, c.JoinNetwork(flaky, cpuCaps(4, 8<<30)))
	require.NoError(t, c.UpdateNodeMetrics(flaky, model.PerformanceMetrics{SuccessRate: 0.2}))

	// No asset reports at all: one strike over a floor of one observation.
	flagged := c.DetectByzantineNodes()
	require.Len(t, flagged, 1)
	require.True(t, flagged[0].Equal(flaky))
}

func TestBalanceLoadMovesAssetOffHotNode(t *testing.T) {
	c := New(testConfig(), nil)
	hot := nodeID(1)
	cold := nodeID(2)
	require.NoError(t, c.JoinNetwork(hot, cpuCaps(8, 16<<30)))
	require.NoError(t, c.JoinNetwork(cold, cpuCaps(8, 16<<30)))

	asset := model.AssetID{ID: "asset-1", Type: model.ResourceCPU}
	_, err := c.AllocateAsset(asset, true)
	require.NoError(t, err)
	// Pin the asset onto the hot node regardless of scoring.
	st, err := c.AssetState(asset)
	require.NoError(t, err)
	if !st.PrimaryNode.Equal(hot) {
		_, err = c.MigrateAsset(context.Background(), asset, hot)
		require.NoError(t, err)
	}

	require.NoError(t, c.UpdateNodeMetrics(hot, model.PerformanceMetrics{
		CPUUtilization: 0.9, MemoryUtilization: 0.9, SuccessRate: 1.0,
	}))
	require.NoError(t, c.UpdateNodeMetrics(cold, model.PerformanceMetrics{
		CPUUtilization: 0.1, MemoryUtilization: 0.1, SuccessRate: 1.0,
	}))

	c.balanceLoad(context.Background())

	moved, err := c.AssetState(asset)
	require.NoError(t, err)
	require.True(t, moved.PrimaryNode.Equal(cold))
}

func TestBalanceLoadSkipsIncapableTarget(t *testing.T) {
	c := New(testConfig(), nil)
	hot := nodeID(1)
	memOnly := nodeID(2)
	require.NoError(t, c.JoinNetwork(hot, cpuCaps(8, 16<<30)))
	require.NoError(t, c.JoinNetwork(memOnly, model.NodeCapabilities{
		MemoryBytes: 16 << 30,
		Supported:   []model.ResourceType{model.ResourceMemory},
	}))

	asset := model.AssetID{ID: "asset-1", Type: model.ResourceCPU}
	_, err := c.AllocateAsset(asset, true)
	require.NoError(t, err)

	require.NoError(t, c.UpdateNodeMetrics(hot, model.PerformanceMetrics{
		CPUUtilization: 0.9, MemoryUtilization: 0.9, SuccessRate: 1.0,
	}))
	require.NoError(t, c.UpdateNodeMetrics(memOnly, model.PerformanceMetrics{
		CPUUtilization: 0.1, MemoryUtilization: 0.1, SuccessRate: 1.0,
	}))

	c.balanceLoad(context.Background())

	// The only idle node cannot host CPU assets, so nothing moves.
	st, err := c.AssetState(asset)
	require.NoError(t, err)
	require.True(t, st.PrimaryNode.Equal(hot))
	require.Empty(t, c.Migrator().History())
}

func TestHandleEventRejectsUntyped(t *testing.T) {
	c := New(testConfig(), nil)
	err := c.HandleEvent(model.Event{})
	var netErr *model.NetworkError
	require.True(t, errors.As(err, &netErr))
}

func TestPublishFailsWhenChannelFull(t *testing.T) {
	cfg := testConfig()
	cfg.EventBuffer = 1
	c := New(cfg, nil) // processor not started: the buffer fills immediately

	require.NoError(t, c.HandleEvent(model.Event{Type: model.EventNodeJoined}))
	err := c.HandleEvent(model.Event{Type: model.EventNodeJoined})
	var netErr *model.NetworkError
	require.True(t, errors.As(err, &netErr))
}

func TestSyncAssetStateUnknownAsset(t *testing.T) {
	c := New(testConfig(), nil)
	err := c.SyncAssetState(model.AssetID{ID: "ghost"}, nodeID(1), "hash")
	var notFound *model.AssetNotFoundError
	require.True(t, errors.As(err, &notFound))
}

func TestReleaseAsset(t *testing.T) {
	c := New(testConfig(), nil)
	require.NoError(t, c.JoinNetwork(nodeID(1), cpuCaps(4, 8<<30)))

	asset := model.AssetID{ID: "asset-1", Type: model.ResourceCPU}
	_, err := c.AllocateAsset(asset, true)
	require.NoError(t, err)

	require.NoError(t, c.ReleaseAsset(asset))
	_, ok := c.Allocation("asset-1")
	require.False(t, ok)
	require.Error(t, c.ReleaseAsset(asset))
}
