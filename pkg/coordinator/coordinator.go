// Package coordinator ties the node registry, topology manager, migrator and
// resource market together behind a single control-plane facade. It owns the
// fleet event pipeline and the periodic detector loops.
package coordinator

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/hypermesh-online/meshcoord/pkg/market"
	"github.com/hypermesh-online/meshcoord/pkg/migration"
	"github.com/hypermesh-online/meshcoord/pkg/model"
	"github.com/hypermesh-online/meshcoord/pkg/registry"
	"github.com/hypermesh-online/meshcoord/pkg/store"
	"github.com/hypermesh-online/meshcoord/pkg/topology"
)

// Config holds the coordinator's tuning knobs.
type Config struct {
	// HeartbeatInterval is how often the heartbeat monitor scans for stale
	// nodes.
	HeartbeatInterval time.Duration
	// FailureTimeout is how long a node may go without a heartbeat before it
	// is marked failed.
	FailureTimeout time.Duration
	// PartitionInterval is the partition detector's scan interval.
	PartitionInterval time.Duration
	// ByzantineInterval is the Byzantine detector's scan interval.
	ByzantineInterval time.Duration
	// LoadBalanceInterval is the load balancer's scan interval.
	LoadBalanceInterval time.Duration
	// MarketPurgeInterval is how often expired market entries are dropped.
	MarketPurgeInterval time.Duration

	// ByzantineThreshold is the suspicious-behaviour ratio above which a node
	// is flagged. Flagging requires strictly exceeding the threshold.
	ByzantineThreshold float64
	// LoadThreshold is the load deviation above the fleet average that marks
	// a node overloaded.
	LoadThreshold float64

	// EventBuffer is the capacity of the fleet event channel.
	EventBuffer int

	// AutoRecovery re-homes assets automatically when their primary fails.
	AutoRecovery bool
	// LoadBalancing enables the periodic load balancer.
	LoadBalancing bool
	// PreferLiveMigration selects the live strategy for new migration plans.
	PreferLiveMigration bool
}

// DefaultConfig returns the production defaults.
func DefaultConfig() Config {
	return Config{
		HeartbeatInterval:   10 * time.Second,
		FailureTimeout:      30 * time.Second,
		PartitionInterval:   30 * time.Second,
		ByzantineInterval:   60 * time.Second,
		LoadBalanceInterval: 120 * time.Second,
		MarketPurgeInterval: 5 * time.Minute,
		ByzantineThreshold:  0.33,
		LoadThreshold:       0.2,
		EventBuffer:         4096,
		AutoRecovery:        true,
		LoadBalancing:       true,
	}
}

// Coordinator is the control-plane facade. All mutating operations are safe
// for concurrent use; fleet metrics are written only by the event processor
// so the audit trail stays totally ordered.
type Coordinator struct {
	cfg Config

	reg  *registry.Registry
	topo *topology.Manager
	mig  *migration.Migrator
	mkt  *market.Market
	st   store.Store

	localMu sync.RWMutex
	local   model.NodeID

	assetsMu sync.RWMutex
	assets   map[string]*model.DistributedAssetState

	allocMu     sync.RWMutex
	allocations map[string]model.AllocationDecision

	reachMu   sync.RWMutex
	reachable map[string][]string

	events chan model.Event
	seq    atomic.Uint64

	metricsMu sync.RWMutex
	metrics   model.FleetMetrics

	subsMu  sync.Mutex
	subs    map[int]chan model.Event
	nextSub int

	started atomic.Bool
	cancel  context.CancelFunc
	wg      sync.WaitGroup

	now func() time.Time
}

// New assembles a Coordinator around the given store. st may be nil; market
// agreements and the event log then live only in memory.
func New(cfg Config, st store.Store) *Coordinator {
	if cfg.EventBuffer <= 0 {
		cfg.EventBuffer = DefaultConfig().EventBuffer
	}
	var agreeStore store.AgreementStore
	var usageStore store.UsageStore
	if st != nil {
		agreeStore = st.Agreements()
		usageStore = st.Usage()
	}
	return &Coordinator{
		cfg:  cfg,
		reg:  registry.New(),
		topo: topology.New(),
		mig:  migration.New(migration.Options{PreferLive: cfg.PreferLiveMigration}),
		mkt: market.New(market.Options{
			Agreements: agreeStore,
			Usage:      usageStore,
		}),
		st:          st,
		assets:      make(map[string]*model.DistributedAssetState),
		allocations: make(map[string]model.AllocationDecision),
		reachable:   make(map[string][]string),
		events:      make(chan model.Event, cfg.EventBuffer),
		subs:        make(map[int]chan model.Event),
		now:         time.Now,
	}
}

// Registry exposes the node registry for the API layer.
func (c *Coordinator) Registry() *registry.Registry { return c.reg }

// Migrator exposes the migration engine for the API layer.
func (c *Coordinator) Migrator() *migration.Migrator { return c.mig }

// Market exposes the resource market for the API layer.
func (c *Coordinator) Market() *market.Market { return c.mkt }

// TopologyManager exposes the topology manager for the API layer.
func (c *Coordinator) TopologyManager() *topology.Manager { return c.topo }

// SetClock overrides the coordinator's time source. Intended for tests.
func (c *Coordinator) SetClock(now func() time.Time) {
	c.localMu.Lock()
	c.now = now
	c.localMu.Unlock()
	c.reg.SetClock(now)
	c.topo.SetClock(now)
	c.mig.SetClock(now)
	c.mkt.SetClock(now)
}

// Initialize records the local node identity. It does not start the
// background loops; call Start for that.
func (c *Coordinator) Initialize(local model.NodeID) {
	c.localMu.Lock()
	defer c.localMu.Unlock()
	c.local = local
}

// LocalNode returns the identity set by Initialize.
func (c *Coordinator) LocalNode() model.NodeID {
	c.localMu.RLock()
	defer c.localMu.RUnlock()
	return c.local
}

// JoinNetwork admits a node to the fleet (or reactivates a known one,
// including a previously failed node) and emits a node_joined event. Rejoins
// are marked on the event so the fleet gauges count distinct nodes.
func (c *Coordinator) JoinNetwork(id model.NodeID, caps model.NodeCapabilities) error {
	prev, rejoin := c.reg.Join(id, caps)
	evt := model.Event{
		Type:         model.EventNodeJoined,
		Node:         &id,
		Capabilities: &caps,
	}
	if rejoin {
		evt.Rejoin = true
		evt.PrevStatus = prev
	}
	return c.publish(evt)
}

// LeaveNetwork removes a voluntarily departing node and emits a node_left
// event with the given reason.
func (c *Coordinator) LeaveNetwork(id model.NodeID, reason string) error {
	if err := c.reg.Leave(id); err != nil {
		return err
	}
	return c.publish(model.Event{
		Type:   model.EventNodeLeft,
		Node:   &id,
		Reason: reason,
	})
}

// Heartbeat refreshes a node's liveness timestamp.
func (c *Coordinator) Heartbeat(id model.NodeID) error {
	return c.reg.UpdateHeartbeat(id)
}

// UpdateNodeMetrics refreshes a node's performance profile and liveness.
func (c *Coordinator) UpdateNodeMetrics(id model.NodeID, m model.PerformanceMetrics) error {
	return c.reg.UpdateMetrics(id, m)
}

// UpdateNodeResources refreshes a node's free-capacity view.
func (c *Coordinator) UpdateNodeResources(id model.NodeID, avail model.AvailableResources) error {
	return c.reg.UpdateAvailable(id, avail)
}

// AllocateAsset places an asset on the best-scoring eligible node. proofValid
// carries the caller's consensus-proof verdict; a rejected proof fails the
// allocation before any placement work happens.
func (c *Coordinator) AllocateAsset(asset model.AssetID, proofValid bool) (model.AllocationDecision, error) {
	if !proofValid {
		return model.AllocationDecision{}, &model.AllocationError{Reason: "consensus proof rejected"}
	}
	target, score, err := c.SelectAllocationNode(asset.Type)
	if err != nil {
		return model.AllocationDecision{}, err
	}
	decision := model.AllocationDecision{
		AssetID:      asset,
		TargetNode:   target,
		Score:        score,
		DecidedAt:    c.now(),
		Participants: []model.NodeID{target},
	}

	c.allocMu.Lock()
	c.allocations[asset.ID] = decision
	c.allocMu.Unlock()

	c.assetsMu.Lock()
	c.assets[asset.ID] = &model.DistributedAssetState{
		AssetID:     asset,
		PrimaryNode: target,
		Reports:     make(map[string]string),
		UpdatedAt:   c.now(),
	}
	c.assetsMu.Unlock()
	return decision, nil
}

// ReleaseAsset drops the asset's tracked state and allocation record.
func (c *Coordinator) ReleaseAsset(asset model.AssetID) error {
	c.assetsMu.Lock()
	_, ok := c.assets[asset.ID]
	delete(c.assets, asset.ID)
	c.assetsMu.Unlock()
	if !ok {
		return &model.AssetNotFoundError{AssetID: asset}
	}
	c.allocMu.Lock()
	delete(c.allocations, asset.ID)
	c.allocMu.Unlock()
	return nil
}

// Allocation returns the recorded allocation decision for the asset.
func (c *Coordinator) Allocation(assetID string) (model.AllocationDecision, bool) {
	c.allocMu.RLock()
	defer c.allocMu.RUnlock()
	d, ok := c.allocations[assetID]
	return d, ok
}

// MigrateAsset moves the asset from its current primary to target, walking
// the full migration lifecycle. Callers may reference the asset by ID alone;
// the tracked record supplies the resource type. On success the asset's
// primary is switched; on failure the primary is left untouched and the asset
// can be re-planned.
func (c *Coordinator) MigrateAsset(ctx context.Context, asset model.AssetID, target model.NodeID) (model.MigrationStatus, error) {
	c.assetsMu.RLock()
	state, ok := c.assets[asset.ID]
	var source model.NodeID
	if ok {
		asset = state.AssetID
		source = state.PrimaryNode
	}
	c.assetsMu.RUnlock()
	if !ok {
		return model.MigrationStatus{}, &model.AssetNotFoundError{AssetID: asset}
	}
	info, known := c.reg.Get(target)
	if !known {
		return model.MigrationStatus{}, fmt.Errorf("migration target %q not found", target.ShortKey())
	}
	if info.Status != model.StatusActive {
		return model.MigrationStatus{}, fmt.Errorf("migration target %q is %s", target.ShortKey(), info.Status)
	}
	if !info.Capabilities.SupportsType(asset.Type) {
		return model.MigrationStatus{}, fmt.Errorf("migration target %q does not support %q assets", target.ShortKey(), asset.Type)
	}

	if _, err := c.mig.PlanMigration(asset, source, target, model.PriorityNormal); err != nil {
		return model.MigrationStatus{}, err
	}
	if err := c.publish(model.Event{
		Type:     model.EventMigrationStarted,
		AssetID:  &asset,
		FromNode: &source,
		ToNode:   &target,
	}); err != nil {
		return model.MigrationStatus{}, err
	}

	st, err := c.mig.ExecuteMigration(ctx, asset)
	if err != nil {
		_ = c.publish(model.Event{
			Type:     model.EventMigrationFailed,
			AssetID:  &asset,
			FromNode: &source,
			ToNode:   &target,
			Reason:   err.Error(),
		})
		return st, err
	}

	c.assetsMu.Lock()
	if cur, ok := c.assets[asset.ID]; ok {
		cur.PrimaryNode = target
		cur.UpdatedAt = c.now()
	}
	c.assetsMu.Unlock()

	_ = c.publish(model.Event{
		Type:     model.EventMigrationCompleted,
		AssetID:  &asset,
		FromNode: &source,
		ToNode:   &target,
	})
	return st, nil
}

// HandleNodeFailure re-homes every asset whose primary is the failed node.
// Each asset is handled independently; the first error is returned after all
// assets have been attempted. Assets whose primary turns out to be healthy
// again are skipped, which makes the operation idempotent.
func (c *Coordinator) HandleNodeFailure(ctx context.Context, failed model.NodeID) error {
	c.assetsMu.RLock()
	var affected []model.AssetID
	for _, st := range c.assets {
		if st.PrimaryNode.Equal(failed) {
			affected = append(affected, st.AssetID)
		}
	}
	c.assetsMu.RUnlock()

	var firstErr error
	for _, asset := range affected {
		c.assetsMu.RLock()
		st, ok := c.assets[asset.ID]
		var primary model.NodeID
		if ok {
			primary = st.PrimaryNode
		}
		c.assetsMu.RUnlock()
		if !ok {
			continue
		}
		if info, known := c.reg.Get(primary); known && info.Status == model.StatusActive {
			continue
		}
		target, _, err := c.SelectAllocationNode(asset.Type, failed)
		if err == nil {
			_, err = c.MigrateAsset(ctx, asset, target)
		}
		if err != nil && firstErr == nil {
			firstErr = fmt.Errorf("recover asset %q: %w", asset.ID, err)
		}
	}
	return firstErr
}

// SyncAssetState records what an observing node reports about an asset. The
// reports feed the Byzantine detector's majority comparison.
func (c *Coordinator) SyncAssetState(asset model.AssetID, observer model.NodeID, state string) error {
	c.assetsMu.Lock()
	defer c.assetsMu.Unlock()
	st, ok := c.assets[asset.ID]
	if !ok {
		return &model.AssetNotFoundError{AssetID: asset}
	}
	st.Reports[observer.Key()] = state
	st.UpdatedAt = c.now()
	return nil
}

// AssetState returns a copy of the asset's tracked state.
func (c *Coordinator) AssetState(asset model.AssetID) (model.DistributedAssetState, error) {
	c.assetsMu.RLock()
	defer c.assetsMu.RUnlock()
	st, ok := c.assets[asset.ID]
	if !ok {
		return model.DistributedAssetState{}, &model.AssetNotFoundError{AssetID: asset}
	}
	cp := *st
	cp.Reports = make(map[string]string, len(st.Reports))
	for k, v := range st.Reports {
		cp.Reports[k] = v
	}
	return cp, nil
}

// AssetStates returns copies of all tracked asset states.
func (c *Coordinator) AssetStates() []model.DistributedAssetState {
	c.assetsMu.RLock()
	defer c.assetsMu.RUnlock()
	out := make([]model.DistributedAssetState, 0, len(c.assets))
	for _, st := range c.assets {
		cp := *st
		cp.Reports = make(map[string]string, len(st.Reports))
		for k, v := range st.Reports {
			cp.Reports[k] = v
		}
		out = append(out, cp)
	}
	return out
}

// OfferResources places capacity on the market.
func (c *Coordinator) OfferResources(offer model.ResourceOffer) error {
	return c.mkt.SubmitOffer(offer)
}

// RequestResources asks the market for capacity. The returned slice holds the
// offers the request was eligible for at submission time.
func (c *Coordinator) RequestResources(req model.ResourceRequest) ([]model.ResourceOffer, error) {
	return c.mkt.SubmitRequest(req)
}

// GetTopology assembles the current fleet connectivity snapshot.
func (c *Coordinator) GetTopology() model.NetworkTopology {
	return c.topo.Snapshot(c.reg.List())
}

// ReportReachability records which peers a node can currently reach. The
// partition detector consumes these reports.
func (c *Coordinator) ReportReachability(from model.NodeID, peers []model.NodeID) {
	keys := make([]string, 0, len(peers))
	for _, p := range peers {
		keys = append(keys, p.Key())
	}
	c.reachMu.Lock()
	c.reachable[from.Key()] = keys
	c.reachMu.Unlock()
}

// reachabilitySnapshot copies the current reachability reports.
func (c *Coordinator) reachabilitySnapshot() map[string][]string {
	c.reachMu.RLock()
	defer c.reachMu.RUnlock()
	out := make(map[string][]string, len(c.reachable))
	for k, v := range c.reachable {
		cp := make([]string, len(v))
		copy(cp, v)
		out[k] = cp
	}
	return out
}

// Metrics returns a snapshot of the fleet-wide counters.
func (c *Coordinator) Metrics() model.FleetMetrics {
	c.metricsMu.RLock()
	defer c.metricsMu.RUnlock()
	return c.metrics
}

// RecentEvents returns the most recent fleet events from the store, newest
// first. Returns nil when no store is configured.
func (c *Coordinator) RecentEvents(limit int) ([]model.Event, error) {
	if c.st == nil {
		return nil, nil
	}
	return c.st.Events().List(limit)
}

// UsageRecords returns persisted billing records for an agreement. Returns
// nil when no store is configured.
func (c *Coordinator) UsageRecords(agreementID string, limit int) ([]model.UsageRecord, error) {
	if c.st == nil {
		return nil, nil
	}
	return c.st.Usage().List(agreementID, limit)
}
