// Package model defines the core data types for the HyperMesh coordination
// control plane.
package model

import (
	"encoding/hex"
	"time"
)

// NodeID identifies a mesh node. The raw identifier is immutable once created;
// the trust score is the only mutable field and evolves over the node's
// lifetime.
type NodeID struct {
	ID         [32]byte `json:"id"`
	Address    string   `json:"address"`
	PublicKey  []byte   `json:"public_key,omitempty"`
	TrustScore float64  `json:"trust_score"`
}

// Key returns the hex form of the raw identifier, used as a map/store key.
func (n NodeID) Key() string {
	return hex.EncodeToString(n.ID[:])
}

// Equal reports whether two NodeIDs name the same node. Address, key material
// and trust score are not part of identity.
func (n NodeID) Equal(other NodeID) bool {
	return n.ID == other.ID
}

// ShortKey returns the first 8 bytes of the identifier in hex, for log lines.
func (n NodeID) ShortKey() string {
	return hex.EncodeToString(n.ID[:8])
}

// ResourceType enumerates the shareable hardware resource classes.
type ResourceType string

const (
	ResourceCPU       ResourceType = "cpu"
	ResourceMemory    ResourceType = "memory"
	ResourceGPU       ResourceType = "gpu"
	ResourceStorage   ResourceType = "storage"
	ResourceBandwidth ResourceType = "bandwidth"
)

// AssetID identifies a resource allocation. The resource type travels with the
// identifier so placement decisions do not need a separate lookup.
type AssetID struct {
	ID   string       `json:"id"`
	Type ResourceType `json:"type"`
}

// HardwareFeatures describes security and I/O hardware available on a node.
type HardwareFeatures struct {
	SGXEnabled  bool `json:"sgx_enabled"`
	SEVEnabled  bool `json:"sev_enabled"`
	TPMPresent  bool `json:"tpm_present"`
	HWRng       bool `json:"hw_rng"`
	NVMeStorage bool `json:"nvme_storage"`
	RDMACapable bool `json:"rdma_capable"`
	SRIOV       bool `json:"sriov"`
}

// NodeCapabilities describes the total shareable capacity of a node.
type NodeCapabilities struct {
	CPUCores      uint32           `json:"cpu_cores"`
	MemoryBytes   uint64           `json:"memory_bytes"`
	GPUDevices    uint32           `json:"gpu_devices"`
	StorageBytes  uint64           `json:"storage_bytes"`
	BandwidthMbps uint64           `json:"bandwidth_mbps"`
	Supported     []ResourceType   `json:"supported"`
	Hardware      HardwareFeatures `json:"hardware"`
	Software      []string         `json:"software,omitempty"`
}

// SupportsType reports whether the node advertises the given resource type.
func (c NodeCapabilities) SupportsType(rt ResourceType) bool {
	for _, s := range c.Supported {
		if s == rt {
			return true
		}
	}
	return false
}

// AvailableResources is the currently free capacity on a node. Every field is
// clamped so it never exceeds the matching NodeCapabilities field.
type AvailableResources struct {
	CPUCores      float64 `json:"cpu_cores"`
	MemoryBytes   uint64  `json:"memory_bytes"`
	GPUDevices    uint32  `json:"gpu_devices"`
	StorageBytes  uint64  `json:"storage_bytes"`
	BandwidthMbps uint64  `json:"bandwidth_mbps"`
}

// ClampTo enforces the capacity invariant against caps.
func (a *AvailableResources) ClampTo(caps NodeCapabilities) {
	if a.CPUCores > float64(caps.CPUCores) {
		a.CPUCores = float64(caps.CPUCores)
	}
	if a.MemoryBytes > caps.MemoryBytes {
		a.MemoryBytes = caps.MemoryBytes
	}
	if a.GPUDevices > caps.GPUDevices {
		a.GPUDevices = caps.GPUDevices
	}
	if a.StorageBytes > caps.StorageBytes {
		a.StorageBytes = caps.StorageBytes
	}
	if a.BandwidthMbps > caps.BandwidthMbps {
		a.BandwidthMbps = caps.BandwidthMbps
	}
}

// NodeLocation is the geographic placement of a node.
type NodeLocation struct {
	Datacenter string  `json:"datacenter"`
	Region     string  `json:"region"`
	Country    string  `json:"country"`
	Latitude   float64 `json:"latitude"`
	Longitude  float64 `json:"longitude"`
	Zone       string  `json:"zone"`
}

// PerformanceMetrics is the rolling operational profile of a node, refreshed
// by heartbeats.
type PerformanceMetrics struct {
	CPUUtilization    float64 `json:"cpu_utilization"`
	MemoryUtilization float64 `json:"memory_utilization"`
	AvgResponseMs     float64 `json:"avg_response_ms"`
	SuccessRate       float64 `json:"success_rate"`
	ActiveAssets      uint64  `json:"active_assets"`
}

// NodeInfo is the per-node registry record.
type NodeInfo struct {
	NodeID        NodeID             `json:"node_id"`
	Capabilities  NodeCapabilities   `json:"capabilities"`
	Status        NodeStatus         `json:"status"`
	LastHeartbeat time.Time          `json:"last_heartbeat"`
	Location      NodeLocation       `json:"location"`
	Available     AvailableResources `json:"available"`
	Metrics       PerformanceMetrics `json:"metrics"`
}

// NetworkPartition records a detected partition: the partitioned subset, when
// it was detected, and whether it has healed. Healed flips exactly once.
type NetworkPartition struct {
	PartitionID string    `json:"partition_id"`
	Nodes       []NodeID  `json:"nodes"`
	DetectedAt  time.Time `json:"detected_at"`
	Healed      bool      `json:"healed"`
	HealedAt    time.Time `json:"healed_at,omitempty"`
}

// NetworkTopology is a snapshot of the fleet's connectivity view.
type NetworkTopology struct {
	Nodes           []NodeInfo                    `json:"nodes"`
	Partitions      []NetworkPartition            `json:"partitions"`
	LatencyMatrix   map[string]map[string]float64 `json:"latency_matrix,omitempty"`
	BandwidthMatrix map[string]map[string]uint64  `json:"bandwidth_matrix,omitempty"`
	LastUpdated     time.Time                     `json:"last_updated"`
}

// DistributedAssetState tracks who hosts an allocation and what every
// observing node last reported about it. Reports feed the Byzantine majority
// comparison; the primary node feeds failure recovery.
type DistributedAssetState struct {
	AssetID     AssetID           `json:"asset_id"`
	PrimaryNode NodeID            `json:"primary_node"`
	Reports     map[string]string `json:"reports"` // node key -> reported state
	UpdatedAt   time.Time         `json:"updated_at"`
}

// AllocationDecision is the output of the allocation selector.
type AllocationDecision struct {
	AssetID     AssetID   `json:"asset_id"`
	TargetNode  NodeID    `json:"target_node"`
	Score       float64   `json:"score"`
	DecidedAt   time.Time `json:"decided_at"`
	Participants []NodeID `json:"participants"`
	Signatures  [][]byte  `json:"signatures,omitempty"`
}

// MigrationStrategy selects how an allocation moves between nodes.
type MigrationStrategy string

const (
	StrategyStopAndCopy     MigrationStrategy = "stop-and-copy"
	StrategyLive            MigrationStrategy = "live"
	StrategyIncrementalSync MigrationStrategy = "incremental-sync"
	StrategyParallel        MigrationStrategy = "parallel"
)

// MigrationPriority orders competing migrations.
type MigrationPriority int

const (
	PriorityLow MigrationPriority = iota
	PriorityNormal
	PriorityHigh
	PriorityCritical
)

// MigrationPlan describes one intended migration. At most one active plan may
// exist per asset at a time.
type MigrationPlan struct {
	PlanID            string            `json:"plan_id"`
	AssetID           AssetID           `json:"asset_id"`
	SourceNode        NodeID            `json:"source_node"`
	TargetNode        NodeID            `json:"target_node"`
	Strategy          MigrationStrategy `json:"strategy"`
	Priority          MigrationPriority `json:"priority"`
	EstimatedDuration time.Duration     `json:"estimated_duration"`
	EstimatedBytes    uint64            `json:"estimated_bytes"`
	CreatedAt         time.Time         `json:"created_at"`
}

// MigrationStatus tracks a plan through its lifecycle.
type MigrationStatus struct {
	Plan             MigrationPlan  `json:"plan"`
	State            MigrationState `json:"state"`
	Progress         float64        `json:"progress"`
	BytesTransferred uint64         `json:"bytes_transferred"`
	Error            string         `json:"error,omitempty"`
	StartedAt        time.Time      `json:"started_at,omitempty"`
	FinishedAt       time.Time      `json:"finished_at,omitempty"`
}

// ServiceLevelAgreement is the performance bound attached to market entries.
type ServiceLevelAgreement struct {
	UptimePercent    float64 `json:"uptime_percent"`
	MaxLatencyMs     uint64  `json:"max_latency_ms"`
	MinBandwidthMbps uint64  `json:"min_bandwidth_mbps"`
	PenaltyRate      float64 `json:"penalty_rate"`
}

// MeetsOrExceeds reports whether the SLA satisfies a required minimum.
func (s ServiceLevelAgreement) MeetsOrExceeds(req ServiceLevelAgreement) bool {
	return s.UptimePercent >= req.UptimePercent &&
		s.MaxLatencyMs <= req.MaxLatencyMs &&
		s.MinBandwidthMbps >= req.MinBandwidthMbps
}

// ResourceOffer advertises shareable capacity on the market.
type ResourceOffer struct {
	OfferID       string                `json:"offer_id"`
	Provider      NodeID                `json:"provider"`
	ResourceType  ResourceType          `json:"resource_type"`
	Amount        float64               `json:"amount"`
	PricePerHour  float64               `json:"price_per_hour"`
	MinCommitment time.Duration         `json:"min_commitment"`
	MaxCommitment time.Duration         `json:"max_commitment"`
	SLA           ServiceLevelAgreement `json:"sla"`
	ExpiresAt     time.Time             `json:"expires_at"`
}

// ResourceRequest asks the market for capacity.
type ResourceRequest struct {
	RequestID       string                `json:"request_id"`
	Consumer        NodeID                `json:"consumer"`
	ResourceType    ResourceType          `json:"resource_type"`
	Amount          float64               `json:"amount"`
	MaxPricePerHour float64               `json:"max_price_per_hour"`
	Duration        time.Duration         `json:"duration"`
	RequiredSLA     ServiceLevelAgreement `json:"required_sla"`
	ExpiresAt       time.Time             `json:"expires_at"`
}

// SharingAgreement binds a matched provider and consumer.
type SharingAgreement struct {
	AgreementID  string                `json:"agreement_id"`
	Provider     NodeID                `json:"provider"`
	Consumer     NodeID                `json:"consumer"`
	ResourceType ResourceType          `json:"resource_type"`
	Amount       float64               `json:"amount"`
	PricePerHour float64               `json:"price_per_hour"`
	TotalPrice   float64               `json:"total_price"`
	SLA          ServiceLevelAgreement `json:"sla"`
	Status       AgreementStatus       `json:"status"`
	StartTime    time.Time             `json:"start_time"`
	Duration     time.Duration         `json:"duration"`
}

// UsageRecord is an append-only billing entry for an agreement. Recording
// usage never mutates agreement state.
type UsageRecord struct {
	RecordID    string        `json:"record_id"`
	AgreementID string        `json:"agreement_id"`
	Amount      float64       `json:"amount"`
	Duration    time.Duration `json:"duration"`
	Charge      float64       `json:"charge"`
	RecordedAt  time.Time     `json:"recorded_at"`
}

// FleetMetrics is the fleet-wide counter set. The event processor is its only
// writer, which gives a totally ordered audit trail.
type FleetMetrics struct {
	TotalNodes           uint64 `json:"total_nodes"`
	HealthyNodes         uint64 `json:"healthy_nodes"`
	FailedNodes          uint64 `json:"failed_nodes"`
	ByzantineNodes       uint64 `json:"byzantine_nodes"`
	PartitionsDetected   uint64 `json:"partitions_detected"`
	PartitionsHealed     uint64 `json:"partitions_healed"`
	SuccessfulMigrations uint64 `json:"successful_migrations"`
	FailedMigrations     uint64 `json:"failed_migrations"`
	EventsProcessed      uint64 `json:"events_processed"`
}
