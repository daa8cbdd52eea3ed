package model

import "time"

// EventType names the fleet-level events emitted by the coordinator.
type EventType string

const (
	EventNodeJoined         EventType = "node_joined"
	EventNodeLeft           EventType = "node_left"
	EventNodeFailed         EventType = "node_failed"
	EventPartitionDetected  EventType = "partition_detected"
	EventPartitionHealed    EventType = "partition_healed"
	EventMigrationStarted   EventType = "migration_started"
	EventMigrationCompleted EventType = "migration_completed"
	EventMigrationFailed    EventType = "migration_failed"
	EventByzantineDetected  EventType = "byzantine_detected"
)

// Event is a fleet-level event. Only the fields relevant to the event type
// are populated; the rest stay at their zero value and are omitted from JSON.
type Event struct {
	Seq          uint64            `json:"seq,omitempty"`
	Type         EventType         `json:"type"`
	Time         time.Time         `json:"time"`
	Node         *NodeID           `json:"node,omitempty"`
	Capabilities *NodeCapabilities `json:"capabilities,omitempty"`
	// Rejoin marks a node_joined event for an already-known node; PrevStatus
	// then carries the status the node held before reactivation.
	Rejoin     bool       `json:"rejoin,omitempty"`
	PrevStatus NodeStatus `json:"prev_status,omitempty"`
	Reason     string     `json:"reason,omitempty"`
	Partition    *NetworkPartition `json:"partition,omitempty"`
	PartitionID  string            `json:"partition_id,omitempty"`
	AssetID      *AssetID          `json:"asset_id,omitempty"`
	FromNode     *NodeID           `json:"from_node,omitempty"`
	ToNode       *NodeID           `json:"to_node,omitempty"`
	Evidence     []string          `json:"evidence,omitempty"`
}
