package model

import "fmt"

// AllocationError means no node could host the requested allocation, either
// because no eligible node exists or remaining capacity is insufficient.
type AllocationError struct {
	Reason string
}

func (e *AllocationError) Error() string {
	return "allocation failed: " + e.Reason
}

// AssetNotFoundError means an operation referenced an allocation that is not
// present in the asset-state map.
type AssetNotFoundError struct {
	AssetID AssetID
}

func (e *AssetNotFoundError) Error() string {
	return fmt.Sprintf("asset %q not found", e.AssetID.ID)
}

// NetworkError covers event-channel send failures and unreachable nodes
// during migration.
type NetworkError struct {
	Message string
}

func (e *NetworkError) Error() string {
	return "network error: " + e.Message
}

// NotFoundError is a lookup miss for market entities (agreement, offer,
// request) and other named resources.
type NotFoundError struct {
	Resource string
}

func (e *NotFoundError) Error() string {
	return e.Resource + " not found"
}
