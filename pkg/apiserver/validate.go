package apiserver

import (
	"encoding/hex"
	"fmt"
	"regexp"

	"github.com/hypermesh-online/meshcoord/pkg/model"
)

// validIDPattern matches safe resource identifiers: alphanumeric, dots, underscores, hyphens.
// Max 253 characters (DNS label limit). Rejects path traversal, null bytes, and newlines.
var validIDPattern = regexp.MustCompile(`^[a-zA-Z0-9._-]{1,253}$`)

// ValidateID checks that a resource ID is safe to use as a path parameter or store key.
func ValidateID(id string) error {
	if id == "" {
		return fmt.Errorf("id must not be empty")
	}
	if !validIDPattern.MatchString(id) {
		return fmt.Errorf("id %q contains invalid characters (allowed: a-z A-Z 0-9 . _ -)", id)
	}
	return nil
}

// ParseNodeKey decodes a 64-character hex node key into a NodeID identifier.
func ParseNodeKey(key string) (model.NodeID, error) {
	raw, err := hex.DecodeString(key)
	if err != nil || len(raw) != 32 {
		return model.NodeID{}, fmt.Errorf("node key must be 64 hex characters")
	}
	var id model.NodeID
	copy(id.ID[:], raw)
	return id, nil
}

// validResourceTypes is the set of accepted resource type values.
var validResourceTypes = map[model.ResourceType]bool{
	model.ResourceCPU:       true,
	model.ResourceMemory:    true,
	model.ResourceGPU:       true,
	model.ResourceStorage:   true,
	model.ResourceBandwidth: true,
}

// ValidateResourceType checks a resource type value.
func ValidateResourceType(rt model.ResourceType) error {
	if !validResourceTypes[rt] {
		return fmt.Errorf("resource type %q is invalid (allowed: cpu, memory, gpu, storage, bandwidth)", rt)
	}
	return nil
}

// ValidateAssetID checks an asset identifier.
func ValidateAssetID(a model.AssetID) error {
	if err := ValidateID(a.ID); err != nil {
		return fmt.Errorf("asset %w", err)
	}
	return ValidateResourceType(a.Type)
}

// ValidateOffer checks that a market offer has valid fields.
func ValidateOffer(o *model.ResourceOffer) error {
	if err := ValidateResourceType(o.ResourceType); err != nil {
		return err
	}
	if o.Amount <= 0 {
		return fmt.Errorf("offer amount must be positive")
	}
	if o.PricePerHour < 0 {
		return fmt.Errorf("offer price must be non-negative")
	}
	return nil
}

// ValidateRequest checks that a market request has valid fields.
func ValidateRequest(r *model.ResourceRequest) error {
	if err := ValidateResourceType(r.ResourceType); err != nil {
		return err
	}
	if r.Amount <= 0 {
		return fmt.Errorf("request amount must be positive")
	}
	if r.MaxPricePerHour < 0 {
		return fmt.Errorf("request max price must be non-negative")
	}
	if r.Duration <= 0 {
		return fmt.Errorf("request duration must be positive")
	}
	return nil
}
