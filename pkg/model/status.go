package model

import "fmt"

// NodeStatus is the closed set of node lifecycle states.
type NodeStatus string

const (
	StatusActive      NodeStatus = "active"
	StatusDegraded    NodeStatus = "degraded"
	StatusMaintenance NodeStatus = "maintenance"
	StatusSuspected   NodeStatus = "suspected"
	StatusFailed      NodeStatus = "failed"
	StatusPartitioned NodeStatus = "partitioned"
)

// nodeTransitions is the allowed node status transition table. A node that is
// Failed can only come back through an explicit rejoin, which is handled by
// the registry and bypasses this table.
var nodeTransitions = map[NodeStatus][]NodeStatus{
	StatusActive:      {StatusDegraded, StatusMaintenance, StatusSuspected, StatusFailed, StatusPartitioned},
	StatusDegraded:    {StatusActive, StatusMaintenance, StatusSuspected, StatusFailed, StatusPartitioned},
	StatusMaintenance: {StatusActive, StatusFailed},
	StatusSuspected:   {StatusActive, StatusFailed, StatusPartitioned},
	StatusPartitioned: {StatusActive, StatusFailed},
	StatusFailed:      {},
}

// CanTransitionTo reports whether moving from s to next is a legal node status
// change.
func (s NodeStatus) CanTransitionTo(next NodeStatus) bool {
	for _, t := range nodeTransitions[s] {
		if t == next {
			return true
		}
	}
	return false
}

// Valid reports whether s is a known status value.
func (s NodeStatus) Valid() bool {
	switch s {
	case StatusActive, StatusDegraded, StatusMaintenance, StatusSuspected, StatusFailed, StatusPartitioned:
		return true
	}
	return false
}

// MigrationState is the closed set of migration lifecycle states.
type MigrationState string

const (
	MigrationPending      MigrationState = "pending"
	MigrationPreparing    MigrationState = "preparing"
	MigrationTransferring MigrationState = "transferring"
	MigrationVerifying    MigrationState = "verifying"
	MigrationSwitching    MigrationState = "switching"
	MigrationCompleted    MigrationState = "completed"
	MigrationFailed       MigrationState = "failed"
	MigrationCancelled    MigrationState = "cancelled"
)

// migrationTransitions encodes the migration state machine. Failed and
// Cancelled are reachable from every non-terminal state.
var migrationTransitions = map[MigrationState][]MigrationState{
	MigrationPending:      {MigrationPreparing, MigrationFailed, MigrationCancelled},
	MigrationPreparing:    {MigrationTransferring, MigrationFailed, MigrationCancelled},
	MigrationTransferring: {MigrationVerifying, MigrationFailed, MigrationCancelled},
	MigrationVerifying:    {MigrationSwitching, MigrationFailed, MigrationCancelled},
	MigrationSwitching:    {MigrationCompleted, MigrationFailed, MigrationCancelled},
	MigrationCompleted:    {},
	MigrationFailed:       {},
	MigrationCancelled:    {},
}

// CanTransitionTo reports whether moving from s to next is legal.
func (s MigrationState) CanTransitionTo(next MigrationState) bool {
	for _, t := range migrationTransitions[s] {
		if t == next {
			return true
		}
	}
	return false
}

// Terminal reports whether s is a terminal migration state.
func (s MigrationState) Terminal() bool {
	return s == MigrationCompleted || s == MigrationFailed || s == MigrationCancelled
}

// AgreementStatus is the lifecycle of a sharing agreement.
type AgreementStatus string

const (
	AgreementPending   AgreementStatus = "pending"
	AgreementActive    AgreementStatus = "active"
	AgreementCompleted AgreementStatus = "completed"
	AgreementCancelled AgreementStatus = "cancelled"
	AgreementDisputed  AgreementStatus = "disputed"
)

var agreementTransitions = map[AgreementStatus][]AgreementStatus{
	AgreementPending:   {AgreementActive, AgreementCancelled},
	AgreementActive:    {AgreementCompleted, AgreementCancelled, AgreementDisputed},
	AgreementCompleted: {},
	AgreementCancelled: {},
	AgreementDisputed:  {},
}

// CanTransitionTo reports whether moving from s to next is legal.
func (s AgreementStatus) CanTransitionTo(next AgreementStatus) bool {
	for _, t := range agreementTransitions[s] {
		if t == next {
			return true
		}
	}
	return false
}

// TransitionError reports an attempted illegal state change.
func TransitionError(entity string, from, to any) error {
	return fmt.Errorf("%s: illegal transition %v -> %v", entity, from, to)
}
