// Package store defines the persistence interfaces for the coordination
// control plane. The coordinator's working state is in-memory; what persists
// is the audit surface: the fleet event stream, sharing agreements, and
// usage/billing records. Implementations include an in-memory store (for
// dev/testing) and an etcd-backed store (for production).
package store

import "github.com/hypermesh-online/meshcoord/pkg/model"

// EventLogStore is the durable, append-only fleet event log.
type EventLogStore interface {
	Append(evt *model.Event) error
	// List returns the most recent events, newest first, up to limit
	// (limit <= 0 means no limit).
	List(limit int) ([]model.Event, error)
}

// AgreementStore persists sharing agreements for billing and audit.
type AgreementStore interface {
	Put(a *model.SharingAgreement) error
	Get(id string) (*model.SharingAgreement, error)
	List() ([]model.SharingAgreement, error)
}

// UsageStore is the append-only billing record log.
type UsageStore interface {
	Append(rec *model.UsageRecord) error
	// List returns records for the given agreement, oldest first, up to
	// limit (limit <= 0 means no limit). An empty agreement ID matches all.
	List(agreementID string, limit int) ([]model.UsageRecord, error)
}

// Store aggregates all sub-stores into a single handle.
type Store interface {
	Events() EventLogStore
	Agreements() AgreementStore
	Usage() UsageStore
	Close() error
}
