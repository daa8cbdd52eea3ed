package store

import (
	"fmt"
	"sync"

	"github.com/hypermesh-online/meshcoord/pkg/model"
)

// MemoryStore is an in-memory implementation of Store backed by slices/maps
// and read/write mutexes. Suitable for development, testing, and single-node
// deployments.
type MemoryStore struct {
	events     *memoryEventLogStore
	agreements *memoryAgreementStore
	usage      *memoryUsageStore
}

// NewMemoryStore returns a fully initialised MemoryStore.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		events:     &memoryEventLogStore{},
		agreements: &memoryAgreementStore{data: make(map[string]model.SharingAgreement)},
		usage:      &memoryUsageStore{},
	}
}

func (m *MemoryStore) Events() EventLogStore     { return m.events }
func (m *MemoryStore) Agreements() AgreementStore { return m.agreements }
func (m *MemoryStore) Usage() UsageStore          { return m.usage }
func (m *MemoryStore) Close() error               { return nil }

// ---------------------------------------------------------------------------
// Event log store
// ---------------------------------------------------------------------------

type memoryEventLogStore struct {
	mu      sync.RWMutex
	entries []model.Event
}

func (s *memoryEventLogStore) Append(evt *model.Event) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.entries = append(s.entries, *evt)
	return nil
}

func (s *memoryEventLogStore) List(limit int) ([]model.Event, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]model.Event, 0)
	// Walk backwards for most-recent-first ordering.
	for i := len(s.entries) - 1; i >= 0; i-- {
		out = append(out, s.entries[i])
		if limit > 0 && len(out) >= limit {
			break
		}
	}
	return out, nil
}

// ---------------------------------------------------------------------------
// Agreement store
// ---------------------------------------------------------------------------

type memoryAgreementStore struct {
	mu   sync.RWMutex
	data map[string]model.SharingAgreement
}

func (s *memoryAgreementStore) Put(a *model.SharingAgreement) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.data[a.AgreementID] = *a
	return nil
}

func (s *memoryAgreementStore) Get(id string) (*model.SharingAgreement, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	a, ok := s.data[id]
	if !ok {
		return nil, fmt.Errorf("agreement %q not found", id)
	}
	return &a, nil
}

func (s *memoryAgreementStore) List() ([]model.SharingAgreement, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]model.SharingAgreement, 0, len(s.data))
	for _, a := range s.data {
		out = append(out, a)
	}
	return out, nil
}

// ---------------------------------------------------------------------------
// Usage store
// ---------------------------------------------------------------------------

type memoryUsageStore struct {
	mu      sync.RWMutex
	entries []model.UsageRecord
}

func (s *memoryUsageStore) Append(rec *model.UsageRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.entries = append(s.entries, *rec)
	return nil
}

func (s *memoryUsageStore) List(agreementID string, limit int) ([]model.UsageRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]model.UsageRecord, 0)
	for _, rec := range s.entries {
		if agreementID == "" || rec.AgreementID == agreementID {
			out = append(out, rec)
			if limit > 0 && len(out) >= limit {
				break
			}
		}
	}
	return out, nil
}
