// Package market implements the resource sharing market: independent offer
// and request queues, price-constrained matching, binding agreements, and
// append-only usage records for billing.
package market

import (
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/hypermesh-online/meshcoord/pkg/model"
	"github.com/hypermesh-online/meshcoord/pkg/store"
)

// Market holds the offer/request queues and issued agreements. Agreements
// and usage records are mirrored to the store for billing and audit; the
// queues themselves are in-memory only.
type Market struct {
	mu         sync.RWMutex
	offers     []model.ResourceOffer
	requests   []model.ResourceRequest
	agreements map[string]*model.SharingAgreement

	pricing    PricingModel
	agreeStore store.AgreementStore
	usageStore store.UsageStore
	now        func() time.Time
}

// Options configures a Market.
type Options struct {
	Pricing    PricingModel
	Agreements store.AgreementStore
	Usage      store.UsageStore
}

// New returns an empty Market. Store sub-stores may be nil, in which case
// agreements and usage records live only in memory.
func New(opts Options) *Market {
	pricing := opts.Pricing
	if pricing == "" {
		pricing = PricingFixed
	}
	return &Market{
		agreements: make(map[string]*model.SharingAgreement),
		pricing:    pricing,
		agreeStore: opts.Agreements,
		usageStore: opts.Usage,
		now:        time.Now,
	}
}

// SetClock overrides the market's time source. Intended for tests.
func (m *Market) SetClock(now func() time.Time) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.now = now
}

// SubmitOffer enqueues an offer and immediately tries to match it against
// queued requests.
func (m *Market) SubmitOffer(offer model.ResourceOffer) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if offer.OfferID == "" {
		offer.OfferID = newMarketID("offer")
	}
	if !offer.ExpiresAt.IsZero() && !offer.ExpiresAt.After(m.now()) {
		return fmt.Errorf("offer %q is already expired", offer.OfferID)
	}
	m.offers = append(m.offers, offer)
	m.matchLocked()
	return nil
}

// SubmitRequest tries to match the request against queued offers. The
// returned slice holds every offer the request was eligible for at
// submission time; if at least one matched, an agreement was created and the
// request is consumed, otherwise the request is queued for later matching.
func (m *Market) SubmitRequest(req model.ResourceRequest) ([]model.ResourceOffer, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if req.RequestID == "" {
		req.RequestID = newMarketID("req")
	}
	if !req.ExpiresAt.IsZero() && !req.ExpiresAt.After(m.now()) {
		return nil, fmt.Errorf("request %q is already expired", req.RequestID)
	}

	eligible := m.eligibleOffersLocked(req)
	if len(eligible) == 0 {
		m.requests = append(m.requests, req)
		return nil, nil
	}
	// Cheapest eligible offer wins.
	best := eligible[0]
	for _, o := range eligible[1:] {
		if o.PricePerHour < best.PricePerHour {
			best = o
		}
	}
	m.createAgreementLocked(best, req)
	return eligible, nil
}

// matchLocked pairs queued requests against queued offers. Matched requests
// are consumed; offers stay until they expire.
func (m *Market) matchLocked() {
	var unmatched []model.ResourceRequest
	for _, req := range m.requests {
		eligible := m.eligibleOffersLocked(req)
		if len(eligible) == 0 {
			unmatched = append(unmatched, req)
			continue
		}
		best := eligible[0]
		for _, o := range eligible[1:] {
			if o.PricePerHour < best.PricePerHour {
				best = o
			}
		}
		m.createAgreementLocked(best, req)
	}
	m.requests = unmatched
}

// eligibleOffersLocked returns offers matching the request: equal resource
// type, offer price within the request's maximum, and neither side expired.
func (m *Market) eligibleOffersLocked(req model.ResourceRequest) []model.ResourceOffer {
	now := m.now()
	if !req.ExpiresAt.IsZero() && !req.ExpiresAt.After(now) {
		return nil
	}
	var out []model.ResourceOffer
	for _, o := range m.offers {
		if o.ResourceType != req.ResourceType {
			continue
		}
		if o.PricePerHour > req.MaxPricePerHour {
			continue
		}
		if !o.ExpiresAt.IsZero() && !o.ExpiresAt.After(now) {
			continue
		}
		out = append(out, o)
	}
	return out
}

// createAgreementLocked issues an Active agreement from the offer's price and
// SLA and the request's amount and duration, and mirrors it to the store.
func (m *Market) createAgreementLocked(offer model.ResourceOffer, req model.ResourceRequest) *model.SharingAgreement {
	a := &model.SharingAgreement{
		AgreementID:  newMarketID("agr"),
		Provider:     offer.Provider,
		Consumer:     req.Consumer,
		ResourceType: req.ResourceType,
		Amount:       req.Amount,
		PricePerHour: offer.PricePerHour,
		TotalPrice:   price(m.pricing, offer.PricePerHour, req.Amount, req.Duration, m.demandFactorLocked()),
		SLA:          offer.SLA,
		Status:       model.AgreementActive,
		StartTime:    m.now(),
		Duration:     req.Duration,
	}
	m.agreements[a.AgreementID] = a
	m.persistAgreement(a)
	return a
}

// demandFactorLocked derives dynamic-pricing demand from the current queue
// ratio: more queued requests than offers means demand is high.
func (m *Market) demandFactorLocked() float64 {
	return float64(len(m.requests)+1) / float64(len(m.offers)+1)
}

// CancelAgreement transitions an agreement Active -> Cancelled. No further
// billing applies after cancellation.
func (m *Market) CancelAgreement(id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	a, ok := m.agreements[id]
	if !ok {
		return &model.NotFoundError{Resource: "agreement " + id}
	}
	if !a.Status.CanTransitionTo(model.AgreementCancelled) {
		return model.TransitionError("agreement "+id, a.Status, model.AgreementCancelled)
	}
	a.Status = model.AgreementCancelled
	m.persistAgreement(a)
	return nil
}

// CompleteAgreement transitions an agreement Active -> Completed.
func (m *Market) CompleteAgreement(id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	a, ok := m.agreements[id]
	if !ok {
		return &model.NotFoundError{Resource: "agreement " + id}
	}
	if !a.Status.CanTransitionTo(model.AgreementCompleted) {
		return model.TransitionError("agreement "+id, a.Status, model.AgreementCompleted)
	}
	a.Status = model.AgreementCompleted
	m.persistAgreement(a)
	return nil
}

// RecordUsage appends a billing record for the agreement. It never mutates
// agreement state. Usage against a cancelled agreement is rejected.
func (m *Market) RecordUsage(agreementID string, amount float64, duration time.Duration) (model.UsageRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	a, ok := m.agreements[agreementID]
	if !ok {
		return model.UsageRecord{}, &model.NotFoundError{Resource: "agreement " + agreementID}
	}
	if a.Status == model.AgreementCancelled {
		return model.UsageRecord{}, fmt.Errorf("agreement %q is cancelled; no further billing", agreementID)
	}
	rec := model.UsageRecord{
		RecordID:    newMarketID("use"),
		AgreementID: agreementID,
		Amount:      amount,
		Duration:    duration,
		Charge:      fixedPrice(a.PricePerHour, amount, duration),
		RecordedAt:  m.now(),
	}
	if m.usageStore != nil {
		if err := m.usageStore.Append(&rec); err != nil {
			log.Printf("market: persist usage record %s: %v", rec.RecordID, err)
		}
	}
	return rec, nil
}

// GetAgreement returns a copy of the agreement.
func (m *Market) GetAgreement(id string) (model.SharingAgreement, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	a, ok := m.agreements[id]
	if !ok {
		return model.SharingAgreement{}, &model.NotFoundError{Resource: "agreement " + id}
	}
	return *a, nil
}

// Agreements returns copies of all agreements.
func (m *Market) Agreements() []model.SharingAgreement {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]model.SharingAgreement, 0, len(m.agreements))
	for _, a := range m.agreements {
		out = append(out, *a)
	}
	return out
}

// ActiveAgreements returns agreements currently in Active status.
func (m *Market) ActiveAgreements() []model.SharingAgreement {
	all := m.Agreements()
	out := all[:0]
	for _, a := range all {
		if a.Status == model.AgreementActive {
			out = append(out, a)
		}
	}
	return out
}

// OpenOffers returns currently queued, unexpired offers.
func (m *Market) OpenOffers() []model.ResourceOffer {
	m.mu.RLock()
	defer m.mu.RUnlock()
	now := m.now()
	var out []model.ResourceOffer
	for _, o := range m.offers {
		if o.ExpiresAt.IsZero() || o.ExpiresAt.After(now) {
			out = append(out, o)
		}
	}
	return out
}

// OpenRequests returns currently queued, unexpired requests.
func (m *Market) OpenRequests() []model.ResourceRequest {
	m.mu.RLock()
	defer m.mu.RUnlock()
	now := m.now()
	var out []model.ResourceRequest
	for _, r := range m.requests {
		if r.ExpiresAt.IsZero() || r.ExpiresAt.After(now) {
			out = append(out, r)
		}
	}
	return out
}

// PurgeExpired drops expired offers and requests from the queues. Returns how
// many of each were removed.
func (m *Market) PurgeExpired() (offers, requests int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	now := m.now()

	keptOffers := m.offers[:0]
	for _, o := range m.offers {
		if o.ExpiresAt.IsZero() || o.ExpiresAt.After(now) {
			keptOffers = append(keptOffers, o)
		} else {
			offers++
		}
	}
	m.offers = keptOffers

	keptReqs := m.requests[:0]
	for _, r := range m.requests {
		if r.ExpiresAt.IsZero() || r.ExpiresAt.After(now) {
			keptReqs = append(keptReqs, r)
		} else {
			requests++
		}
	}
	m.requests = keptReqs
	return offers, requests
}

// persistAgreement mirrors an agreement to the store, logging (not failing)
// on error; the in-memory copy stays authoritative for matching.
func (m *Market) persistAgreement(a *model.SharingAgreement) {
	if m.agreeStore == nil {
		return
	}
	if err := m.agreeStore.Put(a); err != nil {
		log.Printf("market: persist agreement %s: %v", a.AgreementID, err)
	}
}

func newMarketID(kind string) string {
	b := make([]byte, 8)
	_, _ = rand.Read(b)
	return kind + "-" + hex.EncodeToString(b)
}
