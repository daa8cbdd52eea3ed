package market

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/hypermesh-online/meshcoord/pkg/model"
	"github.com/hypermesh-online/meshcoord/pkg/store"
)

func nodeID(b byte) model.NodeID {
	var id model.NodeID
	id.ID[0] = b
	return id
}

func TestRequestMatchesCheapestEligibleOffer(t *testing.T) {
	m := New(Options{})
	require.NoError(t, m.SubmitOffer(model.ResourceOffer{
		Provider: nodeID(1), ResourceType: model.ResourceCPU, Amount: 8, PricePerHour: 0.20,
	}))
	require.NoError(t, m.SubmitOffer(model.ResourceOffer{
		Provider: nodeID(2), ResourceType: model.ResourceCPU, Amount: 8, PricePerHour: 0.10,
	}))
	// Different type: never eligible.
	require.NoError(t, m.SubmitOffer(model.ResourceOffer{
		Provider: nodeID(3), ResourceType: model.ResourceGPU, Amount: 1, PricePerHour: 0.05,
	}))

	eligible, err := m.SubmitRequest(model.ResourceRequest{
		Consumer: nodeID(4), ResourceType: model.ResourceCPU, Amount: 4,
		MaxPricePerHour: 0.20, Duration: 2 * time.Hour,
	})
	require.NoError(t, err)
	require.Len(t, eligible, 2)

	agreements := m.Agreements()
	require.Len(t, agreements, 1)
	a := agreements[0]
	require.Equal(t, model.AgreementActive, a.Status)
	require.Equal(t, nodeID(2).Key(), a.Provider.Key(), "cheapest offer must win")
	require.Equal(t, 0.10, a.PricePerHour)
	require.Equal(t, float64(4), a.Amount, "amount comes from the request")
	require.InDelta(t, 0.10*4*2, a.TotalPrice, 1e-9)
}

func TestPriceBoundaryIsInclusive(t *testing.T) {
	m := New(Options{})
	require.NoError(t, m.SubmitOffer(model.ResourceOffer{
		Provider: nodeID(1), ResourceType: model.ResourceCPU, Amount: 1, PricePerHour: 10,
	}))

	// Offer price equal to the request maximum matches.
	eligible, err := m.SubmitRequest(model.ResourceRequest{
		Consumer: nodeID(2), ResourceType: model.ResourceCPU, Amount: 1,
		MaxPricePerHour: 10, Duration: time.Hour,
	})
	require.NoError(t, err)
	require.Len(t, eligible, 1)
	require.Len(t, m.Agreements(), 1)

	// One cent over: no match, request queued.
	m2 := New(Options{})
	require.NoError(t, m2.SubmitOffer(model.ResourceOffer{
		Provider: nodeID(1), ResourceType: model.ResourceCPU, Amount: 1, PricePerHour: 11,
	}))
	eligible, err = m2.SubmitRequest(model.ResourceRequest{
		Consumer: nodeID(2), ResourceType: model.ResourceCPU, Amount: 1,
		MaxPricePerHour: 10, Duration: time.Hour,
	})
	require.NoError(t, err)
	require.Empty(t, eligible)
	require.Empty(t, m2.Agreements())
	require.Len(t, m2.OpenRequests(), 1)
}

func TestQueuedRequestMatchesLaterOffer(t *testing.T) {
	m := New(Options{})
	_, err := m.SubmitRequest(model.ResourceRequest{
		Consumer: nodeID(2), ResourceType: model.ResourceMemory, Amount: 2,
		MaxPricePerHour: 1, Duration: time.Hour,
	})
	require.NoError(t, err)
	require.Len(t, m.OpenRequests(), 1)

	require.NoError(t, m.SubmitOffer(model.ResourceOffer{
		Provider: nodeID(1), ResourceType: model.ResourceMemory, Amount: 4, PricePerHour: 0.5,
	}))

	require.Len(t, m.Agreements(), 1, "queued request should match the new offer")
	require.Empty(t, m.OpenRequests(), "matched request is consumed")
	require.Len(t, m.OpenOffers(), 1, "offer stays until it expires")
}

func TestAgreementLifecycle(t *testing.T) {
	st := store.NewMemoryStore()
	m := New(Options{Agreements: st.Agreements(), Usage: st.Usage()})

	require.NoError(t, m.SubmitOffer(model.ResourceOffer{
		Provider: nodeID(1), ResourceType: model.ResourceCPU, Amount: 1, PricePerHour: 2,
	}))
	_, err := m.SubmitRequest(model.ResourceRequest{
		Consumer: nodeID(2), ResourceType: model.ResourceCPU, Amount: 1,
		MaxPricePerHour: 5, Duration: time.Hour,
	})
	require.NoError(t, err)
	id := m.Agreements()[0].AgreementID

	rec, err := m.RecordUsage(id, 1, 30*time.Minute)
	require.NoError(t, err)
	require.InDelta(t, 2*1*0.5, rec.Charge, 1e-9)

	// Usage records are persisted, agreement state untouched.
	recs, err := st.Usage().List(id, 0)
	require.NoError(t, err)
	require.Len(t, recs, 1)
	a, err := m.GetAgreement(id)
	require.NoError(t, err)
	require.Equal(t, model.AgreementActive, a.Status)

	require.NoError(t, m.CancelAgreement(id))
	a, err = m.GetAgreement(id)
	require.NoError(t, err)
	require.Equal(t, model.AgreementCancelled, a.Status)

	// No billing after cancellation, and no double terminal transitions.
	_, err = m.RecordUsage(id, 1, time.Minute)
	require.Error(t, err)
	require.Error(t, m.CompleteAgreement(id))
	require.Error(t, m.CancelAgreement(id))

	// Persisted copy reflects the final status.
	persisted, err := st.Agreements().Get(id)
	require.NoError(t, err)
	require.Equal(t, model.AgreementCancelled, persisted.Status)
}

func TestPurgeExpired(t *testing.T) {
	m := New(Options{})
	now := time.Unix(10000, 0)
	m.SetClock(func() time.Time { return now })

	require.NoError(t, m.SubmitOffer(model.ResourceOffer{
		Provider: nodeID(1), ResourceType: model.ResourceGPU, Amount: 1, PricePerHour: 1,
		ExpiresAt: now.Add(time.Minute),
	}))
	_, err := m.SubmitRequest(model.ResourceRequest{
		Consumer: nodeID(2), ResourceType: model.ResourceStorage, Amount: 1,
		MaxPricePerHour: 1, Duration: time.Hour, ExpiresAt: now.Add(time.Hour),
	})
	require.NoError(t, err)

	now = now.Add(2 * time.Minute)
	offers, requests := m.PurgeExpired()
	require.Equal(t, 1, offers)
	require.Equal(t, 0, requests)
	require.Empty(t, m.OpenOffers())
	require.Len(t, m.OpenRequests(), 1)
}

func TestExpiredSubmissionsRejected(t *testing.T) {
	m := New(Options{})
	now := time.Unix(10000, 0)
	m.SetClock(func() time.Time { return now })

	err := m.SubmitOffer(model.ResourceOffer{
		Provider: nodeID(1), ResourceType: model.ResourceCPU, Amount: 1, PricePerHour: 1,
		ExpiresAt: now.Add(-time.Second),
	})
	require.Error(t, err)

	_, err = m.SubmitRequest(model.ResourceRequest{
		Consumer: nodeID(2), ResourceType: model.ResourceCPU, Amount: 1,
		MaxPricePerHour: 1, Duration: time.Hour, ExpiresAt: now.Add(-time.Second),
	})
	require.Error(t, err)
}

func TestPricingModels(t *testing.T) {
	base := fixedPrice(2, 3, 90*time.Minute) // 2 * 3 * 1.5h
	require.InDelta(t, 9.0, base, 1e-9)

	require.InDelta(t, 9.0, price(PricingFixed, 2, 3, 90*time.Minute, 2.0), 1e-9)
	require.InDelta(t, 18.0, price(PricingDynamic, 2, 3, 90*time.Minute, 2.0), 1e-9)
	require.InDelta(t, 9.0*0.8, price(PricingUsageBased, 2, 3, 90*time.Minute, 2.0), 1e-9)

	// Demand factor is clamped to [0.5, 3.0].
	require.InDelta(t, 9.0*0.5, price(PricingDynamic, 2, 3, 90*time.Minute, 0.01), 1e-9)
	require.InDelta(t, 9.0*3.0, price(PricingDynamic, 2, 3, 90*time.Minute, 50), 1e-9)
}
