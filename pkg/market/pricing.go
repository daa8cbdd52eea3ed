package market

import "time"

// PricingModel computes the total price of a match.
type PricingModel string

const (
	// PricingFixed charges base rate x amount x hours.
	PricingFixed PricingModel = "fixed"
	// PricingDynamic scales the fixed price by current demand.
	PricingDynamic PricingModel = "dynamic"
	// PricingUsageBased discounts the fixed price; consumers pay for what
	// they use via usage records instead of the full commitment.
	PricingUsageBased PricingModel = "usage-based"
)

const usageBasedDiscount = 0.8

// Demand factor bounds for dynamic pricing.
const (
	minDemandFactor = 0.5
	maxDemandFactor = 3.0
)

// fixedPrice is the base calculation shared by all models: rate per
// unit-hour x amount x duration in hours.
func fixedPrice(ratePerHour, amount float64, duration time.Duration) float64 {
	return ratePerHour * amount * duration.Hours()
}

// price computes the total price under the given model. demandFactor is only
// consulted by the dynamic model.
func price(m PricingModel, ratePerHour, amount float64, duration time.Duration, demandFactor float64) float64 {
	base := fixedPrice(ratePerHour, amount, duration)
	switch m {
	case PricingDynamic:
		return base * clampDemand(demandFactor)
	case PricingUsageBased:
		return base * usageBasedDiscount
	default:
		return base
	}
}

func clampDemand(f float64) float64 {
	if f < minDemandFactor {
		return minDemandFactor
	}
	if f > maxDemandFactor {
		return maxDemandFactor
	}
	return f
}
