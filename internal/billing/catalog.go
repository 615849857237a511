package billing

import "time"

// Catalog identifiers. Plan ids are stable API values; payment-provider
// price ids stay opaque references the processor layer resolves.
const (
	PlanIDBasic      = "basic"
	PlanIDPremium    = "premium"
	PlanIDEnterprise = "enterprise"

	PackIDStarter  = "starter"
	PackIDStandard = "standard"
	PackIDBulk     = "bulk"

	IntervalMonthly = "monthly"
	IntervalYearly  = "yearly"

	monthlyCycle = 30 * 24 * time.Hour
	yearlyCycle  = 365 * 24 * time.Hour
)

// Plan describes a subscription product: the credits granted each billing
// cycle and the cycle length the credit engine stamps on the account.
type Plan struct {
	ID              string
	Name            string
	Interval        string
	CycleLength     time.Duration
	CreditsPerCycle int64
	PriceReference  string
	Features        []string
}

// CreditPack describes a one-time purchase product.
type CreditPack struct {
	ID             string
	Name           string
	Credits        int64
	PriceReference string
}

var subscriptionPlans = []Plan{
	{
		ID:              PlanIDBasic,
		Name:            "Basic Plan",
		Interval:        IntervalMonthly,
		CycleLength:     monthlyCycle,
		CreditsPerCycle: 10,
		PriceReference:  "price_basic_monthly",
		Features: []string{
			"10 interview credits per month",
			"1 interview template",
			"Basic analytics",
			"Email support",
		},
	},
	{
		ID:              PlanIDPremium,
		Name:            "Premium Plan",
		Interval:        IntervalMonthly,
		CycleLength:     monthlyCycle,
		CreditsPerCycle: 50,
		PriceReference:  "price_premium_monthly",
		Features: []string{
			"50 interview credits per month",
			"5 interview templates",
			"Advanced analytics",
			"Priority support",
			"Custom branding",
		},
	},
	{
		ID:              PlanIDEnterprise,
		Name:            "Enterprise Plan",
		Interval:        IntervalYearly,
		CycleLength:     yearlyCycle,
		CreditsPerCycle: 1200,
		PriceReference:  "price_enterprise_yearly",
		Features: []string{
			"1200 interview credits per year",
			"Unlimited interview templates",
			"Advanced analytics and reporting",
			"Dedicated support",
			"Custom branding",
			"API access",
		},
	},
}

var creditPacks = []CreditPack{
	{ID: PackIDStarter, Name: "Starter Pack", Credits: 5, PriceReference: "price_pack_starter"},
	{ID: PackIDStandard, Name: "Standard Pack", Credits: 20, PriceReference: "price_pack_standard"},
	{ID: PackIDBulk, Name: "Bulk Pack", Credits: 50, PriceReference: "price_pack_bulk"},
}

// Plans returns the subscription catalog.
func Plans() []Plan {
	return append([]Plan(nil), subscriptionPlans...)
}

// PlanByID resolves a subscription plan.
func PlanByID(id string) (Plan, bool) {
	for _, plan := range subscriptionPlans {
		if plan.ID == id {
			return plan, true
		}
	}
	return Plan{}, false
}

// Packs returns the one-time purchase catalog.
func Packs() []CreditPack {
	return append([]CreditPack(nil), creditPacks...)
}

// PackByID resolves a credit pack.
func PackByID(id string) (CreditPack, bool) {
	for _, pack := range creditPacks {
		if pack.ID == id {
			return pack, true
		}
	}
	return CreditPack{}, false
}
