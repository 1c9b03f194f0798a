package model

import "time"

type PlanCode string

const (
	PlanOneMonth  PlanCode = "P1M"
	PlanTwoMonths PlanCode = "P2M"
	PlanManual    PlanCode = "TEST" // manual/admin grants only, never sold
)

// ApproxMonth is the fixed plan month; deliberately not calendar-aware.
const ApproxMonth = 30 * 24 * time.Hour

// Plan describes a purchasable entitlement duration.
type Plan struct {
	Code       PlanCode
	Months     int
	PriceMinor int64 // minor currency units; 0 = not sold
	Title      string
}

var plans = map[PlanCode]Plan{
	PlanOneMonth:  {Code: PlanOneMonth, Months: 1, PriceMinor: 70000, Title: "1 month subscription"},
	PlanTwoMonths: {Code: PlanTwoMonths, Months: 2, PriceMinor: 120000, Title: "2 months subscription"},
	PlanManual:    {Code: PlanManual, Months: 1, PriceMinor: 0, Title: "Manual grant"},
}

// PlanByCode returns the catalog entry for code.
func PlanByCode(code PlanCode) (Plan, bool) {
	p, ok := plans[code]
	return p, ok
}

// PurchasablePlans lists plans offered to users, in display order.
func PurchasablePlans() []Plan {
	return []Plan{plans[PlanOneMonth], plans[PlanTwoMonths]}
}

// Duration is the entitlement time one purchase of the plan adds.
func (p Plan) Duration() time.Duration {
	return time.Duration(p.Months) * ApproxMonth
}
