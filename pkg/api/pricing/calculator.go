// Package pricing holds the pure seat-pricing math. Everything here is
// deterministic and side-effect free so callers can recompute amounts for
// auditing without touching external systems.
package pricing

import (
	"time"

	"github.com/azzapp/billing-api/pkg/api/models"
)

// Per-seat prices in minor currency units. The yearly seat price is kept
// strictly below 12x the monthly one: the gap is the annual discount.
const (
	monthlySeatPrice  = 900
	yearlySeatPrice   = 8640
	lifetimeSeatPrice = 19900
)

// Billing periods are fixed-length: a 30-day month and a 365-day year,
// expressed in minutes because that is the gateway's schedule unit.
const (
	MonthMinutes = 30 * 24 * 60
	YearMinutes  = 365 * 24 * 60
)

// Amount returns the recurring charge for the given seat count, before
// taxes. Lifetime plans have a one-off price and no recurring charge.
func Amount(seats int, plan models.SubscriptionPlan) int {
	if seats <= 0 {
		return 0
	}

	switch plan {
	case models.PlanMonthly:
		return seats * monthlySeatPrice
	case models.PlanYearly:
		return seats * yearlySeatPrice
	case models.PlanLifetime:
		return seats * lifetimeSeatPrice
	}

	return 0
}

// NextPaymentIntervalMinutes returns the recurring period of the plan,
// zero for plans that never rebill.
func NextPaymentIntervalMinutes(plan models.SubscriptionPlan) int {
	switch plan {
	case models.PlanMonthly:
		return MonthMinutes
	case models.PlanYearly:
		return YearMinutes
	}

	return 0
}

// WholeMinutesBetween returns the floored number of whole minutes from
// `from` to `to`, never negative. Flooring biases proration in the
// subscriber's favor and must stay in sync with the gateway's rounding.
func WholeMinutesBetween(from, to time.Time) int {
	if !to.After(from) {
		return 0
	}
	return int(to.Sub(from) / time.Minute)
}

// WholeMonthsBetween is WholeMinutesBetween in 30-day months, floored.
func WholeMonthsBetween(from, to time.Time) int {
	return WholeMinutesBetween(from, to) / MonthMinutes
}

// ProratedYearlyAmount is the charge for adding deltaSeats to a yearly
// plan for the monthsRemaining left in the current term.
func ProratedYearlyAmount(deltaSeats, monthsRemaining int) int {
	if deltaSeats <= 0 || monthsRemaining <= 0 {
		return 0
	}
	return Amount(deltaSeats, models.PlanYearly) * monthsRemaining / 12
}
