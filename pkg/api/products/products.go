// Package products parses store product identifiers.
package products

import (
	"strconv"
	"strings"

	"github.com/azzapp/billing-api/pkg/api/models"
)

// Product is the typed result of parsing a store product identifier like
// "com.azzapp.multiuser.5" or "com.app.monthly.3". The seat count is the
// trailing dot-separated integer; SeatsParsed is false when no such suffix
// exists, in which case Seats is zero and callers decide how to treat the
// unparsed id. Plan is empty when the id does not name one.
type Product struct {
	ID          string
	Plan        models.SubscriptionPlan
	Seats       int
	SeatsParsed bool
}

func Parse(productID string) Product {
	ret := Product{ID: productID}

	for _, part := range strings.Split(productID, ".") {
		switch strings.ToLower(part) {
		case "monthly":
			ret.Plan = models.PlanMonthly
		case "yearly", "annual":
			ret.Plan = models.PlanYearly
		case "lifetime":
			ret.Plan = models.PlanLifetime
		}
	}

	idx := strings.LastIndex(productID, ".")
	if idx == -1 || idx == len(productID)-1 {
		return ret
	}

	seats, err := strconv.Atoi(productID[idx+1:])
	if err != nil || seats < 0 {
		return ret
	}

	ret.Seats = seats
	ret.SeatsParsed = true
	return ret
}
