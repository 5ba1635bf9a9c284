package pricing

import (
	"testing"
	"time"

	"github.com/azzapp/billing-api/pkg/api/models"
	"github.com/stretchr/testify/assert"
)

func TestAmountIsMonotonicInSeats(t *testing.T) {
	for _, plan := range []models.SubscriptionPlan{models.PlanMonthly, models.PlanYearly, models.PlanLifetime} {
		for seats := 1; seats < 50; seats++ {
			assert.True(t, Amount(seats+1, plan) > Amount(seats, plan),
				"plan %s, seats %d", plan, seats)
		}
	}
}

func TestYearlyIsDiscountedAgainstMonthly(t *testing.T) {
	for seats := 1; seats < 50; seats++ {
		assert.True(t, Amount(seats, models.PlanYearly) < 12*Amount(seats, models.PlanMonthly),
			"seats %d", seats)
	}
}

func TestAmountEdgeCases(t *testing.T) {
	assert.Zero(t, Amount(0, models.PlanMonthly))
	assert.Zero(t, Amount(-1, models.PlanYearly))
	assert.Zero(t, Amount(3, models.SubscriptionPlan("weekly")))
}

func TestNextPaymentIntervalMinutes(t *testing.T) {
	assert.Equal(t, 43200, NextPaymentIntervalMinutes(models.PlanMonthly))
	assert.Equal(t, 525600, NextPaymentIntervalMinutes(models.PlanYearly))
	assert.Zero(t, NextPaymentIntervalMinutes(models.PlanLifetime))
}

func TestWholeMinutesBetweenFloors(t *testing.T) {
	from := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	assert.Equal(t, 10*1440, WholeMinutesBetween(from, from.Add(10*24*time.Hour)))
	assert.Equal(t, 1, WholeMinutesBetween(from, from.Add(time.Minute+30*time.Second)))
	assert.Zero(t, WholeMinutesBetween(from, from.Add(59*time.Second)))
	assert.Zero(t, WholeMinutesBetween(from, from.Add(-time.Hour)))
}

func TestWholeMonthsBetween(t *testing.T) {
	from := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	assert.Equal(t, 2, WholeMonthsBetween(from, from.Add(65*24*time.Hour)))
	assert.Zero(t, WholeMonthsBetween(from, from.Add(29*24*time.Hour)))
}

func TestProratedYearlyAmountBounds(t *testing.T) {
	delta := 3
	full := Amount(delta, models.PlanYearly)

	for months := 0; months <= 12; months++ {
		got := ProratedYearlyAmount(delta, months)
		assert.True(t, got <= full, "months %d", months)
		if months > 0 {
			assert.Equal(t, full*months/12, got)
		}
	}
	assert.Equal(t, full, ProratedYearlyAmount(delta, 12))
	assert.Zero(t, ProratedYearlyAmount(0, 6))
}
