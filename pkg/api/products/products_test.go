package products

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/azzapp/billing-api/pkg/api/models"
)

func TestParseSeatSuffix(t *testing.T) {
	p := Parse("com.azzapp.multiuser.5")
	assert.True(t, p.SeatsParsed)
	assert.Equal(t, 5, p.Seats)
	assert.Equal(t, "com.azzapp.multiuser.5", p.ID)
}

func TestParseNoSuffix(t *testing.T) {
	for _, id := range []string{"no.number", "", "multiuser", "com.azzapp.multiuser.", "com.azzapp.multiuser.-3"} {
		p := Parse(id)
		assert.False(t, p.SeatsParsed, "id %q", id)
		assert.Zero(t, p.Seats, "id %q", id)
	}
}

func TestParseLargeSeatCount(t *testing.T) {
	p := Parse("com.azzapp.multiuser.250")
	assert.True(t, p.SeatsParsed)
	assert.Equal(t, 250, p.Seats)
}

func TestParsePlan(t *testing.T) {
	assert.Equal(t, models.PlanMonthly, Parse("com.app.monthly.3").Plan)
	assert.Equal(t, models.PlanYearly, Parse("com.app.yearly.3").Plan)
	assert.Equal(t, models.PlanYearly, Parse("com.app.annual.3").Plan)
	assert.Equal(t, models.PlanLifetime, Parse("com.app.lifetime").Plan)
	assert.Empty(t, Parse("com.azzapp.multiuser.5").Plan)
}
