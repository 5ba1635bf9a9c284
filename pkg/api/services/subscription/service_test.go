package subscription

import (
	"context"
	"testing"
	"time"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/azzapp/billing-api/internal/api/apierrors"
	"github.com/azzapp/billing-api/internal/shared/config"
	"github.com/azzapp/billing-api/internal/shared/logutil"
	"github.com/azzapp/billing-api/pkg/api/models"
	"github.com/azzapp/billing-api/pkg/api/pricing"
	"github.com/azzapp/billing-api/pkg/api/rebill"
	"github.com/azzapp/billing-api/pkg/api/rebill/rebilltest"
	"github.com/azzapp/billing-api/pkg/api/request"
	"github.com/azzapp/billing-api/pkg/api/store/storetest"
	"github.com/azzapp/billing-api/pkg/api/taxes"
)

type staticRates struct {
	rate float64
}

func (r staticRates) Rate(ctx context.Context, countryCode string) (float64, error) {
	return r.rate, nil
}

type orphanPut struct {
	RebillManagerID string
	PaymentMeanID   string
	SubscriptionID  string
	Reason          string
}

type fakeOrphanQueue struct {
	puts []orphanPut
}

func (q *fakeOrphanQueue) Put(rebillManagerID, paymentMeanID, subscriptionID, reason string) error {
	q.puts = append(q.puts, orphanPut{rebillManagerID, paymentMeanID, subscriptionID, reason})
	return nil
}

type env struct {
	svc     *BasicService
	st      *storetest.Mem
	gateway *rebilltest.Fake
	orphans *fakeOrphanQueue
}

func setup(t *testing.T) *env {
	t.Setenv("REBILL_CALLBACK_URL", "https://api.azzapp.com/v1/payments/rebill/callback")

	log := logutil.NewStderrLog("test")
	st := storetest.NewMem()
	gateway := rebilltest.NewFake()
	orphans := &fakeOrphanQueue{}
	taxCalc := taxes.NewCalculator(log, staticRates{rate: 0.2})

	svc := NewBasicService(config.NewEnvConfig(log), st, gateway, taxCalc, orphans)
	return &env{svc: svc, st: st, gateway: gateway, orphans: orphans}
}

func testRC() *request.InternalContext {
	log := logutil.NewStderrLog("test")
	return &request.InternalContext{
		BaseContext: request.BaseContext{
			Ctx:       context.Background(),
			Log:       log,
			Lctx:      logutil.Context{},
			StartedAt: time.Now(),
		},
	}
}

func seedWebSub(t *testing.T, e *env, plan models.SubscriptionPlan, seats int, endIn time.Duration) *models.Subscription {
	sub := &models.Subscription{
		UserID:                1,
		WebCardID:             10,
		Plan:                  plan,
		TotalSeats:            seats,
		Amount:                pricing.Amount(seats, plan),
		PaymentMeanID:         "pm-1",
		RebillManagerID:       "rm-old",
		SubscriptionID:        "sub-old",
		Issuer:                models.IssuerWeb,
		SubscriberCountryCode: "FR",
		StartAt:               time.Now().Add(-time.Hour),
		EndAt:                 time.Now().Add(endIn),
		Status:                models.StatusActive,
	}
	require.NoError(t, e.st.CreateSubscription(sub))
	e.gateway.States["rm-old"] = rebill.StateOn
	return sub
}

func intPtr(v int) *int          { return &v }
func strPtr(v string) *string    { return &v }

func TestUpdateMissingSubscription(t *testing.T) {
	e := setup(t)

	_, err := e.svc.Update(testRC(), &request.Sub{UserID: 1, WebCardID: 10}, &UpdatePayload{TotalSeats: intPtr(5)})
	require.Error(t, err)
	assert.Equal(t, apierrors.ErrNotFound, errors.Cause(err))
}

func TestUpdateNoChangesIsNoop(t *testing.T) {
	e := setup(t)
	seedWebSub(t, e, models.PlanMonthly, 3, 10*24*time.Hour)

	info, err := e.svc.Update(testRC(), &request.Sub{UserID: 1, WebCardID: 10}, &UpdatePayload{})
	require.NoError(t, err)
	assert.Equal(t, 3, info.TotalSeats)
	assert.Zero(t, e.gateway.Logins, "no gateway call for a no-op update")
}

func TestUpdateMonthlySeats(t *testing.T) {
	e := setup(t)
	sub := seedWebSub(t, e, models.PlanMonthly, 3, 10*24*time.Hour)
	origEndAt := sub.EndAt

	info, err := e.svc.Update(testRC(), &request.Sub{UserID: 1, WebCardID: 10}, &UpdatePayload{TotalSeats: intPtr(5)})
	require.NoError(t, err)

	require.Len(t, e.gateway.Stopped, 1)
	assert.Equal(t, "rm-old", e.gateway.Stopped[0].RebillManagerID)
	assert.Equal(t, "token-1", e.gateway.Stopped[0].Token, "one fresh login per orchestration")

	require.Len(t, e.gateway.Created, 1)
	created := e.gateway.Created[0].Params
	assert.Equal(t, rebill.InitialFree, created.InitialType)
	assert.Zero(t, created.InitialAmount)
	// within a minute of the 10 days left, floored
	assert.InDelta(t, 10*1440, created.InitialDurationMinutes, 1)
	wantAmount := pricing.Amount(5, models.PlanMonthly)
	assert.Equal(t, wantAmount+wantAmount/5, created.RebillAmount, "amount plus 20% tax")
	assert.Equal(t, pricing.MonthMinutes, created.RebillPeriodMinutes)
	assert.NotEqual(t, "sub-old", created.ExternalReference)

	assert.Equal(t, 5, info.TotalSeats)
	assert.Equal(t, origEndAt.Unix(), info.EndAt.Unix(), "endAt unchanged")

	saved := e.st.Subscriptions[0]
	assert.Equal(t, "rm-1", saved.RebillManagerID)
	assert.Equal(t, created.ExternalReference, saved.SubscriptionID)
	assert.Equal(t, models.StatusActive, saved.Status)
}

func TestUpdateYearlyPaymentMeanOnly(t *testing.T) {
	e := setup(t)
	seedWebSub(t, e, models.PlanYearly, 2, 200*24*time.Hour)

	_, err := e.svc.Update(testRC(), &request.Sub{UserID: 1, WebCardID: 10},
		&UpdatePayload{PaymentMeanID: strPtr("pm-2")})
	require.NoError(t, err)

	require.Len(t, e.gateway.Created, 1)
	created := e.gateway.Created[0].Params
	assert.Equal(t, rebill.InitialPaid, created.InitialType)
	assert.Zero(t, created.InitialAmount, "no seat delta, nothing to prorate")
	wantAmount := pricing.Amount(2, models.PlanYearly)
	assert.Equal(t, wantAmount+wantAmount/5, created.RebillAmount)
	assert.Equal(t, "pm-2", created.PaymentMeanID)

	assert.Equal(t, "pm-2", e.st.Subscriptions[0].PaymentMeanID)
}

func TestUpdateYearlySeatIncreaseProrated(t *testing.T) {
	e := setup(t)
	sub := seedWebSub(t, e, models.PlanYearly, 2, 200*24*time.Hour)

	_, err := e.svc.Update(testRC(), &request.Sub{UserID: 1, WebCardID: 10}, &UpdatePayload{TotalSeats: intPtr(5)})
	require.NoError(t, err)

	monthsRemaining := pricing.WholeMonthsBetween(time.Now(), sub.EndAt)
	wantRemainder := pricing.ProratedYearlyAmount(3, monthsRemaining)
	require.True(t, wantRemainder > 0)
	assert.True(t, wantRemainder <= pricing.Amount(3, models.PlanYearly))

	created := e.gateway.Created[0].Params
	assert.Equal(t, rebill.InitialPaid, created.InitialType)
	assert.Equal(t, wantRemainder+wantRemainder/5, created.InitialAmount)
	assert.InDelta(t, 200*1440, created.InitialDurationMinutes, 1,
		"full rebill lands at the original renewal date")
}

func TestUpdateYearlySeatDecreaseRejected(t *testing.T) {
	e := setup(t)
	seedWebSub(t, e, models.PlanYearly, 5, 200*24*time.Hour)

	_, err := e.svc.Update(testRC(), &request.Sub{UserID: 1, WebCardID: 10}, &UpdatePayload{TotalSeats: intPtr(3)})
	require.Error(t, err)
	nae, ok := errors.Cause(err).(*apierrors.NotAcceptableError)
	require.True(t, ok)
	assert.Equal(t, "seat_decrease_not_allowed", nae.GetCode())
	assert.Zero(t, e.gateway.Logins)
}

func TestUpdateLifetimeRejected(t *testing.T) {
	e := setup(t)
	seedWebSub(t, e, models.PlanLifetime, 1, 100*365*24*time.Hour)

	_, err := e.svc.Update(testRC(), &request.Sub{UserID: 1, WebCardID: 10}, &UpdatePayload{TotalSeats: intPtr(2)})
	require.Error(t, err)
	nae, ok := errors.Cause(err).(*apierrors.NotAcceptableError)
	require.True(t, ok)
	assert.Equal(t, "lifetime_update_unsupported", nae.GetCode())
}

func TestUpdateReverseChargeZeroesTaxes(t *testing.T) {
	e := setup(t)
	sub := seedWebSub(t, e, models.PlanMonthly, 3, 10*24*time.Hour)
	sub.SubscriberVatNumber = "FR12345678901"
	require.NoError(t, e.st.UpdateSubscription(sub))

	_, err := e.svc.Update(testRC(), &request.Sub{UserID: 1, WebCardID: 10}, &UpdatePayload{TotalSeats: intPtr(5)})
	require.NoError(t, err)

	created := e.gateway.Created[0].Params
	assert.Equal(t, pricing.Amount(5, models.PlanMonthly), created.RebillAmount)
	assert.Zero(t, e.st.Subscriptions[0].Taxes)
}

func TestUpgradePlanStopsOldScheduleFirst(t *testing.T) {
	e := setup(t)
	sub := seedWebSub(t, e, models.PlanMonthly, 3, 10*24*time.Hour)

	info, err := e.svc.UpgradePlan(testRC(), &request.Sub{UserID: 1, WebCardID: 10})
	require.NoError(t, err)

	require.Len(t, e.gateway.Stopped, 1)
	assert.Equal(t, "rm-old", e.gateway.Stopped[0].RebillManagerID)

	require.Len(t, e.gateway.Created, 1)
	created := e.gateway.Created[0].Params
	wantAmount := pricing.Amount(3, models.PlanYearly)
	assert.Equal(t, rebill.InitialPaid, created.InitialType)
	assert.Equal(t, wantAmount+wantAmount/5, created.InitialAmount)

	remaining := pricing.WholeMinutesBetween(time.Now(), sub.EndAt)
	assert.InDelta(t, remaining+pricing.YearMinutes, created.InitialDurationMinutes, 1)
	assert.Equal(t, pricing.YearMinutes, created.RebillPeriodMinutes)

	assert.Equal(t, string(models.PlanYearly), info.Plan)
	assert.True(t, info.EndAt.After(time.Now().AddDate(1, 0, 0)))
}

func TestUpgradePlanOnlyFromMonthly(t *testing.T) {
	e := setup(t)
	seedWebSub(t, e, models.PlanYearly, 3, 200*24*time.Hour)

	_, err := e.svc.UpgradePlan(testRC(), &request.Sub{UserID: 1, WebCardID: 10})
	require.Error(t, err)
	nae, ok := errors.Cause(err).(*apierrors.NotAcceptableError)
	require.True(t, ok)
	assert.Equal(t, "plan_upgrade_unsupported", nae.GetCode())
}

func TestEndStopsScheduleAndCancels(t *testing.T) {
	e := setup(t)
	seedWebSub(t, e, models.PlanMonthly, 3, 10*24*time.Hour)

	require.NoError(t, e.svc.End(testRC(), &request.Sub{UserID: 1, WebCardID: 10}))

	require.Len(t, e.gateway.Stopped, 1)
	sub := e.st.Subscriptions[0]
	assert.Equal(t, models.StatusCanceled, sub.Status)
	assert.NotNil(t, sub.CanceledAt)
}

func TestEndWithoutScheduleStillCancels(t *testing.T) {
	e := setup(t)
	sub := seedWebSub(t, e, models.PlanMonthly, 3, 10*24*time.Hour)
	sub.RebillManagerID = ""
	sub.PaymentMeanID = ""
	require.NoError(t, e.st.UpdateSubscription(sub))

	require.NoError(t, e.svc.End(testRC(), &request.Sub{UserID: 1, WebCardID: 10}))

	assert.Zero(t, e.gateway.Logins)
	saved := e.st.Subscriptions[0]
	assert.Equal(t, models.StatusCanceled, saved.Status)
	assert.NotNil(t, saved.CanceledAt)
}

func TestFailedCommitEnqueuesOrphanSchedule(t *testing.T) {
	e := setup(t)
	seedWebSub(t, e, models.PlanMonthly, 3, 10*24*time.Hour)
	e.st.FailUpdate = errors.New("connection reset")

	_, err := e.svc.Update(testRC(), &request.Sub{UserID: 1, WebCardID: 10}, &UpdatePayload{TotalSeats: intPtr(5)})
	require.Error(t, err)

	require.Len(t, e.orphans.puts, 1)
	assert.Equal(t, "rm-1", e.orphans.puts[0].RebillManagerID)
	assert.Equal(t, "pm-1", e.orphans.puts[0].PaymentMeanID)
}

func TestGatewayCreateFailurePropagates(t *testing.T) {
	e := setup(t)
	seedWebSub(t, e, models.PlanMonthly, 3, 10*24*time.Hour)
	e.gateway.FailCreate = errors.Wrap(apierrors.ErrExternalGateway, "creation ended in status PENDING")

	_, err := e.svc.Update(testRC(), &request.Sub{UserID: 1, WebCardID: 10}, &UpdatePayload{TotalSeats: intPtr(5)})
	require.Error(t, err)
	assert.Equal(t, apierrors.ErrExternalGateway, errors.Cause(err))
	assert.Empty(t, e.orphans.puts, "nothing created, nothing to reconcile")
	assert.Equal(t, models.StatusActive, e.st.Subscriptions[0].Status)
	assert.Equal(t, 3, e.st.Subscriptions[0].TotalSeats)
}
