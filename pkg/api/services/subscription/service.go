package subscription

import (
	"fmt"
	"time"

	uuid "github.com/satori/go.uuid"

	"github.com/pkg/errors"

	"github.com/azzapp/billing-api/internal/api/apierrors"
	"github.com/azzapp/billing-api/internal/shared/config"
	"github.com/azzapp/billing-api/internal/shared/logutil"
	"github.com/azzapp/billing-api/pkg/api/models"
	"github.com/azzapp/billing-api/pkg/api/pricing"
	"github.com/azzapp/billing-api/pkg/api/rebill"
	"github.com/azzapp/billing-api/pkg/api/request"
	"github.com/azzapp/billing-api/pkg/api/returntypes"
	"github.com/azzapp/billing-api/pkg/api/store"
	"github.com/azzapp/billing-api/pkg/api/taxes"
)

type UpdatePayload struct {
	TotalSeats    *int    `json:"totalSeats"`
	PaymentMeanID *string `json:"paymentMeanId"`
}

func (p UpdatePayload) FillLogContext(lctx logutil.Context) {
	if p.TotalSeats != nil {
		lctx["total_seats"] = *p.TotalSeats
	}
	lctx["payment_mean_change"] = p.PaymentMeanID != nil
}

type Service interface {
	//url:/v1/subscriptions/{user_id}/{web_card_id} method:PUT
	Update(rc *request.InternalContext, reqSub *request.Sub, payload *UpdatePayload) (*returntypes.SubInfo, error)

	//url:/v1/subscriptions/{user_id}/{web_card_id}/upgrade method:POST
	UpgradePlan(rc *request.InternalContext, reqSub *request.Sub) (*returntypes.SubInfo, error)

	//url:/v1/subscriptions/{user_id}/{web_card_id} method:DELETE
	End(rc *request.InternalContext, reqSub *request.Sub) error
}

// OrphanQueue receives schedules that are live on the gateway without a
// matching committed row, for asynchronous stopping.
type OrphanQueue interface {
	Put(rebillManagerID, paymentMeanID, subscriptionID, reason string) error
}

func NewBasicService(cfg config.Config, st store.Store, gateway rebill.Client,
	taxCalc *taxes.Calculator, orphanQueue OrphanQueue) *BasicService {

	return &BasicService{
		cfg:         cfg,
		st:          st,
		gateway:     gateway,
		taxCalc:     taxCalc,
		orphanQueue: orphanQueue,
	}
}

type BasicService struct {
	cfg         config.Config
	st          store.Store
	gateway     rebill.Client
	taxCalc     *taxes.Calculator
	orphanQueue OrphanQueue
}

func (s BasicService) Update(rc *request.InternalContext, reqSub *request.Sub,
	payload *UpdatePayload) (*returntypes.SubInfo, error) {

	sub, err := s.st.GetActiveWebSubscription(reqSub.UserID, reqSub.WebCardID)
	if err != nil {
		return nil, err
	}

	if payload == nil || (payload.TotalSeats == nil && payload.PaymentMeanID == nil) {
		return returntypes.SubInfoFromModel(sub), nil
	}

	newSeats := sub.TotalSeats
	if payload.TotalSeats != nil {
		newSeats = *payload.TotalSeats
	}
	if newSeats < 1 {
		return nil, apierrors.NewNotAcceptableError("invalid_seat_count").
			WithMessage("a subscription needs at least one seat")
	}

	paymentMeanID := sub.PaymentMeanID
	if payload.PaymentMeanID != nil {
		paymentMeanID = *payload.PaymentMeanID
	}
	if paymentMeanID == "" {
		return nil, apierrors.NewNotAcceptableError("no_payment_mean").
			WithMessage("no stored payment method to bill the new schedule on")
	}

	switch sub.Plan {
	case models.PlanLifetime:
		return nil, apierrors.NewNotAcceptableError("lifetime_update_unsupported").
			WithMessage("lifetime subscriptions cannot change seats or payment method")
	case models.PlanMonthly:
		err = s.updateMonthly(rc, sub, newSeats, paymentMeanID)
	case models.PlanYearly:
		if newSeats < sub.TotalSeats {
			return nil, apierrors.NewNotAcceptableError("seat_decrease_not_allowed").
				WithMessage("yearly plans cannot decrease seats before the end of the term")
		}
		err = s.updateYearly(rc, sub, newSeats, paymentMeanID)
	default:
		err = fmt.Errorf("unknown subscription plan %q", sub.Plan)
	}
	if err != nil {
		return nil, err
	}

	return returntypes.SubInfoFromModel(sub), nil
}

// updateMonthly replaces the recurring schedule with one whose initial
// period is free for the rest of the already-paid month, so the new
// amount only kicks in at the next renewal.
func (s BasicService) updateMonthly(rc *request.InternalContext, sub *models.Subscription,
	newSeats int, paymentMeanID string) error {

	ctx := rc.Ctx

	token, err := s.gateway.Login(ctx)
	if err != nil {
		return errors.Wrap(err, "gateway login failed")
	}

	if err = s.stopLiveSchedule(rc, token, sub, "seats or payment method update"); err != nil {
		return err
	}

	amount := pricing.Amount(billableSeats(newSeats, sub.FreeSeats), models.PlanMonthly)
	tax, err := s.taxCalc.Calculate(ctx, amount, sub.SubscriberCountryCode, sub.SubscriberVatNumber)
	if err != nil {
		return err
	}

	remainingMinutes := pricing.WholeMinutesBetween(time.Now(), sub.EndAt)
	newSubscriptionID := uuid.NewV4().String()

	rebillManagerID, err := s.gateway.Create(ctx, token, rebill.CreateParams{
		Description:            s.description(models.PlanMonthly, newSeats),
		InitialType:            rebill.InitialFree,
		InitialAmount:          0,
		InitialDurationMinutes: remainingMinutes,
		RebillAmount:           amount + tax,
		RebillPeriodMinutes:    pricing.NextPaymentIntervalMinutes(models.PlanMonthly),
		PaymentMeanID:          paymentMeanID,
		FailRule:               rebill.FailRuleStop,
		ExternalReference:      newSubscriptionID,
		CallbackURL:            s.cfg.GetString("REBILL_CALLBACK_URL"),
	})
	if err != nil {
		return errors.Wrap(err, "failed to create new schedule")
	}

	sub.TotalSeats = newSeats
	sub.Amount = amount
	sub.Taxes = tax
	sub.PaymentMeanID = paymentMeanID
	sub.RebillManagerID = rebillManagerID
	sub.SubscriptionID = newSubscriptionID
	sub.MarkActive()
	// endAt is unchanged: the current entitlement window was already paid

	return s.persist(rc, sub, rebillManagerID, paymentMeanID, newSubscriptionID)
}

// updateYearly charges the seat increase pro rata for the months left in
// the term, then rebills the full new annual amount starting exactly at
// the original renewal date.
func (s BasicService) updateYearly(rc *request.InternalContext, sub *models.Subscription,
	newSeats int, paymentMeanID string) error {

	ctx := rc.Ctx
	now := time.Now()

	monthsRemaining := pricing.WholeMonthsBetween(now, sub.EndAt)
	minutesRemaining := pricing.WholeMinutesBetween(now, sub.EndAt)

	deltaSeats := newSeats - sub.TotalSeats
	amountForRemainder := pricing.ProratedYearlyAmount(deltaSeats, monthsRemaining)
	remainderTax, err := s.taxCalc.Calculate(ctx, amountForRemainder, sub.SubscriberCountryCode, sub.SubscriberVatNumber)
	if err != nil {
		return err
	}

	newAmount := pricing.Amount(billableSeats(newSeats, sub.FreeSeats), models.PlanYearly)
	newTax, err := s.taxCalc.Calculate(ctx, newAmount, sub.SubscriberCountryCode, sub.SubscriberVatNumber)
	if err != nil {
		return err
	}

	token, err := s.gateway.Login(ctx)
	if err != nil {
		return errors.Wrap(err, "gateway login failed")
	}

	if err = s.stopLiveSchedule(rc, token, sub, "seats or payment method update"); err != nil {
		return err
	}

	newSubscriptionID := uuid.NewV4().String()
	rebillManagerID, err := s.gateway.Create(ctx, token, rebill.CreateParams{
		Description:            s.description(models.PlanYearly, newSeats),
		InitialType:            rebill.InitialPaid,
		InitialAmount:          amountForRemainder + remainderTax,
		InitialDurationMinutes: minutesRemaining,
		RebillAmount:           newAmount + newTax,
		RebillPeriodMinutes:    pricing.NextPaymentIntervalMinutes(models.PlanYearly),
		PaymentMeanID:          paymentMeanID,
		FailRule:               rebill.FailRuleStop,
		ExternalReference:      newSubscriptionID,
		CallbackURL:            s.cfg.GetString("REBILL_CALLBACK_URL"),
	})
	if err != nil {
		return errors.Wrap(err, "failed to create new schedule")
	}

	sub.TotalSeats = newSeats
	sub.Amount = newAmount
	sub.Taxes = newTax
	sub.PaymentMeanID = paymentMeanID
	sub.RebillManagerID = rebillManagerID
	sub.SubscriptionID = newSubscriptionID
	sub.MarkActive()

	return s.persist(rc, sub, rebillManagerID, paymentMeanID, newSubscriptionID)
}

func (s BasicService) UpgradePlan(rc *request.InternalContext, reqSub *request.Sub) (*returntypes.SubInfo, error) {
	sub, err := s.st.GetActiveWebSubscription(reqSub.UserID, reqSub.WebCardID)
	if err != nil {
		return nil, err
	}

	if sub.Plan != models.PlanMonthly {
		return nil, apierrors.NewNotAcceptableError("plan_upgrade_unsupported").
			WithMessage(fmt.Sprintf("only monthly plans can be upgraded, not %s", sub.Plan))
	}
	if sub.PaymentMeanID == "" {
		return nil, apierrors.NewNotAcceptableError("no_payment_mean").
			WithMessage("no stored payment method to bill the new schedule on")
	}

	ctx := rc.Ctx
	now := time.Now()

	annualAmount := pricing.Amount(billableSeats(sub.TotalSeats, sub.FreeSeats), models.PlanYearly)
	annualTax, err := s.taxCalc.Calculate(ctx, annualAmount, sub.SubscriberCountryCode, sub.SubscriberVatNumber)
	if err != nil {
		return nil, err
	}

	token, err := s.gateway.Login(ctx)
	if err != nil {
		return nil, errors.Wrap(err, "gateway login failed")
	}

	// The monthly schedule must reach STOPPED before the annual one goes
	// live: two live schedules would double-bill.
	if err = s.stopLiveSchedule(rc, token, sub, "upgrade to yearly plan"); err != nil {
		return nil, err
	}

	// The paid initial period covers the rest of the current month plus a
	// full year, so the first annual rebill lands one year after the end
	// of the already-paid monthly period.
	remainingMinutes := pricing.WholeMinutesBetween(now, sub.EndAt)
	initialDuration := remainingMinutes + pricing.YearMinutes

	newSubscriptionID := uuid.NewV4().String()
	rebillManagerID, err := s.gateway.Create(ctx, token, rebill.CreateParams{
		Description:            s.description(models.PlanYearly, sub.TotalSeats),
		InitialType:            rebill.InitialPaid,
		InitialAmount:          annualAmount + annualTax,
		InitialDurationMinutes: initialDuration,
		RebillAmount:           annualAmount + annualTax,
		RebillPeriodMinutes:    pricing.NextPaymentIntervalMinutes(models.PlanYearly),
		PaymentMeanID:          sub.PaymentMeanID,
		FailRule:               rebill.FailRuleStop,
		ExternalReference:      newSubscriptionID,
		CallbackURL:            s.cfg.GetString("REBILL_CALLBACK_URL"),
	})
	if err != nil {
		return nil, errors.Wrap(err, "failed to create new schedule")
	}

	sub.Plan = models.PlanYearly
	sub.Amount = annualAmount
	sub.Taxes = annualTax
	sub.RebillManagerID = rebillManagerID
	sub.SubscriptionID = newSubscriptionID
	sub.EndAt = now.Add(time.Duration(initialDuration) * time.Minute)
	sub.MarkActive()

	if err = s.persist(rc, sub, rebillManagerID, sub.PaymentMeanID, newSubscriptionID); err != nil {
		return nil, err
	}

	return returntypes.SubInfoFromModel(sub), nil
}

func (s BasicService) End(rc *request.InternalContext, reqSub *request.Sub) error {
	sub, err := s.st.GetActiveWebSubscription(reqSub.UserID, reqSub.WebCardID)
	if err != nil {
		return err
	}

	if sub.RebillManagerID != "" && sub.PaymentMeanID != "" {
		var token string
		token, err = s.gateway.Login(rc.Ctx)
		if err != nil {
			return errors.Wrap(err, "gateway login failed")
		}

		if err = s.gateway.Stop(rc.Ctx, token, sub.RebillManagerID, sub.PaymentMeanID, "subscription ended by user"); err != nil {
			return errors.Wrapf(err, "failed to stop schedule %s", sub.RebillManagerID)
		}
	} else {
		rc.Log.Warnf("Ending subscription %d without a gateway schedule", sub.ID)
	}

	// The row is marked canceled even without a schedule: local state must
	// reflect the user's intent regardless of gateway linkage.
	sub.MarkCanceled(time.Now())
	if err = s.st.UpdateSubscription(sub); err != nil {
		return errors.Wrap(err, "failed to persist cancellation")
	}

	return nil
}

func (s BasicService) stopLiveSchedule(rc *request.InternalContext, token string,
	sub *models.Subscription, reason string) error {

	if sub.RebillManagerID == "" || sub.PaymentMeanID == "" {
		return nil
	}

	err := s.gateway.Stop(rc.Ctx, token, sub.RebillManagerID, sub.PaymentMeanID, reason)
	if err != nil {
		return errors.Wrapf(err, "failed to stop schedule %s", sub.RebillManagerID)
	}

	return nil
}

// persist commits the mutated row. When the commit fails the freshly
// created schedule is already live on the gateway with no local state
// pointing at it: it is handed to the orphan queue for stopping before
// the error propagates.
func (s BasicService) persist(rc *request.InternalContext, sub *models.Subscription,
	rebillManagerID, paymentMeanID, subscriptionID string) error {

	if err := s.st.UpdateSubscription(sub); err != nil {
		rc.Log.Errorf("Schedule %s is live on the gateway but the local commit failed: %s",
			rebillManagerID, err)

		if putErr := s.orphanQueue.Put(rebillManagerID, paymentMeanID, subscriptionID,
			"orphaned by failed local commit"); putErr != nil {
			rc.Log.Errorf("Failed to enqueue orphan schedule %s for stopping: %s", rebillManagerID, putErr)
		}

		return errors.Wrap(err, "failed to persist subscription update")
	}

	return nil
}

func (s BasicService) description(plan models.SubscriptionPlan, seats int) string {
	return fmt.Sprintf("azzapp %s plan, %d seats", plan, seats)
}

func billableSeats(totalSeats, freeSeats int) int {
	billable := totalSeats - freeSeats
	if billable < 0 {
		return 0
	}
	return billable
}
