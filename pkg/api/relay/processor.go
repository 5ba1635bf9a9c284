package relay

import (
	"context"
	"time"

	"github.com/pkg/errors"

	"github.com/azzapp/billing-api/internal/api/apierrors"
	"github.com/azzapp/billing-api/internal/shared/logutil"
	"github.com/azzapp/billing-api/pkg/api/entitlement"
	"github.com/azzapp/billing-api/pkg/api/models"
	"github.com/azzapp/billing-api/pkg/api/pricing"
	"github.com/azzapp/billing-api/pkg/api/store"
)

// EventProcessor reconciles relay events into subscription rows. The
// rebill gateway is never touched from this path: the recurring schedule
// of a store subscription is owned by the store.
type EventProcessor struct {
	log     logutil.Log
	st      store.Store
	revoker entitlement.Revoker
}

func NewEventProcessor(log logutil.Log, st store.Store, revoker entitlement.Revoker) *EventProcessor {
	return &EventProcessor{
		log:     log,
		st:      st,
		revoker: revoker,
	}
}

// Process applies one relay event inside a single transaction. The
// subscription row is read FOR UPDATE so concurrent deliveries for the
// same user serialize; exact duplicates are detected by the
// (issuer, app_user_id, relay_id) key and skipped. An error rolls the
// whole reconciliation back so the relay's retry re-runs it.
func (p EventProcessor) Process(ctx context.Context, ev Event, rawBody []byte) error {
	common := ev.Common()

	return p.st.Tx(func(tx store.Store) error {
		_, err := tx.GetRelayEvent(common.Issuer, common.AppUserID, common.RelayID)
		if err == nil {
			p.log.Infof("Skipping duplicate relay event %s for user %d", common.RelayID, common.UserID)
			return nil
		}
		if errors.Cause(err) != apierrors.ErrNotFound {
			return errors.Wrap(err, "failed to check relay event for duplicate")
		}

		existing, err := tx.GetStoreSubscription(common.UserID, true)
		if err != nil {
			if errors.Cause(err) != apierrors.ErrNotFound {
				return errors.Wrap(err, "failed to fetch subscription for relay event")
			}
			existing = nil
		}

		if err = p.apply(ctx, tx, ev, existing); err != nil {
			return err
		}

		record := models.RelayEvent{
			Issuer:    common.Issuer,
			AppUserID: common.AppUserID,
			RelayID:   common.RelayID,
			Type:      TypeName(ev),
			Data:      rawBody,
		}
		return tx.SaveRelayEvent(&record)
	})
}

//nolint:gocyclo
func (p EventProcessor) apply(ctx context.Context, tx store.Store, ev Event, existing *models.Subscription) error {
	common := ev.Common()

	switch ev := ev.(type) {
	case *InitialPurchaseEvent:
		if existing != nil {
			// Not expected from the relay, but treated as a renewal-style
			// refresh rather than a second row.
			p.log.Warnf("Initial purchase %s for user %d with existing subscription %d",
				common.RelayID, common.UserID, existing.ID)
			return p.reactivate(tx, common, existing)
		}
		return p.create(tx, common, models.StatusActive)

	case *RenewalEvent:
		if existing == nil {
			return p.create(tx, common, models.StatusActive)
		}
		return p.reactivate(tx, common, existing)

	case *CancellationEvent:
		return p.cancel(ctx, tx, common, existing)

	case *ExpirationEvent:
		return p.cancel(ctx, tx, common, existing)

	case *UncancellationEvent:
		// Reactivation restores access, it must not unpublish anything.
		if existing == nil {
			return p.create(tx, common, models.StatusActive)
		}
		return p.reactivate(tx, common, existing)

	case *SubscriptionExtendedEvent:
		if existing == nil {
			return p.create(tx, common, models.StatusActive)
		}
		return p.reactivate(tx, common, existing)

	case *BillingIssueEvent:
		if existing == nil {
			p.log.Warnf("Billing issue %s for user %d without a subscription", common.RelayID, common.UserID)
			return nil
		}
		// Grace tolerance: keep access until the store gives up. Only a
		// later EXPIRATION revokes it.
		if ev.GracePeriodExpirationAt != nil {
			existing.EndAt = *ev.GracePeriodExpirationAt
		} else if !common.ExpirationAt.IsZero() {
			existing.EndAt = common.ExpirationAt
		}
		return tx.UpdateSubscription(existing)

	case *ProductChangeEvent:
		if existing == nil {
			p.log.Warnf("Product change %s for user %d without a subscription", common.RelayID, common.UserID)
			return nil
		}
		existing.TotalSeats = ev.NewProduct.Seats
		if ev.NewProduct.Plan != "" {
			existing.Plan = ev.NewProduct.Plan
		}
		existing.Amount = pricing.Amount(existing.TotalSeats, existing.Plan)
		return tx.UpdateSubscription(existing)

	case *TransferEvent:
		p.log.Infof("Ignoring transfer event %s for user %d", common.RelayID, common.UserID)
		return nil

	case *UnknownEvent:
		p.log.Warnf("Ignoring unknown relay event type %s (event %s, user %d)",
			ev.Type, common.RelayID, common.UserID)
		return nil
	}

	return errors.Errorf("unhandled relay event %T", ev)
}

func (p EventProcessor) create(tx store.Store, common commonEvent, status models.SubscriptionStatus) error {
	sub := models.Subscription{
		UserID:       common.UserID,
		Plan:         planOrDefault(common.Product.Plan),
		TotalSeats:   common.Product.Seats,
		Amount:       pricing.Amount(common.Product.Seats, planOrDefault(common.Product.Plan)),
		Issuer:       common.Issuer,
		RevenueCatID: common.AppUserID,
		StartAt:      common.PurchasedAt,
		EndAt:        common.ExpirationAt,
		Status:       status,
	}
	if status == models.StatusCanceled {
		// Defensive backfill: a cancellation arrived for a row we never
		// saw created.
		sub.MarkCanceled(eventTime(common))
	}

	return tx.CreateSubscription(&sub)
}

func (p EventProcessor) reactivate(tx store.Store, common commonEvent, existing *models.Subscription) error {
	existing.MarkActive()
	if !common.ExpirationAt.IsZero() {
		existing.EndAt = common.ExpirationAt
	}
	if common.Product.SeatsParsed {
		existing.TotalSeats = common.Product.Seats
	}
	return tx.UpdateSubscription(existing)
}

func (p EventProcessor) cancel(ctx context.Context, tx store.Store, common commonEvent, existing *models.Subscription) error {
	if existing == nil {
		return p.create(tx, common, models.StatusCanceled)
	}

	existing.MarkCanceled(eventTime(common))
	if err := tx.UpdateSubscription(existing); err != nil {
		return err
	}

	// Revoking inside the transaction keeps reconciliation atomic: a
	// failed unpublish rolls everything back and the relay retries the
	// delivery. The duplicate check stops a second revocation once the
	// delivery has succeeded.
	if err := p.revoker.UnpublishWebCardForUser(ctx, common.UserID); err != nil {
		return errors.Wrapf(err, "failed to revoke entitlement for user %d", common.UserID)
	}

	return nil
}

func eventTime(common commonEvent) time.Time {
	if !common.PurchasedAt.IsZero() {
		return common.PurchasedAt
	}
	return time.Now().UTC()
}

func planOrDefault(plan models.SubscriptionPlan) models.SubscriptionPlan {
	if plan == "" {
		return models.PlanMonthly
	}
	return plan
}

// TypeName returns the relay wire name of the event type.
func TypeName(ev Event) string {
	switch ev := ev.(type) {
	case *InitialPurchaseEvent:
		return eventInitialPurchase
	case *RenewalEvent:
		return eventRenewal
	case *CancellationEvent:
		return eventCancellation
	case *ExpirationEvent:
		return eventExpiration
	case *UncancellationEvent:
		return eventUncancellation
	case *SubscriptionExtendedEvent:
		return eventSubscriptionExtended
	case *BillingIssueEvent:
		return eventBillingIssue
	case *ProductChangeEvent:
		return eventProductChange
	case *TransferEvent:
		return eventTransfer
	case *UnknownEvent:
		return ev.Type
	}
	return "UNKNOWN"
}
