// Package relay parses and reconciles store-purchase notifications
// forwarded by the third-party relay (App Store / Play Store events).
package relay

import (
	"encoding/json"
	"fmt"
	"strconv"
	"time"

	"github.com/pkg/errors"

	"github.com/azzapp/billing-api/pkg/api/models"
	"github.com/azzapp/billing-api/pkg/api/products"
)

const (
	eventInitialPurchase      = "INITIAL_PURCHASE"
	eventRenewal              = "RENEWAL"
	eventCancellation         = "CANCELLATION"
	eventExpiration           = "EXPIRATION"
	eventUncancellation       = "UNCANCELLATION"
	eventSubscriptionExtended = "SUBSCRIPTION_EXTENDED"
	eventBillingIssue         = "BILLING_ISSUE"
	eventProductChange        = "PRODUCT_CHANGE"
	eventTransfer             = "TRANSFER"
)

// commonEvent carries the fields shared by every relay event type.
// AppUserID is kept verbatim for the idempotency key; UserID is its
// parsed form used to address subscription rows.
type commonEvent struct {
	RelayID      string
	AppUserID    string
	UserID       uint
	Issuer       models.Issuer
	Product      products.Product
	PurchasedAt  time.Time
	ExpirationAt time.Time
}

func (e commonEvent) Common() commonEvent { return e }

// Event is the closed union of relay event types: exactly one struct per
// type the relay sends, plus UnknownEvent for types added upstream that
// we do not handle yet.
type Event interface {
	Common() commonEvent
}

type InitialPurchaseEvent struct{ commonEvent }
type RenewalEvent struct{ commonEvent }
type CancellationEvent struct{ commonEvent }
type ExpirationEvent struct{ commonEvent }
type UncancellationEvent struct{ commonEvent }
type SubscriptionExtendedEvent struct{ commonEvent }

type BillingIssueEvent struct {
	commonEvent

	// GracePeriodExpirationAt, when set, is how long the store keeps the
	// subscription alive while retrying the payment.
	GracePeriodExpirationAt *time.Time
}

type ProductChangeEvent struct {
	commonEvent

	NewProduct products.Product
}

type TransferEvent struct{ commonEvent }

type UnknownEvent struct {
	commonEvent

	Type string
}

type rawEvent struct {
	Type                      string `json:"type"`
	ID                        string `json:"id"`
	AppUserID                 string `json:"app_user_id"`
	ProductID                 string `json:"product_id"`
	NewProductID              string `json:"new_product_id"`
	PurchasedAtMs             int64  `json:"purchased_at_ms"`
	ExpirationAtMs            int64  `json:"expiration_at_ms"`
	GracePeriodExpirationAtMs *int64 `json:"grace_period_expiration_at_ms"`
	Store                     string `json:"store"`
}

type rawEnvelope struct {
	Event      rawEvent `json:"event"`
	APIVersion string   `json:"api_version"`
}

func issuerFromStore(store string) models.Issuer {
	switch store {
	case "APP_STORE":
		return models.IssuerApple
	case "PLAY_STORE":
		return models.IssuerGoogle
	}
	return models.IssuerWeb
}

func msToTime(ms int64) time.Time {
	if ms == 0 {
		return time.Time{}
	}
	return time.Unix(0, ms*int64(time.Millisecond)).UTC()
}

// ParseEvent validates the webhook envelope and returns the typed event.
// Unknown event types parse into UnknownEvent rather than failing: the
// relay adds types over time and they must not break ingestion.
func ParseEvent(body []byte) (Event, error) {
	var envelope rawEnvelope
	if err := json.Unmarshal(body, &envelope); err != nil {
		return nil, errors.Wrapf(err, "failed to parse envelope of len %d", len(body))
	}

	raw := envelope.Event
	if raw.Type == "" {
		return nil, errors.New("no event type in envelope")
	}
	if raw.ID == "" {
		return nil, errors.New("no event id in envelope")
	}
	if raw.AppUserID == "" {
		return nil, fmt.Errorf("no app_user_id in %s event %s", raw.Type, raw.ID)
	}

	userID, err := strconv.ParseUint(raw.AppUserID, 10, 32)
	if err != nil {
		return nil, errors.Wrapf(err, "bad app_user_id %q in %s event %s", raw.AppUserID, raw.Type, raw.ID)
	}

	common := commonEvent{
		RelayID:      raw.ID,
		AppUserID:    raw.AppUserID,
		UserID:       uint(userID),
		Issuer:       issuerFromStore(raw.Store),
		Product:      products.Parse(raw.ProductID),
		PurchasedAt:  msToTime(raw.PurchasedAtMs),
		ExpirationAt: msToTime(raw.ExpirationAtMs),
	}

	switch raw.Type {
	case eventInitialPurchase:
		return &InitialPurchaseEvent{common}, nil
	case eventRenewal:
		return &RenewalEvent{common}, nil
	case eventCancellation:
		return &CancellationEvent{common}, nil
	case eventExpiration:
		return &ExpirationEvent{common}, nil
	case eventUncancellation:
		return &UncancellationEvent{common}, nil
	case eventSubscriptionExtended:
		return &SubscriptionExtendedEvent{common}, nil
	case eventBillingIssue:
		ev := &BillingIssueEvent{commonEvent: common}
		if raw.GracePeriodExpirationAtMs != nil {
			grace := msToTime(*raw.GracePeriodExpirationAtMs)
			ev.GracePeriodExpirationAt = &grace
		}
		return ev, nil
	case eventProductChange:
		return &ProductChangeEvent{
			commonEvent: common,
			NewProduct:  products.Parse(raw.NewProductID),
		}, nil
	case eventTransfer:
		return &TransferEvent{common}, nil
	}

	return &UnknownEvent{commonEvent: common, Type: raw.Type}, nil
}
