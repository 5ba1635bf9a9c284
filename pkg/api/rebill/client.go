// Package rebill wraps the external recurring-billing gateway. A schedule
// ("rebill manager") is an initial period plus a repeating period; this
// client creates, stops and inspects them.
package rebill

import "context"

type State string

const (
	StateOn  State = "ON"
	StateOff State = "OFF"
)

type InitialType string

const (
	InitialFree InitialType = "FREE"
	InitialPaid InitialType = "PAID"
)

// FailRuleStop makes the gateway stop the schedule after exhausting its
// own payment retries instead of keeping it in a failing loop.
const FailRuleStop = "STOP"

type CreateParams struct {
	Description            string
	InitialType            InitialType
	InitialAmount          int
	InitialDurationMinutes int
	RebillAmount           int
	RebillPeriodMinutes    int
	PaymentMeanID          string
	FailRule               string

	// ExternalReference is a freshly generated internal subscription id:
	// the gateway echoes it back on asynchronous callbacks, so rows stay
	// correlatable even after the schedule id changes.
	ExternalReference string
	CallbackURL       string
}

// Client requires an explicit token on every call: tokens are obtained
// freshly per orchestration via Login and never cached globally.
type Client interface {
	Login(ctx context.Context) (token string, err error)
	CheckState(ctx context.Context, token, rebillManagerID, paymentMeanID string) (State, error)
	Stop(ctx context.Context, token, rebillManagerID, paymentMeanID, reason string) error
	Create(ctx context.Context, token string, params CreateParams) (rebillManagerID string, err error)
}
