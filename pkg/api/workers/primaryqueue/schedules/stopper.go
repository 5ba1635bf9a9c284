// Package schedules reconciles orphaned gateway schedules: a schedule the
// gateway created while the matching local commit failed keeps charging
// the subscriber until someone stops it.
package schedules

import (
	"context"
	"fmt"
	"time"

	"github.com/cenkalti/backoff"
	"github.com/pkg/errors"
	redsync "gopkg.in/redsync.v1"

	"github.com/azzapp/billing-api/internal/shared/logutil"
	"github.com/azzapp/billing-api/internal/shared/queue/consumers"
	"github.com/azzapp/billing-api/internal/shared/queue/producers"
	"github.com/azzapp/billing-api/pkg/api/rebill"
	"github.com/azzapp/billing-api/pkg/api/workers/primaryqueue"
)

const stopQueueID = "schedules/stop"

type stopMessage struct {
	RebillManagerID string
	PaymentMeanID   string
	SubscriptionID  string
	Reason          string
}

func (m stopMessage) LockID() string {
	return fmt.Sprintf("%s/%s", stopQueueID, m.RebillManagerID)
}

// StopperProducer enqueues a schedule for stopping. It is fed from the
// lifecycle service's partial-failure path: gateway create succeeded,
// local commit did not.
type StopperProducer struct {
	producers.Base
}

func (p *StopperProducer) Register(m *producers.Multiplexer) error {
	return p.Base.Register(m, stopQueueID)
}

func (p StopperProducer) Put(rebillManagerID, paymentMeanID, subscriptionID, reason string) error {
	return p.Base.Put(stopMessage{
		RebillManagerID: rebillManagerID,
		PaymentMeanID:   paymentMeanID,
		SubscriptionID:  subscriptionID,
		Reason:          reason,
	})
}

type StopperConsumer struct {
	log     logutil.Log
	gateway rebill.Client
}

func NewStopperConsumer(log logutil.Log, gateway rebill.Client) *StopperConsumer {
	return &StopperConsumer{
		log:     log,
		gateway: gateway,
	}
}

func (c StopperConsumer) Register(m *consumers.Multiplexer, df *redsync.Redsync) error {
	return primaryqueue.RegisterConsumer(c.consumeMessage, stopQueueID, m, df)
}

func (c StopperConsumer) consumeMessage(ctx context.Context, m *stopMessage) error {
	token, err := c.gateway.Login(ctx)
	if err != nil {
		return errors.Wrapf(err, "failed to login to stop orphan schedule %s", m.RebillManagerID)
	}

	// CheckState is read-only, safe to retry. Stop is not retried here:
	// a failed stop comes back through the queue's redelivery.
	var state rebill.State
	checkState := func() error {
		var checkErr error
		state, checkErr = c.gateway.CheckState(ctx, token, m.RebillManagerID, m.PaymentMeanID)
		return checkErr
	}
	b := backoff.NewExponentialBackOff()
	b.MaxElapsedTime = 15 * time.Second
	bmr := backoff.WithMaxRetries(b, 5)
	if err = backoff.Retry(checkState, bmr); err != nil {
		return errors.Wrapf(err, "failed to check state of orphan schedule %s", m.RebillManagerID)
	}

	if state == rebill.StateOff {
		c.log.Infof("Orphan schedule %s (subscription %s) is already off", m.RebillManagerID, m.SubscriptionID)
		return nil
	}

	if err = c.gateway.Stop(ctx, token, m.RebillManagerID, m.PaymentMeanID, m.Reason); err != nil {
		return errors.Wrapf(err, "failed to stop orphan schedule %s", m.RebillManagerID)
	}

	c.log.Warnf("Stopped orphan schedule %s (subscription %s): %s", m.RebillManagerID, m.SubscriptionID, m.Reason)
	return nil
}
