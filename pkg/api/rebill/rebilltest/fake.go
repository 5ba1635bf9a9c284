// Package rebilltest provides an in-memory rebill.Client for service tests.
package rebilltest

import (
	"context"
	"fmt"
	"sync"

	"github.com/azzapp/billing-api/pkg/api/rebill"
)

type StopCall struct {
	Token           string
	RebillManagerID string
	PaymentMeanID   string
	Reason          string
}

type CreateCall struct {
	Token  string
	Params rebill.CreateParams
}

type Fake struct {
	mu sync.Mutex

	// States maps rebill manager id to its reported state; ids not present
	// report OFF.
	States map[string]rebill.State

	Logins  int
	Stopped []StopCall
	Created []CreateCall

	FailLogin  error
	FailStop   error
	FailCreate error
}

var _ rebill.Client = &Fake{}

func NewFake() *Fake {
	return &Fake{States: map[string]rebill.State{}}
}

func (f *Fake) Login(ctx context.Context) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.FailLogin != nil {
		return "", f.FailLogin
	}

	f.Logins++
	return fmt.Sprintf("token-%d", f.Logins), nil
}

func (f *Fake) CheckState(ctx context.Context, token, rebillManagerID, paymentMeanID string) (rebill.State, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	if state, ok := f.States[rebillManagerID]; ok {
		return state, nil
	}
	return rebill.StateOff, nil
}

func (f *Fake) Stop(ctx context.Context, token, rebillManagerID, paymentMeanID, reason string) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.FailStop != nil {
		return f.FailStop
	}

	f.Stopped = append(f.Stopped, StopCall{
		Token:           token,
		RebillManagerID: rebillManagerID,
		PaymentMeanID:   paymentMeanID,
		Reason:          reason,
	})
	f.States[rebillManagerID] = rebill.StateOff
	return nil
}

func (f *Fake) Create(ctx context.Context, token string, params rebill.CreateParams) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.FailCreate != nil {
		return "", f.FailCreate
	}

	f.Created = append(f.Created, CreateCall{Token: token, Params: params})

	id := fmt.Sprintf("rm-%d", len(f.Created))
	f.States[id] = rebill.StateOn
	return id, nil
}
