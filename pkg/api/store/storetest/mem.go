// Package storetest provides an in-memory store.Store for service tests.
package storetest

import (
	"sync"

	"github.com/azzapp/billing-api/internal/api/apierrors"
	"github.com/azzapp/billing-api/pkg/api/models"
	"github.com/azzapp/billing-api/pkg/api/store"
	"github.com/pkg/errors"
)

type Mem struct {
	mu sync.Mutex

	nextID        uint
	Subscriptions []*models.Subscription
	RelayEvents   []*models.RelayEvent

	// FailCreate and FailUpdate, when set, make the corresponding write
	// return the given error. Used to exercise partial failure paths.
	FailCreate error
	FailUpdate error
}

var _ store.Store = &Mem{}

func NewMem() *Mem {
	return &Mem{nextID: 1}
}

func (m *Mem) GetActiveWebSubscription(userID, webCardID uint) (*models.Subscription, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	for _, sub := range m.Subscriptions {
		if sub.UserID == userID && sub.WebCardID == webCardID &&
			sub.Issuer == models.IssuerWeb && sub.Status == models.StatusActive {

			ret := *sub
			return &ret, nil
		}
	}
	return nil, errors.Wrap(apierrors.ErrNotFound, "no active web subscription")
}

func (m *Mem) GetStoreSubscription(userID uint, forUpdate bool) (*models.Subscription, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	for _, sub := range m.Subscriptions {
		if sub.UserID == userID && sub.Issuer != models.IssuerWeb {
			ret := *sub
			return &ret, nil
		}
	}
	return nil, errors.Wrap(apierrors.ErrNotFound, "no store subscription")
}

func (m *Mem) GetRelayEvent(issuer models.Issuer, appUserID, relayID string) (*models.RelayEvent, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	for _, ev := range m.RelayEvents {
		if ev.Issuer == issuer && ev.AppUserID == appUserID && ev.RelayID == relayID {
			ret := *ev
			return &ret, nil
		}
	}
	return nil, errors.Wrap(apierrors.ErrNotFound, "no relay event")
}

func (m *Mem) CreateSubscription(sub *models.Subscription) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.FailCreate != nil {
		return m.FailCreate
	}

	sub.ID = m.nextID
	m.nextID++

	saved := *sub
	m.Subscriptions = append(m.Subscriptions, &saved)
	return nil
}

func (m *Mem) UpdateSubscription(sub *models.Subscription) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.FailUpdate != nil {
		return m.FailUpdate
	}

	for i, cur := range m.Subscriptions {
		if cur.ID == sub.ID {
			saved := *sub
			m.Subscriptions[i] = &saved
			return nil
		}
	}
	return errors.Wrapf(apierrors.ErrNotFound, "no subscription %d", sub.ID)
}

func (m *Mem) SaveRelayEvent(ev *models.RelayEvent) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	ev.ID = m.nextID
	m.nextID++

	saved := *ev
	m.RelayEvents = append(m.RelayEvents, &saved)
	return nil
}

func (m *Mem) Tx(fn func(tx store.Store) error) error {
	return fn(m)
}
