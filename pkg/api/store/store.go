package store

import (
	"github.com/azzapp/billing-api/pkg/api/models"
)

// Store is transactional CRUD over subscriptions and processed relay
// events. Implementations must make Tx serialize concurrent updates of the
// same row when the read is done with forUpdate.
type Store interface {
	GetActiveWebSubscription(userID, webCardID uint) (*models.Subscription, error)
	GetStoreSubscription(userID uint, forUpdate bool) (*models.Subscription, error)
	GetRelayEvent(issuer models.Issuer, appUserID, relayID string) (*models.RelayEvent, error)

	CreateSubscription(sub *models.Subscription) error
	UpdateSubscription(sub *models.Subscription) error
	SaveRelayEvent(ev *models.RelayEvent) error

	Tx(fn func(tx Store) error) error
}
