package store

import (
	"github.com/azzapp/billing-api/internal/api/apierrors"
	"github.com/azzapp/billing-api/internal/shared/db/gormdb"
	"github.com/azzapp/billing-api/pkg/api/models"
	"github.com/jinzhu/gorm"
	"github.com/pkg/errors"
)

type Gorm struct {
	db *gorm.DB
}

var _ Store = &Gorm{}

func NewGorm(db *gorm.DB) *Gorm {
	return &Gorm{db: db}
}

func (s Gorm) GetActiveWebSubscription(userID, webCardID uint) (*models.Subscription, error) {
	var sub models.Subscription
	err := s.db.
		Where("user_id = ? AND web_card_id = ? AND issuer = ? AND status = ?",
			userID, webCardID, models.IssuerWeb, models.StatusActive).
		First(&sub).Error
	if err == gorm.ErrRecordNotFound {
		return nil, errors.Wrapf(apierrors.ErrNotFound,
			"no active web subscription for user %d and web card %d", userID, webCardID)
	}
	if err != nil {
		return nil, errors.Wrap(err, "failed to fetch active web subscription")
	}

	return &sub, nil
}

func (s Gorm) GetStoreSubscription(userID uint, forUpdate bool) (*models.Subscription, error) {
	q := s.db.Where("user_id = ? AND issuer <> ?", userID, models.IssuerWeb)
	if forUpdate {
		q = q.Set("gorm:query_option", "FOR UPDATE")
	}

	var sub models.Subscription
	err := q.First(&sub).Error
	if err == gorm.ErrRecordNotFound {
		return nil, errors.Wrapf(apierrors.ErrNotFound, "no store subscription for user %d", userID)
	}
	if err != nil {
		return nil, errors.Wrap(err, "failed to fetch store subscription")
	}

	return &sub, nil
}

func (s Gorm) GetRelayEvent(issuer models.Issuer, appUserID, relayID string) (*models.RelayEvent, error) {
	var ev models.RelayEvent
	err := s.db.
		Where("issuer = ? AND app_user_id = ? AND relay_id = ?", issuer, appUserID, relayID).
		First(&ev).Error
	if err == gorm.ErrRecordNotFound {
		return nil, errors.Wrapf(apierrors.ErrNotFound, "no relay event %s/%s/%s", issuer, appUserID, relayID)
	}
	if err != nil {
		return nil, errors.Wrap(err, "failed to fetch relay event")
	}

	return &ev, nil
}

func (s Gorm) CreateSubscription(sub *models.Subscription) error {
	if err := s.db.Create(sub).Error; err != nil {
		return errors.Wrap(err, "failed to create subscription")
	}
	return nil
}

func (s Gorm) UpdateSubscription(sub *models.Subscription) error {
	if err := s.db.Save(sub).Error; err != nil {
		return errors.Wrapf(err, "failed to update subscription %d", sub.ID)
	}
	return nil
}

func (s Gorm) SaveRelayEvent(ev *models.RelayEvent) error {
	if err := s.db.Create(ev).Error; err != nil {
		return errors.Wrap(err, "failed to save relay event")
	}
	return nil
}

func (s Gorm) Tx(fn func(tx Store) error) (retErr error) {
	tx, finish, err := gormdb.StartTx(s.db)
	if err != nil {
		return err
	}
	defer finish(&retErr)

	retErr = fn(&Gorm{db: tx})
	return retErr
}
