package models

import (
	"github.com/jinzhu/gorm"
)

// RelayEvent records every processed notification-relay delivery.
// (issuer, app_user_id, relay_id) is the idempotency key: a delivery whose
// key is already present is an exact duplicate and must be skipped.
type RelayEvent struct {
	gorm.Model

	Issuer    Issuer
	AppUserID string
	RelayID   string

	Type string
	Data []byte
}
