package models

import (
	"fmt"
	"time"

	"github.com/jinzhu/gorm"
)

type SubscriptionPlan string

const (
	PlanMonthly  SubscriptionPlan = "monthly"
	PlanYearly   SubscriptionPlan = "yearly"
	PlanLifetime SubscriptionPlan = "lifetime"
)

func (p SubscriptionPlan) IsValid() bool {
	return p == PlanMonthly || p == PlanYearly || p == PlanLifetime
}

type Issuer string

const (
	IssuerWeb    Issuer = "web"
	IssuerApple  Issuer = "apple"
	IssuerGoogle Issuer = "google"
)

type SubscriptionStatus string

const (
	StatusActive   SubscriptionStatus = "active"
	StatusCanceled SubscriptionStatus = "canceled"
)

// Subscription is the sole persistent billing entity. Rows are never hard
// deleted: cancellation is a status transition.
type Subscription struct {
	gorm.Model

	UserID    uint
	WebCardID uint

	Plan       SubscriptionPlan `gorm:"column:subscription_plan"`
	TotalSeats int
	FreeSeats  int // promotional seats, not billed
	Amount     int // recurring charge, minor currency units
	Taxes      int // minor currency units

	// web-originated subscriptions only
	PaymentMeanID   string
	RebillManagerID string // id of the currently live schedule on the gateway
	SubscriptionID  string // internal correlation id echoed back by the gateway

	Issuer       Issuer
	RevenueCatID string

	SubscriberCountryCode string
	SubscriberVatNumber   string // empty means absent

	StartAt    time.Time
	EndAt      time.Time
	CanceledAt *time.Time
	Status     SubscriptionStatus
}

func (s *Subscription) GoString() string {
	return fmt.Sprintf("{ID: %d, UserID: %d, WebCardID: %d, Plan: %s, Seats: %d, Issuer: %s, Status: %s}",
		s.ID, s.UserID, s.WebCardID, s.Plan, s.TotalSeats, s.Issuer, s.Status)
}

func (s Subscription) IsActive() bool {
	return s.Status == StatusActive
}

// BillableSeats is the seat count the subscriber actually pays for.
func (s Subscription) BillableSeats() int {
	billable := s.TotalSeats - s.FreeSeats
	if billable < 0 {
		return 0
	}
	return billable
}

// MarkCanceled keeps the status <-> canceledAt invariant in one place.
func (s *Subscription) MarkCanceled(at time.Time) {
	s.Status = StatusCanceled
	s.CanceledAt = &at
}

// MarkActive clears a previous cancellation.
func (s *Subscription) MarkActive() {
	s.Status = StatusActive
	s.CanceledAt = nil
}
