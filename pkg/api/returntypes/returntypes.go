package returntypes

import (
	"time"

	"github.com/azzapp/billing-api/pkg/api/models"
)

type Error struct {
	Error string `json:"error,omitempty"`
}

type SubInfo struct {
	ID         uint       `json:"id"`
	UserID     uint       `json:"userId"`
	WebCardID  uint       `json:"webCardId"`
	Plan       string     `json:"plan"`
	TotalSeats int        `json:"totalSeats"`
	FreeSeats  int        `json:"freeSeats,omitempty"`
	Amount     int        `json:"amount"`
	Taxes      int        `json:"taxes"`
	Issuer     string     `json:"issuer"`
	Status     string     `json:"status"`
	StartAt    time.Time  `json:"startAt"`
	EndAt      time.Time  `json:"endAt"`
	CanceledAt *time.Time `json:"canceledAt,omitempty"`
}

func SubInfoFromModel(sub *models.Subscription) *SubInfo {
	return &SubInfo{
		ID:         sub.ID,
		UserID:     sub.UserID,
		WebCardID:  sub.WebCardID,
		Plan:       string(sub.Plan),
		TotalSeats: sub.TotalSeats,
		FreeSeats:  sub.FreeSeats,
		Amount:     sub.Amount,
		Taxes:      sub.Taxes,
		Issuer:     string(sub.Issuer),
		Status:     string(sub.Status),
		StartAt:    sub.StartAt,
		EndAt:      sub.EndAt,
		CanceledAt: sub.CanceledAt,
	}
}
