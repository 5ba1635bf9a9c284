package analytics

import (
	"context"
	"time"

	"github.com/dukex/mixpanel"
	"github.com/savaki/amplitude-go"
)

type Tracker interface {
	RelayEventReceived(userID, issuer, eventType string)
}

type amplitudeMixpanelTracker struct{}

func (t amplitudeMixpanelTracker) RelayEventReceived(userID, issuer, eventType string) {
	eventProps := map[string]interface{}{
		"issuer":     issuer,
		"event_type": eventType,
	}
	userProps := map[string]interface{}{
		"lastStoreEventAt": time.Now(),
	}
	const eventName = "store payment event received"

	ac := getAmplitudeClient()
	if ac != nil {
		ac.Publish(amplitude.Event{
			UserId:          userID,
			EventType:       eventName,
			EventProperties: eventProps,
			UserProperties:  userProps,
		})
	}

	mp := getMixpanelClient()
	if mp != nil {
		const ip = "0" // don't auto-detect
		mp.Track(userID, eventName, &mixpanel.Event{
			IP:         ip,
			Properties: eventProps,
		})
		mp.Update(userID, &mixpanel.Update{
			IP:         ip,
			Operation:  "$set",
			Properties: userProps,
		})
	}
}

func GetTracker(_ context.Context) Tracker {
	return amplitudeMixpanelTracker{}
}
