// Package relayevents exposes the notification-relay webhook: the single
// ingestion point for App Store / Play Store subscription events.
package relayevents

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"strings"

	"github.com/pkg/errors"

	"github.com/azzapp/billing-api/internal/api/apierrors"
	"github.com/azzapp/billing-api/internal/shared/analytics"
	"github.com/azzapp/billing-api/internal/shared/config"
	"github.com/azzapp/billing-api/internal/shared/logutil"
	"github.com/azzapp/billing-api/pkg/api/relay"
	"github.com/azzapp/billing-api/pkg/api/request"
)

type AuthContext struct {
	Authorization string `request:"Authorization,header,optional"`
	Signature     string `request:"X-Signature,header,optional"`
}

func (r AuthContext) FillLogContext(lctx logutil.Context) {
	lctx["has_signature"] = r.Signature != ""
}

type Service interface {
	//url:/v1/payments/relay/events method:POST
	Ingest(rc *request.AnonymousContext, auth *AuthContext, body request.Body) error
}

func NewBasicService(cfg config.Config, processor *relay.EventProcessor) *BasicService {
	return &BasicService{
		cfg:       cfg,
		processor: processor,
	}
}

type BasicService struct {
	cfg       config.Config
	processor *relay.EventProcessor
}

// Ingest authenticates the delivery, reconciles it and only then returns:
// the relay's 200 must mean the write is durably committed. Any failure
// surfaces as a non-2xx so the relay redelivers.
func (s BasicService) Ingest(rc *request.AnonymousContext, auth *AuthContext, body request.Body) error {
	if err := s.authenticate(rc, auth, body); err != nil {
		return err
	}

	ev, err := relay.ParseEvent(body)
	if err != nil {
		rc.Log.Warnf("Rejecting malformed relay delivery: %s", err)
		return errors.Wrap(apierrors.ErrBadRequest, err.Error())
	}

	if err = s.processor.Process(rc.Ctx, ev, body); err != nil {
		return errors.Wrap(err, "failed to reconcile relay event")
	}

	common := ev.Common()
	analytics.GetTracker(rc.Ctx).RelayEventReceived(common.AppUserID, string(common.Issuer), relay.TypeName(ev))

	return nil
}

func (s BasicService) authenticate(rc *request.AnonymousContext, auth *AuthContext, body []byte) error {
	secret := s.cfg.GetString("RELAY_WEBHOOK_SECRET")
	if len(secret) <= 8 {
		return errors.Wrap(apierrors.ErrNotAuthorized, "too short RELAY_WEBHOOK_SECRET")
	}

	token := strings.TrimPrefix(auth.Authorization, "Bearer ")
	if token == auth.Authorization || token != secret {
		rc.Log.Warnf("Invalid relay bearer token")
		return errors.Wrap(apierrors.ErrNotAuthorized, "invalid relay bearer token")
	}

	// Signature verification is opt-in: the relay only sends X-Signature
	// when configured to sign payloads.
	hmacSecret := s.cfg.GetString("RELAY_WEBHOOK_HMAC_SECRET")
	if hmacSecret == "" {
		return nil
	}

	mac := hmac.New(sha256.New, []byte(hmacSecret))
	mac.Write(body)
	want := hex.EncodeToString(mac.Sum(nil))
	if !hmac.Equal([]byte(want), []byte(strings.ToLower(auth.Signature))) {
		rc.Log.Warnf("Invalid relay payload signature")
		return errors.Wrap(apierrors.ErrNotAuthorized, "invalid payload signature")
	}

	return nil
}
