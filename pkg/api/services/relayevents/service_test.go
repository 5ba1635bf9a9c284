package relayevents

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gavv/httpexpect"
	"github.com/gorilla/mux"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/azzapp/billing-api/internal/api/transportutil"
	"github.com/azzapp/billing-api/internal/shared/apperrors"
	"github.com/azzapp/billing-api/internal/shared/config"
	"github.com/azzapp/billing-api/internal/shared/logutil"
	"github.com/azzapp/billing-api/pkg/api/entitlement"
	"github.com/azzapp/billing-api/pkg/api/models"
	"github.com/azzapp/billing-api/pkg/api/relay"
	"github.com/azzapp/billing-api/pkg/api/store/storetest"
)

const testSecret = "relay-webhook-secret"

type webhookEnv struct {
	e       *httpexpect.Expect
	st      *storetest.Mem
	revoker *entitlement.NopRevoker
}

func setupWebhook(t *testing.T) *webhookEnv {
	t.Setenv("RELAY_WEBHOOK_SECRET", testSecret)
	t.Setenv("RELAY_WEBHOOK_HMAC_SECRET", "")

	log := logutil.NewStderrLog("test")
	st := storetest.NewMem()
	revoker := &entitlement.NopRevoker{}
	svc := NewBasicService(config.NewEnvConfig(log), relay.NewEventProcessor(log, st, revoker))

	router := mux.NewRouter()
	RegisterHandlers(svc, transportutil.HandlerRegContext{
		Router:     router,
		Log:        log,
		ErrTracker: apperrors.NewNopTracker(),
		Cfg:        config.NewEnvConfig(log),
	})

	server := httptest.NewServer(router)
	t.Cleanup(server.Close)

	return &webhookEnv{
		e:       httpexpect.New(t, server.URL),
		st:      st,
		revoker: revoker,
	}
}

func eventBody(eventType, id string, userID uint, productID string, purchased, expires time.Time) map[string]interface{} {
	event := map[string]interface{}{
		"type":        eventType,
		"id":          id,
		"app_user_id": fmt.Sprint(userID),
		"product_id":  productID,
		"store":       "APP_STORE",
	}
	if !purchased.IsZero() {
		event["purchased_at_ms"] = purchased.UnixNano() / int64(time.Millisecond)
	}
	if !expires.IsZero() {
		event["expiration_at_ms"] = expires.UnixNano() / int64(time.Millisecond)
	}

	return map[string]interface{}{
		"event":       event,
		"api_version": "1.0",
	}
}

func TestIngestRequiresBearerSecret(t *testing.T) {
	env := setupWebhook(t)
	body := eventBody("INITIAL_PURCHASE", "ev-1", 7, "com.app.monthly.3", time.Now(), time.Now().AddDate(0, 0, 30))

	env.e.POST("/v1/payments/relay/events").
		WithJSON(body).
		Expect().
		Status(http.StatusUnauthorized)

	env.e.POST("/v1/payments/relay/events").
		WithHeader("Authorization", "Bearer wrong-secret").
		WithJSON(body).
		Expect().
		Status(http.StatusUnauthorized)

	assert.Empty(t, env.st.Subscriptions)
}

func TestIngestCommitsBeforeResponding(t *testing.T) {
	env := setupWebhook(t)
	t0 := time.Date(2026, 5, 1, 9, 0, 0, 0, time.UTC)

	env.e.POST("/v1/payments/relay/events").
		WithHeader("Authorization", "Bearer "+testSecret).
		WithJSON(eventBody("INITIAL_PURCHASE", "ev-1", 7, "com.app.monthly.3", t0, t0.AddDate(0, 0, 30))).
		Expect().
		Status(http.StatusOK)

	// the row is visible as soon as the response arrives
	require.Len(t, env.st.Subscriptions, 1)
	sub := env.st.Subscriptions[0]
	assert.Equal(t, models.IssuerApple, sub.Issuer)
	assert.Equal(t, 3, sub.TotalSeats)
	assert.Equal(t, models.StatusActive, sub.Status)
	require.Len(t, env.st.RelayEvents, 1)
	assert.Equal(t, "INITIAL_PURCHASE", env.st.RelayEvents[0].Type)
}

func TestIngestExpirationRevokesEntitlement(t *testing.T) {
	env := setupWebhook(t)
	t0 := time.Date(2026, 5, 1, 9, 0, 0, 0, time.UTC)

	auth := func(r *httpexpect.Request) *httpexpect.Request {
		return r.WithHeader("Authorization", "Bearer "+testSecret)
	}

	auth(env.e.POST("/v1/payments/relay/events")).
		WithJSON(eventBody("INITIAL_PURCHASE", "ev-1", 7, "com.app.monthly.3", t0, t0.AddDate(0, 0, 30))).
		Expect().
		Status(http.StatusOK)

	auth(env.e.POST("/v1/payments/relay/events")).
		WithJSON(eventBody("EXPIRATION", "ev-2", 7, "com.app.monthly.3", t0.AddDate(0, 0, 30), time.Time{})).
		Expect().
		Status(http.StatusOK)

	assert.Equal(t, models.StatusCanceled, env.st.Subscriptions[0].Status)
	assert.Equal(t, []uint{7}, env.revoker.Revoked)
}

func TestIngestRejectsMalformedBody(t *testing.T) {
	env := setupWebhook(t)

	env.e.POST("/v1/payments/relay/events").
		WithHeader("Authorization", "Bearer "+testSecret).
		WithText("not json").
		Expect().
		Status(http.StatusBadRequest)
}

func TestIngestVerifiesHmacSignatureWhenConfigured(t *testing.T) {
	env := setupWebhook(t)
	t.Setenv("RELAY_WEBHOOK_HMAC_SECRET", "hmac-secret")

	body := `{"event":{"type":"TRANSFER","id":"ev-1","app_user_id":"7","store":"APP_STORE"},"api_version":"1.0"}`
	mac := hmac.New(sha256.New, []byte("hmac-secret"))
	mac.Write([]byte(body))
	signature := hex.EncodeToString(mac.Sum(nil))

	env.e.POST("/v1/payments/relay/events").
		WithHeader("Authorization", "Bearer "+testSecret).
		WithHeader("X-Signature", "deadbeef").
		WithText(body).
		Expect().
		Status(http.StatusUnauthorized)

	env.e.POST("/v1/payments/relay/events").
		WithHeader("Authorization", "Bearer "+testSecret).
		WithHeader("X-Signature", signature).
		WithText(body).
		Expect().
		Status(http.StatusOK)
}
