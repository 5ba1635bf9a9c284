package rebill

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/azzapp/billing-api/internal/api/apierrors"
	"github.com/azzapp/billing-api/internal/shared/config"
	"github.com/azzapp/billing-api/internal/shared/logutil"
	"github.com/pkg/errors"
)

type gatewayStub struct {
	t *testing.T

	stopStatus   string
	createStatus string

	lastStop   map[string]string
	lastCreate map[string]string
}

func (g *gatewayStub) handler() http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("/login", func(w http.ResponseWriter, r *http.Request) {
		require.NoError(g.t, r.ParseForm())
		assert.Equal(g.t, "gw-user", r.PostFormValue("user"))
		assert.Equal(g.t, "gw-password", r.PostFormValue("password"))
		writeJSON(w, map[string]string{"token": "test-token"})
	})
	mux.HandleFunc("/check-rebill-manager", func(w http.ResponseWriter, r *http.Request) {
		g.requireAuth(r)
		writeJSON(w, map[string]string{"status": "ON"})
	})
	mux.HandleFunc("/stop-rebill-manager", func(w http.ResponseWriter, r *http.Request) {
		g.requireAuth(r)
		require.NoError(g.t, r.ParseForm())
		g.lastStop = formToMap(r)
		writeJSON(w, map[string]string{"status": g.stopStatus})
	})
	mux.HandleFunc("/create-rebill-manager", func(w http.ResponseWriter, r *http.Request) {
		g.requireAuth(r)
		require.NoError(g.t, r.ParseForm())
		g.lastCreate = formToMap(r)
		writeJSON(w, map[string]string{"status": g.createStatus, "rebillManagerId": "rm-new"})
	})

	return mux
}

func (g *gatewayStub) requireAuth(r *http.Request) {
	require.Equal(g.t, "Bearer test-token", r.Header.Get("Authorization"))
}

func formToMap(r *http.Request) map[string]string {
	ret := map[string]string{}
	for key := range r.PostForm {
		ret[key] = r.PostFormValue(key)
	}
	return ret
}

func writeJSON(w http.ResponseWriter, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(v)
}

func setupClient(t *testing.T, stub *gatewayStub) (*HTTPClient, func()) {
	stub.t = t
	srv := httptest.NewServer(stub.handler())

	cfg := config.NewEnvConfig(logutil.NewStderrLog("test"))
	t.Setenv("REBILL_GATEWAY_ROOT", srv.URL)
	t.Setenv("REBILL_GATEWAY_USER", "gw-user")
	t.Setenv("REBILL_GATEWAY_PASSWORD", "gw-password")

	client, err := NewHTTPClient(logutil.NewStderrLog("test"), cfg)
	require.NoError(t, err)

	return client, srv.Close
}

func TestLoginAndCheckState(t *testing.T) {
	client, teardown := setupClient(t, &gatewayStub{})
	defer teardown()

	ctx := context.Background()
	token, err := client.Login(ctx)
	require.NoError(t, err)
	require.Equal(t, "test-token", token)

	state, err := client.CheckState(ctx, token, "rm-1", "pm-1")
	require.NoError(t, err)
	assert.Equal(t, StateOn, state)
}

func TestStopMustReachStopped(t *testing.T) {
	stub := &gatewayStub{stopStatus: "STOPPED"}
	client, teardown := setupClient(t, stub)
	defer teardown()

	ctx := context.Background()
	require.NoError(t, client.Stop(ctx, "test-token", "rm-1", "pm-1", "seats update"))
	assert.Equal(t, "rm-1", stub.lastStop["rebillManagerId"])
	assert.Equal(t, "seats update", stub.lastStop["reason"])

	stub.stopStatus = "FAILED"
	err := client.Stop(ctx, "test-token", "rm-1", "pm-1", "seats update")
	require.Error(t, err)
	assert.Equal(t, apierrors.ErrExternalGateway, errors.Cause(err))
}

func TestCreateMustReachCreated(t *testing.T) {
	stub := &gatewayStub{createStatus: "CREATED"}
	client, teardown := setupClient(t, stub)
	defer teardown()

	ctx := context.Background()
	params := CreateParams{
		Description:            "azzapp monthly x5",
		InitialType:            InitialFree,
		InitialDurationMinutes: 14400,
		RebillAmount:           4500,
		RebillPeriodMinutes:    43200,
		PaymentMeanID:          "pm-1",
		FailRule:               FailRuleStop,
		ExternalReference:      "sub-uuid-1",
		CallbackURL:            "https://api.azzapp.com/v1/payments/rebill/callback",
	}

	id, err := client.Create(ctx, "test-token", params)
	require.NoError(t, err)
	assert.Equal(t, "rm-new", id)
	assert.Equal(t, "FREE", stub.lastCreate["initialType"])
	assert.Equal(t, "0", stub.lastCreate["initialAmount"])
	assert.Equal(t, "sub-uuid-1", stub.lastCreate["externalReference"])

	stub.createStatus = "PENDING"
	_, err = client.Create(ctx, "test-token", params)
	require.Error(t, err)
	assert.Equal(t, apierrors.ErrExternalGateway, errors.Cause(err))
}
