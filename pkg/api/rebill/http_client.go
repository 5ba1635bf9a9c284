package rebill

import (
	"context"
	"fmt"
	"strconv"

	"github.com/levigross/grequests"
	"github.com/pkg/errors"

	"github.com/azzapp/billing-api/internal/api/apierrors"
	"github.com/azzapp/billing-api/internal/shared/config"
	"github.com/azzapp/billing-api/internal/shared/logutil"
)

const (
	statusStopped = "STOPPED"
	statusCreated = "CREATED"
)

type HTTPClient struct {
	log logutil.Log

	apiRoot  string
	user     string
	password string
}

var _ Client = HTTPClient{}

func NewHTTPClient(log logutil.Log, cfg config.Config) (*HTTPClient, error) {
	apiRoot := cfg.GetString("REBILL_GATEWAY_ROOT")
	if apiRoot == "" {
		return nil, errors.New("no rebill gateway root")
	}

	user := cfg.GetString("REBILL_GATEWAY_USER")
	if user == "" {
		return nil, errors.New("no rebill gateway user")
	}

	password := cfg.GetString("REBILL_GATEWAY_PASSWORD")
	if password == "" {
		return nil, errors.New("no rebill gateway password")
	}

	return &HTTPClient{
		log:      log,
		apiRoot:  apiRoot,
		user:     user,
		password: password,
	}, nil
}

func (c HTTPClient) Login(ctx context.Context) (string, error) {
	type loginReq struct {
		User     string `schema:"user"`
		Password string `schema:"password"`
	}

	data, err := structToGrequestsData(loginReq{User: c.user, Password: c.password})
	if err != nil {
		return "", errors.Wrap(err, "failed to make login request data")
	}

	apiURL := fmt.Sprintf("%s/login", c.apiRoot)
	resp, err := grequests.Post(apiURL, &grequests.RequestOptions{
		Context: ctx,
		Data:    data,
	})
	if err != nil {
		return "", errors.Wrapf(apierrors.ErrExternalGateway, "gateway login request failed: %s", err)
	}
	if !resp.Ok {
		return "", errors.Wrapf(apierrors.ErrExternalGateway, "gateway login response code %d", resp.StatusCode)
	}

	var respData struct {
		Token string `json:"token"`
	}
	if err = resp.JSON(&respData); err != nil {
		return "", errors.Wrap(err, "failed to decode gateway login response")
	}
	if respData.Token == "" {
		return "", errors.Wrap(apierrors.ErrExternalGateway, "gateway login returned no token")
	}

	return respData.Token, nil
}

func (c HTTPClient) CheckState(ctx context.Context, token, rebillManagerID, paymentMeanID string) (State, error) {
	type checkReq struct {
		RebillManagerID string `schema:"rebillManagerId"`
		PaymentMeanID   string `schema:"paymentMeanId"`
	}

	var respData struct {
		Status string `json:"status"`
	}
	err := c.post(ctx, token, "check-rebill-manager",
		checkReq{RebillManagerID: rebillManagerID, PaymentMeanID: paymentMeanID}, &respData)
	if err != nil {
		return "", err
	}

	switch State(respData.Status) {
	case StateOn, StateOff:
		return State(respData.Status), nil
	}

	return "", errors.Wrapf(apierrors.ErrExternalGateway,
		"unexpected state %q for rebill manager %s", respData.Status, rebillManagerID)
}

func (c HTTPClient) Stop(ctx context.Context, token, rebillManagerID, paymentMeanID, reason string) error {
	type stopReq struct {
		RebillManagerID string `schema:"rebillManagerId"`
		PaymentMeanID   string `schema:"paymentMeanId"`
		Reason          string `schema:"reason"`
	}

	var respData struct {
		Status string `json:"status"`
	}
	err := c.post(ctx, token, "stop-rebill-manager",
		stopReq{RebillManagerID: rebillManagerID, PaymentMeanID: paymentMeanID, Reason: reason}, &respData)
	if err != nil {
		return err
	}

	if respData.Status != statusStopped {
		return errors.Wrapf(apierrors.ErrExternalGateway,
			"stop of rebill manager %s ended in status %q", rebillManagerID, respData.Status)
	}

	c.log.Infof("Stopped rebill manager %s: %s", rebillManagerID, reason)
	return nil
}

func (c HTTPClient) Create(ctx context.Context, token string, params CreateParams) (string, error) {
	type createReq struct {
		Description            string `schema:"description"`
		InitialType            string `schema:"initialType"`
		InitialAmount          string `schema:"initialAmount"`
		InitialDurationMinutes string `schema:"initialDurationMinutes"`
		RebillAmount           string `schema:"rebillAmount"`
		RebillPeriodMinutes    string `schema:"rebillPeriodMinutes"`
		PaymentMeanID          string `schema:"paymentMeanId"`
		FailRule               string `schema:"failRule"`
		ExternalReference      string `schema:"externalReference"`
		CallbackURL            string `schema:"callbackUrl"`
	}

	req := createReq{
		Description:            params.Description,
		InitialType:            string(params.InitialType),
		InitialAmount:          strconv.Itoa(params.InitialAmount),
		InitialDurationMinutes: strconv.Itoa(params.InitialDurationMinutes),
		RebillAmount:           strconv.Itoa(params.RebillAmount),
		RebillPeriodMinutes:    strconv.Itoa(params.RebillPeriodMinutes),
		PaymentMeanID:          params.PaymentMeanID,
		FailRule:               params.FailRule,
		ExternalReference:      params.ExternalReference,
		CallbackURL:            params.CallbackURL,
	}

	var respData struct {
		Status          string `json:"status"`
		RebillManagerID string `json:"rebillManagerId"`
	}
	if err := c.post(ctx, token, "create-rebill-manager", req, &respData); err != nil {
		return "", err
	}

	if respData.Status != statusCreated || respData.RebillManagerID == "" {
		return "", errors.Wrapf(apierrors.ErrExternalGateway,
			"creation of rebill manager ended in status %q", respData.Status)
	}

	c.log.Infof("Created rebill manager %s for external reference %s",
		respData.RebillManagerID, params.ExternalReference)
	return respData.RebillManagerID, nil
}

func (c HTTPClient) post(ctx context.Context, token, path string, req, respData interface{}) error {
	data, err := structToGrequestsData(req)
	if err != nil {
		return errors.Wrapf(err, "failed to make request data for %s", path)
	}

	apiURL := fmt.Sprintf("%s/%s", c.apiRoot, path)
	resp, err := grequests.Post(apiURL, &grequests.RequestOptions{
		Context: ctx,
		Data:    data,
		Headers: map[string]string{
			"Authorization": "Bearer " + token,
		},
	})
	if err != nil {
		return errors.Wrapf(apierrors.ErrExternalGateway, "gateway request to %s failed: %s", path, err)
	}
	if !resp.Ok {
		return errors.Wrapf(apierrors.ErrExternalGateway, "gateway response code %d from %s", resp.StatusCode, path)
	}

	if err = resp.JSON(respData); err != nil {
		return errors.Wrapf(err, "failed to decode gateway response from %s", path)
	}

	return nil
}
