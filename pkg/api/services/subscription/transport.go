package subscription

import (
	"context"
	"net/http"

	"github.com/go-kit/kit/endpoint"

	"github.com/azzapp/billing-api/internal/api/apierrors"
	"github.com/azzapp/billing-api/internal/api/endpointutil"
	"github.com/azzapp/billing-api/internal/api/transportutil"
	"github.com/azzapp/billing-api/pkg/api/request"
	"github.com/pkg/errors"
)

func RegisterHandlers(svc Service, hctx transportutil.HandlerRegContext) {
	ectx := endpointutil.HandlerRegContext{
		Log:        hctx.Log,
		ErrTracker: hctx.ErrTracker,
		Cfg:        hctx.Cfg,
		DB:         hctx.DB,
	}

	hctx.Router.Handle("/v1/subscriptions/{user_id}/{web_card_id}", transportutil.NewServer(
		makeUpdateEndpoint(svc),
		decodeUpdateRequest,
		transportutil.MakeStoreInternalRequestContext(ectx),
	)).Methods(http.MethodPut)

	hctx.Router.Handle("/v1/subscriptions/{user_id}/{web_card_id}/upgrade", transportutil.NewServer(
		makeUpgradePlanEndpoint(svc),
		decodeSubRequest,
		transportutil.MakeStoreInternalRequestContext(ectx),
	)).Methods(http.MethodPost)

	hctx.Router.Handle("/v1/subscriptions/{user_id}/{web_card_id}", transportutil.NewServer(
		makeEndEndpoint(svc),
		decodeSubRequest,
		transportutil.MakeStoreInternalRequestContext(ectx),
	)).Methods(http.MethodDelete)
}

type updateRequest struct {
	Sub     *request.Sub
	Payload *UpdatePayload
}

type subRequest struct {
	Sub *request.Sub
}

func decodeUpdateRequest(_ context.Context, r *http.Request) (interface{}, error) {
	var req updateRequest
	if err := transportutil.DecodeRequest(&req, r); err != nil {
		return nil, errors.Wrap(apierrors.ErrBadRequest, err.Error())
	}

	return &req, nil
}

func decodeSubRequest(_ context.Context, r *http.Request) (interface{}, error) {
	var req subRequest
	if err := transportutil.DecodeRequest(&req, r); err != nil {
		return nil, errors.Wrap(apierrors.ErrBadRequest, err.Error())
	}

	return &req, nil
}

func internalRC(ctx context.Context) (*request.InternalContext, error) {
	if err := endpointutil.Error(ctx); err != nil {
		return nil, err
	}

	return endpointutil.RequestContext(ctx).(*request.InternalContext), nil
}

func logEndpointError(rc *request.InternalContext, op string, err error) {
	if apierrors.IsExpected(err) {
		rc.Log.Warnf("%s: %s", op, err)
		return
	}
	rc.Log.Errorf("%s: %s", op, err)
}

func makeUpdateEndpoint(svc Service) endpoint.Endpoint {
	return func(ctx context.Context, reqObj interface{}) (interface{}, error) {
		rc, err := internalRC(ctx)
		if err != nil {
			return nil, err
		}

		req := reqObj.(*updateRequest)
		req.Sub.FillLogContext(rc.Lctx)
		if req.Payload != nil {
			req.Payload.FillLogContext(rc.Lctx)
		}

		ret, err := svc.Update(rc, req.Sub, req.Payload)
		if err != nil {
			logEndpointError(rc, "subscription update failed", err)
			return nil, err
		}

		return ret, nil
	}
}

func makeUpgradePlanEndpoint(svc Service) endpoint.Endpoint {
	return func(ctx context.Context, reqObj interface{}) (interface{}, error) {
		rc, err := internalRC(ctx)
		if err != nil {
			return nil, err
		}

		req := reqObj.(*subRequest)
		req.Sub.FillLogContext(rc.Lctx)

		ret, err := svc.UpgradePlan(rc, req.Sub)
		if err != nil {
			logEndpointError(rc, "plan upgrade failed", err)
			return nil, err
		}

		return ret, nil
	}
}

func makeEndEndpoint(svc Service) endpoint.Endpoint {
	return func(ctx context.Context, reqObj interface{}) (interface{}, error) {
		rc, err := internalRC(ctx)
		if err != nil {
			return nil, err
		}

		req := reqObj.(*subRequest)
		req.Sub.FillLogContext(rc.Lctx)

		if err := svc.End(rc, req.Sub); err != nil {
			logEndpointError(rc, "subscription end failed", err)
			return nil, err
		}

		return nil, nil
	}
}
