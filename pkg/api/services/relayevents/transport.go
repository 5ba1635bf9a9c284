package relayevents

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

	hctx.Router.Handle("/v1/payments/relay/events", transportutil.NewServer(
		makeIngestEndpoint(svc),
		decodeIngestRequest,
		transportutil.MakeStoreAnonymousRequestContext(ectx),
	)).Methods(http.MethodPost)
}

type ingestRequest struct {
	Auth *AuthContext
	Body request.Body
}

func decodeIngestRequest(_ context.Context, r *http.Request) (interface{}, error) {
	var req ingestRequest
	if err := transportutil.DecodeRequest(&req, r); err != nil {
		return nil, errors.Wrap(apierrors.ErrBadRequest, err.Error())
	}

	return &req, nil
}

func makeIngestEndpoint(svc Service) endpoint.Endpoint {
	return func(ctx context.Context, reqObj interface{}) (interface{}, error) {
		if err := endpointutil.Error(ctx); err != nil {
			return nil, err
		}

		req := reqObj.(*ingestRequest)
		rc := endpointutil.RequestContext(ctx).(*request.AnonymousContext)
		req.Auth.FillLogContext(rc.Lctx)

		if err := svc.Ingest(rc, req.Auth, req.Body); err != nil {
			if apierrors.IsExpected(err) {
				rc.Log.Warnf("relay ingestion rejected: %s", err)
			} else {
				rc.Log.Errorf("relay ingestion failed: %s", err)
			}
			return nil, err
		}

		return nil, nil
	}
}
