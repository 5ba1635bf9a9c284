package transportutil

import (
	"context"
	"net/http"
	"time"

	httptransport "github.com/go-kit/kit/transport/http"
	"github.com/azzapp/billing-api/internal/api/endpointutil"
	"github.com/azzapp/billing-api/internal/shared/logutil"
	"github.com/pkg/errors"
)

func MakeStoreInternalRequestContext(hctx endpointutil.HandlerRegContext) httptransport.RequestFunc {
	return func(ctx context.Context, r *http.Request) context.Context {
		hctx.ErrTracker = hctx.ErrTracker.WithHTTPRequest(r)

		rc, err := endpointutil.MakeInternalRequestContext(ctx, &hctx,
			r.Header.Get("X-Internal-Access-Token"))
		if err != nil {
			return endpointutil.StoreError(ctx, errors.Wrap(err, "failed to authorize internal request"))
		}

		return endpointutil.StoreRequestContext(ctx, rc)
	}
}

func MakeStoreAnonymousRequestContext(hctx endpointutil.HandlerRegContext) httptransport.RequestFunc {
	return func(ctx context.Context, r *http.Request) context.Context {
		hctx.ErrTracker = hctx.ErrTracker.WithHTTPRequest(r)
		rc := endpointutil.MakeAnonymousRequestContext(ctx, &hctx)
		return endpointutil.StoreRequestContext(ctx, rc)
	}
}

func FinalizeRequest(ctx context.Context, code int, r *http.Request) {
	rc := endpointutil.RequestContext(ctx)
	if rc != nil {
		rc.Logger().Debugf("http", "%s %s respond %d for %s", r.Method, r.URL.Path, code, time.Since(rc.RequestStartedAt()))
	} else {
		logger := logutil.NewStderrLog("finalize request")
		logger.Debugf("http", "%s %s respond %d with no request context", r.Method, r.URL.Path, code)
	}
}

type ctxKey string

const (
	httpRequestKey ctxKey = "transport/httpRequest"
)

func StoreHTTPRequestToContext(ctx context.Context, r *http.Request) context.Context {
	return context.WithValue(ctx, httpRequestKey, r)
}

func GetHTTPRequestFromContext(ctx context.Context) *http.Request {
	v := ctx.Value(httpRequestKey)
	if v == nil {
		return nil
	}
	return v.(*http.Request)
}
