package transportutil

import (
	"github.com/azzapp/billing-api/internal/shared/apperrors"
	"github.com/azzapp/billing-api/internal/shared/config"
	"github.com/azzapp/billing-api/internal/shared/logutil"
	"github.com/go-kit/kit/endpoint"
	httptransport "github.com/go-kit/kit/transport/http"
	"github.com/gorilla/mux"
	"github.com/jinzhu/gorm"
)

type HandlerRegContext struct {
	Router     *mux.Router
	Log        logutil.Log
	ErrTracker apperrors.Tracker
	Cfg        config.Config
	DB         *gorm.DB
}

func NewServer(e endpoint.Endpoint, decodeRequest httptransport.DecodeRequestFunc,
	storeRequestContext httptransport.RequestFunc) *httptransport.Server {

	return httptransport.NewServer(
		e,
		decodeRequest,
		EncodeResponse,
		httptransport.ServerBefore(storeRequestContext, StoreHTTPRequestToContext),
		httptransport.ServerErrorEncoder(EncodeError),
	)
}
