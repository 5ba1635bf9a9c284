package endpointutil

import (
	"github.com/azzapp/billing-api/internal/shared/apperrors"
	"github.com/azzapp/billing-api/internal/shared/config"
	"github.com/azzapp/billing-api/internal/shared/logutil"
	"github.com/jinzhu/gorm"
)

type HandlerRegContext struct {
	Log        logutil.Log
	ErrTracker apperrors.Tracker
	Cfg        config.Config
	DB         *gorm.DB
}
