package request

import (
	"context"
	"time"

	"github.com/azzapp/billing-api/internal/shared/logutil"
	"github.com/jinzhu/gorm"
)

type Context interface {
	RequestStartedAt() time.Time
	Logger() logutil.Log
}

type BaseContext struct {
	Ctx  context.Context
	Log  logutil.Log
	Lctx logutil.Context
	DB   *gorm.DB

	StartedAt time.Time
}

func (ctx BaseContext) RequestStartedAt() time.Time {
	return ctx.StartedAt
}

func (ctx BaseContext) Logger() logutil.Log {
	return ctx.Log
}

// AnonymousContext is used for endpoints authenticated by request payload
// (the relay webhook's bearer secret), not by caller identity.
type AnonymousContext struct {
	BaseContext
}

// InternalContext is used for endpoints called by trusted internal
// services presenting X-Internal-Access-Token.
type InternalContext struct {
	BaseContext
}

type Body []byte
