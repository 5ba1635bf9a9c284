package api

import (
	"github.com/azzapp/billing-api/pkg/api/entitlement"
	"github.com/azzapp/billing-api/pkg/api/rebill"
	"github.com/azzapp/billing-api/pkg/api/store"
)

type Modifier func(a *App)

func SetRebillClient(c rebill.Client) Modifier {
	return func(a *App) {
		a.gateway = c
	}
}

func SetEntitlementRevoker(r entitlement.Revoker) Modifier {
	return func(a *App) {
		a.revoker = r
	}
}

func SetStore(st store.Store) Modifier {
	return func(a *App) {
		a.st = st
	}
}
